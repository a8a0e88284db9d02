package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aretw0/weft"
	"github.com/aretw0/weft/pkg/adapters/bolt"
	"github.com/aretw0/weft/pkg/adapters/command"
	httpadapter "github.com/aretw0/weft/pkg/adapters/http"
	"github.com/aretw0/weft/pkg/adapters/memory"
	redisadapter "github.com/aretw0/weft/pkg/adapters/redis"
	"github.com/aretw0/weft/pkg/adapters/websocket"
	"github.com/aretw0/weft/pkg/config"
	"github.com/aretw0/weft/pkg/domain"
	"github.com/aretw0/weft/pkg/observability"
	"github.com/aretw0/weft/pkg/persistence/middleware"
	"github.com/aretw0/weft/pkg/ports"
	"github.com/aretw0/weft/pkg/session"
	backend "github.com/redis/go-redis/v9"
)

// LockPrefix namespaces the keys of the redis locker.
const LockPrefix = "weft:lock:"

// Runtime holds everything an interpreter is built from: the state store,
// the optional locker and output ports, and the observability sinks fed by
// lifecycle hooks.
type Runtime struct {
	Config  config.Config
	Logger  *slog.Logger
	Store   ports.StateStore
	Locker  ports.DistributedLocker
	Ports   []ports.OutputPort
	Metrics *observability.Metrics
	Streams *httpadapter.StreamManager

	closers []func() error
}

// NewRuntime opens the backends named by cfg. Output ports are dialed right
// away, so an unreachable peer fails startup.
func NewRuntime(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Runtime, error) {
	rt := &Runtime{
		Config:  cfg,
		Logger:  logger,
		Metrics: observability.NewMetrics(),
		Streams: httpadapter.NewStreamManager(logger),
	}

	store, closeStore, err := OpenStore(cfg)
	if err != nil {
		return nil, err
	}
	rt.Store = store
	rt.closers = append(rt.closers, closeStore)

	if cfg.Locker.Kind == config.LockerRedis {
		client := lockerClient(cfg, store)
		if client == nil {
			r := cfg.Store.Redis
			client = backend.NewClient(&backend.Options{Addr: r.Addr, Password: r.Password, DB: r.DB})
			rt.closers = append(rt.closers, client.Close)
		}
		rt.Locker = redisadapter.NewLocker(client, LockPrefix)
	}

	for _, p := range cfg.OutputPorts {
		port, err := rt.openPort(ctx, p)
		if err != nil {
			_ = rt.Close()
			return nil, fmt.Errorf("output port %s: %w", p.Name, err)
		}
		rt.Ports = append(rt.Ports, port)
	}

	logger.Debug("Runtime ready", "store", cfg.Store.Kind, "locker", cfg.Locker.Kind, "output_ports", len(rt.Ports))
	return rt, nil
}

// openPort dials a websocket port, or registers the commands of a command
// port.
func (rt *Runtime) openPort(ctx context.Context, p config.PortConfig) (ports.OutputPort, error) {
	if len(p.Commands) > 0 {
		runner := command.NewRunner(command.WithBaseDir(p.Dir), command.WithLogger(rt.Logger))
		for op, c := range p.Commands {
			runner.Register(op, command.Command{Path: c.Command, Args: c.Args, Env: c.Env})
		}
		var opts []memory.PortOption
		if p.ResourcePath != "" {
			opts = append(opts, memory.WithResourcePath(p.ResourcePath))
		}
		return command.NewPort(p.Name, runner, opts...), nil
	}

	conn, err := websocket.Dial(ctx, p.URL,
		websocket.WithName(p.Name),
		websocket.WithReadTimeout(rt.Config.Websocket.ReadTimeout),
		websocket.WithLogger(rt.Logger),
	)
	if err != nil {
		return nil, err
	}
	rt.closers = append(rt.closers, conn.Close)
	return websocket.NewPort(p.Name, p.ResourcePath, conn), nil
}

// lockerClient reuses the store connection when the store is redis too.
func lockerClient(cfg config.Config, store ports.StateStore) *backend.Client {
	if s, ok := store.(*redisadapter.Store); ok && cfg.Store.Kind == config.StoreRedis {
		return s.Client()
	}
	return nil
}

// OpenStore opens the state store named by cfg together with its close
// function. Redaction and encryption wrap the backend when configured.
func OpenStore(cfg config.Config) (ports.StateStore, func() error, error) {
	store, closeStore, err := openBackend(cfg)
	if err != nil {
		return nil, nil, err
	}

	var mws []middleware.Middleware
	if len(cfg.Store.Redact) > 0 {
		mw, err := middleware.NewPIIMiddleware(cfg.Store.Redact)
		if err != nil {
			_ = closeStore()
			return nil, nil, err
		}
		mws = append(mws, mw)
	}
	if enc := cfg.Store.Encryption; enc.Enabled() {
		active, fallback, err := enc.Keys()
		if err == nil {
			var mw middleware.Middleware
			mw, err = middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: active, FallbackKeys: fallback})
			mws = append(mws, mw)
		}
		if err != nil {
			_ = closeStore()
			return nil, nil, err
		}
	}
	return middleware.Chain(store, mws...), closeStore, nil
}

func openBackend(cfg config.Config) (ports.StateStore, func() error, error) {
	switch cfg.Store.Kind {
	case config.StoreRedis:
		r := cfg.Store.Redis
		opts := []redisadapter.Option{redisadapter.WithTTL(r.TTL)}
		if r.Prefix != "" {
			opts = append(opts, redisadapter.WithPrefix(r.Prefix))
		}
		s := redisadapter.New(r.Addr, r.Password, r.DB, opts...)
		return s, s.Close, nil
	case config.StoreBolt:
		s, err := bolt.Open(cfg.Store.Bolt.Path)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	case config.StoreMemory, "":
		return memory.NewStore(), func() error { return nil }, nil
	}
	return nil, nil, fmt.Errorf("unknown store kind %q", cfg.Store.Kind)
}

// Hooks feeds metrics, event streams and, at debug level, the log.
func (rt *Runtime) Hooks() domain.LifecycleHooks {
	sets := []domain.LifecycleHooks{rt.Metrics.Hooks(), rt.Streams.Hooks()}
	if rt.Logger.Enabled(context.Background(), slog.LevelDebug) {
		sets = append(sets, observability.LogHooks(rt.Logger))
	}
	return domain.CombineHooks(sets...)
}

// Options returns the interpreter options matching the runtime.
func (rt *Runtime) Options() ([]weft.Option, error) {
	mode, err := weft.ParseExecutionMode(rt.Config.Execution)
	if err != nil {
		return nil, err
	}
	opts := []weft.Option{
		weft.WithLogger(rt.Logger),
		weft.WithExecutionMode(mode),
		weft.WithLifecycleHooks(rt.Hooks()),
	}

	var sessionOpts []session.Option
	sessionOpts = append(sessionOpts, session.WithLogger(rt.Logger))
	if rt.Locker != nil {
		sessionOpts = append(sessionOpts, session.WithLocker(rt.Locker), session.WithLockTTL(rt.Config.Locker.TTL))
		opts = append(opts, weft.WithDistributedLocker(rt.Locker, rt.Config.Locker.TTL))
	}
	opts = append(opts, weft.WithStateStore(rt.Store, sessionOpts...))

	if rt.Config.ResponseTimeout > 0 {
		opts = append(opts, weft.WithResponseTimeout(rt.Config.ResponseTimeout))
	}
	for _, p := range rt.Ports {
		opts = append(opts, weft.WithOutputPort(p))
	}
	return opts, nil
}

// NewInterpreter builds an interpreter for program on the runtime.
func (rt *Runtime) NewInterpreter(program weft.Program) (*weft.Interpreter, error) {
	opts, err := rt.Options()
	if err != nil {
		return nil, err
	}
	itp, err := weft.New(program, opts...)
	if err != nil {
		return nil, fmt.Errorf("error initializing interpreter: %w", err)
	}
	return itp, nil
}

// Close releases the backends in reverse opening order.
func (rt *Runtime) Close() error {
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		errs = append(errs, rt.closers[i]())
	}
	rt.closers = nil
	return errors.Join(errs...)
}
