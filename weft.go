package weft

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/weft/internal/logging"
	"github.com/aretw0/weft/pkg/domain"
	"github.com/aretw0/weft/pkg/ports"
	"github.com/aretw0/weft/pkg/process"
	"github.com/aretw0/weft/pkg/runtime"
	"github.com/aretw0/weft/pkg/session"
	"github.com/google/uuid"
)

// ExecutionMode selects how starter messages map to sessions.
type ExecutionMode string

const (
	// Concurrent starts a session per starter message; sessions run in parallel.
	Concurrent ExecutionMode = "concurrent"
	// Sequential starts a session per starter message but runs one at a time.
	Sequential ExecutionMode = "sequential"
	// Single runs the main process exactly once, as soon as the interpreter starts.
	Single ExecutionMode = "single"
)

// ParseExecutionMode maps a configuration string to a mode.
func ParseExecutionMode(s string) (ExecutionMode, error) {
	switch m := ExecutionMode(s); m {
	case Concurrent, Sequential, Single:
		return m, nil
	case "":
		return Concurrent, nil
	}
	return "", fmt.Errorf("unknown execution mode %q", s)
}

// ErrNotStarted is returned by Deliver when a starter message arrives before Start.
var ErrNotStarted = errors.New("interpreter not started")

// KillFault names the fault a session is killed with when Kill gets none.
const KillFault = "SessionKilled"

// rootScope names the scope enclosing init and every session's main process.
const rootScope = "main"

// Program is a deployable service: the operations it exposes, an optional
// init process run once before any session, and the main process every
// session runs.
type Program struct {
	Name      string
	Interface []domain.Operation
	Init      runtime.Process
	Main      runtime.Process
}

// Interpreter runs a Program: it accepts inbound messages, starts sessions,
// correlates messages to the sessions waiting for them and persists the
// outcome of every session.
type Interpreter struct {
	program  Program
	ops      map[string]domain.Operation
	starters map[string]bool
	mode     ExecutionMode

	env      *runtime.Env
	envOpts  []runtime.EnvOption
	sessions *session.Manager
	locker   ports.DistributedLocker
	lockTTL  time.Duration
	hooks    domain.LifecycleHooks
	logger   *slog.Logger
	newID    func() string

	ctx    context.Context
	cancel context.CancelFunc
	seq    chan struct{}
	wg     sync.WaitGroup

	mu         sync.Mutex
	started    bool
	closed     bool
	init       *runtime.State
	initThread *runtime.Thread
	live       map[string]*liveSession
	single     *liveSession
}

// Option defines a functional option for configuring the Interpreter.
type Option func(*Interpreter)

// WithLogger sets a custom structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(i *Interpreter) {
		i.logger = logger
	}
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(i *Interpreter) {
		i.hooks = hooks
	}
}

// WithExecutionMode overrides the default Concurrent mode.
func WithExecutionMode(mode ExecutionMode) Option {
	return func(i *Interpreter) {
		i.mode = mode
	}
}

// WithStateStore persists a snapshot of every session in store.
func WithStateStore(store ports.StateStore, opts ...session.Option) Option {
	return func(i *Interpreter) {
		i.sessions = session.NewManager(store, opts...)
	}
}

// WithDistributedLocker makes synchronized regions exclusive across every
// interpreter sharing locker. ttl bounds how long a crashed holder blocks others.
func WithDistributedLocker(locker ports.DistributedLocker, ttl time.Duration) Option {
	return func(i *Interpreter) {
		i.locker = locker
		i.lockTTL = ttl
	}
}

// WithResponseTimeout sets the default wait for solicit-response replies and
// notification acks.
func WithResponseTimeout(d time.Duration) Option {
	return func(i *Interpreter) {
		i.envOpts = append(i.envOpts, runtime.WithResponseTimeout(d))
	}
}

// WithOutputPort registers an output port used by notifications and
// solicit-responses.
func WithOutputPort(port ports.OutputPort) Option {
	return func(i *Interpreter) {
		i.envOpts = append(i.envOpts, runtime.WithOutputPort(port))
	}
}

// WithSessionIDs replaces the uuid session id generator.
func WithSessionIDs(next func() string) Option {
	return func(i *Interpreter) {
		i.newID = next
	}
}

// New validates program and prepares an interpreter for it.
func New(program Program, opts ...Option) (*Interpreter, error) {
	if program.Main == nil {
		return nil, errors.New("program has no main process")
	}
	i := &Interpreter{
		program:  program,
		ops:      make(map[string]domain.Operation, len(program.Interface)),
		starters: make(map[string]bool),
		mode:     Concurrent,
		newID:    uuid.NewString,
		live:     make(map[string]*liveSession),
	}
	for _, opt := range opts {
		opt(i)
	}
	if i.logger == nil {
		i.logger = logging.NewNop()
	}
	if program.Name != "" {
		i.logger = i.logger.With("program", program.Name)
	}
	if _, err := ParseExecutionMode(string(i.mode)); err != nil {
		return nil, err
	}

	for _, op := range program.Interface {
		if _, dup := i.ops[op.Name]; dup {
			return nil, fmt.Errorf("operation %q is declared twice", op.Name)
		}
		i.ops[op.Name] = op
	}
	for _, name := range process.StarterOperations(program.Main) {
		if _, ok := i.ops[name]; !ok {
			return nil, fmt.Errorf("starter operation %q: %w", name, domain.ErrUnknownOperation)
		}
		i.starters[name] = true
	}
	if i.mode != Single && len(i.starters) == 0 {
		return nil, fmt.Errorf("main process does not begin with an input; %s mode needs one", i.mode)
	}
	if i.mode == Sequential {
		i.seq = make(chan struct{}, 1)
	}

	lockOpts := []runtime.LockOption{runtime.WithLockLogger(i.logger)}
	if i.locker != nil {
		lockOpts = append(lockOpts, runtime.WithDistributedLocker(i.locker, i.lockTTL))
	}
	envOpts := []runtime.EnvOption{
		runtime.WithLogger(i.logger),
		runtime.WithHooks(i.hooks),
		runtime.WithLocks(runtime.NewLockRegistry(lockOpts...)),
	}
	i.env = runtime.NewEnv(append(envOpts, i.envOpts...)...)
	i.ctx, i.cancel = context.WithCancel(context.Background())
	return i, nil
}

// Env exposes the runtime environment shared by every session.
func (i *Interpreter) Env() *runtime.Env { return i.env }

// Mode returns the execution mode.
func (i *Interpreter) Mode() ExecutionMode { return i.mode }

// Start runs the init process and, in Single mode, launches the session.
// Sessions start from a deep copy of the state left by init and see the
// fault handlers init installed in the root scope.
func (i *Interpreter) Start(ctx context.Context) error {
	i.mu.Lock()
	switch {
	case i.closed:
		i.mu.Unlock()
		return domain.ErrInterpreterClosed
	case i.started:
		i.mu.Unlock()
		return errors.New("interpreter already started")
	}
	i.started = true
	i.mu.Unlock()

	const initID = "init"
	state := runtime.NewState(nil)
	initThread := runtime.NewThread(i.env, initID, state)
	initThread.PushScope(rootScope)
	if i.program.Init != nil {
		corr := i.env.Correlator()
		corr.OpenSession(initID)
		err := process.RunScoped(ctx, initThread, rootScope, runtime.CopyProcess(i.program.Init, runtime.ReasonSession))
		corr.CloseSession(initID)
		if err != nil {
			return fmt.Errorf("init process failed: %w", err)
		}
	}

	i.mu.Lock()
	i.init = state
	i.initThread = initThread
	i.mu.Unlock()

	if i.mode == Single {
		s, err := i.open(i.newID())
		if err != nil {
			return err
		}
		i.mu.Lock()
		i.single = s
		i.mu.Unlock()
		go i.run(s)
	}
	i.logger.Info("Interpreter started", "mode", string(i.mode))
	return nil
}

// Run executes a Single mode program to completion and returns the final
// snapshot of its session. Cancelling ctx kills the session; the snapshot
// is still returned, together with the context error.
func (i *Interpreter) Run(ctx context.Context) (*domain.Snapshot, error) {
	if i.mode != Single {
		return nil, fmt.Errorf("run needs %s mode, interpreter is in %s mode", Single, i.mode)
	}
	if err := i.Start(ctx); err != nil {
		return nil, err
	}
	i.mu.Lock()
	s := i.single
	i.mu.Unlock()

	var err error
	select {
	case <-s.done:
	case <-ctx.Done():
		err = ctx.Err()
		s.thread.Kill(domain.NewFaultf(KillFault, "%v", err))
		<-s.done
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	return s.final.Clone(), err
}

// Shutdown stops accepting messages, wakes every parked wait with
// runtime.ErrExiting and waits for the sessions to end or ctx to expire.
func (i *Interpreter) Shutdown(ctx context.Context) error {
	i.mu.Lock()
	i.closed = true
	i.mu.Unlock()

	i.env.Exit()
	i.cancel()
	i.abandon(ctx, i.env.Correlator().DrainShared(), "interpreter shut down")

	done := make(chan struct{})
	go func() {
		i.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		i.logger.Info("Interpreter stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("shutdown: %w", ctx.Err())
	}
}

func (i *Interpreter) isClosed() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.closed
}
