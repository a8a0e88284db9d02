package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/weft/internal/logging"
	"github.com/aretw0/weft/pkg/domain"
	"github.com/aretw0/weft/pkg/ports"
)

// DefaultResponseTimeout bounds solicit-response waits when neither the process
// nor the environment sets a timeout.
const DefaultResponseTimeout = 10 * time.Second

// Env is the interpreter-wide environment shared by every thread: correlation
// tables, named locks, internal links, output ports and the global state.
type Env struct {
	logger          *slog.Logger
	hooks           domain.LifecycleHooks
	correlator      *Correlator
	locks           *LockRegistry
	links           *Links
	global          *State
	responseTimeout time.Duration
	outputs         map[string]ports.OutputPort

	exitOnce sync.Once
	exiting  chan struct{}
}

// EnvOption configures an Env.
type EnvOption func(*Env)

// WithLogger sets the logger used for local diagnostics.
func WithLogger(logger *slog.Logger) EnvOption {
	return func(e *Env) {
		e.logger = logger
	}
}

// WithHooks sets the lifecycle hooks.
func WithHooks(hooks domain.LifecycleHooks) EnvOption {
	return func(e *Env) {
		e.hooks = hooks
	}
}

// WithLocks replaces the lock registry, e.g. to add a distributed locker.
func WithLocks(locks *LockRegistry) EnvOption {
	return func(e *Env) {
		e.locks = locks
	}
}

// WithResponseTimeout sets the default solicit-response timeout.
func WithResponseTimeout(d time.Duration) EnvOption {
	return func(e *Env) {
		e.responseTimeout = d
	}
}

// WithOutputPort registers an output port.
func WithOutputPort(port ports.OutputPort) EnvOption {
	return func(e *Env) {
		e.outputs[port.Name()] = port
	}
}

// NewEnv creates an environment.
func NewEnv(opts ...EnvOption) *Env {
	e := &Env{
		logger:          logging.NewNop(),
		correlator:      NewCorrelator(),
		locks:           NewLockRegistry(),
		links:           NewLinks(),
		global:          NewState(nil),
		responseTimeout: DefaultResponseTimeout,
		outputs:         make(map[string]ports.OutputPort),
		exiting:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Env) Logger() *slog.Logger           { return e.logger }
func (e *Env) Correlator() *Correlator        { return e.correlator }
func (e *Env) Locks() *LockRegistry           { return e.locks }
func (e *Env) Links() *Links                  { return e.links }
func (e *Env) Global() *State                 { return e.global }
func (e *Env) ResponseTimeout() time.Duration { return e.responseTimeout }

// OutputPort returns the output port registered under name. Ports are fixed
// once the environment is built.
func (e *Env) OutputPort(name string) (ports.OutputPort, error) {
	p, ok := e.outputs[name]
	if !ok {
		return nil, fmt.Errorf("output port %q is not defined", name)
	}
	return p, nil
}

// Exit starts the interpreter shutdown: every parked wait returns ErrExiting.
func (e *Env) Exit() {
	e.exitOnce.Do(func() { close(e.exiting) })
}

// Exiting is closed once Exit has been called.
func (e *Env) Exiting() <-chan struct{} {
	return e.exiting
}

// emit runs a hook and swallows its panics: observability never alters the
// course of a process.
func emit[E any](e *Env, ctx context.Context, hook func(context.Context, *E), event *E) {
	if hook == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			e.logger.Warn("lifecycle hook panicked", "panic", r)
		}
	}()
	hook(ctx, event)
}

func (e *Env) base(t *Thread, typ domain.EventType) domain.EventBase {
	b := domain.EventBase{Timestamp: time.Now(), Type: typ}
	if t != nil {
		b.SessionID = t.SessionID()
	}
	return b
}

// EmitSession fires OnSessionStart or OnSessionEnd.
func (e *Env) EmitSession(ctx context.Context, sessionID string, typ domain.EventType, status domain.SessionStatus, fault string) {
	ev := &domain.SessionEvent{
		EventBase: domain.EventBase{Timestamp: time.Now(), Type: typ, SessionID: sessionID},
		Status:    status,
		Fault:     fault,
	}
	if typ == domain.EventSessionStart {
		emit(e, ctx, e.hooks.OnSessionStart, ev)
		return
	}
	emit(e, ctx, e.hooks.OnSessionEnd, ev)
}

// EmitOperation fires the operation hook matching typ.
func (e *Env) EmitOperation(ctx context.Context, t *Thread, typ domain.EventType, msg *domain.Message) {
	ev := &domain.OperationEvent{
		EventBase: e.base(t, typ),
		Operation: msg.Operation(),
		MessageID: msg.ID(),
	}
	if msg.IsFault() {
		ev.Fault = msg.Fault().Name
	}
	switch typ {
	case domain.EventOperationStarted:
		emit(e, ctx, e.hooks.OnOperationStarted, ev)
	case domain.EventOperationEnded:
		emit(e, ctx, e.hooks.OnOperationEnded, ev)
	case domain.EventOperationCall:
		emit(e, ctx, e.hooks.OnOperationCall, ev)
	case domain.EventOperationReply:
		emit(e, ctx, e.hooks.OnOperationReply, ev)
	}
}

// EmitFault fires the fault hook matching typ.
func (e *Env) EmitFault(ctx context.Context, t *Thread, typ domain.EventType, scope, fault string) {
	ev := &domain.FaultEvent{EventBase: e.base(t, typ), Scope: scope, Fault: fault}
	switch typ {
	case domain.EventHandlerStart:
		emit(e, ctx, e.hooks.OnFaultHandlerStart, ev)
	case domain.EventHandlerEnd:
		emit(e, ctx, e.hooks.OnFaultHandlerEnd, ev)
	case domain.EventFault:
		emit(e, ctx, e.hooks.OnFault, ev)
	}
}
