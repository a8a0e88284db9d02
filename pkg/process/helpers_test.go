package process_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/weft/pkg/domain"
	"github.com/aretw0/weft/pkg/ports"
	"github.com/aretw0/weft/pkg/process"
	"github.com/aretw0/weft/pkg/runtime"
	"github.com/stretchr/testify/require"
)

const session = "s-1"

// newThread returns a thread on a fresh environment whose session is open on
// the correlator.
func newThread(opts ...runtime.EnvOption) *runtime.Thread {
	env := runtime.NewEnv(opts...)
	env.Correlator().OpenSession(session)
	return runtime.NewThread(env, session, nil)
}

// start runs p on th in the background.
func start(ctx context.Context, p runtime.Process, th *runtime.Thread) <-chan error {
	done := make(chan error, 1)
	go func() {
		done <- p.Run(ctx, th)
	}()
	return done
}

func wait(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("process did not finish")
		return nil
	}
}

func waitFor(t *testing.T, th *runtime.Thread, op string) {
	t.Helper()
	require.Eventually(t, func() bool {
		return th.Env().Correlator().Waiting(op) > 0
	}, time.Second, time.Millisecond, "nobody registered for %s", op)
}

// deliver sends a request for op to the session of th and returns the channel
// the reply will be written to.
func deliver(t *testing.T, th *runtime.Thread, op string, payload *domain.Value) *fakeChannel {
	t.Helper()
	ch := &fakeChannel{}
	msg := domain.NewRequest(op, "/", payload).WithSessionID(th.SessionID())
	require.NoError(t, th.Env().Correlator().Deliver(runtime.SessionMessage{Message: msg, Channel: ch}))
	return ch
}

func get(t *testing.T, th *runtime.Thread, path string) *domain.Value {
	t.Helper()
	v, err := runtime.ParsePath(path).Value(context.Background(), th)
	require.NoError(t, err)
	return v
}

func has(t *testing.T, th *runtime.Thread, path string) bool {
	t.Helper()
	v, ok, err := runtime.ParsePath(path).Lookup(context.Background(), th)
	require.NoError(t, err)
	return ok && (v.IsDefined() || len(v.ChildNames()) > 0)
}

func path(s string) *runtime.VariablePath { return runtime.ParsePath(s) }

func set(p string, x any) *process.Assign {
	return &process.Assign{Path: path(p), Expr: process.Val(x)}
}

// fn is a process running an arbitrary function.
type fn struct {
	killable bool
	run      func(ctx context.Context, th *runtime.Thread) error
}

func (f *fn) Run(ctx context.Context, th *runtime.Thread) error { return f.run(ctx, th) }
func (f *fn) Copy(runtime.TransformationReason) runtime.Process { return f }
func (f *fn) IsKillable() bool                                  { return f.killable }

func killer(name string) *fn {
	return &fn{killable: true, run: func(_ context.Context, th *runtime.Thread) error {
		th.Kill(domain.NewFault(name, nil))
		return nil
	}}
}

// kindType accepts values whose scalar has the given kind.
type kindType struct{ kind domain.Kind }

func (k kindType) Check(v *domain.Value) error {
	if v.Kind() != k.kind {
		return &domain.TypeCheckingError{Reason: "expected " + k.kind.String() + ", got " + v.Kind().String()}
	}
	return nil
}

func (k kindType) String() string { return k.kind.String() }

// fakeChannel records what is sent on it. Replies and acks are produced by
// the optional callbacks; without one, receiving blocks until ctx is done.
type fakeChannel struct {
	mu       sync.Mutex
	sent     []*domain.Message
	released int
	sendErr  error
	respond  func(req *domain.Message) *domain.Message
	ack      func(req *domain.Message) *domain.Message
}

func (c *fakeChannel) Send(_ context.Context, msg *domain.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return c.sendErr
	}
	c.sent = append(c.sent, msg)
	return nil
}

func (c *fakeChannel) RecvResponseFor(ctx context.Context, req *domain.Message) (*domain.Message, error) {
	return c.recv(ctx, req, c.respond)
}

func (c *fakeChannel) RecvAckFor(ctx context.Context, req *domain.Message) (*domain.Message, error) {
	return c.recv(ctx, req, c.ack)
}

func (c *fakeChannel) recv(ctx context.Context, req *domain.Message, produce func(*domain.Message) *domain.Message) (*domain.Message, error) {
	if produce != nil {
		if msg := produce(req); msg != nil {
			return msg, nil
		}
	}
	<-ctx.Done()
	return nil, ctx.Err()
}

func (c *fakeChannel) Release() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.released++
	if c.released > 1 {
		return errors.New("released twice")
	}
	return nil
}

func (c *fakeChannel) ParentInputPort() string  { return "" }
func (c *fakeChannel) ParentOutputPort() string { return "" }

func (c *fakeChannel) Sent() []*domain.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*domain.Message(nil), c.sent...)
}

func (c *fakeChannel) Released() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.released
}

type fakePort struct {
	name string
	ch   *fakeChannel
	err  error
}

func (p *fakePort) Name() string         { return p.name }
func (p *fakePort) ResourcePath() string { return "/" + p.name }

func (p *fakePort) Channel(context.Context) (ports.Channel, error) {
	if p.err != nil {
		return nil, p.err
	}
	return p.ch, nil
}
