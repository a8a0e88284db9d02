package process

import (
	"context"
	"errors"

	"github.com/aretw0/weft/pkg/runtime"
)

// Synchronized runs Body while holding the interpreter-wide lock named ID.
// Waiting for the lock ends early only if the thread is killed. The lock is
// re-entrant: a thread already inside ID, directly or through the thread it
// was forked from, runs Body without waiting.
type Synchronized struct {
	ID   string
	Body runtime.Process
}

func (s *Synchronized) Run(ctx context.Context, t *runtime.Thread) error {
	if t.IsKilled() {
		return nil
	}
	if t.HoldsLock(s.ID) {
		return s.Body.Run(ctx, t)
	}
	waitCtx, cancel := killOnDone(ctx, t)
	defer cancel()
	var entered bool
	err := t.Env().Locks().WithLock(waitCtx, s.ID, func(context.Context) error {
		entered = true
		t.EnterLock(s.ID)
		defer t.ExitLock(s.ID)
		return s.Body.Run(ctx, t)
	})
	if !entered && errors.Is(err, context.Canceled) && t.IsKilled() && ctx.Err() == nil {
		return nil
	}
	return err
}

func (s *Synchronized) Copy(reason runtime.TransformationReason) runtime.Process {
	return &Synchronized{ID: s.ID, Body: s.Body.Copy(reason)}
}

func (s *Synchronized) IsKillable() bool { return true }

// LinkIn waits for a LinkOut on the same internal link.
type LinkIn struct {
	Link string
}

func (l *LinkIn) Run(ctx context.Context, t *runtime.Thread) error {
	if t.IsKilled() {
		return nil
	}
	return ignoreKilled(t.Env().Links().In(ctx, t, l.Link))
}

func (l *LinkIn) Copy(runtime.TransformationReason) runtime.Process { return &LinkIn{Link: l.Link} }
func (l *LinkIn) IsKillable() bool                                  { return true }

// LinkOut signals the internal link, waking one LinkIn.
type LinkOut struct {
	Link string
}

func (l *LinkOut) Run(ctx context.Context, t *runtime.Thread) error {
	if t.IsKilled() {
		return nil
	}
	return ignoreKilled(t.Env().Links().Out(ctx, t, l.Link))
}

func (l *LinkOut) Copy(runtime.TransformationReason) runtime.Process { return &LinkOut{Link: l.Link} }
func (l *LinkOut) IsKillable() bool                                  { return true }

func ignoreKilled(err error) error {
	if errors.Is(err, runtime.ErrKilled) {
		return nil
	}
	return err
}
