package weft

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/aretw0/weft/pkg/domain"
	"github.com/aretw0/weft/pkg/process"
	"github.com/aretw0/weft/pkg/runtime"
)

// liveSession is a session whose main process is still running.
type liveSession struct {
	id      string
	thread  *runtime.Thread
	started time.Time
	done    chan struct{}
	final   *domain.Snapshot
}

// open registers a new session whose mailbox holds initial.
func (i *Interpreter) open(id string, initial ...runtime.SessionMessage) (*liveSession, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.closed {
		return nil, domain.ErrInterpreterClosed
	}
	if i.init == nil {
		return nil, ErrNotStarted
	}
	s := &liveSession{
		id:      id,
		thread:  runtime.NewThread(i.env, id, i.init.Clone()),
		started: time.Now(),
		done:    make(chan struct{}),
	}
	s.thread.InheritScopes(i.initThread)
	i.live[id] = s
	i.wg.Add(1)
	i.env.Correlator().OpenSession(id, initial...)
	return s, nil
}

// run executes the main process for s and records its outcome.
func (i *Interpreter) run(s *liveSession) {
	defer i.wg.Done()
	ctx := i.ctx
	logger := i.logger.With("session_id", s.id)

	if i.seq != nil {
		select {
		case i.seq <- struct{}{}:
			defer func() { <-i.seq }()
		case <-ctx.Done():
			i.finish(ctx, s, domain.StatusExited, "")
			return
		}
	}

	i.env.EmitSession(ctx, s.id, domain.EventSessionStart, domain.StatusRunning, "")
	if i.sessions != nil {
		snapshot := domain.NewSnapshot(s.id, domain.StatusRunning, nil)
		snapshot.StartedAt = s.started
		if err := i.sessions.Begin(ctx, snapshot); err != nil {
			logger.Warn("Failed to record session start", "err", err)
		}
	}

	err := process.RunScoped(ctx, s.thread, rootScope, runtime.CopyProcess(i.program.Main, runtime.ReasonSession))
	status, fault := outcome(err, s.thread)
	switch status {
	case domain.StatusFaulted:
		logger.Error("Session ended with an unhandled fault", "fault", fault, "err", err)
	case domain.StatusExited:
		logger.Debug("Session exited", "fault", fault)
	default:
		logger.Debug("Session completed")
	}
	i.finish(ctx, s, status, fault)
}

// finish answers the messages the session never consumed, persists the final
// snapshot and wakes Wait callers.
func (i *Interpreter) finish(ctx context.Context, s *liveSession, status domain.SessionStatus, fault string) {
	corr := i.env.Correlator()
	reason := "session " + s.id + " ended"
	i.abandon(ctx, corr.CloseSession(s.id), reason)
	i.mu.Lock()
	single := i.single == s
	i.mu.Unlock()
	if single {
		i.abandon(ctx, corr.DrainShared(), reason)
	}

	snapshot := domain.NewSnapshot(s.id, status, s.thread.State().Root())
	snapshot.Fault = fault
	snapshot.StartedAt = s.started
	if i.sessions != nil {
		if err := i.sessions.Finish(context.WithoutCancel(ctx), snapshot.Clone()); err != nil {
			i.logger.Warn("Failed to persist session snapshot", "session_id", s.id, "err", err)
		}
	}

	i.mu.Lock()
	delete(i.live, s.id)
	s.final = snapshot
	i.mu.Unlock()
	close(s.done)

	i.env.EmitSession(ctx, s.id, domain.EventSessionEnd, status, fault)
}

// outcome classifies how the main process of a session returned.
func outcome(err error, t *runtime.Thread) (domain.SessionStatus, string) {
	if err == nil {
		if killer := t.KillerFault(); killer != nil {
			return domain.StatusExited, killer.Name
		}
		return domain.StatusCompleted, ""
	}
	if errors.Is(err, runtime.ErrExiting) || errors.Is(err, context.Canceled) {
		return domain.StatusExited, ""
	}
	if f, ok := domain.AsFault(err); ok {
		return domain.StatusFaulted, f.Name
	}
	return domain.StatusFaulted, err.Error()
}

// Kill terminates a live session with fault. Scopes on the way out run
// their termination handling; the session ends as exited.
func (i *Interpreter) Kill(sessionID string, fault *domain.Fault) error {
	i.mu.Lock()
	s, ok := i.live[sessionID]
	i.mu.Unlock()
	if !ok {
		return fmt.Errorf("kill %s: %w", sessionID, domain.ErrSessionNotFound)
	}
	if fault == nil {
		fault = domain.NewFault(KillFault, nil)
	}
	s.thread.Kill(fault)
	return nil
}

// Wait blocks until the session ends and returns its final snapshot. Ended
// sessions are looked up in the state store.
func (i *Interpreter) Wait(ctx context.Context, sessionID string) (*domain.Snapshot, error) {
	i.mu.Lock()
	s, ok := i.live[sessionID]
	i.mu.Unlock()
	if !ok {
		return i.stored(ctx, sessionID)
	}
	select {
	case <-s.done:
		return s.final.Clone(), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Session returns the current snapshot of a session: a running view of a
// live session or the stored outcome of an ended one.
func (i *Interpreter) Session(ctx context.Context, sessionID string) (*domain.Snapshot, error) {
	i.mu.Lock()
	s, ok := i.live[sessionID]
	i.mu.Unlock()
	if !ok {
		return i.stored(ctx, sessionID)
	}
	snapshot := domain.NewSnapshot(s.id, domain.StatusRunning, s.thread.State().Root())
	snapshot.StartedAt = s.started
	return snapshot, nil
}

// Sessions lists live and stored session ids, sorted.
func (i *Interpreter) Sessions(ctx context.Context) ([]string, error) {
	seen := make(map[string]bool)
	i.mu.Lock()
	for id := range i.live {
		seen[id] = true
	}
	i.mu.Unlock()

	if i.sessions != nil {
		stored, err := i.sessions.List(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list stored sessions: %w", err)
		}
		for _, id := range stored {
			seen[id] = true
		}
	}

	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (i *Interpreter) stored(ctx context.Context, sessionID string) (*domain.Snapshot, error) {
	if i.sessions == nil {
		return nil, domain.ErrSessionNotFound
	}
	return i.sessions.Load(ctx, sessionID)
}
