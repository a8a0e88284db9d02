package runtime

import (
	"context"
	"sync"
)

type futureState uint8

const (
	futurePending futureState = iota
	futureCompleted
	futureCancelled
)

// Future is a single-assignment value shared by the party that registers
// interest (a waiting process) and the party that produces it (the correlator
// or a link). Completion and cancellation race safely: exactly one of them wins.
type Future[T any] struct {
	mu       sync.Mutex
	state    futureState
	value    T
	done     chan struct{}
	onCancel func()
}

// NewFuture returns a pending future.
func NewFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// Complete sets the value. It returns false if the future was already completed
// or cancelled, in which case the value was not taken.
func (f *Future[T]) Complete(v T) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != futurePending {
		return false
	}
	f.state, f.value = futureCompleted, v
	close(f.done)
	return true
}

// Cancel withdraws the future. It returns false if a value already arrived.
// The cancel callback runs outside the future's lock.
func (f *Future[T]) Cancel() bool {
	f.mu.Lock()
	if f.state != futurePending {
		f.mu.Unlock()
		return false
	}
	f.state = futureCancelled
	close(f.done)
	cb := f.onCancel
	f.mu.Unlock()
	if cb != nil {
		cb()
	}
	return true
}

// OnCancel registers the callback run by Cancel.
func (f *Future[T]) OnCancel(fn func()) {
	f.mu.Lock()
	f.onCancel = fn
	f.mu.Unlock()
}

// Done is closed once the future is completed or cancelled.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Value returns the value and whether the future completed.
func (f *Future[T]) Value() (T, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.value, f.state == futureCompleted
}

// Await parks t until f completes. The wait is interrupted by a kill of t
// (ErrKilled), an interpreter shutdown (ErrExiting) or ctx. When the
// interruption races with a completion the value wins, so a message taken off
// the correlator is never lost.
func Await[T any](ctx context.Context, t *Thread, f *Future[T]) (T, error) {
	var zero T
	var cause error
	select {
	case <-f.Done():
	case <-t.KillSignal():
		cause = ErrKilled
	case <-t.Env().Exiting():
		cause = ErrExiting
	case <-ctx.Done():
		cause = ctx.Err()
	}
	if cause != nil && f.Cancel() {
		return zero, cause
	}
	if v, ok := f.Value(); ok {
		return v, nil
	}
	return zero, ErrKilled
}
