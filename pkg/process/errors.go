package process

import (
	"context"
	"errors"

	"github.com/aretw0/weft/pkg/domain"
	"github.com/aretw0/weft/pkg/runtime"
)

// asFault turns data-layer errors (arithmetic, alias loops, bad indexes) into
// RuntimeException faults so that scopes can intercept them. Faults, exits and
// context errors pass through unchanged.
func asFault(err error) error {
	if err == nil || runtime.IsFault(err) || isTermination(err) {
		return err
	}
	f := domain.NewFault(domain.FaultRuntime, domain.NewString(err.Error()))
	f.Cause = err
	return f
}

// isTermination reports errors that end a thread rather than fault it.
func isTermination(err error) bool {
	return errors.Is(err, runtime.ErrExiting) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

// exitFault is the kill reason used for siblings of a branch that exited.
var exitFault = domain.NewFaultf("Exiting", "sibling branch exited")

// killOnDone derives a context cancelled when t is killed. Outbound waits use
// it so that a kill reaches them like it reaches parked input processes.
func killOnDone(ctx context.Context, t *runtime.Thread) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	signal := t.KillSignal()
	go func() {
		select {
		case <-signal:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}
