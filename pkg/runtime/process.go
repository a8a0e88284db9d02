package runtime

import (
	"context"

	"github.com/aretw0/weft/pkg/domain"
)

// TransformationReason tells Copy why a process tree is being duplicated.
type TransformationReason string

const (
	// ReasonReuse duplicates a definition so that it can run again.
	ReasonReuse TransformationReason = "reuse"
	// ReasonInstall specializes a handler template when it is installed in a scope.
	ReasonInstall TransformationReason = "install"
	// ReasonSpawn gives every spawned fork its own copy of the body.
	ReasonSpawn TransformationReason = "spawn"
	// ReasonSession copies the program body for a new session.
	ReasonSession TransformationReason = "session"
)

// Process is a runnable node of a program.
//
// Run returns nil on normal completion, a *domain.Fault for recoverable faults,
// or an error wrapping ErrExiting when the session must end. Copy returns an
// independent tree that can run concurrently with the original. IsKillable
// reports whether the node may be skipped once the thread has been killed.
type Process interface {
	Run(ctx context.Context, t *Thread) error
	Copy(reason TransformationReason) Process
	IsKillable() bool
}

// Expression produces a value. Several processes (assignments, increments) are
// expressions too so that their effect can be nested.
type Expression interface {
	Evaluate(ctx context.Context, t *Thread) (*domain.Value, error)
	CloneExpression(reason TransformationReason) Expression
}

// InputGuard is implemented by processes that start by waiting for a message.
// The interpreter uses it to find the operations that start a new session.
type InputGuard interface {
	StarterOperations() []string
}

// CopyProcess copies p, tolerating nil.
func CopyProcess(p Process, reason TransformationReason) Process {
	if p == nil {
		return nil
	}
	return p.Copy(reason)
}

// CloneExpression clones e, tolerating nil.
func CloneExpression(e Expression, reason TransformationReason) Expression {
	if e == nil {
		return nil
	}
	return e.CloneExpression(reason)
}

// Evaluate evaluates e, returning an undefined value for a nil expression.
func Evaluate(ctx context.Context, t *Thread, e Expression) (*domain.Value, error) {
	if e == nil {
		return domain.NewValue(), nil
	}
	return e.Evaluate(ctx, t)
}
