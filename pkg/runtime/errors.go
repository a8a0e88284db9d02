package runtime

import (
	"errors"

	"github.com/aretw0/weft/pkg/domain"
)

// ErrExiting signals the non-catchable exit path: the exit process, a session
// torn down by Kill, or an interpreter shutting down. Scopes never intercept it.
var ErrExiting = errors.New("exiting")

// ErrKilled is returned by Await when the waiting thread was killed. Processes
// turn it into a normal return: the kill itself is handled by the enclosing
// scope or parallel branch.
var ErrKilled = errors.New("thread killed")

// IsFault reports whether err carries a recoverable fault.
func IsFault(err error) bool {
	_, ok := domain.AsFault(err)
	return ok
}
