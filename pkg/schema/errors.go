package schema

import (
	"fmt"
	"strings"

	"github.com/aretw0/weft/pkg/domain"
)

func mismatch(path, format string, args ...any) *domain.TypeCheckingError {
	return &domain.TypeCheckingError{Path: path, Reason: fmt.Sprintf(format, args...)}
}

// AggregateError represents multiple type check failures found in one value.
type AggregateError struct {
	Errors []error
}

func (e *AggregateError) Error() string {
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	parts := make([]string, len(e.Errors))
	for i, err := range e.Errors {
		parts[i] = err.Error()
	}
	return fmt.Sprintf("%d type errors: %s", len(e.Errors), strings.Join(parts, "; "))
}

func (e *AggregateError) Unwrap() []error { return e.Errors }

// CheckErrors returns the individual failures behind err: the errors of an
// AggregateError, err itself otherwise, nil for a nil err.
func CheckErrors(err error) []error {
	if err == nil {
		return nil
	}
	if aggr, ok := err.(*AggregateError); ok {
		return aggr.Errors
	}
	return []error{err}
}

func join(errs []error) error {
	switch len(errs) {
	case 0:
		return nil
	case 1:
		return errs[0]
	}
	return &AggregateError{Errors: errs}
}
