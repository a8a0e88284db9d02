package domain

import "fmt"

// Type validates payloads crossing an operation boundary.
// Implementations return a *TypeCheckingError when the value does not conform.
type Type interface {
	Check(v *Value) error
	String() string
}

// TypeCheckingError describes why a value failed a type check.
type TypeCheckingError struct {
	Path   string
	Reason string
}

func (e *TypeCheckingError) Error() string {
	if e.Path == "" {
		return "type mismatch: " + e.Reason
	}
	return fmt.Sprintf("type mismatch at %s: %s", e.Path, e.Reason)
}

// CheckType runs t against v. A nil type accepts everything.
func CheckType(t Type, v *Value) error {
	if t == nil {
		return nil
	}
	return t.Check(v)
}
