package domain

import (
	"errors"
	"fmt"
)

// Well-known fault names raised by the runtime itself.
const (
	FaultTypeMismatch     = "TypeMismatch"
	FaultIOException      = "IOException"
	FaultCorrelationError = "CorrelationError"
	FaultTimeout          = "Timeout"
	FaultRuntime          = "RuntimeException"
)

// DefaultHandler is the handler name consulted when a scope has no handler for
// the exact fault name.
const DefaultHandler = "default"

// Fault is a named, recoverable error carrying a payload.
// Scopes intercept faults by name; anything else that is not a Fault flows
// through scopes untouched.
type Fault struct {
	Name    string
	Payload *Value
	Cause   error
}

// NewFault creates a fault. A nil payload becomes an undefined value.
func NewFault(name string, payload *Value) *Fault {
	if payload == nil {
		payload = NewValue()
	}
	return &Fault{Name: name, Payload: payload}
}

// NewFaultf creates a fault whose payload is a formatted message.
func NewFaultf(name, format string, args ...any) *Fault {
	return NewFault(name, NewString(fmt.Sprintf(format, args...)))
}

// IOFault wraps a transport error into an IOException fault.
func IOFault(err error) *Fault {
	f := NewFault(FaultIOException, NewString(err.Error()))
	f.Cause = err
	return f
}

func (f *Fault) Error() string {
	if f.Payload != nil && f.Payload.IsDefined() {
		return fmt.Sprintf("fault %s: %s", f.Name, f.Payload.StrValue())
	}
	return "fault " + f.Name
}

func (f *Fault) Unwrap() error {
	return f.Cause
}

// Message returns the payload rendered as text.
func (f *Fault) Message() string {
	if f.Payload == nil {
		return ""
	}
	return f.Payload.StrValue()
}

// AsFault extracts the first Fault in err's chain.
func AsFault(err error) (*Fault, bool) {
	var f *Fault
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}

// ToFault returns err as a fault, wrapping non-fault errors as IOException.
func ToFault(err error) *Fault {
	if f, ok := AsFault(err); ok {
		return f
	}
	return IOFault(err)
}
