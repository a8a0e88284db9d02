package domain

import "errors"

// ErrSessionNotFound is returned when a session ID cannot be found in the store
// or among the live sessions of an interpreter.
var ErrSessionNotFound = errors.New("session not found")

// ErrCorrelation is returned when an inbound message matches neither a pending
// request id nor a correlation token.
var ErrCorrelation = errors.New("message could not be correlated")

// ErrAliasCycle is returned when resolving a path follows more alias hops than
// the state tree can contain, which only happens when aliases form a loop.
var ErrAliasCycle = errors.New("alias cycle")

// ErrChannelClosed is returned by channels that were released or whose transport
// went away.
var ErrChannelClosed = errors.New("channel closed")

// ErrUnknownOperation is returned when a message names an operation the program
// does not expose.
var ErrUnknownOperation = errors.New("unknown operation")

// ErrInterpreterClosed is returned by an interpreter after Shutdown.
var ErrInterpreterClosed = errors.New("interpreter closed")

// ErrArithmetic is returned by value arithmetic on incompatible operands.
var ErrArithmetic = errors.New("arithmetic error")
