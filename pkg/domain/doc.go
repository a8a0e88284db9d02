/*
Package domain contains the data model shared by every layer of the interpreter.

It is kept free of I/O and of execution concerns, following Hexagonal Architecture
principles: processes live in pkg/process, the execution context in pkg/runtime and
transports in pkg/adapters.

# Key Entities

  - Value / ValueVector: the state tree. A Value holds an optional scalar and named
    children, every child name mapping to an ordered, never sparse vector.
  - Message: the immutable envelope exchanged with other services.
  - Fault: a named, recoverable error carrying a Value payload.
  - Operation / Type: operation descriptors and the payload type-check contract.
  - Snapshot: the persisted view of a session.
  - LifecycleHooks: best-effort observability callbacks.
*/
package domain
