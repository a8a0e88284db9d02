/*
Package ports defines the driven ports (interfaces) of the interpreter.

These interfaces decouple process execution from transports and persistence, so
the same program runs over in-memory channels in tests, websockets or HTTP in
production, and stores snapshots in memory, Redis or bbolt.

# Key Interfaces

  - Channel: a transport endpoint exchanging request, reply and ack messages.
  - OutputPort: opens channels towards a remote service.
  - Receiver: accepts inbound messages (implemented by the interpreter).
  - StateStore: persists session snapshots.
  - DistributedLocker: cross-replica locking for synchronized regions.
*/
package ports
