/*
Package session persists session snapshots on behalf of the interpreter.

The Manager serializes access to each session's snapshot so that the
read-modify-write performed when a session ends never races a concurrent
save, and optionally extends that exclusion to other replicas through a
ports.DistributedLocker.
*/
package session
