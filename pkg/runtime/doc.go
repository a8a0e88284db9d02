/*
Package runtime provides the execution context processes run against.

A Thread carries the session state, the scope stack used for fault handler and
compensation lookup, and the kill flag. Blocking constructs park on a Future and
wake through Await, which also observes kills and interpreter shutdown, so that
registering interest and delivering a message are the two sides of one
rendezvous. The Correlator matches inbound messages to those futures; Links and
LockRegistry provide the process-wide rendezvous and mutual exclusion
primitives.
*/
package runtime
