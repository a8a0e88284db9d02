/*
Package process implements the constructs a program is built from.

Every construct satisfies runtime.Process. Control flow (Sequence, Parallel,
Choice, ProvideUntil, While, If, Scope, Spawn, Synchronized), data mutation
(Assign, DeepCopy, MakePointer, Compound, Increment, Undef) and communication
(OneWay, RequestResponse, Notification, SolicitResponse) all run against the
runtime.Thread they are given and hold no per-run state, so a single tree can
be executed by many sessions after a Copy.
*/
package process
