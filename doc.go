/*
Package weft is an interpreter for communicating processes: programs built from
sequence, parallel composition, choice over inputs, scopes with fault handlers
and compensation, and one-way or request-response operations, in the style of
service-oriented process calculi.

It separates the program (a tree of pkg/process constructs) from the runtime
(pkg/runtime threads, state trees and correlation tables) and from the outside
world (ports.Channel transports and ports.StateStore persistence). The
Interpreter wires them together: inbound messages either start a new session
or are correlated to the session waiting for them, and every session ends with
a snapshot of its state.

# Concept

A session is one run of the main process, with its own state tree. A
request-response input parks the session until a matching message arrives,
runs its body and answers on the channel the request came from. Faults are
named values that bubble through scopes until a handler catches them; an
unhandled fault in a request-response body becomes the reply.

# Usage

Build a program, create an interpreter and expose it through a transport:

	sum := domain.NewRequestResponse("sum", nil, schema.Int(), nil)
	program := weft.Program{
		Interface: []domain.Operation{sum},
		Main: &process.RequestResponse{
			Op:    sum,
			Input: runtime.ParsePath("req"),
			Output: &process.Binary{
				Op:       process.OpSum,
				Operands: []runtime.Expression{runtime.ParsePath("req.a"), runtime.ParsePath("req.b")},
			},
		},
	}

	itp, err := weft.New(program, weft.WithStateStore(memory.NewStore()))
	if err != nil {
		log.Fatal(err)
	}
	if err := itp.Start(ctx); err != nil {
		log.Fatal(err)
	}
	defer itp.Shutdown(ctx)

	http.ListenAndServe(":8080", httpadapter.NewHandler(itp))
*/
package weft
