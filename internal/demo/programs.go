// Package demo holds the sample programs shipped with the weft binary and the
// scripted conversations the demo command plays against them.
package demo

import (
	"github.com/aretw0/weft"
	"github.com/aretw0/weft/pkg/domain"
	"github.com/aretw0/weft/pkg/process"
	"github.com/aretw0/weft/pkg/registry"
	"github.com/aretw0/weft/pkg/runtime"
	"github.com/aretw0/weft/pkg/schema"
)

// Capacity is the number of seats the booking program starts with.
const Capacity = 5

// FaultSoldOut is raised by the booking program when a request exceeds the
// free seats.
const FaultSoldOut = "SoldOut"

var (
	SumOp = domain.NewRequestResponse("sum", schema.Record(schema.Void(), schema.Fields{
		"a": schema.Required(schema.Int()),
		"b": schema.Required(schema.Int()),
	}), schema.Int(), nil)

	StartOp = domain.NewRequestResponse("start", nil, nil, nil)
	AddOp   = domain.NewOneWay("add", schema.Int())
	GetOp   = domain.NewRequestResponse("get", nil, schema.Int(), nil)

	BookOp = domain.NewRequestResponse("book", schema.Record(schema.Void(), schema.Fields{
		"seats": schema.Required(schema.Int()),
	}), schema.Int(), map[string]domain.Type{FaultSoldOut: schema.Int()})
)

func path(s string) *runtime.VariablePath { return runtime.ParsePath(s) }

// Calculator answers sum(a, b) in a session of its own.
func Calculator() weft.Program {
	return weft.Program{
		Name:      "calculator",
		Interface: []domain.Operation{SumOp},
		Main: &process.RequestResponse{
			Op:    SumOp,
			Input: path("req"),
			Output: &process.Binary{
				Op:       process.OpSum,
				Operands: []runtime.Expression{path("req.a"), path("req.b")},
			},
		},
	}
}

// Counter opens a session on start, adds every number sent to it and
// answers the total on get, which closes the session.
func Counter() weft.Program {
	return weft.Program{
		Name:      "counter",
		Interface: []domain.Operation{StartOp, AddOp, GetOp},
		Main: process.Seq(
			&process.RequestResponse{Op: StartOp, Body: &process.Assign{Path: path("count"), Expr: process.Val(0)}},
			&process.ProvideUntil{
				Provide: []process.Branch{{
					Input: &process.OneWay{Op: AddOp, Input: path("n")},
					Body:  &process.Compound{Op: process.OpSum, Path: path("count"), Expr: path("n")},
				}},
				Until: []process.Branch{{
					Input: &process.RequestResponse{Op: GetOp, Output: path("count")},
				}},
			},
		),
	}
}

// Booking takes seats from a pool shared by every session. A reservation
// that overdraws the pool is compensated and answered with SoldOut.
func Booking() weft.Program {
	seats := path("seats").Global()
	return weft.Program{
		Name:      "booking",
		Interface: []domain.Operation{BookOp},
		Init:      &process.Assign{Path: seats, Expr: process.Val(Capacity)},
		Main: &process.RequestResponse{
			Op:     BookOp,
			Input:  path("req"),
			Output: path("held"),
			Body: &process.Scope{ID: "booking", Body: process.Seq(
				&process.Install{Handlers: map[string]runtime.Process{
					FaultSoldOut: process.Seq(
						&process.Compensate{ID: "reserve"},
						&process.Throw{Name: FaultSoldOut, Expr: path("req.seats")},
					),
				}},
				&process.Scope{ID: "reserve", Body: process.Seq(
					&process.Install{Handlers: map[string]runtime.Process{
						process.CompensationKey: &process.Synchronized{ID: "seats", Body: &process.Compound{Op: process.OpSum, Path: seats, Expr: path("req.seats")}},
					}},
					&process.Synchronized{ID: "seats", Body: process.Seq(
						&process.Compound{Op: process.OpDiff, Path: seats, Expr: path("req.seats")},
						&process.If{Branches: []process.CondBranch{{
							Cond: &process.Compare{Op: process.OpLess, Left: seats, Right: process.Val(0)},
							Body: &process.Throw{Name: FaultSoldOut},
						}}},
					)},
					&process.Assign{Path: path("held"), Expr: path("req.seats")},
				)},
			)},
		},
	}
}

// Register adds the sample programs to r.
func Register(r *registry.Registry) {
	r.Register("calculator", Calculator)
	r.Register("counter", Counter)
	r.Register("booking", Booking)
}
