package demo

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/aretw0/weft"
	"github.com/aretw0/weft/pkg/registry"
)

// Scenario pairs a program with the conversation the demo command plays.
type Scenario struct {
	Name    string
	Program registry.Factory
	Script  func(ctx context.Context, c *Client, w io.Writer) error
}

// Scenarios returns the demo conversations in presentation order.
func Scenarios() []Scenario {
	return []Scenario{
		{Name: "calculator", Program: Calculator, Script: calculatorScript},
		{Name: "counter", Program: Counter, Script: counterScript},
		{Name: "booking", Program: Booking, Script: bookingScript},
	}
}

// Lookup finds a scenario by name.
func Lookup(name string) (Scenario, bool) {
	for _, s := range Scenarios() {
		if s.Name == name {
			return s, true
		}
	}
	return Scenario{}, false
}

func calculatorScript(ctx context.Context, c *Client, w io.Writer) error {
	for _, pair := range [][2]int{{2, 3}, {40, 2}} {
		reply, err := c.Call(ctx, "sum", map[string]any{"a": pair[0], "b": pair[1]}, "")
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "sum(%d, %d) = %s\n", pair[0], pair[1], describe(reply))
	}
	reply, _ := c.Call(ctx, "sum", map[string]any{"a": "two", "b": 3}, "")
	fmt.Fprintf(w, "sum(\"two\", 3) = %s\n", describe(reply))
	return nil
}

func counterScript(ctx context.Context, c *Client, w io.Writer) error {
	reply, err := c.Call(ctx, "start", nil, "")
	if err != nil {
		return err
	}
	session := reply.SessionID()
	fmt.Fprintln(w, "start -> session opened")

	for _, n := range []int{3, 4, 5} {
		reply, err := c.Call(ctx, "add", n, session)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "add(%d) -> %s\n", n, describe(reply))
	}

	reply, err = c.Call(ctx, "get", nil, session)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "get -> %s\n", describe(reply))

	reply, _ = c.Call(ctx, "add", 1, session)
	fmt.Fprintf(w, "add(1) after get -> %s\n", describe(reply))
	return nil
}

func bookingScript(ctx context.Context, c *Client, w io.Writer) error {
	fmt.Fprintf(w, "capacity: %d seats\n", Capacity)
	for _, seats := range []int{2, 4, 3, 1} {
		reply, err := c.Call(ctx, "book", map[string]any{"seats": seats}, "")
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "book(%d) -> %s\n", seats, describe(reply))
	}
	return nil
}

// Run plays s against a fresh interpreter built with opts and writes the
// transcript to w.
func Run(ctx context.Context, s Scenario, w io.Writer, opts ...weft.Option) error {
	itp, err := weft.New(s.Program(), opts...)
	if err != nil {
		return fmt.Errorf("failed to load %s: %w", s.Name, err)
	}
	if err := itp.Start(ctx); err != nil {
		return err
	}
	defer func() {
		_ = itp.Shutdown(context.WithoutCancel(ctx))
	}()

	fmt.Fprintf(w, "== %s ==\n", s.Name)
	return s.Script(ctx, &Client{Receiver: itp, Timeout: 5 * time.Second}, w)
}
