package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/aretw0/weft/internal/demo"
)

// RunDemo plays the named demo scenarios, or all of them when names is
// empty, on interpreters built from the runtime.
func RunDemo(ctx context.Context, rt *Runtime, names []string, w io.Writer) error {
	scenarios := demo.Scenarios()
	if len(names) > 0 {
		scenarios = scenarios[:0:0]
		for _, name := range names {
			s, ok := demo.Lookup(name)
			if !ok {
				return fmt.Errorf("unknown demo %q", name)
			}
			scenarios = append(scenarios, s)
		}
	}

	opts, err := rt.Options()
	if err != nil {
		return err
	}
	for _, s := range scenarios {
		if err := demo.Run(ctx, s, w, opts...); err != nil {
			return fmt.Errorf("demo %s: %w", s.Name, err)
		}
	}
	printSystemMessage(w, "Sessions kept in the %s store.", rt.Config.Store.Kind)
	return nil
}
