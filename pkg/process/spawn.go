package process

import (
	"context"

	"github.com/aretw0/weft/pkg/domain"
	"github.com/aretw0/weft/pkg/runtime"
)

// Spawn runs Bound copies of Body concurrently. Copy i works on its own clone
// of the current state with Index set to i. When In is set, it is cleared
// before the fan-out and element i of In receives what copy i left at In.
type Spawn struct {
	Index *runtime.VariablePath
	Bound runtime.Expression
	In    *runtime.VariablePath
	Body  runtime.Process
}

func (s *Spawn) Run(ctx context.Context, t *runtime.Thread) error {
	if t.IsKilled() {
		return nil
	}
	bound, err := s.Bound.Evaluate(ctx, t)
	if err != nil {
		return asFault(err)
	}
	n := bound.IntValue()
	if n <= 0 {
		return nil
	}
	if s.In != nil {
		if err := s.In.Undef(ctx, t); err != nil {
			return asFault(err)
		}
	}

	setup := func(i int) (runtime.Process, *runtime.State) {
		body := Seq(
			&Assign{Path: s.Index, Expr: &Const{Value: domain.NewInt(i)}},
			s.Body.Copy(runtime.ReasonSpawn),
		)
		return body, t.State().Clone()
	}
	var collect func(int, *runtime.Thread) error
	if s.In != nil {
		collect = func(i int, child *runtime.Thread) error {
			v, ok, err := s.In.Lookup(ctx, child)
			if err != nil {
				return asFault(err)
			}
			if !ok {
				v = domain.NewValue()
			}
			vec, err := s.In.Vector(ctx, t)
			if err != nil {
				return asFault(err)
			}
			vec.Set(i, v.Clone())
			return nil
		}
	}
	return runForks(ctx, t, n, setup, collect)
}

func (s *Spawn) Copy(reason runtime.TransformationReason) runtime.Process {
	c := &Spawn{
		Index: s.Index.Copy(reason),
		Bound: s.Bound.CloneExpression(reason),
		Body:  s.Body.Copy(reason),
	}
	if s.In != nil {
		c.In = s.In.Copy(reason)
	}
	return c
}

func (s *Spawn) IsKillable() bool { return true }
