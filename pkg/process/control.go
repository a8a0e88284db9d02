package process

import (
	"context"
	"sync"

	"github.com/aretw0/weft/pkg/domain"
	"github.com/aretw0/weft/pkg/runtime"
	"golang.org/x/sync/errgroup"
)

// Null does nothing.
type Null struct{}

func (Null) Run(context.Context, *runtime.Thread) error          { return nil }
func (n Null) Copy(runtime.TransformationReason) runtime.Process { return n }
func (Null) IsKillable() bool                                    { return true }

// Sequence runs its children in order.
//
// Once the thread is killed, killable children are skipped while non-killable
// ones (a pending reply, for instance) still run to completion.
type Sequence struct {
	Children []runtime.Process
}

// Seq builds a Sequence.
func Seq(children ...runtime.Process) *Sequence {
	return &Sequence{Children: children}
}

func (s *Sequence) Run(ctx context.Context, t *runtime.Thread) error {
	for _, child := range s.Children {
		if t.IsKilled() && child.IsKillable() {
			continue
		}
		if err := child.Run(ctx, t); err != nil {
			return err
		}
	}
	return nil
}

func (s *Sequence) Copy(reason runtime.TransformationReason) runtime.Process {
	children := make([]runtime.Process, len(s.Children))
	for i, c := range s.Children {
		children[i] = c.Copy(reason)
	}
	return &Sequence{Children: children}
}

// IsKillable delegates to the first child: killability describes what is
// about to run, not the tail.
func (s *Sequence) IsKillable() bool {
	if len(s.Children) == 0 {
		return true
	}
	return s.Children[0].IsKillable()
}

func (s *Sequence) StarterOperations() []string {
	if len(s.Children) == 0 {
		return nil
	}
	return StarterOperations(s.Children[0])
}

// Parallel runs its branches concurrently on forked threads sharing the
// parent's state. The first branch to fault kills the others with that fault,
// and the fault is raised once every branch has returned.
type Parallel struct {
	Branches []runtime.Process
}

// Par builds a Parallel.
func Par(branches ...runtime.Process) *Parallel {
	return &Parallel{Branches: branches}
}

func (p *Parallel) Run(ctx context.Context, t *runtime.Thread) error {
	if t.IsKilled() {
		return nil
	}
	return runForks(ctx, t, len(p.Branches), func(i int) (runtime.Process, *runtime.State) {
		return p.Branches[i], nil
	}, nil)
}

func (p *Parallel) Copy(reason runtime.TransformationReason) runtime.Process {
	branches := make([]runtime.Process, len(p.Branches))
	for i, b := range p.Branches {
		branches[i] = b.Copy(reason)
	}
	return &Parallel{Branches: branches}
}

func (p *Parallel) IsKillable() bool { return true }

// runForks runs n processes on child threads. setup returns the body and the
// state of fork i (nil shares the parent's); done, when set, runs on the fork
// thread after a successful body.
func runForks(ctx context.Context, t *runtime.Thread, n int,
	setup func(i int) (runtime.Process, *runtime.State),
	done func(i int, child *runtime.Thread) error,
) error {
	children := make([]*runtime.Thread, n)
	bodies := make([]runtime.Process, n)
	for i := 0; i < n; i++ {
		body, st := setup(i)
		bodies[i] = body
		children[i] = t.Fork(st)
	}

	var once sync.Once
	killSiblings := func(self int, err error) {
		once.Do(func() {
			f, ok := domain.AsFault(err)
			if !ok {
				f = exitFault
			}
			for j, c := range children {
				if j != self {
					c.Kill(f)
				}
			}
		})
	}

	var g errgroup.Group
	for i := range children {
		g.Go(func() error {
			child := children[i]
			defer child.Detach()
			err := bodies[i].Run(ctx, child)
			if err == nil && done != nil {
				err = done(i, child)
			}
			if err != nil {
				killSiblings(i, err)
			}
			return err
		})
	}
	return g.Wait()
}

// While repeats Body as long as Cond evaluates to true.
type While struct {
	Cond runtime.Expression
	Body runtime.Process
}

func (w *While) Run(ctx context.Context, t *runtime.Thread) error {
	for {
		if t.IsKilled() {
			return nil
		}
		cond, err := w.Cond.Evaluate(ctx, t)
		if err != nil {
			return asFault(err)
		}
		if !cond.BoolValue() {
			return nil
		}
		if err := w.Body.Run(ctx, t); err != nil {
			return err
		}
	}
}

func (w *While) Copy(reason runtime.TransformationReason) runtime.Process {
	return &While{Cond: w.Cond.CloneExpression(reason), Body: w.Body.Copy(reason)}
}

func (w *While) IsKillable() bool { return true }

// CondBranch is one guarded alternative of an If.
type CondBranch struct {
	Cond runtime.Expression
	Body runtime.Process
}

// If runs the body of the first branch whose condition holds, or Else.
type If struct {
	Branches []CondBranch
	Else     runtime.Process
}

func (p *If) Run(ctx context.Context, t *runtime.Thread) error {
	for _, b := range p.Branches {
		cond, err := b.Cond.Evaluate(ctx, t)
		if err != nil {
			return asFault(err)
		}
		if cond.BoolValue() {
			return b.Body.Run(ctx, t)
		}
	}
	if p.Else != nil {
		return p.Else.Run(ctx, t)
	}
	return nil
}

func (p *If) Copy(reason runtime.TransformationReason) runtime.Process {
	branches := make([]CondBranch, len(p.Branches))
	for i, b := range p.Branches {
		branches[i] = CondBranch{Cond: b.Cond.CloneExpression(reason), Body: b.Body.Copy(reason)}
	}
	return &If{Branches: branches, Else: runtime.CopyProcess(p.Else, reason)}
}

func (p *If) IsKillable() bool { return true }

// Throw raises a fault whose payload is the value of Expr.
type Throw struct {
	Name string
	Expr runtime.Expression
}

func (p *Throw) Run(ctx context.Context, t *runtime.Thread) error {
	v, err := runtime.Evaluate(ctx, t, p.Expr)
	if err != nil {
		return asFault(err)
	}
	return domain.NewFault(p.Name, v.Clone())
}

func (p *Throw) Copy(reason runtime.TransformationReason) runtime.Process {
	return &Throw{Name: p.Name, Expr: runtime.CloneExpression(p.Expr, reason)}
}

func (p *Throw) IsKillable() bool { return true }

// Exit ends the session. It cannot be caught by fault handlers.
type Exit struct{}

func (Exit) Run(context.Context, *runtime.Thread) error          { return runtime.ErrExiting }
func (e Exit) Copy(runtime.TransformationReason) runtime.Process { return e }
func (Exit) IsKillable() bool                                    { return true }
