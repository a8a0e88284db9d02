package process

import (
	"context"
	"errors"
	"fmt"

	"github.com/aretw0/weft/pkg/runtime"
)

// StarterOperations returns the operations that can start p, or nil when p
// does not begin with an input.
func StarterOperations(p runtime.Process) []string {
	if g, ok := p.(runtime.InputGuard); ok {
		return g.StarterOperations()
	}
	return nil
}

// Branch is one alternative of a Choice: an input guard and what follows it.
type Branch struct {
	Input InputOperationProcess
	Body  runtime.Process
}

// Choice waits on all of its guards at once and runs exactly one branch: the
// first whose operation receives a message.
type Choice struct {
	Branches []Branch
}

func (c *Choice) Run(ctx context.Context, t *runtime.Thread) error {
	if t.IsKilled() {
		return nil
	}
	b, sm, err := c.await(ctx, t)
	if err != nil {
		if errors.Is(err, runtime.ErrKilled) {
			return nil
		}
		return err
	}
	return runBranch(ctx, t, b, sm)
}

// runBranch completes the received input of b and then runs its body.
func runBranch(ctx context.Context, t *runtime.Thread, b Branch, sm runtime.SessionMessage) error {
	cont, err := b.Input.ReceiveMessage(ctx, t, sm)
	if err != nil {
		return err
	}
	if err := cont.Run(ctx, t); err != nil {
		return err
	}
	if b.Body == nil || (t.IsKilled() && b.Body.IsKillable()) {
		return nil
	}
	return b.Body.Run(ctx, t)
}

func (c *Choice) await(ctx context.Context, t *runtime.Thread) (Branch, runtime.SessionMessage, error) {
	byOp := make(map[string]Branch, len(c.Branches))
	ops := make([]string, 0, len(c.Branches))
	for _, b := range c.Branches {
		name := b.Input.Operation().Name
		if _, dup := byOp[name]; dup {
			return Branch{}, runtime.SessionMessage{}, fmt.Errorf("choice: operation %q guards more than one branch", name)
		}
		byOp[name] = b
		ops = append(ops, name)
	}
	f := t.Env().Correlator().RequestMessage(t.SessionID(), ops...)
	sm, err := runtime.Await(ctx, t, f)
	if err != nil {
		return Branch{}, runtime.SessionMessage{}, err
	}
	return byOp[sm.Message.Operation()], sm, nil
}

func (c *Choice) Copy(reason runtime.TransformationReason) runtime.Process {
	branches := make([]Branch, len(c.Branches))
	for i, b := range c.Branches {
		branches[i] = Branch{
			Input: b.Input.Copy(reason).(InputOperationProcess),
			Body:  runtime.CopyProcess(b.Body, reason),
		}
	}
	return &Choice{Branches: branches}
}

func (c *Choice) IsKillable() bool { return true }

func (c *Choice) StarterOperations() []string {
	ops := make([]string, 0, len(c.Branches))
	for _, b := range c.Branches {
		ops = append(ops, b.Input.Operation().Name)
	}
	return ops
}

// ProvideUntil keeps serving Provide until one of the Until branches fires.
// Both sides share a single registration per round, so a message is consumed
// by exactly one branch.
type ProvideUntil struct {
	Provide []Branch
	Until   []Branch
}

func (p *ProvideUntil) Run(ctx context.Context, t *runtime.Thread) error {
	all := &Choice{Branches: append(append([]Branch(nil), p.Provide...), p.Until...)}
	until := make(map[string]bool, len(p.Until))
	for _, b := range p.Until {
		until[b.Input.Operation().Name] = true
	}
	for {
		if t.IsKilled() {
			return nil
		}
		b, sm, err := all.await(ctx, t)
		if err != nil {
			if errors.Is(err, runtime.ErrKilled) {
				return nil
			}
			return err
		}
		if err := runBranch(ctx, t, b, sm); err != nil {
			return err
		}
		if until[sm.Message.Operation()] {
			return nil
		}
	}
}

func (p *ProvideUntil) Copy(reason runtime.TransformationReason) runtime.Process {
	provide := (&Choice{Branches: p.Provide}).Copy(reason).(*Choice)
	until := (&Choice{Branches: p.Until}).Copy(reason).(*Choice)
	return &ProvideUntil{Provide: provide.Branches, Until: until.Branches}
}

func (p *ProvideUntil) IsKillable() bool { return true }

func (p *ProvideUntil) StarterOperations() []string {
	return (&Choice{Branches: append(append([]Branch(nil), p.Provide...), p.Until...)}).StarterOperations()
}
