package process

import (
	"context"

	"github.com/aretw0/weft/pkg/domain"
	"github.com/aretw0/weft/pkg/runtime"
)

// Assign copies the scalar of Expr into Path. Children of the target are left
// as they are. As an expression it evaluates to the updated target.
type Assign struct {
	Path *runtime.VariablePath
	Expr runtime.Expression
}

func (a *Assign) Run(ctx context.Context, t *runtime.Thread) error {
	_, err := a.Evaluate(ctx, t)
	return err
}

func (a *Assign) Evaluate(ctx context.Context, t *runtime.Thread) (*domain.Value, error) {
	src, err := a.Expr.Evaluate(ctx, t)
	if err != nil {
		return nil, asFault(err)
	}
	target, err := a.Path.Value(ctx, t)
	if err != nil {
		return nil, asFault(err)
	}
	target.AssignValue(src)
	return target, nil
}

func (a *Assign) Copy(reason runtime.TransformationReason) runtime.Process {
	return &Assign{Path: a.Path.Copy(reason), Expr: a.Expr.CloneExpression(reason)}
}

func (a *Assign) CloneExpression(reason runtime.TransformationReason) runtime.Expression {
	return a.Copy(reason).(*Assign)
}

func (a *Assign) IsKillable() bool { return true }

// DeepCopy replaces the subtree at Path with a copy of the tree Expr evaluates
// to. The source is snapshotted first, so copying a node into one of its own
// descendants terminates.
type DeepCopy struct {
	Path *runtime.VariablePath
	Expr runtime.Expression
}

func (d *DeepCopy) Run(ctx context.Context, t *runtime.Thread) error {
	_, err := d.Evaluate(ctx, t)
	return err
}

func (d *DeepCopy) Evaluate(ctx context.Context, t *runtime.Thread) (*domain.Value, error) {
	src, err := d.Expr.Evaluate(ctx, t)
	if err != nil {
		return nil, asFault(err)
	}
	snapshot := src.Clone()
	target, err := d.Path.Value(ctx, t)
	if err != nil {
		return nil, asFault(err)
	}
	target.Erase()
	target.DeepCopy(snapshot)
	return target, nil
}

func (d *DeepCopy) Copy(reason runtime.TransformationReason) runtime.Process {
	return &DeepCopy{Path: d.Path.Copy(reason), Expr: d.Expr.CloneExpression(reason)}
}

func (d *DeepCopy) CloneExpression(reason runtime.TransformationReason) runtime.Expression {
	return d.Copy(reason).(*DeepCopy)
}

func (d *DeepCopy) IsKillable() bool { return true }

// MakePointer makes Path an alias of Target: no data is copied and later
// accesses through either path reach the same location.
type MakePointer struct {
	Path   *runtime.VariablePath
	Target *runtime.VariablePath
}

func (m *MakePointer) Run(ctx context.Context, t *runtime.Thread) error {
	return asFault(m.Path.MakePointer(ctx, t, m.Target))
}

func (m *MakePointer) Copy(reason runtime.TransformationReason) runtime.Process {
	return &MakePointer{Path: m.Path.Copy(reason), Target: m.Target.Copy(reason)}
}

func (m *MakePointer) IsKillable() bool { return true }

// Compound applies Op between the value at Path and Expr and stores the result
// at Path (x += e, x -= e, ...).
type Compound struct {
	Op   ArithOp
	Path *runtime.VariablePath
	Expr runtime.Expression
}

func (c *Compound) Run(ctx context.Context, t *runtime.Thread) error {
	_, err := c.Evaluate(ctx, t)
	return err
}

func (c *Compound) Evaluate(ctx context.Context, t *runtime.Thread) (*domain.Value, error) {
	operand, err := c.Expr.Evaluate(ctx, t)
	if err != nil {
		return nil, asFault(err)
	}
	target, err := c.Path.Value(ctx, t)
	if err != nil {
		return nil, asFault(err)
	}
	if err := c.Op.apply(target, operand); err != nil {
		return nil, asFault(err)
	}
	return target, nil
}

func (c *Compound) Copy(reason runtime.TransformationReason) runtime.Process {
	return &Compound{Op: c.Op, Path: c.Path.Copy(reason), Expr: c.Expr.CloneExpression(reason)}
}

func (c *Compound) CloneExpression(reason runtime.TransformationReason) runtime.Expression {
	return c.Copy(reason).(*Compound)
}

func (c *Compound) IsKillable() bool { return true }

// Increment adds Delta (normally +1 or -1) to the value at Path. Prefix
// increments evaluate to the updated value, postfix ones to the value held
// before the update.
type Increment struct {
	Path   *runtime.VariablePath
	Delta  int
	Prefix bool
}

// PreIncrement, PostIncrement, PreDecrement and PostDecrement build the four
// unit increments.
func PreIncrement(p *runtime.VariablePath) *Increment {
	return &Increment{Path: p, Delta: 1, Prefix: true}
}

func PostIncrement(p *runtime.VariablePath) *Increment {
	return &Increment{Path: p, Delta: 1}
}

func PreDecrement(p *runtime.VariablePath) *Increment {
	return &Increment{Path: p, Delta: -1, Prefix: true}
}

func PostDecrement(p *runtime.VariablePath) *Increment {
	return &Increment{Path: p, Delta: -1}
}

func (i *Increment) Run(ctx context.Context, t *runtime.Thread) error {
	_, err := i.Evaluate(ctx, t)
	return err
}

func (i *Increment) Evaluate(ctx context.Context, t *runtime.Thread) (*domain.Value, error) {
	target, err := i.Path.Value(ctx, t)
	if err != nil {
		return nil, asFault(err)
	}
	before := domain.NewValue()
	before.AssignValue(target)
	if err := target.Add(domain.NewInt(i.Delta)); err != nil {
		return nil, asFault(err)
	}
	if i.Prefix {
		after := domain.NewValue()
		after.AssignValue(target)
		return after, nil
	}
	return before, nil
}

func (i *Increment) Copy(reason runtime.TransformationReason) runtime.Process {
	return &Increment{Path: i.Path.Copy(reason), Delta: i.Delta, Prefix: i.Prefix}
}

func (i *Increment) CloneExpression(reason runtime.TransformationReason) runtime.Expression {
	return i.Copy(reason).(*Increment)
}

func (i *Increment) IsKillable() bool { return true }

// Undef removes the location addressed by Path.
type Undef struct {
	Path *runtime.VariablePath
}

func (u *Undef) Run(ctx context.Context, t *runtime.Thread) error {
	return asFault(u.Path.Undef(ctx, t))
}

func (u *Undef) Copy(reason runtime.TransformationReason) runtime.Process {
	return &Undef{Path: u.Path.Copy(reason)}
}

func (u *Undef) IsKillable() bool { return true }
