package process

import (
	"context"
	"fmt"

	"github.com/aretw0/weft/pkg/domain"
	"github.com/aretw0/weft/pkg/runtime"
)

// Const evaluates to a copy of Value.
type Const struct {
	Value *domain.Value
}

// Val wraps a Go scalar as a constant expression.
func Val(x any) *Const { return &Const{Value: domain.ValueOf(x)} }

func (c *Const) Evaluate(context.Context, *runtime.Thread) (*domain.Value, error) {
	return c.Value.Clone(), nil
}

func (c *Const) CloneExpression(runtime.TransformationReason) runtime.Expression { return c }

// ArithOp is a binary arithmetic operator.
type ArithOp byte

const (
	OpSum  ArithOp = '+'
	OpDiff ArithOp = '-'
	OpProd ArithOp = '*'
	OpDiv  ArithOp = '/'
	OpMod  ArithOp = '%'
)

func (op ArithOp) apply(acc, operand *domain.Value) error {
	switch op {
	case OpSum:
		return acc.Add(operand)
	case OpDiff:
		return acc.Subtract(operand)
	case OpProd:
		return acc.Multiply(operand)
	case OpDiv:
		return acc.Divide(operand)
	case OpMod:
		return acc.Modulo(operand)
	}
	return fmt.Errorf("unknown operator %q", byte(op))
}

// Binary folds Operands left to right with Op.
type Binary struct {
	Op       ArithOp
	Operands []runtime.Expression
}

func (b *Binary) Evaluate(ctx context.Context, t *runtime.Thread) (*domain.Value, error) {
	acc := domain.NewValue()
	for i, e := range b.Operands {
		v, err := e.Evaluate(ctx, t)
		if err != nil {
			return nil, err
		}
		if i == 0 {
			acc.AssignValue(v)
			continue
		}
		if err := b.Op.apply(acc, v); err != nil {
			return nil, asFault(err)
		}
	}
	return acc, nil
}

func (b *Binary) CloneExpression(reason runtime.TransformationReason) runtime.Expression {
	return &Binary{Op: b.Op, Operands: cloneExpressions(b.Operands, reason)}
}

// CompareOp is a comparison operator.
type CompareOp string

const (
	OpEqual        CompareOp = "=="
	OpNotEqual     CompareOp = "!="
	OpLess         CompareOp = "<"
	OpLessEqual    CompareOp = "<="
	OpGreater      CompareOp = ">"
	OpGreaterEqual CompareOp = ">="
)

// Compare evaluates to a boolean comparing the scalars of Left and Right.
type Compare struct {
	Op          CompareOp
	Left, Right runtime.Expression
}

func (c *Compare) Evaluate(ctx context.Context, t *runtime.Thread) (*domain.Value, error) {
	l, err := c.Left.Evaluate(ctx, t)
	if err != nil {
		return nil, err
	}
	r, err := c.Right.Evaluate(ctx, t)
	if err != nil {
		return nil, err
	}
	cmp := l.Compare(r)
	var out bool
	switch c.Op {
	case OpEqual:
		out = cmp == 0 && l.IsDefined() == r.IsDefined()
	case OpNotEqual:
		out = cmp != 0 || l.IsDefined() != r.IsDefined()
	case OpLess:
		out = cmp < 0
	case OpLessEqual:
		out = cmp <= 0
	case OpGreater:
		out = cmp > 0
	case OpGreaterEqual:
		out = cmp >= 0
	default:
		return nil, fmt.Errorf("unknown comparison %q", c.Op)
	}
	return domain.NewBool(out), nil
}

func (c *Compare) CloneExpression(reason runtime.TransformationReason) runtime.Expression {
	return &Compare{Op: c.Op, Left: c.Left.CloneExpression(reason), Right: c.Right.CloneExpression(reason)}
}

// And is true when every operand is; evaluation stops at the first false.
type And struct {
	Operands []runtime.Expression
}

func (a *And) Evaluate(ctx context.Context, t *runtime.Thread) (*domain.Value, error) {
	for _, e := range a.Operands {
		v, err := e.Evaluate(ctx, t)
		if err != nil {
			return nil, err
		}
		if !v.BoolValue() {
			return domain.NewBool(false), nil
		}
	}
	return domain.NewBool(true), nil
}

func (a *And) CloneExpression(reason runtime.TransformationReason) runtime.Expression {
	return &And{Operands: cloneExpressions(a.Operands, reason)}
}

// Or is true when some operand is; evaluation stops at the first true.
type Or struct {
	Operands []runtime.Expression
}

func (o *Or) Evaluate(ctx context.Context, t *runtime.Thread) (*domain.Value, error) {
	for _, e := range o.Operands {
		v, err := e.Evaluate(ctx, t)
		if err != nil {
			return nil, err
		}
		if v.BoolValue() {
			return domain.NewBool(true), nil
		}
	}
	return domain.NewBool(false), nil
}

func (o *Or) CloneExpression(reason runtime.TransformationReason) runtime.Expression {
	return &Or{Operands: cloneExpressions(o.Operands, reason)}
}

// Not negates its operand.
type Not struct {
	Operand runtime.Expression
}

func (n *Not) Evaluate(ctx context.Context, t *runtime.Thread) (*domain.Value, error) {
	v, err := n.Operand.Evaluate(ctx, t)
	if err != nil {
		return nil, err
	}
	return domain.NewBool(!v.BoolValue()), nil
}

func (n *Not) CloneExpression(reason runtime.TransformationReason) runtime.Expression {
	return &Not{Operand: n.Operand.CloneExpression(reason)}
}

// IsDefined reports whether Path addresses a value holding a scalar. It never
// creates the location.
type IsDefined struct {
	Path *runtime.VariablePath
}

func (d *IsDefined) Evaluate(ctx context.Context, t *runtime.Thread) (*domain.Value, error) {
	v, ok, err := d.Path.Lookup(ctx, t)
	if err != nil {
		return nil, err
	}
	return domain.NewBool(ok && v.IsDefined()), nil
}

func (d *IsDefined) CloneExpression(reason runtime.TransformationReason) runtime.Expression {
	return &IsDefined{Path: d.Path.Copy(reason)}
}

// Size evaluates to the length of the vector addressed by Path.
type Size struct {
	Path *runtime.VariablePath
}

func (s *Size) Evaluate(ctx context.Context, t *runtime.Thread) (*domain.Value, error) {
	vec, err := s.Path.Vector(ctx, t)
	if err != nil {
		return nil, err
	}
	return domain.NewInt(vec.Size()), nil
}

func (s *Size) CloneExpression(reason runtime.TransformationReason) runtime.Expression {
	return &Size{Path: s.Path.Copy(reason)}
}

func cloneExpressions(in []runtime.Expression, reason runtime.TransformationReason) []runtime.Expression {
	out := make([]runtime.Expression, len(in))
	for i, e := range in {
		out[i] = e.CloneExpression(reason)
	}
	return out
}
