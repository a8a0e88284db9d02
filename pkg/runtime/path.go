package runtime

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/aretw0/weft/pkg/domain"
)

// PathSegment is one (name, index) pair of a VariablePath. A nil Index means
// element 0 when reading or writing, and the whole vector for Undef and Vector.
type PathSegment struct {
	Name  string
	Index Expression
}

// VariablePath is a reference to a location in a state tree, not a value.
// It is resolved against the thread's state (or the interpreter's global state)
// every time it is used.
type VariablePath struct {
	segments []PathSegment
	global   bool
}

// NewPath builds a path from segments.
func NewPath(segments ...PathSegment) *VariablePath {
	return &VariablePath{segments: segments}
}

// Seg is a segment addressing element 0 of name.
func Seg(name string) PathSegment {
	return PathSegment{Name: name}
}

// SegAt is a segment addressing the element of name selected by index.
func SegAt(name string, index Expression) PathSegment {
	return PathSegment{Name: name, Index: index}
}

// ParsePath parses the dotted form "a.b[2].c". Indexes must be integer
// literals. It panics on malformed input, like regexp.MustCompile, because
// paths are written by program authors, not read from the wire.
func ParsePath(s string) *VariablePath {
	p, err := parsePath(s)
	if err != nil {
		panic(err)
	}
	return p
}

func parsePath(s string) (*VariablePath, error) {
	if s == "" {
		return nil, fmt.Errorf("empty path")
	}
	var segs []PathSegment
	for _, part := range strings.Split(s, ".") {
		name, idx := part, ""
		if open := strings.IndexByte(part, '['); open >= 0 {
			if !strings.HasSuffix(part, "]") {
				return nil, fmt.Errorf("path %q: unterminated index in %q", s, part)
			}
			name, idx = part[:open], part[open+1:len(part)-1]
		}
		if name == "" {
			return nil, fmt.Errorf("path %q: empty segment", s)
		}
		seg := Seg(name)
		if idx != "" {
			n, err := strconv.Atoi(idx)
			if err != nil {
				return nil, fmt.Errorf("path %q: index %q: %w", s, idx, err)
			}
			seg.Index = constIndex(n)
		}
		segs = append(segs, seg)
	}
	return NewPath(segs...), nil
}

// Global returns a copy of p resolved against the interpreter's global state,
// which every session shares.
func (p *VariablePath) Global() *VariablePath {
	c := p.copyPath(ReasonReuse)
	c.global = true
	return c
}

// Child returns p extended with one more segment.
func (p *VariablePath) Child(seg PathSegment) *VariablePath {
	c := p.copyPath(ReasonReuse)
	c.segments = append(c.segments, seg)
	return c
}

// IsGlobal reports whether p addresses the global state.
func (p *VariablePath) IsGlobal() bool { return p.global }

// Len returns the number of segments.
func (p *VariablePath) Len() int { return len(p.segments) }

func (p *VariablePath) String() string {
	var b strings.Builder
	if p.global {
		b.WriteString("global.")
	}
	for i, seg := range p.segments {
		if i > 0 {
			b.WriteByte('.')
		}
		b.WriteString(seg.Name)
		if c, ok := seg.Index.(constIndex); ok {
			fmt.Fprintf(&b, "[%d]", int(c))
		} else if seg.Index != nil {
			b.WriteString("[*]")
		}
	}
	return b.String()
}

func (p *VariablePath) copyPath(reason TransformationReason) *VariablePath {
	segs := make([]PathSegment, len(p.segments))
	for i, seg := range p.segments {
		segs[i] = PathSegment{Name: seg.Name, Index: CloneExpression(seg.Index, reason)}
	}
	return &VariablePath{segments: segs, global: p.global}
}

// CloneExpression implements Expression.
func (p *VariablePath) CloneExpression(reason TransformationReason) Expression {
	return p.copyPath(reason)
}

// Copy returns an independent copy of p.
func (p *VariablePath) Copy(reason TransformationReason) *VariablePath {
	return p.copyPath(reason)
}

// Evaluate implements Expression: it returns the value at the path, creating
// it when missing.
func (p *VariablePath) Evaluate(ctx context.Context, t *Thread) (*domain.Value, error) {
	return p.Value(ctx, t)
}

func (p *VariablePath) stateOf(t *Thread) *State {
	if p.global {
		return t.Env().Global()
	}
	return t.State()
}

func (p *VariablePath) steps(ctx context.Context, t *Thread) ([]step, error) {
	steps := make([]step, len(p.segments))
	for i, seg := range p.segments {
		steps[i].name = seg.Name
		if seg.Index == nil {
			continue
		}
		v, err := seg.Index.Evaluate(ctx, t)
		if err != nil {
			return nil, fmt.Errorf("index of %s: %w", seg.Name, err)
		}
		steps[i].index = v.IntValue()
	}
	return steps, nil
}

func (p *VariablePath) resolved(ctx context.Context, t *Thread) (*State, []step, error) {
	st := p.stateOf(t)
	steps, err := p.steps(ctx, t)
	if err != nil {
		return nil, nil, err
	}
	steps, err = st.rewrite(steps)
	if err != nil {
		return nil, nil, fmt.Errorf("resolve %s: %w", p, err)
	}
	return st, steps, nil
}

// Value returns the value at the path, creating missing nodes.
func (p *VariablePath) Value(ctx context.Context, t *Thread) (*domain.Value, error) {
	st, steps, err := p.resolved(ctx, t)
	if err != nil {
		return nil, err
	}
	return st.walk(steps), nil
}

// Lookup returns the value at the path without creating it.
func (p *VariablePath) Lookup(ctx context.Context, t *Thread) (*domain.Value, bool, error) {
	st, steps, err := p.resolved(ctx, t)
	if err != nil {
		return nil, false, err
	}
	v, ok := st.lookup(steps)
	return v, ok, nil
}

// Vector returns the vector addressed by the last segment, ignoring its index.
func (p *VariablePath) Vector(ctx context.Context, t *Thread) (*domain.ValueVector, error) {
	if len(p.segments) == 0 {
		return nil, fmt.Errorf("vector of empty path")
	}
	st, steps, err := p.resolved(ctx, t)
	if err != nil {
		return nil, err
	}
	last := steps[len(steps)-1]
	return st.walk(steps[:len(steps)-1]).Children(last.name), nil
}

// Set stores v at the path, replacing the element instead of copying into it.
func (p *VariablePath) Set(ctx context.Context, t *Thread, v *domain.Value) error {
	if len(p.segments) == 0 {
		return fmt.Errorf("set on empty path")
	}
	st, steps, err := p.resolved(ctx, t)
	if err != nil {
		return err
	}
	last := steps[len(steps)-1]
	st.walk(steps[:len(steps)-1]).Children(last.name).Set(last.index, v)
	return nil
}

// Undef removes the location. When the location is itself an alias only the
// alias goes away and its target is left intact. A segment without an index
// drops the whole vector; an explicit index removes just that element.
func (p *VariablePath) Undef(ctx context.Context, t *Thread) error {
	if len(p.segments) == 0 {
		return nil
	}
	st := p.stateOf(t)
	raw, err := p.steps(ctx, t)
	if err != nil {
		return err
	}
	if st.dropAliases(raw) {
		return nil
	}
	steps, err := st.rewrite(raw)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", p, err)
	}
	st.dropAliases(steps)
	last := steps[len(steps)-1]
	parent, ok := st.lookup(steps[:len(steps)-1])
	if !ok {
		return nil
	}
	if p.segments[len(p.segments)-1].Index == nil {
		parent.RemoveChild(last.name)
		return nil
	}
	if vec, ok := parent.LookupChildren(last.name); ok {
		vec.Remove(last.index)
	}
	return nil
}

// MakePointer turns the location of p into an alias of target. Later reads
// and writes through p reach whatever target addresses at that time.
func (p *VariablePath) MakePointer(ctx context.Context, t *Thread, target *VariablePath) error {
	if p.global != target.global {
		return fmt.Errorf("pointer %s -> %s crosses the global boundary", p, target)
	}
	if len(p.segments) == 0 {
		return fmt.Errorf("pointer from empty path")
	}
	st := p.stateOf(t)
	from, err := p.steps(ctx, t)
	if err != nil {
		return err
	}
	to, err := target.steps(ctx, t)
	if err != nil {
		return err
	}
	st.setAlias(from, to)
	return nil
}

// constIndex is a literal index.
type constIndex int

func (c constIndex) Evaluate(context.Context, *Thread) (*domain.Value, error) {
	return domain.NewInt(int(c)), nil
}

func (c constIndex) CloneExpression(TransformationReason) Expression { return c }

// Index returns a literal index expression.
func Index(i int) Expression { return constIndex(i) }
