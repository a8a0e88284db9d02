package domain

import (
	"fmt"
	"math"
	"strconv"
	"sync"
)

// Kind identifies the scalar payload held by a Value.
type Kind uint8

const (
	KindUndefined Kind = iota
	KindInt
	KindLong
	KindDouble
	KindBool
	KindString
	KindBytes
)

var kindNames = map[Kind]string{
	KindUndefined: "undefined",
	KindInt:       "int",
	KindLong:      "long",
	KindDouble:    "double",
	KindBool:      "bool",
	KindString:    "string",
	KindBytes:     "raw",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// Value is a node of the state tree.
// It holds an optional scalar and an ordered set of named children, each child
// name mapping to a ValueVector. Both parts may be present at the same time.
//
// Values are safe for concurrent use: parallel branches of a session share the
// same tree.
type Value struct {
	mu       sync.RWMutex
	kind     Kind
	scalar   any
	names    []string
	children map[string]*ValueVector
}

// NewValue returns an undefined value without children.
func NewValue() *Value {
	return &Value{}
}

func NewInt(v int) *Value        { return &Value{kind: KindInt, scalar: v} }
func NewLong(v int64) *Value     { return &Value{kind: KindLong, scalar: v} }
func NewDouble(v float64) *Value { return &Value{kind: KindDouble, scalar: v} }
func NewBool(v bool) *Value      { return &Value{kind: KindBool, scalar: v} }
func NewString(v string) *Value  { return &Value{kind: KindString, scalar: v} }
func NewBytes(v []byte) *Value   { return &Value{kind: KindBytes, scalar: append([]byte(nil), v...)} }

// ValueOf wraps a Go scalar. Unsupported types are stored as their string form.
func ValueOf(x any) *Value {
	v := NewValue()
	v.SetValue(x)
	return v
}

// Kind returns the kind of the scalar payload.
func (v *Value) Kind() Kind {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.kind
}

// IsDefined reports whether the value carries a scalar.
func (v *Value) IsDefined() bool {
	return v.Kind() != KindUndefined
}

// IsEmpty reports whether the value has neither a scalar nor children.
func (v *Value) IsEmpty() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.kind == KindUndefined && len(v.names) == 0
}

// Scalar returns the raw scalar payload (nil when undefined).
func (v *Value) Scalar() any {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if b, ok := v.scalar.([]byte); ok {
		return append([]byte(nil), b...)
	}
	return v.scalar
}

// SetValue replaces the scalar payload, leaving children untouched.
func (v *Value) SetValue(x any) {
	kind, scalar := classify(x)
	v.mu.Lock()
	v.kind, v.scalar = kind, scalar
	v.mu.Unlock()
}

// AssignValue copies the scalar of other into v. Children are not copied.
func (v *Value) AssignValue(other *Value) {
	if other == v {
		return
	}
	other.mu.RLock()
	kind, scalar := other.kind, other.scalar
	other.mu.RUnlock()
	if b, ok := scalar.([]byte); ok {
		scalar = append([]byte(nil), b...)
	}
	v.mu.Lock()
	v.kind, v.scalar = kind, scalar
	v.mu.Unlock()
}

func classify(x any) (Kind, any) {
	switch t := x.(type) {
	case nil:
		return KindUndefined, nil
	case int:
		return KindInt, t
	case int32:
		return KindInt, int(t)
	case int64:
		return KindLong, t
	case float32:
		return KindDouble, float64(t)
	case float64:
		return KindDouble, t
	case bool:
		return KindBool, t
	case string:
		return KindString, t
	case []byte:
		return KindBytes, append([]byte(nil), t...)
	case *Value:
		return t.Kind(), t.Scalar()
	default:
		return KindString, fmt.Sprint(t)
	}
}

// IntValue converts the scalar to int following the language coercion rules.
func (v *Value) IntValue() int {
	return int(v.LongValue())
}

// LongValue converts the scalar to int64.
func (v *Value) LongValue() int64 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	switch t := v.scalar.(type) {
	case int:
		return int64(t)
	case int64:
		return t
	case float64:
		return int64(t)
	case bool:
		if t {
			return 1
		}
		return 0
	case string:
		n, err := strconv.ParseInt(t, 10, 64)
		if err != nil {
			return 0
		}
		return n
	}
	return 0
}

// DoubleValue converts the scalar to float64.
func (v *Value) DoubleValue() float64 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	switch t := v.scalar.(type) {
	case int:
		return float64(t)
	case int64:
		return float64(t)
	case float64:
		return t
	case bool:
		if t {
			return 1
		}
		return 0
	case string:
		f, err := strconv.ParseFloat(t, 64)
		if err != nil {
			return 0
		}
		return f
	}
	return 0
}

// BoolValue converts the scalar to bool. Numbers are true when non-zero and
// strings when equal to "true".
func (v *Value) BoolValue() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	switch t := v.scalar.(type) {
	case bool:
		return t
	case int:
		return t != 0
	case int64:
		return t != 0
	case float64:
		return t != 0
	case string:
		return t == "true"
	case []byte:
		return len(t) > 0
	}
	return false
}

// StrValue renders the scalar as a string. Undefined renders as "".
func (v *Value) StrValue() string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	switch t := v.scalar.(type) {
	case nil:
		return ""
	case string:
		return t
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case []byte:
		return string(t)
	}
	return fmt.Sprint(v.scalar)
}

// BytesValue returns the scalar as raw bytes.
func (v *Value) BytesValue() []byte {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if b, ok := v.scalar.([]byte); ok {
		return append([]byte(nil), b...)
	}
	return []byte(fmt.Sprint(v.scalar))
}

// Children returns the vector stored under name, creating it when missing.
func (v *Value) Children(name string) *ValueVector {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.children == nil {
		v.children = make(map[string]*ValueVector)
	}
	vec, ok := v.children[name]
	if !ok {
		vec = NewValueVector()
		v.children[name] = vec
		v.names = append(v.names, name)
	}
	return vec
}

// FirstChild is shorthand for Children(name).Get(0).
func (v *Value) FirstChild(name string) *Value {
	return v.Children(name).Get(0)
}

// HasChildren reports whether a non-empty vector is stored under name.
func (v *Value) HasChildren(name string) bool {
	v.mu.RLock()
	vec, ok := v.children[name]
	v.mu.RUnlock()
	return ok && vec.Size() > 0
}

// LookupChildren returns the vector under name without creating it.
func (v *Value) LookupChildren(name string) (*ValueVector, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	vec, ok := v.children[name]
	return vec, ok
}

// ChildNames returns child names in insertion order.
func (v *Value) ChildNames() []string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return append([]string(nil), v.names...)
}

// RemoveChild drops the whole vector stored under name.
func (v *Value) RemoveChild(name string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, ok := v.children[name]; !ok {
		return
	}
	delete(v.children, name)
	for i, n := range v.names {
		if n == name {
			v.names = append(v.names[:i], v.names[i+1:]...)
			break
		}
	}
}

// Erase clears both the scalar and the children.
func (v *Value) Erase() {
	v.mu.Lock()
	v.kind, v.scalar = KindUndefined, nil
	v.children, v.names = nil, nil
	v.mu.Unlock()
}

// Clone returns a deep copy of v.
func (v *Value) Clone() *Value {
	out := NewValue()
	out.DeepCopy(v)
	return out
}

// DeepCopy copies the scalar of src into v and replaces, for every child name
// of src, the corresponding vector of v with a deep copy. Children of v that
// src does not have are kept.
func (v *Value) DeepCopy(src *Value) {
	if src == v {
		return
	}
	src.mu.RLock()
	kind, scalar := src.kind, src.scalar
	names := append([]string(nil), src.names...)
	vecs := make([]*ValueVector, len(names))
	for i, n := range names {
		vecs[i] = src.children[n]
	}
	src.mu.RUnlock()

	v.AssignValue(&Value{kind: kind, scalar: scalar})
	for i, name := range names {
		items := vecs[i].Values()
		copied := make([]*Value, len(items))
		for j, item := range items {
			copied[j] = item.Clone()
		}
		v.Children(name).replace(copied)
	}
}

// Equal compares scalars and children recursively.
func (v *Value) Equal(other *Value) bool {
	if v == other {
		return true
	}
	if other == nil {
		return false
	}
	if v.Kind() != other.Kind() || v.StrValue() != other.StrValue() {
		return false
	}
	names := v.ChildNames()
	if len(names) != len(other.ChildNames()) {
		return false
	}
	for _, name := range names {
		ov, ok := other.LookupChildren(name)
		if !ok {
			return false
		}
		mine := v.Children(name).Values()
		theirs := ov.Values()
		if len(mine) != len(theirs) {
			return false
		}
		for i := range mine {
			if !mine[i].Equal(theirs[i]) {
				return false
			}
		}
	}
	return true
}

// Compare orders two scalars. Numbers compare numerically, everything else
// by string form.
func (v *Value) Compare(other *Value) int {
	if isNumeric(v.Kind()) && isNumeric(other.Kind()) {
		a, b := v.DoubleValue(), other.DoubleValue()
		switch {
		case a < b:
			return -1
		case a > b:
			return 1
		}
		return 0
	}
	a, b := v.StrValue(), other.StrValue()
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func (v *Value) String() string {
	return v.StrValue()
}

func isNumeric(k Kind) bool {
	return k == KindInt || k == KindLong || k == KindDouble || k == KindBool
}

// Add updates v to v + other. Strings concatenate; numbers widen to the
// larger kind of the two operands. An undefined v takes the other scalar.
func (v *Value) Add(other *Value) error {
	return v.arith(other, '+')
}

func (v *Value) Subtract(other *Value) error {
	return v.arith(other, '-')
}

func (v *Value) Multiply(other *Value) error {
	return v.arith(other, '*')
}

func (v *Value) Divide(other *Value) error {
	return v.arith(other, '/')
}

// Modulo updates v to v % other for integer kinds.
func (v *Value) Modulo(other *Value) error {
	return v.arith(other, '%')
}

func (v *Value) arith(other *Value, op byte) error {
	lk, rk := v.Kind(), other.Kind()
	if lk == KindUndefined {
		switch op {
		case '+':
			v.AssignValue(other)
			return nil
		case '-':
			v.AssignValue(other)
			return v.negate()
		}
		lk = rk
	}
	if rk == KindUndefined {
		return nil
	}
	if lk == KindString || rk == KindString || lk == KindBytes || rk == KindBytes {
		if op != '+' {
			return fmt.Errorf("%w: %s %c %s", ErrArithmetic, lk, op, rk)
		}
		v.SetValue(v.StrValue() + other.StrValue())
		return nil
	}
	if lk == KindBool && rk == KindBool {
		a, b := v.BoolValue(), other.BoolValue()
		switch op {
		case '+':
			v.SetValue(a || b)
		case '*':
			v.SetValue(a && b)
		default:
			return fmt.Errorf("%w: bool %c bool", ErrArithmetic, op)
		}
		return nil
	}
	switch widest(lk, rk) {
	case KindDouble:
		a, b := v.DoubleValue(), other.DoubleValue()
		switch op {
		case '+':
			v.SetValue(a + b)
		case '-':
			v.SetValue(a - b)
		case '*':
			v.SetValue(a * b)
		case '/':
			if b == 0 {
				return fmt.Errorf("%w: division by zero", ErrArithmetic)
			}
			v.SetValue(a / b)
		case '%':
			if b == 0 {
				return fmt.Errorf("%w: division by zero", ErrArithmetic)
			}
			v.SetValue(math.Mod(a, b))
		}
	default:
		a, b := v.LongValue(), other.LongValue()
		var r int64
		switch op {
		case '+':
			r = a + b
		case '-':
			r = a - b
		case '*':
			r = a * b
		case '/', '%':
			if b == 0 {
				return fmt.Errorf("%w: division by zero", ErrArithmetic)
			}
			if op == '/' {
				r = a / b
			} else {
				r = a % b
			}
		}
		if widest(lk, rk) == KindLong {
			v.SetValue(r)
		} else {
			v.SetValue(int(r))
		}
	}
	return nil
}

func (v *Value) negate() error {
	switch v.Kind() {
	case KindInt:
		v.SetValue(-v.IntValue())
	case KindLong:
		v.SetValue(-v.LongValue())
	case KindDouble:
		v.SetValue(-v.DoubleValue())
	default:
		return fmt.Errorf("%w: cannot negate %s", ErrArithmetic, v.Kind())
	}
	return nil
}

func widest(a, b Kind) Kind {
	if a == KindDouble || b == KindDouble {
		return KindDouble
	}
	if a == KindLong || b == KindLong {
		return KindLong
	}
	return KindInt
}
