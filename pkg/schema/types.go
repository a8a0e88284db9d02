package schema

import (
	"fmt"
	"sort"
	"strings"

	"github.com/aretw0/weft/pkg/domain"
)

// NativeType constrains the scalar of a value to one kind. Children are not
// inspected.
type NativeType struct {
	name  string
	kinds []domain.Kind
}

func (t *NativeType) String() string { return t.name }

func (t *NativeType) Check(v *domain.Value) error {
	return t.check("", v)
}

func (t *NativeType) check(path string, v *domain.Value) error {
	if t.kinds == nil {
		return nil
	}
	kind := v.Kind()
	for _, k := range t.kinds {
		if k == kind {
			return nil
		}
	}
	return mismatch(path, "expected %s, got %s", t.name, kind)
}

// --- Factory Functions ---

// Any accepts every scalar, including none.
func Any() *NativeType { return &NativeType{name: "any"} }

// Void accepts only values without a scalar.
func Void() *NativeType { return &NativeType{name: "void", kinds: []domain.Kind{domain.KindUndefined}} }

// String accepts string scalars.
func String() *NativeType {
	return &NativeType{name: "string", kinds: []domain.Kind{domain.KindString}}
}

// Int accepts int scalars.
func Int() *NativeType { return &NativeType{name: "int", kinds: []domain.Kind{domain.KindInt}} }

// Long accepts long scalars and, since they widen losslessly, int ones.
func Long() *NativeType {
	return &NativeType{name: "long", kinds: []domain.Kind{domain.KindLong, domain.KindInt}}
}

// Double accepts every numeric scalar.
func Double() *NativeType {
	return &NativeType{name: "double", kinds: []domain.Kind{domain.KindDouble, domain.KindInt, domain.KindLong}}
}

// Bool accepts boolean scalars.
func Bool() *NativeType { return &NativeType{name: "bool", kinds: []domain.Kind{domain.KindBool}} }

// Raw accepts byte scalars.
func Raw() *NativeType { return &NativeType{name: "raw", kinds: []domain.Kind{domain.KindBytes}} }

// Field is the constraint on one child name of a record: the element type and
// how many elements the vector may hold. Max < 0 means unbounded.
type Field struct {
	Type     domain.Type
	Min, Max int
}

// Required is a field with exactly one element.
func Required(t domain.Type) Field { return Field{Type: t, Min: 1, Max: 1} }

// Optional is a field with zero or one element.
func Optional(t domain.Type) Field { return Field{Type: t, Min: 0, Max: 1} }

// Many is a field with any number of elements.
func Many(t domain.Type) Field { return Field{Type: t, Min: 0, Max: -1} }

func (f Field) String() string {
	name := "any"
	if f.Type != nil {
		name = f.Type.String()
	}
	switch {
	case f.Min == 1 && f.Max == 1:
		return name
	case f.Min == 0 && f.Max == 1:
		return name + "?"
	case f.Min == 0 && f.Max < 0:
		return name + "*"
	case f.Max < 0:
		return fmt.Sprintf("%s[%d,*]", name, f.Min)
	}
	return fmt.Sprintf("%s[%d,%d]", name, f.Min, f.Max)
}

// Fields maps child names to their constraints.
type Fields map[string]Field

// RecordType is a native type plus constraints on the children.
type RecordType struct {
	native *NativeType
	fields Fields
	open   bool
}

// Record builds a closed record.
func Record(native *NativeType, fields Fields) *RecordType {
	if native == nil {
		native = Any()
	}
	return &RecordType{native: native, fields: fields}
}

// Open returns a copy of the record that tolerates undeclared children.
func (t *RecordType) Open() *RecordType {
	return &RecordType{native: t.native, fields: t.fields, open: true}
}

// Fields returns the field constraints.
func (t *RecordType) Fields() Fields { return t.fields }

func (t *RecordType) String() string {
	names := make([]string, 0, len(t.fields))
	for name := range t.fields {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = name + ": " + t.fields[name].String()
	}
	if t.open {
		parts = append(parts, "...")
	}
	return fmt.Sprintf("%s { %s }", t.native, strings.Join(parts, ", "))
}

func (t *RecordType) Check(v *domain.Value) error {
	return t.check("", v)
}

func (t *RecordType) check(path string, v *domain.Value) error {
	var errs []error
	if err := t.native.check(path, v); err != nil {
		errs = append(errs, err)
	}

	names := make([]string, 0, len(t.fields))
	for name := range t.fields {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		field := t.fields[name]
		var items []*domain.Value
		if vec, ok := v.LookupChildren(name); ok {
			items = vec.Values()
		}
		at := childPath(path, name)
		if len(items) < field.Min || (field.Max >= 0 && len(items) > field.Max) {
			errs = append(errs, mismatch(at, "expected %s, got %d element(s)", cardinality(field), len(items)))
			continue
		}
		for i, item := range items {
			if err := checkAt(field.Type, fmt.Sprintf("%s[%d]", at, i), item); err != nil {
				errs = append(errs, CheckErrors(err)...)
			}
		}
	}

	if !t.open {
		for _, name := range v.ChildNames() {
			if _, ok := t.fields[name]; !ok {
				errs = append(errs, mismatch(childPath(path, name), "unexpected field"))
			}
		}
	}
	return join(errs)
}

func cardinality(f Field) string {
	if f.Max < 0 {
		return fmt.Sprintf("at least %d", f.Min)
	}
	if f.Min == f.Max {
		return fmt.Sprintf("exactly %d", f.Min)
	}
	return fmt.Sprintf("between %d and %d", f.Min, f.Max)
}

func childPath(path, name string) string {
	if path == "" {
		return name
	}
	return path + "." + name
}

// checker is implemented by the types of this package so that nested failures
// carry their full path.
type checker interface {
	check(path string, v *domain.Value) error
}

func checkAt(t domain.Type, path string, v *domain.Value) error {
	if t == nil {
		return nil
	}
	if c, ok := t.(checker); ok {
		return c.check(path, v)
	}
	if err := t.Check(v); err != nil {
		if tce, ok := err.(*domain.TypeCheckingError); ok && tce.Path == "" {
			return &domain.TypeCheckingError{Path: path, Reason: tce.Reason}
		}
		return err
	}
	return nil
}

// CustomType applies a user-defined check.
type CustomType struct {
	name  string
	check func(*domain.Value) error
}

func (t *CustomType) String() string { return t.name }

// Check runs the function; plain errors are reported as type mismatches.
func (t *CustomType) Check(v *domain.Value) error {
	err := t.check(v)
	if err == nil {
		return nil
	}
	if _, ok := err.(*domain.TypeCheckingError); ok {
		return err
	}
	return mismatch("", "%s: %v", t.name, err)
}

// Custom creates a type checked by fn.
func Custom(name string, fn func(*domain.Value) error) *CustomType {
	return &CustomType{name: name, check: fn}
}

// ParseType converts a native type name to a Type.
func ParseType(name string) (*NativeType, error) {
	switch name {
	case "any":
		return Any(), nil
	case "void":
		return Void(), nil
	case "string":
		return String(), nil
	case "int":
		return Int(), nil
	case "long":
		return Long(), nil
	case "double":
		return Double(), nil
	case "bool":
		return Bool(), nil
	case "raw":
		return Raw(), nil
	default:
		return nil, fmt.Errorf("unsupported type: %s", name)
	}
}

// ParseField reads a field written as a native type name followed by an
// optional cardinality marker: "?" (zero or one) or "*" (any number).
func ParseField(s string) (Field, error) {
	build := Required
	switch {
	case strings.HasSuffix(s, "?"):
		build, s = Optional, strings.TrimSuffix(s, "?")
	case strings.HasSuffix(s, "*"):
		build, s = Many, strings.TrimSuffix(s, "*")
	}
	t, err := ParseType(s)
	if err != nil {
		return Field{}, err
	}
	return build(t), nil
}

// ParseFields converts a map of child names to field strings.
// Example: {"id": "long", "tags": "string*"}
func ParseFields(raw map[string]string) (Fields, error) {
	result := make(Fields, len(raw))
	for key, s := range raw {
		f, err := ParseField(s)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", key, err)
		}
		result[key] = f
	}
	return result, nil
}
