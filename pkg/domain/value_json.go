package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// valueJSON is the lossless persisted form of a Value.
type valueJSON struct {
	Type     string              `json:"type,omitempty"`
	Value    json.RawMessage     `json:"value,omitempty"`
	Children map[string][]*Value `json:"children,omitempty"`
	Order    []string            `json:"order,omitempty"`
}

// MarshalJSON encodes the value with explicit scalar kinds so that a round
// trip preserves int/long/double distinctions and child order.
func (v *Value) MarshalJSON() ([]byte, error) {
	out := valueJSON{}
	if kind := v.Kind(); kind != KindUndefined {
		out.Type = kind.String()
		raw, err := json.Marshal(v.Scalar())
		if err != nil {
			return nil, err
		}
		out.Value = raw
	}
	names := v.ChildNames()
	if len(names) > 0 {
		out.Children = make(map[string][]*Value, len(names))
		for _, name := range names {
			out.Children[name] = v.Children(name).Values()
		}
		out.Order = names
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes the form produced by MarshalJSON.
func (v *Value) UnmarshalJSON(data []byte) error {
	var in valueJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	v.Erase()
	if in.Type != "" {
		scalar, err := decodeScalar(in.Type, in.Value)
		if err != nil {
			return err
		}
		v.SetValue(scalar)
	}
	order := in.Order
	if len(order) != len(in.Children) {
		order = order[:0]
		for name := range in.Children {
			order = append(order, name)
		}
		sort.Strings(order)
	}
	for _, name := range order {
		vec := v.Children(name)
		for _, child := range in.Children[name] {
			if child == nil {
				child = NewValue()
			}
			vec.Append(child)
		}
	}
	return nil
}

func decodeScalar(kind string, raw json.RawMessage) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	switch kind {
	case "int", "long", "double":
		var n json.Number
		if err := dec.Decode(&n); err != nil {
			return nil, fmt.Errorf("invalid %s scalar: %w", kind, err)
		}
		switch kind {
		case "int":
			i, err := n.Int64()
			return int(i), err
		case "long":
			return n.Int64()
		default:
			return n.Float64()
		}
	case "bool":
		var b bool
		err := dec.Decode(&b)
		return b, err
	case "string":
		var s string
		err := dec.Decode(&s)
		return s, err
	case "raw":
		var b []byte
		err := dec.Decode(&b)
		return b, err
	}
	return nil, fmt.Errorf("unknown scalar type %q", kind)
}

// ValueFromNative builds a tree from decoded JSON-like data: maps become
// children, slices become vectors, and the "$" key of a map carries the
// scalar of the node itself.
func ValueFromNative(x any) *Value {
	v := NewValue()
	fillNative(v, x)
	return v
}

func fillNative(v *Value, x any) {
	switch t := x.(type) {
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if k == "$" {
				v.SetValue(nativeScalar(t[k]))
				continue
			}
			vec := v.Children(k)
			if items, ok := t[k].([]any); ok {
				for _, item := range items {
					child := NewValue()
					fillNative(child, item)
					vec.Append(child)
				}
				continue
			}
			child := NewValue()
			fillNative(child, t[k])
			vec.Append(child)
		}
	case []any:
		vec := v.Children("_")
		for _, item := range t {
			child := NewValue()
			fillNative(child, item)
			vec.Append(child)
		}
	default:
		v.SetValue(nativeScalar(t))
	}
}

func nativeScalar(x any) any {
	switch t := x.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			if int64(int32(i)) == i {
				return int(i)
			}
			return i
		}
		f, _ := t.Float64()
		return f
	case float64:
		if t == float64(int64(t)) {
			i := int64(t)
			if int64(int32(i)) == i {
				return int(i)
			}
			return i
		}
		return t
	}
	return x
}

// Native renders the value in the shape accepted by ValueFromNative.
func (v *Value) Native() any {
	names := v.ChildNames()
	if len(names) == 0 {
		return v.Scalar()
	}
	out := make(map[string]any, len(names)+1)
	if v.IsDefined() {
		out["$"] = v.Scalar()
	}
	for _, name := range names {
		items := v.Children(name).Values()
		if len(items) == 1 {
			out[name] = items[0].Native()
			continue
		}
		list := make([]any, len(items))
		for i, item := range items {
			list[i] = item.Native()
		}
		out[name] = list
	}
	return out
}
