package domain_test

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/aretw0/weft/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValue_ScalarCoercion(t *testing.T) {
	tests := []struct {
		name   string
		value  *domain.Value
		kind   domain.Kind
		str    string
		long   int64
		double float64
		b      bool
	}{
		{"undefined", domain.NewValue(), domain.KindUndefined, "", 0, 0, false},
		{"int", domain.NewInt(42), domain.KindInt, "42", 42, 42, true},
		{"long", domain.NewLong(1 << 40), domain.KindLong, "1099511627776", 1 << 40, 1 << 40, true},
		{"double", domain.NewDouble(2.5), domain.KindDouble, "2.5", 2, 2.5, true},
		{"bool", domain.NewBool(true), domain.KindBool, "true", 1, 1, true},
		{"numeric string", domain.NewString("17"), domain.KindString, "17", 17, 17, false},
		{"bytes", domain.NewBytes([]byte("raw")), domain.KindBytes, "raw", 0, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.kind, tt.value.Kind())
			assert.Equal(t, tt.str, tt.value.StrValue())
			assert.Equal(t, tt.long, tt.value.LongValue())
			assert.Equal(t, tt.double, tt.value.DoubleValue())
			assert.Equal(t, tt.b, tt.value.BoolValue())
		})
	}
}

func TestValue_ScalarAndChildrenCoexist(t *testing.T) {
	v := domain.NewString("root")
	v.FirstChild("a").SetValue(1)
	v.Children("b").Get(2).SetValue("third")

	assert.Equal(t, "root", v.StrValue())
	assert.Equal(t, []string{"a", "b"}, v.ChildNames())
	assert.Equal(t, 3, v.Children("b").Size(), "vectors are never sparse")
	assert.False(t, v.Children("b").Get(0).IsDefined())
	assert.Equal(t, "third", v.Children("b").Get(2).StrValue())
}

func TestValueVector_RemoveShifts(t *testing.T) {
	vec := domain.NewValueVector()
	for i := 0; i < 4; i++ {
		vec.Append(domain.NewInt(i))
	}

	vec.Remove(1)
	vec.Remove(10)

	require.Equal(t, 3, vec.Size())
	assert.Equal(t, 0, vec.Get(0).IntValue())
	assert.Equal(t, 2, vec.Get(1).IntValue())
	assert.Equal(t, 3, vec.Get(2).IntValue())
}

func TestValue_CloneIsIndependent(t *testing.T) {
	v := domain.NewInt(1)
	v.FirstChild("x").SetValue("before")

	c := v.Clone()
	v.FirstChild("x").SetValue("after")
	v.SetValue(2)

	assert.Equal(t, 1, c.IntValue())
	assert.Equal(t, "before", c.FirstChild("x").StrValue())
	assert.True(t, c.Equal(c.Clone()))
	assert.False(t, c.Equal(v))
}

func TestValue_DeepCopyKeepsUnrelatedChildren(t *testing.T) {
	dst := domain.NewValue()
	dst.FirstChild("keep").SetValue(true)
	dst.FirstChild("x").SetValue("old")

	src := domain.NewValue()
	src.FirstChild("x").SetValue("new")

	dst.DeepCopy(src)

	assert.True(t, dst.FirstChild("keep").BoolValue())
	assert.Equal(t, "new", dst.FirstChild("x").StrValue())
}

func TestValue_Arithmetic(t *testing.T) {
	tests := []struct {
		name  string
		left  *domain.Value
		op    func(l, r *domain.Value) error
		right *domain.Value
		want  any
	}{
		{"int plus int", domain.NewInt(2), (*domain.Value).Add, domain.NewInt(3), 5},
		{"int plus long widens", domain.NewInt(2), (*domain.Value).Add, domain.NewLong(3), int64(5)},
		{"int times double widens", domain.NewInt(2), (*domain.Value).Multiply, domain.NewDouble(1.5), 3.0},
		{"string concat", domain.NewString("a"), (*domain.Value).Add, domain.NewInt(1), "a1"},
		{"undefined plus", domain.NewValue(), (*domain.Value).Add, domain.NewInt(7), 7},
		{"undefined minus", domain.NewValue(), (*domain.Value).Subtract, domain.NewInt(7), -7},
		{"integer division", domain.NewInt(7), (*domain.Value).Divide, domain.NewInt(2), 3},
		{"modulo", domain.NewInt(7), (*domain.Value).Modulo, domain.NewInt(4), 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, tt.op(tt.left, tt.right))
			assert.Equal(t, tt.want, tt.left.Scalar())
		})
	}
}

func TestValue_DivisionByZero(t *testing.T) {
	err := domain.NewInt(1).Divide(domain.NewInt(0))
	assert.True(t, errors.Is(err, domain.ErrArithmetic))

	err = domain.NewString("a").Subtract(domain.NewInt(1))
	assert.ErrorIs(t, err, domain.ErrArithmetic)
}

func TestValue_JSONPreservesKindsAndOrder(t *testing.T) {
	v := domain.NewLong(5)
	v.FirstChild("zeta").SetValue(1)
	v.FirstChild("alpha").SetValue(2.0)
	v.Children("list").Append(domain.NewString("a"))
	v.Children("list").Append(domain.NewBool(false))

	data, err := json.Marshal(v)
	require.NoError(t, err)

	got := domain.NewValue()
	require.NoError(t, json.Unmarshal(data, got))

	assert.True(t, v.Equal(got))
	assert.Equal(t, domain.KindLong, got.Kind())
	assert.Equal(t, domain.KindDouble, got.FirstChild("alpha").Kind())
	assert.Equal(t, []string{"zeta", "alpha", "list"}, got.ChildNames())
}

func TestValueFromNative(t *testing.T) {
	var native map[string]any
	require.NoError(t, json.Unmarshal([]byte(`{"$":"head","n":3,"items":[1,2.5],"nested":{"ok":true}}`), &native))

	v := domain.ValueFromNative(native)

	assert.Equal(t, "head", v.StrValue())
	assert.Equal(t, domain.KindInt, v.FirstChild("n").Kind())
	assert.Equal(t, 2, v.Children("items").Size())
	assert.Equal(t, 2.5, v.Children("items").Get(1).DoubleValue())
	assert.True(t, v.FirstChild("nested").FirstChild("ok").BoolValue())

	back := v.Native().(map[string]any)
	assert.Equal(t, "head", back["$"])
	assert.Equal(t, []any{1, 2.5}, back["items"])
}
