package runtime_test

import (
	"context"
	"testing"

	"github.com/aretw0/weft/pkg/domain"
	"github.com/aretw0/weft/pkg/runtime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newThread() *runtime.Thread {
	return runtime.NewThread(runtime.NewEnv(), "s-1", nil)
}

func TestVariablePath_CreatesOnWrite(t *testing.T) {
	ctx := context.Background()
	th := newThread()

	v, err := runtime.ParsePath("a.b[2].c").Value(ctx, th)
	require.NoError(t, err)
	v.SetValue("deep")

	root := th.State().Root()
	assert.Equal(t, 3, root.FirstChild("a").Children("b").Size())
	assert.Equal(t, "deep", root.FirstChild("a").Children("b").Get(2).FirstChild("c").StrValue())
}

func TestVariablePath_PointerAliasVisibility(t *testing.T) {
	ctx := context.Background()
	th := newThread()
	a := runtime.ParsePath("a")
	b := runtime.ParsePath("data.b")

	require.NoError(t, a.MakePointer(ctx, th, b))

	va, err := a.Value(ctx, th)
	require.NoError(t, err)
	va.SetValue(10)
	vb, err := b.Value(ctx, th)
	require.NoError(t, err)
	assert.Equal(t, 10, vb.IntValue(), "write through the alias is visible at the target")

	vb.FirstChild("x").SetValue("y")
	va, err = a.Value(ctx, th)
	require.NoError(t, err)
	assert.Equal(t, "y", va.FirstChild("x").StrValue(), "write at the target is visible through the alias")

	sub, err := runtime.ParsePath("a.x").Value(ctx, th)
	require.NoError(t, err)
	assert.Same(t, vb.FirstChild("x"), sub, "sub-paths resolve through the alias without copying")
}

func TestVariablePath_PointerFollowsCurrentTarget(t *testing.T) {
	ctx := context.Background()
	th := newThread()
	require.NoError(t, runtime.ParsePath("p").MakePointer(ctx, th, runtime.ParsePath("q")))
	require.NoError(t, runtime.ParsePath("q").MakePointer(ctx, th, runtime.ParsePath("r")))

	v, err := runtime.ParsePath("p").Value(ctx, th)
	require.NoError(t, err)
	v.SetValue("through two hops")

	r, err := runtime.ParsePath("r").Value(ctx, th)
	require.NoError(t, err)
	assert.Equal(t, "through two hops", r.StrValue())
}

func TestVariablePath_AliasCycleIsDiagnosed(t *testing.T) {
	ctx := context.Background()
	th := newThread()
	require.NoError(t, runtime.ParsePath("a").MakePointer(ctx, th, runtime.ParsePath("a.child")))

	_, err := runtime.ParsePath("a").Value(ctx, th)
	assert.ErrorIs(t, err, domain.ErrAliasCycle)
}

func TestVariablePath_UndefAliasKeepsTarget(t *testing.T) {
	ctx := context.Background()
	th := newThread()
	a, b := runtime.ParsePath("a"), runtime.ParsePath("b")
	require.NoError(t, a.MakePointer(ctx, th, b))
	va, err := a.Value(ctx, th)
	require.NoError(t, err)
	va.SetValue(1)

	require.NoError(t, a.Undef(ctx, th))

	assert.Zero(t, th.State().Aliases())
	vb, err := b.Value(ctx, th)
	require.NoError(t, err)
	assert.Equal(t, 1, vb.IntValue())
}

func TestVariablePath_UndefElementShifts(t *testing.T) {
	ctx := context.Background()
	th := newThread()
	vec := th.State().Root().Children("list")
	for i := 0; i < 3; i++ {
		vec.Append(domain.NewInt(i))
	}

	require.NoError(t, runtime.ParsePath("list[0]").Undef(ctx, th))
	assert.Equal(t, 2, vec.Size())
	assert.Equal(t, 1, vec.Get(0).IntValue())

	require.NoError(t, runtime.ParsePath("list").Undef(ctx, th))
	assert.False(t, th.State().Root().HasChildren("list"))
}

func TestVariablePath_Global(t *testing.T) {
	ctx := context.Background()
	env := runtime.NewEnv()
	one := runtime.NewThread(env, "s-1", nil)
	two := runtime.NewThread(env, "s-2", nil)

	v, err := runtime.ParsePath("counter").Global().Value(ctx, one)
	require.NoError(t, err)
	v.SetValue(5)

	got, err := runtime.ParsePath("counter").Global().Value(ctx, two)
	require.NoError(t, err)
	assert.Equal(t, 5, got.IntValue())
	assert.False(t, two.State().Root().HasChildren("counter"))
}

func TestParsePath_String(t *testing.T) {
	assert.Equal(t, "a.b[2].c", runtime.ParsePath("a.b[2].c").String())
	assert.Panics(t, func() { runtime.ParsePath("a..b") })
	assert.Panics(t, func() { runtime.ParsePath("a[x]") })
}
