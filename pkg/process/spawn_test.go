package process_test

import (
	"context"
	"sync"
	"testing"

	"github.com/aretw0/weft/pkg/domain"
	"github.com/aretw0/weft/pkg/process"
	"github.com/aretw0/weft/pkg/runtime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpawn_FanOut(t *testing.T) {
	const n = 8
	th := newThread()
	get(t, th, "shared").SetValue("parent")

	var mu sync.Mutex
	seen := map[int]int{}
	spawn := &process.Spawn{
		Index: path("i"),
		Bound: process.Val(n),
		In:    path("res"),
		Body: process.Seq(
			&fn{killable: true, run: func(ctx context.Context, child *runtime.Thread) error {
				v, err := path("i").Value(ctx, child)
				if err != nil {
					return err
				}
				mu.Lock()
				seen[v.IntValue()]++
				mu.Unlock()
				return nil
			}},
			set("shared", "child"),
			&process.Assign{Path: path("res"), Expr: &process.Binary{
				Op:       process.OpProd,
				Operands: []runtime.Expression{path("i"), process.Val(10)},
			}},
		),
	}

	require.NoError(t, spawn.Run(context.Background(), th))

	require.Len(t, seen, n, "every index is observed")
	for i := 0; i < n; i++ {
		assert.Equal(t, 1, seen[i], "index %d runs exactly once", i)
	}
	res := th.State().Root().Children("res")
	require.Equal(t, n, res.Size())
	for i := 0; i < n; i++ {
		assert.Equal(t, i*10, res.Get(i).IntValue())
	}
	assert.Equal(t, "parent", get(t, th, "shared").StrValue(), "forks work on their own copy of the state")
	assert.False(t, has(t, th, "i"))
}

func TestSpawn_ZeroBoundRunsNothing(t *testing.T) {
	th := newThread()
	spawn := &process.Spawn{Index: path("i"), Bound: process.Val(0), Body: killer("never")}

	require.NoError(t, spawn.Run(context.Background(), th))
	assert.False(t, th.IsKilled())
}

func TestSpawn_FaultStopsTheOthers(t *testing.T) {
	th := newThread()
	spawn := &process.Spawn{
		Index: path("i"),
		Bound: process.Val(4),
		Body: &process.If{
			Branches: []process.CondBranch{{
				Cond: &process.Compare{Op: process.OpEqual, Left: path("i"), Right: process.Val(0)},
				Body: &process.Throw{Name: "Bad"},
			}},
			Else: &process.LinkIn{Link: "forever"},
		},
	}

	err := wait(t, start(context.Background(), spawn, th))

	f, ok := domain.AsFault(err)
	require.True(t, ok)
	assert.Equal(t, "Bad", f.Name)
}

func TestSpawn_CopyResolvesBoundAtRunTime(t *testing.T) {
	th := newThread()
	get(t, th, "n").SetValue(3)
	spawn := &process.Spawn{Index: path("i"), Bound: path("n"), In: path("out"), Body: set("out", 1)}

	cp := spawn.Copy(runtime.ReasonReuse)
	get(t, th, "n").SetValue(5)

	require.NoError(t, cp.Run(context.Background(), th))
	assert.Equal(t, 5, th.State().Root().Children("out").Size())
}
