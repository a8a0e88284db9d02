package process_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aretw0/weft/pkg/domain"
	"github.com/aretw0/weft/pkg/process"
	"github.com/aretw0/weft/pkg/runtime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSynchronized_MutualExclusion(t *testing.T) {
	th := newThread()
	var inside, peak atomic.Int32
	critical := &fn{killable: true, run: func(context.Context, *runtime.Thread) error {
		now := inside.Add(1)
		for {
			old := peak.Load()
			if now <= old || peak.CompareAndSwap(old, now) {
				break
			}
		}
		time.Sleep(time.Millisecond)
		inside.Add(-1)
		return nil
	}}
	branches := make([]runtime.Process, 10)
	for i := range branches {
		branches[i] = &process.Synchronized{ID: "counter", Body: critical}
	}

	require.NoError(t, process.Par(branches...).Run(context.Background(), th))

	assert.Equal(t, int32(1), peak.Load())
	assert.Zero(t, th.Env().Locks().Active())
}

func TestSynchronized_Reentrant(t *testing.T) {
	tests := []struct {
		name string
		body runtime.Process
	}{
		{
			name: "Nested",
			body: &process.Synchronized{ID: "x", Body: set("inner", true)},
		},
		{
			name: "Nested In Forked Branch",
			body: process.Par(
				&process.Synchronized{ID: "x", Body: set("inner", true)},
				&process.Synchronized{ID: "y", Body: &process.Synchronized{ID: "x", Body: set("other", true)}},
			),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			th := newThread()
			outer := &process.Synchronized{ID: "x", Body: tt.body}

			require.NoError(t, wait(t, start(context.Background(), outer, th)))

			assert.True(t, get(t, th, "inner").BoolValue())
			assert.False(t, th.HoldsLock("x"))
			assert.Zero(t, th.Env().Locks().Active())
		})
	}
}

func TestSynchronized_KillWhileWaitingForLock(t *testing.T) {
	th := newThread()
	holder := runtime.NewThread(th.Env(), "holder", nil)
	release := make(chan struct{})
	entered := make(chan struct{})
	hold := &process.Synchronized{ID: "k", Body: &fn{killable: true, run: func(context.Context, *runtime.Thread) error {
		close(entered)
		<-release
		return nil
	}}}
	holding := start(context.Background(), hold, holder)
	<-entered

	waiter := &process.Synchronized{ID: "k", Body: set("entered", true)}
	done := start(context.Background(), waiter, th)
	th.Kill(domain.NewFault("Stop", nil))

	require.NoError(t, wait(t, done))
	assert.False(t, has(t, th, "entered"))
	close(release)
	require.NoError(t, wait(t, holding))
}

func TestLinks_Rendezvous(t *testing.T) {
	th := newThread()
	par := process.Par(
		process.Seq(&process.LinkIn{Link: "ready"}, &process.Assign{Path: path("seen"), Expr: path("value")}),
		process.Seq(set("value", 42), &process.LinkOut{Link: "ready"}),
	)

	require.NoError(t, wait(t, start(context.Background(), par, th)))

	assert.Equal(t, 42, get(t, th, "seen").IntValue())
	assert.Zero(t, th.Env().Links().Pending("ready"))
}
