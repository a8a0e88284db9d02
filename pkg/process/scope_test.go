package process_test

import (
	"context"
	"testing"

	"github.com/aretw0/weft/pkg/domain"
	"github.com/aretw0/weft/pkg/process"
	"github.com/aretw0/weft/pkg/runtime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func handlers(h map[string]runtime.Process) *process.Install {
	return &process.Install{Handlers: h}
}

func TestScope_HandlerCatchesFault(t *testing.T) {
	th := newThread()
	scope := &process.Scope{ID: "s", Body: process.Seq(
		handlers(map[string]runtime.Process{
			"F": process.Seq(
				&process.DeepCopy{Path: path("seenPayload"), Expr: path("s.F")},
				&process.Assign{Path: path("seenName"), Expr: path("s.default")},
			),
		}),
		&process.Throw{Name: "F", Expr: process.Val("detail")},
		set("after", true),
	)}

	require.NoError(t, scope.Run(context.Background(), th), "a handled fault does not leave the scope")

	assert.Equal(t, "detail", get(t, th, "seenPayload").StrValue())
	assert.Equal(t, "F", get(t, th, "seenName").StrValue())
	assert.False(t, has(t, th, "after"))
	assert.False(t, has(t, th, "s"), "the scope variable is cleared once the handler ends")
}

func TestScope_UnhandledFaultPropagatesToParent(t *testing.T) {
	th := newThread()
	inner := &process.Scope{ID: "inner", Body: process.Seq(
		handlers(map[string]runtime.Process{"F": set("innerRan", true)}),
		&process.Throw{Name: "G"},
	)}
	outer := &process.Scope{ID: "outer", Body: process.Seq(
		handlers(map[string]runtime.Process{
			"G": &process.Assign{Path: path("outerSaw"), Expr: path("outer.default")},
		}),
		inner,
	)}

	require.NoError(t, outer.Run(context.Background(), th))

	assert.False(t, has(t, th, "innerRan"))
	assert.Equal(t, "G", get(t, th, "outerSaw").StrValue())
	assert.False(t, has(t, th, "inner"))
	assert.False(t, has(t, th, "outer"))
}

func TestScope_DefaultHandlerCatchesAnyFault(t *testing.T) {
	th := newThread()
	scope := &process.Scope{ID: "s", Body: process.Seq(
		handlers(map[string]runtime.Process{
			domain.DefaultHandler: &process.Assign{Path: path("caught"), Expr: path("s.default")},
		}),
		&process.Throw{Name: "Whatever"},
	)}

	require.NoError(t, scope.Run(context.Background(), th))
	assert.Equal(t, "Whatever", get(t, th, "caught").StrValue())
}

func TestScope_FaultVariableDoesNotLeakAcrossRuns(t *testing.T) {
	th := newThread()
	throwing := &process.Scope{ID: "s", Body: process.Seq(
		handlers(map[string]runtime.Process{"F": set("handled", true)}),
		&process.Throw{Name: "F"},
	)}
	quiet := &process.Scope{ID: "s", Body: &process.Assign{Path: path("seen"), Expr: path("s.default")}}

	require.NoError(t, throwing.Run(context.Background(), th))
	require.NoError(t, quiet.Run(context.Background(), th))

	assert.True(t, get(t, th, "handled").BoolValue())
	assert.False(t, get(t, th, "seen").IsDefined(), "a later scope must not see the earlier fault")
}

func TestScope_FaultInHandlerGoesToEnclosingScope(t *testing.T) {
	th := newThread()
	inner := &process.Scope{ID: "inner", Body: process.Seq(
		handlers(map[string]runtime.Process{
			"F": &process.Throw{Name: "H"},
			"H": set("innerCaughtH", true),
		}),
		&process.Throw{Name: "F"},
	)}

	err := inner.Run(context.Background(), th)

	f, ok := domain.AsFault(err)
	require.True(t, ok)
	assert.Equal(t, "H", f.Name)
	assert.False(t, has(t, th, "innerCaughtH"), "handlers are erased once one has been picked")
}

func TestScope_CompensationRunsOnKill(t *testing.T) {
	th := newThread()
	scope := &process.Scope{ID: "s", Body: process.Seq(
		handlers(map[string]runtime.Process{
			process.CompensationKey: process.PostIncrement(path("compensated")),
		}),
		killer("Stop"),
		set("after", true),
	)}

	require.NoError(t, scope.Run(context.Background(), th))

	assert.Equal(t, 1, get(t, th, "compensated").IntValue())
	assert.False(t, has(t, th, "after"))
	require.True(t, th.IsKilled(), "the kill is restored after compensation")
	assert.Equal(t, "Stop", th.KillerFault().Name)
}

func TestCompensate_RunsCompletedScopeCompensationOnce(t *testing.T) {
	th := newThread()
	outer := &process.Scope{ID: "outer", Body: process.Seq(
		&process.Scope{ID: "booking", Body: process.Seq(
			set("booked", true),
			handlers(map[string]runtime.Process{
				process.CompensationKey: set("booked", false),
			}),
		)},
		&process.Compensate{ID: "booking"},
		process.PostIncrement(path("calls")),
		&process.Compensate{ID: "booking"},
		&process.Compensate{ID: "unknown"},
	)}

	require.NoError(t, outer.Run(context.Background(), th))

	assert.False(t, get(t, th, "booked").BoolValue())
	assert.Equal(t, 1, get(t, th, "calls").IntValue())
}

func TestScope_HooksObserveHandlers(t *testing.T) {
	var events []string
	hooks := domain.LifecycleHooks{
		OnFault: func(_ context.Context, e *domain.FaultEvent) {
			events = append(events, "fault:"+e.Scope+":"+e.Fault)
		},
		OnFaultHandlerStart: func(_ context.Context, e *domain.FaultEvent) {
			events = append(events, "start:"+e.Fault)
		},
		OnFaultHandlerEnd: func(_ context.Context, e *domain.FaultEvent) {
			events = append(events, "end:"+e.Fault)
		},
	}
	th := newThread(runtime.WithHooks(hooks))
	scope := &process.Scope{ID: "s", Body: process.Seq(
		handlers(map[string]runtime.Process{"F": process.Null{}}),
		&process.Throw{Name: "F"},
	)}

	require.NoError(t, scope.Run(context.Background(), th))
	assert.Equal(t, []string{"fault:s:F", "start:F", "end:F"}, events)
}
