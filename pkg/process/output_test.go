package process_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aretw0/weft/pkg/correlation"
	"github.com/aretw0/weft/pkg/domain"
	"github.com/aretw0/weft/pkg/process"
	"github.com/aretw0/weft/pkg/runtime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withPort(ch *fakeChannel) runtime.EnvOption {
	return runtime.WithOutputPort(&fakePort{name: "calc", ch: ch})
}

func TestSolicitResponse_BindsReplyAndRunsInstall(t *testing.T) {
	ch := &fakeChannel{respond: func(req *domain.Message) *domain.Message {
		return domain.NewResponse(req, domain.NewInt(req.Payload().FirstChild("a").IntValue()*2))
	}}
	th := newThread(withPort(ch))
	sr := &process.SolicitResponse{
		Port:    "calc",
		Op:      domain.NewRequestResponse("double", nil, intType, nil),
		Output:  path("req"),
		Input:   path("res"),
		Install: set("installed", true),
	}
	get(t, th, "req.a").SetValue(21)

	require.NoError(t, sr.Run(context.Background(), th))

	assert.Equal(t, 42, get(t, th, "res").IntValue())
	assert.True(t, get(t, th, "installed").BoolValue())
	sent := ch.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "/calc", sent[0].ResourcePath())
	id, err := correlation.DecodeToken(sent[0].Token())
	require.NoError(t, err)
	assert.Equal(t, sent[0].ID(), id, "requests carry their id as correlation token")
	assert.Equal(t, 1, ch.Released())
}

func TestSolicitResponse_TimeoutRaisesFault(t *testing.T) {
	ch := &fakeChannel{}
	th := newThread(withPort(ch))
	timeout := 50 * time.Millisecond
	sr := &process.SolicitResponse{
		Port:    "calc",
		Op:      domain.NewRequestResponse("slow", nil, nil, nil),
		Timeout: timeout,
	}

	began := time.Now()
	err := sr.Run(context.Background(), th)
	elapsed := time.Since(began)

	f, ok := domain.AsFault(err)
	require.True(t, ok)
	assert.Equal(t, domain.FaultTimeout, f.Name)
	assert.GreaterOrEqual(t, elapsed, timeout)
	assert.Less(t, elapsed, timeout+500*time.Millisecond)
	assert.Equal(t, 1, ch.Released())
	assert.False(t, th.IsKilled(), "a timeout is an ordinary fault, not a kill")
}

func TestSolicitResponse_TimeoutIsCatchable(t *testing.T) {
	ch := &fakeChannel{}
	th := newThread(withPort(ch))
	scope := &process.Scope{ID: "call", Body: process.Seq(
		handlers(map[string]runtime.Process{domain.FaultTimeout: set("timedOut", true)}),
		&process.SolicitResponse{Port: "calc", Op: domain.NewRequestResponse("slow", nil, nil, nil), Timeout: 10 * time.Millisecond},
	)}

	require.NoError(t, scope.Run(context.Background(), th))
	assert.True(t, get(t, th, "timedOut").BoolValue())
}

func TestSolicitResponse_UsesEnvironmentTimeout(t *testing.T) {
	ch := &fakeChannel{}
	th := newThread(withPort(ch), runtime.WithResponseTimeout(20*time.Millisecond))
	sr := &process.SolicitResponse{Port: "calc", Op: domain.NewRequestResponse("slow", nil, nil, nil)}

	err := wait(t, start(context.Background(), sr, th))

	f, ok := domain.AsFault(err)
	require.True(t, ok)
	assert.Equal(t, domain.FaultTimeout, f.Name)
}

func TestSolicitResponse_KillEndsWaitSilently(t *testing.T) {
	ch := &fakeChannel{}
	th := newThread(withPort(ch))
	sr := &process.SolicitResponse{Port: "calc", Op: domain.NewRequestResponse("slow", nil, nil, nil), Timeout: time.Minute}

	done := start(context.Background(), sr, th)
	require.Eventually(t, func() bool { return len(ch.Sent()) == 1 }, time.Second, time.Millisecond)
	th.Kill(domain.NewFault("Stop", nil))

	require.NoError(t, wait(t, done))
	assert.Equal(t, 1, ch.Released())
}

func TestSolicitResponse_FaultReply(t *testing.T) {
	faults := map[string]domain.Type{"NotFound": kindType{domain.KindString}}
	cases := []struct {
		name    string
		payload *domain.Value
		want    string
	}{
		{name: "declared", payload: domain.NewString("no such item"), want: "NotFound"},
		{name: "malformed payload", payload: domain.NewInt(404), want: domain.FaultTypeMismatch},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ch := &fakeChannel{respond: func(req *domain.Message) *domain.Message {
				return domain.NewFaultResponse(req, domain.NewFault("NotFound", tc.payload))
			}}
			th := newThread(withPort(ch))
			sr := &process.SolicitResponse{
				Port:  "calc",
				Op:    domain.NewRequestResponse("find", nil, nil, faults),
				Input: path("res"),
			}

			err := sr.Run(context.Background(), th)

			f, ok := domain.AsFault(err)
			require.True(t, ok)
			assert.Equal(t, tc.want, f.Name)
			assert.False(t, has(t, th, "res"), "a fault reply is not bound")
			assert.Equal(t, 1, ch.Released())
		})
	}
}

func TestSolicitResponse_MalformedResponse(t *testing.T) {
	ch := &fakeChannel{respond: func(req *domain.Message) *domain.Message {
		return domain.NewResponse(req, domain.NewString("oops"))
	}}
	th := newThread(withPort(ch))
	sr := &process.SolicitResponse{Port: "calc", Op: domain.NewRequestResponse("double", nil, intType, nil)}

	err := sr.Run(context.Background(), th)

	f, ok := domain.AsFault(err)
	require.True(t, ok)
	assert.Equal(t, domain.FaultTypeMismatch, f.Name)
	assert.Contains(t, f.Message(), "Received message TypeMismatch (double@calc)")
}

func TestSolicitResponse_RequestTypeMismatchSendsNothing(t *testing.T) {
	ch := &fakeChannel{}
	th := newThread(withPort(ch))
	sr := &process.SolicitResponse{
		Port:   "calc",
		Op:     domain.NewRequestResponse("double", intType, intType, nil),
		Output: process.Val("two"),
	}

	err := sr.Run(context.Background(), th)

	f, ok := domain.AsFault(err)
	require.True(t, ok)
	assert.Equal(t, domain.FaultTypeMismatch, f.Name)
	assert.Empty(t, ch.Sent())
	assert.Zero(t, ch.Released(), "no channel is opened for an invalid request")
}

func TestOutput_PortFailuresAreIOFaults(t *testing.T) {
	op := domain.NewRequestResponse("double", nil, nil, nil)

	t.Run("unknown port", func(t *testing.T) {
		th := newThread()
		err := (&process.SolicitResponse{Port: "nowhere", Op: op}).Run(context.Background(), th)
		f, ok := domain.AsFault(err)
		require.True(t, ok)
		assert.Equal(t, domain.FaultIOException, f.Name)
	})

	t.Run("send failure", func(t *testing.T) {
		ch := &fakeChannel{sendErr: errors.New("connection refused")}
		th := newThread(withPort(ch))
		err := (&process.SolicitResponse{Port: "calc", Op: op}).Run(context.Background(), th)
		f, ok := domain.AsFault(err)
		require.True(t, ok)
		assert.Equal(t, domain.FaultIOException, f.Name)
		assert.Equal(t, 1, ch.Released())
	})
}

func TestNotification_WaitsForAck(t *testing.T) {
	acked := make(chan struct{})
	ch := &fakeChannel{ack: func(req *domain.Message) *domain.Message {
		close(acked)
		return domain.NewAck(req)
	}}
	th := newThread(withPort(ch))
	n := &process.Notification{Port: "calc", Op: domain.NewOneWay("log", nil), Output: process.Val("hi")}

	require.NoError(t, n.Run(context.Background(), th))

	<-acked
	sent := ch.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "hi", sent[0].Payload().StrValue())
	assert.Equal(t, 1, ch.Released())
}

func TestNotification_AckFaults(t *testing.T) {
	cases := []struct {
		fault  string
		raised bool
	}{
		{fault: domain.FaultIOException, raised: true},
		{fault: domain.FaultCorrelationError, raised: true},
		{fault: domain.FaultTypeMismatch, raised: true},
		{fault: "SomethingElse", raised: false},
	}
	for _, tc := range cases {
		t.Run(tc.fault, func(t *testing.T) {
			ch := &fakeChannel{ack: func(req *domain.Message) *domain.Message {
				return domain.NewFaultResponse(req, domain.NewFault(tc.fault, nil))
			}}
			th := newThread(withPort(ch))
			n := &process.Notification{Port: "calc", Op: domain.NewOneWay("log", nil)}

			err := n.Run(context.Background(), th)

			if !tc.raised {
				assert.NoError(t, err, "unexpected ack faults are only logged")
				return
			}
			f, ok := domain.AsFault(err)
			require.True(t, ok)
			assert.Equal(t, tc.fault, f.Name)
		})
	}
}

func TestNotification_RequestTypeMismatch(t *testing.T) {
	ch := &fakeChannel{}
	th := newThread(withPort(ch))
	n := &process.Notification{Port: "calc", Op: domain.NewOneWay("log", intType), Output: process.Val("text")}

	err := n.Run(context.Background(), th)

	f, ok := domain.AsFault(err)
	require.True(t, ok)
	assert.Equal(t, domain.FaultTypeMismatch, f.Name)
	assert.Contains(t, f.Message(), "Output message TypeMismatch (operation log)")
	assert.Empty(t, ch.Sent())
}
