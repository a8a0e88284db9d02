package demo_test

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/aretw0/weft"
	"github.com/aretw0/weft/internal/demo"
	"github.com/aretw0/weft/pkg/adapters/memory"
	"github.com/aretw0/weft/pkg/domain"
	"github.com/aretw0/weft/pkg/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func start(t *testing.T, p weft.Program) (*weft.Interpreter, *demo.Client) {
	t.Helper()
	itp, err := weft.New(p, weft.WithStateStore(memory.NewStore()))
	require.NoError(t, err)
	require.NoError(t, itp.Start(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = itp.Shutdown(ctx)
	})
	return itp, &demo.Client{Receiver: itp, Timeout: 2 * time.Second}
}

func TestCalculator(t *testing.T) {
	_, c := start(t, demo.Calculator())
	ctx := context.Background()

	reply, err := c.Call(ctx, "sum", map[string]any{"a": 2, "b": 3}, "")
	require.NoError(t, err)
	assert.Equal(t, 5, reply.Payload().IntValue())

	reply, err = c.Call(ctx, "sum", map[string]any{"a": "two", "b": 3}, "")
	assert.Error(t, err)
	require.True(t, reply.IsFault())
	assert.Equal(t, domain.FaultTypeMismatch, reply.Fault().Name)
}

func TestCounter(t *testing.T) {
	itp, c := start(t, demo.Counter())
	ctx := context.Background()

	reply, err := c.Call(ctx, "start", nil, "")
	require.NoError(t, err)
	session := reply.SessionID()
	require.NotEmpty(t, session)

	for _, n := range []int{3, 4} {
		reply, err := c.Call(ctx, "add", n, session)
		require.NoError(t, err)
		assert.True(t, reply.IsAck())
	}

	reply, err = c.Call(ctx, "get", nil, session)
	require.NoError(t, err)
	assert.Equal(t, 7, reply.Payload().IntValue())

	snapshot, err := itp.Wait(ctx, session)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, snapshot.Status)
	assert.Equal(t, 7, snapshot.Root.FirstChild("count").IntValue())
}

func TestBooking(t *testing.T) {
	_, c := start(t, demo.Booking())
	ctx := context.Background()

	book := func(seats int) *domain.Message {
		reply, err := c.Call(ctx, "book", map[string]any{"seats": seats}, "")
		require.NoError(t, err)
		return reply
	}

	assert.Equal(t, 2, book(2).Payload().IntValue())

	// Overdrawing faults and gives the seats back.
	reply := book(4)
	require.True(t, reply.IsFault())
	assert.Equal(t, demo.FaultSoldOut, reply.Fault().Name)
	assert.Equal(t, 4, reply.Fault().Payload.IntValue())

	assert.Equal(t, 3, book(3).Payload().IntValue())

	reply = book(1)
	require.True(t, reply.IsFault())
	assert.Equal(t, demo.FaultSoldOut, reply.Fault().Name)
}

func TestBooking_Concurrent(t *testing.T) {
	_, c := start(t, demo.Booking())
	ctx := context.Background()

	results := make(chan *domain.Message, demo.Capacity*2)
	for range demo.Capacity * 2 {
		go func() {
			reply, _ := c.Call(ctx, "book", map[string]any{"seats": 1}, "")
			results <- reply
		}()
	}

	held := 0
	for range demo.Capacity * 2 {
		reply := <-results
		require.NotNil(t, reply)
		if !reply.IsFault() {
			held += reply.Payload().IntValue()
		}
	}
	assert.Equal(t, demo.Capacity, held)
}

func TestRun(t *testing.T) {
	for _, s := range demo.Scenarios() {
		t.Run(s.Name, func(t *testing.T) {
			var out bytes.Buffer
			require.NoError(t, demo.Run(context.Background(), s, &out, weft.WithStateStore(memory.NewStore())))
			assert.Contains(t, out.String(), "== "+s.Name+" ==")
		})
	}

	var out bytes.Buffer
	s, ok := demo.Lookup("booking")
	require.True(t, ok)
	require.NoError(t, demo.Run(context.Background(), s, &out))
	assert.Contains(t, out.String(), "book(2) -> 2")
	assert.Contains(t, out.String(), "book(4) -> fault SoldOut(4)")
	assert.Contains(t, out.String(), "book(1) -> fault SoldOut(1)")

	_, ok = demo.Lookup("nope")
	assert.False(t, ok)
}

func TestRegister(t *testing.T) {
	r := registry.NewRegistry()
	demo.Register(r)
	assert.Equal(t, []string{"booking", "calculator", "counter"}, r.Names())

	p, err := r.Program("counter")
	require.NoError(t, err)
	assert.Equal(t, "counter", p.Name)
}
