package runtime_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aretw0/weft/pkg/domain"
	"github.com/aretw0/weft/pkg/runtime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func inbound(op string) runtime.SessionMessage {
	return runtime.SessionMessage{Message: domain.NewRequest(op, "", nil)}
}

func TestCorrelator_OneRegistrationFiresOnce(t *testing.T) {
	c := runtime.NewCorrelator()
	c.OpenSession("s")

	f := c.RequestMessage("s", "A", "B")
	require.NoError(t, c.Deliver(inbound("A")))

	sm, ok := f.Value()
	require.True(t, ok)
	assert.Equal(t, "A", sm.Message.Operation())
	assert.Zero(t, c.Waiting("B"), "the other branch is withdrawn")

	require.NoError(t, c.Deliver(inbound("B")))
	assert.Equal(t, 1, c.Queued(), "B is queued, not consumed by the finished registration")
}

func TestCorrelator_QueuedMessageCompletesImmediately(t *testing.T) {
	c := runtime.NewCorrelator()
	c.OpenSession("s", inbound("start"))
	require.NoError(t, c.Deliver(inbound("later")))

	f := c.RequestMessage("s", "later")
	sm, ok := f.Value()
	require.True(t, ok)
	assert.Equal(t, "later", sm.Message.Operation())

	f = c.RequestMessage("s", "start")
	_, ok = f.Value()
	assert.True(t, ok)
	assert.Zero(t, c.Queued())
}

func TestCorrelator_DrainShared(t *testing.T) {
	c := runtime.NewCorrelator()
	c.OpenSession("s", inbound("start"))
	require.NoError(t, c.Deliver(inbound("a")))
	require.NoError(t, c.Deliver(inbound("b")))

	left := c.DrainShared()
	require.Len(t, left, 2)
	assert.Equal(t, "a", left[0].Message.Operation())
	assert.Equal(t, 1, c.Queued(), "session mailboxes are kept")
	assert.Empty(t, c.DrainShared())
}

func TestCorrelator_SessionTargeting(t *testing.T) {
	c := runtime.NewCorrelator()
	c.OpenSession("one")
	c.OpenSession("two")
	fOne := c.RequestMessage("one", "op")
	fTwo := c.RequestMessage("two", "op")

	require.NoError(t, c.Deliver(runtime.SessionMessage{Message: domain.NewRequest("op", "", nil).WithSessionID("two")}))

	_, okOne := fOne.Value()
	_, okTwo := fTwo.Value()
	assert.False(t, okOne)
	assert.True(t, okTwo)

	err := c.Deliver(runtime.SessionMessage{Message: domain.NewRequest("op", "", nil).WithSessionID("ghost")})
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)

	left := c.CloseSession("one")
	assert.Empty(t, left)
	assert.False(t, c.HasSession("one"))
}

func TestCorrelator_CancelWithdrawsRegistration(t *testing.T) {
	c := runtime.NewCorrelator()
	f := c.RequestMessage("s", "op")
	require.Equal(t, 1, c.Waiting("op"))

	require.True(t, f.Cancel())
	assert.Zero(t, c.Waiting("op"))
	assert.False(t, c.TryDeliver(inbound("op")))
}

// Concurrent deliveries racing with registrations must neither lose nor
// duplicate a message.
func TestCorrelator_NoLostOrDoubleWakeups(t *testing.T) {
	c := runtime.NewCorrelator()
	const n = 200
	th := newThread()
	var received atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < n; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			f := c.RequestMessage("", "A", "B")
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if _, err := runtime.Await(ctx, th, f); err == nil {
				received.Add(1)
			}
		}()
		go func(i int) {
			defer wg.Done()
			op := "A"
			if i%2 == 1 {
				op = "B"
			}
			_ = c.Deliver(inbound(op))
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(n), received.Load())
	assert.Zero(t, c.Queued())
}
