package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/aretw0/weft/pkg/domain"
)

// ReplyChannel is the inbound end of an in-process exchange: a caller hands it
// to ports.Receiver.Deliver together with a request and collects the answer
// with Reply.
type ReplyChannel struct {
	input   string
	replies chan *domain.Message

	mu       sync.Mutex
	released int
}

// NewReplyChannel creates a reply channel for a request accepted on the named
// input port.
func NewReplyChannel(inputPort string) *ReplyChannel {
	return &ReplyChannel{input: inputPort, replies: make(chan *domain.Message, 1)}
}

// Send records the answer. A channel carries a single answer.
func (c *ReplyChannel) Send(ctx context.Context, msg *domain.Message) error {
	c.mu.Lock()
	released := c.released > 0
	c.mu.Unlock()
	if released {
		return domain.ErrChannelClosed
	}
	select {
	case c.replies <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return fmt.Errorf("%w: reply already sent", domain.ErrChannelClosed)
	}
}

// Reply waits for the answer.
func (c *ReplyChannel) Reply(ctx context.Context) (*domain.Message, error) {
	select {
	case msg := <-c.replies:
		return msg, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *ReplyChannel) RecvResponseFor(context.Context, *domain.Message) (*domain.Message, error) {
	return nil, errors.ErrUnsupported
}

func (c *ReplyChannel) RecvAckFor(context.Context, *domain.Message) (*domain.Message, error) {
	return nil, errors.ErrUnsupported
}

// Release marks the exchange as over. Releasing twice is an error.
func (c *ReplyChannel) Release() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.released++
	if c.released > 1 {
		return fmt.Errorf("%w: released %d times", domain.ErrChannelClosed, c.released)
	}
	return nil
}

// Releases returns how many times the channel was released.
func (c *ReplyChannel) Releases() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.released
}

func (c *ReplyChannel) ParentInputPort() string  { return c.input }
func (c *ReplyChannel) ParentOutputPort() string { return "" }
