package demo

import (
	"context"
	"fmt"
	"time"

	"github.com/aretw0/weft/pkg/adapters/memory"
	"github.com/aretw0/weft/pkg/domain"
	"github.com/aretw0/weft/pkg/ports"
)

// Client calls the operations of an in-process interpreter.
type Client struct {
	Receiver ports.Receiver
	Timeout  time.Duration
}

// Call sends op with a payload in the shape accepted by
// domain.ValueFromNative, addressed to session when it is not empty, and
// returns the reply. A rejected message returns the fault reply together with
// the rejection.
func (c *Client) Call(ctx context.Context, op string, payload any, session string) (*domain.Message, error) {
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	v := domain.NewValue()
	if payload != nil {
		v = domain.ValueFromNative(payload)
	}
	msg := domain.NewRequest(op, "/", v)
	if session != "" {
		msg = msg.WithSessionID(session)
	}

	ch := memory.NewReplyChannel("demo")
	deliverErr := c.Receiver.Deliver(ctx, msg, ch)
	reply, err := ch.Reply(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: no reply: %w", op, err)
	}
	return reply, deliverErr
}

// describe renders a reply for the transcript.
func describe(reply *domain.Message) string {
	if fault := reply.Fault(); fault != nil {
		if fault.Payload == nil || fault.Payload.IsEmpty() {
			return "fault " + fault.Name
		}
		return fmt.Sprintf("fault %s(%v)", fault.Name, fault.Payload.Native())
	}
	if reply.IsAck() {
		return "ack"
	}
	p := reply.Payload()
	if p == nil || p.IsEmpty() {
		return "ok"
	}
	return fmt.Sprint(p.Native())
}
