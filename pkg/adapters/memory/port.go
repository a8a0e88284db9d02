package memory

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/aretw0/weft/pkg/correlation"
	"github.com/aretw0/weft/pkg/domain"
	"github.com/aretw0/weft/pkg/ports"
)

// Handler answers a request sent through a function port. A nil message
// acknowledges a one-way request; an error becomes a fault reply (an
// IOException unless the error is a fault).
type Handler func(ctx context.Context, req *domain.Message) (*domain.Message, error)

// Port is an output port whose remote end lives in the same process: either a
// ports.Receiver (typically another interpreter) or a Handler.
type Port struct {
	name         string
	resourcePath string
	receiver     ports.Receiver
	handler      Handler
}

// PortOption configures a Port.
type PortOption func(*Port)

// WithResourcePath sets the resource path stamped on outgoing requests.
func WithResourcePath(path string) PortOption {
	return func(p *Port) {
		p.resourcePath = path
	}
}

// NewPort creates a port delivering to r.
func NewPort(name string, r ports.Receiver, opts ...PortOption) *Port {
	p := &Port{name: name, resourcePath: "/", receiver: r}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// NewFuncPort creates a port answered by h.
func NewFuncPort(name string, h Handler, opts ...PortOption) *Port {
	p := &Port{name: name, resourcePath: "/", handler: h}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Port) Name() string         { return p.name }
func (p *Port) ResourcePath() string { return p.resourcePath }

// Channel opens a fresh channel. Each channel has its own response table.
func (p *Port) Channel(context.Context) (ports.Channel, error) {
	return &portChannel{port: p, table: correlation.NewResponseTable()}, nil
}

type portChannel struct {
	port  *Port
	table *correlation.ResponseTable

	mu       sync.Mutex
	released bool
}

func (c *portChannel) Send(ctx context.Context, msg *domain.Message) error {
	c.mu.Lock()
	released := c.released
	c.mu.Unlock()
	if released {
		return domain.ErrChannelClosed
	}

	c.table.Register(msg)
	if c.port.receiver != nil {
		s := &sink{port: c.port.name, table: c.table}
		if err := c.port.receiver.Deliver(ctx, msg, s); err != nil {
			// A receiver that answered its rejection has already
			// resolved the request with the real fault.
			if s.answered.Load() {
				return nil
			}
			c.table.Forget(msg.ID())
			return err
		}
		return nil
	}

	go func() {
		resp, err := c.port.handler(ctx, msg)
		switch {
		case err != nil:
			f, ok := domain.AsFault(err)
			if !ok {
				f = domain.IOFault(err)
			}
			c.table.Fail(msg, f)
		case resp == nil:
			_ = c.table.Resolve(domain.NewAck(msg))
		default:
			_ = c.table.Resolve(resp)
		}
	}()
	return nil
}

func (c *portChannel) RecvResponseFor(ctx context.Context, req *domain.Message) (*domain.Message, error) {
	return c.table.WaitReply(ctx, req)
}

func (c *portChannel) RecvAckFor(ctx context.Context, req *domain.Message) (*domain.Message, error) {
	return c.table.WaitAck(ctx, req)
}

func (c *portChannel) Release() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.released {
		return domain.ErrChannelClosed
	}
	c.released = true
	return nil
}

func (c *portChannel) ParentInputPort() string  { return "" }
func (c *portChannel) ParentOutputPort() string { return c.port.name }

// sink is the channel the remote receiver answers on: whatever it sends is
// routed back to the waiting requester.
type sink struct {
	port     string
	table    *correlation.ResponseTable
	answered atomic.Bool
}

func (s *sink) Send(_ context.Context, msg *domain.Message) error {
	if err := s.table.Resolve(msg); err != nil {
		return err
	}
	s.answered.Store(true)
	return nil
}

func (s *sink) RecvResponseFor(context.Context, *domain.Message) (*domain.Message, error) {
	return nil, errors.ErrUnsupported
}

func (s *sink) RecvAckFor(context.Context, *domain.Message) (*domain.Message, error) {
	return nil, errors.ErrUnsupported
}

func (s *sink) Release() error           { return nil }
func (s *sink) ParentInputPort() string  { return s.port }
func (s *sink) ParentOutputPort() string { return "" }
