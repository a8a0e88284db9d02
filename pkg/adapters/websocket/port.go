package websocket

import (
	"context"
	"sync"

	"github.com/aretw0/weft/pkg/domain"
	"github.com/aretw0/weft/pkg/ports"
)

// Port is an output port sending requests over a connection. All channels of
// a port share the connection and its correlation table.
type Port struct {
	name         string
	resourcePath string
	conn         *Conn
}

// NewPort creates a port on conn.
func NewPort(name, resourcePath string, conn *Conn) *Port {
	if resourcePath == "" {
		resourcePath = "/"
	}
	return &Port{name: name, resourcePath: resourcePath, conn: conn}
}

func (p *Port) Name() string         { return p.name }
func (p *Port) ResourcePath() string { return p.resourcePath }

// Channel opens a channel for one exchange. It fails once the connection is
// closed.
func (p *Port) Channel(context.Context) (ports.Channel, error) {
	if p.conn.isClosed() {
		return nil, domain.ErrChannelClosed
	}
	return &outboundChannel{port: p}, nil
}

type outboundChannel struct {
	port *Port

	mu       sync.Mutex
	released bool
}

func (ch *outboundChannel) Send(_ context.Context, msg *domain.Message) error {
	conn := ch.port.conn
	conn.table.Register(msg)
	if err := conn.write(EncodeFrame(msg)); err != nil {
		conn.table.Forget(msg.ID())
		return err
	}
	return nil
}

func (ch *outboundChannel) RecvResponseFor(ctx context.Context, req *domain.Message) (*domain.Message, error) {
	return ch.port.conn.table.WaitReply(ctx, req)
}

func (ch *outboundChannel) RecvAckFor(ctx context.Context, req *domain.Message) (*domain.Message, error) {
	return ch.port.conn.table.WaitAck(ctx, req)
}

func (ch *outboundChannel) Release() error {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if ch.released {
		return domain.ErrChannelClosed
	}
	ch.released = true
	return nil
}

func (ch *outboundChannel) ParentInputPort() string  { return "" }
func (ch *outboundChannel) ParentOutputPort() string { return ch.port.name }
