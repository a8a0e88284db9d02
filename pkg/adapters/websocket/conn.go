package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/aretw0/weft/internal/logging"
	"github.com/aretw0/weft/pkg/correlation"
	"github.com/aretw0/weft/pkg/domain"
	"github.com/aretw0/weft/pkg/ports"
	gorilla "github.com/gorilla/websocket"
)

// ErrReadTimeout is the cause of the IOException delivered to pending
// requests when the peer stays silent past the read timeout.
var ErrReadTimeout = errors.New("websocket read timeout")

// ErrReset is the cause of the IOException delivered to pending requests when
// the peer resets the connection.
var ErrReset = errors.New("connection reset by peer")

// Conn is one websocket connection carrying messages both ways. Outbound
// requests are matched to their responses through a correlation table;
// inbound requests are handed to the receiver, if any, and answered on the
// same connection.
type Conn struct {
	ws          *gorilla.Conn
	name        string
	table       *correlation.ResponseTable
	receiver    ports.Receiver
	types       map[string]domain.Type
	readTimeout time.Duration
	logger      *slog.Logger

	writeMu   sync.Mutex
	done      chan struct{}
	closeOnce sync.Once
}

// Option configures a Conn.
type Option func(*Conn)

// WithReceiver delivers inbound requests to r.
func WithReceiver(r ports.Receiver) Option {
	return func(c *Conn) {
		c.receiver = r
	}
}

// WithOperations declares the request types used to coerce plain text
// payloads of inbound requests.
func WithOperations(ops ...domain.Operation) Option {
	return func(c *Conn) {
		for _, op := range ops {
			c.types[op.Name] = op.Request
		}
	}
}

// WithReadTimeout closes the connection when nothing is read for d. Pending
// requests fail with an IOException and the peer gets a reset frame.
func WithReadTimeout(d time.Duration) Option {
	return func(c *Conn) {
		c.readTimeout = d
	}
}

// WithName names the connection in channels and logs.
func WithName(name string) Option {
	return func(c *Conn) {
		c.name = name
	}
}

// WithLogger sets the connection logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Conn) {
		c.logger = logger
	}
}

func newConn(ws *gorilla.Conn, opts ...Option) *Conn {
	c := &Conn{
		ws:     ws,
		name:   "websocket",
		table:  correlation.NewResponseTable(),
		types:  make(map[string]domain.Type),
		logger: logging.NewNop(),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Dial connects to a websocket endpoint and starts reading from it.
func Dial(ctx context.Context, url string, opts ...Option) (*Conn, error) {
	ws, _, err := gorilla.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", url, err)
	}
	c := newConn(ws, opts...)
	go c.readLoop(context.WithoutCancel(ctx))
	return c, nil
}

// Handler upgrades HTTP requests to connections whose inbound requests go to
// r. Each connection is served until it closes.
func Handler(r ports.Receiver, opts ...Option) http.Handler {
	var upgrader gorilla.Upgrader
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		ws, err := upgrader.Upgrade(w, req, nil)
		if err != nil {
			return
		}
		c := newConn(ws, append(opts, WithReceiver(r))...)
		c.logger.Debug("Websocket connection accepted", "remote", ws.RemoteAddr().String())
		c.readLoop(context.WithoutCancel(req.Context()))
	})
}

// Done is closed once the connection is closed.
func (c *Conn) Done() <-chan struct{} { return c.done }

// Close closes the connection and fails every pending request.
func (c *Conn) Close() error {
	return c.close(domain.IOFault(domain.ErrChannelClosed))
}

func (c *Conn) close(fault *domain.Fault) error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		err = c.ws.Close()
		if n := c.table.FailAll(fault); n > 0 {
			c.logger.Warn("Failed pending requests on close", "conn", c.name, "pending", n, "fault", fault.Name)
		}
	})
	return err
}

func (c *Conn) isClosed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

func (c *Conn) write(f Frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("failed to encode frame: %w", err)
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.isClosed() {
		return domain.ErrChannelClosed
	}
	if err := c.ws.WriteMessage(gorilla.TextMessage, data); err != nil {
		return fmt.Errorf("failed to write frame: %w", err)
	}
	return nil
}

func (c *Conn) readLoop(ctx context.Context) {
	defer c.Close()
	for {
		if c.readTimeout > 0 {
			_ = c.ws.SetReadDeadline(time.Now().Add(c.readTimeout))
		}
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				c.reset()
				return
			}
			if !c.isClosed() {
				c.logger.Debug("Websocket read ended", "conn", c.name, "err", err)
			}
			return
		}

		var f Frame
		if err := json.Unmarshal(data, &f); err != nil {
			c.logger.Warn("Dropped malformed frame", "conn", c.name, "err", err)
			continue
		}
		c.handle(ctx, f)
	}
}

// reset fails the pending requests with a read timeout and tells the peer.
func (c *Conn) reset() {
	c.logger.Warn("Websocket read timeout", "conn", c.name, "pending", c.table.Pending())
	if err := c.write(Frame{Kind: KindReset}); err != nil {
		c.logger.Debug("Failed to send reset frame", "conn", c.name, "err", err)
	}
	_ = c.close(domain.IOFault(ErrReadTimeout))
}

func (c *Conn) handle(ctx context.Context, f Frame) {
	switch f.Kind {
	case KindReset:
		c.logger.Warn("Websocket reset by peer", "conn", c.name)
		_ = c.close(domain.IOFault(ErrReset))
	case KindRequest:
		msg := DecodeFrame(f, c.types[f.Operation])
		if c.receiver == nil {
			_ = c.write(EncodeFrame(domain.NewFaultResponse(msg, domain.NewFaultf(domain.FaultIOException, "Invalid operation: %s", f.Operation))))
			return
		}
		ch := &inboundChannel{conn: c}
		go func() {
			if err := c.receiver.Deliver(ctx, msg, ch); err != nil {
				c.logger.Debug("Inbound request rejected", "conn", c.name, "operation", msg.Operation(), "err", err)
			}
		}()
	case KindResponse, KindAck:
		if err := c.table.Resolve(DecodeFrame(f, nil)); err != nil {
			c.logger.Warn("Uncorrelated response", "conn", c.name, "id", f.ID, "err", err)
		}
	default:
		c.logger.Warn("Dropped frame of unknown kind", "conn", c.name, "kind", f.Kind)
	}
}

// inboundChannel answers an inbound request on the connection it came from.
type inboundChannel struct {
	conn *Conn

	mu       sync.Mutex
	released bool
}

func (ch *inboundChannel) Send(_ context.Context, msg *domain.Message) error {
	return ch.conn.write(EncodeFrame(msg))
}

func (ch *inboundChannel) RecvResponseFor(context.Context, *domain.Message) (*domain.Message, error) {
	return nil, errors.ErrUnsupported
}

func (ch *inboundChannel) RecvAckFor(context.Context, *domain.Message) (*domain.Message, error) {
	return nil, errors.ErrUnsupported
}

func (ch *inboundChannel) Release() error {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if ch.released {
		return domain.ErrChannelClosed
	}
	ch.released = true
	return nil
}

func (ch *inboundChannel) ParentInputPort() string  { return ch.conn.name }
func (ch *inboundChannel) ParentOutputPort() string { return "" }
