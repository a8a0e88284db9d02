package websocket_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aretw0/weft"
	"github.com/aretw0/weft/pkg/adapters/websocket"
	"github.com/aretw0/weft/pkg/domain"
	"github.com/aretw0/weft/pkg/ports"
	"github.com/aretw0/weft/pkg/process"
	"github.com/aretw0/weft/pkg/runtime"
	"github.com/aretw0/weft/pkg/schema"
	gorilla "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type receiverFunc func(ctx context.Context, msg *domain.Message, ch ports.Channel) error

func (f receiverFunc) Deliver(ctx context.Context, msg *domain.Message, ch ports.Channel) error {
	return f(ctx, msg, ch)
}

// echo acknowledges "log" and answers anything else with its own payload.
var echo = receiverFunc(func(ctx context.Context, msg *domain.Message, ch ports.Channel) error {
	defer ch.Release()
	if msg.Operation() == "log" {
		return ch.Send(ctx, domain.NewAck(msg))
	}
	return ch.Send(ctx, domain.NewResponse(msg, msg.Payload()))
})

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, srv *httptest.Server, opts ...websocket.Option) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	conn, err := websocket.Dial(ctx, wsURL(srv), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// rawServer accepts one connection and hands each frame it reads to serve,
// which may answer through the connection.
func rawServer(t *testing.T, serve func(c *gorilla.Conn, f websocket.Frame)) *httptest.Server {
	t.Helper()
	var upgrader gorilla.Upgrader
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()
		for {
			var f websocket.Frame
			if err := c.ReadJSON(&f); err != nil {
				return
			}
			serve(c, f)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func exchange(t *testing.T, port *websocket.Port, req *domain.Message, ack bool) *domain.Message {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	ch, err := port.Channel(ctx)
	require.NoError(t, err)
	defer ch.Release()
	require.NoError(t, ch.Send(ctx, req))

	var resp *domain.Message
	if ack {
		resp, err = ch.RecvAckFor(ctx, req)
	} else {
		resp, err = ch.RecvResponseFor(ctx, req)
	}
	require.NoError(t, err)
	return resp
}

func TestConn_RoundTrip(t *testing.T) {
	srv := httptest.NewServer(websocket.Handler(echo))
	defer srv.Close()
	port := websocket.NewPort("remote", "", dial(t, srv))
	assert.Equal(t, "remote", port.Name())
	assert.Equal(t, "/", port.ResourcePath())

	t.Run("RequestResponse", func(t *testing.T) {
		req := domain.NewRequest("echo", port.ResourcePath(), domain.NewString("hi"))
		resp := exchange(t, port, req, false)
		assert.Equal(t, req.ID(), resp.ID())
		assert.Equal(t, "hi", resp.Payload().StrValue())
	})

	t.Run("OneWay", func(t *testing.T) {
		req := domain.NewRequest("log", port.ResourcePath(), domain.NewString("line"))
		resp := exchange(t, port, req, true)
		assert.True(t, resp.IsAck())
	})
}

func TestConn_ServesInterpreter(t *testing.T) {
	sumOp := domain.NewRequestResponse("sum", schema.Record(schema.Void(), schema.Fields{
		"a": schema.Required(schema.Int()),
		"b": schema.Required(schema.Int()),
	}), schema.Int(), nil)
	itp, err := weft.New(weft.Program{
		Interface: []domain.Operation{sumOp},
		Main: &process.RequestResponse{
			Op:     sumOp,
			Input:  runtime.ParsePath("req"),
			Output: &process.Binary{Op: process.OpSum, Operands: []runtime.Expression{runtime.ParsePath("req.a"), runtime.ParsePath("req.b")}},
		},
	})
	require.NoError(t, err)
	require.NoError(t, itp.Start(context.Background()))
	defer itp.Shutdown(context.Background())

	srv := httptest.NewServer(websocket.Handler(itp, websocket.WithOperations(sumOp)))
	defer srv.Close()
	port := websocket.NewPort("calculator", "/", dial(t, srv))

	payload := domain.NewValue()
	payload.FirstChild("a").SetValue(2)
	payload.FirstChild("b").SetValue(3)
	resp := exchange(t, port, domain.NewRequest("sum", "/", payload), false)
	require.False(t, resp.IsFault(), "unexpected fault: %v", resp.Fault())
	assert.Equal(t, 5, resp.Payload().IntValue())
	assert.NotEmpty(t, resp.SessionID())

	payload.FirstChild("a").SetValue("two")
	resp = exchange(t, port, domain.NewRequest("sum", "/", payload), false)
	require.True(t, resp.IsFault())
	assert.Equal(t, domain.FaultTypeMismatch, resp.Fault().Name)
}

func TestConn_TokenCorrelation(t *testing.T) {
	// The peer answers with an id of its own and echoes the token.
	srv := rawServer(t, func(c *gorilla.Conn, f websocket.Frame) {
		_ = c.WriteJSON(websocket.Frame{
			Kind:    websocket.KindResponse,
			ID:      f.ID + 1000,
			Token:   f.Token,
			Payload: domain.NewString("late"),
		})
	})
	port := websocket.NewPort("remote", "/", dial(t, srv))

	req := domain.NewRequest("op", "/", nil)
	resp := exchange(t, port, req, false)
	assert.Equal(t, "late", resp.Payload().StrValue())
}

func TestConn_ReadTimeout(t *testing.T) {
	kinds := make(chan string, 4)
	srv := rawServer(t, func(_ *gorilla.Conn, f websocket.Frame) {
		kinds <- f.Kind
	})
	conn := dial(t, srv, websocket.WithReadTimeout(100*time.Millisecond))
	port := websocket.NewPort("silent", "/", conn)

	resp := exchange(t, port, domain.NewRequest("op", "/", nil), false)
	require.True(t, resp.IsFault())
	assert.Equal(t, domain.FaultIOException, resp.Fault().Name)
	assert.Contains(t, resp.Fault().Message(), "read timeout")

	assert.Equal(t, websocket.KindRequest, <-kinds)
	select {
	case kind := <-kinds:
		assert.Equal(t, websocket.KindReset, kind)
	case <-time.After(2 * time.Second):
		t.Fatal("peer never got the reset frame")
	}

	select {
	case <-conn.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("connection still open after the read timeout")
	}
	_, err := port.Channel(context.Background())
	assert.ErrorIs(t, err, domain.ErrChannelClosed)
}

func TestConn_PeerReset(t *testing.T) {
	srv := rawServer(t, func(c *gorilla.Conn, _ websocket.Frame) {
		_ = c.WriteJSON(websocket.Frame{Kind: websocket.KindReset})
	})
	port := websocket.NewPort("flaky", "/", dial(t, srv))

	resp := exchange(t, port, domain.NewRequest("op", "/", nil), false)
	require.True(t, resp.IsFault())
	assert.Equal(t, domain.FaultIOException, resp.Fault().Name)
	assert.Contains(t, resp.Fault().Message(), "reset")
}

func TestConn_InboundWithoutReceiver(t *testing.T) {
	replies := make(chan websocket.Frame, 1)
	var upgrader gorilla.Upgrader
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()
		_ = c.WriteJSON(websocket.EncodeFrame(domain.NewRequest("push", "/", nil)))
		var f websocket.Frame
		if err := c.ReadJSON(&f); err == nil {
			replies <- f
		}
	}))
	defer srv.Close()
	dial(t, srv)

	select {
	case f := <-replies:
		assert.Equal(t, websocket.KindResponse, f.Kind)
		require.NotNil(t, f.Fault)
		assert.Equal(t, domain.FaultIOException, f.Fault.Name)
	case <-time.After(2 * time.Second):
		t.Fatal("request was never answered")
	}
}
