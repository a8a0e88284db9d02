package correlation

import (
	"context"
	"fmt"
	"sync"

	"github.com/aretw0/weft/pkg/domain"
)

// ResponseTable tracks outbound requests awaiting an ack or a reply.
//
// Incoming responses are matched by id first and by correlation token when the
// id is unknown, which covers transports that answer with a fresh id and echo
// the token. Acks and replies are kept apart so that a notification waiting for
// its delivery ack never consumes a reply, and each request accepts at most one
// reply.
type ResponseTable struct {
	mu      sync.Mutex
	pending map[int64]*pendingRequest
}

type pendingRequest struct {
	acks     chan *domain.Message
	replies  chan *domain.Message
	acked    bool
	answered bool
}

// NewResponseTable creates an empty table.
func NewResponseTable() *ResponseTable {
	return &ResponseTable{pending: make(map[int64]*pendingRequest)}
}

// Register starts tracking req. Registering the same id twice is a no-op.
func (t *ResponseTable) Register(req *domain.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.pending[req.ID()]; ok {
		return
	}
	t.pending[req.ID()] = &pendingRequest{
		acks:    make(chan *domain.Message, 1),
		replies: make(chan *domain.Message, 1),
	}
}

// Resolve routes an incoming response to its waiter.
// It returns an error wrapping domain.ErrCorrelation when the message matches
// no pending request or repeats a reply already delivered.
func (t *ResponseTable) Resolve(msg *domain.Message) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	id, p, ok := t.lookupLocked(msg)
	if !ok {
		return fmt.Errorf("%w: response %d to %q", domain.ErrCorrelation, msg.ID(), msg.Operation())
	}
	if msg.IsAck() {
		if p.acked {
			return fmt.Errorf("%w: duplicate ack for request %d", domain.ErrCorrelation, id)
		}
		p.acked = true
		p.acks <- msg
		return nil
	}
	if p.answered {
		return fmt.Errorf("%w: duplicate reply for request %d", domain.ErrCorrelation, id)
	}
	p.answered = true
	p.replies <- msg
	return nil
}

func (t *ResponseTable) lookupLocked(msg *domain.Message) (int64, *pendingRequest, bool) {
	if p, ok := t.pending[msg.ID()]; ok {
		return msg.ID(), p, true
	}
	if tok := msg.Token(); len(tok) > 0 {
		id, err := DecodeToken(tok)
		if err != nil {
			return 0, nil, false
		}
		if p, ok := t.pending[id]; ok {
			return id, p, true
		}
	}
	return 0, nil, false
}

// WaitReply blocks until the reply to req arrives or ctx is done.
// The request stops being tracked once the call returns.
func (t *ResponseTable) WaitReply(ctx context.Context, req *domain.Message) (*domain.Message, error) {
	p, err := t.get(req.ID())
	if err != nil {
		return nil, err
	}
	defer t.Forget(req.ID())
	select {
	case msg := <-p.replies:
		return msg, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// WaitAck blocks until req is acknowledged. A fault reply counts as the
// acknowledgement, so it is returned as well.
func (t *ResponseTable) WaitAck(ctx context.Context, req *domain.Message) (*domain.Message, error) {
	p, err := t.get(req.ID())
	if err != nil {
		return nil, err
	}
	defer t.Forget(req.ID())
	select {
	case msg := <-p.acks:
		return msg, nil
	case msg := <-p.replies:
		return msg, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (t *ResponseTable) get(id int64) (*pendingRequest, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.pending[id]
	if !ok {
		return nil, fmt.Errorf("%w: request %d is not pending", domain.ErrCorrelation, id)
	}
	return p, nil
}

// Forget stops tracking a request.
func (t *ResponseTable) Forget(id int64) {
	t.mu.Lock()
	delete(t.pending, id)
	t.mu.Unlock()
}

// Fail answers a pending request with a fault reply.
func (t *ResponseTable) Fail(req *domain.Message, fault *domain.Fault) {
	_ = t.Resolve(domain.NewFaultResponse(req, fault))
}

// FailAll answers every unanswered request with the given fault.
// It returns the number of requests that were failed.
func (t *ResponseTable) FailAll(fault *domain.Fault) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for id, p := range t.pending {
		if p.answered {
			continue
		}
		p.answered = true
		p.replies <- domain.NewMessage(domain.MessageFields{
			ID:       id,
			Payload:  fault.Payload,
			Fault:    fault,
			Response: true,
		})
		n++
	}
	return n
}

// Pending returns the number of tracked requests.
func (t *ResponseTable) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}
