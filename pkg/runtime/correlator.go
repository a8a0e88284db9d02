package runtime

import (
	"fmt"
	"sync"

	"github.com/aretw0/weft/pkg/domain"
	"github.com/aretw0/weft/pkg/ports"
)

// SessionMessage is an inbound message together with the channel to answer on.
type SessionMessage struct {
	Message *domain.Message
	Channel ports.Channel
}

type waiter struct {
	future    *Future[SessionMessage]
	sessionID string
	ops       []string
}

// Correlator matches inbound messages to the input processes waiting for them.
//
// A process registers every operation it can accept in one RequestMessage
// call and gets back one future; the first matching delivery completes it and
// withdraws the whole registration, so a choice fires at most one branch.
// Messages that find no waiter are queued: in the target session's mailbox
// when they name a session, in a shared mailbox otherwise. The shared mailbox
// is emptied with DrainShared once nobody can consume it.
type Correlator struct {
	mu       sync.Mutex
	waiters  map[string][]*waiter
	sessions map[string][]SessionMessage
	shared   []SessionMessage
}

// NewCorrelator creates an empty correlator.
func NewCorrelator() *Correlator {
	return &Correlator{
		waiters:  make(map[string][]*waiter),
		sessions: make(map[string][]SessionMessage),
	}
}

// OpenSession makes a session addressable. Initial messages, such as the one
// that started the session, are placed in its mailbox.
func (c *Correlator) OpenSession(id string, initial ...SessionMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessions[id] = append(c.sessions[id], initial...)
}

// CloseSession removes a session and returns the messages left in its mailbox.
func (c *Correlator) CloseSession(id string) []SessionMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	left := c.sessions[id]
	delete(c.sessions, id)
	return left
}

// HasSession reports whether id is an open session.
func (c *Correlator) HasSession(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.sessions[id]
	return ok
}

// DrainShared empties the shared mailbox and returns what it held.
func (c *Correlator) DrainShared() []SessionMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	left := c.shared
	c.shared = nil
	return left
}

// Sessions returns the ids of open sessions.
func (c *Correlator) Sessions() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]string, 0, len(c.sessions))
	for id := range c.sessions {
		ids = append(ids, id)
	}
	return ids
}

// RequestMessage registers interest of a session in a set of operations.
// A queued message for one of them completes the future immediately.
func (c *Correlator) RequestMessage(sessionID string, ops ...string) *Future[SessionMessage] {
	f := NewFuture[SessionMessage]()
	accepts := make(map[string]bool, len(ops))
	for _, op := range ops {
		accepts[op] = true
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if box, ok := c.sessions[sessionID]; ok {
		for i, sm := range box {
			if accepts[sm.Message.Operation()] {
				c.sessions[sessionID] = append(box[:i:i], box[i+1:]...)
				f.Complete(sm)
				return f
			}
		}
	}
	for i, sm := range c.shared {
		if accepts[sm.Message.Operation()] {
			c.shared = append(c.shared[:i:i], c.shared[i+1:]...)
			f.Complete(sm)
			return f
		}
	}

	w := &waiter{future: f, sessionID: sessionID, ops: ops}
	for _, op := range ops {
		c.waiters[op] = append(c.waiters[op], w)
	}
	f.OnCancel(func() {
		c.mu.Lock()
		c.removeLocked(w)
		c.mu.Unlock()
	})
	return f
}

func (c *Correlator) removeLocked(w *waiter) {
	for _, op := range w.ops {
		list := c.waiters[op]
		for i, other := range list {
			if other == w {
				list = append(list[:i:i], list[i+1:]...)
				break
			}
		}
		if len(list) == 0 {
			delete(c.waiters, op)
		} else {
			c.waiters[op] = list
		}
	}
}

// Deliver hands an inbound message to the first eligible waiter, or queues it.
// A message naming a session only reaches that session; naming an unknown one
// fails with domain.ErrSessionNotFound.
func (c *Correlator) Deliver(sm SessionMessage) error {
	target := sm.Message.SessionID()

	c.mu.Lock()
	defer c.mu.Unlock()

	if target != "" {
		if _, ok := c.sessions[target]; !ok {
			return fmt.Errorf("deliver %q: %w: %s", sm.Message.Operation(), domain.ErrSessionNotFound, target)
		}
	}
	if c.completeLocked(sm, target) {
		return nil
	}
	if target != "" {
		c.sessions[target] = append(c.sessions[target], sm)
		return nil
	}
	c.shared = append(c.shared, sm)
	return nil
}

// TryDeliver hands sm to a waiting process without queueing it.
func (c *Correlator) TryDeliver(sm SessionMessage) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.completeLocked(sm, sm.Message.SessionID())
}

func (c *Correlator) completeLocked(sm SessionMessage, target string) bool {
	for _, w := range append([]*waiter(nil), c.waiters[sm.Message.Operation()]...) {
		if target != "" && w.sessionID != target {
			continue
		}
		c.removeLocked(w)
		if w.future.Complete(sm) {
			return true
		}
	}
	return false
}

// Waiting returns the number of processes waiting for op.
func (c *Correlator) Waiting(op string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.waiters[op])
}

// Queued returns the number of messages waiting in mailboxes.
func (c *Correlator) Queued() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := len(c.shared)
	for _, box := range c.sessions {
		n += len(box)
	}
	return n
}
