package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/aretw0/weft/internal/logging"
	"github.com/aretw0/weft/pkg/domain"
)

// AllSessions subscribes to the events of every session.
const AllSessions = ""

// StreamManager fans lifecycle events out to server-sent event subscribers.
// Install its Hooks on the interpreter and hand it to the server with
// WithStreams.
type StreamManager struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan<- string]struct{} // SessionID -> Set of Channels
	logger      *slog.Logger
}

func NewStreamManager(logger *slog.Logger) *StreamManager {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &StreamManager{
		subscribers: make(map[string]map[chan<- string]struct{}),
		logger:      logger,
	}
}

// Subscribe registers a listener for one session, or for all of them with
// AllSessions. The returned function unsubscribes and closes the channel.
func (sm *StreamManager) Subscribe(sessionID string) (<-chan string, func()) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	ch := make(chan string, 16)
	if _, ok := sm.subscribers[sessionID]; !ok {
		sm.subscribers[sessionID] = make(map[chan<- string]struct{})
	}
	sm.subscribers[sessionID][ch] = struct{}{}

	return ch, func() {
		sm.mu.Lock()
		defer sm.mu.Unlock()
		if subs, ok := sm.subscribers[sessionID]; ok {
			if _, ok := subs[ch]; !ok {
				return
			}
			delete(subs, ch)
			close(ch)
			if len(subs) == 0 {
				delete(sm.subscribers, sessionID)
			}
		}
	}
}

// Broadcast sends msg to the subscribers of sessionID and to those of every
// session. Slow subscribers lose messages rather than block the interpreter.
func (sm *StreamManager) Broadcast(sessionID string, msg string) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	targets := []string{AllSessions}
	if sessionID != AllSessions {
		targets = append(targets, sessionID)
	}
	for _, target := range targets {
		for ch := range sm.subscribers[target] {
			select {
			case ch <- msg:
			default:
				sm.logger.Warn("SSE: Client buffer full, dropping message", "session_id", sessionID)
			}
		}
	}
}

func (sm *StreamManager) publish(sessionID string, event any) {
	data, err := json.Marshal(event)
	if err != nil {
		sm.logger.Warn("SSE: Failed to encode event", "session_id", sessionID, "err", err)
		return
	}
	sm.Broadcast(sessionID, string(data))
}

// Hooks returns lifecycle hooks publishing every event as JSON.
func (sm *StreamManager) Hooks() domain.LifecycleHooks {
	session := func(_ context.Context, e *domain.SessionEvent) { sm.publish(e.SessionID, e) }
	operation := func(_ context.Context, e *domain.OperationEvent) { sm.publish(e.SessionID, e) }
	fault := func(_ context.Context, e *domain.FaultEvent) { sm.publish(e.SessionID, e) }
	return domain.LifecycleHooks{
		OnSessionStart:      session,
		OnSessionEnd:        session,
		OnOperationStarted:  operation,
		OnOperationEnded:    operation,
		OnOperationCall:     operation,
		OnOperationReply:    operation,
		OnFaultHandlerStart: fault,
		OnFaultHandlerEnd:   fault,
		OnFault:             fault,
	}
}
