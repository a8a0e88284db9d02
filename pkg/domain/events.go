package domain

import (
	"context"
	"time"
)

// EventType defines the category of the event.
type EventType string

const (
	EventSessionStart     EventType = "session_start"
	EventSessionEnd       EventType = "session_end"
	EventOperationStarted EventType = "operation_started"
	EventOperationEnded   EventType = "operation_ended"
	EventOperationCall    EventType = "operation_call"
	EventOperationReply   EventType = "operation_reply"
	EventHandlerStart     EventType = "fault_handler_start"
	EventHandlerEnd       EventType = "fault_handler_end"
	EventFault            EventType = "fault"
)

// EventBase contains common fields for all events.
type EventBase struct {
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
	SessionID string    `json:"session_id"`
}

// SessionEvent marks the start or the end of a session.
type SessionEvent struct {
	EventBase
	Status SessionStatus `json:"status,omitempty"`
	Fault  string        `json:"fault,omitempty"`
}

// OperationEvent is emitted by communication processes.
type OperationEvent struct {
	EventBase
	Operation string `json:"operation"`
	MessageID int64  `json:"message_id"`
	Fault     string `json:"fault,omitempty"`
}

// FaultEvent is emitted when a fault is raised or handled inside a scope.
type FaultEvent struct {
	EventBase
	Scope string `json:"scope"`
	Fault string `json:"fault"`
}

// LifecycleHooks defines callbacks for interpreter observability.
// Every field is optional. Hooks are best-effort: a panicking hook never
// alters process execution.
type LifecycleHooks struct {
	OnSessionStart      func(context.Context, *SessionEvent)
	OnSessionEnd        func(context.Context, *SessionEvent)
	OnOperationStarted  func(context.Context, *OperationEvent)
	OnOperationEnded    func(context.Context, *OperationEvent)
	OnOperationCall     func(context.Context, *OperationEvent)
	OnOperationReply    func(context.Context, *OperationEvent)
	OnFaultHandlerStart func(context.Context, *FaultEvent)
	OnFaultHandlerEnd   func(context.Context, *FaultEvent)
	OnFault             func(context.Context, *FaultEvent)
}

// CombineHooks returns hooks that call every non-nil hook of each set, in order.
func CombineHooks(sets ...LifecycleHooks) LifecycleHooks {
	return LifecycleHooks{
		OnSessionStart:      chain(sets, func(h LifecycleHooks) func(context.Context, *SessionEvent) { return h.OnSessionStart }),
		OnSessionEnd:        chain(sets, func(h LifecycleHooks) func(context.Context, *SessionEvent) { return h.OnSessionEnd }),
		OnOperationStarted:  chain(sets, func(h LifecycleHooks) func(context.Context, *OperationEvent) { return h.OnOperationStarted }),
		OnOperationEnded:    chain(sets, func(h LifecycleHooks) func(context.Context, *OperationEvent) { return h.OnOperationEnded }),
		OnOperationCall:     chain(sets, func(h LifecycleHooks) func(context.Context, *OperationEvent) { return h.OnOperationCall }),
		OnOperationReply:    chain(sets, func(h LifecycleHooks) func(context.Context, *OperationEvent) { return h.OnOperationReply }),
		OnFaultHandlerStart: chain(sets, func(h LifecycleHooks) func(context.Context, *FaultEvent) { return h.OnFaultHandlerStart }),
		OnFaultHandlerEnd:   chain(sets, func(h LifecycleHooks) func(context.Context, *FaultEvent) { return h.OnFaultHandlerEnd }),
		OnFault:             chain(sets, func(h LifecycleHooks) func(context.Context, *FaultEvent) { return h.OnFault }),
	}
}

func chain[E any](sets []LifecycleHooks, pick func(LifecycleHooks) func(context.Context, *E)) func(context.Context, *E) {
	var fns []func(context.Context, *E)
	for _, h := range sets {
		if fn := pick(h); fn != nil {
			fns = append(fns, fn)
		}
	}
	if len(fns) == 0 {
		return nil
	}
	return func(ctx context.Context, e *E) {
		for _, fn := range fns {
			fn(ctx, e)
		}
	}
}
