package observability

import (
	"context"
	"log/slog"

	"github.com/aretw0/weft/pkg/domain"
)

// LogHooks returns lifecycle hooks writing one record per event. Session
// boundaries log at Info, operations at Debug and faults at Warn.
func LogHooks(logger *slog.Logger) domain.LifecycleHooks {
	session := func(ctx context.Context, e *domain.SessionEvent) {
		attrs := []any{"session_id", e.SessionID}
		if e.Status != "" {
			attrs = append(attrs, "status", e.Status)
		}
		if e.Fault != "" {
			attrs = append(attrs, "fault", e.Fault)
		}
		logger.InfoContext(ctx, string(e.Type), attrs...)
	}
	operation := func(ctx context.Context, e *domain.OperationEvent) {
		attrs := []any{"session_id", e.SessionID, "operation", e.Operation, "message_id", e.MessageID}
		if e.Fault != "" {
			attrs = append(attrs, "fault", e.Fault)
		}
		logger.DebugContext(ctx, string(e.Type), attrs...)
	}
	fault := func(ctx context.Context, e *domain.FaultEvent) {
		logger.WarnContext(ctx, string(e.Type), "session_id", e.SessionID, "scope", e.Scope, "fault", e.Fault)
	}
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
