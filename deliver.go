package weft

import (
	"context"
	"fmt"

	"github.com/aretw0/weft/pkg/domain"
	"github.com/aretw0/weft/pkg/ports"
	"github.com/aretw0/weft/pkg/runtime"
)

var _ ports.Receiver = (*Interpreter)(nil)

// Deliver accepts an inbound request arriving on ch.
//
// The payload is checked against the request type of the operation first. A
// starter message that names no session starts a new one (except in Single
// mode) and is stamped with the new session id, which the reply echoes. Any
// other message goes to the session waiting for it. A message naming a
// session is queued in its mailbox until the session asks for it; one naming
// no session is only queued while the Single mode session is running, and is
// refused otherwise. One-way requests are acknowledged on acceptance.
//
// A rejected message is answered with a fault on ch before Deliver returns
// the reason: TypeMismatch for a bad payload, IOException for an unknown
// operation or a closed interpreter, CorrelationError for an unknown session or one nobody waits for.
func (i *Interpreter) Deliver(ctx context.Context, msg *domain.Message, ch ports.Channel) error {
	name := msg.Operation()
	if i.isClosed() {
		i.reject(ctx, msg, ch, domain.NewFaultf(domain.FaultIOException, "interpreter is shutting down"))
		return domain.ErrInterpreterClosed
	}

	op, ok := i.ops[name]
	if !ok {
		i.reject(ctx, msg, ch, domain.NewFaultf(domain.FaultIOException, "Invalid operation: %s", name))
		return fmt.Errorf("deliver: %w: %s", domain.ErrUnknownOperation, name)
	}
	if err := domain.CheckType(op.Request, msg.Payload()); err != nil {
		i.logger.Warn("Rejected inbound message", "operation", name, "fault", domain.FaultTypeMismatch, "err", err)
		i.reject(ctx, msg, ch, domain.NewFaultf(domain.FaultTypeMismatch, "%v", err))
		return fmt.Errorf("deliver %s: %w", name, err)
	}

	sm := runtime.SessionMessage{Message: msg, Channel: ch}
	corr := i.env.Correlator()
	switch {
	case msg.SessionID() == "" && i.starters[name] && i.mode != Single:
		sm.Message = msg.WithSessionID(i.newID())
		s, err := i.open(sm.Message.SessionID(), sm)
		if err != nil {
			i.reject(ctx, msg, ch, domain.IOFault(err))
			return fmt.Errorf("deliver %s: %w", name, err)
		}
		go i.run(s)
	case msg.SessionID() == "" && !i.queuesUnaddressed():
		if !corr.TryDeliver(sm) {
			err := fmt.Errorf("deliver %s: %w: no session is waiting for it", name, domain.ErrSessionNotFound)
			i.logger.Warn("Rejected inbound message", "operation", name, "fault", domain.FaultCorrelationError, "err", err)
			i.reject(ctx, msg, ch, domain.NewFaultf(domain.FaultCorrelationError, "no session is waiting for %s", name))
			return err
		}
	default:
		if err := corr.Deliver(sm); err != nil {
			i.logger.Warn("Rejected inbound message", "operation", name, "session_id", msg.SessionID(), "fault", domain.FaultCorrelationError, "err", err)
			i.reject(ctx, msg, ch, domain.NewFaultf(domain.FaultCorrelationError, "%v", err))
			return err
		}
	}

	if op.Kind == domain.OneWay {
		i.answer(ctx, ch, domain.NewAck(sm.Message))
	}
	return nil
}

// queuesUnaddressed reports whether messages naming no session can wait in the
// shared mailbox: only for the session of Single mode, until it ends.
func (i *Interpreter) queuesUnaddressed() bool {
	if i.mode != Single {
		return false
	}
	i.mu.Lock()
	s := i.single
	i.mu.Unlock()
	return s == nil || i.env.Correlator().HasSession(s.id)
}

// abandon answers messages no session will consume with a CorrelationError.
// One-way messages were acknowledged on acceptance and are only logged.
func (i *Interpreter) abandon(ctx context.Context, left []runtime.SessionMessage, reason string) {
	for _, sm := range left {
		name := sm.Message.Operation()
		if op, ok := i.ops[name]; ok && op.Kind == domain.OneWay {
			i.logger.Warn("Dropped undelivered message", "session_id", sm.Message.SessionID(), "operation", name, "reason", reason)
			continue
		}
		i.reject(ctx, sm.Message, sm.Channel,
			domain.NewFaultf(domain.FaultCorrelationError, "%s before receiving %s", reason, name))
	}
}

// reject answers msg with fault and releases the channel.
func (i *Interpreter) reject(ctx context.Context, msg *domain.Message, ch ports.Channel, fault *domain.Fault) {
	i.answer(ctx, ch, domain.NewFaultResponse(msg, fault))
}

func (i *Interpreter) answer(ctx context.Context, ch ports.Channel, msg *domain.Message) {
	if ch == nil {
		return
	}
	if err := ch.Send(context.WithoutCancel(ctx), msg); err != nil {
		i.logger.Warn("Failed to answer inbound message", "operation", msg.Operation(), "err", err)
	}
	if err := ch.Release(); err != nil {
		i.logger.Debug("Failed to release inbound channel", "operation", msg.Operation(), "err", err)
	}
}
