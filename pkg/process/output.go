package process

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/aretw0/weft/pkg/correlation"
	"github.com/aretw0/weft/pkg/domain"
	"github.com/aretw0/weft/pkg/ports"
	"github.com/aretw0/weft/pkg/runtime"
)

// outbound holds what Notification and SolicitResponse share: the port, the
// operation and the request expression.
type outbound struct {
	port   string
	op     domain.Operation
	output runtime.Expression
}

// open builds and type-checks the request, then opens a channel on the port.
// The caller owns the returned channel and must release it.
func (o outbound) open(ctx context.Context, t *runtime.Thread) (ports.Channel, *domain.Message, error) {
	payload, err := runtime.Evaluate(ctx, t, o.output)
	if err != nil {
		return nil, nil, asFault(err)
	}
	payload = payload.Clone()
	if err := domain.CheckType(o.op.Request, payload); err != nil {
		return nil, nil, domain.NewFaultf(domain.FaultTypeMismatch,
			"Output message TypeMismatch (operation %s): %v", o.op.Name, err)
	}
	port, err := t.Env().OutputPort(o.port)
	if err != nil {
		return nil, nil, domain.IOFault(err)
	}
	ch, err := port.Channel(ctx)
	if err != nil {
		return nil, nil, domain.IOFault(err)
	}
	req := domain.NewRequest(o.op.Name, port.ResourcePath(), payload)
	req = req.WithToken(correlation.EncodeToken(req.ID())).WithSessionID(t.SessionID())
	return ch, req, nil
}

func release(ch ports.Channel, logger *slog.Logger) {
	if err := ch.Release(); err != nil {
		logger.Error("failed to release channel", "err", err)
	}
}

// waitOutcome maps the error of a bounded wait: cancellation of ctx
// passes through, a kill ends the process silently, the deadline raises
// timeout and anything else is an IOException unless it already is a fault.
func waitOutcome(ctx, waitCtx context.Context, t *runtime.Thread, err error, timeout *domain.Fault) error {
	switch {
	case ctx.Err() != nil:
		return ctx.Err()
	case t.IsKilled():
		return nil
	case errors.Is(waitCtx.Err(), context.DeadlineExceeded):
		return timeout
	}
	if f, ok := domain.AsFault(err); ok {
		return f
	}
	return domain.IOFault(err)
}

func sendOutcome(ctx context.Context, t *runtime.Thread, err error) error {
	switch {
	case ctx.Err() != nil:
		return ctx.Err()
	case t.IsKilled():
		return nil
	}
	return domain.IOFault(err)
}

// Notification sends a one-way message through an output port and waits for
// the transport acknowledgement.
type Notification struct {
	Port   string
	Op     domain.Operation
	Output runtime.Expression
}

func (n *Notification) Run(ctx context.Context, t *runtime.Thread) error {
	if t.IsKilled() {
		return nil
	}
	logger := t.Logger().With("operation", n.Op.Name, "port", n.Port)
	ch, req, err := outbound{n.Port, n.Op, n.Output}.open(ctx, t)
	if err != nil {
		return err
	}
	defer release(ch, logger)

	timeout := t.Env().ResponseTimeout()
	killCtx, cancelKill := killOnDone(ctx, t)
	defer cancelKill()
	waitCtx, cancel := context.WithTimeout(killCtx, timeout)
	defer cancel()

	if err := ch.Send(waitCtx, req); err != nil {
		return sendOutcome(ctx, t, err)
	}
	t.Env().EmitOperation(ctx, t, domain.EventOperationCall, req)

	ack, err := ch.RecvAckFor(waitCtx, req)
	if err != nil {
		return waitOutcome(ctx, waitCtx, t, err,
			domain.NewFaultf(domain.FaultTimeout, "no acknowledgement for %s@%s after %s", n.Op.Name, n.Port, timeout))
	}
	if !ack.IsFault() {
		return nil
	}
	switch f := ack.Fault(); f.Name {
	case domain.FaultCorrelationError, domain.FaultIOException, domain.FaultTypeMismatch:
		return f
	default:
		logger.Warn("notification acknowledged with a fault", "fault", f.Name, "detail", f.Message())
	}
	return nil
}

func (n *Notification) Copy(reason runtime.TransformationReason) runtime.Process {
	return &Notification{Port: n.Port, Op: n.Op, Output: runtime.CloneExpression(n.Output, reason)}
}

func (n *Notification) IsKillable() bool { return true }

// SolicitResponse sends a request through an output port and waits, at most
// Timeout, for its reply. The reply payload is bound to Input and Install runs
// afterwards. A zero Timeout uses the environment default.
type SolicitResponse struct {
	Port    string
	Op      domain.Operation
	Output  runtime.Expression
	Input   *runtime.VariablePath
	Timeout time.Duration
	Install runtime.Process
}

func (s *SolicitResponse) Run(ctx context.Context, t *runtime.Thread) error {
	if t.IsKilled() {
		return nil
	}
	logger := t.Logger().With("operation", s.Op.Name, "port", s.Port)
	ch, req, err := outbound{s.Port, s.Op, s.Output}.open(ctx, t)
	if err != nil {
		return err
	}
	defer release(ch, logger)

	timeout := s.Timeout
	if timeout <= 0 {
		timeout = t.Env().ResponseTimeout()
	}
	killCtx, cancelKill := killOnDone(ctx, t)
	defer cancelKill()
	waitCtx, cancel := context.WithTimeout(killCtx, timeout)
	defer cancel()

	if err := ch.Send(waitCtx, req); err != nil {
		return sendOutcome(ctx, t, err)
	}
	t.Env().EmitOperation(ctx, t, domain.EventOperationCall, req)

	resp, err := ch.RecvResponseFor(waitCtx, req)
	if err != nil {
		return waitOutcome(ctx, waitCtx, t, err,
			domain.NewFaultf(domain.FaultTimeout, "%s@%s timed out after %s", s.Op.Name, s.Port, timeout))
	}
	t.Env().EmitOperation(ctx, t, domain.EventOperationReply, resp)

	if resp.IsFault() {
		f := resp.Fault()
		if faultType, declared := s.Op.FaultType(f.Name); declared {
			if err := domain.CheckType(faultType, f.Payload); err != nil {
				return domain.NewFaultf(domain.FaultTypeMismatch,
					"Received fault %s TypeMismatch (%s@%s): %v", f.Name, s.Op.Name, s.Port, err)
			}
		}
		return f
	}

	if s.Input != nil {
		if err := s.Input.Set(ctx, t, resp.Payload().Clone()); err != nil {
			return asFault(err)
		}
	}
	if err := domain.CheckType(s.Op.Response, resp.Payload()); err != nil {
		return domain.NewFaultf(domain.FaultTypeMismatch,
			"Received message TypeMismatch (%s@%s): %v", s.Op.Name, s.Port, err)
	}
	if s.Install != nil {
		return s.Install.Run(ctx, t)
	}
	return nil
}

func (s *SolicitResponse) Copy(reason runtime.TransformationReason) runtime.Process {
	c := &SolicitResponse{
		Port:    s.Port,
		Op:      s.Op,
		Output:  runtime.CloneExpression(s.Output, reason),
		Timeout: s.Timeout,
		Install: runtime.CopyProcess(s.Install, reason),
	}
	if s.Input != nil {
		c.Input = s.Input.Copy(reason)
	}
	return c
}

func (s *SolicitResponse) IsKillable() bool { return true }
