package process

import (
	"context"
	"errors"
	"log/slog"

	"github.com/aretw0/weft/pkg/domain"
	"github.com/aretw0/weft/pkg/runtime"
)

// InputOperationProcess is implemented by the constructs that receive a
// message on an operation: OneWay and RequestResponse.
type InputOperationProcess interface {
	runtime.Process

	// Operation describes the awaited operation.
	Operation() domain.Operation

	// InputVarPath is where the request payload is bound, or nil.
	InputVarPath() *runtime.VariablePath

	// ReceiveMessage binds the inbound payload and returns the continuation
	// that completes the operation.
	ReceiveMessage(ctx context.Context, t *runtime.Thread, sm runtime.SessionMessage) (runtime.Process, error)
}

// receive waits for one message on op and runs the returned continuation.
func receive(ctx context.Context, t *runtime.Thread, p InputOperationProcess) error {
	if t.IsKilled() {
		return nil
	}
	f := t.Env().Correlator().RequestMessage(t.SessionID(), p.Operation().Name)
	sm, err := runtime.Await(ctx, t, f)
	if err != nil {
		if errors.Is(err, runtime.ErrKilled) {
			return nil
		}
		return err
	}
	cont, err := p.ReceiveMessage(ctx, t, sm)
	if err != nil {
		return err
	}
	return cont.Run(ctx, t)
}

func bindInput(ctx context.Context, t *runtime.Thread, path *runtime.VariablePath, msg *domain.Message) error {
	t.Env().EmitOperation(ctx, t, domain.EventOperationStarted, msg)
	if path == nil {
		return nil
	}
	return asFault(path.Set(ctx, t, msg.Payload().Clone()))
}

// OneWay receives a one-way message, binds it and runs Body. Nothing is sent
// back: the transport acknowledges one-way messages on delivery.
type OneWay struct {
	Op    domain.Operation
	Input *runtime.VariablePath
	Body  runtime.Process
}

func (p *OneWay) Run(ctx context.Context, t *runtime.Thread) error {
	return receive(ctx, t, p)
}

func (p *OneWay) Operation() domain.Operation         { return p.Op }
func (p *OneWay) InputVarPath() *runtime.VariablePath { return p.Input }
func (p *OneWay) StarterOperations() []string         { return []string{p.Op.Name} }
func (p *OneWay) IsKillable() bool                    { return true }

func (p *OneWay) ReceiveMessage(ctx context.Context, t *runtime.Thread, sm runtime.SessionMessage) (runtime.Process, error) {
	if err := bindInput(ctx, t, p.Input, sm.Message); err != nil {
		return nil, err
	}
	t.Env().EmitOperation(ctx, t, domain.EventOperationEnded, sm.Message)
	if p.Body == nil {
		return Null{}, nil
	}
	return p.Body, nil
}

func (p *OneWay) Copy(reason runtime.TransformationReason) runtime.Process {
	c := &OneWay{Op: p.Op, Body: runtime.CopyProcess(p.Body, reason)}
	if p.Input != nil {
		c.Input = p.Input.Copy(reason)
	}
	return c
}

// RequestResponse receives a request, runs Body and answers exactly once on
// the channel the request came from.
type RequestResponse struct {
	Op     domain.Operation
	Input  *runtime.VariablePath
	Output runtime.Expression
	Body   runtime.Process
}

func (p *RequestResponse) Run(ctx context.Context, t *runtime.Thread) error {
	return receive(ctx, t, p)
}

func (p *RequestResponse) Operation() domain.Operation         { return p.Op }
func (p *RequestResponse) InputVarPath() *runtime.VariablePath { return p.Input }
func (p *RequestResponse) StarterOperations() []string         { return []string{p.Op.Name} }
func (p *RequestResponse) IsKillable() bool                    { return true }

func (p *RequestResponse) ReceiveMessage(ctx context.Context, t *runtime.Thread, sm runtime.SessionMessage) (runtime.Process, error) {
	if err := bindInput(ctx, t, p.Input, sm.Message); err != nil {
		// The request is still owed an answer.
		return &reply{op: p, sm: sm, bindErr: err}, nil
	}
	return &reply{op: p, sm: sm}, nil
}

func (p *RequestResponse) Copy(reason runtime.TransformationReason) runtime.Process {
	c := &RequestResponse{
		Op:     p.Op,
		Output: runtime.CloneExpression(p.Output, reason),
		Body:   runtime.CopyProcess(p.Body, reason),
	}
	if p.Input != nil {
		c.Input = p.Input.Copy(reason)
	}
	return c
}

// reply is the continuation of a received request: run the body, build the
// answer, send it, release the channel. It is not killable: once a request
// has been accepted it is always answered.
type reply struct {
	op      *RequestResponse
	sm      runtime.SessionMessage
	bindErr error
}

func (r *reply) Copy(runtime.TransformationReason) runtime.Process { return r }
func (r *reply) IsKillable() bool                                  { return false }

func (r *reply) Run(ctx context.Context, t *runtime.Thread) error {
	var fault, typeMismatch *domain.Fault
	var response *domain.Message
	req := r.sm.Message
	op := r.op.Op
	logger := t.Logger().With("operation", op.Name)

	err := r.bindErr
	if err == nil && r.op.Body != nil {
		err = r.op.Body.Run(ctx, t)
	}
	if err != nil && !isTermination(err) {
		fault = domain.ToFault(err)
	}

	switch {
	case fault != nil:
		response, typeMismatch = r.faultResponse(req, fault, logger)
	case t.IsKilled():
		response, typeMismatch = r.faultResponse(req, t.KillerFault(), logger)
	default:
		out, evalErr := runtime.Evaluate(ctx, t, r.op.Output)
		if evalErr != nil {
			fault = domain.ToFault(asFault(evalErr))
			response, typeMismatch = r.faultResponse(req, fault, logger)
			break
		}
		response = domain.NewResponse(req, out.Clone())
		if checkErr := domain.CheckType(op.Response, response.Payload()); checkErr != nil {
			typeMismatch = domain.NewFaultf(domain.FaultTypeMismatch,
				"Request-Response input operation output value TypeMismatch (operation %s): %v", op.Name, checkErr)
			response = domain.NewFaultResponse(req,
				domain.NewFaultf(domain.FaultTypeMismatch, "Internal server error (TypeMismatch)"))
		}
	}

	sendErr := r.send(context.WithoutCancel(ctx), t, response, logger)
	if sendErr != nil {
		return sendErr
	}

	if fault != nil {
		if typeMismatch != nil {
			logger.Warn(typeMismatch.Message())
		}
		return fault
	}
	if typeMismatch != nil {
		logger.Warn(typeMismatch.Message())
		return typeMismatch
	}
	return err
}

// faultResponse builds the fault answer for f. Undeclared faults are hidden
// behind a generic internal error; the real one is only logged.
func (r *reply) faultResponse(req *domain.Message, f *domain.Fault, logger *slog.Logger) (*domain.Message, *domain.Fault) {
	op := r.op.Op
	faultType, declared := op.FaultType(f.Name)
	if !declared {
		logger.Error("request-response threw an undeclared fault, answering TypeMismatch",
			"fault", f.Name, "detail", f.Message())
		return domain.NewFaultResponse(req, domain.NewFaultf(domain.FaultTypeMismatch, "Internal server error")), nil
	}
	if err := domain.CheckType(faultType, f.Payload); err != nil {
		mismatch := domain.NewFaultf(domain.FaultTypeMismatch,
			"Request-Response process TypeMismatch for fault %s (operation %s): %v", f.Name, op.Name, err)
		return domain.NewFaultResponse(req, mismatch), mismatch
	}
	return domain.NewFaultResponse(req, f), nil
}

func (r *reply) send(ctx context.Context, t *runtime.Thread, response *domain.Message, logger *slog.Logger) error {
	ch := r.sm.Channel
	defer func() {
		if err := ch.Release(); err != nil {
			logger.Error("failed to release channel", "err", err)
		}
	}()
	if err := ch.Send(ctx, response); err != nil {
		return domain.IOFault(err)
	}
	t.Env().EmitOperation(ctx, t, domain.EventOperationReply, response)
	t.Env().EmitOperation(ctx, t, domain.EventOperationEnded, response)
	return nil
}
