package process

import (
	"context"
	"sort"

	"github.com/aretw0/weft/pkg/domain"
	"github.com/aretw0/weft/pkg/runtime"
)

// CompensationKey is the Install key that binds the compensation of the
// enclosing scope instead of a fault handler.
const CompensationKey = "this"

// Scope runs Body inside a fault-handling region named ID.
//
// A fault raised by the body is dispatched to the handler installed for its
// name (or to the "default" handler). While the handler runs, the variable
// named after the scope holds the fault payload under the fault name and the
// fault name itself under "default". Faults without a handler are raised again
// once the region is closed. When the body ends because the thread was killed,
// the scope compensation runs with the kill lifted and the kill is then
// restored.
type Scope struct {
	ID   string
	Body runtime.Process
}

type scopeRun struct {
	scope *Scope
	merge bool
	fault error
}

func (s *Scope) Run(ctx context.Context, t *runtime.Thread) error {
	t.PushScope(s.ID)
	r := &scopeRun{scope: s, merge: true}
	if err := r.run(ctx, t, s.Body); err != nil {
		t.PopScope(false)
		return err
	}
	t.PopScope(r.merge)
	if r.merge && r.fault != nil {
		return r.fault
	}
	return nil
}

// RunScoped runs body under the fault handling of the innermost frame already
// on t, which must have been opened as scope id. Sessions run their main
// process this way in the root frame they inherit from init.
func RunScoped(ctx context.Context, t *runtime.Thread, id string, body runtime.Process) error {
	r := &scopeRun{scope: &Scope{ID: id}, merge: true}
	if err := r.run(ctx, t, body); err != nil {
		return err
	}
	return r.fault
}

// run executes p and intercepts its fault. Only termination errors are
// returned; faults are recorded on r.
func (r *scopeRun) run(ctx context.Context, t *runtime.Thread, p runtime.Process) error {
	err := p.Run(ctx, t)
	if isTermination(err) {
		return err
	}
	if err == nil {
		if t.IsKilled() {
			return r.terminate(ctx, t)
		}
		return nil
	}

	f := domain.ToFault(err)
	t.Env().EmitFault(ctx, t, domain.EventFault, r.scope.ID, f.Name)
	handler := t.FaultHandler(f.Name, true)
	if handler == nil {
		r.fault = f
		return nil
	}

	scopeVar := runtime.NewPath(runtime.Seg(r.scope.ID))
	v, verr := scopeVar.Value(ctx, t)
	if verr != nil {
		r.fault = asFault(verr)
		return nil
	}
	payload := f.Payload
	if payload == nil {
		payload = domain.NewValue()
	}
	v.Children(f.Name).Set(0, payload.Clone())
	v.FirstChild(domain.DefaultHandler).SetValue(f.Name)

	t.Env().EmitFault(ctx, t, domain.EventHandlerStart, r.scope.ID, f.Name)
	herr := r.run(ctx, t, handler)
	t.Env().EmitFault(ctx, t, domain.EventHandlerEnd, r.scope.ID, f.Name)
	if uerr := scopeVar.Undef(ctx, t); uerr != nil {
		t.Logger().Warn("failed to clear scope variable", "scope", r.scope.ID, "err", uerr)
	}
	return herr
}

// terminate runs the compensation of a killed scope, then restores the kill.
func (r *scopeRun) terminate(ctx context.Context, t *runtime.Thread) error {
	r.merge = false
	comp := t.Compensation(r.scope.ID)
	if comp == nil {
		return nil
	}
	killer := t.KillerFault()
	t.ClearKill()
	err := r.run(ctx, t, comp)
	t.Kill(killer)
	return err
}

func (s *Scope) Copy(reason runtime.TransformationReason) runtime.Process {
	return &Scope{ID: s.ID, Body: s.Body.Copy(reason)}
}

func (s *Scope) IsKillable() bool { return s.Body.IsKillable() }

func (s *Scope) StarterOperations() []string { return StarterOperations(s.Body) }

// Install binds fault handlers, and the compensation under CompensationKey,
// in the innermost scope. Handlers are copied at install time so that later
// installs of the same template do not share state.
type Install struct {
	Handlers map[string]runtime.Process
}

func (p *Install) Run(_ context.Context, t *runtime.Thread) error {
	names := make([]string, 0, len(p.Handlers))
	for name := range p.Handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		h := p.Handlers[name].Copy(runtime.ReasonInstall)
		if name == CompensationKey {
			t.InstallCompensation(h)
			continue
		}
		t.InstallFaultHandler(name, h)
	}
	return nil
}

func (p *Install) Copy(reason runtime.TransformationReason) runtime.Process {
	handlers := make(map[string]runtime.Process, len(p.Handlers))
	for name, h := range p.Handlers {
		handlers[name] = h.Copy(reason)
	}
	return &Install{Handlers: handlers}
}

func (p *Install) IsKillable() bool { return true }

// Compensate runs, once, the compensation left behind by the completed scope
// ID. Unknown or already used ids do nothing.
type Compensate struct {
	ID string
}

func (p *Compensate) Run(ctx context.Context, t *runtime.Thread) error {
	comp := t.Compensation(p.ID)
	if comp == nil {
		return nil
	}
	return comp.Run(ctx, t)
}

func (p *Compensate) Copy(runtime.TransformationReason) runtime.Process { return &Compensate{ID: p.ID} }
func (p *Compensate) IsKillable() bool                                  { return true }
