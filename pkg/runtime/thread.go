package runtime

import (
	"log/slog"
	"sync"

	"github.com/aretw0/weft/pkg/domain"
)

// scopeFrame is one entry of a thread's scope stack.
type scopeFrame struct {
	id            string
	handlers      map[string]Process
	compensations map[string]Process
}

func newScopeFrame(id string) *scopeFrame {
	return &scopeFrame{
		id:            id,
		handlers:      make(map[string]Process),
		compensations: make(map[string]Process),
	}
}

// clone copies the frame with fresh copies of its processes, so that a
// handler firing in one thread leaves the others untouched.
func (f *scopeFrame) clone() *scopeFrame {
	c := newScopeFrame(f.id)
	for k, v := range f.handlers {
		c.handlers[k] = v.Copy(ReasonInstall)
	}
	for k, v := range f.compensations {
		c.compensations[k] = v.Copy(ReasonInstall)
	}
	return c
}

// Thread is the execution context handed to every process: the session state,
// the scope stack and the kill flag. A session owns one root thread; spawn and
// parallel composition fork child threads that delegate scope lookups to their
// parent while their own stack is empty.
type Thread struct {
	env       *Env
	state     *State
	parent    *Thread
	sessionID string

	mu        sync.Mutex
	scopes    []*scopeFrame
	killFault *domain.Fault
	killCh    chan struct{}
	children  map[*Thread]struct{}
	held      map[string]struct{}
}

// NewThread creates a root thread for a session.
func NewThread(env *Env, sessionID string, state *State) *Thread {
	if state == nil {
		state = NewState(nil)
	}
	return &Thread{
		env:       env,
		state:     state,
		sessionID: sessionID,
		killCh:    make(chan struct{}),
		children:  make(map[*Thread]struct{}),
	}
}

// Fork creates a child thread. A nil state shares the parent's state.
// The child inherits a pending kill and is killed with its parent.
func (t *Thread) Fork(state *State) *Thread {
	if state == nil {
		state = t.state
	}
	child := NewThread(t.env, t.sessionID, state)
	child.parent = t

	t.mu.Lock()
	t.children[child] = struct{}{}
	fault := t.killFault
	t.mu.Unlock()

	if fault != nil {
		child.Kill(fault)
	}
	return child
}

// Detach unregisters a finished child from its parent.
func (t *Thread) Detach() {
	if t.parent == nil {
		return
	}
	t.parent.mu.Lock()
	delete(t.parent.children, t)
	t.parent.mu.Unlock()
}

// Env returns the interpreter environment.
func (t *Thread) Env() *Env { return t.env }

// State returns the state the thread reads and writes.
func (t *Thread) State() *State { return t.state }

// SessionID returns the id of the session the thread belongs to.
func (t *Thread) SessionID() string { return t.sessionID }

// Logger returns the environment logger tagged with the session id.
func (t *Thread) Logger() *slog.Logger {
	return t.env.Logger().With("session_id", t.sessionID)
}

// Kill marks the thread, and every live child, as killed by fault.
// A thread that is already killed keeps its original fault.
func (t *Thread) Kill(fault *domain.Fault) {
	t.mu.Lock()
	if t.killFault != nil {
		t.mu.Unlock()
		return
	}
	t.killFault = fault
	close(t.killCh)
	children := make([]*Thread, 0, len(t.children))
	for c := range t.children {
		children = append(children, c)
	}
	t.mu.Unlock()

	for _, c := range children {
		c.Kill(fault)
	}
}

// ClearKill lifts the kill flag. Only scope termination handling uses it, to
// run a compensation before re-applying the kill.
func (t *Thread) ClearKill() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.killFault == nil {
		return
	}
	t.killFault = nil
	t.killCh = make(chan struct{})
}

// IsKilled reports whether the thread has been killed.
func (t *Thread) IsKilled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.killFault != nil
}

// KillerFault returns the fault that killed the thread, or nil.
func (t *Thread) KillerFault() *domain.Fault {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.killFault
}

// KillSignal returns a channel closed when the thread is killed.
func (t *Thread) KillSignal() <-chan struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.killCh
}

// PushScope opens a new scope frame.
func (t *Thread) PushScope(id string) {
	t.mu.Lock()
	t.scopes = append(t.scopes, newScopeFrame(id))
	t.mu.Unlock()
}

// PopScope closes the innermost frame. With merge, the compensations it
// collected move to the enclosing frame (or to the parent thread).
func (t *Thread) PopScope(merge bool) {
	t.mu.Lock()
	n := len(t.scopes)
	if n == 0 {
		t.mu.Unlock()
		return
	}
	frame := t.scopes[n-1]
	t.scopes = t.scopes[:n-1]
	t.mu.Unlock()

	if merge {
		t.mergeCompensations(frame.compensations)
	}
}

func (t *Thread) mergeCompensations(comps map[string]Process) {
	if len(comps) == 0 {
		return
	}
	if frame := t.top(); frame != nil {
		t.mu.Lock()
		for k, v := range comps {
			frame.compensations[k] = v
		}
		t.mu.Unlock()
		return
	}
	if t.parent != nil {
		t.parent.mergeCompensations(comps)
	}
}

// top returns the innermost frame, or nil when the stack is empty.
func (t *Thread) top() *scopeFrame {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.scopes) == 0 {
		return nil
	}
	return t.scopes[len(t.scopes)-1]
}

// CurrentScopeID returns the id of the innermost scope visible from t.
func (t *Thread) CurrentScopeID() string {
	if frame := t.top(); frame != nil {
		return frame.id
	}
	if t.parent != nil {
		return t.parent.CurrentScopeID()
	}
	return ""
}

// ScopeIDs lists the visible scope ids from the outermost to the innermost.
func (t *Thread) ScopeIDs() []string {
	var ids []string
	if t.parent != nil {
		ids = t.parent.ScopeIDs()
	}
	t.mu.Lock()
	for _, f := range t.scopes {
		ids = append(ids, f.id)
	}
	t.mu.Unlock()
	return ids
}

// InstallFaultHandler binds a handler in the innermost scope.
func (t *Thread) InstallFaultHandler(name string, handler Process) {
	if frame := t.top(); frame != nil {
		t.mu.Lock()
		frame.handlers[name] = handler
		t.mu.Unlock()
		return
	}
	if t.parent != nil {
		t.parent.InstallFaultHandler(name, handler)
	}
}

// InstallCompensation sets the compensation of the innermost scope.
func (t *Thread) InstallCompensation(handler Process) {
	if frame := t.top(); frame != nil {
		t.mu.Lock()
		frame.compensations[frame.id] = handler
		t.mu.Unlock()
		return
	}
	if t.parent != nil {
		t.parent.InstallCompensation(handler)
	}
}

// FaultHandler looks up the handler for a fault name in the innermost scope.
// With erase, a missing handler falls back to the default one, and finding a
// handler clears the scope's table so that faults raised by the handler itself
// go to the enclosing scope.
func (t *Thread) FaultHandler(name string, erase bool) Process {
	frame := t.top()
	if frame == nil {
		if t.parent != nil {
			return t.parent.FaultHandler(name, erase)
		}
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	h, ok := frame.handlers[name]
	if !erase {
		return h
	}
	if !ok {
		h, ok = frame.handlers[domain.DefaultHandler]
	}
	if ok {
		frame.handlers = make(map[string]Process)
	}
	return h
}

// Compensation removes and returns the compensation registered for scope id in
// the innermost frame.
func (t *Thread) Compensation(id string) Process {
	frame := t.top()
	if frame == nil {
		if t.parent != nil {
			return t.parent.Compensation(id)
		}
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := frame.compensations[id]
	if ok {
		delete(frame.compensations, id)
	}
	return p
}

// InheritScopes puts copies of the scope frames of from below the frames of t.
// Sessions inherit the root frame of the init thread this way, and with it
// the handlers init installed.
func (t *Thread) InheritScopes(from *Thread) {
	from.mu.Lock()
	frames := make([]*scopeFrame, len(from.scopes))
	for i, f := range from.scopes {
		frames[i] = f.clone()
	}
	from.mu.Unlock()

	t.mu.Lock()
	t.scopes = append(frames, t.scopes...)
	t.mu.Unlock()
}

// HoldsLock reports whether t, or a thread it was forked from, is inside the
// synchronized region named id.
func (t *Thread) HoldsLock(id string) bool {
	t.mu.Lock()
	_, ok := t.held[id]
	t.mu.Unlock()
	if ok {
		return true
	}
	return t.parent != nil && t.parent.HoldsLock(id)
}

// EnterLock records that t entered the synchronized region id.
func (t *Thread) EnterLock(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.held == nil {
		t.held = make(map[string]struct{})
	}
	t.held[id] = struct{}{}
}

// ExitLock records that t left the synchronized region id.
func (t *Thread) ExitLock(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.held, id)
}
