package domain

import "time"

// SessionStatus describes where a session is in its lifecycle.
type SessionStatus string

const (
	StatusRunning   SessionStatus = "running"   // Root process still executing
	StatusCompleted SessionStatus = "completed" // Root process returned normally
	StatusFaulted   SessionStatus = "faulted"   // An unhandled fault reached the root
	StatusExited    SessionStatus = "exited"    // Exit or interpreter shutdown
)

// Snapshot is the persisted view of a session: its status and state tree.
type Snapshot struct {
	SessionID string        `json:"session_id"`
	Status    SessionStatus `json:"status"`
	Fault     string        `json:"fault,omitempty"`
	Root      *Value        `json:"root"`
	StartedAt time.Time     `json:"started_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// NewSnapshot captures a deep copy of root.
func NewSnapshot(sessionID string, status SessionStatus, root *Value) *Snapshot {
	now := time.Now()
	if root == nil {
		root = NewValue()
	}
	return &Snapshot{
		SessionID: sessionID,
		Status:    status,
		Root:      root.Clone(),
		StartedAt: now,
		UpdatedAt: now,
	}
}

// IsTerminal reports whether the session has finished.
func (s *Snapshot) IsTerminal() bool {
	return s.Status != StatusRunning
}

// Clone returns a copy that shares nothing with s.
func (s *Snapshot) Clone() *Snapshot {
	out := *s
	if s.Root != nil {
		out.Root = s.Root.Clone()
	}
	return &out
}
