package ports

import (
	"context"

	"github.com/aretw0/weft/pkg/domain"
)

// StateStore defines the interface for persisting session snapshots.
// The interpreter saves one snapshot per session when the session ends, which
// lets operators inspect finished sessions after the fact.
type StateStore interface {
	// Save persists the snapshot for a given session ID.
	Save(ctx context.Context, sessionID string, snapshot *domain.Snapshot) error

	// Load retrieves the snapshot for a given session ID.
	// Returns domain.ErrSessionNotFound if the session does not exist.
	Load(ctx context.Context, sessionID string) (*domain.Snapshot, error)

	// Delete removes the snapshot for a given session ID.
	Delete(ctx context.Context, sessionID string) error

	// List returns the IDs of all stored sessions.
	List(ctx context.Context) ([]string, error)
}
