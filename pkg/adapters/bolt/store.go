// Package bolt persists session snapshots in a local bbolt file.
package bolt

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aretw0/weft/pkg/domain"
	bolt "go.etcd.io/bbolt"
)

// DefaultBucket holds one key per session.
const DefaultBucket = "sessions"

// Store implements ports.StateStore on a bbolt database.
type Store struct {
	db     *bolt.DB
	bucket []byte
}

// Option configures the Store.
type Option func(*Store)

// WithBucket overrides DefaultBucket.
func WithBucket(name string) Option {
	return func(s *Store) {
		s.bucket = []byte(name)
	}
}

// Open opens (or creates) the database file. The file lock is waited for at
// most one second.
func Open(filename string, opts ...Option) (*Store, error) {
	db, err := bolt.Open(filename, 0o644, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt database %s: %w", filename, err)
	}

	s := &Store{db: db, bucket: []byte(DefaultBucket)}
	for _, opt := range opts {
		opt(s)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(s.bucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create bucket %s: %w", s.bucket, err)
	}
	return s, nil
}

// Save persists the snapshot for a given session ID.
func (s *Store) Save(_ context.Context, sessionID string, snapshot *domain.Snapshot) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(s.bucket).Put([]byte(sessionID), data)
	})
}

// Load retrieves the snapshot for a given session ID.
func (s *Store) Load(_ context.Context, sessionID string) (*domain.Snapshot, error) {
	var snapshot *domain.Snapshot
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(s.bucket).Get([]byte(sessionID))
		if data == nil {
			return domain.ErrSessionNotFound
		}
		snapshot = &domain.Snapshot{}
		if err := json.Unmarshal(data, snapshot); err != nil {
			return fmt.Errorf("failed to unmarshal snapshot: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return snapshot, nil
}

// Delete removes the snapshot. Deleting a missing session is not an error.
func (s *Store) Delete(_ context.Context, sessionID string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(s.bucket).Delete([]byte(sessionID))
	})
}

// List returns the stored session IDs in key order.
func (s *Store) List(_ context.Context) ([]string, error) {
	var ids []string
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(s.bucket).Cursor()
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			ids = append(ids, string(k))
		}
		return nil
	})
	return ids, err
}

// Close closes the database file.
func (s *Store) Close() error {
	return s.db.Close()
}
