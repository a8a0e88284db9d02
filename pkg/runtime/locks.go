package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/weft/internal/logging"
	"github.com/aretw0/weft/pkg/ports"
)

// lockEntry holds the semaphore and the reference count.
type lockEntry struct {
	sem  chan struct{}
	refs int
}

// LockRegistry serializes synchronized regions by name across every session of
// the interpreter. It uses reference counting to garbage collect unused locks.
// With a DistributedLocker it also excludes regions running on other replicas.
type LockRegistry struct {
	mu    sync.Mutex            // Global lock for the map
	locks map[string]*lockEntry // Map of active locks

	locker ports.DistributedLocker // Optional distributed locker
	ttl    time.Duration           // Lease of distributed locks
	logger *slog.Logger
}

// LockOption configures the LockRegistry.
type LockOption func(*LockRegistry)

// WithDistributedLocker enables cross-replica locking with the given lease.
func WithDistributedLocker(locker ports.DistributedLocker, ttl time.Duration) LockOption {
	return func(r *LockRegistry) {
		r.locker = locker
		if ttl > 0 {
			r.ttl = ttl
		}
	}
}

// WithLockLogger configures a logger for deferred unlock failures.
func WithLockLogger(logger *slog.Logger) LockOption {
	return func(r *LockRegistry) {
		r.logger = logger
	}
}

// NewLockRegistry creates an empty registry.
func NewLockRegistry(opts ...LockOption) *LockRegistry {
	r := &LockRegistry{
		locks:  make(map[string]*lockEntry),
		ttl:    30 * time.Second,
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// acquire gets or creates a lock entry and increments its reference count.
// The caller MUST call release(id) once done with the entry.
func (r *LockRegistry) acquire(id string) *lockEntry {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, exists := r.locks[id]
	if !exists {
		entry = &lockEntry{sem: make(chan struct{}, 1)}
		r.locks[id] = entry
	}
	entry.refs++
	return entry
}

// release decrements the reference count and deletes the entry if it reaches zero.
func (r *LockRegistry) release(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, exists := r.locks[id]
	if !exists {
		return
	}
	entry.refs--
	if entry.refs <= 0 {
		delete(r.locks, id)
	}
}

// Active returns the number of lock entries currently referenced.
func (r *LockRegistry) Active() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.locks)
}

// WithLock runs fn while holding the lock named id. Waiting has no timeout;
// it only ends early when ctx is cancelled.
func (r *LockRegistry) WithLock(ctx context.Context, id string, fn func(context.Context) error) error {
	entry := r.acquire(id)
	defer r.release(id)

	select {
	case entry.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-entry.sem }()

	if r.locker != nil {
		unlock, err := r.locker.Lock(ctx, "sync:"+id, r.ttl)
		if err != nil {
			return fmt.Errorf("failed to acquire distributed lock: %w", err)
		}
		defer func() {
			if err := unlock(context.WithoutCancel(ctx)); err != nil {
				r.logger.Warn("Failed to release distributed lock (will expire via TTL)",
					"lock", id,
					"err", err,
				)
			}
		}()
	}

	return fn(ctx)
}
