package lock

import (
	"context"
	"errors"
	"time"
)

var (
	ErrLockExists   = errors.New("lock already held for resource")
	ErrLockNotFound = errors.New("lock not found")
)

// Lock is a persisted, time-bounded, exclusively held claim on a resource key.
type Lock struct {
	ResourceKey string
	LockID      string
	AcquiredAt  time.Time
	ExpiresAt   time.Time
}

// Expired reports whether the lock's lease has lapsed at the given instant.
func (l Lock) Expired(now time.Time) bool {
	return !l.ExpiresAt.After(now)
}

// Store is the shared persistent table backing the lock manager. The store
// must enforce at most one row per resource key; Insert for an existing key
// returns ErrLockExists whether or not that row has expired. All manager
// correctness rests on this uniqueness guarantee, never on in-process state.
type Store interface {
	// Insert atomically creates the lock row for l.ResourceKey.
	Insert(ctx context.Context, l Lock) error

	// Get returns the current row for key, or ErrLockNotFound.
	Get(ctx context.Context, key string) (Lock, error)

	// Delete removes the row matching both key and lock id. Returns false
	// when no such row existed, which callers treat as already released.
	Delete(ctx context.Context, key, lockID string) (bool, error)

	// DeleteExpired removes every row whose expiry precedes now and
	// returns the affected resource keys.
	DeleteExpired(ctx context.Context, now time.Time) ([]string, error)

	// List returns current rows, restricted to key when key is non-empty.
	List(ctx context.Context, key string) ([]Lock, error)
}
