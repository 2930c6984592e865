package lock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotAcquired is returned by WithLock when the lock could not be
	// obtained within the configured retries.
	ErrNotAcquired = errors.New("failed to acquire lock for resource")

	// ErrNotAllAcquired is returned by WithLocks when any key in the set
	// could not be obtained; already-held keys are released first.
	ErrNotAllAcquired = errors.New("failed to acquire all required locks")
)

const (
	DefaultTTL        = 30 * time.Second
	DefaultMaxRetries = 3
	DefaultRetryDelay = 100 * time.Millisecond
)

// Options tunes a single acquisition. Zero fields fall back to the
// manager's defaults.
type Options struct {
	TTL        time.Duration
	MaxRetries int
	RetryDelay time.Duration
}

func (o Options) withDefaults(d Options) Options {
	if o.TTL <= 0 {
		o.TTL = d.TTL
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = d.MaxRetries
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = d.RetryDelay
	}
	return o
}

// Manager provides mutual exclusion across processes backed by a shared
// Store. One instance is constructed at process start and injected into
// whatever needs locking; Close tears down its pending cleanup timers.
//
// The store row is the sole authority on who holds a lock. The in-memory
// timers only delete a row a little sooner than the sweep would; losing
// them (crash, restart) costs nothing but latency.
type Manager struct {
	store    Store
	log      *slog.Logger
	defaults Options

	// sleep is the injected backoff delay primitive.
	sleep func(ctx context.Context, d time.Duration) error

	mu     sync.Mutex
	timers map[string]*time.Timer
	closed bool
}

func NewManager(store Store, logger *slog.Logger, defaults Options) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		store:    store,
		log:      logger,
		defaults: defaults.withDefaults(Options{TTL: DefaultTTL, MaxRetries: DefaultMaxRetries, RetryDelay: DefaultRetryDelay}),
		sleep:    sleepContext,
		timers:   make(map[string]*time.Timer),
	}
}

// Acquire attempts to claim resourceKey with the caller-supplied lockID.
// A row already existing is contention, not failure: if the holder's lease
// has lapsed the row is reclaimed and the insert retried immediately,
// otherwise the attempt backs off retryDelay × 2^attempt before retrying.
// Returns (false, nil) once retries are exhausted; a non-nil error means
// the store itself failed.
func (m *Manager) Acquire(ctx context.Context, resourceKey, lockID string, opts Options) (bool, error) {
	opts = opts.withDefaults(m.defaults)
	key := NormalizeKey(resourceKey)

	for attempt := 0; attempt <= opts.MaxRetries; attempt++ {
		now := time.Now()
		err := m.store.Insert(ctx, Lock{
			ResourceKey: key,
			LockID:      lockID,
			AcquiredAt:  now,
			ExpiresAt:   now.Add(opts.TTL),
		})
		if err == nil {
			m.scheduleCleanup(key, lockID, opts.TTL)
			return true, nil
		}
		if !errors.Is(err, ErrLockExists) {
			return false, fmt.Errorf("insert lock %s: %w", key, err)
		}

		existing, getErr := m.store.Get(ctx, key)
		switch {
		case errors.Is(getErr, ErrLockNotFound):
			// Released between our insert and read; retry immediately.
			continue
		case getErr != nil:
			return false, fmt.Errorf("read contended lock %s: %w", key, getErr)
		case existing.Expired(time.Now()):
			// Crashed or stalled holder; reclaim the exact row we saw so a
			// concurrent re-acquire by someone else is left alone.
			if _, delErr := m.store.Delete(ctx, key, existing.LockID); delErr != nil {
				m.log.Warn("reclaim expired lock", "key", key, "error", delErr)
			}
			continue
		}

		if attempt == opts.MaxRetries {
			break
		}
		if err := m.sleep(ctx, opts.RetryDelay<<uint(attempt)); err != nil {
			return false, err
		}
	}
	return false, nil
}

// Release deletes the row matching both key and lockID, so a lock that
// expired and was re-acquired by another holder is never released from
// under them. Store failures are logged and reported as false; the TTL and
// sweep recover the row eventually.
func (m *Manager) Release(ctx context.Context, resourceKey, lockID string) bool {
	key := NormalizeKey(resourceKey)
	m.cancelTimer(key)

	deleted, err := m.store.Delete(ctx, key, lockID)
	if err != nil {
		m.log.Error("release lock", "key", key, "error", err)
		return false
	}
	return deleted
}

// WithLock runs op while holding resourceKey, generating a fresh lock id
// for the duration. The lock is released on every exit path, including a
// panic in op, and op's error is returned unchanged after release.
func (m *Manager) WithLock(ctx context.Context, resourceKey string, opts Options, op func(ctx context.Context) error) error {
	lockID := uuid.NewString()

	ok, err := m.Acquire(ctx, resourceKey, lockID, opts)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotAcquired, resourceKey)
	}
	// Release even when op consumed or cancelled the caller's context.
	defer m.Release(context.WithoutCancel(ctx), resourceKey, lockID)

	return op(ctx)
}

// WithLocks acquires every key, runs op, then releases all of them. Keys
// are normalized, deduplicated, and sorted before acquisition; this single
// total order over normalized keys is the only thing preventing deadlock
// between callers locking overlapping sets, so callers must come through
// here rather than nesting WithLock ad hoc. Sorting the raw spellings
// instead would let two callers naming the same resources differently
// acquire in opposite effective orders.
func (m *Manager) WithLocks(ctx context.Context, resourceKeys []string, opts Options, op func(ctx context.Context) error) error {
	seen := make(map[string]struct{}, len(resourceKeys))
	keys := make([]string, 0, len(resourceKeys))
	for _, k := range resourceKeys {
		nk := NormalizeKey(k)
		if _, ok := seen[nk]; ok {
			continue
		}
		seen[nk] = struct{}{}
		keys = append(keys, nk)
	}
	sort.Strings(keys)

	type held struct {
		key, id string
	}
	var acquired []held
	releaseAll := func() {
		rctx := context.WithoutCancel(ctx)
		for i := len(acquired) - 1; i >= 0; i-- {
			m.Release(rctx, acquired[i].key, acquired[i].id)
		}
	}

	for _, key := range keys {
		lockID := uuid.NewString()
		ok, err := m.Acquire(ctx, key, lockID, opts)
		if err != nil {
			releaseAll()
			return err
		}
		if !ok {
			releaseAll()
			return fmt.Errorf("%w: blocked on %s", ErrNotAllAcquired, key)
		}
		acquired = append(acquired, held{key: key, id: lockID})
	}

	defer releaseAll()
	return op(ctx)
}

// CleanupExpired deletes persisted rows past expiry and drops local timers
// whose lock no longer exists. Deleting a row the true owner removed
// concurrently is a benign race; running the sweep again immediately is a
// no-op. Returns the number of rows reclaimed.
func (m *Manager) CleanupExpired(ctx context.Context) (int, error) {
	reclaimed, err := m.store.DeleteExpired(ctx, time.Now())
	if err != nil {
		return 0, fmt.Errorf("delete expired locks: %w", err)
	}
	for _, key := range reclaimed {
		m.cancelTimer(key)
	}

	live, err := m.store.List(ctx, "")
	if err != nil {
		return len(reclaimed), fmt.Errorf("list locks after sweep: %w", err)
	}
	liveKeys := make(map[string]struct{}, len(live))
	for _, l := range live {
		liveKeys[l.ResourceKey] = struct{}{}
	}

	m.mu.Lock()
	for key, t := range m.timers {
		if _, ok := liveKeys[key]; !ok {
			t.Stop()
			delete(m.timers, key)
		}
	}
	m.mu.Unlock()

	return len(reclaimed), nil
}

// IsLocked reports whether a non-expired lock currently holds resourceKey.
// Store failures are logged and reported as unlocked.
func (m *Manager) IsLocked(ctx context.Context, resourceKey string) bool {
	l, err := m.store.Get(ctx, NormalizeKey(resourceKey))
	if err != nil {
		if !errors.Is(err, ErrLockNotFound) {
			m.log.Error("lock lookup", "key", resourceKey, "error", err)
		}
		return false
	}
	return !l.Expired(time.Now())
}

// LockInfo returns the current lock rows, restricted to resourceKey when
// non-empty. Store failures are logged and yield an empty result.
func (m *Manager) LockInfo(ctx context.Context, resourceKey string) []Lock {
	var key string
	if resourceKey != "" {
		key = NormalizeKey(resourceKey)
	}
	locks, err := m.store.List(ctx, key)
	if err != nil {
		m.log.Error("list locks", "key", resourceKey, "error", err)
		return nil
	}
	return locks
}

// Close cancels all pending cleanup timers. Persisted rows are left to
// their TTLs; a restarted process sweeps them as usual.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	for key, t := range m.timers {
		t.Stop()
		delete(m.timers, key)
	}
}

// scheduleCleanup arms a best-effort local deletion at TTL expiry so a
// forgotten lock frees up without waiting for the sweep. Non-authoritative:
// the store row expiring is what actually ends the lease.
func (m *Manager) scheduleCleanup(key, lockID string, ttl time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	if t, ok := m.timers[key]; ok {
		t.Stop()
	}
	m.timers[key] = time.AfterFunc(ttl, func() {
		m.cancelTimer(key)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if _, err := m.store.Delete(ctx, key, lockID); err != nil {
			m.log.Debug("expiry cleanup", "key", key, "error", err)
		}
	})
}

func (m *Manager) cancelTimer(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.timers[key]; ok {
		t.Stop()
		delete(m.timers, key)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
