package lock

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestManager(t *testing.T) (*Manager, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore()
	m := NewManager(store, testLogger(), Options{
		TTL:        time.Minute,
		MaxRetries: 3,
		RetryDelay: time.Millisecond,
	})
	t.Cleanup(m.Close)
	return m, store
}

func TestNormalizeKey(t *testing.T) {
	assert.Equal(t, "slot:abc", NormalizeKey("  Slot:ABC "))
	assert.Equal(t, NormalizeKey("same"), NormalizeKey("same"))

	long := strings.Repeat("x", 500)
	digest := NormalizeKey(long)
	assert.True(t, strings.HasPrefix(digest, "h:"))
	assert.Len(t, digest, 2+64)
	assert.Equal(t, digest, NormalizeKey(long))
	assert.NotEqual(t, digest, NormalizeKey(long+"y"))
}

func TestAcquireMutualExclusion(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	const goroutines = 25
	var wg sync.WaitGroup
	var mu sync.Mutex
	var granted int

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			ok, err := m.Acquire(ctx, "slot:contended", fmt.Sprintf("holder-%d", n), Options{
				MaxRetries: 1,
				RetryDelay: time.Millisecond,
			})
			require.NoError(t, err)
			if ok {
				mu.Lock()
				granted++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, granted, "exactly one concurrent acquire may win")
	assert.True(t, m.IsLocked(ctx, "slot:contended"))
}

func TestAcquireReclaimsExpired(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	ok, err := m.Acquire(ctx, "slot:s1", "crashed-holder", Options{TTL: 20 * time.Millisecond, MaxRetries: 1})
	require.NoError(t, err)
	require.True(t, ok)

	// No release; the lease simply lapses.
	time.Sleep(30 * time.Millisecond)

	ok, err = m.Acquire(ctx, "slot:s1", "new-holder", Options{MaxRetries: 1})
	require.NoError(t, err)
	assert.True(t, ok, "expired lock must be reclaimable without explicit release")
}

func TestAcquireBackoffDoublesPerAttempt(t *testing.T) {
	store := NewMemoryStore()
	m := NewManager(store, testLogger(), Options{TTL: time.Minute, MaxRetries: 3, RetryDelay: 10 * time.Millisecond})
	t.Cleanup(m.Close)

	var delays []time.Duration
	m.sleep = func(_ context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}

	ctx := context.Background()
	ok, err := m.Acquire(ctx, "slot:held", "first", Options{})
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = m.Acquire(ctx, "slot:held", "second", Options{})
	require.NoError(t, err)
	assert.False(t, ok, "retries exhausted must yield false, not an error")
	assert.Equal(t, []time.Duration{10 * time.Millisecond, 20 * time.Millisecond, 40 * time.Millisecond}, delays)
}

func TestReleaseRequiresMatchingLockID(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	ok, err := m.Acquire(ctx, "slot:s1", "owner", Options{})
	require.NoError(t, err)
	require.True(t, ok)

	assert.False(t, m.Release(ctx, "slot:s1", "impostor"))
	assert.True(t, m.IsLocked(ctx, "slot:s1"))

	assert.True(t, m.Release(ctx, "slot:s1", "owner"))
	assert.False(t, m.IsLocked(ctx, "slot:s1"))
}

func TestWithLockReleasesOnSuccessAndError(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	var ran bool
	err := m.WithLock(ctx, "slot:s1", Options{}, func(ctx context.Context) error {
		ran = true
		assert.True(t, m.IsLocked(ctx, "slot:s1"))
		return nil
	})
	require.NoError(t, err)
	assert.True(t, ran)
	assert.False(t, m.IsLocked(ctx, "slot:s1"), "lock must be released after a normal return")

	opErr := errors.New("operation exploded")
	err = m.WithLock(ctx, "slot:s1", Options{}, func(ctx context.Context) error {
		return opErr
	})
	assert.ErrorIs(t, err, opErr, "the operation's error must come back unchanged")
	assert.False(t, m.IsLocked(ctx, "slot:s1"), "lock must be released after an error too")
}

func TestWithLockDoesNotRunOpWhenContended(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	ok, err := m.Acquire(ctx, "slot:s1", "holder", Options{})
	require.NoError(t, err)
	require.True(t, ok)

	var ran bool
	err = m.WithLock(ctx, "slot:s1", Options{MaxRetries: 1, RetryDelay: time.Millisecond}, func(ctx context.Context) error {
		ran = true
		return nil
	})
	assert.ErrorIs(t, err, ErrNotAcquired)
	assert.Contains(t, err.Error(), "slot:s1")
	assert.False(t, ran)
}

func TestWithLocksSortsKeysAndNeverDeadlocks(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	run := func(keys []string) error {
		return m.WithLocks(ctx, keys, Options{MaxRetries: 8, RetryDelay: 2 * time.Millisecond}, func(ctx context.Context) error {
			time.Sleep(10 * time.Millisecond)
			return nil
		})
	}

	done := make(chan error, 2)
	go func() { done <- run([]string{"b", "a"}) }()
	go func() { done <- run([]string{"a", "b"}) }()

	for i := 0; i < 2; i++ {
		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("deadlock: opposite-order multi-lock callers never finished")
		}
	}

	assert.False(t, m.IsLocked(ctx, "a"))
	assert.False(t, m.IsLocked(ctx, "b"))
}

// insertOrderStore records the resource keys of successful inserts so
// tests can observe acquisition order.
type insertOrderStore struct {
	*MemoryStore
	mu    sync.Mutex
	order []string
}

func (s *insertOrderStore) Insert(ctx context.Context, l Lock) error {
	err := s.MemoryStore.Insert(ctx, l)
	if err == nil {
		s.mu.Lock()
		s.order = append(s.order, l.ResourceKey)
		s.mu.Unlock()
	}
	return err
}

func (s *insertOrderStore) drain() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.order
	s.order = nil
	return out
}

func TestWithLocksAcquiresInNormalizedOrder(t *testing.T) {
	store := &insertOrderStore{MemoryStore: NewMemoryStore()}
	m := NewManager(store, testLogger(), Options{TTL: time.Minute, MaxRetries: 1, RetryDelay: time.Millisecond})
	t.Cleanup(m.Close)
	ctx := context.Background()

	noop := func(ctx context.Context) error { return nil }

	// Different spellings of the same resource pair must acquire in the
	// same effective order, or opposite-spelling callers could deadlock.
	require.NoError(t, m.WithLocks(ctx, []string{"B", " a "}, Options{}, noop))
	assert.Equal(t, []string{"a", "b"}, store.drain())

	require.NoError(t, m.WithLocks(ctx, []string{"b", "a"}, Options{}, noop))
	assert.Equal(t, []string{"a", "b"}, store.drain())

	// Spellings that normalize to one key are acquired once, not twice.
	require.NoError(t, m.WithLocks(ctx, []string{"A", "a", " a"}, Options{}, noop))
	assert.Equal(t, []string{"a"}, store.drain())
}

func TestWithLocksReleasesPartialAcquisitions(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	ok, err := m.Acquire(ctx, "b", "holder", Options{})
	require.NoError(t, err)
	require.True(t, ok)

	err = m.WithLocks(ctx, []string{"c", "a", "b"}, Options{MaxRetries: 1, RetryDelay: time.Millisecond}, func(ctx context.Context) error {
		t.Fatal("operation must not run when any lock is missing")
		return nil
	})
	assert.ErrorIs(t, err, ErrNotAllAcquired)

	// a was acquired before b failed and must have been rolled back.
	assert.False(t, m.IsLocked(ctx, "a"))
	assert.False(t, m.IsLocked(ctx, "c"))
	assert.True(t, m.IsLocked(ctx, "b"))
}

func TestCleanupExpiredIsIdempotent(t *testing.T) {
	m, store := newTestManager(t)
	ctx := context.Background()

	past := time.Now().Add(-time.Minute)
	for _, key := range []string{"x", "y"} {
		require.NoError(t, store.Insert(ctx, Lock{ResourceKey: key, LockID: "dead", AcquiredAt: past.Add(-time.Second), ExpiresAt: past}))
	}
	ok, err := m.Acquire(ctx, "alive", "holder", Options{})
	require.NoError(t, err)
	require.True(t, ok)

	n, err := m.CleanupExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = m.CleanupExpired(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "second sweep in a row must be a no-op")

	assert.True(t, m.IsLocked(ctx, "alive"), "sweep must not touch live locks")
}

func TestIsLockedIgnoresExpiredRows(t *testing.T) {
	m, store := newTestManager(t)
	ctx := context.Background()

	past := time.Now().Add(-time.Second)
	require.NoError(t, store.Insert(ctx, Lock{ResourceKey: "stale", LockID: "dead", AcquiredAt: past.Add(-time.Minute), ExpiresAt: past}))

	assert.False(t, m.IsLocked(ctx, "stale"))
}

func TestLockInfo(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	for _, key := range []string{"slot:1", "slot:2"} {
		ok, err := m.Acquire(ctx, key, "holder-"+key, Options{})
		require.NoError(t, err)
		require.True(t, ok)
	}

	all := m.LockInfo(ctx, "")
	assert.Len(t, all, 2)

	one := m.LockInfo(ctx, "slot:1")
	require.Len(t, one, 1)
	assert.Equal(t, "slot:1", one[0].ResourceKey)
	assert.True(t, one[0].ExpiresAt.After(time.Now()))

	assert.Empty(t, m.LockInfo(ctx, "slot:unknown"))
}
