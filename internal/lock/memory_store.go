package lock

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps lock rows in a process-local map. It carries the same
// uniqueness semantics as the durable stores and exists for tests and the
// offline simulator; it obviously provides no cross-process exclusion.
type MemoryStore struct {
	mu    sync.Mutex
	locks map[string]Lock
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{locks: make(map[string]Lock)}
}

func (s *MemoryStore) Insert(_ context.Context, l Lock) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.locks[l.ResourceKey]; ok {
		return ErrLockExists
	}
	s.locks[l.ResourceKey] = l
	return nil
}

func (s *MemoryStore) Get(_ context.Context, key string) (Lock, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[key]
	if !ok {
		return Lock{}, ErrLockNotFound
	}
	return l, nil
}

func (s *MemoryStore) Delete(_ context.Context, key, lockID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[key]
	if !ok || l.LockID != lockID {
		return false, nil
	}
	delete(s.locks, key)
	return true, nil
}

func (s *MemoryStore) DeleteExpired(_ context.Context, now time.Time) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var keys []string
	for key, l := range s.locks {
		if l.Expired(now) {
			delete(s.locks, key)
			keys = append(keys, key)
		}
	}
	return keys, nil
}

func (s *MemoryStore) List(_ context.Context, key string) ([]Lock, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if key != "" {
		if l, ok := s.locks[key]; ok {
			return []Lock{l}, nil
		}
		return nil, nil
	}
	out := make([]Lock, 0, len(s.locks))
	for _, l := range s.locks {
		out = append(out, l)
	}
	return out, nil
}
