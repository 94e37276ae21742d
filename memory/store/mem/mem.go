// Package mem provides the in-process reference backend. It keeps
// entries in a mutex-guarded map and serves full hybrid recall through
// the shared ranker. Suitable for tests and single-process deployments
// that accept losing memory on restart.
package mem

import (
	"context"
	"sync"

	"github.com/substratelabs/recall/memory"
)

// Store is a process-local memory.Store. Safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	entries map[string]memory.Entry
	closed  bool
}

var _ memory.Store = (*Store)(nil)

// New creates an empty in-memory store.
func New() *Store {
	return &Store{entries: make(map[string]memory.Entry)}
}

// Store replaces the entry at entry.Key wholesale. The map write is
// atomic under the lock, so racing writers leave exactly one of the
// written contents.
func (s *Store) Store(ctx context.Context, entry memory.Entry) error {
	if entry.Key == "" {
		return memory.ErrInvalidKey
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return memory.ErrClosed
	}
	if prev, ok := s.entries[entry.Key]; ok {
		entry.CreatedAt = prev.CreatedAt
	}
	s.entries[entry.Key] = entry.Clone()
	return nil
}

// Get returns a copy of the entry at key, or memory.ErrNotFound.
func (s *Store) Get(ctx context.Context, key string) (*memory.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, memory.ErrClosed
	}
	entry, ok := s.entries[key]
	if !ok {
		return nil, memory.ErrNotFound
	}
	c := entry.Clone()
	return &c, nil
}

// Recall linearly scans the live entries and ranks them with the
// shared hybrid ranker. The scan always reflects the latest committed
// Store/Forget.
func (s *Store) Recall(ctx context.Context, q memory.Query) ([]memory.RetrievalResult, error) {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return nil, memory.ErrClosed
	}
	candidates := make([]memory.Entry, 0, len(s.entries))
	for _, e := range s.entries {
		if q.Category != "" && e.Category != q.Category {
			continue
		}
		if q.SessionID != "" && e.SessionID != q.SessionID {
			continue
		}
		candidates = append(candidates, e)
	}
	s.mu.RUnlock()

	return memory.Rank(q, candidates), nil
}

// Forget removes the entry at key; missing keys are not an error.
func (s *Store) Forget(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return memory.ErrClosed
	}
	delete(s.entries, key)
	return nil
}

// Len returns the number of stored entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Close marks the store closed; later operations return ErrClosed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.entries = nil
	return nil
}
