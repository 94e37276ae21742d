// Package noop provides the explicitly ephemeral backend: every write
// is accepted and discarded, every read finds nothing. It exists so a
// deployment can disable durable memory without callers changing
// behavior.
package noop

import (
	"context"

	"github.com/substratelabs/recall/memory"
)

// Store discards everything. Safe for concurrent use.
type Store struct{}

var _ memory.Store = (*Store)(nil)

// New creates a no-op store.
func New() *Store {
	return &Store{}
}

// Store accepts and discards the entry.
func (s *Store) Store(ctx context.Context, entry memory.Entry) error {
	if entry.Key == "" {
		return memory.ErrInvalidKey
	}
	return nil
}

// Get always reports memory.ErrNotFound.
func (s *Store) Get(ctx context.Context, key string) (*memory.Entry, error) {
	return nil, memory.ErrNotFound
}

// Recall always returns no results.
func (s *Store) Recall(ctx context.Context, q memory.Query) ([]memory.RetrievalResult, error) {
	return nil, nil
}

// Forget succeeds without doing anything.
func (s *Store) Forget(ctx context.Context, key string) error {
	return nil
}

// Close does nothing.
func (s *Store) Close() error {
	return nil
}
