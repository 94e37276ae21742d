// Package chromem provides the vector-capable backend on top of
// chromem-go, a pure Go embedded vector database. Documents live in one
// collection per category; a process-local entry index serves exact Get
// lookups and filtering, since chromem-go only answers vector queries.
//
// The database is in-memory; use the sqlite, redis, or file backend
// when memory must survive a process restart.
package chromem

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	chromem "github.com/philippgille/chromem-go"

	"github.com/substratelabs/recall/memory"
)

// Store is a chromem-go backed memory.Store. Safe for concurrent use.
type Store struct {
	db     *chromem.DB
	logger *slog.Logger

	mu          sync.RWMutex
	entries     map[string]memory.Entry
	collections map[memory.Category]*chromem.Collection
	closed      bool
}

var _ memory.Store = (*Store)(nil)

// New creates an empty chromem store.
func New(logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		db:          chromem.NewDB(),
		logger:      logger,
		entries:     make(map[string]memory.Entry),
		collections: make(map[memory.Category]*chromem.Collection),
	}, nil
}

// collection returns the per-category collection, creating it on first
// use. Caller must hold the write lock.
func (s *Store) collection(cat memory.Category) (*chromem.Collection, error) {
	if col, ok := s.collections[cat]; ok {
		return col, nil
	}
	name := fmt.Sprintf("recall_%s", cat)
	// No embedding func: callers provide embeddings. Default cosine
	// distance.
	col, err := s.db.CreateCollection(name, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("create collection %s: %w", name, err)
	}
	s.collections[cat] = col
	return col, nil
}

// Store replaces the entry at entry.Key. Entries with an embedding are
// mirrored into the category collection; entries without one stay
// keyword-only in the index.
func (s *Store) Store(ctx context.Context, entry memory.Entry) error {
	if entry.Key == "" {
		return memory.ErrInvalidKey
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return memory.ErrClosed
	}

	// Drop any previous document for this key, also when the category
	// changed or the new write carries no embedding. The previous
	// entry is kept around so a failed add can put it back.
	var prev *memory.Entry
	if p, ok := s.entries[entry.Key]; ok {
		c := p.Clone()
		prev = &c
		entry.CreatedAt = p.CreatedAt
		if col, ok := s.collections[p.Category]; ok && len(p.Embedding) > 0 {
			if err := col.Delete(ctx, nil, nil, entry.Key); err != nil {
				s.logger.Warn("failed to drop stale document", "key", entry.Key, "error", err)
			}
		}
	}

	if len(entry.Embedding) > 0 {
		col, err := s.collection(entry.Category)
		if err != nil {
			s.restoreDocument(ctx, prev)
			return err
		}
		doc := chromem.Document{
			ID:        entry.Key,
			Content:   entry.Content,
			Embedding: entry.Embedding,
			Metadata: map[string]string{
				"session_id": entry.SessionID,
				"category":   string(entry.Category),
			},
		}
		if err := col.AddDocument(ctx, doc); err != nil {
			s.restoreDocument(ctx, prev)
			return fmt.Errorf("add document: %w", err)
		}
	}

	s.entries[entry.Key] = entry.Clone()
	return nil
}

// restoreDocument re-adds a previously dropped document after a failed
// replace, so the index and the collections stay consistent. Caller
// must hold the write lock.
func (s *Store) restoreDocument(ctx context.Context, prev *memory.Entry) {
	if prev == nil || len(prev.Embedding) == 0 {
		return
	}
	col, err := s.collection(prev.Category)
	if err != nil {
		s.logger.Error("failed to restore replaced document", "key", prev.Key, "error", err)
		return
	}
	doc := chromem.Document{
		ID:        prev.Key,
		Content:   prev.Content,
		Embedding: prev.Embedding,
		Metadata: map[string]string{
			"session_id": prev.SessionID,
			"category":   string(prev.Category),
		},
	}
	if err := col.AddDocument(ctx, doc); err != nil {
		s.logger.Error("failed to restore replaced document", "key", prev.Key, "error", err)
	}
}

// Get returns the entry at key from the index, or memory.ErrNotFound.
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

// Recall queries the category collections by embedding and re-scores
// the hits with the keyword leg. Without a query embedding it degrades
// to a keyword-only scan of the index.
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

	var cols []*chromem.Collection
	if len(q.Embedding) > 0 {
		if q.Category != "" {
			if col, ok := s.collections[q.Category]; ok {
				cols = append(cols, col)
			}
		} else {
			for _, col := range s.collections {
				cols = append(cols, col)
			}
		}
	}
	s.mu.RUnlock()

	if len(q.Embedding) == 0 {
		return memory.Rank(q, candidates), nil
	}

	// Vector scores per key from chromem, keyword leg client-side.
	limit := q.Limit
	if limit <= 0 {
		limit = 10
	}
	vecScores := make(map[string]float64)
	var where map[string]string
	if q.SessionID != "" {
		where = map[string]string{"session_id": q.SessionID}
	}
	for _, col := range cols {
		results, err := s.queryCollection(ctx, col, q.Embedding, limit*2, where)
		if err != nil {
			return nil, err
		}
		for _, r := range results {
			vecScores[r.ID] = float64(r.Similarity)
		}
	}

	var out []memory.RetrievalResult
	for _, e := range candidates {
		kw := memory.KeywordScore(q.Text, e.Content)
		vec, hasVec := vecScores[e.Key]
		if !hasVec && len(e.Embedding) > 0 {
			// The collection query returns only its top hits. An
			// embedded entry beyond that cutoff still has a vector
			// leg; score it client-side rather than letting the
			// keyword weight renormalize to 1.0.
			vec = memory.CosineSimilarity(q.Embedding, e.Embedding)
			hasVec = true
		}
		score := memory.Combine(q.Weights, vec, kw, hasVec)
		if score <= 0 {
			continue
		}
		out = append(out, memory.RetrievalResult{Entry: e.Clone(), Score: score})
	}
	memory.SortResults(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// queryCollection wraps QueryEmbedding, retrying with smaller limits:
// chromem-go rejects nResults larger than the collection.
func (s *Store) queryCollection(ctx context.Context, col *chromem.Collection, embedding []float32, limit int, where map[string]string) ([]chromem.Result, error) {
	for n := limit; n >= 1; n-- {
		results, err := col.QueryEmbedding(ctx, embedding, n, where, nil)
		if err == nil {
			return results, nil
		}
		if isInsufficientDocsError(err) {
			if n == 1 {
				return nil, nil // collection is empty
			}
			continue
		}
		return nil, fmt.Errorf("chromem query: %w", err)
	}
	return nil, nil
}

// Forget removes the entry and its document; missing keys succeed.
func (s *Store) Forget(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return memory.ErrClosed
	}
	entry, ok := s.entries[key]
	if !ok {
		return nil
	}
	if col, ok := s.collections[entry.Category]; ok && len(entry.Embedding) > 0 {
		if err := col.Delete(ctx, nil, nil, key); err != nil {
			return fmt.Errorf("delete document: %w", err)
		}
	}
	delete(s.entries, key)
	return nil
}

// Close marks the store closed. chromem keeps everything in memory, so
// there is nothing else to release.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.entries = nil
	return nil
}

// isInsufficientDocsError matches chromem-go's error for nResults
// exceeding the collection size.
func isInsufficientDocsError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "nResults must be") || strings.Contains(msg, "number of documents")
}
