package memory

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/ristretto"
	"github.com/google/uuid"
)

// Filters narrows a recall to one category and/or session tag.
type Filters struct {
	Category  Category
	SessionID string
}

// Service is the memory facade callers use. It hides the backend choice
// behind the Store contract and layers on the concerns every backend
// shares: query/content embedding through the optional Embedder (with
// memoization), graceful degradation to keyword-only recall, and a
// timeout guard against a hung backend.
type Service struct {
	store    Store
	embedder Embedder
	weights  Weights
	timeout  time.Duration
	logger   *slog.Logger

	// embedCache memoizes text → embedding so repeated stores and
	// recalls of the same text skip the embedder.
	embedCache *ristretto.Cache
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithEmbedder attaches an embedding provider. Without one the service
// serves keyword-only recall.
func WithEmbedder(e Embedder) ServiceOption {
	return func(s *Service) { s.embedder = e }
}

// WithWeights overrides the default hybrid score blend.
func WithWeights(w Weights) ServiceOption {
	return func(s *Service) { s.weights = w }
}

// WithTimeout overrides the per-operation backend timeout guard.
func WithTimeout(d time.Duration) ServiceOption {
	return func(s *Service) { s.timeout = d }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) ServiceOption {
	return func(s *Service) { s.logger = l }
}

// DefaultTimeout bounds each backend call from the facade.
const DefaultTimeout = 5 * time.Second

// NewService wraps a backend store. Configuration is validated here,
// before first use.
func NewService(store Store, opts ...ServiceOption) (*Service, error) {
	s := &Service{
		store:   store,
		weights: DefaultWeights(),
		timeout: DefaultTimeout,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if store == nil {
		return nil, fmt.Errorf("memory: store is required")
	}
	if err := s.weights.Validate(); err != nil {
		return nil, err
	}
	if s.timeout <= 0 {
		return nil, fmt.Errorf("memory: timeout must be positive, got %v", s.timeout)
	}

	if s.embedder != nil {
		cache, err := ristretto.NewCache(&ristretto.Config{
			NumCounters: 10_000,
			MaxCost:     8 << 20, // ~8MB of cached vectors
			BufferItems: 64,
		})
		if err != nil {
			return nil, fmt.Errorf("memory: init embedding cache: %w", err)
		}
		s.embedCache = cache
	}

	return s, nil
}

// Store upserts content at key as a wholesale replacement. The content
// embedding is computed when an embedder is configured; an embedding
// failure degrades the entry to keyword-only recall and is logged, it
// never fails the write.
func (s *Service) Store(ctx context.Context, key, content string, category Category, sessionID string) error {
	if key == "" {
		return ErrInvalidKey
	}
	if err := category.Validate(); err != nil {
		return err
	}

	now := time.Now().UTC()
	entry := Entry{
		Key:       key,
		Content:   content,
		Category:  category,
		SessionID: sessionID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if vec := s.embed(ctx, content); vec != nil {
		entry.Embedding = vec
	}

	ctx, cancel := s.guard(ctx)
	defer cancel()
	if err := s.store.Store(ctx, entry); err != nil {
		return fmt.Errorf("%w: store %q: %v", ErrStorageFailed, key, err)
	}
	return nil
}

// Remember stores content under a generated key and returns it. Used
// for facts and tool results, where the caller has no natural key.
func (s *Service) Remember(ctx context.Context, content string, category Category, sessionID string) (string, error) {
	key := uuid.New().String()
	if err := s.Store(ctx, key, content, category, sessionID); err != nil {
		return "", err
	}
	return key, nil
}

// Get returns the entry at key, unfiltered by session tag. Absence is
// reported as ErrNotFound.
func (s *Service) Get(ctx context.Context, key string) (*Entry, error) {
	if key == "" {
		return nil, ErrInvalidKey
	}

	ctx, cancel := s.guard(ctx)
	defer cancel()
	return s.store.Get(ctx, key)
}

// Recall runs a ranked hybrid search. With no embedder, or when the
// embedder fails, the query degrades to pure keyword search rather than
// failing.
func (s *Service) Recall(ctx context.Context, query string, limit int, filters *Filters) ([]RetrievalResult, error) {
	if limit <= 0 {
		limit = 10
	}

	q := Query{
		Text:    query,
		Limit:   limit,
		Weights: s.weights,
	}
	if filters != nil {
		q.Category = filters.Category
		q.SessionID = filters.SessionID
	}
	q.Embedding = s.embed(ctx, query)

	ctx, cancel := s.guard(ctx)
	defer cancel()
	results, err := s.store.Recall(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("%w: recall: %v", ErrStorageFailed, err)
	}
	s.logger.Debug("recall served", "query_len", len(query), "results", len(results), "semantic", q.Embedding != nil)
	return results, nil
}

// Forget deletes the entry at key. Deleting a missing key succeeds.
func (s *Service) Forget(ctx context.Context, key string) error {
	if key == "" {
		return ErrInvalidKey
	}

	ctx, cancel := s.guard(ctx)
	defer cancel()
	if err := s.store.Forget(ctx, key); err != nil {
		return fmt.Errorf("%w: forget %q: %v", ErrStorageFailed, key, err)
	}
	return nil
}

// Close releases the embedding cache and the backend.
func (s *Service) Close() error {
	if s.embedCache != nil {
		s.embedCache.Close()
	}
	return s.store.Close()
}

// embed returns the vector for text, or nil when no embedder is
// configured, the text is empty, or embedding fails. Failures are
// logged and degrade recall to the keyword leg.
func (s *Service) embed(ctx context.Context, text string) []float32 {
	if s.embedder == nil || text == "" {
		return nil
	}

	if cached, ok := s.embedCache.Get(text); ok {
		if vec, ok := cached.([]float32); ok {
			return vec
		}
	}

	vec, err := s.embedder.Embed(ctx, text)
	if err != nil {
		s.logger.Warn("embedding failed, degrading to keyword search", "error", err)
		return nil
	}
	s.embedCache.Set(text, vec, int64(len(vec)*4))
	return vec
}

// guard bounds a backend call with the configured timeout.
func (s *Service) guard(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}
