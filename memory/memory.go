package memory

import (
	"context"
	"fmt"
	"time"
)

// Category classifies what kind of payload an entry carries. Entries of
// different categories share one backend; the category keeps them
// distinguishable for filtered recall.
type Category string

const (
	// CategoryConversation holds serialized conversation histories
	// written by the persistence bridge.
	CategoryConversation Category = "conversation"

	// CategoryFact holds standalone facts recorded for later recall.
	CategoryFact Category = "fact"

	// CategoryToolResult holds outputs captured from tool executions.
	CategoryToolResult Category = "tool_result"

	// CategoryCustom holds caller-defined payloads that fit none of
	// the built-in categories.
	CategoryCustom Category = "custom"
)

// IsValid reports whether the category is one of the defined constants.
func (c Category) IsValid() bool {
	switch c {
	case CategoryConversation, CategoryFact, CategoryToolResult, CategoryCustom:
		return true
	default:
		return false
	}
}

// Validate returns ErrInvalidCategory for unknown categories.
func (c Category) Validate() error {
	if !c.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidCategory, c)
	}
	return nil
}

// Entry is one key-addressed record in a store.
//
// The key is the sole carrier of uniqueness and isolation: Get is never
// filtered by SessionID. SessionID is a secondary, defensive tag that
// load paths check against the expected sender so a mis-derived key or
// a backend bug surfaces as "no data" instead of leaked history.
type Entry struct {
	// Key addresses the entry. Identical keys denote the same
	// isolation scope.
	Key string `json:"key"`

	// Content is the opaque payload. Store replaces it wholesale,
	// never partially.
	Content string `json:"content"`

	// Category classifies the payload.
	Category Category `json:"category"`

	// SessionID optionally tags the owning session (sender identity
	// for conversation entries). Defensive only; see Key.
	SessionID string `json:"session_id,omitempty"`

	// Embedding is the content vector when one was computed. Entries
	// without an embedding are still recallable by keyword.
	Embedding []float32 `json:"embedding,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Clone returns a deep copy so callers can mutate results freely.
func (e Entry) Clone() Entry {
	c := e
	if e.Embedding != nil {
		c.Embedding = make([]float32, len(e.Embedding))
		copy(c.Embedding, e.Embedding)
	}
	return c
}

// Query describes one recall request against a store.
type Query struct {
	// Text is the keyword query.
	Text string

	// Embedding is the query vector, nil when no embedder is
	// configured or embedding failed. Backends must degrade to
	// keyword-only scoring when it is nil.
	Embedding []float32

	// Limit caps the number of results.
	Limit int

	// Category restricts results to one category when non-empty.
	Category Category

	// SessionID restricts results to one session tag when non-empty.
	SessionID string

	// Weights blends the vector and keyword score legs.
	Weights Weights
}

// RetrievalResult pairs a recalled entry with its combined score.
// Result slices are ordered by descending score, ties broken by the
// newer UpdatedAt.
type RetrievalResult struct {
	Entry Entry   `json:"entry"`
	Score float64 `json:"score"`
}

// Store is the pluggable backend contract. Every backend implements the
// full capability set; a backend that cannot rank semantically still
// answers Recall with keyword-only scores or an empty slice, never an
// error for the missing capability.
//
// Index maintenance is the backend's responsibility: Recall reflects
// the latest committed Store/Forget with no stale window beyond the
// backend's own commit point.
type Store interface {
	// Store upserts an entry wholesale. Concurrent writes to one key
	// leave exactly one of the written contents (last-write-wins).
	Store(ctx context.Context, entry Entry) error

	// Get returns the entry at key, or ErrNotFound. Lookup is exact
	// and never filtered by SessionID.
	Get(ctx context.Context, key string) (*Entry, error)

	// Recall returns ranked results for the query.
	Recall(ctx context.Context, q Query) ([]RetrievalResult, error)

	// Forget deletes the entry at key. A missing key is not an error.
	Forget(ctx context.Context, key string) error

	// Close releases backend resources.
	Close() error
}

// Embedder converts text to a fixed-size vector for semantic
// comparison. It is an injected capability: the subsystem consumes
// embeddings but does not generate them itself.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
}
