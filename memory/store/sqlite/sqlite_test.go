package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/substratelabs/recall/memory"
	"github.com/substratelabs/recall/memory/store/sqlite"
)

func openTempStore(t *testing.T) *sqlite.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "memory.db")
	s, err := sqlite.Open(path, nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStoreAndGet(t *testing.T) {
	ctx := context.Background()
	s := openTempStore(t)

	now := time.Now().UTC()
	entry := memory.Entry{
		Key:       "discord_conv:111",
		Content:   `[{"role":"user","text":"hi"}]`,
		Category:  memory.CategoryConversation,
		SessionID: "111",
		Embedding: []float32{0.1, 0.2, 0.3},
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, s.Store(ctx, entry))

	got, err := s.Get(ctx, "discord_conv:111")
	require.NoError(t, err)
	assert.Equal(t, entry.Content, got.Content)
	assert.Equal(t, entry.Category, got.Category)
	assert.Equal(t, "111", got.SessionID)
	assert.Equal(t, entry.Embedding, got.Embedding)
	assert.WithinDuration(t, now, got.UpdatedAt, time.Millisecond)

	_, err = s.Get(ctx, "absent")
	assert.ErrorIs(t, err, memory.ErrNotFound)
}

func TestUpsertReplacesWholesale(t *testing.T) {
	ctx := context.Background()
	s := openTempStore(t)

	created := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, s.Store(ctx, memory.Entry{
		Key: "k", Content: "first", Category: memory.CategoryFact,
		CreatedAt: created, UpdatedAt: created,
	}))
	require.NoError(t, s.Store(ctx, memory.Entry{
		Key: "k", Content: "second", Category: memory.CategoryFact,
		CreatedAt: created, UpdatedAt: created.Add(time.Hour),
	}))

	got, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "second", got.Content)
	assert.WithinDuration(t, created, got.CreatedAt, time.Millisecond)
	assert.WithinDuration(t, created.Add(time.Hour), got.UpdatedAt, time.Millisecond)
	assert.Equal(t, 1, s.Count())
}

func TestRecallKeyword(t *testing.T) {
	ctx := context.Background()
	s := openTempStore(t)

	require.NoError(t, s.Store(ctx, memory.Entry{
		Key: "k1", Content: "the quarterly budget review happens friday", Category: memory.CategoryFact,
	}))
	require.NoError(t, s.Store(ctx, memory.Entry{
		Key: "k2", Content: "lunch options near the office", Category: memory.CategoryFact,
	}))

	results, err := s.Recall(ctx, memory.Query{Text: "quarterly budget review", Limit: 5})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "k1", results[0].Entry.Key)
}

func TestRecallKeywordExpandedFallback(t *testing.T) {
	ctx := context.Background()
	s := openTempStore(t)

	require.NoError(t, s.Store(ctx, memory.Entry{
		Key: "k1", Content: "budget spreadsheet shared with finance", Category: memory.CategoryFact,
	}))

	// The exact phrase misses; the OR-expanded keyword pass must hit.
	results, err := s.Recall(ctx, memory.Query{Text: "where is the budget", Limit: 5})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "k1", results[0].Entry.Key)
}

func TestRecallHybridPrefersVector(t *testing.T) {
	ctx := context.Background()
	s := openTempStore(t)

	require.NoError(t, s.Store(ctx, memory.Entry{
		Key: "aligned", Content: "completely different words", Category: memory.CategoryFact,
		Embedding: []float32{1, 0, 0},
	}))
	require.NoError(t, s.Store(ctx, memory.Entry{
		Key: "orthogonal", Content: "completely different words", Category: memory.CategoryFact,
		Embedding: []float32{0, 1, 0},
	}))

	results, err := s.Recall(ctx, memory.Query{
		Embedding: []float32{1, 0, 0},
		Limit:     5,
		Weights:   memory.DefaultWeights(),
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "aligned", results[0].Entry.Key)
}

func TestRecallFilters(t *testing.T) {
	ctx := context.Background()
	s := openTempStore(t)

	require.NoError(t, s.Store(ctx, memory.Entry{
		Key: "a", Content: "incident postmortem notes", Category: memory.CategoryFact, SessionID: "alice",
	}))
	require.NoError(t, s.Store(ctx, memory.Entry{
		Key: "b", Content: "incident postmortem notes", Category: memory.CategoryFact, SessionID: "bob",
	}))

	results, err := s.Recall(ctx, memory.Query{
		Text: "incident postmortem", Limit: 10, SessionID: "alice",
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].Entry.Key)
}

func TestForgetRemovesFromRecall(t *testing.T) {
	ctx := context.Background()
	s := openTempStore(t)

	require.NoError(t, s.Store(ctx, memory.Entry{
		Key: "k", Content: "ephemeral scratchpad note", Category: memory.CategoryFact,
		Embedding: []float32{1, 0},
	}))
	require.NoError(t, s.Forget(ctx, "k"))

	_, err := s.Get(ctx, "k")
	assert.ErrorIs(t, err, memory.ErrNotFound)

	results, err := s.Recall(ctx, memory.Query{
		Text: "ephemeral scratchpad", Embedding: []float32{1, 0}, Limit: 5,
	})
	require.NoError(t, err)
	assert.Empty(t, results)

	// Missing keys are not an error.
	assert.NoError(t, s.Forget(ctx, "k"))
}

func TestReopenRestoresVectors(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "memory.db")

	s, err := sqlite.Open(path, nil)
	require.NoError(t, err)
	require.NoError(t, s.Store(ctx, memory.Entry{
		Key: "k", Content: "persisted vector entry", Category: memory.CategoryFact,
		Embedding: []float32{0, 1, 0},
	}))
	require.NoError(t, s.Close())

	reopened, err := sqlite.Open(path, nil)
	require.NoError(t, err)
	defer reopened.Close()

	results, err := reopened.Recall(ctx, memory.Query{
		Embedding: []float32{0, 1, 0}, Limit: 5,
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "k", results[0].Entry.Key)
}

func TestSanitizedQueryInjection(t *testing.T) {
	ctx := context.Background()
	s := openTempStore(t)

	require.NoError(t, s.Store(ctx, memory.Entry{
		Key: "k", Content: "plain note", Category: memory.CategoryFact,
	}))

	// Operator-laden input must not error, only match or miss.
	_, err := s.Recall(ctx, memory.Query{Text: `note" OR (rank:*)`, Limit: 5})
	assert.NoError(t, err)
}
