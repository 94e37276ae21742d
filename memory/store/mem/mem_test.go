package mem_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/substratelabs/recall/memory"
	"github.com/substratelabs/recall/memory/store/mem"
)

func TestStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := mem.New()

	entry := memory.Entry{
		Key:       "k1",
		Content:   "remember the milk",
		Category:  memory.CategoryFact,
		SessionID: "alice",
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	require.NoError(t, s.Store(ctx, entry))

	got, err := s.Get(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, entry.Content, got.Content)

	_, err = s.Get(ctx, "absent")
	assert.ErrorIs(t, err, memory.ErrNotFound)
}

func TestStorePreservesCreatedAt(t *testing.T) {
	ctx := context.Background()
	s := mem.New()

	created := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, s.Store(ctx, memory.Entry{
		Key: "k1", Content: "v1", Category: memory.CategoryFact,
		CreatedAt: created, UpdatedAt: created,
	}))

	later := created.Add(time.Hour)
	require.NoError(t, s.Store(ctx, memory.Entry{
		Key: "k1", Content: "v2", Category: memory.CategoryFact,
		CreatedAt: later, UpdatedAt: later,
	}))

	got, err := s.Get(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, "v2", got.Content)
	assert.True(t, got.CreatedAt.Equal(created))
	assert.True(t, got.UpdatedAt.Equal(later))
}

func TestStoreRejectsEmptyKey(t *testing.T) {
	s := mem.New()
	err := s.Store(context.Background(), memory.Entry{Content: "x"})
	assert.ErrorIs(t, err, memory.ErrInvalidKey)
}

func TestRecallFilters(t *testing.T) {
	ctx := context.Background()
	s := mem.New()

	entries := []memory.Entry{
		{Key: "a", Content: "standup summary for sprint", Category: memory.CategoryFact, SessionID: "alice"},
		{Key: "b", Content: "standup summary for sprint", Category: memory.CategoryFact, SessionID: "bob"},
		{Key: "c", Content: "standup summary for sprint", Category: memory.CategoryToolResult, SessionID: "alice"},
	}
	for _, e := range entries {
		require.NoError(t, s.Store(ctx, e))
	}

	results, err := s.Recall(ctx, memory.Query{
		Text:      "standup summary",
		Limit:     10,
		Category:  memory.CategoryFact,
		SessionID: "alice",
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].Entry.Key)
}

func TestForgetMissingKey(t *testing.T) {
	s := mem.New()
	assert.NoError(t, s.Forget(context.Background(), "never-stored"))
}

func TestConcurrentWritesOneKey(t *testing.T) {
	ctx := context.Background()
	s := mem.New()

	var g errgroup.Group
	contents := make([]string, 16)
	for i := range contents {
		contents[i] = fmt.Sprintf("payload-%d", i)
	}
	for _, c := range contents {
		c := c
		g.Go(func() error {
			return s.Store(ctx, memory.Entry{Key: "shared", Content: c, Category: memory.CategoryFact})
		})
	}
	require.NoError(t, g.Wait())

	// Racing writers leave exactly one of the written contents.
	got, err := s.Get(ctx, "shared")
	require.NoError(t, err)
	assert.Contains(t, contents, got.Content)
	assert.Equal(t, 1, s.Len())
}

func TestConcurrentWritesDistinctKeys(t *testing.T) {
	ctx := context.Background()
	s := mem.New()

	var g errgroup.Group
	for i := 0; i < 32; i++ {
		i := i
		g.Go(func() error {
			key := fmt.Sprintf("key-%d", i)
			return s.Store(ctx, memory.Entry{Key: key, Content: key, Category: memory.CategoryFact})
		})
	}
	require.NoError(t, g.Wait())
	assert.Equal(t, 32, s.Len())
}

func TestClosedStore(t *testing.T) {
	ctx := context.Background()
	s := mem.New()
	require.NoError(t, s.Close())

	assert.ErrorIs(t, s.Store(ctx, memory.Entry{Key: "k", Category: memory.CategoryFact}), memory.ErrClosed)
	_, err := s.Get(ctx, "k")
	assert.ErrorIs(t, err, memory.ErrClosed)
	_, err = s.Recall(ctx, memory.Query{Text: "k"})
	assert.ErrorIs(t, err, memory.ErrClosed)
	assert.ErrorIs(t, s.Forget(ctx, "k"), memory.ErrClosed)
}
