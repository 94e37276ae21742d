package chromem

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/substratelabs/recall/memory"
)

func TestRestoreDocumentAfterFailedReplace(t *testing.T) {
	ctx := context.Background()
	s, err := New(nil)
	require.NoError(t, err)
	defer s.Close()

	entry := memory.Entry{
		Key:       "k",
		Content:   "original payload",
		Category:  memory.CategoryFact,
		Embedding: []float32{1, 0},
	}
	require.NoError(t, s.Store(ctx, entry))

	// Drop the document the way a replace does before its add step,
	// then run the failed-add restore. The collection itself must hold
	// the document again afterwards, not just the entry index.
	s.mu.Lock()
	col := s.collections[memory.CategoryFact]
	require.NotNil(t, col)
	require.NoError(t, col.Delete(ctx, nil, nil, "k"))

	hits, err := s.queryCollection(ctx, col, []float32{1, 0}, 5, nil)
	require.NoError(t, err)
	require.Empty(t, hits)

	prev := entry.Clone()
	s.restoreDocument(ctx, &prev)

	hits, err = s.queryCollection(ctx, col, []float32{1, 0}, 5, nil)
	s.mu.Unlock()
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "k", hits[0].ID)
}
