package noop_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/substratelabs/recall/memory"
	"github.com/substratelabs/recall/memory/store/noop"
)

func TestDiscardsEverything(t *testing.T) {
	ctx := context.Background()
	s := noop.New()
	defer s.Close()

	require.NoError(t, s.Store(ctx, memory.Entry{
		Key: "k", Content: "discarded", Category: memory.CategoryFact,
	}))

	_, err := s.Get(ctx, "k")
	assert.ErrorIs(t, err, memory.ErrNotFound)

	results, err := s.Recall(ctx, memory.Query{Text: "discarded", Limit: 5})
	require.NoError(t, err)
	assert.Empty(t, results)

	assert.NoError(t, s.Forget(ctx, "k"))
}

func TestRejectsEmptyKey(t *testing.T) {
	s := noop.New()
	err := s.Store(context.Background(), memory.Entry{Content: "x"})
	assert.ErrorIs(t, err, memory.ErrInvalidKey)
}
