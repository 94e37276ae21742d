// Package mock provides a deterministic embedder for tests and offline
// development. Vectors are generated from a hash of the text, so equal
// texts always embed identically; the vectors carry no real semantics.
package mock

import (
	"context"
	"hash/fnv"
	"math"
)

// Embedder is a deterministic hash-based memory.Embedder.
type Embedder struct {
	dimensions int
}

// New creates a mock embedder with the given vector size. Sizes below 1
// default to 384, matching common sentence-transformer models.
func New(dimensions int) *Embedder {
	if dimensions < 1 {
		dimensions = 384
	}
	return &Embedder{dimensions: dimensions}
}

// Embed derives a unit vector from the FNV hash of the text.
func (m *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	h := fnv.New64a()
	h.Write([]byte(text))
	seed := h.Sum64()

	embedding := make([]float32, m.dimensions)
	for i := 0; i < m.dimensions; i++ {
		// LCG keyed by the text hash.
		seed = seed*6364136223846793005 + 1442695040888963407
		embedding[i] = float32(int64(seed)) / float32(math.MaxInt64)
	}
	return normalize(embedding), nil
}

// Dimensions returns the embedding size.
func (m *Embedder) Dimensions() int {
	return m.dimensions
}

// normalize scales the vector to unit length.
func normalize(vec []float32) []float32 {
	var norm float32
	for _, v := range vec {
		norm += v * v
	}
	if norm == 0 {
		return vec
	}
	norm = float32(math.Sqrt(float64(norm)))
	for i, v := range vec {
		vec[i] = v / norm
	}
	return vec
}
