// Package semantic provides a vector index over canonical edge text, used as
// a fuzzy fallback for queries that match nothing exactly.
package semantic

import (
	"context"
	"fmt"
	"math"
	"math/rand"
)

// Embedder turns text into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimension() int
}

// HashEmbedder generates deterministic embeddings seeded by a text hash.
// Identical terms always land on identical vectors and lexically overlapping
// edge ids land nearby, which is enough for local similarity search without
// an external embedding service.
type HashEmbedder struct {
	dimension int
}

// NewHashEmbedder creates an embedder with the given dimension.
func NewHashEmbedder(dimension int) *HashEmbedder {
	if dimension <= 0 {
		dimension = 128
	}
	return &HashEmbedder{dimension: dimension}
}

// Dimension returns the embedding width.
func (h *HashEmbedder) Dimension() int { return h.dimension }

// Embed produces a unit vector: a shared component per character trigram so
// overlapping ids correlate, normalized at the end. Text shorter than three
// bytes has no trigram and yields the zero vector.
func (h *HashEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	if text == "" {
		return nil, fmt.Errorf("cannot embed empty text")
	}

	vec := make([]float64, h.dimension)
	for i := 0; i+3 <= len(text); i++ {
		seed := int64(0)
		for _, c := range text[i : i+3] {
			seed = seed*31 + int64(c)
		}
		rng := rand.New(rand.NewSource(seed))
		for d := 0; d < h.dimension; d++ {
			vec[d] += rng.NormFloat64()
		}
	}

	norm := 0.0
	for _, v := range vec {
		norm += v * v
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		norm = 1
	}
	out := make([]float32, h.dimension)
	for i, v := range vec {
		out[i] = float32(v / norm)
	}
	return out, nil
}
