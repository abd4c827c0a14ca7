package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math/rand"
)

// Fallback produces deterministic pseudo-embeddings without a provider.
// The vector for a given text never changes across processes or restarts,
// so retrieval stays stable when no embedding service is configured.
type Fallback struct {
	dimension int
}

// NewFallback creates a deterministic embedder.
func NewFallback(dimension int) *Fallback {
	if dimension <= 0 {
		dimension = 256
	}
	return &Fallback{dimension: dimension}
}

// Embed generates one deterministic vector per text.
func (f *Fallback) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		embeddings[i] = f.vector(text)
	}
	return embeddings, nil
}

// EmbedSingle generates a deterministic vector for a single text.
func (f *Fallback) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	return f.vector(text), nil
}

// Model returns the fallback model name.
func (f *Fallback) Model() string {
	return "deterministic-fallback"
}

// Dimension returns the embedding dimension.
func (f *Fallback) Dimension() int {
	return f.dimension
}

// vector seeds a PRNG from the text's digest and draws uniform values in
// [-1, 1].
func (f *Fallback) vector(text string) []float32 {
	sum := sha256.Sum256([]byte(text))
	seed := int64(binary.BigEndian.Uint64(sum[:8]))
	rng := rand.New(rand.NewSource(seed))

	v := make([]float32, f.dimension)
	for i := range v {
		v[i] = float32(rng.Float64()*2 - 1)
	}
	return v
}
