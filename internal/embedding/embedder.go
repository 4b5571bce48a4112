// Package embedding converts text into fixed-length float vectors via a
// remote embedding model.
package embedding

import (
	"context"
	"errors"
)

// ErrUnavailable is returned when the embedding call fails or times out.
// Callers must never substitute a zero vector: a meaningless point poisons
// every similarity search that follows.
var ErrUnavailable = errors.New("embedding unavailable")

// Embedder converts a single text into an embedding vector. All vectors
// produced by one Embedder share the same dimensionality.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
}
