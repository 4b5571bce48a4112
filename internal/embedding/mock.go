package embedding

import (
	"context"
	"hash/fnv"
	"math"
)

// Mock is a deterministic, hash-seeded embedder for tests. Identical text
// always yields an identical unit vector, so self-similarity is exactly 1.
type Mock struct {
	dimension int
}

// NewMock creates a mock embedder with the given dimensionality.
func NewMock(dimension int) *Mock {
	return &Mock{dimension: dimension}
}

func (m *Mock) Embed(_ context.Context, text string) ([]float32, error) {
	h := fnv.New64a()
	h.Write([]byte(text))
	seed := h.Sum64()

	vec := make([]float32, m.dimension)
	for i := range vec {
		seed = seed*6364136223846793005 + 1442695040888963407
		vec[i] = float32(int64(seed)) / float32(math.MaxInt64)
	}
	return normalize(vec), nil
}

func (m *Mock) Dimensions() int {
	return m.dimension
}

func normalize(vec []float32) []float32 {
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vec
	}
	inv := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= inv
	}
	return vec
}
