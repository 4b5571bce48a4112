package vector

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/atelierhq/recall/internal/embedding"
)

func TestSearch_RejectsThresholdOutOfRange(t *testing.T) {
	ix := New(nil, embedding.NewMock(8))

	for _, threshold := range []float64{-0.1, 1.5, 2} {
		_, err := ix.Search(context.Background(), "query", SearchOptions{Threshold: threshold})
		assert.ErrorIs(t, err, ErrThresholdOutOfRange, "threshold %v", threshold)
	}
}

func TestIndexRecord_PropagatesEmbeddingFailure(t *testing.T) {
	ix := New(nil, failingEmbedder{})

	err := ix.IndexRecord(context.Background(), uuid.New(), "user", "some text", "design_preference", nil)
	assert.ErrorIs(t, err, embedding.ErrUnavailable)
}

type failingEmbedder struct{}

func (failingEmbedder) Embed(context.Context, string) ([]float32, error) {
	return nil, embedding.ErrUnavailable
}

func (failingEmbedder) Dimensions() int { return 8 }
