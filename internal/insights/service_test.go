package insights

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atelierhq/recall/internal/memory"
)

type countingAnalyzer struct {
	calls    atomic.Int32
	insights []string
	err      error
}

func (a *countingAnalyzer) Analyze(_ context.Context, _ memory.Category, _ []memory.Record) ([]string, error) {
	a.calls.Add(1)
	if a.err != nil {
		return nil, a.err
	}
	return a.insights, nil
}

func sampleRecords() []memory.Record {
	return []memory.Record{
		{Content: "dark layouts win", Category: memory.CategorySuccessfulOutput, RelevanceScore: 0.8, Frequency: 3},
		{Content: "hero CTAs above the fold", Category: memory.CategorySuccessfulOutput, RelevanceScore: 0.7, Frequency: 2},
	}
}

func TestAnalyze_ReusesRecentResult(t *testing.T) {
	analyzer := &countingAnalyzer{insights: []string{"fresh"}}
	store := &stubStore{}
	cached := &AnalysisResult{
		Category:  memory.CategorySuccessfulOutput,
		Insights:  []string{"cached"},
		CreatedAt: time.Now().UTC().Add(-10 * time.Minute),
	}
	require.NoError(t, store.Insert(context.Background(), cached))

	svc := NewService(analyzer, &stubSource{records: sampleRecords()}, store, nil, 10)

	result, err := svc.Analyze(context.Background(), memory.CategorySuccessfulOutput, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"cached"}, result.Insights)
	assert.Equal(t, int32(0), analyzer.calls.Load())
}

func TestAnalyze_StaleResultTriggersFreshRun(t *testing.T) {
	analyzer := &countingAnalyzer{insights: []string{"fresh"}}
	store := &stubStore{}
	stale := &AnalysisResult{
		Category:  memory.CategorySuccessfulOutput,
		Insights:  []string{"stale"},
		CreatedAt: time.Now().UTC().Add(-2 * time.Hour),
	}
	require.NoError(t, store.Insert(context.Background(), stale))

	svc := NewService(analyzer, &stubSource{records: sampleRecords()}, store, nil, 10)

	result, err := svc.Analyze(context.Background(), memory.CategorySuccessfulOutput, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"fresh"}, result.Insights)
	assert.Equal(t, 2, result.SampleSize)
	assert.Equal(t, int32(1), analyzer.calls.Load())
}

func TestAnalyze_ForceRefreshBypassesCache(t *testing.T) {
	analyzer := &countingAnalyzer{insights: []string{"fresh"}}
	store := &stubStore{}
	cached := &AnalysisResult{
		Category:  memory.CategorySuccessfulOutput,
		Insights:  []string{"cached"},
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, store.Insert(context.Background(), cached))

	svc := NewService(analyzer, &stubSource{records: sampleRecords()}, store, nil, 10)

	result, err := svc.Analyze(context.Background(), memory.CategorySuccessfulOutput, true)
	require.NoError(t, err)
	assert.Equal(t, []string{"fresh"}, result.Insights)
	assert.Equal(t, int32(1), analyzer.calls.Load())

	// The fresh run was stored
	latest, found, err := store.LatestByCategory(context.Background(), memory.CategorySuccessfulOutput)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []string{"fresh"}, latest.Insights)
}

func TestAnalyze_EmptySampleSkipsAnalyzer(t *testing.T) {
	analyzer := &countingAnalyzer{insights: []string{"unused"}}
	store := &stubStore{}
	svc := NewService(analyzer, &stubSource{}, store, nil, 10)

	result, err := svc.Analyze(context.Background(), memory.CategoryClientFeedback, true)
	require.NoError(t, err)
	assert.Empty(t, result.Insights)
	assert.Zero(t, result.SampleSize)
	assert.Equal(t, int32(0), analyzer.calls.Load())

	// Nothing stored, so real data later triggers an actual run
	_, found, err := store.LatestByCategory(context.Background(), memory.CategoryClientFeedback)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestAnalyze_AnalyzerFailurePropagates(t *testing.T) {
	analyzer := &countingAnalyzer{err: ErrAnalyzerUnavailable}
	svc := NewService(analyzer, &stubSource{records: sampleRecords()}, &stubStore{}, nil, 10)

	_, err := svc.Analyze(context.Background(), memory.CategorySuccessfulOutput, true)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAnalyzerUnavailable))
}

func TestAnalyze_InvalidCategory(t *testing.T) {
	svc := NewService(&countingAnalyzer{}, &stubSource{}, &stubStore{}, nil, 10)

	_, err := svc.Analyze(context.Background(), "nonsense", false)
	require.Error(t, err)
	assert.True(t, errors.Is(err, memory.ErrInvalidArgument))
}
