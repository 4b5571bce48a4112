package insights

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/atelierhq/recall/internal/memory"
	"github.com/atelierhq/recall/internal/metrics"
	inats "github.com/atelierhq/recall/internal/nats"
)

// reuseWindow is how long a stored result satisfies non-forced reads before
// a fresh analyzer run is made.
const reuseWindow = time.Hour

// PatternSource supplies the analyzer's sample: the most relevant global
// records for one category.
type PatternSource interface {
	TopByCategory(ctx context.Context, category memory.Category, limit int) ([]memory.Record, error)
}

// ResultStore persists and recalls analysis results.
type ResultStore interface {
	Insert(ctx context.Context, res *AnalysisResult) error
	LatestByCategory(ctx context.Context, category memory.Category) (*AnalysisResult, bool, error)
}

// EventPublisher announces completed runs on the message bus.
type EventPublisher interface {
	PublishInsights(ctx context.Context, event inats.InsightEvent) error
}

// Service runs and persists pattern analyses. Stored results double as a
// cache: a non-forced Analyze within the reuse window returns the last run.
type Service struct {
	analyzer    Analyzer
	source      PatternSource
	store       ResultStore
	publisher   EventPublisher
	sampleLimit int
}

// NewService creates the analysis service. publisher may be nil.
func NewService(analyzer Analyzer, source PatternSource, store ResultStore, publisher EventPublisher, sampleLimit int) *Service {
	if sampleLimit <= 0 {
		sampleLimit = memory.DefaultQueryLimit
	}
	return &Service{
		analyzer:    analyzer,
		source:      source,
		store:       store,
		publisher:   publisher,
		sampleLimit: sampleLimit,
	}
}

// Analyze produces insights for one category. Unless forceRefresh is set, a
// result stored within the reuse window is returned as-is.
func (s *Service) Analyze(ctx context.Context, category memory.Category, forceRefresh bool) (*AnalysisResult, error) {
	if !category.Valid() {
		return nil, fmt.Errorf("unknown category %q: %w", category, memory.ErrInvalidArgument)
	}

	if !forceRefresh {
		latest, found, err := s.store.LatestByCategory(ctx, category)
		if err != nil {
			slog.Warn("insights: loading cached analysis failed", "error", err, "category", category)
		} else if found && time.Since(latest.CreatedAt) < reuseWindow {
			return latest, nil
		}
	}

	samples, err := s.source.TopByCategory(ctx, category, s.sampleLimit)
	if err != nil {
		metrics.AnalysisRunsTotal.WithLabelValues(string(category), "error").Inc()
		return nil, fmt.Errorf("sampling global memories: %w", err)
	}
	if len(samples) == 0 {
		// Nothing to learn from yet. Not stored, so the first real data
		// triggers an actual run.
		return &AnalysisResult{Category: category, CreatedAt: time.Now().UTC()}, nil
	}

	insights, err := s.analyzer.Analyze(ctx, category, samples)
	if err != nil {
		metrics.AnalysisRunsTotal.WithLabelValues(string(category), "error").Inc()
		return nil, fmt.Errorf("analyzing %s: %w", category, err)
	}

	result := &AnalysisResult{
		Category:   category,
		Insights:   insights,
		SampleSize: len(samples),
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.store.Insert(ctx, result); err != nil {
		slog.Warn("insights: storing analysis result failed", "error", err, "category", category)
	}
	metrics.AnalysisRunsTotal.WithLabelValues(string(category), "ok").Inc()

	s.publishResult(ctx, result)
	return result, nil
}

// Latest returns the most recent stored result without triggering a run.
func (s *Service) Latest(ctx context.Context, category memory.Category) (*AnalysisResult, bool, error) {
	if !category.Valid() {
		return nil, false, fmt.Errorf("unknown category %q: %w", category, memory.ErrInvalidArgument)
	}
	return s.store.LatestByCategory(ctx, category)
}

func (s *Service) publishResult(ctx context.Context, result *AnalysisResult) {
	if s.publisher == nil {
		return
	}
	err := s.publisher.PublishInsights(ctx, inats.InsightEvent{
		ResultID:   result.ID,
		Category:   string(result.Category),
		Insights:   result.Insights,
		SampleSize: result.SampleSize,
		AnalyzedAt: result.CreatedAt,
	})
	if err != nil {
		slog.Warn("insights: publishing insight event failed", "error", err, "category", result.Category)
	}
}
