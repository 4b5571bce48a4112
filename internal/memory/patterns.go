package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/atelierhq/recall/internal/cache"
	"github.com/atelierhq/recall/internal/metrics"
)

// TTLs for the cached aggregate reads. The cache itself is TTL-agnostic;
// these are this caller's choices.
const (
	patternsTTL = 15 * time.Minute
	industryTTL = 30 * time.Minute
	analysisTTL = 60 * time.Minute
)

// PatternService serves aggregate reads over the global tier, fronted by a
// TTL cache so repeated dashboard queries don't hammer the store.
type PatternService struct {
	global GlobalTier
	cache  cache.Cache
}

// NewPatternService creates a pattern reader. cache may be nil, which turns
// every read into a direct store query.
func NewPatternService(global GlobalTier, c cache.Cache) *PatternService {
	return &PatternService{global: global, cache: c}
}

// TopPatterns returns the most relevant global records for a category.
// Cached for 15 minutes per (category, limit).
func (p *PatternService) TopPatterns(ctx context.Context, category Category, limit int) ([]Record, error) {
	if !category.Valid() {
		return nil, fmt.Errorf("unknown category %q: %w", category, ErrInvalidArgument)
	}
	key := cache.Key("patterns", map[string]string{
		"category": string(category),
		"limit":    strconv.Itoa(limit),
	})
	return p.cachedQuery(ctx, key, patternsTTL, func(ctx context.Context) ([]Record, error) {
		return p.global.Query(ctx, "", QueryOptions{
			Categories:         []Category{category},
			Limit:              limit,
			RelevanceThreshold: PatternThreshold,
		})
	})
}

// IndustryPatterns returns global records filtered to one industry via
// metadata equality. Cached for 30 minutes per (category, industry, limit).
func (p *PatternService) IndustryPatterns(ctx context.Context, category Category, industry string, limit int) ([]Record, error) {
	if !category.Valid() {
		return nil, fmt.Errorf("unknown category %q: %w", category, ErrInvalidArgument)
	}
	if industry == "" {
		return nil, fmt.Errorf("industry is required: %w", ErrInvalidArgument)
	}
	key := cache.Key("patterns:industry", map[string]string{
		"category": string(category),
		"industry": industry,
		"limit":    strconv.Itoa(limit),
	})
	return p.cachedQuery(ctx, key, industryTTL, func(ctx context.Context) ([]Record, error) {
		return p.global.Query(ctx, "", QueryOptions{
			Categories:         []Category{category},
			Limit:              limit,
			MetadataFilters:    map[string]string{"industry": industry},
			RelevanceThreshold: PatternThreshold,
		})
	})
}

// RecordAnalysis returns one global record for deep inspection. Cached for
// 60 minutes per record id.
func (p *PatternService) RecordAnalysis(ctx context.Context, id uuid.UUID) (*Record, error) {
	key := cache.Key("patterns:record", map[string]string{"id": id.String()})

	if p.cache != nil {
		if data, ok := p.cacheGet(ctx, key); ok {
			var rec Record
			if err := json.Unmarshal(data, &rec); err == nil {
				return &rec, nil
			}
		}
	}

	rec, err := p.global.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	p.cachePut(ctx, key, rec, analysisTTL)
	return rec, nil
}

// cachedQuery is the cache-aside path shared by the list reads. Cache
// failures degrade to a direct store query.
func (p *PatternService) cachedQuery(ctx context.Context, key string, ttl time.Duration, query func(context.Context) ([]Record, error)) ([]Record, error) {
	if p.cache != nil {
		if data, ok := p.cacheGet(ctx, key); ok {
			var records []Record
			if err := json.Unmarshal(data, &records); err == nil {
				return records, nil
			}
		}
	}

	records, err := query(ctx)
	if err != nil {
		return nil, err
	}
	p.cachePut(ctx, key, records, ttl)
	return records, nil
}

func (p *PatternService) cacheGet(ctx context.Context, key string) ([]byte, bool) {
	data, ok, err := p.cache.Get(ctx, key)
	if err != nil {
		metrics.CacheOpsTotal.WithLabelValues("error").Inc()
		slog.Warn("patterns: cache get failed", "error", err)
		return nil, false
	}
	if !ok {
		metrics.CacheOpsTotal.WithLabelValues("miss").Inc()
		return nil, false
	}
	metrics.CacheOpsTotal.WithLabelValues("hit").Inc()
	return data, true
}

func (p *PatternService) cachePut(ctx context.Context, key string, value any, ttl time.Duration) {
	if p.cache == nil {
		return
	}
	data, err := json.Marshal(value)
	if err != nil {
		return
	}
	if err := p.cache.Put(ctx, key, data, ttl); err != nil {
		slog.Warn("patterns: cache put failed", "error", err)
	}
}
