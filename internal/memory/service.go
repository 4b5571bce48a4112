package memory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/atelierhq/recall/internal/embedding"
	"github.com/atelierhq/recall/internal/metrics"
	inats "github.com/atelierhq/recall/internal/nats"
	"github.com/atelierhq/recall/internal/vector"
)

// VectorIndex is the slice of the vector adapter the orchestrator needs.
type VectorIndex interface {
	IndexRecord(ctx context.Context, memoryID uuid.UUID, scope, text, category string, metadata map[string]string) error
	Search(ctx context.Context, queryText string, opts vector.SearchOptions) ([]vector.Match, error)
}

// GlobalTier is the global store's contract: queryable like any tier, plus
// the feedback mutation path.
type GlobalTier interface {
	TierStore
	ApplyFeedback(ctx context.Context, id uuid.UUID, isHelpful bool) (*Record, bool, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Record, error)
}

// ChangePublisher emits global-tier change events for the insight notifier.
type ChangePublisher interface {
	PublishMemoryChange(ctx context.Context, event inats.MemoryChangeEvent) error
}

// Service is the single entry point for memory writes and reads. It fans
// writes out to the appropriate tiers and fans reads in from all of them.
// This whole subsystem is advisory: callers' primary actions must never be
// blocked by a degraded tier, so every non-primary failure here is logged
// and swallowed.
type Service struct {
	user      DeletableStore
	project   DeletableStore
	global    GlobalTier
	index     VectorIndex
	publisher ChangePublisher
}

// NewService creates the orchestrator. index and publisher may be nil, which
// disables semantic indexing and change events respectively.
func NewService(user, project DeletableStore, global GlobalTier, index VectorIndex, publisher ChangePublisher) *Service {
	return &Service{
		user:      user,
		project:   project,
		global:    global,
		index:     index,
		publisher: publisher,
	}
}

// StoreAcrossTiers writes one observation to every tier it belongs in.
// The user-tier write alone decides success; the project write, indexing and
// global promotion are best-effort and never roll back an earlier step.
func (s *Service) StoreAcrossTiers(ctx context.Context, req StoreRequest) (*StoreResult, error) {
	if req.UserID == "" {
		return nil, fmt.Errorf("user id is required: %w", ErrInvalidArgument)
	}
	if req.Content == "" {
		return nil, fmt.Errorf("content is required: %w", ErrInvalidArgument)
	}
	if !req.Category.Valid() {
		return nil, fmt.Errorf("unknown category %q: %w", req.Category, ErrInvalidArgument)
	}

	now := time.Now().UTC()
	result := &StoreResult{}

	// Step 1: user tier. The only write whose failure fails the call.
	userRec := &Record{
		OwnerID:   req.UserID,
		Content:   req.Content,
		Category:  req.Category,
		Metadata:  req.Metadata,
		CreatedAt: now,
	}
	if err := s.user.Store(ctx, userRec); err != nil {
		metrics.TierWritesTotal.WithLabelValues(string(ScopeUser), "error").Inc()
		return nil, fmt.Errorf("storing user memory: %w", err)
	}
	metrics.TierWritesTotal.WithLabelValues(string(ScopeUser), "ok").Inc()
	result.UserRecord = userRec

	// Step 2: project tier, if the observation belongs to a project.
	if req.ProjectID != "" {
		projectRec := &Record{
			OwnerID:   req.ProjectID,
			Content:   req.Content,
			Category:  req.Category,
			Metadata:  req.Metadata,
			CreatedAt: now,
		}
		if err := s.project.Store(ctx, projectRec); err != nil {
			metrics.TierWritesTotal.WithLabelValues(string(ScopeProject), "error").Inc()
			slog.Warn("memory: project-tier write failed", "error", err, "user_id", req.UserID, "project_id", req.ProjectID)
		} else {
			metrics.TierWritesTotal.WithLabelValues(string(ScopeProject), "ok").Inc()
			result.ProjectRecord = projectRec
		}
	}

	// Step 3: index the private-tier records. Each independently best-effort.
	if req.WithEmbedding {
		s.indexRecord(ctx, result.UserRecord)
		s.indexRecord(ctx, result.ProjectRecord)
	}

	// Step 4: promote to the global tier, gated on category AND consent.
	if Promotable(req.Category, req.ShareAnonymously) {
		sanitized := Sanitize(req.Content)
		globalRec := &Record{
			Content:        sanitized,
			Category:       req.Category,
			Metadata:       StripIdentifyingMetadata(req.Metadata),
			RelevanceScore: InitialRelevance(sanitized, req.Category),
			Frequency:      1,
			CreatedAt:      now,
		}
		if err := s.global.Store(ctx, globalRec); err != nil {
			metrics.TierWritesTotal.WithLabelValues(string(ScopeGlobal), "error").Inc()
			slog.Warn("memory: global-tier write failed", "error", err, "category", req.Category)
		} else {
			metrics.TierWritesTotal.WithLabelValues(string(ScopeGlobal), "ok").Inc()
			result.GlobalRecord = globalRec
			s.indexRecord(ctx, globalRec)
			s.publishChange(ctx, inats.ChangeInsert, globalRec)
		}
	}

	return result, nil
}

// indexRecord embeds and indexes one record, best-effort. A nil record or
// nil index is a no-op.
func (s *Service) indexRecord(ctx context.Context, rec *Record) {
	if s.index == nil || rec == nil {
		return
	}
	err := s.index.IndexRecord(ctx, rec.ID, string(rec.Scope), rec.Content, string(rec.Category), rec.Metadata)
	if err != nil {
		metrics.EmbeddingsTotal.WithLabelValues("error").Inc()
		slog.Warn("memory: indexing failed", "error", err, "memory_id", rec.ID, "scope", rec.Scope)
		return
	}
	metrics.EmbeddingsTotal.WithLabelValues("ok").Inc()
}

func (s *Service) publishChange(ctx context.Context, event string, rec *Record) {
	if s.publisher == nil {
		return
	}
	err := s.publisher.PublishMemoryChange(ctx, inats.MemoryChangeEvent{
		Event:     event,
		RecordID:  rec.ID,
		Scope:     string(rec.Scope),
		Category:  string(rec.Category),
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		slog.Warn("memory: publishing change event failed", "error", err, "memory_id", rec.ID)
	}
}

// ContextualMemories reads all three tiers concurrently for one logical
// context fetch. Each tier degrades independently to an empty slice; the
// call as a whole fails only when every attempted tier failed.
func (s *Service) ContextualMemories(ctx context.Context, userID, projectID string, opts QueryOptions) (*ContextBundle, error) {
	if userID == "" {
		return nil, fmt.Errorf("user id is required: %w", ErrInvalidArgument)
	}

	globalOpts := opts
	globalOpts.RelevanceThreshold = DirectGlobalThreshold
	globalOpts.Limit = queryLimit(opts)
	if globalOpts.Limit > ContextualLimit {
		globalOpts.Limit = ContextualLimit
	}

	bundle := &ContextBundle{}
	var userErr, projectErr, globalErr error
	attempted := 2 // user and global tiers always run

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		bundle.UserMemories, userErr = s.queryTier(ctx, s.user, ScopeUser, userID, opts)
	}()
	go func() {
		defer wg.Done()
		bundle.GlobalMemories, globalErr = s.queryTier(ctx, s.global, ScopeGlobal, "", globalOpts)
	}()
	if projectID != "" {
		attempted++
		wg.Add(1)
		go func() {
			defer wg.Done()
			bundle.ProjectMemories, projectErr = s.queryTier(ctx, s.project, ScopeProject, projectID, opts)
		}()
	}
	wg.Wait()

	failures := 0
	for _, err := range []error{userErr, projectErr, globalErr} {
		if err != nil {
			failures++
		}
	}
	if failures == attempted {
		return nil, fmt.Errorf("all memory tiers failed: %w", ErrStoreUnavailable)
	}
	return bundle, nil
}

// queryTier wraps one tier query with degradation logging and metrics.
func (s *Service) queryTier(ctx context.Context, tier TierStore, scope Scope, scopeKey string, opts QueryOptions) ([]Record, error) {
	records, err := tier.Query(ctx, scopeKey, opts)
	if err != nil {
		metrics.TierQueriesTotal.WithLabelValues(string(scope), "error").Inc()
		slog.Warn("memory: tier query degraded to empty", "error", err, "scope", scope)
		return nil, err
	}
	metrics.TierQueriesTotal.WithLabelValues(string(scope), "ok").Inc()
	return records, nil
}

// SearchRequest drives a combined exact + semantic search.
type SearchRequest struct {
	Query               string
	UserID              string
	ProjectID           string
	Categories          []Category
	Limit               int
	UseVectorSearch     bool
	SimilarityThreshold float64
}

// SearchResults returns exact and semantic hits side by side. The two lists
// are deliberately not deduplicated against each other: callers decide how
// to merge, and this layer stays cheap and predictable.
type SearchResults struct {
	ExactMatches    ExactMatches   `json:"exact_matches"`
	SemanticMatches []vector.Match `json:"semantic_matches"`
}

// SearchMemories runs structured tier queries for whichever scopes the
// request names, always including the global tier, plus a semantic search
// unless disabled. An out-of-range similarity threshold aborts immediately
// before any tier work.
func (s *Service) SearchMemories(ctx context.Context, req SearchRequest) (*SearchResults, error) {
	if req.SimilarityThreshold < 0 || req.SimilarityThreshold > 1 {
		return nil, fmt.Errorf("similarity threshold %v: %w", req.SimilarityThreshold, ErrInvalidArgument)
	}

	opts := QueryOptions{Categories: req.Categories, Limit: req.Limit}
	globalOpts := opts
	globalOpts.RelevanceThreshold = MergedSearchThreshold

	results := &SearchResults{}
	var wg sync.WaitGroup

	if req.UserID != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results.ExactMatches.User, _ = s.queryTier(ctx, s.user, ScopeUser, req.UserID, opts)
		}()
	}
	if req.ProjectID != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results.ExactMatches.Project, _ = s.queryTier(ctx, s.project, ScopeProject, req.ProjectID, opts)
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		results.ExactMatches.Global, _ = s.queryTier(ctx, s.global, ScopeGlobal, "", globalOpts)
	}()

	if req.UseVectorSearch && s.index != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			matches, err := s.index.Search(ctx, req.Query, vector.SearchOptions{
				Threshold: req.SimilarityThreshold,
				Limit:     req.Limit,
			})
			if err != nil {
				// A dead embedding service costs us semantic hits, nothing more.
				if errors.Is(err, embedding.ErrUnavailable) {
					slog.Warn("memory: semantic search degraded to empty", "error", err)
					return
				}
				slog.Warn("memory: semantic search failed", "error", err)
				return
			}
			results.SemanticMatches = matches
		}()
	}

	wg.Wait()
	return results, nil
}

// Delete removes a record from the user or project tier. Global records are
// not user-deletable.
func (s *Service) Delete(ctx context.Context, scope Scope, id uuid.UUID) (bool, error) {
	switch scope {
	case ScopeUser:
		return s.user.Delete(ctx, id)
	case ScopeProject:
		return s.project.Delete(ctx, id)
	default:
		return false, fmt.Errorf("scope %q does not allow deletes: %w", scope, ErrInvalidArgument)
	}
}

// ApplyFeedback adjusts a global record's relevance. found=false means the
// record vanished — a normal race, reported as a boolean, not an error.
func (s *Service) ApplyFeedback(ctx context.Context, id uuid.UUID, isHelpful bool) (*Record, bool, error) {
	rec, found, err := s.global.ApplyFeedback(ctx, id, isHelpful)
	if err != nil {
		return nil, false, err
	}
	if found {
		s.publishChange(ctx, inats.ChangeUpdate, rec)
	}
	return rec, found, nil
}
