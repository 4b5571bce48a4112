package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atelierhq/recall/internal/embedding"
	inats "github.com/atelierhq/recall/internal/nats"
	"github.com/atelierhq/recall/internal/vector"
)

// fakeTier is an in-memory DeletableStore. failStore/failQuery force the
// degraded paths.
type fakeTier struct {
	mu        sync.Mutex
	scope     Scope
	records   []Record
	failStore bool
	failQuery bool
	lastOpts  QueryOptions
}

func (f *fakeTier) Store(_ context.Context, rec *Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failStore {
		return fmt.Errorf("tier down: %w", ErrStoreUnavailable)
	}
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	rec.Scope = f.scope
	f.records = append(f.records, *rec)
	return nil
}

func (f *fakeTier) Query(_ context.Context, scopeKey string, opts QueryOptions) ([]Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastOpts = opts
	if f.failQuery {
		return nil, fmt.Errorf("tier down: %w", ErrStoreUnavailable)
	}
	var out []Record
	for _, rec := range f.records {
		if scopeKey != "" && rec.OwnerID != scopeKey {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

func (f *fakeTier) Delete(_ context.Context, id uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, rec := range f.records {
		if rec.ID == id {
			f.records = append(f.records[:i], f.records[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeTier) stored() []Record {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Record(nil), f.records...)
}

// fakeGlobal layers the global-tier contract over fakeTier.
type fakeGlobal struct {
	fakeTier
}

func (f *fakeGlobal) ApplyFeedback(_ context.Context, id uuid.UUID, isHelpful bool) (*Record, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.records {
		if f.records[i].ID != id {
			continue
		}
		delta := 0.1
		if !isHelpful {
			delta = -0.1
		}
		score := f.records[i].RelevanceScore + delta
		if score < 0 {
			score = 0
		}
		if score > 1 {
			score = 1
		}
		f.records[i].RelevanceScore = score
		f.records[i].Frequency++
		rec := f.records[i]
		return &rec, true, nil
	}
	return nil, false, nil
}

func (f *fakeGlobal) GetByID(_ context.Context, id uuid.UUID) (*Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, rec := range f.records {
		if rec.ID == id {
			return &rec, nil
		}
	}
	return nil, ErrNotFound
}

type fakeIndex struct {
	mu      sync.Mutex
	indexed []uuid.UUID
	matches []vector.Match
	err     error
}

func (f *fakeIndex) IndexRecord(_ context.Context, memoryID uuid.UUID, _, _, _ string, _ map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.indexed = append(f.indexed, memoryID)
	return nil
}

func (f *fakeIndex) Search(_ context.Context, _ string, _ vector.SearchOptions) ([]vector.Match, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.matches, nil
}

type fakePublisher struct {
	mu     sync.Mutex
	events []inats.MemoryChangeEvent
}

func (f *fakePublisher) PublishMemoryChange(_ context.Context, event inats.MemoryChangeEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return nil
}

func (f *fakePublisher) published() []inats.MemoryChangeEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]inats.MemoryChangeEvent(nil), f.events...)
}

type fixture struct {
	user      *fakeTier
	project   *fakeTier
	global    *fakeGlobal
	index     *fakeIndex
	publisher *fakePublisher
	svc       *Service
}

func newFixture() *fixture {
	f := &fixture{
		user:      &fakeTier{scope: ScopeUser},
		project:   &fakeTier{scope: ScopeProject},
		global:    &fakeGlobal{fakeTier: fakeTier{scope: ScopeGlobal}},
		index:     &fakeIndex{},
		publisher: &fakePublisher{},
	}
	f.svc = NewService(f.user, f.project, f.global, f.index, f.publisher)
	return f
}

func TestStoreAcrossTiers_ConsentedLearnableReachesAllTiers(t *testing.T) {
	f := newFixture()

	result, err := f.svc.StoreAcrossTiers(context.Background(), StoreRequest{
		UserID:           "user-1",
		ProjectID:        "proj-1",
		Content:          "Dr. Emily Watson loved the hero layout, reach her at emily@acme.com",
		Category:         CategorySuccessfulOutput,
		Metadata:         map[string]string{"clientName": "Acme", "industry": "ecommerce"},
		ShareAnonymously: true,
		WithEmbedding:    true,
	})
	require.NoError(t, err)
	require.NotNil(t, result.UserRecord)
	require.NotNil(t, result.ProjectRecord)
	require.NotNil(t, result.GlobalRecord)

	// Private tiers keep the raw content
	assert.Contains(t, result.UserRecord.Content, "emily@acme.com")
	assert.Contains(t, result.ProjectRecord.Content, "Dr. Emily Watson")

	// The promoted copy is anonymized: masked content, stripped metadata
	assert.NotContains(t, result.GlobalRecord.Content, "emily@acme.com")
	assert.NotContains(t, result.GlobalRecord.Content, "Emily Watson")
	assert.Contains(t, result.GlobalRecord.Content, "[NAME]")
	assert.Contains(t, result.GlobalRecord.Content, "[EMAIL]")
	assert.NotContains(t, result.GlobalRecord.Metadata, "clientName")
	assert.Equal(t, "ecommerce", result.GlobalRecord.Metadata["industry"])
	assert.Equal(t, 1, result.GlobalRecord.Frequency)
	assert.InDelta(t, 0.8, result.GlobalRecord.RelevanceScore, 1e-9)

	// All three records indexed, one insert event published
	assert.Len(t, f.index.indexed, 3)
	events := f.publisher.published()
	require.Len(t, events, 1)
	assert.Equal(t, inats.ChangeInsert, events[0].Event)
	assert.Equal(t, result.GlobalRecord.ID, events[0].RecordID)
	assert.Equal(t, string(CategorySuccessfulOutput), events[0].Category)
}

func TestStoreAcrossTiers_NoConsentSkipsGlobal(t *testing.T) {
	f := newFixture()

	result, err := f.svc.StoreAcrossTiers(context.Background(), StoreRequest{
		UserID:           "user-1",
		Content:          "the homepage converted 40% better",
		Category:         CategorySuccessfulOutput,
		ShareAnonymously: false,
	})
	require.NoError(t, err)
	assert.NotNil(t, result.UserRecord)
	assert.Nil(t, result.GlobalRecord)
	assert.Empty(t, f.global.stored())
	assert.Empty(t, f.publisher.published())
}

func TestStoreAcrossTiers_NonLearnableCategorySkipsGlobal(t *testing.T) {
	f := newFixture()

	// Consent alone is not enough
	result, err := f.svc.StoreAcrossTiers(context.Background(), StoreRequest{
		UserID:           "user-1",
		Content:          "prefers dark minimal layouts",
		Category:         CategoryDesignPreference,
		ShareAnonymously: true,
	})
	require.NoError(t, err)
	assert.NotNil(t, result.UserRecord)
	assert.Nil(t, result.GlobalRecord)
	assert.Empty(t, f.global.stored())
}

func TestStoreAcrossTiers_NoProjectSkipsProjectTier(t *testing.T) {
	f := newFixture()

	result, err := f.svc.StoreAcrossTiers(context.Background(), StoreRequest{
		UserID:   "user-1",
		Content:  "prefers dark minimal layouts",
		Category: CategoryDesignPreference,
	})
	require.NoError(t, err)
	assert.NotNil(t, result.UserRecord)
	assert.Nil(t, result.ProjectRecord)
	assert.Empty(t, f.project.stored())
}

func TestStoreAcrossTiers_UserTierFailureFailsCall(t *testing.T) {
	f := newFixture()
	f.user.failStore = true

	_, err := f.svc.StoreAcrossTiers(context.Background(), StoreRequest{
		UserID:   "user-1",
		Content:  "anything",
		Category: CategoryDesignPreference,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrStoreUnavailable))
}

func TestStoreAcrossTiers_ProjectTierFailureDegrades(t *testing.T) {
	f := newFixture()
	f.project.failStore = true

	result, err := f.svc.StoreAcrossTiers(context.Background(), StoreRequest{
		UserID:           "user-1",
		ProjectID:        "proj-1",
		Content:          "the homepage converted 40% better",
		Category:         CategorySuccessfulOutput,
		ShareAnonymously: true,
	})
	require.NoError(t, err)
	assert.NotNil(t, result.UserRecord)
	assert.Nil(t, result.ProjectRecord)
	// Later steps still ran
	assert.NotNil(t, result.GlobalRecord)
}

func TestStoreAcrossTiers_GlobalTierFailureDegrades(t *testing.T) {
	f := newFixture()
	f.global.failStore = true

	result, err := f.svc.StoreAcrossTiers(context.Background(), StoreRequest{
		UserID:           "user-1",
		Content:          "the homepage converted 40% better",
		Category:         CategorySuccessfulOutput,
		ShareAnonymously: true,
	})
	require.NoError(t, err)
	assert.NotNil(t, result.UserRecord)
	assert.Nil(t, result.GlobalRecord)
	assert.Empty(t, f.publisher.published())
}

func TestStoreAcrossTiers_IndexFailureDoesNotFailStore(t *testing.T) {
	f := newFixture()
	f.index.err = embedding.ErrUnavailable

	result, err := f.svc.StoreAcrossTiers(context.Background(), StoreRequest{
		UserID:        "user-1",
		Content:       "prefers dark minimal layouts",
		Category:      CategoryDesignPreference,
		WithEmbedding: true,
	})
	require.NoError(t, err)
	assert.NotNil(t, result.UserRecord)
	assert.Empty(t, f.index.indexed)
}

func TestStoreAcrossTiers_Validation(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, err := f.svc.StoreAcrossTiers(ctx, StoreRequest{Content: "x", Category: CategoryDesignPreference})
	assert.True(t, errors.Is(err, ErrInvalidArgument))

	_, err = f.svc.StoreAcrossTiers(ctx, StoreRequest{UserID: "u", Category: CategoryDesignPreference})
	assert.True(t, errors.Is(err, ErrInvalidArgument))

	_, err = f.svc.StoreAcrossTiers(ctx, StoreRequest{UserID: "u", Content: "x", Category: "nonsense"})
	assert.True(t, errors.Is(err, ErrInvalidArgument))
}

func TestStoreAcrossTiers_ConcurrentStoresAllLand(t *testing.T) {
	f := newFixture()
	const n = 32

	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.StoreAcrossTiers(context.Background(), StoreRequest{
				UserID:    "user-1",
				ProjectID: "proj-1",
				Content:   fmt.Sprintf("observation %d", i),
				Category:  CategoryDesignPreference,
			})
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		require.NoError(t, err, "store %d", i)
	}
	assert.Len(t, f.user.stored(), n)
	assert.Len(t, f.project.stored(), n)
}

func TestContextualMemories_MergesTiers(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	require.NoError(t, f.user.Store(ctx, &Record{OwnerID: "user-1", Content: "u", Category: CategoryDesignPreference}))
	require.NoError(t, f.project.Store(ctx, &Record{OwnerID: "proj-1", Content: "p", Category: CategoryDesignPreference}))
	require.NoError(t, f.global.Store(ctx, &Record{Content: "g", Category: CategorySuccessfulOutput, RelevanceScore: 0.8}))

	bundle, err := f.svc.ContextualMemories(ctx, "user-1", "proj-1", QueryOptions{})
	require.NoError(t, err)
	assert.Len(t, bundle.UserMemories, 1)
	assert.Len(t, bundle.ProjectMemories, 1)
	assert.Len(t, bundle.GlobalMemories, 1)
}

func TestContextualMemories_GlobalOptsCappedAndThresholded(t *testing.T) {
	f := newFixture()

	_, err := f.svc.ContextualMemories(context.Background(), "user-1", "", QueryOptions{Limit: 100})
	require.NoError(t, err)

	opts := f.global.lastOpts
	assert.Equal(t, ContextualLimit, opts.Limit)
	assert.Equal(t, DirectGlobalThreshold, opts.RelevanceThreshold)

	// The user tier keeps the caller's limit
	assert.Equal(t, 100, f.user.lastOpts.Limit)
}

func TestContextualMemories_SingleTierFailureDegrades(t *testing.T) {
	f := newFixture()
	f.global.failQuery = true
	ctx := context.Background()

	require.NoError(t, f.user.Store(ctx, &Record{OwnerID: "user-1", Content: "u", Category: CategoryDesignPreference}))

	bundle, err := f.svc.ContextualMemories(ctx, "user-1", "proj-1", QueryOptions{})
	require.NoError(t, err)
	assert.Len(t, bundle.UserMemories, 1)
	assert.Empty(t, bundle.GlobalMemories)
}

func TestContextualMemories_AllTiersFailing(t *testing.T) {
	f := newFixture()
	f.user.failQuery = true
	f.project.failQuery = true
	f.global.failQuery = true

	_, err := f.svc.ContextualMemories(context.Background(), "user-1", "proj-1", QueryOptions{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrStoreUnavailable))
}

func TestContextualMemories_AllAttemptedTiersFailingWithoutProject(t *testing.T) {
	f := newFixture()
	f.user.failQuery = true
	f.global.failQuery = true

	// Project tier never attempted, so two failures out of two attempts
	_, err := f.svc.ContextualMemories(context.Background(), "user-1", "", QueryOptions{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrStoreUnavailable))
}

func TestContextualMemories_EmptyTiersIsNotAnError(t *testing.T) {
	f := newFixture()

	bundle, err := f.svc.ContextualMemories(context.Background(), "new-user", "new-proj", QueryOptions{})
	require.NoError(t, err)
	assert.Empty(t, bundle.UserMemories)
	assert.Empty(t, bundle.ProjectMemories)
	assert.Empty(t, bundle.GlobalMemories)
}

func TestContextualMemories_RequiresUserID(t *testing.T) {
	f := newFixture()

	_, err := f.svc.ContextualMemories(context.Background(), "", "proj-1", QueryOptions{})
	assert.True(t, errors.Is(err, ErrInvalidArgument))
}

func TestSearchMemories_RejectsOutOfRangeThreshold(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	for _, threshold := range []float64{-0.1, 1.5} {
		_, err := f.svc.SearchMemories(ctx, SearchRequest{
			Query:               "layouts",
			UserID:              "user-1",
			UseVectorSearch:     true,
			SimilarityThreshold: threshold,
		})
		require.Error(t, err, "threshold %v", threshold)
		assert.True(t, errors.Is(err, ErrInvalidArgument))
	}
	// No tier was touched
	assert.Zero(t, f.user.lastOpts)
}

func TestSearchMemories_CombinesExactAndSemantic(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	require.NoError(t, f.user.Store(ctx, &Record{OwnerID: "user-1", Content: "dark layouts", Category: CategoryDesignPreference}))
	sharedID := uuid.New()
	require.NoError(t, f.global.Store(ctx, &Record{ID: sharedID, Content: "dark layouts win", Category: CategorySuccessfulOutput, RelevanceScore: 0.7}))
	f.index.matches = []vector.Match{
		{MemoryID: sharedID, Scope: string(ScopeGlobal), SourceText: "dark layouts win", Similarity: 0.91},
	}

	results, err := f.svc.SearchMemories(ctx, SearchRequest{
		Query:               "dark layouts",
		UserID:              "user-1",
		UseVectorSearch:     true,
		SimilarityThreshold: 0.7,
	})
	require.NoError(t, err)
	assert.Len(t, results.ExactMatches.User, 1)
	assert.Len(t, results.ExactMatches.Global, 1)
	// A record hit by both paths appears in both lists; merging is the caller's job
	require.Len(t, results.SemanticMatches, 1)
	assert.Equal(t, sharedID, results.SemanticMatches[0].MemoryID)
	assert.Equal(t, sharedID, results.ExactMatches.Global[0].ID)

	assert.Equal(t, MergedSearchThreshold, f.global.lastOpts.RelevanceThreshold)
}

func TestSearchMemories_EmbeddingOutageDegradesToExactOnly(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.index.err = fmt.Errorf("embed: %w", embedding.ErrUnavailable)

	require.NoError(t, f.user.Store(ctx, &Record{OwnerID: "user-1", Content: "dark layouts", Category: CategoryDesignPreference}))

	results, err := f.svc.SearchMemories(ctx, SearchRequest{
		Query:               "dark layouts",
		UserID:              "user-1",
		UseVectorSearch:     true,
		SimilarityThreshold: 0.7,
	})
	require.NoError(t, err)
	assert.Len(t, results.ExactMatches.User, 1)
	assert.Empty(t, results.SemanticMatches)
}

func TestSearchMemories_VectorSearchDisabled(t *testing.T) {
	f := newFixture()
	f.index.matches = []vector.Match{{MemoryID: uuid.New(), Similarity: 0.95}}

	results, err := f.svc.SearchMemories(context.Background(), SearchRequest{
		Query:  "layouts",
		UserID: "user-1",
	})
	require.NoError(t, err)
	assert.Empty(t, results.SemanticMatches)
}

func TestDelete_ScopeRules(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	rec := &Record{OwnerID: "user-1", Content: "u", Category: CategoryDesignPreference}
	require.NoError(t, f.user.Store(ctx, rec))

	found, err := f.svc.Delete(ctx, ScopeUser, rec.ID)
	require.NoError(t, err)
	assert.True(t, found)

	found, err = f.svc.Delete(ctx, ScopeUser, uuid.New())
	require.NoError(t, err)
	assert.False(t, found)

	_, err = f.svc.Delete(ctx, ScopeGlobal, uuid.New())
	assert.True(t, errors.Is(err, ErrInvalidArgument))
}

func TestApplyFeedback_PublishesUpdateEvent(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	rec := &Record{Content: "g", Category: CategorySuccessfulOutput, RelevanceScore: 0.8}
	require.NoError(t, f.global.Store(ctx, rec))

	updated, found, err := f.svc.ApplyFeedback(ctx, rec.ID, true)
	require.NoError(t, err)
	require.True(t, found)
	assert.InDelta(t, 0.9, updated.RelevanceScore, 1e-9)
	assert.Equal(t, 1, updated.Frequency)

	events := f.publisher.published()
	require.Len(t, events, 1)
	assert.Equal(t, inats.ChangeUpdate, events[0].Event)
}

func TestApplyFeedback_AccumulatesAcrossCalls(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	rec := &Record{Content: "g", Category: CategorySuccessfulOutput, RelevanceScore: 0.5}
	require.NoError(t, f.global.Store(ctx, rec))

	var updated *Record
	for i := 0; i < 3; i++ {
		var found bool
		var err error
		updated, found, err = f.svc.ApplyFeedback(ctx, rec.ID, true)
		require.NoError(t, err)
		require.True(t, found)
	}

	assert.InDelta(t, 0.8, updated.RelevanceScore, 1e-9)
	assert.Equal(t, 3, updated.Frequency)
	assert.Len(t, f.publisher.published(), 3)
}

func TestApplyFeedback_MissingRecordIsNotAnError(t *testing.T) {
	f := newFixture()

	_, found, err := f.svc.ApplyFeedback(context.Background(), uuid.New(), true)
	require.NoError(t, err)
	assert.False(t, found)
	assert.Empty(t, f.publisher.published())
}
