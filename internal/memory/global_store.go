package memory

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// GlobalStore persists anonymized platform-wide memories. Records here are
// never user-deletable; the only mutation is feedback on relevance and
// frequency.
type GlobalStore struct {
	pool *pgxpool.Pool
}

// NewGlobalStore creates the global-tier store.
func NewGlobalStore(pool *pgxpool.Pool) *GlobalStore {
	return &GlobalStore{pool: pool}
}

func (s *GlobalStore) Store(ctx context.Context, rec *Record) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	rec.Scope = ScopeGlobal
	if rec.Frequency < 1 {
		rec.Frequency = 1
	}

	metadata, err := marshalMetadata(rec.Metadata)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO global_memories (id, content, category, metadata, relevance_score, frequency, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		rec.ID, rec.Content, string(rec.Category), metadata, rec.RelevanceScore, rec.Frequency, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting into global_memories: %w", ErrStoreUnavailable)
	}
	return nil
}

// Query ignores scopeKey (global records have no owner). Results are ordered
// by relevance then frequency; records below the relevance threshold are
// filtered out.
func (s *GlobalStore) Query(ctx context.Context, _ string, opts QueryOptions) ([]Record, error) {
	q := `SELECT id, content, category, metadata, relevance_score, frequency, created_at
	 FROM global_memories WHERE relevance_score >= $1`
	args := []any{opts.RelevanceThreshold}

	q, args = appendFilters(q, args, opts)
	q += fmt.Sprintf(" ORDER BY relevance_score DESC, frequency DESC LIMIT $%d", len(args)+1)
	args = append(args, queryLimit(opts))

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("querying global_memories: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		var metadata []byte
		if err := rows.Scan(&rec.ID, &rec.Content, &rec.Category, &metadata, &rec.RelevanceScore, &rec.Frequency, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning global_memories row: %w", err)
		}
		rec.Scope = ScopeGlobal
		if err := unmarshalMetadata(metadata, &rec.Metadata); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// GetByID fetches one global record, or ErrNotFound.
func (s *GlobalStore) GetByID(ctx context.Context, id uuid.UUID) (*Record, error) {
	var rec Record
	var metadata []byte
	err := s.pool.QueryRow(ctx,
		`SELECT id, content, category, metadata, relevance_score, frequency, created_at
		 FROM global_memories WHERE id = $1`, id,
	).Scan(&rec.ID, &rec.Content, &rec.Category, &metadata, &rec.RelevanceScore, &rec.Frequency, &rec.CreatedAt)
	if err != nil {
		if isNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting global memory: %w", err)
	}
	rec.Scope = ScopeGlobal
	if err := unmarshalMetadata(metadata, &rec.Metadata); err != nil {
		return nil, err
	}
	return &rec, nil
}

// ApplyFeedback nudges relevance by ±0.1 and bumps frequency. The clamp to
// [0,1] happens in SQL so concurrent feedback stays atomic. Returns
// (nil, false, nil) when the record no longer exists — feedback on a
// vanished record is an expected race, not an error.
func (s *GlobalStore) ApplyFeedback(ctx context.Context, id uuid.UUID, isHelpful bool) (*Record, bool, error) {
	delta := 0.1
	if !isHelpful {
		delta = -0.1
	}

	var rec Record
	var metadata []byte
	err := s.pool.QueryRow(ctx,
		`UPDATE global_memories
		 SET relevance_score = GREATEST(0.0, LEAST(1.0, relevance_score + $2)),
		     frequency = frequency + 1
		 WHERE id = $1
		 RETURNING id, content, category, metadata, relevance_score, frequency, created_at`,
		id, delta,
	).Scan(&rec.ID, &rec.Content, &rec.Category, &metadata, &rec.RelevanceScore, &rec.Frequency, &rec.CreatedAt)
	if err != nil {
		if isNoRows(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("applying feedback: %w", ErrStoreUnavailable)
	}
	rec.Scope = ScopeGlobal
	if err := unmarshalMetadata(metadata, &rec.Metadata); err != nil {
		return nil, false, err
	}
	return &rec, true, nil
}

// TopByCategory returns the most relevant records for one category, ordered
// by relevance then frequency. Used to assemble analyzer samples.
func (s *GlobalStore) TopByCategory(ctx context.Context, category Category, limit int) ([]Record, error) {
	return s.Query(ctx, "", QueryOptions{
		Categories:         []Category{category},
		Limit:              limit,
		RelevanceThreshold: PatternThreshold,
	})
}
