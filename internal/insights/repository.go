package insights

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/atelierhq/recall/internal/memory"
)

// AnalysisResult is one completed analyzer run over a category sample.
type AnalysisResult struct {
	ID         uuid.UUID       `json:"id"`
	Category   memory.Category `json:"category"`
	Insights   []string        `json:"insights"`
	SampleSize int             `json:"sample_size"`
	CreatedAt  time.Time       `json:"created_at"`
}

// Repository persists analysis results.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Insert(ctx context.Context, res *AnalysisResult) error {
	if res.ID == uuid.Nil {
		res.ID = uuid.New()
	}

	insights, err := json.Marshal(res.Insights)
	if err != nil {
		return fmt.Errorf("marshaling insights: %w", err)
	}

	_, err = r.pool.Exec(ctx,
		`INSERT INTO memory_analysis_results (id, category, insights, sample_size, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		res.ID, string(res.Category), insights, res.SampleSize, res.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting analysis result: %w", err)
	}
	return nil
}

// LatestByCategory returns the most recent result for a category, with
// found=false when no analysis has ever run for it.
func (r *Repository) LatestByCategory(ctx context.Context, category memory.Category) (*AnalysisResult, bool, error) {
	var res AnalysisResult
	var insights []byte
	err := r.pool.QueryRow(ctx,
		`SELECT id, category, insights, sample_size, created_at
		 FROM memory_analysis_results
		 WHERE category = $1
		 ORDER BY created_at DESC
		 LIMIT 1`, string(category),
	).Scan(&res.ID, &res.Category, &insights, &res.SampleSize, &res.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("loading latest analysis: %w", err)
	}

	if err := json.Unmarshal(insights, &res.Insights); err != nil {
		return nil, false, fmt.Errorf("unmarshaling insights: %w", err)
	}
	return &res, true, nil
}
