// Package vector maintains the embedding side-table and performs cosine
// similarity search over it.
package vector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/atelierhq/recall/internal/embedding"
)

// ErrThresholdOutOfRange marks a caller-supplied similarity threshold
// outside [0,1].
var ErrThresholdOutOfRange = errors.New("similarity threshold out of range")

// Search defaults.
const (
	DefaultThreshold = 0.7
	DefaultLimit     = 10
)

// Index writes embeddings for stored memories and searches them. Embeddings
// are written once and never updated: a changed observation gets a new
// record and a new embedding.
type Index struct {
	pool     *pgxpool.Pool
	embedder embedding.Embedder
}

// New creates an Index over the memory_embeddings table.
func New(pool *pgxpool.Pool, embedder embedding.Embedder) *Index {
	return &Index{pool: pool, embedder: embedder}
}

// SearchOptions narrows a similarity search. Scope and Category are optional
// equality filters; empty means unfiltered.
type SearchOptions struct {
	Threshold float64
	Limit     int
	Scope     string
	Category  string
}

// Match is a similarity hit referencing the record that owns the embedding.
// (MemoryID, Scope) is the composite reference: ids are only unique within
// their owning tier's table.
type Match struct {
	MemoryID   uuid.UUID         `json:"memory_id"`
	Scope      string            `json:"scope"`
	SourceText string            `json:"source_text"`
	Category   string            `json:"category"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	Similarity float64           `json:"similarity"`
	CreatedAt  time.Time         `json:"created_at"`
}

// IndexRecord embeds text and stores the vector with a denormalized snapshot
// of the source text and metadata, so searches can filter without joining
// back to the tier tables. An embedding failure propagates; the caller's
// already-written record stays untouched.
func (ix *Index) IndexRecord(ctx context.Context, memoryID uuid.UUID, scope, text, category string, metadata map[string]string) error {
	vec, err := ix.embedder.Embed(ctx, text)
	if err != nil {
		return fmt.Errorf("embedding memory %s: %w", memoryID, err)
	}
	if len(vec) != ix.embedder.Dimensions() {
		return fmt.Errorf("embedding memory %s: dimension %d does not match index dimension %d: %w",
			memoryID, len(vec), ix.embedder.Dimensions(), embedding.ErrUnavailable)
	}

	metadataJSON := []byte(`{}`)
	if metadata != nil {
		metadataJSON, err = json.Marshal(metadata)
		if err != nil {
			return fmt.Errorf("marshaling embedding metadata: %w", err)
		}
	}

	_, err = ix.pool.Exec(ctx,
		`INSERT INTO memory_embeddings (id, memory_id, memory_scope, embedding, source_text, category, metadata, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		uuid.New(), memoryID, scope, pgvector.NewVector(vec), text, category, metadataJSON, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("inserting embedding for %s: %w", memoryID, err)
	}
	return nil
}

// Search embeds queryText and returns stored vectors with cosine similarity
// at or above the threshold, ordered by similarity descending; ties break by
// more recent created_at.
func (ix *Index) Search(ctx context.Context, queryText string, opts SearchOptions) ([]Match, error) {
	threshold := opts.Threshold
	if threshold == 0 {
		threshold = DefaultThreshold
	}
	if threshold < 0 || threshold > 1 {
		return nil, fmt.Errorf("threshold %v: %w", opts.Threshold, ErrThresholdOutOfRange)
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}

	vec, err := ix.embedder.Embed(ctx, queryText)
	if err != nil {
		return nil, fmt.Errorf("embedding search query: %w", err)
	}

	q := `SELECT memory_id, memory_scope, source_text, category, metadata, created_at,
	        1 - (embedding <=> $1) AS similarity
	 FROM memory_embeddings
	 WHERE 1 - (embedding <=> $1) >= $2`
	args := []any{pgvector.NewVector(vec), threshold}

	if opts.Scope != "" {
		q += fmt.Sprintf(" AND memory_scope = $%d", len(args)+1)
		args = append(args, opts.Scope)
	}
	if opts.Category != "" {
		q += fmt.Sprintf(" AND category = $%d", len(args)+1)
		args = append(args, opts.Category)
	}

	q += fmt.Sprintf(" ORDER BY embedding <=> $1, created_at DESC LIMIT $%d", len(args)+1)
	args = append(args, limit)

	rows, err := ix.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("searching embeddings: %w", err)
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var m Match
		var metadata []byte
		if err := rows.Scan(&m.MemoryID, &m.Scope, &m.SourceText, &m.Category, &metadata, &m.CreatedAt, &m.Similarity); err != nil {
			return nil, fmt.Errorf("scanning embedding row: %w", err)
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &m.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshaling embedding metadata: %w", err)
			}
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}
