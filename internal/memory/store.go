package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// TierStore is the contract every memory tier satisfies. scopeKey is the
// owning user id (user tier) or project id (project tier); the global tier
// ignores it.
type TierStore interface {
	Store(ctx context.Context, rec *Record) error
	Query(ctx context.Context, scopeKey string, opts QueryOptions) ([]Record, error)
}

// DeletableStore is a tier that allows explicit deletes. The global tier
// deliberately does not: promoted records are platform property.
type DeletableStore interface {
	TierStore
	Delete(ctx context.Context, id uuid.UUID) (bool, error)
}

// scopedStore is the shared pgx implementation behind the user and project
// tiers. The two tables are structurally identical; only the table name and
// scope tag differ.
type scopedStore struct {
	pool  *pgxpool.Pool
	table string
	scope Scope
}

func (s *scopedStore) Store(ctx context.Context, rec *Record) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	rec.Scope = s.scope

	metadata, err := marshalMetadata(rec.Metadata)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx,
		fmt.Sprintf(`INSERT INTO %s (id, owner_id, content, category, metadata, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`, s.table),
		rec.ID, rec.OwnerID, rec.Content, string(rec.Category), metadata, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting into %s: %w", s.table, ErrStoreUnavailable)
	}
	return nil
}

func (s *scopedStore) Query(ctx context.Context, scopeKey string, opts QueryOptions) ([]Record, error) {
	q := fmt.Sprintf(`SELECT id, owner_id, content, category, metadata, created_at FROM %s WHERE owner_id = $1`, s.table)
	args := []any{scopeKey}

	q, args = appendFilters(q, args, opts)
	q += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", len(args)+1)
	args = append(args, queryLimit(opts))

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", s.table, err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		var metadata []byte
		if err := rows.Scan(&rec.ID, &rec.OwnerID, &rec.Content, &rec.Category, &metadata, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning %s row: %w", s.table, err)
		}
		rec.Scope = s.scope
		if err := unmarshalMetadata(metadata, &rec.Metadata); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (s *scopedStore) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, s.table), id)
	if err != nil {
		return false, fmt.Errorf("deleting from %s: %w", s.table, ErrStoreUnavailable)
	}
	return tag.RowsAffected() > 0, nil
}

// appendFilters adds the shared QueryOptions predicates (categories, time
// range, metadata equality) to q.
func appendFilters(q string, args []any, opts QueryOptions) (string, []any) {
	if len(opts.Categories) > 0 {
		cats := make([]string, len(opts.Categories))
		for i, c := range opts.Categories {
			cats[i] = string(c)
		}
		q += fmt.Sprintf(" AND category = ANY($%d)", len(args)+1)
		args = append(args, cats)
	}
	if !opts.From.IsZero() {
		q += fmt.Sprintf(" AND created_at >= $%d", len(args)+1)
		args = append(args, opts.From)
	}
	if !opts.To.IsZero() {
		q += fmt.Sprintf(" AND created_at <= $%d", len(args)+1)
		args = append(args, opts.To)
	}
	if len(opts.MetadataFilters) > 0 {
		// JSONB containment gives AND-matched key equality in one predicate.
		filter, _ := json.Marshal(opts.MetadataFilters)
		q += fmt.Sprintf(" AND metadata @> $%d", len(args)+1)
		args = append(args, filter)
	}
	return q, args
}

func queryLimit(opts QueryOptions) int {
	if opts.Limit > 0 {
		return opts.Limit
	}
	return DefaultQueryLimit
}

func marshalMetadata(md map[string]string) ([]byte, error) {
	if md == nil {
		return []byte(`{}`), nil
	}
	data, err := json.Marshal(md)
	if err != nil {
		return nil, fmt.Errorf("marshaling metadata: %w", err)
	}
	return data, nil
}

func unmarshalMetadata(data []byte, md *map[string]string) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, md); err != nil {
		return fmt.Errorf("unmarshaling metadata: %w", err)
	}
	return nil
}

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
