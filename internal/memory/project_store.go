package memory

import "github.com/jackc/pgx/v5/pgxpool"

// ProjectStore persists project-scope memories in the project_memories
// table. Identical shape to the user tier; scoped by project id instead.
type ProjectStore struct {
	scopedStore
}

// NewProjectStore creates the project-tier store.
func NewProjectStore(pool *pgxpool.Pool) *ProjectStore {
	return &ProjectStore{scopedStore{pool: pool, table: "project_memories", scope: ScopeProject}}
}
