package memory

import "github.com/jackc/pgx/v5/pgxpool"

// UserStore persists user-scope memories in the user_memories table.
type UserStore struct {
	scopedStore
}

// NewUserStore creates the user-tier store.
func NewUserStore(pool *pgxpool.Pool) *UserStore {
	return &UserStore{scopedStore{pool: pool, table: "user_memories", scope: ScopeUser}}
}
