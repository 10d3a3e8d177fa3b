package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Querier is the subset of pgx used by repositories: either the pool or the
// transaction bound to the context.
type Querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type BaseRepository struct {
	pool Querier
}

func NewBaseRepository(pool Querier) BaseRepository {
	return BaseRepository{pool: pool}
}

// Conn returns the transaction bound to the context, or the pool.
func (r *BaseRepository) Conn(ctx context.Context) Querier {
	if tx := GetTx(ctx); tx != nil {
		return tx
	}
	return r.pool
}

func (r *BaseRepository) conn(ctx context.Context) Querier {
	return r.Conn(ctx)
}
