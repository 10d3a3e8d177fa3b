package postgres

import (
	"context"

	"github.com/pashagolub/pgxmock/v3"
)

// setupMockContext binds the mock as the context transaction so
// BaseRepository.Conn returns it.
func setupMockContext(mock pgxmock.PgxPoolIface) context.Context {
	return context.WithValue(context.Background(), txKey, mock)
}
