// Package vector stores memory embeddings in Postgres via pgvector and serves
// cosine nearest-neighbor lookups for hybrid recall.
package vector

import (
	"context"

	"github.com/halcyon-ai/mnemo/internal/adapters/postgres"
	"github.com/halcyon-ai/mnemo/internal/ports"
	"github.com/pgvector/pgvector-go"
)

type PgvectorIndex struct {
	postgres.BaseRepository
}

func NewPgvectorIndex(pool postgres.Querier) *PgvectorIndex {
	return &PgvectorIndex{BaseRepository: postgres.NewBaseRepository(pool)}
}

// Upsert is idempotent by memory id; re-embedding replaces the vector.
func (i *PgvectorIndex) Upsert(ctx context.Context, userID, memoryID string, embedding []float32) error {
	_, err := i.Conn(ctx).Exec(ctx, `
		INSERT INTO memory_embeddings (memory_id, user_id, embedding)
		VALUES ($1, $2, $3)
		ON CONFLICT (memory_id) DO UPDATE SET embedding = EXCLUDED.embedding`,
		memoryID, userID, pgvector.NewVector(embedding))
	return err
}

func (i *PgvectorIndex) Delete(ctx context.Context, memoryID string) error {
	_, err := i.Conn(ctx).Exec(ctx, `DELETE FROM memory_embeddings WHERE memory_id = $1`, memoryID)
	return err
}

// Search returns the nearest neighbors by cosine similarity. <=> is cosine
// distance, so similarity is 1 - distance, clamped at 0.
func (i *PgvectorIndex) Search(ctx context.Context, userID string, embedding []float32, limit int) ([]ports.VectorHit, error) {
	rows, err := i.Conn(ctx).Query(ctx, `
		SELECT memory_id, 1 - (embedding <=> $2) AS cosine
		FROM memory_embeddings
		WHERE user_id = $1
		ORDER BY embedding <=> $2
		LIMIT $3`, userID, pgvector.NewVector(embedding), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hits []ports.VectorHit
	for rows.Next() {
		var hit ports.VectorHit
		if err := rows.Scan(&hit.MemoryID, &hit.Cosine); err != nil {
			return nil, err
		}
		if hit.Cosine < 0 {
			hit.Cosine = 0
		}
		hits = append(hits, hit)
	}
	return hits, rows.Err()
}
