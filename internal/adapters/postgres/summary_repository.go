package postgres

import (
	"context"

	"github.com/halcyon-ai/mnemo/internal/domain"
	"github.com/halcyon-ai/mnemo/internal/domain/models"
)

type SummaryRepository struct {
	BaseRepository
}

func NewSummaryRepository(pool Querier) *SummaryRepository {
	return &SummaryRepository{BaseRepository: NewBaseRepository(pool)}
}

func (r *SummaryRepository) Upsert(ctx context.Context, s *models.ThreadSummary) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO thread_summaries (thread_id, user_id, summary, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (thread_id) DO UPDATE
		SET summary = EXCLUDED.summary, updated_at = EXCLUDED.updated_at`,
		s.ThreadID, s.UserID, s.Summary, s.UpdatedAt)
	return err
}

func (r *SummaryRepository) Get(ctx context.Context, userID, threadID string) (*models.ThreadSummary, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var s models.ThreadSummary
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT thread_id, user_id, summary, updated_at
		FROM thread_summaries
		WHERE thread_id = $1 AND user_id = $2`, threadID, userID).
		Scan(&s.ThreadID, &s.UserID, &s.Summary, &s.UpdatedAt)
	if err != nil {
		if checkNoRows(err) {
			return nil, domain.ErrSummaryNotFound
		}
		return nil, err
	}
	return &s, nil
}

func (r *SummaryRepository) ListRecent(ctx context.Context, userID, excludeThreadID string, limit int) ([]*models.ThreadSummary, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	rows, err := r.conn(ctx).Query(ctx, `
		SELECT thread_id, user_id, summary, updated_at
		FROM thread_summaries
		WHERE user_id = $1 AND thread_id <> $2
		ORDER BY updated_at DESC
		LIMIT $3`, userID, excludeThreadID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var summaries []*models.ThreadSummary
	for rows.Next() {
		var s models.ThreadSummary
		if err := rows.Scan(&s.ThreadID, &s.UserID, &s.Summary, &s.UpdatedAt); err != nil {
			return nil, err
		}
		summaries = append(summaries, &s)
	}
	return summaries, rows.Err()
}
