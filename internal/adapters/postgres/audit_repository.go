package postgres

import (
	"context"

	"github.com/halcyon-ai/mnemo/internal/domain/models"
)

type AuditRepository struct {
	BaseRepository
}

func NewAuditRepository(pool Querier) *AuditRepository {
	return &AuditRepository{BaseRepository: NewBaseRepository(pool)}
}

func (r *AuditRepository) Create(ctx context.Context, rec *models.AuditRecord) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO audits (id, user_id, thread_id, start_msg_id, end_msg_id, score, saved, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		rec.ID,
		rec.UserID,
		rec.ThreadID,
		nullableText(rec.StartMsgID),
		nullableText(rec.EndMsgID),
		rec.Score,
		rec.Saved,
		rec.CreatedAt,
	)
	return err
}

func (r *AuditRepository) ListByThread(ctx context.Context, userID, threadID string, limit int) ([]*models.AuditRecord, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, user_id, thread_id, start_msg_id, end_msg_id, score, saved, created_at
		FROM audits
		WHERE user_id = $1 AND thread_id = $2
		ORDER BY created_at DESC
		LIMIT $3`, userID, threadID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*models.AuditRecord
	for rows.Next() {
		var (
			rec        models.AuditRecord
			startMsgID *string
			endMsgID   *string
		)
		if err := rows.Scan(
			&rec.ID,
			&rec.UserID,
			&rec.ThreadID,
			&startMsgID,
			&endMsgID,
			&rec.Score,
			&rec.Saved,
			&rec.CreatedAt,
		); err != nil {
			return nil, err
		}
		if startMsgID != nil {
			rec.StartMsgID = *startMsgID
		}
		if endMsgID != nil {
			rec.EndMsgID = *endMsgID
		}
		records = append(records, &rec)
	}
	return records, rows.Err()
}
