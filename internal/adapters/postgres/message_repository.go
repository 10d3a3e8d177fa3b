package postgres

import (
	"context"
	"time"

	"github.com/halcyon-ai/mnemo/internal/domain/models"
)

type MessageRepository struct {
	BaseRepository
}

func NewMessageRepository(pool Querier) *MessageRepository {
	return &MessageRepository{BaseRepository: NewBaseRepository(pool)}
}

func (r *MessageRepository) Create(ctx context.Context, msg *models.ChatMessage) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO chat_messages (id, user_id, thread_id, role, content, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		msg.ID, msg.UserID, msg.ThreadID, msg.Role, msg.Content, msg.CreatedAt)
	return err
}

// ListByThread returns the newest messages in chronological order.
func (r *MessageRepository) ListByThread(ctx context.Context, userID, threadID string, limit int) ([]*models.ChatMessage, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, user_id, thread_id, role, content, created_at
		FROM (
			SELECT id, user_id, thread_id, role, content, created_at
			FROM chat_messages
			WHERE user_id = $1 AND thread_id = $2
			ORDER BY created_at DESC
			LIMIT $3
		) recent
		ORDER BY created_at ASC`, userID, threadID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []*models.ChatMessage
	for rows.Next() {
		var m models.ChatMessage
		if err := rows.Scan(&m.ID, &m.UserID, &m.ThreadID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, err
		}
		messages = append(messages, &m)
	}
	return messages, rows.Err()
}

func (r *MessageRepository) CountSince(ctx context.Context, userID, threadID string, since time.Time) (int, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var count int
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT COUNT(*)
		FROM chat_messages
		WHERE user_id = $1 AND thread_id = $2 AND created_at > $3`,
		userID, threadID, since).Scan(&count)
	return count, err
}
