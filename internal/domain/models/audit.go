package models

import "time"

// AuditRecord is one append-only row per processed message window, used for
// idempotency and observability.
type AuditRecord struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	ThreadID   string    `json:"thread_id"`
	StartMsgID string    `json:"start_msg_id"`
	EndMsgID   string    `json:"end_msg_id"`
	Score      float64   `json:"score"`
	Saved      int       `json:"saved"`
	CreatedAt  time.Time `json:"created_at"`
}

// IngestEvent is the per-assistant-turn unit consumed by the memory service.
type IngestEvent struct {
	UserID   string        `json:"user_id"`
	ThreadID string        `json:"thread_id"`
	Messages []ChatMessage `json:"messages"`
}
