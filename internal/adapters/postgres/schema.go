package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Migrate applies the schema. Statements are idempotent; the services run it
// at startup.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,

		`CREATE TABLE IF NOT EXISTS memories (
			id            TEXT PRIMARY KEY,
			user_id       TEXT NOT NULL,
			thread_id     TEXT,
			content       TEXT NOT NULL,
			entities      JSONB,
			priority      REAL NOT NULL DEFAULT 0.5,
			confidence    REAL NOT NULL DEFAULT 0.5,
			tier          TEXT NOT NULL CHECK (tier IN ('TIER1','TIER2','TIER3')),
			created_at    TIMESTAMPTZ NOT NULL,
			updated_at    TIMESTAMPTZ NOT NULL,
			last_seen_at  TIMESTAMPTZ NOT NULL,
			repeats       INT NOT NULL DEFAULT 1,
			thread_set    JSONB,
			redaction_map JSONB,
			deleted_at    TIMESTAMPTZ
		)`,
		`CREATE INDEX IF NOT EXISTS memories_user_updated_idx ON memories (user_id, updated_at DESC)`,
		`CREATE INDEX IF NOT EXISTS memories_user_tier_idx ON memories (user_id, tier)`,

		// External keyword index, kept in sync with memories inside the same
		// transaction. Drift is detected and rebuilt on the read path.
		`CREATE TABLE IF NOT EXISTS memories_fts (
			memory_id TEXT PRIMARY KEY REFERENCES memories(id) ON DELETE CASCADE,
			user_id   TEXT NOT NULL,
			doc       TSVECTOR NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS memories_fts_doc_idx ON memories_fts USING gin(doc)`,
		`CREATE INDEX IF NOT EXISTS memories_fts_user_idx ON memories_fts (user_id)`,

		`CREATE TABLE IF NOT EXISTS memory_embeddings (
			memory_id TEXT PRIMARY KEY,
			user_id   TEXT NOT NULL,
			embedding VECTOR(1536) NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS memory_embeddings_user_idx ON memory_embeddings (user_id)`,

		`CREATE TABLE IF NOT EXISTS audits (
			id           TEXT PRIMARY KEY,
			user_id      TEXT NOT NULL,
			thread_id    TEXT NOT NULL,
			start_msg_id TEXT,
			end_msg_id   TEXT,
			score        REAL NOT NULL DEFAULT 0,
			saved        INT NOT NULL DEFAULT 0,
			created_at   TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS audits_user_thread_idx ON audits (user_id, thread_id, created_at DESC)`,

		`CREATE TABLE IF NOT EXISTS thread_summaries (
			thread_id  TEXT PRIMARY KEY,
			user_id    TEXT NOT NULL,
			summary    TEXT NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS thread_summaries_user_idx ON thread_summaries (user_id, updated_at DESC)`,

		`CREATE TABLE IF NOT EXISTS user_profiles (
			user_id    TEXT PRIMARY KEY,
			payload    JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS chat_messages (
			id         TEXT PRIMARY KEY,
			user_id    TEXT NOT NULL,
			thread_id  TEXT NOT NULL,
			role       TEXT NOT NULL,
			content    TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS chat_messages_thread_idx ON chat_messages (user_id, thread_id, created_at)`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
