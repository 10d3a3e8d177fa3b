package ports

import (
	"context"
	"time"

	"github.com/halcyon-ai/mnemo/internal/domain/models"
)

// MemoryRepository persists memory rows and the synchronized keyword index.
// Every query is scoped by user id; cross-user reads are rejected at this
// layer, not only at the API.
type MemoryRepository interface {
	Create(ctx context.Context, memory *models.Memory) error
	Update(ctx context.Context, memory *models.Memory) error
	GetByID(ctx context.Context, userID, id string) (*models.Memory, error)
	// Delete soft-deletes the row and cascades to the keyword index.
	Delete(ctx context.Context, userID, id string) error
	// ListRecent returns the user's most recently updated memories, newest
	// first, for the dedup/supersede scan.
	ListRecent(ctx context.Context, userID string, limit int) ([]*models.Memory, error)
	List(ctx context.Context, userID string, tier models.Tier, limit int) ([]*models.Memory, error)
	// ListByTiers returns memories in the given tiers, for profile derivation.
	ListByTiers(ctx context.Context, userID string, tiers []models.Tier, limit int) ([]*models.Memory, error)
	// SearchKeyword runs the FTS query (ts_rank scores normalized to [0,1]).
	SearchKeyword(ctx context.Context, userID, ftsQuery string, limit int) ([]*models.ScoredMemory, error)
	// SearchSubstring is the fallback path: ILIKE terms ranked by hit counts.
	SearchSubstring(ctx context.Context, userID string, terms []string, limit int) ([]*models.ScoredMemory, error)
	// IndexDrift reports how many live rows are missing from the keyword index.
	IndexDrift(ctx context.Context, userID string) (int, error)
	// RebuildIndex re-inserts missing keyword index rows for the user.
	RebuildIndex(ctx context.Context, userID string) error
	// PruneTier3 soft-deletes TIER3 rows not seen since the cutoff.
	PruneTier3(ctx context.Context, userID string, cutoff time.Time) (int, error)
}

// AuditRepository appends and reads audit windows.
type AuditRepository interface {
	Create(ctx context.Context, rec *models.AuditRecord) error
	ListByThread(ctx context.Context, userID, threadID string, limit int) ([]*models.AuditRecord, error)
}

// SummaryRepository owns thread_summaries. Only the summary job writes here.
type SummaryRepository interface {
	Upsert(ctx context.Context, s *models.ThreadSummary) error
	Get(ctx context.Context, userID, threadID string) (*models.ThreadSummary, error)
	// ListRecent returns the user's freshest summaries, excluding one thread.
	ListRecent(ctx context.Context, userID, excludeThreadID string, limit int) ([]*models.ThreadSummary, error)
}

// ProfileRepository persists derived profiles (primary storage; the bus copy
// is only a hint).
type ProfileRepository interface {
	Upsert(ctx context.Context, p *models.UserProfile) error
	Get(ctx context.Context, userID string) (*models.UserProfile, error)
}

// MessageRepository owns chat messages. Only the gateway writes here.
type MessageRepository interface {
	Create(ctx context.Context, msg *models.ChatMessage) error
	ListByThread(ctx context.Context, userID, threadID string, limit int) ([]*models.ChatMessage, error)
	// CountSince counts messages in the thread newer than the given time,
	// for lazy summary regeneration.
	CountSince(ctx context.Context, userID, threadID string, since time.Time) (int, error)
}

// ThreadHistory is the read-only view of chat history the memory service
// consumes. The gateway owns the messages table; memory-side implementations
// go over HTTP, never to the database.
type ThreadHistory interface {
	ListByThread(ctx context.Context, userID, threadID string, limit int) ([]*models.ChatMessage, error)
	CountSince(ctx context.Context, userID, threadID string, since time.Time) (int, error)
}

// VectorIndex is the opaque nearest-neighbor index. Writes are idempotent by
// memory id; reads tolerate stale or missing entries.
type VectorIndex interface {
	Upsert(ctx context.Context, userID, memoryID string, embedding []float32) error
	Delete(ctx context.Context, memoryID string) error
	// Search returns up to limit neighbors with cosine similarity in [0,1].
	Search(ctx context.Context, userID string, embedding []float32, limit int) ([]VectorHit, error)
}

// VectorHit is one nearest-neighbor result.
type VectorHit struct {
	MemoryID string
	Cosine   float64
}

// TransactionManager runs a function within a database transaction.
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// IDGenerator produces prefixed unique identifiers.
type IDGenerator interface {
	MemoryID() string
	AuditID() string
	BatchID() string
	MessageID() string
}
