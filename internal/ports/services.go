package ports

import (
	"context"
	"time"

	"github.com/halcyon-ai/mnemo/internal/domain/models"
)

// Bus is the cache bus: short-lived, reconstructible state only. A nil or
// unreachable bus must degrade the system, never break it.
type Bus interface {
	// Get returns redisbus.ErrBusMiss when the key is absent.
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// SetNX sets the key only if absent; reports whether the write happened.
	// Used for idempotent capsule publication.
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
	Delete(ctx context.Context, key string) error
	Publish(ctx context.Context, channel, payload string) error
	Subscribe(ctx context.Context, channel string) (<-chan string, func(), error)
	// IncrWithTTL atomically increments a counter, setting the TTL on first
	// increment, and returns the new value. Used for rate limiting.
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

// RecallRequest parameterizes a hybrid memory search.
type RecallRequest struct {
	UserID   string
	ThreadID string
	Query    string
	MaxItems int
	Deadline time.Duration
}

// RecallService is the core hybrid search. It returns within the request
// deadline even at the cost of completeness, never returning an error for
// a deadline miss.
type RecallService interface {
	Recall(ctx context.Context, req RecallRequest) ([]*models.ScoredMemory, error)
}

// ExplicitSave is the fast-path payload for user-directed saves.
type ExplicitSave struct {
	UserID   string
	ThreadID string
	Content  string
	Priority float64
	Tier     models.Tier
}

// MemoryUpdate carries the mutable fields of an edit. Nil means unchanged;
// an invalid tier is ignored.
type MemoryUpdate struct {
	Content  *string
	Priority *float64
	Tier     models.Tier
}

// IngestService consumes turns and explicit saves. It is the only writer of
// memory rows, so edits, removals, and pruning live here too.
type IngestService interface {
	// Enqueue submits an ingest event; it never blocks the chat path and
	// returns ErrQueueFull only when backpressure dropped the event.
	Enqueue(event *models.IngestEvent) error
	// SaveExplicit bypasses cadence: redaction and dedup still apply.
	SaveExplicit(ctx context.Context, save ExplicitSave) (*models.Memory, error)
	// UpdateMemory edits a memory in place. Tier changes never downgrade.
	UpdateMemory(ctx context.Context, userID, id string, upd MemoryUpdate) (*models.Memory, error)
	// DeleteMemory soft-deletes and cascades to the keyword and vector indexes.
	DeleteMemory(ctx context.Context, userID, id string) error
	// PruneTier3 soft-deletes TIER3 memories not seen since the cutoff.
	PruneTier3(ctx context.Context, userID string, cutoff time.Time) (int, error)
}

// ProfileService derives and caches user profiles.
type ProfileService interface {
	Get(ctx context.Context, userID string) (*models.UserProfile, error)
	Invalidate(ctx context.Context, userID string)
}

// SummaryService maintains lazy thread summaries.
type SummaryService interface {
	Refresh(ctx context.Context, userID, threadID string) (*models.ThreadSummary, error)
	ListRecent(ctx context.Context, userID, excludeThreadID string, limit int) ([]*models.ThreadSummary, error)
}

// EmbeddingResult is one embedding vector with provenance.
type EmbeddingResult struct {
	Embedding  []float32
	Model      string
	Dimensions int
}

// EmbeddingService turns text into vectors.
type EmbeddingService interface {
	Embed(ctx context.Context, text string) (*EmbeddingResult, error)
}

// SearchResult is one raw hit from a search backend.
type SearchResult struct {
	Title   string
	Host    string
	Date    string
	Snippet string
}

// SearchBackend is the external web-search collaborator.
type SearchBackend interface {
	Search(ctx context.Context, query string, recency models.RecencyHint, limit int) ([]SearchResult, error)
}

// ResearchService runs hidden research jobs off the hot path.
type ResearchService interface {
	Enqueue(job *models.ResearchJob) error
}

// StreamDelta is one unit of streamed model output.
type StreamDelta struct {
	Content      string
	FinishReason string
	Err          error
	Done         bool
}

// ChatRequest is a provider-bound prompt.
type ChatRequest struct {
	Model     string
	Messages  []models.ChatMessage
	MaxTokens int
}

// LLMService abstracts the model provider behind a narrow streaming surface.
type LLMService interface {
	Stream(ctx context.Context, req ChatRequest) (<-chan StreamDelta, error)
	Complete(ctx context.Context, req ChatRequest) (string, error)
}

// WebSearchAnswer is the composed web-search outcome from the memory
// service. Degraded means the results came back but composition failed.
type WebSearchAnswer struct {
	Answer   string
	Results  []SearchResult
	Degraded bool
}

// MemoryClient is the gateway's view of the memory service.
type MemoryClient interface {
	Recall(ctx context.Context, req RecallRequest) ([]*models.ScoredMemory, error)
	Save(ctx context.Context, save ExplicitSave) (*models.Memory, error)
	Profile(ctx context.Context, userID string, deadline time.Duration) (*models.UserProfile, error)
	RecentSummaries(ctx context.Context, userID, excludeThreadID string, limit int) ([]*models.ThreadSummary, error)
	IngestTurn(ctx context.Context, event *models.IngestEvent) error
	// WebSearch forwards the query with the last few turns so the composer
	// can resolve anaphora.
	WebSearch(ctx context.Context, userID, threadID, query string, turns []models.ChatMessage) (*WebSearchAnswer, error)
}
