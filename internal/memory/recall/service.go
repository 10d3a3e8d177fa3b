package recall

import (
	"context"
	"log/slog"
	"time"

	"github.com/halcyon-ai/mnemo/internal/adapters/metrics"
	"github.com/halcyon-ai/mnemo/internal/domain/models"
	"github.com/halcyon-ai/mnemo/internal/ports"
)

const (
	// DefaultDeadline applies when the caller supplies none; MaxDeadline is
	// the hard ceiling whatever the caller asks for.
	DefaultDeadline = 200 * time.Millisecond
	MaxDeadline     = 500 * time.Millisecond

	driftThreshold  = 5
	candidateLimit  = 50
	defaultMaxItems = 8
	keywordShare    = 0.6 // share of the budget spent before the vector stage starts
)

// Service runs hybrid search under a hard deadline. A deadline miss returns
// the best list built so far, never an error.
type Service struct {
	memories ports.MemoryRepository
	vectors  ports.VectorIndex
	embedder ports.EmbeddingService
}

func NewService(memories ports.MemoryRepository, vectors ports.VectorIndex, embedder ports.EmbeddingService) *Service {
	return &Service{memories: memories, vectors: vectors, embedder: embedder}
}

func (s *Service) Recall(ctx context.Context, req ports.RecallRequest) ([]*models.ScoredMemory, error) {
	start := time.Now()
	defer func() {
		metrics.RecallDuration.Observe(time.Since(start).Seconds())
	}()

	// A zero deadline means the caller has no recall budget at all
	if req.Deadline <= 0 {
		return nil, nil
	}
	deadline := req.Deadline
	if deadline > MaxDeadline {
		deadline = MaxDeadline
	}

	maxItems := req.MaxItems
	if maxItems <= 0 {
		maxItems = defaultMaxItems
	}

	ctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	shaped := Shape(req.Query)
	if shaped.Empty() {
		// Nothing searchable: surface the freshest memories instead
		recent, err := s.memories.ListRecent(ctx, req.UserID, maxItems)
		if err != nil {
			return nil, nil
		}
		scored := make([]*models.ScoredMemory, len(recent))
		for i, m := range recent {
			scored[i] = &models.ScoredMemory{Memory: m}
		}
		return Rank(scored, req.ThreadID, time.Now(), maxItems), nil
	}

	s.repairIndex(ctx, req.UserID)

	keywordCtx, keywordCancel := context.WithTimeout(ctx, time.Duration(float64(deadline)*keywordShare))
	candidates := s.keywordStage(keywordCtx, req.UserID, shaped)
	keywordCancel()

	// Vector stage runs in whatever budget remains
	if vectorHits := s.vectorStage(ctx, req.UserID, req.Query); len(vectorHits) > 0 {
		candidates = Merge(candidates, vectorHits)
	}

	for _, sm := range candidates {
		if shaped.PhraseHit(sm.Memory.Content) {
			sm.PhraseHit = true
		}
	}

	if ctx.Err() != nil {
		metrics.RecallDeadlineMisses.Inc()
	}

	return Rank(candidates, req.ThreadID, time.Now(), maxItems), nil
}

// keywordStage tries FTS first, falling back to substring matching.
func (s *Service) keywordStage(ctx context.Context, userID string, shaped ShapedQuery) []*models.ScoredMemory {
	results, err := s.memories.SearchKeyword(ctx, userID, shaped.FTSQuery, candidateLimit)
	if err == nil && len(results) > 0 {
		return results
	}
	if err != nil {
		slog.Debug("keyword search degraded to substring scan", "error", err)
	}

	fallback, err := s.memories.SearchSubstring(ctx, userID, shaped.Terms, candidateLimit)
	if err != nil {
		slog.Debug("substring search failed", "error", err)
		return nil
	}
	return fallback
}

// vectorStage embeds the query and fetches nearest neighbors. Both steps are
// best-effort: any failure yields keyword-only results.
func (s *Service) vectorStage(ctx context.Context, userID, query string) []*models.ScoredMemory {
	if s.embedder == nil || s.vectors == nil || ctx.Err() != nil {
		return nil
	}

	embedding, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil
	}

	hits, err := s.vectors.Search(ctx, userID, embedding.Embedding, candidateLimit)
	if err != nil || len(hits) == 0 {
		return nil
	}

	scored := make([]*models.ScoredMemory, 0, len(hits))
	for _, hit := range hits {
		m, err := s.memories.GetByID(ctx, userID, hit.MemoryID)
		if err != nil {
			// Stale index entry; skip
			continue
		}
		scored = append(scored, &models.ScoredMemory{Memory: m, Cosine: hit.Cosine})
	}
	return scored
}

// repairIndex rebuilds the keyword index when drift exceeds the threshold.
func (s *Service) repairIndex(ctx context.Context, userID string) {
	missing, err := s.memories.IndexDrift(ctx, userID)
	if err != nil || missing <= driftThreshold {
		return
	}
	slog.Info("rebuilding keyword index", "user_id", userID, "missing", missing)
	if err := s.memories.RebuildIndex(ctx, userID); err != nil {
		slog.Warn("keyword index rebuild failed", "error", err)
	}
}
