package ingest

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/halcyon-ai/mnemo/internal/adapters/metrics"
	"github.com/halcyon-ai/mnemo/internal/domain/models"
	"github.com/halcyon-ai/mnemo/internal/ports"
)

const recentScanLimit = 50

// Auditor runs the audit pipeline over a frozen window: score, redact,
// dedup-or-create, persist, record. It also tracks topic stability for the
// research sidecar.
type Auditor struct {
	memories         ports.MemoryRepository
	audits           ports.AuditRepository
	tx               ports.TransactionManager
	ids              ports.IDGenerator
	embedder         ports.EmbeddingService
	vectors          ports.VectorIndex
	research         ports.ResearchService
	invalidator      func(ctx context.Context, userID string)
	qualityThreshold float64

	mu     sync.Mutex
	topics map[string]int // user+topic -> batches seen in
}

func NewAuditor(
	memories ports.MemoryRepository,
	audits ports.AuditRepository,
	tx ports.TransactionManager,
	ids ports.IDGenerator,
	embedder ports.EmbeddingService,
	vectors ports.VectorIndex,
	research ports.ResearchService,
	invalidator func(ctx context.Context, userID string),
	qualityThreshold float64,
) *Auditor {
	return &Auditor{
		memories:         memories,
		audits:           audits,
		tx:               tx,
		ids:              ids,
		embedder:         embedder,
		vectors:          vectors,
		research:         research,
		invalidator:      invalidator,
		qualityThreshold: qualityThreshold,
		topics:           make(map[string]int),
	}
}

// Audit processes one frozen window. Errors from per-message persistence
// abort the window so the retry wrapper can re-run it.
func (a *Auditor) Audit(ctx context.Context, userID, threadID string, window []models.ChatMessage) error {
	var (
		scoreSum float64
		scored   int
		saved    int
	)

	recent, err := a.memories.ListRecent(ctx, userID, recentScanLimit)
	if err != nil {
		return err
	}

	for _, msg := range window {
		if msg.Role == models.RoleSystem {
			continue
		}

		score := QualityScore(msg.Content)
		scoreSum += score
		scored++

		if score < a.qualityThreshold {
			continue
		}

		memory, created, err := a.upsertCandidate(ctx, userID, threadID, msg.Content, score, recent)
		if err != nil {
			return err
		}
		saved++
		if created {
			recent = append([]*models.Memory{memory}, recent...)
		}
	}

	// Empty or all-discarded windows still produce an audit row
	avgScore := 0.0
	if scored > 0 {
		avgScore = scoreSum / float64(scored)
	}

	rec := &models.AuditRecord{
		ID:        a.ids.AuditID(),
		UserID:    userID,
		ThreadID:  threadID,
		Score:     avgScore,
		Saved:     saved,
		CreatedAt: time.Now(),
	}
	if len(window) > 0 {
		rec.StartMsgID = window[0].ID
		rec.EndMsgID = window[len(window)-1].ID
	}
	if err := a.audits.Create(ctx, rec); err != nil {
		return err
	}

	outcome := "empty"
	if saved > 0 {
		outcome = "saved"
	} else if scored > 0 {
		outcome = "discarded"
	}
	metrics.AuditsTotal.WithLabelValues(outcome).Inc()

	a.checkTopicStability(userID, threadID, window, recent)
	return nil
}

// upsertCandidate runs redaction and dedup, then either supersedes a match
// or creates a new memory. Returns the affected memory and whether it was
// created fresh.
func (a *Auditor) upsertCandidate(ctx context.Context, userID, threadID, content string, score float64, recent []*models.Memory) (*models.Memory, bool, error) {
	redacted, redactionMap := Redact(content)

	if match := bestMatch(redacted, recent); match != nil {
		match.Supersede(redacted, threadID, score)
		for k, v := range redactionMap {
			if match.RedactionMap == nil {
				match.RedactionMap = make(map[string]string)
			}
			match.RedactionMap[k] = v
		}
		err := a.tx.WithTransaction(ctx, func(ctx context.Context) error {
			return a.memories.Update(ctx, match)
		})
		if err != nil {
			return nil, false, err
		}
		metrics.MemoriesSuperseded.Inc()
		a.afterWrite(ctx, userID, match)
		return match, false, nil
	}

	memory := models.NewMemory(a.ids.MemoryID(), userID, threadID, redacted)
	memory.Confidence = score
	memory.Entities = ExtractEntities(redacted)
	memory.RedactionMap = redactionMap
	if tier := observedTier(redacted, threadID, recent); tier != models.Tier3 {
		memory.SetTier(tier)
	}

	err := a.tx.WithTransaction(ctx, func(ctx context.Context) error {
		return a.memories.Create(ctx, memory)
	})
	if err != nil {
		return nil, false, err
	}

	metrics.MemoriesSavedTotal.WithLabelValues(string(memory.Tier)).Inc()
	a.afterWrite(ctx, userID, memory)
	return memory, true, nil
}

// afterWrite handles the non-transactional followups: lagging embedding
// upsert and profile invalidation on TIER1/TIER2 writes.
func (a *Auditor) afterWrite(ctx context.Context, userID string, m *models.Memory) {
	if a.embedder != nil && a.vectors != nil {
		result, err := a.embedder.Embed(ctx, m.Content)
		if err == nil {
			if err := a.vectors.Upsert(ctx, userID, m.ID, result.Embedding); err != nil {
				slog.Debug("embedding upsert failed", "memory_id", m.ID, "error", err)
			}
		}
	}

	if a.invalidator != nil && (m.Tier == models.Tier1 || m.Tier == models.Tier2) {
		a.invalidator(ctx, userID)
	}
}

// bestMatch returns the stored memory the candidate supersedes, if any.
func bestMatch(content string, recent []*models.Memory) *models.Memory {
	var best *models.Memory
	bestScore := 0.0
	for _, m := range recent {
		if s := Similarity(content, m.Content); s >= SupersedeThreshold && s > bestScore {
			best = m
			bestScore = s
		}
	}
	return best
}

// observedTier returns Tier2 when matching content is already stored from
// two or more distinct threads, Tier3 otherwise.
func observedTier(content, threadID string, recent []*models.Memory) models.Tier {
	threads := map[string]bool{}
	if threadID != "" {
		threads[threadID] = true
	}
	for _, m := range recent {
		if Similarity(content, m.Content) >= SupersedeThreshold {
			for _, t := range m.ThreadSet {
				threads[t] = true
			}
		}
	}
	if len(threads) >= 2 {
		return models.Tier2
	}
	return models.Tier3
}

// checkTopicStability enqueues a research job when a grammar topic has
// appeared in two or more audit batches and its backing memories look weak.
func (a *Auditor) checkTopicStability(userID, threadID string, window []models.ChatMessage, recent []*models.Memory) {
	if a.research == nil {
		return
	}

	seen := map[string]bool{}
	for _, msg := range window {
		if topic := Topic(msg.Content); topic != "" {
			seen[topic] = true
		}
	}

	for topic := range seen {
		a.mu.Lock()
		key := userID + "\x00" + topic
		a.topics[key]++
		batches := a.topics[key]
		a.mu.Unlock()

		if batches < 2 {
			continue
		}
		if !lowConfidence(topic, recent) {
			continue
		}

		job := &models.ResearchJob{
			UserID:   userID,
			ThreadID: threadID,
			Topic:    topic,
			TTLClass: models.TTLGeneral,
			Recency:  models.RecencyMonth,
			BatchID:  a.ids.BatchID(),
		}
		if err := a.research.Enqueue(job); err != nil {
			slog.Debug("research enqueue skipped", "topic", topic, "error", err)
		}
	}
}

// lowConfidence reports whether the topic's backing memories average below
// a usable confidence. A topic with no backing memories is low-confidence.
func lowConfidence(topic string, recent []*models.Memory) bool {
	var sum float64
	var n int
	for _, m := range recent {
		if Topic(m.Content) == topic {
			sum += m.Confidence
			n++
		}
	}
	if n == 0 {
		return true
	}
	return sum/float64(n) < 0.6
}
