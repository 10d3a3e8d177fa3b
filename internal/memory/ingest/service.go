package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/halcyon-ai/mnemo/internal/adapters/metrics"
	"github.com/halcyon-ai/mnemo/internal/config"
	"github.com/halcyon-ai/mnemo/internal/domain"
	"github.com/halcyon-ai/mnemo/internal/domain/models"
	"github.com/halcyon-ai/mnemo/internal/ports"
)

// Service implements ports.IngestService: queued cadence-driven audits plus
// the explicit-save fast path.
type Service struct {
	cadence *CadenceTracker
	auditor *Auditor
	queue   *workQueue
}

func NewService(cfg config.MemoryConfig, auditor *Auditor) *Service {
	s := &Service{
		cadence: NewCadenceTracker(
			cfg.AuditMsgThreshold,
			cfg.AuditTokenThreshold,
			time.Duration(cfg.AuditTimeMs)*time.Millisecond,
		),
		auditor: auditor,
	}
	s.queue = newWorkQueue(cfg.WorkQueueSize, cfg.WorkerCount, s.handle)
	return s
}

// Start launches the worker pool, one worker per shard. Stop drains it.
func (s *Service) Start(ctx context.Context) {
	s.queue.start(ctx)
}

func (s *Service) Stop() {
	s.queue.stop()
}

// Enqueue submits a turn for cadence accounting. It never blocks; a full
// queue drops the event and returns ErrQueueFull.
func (s *Service) Enqueue(event *models.IngestEvent) error {
	if event.UserID == "" || event.ThreadID == "" {
		return fmt.Errorf("%w: missing user or thread id", domain.ErrInvalidInput)
	}
	return s.queue.enqueue(event)
}

// handle runs on a worker: accumulate cadence, audit when a window freezes.
func (s *Service) handle(ctx context.Context, event *models.IngestEvent) error {
	window := s.cadence.Observe(event.UserID, event.ThreadID, event.Messages, time.Now())
	if window == nil {
		return nil
	}
	return s.auditor.Audit(ctx, event.UserID, event.ThreadID, window)
}

// SaveExplicit is the user-directed fast path: no cadence, no quality gate.
// Redaction and dedup still apply. Defaults to TIER1 at priority 0.9.
func (s *Service) SaveExplicit(ctx context.Context, save ports.ExplicitSave) (*models.Memory, error) {
	content := strings.TrimSpace(save.Content)
	if content == "" {
		return nil, domain.ErrEmptyContent
	}

	tier := save.Tier
	if !tier.Valid() {
		tier = models.Tier1
	}
	priority := save.Priority
	if priority <= 0 {
		priority = models.Tier1MinPriority
	}

	redacted, redactionMap := Redact(content)

	recent, err := s.auditor.memories.ListRecent(ctx, save.UserID, recentScanLimit)
	if err != nil {
		return nil, err
	}

	if match := bestMatch(redacted, recent); match != nil {
		match.Supersede(redacted, save.ThreadID, 1.0)
		match.SetTier(tier)
		if priority > match.Priority {
			match.Priority = priority
		}
		for k, v := range redactionMap {
			if match.RedactionMap == nil {
				match.RedactionMap = make(map[string]string)
			}
			match.RedactionMap[k] = v
		}
		err := s.auditor.tx.WithTransaction(ctx, func(ctx context.Context) error {
			return s.auditor.memories.Update(ctx, match)
		})
		if err != nil {
			return nil, err
		}
		metrics.MemoriesSuperseded.Inc()
		s.auditor.afterWrite(ctx, save.UserID, match)
		return match, nil
	}

	memory := models.NewMemory(s.auditor.ids.MemoryID(), save.UserID, save.ThreadID, redacted)
	memory.SetTier(tier)
	if priority > memory.Priority {
		memory.Priority = priority
	}
	memory.Confidence = 1.0
	memory.Entities = ExtractEntities(redacted)
	memory.RedactionMap = redactionMap

	err = s.auditor.tx.WithTransaction(ctx, func(ctx context.Context) error {
		return s.auditor.memories.Create(ctx, memory)
	})
	if err != nil {
		return nil, err
	}

	metrics.MemoriesSavedTotal.WithLabelValues(string(memory.Tier)).Inc()
	s.auditor.afterWrite(ctx, save.UserID, memory)
	return memory, nil
}

// UpdateMemory applies an edit to an existing memory. Edited content is
// re-redacted and re-embedded; tier changes never downgrade.
func (s *Service) UpdateMemory(ctx context.Context, userID, id string, upd ports.MemoryUpdate) (*models.Memory, error) {
	memory, err := s.auditor.memories.GetByID(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	if upd.Content != nil {
		content := strings.TrimSpace(*upd.Content)
		if content == "" {
			return nil, domain.ErrEmptyContent
		}
		redacted, redactionMap := Redact(content)
		memory.Content = redacted
		memory.Entities = ExtractEntities(redacted)
		for k, v := range redactionMap {
			if memory.RedactionMap == nil {
				memory.RedactionMap = make(map[string]string)
			}
			memory.RedactionMap[k] = v
		}
	}
	if upd.Priority != nil && *upd.Priority > 0 {
		memory.Priority = *upd.Priority
	}
	if upd.Tier.Valid() {
		memory.SetTier(upd.Tier)
	}
	memory.UpdatedAt = time.Now()

	err = s.auditor.tx.WithTransaction(ctx, func(ctx context.Context) error {
		return s.auditor.memories.Update(ctx, memory)
	})
	if err != nil {
		return nil, err
	}

	s.auditor.afterWrite(ctx, userID, memory)
	return memory, nil
}

// DeleteMemory soft-deletes the row; the repository cascades to the keyword
// index and the vector row is removed best-effort.
func (s *Service) DeleteMemory(ctx context.Context, userID, id string) error {
	memory, err := s.auditor.memories.GetByID(ctx, userID, id)
	if err != nil {
		return err
	}

	err = s.auditor.tx.WithTransaction(ctx, func(ctx context.Context) error {
		return s.auditor.memories.Delete(ctx, userID, id)
	})
	if err != nil {
		return err
	}

	if s.auditor.vectors != nil {
		if err := s.auditor.vectors.Delete(ctx, id); err != nil {
			slog.Debug("vector delete failed", "memory_id", id, "error", err)
		}
	}
	if s.auditor.invalidator != nil && (memory.Tier == models.Tier1 || memory.Tier == models.Tier2) {
		s.auditor.invalidator(ctx, userID)
	}
	return nil
}

// PruneTier3 is the maintenance entry point for TIER3 decay. TIER1 and TIER2
// rows are never touched.
func (s *Service) PruneTier3(ctx context.Context, userID string, cutoff time.Time) (int, error) {
	return s.auditor.memories.PruneTier3(ctx, userID, cutoff)
}
