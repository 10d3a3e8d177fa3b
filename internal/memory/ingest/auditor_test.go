package ingest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/halcyon-ai/mnemo/internal/config"
	"github.com/halcyon-ai/mnemo/internal/domain/models"
	"github.com/halcyon-ai/mnemo/internal/ports"
)

// memoryStore is an in-memory ports.MemoryRepository for pipeline tests.
type memoryStore struct {
	rows    []*models.Memory
	creates int
	updates int
}

func (s *memoryStore) Create(_ context.Context, m *models.Memory) error {
	s.creates++
	s.rows = append(s.rows, m)
	return nil
}

func (s *memoryStore) Update(_ context.Context, m *models.Memory) error {
	s.updates++
	for i, row := range s.rows {
		if row.ID == m.ID {
			s.rows[i] = m
			return nil
		}
	}
	return fmt.Errorf("no row %s", m.ID)
}

func (s *memoryStore) GetByID(_ context.Context, _, id string) (*models.Memory, error) {
	for _, row := range s.rows {
		if row.ID == id {
			return row, nil
		}
	}
	return nil, fmt.Errorf("no row %s", id)
}

func (s *memoryStore) Delete(context.Context, string, string) error { return nil }

func (s *memoryStore) ListRecent(_ context.Context, _ string, limit int) ([]*models.Memory, error) {
	if len(s.rows) > limit {
		return s.rows[:limit], nil
	}
	return s.rows, nil
}

func (s *memoryStore) List(context.Context, string, models.Tier, int) ([]*models.Memory, error) {
	return nil, nil
}

func (s *memoryStore) ListByTiers(context.Context, string, []models.Tier, int) ([]*models.Memory, error) {
	return nil, nil
}

func (s *memoryStore) SearchKeyword(context.Context, string, string, int) ([]*models.ScoredMemory, error) {
	return nil, nil
}

func (s *memoryStore) SearchSubstring(context.Context, string, []string, int) ([]*models.ScoredMemory, error) {
	return nil, nil
}

func (s *memoryStore) IndexDrift(context.Context, string) (int, error) { return 0, nil }
func (s *memoryStore) RebuildIndex(context.Context, string) error      { return nil }
func (s *memoryStore) PruneTier3(context.Context, string, time.Time) (int, error) {
	return 0, nil
}

type auditStore struct {
	records []*models.AuditRecord
}

func (s *auditStore) Create(_ context.Context, rec *models.AuditRecord) error {
	s.records = append(s.records, rec)
	return nil
}

func (s *auditStore) ListByThread(context.Context, string, string, int) ([]*models.AuditRecord, error) {
	return s.records, nil
}

type noopTx struct{}

func (noopTx) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type seqIDs struct{ n int }

func (g *seqIDs) next(prefix string) string {
	g.n++
	return fmt.Sprintf("%s_%d", prefix, g.n)
}

func (g *seqIDs) MemoryID() string  { return g.next("mem") }
func (g *seqIDs) AuditID() string   { return g.next("aud") }
func (g *seqIDs) BatchID() string   { return g.next("batch") }
func (g *seqIDs) MessageID() string { return g.next("msg") }

func newTestAuditor(mem *memoryStore, audits *auditStore) *Auditor {
	return NewAuditor(mem, audits, noopTx{}, &seqIDs{}, nil, nil, nil, nil, 0.3)
}

func testMemoryConfig() config.MemoryConfig {
	return config.MemoryConfig{
		AuditMsgThreshold:   8,
		AuditTokenThreshold: 700,
		AuditTimeMs:         90000,
		QualityThreshold:    0.3,
		WorkerCount:         1,
		WorkQueueSize:       8,
	}
}

func TestAudit_EmptyWindowStillRecorded(t *testing.T) {
	mem := &memoryStore{}
	audits := &auditStore{}
	auditor := newTestAuditor(mem, audits)

	if err := auditor.Audit(context.Background(), "user_1", "thread_1", nil); err != nil {
		t.Fatal(err)
	}

	if len(audits.records) != 1 {
		t.Fatalf("expected 1 audit record, got %d", len(audits.records))
	}
	rec := audits.records[0]
	if rec.Saved != 0 {
		t.Errorf("expected saved=0, got %d", rec.Saved)
	}
	if rec.Score != 0 {
		t.Errorf("expected score=0, got %f", rec.Score)
	}
	if mem.creates != 0 {
		t.Errorf("expected no memories, got %d", mem.creates)
	}
}

func TestAudit_RecordsWindowBounds(t *testing.T) {
	mem := &memoryStore{}
	audits := &auditStore{}
	auditor := newTestAuditor(mem, audits)

	window := []models.ChatMessage{
		{ID: "msg_a", Role: models.RoleUser, Content: "hi"},
		{ID: "msg_b", Role: models.RoleAssistant, Content: "hello"},
		{ID: "msg_c", Role: models.RoleUser, Content: "ok"},
	}
	if err := auditor.Audit(context.Background(), "user_1", "thread_1", window); err != nil {
		t.Fatal(err)
	}

	rec := audits.records[0]
	if rec.StartMsgID != "msg_a" || rec.EndMsgID != "msg_c" {
		t.Errorf("window bounds %q..%q, want msg_a..msg_c", rec.StartMsgID, rec.EndMsgID)
	}
}

func TestSaveExplicit_SupersedeKeepsIdentity(t *testing.T) {
	mem := &memoryStore{}
	svc := NewService(testMemoryConfig(), newTestAuditor(mem, &auditStore{}))

	first, err := svc.SaveExplicit(context.Background(), ports.ExplicitSave{
		UserID:   "user_1",
		ThreadID: "t1",
		Content:  "my favorite color is blue",
	})
	if err != nil {
		t.Fatal(err)
	}
	if first.Tier != models.Tier1 {
		t.Errorf("explicit save should default to TIER1, got %s", first.Tier)
	}
	if first.Confidence != 1.0 {
		t.Errorf("explicit save confidence = %f, want 1.0", first.Confidence)
	}

	second, err := svc.SaveExplicit(context.Background(), ports.ExplicitSave{
		UserID:   "user_1",
		ThreadID: "t2",
		Content:  "my favorite color is red",
	})
	if err != nil {
		t.Fatal(err)
	}

	if second.ID != first.ID {
		t.Fatalf("supersede changed identity: %s vs %s", second.ID, first.ID)
	}
	if second.Repeats != 2 {
		t.Errorf("repeats = %d, want 2", second.Repeats)
	}
	if len(second.ThreadSet) != 2 || !second.InThread("t1") || !second.InThread("t2") {
		t.Errorf("thread set %v, want both t1 and t2", second.ThreadSet)
	}
	if second.Content != "my favorite color is red" {
		t.Errorf("content not replaced: %q", second.Content)
	}
	if mem.creates != 1 || mem.updates != 1 {
		t.Errorf("expected one create and one update, got %d/%d", mem.creates, mem.updates)
	}
}

func TestSaveExplicit_UnrelatedContentCreatesNewRow(t *testing.T) {
	mem := &memoryStore{}
	svc := NewService(testMemoryConfig(), newTestAuditor(mem, &auditStore{}))

	if _, err := svc.SaveExplicit(context.Background(), ports.ExplicitSave{
		UserID: "user_1", ThreadID: "t1", Content: "my favorite color is blue",
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.SaveExplicit(context.Background(), ports.ExplicitSave{
		UserID: "user_1", ThreadID: "t1", Content: "my dog is named Biscuit",
	}); err != nil {
		t.Fatal(err)
	}

	if mem.creates != 2 {
		t.Errorf("expected 2 distinct memories, got %d creates", mem.creates)
	}
}
