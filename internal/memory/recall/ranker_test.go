package recall

import (
	"testing"
	"time"

	"github.com/halcyon-ai/mnemo/internal/domain/models"
)

func scored(id string, tier models.Tier, updatedAt time.Time, keyword, cosine float64) *models.ScoredMemory {
	return &models.ScoredMemory{
		Memory: &models.Memory{
			ID:        id,
			Tier:      tier,
			UpdatedAt: updatedAt,
			Priority:  0.5,
		},
		Keyword: keyword,
		Cosine:  cosine,
	}
}

func TestRank_Tier1Promotion(t *testing.T) {
	now := time.Now()
	old := now.Add(-48 * time.Hour)

	candidates := []*models.ScoredMemory{
		scored("recent_t3", models.Tier3, now, 0.9, 0.9),
		scored("old_t1", models.Tier1, old, 0.1, 0.1),
	}

	ranked := Rank(candidates, "", now, 10)

	if ranked[0].Memory.ID != "old_t1" {
		t.Errorf("expected TIER1 at head, got %s", ranked[0].Memory.ID)
	}
}

func TestRank_RecencyBeatsRelevance(t *testing.T) {
	now := time.Now()

	candidates := []*models.ScoredMemory{
		scored("old_relevant", models.Tier2, now.Add(-72*time.Hour), 1.0, 1.0),
		scored("fresh_weak", models.Tier2, now.Add(-time.Hour), 0.2, 0.2),
	}

	ranked := Rank(candidates, "", now, 10)

	if ranked[0].Memory.ID != "fresh_weak" {
		t.Errorf("expected 24h recency boost to win, got %s first", ranked[0].Memory.ID)
	}
}

func TestRank_ThreadBiasFirst(t *testing.T) {
	now := time.Now()

	inThread := scored("in_thread", models.Tier3, now.Add(-72*time.Hour), 0.1, 0)
	inThread.Memory.ThreadSet = []string{"thread_1"}
	outOfThread := scored("out_of_thread", models.Tier3, now, 0.9, 0.9)

	ranked := Rank([]*models.ScoredMemory{outOfThread, inThread}, "thread_1", now, 10)

	if ranked[0].Memory.ID != "in_thread" {
		t.Errorf("expected same-thread memory first, got %s", ranked[0].Memory.ID)
	}
}

func TestRank_DedupePrefersTier1(t *testing.T) {
	now := time.Now()

	a := scored("mem_1", models.Tier3, now, 0.9, 0)
	b := scored("mem_1", models.Tier1, now, 0.1, 0)

	ranked := Rank([]*models.ScoredMemory{a, b}, "", now, 10)

	if len(ranked) != 1 {
		t.Fatalf("expected 1 result after dedup, got %d", len(ranked))
	}
	if ranked[0].Memory.Tier != models.Tier1 {
		t.Errorf("expected TIER1 copy kept, got %s", ranked[0].Memory.Tier)
	}
}

func TestRank_MaxItems(t *testing.T) {
	now := time.Now()
	candidates := []*models.ScoredMemory{
		scored("a", models.Tier3, now, 0.5, 0),
		scored("b", models.Tier3, now, 0.4, 0),
		scored("c", models.Tier3, now, 0.3, 0),
	}

	ranked := Rank(candidates, "", now, 2)
	if len(ranked) != 2 {
		t.Errorf("expected 2 results, got %d", len(ranked))
	}
}

func TestMerge_CombinesScores(t *testing.T) {
	now := time.Now()

	keyword := []*models.ScoredMemory{scored("mem_1", models.Tier2, now, 0.8, 0)}
	vector := []*models.ScoredMemory{
		scored("mem_1", models.Tier2, now, 0, 0.9),
		scored("mem_2", models.Tier2, now, 0, 0.7),
	}

	merged := Merge(keyword, vector)

	if len(merged) != 2 {
		t.Fatalf("expected 2 merged candidates, got %d", len(merged))
	}
	if merged[0].Keyword != 0.8 || merged[0].Cosine != 0.9 {
		t.Errorf("expected fused scores, got keyword=%f cosine=%f", merged[0].Keyword, merged[0].Cosine)
	}
}

func TestRelevance_Fusion(t *testing.T) {
	now := time.Now()

	both := scored("both", models.Tier2, now, 0.5, 1.0)
	if got := both.Relevance(); got != 0.4*0.5+0.6*1.0 {
		t.Errorf("unexpected fused relevance: %f", got)
	}

	keywordOnly := scored("kw", models.Tier2, now, 0.5, 0)
	if got := keywordOnly.Relevance(); got != 0.5 {
		t.Errorf("unexpected keyword-only relevance: %f", got)
	}

	phrased := scored("ph", models.Tier2, now, 0.5, 0)
	phrased.PhraseHit = true
	if got := phrased.Relevance(); got != 1.0 {
		t.Errorf("expected 2x phrase boost, got %f", got)
	}
}
