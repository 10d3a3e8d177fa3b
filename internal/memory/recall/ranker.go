package recall

import (
	"sort"
	"time"

	"github.com/halcyon-ai/mnemo/internal/domain/models"
)

const recencyWindow = 24 * time.Hour

// Rank orders candidates by the composite comparator, promotes TIER1 rows to
// the head, dedups by id, and truncates to maxItems.
func Rank(candidates []*models.ScoredMemory, threadID string, now time.Time, maxItems int) []*models.ScoredMemory {
	deduped := dedupe(candidates)

	sort.SliceStable(deduped, func(a, b int) bool {
		return less(deduped[a], deduped[b], threadID, now)
	})

	promoted := promoteTier1(deduped)

	if maxItems > 0 && len(promoted) > maxItems {
		promoted = promoted[:maxItems]
	}
	return promoted
}

// less is the ordered tie-break chain: same-thread bias, 24h recency boost,
// updatedAt, relevance, tier, priority.
func less(a, b *models.ScoredMemory, threadID string, now time.Time) bool {
	if threadID != "" {
		aThread := a.Memory.InThread(threadID)
		bThread := b.Memory.InThread(threadID)
		if aThread != bThread {
			return aThread
		}
	}

	aRecent := now.Sub(a.Memory.UpdatedAt) < recencyWindow
	bRecent := now.Sub(b.Memory.UpdatedAt) < recencyWindow
	if aRecent != bRecent {
		return aRecent
	}

	if !a.Memory.UpdatedAt.Equal(b.Memory.UpdatedAt) {
		return a.Memory.UpdatedAt.After(b.Memory.UpdatedAt)
	}

	aRel, bRel := a.Relevance(), b.Relevance()
	if aRel != bRel {
		return aRel > bRel
	}

	if a.Memory.Tier.Rank() != b.Memory.Tier.Rank() {
		return a.Memory.Tier.Rank() > b.Memory.Tier.Rank()
	}

	return a.Memory.Priority > b.Memory.Priority
}

// promoteTier1 moves TIER1 rows to the head, preserving relative order
// within each group. Explicit saves must surface whenever relevant.
func promoteTier1(sorted []*models.ScoredMemory) []*models.ScoredMemory {
	head := make([]*models.ScoredMemory, 0, len(sorted))
	tail := make([]*models.ScoredMemory, 0, len(sorted))
	for _, sm := range sorted {
		if sm.Memory.Tier == models.Tier1 {
			head = append(head, sm)
		} else {
			tail = append(tail, sm)
		}
	}
	return append(head, tail...)
}

// dedupe collapses duplicates by memory id, preferring the TIER1 copy, then
// the higher-relevance copy.
func dedupe(candidates []*models.ScoredMemory) []*models.ScoredMemory {
	byID := make(map[string]*models.ScoredMemory, len(candidates))
	order := make([]string, 0, len(candidates))

	for _, sm := range candidates {
		existing, ok := byID[sm.Memory.ID]
		if !ok {
			byID[sm.Memory.ID] = sm
			order = append(order, sm.Memory.ID)
			continue
		}
		if better(sm, existing) {
			byID[sm.Memory.ID] = sm
		}
	}

	out := make([]*models.ScoredMemory, 0, len(order))
	for _, id := range order {
		out = append(out, byID[id])
	}
	return out
}

func better(a, b *models.ScoredMemory) bool {
	if (a.Memory.Tier == models.Tier1) != (b.Memory.Tier == models.Tier1) {
		return a.Memory.Tier == models.Tier1
	}
	return a.Relevance() > b.Relevance()
}

// Merge folds vector hits into the keyword candidate set so each memory
// carries both scores before fusion.
func Merge(keyword []*models.ScoredMemory, vector []*models.ScoredMemory) []*models.ScoredMemory {
	byID := make(map[string]*models.ScoredMemory, len(keyword))
	merged := make([]*models.ScoredMemory, 0, len(keyword)+len(vector))

	for _, sm := range keyword {
		byID[sm.Memory.ID] = sm
		merged = append(merged, sm)
	}

	for _, sm := range vector {
		if existing, ok := byID[sm.Memory.ID]; ok {
			existing.Cosine = sm.Cosine
			continue
		}
		merged = append(merged, sm)
	}

	return merged
}
