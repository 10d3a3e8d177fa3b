package models

import (
	"time"
)

// Tier is the priority class of a memory.
type Tier string

const (
	// Tier1 is a user-directed explicit save ("remember this ...").
	// Always eligible for recall.
	Tier1 Tier = "TIER1"
	// Tier2 is a fact observed in at least two distinct threads.
	Tier2 Tier = "TIER2"
	// Tier3 is a single-thread observation, subject to decay and pruning.
	Tier3 Tier = "TIER3"
)

// Rank orders tiers for comparison: TIER1 > TIER2 > TIER3.
func (t Tier) Rank() int {
	switch t {
	case Tier1:
		return 3
	case Tier2:
		return 2
	case Tier3:
		return 1
	default:
		return 0
	}
}

func (t Tier) Valid() bool {
	return t == Tier1 || t == Tier2 || t == Tier3
}

// Minimum priorities enforced per tier on creation and promotion.
const (
	Tier1MinPriority = 0.9
	Tier2MinPriority = 0.6
)

// Memory is one long-lived user fact. Content is stored post-redaction and
// never un-redacted on retrieval. One row per logical memory: superseding
// updates the row in place, tracked by Repeats and ThreadSet.
type Memory struct {
	ID           string            `json:"id"`
	UserID       string            `json:"user_id"`
	ThreadID     string            `json:"thread_id,omitempty"`
	Content      string            `json:"content"`
	Entities     []string          `json:"entities,omitempty"`
	Confidence   float64           `json:"confidence"`
	Priority     float64           `json:"priority"`
	Tier         Tier              `json:"tier"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
	LastSeenAt   time.Time         `json:"last_seen_at"`
	Repeats      int               `json:"repeats"`
	ThreadSet    []string          `json:"thread_set,omitempty"`
	RedactionMap map[string]string `json:"redaction_map,omitempty"`
	DeletedAt    *time.Time        `json:"deleted_at,omitempty"`
}

func NewMemory(id, userID, threadID, content string) *Memory {
	now := time.Now()
	m := &Memory{
		ID:         id,
		UserID:     userID,
		ThreadID:   threadID,
		Content:    content,
		Confidence: 0.5,
		Priority:   0.5,
		Tier:       Tier3,
		CreatedAt:  now,
		UpdatedAt:  now,
		LastSeenAt: now,
		Repeats:    1,
	}
	if threadID != "" {
		m.ThreadSet = []string{threadID}
	}
	return m
}

// SetTier assigns a tier and raises priority to the tier floor. Tiers are
// never downgraded: assigning a lower tier than the current one is a no-op.
func (m *Memory) SetTier(t Tier) {
	if t.Rank() <= m.Tier.Rank() {
		return
	}
	m.Tier = t
	switch t {
	case Tier1:
		if m.Priority < Tier1MinPriority {
			m.Priority = Tier1MinPriority
		}
	case Tier2:
		if m.Priority < Tier2MinPriority {
			m.Priority = Tier2MinPriority
		}
	}
	m.UpdatedAt = time.Now()
}

// Supersede replaces the content of this memory with a near-duplicate
// observation. Priority and confidence are monotonically non-decreasing.
func (m *Memory) Supersede(content, threadID string, confidence float64) {
	now := time.Now()
	m.Content = content
	m.UpdatedAt = now
	m.LastSeenAt = now
	m.Repeats++
	if confidence > m.Confidence {
		m.Confidence = confidence
	}
	m.AddThread(threadID)
	// Repetition across threads promotes TIER3 observations.
	if m.Tier == Tier3 && len(m.ThreadSet) >= 2 {
		m.SetTier(Tier2)
	}
}

// AddThread records the thread the fact was seen in, keeping ThreadSet a set.
func (m *Memory) AddThread(threadID string) {
	if threadID == "" {
		return
	}
	for _, t := range m.ThreadSet {
		if t == threadID {
			return
		}
	}
	m.ThreadSet = append(m.ThreadSet, threadID)
}

func (m *Memory) InThread(threadID string) bool {
	for _, t := range m.ThreadSet {
		if t == threadID {
			return true
		}
	}
	return false
}

// ScoredMemory is a recall candidate carrying search-stage scores.
type ScoredMemory struct {
	Memory *Memory `json:"memory"`
	// Keyword is the normalized BM25/FTS score in [0,1], 0 if absent.
	Keyword float64 `json:"keyword,omitempty"`
	// Cosine is the semantic similarity in [0,1], 0 if absent.
	Cosine float64 `json:"cosine,omitempty"`
	// PhraseHit marks a quoted-phrase match (scores 2x in fusion).
	PhraseHit bool `json:"phrase_hit,omitempty"`
}

// Relevance fuses keyword and cosine scores: 0.4*keyword + 0.6*cosine when
// both are present, otherwise whichever is present. Phrase hits double.
func (s *ScoredMemory) Relevance() float64 {
	var rel float64
	switch {
	case s.Keyword > 0 && s.Cosine > 0:
		rel = 0.4*s.Keyword + 0.6*s.Cosine
	case s.Cosine > 0:
		rel = s.Cosine
	default:
		rel = s.Keyword
	}
	if s.PhraseHit {
		rel *= 2
	}
	return rel
}
