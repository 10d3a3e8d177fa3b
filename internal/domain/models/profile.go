package models

import "time"

// Expertise levels inferred from TIER1/TIER2 memories.
const (
	ExpertiseBeginner     = "beginner"
	ExpertiseIntermediate = "intermediate"
	ExpertiseExpert       = "expert"
)

// Communication style preferences.
const (
	StyleConcise  = "concise"
	StyleBalanced = "balanced"
	StyleDetailed = "detailed"
)

// UserProfile is derived, never authored: it is recomputed from the user's
// TIER1/TIER2 memories and cached on the bus with a short TTL. Any TIER1 or
// TIER2 write for the user invalidates the cached copy.
type UserProfile struct {
	UserID    string    `json:"user_id" msgpack:"user_id"`
	Stack     []string  `json:"stack,omitempty" msgpack:"stack"`
	Domains   []string  `json:"domains,omitempty" msgpack:"domains"`
	Expertise string    `json:"expertise" msgpack:"expertise"`
	Style     string    `json:"style" msgpack:"style"`
	UpdatedAt time.Time `json:"updated_at" msgpack:"updated_at"`
}

// IsEmpty reports whether derivation found no signal at all.
func (p *UserProfile) IsEmpty() bool {
	return len(p.Stack) == 0 && len(p.Domains) == 0
}

// ThreadSummary is a short free-text summary of one thread, regenerated
// lazily once enough new messages accumulate.
type ThreadSummary struct {
	ThreadID  string    `json:"thread_id"`
	UserID    string    `json:"user_id"`
	Summary   string    `json:"summary"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SummaryMaxLen caps summary length in characters.
const SummaryMaxLen = 200
