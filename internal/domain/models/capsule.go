package models

import (
	"time"
)

// TTLClass buckets research topics by how fast they go stale.
type TTLClass string

const (
	TTLNews     TTLClass = "news"
	TTLPricing  TTLClass = "pricing"
	TTLReleases TTLClass = "releases"
	TTLDocs     TTLClass = "docs"
	TTLGeneral  TTLClass = "general"
)

// TTL returns the cache lifetime for capsules of this class.
func (c TTLClass) TTL() time.Duration {
	switch c {
	case TTLNews:
		return 15 * time.Minute
	case TTLPricing:
		return 6 * time.Hour
	case TTLReleases:
		return 12 * time.Hour
	case TTLDocs:
		return 7 * 24 * time.Hour
	default:
		return 24 * time.Hour
	}
}

// RecencyHint constrains how fresh fetched results must be.
type RecencyHint string

const (
	RecencyDay   RecencyHint = "day"
	RecencyWeek  RecencyHint = "week"
	RecencyMonth RecencyHint = "month"
)

// Capsule limits. Sources deliberately carry no URLs or snippets.
const (
	CapsuleMaxClaims   = 4
	CapsuleMaxSources  = 4
	CapsuleMaxClaimLen = 160
	CapsuleMaxBytes    = 4096
)

// CapsuleSource attributes a claim to a host on a date, nothing more.
type CapsuleSource struct {
	Host string `json:"host" msgpack:"host"`
	Date string `json:"date" msgpack:"date"`
}

// ResearchCapsule is the small TTL'd bundle the research sidecar publishes
// onto the cache bus for early-window injection into a streaming turn.
type ResearchCapsule struct {
	BatchID    string          `json:"batch_id" msgpack:"batch_id"`
	Topic      string          `json:"topic" msgpack:"topic"`
	TTLClass   TTLClass        `json:"ttl_class" msgpack:"ttl_class"`
	Recency    RecencyHint     `json:"recency" msgpack:"recency"`
	Claims     []string        `json:"claims" msgpack:"claims"`
	Sources    []CapsuleSource `json:"sources" msgpack:"sources"`
	Confidence string          `json:"confidence" msgpack:"confidence"` // "high" or "med"
	CreatedAt  time.Time       `json:"created_at" msgpack:"created_at"`
}

// ResearchJob is one unit of sidecar work, enqueued by ingest after the
// topic-stability check. Never created on the chat hot path.
type ResearchJob struct {
	UserID   string
	ThreadID string
	Topic    string
	TTLClass TTLClass
	Recency  RecencyHint
	BatchID  string
}
