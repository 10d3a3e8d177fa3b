package redisbus

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Key builders. The schemes are part of the wire contract between the
// gateway, the memory service and the research sidecar, so they live in one
// place.

// CapsuleKey addresses a published research capsule.
func CapsuleKey(threadID, batchID string) string {
	return "capsule:" + threadID + ":" + batchID
}

// CapsuleLatestKey points at the most recently published capsule key for a
// thread. Pollers read this pointer because they do not know batch ids.
func CapsuleLatestKey(threadID string) string {
	return "capsule-latest:" + threadID
}

// CapsuleChannel is the per-thread pub/sub channel announcing new capsule
// keys. The payload is the CapsuleKey.
func CapsuleChannel(threadID string) string {
	return "capsule-ready:" + threadID
}

// ProfileKey addresses the cached user profile.
func ProfileKey(userID string) string {
	return "profile:" + userID
}

// ResearchCacheKey addresses the sidecar's topic-level result cache. Topic
// and query are hashed so arbitrary user text cannot corrupt the key space.
func ResearchCacheKey(topic, ttlClass, recency, query string) string {
	return "CAPS:v2:" + shortHash(topic) + ":" + ttlClass + ":" + recency + ":" + shortHash(query)
}

// NegativeCacheKey marks a topic that recently produced no usable results.
func NegativeCacheKey(topic, ttlClass, recency, query string) string {
	return "CAPS:neg:" + shortHash(topic) + ":" + ttlClass + ":" + recency + ":" + shortHash(query)
}

// RateLimitKey addresses a per-user counter for one operation.
func RateLimitKey(userID, op string) string {
	return "ratelimit:" + userID + ":" + op
}

func shortHash(s string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(s))))
	return hex.EncodeToString(sum[:8])
}
