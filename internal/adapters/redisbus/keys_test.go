package redisbus

import (
	"strings"
	"testing"
)

func TestCapsuleKey(t *testing.T) {
	key := CapsuleKey("thread_1", "batch_abc")
	if key != "capsule:thread_1:batch_abc" {
		t.Errorf("unexpected key: %s", key)
	}
}

func TestResearchCacheKey_NormalizesInput(t *testing.T) {
	a := ResearchCacheKey("Rust 1.80 Release", "releases", "week", "what changed in rust 1.80")
	b := ResearchCacheKey("  rust 1.80 release ", "releases", "week", "What changed in Rust 1.80")
	if a != b {
		t.Errorf("expected case/space-insensitive keys, got %s vs %s", a, b)
	}
	if !strings.HasPrefix(a, "CAPS:v2:") {
		t.Errorf("unexpected prefix: %s", a)
	}
}

func TestResearchCacheKey_DistinctTopics(t *testing.T) {
	a := ResearchCacheKey("go generics", "docs", "month", "q")
	b := ResearchCacheKey("rust traits", "docs", "month", "q")
	if a == b {
		t.Error("different topics produced the same key")
	}
}

func TestRateLimitKey(t *testing.T) {
	if RateLimitKey("user_1", "research") != "ratelimit:user_1:research" {
		t.Error("unexpected rate limit key")
	}
}
