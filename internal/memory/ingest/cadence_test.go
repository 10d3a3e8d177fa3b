package ingest

import (
	"testing"
	"time"

	"github.com/halcyon-ai/mnemo/internal/domain/models"
)

func msgs(n int, content string) []models.ChatMessage {
	out := make([]models.ChatMessage, n)
	for i := range out {
		out[i] = models.ChatMessage{Role: models.RoleUser, Content: content}
	}
	return out
}

func TestCadence_MessageThreshold(t *testing.T) {
	tracker := NewCadenceTracker(6, 1500, 3*time.Minute)
	now := time.Now()

	if w := tracker.Observe("u", "t", msgs(5, "hello there friend"), now); w != nil {
		t.Fatal("expected no trigger at 5 messages")
	}
	w := tracker.Observe("u", "t", msgs(1, "hello there friend"), now)
	if len(w) != 6 {
		t.Fatalf("expected frozen window of 6, got %d", len(w))
	}

	// Counters reset after the freeze
	if w := tracker.Observe("u", "t", msgs(1, "more"), now); w != nil {
		t.Error("expected counters reset after trigger")
	}
}

func TestCadence_TokenThreshold(t *testing.T) {
	tracker := NewCadenceTracker(100, 1500, time.Hour)
	now := time.Now()

	// ~2000 estimated tokens in two messages
	big := string(make([]byte, 4000))
	if w := tracker.Observe("u", "t", []models.ChatMessage{{Content: big}}, now); w != nil {
		t.Fatal("expected no trigger below token threshold")
	}
	if w := tracker.Observe("u", "t", []models.ChatMessage{{Content: big}}, now); w == nil {
		t.Fatal("expected token threshold trigger")
	}
}

func TestCadence_TimeThreshold(t *testing.T) {
	tracker := NewCadenceTracker(100, 100000, 3*time.Minute)
	start := time.Now()

	if w := tracker.Observe("u", "t", msgs(1, "hi"), start); w != nil {
		t.Fatal("expected no trigger at window start")
	}
	if w := tracker.Observe("u", "t", nil, start.Add(2*time.Minute)); w != nil {
		t.Fatal("expected no trigger before 3 minutes")
	}
	if w := tracker.Observe("u", "t", nil, start.Add(4*time.Minute)); w == nil {
		t.Fatal("expected time threshold trigger")
	}
}

func TestCadence_TimeThresholdNeedsMessages(t *testing.T) {
	tracker := NewCadenceTracker(100, 100000, 3*time.Minute)
	start := time.Now()

	tracker.Observe("u", "t", nil, start)
	if w := tracker.Observe("u", "t", nil, start.Add(10*time.Minute)); w != nil {
		t.Error("expected no trigger with zero unseen messages")
	}
}

func TestCadence_ThreadsIsolated(t *testing.T) {
	tracker := NewCadenceTracker(6, 1500, time.Hour)
	now := time.Now()

	tracker.Observe("u", "t1", msgs(5, "hello there friend"), now)
	if w := tracker.Observe("u", "t2", msgs(1, "hello there friend"), now); w != nil {
		t.Error("threads should not share counters")
	}
}
