package ingest

import (
	"sync"
	"time"

	"github.com/halcyon-ai/mnemo/internal/domain/models"
)

// CadenceTracker decides when a thread's unseen messages become an audit
// window. Any one trigger fires: message count, token estimate, or elapsed
// time with at least one unseen message.
type CadenceTracker struct {
	mu      sync.Mutex
	threads map[string]*threadWindow

	msgThreshold   int
	tokenThreshold int
	timeThreshold  time.Duration
}

type threadWindow struct {
	messages  []models.ChatMessage
	tokens    int
	lastAudit time.Time
}

func NewCadenceTracker(msgThreshold, tokenThreshold int, timeThreshold time.Duration) *CadenceTracker {
	return &CadenceTracker{
		threads:        make(map[string]*threadWindow),
		msgThreshold:   msgThreshold,
		tokenThreshold: tokenThreshold,
		timeThreshold:  timeThreshold,
	}
}

func (t *CadenceTracker) key(userID, threadID string) string {
	return userID + "\x00" + threadID
}

// Observe accumulates messages for the thread. When a trigger fires it
// returns the frozen window and resets the counters; otherwise it returns
// nil.
func (t *CadenceTracker) Observe(userID, threadID string, msgs []models.ChatMessage, now time.Time) []models.ChatMessage {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := t.key(userID, threadID)
	w, ok := t.threads[key]
	if !ok {
		w = &threadWindow{lastAudit: now}
		t.threads[key] = w
	}

	w.messages = append(w.messages, msgs...)
	w.tokens += models.EstimateMessageTokens(msgs)

	triggered := len(w.messages) >= t.msgThreshold ||
		w.tokens >= t.tokenThreshold ||
		(now.Sub(w.lastAudit) >= t.timeThreshold && len(w.messages) > 0)

	if !triggered {
		return nil
	}

	window := w.messages
	w.messages = nil
	w.tokens = 0
	w.lastAudit = now
	return window
}

// Flush drains the thread's pending window regardless of triggers.
func (t *CadenceTracker) Flush(userID, threadID string) []models.ChatMessage {
	t.mu.Lock()
	defer t.mu.Unlock()

	w, ok := t.threads[t.key(userID, threadID)]
	if !ok || len(w.messages) == 0 {
		return nil
	}
	window := w.messages
	w.messages = nil
	w.tokens = 0
	w.lastAudit = time.Now()
	return window
}
