package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/halcyon-ai/mnemo/internal/domain"
	"github.com/halcyon-ai/mnemo/internal/domain/models"
)

func TestWorkQueue_SameThreadProcessedInOrder(t *testing.T) {
	var mu sync.Mutex
	var got []string

	q := newWorkQueue(256, 4, func(_ context.Context, event *models.IngestEvent) error {
		mu.Lock()
		got = append(got, event.Messages[0].Content)
		mu.Unlock()
		return nil
	})

	// All events for one thread land in one shard, so starting the workers
	// after enqueueing must replay them in arrival order.
	var want []string
	for i := 0; i < 20; i++ {
		content := fmt.Sprintf("message %d", i)
		want = append(want, content)
		err := q.enqueue(&models.IngestEvent{
			UserID:   "u1",
			ThreadID: "t1",
			Messages: []models.ChatMessage{{Role: models.RoleUser, Content: content}},
		})
		if err != nil {
			t.Fatalf("enqueue %d: %v", i, err)
		}
	}

	q.start(context.Background())
	q.stop()

	if len(got) != len(want) {
		t.Fatalf("processed %d events, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("event %d out of order: got %q, want %q", i, got[i], want[i])
		}
	}
}

func TestWorkQueue_ShardIsStablePerThread(t *testing.T) {
	q := newWorkQueue(16, 4, nil)

	first := q.shardFor("u1", "t1")
	for i := 0; i < 10; i++ {
		if got := q.shardFor("u1", "t1"); got != first {
			t.Fatalf("shard moved: got %d, want %d", got, first)
		}
	}
	if first < 0 || first >= 4 {
		t.Errorf("shard index out of range: %d", first)
	}
}

func TestWorkQueue_FullShardDropsEvent(t *testing.T) {
	q := newWorkQueue(4, 4, nil) // one slot per shard

	event := &models.IngestEvent{UserID: "u1", ThreadID: "t1"}
	if err := q.enqueue(event); err != nil {
		t.Fatalf("first enqueue: %v", err)
	}
	if err := q.enqueue(event); !errors.Is(err, domain.ErrQueueFull) {
		t.Errorf("expected ErrQueueFull, got %v", err)
	}
}
