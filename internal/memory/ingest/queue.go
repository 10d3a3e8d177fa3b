package ingest

import (
	"context"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"github.com/halcyon-ai/mnemo/internal/adapters/metrics"
	"github.com/halcyon-ai/mnemo/internal/adapters/retry"
	"github.com/halcyon-ai/mnemo/internal/domain"
	"github.com/halcyon-ai/mnemo/internal/domain/models"
)

// workQueue is the bounded ingest pool, sharded by user+thread so that one
// thread's events are always consumed by the same worker in arrival order.
// Cadence accounting depends on that ordering. New events are dropped when
// the shard is full: ingest is lossy by contract, the chat path never waits.
type workQueue struct {
	shards  []chan *models.IngestEvent
	wg      sync.WaitGroup
	process func(ctx context.Context, event *models.IngestEvent) error
}

func newWorkQueue(size, shards int, process func(ctx context.Context, event *models.IngestEvent) error) *workQueue {
	if shards < 1 {
		shards = 1
	}
	perShard := size / shards
	if perShard < 1 {
		perShard = 1
	}

	q := &workQueue{process: process}
	for i := 0; i < shards; i++ {
		q.shards = append(q.shards, make(chan *models.IngestEvent, perShard))
	}
	return q
}

// start launches one worker per shard.
func (q *workQueue) start(ctx context.Context) {
	for _, shard := range q.shards {
		q.wg.Add(1)
		go q.worker(ctx, shard)
	}
}

func (q *workQueue) worker(ctx context.Context, jobs <-chan *models.IngestEvent) {
	defer q.wg.Done()

	cfg := retry.BackoffConfig{
		InitialInterval: 250 * time.Millisecond,
		MaxInterval:     2 * time.Second,
		MaxRetries:      3,
		Multiplier:      2.0,
	}

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-jobs:
			if !ok {
				return
			}
			metrics.IngestQueueDepth.Set(float64(q.depth()))

			err := retry.WithBackoff(ctx, cfg, func() error {
				return q.process(ctx, event)
			})
			if err != nil {
				metrics.IngestDroppedTotal.Inc()
				slog.Warn("ingest event dropped after retries",
					"user_id", event.UserID,
					"thread_id", event.ThreadID,
					"error", err,
				)
			}
		}
	}
}

// enqueue never blocks. A full shard drops the event and reports it.
func (q *workQueue) enqueue(event *models.IngestEvent) error {
	shard := q.shards[q.shardFor(event.UserID, event.ThreadID)]
	select {
	case shard <- event:
		metrics.IngestQueueDepth.Set(float64(q.depth()))
		return nil
	default:
		metrics.IngestDroppedTotal.Inc()
		return domain.ErrQueueFull
	}
}

func (q *workQueue) shardFor(userID, threadID string) int {
	h := fnv.New32a()
	h.Write([]byte(userID))
	h.Write([]byte{0})
	h.Write([]byte(threadID))
	return int(h.Sum32() % uint32(len(q.shards)))
}

func (q *workQueue) depth() int {
	total := 0
	for _, shard := range q.shards {
		total += len(shard)
	}
	return total
}

func (q *workQueue) stop() {
	for _, shard := range q.shards {
		close(shard)
	}
	q.wg.Wait()
}
