package research

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/halcyon-ai/mnemo/internal/adapters/metrics"
	"github.com/halcyon-ai/mnemo/internal/adapters/redisbus"
	"github.com/halcyon-ai/mnemo/internal/adapters/retry"
	"github.com/halcyon-ai/mnemo/internal/domain"
	"github.com/halcyon-ai/mnemo/internal/domain/models"
	"github.com/halcyon-ai/mnemo/internal/ports"
	"github.com/vmihailenco/msgpack/v5"
)

const (
	jobBudget        = 4 * time.Second
	negativeCacheTTL = 5 * time.Minute
	queueSize        = 64
	fetchLimit       = 10

	// Per-user research jobs per hour
	userRateLimit = 30
	rateWindow    = time.Hour
)

// Sidecar consumes research jobs and publishes capsules onto the cache bus.
// Every failure mode ends in "no capsule": the bus is a hint, the turn
// proceeds without it.
type Sidecar struct {
	bus      ports.Bus
	backend  ports.SearchBackend
	profiles ports.ProfileService

	jobs chan *models.ResearchJob
	wg   sync.WaitGroup

	mu      sync.Mutex
	stopped bool
}

func NewSidecar(bus ports.Bus, backend ports.SearchBackend, profiles ports.ProfileService) *Sidecar {
	return &Sidecar{
		bus:      bus,
		backend:  backend,
		profiles: profiles,
		jobs:     make(chan *models.ResearchJob, queueSize),
	}
}

// Enqueue never blocks; a full or stopped queue drops the job. Producers
// (the audit pipeline) may still be draining when shutdown begins, so this
// must stay safe to call after Stop.
func (s *Sidecar) Enqueue(job *models.ResearchJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return domain.ErrQueueFull
	}
	select {
	case s.jobs <- job:
		return nil
	default:
		return domain.ErrQueueFull
	}
}

func (s *Sidecar) Start(ctx context.Context, workers int) {
	for i := 0; i < workers; i++ {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case job, ok := <-s.jobs:
					if !ok {
						return
					}
					s.run(ctx, job)
				}
			}
		}()
	}
}

func (s *Sidecar) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	close(s.jobs)
	s.mu.Unlock()
	s.wg.Wait()
}

// run executes one job under the total budget. An overrun drops the job; no
// partial capsule is ever published.
func (s *Sidecar) run(ctx context.Context, job *models.ResearchJob) {
	ctx, cancel := context.WithTimeout(ctx, jobBudget)
	defer cancel()

	if s.bus == nil || s.backend == nil {
		return
	}

	if !s.admit(ctx, job.UserID) {
		slog.Debug("research job rate-limited", "user_id", job.UserID, "topic", job.Topic)
		return
	}

	query := job.Topic
	recency := job.Recency
	if recency == "" {
		recency = FreshnessHint(query)
	}

	cacheKey := redisbus.ResearchCacheKey(job.Topic, string(job.TTLClass), string(recency), query)
	negKey := redisbus.NegativeCacheKey(job.Topic, string(job.TTLClass), string(recency), query)

	// Cache probe: a hit republishes under the new batch id and exits
	if raw, err := s.bus.Get(ctx, cacheKey); err == nil {
		metrics.ResearchCacheHits.WithLabelValues("hit").Inc()
		var capsule models.ResearchCapsule
		if err := msgpack.Unmarshal(raw, &capsule); err == nil {
			capsule.BatchID = job.BatchID
			s.publish(ctx, job, &capsule)
		}
		return
	}
	if _, err := s.bus.Get(ctx, negKey); err == nil {
		metrics.ResearchCacheHits.WithLabelValues("negative").Inc()
		return
	}
	metrics.ResearchCacheHits.WithLabelValues("miss").Inc()

	var results []ports.SearchResult
	err := retry.WithBackoff(ctx, retry.SidecarConfig(), func() error {
		var err error
		results, err = s.backend.Search(ctx, query, recency, fetchLimit)
		return err
	})
	if err != nil || len(results) == 0 {
		// Remember the empty outcome briefly so stable topics do not
		// hammer the backend
		if err := s.bus.Set(ctx, negKey, []byte("1"), negativeCacheTTL); err != nil {
			metrics.BusErrorsTotal.Inc()
		}
		if err != nil {
			slog.Debug("research fetch failed", "topic", job.Topic, "error", err)
		}
		return
	}

	var userProfile *models.UserProfile
	if s.profiles != nil {
		profileCtx, profileCancel := context.WithTimeout(ctx, 50*time.Millisecond)
		userProfile, _ = s.profiles.Get(profileCtx, job.UserID)
		profileCancel()
	}

	ranked := Rerank(results, job.Topic, userProfile, time.Now())
	capsule := Compose(job.BatchID, job.Topic, job.TTLClass, recency, ranked)
	if capsule == nil {
		if err := s.bus.Set(ctx, negKey, []byte("1"), negativeCacheTTL); err != nil {
			metrics.BusErrorsTotal.Inc()
		}
		return
	}

	if ctx.Err() != nil {
		// Budget overran during compose; drop without publishing
		return
	}

	raw, err := msgpack.Marshal(capsule)
	if err != nil {
		return
	}
	if err := s.bus.Set(ctx, cacheKey, raw, job.TTLClass.TTL()); err != nil {
		metrics.BusErrorsTotal.Inc()
	}

	s.publish(ctx, job, capsule)
}

// publish writes the capsule under its thread/batch key with SetNX so a
// republished job cannot clobber an existing capsule, updates the per-thread
// latest pointer, then announces the key on pub/sub so pollers can
// short-circuit.
func (s *Sidecar) publish(ctx context.Context, job *models.ResearchJob, capsule *models.ResearchCapsule) {
	raw, err := msgpack.Marshal(capsule)
	if err != nil {
		return
	}

	key := redisbus.CapsuleKey(job.ThreadID, job.BatchID)
	set, err := s.bus.SetNX(ctx, key, raw, capsule.TTLClass.TTL())
	if err != nil {
		metrics.BusErrorsTotal.Inc()
		return
	}
	if !set {
		return
	}

	metrics.CapsulesPublished.WithLabelValues(string(capsule.TTLClass)).Inc()
	if err := s.bus.Set(ctx, redisbus.CapsuleLatestKey(job.ThreadID), []byte(key), capsule.TTLClass.TTL()); err != nil {
		metrics.BusErrorsTotal.Inc()
	}
	if err := s.bus.Publish(ctx, redisbus.CapsuleChannel(job.ThreadID), key); err != nil {
		metrics.BusErrorsTotal.Inc()
	}
}

// admit enforces the per-user rate limit, failing open when the bus counter
// is unavailable.
func (s *Sidecar) admit(ctx context.Context, userID string) bool {
	count, err := s.bus.IncrWithTTL(ctx, redisbus.RateLimitKey(userID, "research"), rateWindow)
	if err != nil {
		if !errors.Is(err, context.DeadlineExceeded) {
			metrics.BusErrorsTotal.Inc()
		}
		return true
	}
	return count <= userRateLimit
}
