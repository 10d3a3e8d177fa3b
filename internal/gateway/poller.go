package gateway

import (
	"context"
	"log/slog"
	"time"

	"github.com/halcyon-ai/mnemo/internal/adapters/redisbus"
	"github.com/halcyon-ai/mnemo/internal/domain/models"
	"github.com/halcyon-ai/mnemo/internal/ports"
	"github.com/vmihailenco/msgpack/v5"
)

// CapsulePoller watches the cache bus for a research capsule during the
// early window of a streaming turn. Strictly non-blocking: the provider
// stream is never awaited on it.
type CapsulePoller struct {
	bus      ports.Bus
	interval time.Duration
	window   time.Duration
}

func NewCapsulePoller(bus ports.Bus, intervalMs, windowMs int) *CapsulePoller {
	return &CapsulePoller{
		bus:      bus,
		interval: time.Duration(intervalMs) * time.Millisecond,
		window:   time.Duration(windowMs) * time.Millisecond,
	}
}

// Watch yields at most one capsule for the thread, then closes. The stop
// function ends polling early (the caller invokes it on the first model
// token). A nil bus yields nothing.
func (p *CapsulePoller) Watch(ctx context.Context, threadID string) (<-chan *models.ResearchCapsule, func()) {
	out := make(chan *models.ResearchCapsule, 1)
	if p == nil || p.bus == nil {
		close(out)
		return out, func() {}
	}

	ctx, cancel := context.WithTimeout(ctx, p.window)

	go func() {
		defer close(out)
		defer cancel()

		// Pub/sub short-circuits the polling cadence when available.
		var announce <-chan string
		if ch, stop, err := p.bus.Subscribe(ctx, redisbus.CapsuleChannel(threadID)); err == nil {
			defer stop()
			announce = ch
		}

		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case key := <-announce:
				if capsule := p.fetch(ctx, key); capsule != nil {
					out <- capsule
					return
				}
			case <-ticker.C:
				key, err := p.bus.Get(ctx, redisbus.CapsuleLatestKey(threadID))
				if err != nil {
					continue
				}
				if capsule := p.fetch(ctx, string(key)); capsule != nil {
					out <- capsule
					return
				}
			}
		}
	}()

	return out, cancel
}

func (p *CapsulePoller) fetch(ctx context.Context, key string) *models.ResearchCapsule {
	if key == "" {
		return nil
	}
	raw, err := p.bus.Get(ctx, key)
	if err != nil {
		return nil
	}
	var capsule models.ResearchCapsule
	if err := msgpack.Unmarshal(raw, &capsule); err != nil {
		slog.Debug("malformed capsule on bus", "key", key, "error", err)
		return nil
	}
	return &capsule
}
