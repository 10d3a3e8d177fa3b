package research

import (
	"errors"
	"testing"

	"github.com/halcyon-ai/mnemo/internal/domain"
	"github.com/halcyon-ai/mnemo/internal/domain/models"
)

func TestSidecar_EnqueueAfterStopDropsJob(t *testing.T) {
	s := NewSidecar(nil, nil, nil)
	s.Stop()

	// Audits may still be draining when shutdown begins; a late enqueue
	// must drop the job, never panic.
	err := s.Enqueue(&models.ResearchJob{UserID: "u1", Topic: "favorite color"})
	if !errors.Is(err, domain.ErrQueueFull) {
		t.Errorf("expected ErrQueueFull after Stop, got %v", err)
	}
}

func TestSidecar_StopIsIdempotent(t *testing.T) {
	s := NewSidecar(nil, nil, nil)
	s.Stop()
	s.Stop()
}

func TestSidecar_EnqueueFullQueue(t *testing.T) {
	s := NewSidecar(nil, nil, nil)

	var err error
	for i := 0; i <= queueSize; i++ {
		err = s.Enqueue(&models.ResearchJob{UserID: "u1", Topic: "t"})
	}
	if !errors.Is(err, domain.ErrQueueFull) {
		t.Errorf("expected ErrQueueFull on overflow, got %v", err)
	}
}
