// Package summary maintains lazy per-thread summaries. A summary is only
// regenerated when enough new messages have accumulated since the last one;
// nothing here runs on the chat hot path.
package summary

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/halcyon-ai/mnemo/internal/domain"
	"github.com/halcyon-ai/mnemo/internal/domain/models"
	"github.com/halcyon-ai/mnemo/internal/ports"
)

const (
	// staleAfter messages since the last summary force a refresh.
	staleAfter    = 6
	historyLimit  = 20
	summaryPrompt = "Summarize this conversation in one sentence of at most 200 characters. " +
		"State only the subject matter, no preamble."
)

type Service struct {
	summaries ports.SummaryRepository
	history   ports.ThreadHistory
	llm       ports.LLMService
	model     string
}

func NewService(summaries ports.SummaryRepository, history ports.ThreadHistory, llm ports.LLMService, model string) *Service {
	return &Service{summaries: summaries, history: history, llm: llm, model: model}
}

// Refresh returns the current summary, regenerating it first if stale or
// missing. A provider failure returns the stale copy when one exists.
func (s *Service) Refresh(ctx context.Context, userID, threadID string) (*models.ThreadSummary, error) {
	existing, err := s.summaries.Get(ctx, userID, threadID)
	if err != nil && !errors.Is(err, domain.ErrSummaryNotFound) {
		return nil, err
	}

	if existing != nil {
		newer, err := s.history.CountSince(ctx, userID, threadID, existing.UpdatedAt)
		if err != nil {
			return existing, nil
		}
		if newer < staleAfter {
			return existing, nil
		}
	}

	regenerated, err := s.regenerate(ctx, userID, threadID)
	if err != nil {
		if existing != nil {
			return existing, nil
		}
		return nil, err
	}
	return regenerated, nil
}

func (s *Service) ListRecent(ctx context.Context, userID, excludeThreadID string, limit int) ([]*models.ThreadSummary, error) {
	return s.summaries.ListRecent(ctx, userID, excludeThreadID, limit)
}

func (s *Service) regenerate(ctx context.Context, userID, threadID string) (*models.ThreadSummary, error) {
	history, err := s.history.ListByThread(ctx, userID, threadID, historyLimit)
	if err != nil {
		return nil, err
	}
	if len(history) == 0 {
		return nil, domain.ErrSummaryNotFound
	}

	var transcript strings.Builder
	for _, msg := range history {
		fmt.Fprintf(&transcript, "%s: %s\n", msg.Role, msg.Content)
	}

	text, err := s.llm.Complete(ctx, ports.ChatRequest{
		Model: s.model,
		Messages: []models.ChatMessage{
			{Role: models.RoleSystem, Content: summaryPrompt},
			{Role: models.RoleUser, Content: transcript.String()},
		},
		MaxTokens: 80,
	})
	if err != nil {
		return nil, err
	}

	text = models.Clip(strings.TrimSpace(text), models.SummaryMaxLen)

	summary := &models.ThreadSummary{
		ThreadID:  threadID,
		UserID:    userID,
		Summary:   text,
		UpdatedAt: time.Now(),
	}
	if err := s.summaries.Upsert(ctx, summary); err != nil {
		return nil, err
	}
	return summary, nil
}
