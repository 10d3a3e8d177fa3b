package gateway

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/halcyon-ai/mnemo/internal/domain/models"
	"github.com/halcyon-ai/mnemo/internal/ports"
)

const (
	correctorBudget    = 300 * time.Millisecond
	correctorMaxTokens = 120

	correctorPrompt = "Fix spelling and obvious typos in the user's query. " +
		"NEVER change numbers, dates, or years. NEVER add or remove meaning. " +
		"Reply with the corrected query only."
)

var yearPattern = regexp.MustCompile(`\b(19|20)\d{2}\b`)

// Corrector rewrites a query to fix typos before routing. Years and numbers
// are load-bearing: a correction that loses any four-digit year from the
// input is discarded and the original query is used.
type Corrector struct {
	llm   ports.LLMService
	model string
}

func NewCorrector(llm ports.LLMService, model string) *Corrector {
	return &Corrector{llm: llm, model: model}
}

// Correct returns the corrected query, or the input unchanged on any
// failure, timeout, or guard violation.
func (c *Corrector) Correct(ctx context.Context, query string) string {
	if c.llm == nil || strings.TrimSpace(query) == "" {
		return query
	}

	ctx, cancel := context.WithTimeout(ctx, correctorBudget)
	defer cancel()

	corrected, err := c.llm.Complete(ctx, ports.ChatRequest{
		Model: c.model,
		Messages: []models.ChatMessage{
			{Role: models.RoleSystem, Content: correctorPrompt},
			{Role: models.RoleUser, Content: query},
		},
		MaxTokens: correctorMaxTokens,
	})
	if err != nil {
		return query
	}

	corrected = strings.TrimSpace(corrected)
	if corrected == "" {
		return query
	}

	for _, year := range yearPattern.FindAllString(query, -1) {
		if !strings.Contains(corrected, year) {
			slog.Warn("query correction dropped a year, keeping original",
				"year", year)
			return query
		}
	}
	return corrected
}
