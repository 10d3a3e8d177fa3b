package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/halcyon-ai/mnemo/internal/config"
	"github.com/halcyon-ai/mnemo/internal/domain/models"
	"github.com/halcyon-ai/mnemo/internal/ports"
)

const (
	defaultBasePrompt = "You are Mnemo, a helpful assistant with long-term memory of this user. " +
		"Use the provided context when it is relevant and ignore it when it is not."

	correctionBlock = "CRITICAL: the user is correcting you. Prioritize the current message " +
		"over any prior context or stored facts that contradict it."

	summaryFetchBudget = 100 * time.Millisecond
	maxCrossSummaries  = 2

	// Response-length hints by intent.
	mathMaxTokens     = 10
	followupMaxTokens = 200
)

// Prompt is the composed provider input plus routing metadata.
type Prompt struct {
	Messages []models.ChatMessage
	// MaxTokens is the output cap; 0 means provider default.
	MaxTokens       int
	MaxTokensSource string
	// Missing lists optional inputs that failed or timed out this turn.
	Missing       []string
	TokenEstimate int
}

// Assembler builds the bounded, ordered prompt for one turn. Every fetch is
// deadline-bounded and optional: a failed stage is logged, reported in
// Missing, and skipped.
type Assembler struct {
	memory     ports.MemoryClient
	cfg        config.GatewayConfig
	basePrompt string
}

func NewAssembler(memory ports.MemoryClient, cfg config.GatewayConfig) *Assembler {
	return &Assembler{memory: memory, cfg: cfg, basePrompt: defaultBasePrompt}
}

// Assemble runs the per-turn pipeline: trim, concurrent fetches, compose.
// System blocks stay separate in the order base, profile, correction,
// memories, summaries, then the conversation turns.
func (a *Assembler) Assemble(ctx context.Context, userID, threadID string, turns []models.ChatMessage, analysis Analysis) *Prompt {
	turns = a.trim(turns)

	query := ""
	for i := len(turns) - 1; i >= 0; i-- {
		if turns[i].Role == models.RoleUser {
			query = turns[i].Content
			break
		}
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		missing   []string
		memories  []*models.ScoredMemory
		summaries []*models.ThreadSummary
		profile   *models.UserProfile
	)
	skip := func(source string, err error) {
		slog.Info("context stage skipped", "source", source, "error", err)
		mu.Lock()
		missing = append(missing, source)
		mu.Unlock()
	}

	wg.Add(3)
	go func() {
		defer wg.Done()
		deadline := time.Duration(a.cfg.RecallDeadlineMs) * time.Millisecond
		recallCtx, cancel := context.WithTimeout(ctx, deadline+20*time.Millisecond)
		defer cancel()
		result, err := a.memory.Recall(recallCtx, ports.RecallRequest{
			UserID:   userID,
			ThreadID: threadID,
			Query:    query,
			Deadline: deadline,
		})
		if err != nil {
			skip("memories", err)
			return
		}
		memories = result
	}()
	go func() {
		defer wg.Done()
		sumCtx, cancel := context.WithTimeout(ctx, summaryFetchBudget)
		defer cancel()
		result, err := a.memory.RecentSummaries(sumCtx, userID, threadID, maxCrossSummaries)
		if err != nil {
			skip("summaries", err)
			return
		}
		summaries = result
	}()
	go func() {
		defer wg.Done()
		deadline := time.Duration(a.cfg.ProfileDeadlineMs) * time.Millisecond
		profCtx, cancel := context.WithTimeout(ctx, deadline)
		defer cancel()
		result, err := a.memory.Profile(profCtx, userID, deadline)
		if err != nil {
			skip("profile", err)
			return
		}
		profile = result
	}()
	wg.Wait()

	prompt := &Prompt{Missing: missing}
	prompt.MaxTokens, prompt.MaxTokensSource = lengthHint(analysis)

	add := func(content string) {
		prompt.Messages = append(prompt.Messages, models.ChatMessage{
			Role:    models.RoleSystem,
			Content: content,
		})
	}

	add(a.basePrompt)
	if block := profileBlock(profile); block != "" {
		add(block)
	}
	if analysis.CorrectionCue {
		add(correctionBlock)
	}
	if block := memoryBlock(memories); block != "" {
		add(block)
	}
	if block := summaryBlock(summaries); block != "" {
		add(block)
	}
	prompt.Messages = append(prompt.Messages, turns...)

	prompt.TokenEstimate = models.EstimateMessageTokens(prompt.Messages)
	slog.Info("context assembled",
		"user_id", userID,
		"thread_id", threadID,
		"intent", analysis.Intent,
		"turns", len(turns),
		"memories", len(memories),
		"summaries", len(summaries),
		"has_profile", profile != nil && !profile.IsEmpty(),
		"correction", analysis.CorrectionCue,
		"missing", missing,
		"token_estimate", prompt.TokenEstimate,
		"max_tokens", prompt.MaxTokens,
		"max_tokens_source", prompt.MaxTokensSource,
	)
	return prompt
}

// trim keeps the last K turns and then enforces the global input-token cap,
// dropping oldest messages first.
func (a *Assembler) trim(turns []models.ChatMessage) []models.ChatMessage {
	keep := a.cfg.KeepLastTurns * 2
	if keep > 0 && len(turns) > keep {
		turns = turns[len(turns)-keep:]
	}
	for len(turns) > 1 && models.EstimateMessageTokens(turns) > a.cfg.MaxInputTokens {
		turns = turns[1:]
	}
	return turns
}

func lengthHint(analysis Analysis) (int, string) {
	switch analysis.Intent {
	case IntentSimpleMath:
		return mathMaxTokens, "intent:simple_math"
	case IntentFollowup:
		return followupMaxTokens, "intent:conversational_followup"
	default:
		return 0, "provider_default"
	}
}

// memoryBlock renders recalled memories as neutral narrative lines, one per
// memory.
func memoryBlock(memories []*models.ScoredMemory) string {
	if len(memories) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("Known facts about this user:")
	for _, m := range memories {
		sb.WriteString("\n- " + m.Memory.Content)
	}
	return sb.String()
}

func summaryBlock(summaries []*models.ThreadSummary) string {
	if len(summaries) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("The user's other recent conversations:")
	for _, s := range summaries {
		sb.WriteString("\n- " + s.Summary)
	}
	return sb.String()
}

func profileBlock(profile *models.UserProfile) string {
	if profile == nil || (profile.IsEmpty() && profile.Expertise == "" && profile.Style == "") {
		return ""
	}
	var parts []string
	if len(profile.Stack) > 0 {
		parts = append(parts, "works with "+strings.Join(profile.Stack, ", "))
	}
	if len(profile.Domains) > 0 {
		parts = append(parts, "interested in "+strings.Join(profile.Domains, ", "))
	}
	if profile.Expertise != "" {
		parts = append(parts, profile.Expertise+" level")
	}
	if profile.Style != "" {
		parts = append(parts, "prefers "+profile.Style+" answers")
	}
	if len(parts) == 0 {
		return ""
	}
	return fmt.Sprintf("User preferences: %s.", strings.Join(parts, "; "))
}
