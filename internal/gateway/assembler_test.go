package gateway

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/halcyon-ai/mnemo/internal/config"
	"github.com/halcyon-ai/mnemo/internal/domain"
	"github.com/halcyon-ai/mnemo/internal/domain/models"
	"github.com/halcyon-ai/mnemo/internal/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubMemory struct {
	memories   []*models.ScoredMemory
	recallErr  error
	summaries  []*models.ThreadSummary
	summaryErr error
	profile    *models.UserProfile
	profileErr error

	saved     *ports.ExplicitSave
	saveErr   error
	ingested  *models.IngestEvent
	ingestCh  chan *models.IngestEvent
	webAnswer *ports.WebSearchAnswer
	webErr    error
}

func (s *stubMemory) Recall(ctx context.Context, req ports.RecallRequest) ([]*models.ScoredMemory, error) {
	return s.memories, s.recallErr
}

func (s *stubMemory) Save(ctx context.Context, save ports.ExplicitSave) (*models.Memory, error) {
	s.saved = &save
	if s.saveErr != nil {
		return nil, s.saveErr
	}
	return &models.Memory{ID: "mem_1", Content: save.Content, Tier: models.Tier1}, nil
}

func (s *stubMemory) Profile(ctx context.Context, userID string, deadline time.Duration) (*models.UserProfile, error) {
	return s.profile, s.profileErr
}

func (s *stubMemory) RecentSummaries(ctx context.Context, userID, excludeThreadID string, limit int) ([]*models.ThreadSummary, error) {
	return s.summaries, s.summaryErr
}

func (s *stubMemory) IngestTurn(ctx context.Context, event *models.IngestEvent) error {
	s.ingested = event
	if s.ingestCh != nil {
		s.ingestCh <- event
	}
	return nil
}

func (s *stubMemory) WebSearch(ctx context.Context, userID, threadID, query string, turns []models.ChatMessage) (*ports.WebSearchAnswer, error) {
	return s.webAnswer, s.webErr
}

func testGatewayConfig() config.GatewayConfig {
	return config.GatewayConfig{
		KeepLastTurns:     10,
		MaxInputTokens:    16000,
		RecallDeadlineMs:  200,
		ProfileDeadlineMs: 30,
	}
}

func userTurn(content string) models.ChatMessage {
	return models.ChatMessage{Role: models.RoleUser, Content: content}
}

func TestAssemble_BlockOrder(t *testing.T) {
	mem := &stubMemory{
		memories: []*models.ScoredMemory{
			{Memory: &models.Memory{Content: "the user's favorite color is blue", Tier: models.Tier1}},
		},
		summaries: []*models.ThreadSummary{{Summary: "Discussed sharding strategies."}},
		profile:   &models.UserProfile{Stack: []string{"Go"}, Expertise: models.ExpertiseExpert, Style: models.StyleConcise},
	}
	a := NewAssembler(mem, testGatewayConfig())

	prompt := a.Assemble(context.Background(), "u1", "th1",
		[]models.ChatMessage{userTurn("no, actually what is my favorite color")},
		Analysis{Intent: IntentFactual, CorrectionCue: true})

	require.Len(t, prompt.Messages, 6)
	assert.Equal(t, defaultBasePrompt, prompt.Messages[0].Content)
	assert.Contains(t, prompt.Messages[1].Content, "User preferences")
	assert.Contains(t, prompt.Messages[2].Content, "CRITICAL")
	assert.Contains(t, prompt.Messages[3].Content, "favorite color is blue")
	assert.Contains(t, prompt.Messages[4].Content, "sharding")
	assert.Equal(t, models.RoleUser, prompt.Messages[5].Role)
	assert.Empty(t, prompt.Missing)
}

func TestAssemble_MemoryLinesAreNeutral(t *testing.T) {
	mem := &stubMemory{
		memories: []*models.ScoredMemory{
			{Memory: &models.Memory{Content: "prefers tabs over spaces"}},
		},
	}
	a := NewAssembler(mem, testGatewayConfig())

	prompt := a.Assemble(context.Background(), "u1", "th1",
		[]models.ChatMessage{userTurn("hi")}, Analysis{})

	var block string
	for _, m := range prompt.Messages {
		if strings.Contains(m.Content, "prefers tabs") {
			block = m.Content
		}
	}
	require.NotEmpty(t, block)
	assert.NotContains(t, block, "You mentioned")
}

func TestAssemble_FailedStagesAreSkippedAndReported(t *testing.T) {
	mem := &stubMemory{
		recallErr:  context.DeadlineExceeded,
		summaryErr: domain.ErrProviderUnavailable,
		profileErr: context.DeadlineExceeded,
	}
	a := NewAssembler(mem, testGatewayConfig())

	prompt := a.Assemble(context.Background(), "u1", "th1",
		[]models.ChatMessage{userTurn("hello")}, Analysis{})

	// Base prompt plus the turn; every optional block missing
	require.Len(t, prompt.Messages, 2)
	assert.ElementsMatch(t, []string{"memories", "summaries", "profile"}, prompt.Missing)
}

func TestAssemble_TrimsToLastTurns(t *testing.T) {
	cfg := testGatewayConfig()
	cfg.KeepLastTurns = 2
	a := NewAssembler(&stubMemory{}, cfg)

	var turns []models.ChatMessage
	for i := 0; i < 20; i++ {
		turns = append(turns, userTurn("message"))
	}
	turns = append(turns, userTurn("the last one"))

	prompt := a.Assemble(context.Background(), "u1", "th1", turns, Analysis{})

	// 1 base system block + 4 kept turns
	require.Len(t, prompt.Messages, 5)
	assert.Equal(t, "the last one", prompt.Messages[len(prompt.Messages)-1].Content)
}

func TestAssemble_TokenCapDropsOldest(t *testing.T) {
	cfg := testGatewayConfig()
	cfg.MaxInputTokens = 100
	a := NewAssembler(&stubMemory{}, cfg)

	big := strings.Repeat("x", 1000) // ~250 tokens each
	turns := []models.ChatMessage{userTurn(big), userTurn(big), userTurn("short question")}

	prompt := a.Assemble(context.Background(), "u1", "th1", turns, Analysis{})
	assert.Equal(t, "short question", prompt.Messages[len(prompt.Messages)-1].Content)
	assert.LessOrEqual(t, len(prompt.Messages), 3)
}

func TestLengthHint(t *testing.T) {
	max, source := lengthHint(Analysis{Intent: IntentSimpleMath})
	assert.Equal(t, 10, max)
	assert.Equal(t, "intent:simple_math", source)

	max, _ = lengthHint(Analysis{Intent: IntentFollowup})
	assert.Equal(t, 200, max)

	max, source = lengthHint(Analysis{Intent: IntentFactual})
	assert.Equal(t, 0, max)
	assert.Equal(t, "provider_default", source)
}
