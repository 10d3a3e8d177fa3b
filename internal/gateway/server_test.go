package gateway

import (
	"context"
	"fmt"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/halcyon-ai/mnemo/internal/config"
	"github.com/halcyon-ai/mnemo/internal/domain"
	"github.com/halcyon-ai/mnemo/internal/domain/models"
	"github.com/halcyon-ai/mnemo/internal/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type streamLLM struct {
	chunks     []string
	connectErr error
}

func (s *streamLLM) Complete(ctx context.Context, req ports.ChatRequest) (string, error) {
	return "", domain.ErrProviderUnavailable
}

func (s *streamLLM) Stream(ctx context.Context, req ports.ChatRequest) (<-chan ports.StreamDelta, error) {
	if s.connectErr != nil {
		return nil, s.connectErr
	}
	ch := make(chan ports.StreamDelta, len(s.chunks)+1)
	for _, c := range s.chunks {
		ch <- ports.StreamDelta{Content: c}
	}
	ch <- ports.StreamDelta{Done: true, FinishReason: "stop"}
	close(ch)
	return ch, nil
}

func testServer(mem *stubMemory, llm ports.LLMService) *Server {
	cfg := config.DefaultConfig()
	cfg.Gateway.ResearchInjection = false
	return NewServer(cfg, mem, llm, nil, nil, nil)
}

func postChat(t *testing.T, s *Server, body string) *httptest.ResponseRecorder {
	t.Helper()
	r := httptest.NewRequest("POST", "/v1/chat/stream", strings.NewReader(body))
	r.Header.Set("x-user-id", "u1")
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, r)
	return w
}

func TestChatStream_MemorySaveShortCircuitsProvider(t *testing.T) {
	mem := &stubMemory{}
	s := testServer(mem, &streamLLM{chunks: []string{"should not run"}})

	w := postChat(t, s, `{"thread_id": "th1", "messages": [
		{"role": "user", "content": "remember that my favorite color is blue"}
	]}`)

	require.Equal(t, 200, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "event: meta")
	assert.Contains(t, body, "event: delta")
	assert.Contains(t, body, "event: done")
	assert.NotContains(t, body, "should not run")

	require.NotNil(t, mem.saved)
	assert.Equal(t, "my favorite color is blue", mem.saved.Content)
	assert.Equal(t, "u1", mem.saved.UserID)
}

func TestChatStream_SimpleMathCanonicalAnswer(t *testing.T) {
	s := testServer(&stubMemory{}, &streamLLM{chunks: []string{"The answer is ", "4."}})

	w := postChat(t, s, `{"thread_id": "th1", "messages": [
		{"role": "user", "content": "what is 2 + 2"}
	]}`)

	body := w.Body.String()
	assert.Contains(t, body, "The answer is ")
	assert.Contains(t, body, `"canonical_answer":"4"`)
	assert.Contains(t, body, `"finish_reason":"stop"`)
}

func TestChatStream_ProviderFailureEmitsErrorEvent(t *testing.T) {
	s := testServer(&stubMemory{}, &streamLLM{connectErr: domain.ErrProviderUnavailable})

	w := postChat(t, s, `{"thread_id": "th1", "messages": [
		{"role": "user", "content": "tell me a story"}
	]}`)

	body := w.Body.String()
	assert.Contains(t, body, "event: error")
	assert.NotContains(t, body, "event: done")
}

func TestChatStream_WebSearchUsesComposedAnswer(t *testing.T) {
	mem := &stubMemory{webAnswer: &ports.WebSearchAnswer{Answer: "Go 1.25 is the newest release."}}
	s := testServer(mem, &streamLLM{chunks: []string{"provider fallback"}})

	w := postChat(t, s, `{"thread_id": "th1", "messages": [
		{"role": "user", "content": "what is the latest Go release"}
	]}`)

	body := w.Body.String()
	assert.Contains(t, body, "Go 1.25 is the newest release.")
	assert.NotContains(t, body, "provider fallback")
}

func TestChatStream_DegradedSearchFallsBackToProvider(t *testing.T) {
	mem := &stubMemory{webErr: domain.ErrSearchUnavailable}
	s := testServer(mem, &streamLLM{chunks: []string{"provider fallback"}})

	w := postChat(t, s, `{"thread_id": "th1", "messages": [
		{"role": "user", "content": "what is the latest Go release"}
	]}`)

	assert.Contains(t, w.Body.String(), "provider fallback")
}

func TestChatStream_RejectsMissingThread(t *testing.T) {
	s := testServer(&stubMemory{}, &streamLLM{})

	w := postChat(t, s, `{"messages": [{"role": "user", "content": "hi"}]}`)
	assert.Equal(t, 400, w.Code)
}

// recordingMessages captures persisted turns for assertions.
type recordingMessages struct {
	mu      sync.Mutex
	created []*models.ChatMessage
}

func (r *recordingMessages) Create(_ context.Context, msg *models.ChatMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.created = append(r.created, msg)
	return nil
}

func (r *recordingMessages) ListByThread(context.Context, string, string, int) ([]*models.ChatMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.created, nil
}

func (r *recordingMessages) CountSince(context.Context, string, string, time.Time) (int, error) {
	return 0, nil
}

type seqMessageIDs struct{ n int }

func (g *seqMessageIDs) MemoryID() string { return "mem_x" }
func (g *seqMessageIDs) AuditID() string  { return "aud_x" }
func (g *seqMessageIDs) BatchID() string  { return "batch_x" }
func (g *seqMessageIDs) MessageID() string {
	g.n++
	return fmt.Sprintf("msg_%d", g.n)
}

func TestChatStream_IngestCarriesPersistedMessageIDs(t *testing.T) {
	mem := &stubMemory{ingestCh: make(chan *models.IngestEvent, 1)}
	msgs := &recordingMessages{}

	cfg := config.DefaultConfig()
	cfg.Gateway.ResearchInjection = false
	s := NewServer(cfg, mem, &streamLLM{chunks: []string{"Go is a language."}}, msgs, &seqMessageIDs{}, nil)

	postChat(t, s, `{"thread_id": "th1", "messages": [
		{"role": "user", "content": "tell me about Go"}
	]}`)

	select {
	case event := <-mem.ingestCh:
		require.Len(t, event.Messages, 2)
		assert.Equal(t, models.RoleUser, event.Messages[0].Role)
		assert.Equal(t, models.RoleAssistant, event.Messages[1].Role)

		require.Len(t, msgs.created, 2)
		assert.Equal(t, msgs.created[0].ID, event.Messages[0].ID)
		assert.Equal(t, msgs.created[1].ID, event.Messages[1].ID)
		assert.NotEmpty(t, event.Messages[0].ID)
		assert.NotEmpty(t, event.Messages[1].ID)
	case <-time.After(2 * time.Second):
		t.Fatal("ingest event never arrived")
	}
}

func TestGatekeeper_Classification(t *testing.T) {
	s := testServer(&stubMemory{}, &streamLLM{})

	table := `{"content": "| a | b |\n|---|---|\n| 1 | 2 |\n| 3 | 4 |"}`
	r := httptest.NewRequest("POST", "/api/artifacts/gatekeeper", strings.NewReader(table))
	r.Header.Set("x-user-id", "u1")
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, r)

	require.Equal(t, 200, w.Code)
	assert.Contains(t, w.Body.String(), `"shouldCreate":true`)
	assert.Contains(t, w.Body.String(), `"type":"table"`)
}

func TestGatekeeper_PlainTextDoesNotCreate(t *testing.T) {
	s := testServer(&stubMemory{}, &streamLLM{})

	r := httptest.NewRequest("POST", "/api/artifacts/gatekeeper", strings.NewReader(`{"content": "thanks, that helps"}`))
	r.Header.Set("x-user-id", "u1")
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, r)

	assert.Contains(t, w.Body.String(), `"shouldCreate":false`)
}
