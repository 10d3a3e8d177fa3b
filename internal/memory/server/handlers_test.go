package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/halcyon-ai/mnemo/internal/adapters/http/middleware"
	"github.com/halcyon-ai/mnemo/internal/domain"
	"github.com/halcyon-ai/mnemo/internal/domain/models"
	"github.com/halcyon-ai/mnemo/internal/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubIngest struct {
	saved      *ports.ExplicitSave
	saveResult *models.Memory
	saveErr    error
	enqueueErr error
	deleteErr  error
}

func (s *stubIngest) Enqueue(event *models.IngestEvent) error { return s.enqueueErr }

func (s *stubIngest) SaveExplicit(ctx context.Context, save ports.ExplicitSave) (*models.Memory, error) {
	s.saved = &save
	return s.saveResult, s.saveErr
}

func (s *stubIngest) UpdateMemory(ctx context.Context, userID, id string, upd ports.MemoryUpdate) (*models.Memory, error) {
	return nil, domain.ErrMemoryNotFound
}

func (s *stubIngest) DeleteMemory(ctx context.Context, userID, id string) error { return s.deleteErr }

func (s *stubIngest) PruneTier3(ctx context.Context, userID string, cutoff time.Time) (int, error) {
	return 3, nil
}

type stubRecall struct {
	req     ports.RecallRequest
	results []*models.ScoredMemory
	err     error
}

func (s *stubRecall) Recall(ctx context.Context, req ports.RecallRequest) ([]*models.ScoredMemory, error) {
	s.req = req
	return s.results, s.err
}

func withUser(r *http.Request, userID string) *http.Request {
	ctx := context.WithValue(r.Context(), middleware.UserIDContextKey, userID)
	return r.WithContext(ctx)
}

func TestCreate_DefaultsToTier1(t *testing.T) {
	ingest := &stubIngest{saveResult: &models.Memory{ID: "mem_1", Tier: models.Tier1}}
	h := NewMemoryHandler(ingest, nil, nil, 200)

	body := `{"threadId": "th_1", "content": "I prefer tabs over spaces"}`
	r := withUser(httptest.NewRequest("POST", "/v1/memories", strings.NewReader(body)), "u1")
	w := httptest.NewRecorder()
	h.Create(w, r)

	require.Equal(t, http.StatusCreated, w.Code)
	require.NotNil(t, ingest.saved)
	assert.Equal(t, "u1", ingest.saved.UserID)
	assert.Equal(t, "th_1", ingest.saved.ThreadID)
	assert.Equal(t, models.Tier(""), ingest.saved.Tier)
}

func TestCreate_RejectsInvalidTier(t *testing.T) {
	h := NewMemoryHandler(&stubIngest{}, nil, nil, 200)

	body := `{"threadId": "th_1", "content": "x", "tier": "TIER9"}`
	r := withUser(httptest.NewRequest("POST", "/v1/memories", strings.NewReader(body)), "u1")
	w := httptest.NewRecorder()
	h.Create(w, r)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRecall_AbsentDeadlineUsesDefault(t *testing.T) {
	recall := &stubRecall{}
	h := NewMemoryHandler(&stubIngest{}, recall, nil, 200)

	r := withUser(httptest.NewRequest("GET", "/v1/recall?query=favorite+color", nil), "u1")
	w := httptest.NewRecorder()
	h.Recall(w, r)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 200*time.Millisecond, recall.req.Deadline)
	assert.Equal(t, "favorite color", recall.req.Query)
}

func TestRecall_ZeroDeadlineReturnsEmpty(t *testing.T) {
	recall := &stubRecall{}
	h := NewMemoryHandler(&stubIngest{}, recall, nil, 200)

	r := withUser(httptest.NewRequest("GET", "/v1/recall?query=x&deadlineMs=0", nil), "u1")
	w := httptest.NewRecorder()
	h.Recall(w, r)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, time.Duration(0), recall.req.Deadline)

	var resp RecallResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Empty(t, resp.Memories)
	assert.Equal(t, 0, resp.Count)
}

func TestRecall_ForeignUserForbidden(t *testing.T) {
	h := NewMemoryHandler(&stubIngest{}, &stubRecall{}, nil, 200)

	r := withUser(httptest.NewRequest("GET", "/v1/recall?userId=other&query=x", nil), "u1")
	w := httptest.NewRecorder()
	h.Recall(w, r)

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRecall_IncludesFusedRelevance(t *testing.T) {
	recall := &stubRecall{results: []*models.ScoredMemory{
		{Memory: &models.Memory{ID: "mem_1"}, Keyword: 0.5, Cosine: 0.5},
	}}
	h := NewMemoryHandler(&stubIngest{}, recall, nil, 200)

	r := withUser(httptest.NewRequest("GET", "/v1/recall?query=x", nil), "u1")
	w := httptest.NewRecorder()
	h.Recall(w, r)

	var resp RecallResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Memories, 1)
	assert.InDelta(t, 0.5, resp.Memories[0].Relevance, 1e-9)
}

func TestIngest_QueueFullIsBackpressure(t *testing.T) {
	h := NewMemoryHandler(&stubIngest{enqueueErr: domain.ErrQueueFull}, nil, nil, 200)

	body := `{"threadId": "th_1", "messages": [{"role": "user", "content": "hi"}]}`
	r := withUser(httptest.NewRequest("POST", "/v1/ingest", strings.NewReader(body)), "u1")
	w := httptest.NewRecorder()
	h.Ingest(w, r)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestIngest_Accepted(t *testing.T) {
	h := NewMemoryHandler(&stubIngest{}, nil, nil, 200)

	body := `{"threadId": "th_1", "messages": [{"role": "user", "content": "hi"}]}`
	r := withUser(httptest.NewRequest("POST", "/v1/ingest", strings.NewReader(body)), "u1")
	w := httptest.NewRecorder()
	h.Ingest(w, r)

	assert.Equal(t, http.StatusAccepted, w.Code)
}

func TestDelete_NotFound(t *testing.T) {
	h := NewMemoryHandler(&stubIngest{deleteErr: domain.ErrMemoryNotFound}, nil, nil, 200)

	r := withUser(httptest.NewRequest("DELETE", "/v1/memories/mem_x", nil), "u1")
	w := httptest.NewRecorder()
	h.Delete(w, r)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

type stubSearch struct {
	results []ports.SearchResult
	err     error
}

func (s *stubSearch) Search(ctx context.Context, query string, recency models.RecencyHint, limit int) ([]ports.SearchResult, error) {
	return s.results, s.err
}

type stubLLM struct {
	answer string
	err    error
}

func (s *stubLLM) Complete(ctx context.Context, req ports.ChatRequest) (string, error) {
	return s.answer, s.err
}

func (s *stubLLM) Stream(ctx context.Context, req ports.ChatRequest) (<-chan ports.StreamDelta, error) {
	return nil, s.err
}

func TestWebSearch_RequiresQuery(t *testing.T) {
	h := NewWebSearchHandler(&stubSearch{}, &stubLLM{}, "m")

	r := httptest.NewRequest("POST", "/v1/web-search", strings.NewReader(`{"query": "  "}`))
	w := httptest.NewRecorder()
	h.Search(w, r)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWebSearch_ComposeFailureDegrades(t *testing.T) {
	search := &stubSearch{results: []ports.SearchResult{{Title: "t", Host: "go.dev"}}}
	h := NewWebSearchHandler(search, &stubLLM{err: domain.ErrProviderUnavailable}, "m")

	r := httptest.NewRequest("POST", "/v1/web-search", strings.NewReader(`{"query": "latest go release"}`))
	w := httptest.NewRecorder()
	h.Search(w, r)

	require.Equal(t, http.StatusOK, w.Code)
	var resp WebSearchResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Degraded)
	assert.Len(t, resp.Results, 1)
}

func TestWebSearch_ComposesWithContext(t *testing.T) {
	search := &stubSearch{results: []ports.SearchResult{{Title: "CVE roundup", Host: "reuters.com"}}}
	h := NewWebSearchHandler(search, &stubLLM{answer: "The most critical one is X."}, "m")

	body := `{"query": "which one is most critical", "conversationContext": [
		{"role": "assistant", "content": "There are three new CVEs."}
	]}`
	r := httptest.NewRequest("POST", "/v1/web-search", strings.NewReader(body))
	w := httptest.NewRecorder()
	h.Search(w, r)

	require.Equal(t, http.StatusOK, w.Code)
	var resp WebSearchResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "The most critical one is X.", resp.Answer)
	assert.False(t, resp.Degraded)
}

func TestWebSearch_BackendFailure(t *testing.T) {
	h := NewWebSearchHandler(&stubSearch{err: domain.ErrSearchUnavailable}, &stubLLM{}, "m")

	r := httptest.NewRequest("POST", "/v1/web-search", strings.NewReader(`{"query": "x"}`))
	w := httptest.NewRecorder()
	h.Search(w, r)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
