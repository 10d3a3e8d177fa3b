package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/halcyon-ai/mnemo/internal/domain"
	"github.com/halcyon-ai/mnemo/internal/domain/models"
	"github.com/halcyon-ai/mnemo/internal/ports"
)

// MemoryHTTPClient implements ports.MemoryClient against the memory
// service's HTTP surface, propagating identity in the x-user-id header.
// Deadlines ride on the request context; the underlying client carries only
// a generous outer timeout.
type MemoryHTTPClient struct {
	baseURL string
	client  *http.Client
}

func NewMemoryHTTPClient(baseURL string) *MemoryHTTPClient {
	return &MemoryHTTPClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

type recallItemDTO struct {
	Memory    *models.Memory `json:"memory"`
	Relevance float64        `json:"relevance"`
	Keyword   float64        `json:"keyword,omitempty"`
	Cosine    float64        `json:"cosine,omitempty"`
	PhraseHit bool           `json:"phrase_hit,omitempty"`
}

type recallResponseDTO struct {
	Memories []recallItemDTO `json:"memories"`
}

func (c *MemoryHTTPClient) Recall(ctx context.Context, req ports.RecallRequest) ([]*models.ScoredMemory, error) {
	q := url.Values{}
	q.Set("query", req.Query)
	q.Set("threadId", req.ThreadID)
	q.Set("deadlineMs", strconv.FormatInt(req.Deadline.Milliseconds(), 10))
	if req.MaxItems > 0 {
		q.Set("maxItems", strconv.Itoa(req.MaxItems))
	}

	var resp recallResponseDTO
	if err := c.do(ctx, http.MethodGet, "/v1/recall?"+q.Encode(), req.UserID, nil, &resp); err != nil {
		return nil, err
	}

	memories := make([]*models.ScoredMemory, 0, len(resp.Memories))
	for _, item := range resp.Memories {
		memories = append(memories, &models.ScoredMemory{
			Memory:    item.Memory,
			Keyword:   item.Keyword,
			Cosine:    item.Cosine,
			PhraseHit: item.PhraseHit,
		})
	}
	return memories, nil
}

func (c *MemoryHTTPClient) Save(ctx context.Context, save ports.ExplicitSave) (*models.Memory, error) {
	body := map[string]any{
		"threadId": save.ThreadID,
		"content":  save.Content,
	}
	if save.Priority > 0 {
		body["priority"] = save.Priority
	}
	if save.Tier.Valid() {
		body["tier"] = string(save.Tier)
	}

	var memory models.Memory
	if err := c.do(ctx, http.MethodPost, "/v1/memories", save.UserID, body, &memory); err != nil {
		return nil, err
	}
	return &memory, nil
}

func (c *MemoryHTTPClient) Profile(ctx context.Context, userID string, deadline time.Duration) (*models.UserProfile, error) {
	if deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, deadline)
		defer cancel()
	}

	var profile models.UserProfile
	if err := c.do(ctx, http.MethodGet, "/v1/profile", userID, nil, &profile); err != nil {
		return nil, err
	}
	return &profile, nil
}

type conversationsResponseDTO struct {
	Conversations []*models.ThreadSummary `json:"conversations"`
}

func (c *MemoryHTTPClient) RecentSummaries(ctx context.Context, userID, excludeThreadID string, limit int) ([]*models.ThreadSummary, error) {
	q := url.Values{}
	q.Set("excludeThreadId", excludeThreadID)
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}

	var resp conversationsResponseDTO
	if err := c.do(ctx, http.MethodGet, "/v1/conversations?"+q.Encode(), userID, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Conversations, nil
}

func (c *MemoryHTTPClient) IngestTurn(ctx context.Context, event *models.IngestEvent) error {
	body := map[string]any{
		"threadId": event.ThreadID,
		"messages": event.Messages,
	}
	return c.do(ctx, http.MethodPost, "/v1/ingest", event.UserID, body, nil)
}

type webSearchResponseDTO struct {
	Answer   string               `json:"answer"`
	Results  []ports.SearchResult `json:"results"`
	Degraded bool                 `json:"degraded,omitempty"`
}

func (c *MemoryHTTPClient) WebSearch(ctx context.Context, userID, threadID, query string, turns []models.ChatMessage) (*ports.WebSearchAnswer, error) {
	body := map[string]any{
		"query":               query,
		"threadId":            threadID,
		"conversationContext": turns,
	}

	var resp webSearchResponseDTO
	if err := c.do(ctx, http.MethodPost, "/v1/web-search", userID, body, &resp); err != nil {
		return nil, err
	}
	return &ports.WebSearchAnswer{
		Answer:   resp.Answer,
		Results:  resp.Results,
		Degraded: resp.Degraded,
	}, nil
}

// do issues one request and decodes the JSON response into out when non-nil.
func (c *MemoryHTTPClient) do(ctx context.Context, method, path, userID string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("x-user-id", userID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return statusError(resp.StatusCode)
	}
	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func statusError(status int) error {
	switch {
	case status == http.StatusTooManyRequests:
		return domain.ErrRateLimited
	case status == http.StatusNotFound:
		return domain.ErrMemoryNotFound
	case status == http.StatusForbidden:
		return domain.ErrForbidden
	case status >= 400 && status < 500:
		return fmt.Errorf("%w: memory service returned %d", domain.ErrInvalidInput, status)
	default:
		return fmt.Errorf("memory service returned %d", status)
	}
}
