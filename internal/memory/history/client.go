// Package history gives the memory service read access to chat history
// through the gateway's HTTP surface. The gateway owns the messages table;
// nothing on the memory side touches it directly.
package history

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/halcyon-ai/mnemo/internal/domain/models"
)

// countScanLimit bounds how much history CountSince pulls; threads past this
// are stale enough that the exact count no longer matters.
const countScanLimit = 500

// HTTPClient implements ports.ThreadHistory against the gateway.
type HTTPClient struct {
	baseURL string
	client  *http.Client
}

func NewHTTPClient(baseURL string) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

type threadMessagesDTO struct {
	Messages []*models.ChatMessage `json:"messages"`
	Total    int                   `json:"total"`
}

func (c *HTTPClient) ListByThread(ctx context.Context, userID, threadID string, limit int) ([]*models.ChatMessage, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}

	path := "/v1/threads/" + url.PathEscape(threadID) + "/messages"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("x-user-id", userID)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("gateway returned %d for thread history", resp.StatusCode)
	}

	var dto threadMessagesDTO
	if err := json.NewDecoder(resp.Body).Decode(&dto); err != nil {
		return nil, err
	}
	return dto.Messages, nil
}

// CountSince counts messages newer than since. The gateway exposes no count
// endpoint, so this pulls a bounded window and counts locally.
func (c *HTTPClient) CountSince(ctx context.Context, userID, threadID string, since time.Time) (int, error) {
	msgs, err := c.ListByThread(ctx, userID, threadID, countScanLimit)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, m := range msgs {
		if m.CreatedAt.After(since) {
			count++
		}
	}
	return count, nil
}
