// Package llm is an OpenAI-compatible chat client. The gateway selects the
// model per request; this client only moves prompts and deltas.
package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/halcyon-ai/mnemo/internal/adapters/metrics"
	"github.com/halcyon-ai/mnemo/internal/adapters/retry"
	"github.com/halcyon-ai/mnemo/internal/domain"
	"github.com/halcyon-ai/mnemo/internal/domain/models"
	"github.com/halcyon-ai/mnemo/internal/ports"
)

type Client struct {
	baseURL     string
	apiKey      string
	maxTokens   int
	temperature float64
	httpClient  *http.Client
	retryConfig retry.BackoffConfig
}

func NewClient(baseURL, apiKey string, maxTokens int, temperature float64) *Client {
	baseURL = strings.TrimSuffix(baseURL, "/")
	baseURL = strings.TrimSuffix(baseURL, "/v1")

	return &Client{
		baseURL:     baseURL,
		apiKey:      apiKey,
		maxTokens:   maxTokens,
		temperature: temperature,
		httpClient: &http.Client{
			// Streams stay open well past any sane request timeout
			Timeout: 0,
		},
		retryConfig: retry.DefaultConfig(),
	}
}

type chatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature,omitempty"`
	Stream      bool          `json:"stream"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
}

func toWire(msgs []models.ChatMessage) []chatMessage {
	out := make([]chatMessage, len(msgs))
	for i, m := range msgs {
		out[i] = chatMessage{Role: m.Role, Content: m.Content}
	}
	return out
}

// classifyStatus maps provider HTTP statuses onto the domain error taxonomy.
func classifyStatus(status int, body string) error {
	switch {
	case status == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, body)
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		return fmt.Errorf("%w: %s", domain.ErrProviderRejected, body)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return fmt.Errorf("%w: provider auth failed", domain.ErrProviderRejected)
	case status >= 500:
		return fmt.Errorf("%w: HTTP %d", domain.ErrProviderUnavailable, status)
	default:
		return fmt.Errorf("provider error: HTTP %d - %s", status, body)
	}
}

// Complete sends a non-streaming request.
func (c *Client) Complete(ctx context.Context, req ports.ChatRequest) (string, error) {
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = c.maxTokens
	}

	body, err := json.Marshal(chatCompletionRequest{
		Model:       req.Model,
		Messages:    toWire(req.Messages),
		MaxTokens:   maxTokens,
		Temperature: c.temperature,
		Stream:      false,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	start := time.Now()
	var respBody []byte

	err = retry.WithBackoffHTTP(ctx, c.retryConfig, func() (int, error) {
		httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/v1/chat/completions", bytes.NewReader(body))
		if err != nil {
			return 0, fmt.Errorf("failed to create request: %w", err)
		}
		c.setHeaders(httpReq)

		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			return 0, fmt.Errorf("failed to send request: %w", err)
		}
		defer resp.Body.Close()

		respBody, err = io.ReadAll(resp.Body)
		if err != nil {
			return resp.StatusCode, fmt.Errorf("failed to read body: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			return resp.StatusCode, classifyStatus(resp.StatusCode, string(respBody))
		}
		return resp.StatusCode, nil
	})

	metrics.LLMRequestDuration.WithLabelValues(req.Model).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.LLMRequestsTotal.WithLabelValues(req.Model, "error").Inc()
		return "", err
	}
	metrics.LLMRequestsTotal.WithLabelValues(req.Model, "ok").Inc()

	var response chatCompletionResponse
	if err := json.Unmarshal(respBody, &response); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	if len(response.Choices) == 0 {
		return "", fmt.Errorf("%w: empty choices", domain.ErrProviderUnavailable)
	}
	return response.Choices[0].Message.Content, nil
}

// Stream opens a streaming completion. The initial connection is retried;
// once deltas flow, a broken stream surfaces as an error delta.
func (c *Client) Stream(ctx context.Context, req ports.ChatRequest) (<-chan ports.StreamDelta, error) {
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = c.maxTokens
	}

	body, err := json.Marshal(chatCompletionRequest{
		Model:       req.Model,
		Messages:    toWire(req.Messages),
		MaxTokens:   maxTokens,
		Temperature: c.temperature,
		Stream:      true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	var resp *http.Response

	err = retry.WithBackoffHTTP(ctx, c.retryConfig, func() (int, error) {
		httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/v1/chat/completions", bytes.NewReader(body))
		if err != nil {
			return 0, fmt.Errorf("failed to create request: %w", err)
		}
		c.setHeaders(httpReq)

		resp, err = c.httpClient.Do(httpReq)
		if err != nil {
			return 0, fmt.Errorf("failed to send request: %w", err)
		}

		if resp.StatusCode != http.StatusOK {
			errBody, readErr := io.ReadAll(resp.Body)
			resp.Body.Close()
			if readErr != nil {
				return resp.StatusCode, fmt.Errorf("API error: %s", resp.Status)
			}
			return resp.StatusCode, classifyStatus(resp.StatusCode, string(errBody))
		}
		return resp.StatusCode, nil
	})
	if err != nil {
		metrics.LLMRequestsTotal.WithLabelValues(req.Model, "error").Inc()
		return nil, err
	}

	deltas := make(chan ports.StreamDelta, 10)

	go func() {
		defer close(deltas)
		defer resp.Body.Close()

		start := time.Now()
		status := "ok"
		defer func() {
			metrics.LLMRequestDuration.WithLabelValues(req.Model).Observe(time.Since(start).Seconds())
			metrics.LLMRequestsTotal.WithLabelValues(req.Model, status).Inc()
		}()

		reader := bufio.NewReader(resp.Body)

		for {
			select {
			case <-ctx.Done():
				status = "canceled"
				deltas <- ports.StreamDelta{Err: ctx.Err()}
				return
			default:
			}

			line, err := reader.ReadBytes('\n')
			if err != nil {
				if err != io.EOF {
					status = "error"
					deltas <- ports.StreamDelta{Err: err}
				}
				deltas <- ports.StreamDelta{Done: true}
				return
			}

			lineStr := strings.TrimSpace(string(line))
			if !strings.HasPrefix(lineStr, "data: ") {
				continue
			}

			data := strings.TrimPrefix(lineStr, "data: ")
			if data == "[DONE]" {
				deltas <- ports.StreamDelta{Done: true}
				return
			}

			var response struct {
				Choices []struct {
					Delta struct {
						Content string `json:"content"`
					} `json:"delta"`
					FinishReason string `json:"finish_reason"`
				} `json:"choices"`
			}
			if err := json.Unmarshal([]byte(data), &response); err != nil {
				continue
			}
			if len(response.Choices) == 0 {
				continue
			}

			choice := response.Choices[0]
			delta := ports.StreamDelta{
				Content:      choice.Delta.Content,
				FinishReason: choice.FinishReason,
			}
			if choice.FinishReason != "" {
				delta.Done = true
			}
			if delta.Content != "" || delta.FinishReason != "" {
				deltas <- delta
			}
			if delta.Done {
				return
			}
		}
	}()

	return deltas, nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}
