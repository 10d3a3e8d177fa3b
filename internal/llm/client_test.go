package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/halcyon-ai/mnemo/internal/domain"
	"github.com/halcyon-ai/mnemo/internal/domain/models"
	"github.com/halcyon-ai/mnemo/internal/ports"
)

func TestClient_Stream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)

		chunks := []string{
			`{"choices":[{"delta":{"content":"Hello"}}]}`,
			`{"choices":[{"delta":{"content":" world"}}]}`,
			`{"choices":[{"delta":{},"finish_reason":"stop"}]}`,
		}
		for _, chunk := range chunks {
			fmt.Fprintf(w, "data: %s\n\n", chunk)
			flusher.Flush()
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
		flusher.Flush()
	}))
	defer server.Close()

	client := NewClient(server.URL, "", 1024, 0.7)

	deltas, err := client.Stream(context.Background(), ports.ChatRequest{
		Model:    "mnemo-fast",
		Messages: []models.ChatMessage{{Role: models.RoleUser, Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var content string
	var finished bool
	for delta := range deltas {
		if delta.Err != nil {
			t.Fatalf("unexpected stream error: %v", delta.Err)
		}
		content += delta.Content
		if delta.FinishReason == "stop" {
			finished = true
		}
	}

	if content != "Hello world" {
		t.Errorf("expected 'Hello world', got %q", content)
	}
	if !finished {
		t.Error("expected a stop finish reason")
	}
}

func TestClient_Stream_RateLimited(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"error":"quota exhausted"}`)
	}))
	defer server.Close()

	client := NewClient(server.URL, "", 1024, 0.7)
	client.retryConfig.MaxRetries = 0

	_, err := client.Stream(context.Background(), ports.ChatRequest{
		Model:    "mnemo-fast",
		Messages: []models.ChatMessage{{Role: models.RoleUser, Content: "hi"}},
	})
	if err == nil {
		t.Fatal("expected an error")
	}
	if !errors.Is(err, domain.ErrRateLimited) {
		t.Errorf("expected ErrRateLimited, got %v", err)
	}
}

func TestClient_Complete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"choices":[{"message":{"role":"assistant","content":"42"},"finish_reason":"stop"}]}`)
	}))
	defer server.Close()

	client := NewClient(server.URL, "", 1024, 0.7)

	out, err := client.Complete(context.Background(), ports.ChatRequest{
		Model:    "mnemo-fast",
		Messages: []models.ChatMessage{{Role: models.RoleUser, Content: "6*7?"}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "42" {
		t.Errorf("expected '42', got %q", out)
	}
}

func TestClient_Complete_BadRequestNotRetried(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":"context too long"}`)
	}))
	defer server.Close()

	client := NewClient(server.URL, "", 1024, 0.7)

	_, err := client.Complete(context.Background(), ports.ChatRequest{
		Model:    "mnemo-fast",
		Messages: []models.ChatMessage{{Role: models.RoleUser, Content: "hi"}},
	})
	if !errors.Is(err, domain.ErrProviderRejected) {
		t.Errorf("expected ErrProviderRejected, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}
