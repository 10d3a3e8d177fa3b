package history

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/halcyon-ai/mnemo/internal/domain/models"
)

func TestListByThread(t *testing.T) {
	var gotPath, gotUser, gotLimit string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotUser = r.Header.Get("x-user-id")
		gotLimit = r.URL.Query().Get("limit")
		json.NewEncoder(w).Encode(map[string]any{
			"messages": []*models.ChatMessage{
				{ID: "msg_1", Role: models.RoleUser, Content: "hello"},
				{ID: "msg_2", Role: models.RoleAssistant, Content: "hi"},
			},
			"total": 2,
		})
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL)
	msgs, err := client.ListByThread(context.Background(), "user_1", "thread_1", 20)
	if err != nil {
		t.Fatal(err)
	}

	if gotPath != "/v1/threads/thread_1/messages" {
		t.Errorf("unexpected path %q", gotPath)
	}
	if gotUser != "user_1" {
		t.Errorf("expected x-user-id header, got %q", gotUser)
	}
	if gotLimit != "20" {
		t.Errorf("expected limit=20, got %q", gotLimit)
	}
	if len(msgs) != 2 || msgs[0].ID != "msg_1" {
		t.Errorf("unexpected messages: %+v", msgs)
	}
}

func TestListByThread_GatewayError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL)
	if _, err := client.ListByThread(context.Background(), "user_1", "thread_1", 20); err == nil {
		t.Fatal("expected an error for a 500 response")
	}
}

func TestCountSince(t *testing.T) {
	now := time.Now()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"messages": []*models.ChatMessage{
				{ID: "msg_1", CreatedAt: now.Add(-2 * time.Hour)},
				{ID: "msg_2", CreatedAt: now.Add(-10 * time.Minute)},
				{ID: "msg_3", CreatedAt: now.Add(-time.Minute)},
			},
			"total": 3,
		})
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL)
	count, err := client.CountSince(context.Background(), "user_1", "thread_1", now.Add(-time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if count != 2 {
		t.Errorf("expected 2 messages newer than the cutoff, got %d", count)
	}
}
