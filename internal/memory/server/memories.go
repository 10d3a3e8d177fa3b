package server

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/halcyon-ai/mnemo/internal/adapters/http/middleware"
	"github.com/halcyon-ai/mnemo/internal/domain"
	"github.com/halcyon-ai/mnemo/internal/domain/models"
	"github.com/halcyon-ai/mnemo/internal/ports"
)

// MemoryHandler serves the memory CRUD, recall, and ingest surface.
type MemoryHandler struct {
	ingest   ports.IngestService
	recall   ports.RecallService
	memories ports.MemoryRepository

	recallDefault time.Duration
}

func NewMemoryHandler(ingest ports.IngestService, recall ports.RecallService, memories ports.MemoryRepository, recallDefaultMs int) *MemoryHandler {
	return &MemoryHandler{
		ingest:        ingest,
		recall:        recall,
		memories:      memories,
		recallDefault: time.Duration(recallDefaultMs) * time.Millisecond,
	}
}

// SaveMemoryRequest is the explicit-save body.
type SaveMemoryRequest struct {
	ThreadID string  `json:"threadId"`
	Content  string  `json:"content"`
	Priority float64 `json:"priority,omitempty"`
	Tier     string  `json:"tier,omitempty"`
}

// UpdateMemoryRequest carries the editable fields; nil means unchanged.
type UpdateMemoryRequest struct {
	Content  *string  `json:"content,omitempty"`
	Priority *float64 `json:"priority,omitempty"`
	Tier     string   `json:"tier,omitempty"`
}

// IngestRequest is one assistant turn submitted by the gateway.
type IngestRequest struct {
	ThreadID string               `json:"threadId"`
	Messages []models.ChatMessage `json:"messages"`
}

// PruneRequest bounds the TIER3 maintenance sweep.
type PruneRequest struct {
	OlderThanDays int `json:"olderThanDays,omitempty"`
}

// RecallItem is one recall hit with its fused score.
type RecallItem struct {
	Memory    *models.Memory `json:"memory"`
	Relevance float64        `json:"relevance"`
	Keyword   float64        `json:"keyword,omitempty"`
	Cosine    float64        `json:"cosine,omitempty"`
	PhraseHit bool           `json:"phrase_hit,omitempty"`
}

// RecallResponse is the recall envelope. Memories is never null.
type RecallResponse struct {
	Memories []RecallItem `json:"memories"`
	Count    int          `json:"count"`
}

// MemoryListResponse is the list envelope.
type MemoryListResponse struct {
	Memories []*models.Memory `json:"memories"`
	Total    int              `json:"total"`
}

// Create handles POST /v1/memories.
func (h *MemoryHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	req, ok := decodeJSON[SaveMemoryRequest](r, w)
	if !ok {
		return
	}

	tier := models.Tier(req.Tier)
	if req.Tier != "" && !tier.Valid() {
		respondDomainError(w, fmt.Errorf("%w: %q", domain.ErrInvalidTier, req.Tier))
		return
	}

	memory, err := h.ingest.SaveExplicit(r.Context(), ports.ExplicitSave{
		UserID:   userID,
		ThreadID: req.ThreadID,
		Content:  req.Content,
		Priority: req.Priority,
		Tier:     tier,
	})
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, memory, http.StatusCreated)
}

// Recall handles GET /v1/recall. An absent deadlineMs falls back to the
// configured default; an explicit 0 returns an empty result immediately.
func (h *MemoryHandler) Recall(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if param := r.URL.Query().Get("userId"); param != "" && param != userID {
		respondDomainError(w, domain.ErrForbidden)
		return
	}

	deadline := h.recallDefault
	if raw := r.URL.Query().Get("deadlineMs"); raw != "" {
		ms := parseIntQuery(r, "deadlineMs", -1)
		if ms < 0 {
			respondError(w, "invalid_request", "deadlineMs must be a non-negative integer", http.StatusBadRequest)
			return
		}
		deadline = time.Duration(ms) * time.Millisecond
	}

	results, err := h.recall.Recall(r.Context(), ports.RecallRequest{
		UserID:   userID,
		ThreadID: r.URL.Query().Get("threadId"),
		Query:    r.URL.Query().Get("query"),
		MaxItems: parseIntQuery(r, "maxItems", 0),
		Deadline: deadline,
	})
	if err != nil {
		respondDomainError(w, err)
		return
	}

	items := make([]RecallItem, 0, len(results))
	for _, s := range results {
		items = append(items, RecallItem{
			Memory:    s.Memory,
			Relevance: s.Relevance(),
			Keyword:   s.Keyword,
			Cosine:    s.Cosine,
			PhraseHit: s.PhraseHit,
		})
	}
	respondJSON(w, RecallResponse{Memories: items, Count: len(items)}, http.StatusOK)
}

// List handles GET /v1/memories.
func (h *MemoryHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	tier := models.Tier(r.URL.Query().Get("tier"))
	if tier != "" && !tier.Valid() {
		respondDomainError(w, fmt.Errorf("%w: %q", domain.ErrInvalidTier, tier))
		return
	}

	limit := parseIntQuery(r, "limit", 50)
	if limit < 1 || limit > 200 {
		limit = 50
	}

	memories, err := h.memories.List(r.Context(), userID, tier, limit)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	if memories == nil {
		memories = []*models.Memory{}
	}
	respondJSON(w, MemoryListResponse{Memories: memories, Total: len(memories)}, http.StatusOK)
}

// Get handles GET /v1/memories/{id}.
func (h *MemoryHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	memory, err := h.memories.GetByID(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, memory, http.StatusOK)
}

// Update handles PUT /v1/memories/{id}.
func (h *MemoryHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	req, ok := decodeJSON[UpdateMemoryRequest](r, w)
	if !ok {
		return
	}

	tier := models.Tier(req.Tier)
	if req.Tier != "" && !tier.Valid() {
		respondDomainError(w, fmt.Errorf("%w: %q", domain.ErrInvalidTier, req.Tier))
		return
	}

	memory, err := h.ingest.UpdateMemory(r.Context(), userID, chi.URLParam(r, "id"), ports.MemoryUpdate{
		Content:  req.Content,
		Priority: req.Priority,
		Tier:     tier,
	})
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, memory, http.StatusOK)
}

// Delete handles DELETE /v1/memories/{id}.
func (h *MemoryHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	if err := h.ingest.DeleteMemory(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		respondDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Ingest handles POST /v1/ingest: the gateway submits each completed turn
// here. Acceptance is queue admission, not processing.
func (h *MemoryHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	req, ok := decodeJSON[IngestRequest](r, w)
	if !ok {
		return
	}

	err := h.ingest.Enqueue(&models.IngestEvent{
		UserID:   userID,
		ThreadID: req.ThreadID,
		Messages: req.Messages,
	})
	if err != nil {
		if errors.Is(err, domain.ErrQueueFull) {
			respondError(w, "ingest_backlog", "ingest queue is full", http.StatusServiceUnavailable)
			return
		}
		respondDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// Prune handles POST /v1/maintenance/prune: the explicit TIER3 decay sweep.
func (h *MemoryHandler) Prune(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	req, ok := decodeJSON[PruneRequest](r, w)
	if !ok {
		return
	}
	days := req.OlderThanDays
	if days <= 0 {
		days = 30
	}

	pruned, err := h.ingest.PruneTier3(r.Context(), userID, time.Now().AddDate(0, 0, -days))
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, map[string]int{"pruned": pruned}, http.StatusOK)
}
