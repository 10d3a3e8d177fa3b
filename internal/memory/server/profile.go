package server

import (
	"net/http"

	"github.com/halcyon-ai/mnemo/internal/adapters/http/middleware"
	"github.com/halcyon-ai/mnemo/internal/domain"
	"github.com/halcyon-ai/mnemo/internal/domain/models"
	"github.com/halcyon-ai/mnemo/internal/ports"
)

// ProfileHandler serves the derived profile and recent thread summaries.
type ProfileHandler struct {
	profiles  ports.ProfileService
	summaries ports.SummaryService
}

func NewProfileHandler(profiles ports.ProfileService, summaries ports.SummaryService) *ProfileHandler {
	return &ProfileHandler{profiles: profiles, summaries: summaries}
}

// Get handles GET /v1/profile. An unknown user gets an empty profile, not an
// error.
func (h *ProfileHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	profile, err := h.profiles.Get(r.Context(), userID)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, profile, http.StatusOK)
}

// ConversationsResponse is the recent-summaries envelope.
type ConversationsResponse struct {
	Conversations []*models.ThreadSummary `json:"conversations"`
	Total         int                     `json:"total"`
}

// Conversations handles GET /v1/conversations: the most recent thread
// summaries, optionally excluding the active thread.
func (h *ProfileHandler) Conversations(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if param := r.URL.Query().Get("userId"); param != "" && param != userID {
		respondDomainError(w, domain.ErrForbidden)
		return
	}

	limit := parseIntQuery(r, "limit", 5)
	if limit < 1 || limit > 50 {
		limit = 5
	}

	summaries, err := h.summaries.ListRecent(r.Context(), userID, r.URL.Query().Get("excludeThreadId"), limit)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	if summaries == nil {
		summaries = []*models.ThreadSummary{}
	}
	respondJSON(w, ConversationsResponse{Conversations: summaries, Total: len(summaries)}, http.StatusOK)
}
