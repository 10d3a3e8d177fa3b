package server

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/halcyon-ai/mnemo/internal/domain"
	"github.com/halcyon-ai/mnemo/internal/domain/models"
	"github.com/halcyon-ai/mnemo/internal/memory/research"
	"github.com/halcyon-ai/mnemo/internal/ports"
)

const (
	webSearchResultLimit = 8
	webSearchContext     = 3 // turns of conversation forwarded to the composer

	composePrompt = "Answer the question using the search results below. " +
		"Resolve references like \"it\" or \"which one\" against the conversation. " +
		"Name the source host for each claim you take from a result."
)

// WebSearchHandler serves POST /v1/web-search: fetch, then compose an answer
// with the last few conversation turns so anaphora resolve.
type WebSearchHandler struct {
	backend ports.SearchBackend
	llm     ports.LLMService
	model   string
}

func NewWebSearchHandler(backend ports.SearchBackend, llm ports.LLMService, model string) *WebSearchHandler {
	return &WebSearchHandler{backend: backend, llm: llm, model: model}
}

// WebSearchRequest is the search body. ConversationContext carries at most
// the last three turns; older ones are dropped server-side.
type WebSearchRequest struct {
	Query               string               `json:"query"`
	ThreadID            string               `json:"threadId,omitempty"`
	ConversationContext []models.ChatMessage `json:"conversationContext,omitempty"`
}

// WebSearchResponse carries the composed answer plus the raw results it was
// built from. Degraded marks a failed composition; the results still stand.
type WebSearchResponse struct {
	Answer   string               `json:"answer"`
	Results  []ports.SearchResult `json:"results"`
	Degraded bool                 `json:"degraded,omitempty"`
}

func (h *WebSearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[WebSearchRequest](r, w)
	if !ok {
		return
	}

	query := strings.TrimSpace(req.Query)
	if query == "" {
		respondDomainError(w, fmt.Errorf("%w: query is required", domain.ErrInvalidInput))
		return
	}
	if h.backend == nil {
		respondDomainError(w, domain.ErrSearchUnavailable)
		return
	}

	results, err := h.backend.Search(r.Context(), query, research.FreshnessHint(query), webSearchResultLimit)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	if results == nil {
		results = []ports.SearchResult{}
	}

	answer, err := h.compose(r, query, req.ConversationContext, results)
	if err != nil {
		slog.Warn("web-search compose failed", "query", query, "error", err)
		respondJSON(w, WebSearchResponse{Results: results, Degraded: true}, http.StatusOK)
		return
	}

	respondJSON(w, WebSearchResponse{Answer: answer, Results: results}, http.StatusOK)
}

// compose asks the model for a final answer grounded in the results. The
// conversation context rides along as real chat turns so follow-ups like
// "which one is most critical" resolve against the prior assistant message.
func (h *WebSearchHandler) compose(r *http.Request, query string, context []models.ChatMessage, results []ports.SearchResult) (string, error) {
	if h.llm == nil || len(results) == 0 {
		return "", domain.ErrProviderUnavailable
	}

	if len(context) > webSearchContext {
		context = context[len(context)-webSearchContext:]
	}

	var sb strings.Builder
	sb.WriteString("Question: " + query + "\n\nSearch results:\n")
	for i, res := range results {
		fmt.Fprintf(&sb, "%d. [%s", i+1, res.Host)
		if res.Date != "" {
			fmt.Fprintf(&sb, ", %s", res.Date)
		}
		fmt.Fprintf(&sb, "] %s", res.Title)
		if res.Snippet != "" {
			fmt.Fprintf(&sb, " - %s", res.Snippet)
		}
		sb.WriteString("\n")
	}

	messages := make([]models.ChatMessage, 0, len(context)+2)
	messages = append(messages, models.ChatMessage{Role: models.RoleSystem, Content: composePrompt})
	messages = append(messages, context...)
	messages = append(messages, models.ChatMessage{Role: models.RoleUser, Content: sb.String()})

	return h.llm.Complete(r.Context(), ports.ChatRequest{
		Model:    h.model,
		Messages: messages,
	})
}
