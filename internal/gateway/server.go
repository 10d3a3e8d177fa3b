package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/halcyon-ai/mnemo/internal/adapters/http/middleware"
	"github.com/halcyon-ai/mnemo/internal/config"
	"github.com/halcyon-ai/mnemo/internal/domain/models"
	"github.com/halcyon-ai/mnemo/internal/ports"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const ingestBudget = 5 * time.Second

// Server is the gateway HTTP surface: the streaming chat endpoint, the
// artifact gatekeeper, and thread history for the memory service.
type Server struct {
	cfg        *config.Config
	router     *chi.Mux
	httpServer *http.Server

	analyzer  *Analyzer
	corrector *Corrector
	assembler *Assembler
	routes    *Router
	poller    *CapsulePoller
	memory    ports.MemoryClient
	llm       ports.LLMService
	messages  ports.MessageRepository
	ids       ports.IDGenerator
}

func NewServer(
	cfg *config.Config,
	memory ports.MemoryClient,
	llm ports.LLMService,
	messages ports.MessageRepository,
	ids ports.IDGenerator,
	bus ports.Bus,
) *Server {
	s := &Server{
		cfg:       cfg,
		analyzer:  NewAnalyzer(llm, cfg.LLM.DefaultModel),
		corrector: NewCorrector(llm, cfg.LLM.DefaultModel),
		assembler: NewAssembler(memory, cfg.Gateway),
		routes:    NewRouter(cfg.LLM),
		memory:    memory,
		llm:       llm,
		messages:  messages,
		ids:       ids,
	}
	if cfg.Gateway.ResearchInjection && bus != nil {
		s.poller = NewCapsulePoller(bus, cfg.Gateway.PollIntervalMs, cfg.Gateway.PollWindowMs)
	}
	s.setupRouter()
	return s
}

func (s *Server) setupRouter() {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recovery)
	r.Use(middleware.CORS(s.cfg.Gateway.CORSOrigins))
	r.Use(middleware.Metrics)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, map[string]string{"status": "ok"}, http.StatusOK)
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(middleware.Auth)
		r.Post("/v1/chat/stream", s.handleChatStream)
		r.Get("/v1/threads/{id}/messages", s.handleThreadMessages)
		r.Post("/api/artifacts/gatekeeper", s.handleGatekeeper)
	})

	s.router = r
}

// ChatStreamRequest is the streaming chat body.
type ChatStreamRequest struct {
	ThreadID  string               `json:"thread_id"`
	Messages  []models.ChatMessage `json:"messages"`
	Model     string               `json:"model,omitempty"`
	MaxTokens int                  `json:"max_tokens,omitempty"`
}

func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var req ChatStreamRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4*1024*1024)).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.ThreadID == "" || len(req.Messages) == 0 {
		writeError(w, "thread_id and messages are required", http.StatusBadRequest)
		return
	}

	userMsg := ""
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == models.RoleUser {
			userMsg = req.Messages[i].Content
			break
		}
	}
	if userMsg == "" {
		writeError(w, "no user message in request", http.StatusBadRequest)
		return
	}

	sse, ok := newSSEWriter(w)
	if !ok {
		writeError(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	userMsgID := s.persistMessage(r.Context(), userID, req.ThreadID, models.RoleUser, userMsg)

	ctx := r.Context()
	analysis := s.analyzer.Analyze(ctx, userMsg, req.Messages[:len(req.Messages)-1])

	switch analysis.Intent {
	case IntentMemorySave:
		s.streamMemorySave(ctx, sse, userID, req.ThreadID, userMsg, analysis)
		return
	case IntentWebSearch:
		if s.streamWebSearch(ctx, sse, userID, req, userMsg, userMsgID, analysis) {
			return
		}
		// Degraded search falls through to a plain provider turn.
	}

	s.streamProviderTurn(ctx, sse, userID, req, analysis, userMsgID)
}

// streamMemorySave handles the explicit-save fast path without touching the
// provider.
func (s *Server) streamMemorySave(ctx context.Context, sse *sseWriter, userID, threadID, userMsg string, analysis Analysis) {
	content := analysis.SaveContent
	if content == "" {
		content = userMsg
	}

	memory, err := s.memory.Save(ctx, ports.ExplicitSave{
		UserID:   userID,
		ThreadID: threadID,
		Content:  content,
	})

	sse.event("meta", map[string]any{
		"intent":     analysis.Intent,
		"complexity": analysis.Complexity,
	})

	reply := "Okay, I'll remember that."
	if err != nil {
		slog.Error("explicit save failed", "user_id", userID, "error", err)
		reply = "I couldn't save that just now, but I'll keep it in mind for this conversation."
	} else {
		slog.Info("explicit save", "user_id", userID, "memory_id", memory.ID, "tier", memory.Tier)
	}

	sse.event("delta", map[string]string{"content": reply})
	sse.event("done", map[string]string{"finish_reason": "stop"})
	s.persistMessage(ctx, userID, threadID, models.RoleAssistant, reply)
}

// streamWebSearch answers through the memory service's composed web search.
// Returns false when the turn should degrade to a plain provider stream.
func (s *Server) streamWebSearch(ctx context.Context, sse *sseWriter, userID string, req ChatStreamRequest, userMsg, userMsgID string, analysis Analysis) bool {
	query := s.corrector.Correct(ctx, userMsg)

	turns := req.Messages
	if len(turns) > 3 {
		turns = turns[len(turns)-3:]
	}

	answer, err := s.memory.WebSearch(ctx, userID, req.ThreadID, query, turns)
	if err != nil || answer.Degraded || answer.Answer == "" {
		slog.Info("web search degraded to provider turn", "user_id", userID, "error", err)
		return false
	}

	sse.event("meta", map[string]any{
		"intent":     analysis.Intent,
		"complexity": analysis.Complexity,
		"query":      query,
	})
	sse.event("delta", map[string]string{"content": answer.Answer})
	sse.event("done", map[string]string{"finish_reason": "stop"})

	answerID := s.persistMessage(ctx, userID, req.ThreadID, models.RoleAssistant, answer.Answer)
	s.ingestTurn(userID, req.ThreadID, []models.ChatMessage{
		{ID: userMsgID, Role: models.RoleUser, Content: userMsg},
		{ID: answerID, Role: models.RoleAssistant, Content: answer.Answer},
	})
	return true
}

// streamProviderTurn is the main path: assemble, route, stream, inject
// capsules during the early window, post-process.
func (s *Server) streamProviderTurn(ctx context.Context, sse *sseWriter, userID string, req ChatStreamRequest, analysis Analysis, userMsgID string) {
	prompt := s.assembler.Assemble(ctx, userID, req.ThreadID, req.Messages, analysis)
	route := s.routes.Select(analysis, req.Messages, req.Model, req.MaxTokens, prompt)

	sse.event("meta", map[string]any{
		"intent":            analysis.Intent,
		"complexity":        analysis.Complexity,
		"model":             route.Model,
		"max_tokens":        route.MaxTokens,
		"max_tokens_source": route.MaxTokensSource,
		"missing":           prompt.Missing,
	})

	// The capsule watch starts before the provider call so the early window
	// overlaps provider latency.
	var capsules <-chan *models.ResearchCapsule
	stopPoll := func() {}
	if s.poller != nil {
		capsules, stopPoll = s.poller.Watch(ctx, req.ThreadID)
	}
	defer stopPoll()

	deltas, err := s.llm.Stream(ctx, ports.ChatRequest{
		Model:     route.Model,
		Messages:  prompt.Messages,
		MaxTokens: route.MaxTokens,
	})
	if err != nil {
		sse.event("error", map[string]string{"message": "the model is unavailable right now"})
		return
	}

	var accumulated strings.Builder
	finishReason := "stop"
	firstToken := false

	for {
		select {
		case capsule, ok := <-capsules:
			if !ok {
				capsules = nil
				continue
			}
			sse.event("research_capsule", capsule)
		case delta, ok := <-deltas:
			if !ok {
				goto done
			}
			if delta.Err != nil {
				slog.Error("provider stream failed", "user_id", userID, "error", delta.Err)
				sse.event("error", map[string]string{"message": "the model stream was interrupted"})
				return
			}
			if delta.Content != "" {
				if !firstToken {
					firstToken = true
					stopPoll()
				}
				accumulated.WriteString(delta.Content)
				sse.event("delta", map[string]string{"content": delta.Content})
			}
			if delta.FinishReason != "" {
				finishReason = delta.FinishReason
			}
			if delta.Done {
				goto done
			}
		case <-ctx.Done():
			return
		}
	}

done:
	answer := accumulated.String()
	donePayload := map[string]string{"finish_reason": finishReason}
	if analysis.Intent == IntentSimpleMath {
		if canonical := ExtractNumeric(answer); canonical != "" {
			donePayload["canonical_answer"] = canonical
		}
	}
	sse.event("done", donePayload)

	answerID := s.persistMessage(ctx, userID, req.ThreadID, models.RoleAssistant, answer)

	userMsg := ""
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == models.RoleUser {
			userMsg = req.Messages[i].Content
			break
		}
	}
	s.ingestTurn(userID, req.ThreadID, []models.ChatMessage{
		{ID: userMsgID, Role: models.RoleUser, Content: userMsg},
		{ID: answerID, Role: models.RoleAssistant, Content: answer},
	})
}

// ingestTurn hands the completed turn to the memory service, detached from
// the request so client cancellation cannot lose it. Messages carry the ids
// they were persisted under so audit windows can reference stored rows.
// Failures are logged and never surfaced.
func (s *Server) ingestTurn(userID, threadID string, turn []models.ChatMessage) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), ingestBudget)
		defer cancel()

		err := s.memory.IngestTurn(ctx, &models.IngestEvent{
			UserID:   userID,
			ThreadID: threadID,
			Messages: turn,
		})
		if err != nil {
			slog.Warn("ingest turn dropped", "user_id", userID, "thread_id", threadID, "error", err)
		}
	}()
}

// persistMessage stores the turn and returns its id, empty when nothing was
// stored. Downstream audit windows reference these ids.
func (s *Server) persistMessage(ctx context.Context, userID, threadID, role, content string) string {
	if s.messages == nil || content == "" {
		return ""
	}
	msgID := s.ids.MessageID()
	err := s.messages.Create(ctx, &models.ChatMessage{
		ID:        msgID,
		UserID:    userID,
		ThreadID:  threadID,
		Role:      role,
		Content:   content,
		CreatedAt: time.Now(),
	})
	if err != nil {
		slog.Warn("message persist failed", "thread_id", threadID, "role", role, "error", err)
		return ""
	}
	return msgID
}

// ThreadMessagesResponse is the history envelope the memory service pulls.
type ThreadMessagesResponse struct {
	Messages []*models.ChatMessage `json:"messages"`
	Total    int                   `json:"total"`
}

func (s *Server) handleThreadMessages(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	threadID := chi.URLParam(r, "id")

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		fmt.Sscanf(raw, "%d", &limit)
	}
	if limit < 1 || limit > 500 {
		limit = 50
	}

	history, err := s.messages.ListByThread(r.Context(), userID, threadID, limit)
	if err != nil {
		slog.Error("thread history failed", "thread_id", threadID, "error", err)
		writeError(w, "internal server error", http.StatusInternalServerError)
		return
	}
	if history == nil {
		history = []*models.ChatMessage{}
	}
	writeJSON(w, ThreadMessagesResponse{Messages: history, Total: len(history)}, http.StatusOK)
}

func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Gateway.Host, s.cfg.Gateway.Port)

	s.httpServer = &http.Server{
		Addr:        addr,
		Handler:     s.router,
		ReadTimeout: 30 * time.Second,
		// Streams stay open indefinitely.
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	slog.Info("starting gateway", "addr", addr)
	return s.httpServer.ListenAndServe()
}

func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	slog.Info("shutting down gateway")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) Router() *chi.Mux {
	return s.router
}

func writeJSON(w http.ResponseWriter, data any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, map[string]string{"error": message}, status)
}

// sseWriter emits server-sent events with an immediate flush per event.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func newSSEWriter(w http.ResponseWriter) (*sseWriter, bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, false
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	return &sseWriter{w: w, flusher: flusher}, true
}

func (s *sseWriter) event(name string, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return
	}
	fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", name, raw)
	s.flusher.Flush()
}
