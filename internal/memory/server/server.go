// Package server is the memory service HTTP surface: explicit saves, recall,
// admin CRUD, profile, summaries, web search, and the gateway's ingest
// endpoint. Identity arrives in the x-user-id header.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/halcyon-ai/mnemo/internal/adapters/http/middleware"
	"github.com/halcyon-ai/mnemo/internal/config"
	"github.com/halcyon-ai/mnemo/internal/ports"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const webSearchRateLimit = 30 // per user per hour

type Server struct {
	cfg        *config.Config
	router     *chi.Mux
	httpServer *http.Server

	memories  *MemoryHandler
	profiles  *ProfileHandler
	webSearch *WebSearchHandler
	bus       ports.Bus
}

func NewServer(
	cfg *config.Config,
	ingest ports.IngestService,
	recall ports.RecallService,
	memories ports.MemoryRepository,
	profiles ports.ProfileService,
	summaries ports.SummaryService,
	search ports.SearchBackend,
	llm ports.LLMService,
	bus ports.Bus,
) *Server {
	s := &Server{
		cfg:       cfg,
		memories:  NewMemoryHandler(ingest, recall, memories, cfg.Gateway.RecallDeadlineMs),
		profiles:  NewProfileHandler(profiles, summaries),
		webSearch: NewWebSearchHandler(search, llm, cfg.LLM.DefaultModel),
		bus:       bus,
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
		respondJSON(w, map[string]string{"status": "ok"}, http.StatusOK)
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Use(middleware.Auth)

		r.Post("/memories", s.memories.Create)
		r.Get("/memories", s.memories.List)
		r.Get("/memories/{id}", s.memories.Get)
		r.Put("/memories/{id}", s.memories.Update)
		r.Delete("/memories/{id}", s.memories.Delete)
		r.Get("/recall", s.memories.Recall)

		r.Get("/profile", s.profiles.Get)
		r.Get("/conversations", s.profiles.Conversations)

		r.Post("/ingest", s.memories.Ingest)
		r.Post("/maintenance/prune", s.memories.Prune)

		r.With(middleware.RateLimit(s.bus, "websearch", webSearchRateLimit, time.Hour)).
			Post("/web-search", s.webSearch.Search)
	})

	s.router = r
}

func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Memory.Host, s.cfg.Memory.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	slog.Info("starting memory service", "addr", addr)
	return s.httpServer.ListenAndServe()
}

func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	slog.Info("shutting down memory service")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) Router() *chi.Mux {
	return s.router
}
