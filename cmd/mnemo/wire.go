package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/halcyon-ai/mnemo/internal/adapters/embedding"
	"github.com/halcyon-ai/mnemo/internal/adapters/id"
	"github.com/halcyon-ai/mnemo/internal/adapters/postgres"
	"github.com/halcyon-ai/mnemo/internal/adapters/redisbus"
	"github.com/halcyon-ai/mnemo/internal/adapters/search"
	"github.com/halcyon-ai/mnemo/internal/adapters/vector"
	"github.com/halcyon-ai/mnemo/internal/memory/history"
	"github.com/halcyon-ai/mnemo/internal/memory/ingest"
	"github.com/halcyon-ai/mnemo/internal/memory/profile"
	"github.com/halcyon-ai/mnemo/internal/memory/recall"
	"github.com/halcyon-ai/mnemo/internal/memory/research"
	"github.com/halcyon-ai/mnemo/internal/memory/server"
	"github.com/halcyon-ai/mnemo/internal/memory/summary"
	"github.com/halcyon-ai/mnemo/internal/ports"
)

// connectPostgres opens the shared connection pool and applies migrations.
func connectPostgres(ctx context.Context) (*pgxpool.Pool, error) {
	if cfg.Database.PostgresURL == "" {
		return nil, fmt.Errorf("PostgreSQL is required. Set MNEMO_POSTGRES_URL")
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.Database.PostgresURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create database pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := postgres.Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	slog.Info("database connection established")
	return pool, nil
}

// connectBus builds the Redis cache bus. An empty address returns a nil
// interface and everything downstream degrades to running without it.
func connectBus() ports.Bus {
	if cfg.Bus.Addr == "" {
		slog.Info("cache bus disabled, no Redis address configured")
		return nil
	}
	bus := redisbus.New(redis.NewClient(&redis.Options{
		Addr:     cfg.Bus.Addr,
		Password: cfg.Bus.Password,
		DB:       cfg.Bus.DB,
	}))
	slog.Info("cache bus initialized", "addr", cfg.Bus.Addr)
	return bus
}

// memoryStack bundles the memory service with the background components the
// caller has to start and stop alongside it.
type memoryStack struct {
	server  *server.Server
	ingest  *ingest.Service
	sidecar *research.Sidecar
}

func (m *memoryStack) start(ctx context.Context) {
	m.ingest.Start(ctx)
	if m.sidecar != nil {
		m.sidecar.Start(ctx, 1)
	}
}

// Ingest drains first: audits still in flight may enqueue research jobs,
// so the sidecar must outlive the ingest workers.
func (m *memoryStack) stop() {
	m.ingest.Stop()
	if m.sidecar != nil {
		m.sidecar.Stop()
	}
}

// buildMemoryStack wires the full memory service: repositories, recall,
// profile and summary services, the ingest pipeline, and the research
// sidecar when enabled.
func buildMemoryStack(pool *pgxpool.Pool, bus ports.Bus) *memoryStack {
	memoryRepo := postgres.NewMemoryRepository(pool)
	auditRepo := postgres.NewAuditRepository(pool)
	profileRepo := postgres.NewProfileRepository(pool)
	summaryRepo := postgres.NewSummaryRepository(pool)
	txManager := postgres.NewTransactionManager(pool)

	idGen := id.New()
	embedder := embedding.NewClient(
		cfg.Embedding.URL,
		cfg.Embedding.APIKey,
		cfg.Embedding.Model,
		cfg.Embedding.Dimensions,
	)
	vectors := vector.NewPgvectorIndex(pool)

	profileSvc := profile.NewService(memoryRepo, profileRepo, bus)
	// Chat history stays behind the gateway's API; the memory service never
	// reads the messages table directly.
	threadHistory := history.NewHTTPClient(cfg.Memory.GatewayURL)
	summarySvc := summary.NewService(summaryRepo, threadHistory, llmClient, cfg.LLM.DefaultModel)
	recallSvc := recall.NewService(memoryRepo, vectors, embedder)
	searchBackend := search.NewDuckDuckGoBackend(cfg.Search.PrimaryURL, cfg.Search.NewsURL, cfg.Search.APIKey)

	var sidecar *research.Sidecar
	var researchSvc ports.ResearchService
	if cfg.Memory.ResearchEnabled && bus != nil {
		sidecar = research.NewSidecar(bus, searchBackend, profileSvc)
		researchSvc = sidecar
		slog.Info("research sidecar enabled")
	}

	auditor := ingest.NewAuditor(
		memoryRepo,
		auditRepo,
		txManager,
		idGen,
		embedder,
		vectors,
		researchSvc,
		profileSvc.Invalidate,
		cfg.Memory.QualityThreshold,
	)
	ingestSvc := ingest.NewService(cfg.Memory, auditor)

	return &memoryStack{
		server:  server.NewServer(cfg, ingestSvc, recallSvc, memoryRepo, profileSvc, summarySvc, searchBackend, llmClient, bus),
		ingest:  ingestSvc,
		sidecar: sidecar,
	}
}
