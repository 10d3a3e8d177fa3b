package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
)

// memoryCmd starts the memory service
func memoryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "memory",
		Short: "Start the memory service",
		Long: `Start the Mnemo memory service.

The memory service owns all memory writes. It runs the cadence-driven audit
pipeline over ingested turns, serves recall and profile reads, and answers
web-search requests for the gateway.

Required configuration:
  - PostgreSQL with pgvector (MNEMO_POSTGRES_URL)
  - LLM endpoint (MNEMO_LLM_URL)
  - Embedding endpoint (MNEMO_EMBEDDING_URL)

Optional:
  - Redis cache bus (MNEMO_REDIS_ADDR)
  - Research sidecar (RESEARCH_SIDECAR_ENABLED, requires the bus)`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMemory(cmd.Context())
		},
	}
}

func runMemory(ctx context.Context) error {
	slog.Info("starting memory service",
		"listen", fmt.Sprintf("%s:%d", cfg.Memory.Host, cfg.Memory.Port),
		"llm", cfg.LLM.URL,
		"embedding", cfg.Embedding.URL)

	shutdownTracer := initTracing(ctx, "mnemo-memory")
	defer shutdownTracer()

	pool, err := connectPostgres(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	bus := connectBus()
	stack := buildMemoryStack(pool, bus)

	workerCtx, cancelWorkers := context.WithCancel(context.Background())
	defer cancelWorkers()
	stack.start(workerCtx)

	serverErrors := make(chan error, 1)
	go func() {
		slog.Info("memory service listening", "host", cfg.Memory.Host, "port", cfg.Memory.Port)
		serverErrors <- stack.server.Start()
	}()

	return awaitShutdown(serverErrors, stack.server.Stop, stack.stop)
}
