package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/halcyon-ai/mnemo/internal/adapters/id"
	"github.com/halcyon-ai/mnemo/internal/adapters/postgres"
	"github.com/halcyon-ai/mnemo/internal/adapters/tracing"
	"github.com/halcyon-ai/mnemo/internal/gateway"
	"github.com/spf13/cobra"
)

// gatewayCmd starts the chat gateway
func gatewayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "gateway",
		Short: "Start the chat gateway",
		Long: `Start the Mnemo chat gateway.

The gateway serves POST /v1/chat/stream, assembles per-request context from
the memory service, routes requests to the configured models, and streams
provider output over SSE.

Required configuration:
  - PostgreSQL database (MNEMO_POSTGRES_URL)
  - LLM endpoint (MNEMO_LLM_URL)
  - Memory service (MNEMO_MEMORY_URL)

Optional:
  - Redis cache bus for research capsules (MNEMO_REDIS_ADDR)`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGateway(cmd.Context())
		},
	}
}

func runGateway(ctx context.Context) error {
	slog.Info("starting gateway",
		"listen", fmt.Sprintf("%s:%d", cfg.Gateway.Host, cfg.Gateway.Port),
		"llm", cfg.LLM.URL,
		"memory", cfg.Gateway.MemoryURL)

	shutdownTracer := initTracing(ctx, "mnemo-gateway")
	defer shutdownTracer()

	pool, err := connectPostgres(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	bus := connectBus()
	memClient := gateway.NewMemoryHTTPClient(cfg.Gateway.MemoryURL)
	srv := gateway.NewServer(cfg, memClient, llmClient, postgres.NewMessageRepository(pool), id.New(), bus)

	serverErrors := make(chan error, 1)
	go func() {
		slog.Info("gateway listening", "host", cfg.Gateway.Host, "port", cfg.Gateway.Port)
		serverErrors <- srv.Start()
	}()

	return awaitShutdown(serverErrors, srv.Stop, nil)
}

// initTracing initializes OpenTelemetry and returns a shutdown func that is
// always safe to call.
func initTracing(ctx context.Context, service string) func() {
	shutdown, err := tracing.InitTracer(service)
	if err != nil {
		slog.Warn("failed to initialize tracing", "error", err)
		return func() {}
	}
	slog.Info("tracing initialized", "service", service)
	return func() {
		if err := shutdown(ctx); err != nil {
			slog.Error("tracer shutdown failed", "error", err)
		}
	}
}

// awaitShutdown blocks until the server fails or a termination signal
// arrives, then stops the HTTP server and any background workers.
func awaitShutdown(serverErrors <-chan error, stop func(context.Context) error, stopWorkers func()) error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if stopWorkers != nil {
			stopWorkers()
		}
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		slog.Info("shutting down", "signal", sig.String())

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		err := stop(shutdownCtx)
		if stopWorkers != nil {
			stopWorkers()
		}
		if err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		slog.Info("server stopped")
		return nil
	}
}
