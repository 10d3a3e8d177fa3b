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
	"github.com/halcyon-ai/mnemo/internal/gateway"
	"github.com/spf13/cobra"
)

// allCmd starts the gateway and the memory service in one process
func allCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "all",
		Short: "Start the gateway and memory service together",
		Long: `Start both Mnemo services in a single process.

The gateway still talks to the memory service over HTTP on its configured
port, so the split deployment and the single-process deployment behave the
same way.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAll(cmd.Context())
		},
	}
}

func runAll(ctx context.Context) error {
	slog.Info("starting all services",
		"gateway", fmt.Sprintf("%s:%d", cfg.Gateway.Host, cfg.Gateway.Port),
		"memory", fmt.Sprintf("%s:%d", cfg.Memory.Host, cfg.Memory.Port))

	shutdownTracer := initTracing(ctx, "mnemo")
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

	memClient := gateway.NewMemoryHTTPClient(cfg.Gateway.MemoryURL)
	gw := gateway.NewServer(cfg, memClient, llmClient, postgres.NewMessageRepository(pool), id.New(), bus)

	serverErrors := make(chan error, 2)
	go func() {
		slog.Info("memory service listening", "host", cfg.Memory.Host, "port", cfg.Memory.Port)
		serverErrors <- stack.server.Start()
	}()
	go func() {
		slog.Info("gateway listening", "host", cfg.Gateway.Host, "port", cfg.Gateway.Port)
		serverErrors <- gw.Start()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	var cause error
	select {
	case err := <-serverErrors:
		cause = fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		slog.Info("shutting down", "signal", sig.String())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := gw.Stop(shutdownCtx); err != nil {
		slog.Error("gateway shutdown failed", "error", err)
	}
	if err := stack.server.Stop(shutdownCtx); err != nil {
		slog.Error("memory service shutdown failed", "error", err)
	}
	stack.stop()

	if cause != nil {
		return cause
	}
	slog.Info("all services stopped")
	return nil
}
