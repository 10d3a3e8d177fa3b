package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/halcyon-ai/mnemo/internal/config"
	"github.com/halcyon-ai/mnemo/internal/llm"
	"github.com/spf13/cobra"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

var (
	cfg       *config.Config
	llmClient *llm.Client
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "mnemo",
		Short: "Mnemo - AI chat gateway with persistent memory",
		Long: `Mnemo is an AI chat gateway backed by a multi-tier memory service.
The gateway streams provider responses over SSE and assembles per-request
context from recalled memories, conversation summaries, and the user profile.
The memory service owns all memory writes and serves recall, profile, and
web-search requests.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			setupLogging()

			llmClient = llm.NewClient(
				cfg.LLM.URL,
				cfg.LLM.APIKey,
				cfg.LLM.MaxTokens,
				cfg.LLM.Temperature,
			)

			return nil
		},
	}

	rootCmd.AddCommand(
		gatewayCmd(),
		memoryCmd(),
		allCmd(),
		configCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// setupLogging installs the process-wide slog handler. MNEMO_LOG_LEVEL picks
// the level, MNEMO_LOG_FORMAT=text switches off JSON output for local runs.
func setupLogging() {
	level := slog.LevelInfo
	switch strings.ToLower(os.Getenv("MNEMO_LOG_LEVEL")) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.ToLower(os.Getenv("MNEMO_LOG_FORMAT")) == "text" {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}

// configCmd shows current configuration
func configCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println("Current configuration:")
			fmt.Println()

			fmt.Println("Gateway:")
			fmt.Printf("  Listen:             %s:%d\n", cfg.Gateway.Host, cfg.Gateway.Port)
			fmt.Printf("  Keep Last Turns:    %d\n", cfg.Gateway.KeepLastTurns)
			fmt.Printf("  Max Input Tokens:   %d\n", cfg.Gateway.MaxInputTokens)
			fmt.Printf("  Recall Deadline:    %dms (max %dms)\n", cfg.Gateway.RecallDeadlineMs, cfg.Gateway.RecallMaxMs)
			fmt.Printf("  Research Injection: %s\n", boolStatus(cfg.Gateway.ResearchInjection))
			fmt.Println()

			fmt.Println("Memory:")
			fmt.Printf("  Listen:          %s:%d\n", cfg.Memory.Host, cfg.Memory.Port)
			fmt.Printf("  Audit Cadence:   %d msgs / %d tokens / %dms\n",
				cfg.Memory.AuditMsgThreshold, cfg.Memory.AuditTokenThreshold, cfg.Memory.AuditTimeMs)
			fmt.Printf("  Workers:         %d (queue %d)\n", cfg.Memory.WorkerCount, cfg.Memory.WorkQueueSize)
			fmt.Printf("  Research Sidecar: %s\n", boolStatus(cfg.Memory.ResearchEnabled))
			fmt.Println()

			fmt.Println("LLM:")
			fmt.Printf("  URL:         %s\n", cfg.LLM.URL)
			fmt.Printf("  Models:      %s / %s / %s\n", cfg.LLM.DefaultModel, cfg.LLM.HighComplexityModel, cfg.LLM.VisionModel)
			fmt.Printf("  Max Tokens:  %d\n", cfg.LLM.MaxTokens)
			fmt.Printf("  Temperature: %.2f\n", cfg.LLM.Temperature)
			fmt.Printf("  API Key:     %s\n", maskSecret(cfg.LLM.APIKey))
			fmt.Println()

			fmt.Println("Embedding:")
			fmt.Printf("  URL:        %s\n", cfg.Embedding.URL)
			fmt.Printf("  Model:      %s (%d dims)\n", cfg.Embedding.Model, cfg.Embedding.Dimensions)
			fmt.Printf("  API Key:    %s\n", maskSecret(cfg.Embedding.APIKey))
			fmt.Println()

			fmt.Println("Database:")
			fmt.Printf("  PostgreSQL: %s\n", maskSecret(cfg.Database.PostgresURL))
			fmt.Println()

			fmt.Println("Cache Bus:")
			fmt.Printf("  Redis:    %s\n", cfg.Bus.Addr)
			fmt.Printf("  Password: %s\n", maskSecret(cfg.Bus.Password))
			fmt.Printf("  Status:   %s\n", boolStatus(cfg.Bus.Addr != ""))
			fmt.Println()

			fmt.Println("Environment variables:")
			fmt.Println("  MNEMO_GATEWAY_HOST, MNEMO_GATEWAY_PORT, MNEMO_CORS_ORIGINS")
			fmt.Println("  CONTEXT_KEEP_LAST_TURNS, CONTEXT_MAX_INPUT_TOKENS")
			fmt.Println("  RECALL_DEADLINE_DEFAULT_MS, RECALL_DEADLINE_MAX_MS")
			fmt.Println("  FEATURE_RESEARCH_INJECTION, RESEARCH_SIDECAR_ENABLED")
			fmt.Println("  MNEMO_MEMORY_HOST, MNEMO_MEMORY_PORT, MNEMO_GATEWAY_URL")
			fmt.Println("  MEMORY_AUDIT_MSG_THRESHOLD, MEMORY_AUDIT_TOKEN_THRESHOLD, MEMORY_AUDIT_TIME_MS")
			fmt.Println("  MNEMO_LLM_URL, MNEMO_LLM_API_KEY, DEFAULT_MODEL, HIGH_COMPLEXITY_MODEL")
			fmt.Println("  MNEMO_EMBEDDING_URL, MNEMO_EMBEDDING_API_KEY, MNEMO_EMBEDDING_MODEL")
			fmt.Println("  MNEMO_POSTGRES_URL, MNEMO_REDIS_ADDR, MNEMO_REDIS_PASSWORD")

			return nil
		},
	}
}

// versionCmd shows version information
func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("Mnemo %s\n", version)
			fmt.Printf("  Commit:     %s\n", commit)
			fmt.Printf("  Build Date: %s\n", buildDate)
		},
	}
}

func maskSecret(s string) string {
	if s == "" {
		return "(not set)"
	}
	if len(s) <= 8 {
		return "****"
	}
	return s[:4] + "****" + s[len(s)-4:]
}

func boolStatus(b bool) string {
	if b {
		return "enabled"
	}
	return "disabled"
}
