package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
)

// Config holds all configuration for Mnemo.
type Config struct {
	Gateway   GatewayConfig
	Memory    MemoryConfig
	LLM       LLMConfig
	Embedding EmbeddingConfig
	Search    SearchConfig
	Database  DatabaseConfig
	Bus       BusConfig
}

// GatewayConfig holds the gateway service and context-assembly settings.
type GatewayConfig struct {
	Host string
	Port int

	KeepLastTurns  int // history truncation, in turns
	MaxInputTokens int // global input token cap (chars/4 estimate)

	RecallDeadlineMs  int // default recall budget
	RecallMaxMs       int // hard cap on caller-supplied deadlines
	ProfileDeadlineMs int

	ResearchInjection bool // FEATURE_RESEARCH_INJECTION
	PollIntervalMs    int  // capsule poll cadence
	PollWindowMs      int  // early window length

	MemoryURL string // base URL of the memory service

	CORSOrigins []string
}

// MemoryConfig holds the memory service and ingest cadence settings.
type MemoryConfig struct {
	Host string
	Port int

	AuditMsgThreshold   int   // unseen messages before an audit fires
	AuditTokenThreshold int   // unseen token estimate before an audit fires
	AuditTimeMs         int64 // elapsed ms before an audit fires

	QualityThreshold float64 // minimum message score kept by an audit

	WorkerCount   int
	WorkQueueSize int

	ResearchEnabled bool // RESEARCH_SIDECAR_ENABLED
	ReviewTrigger   bool // FEATURE_MEMORY_REVIEW_TRIGGER

	GatewayURL string // for GET /v1/threads/{id}/messages
}

// LLMConfig holds provider identifiers and the OpenAI-compatible endpoint.
type LLMConfig struct {
	URL                 string
	APIKey              string
	DefaultModel        string
	HighComplexityModel string
	VisionModel         string
	MaxTokens           int
	Temperature         float64
}

// EmbeddingConfig holds the embedding API configuration.
type EmbeddingConfig struct {
	URL        string
	APIKey     string
	Model      string
	Dimensions int
}

// SearchConfig holds the research sidecar's search backends.
type SearchConfig struct {
	PrimaryURL string
	NewsURL    string
	APIKey     string
}

// DatabaseConfig holds the PostgreSQL connection.
type DatabaseConfig struct {
	PostgresURL string
}

// BusConfig holds the Redis cache bus connection. An empty address disables
// the bus; the system degrades to running without capsules or caching.
type BusConfig struct {
	Addr     string
	Password string
	DB       int
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Gateway: GatewayConfig{
			Host:              "0.0.0.0",
			Port:              8080,
			KeepLastTurns:     10,
			MaxInputTokens:    16000,
			RecallDeadlineMs:  200,
			RecallMaxMs:       500,
			ProfileDeadlineMs: 30,
			ResearchInjection: true,
			PollIntervalMs:    200,
			PollWindowMs:      3000,
			MemoryURL:         "http://localhost:8081",
			CORSOrigins:       []string{"http://localhost:3000"},
		},
		Memory: MemoryConfig{
			Host:                "0.0.0.0",
			Port:                8081,
			AuditMsgThreshold:   6,
			AuditTokenThreshold: 1500,
			AuditTimeMs:         180000,
			QualityThreshold:    0.3,
			WorkerCount:         4,
			WorkQueueSize:       256,
			ResearchEnabled:     false,
			ReviewTrigger:       true,
			GatewayURL:          "http://localhost:8080",
		},
		LLM: LLMConfig{
			URL:                 "http://localhost:8000/v1",
			DefaultModel:        "mnemo-fast",
			HighComplexityModel: "mnemo-reasoning",
			VisionModel:         "mnemo-vision",
			MaxTokens:           4096,
			Temperature:         0.7,
		},
		Embedding: EmbeddingConfig{
			URL:        "http://localhost:11434/v1",
			Model:      "text-embedding-3-small",
			Dimensions: 1536,
		},
		Search: SearchConfig{},
		Database: DatabaseConfig{
			PostgresURL: "postgres://localhost:5432/mnemo",
		},
		Bus: BusConfig{
			Addr: "localhost:6379",
		},
	}
}

// envString loads a string environment variable into the target pointer if set
func envString(key string, target *string) {
	if v := os.Getenv(key); v != "" {
		*target = v
	}
}

// envInt loads an integer environment variable into the target pointer if set and valid
func envInt(key string, target *int) {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			*target = i
		}
	}
}

func envInt64(key string, target *int64) {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			*target = i
		}
	}
}

func envFloat(key string, target *float64) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*target = f
		}
	}
}

func envBool(key string, target *bool) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*target = b
		}
	}
}

func envStringSlice(key string, target *[]string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, part := range parts {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			*target = result
		}
	}
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	envString("MNEMO_GATEWAY_HOST", &cfg.Gateway.Host)
	envInt("MNEMO_GATEWAY_PORT", &cfg.Gateway.Port)
	envInt("CONTEXT_KEEP_LAST_TURNS", &cfg.Gateway.KeepLastTurns)
	envInt("CONTEXT_MAX_INPUT_TOKENS", &cfg.Gateway.MaxInputTokens)
	envInt("RECALL_DEADLINE_DEFAULT_MS", &cfg.Gateway.RecallDeadlineMs)
	envInt("RECALL_DEADLINE_MAX_MS", &cfg.Gateway.RecallMaxMs)
	envBool("FEATURE_RESEARCH_INJECTION", &cfg.Gateway.ResearchInjection)
	envString("MNEMO_MEMORY_URL", &cfg.Gateway.MemoryURL)
	envStringSlice("MNEMO_CORS_ORIGINS", &cfg.Gateway.CORSOrigins)

	envString("MNEMO_MEMORY_HOST", &cfg.Memory.Host)
	envInt("MNEMO_MEMORY_PORT", &cfg.Memory.Port)
	envInt("MEMORY_AUDIT_MSG_THRESHOLD", &cfg.Memory.AuditMsgThreshold)
	envInt("MEMORY_AUDIT_TOKEN_THRESHOLD", &cfg.Memory.AuditTokenThreshold)
	envInt64("MEMORY_AUDIT_TIME_MS", &cfg.Memory.AuditTimeMs)
	envFloat("MEMORY_QUALITY_THRESHOLD", &cfg.Memory.QualityThreshold)
	envInt("MNEMO_WORKER_COUNT", &cfg.Memory.WorkerCount)
	envInt("MNEMO_WORK_QUEUE_SIZE", &cfg.Memory.WorkQueueSize)
	envBool("RESEARCH_SIDECAR_ENABLED", &cfg.Memory.ResearchEnabled)
	envBool("FEATURE_MEMORY_REVIEW_TRIGGER", &cfg.Memory.ReviewTrigger)
	envString("MNEMO_GATEWAY_URL", &cfg.Memory.GatewayURL)

	envString("MNEMO_LLM_URL", &cfg.LLM.URL)
	envString("MNEMO_LLM_API_KEY", &cfg.LLM.APIKey)
	envString("DEFAULT_MODEL", &cfg.LLM.DefaultModel)
	envString("HIGH_COMPLEXITY_MODEL", &cfg.LLM.HighComplexityModel)
	envString("MNEMO_VISION_MODEL", &cfg.LLM.VisionModel)
	envInt("MNEMO_LLM_MAX_TOKENS", &cfg.LLM.MaxTokens)
	envFloat("MNEMO_LLM_TEMPERATURE", &cfg.LLM.Temperature)

	envString("MNEMO_EMBEDDING_URL", &cfg.Embedding.URL)
	envString("MNEMO_EMBEDDING_API_KEY", &cfg.Embedding.APIKey)
	envString("MNEMO_EMBEDDING_MODEL", &cfg.Embedding.Model)
	envInt("MNEMO_EMBEDDING_DIMENSIONS", &cfg.Embedding.Dimensions)

	envString("MNEMO_SEARCH_URL", &cfg.Search.PrimaryURL)
	envString("MNEMO_SEARCH_NEWS_URL", &cfg.Search.NewsURL)
	envString("MNEMO_SEARCH_API_KEY", &cfg.Search.APIKey)

	envString("MNEMO_POSTGRES_URL", &cfg.Database.PostgresURL)

	envString("MNEMO_REDIS_ADDR", &cfg.Bus.Addr)
	envString("MNEMO_REDIS_PASSWORD", &cfg.Bus.Password)
	envInt("MNEMO_REDIS_DB", &cfg.Bus.DB)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// isValidURL validates that a URL has proper format
func isValidURL(urlStr string) bool {
	u, err := url.Parse(urlStr)
	return err == nil && u.Scheme != "" && u.Host != ""
}

// Validate checks that the configuration has valid values.
func (c *Config) Validate() error {
	var errs []string

	if c.Gateway.Port < 1 || c.Gateway.Port > 65535 {
		errs = append(errs, "gateway port must be between 1 and 65535")
	}
	if c.Memory.Port < 1 || c.Memory.Port > 65535 {
		errs = append(errs, "memory port must be between 1 and 65535")
	}
	if c.Gateway.KeepLastTurns < 1 {
		errs = append(errs, "CONTEXT_KEEP_LAST_TURNS must be at least 1")
	}
	if c.Gateway.MaxInputTokens < 1 {
		errs = append(errs, "CONTEXT_MAX_INPUT_TOKENS must be positive")
	}
	if c.Gateway.RecallDeadlineMs < 0 {
		errs = append(errs, "RECALL_DEADLINE_DEFAULT_MS must not be negative")
	}
	if c.Gateway.RecallDeadlineMs > c.Gateway.RecallMaxMs {
		errs = append(errs, "RECALL_DEADLINE_DEFAULT_MS must not exceed RECALL_DEADLINE_MAX_MS")
	}

	if c.Memory.AuditMsgThreshold < 1 {
		errs = append(errs, "MEMORY_AUDIT_MSG_THRESHOLD must be at least 1")
	}
	if c.Memory.AuditTokenThreshold < 1 {
		errs = append(errs, "MEMORY_AUDIT_TOKEN_THRESHOLD must be at least 1")
	}
	if c.Memory.QualityThreshold < 0 || c.Memory.QualityThreshold > 1 {
		errs = append(errs, "quality threshold must be between 0 and 1")
	}
	if c.Memory.WorkerCount < 1 {
		errs = append(errs, "worker count must be at least 1")
	}
	if c.Memory.WorkQueueSize < 1 {
		errs = append(errs, "work queue size must be at least 1")
	}

	if c.LLM.URL == "" {
		errs = append(errs, "LLM URL is required")
	} else if !isValidURL(c.LLM.URL) {
		errs = append(errs, "LLM URL must be a valid URL")
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		errs = append(errs, "LLM temperature must be between 0 and 2")
	}
	if c.LLM.MaxTokens < 1 {
		errs = append(errs, "LLM max_tokens must be positive")
	}
	if c.LLM.DefaultModel == "" {
		errs = append(errs, "DEFAULT_MODEL is required")
	}

	if c.Embedding.URL != "" {
		if !isValidURL(c.Embedding.URL) {
			errs = append(errs, "embedding URL must be a valid URL")
		}
		if c.Embedding.Dimensions < 1 {
			errs = append(errs, "embedding dimensions must be positive when URL is set")
		}
	}

	if c.Search.PrimaryURL != "" && !isValidURL(c.Search.PrimaryURL) {
		errs = append(errs, "search URL must be a valid URL")
	}

	if c.Database.PostgresURL == "" {
		errs = append(errs, "PostgreSQL URL is required")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}
	return nil
}
