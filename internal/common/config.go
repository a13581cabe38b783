package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration
type Config struct {
	Environment string         `toml:"environment"` // "development" or "production"
	Server      ServerConfig   `toml:"server"`
	Storage     StorageConfig  `toml:"storage"`
	Queue       QueueConfig    `toml:"queue"`
	Logging     LoggingConfig  `toml:"logging"`
	LLM         LLMConfig      `toml:"llm"`
	Pipeline    PipelineConfig `toml:"pipeline"`
	Images      ImagesConfig   `toml:"images"`
	Credits     CreditsConfig  `toml:"credits"`
}

type ServerConfig struct {
	Port int    `toml:"port"`
	Host string `toml:"host"`
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path"`             // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"` // Delete database on startup for clean test runs
}

type QueueConfig struct {
	PollInterval      string `toml:"poll_interval"`      // e.g., "1s" - how often workers poll for messages
	Concurrency       int    `toml:"concurrency"`        // Number of concurrent workers (jobs in flight)
	VisibilityTimeout string `toml:"visibility_timeout"` // e.g., "5m" - message visibility timeout for redelivery
	MaxReceive        int    `toml:"max_receive"`        // Max times a message can be received before abandonment
	QueueName         string `toml:"queue_name"`         // Queue name prefix in Badger
	StallInterval     string `toml:"stall_interval"`     // Heartbeat age before a running job counts as stalled
	MaxStalls         int    `toml:"max_stalls"`         // Stall resurrections before the job is abandoned
}

type LoggingConfig struct {
	Level  string   `toml:"level"`  // "debug", "info", "warn", "error"
	Output []string `toml:"output"` // "stdout", "file"
}

// LLMConfig selects and configures the generation provider.
type LLMConfig struct {
	Provider string       `toml:"provider"` // "gemini" (default) or "claude"
	Gemini   GeminiConfig `toml:"gemini"`
	Claude   ClaudeConfig `toml:"claude"`
}

type GeminiConfig struct {
	APIKey        string  `toml:"api_key"`        // Falls back to GEMINI_API_KEY
	ResearchModel string  `toml:"research_model"` // Model for grounded research calls
	ContentModel  string  `toml:"content_model"`  // Model for article generation calls
	Temperature   float32 `toml:"temperature"`
	TopP          float32 `toml:"top_p"`
	TopK          int32   `toml:"top_k"`
	MaxTokens     int32   `toml:"max_tokens"`
	Timeout       string  `toml:"timeout"`
}

type ClaudeConfig struct {
	APIKey      string  `toml:"api_key"` // Falls back to ANTHROPIC_API_KEY
	Model       string  `toml:"model"`
	Temperature float32 `toml:"temperature"`
	MaxTokens   int     `toml:"max_tokens"`
	Timeout     string  `toml:"timeout"`
}

// PipelineConfig tunes the two-phase generation pipeline.
type PipelineConfig struct {
	MaxConcurrentGeneration int    `toml:"max_concurrent_generation"` // Phase B fan-out cap per job
	RequestTimeout          string `toml:"request_timeout"`           // Per-task wall-clock timeout
	RateLimitWindow         string `toml:"rate_limit_window"`         // Token bucket window
	RateLimitMax            int    `toml:"rate_limit_max"`            // Max model calls per window
	ResearchBatchSize       int    `toml:"research_batch_size"`       // Scenarios requested from the research call
	ResearchMinScenarios    int    `toml:"research_min_scenarios"`    // Minimum surviving scenarios for Phase A success
	WordCountFloor          int    `toml:"word_count_floor"`          // Acceptance floor for article length
	PhaseAAttempts          int    `toml:"phase_a_attempts"`
	PhaseBAttempts          int    `toml:"phase_b_attempts"`
	DebugArtifactDir        string `toml:"debug_artifact_dir"` // Where unparseable LLM output is captured
}

type ImagesConfig struct {
	APIKey  string `toml:"api_key"` // Falls back to PEXELS_API_KEY
	BaseURL string `toml:"base_url"`
	PerJob  int    `toml:"per_job"`  // Scenarios per job that get images
	PerCall int    `toml:"per_call"` // Images fetched per scenario
}

type CreditsConfig struct {
	CostPerArticle int `toml:"cost_per_article"` // Credits charged per planned article
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 8080,
			Host: "localhost",
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path:           "./data/infini8seo",
				ResetOnStartup: false,
			},
		},
		Queue: QueueConfig{
			PollInterval:      "1s",
			Concurrency:       1,
			VisibilityTimeout: "5m",
			MaxReceive:        3,
			QueueName:         "content_jobs",
			StallInterval:     "30s",
			MaxStalls:         2,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: []string{"stdout"},
		},
		LLM: LLMConfig{
			Provider: "gemini",
			Gemini: GeminiConfig{
				ResearchModel: "gemini-2.5-pro",
				ContentModel:  "gemini-2.5-flash",
				Temperature:   0.8,
				TopP:          0.95,
				TopK:          40,
				MaxTokens:     65536,
				Timeout:       "5m",
			},
			Claude: ClaudeConfig{
				Model:       "claude-sonnet-4-20250514",
				Temperature: 0.8,
				MaxTokens:   8192,
				Timeout:     "5m",
			},
		},
		Pipeline: PipelineConfig{
			MaxConcurrentGeneration: 10,
			RequestTimeout:          "5m",
			RateLimitWindow:         "60s",
			RateLimitMax:            10,
			ResearchBatchSize:       30,
			ResearchMinScenarios:    15,
			WordCountFloor:          1000,
			PhaseAAttempts:          3,
			PhaseBAttempts:          3,
			DebugArtifactDir:        "./data/debug",
		},
		Images: ImagesConfig{
			BaseURL: "https://api.pexels.com/v1",
			PerJob:  2,
			PerCall: 2,
		},
		Credits: CreditsConfig{
			CostPerArticle: 10,
		},
	}
}

// LoadConfig loads configuration from TOML files with environment overrides.
// Later files override earlier ones; missing files are skipped with a warning
// from the caller. Environment variables override everything.
func LoadConfig(paths ...string) (*Config, error) {
	config := DefaultConfig()

	for _, path := range paths {
		if path == "" {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// applyEnvOverrides applies INFINI8SEO_-prefixed environment variables plus
// the conventional provider key variables.
func applyEnvOverrides(config *Config) {
	if v := os.Getenv("INFINI8SEO_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			config.Server.Port = port
		}
	}
	if v := os.Getenv("INFINI8SEO_SERVER_HOST"); v != "" {
		config.Server.Host = v
	}
	if v := os.Getenv("INFINI8SEO_STORAGE_PATH"); v != "" {
		config.Storage.Badger.Path = v
	}
	if v := os.Getenv("INFINI8SEO_LOG_LEVEL"); v != "" {
		config.Logging.Level = v
	}
	if v := os.Getenv("INFINI8SEO_LLM_PROVIDER"); v != "" {
		config.LLM.Provider = v
	}
	if v := os.Getenv("MAX_CONCURRENT_CONTENT_GENERATION"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			config.Pipeline.MaxConcurrentGeneration = n
		}
	}
	if v := os.Getenv("REQUEST_TIMEOUT_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil && ms > 0 {
			config.Pipeline.RequestTimeout = (time.Duration(ms) * time.Millisecond).String()
		}
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" && config.LLM.Gemini.APIKey == "" {
		config.LLM.Gemini.APIKey = v
	}
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" && config.LLM.Claude.APIKey == "" {
		config.LLM.Claude.APIKey = v
	}
	if v := os.Getenv("PEXELS_API_KEY"); v != "" && config.Images.APIKey == "" {
		config.Images.APIKey = v
	}
}

// Validate checks configuration invariants that would otherwise surface as
// confusing runtime failures.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	provider := strings.ToLower(c.LLM.Provider)
	if provider != "gemini" && provider != "claude" {
		return fmt.Errorf("invalid llm provider %q (expected \"gemini\" or \"claude\")", c.LLM.Provider)
	}
	if c.Pipeline.MaxConcurrentGeneration <= 0 {
		return fmt.Errorf("pipeline.max_concurrent_generation must be positive")
	}
	if c.Pipeline.RateLimitMax <= 0 {
		return fmt.Errorf("pipeline.rate_limit_max must be positive")
	}
	if c.Pipeline.ResearchMinScenarios <= 0 {
		return fmt.Errorf("pipeline.research_min_scenarios must be positive")
	}
	if c.Pipeline.ResearchBatchSize < c.Pipeline.ResearchMinScenarios {
		return fmt.Errorf("pipeline.research_batch_size (%d) below research_min_scenarios (%d)",
			c.Pipeline.ResearchBatchSize, c.Pipeline.ResearchMinScenarios)
	}
	for _, d := range []struct {
		name  string
		value string
	}{
		{"queue.poll_interval", c.Queue.PollInterval},
		{"queue.visibility_timeout", c.Queue.VisibilityTimeout},
		{"queue.stall_interval", c.Queue.StallInterval},
		{"pipeline.request_timeout", c.Pipeline.RequestTimeout},
		{"pipeline.rate_limit_window", c.Pipeline.RateLimitWindow},
	} {
		if _, err := time.ParseDuration(d.value); err != nil {
			return fmt.Errorf("invalid duration for %s: %q", d.name, d.value)
		}
	}
	return nil
}

// MustDuration parses a duration string that Validate has already accepted.
func MustDuration(s string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		panic(fmt.Sprintf("invalid duration %q: %v", s, err))
	}
	return d
}
