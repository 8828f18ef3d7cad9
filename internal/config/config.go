// Package config provides application configuration with multi-source
// priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. Config file (./config.yaml)
//  3. Default values
//
// Main configuration categories:
//   - Model: Ollama host, model identifier, generation limits
//   - Retrieval: chunking, top-k, sufficiency threshold
//   - Limits: input/history/output caps, per-session request rate
//   - Server: listen port, CORS, proxy trust
//   - Export: knowledge exporter source and crawl settings
//
// Error handling uses sentinel errors so callers can check categories
// with errors.Is() and wrap with fmt.Errorf("%w: details", ErrXxx).
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/viper"
)

var (
	// ErrInvalidModelID indicates the model identifier is empty.
	ErrInvalidModelID = errors.New("invalid model id")

	// ErrInvalidChunking indicates chunk size/overlap are inconsistent.
	ErrInvalidChunking = errors.New("invalid chunking")

	// ErrInvalidTopK indicates the retrieval top-k is out of range.
	ErrInvalidTopK = errors.New("invalid top_k")

	// ErrInvalidThreshold indicates the sufficiency threshold is negative.
	ErrInvalidThreshold = errors.New("invalid min top score")

	// ErrInvalidLimit indicates a character/turn/token cap is out of range.
	ErrInvalidLimit = errors.New("invalid limit")

	// ErrInvalidRate indicates the per-session request rate is out of range.
	ErrInvalidRate = errors.New("invalid rate limit")

	// ErrInvalidTimeout indicates the generation timeout is out of range.
	ErrInvalidTimeout = errors.New("invalid generation timeout")

	// ErrMissingKnowledgePath indicates the corpus path is not set.
	ErrMissingKnowledgePath = errors.New("missing knowledge path")
)

// Config stores the application configuration.
type Config struct {
	// Model runtime
	ModelID    string `mapstructure:"model_id" json:"model_id"`       // Ollama model identifier (e.g. "qwen2.5:1.5b-instruct")
	OllamaHost string `mapstructure:"ollama_host" json:"ollama_host"` // Base URL of the local Ollama daemon

	// Knowledge base
	SummaryPath   string `mapstructure:"summary_path" json:"summary_path"`     // Optional personal-summary text file
	KnowledgePath string `mapstructure:"knowledge_path" json:"knowledge_path"` // Required JSONL corpus

	// Request limits
	MaxInputChars          int `mapstructure:"max_input_chars" json:"max_input_chars"`
	MaxHistoryTurns        int `mapstructure:"max_history_turns" json:"max_history_turns"`
	MaxHistoryMessageChars int `mapstructure:"max_history_message_chars" json:"max_history_message_chars"`
	MaxOutputChars         int `mapstructure:"max_output_chars" json:"max_output_chars"`
	MaxNewTokens           int `mapstructure:"max_new_tokens" json:"max_new_tokens"`

	// Per-session sliding window (window is fixed at one minute)
	RateLimitPerMinute int `mapstructure:"max_rate_limit_per_minute" json:"max_rate_limit_per_minute"`

	GenerationTimeoutSeconds int `mapstructure:"generation_timeout_seconds" json:"generation_timeout_seconds"`

	// Retrieval
	TopK              int     `mapstructure:"top_k" json:"top_k"`
	MinTopScore       float64 `mapstructure:"min_top_score" json:"min_top_score"`
	ChunkWords        int     `mapstructure:"chunk_words" json:"chunk_words"`
	ChunkOverlapWords int     `mapstructure:"chunk_overlap_words" json:"chunk_overlap_words"`

	// HTTP server
	Port        int      `mapstructure:"port" json:"port"`
	CORSOrigins []string `mapstructure:"cors_origins" json:"cors_origins"`
	TrustProxy  bool     `mapstructure:"trust_proxy" json:"trust_proxy"` // Trust X-Real-IP/X-Forwarded-For (set true behind reverse proxy)
	RateBurst   int      `mapstructure:"rate_burst" json:"rate_burst"`   // Global per-IP token bucket burst (middleware layer)

	// Logging
	LogLevel string `mapstructure:"log_level" json:"log_level"`
	LogJSON  bool   `mapstructure:"log_json" json:"log_json"`

	// Exporter (offline knowledge export)
	Export ExportConfig `mapstructure:"export" json:"export"`

	// Tracing (optional OTLP exporter)
	Tracing TracingConfig `mapstructure:"tracing" json:"tracing"`
}

// ExportConfig configures the offline knowledge exporter.
type ExportConfig struct {
	HTMLDir     string `mapstructure:"html_dir" json:"html_dir"`       // Directory of rendered HTML pages (primary source)
	BaseURL     string `mapstructure:"base_url" json:"base_url"`       // Site root for the live-crawl fallback
	OutputPath  string `mapstructure:"output_path" json:"output_path"` // JSONL destination
	Parallelism int    `mapstructure:"parallelism" json:"parallelism"`
	DelayMS     int    `mapstructure:"delay_ms" json:"delay_ms"`
	TimeoutMS   int    `mapstructure:"timeout_ms" json:"timeout_ms"`
}

// TracingConfig configures the optional OTLP trace exporter.
type TracingConfig struct {
	Enabled     bool   `mapstructure:"enabled" json:"enabled"`
	Endpoint    string `mapstructure:"endpoint" json:"endpoint"` // OTLP HTTP endpoint (host:port)
	Environment string `mapstructure:"environment" json:"environment"`
	ServiceName string `mapstructure:"service_name" json:"service_name"`
}

// Load loads configuration.
// Priority: environment variables > configuration file > default values.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	setDefaults(v)
	bindEnvVariables(v)

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is not an error, defaults apply
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using defaults")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets all default configuration values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("model_id", "qwen2.5:1.5b-instruct")
	v.SetDefault("ollama_host", "http://localhost:11434")

	v.SetDefault("summary_path", "me/summary.txt")
	v.SetDefault("knowledge_path", "knowledge/site_text.jsonl")

	v.SetDefault("max_input_chars", 1800)
	v.SetDefault("max_history_turns", 14)
	v.SetDefault("max_history_message_chars", 800)
	v.SetDefault("max_output_chars", 1400)
	v.SetDefault("max_new_tokens", 220)

	v.SetDefault("max_rate_limit_per_minute", 10)
	v.SetDefault("generation_timeout_seconds", 60)

	v.SetDefault("top_k", 5)
	v.SetDefault("min_top_score", 0.6)
	v.SetDefault("chunk_words", 170)
	v.SetDefault("chunk_overlap_words", 45)

	v.SetDefault("port", 7860)
	v.SetDefault("cors_origins", []string{"*"})
	v.SetDefault("trust_proxy", false)
	v.SetDefault("rate_burst", 60)

	v.SetDefault("log_level", "info")
	v.SetDefault("log_json", false)

	v.SetDefault("export.html_dir", "out")
	v.SetDefault("export.output_path", "knowledge/site_text.jsonl")
	v.SetDefault("export.parallelism", 2)
	v.SetDefault("export.delay_ms", 1000)
	v.SetDefault("export.timeout_ms", 30000)

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.endpoint", "localhost:4318")
	v.SetDefault("tracing.environment", "dev")
	v.SetDefault("tracing.service_name", "portfolio-bot")
}

// bindEnvVariables binds the environment variables explicitly. The
// names match the deployment surface, so AutomaticEnv is not used.
func bindEnvVariables(v *viper.Viper) {
	bind := func(key, env string) {
		// BindEnv only fails on an empty key, which cannot happen here
		_ = v.BindEnv(key, env)
	}

	bind("model_id", "MODEL_ID")
	bind("ollama_host", "OLLAMA_HOST")
	bind("summary_path", "SUMMARY_PATH")
	bind("knowledge_path", "KNOWLEDGE_PATH")
	bind("max_input_chars", "MAX_INPUT_CHARS")
	bind("max_history_turns", "MAX_HISTORY_TURNS")
	bind("max_history_message_chars", "MAX_HISTORY_MESSAGE_CHARS")
	bind("max_output_chars", "MAX_OUTPUT_CHARS")
	bind("max_new_tokens", "MAX_NEW_TOKENS")
	bind("max_rate_limit_per_minute", "MAX_RATE_LIMIT_PER_MINUTE")
	bind("generation_timeout_seconds", "GENERATION_TIMEOUT_SECONDS")
	bind("top_k", "TOP_K")
	bind("min_top_score", "MIN_TOP_SCORE")
	bind("chunk_words", "CHUNK_WORDS")
	bind("chunk_overlap_words", "CHUNK_OVERLAP_WORDS")
	bind("port", "PORT")
	bind("cors_origins", "CORS_ORIGINS")
	bind("trust_proxy", "TRUST_PROXY")
	bind("rate_burst", "RATE_BURST")
	bind("log_level", "LOG_LEVEL")
	bind("log_json", "LOG_JSON")
	bind("export.html_dir", "EXPORT_HTML_DIR")
	bind("export.base_url", "EXPORT_BASE_URL")
	bind("export.output_path", "EXPORT_OUTPUT_PATH")
	bind("tracing.enabled", "OTEL_TRACING_ENABLED")
	bind("tracing.endpoint", "OTEL_EXPORTER_ENDPOINT")
	bind("tracing.environment", "OTEL_ENVIRONMENT")
	bind("tracing.service_name", "OTEL_SERVICE_NAME")
}

// Validate checks the configuration and fails fast on the first
// inconsistency.
func (c *Config) Validate() error {
	if c.ModelID == "" {
		return fmt.Errorf("%w: model_id is empty", ErrInvalidModelID)
	}
	if c.KnowledgePath == "" {
		return ErrMissingKnowledgePath
	}
	if c.ChunkWords < 1 {
		return fmt.Errorf("%w: chunk_words must be >= 1, got %d", ErrInvalidChunking, c.ChunkWords)
	}
	if c.ChunkOverlapWords < 0 || c.ChunkOverlapWords > c.ChunkWords {
		return fmt.Errorf("%w: chunk_overlap_words must be within [0, chunk_words], got %d", ErrInvalidChunking, c.ChunkOverlapWords)
	}
	if c.TopK < 1 {
		return fmt.Errorf("%w: top_k must be >= 1, got %d", ErrInvalidTopK, c.TopK)
	}
	if c.MinTopScore < 0 {
		return fmt.Errorf("%w: min_top_score must be >= 0, got %g", ErrInvalidThreshold, c.MinTopScore)
	}
	if c.RateLimitPerMinute < 1 {
		return fmt.Errorf("%w: max_rate_limit_per_minute must be >= 1, got %d", ErrInvalidRate, c.RateLimitPerMinute)
	}
	if c.GenerationTimeoutSeconds < 1 {
		return fmt.Errorf("%w: generation_timeout_seconds must be >= 1, got %d", ErrInvalidTimeout, c.GenerationTimeoutSeconds)
	}
	for name, val := range map[string]int{
		"max_input_chars":           c.MaxInputChars,
		"max_history_turns":         c.MaxHistoryTurns,
		"max_history_message_chars": c.MaxHistoryMessageChars,
		"max_output_chars":          c.MaxOutputChars,
		"max_new_tokens":            c.MaxNewTokens,
	} {
		if val < 1 {
			return fmt.Errorf("%w: %s must be >= 1, got %d", ErrInvalidLimit, name, val)
		}
	}
	return nil
}

// GenerationTimeout returns the generation deadline as a duration.
func (c *Config) GenerationTimeout() time.Duration {
	return time.Duration(c.GenerationTimeoutSeconds) * time.Second
}

// Addr returns the HTTP listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}
