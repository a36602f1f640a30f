// Package config provides application configuration with multi-source
// priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. Config file (~/.lumora/config.yaml)
//  3. Default values
//
// Main categories:
//   - AI: provider, model, temperature, max tokens, embedder model
//   - Storage: PostgreSQL connection
//   - Pipeline: retry budget, request deadline, retrieval top-k
//   - Learning: feedback trigger cadence, insight window, batch schedule
//   - Persona: branding and scope text used by the response generator
//
// Sensitive values (passwords) are masked in MarshalJSON and never logged.
// Load validates fail-fast; see validation.go.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrMissingAPIKey indicates a required API key is missing.
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrInvalidModelName indicates the model name is invalid.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidTemperature indicates the temperature value is out of range.
	ErrInvalidTemperature = errors.New("invalid temperature")

	// ErrInvalidMaxTokens indicates the max tokens value is out of range.
	ErrInvalidMaxTokens = errors.New("invalid max tokens")

	// ErrInvalidEmbedderModel indicates the embedder model is invalid.
	ErrInvalidEmbedderModel = errors.New("invalid embedder model")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is invalid.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the PostgreSQL database name is invalid.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")

	// ErrInvalidRetryBudget indicates the pipeline retry budget is out of range.
	ErrInvalidRetryBudget = errors.New("invalid retry budget")

	// ErrInvalidDeadline indicates the request deadline is out of range.
	ErrInvalidDeadline = errors.New("invalid request deadline")

	// ErrInvalidTopK indicates the retrieval top-k is out of range.
	ErrInvalidTopK = errors.New("invalid retrieval top-k")

	// ErrInvalidThreshold indicates a confidence/similarity threshold is out of [0,1].
	ErrInvalidThreshold = errors.New("invalid threshold")

	// ErrInvalidLearningTrigger indicates the learning trigger cadence is out of range.
	ErrInvalidLearningTrigger = errors.New("invalid learning trigger")
)

// DefaultGeminiEmbedderModel is the default embedder model. It outputs 3072
// dimensions natively but supports truncation to 768, which matches the
// pgvector schema in db/migrations.
const DefaultGeminiEmbedderModel = "gemini-embedding-001"

// AI provider identifiers used in Config.Provider.
const (
	ProviderGemini   = "gemini"
	ProviderGoogleAI = "googleai"
)

// PipelineConfig tunes the response pipeline.
type PipelineConfig struct {
	// RetryBudget is the number of additional generation attempts after the
	// first one fails validation. Small bounded integer.
	RetryBudget int `mapstructure:"retry_budget" json:"retry_budget"`

	// RequestDeadline bounds a whole handle_query call; when exceeded the
	// orchestrator aborts remaining retries and returns the best-so-far.
	RequestDeadline time.Duration `mapstructure:"request_deadline" json:"request_deadline"`

	// RetrievalTopK is the maximum number of knowledge chunks per retrieval.
	RetrievalTopK int `mapstructure:"retrieval_top_k" json:"retrieval_top_k"`
}

// LearningConfig tunes the feedback learning loop.
type LearningConfig struct {
	// TriggerEvery runs a real-time analysis after every Nth negative
	// feedback since the last run.
	TriggerEvery int `mapstructure:"trigger_every" json:"trigger_every"`

	// MinOccurrences is the pattern count required before an insight is
	// considered a knowledge gap worth drafting for.
	MinOccurrences int `mapstructure:"min_occurrences" json:"min_occurrences"`

	// Window is the recency window insights are aggregated over.
	Window time.Duration `mapstructure:"window" json:"window"`

	// BatchInterval is the cadence of the scheduled batch job.
	BatchInterval time.Duration `mapstructure:"batch_interval" json:"batch_interval"`
}

// PersonaConfig carries the branding and scope text composed into the
// generation system prompt.
type PersonaConfig struct {
	BotName  string `mapstructure:"bot_name" json:"bot_name"`
	Tone     string `mapstructure:"tone" json:"tone"`
	Scope    string `mapstructure:"scope" json:"scope"`
	Audience string `mapstructure:"audience" json:"audience"`
}

// Config stores application configuration.
// SECURITY: sensitive fields are masked in MarshalJSON. When adding new
// sensitive fields, update MarshalJSON.
type Config struct {
	// AI provider and model configuration
	Provider    string  `mapstructure:"provider" json:"provider"`
	ModelName   string  `mapstructure:"model_name" json:"model_name"`
	Temperature float32 `mapstructure:"temperature" json:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens" json:"max_tokens"`

	// Embedding configuration
	EmbedderModel string `mapstructure:"embedder_model" json:"embedder_model"`

	// Intent classifier toggles
	LLMFallbackEnabled bool `mapstructure:"llm_fallback_enabled" json:"llm_fallback_enabled"`

	// Storage configuration
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"postgres_password"` // SENSITIVE: masked in MarshalJSON
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`

	// Initial thresholds; the live values are owned by config.Store and may
	// drift under learning-loop adjustment.
	Thresholds Thresholds `mapstructure:"thresholds" json:"thresholds"`

	Pipeline PipelineConfig `mapstructure:"pipeline" json:"pipeline"`
	Learning LearningConfig `mapstructure:"learning" json:"learning"`
	Persona  PersonaConfig  `mapstructure:"persona" json:"persona"`
}

// Load loads configuration.
// Priority: environment variables > configuration file > default values.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".lumora")
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configDir)
	viper.AddConfigPath(".")

	setDefaults()
	bindEnvVariables()

	if err := viper.ReadInConfig(); err != nil {
		// A missing config file is not an error: defaults apply.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using defaults",
			"search_paths", []string{configDir, "."})
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets all default configuration values.
func setDefaults() {
	viper.SetDefault("provider", ProviderGemini)
	viper.SetDefault("model_name", "gemini-2.5-flash")
	viper.SetDefault("temperature", 0.7)
	viper.SetDefault("max_tokens", 2048)
	viper.SetDefault("embedder_model", DefaultGeminiEmbedderModel)
	viper.SetDefault("llm_fallback_enabled", true)

	viper.SetDefault("postgres_host", "localhost")
	viper.SetDefault("postgres_port", 5432)
	viper.SetDefault("postgres_user", "lumora")
	viper.SetDefault("postgres_password", "lumora_dev_password")
	viper.SetDefault("postgres_db_name", "lumora")
	viper.SetDefault("postgres_ssl_mode", "disable")

	viper.SetDefault("thresholds.pattern_confidence", DefaultThresholds.PatternConfidence)
	viper.SetDefault("thresholds.semantic_confidence", DefaultThresholds.SemanticConfidence)
	viper.SetDefault("thresholds.llm_confidence", DefaultThresholds.LLMConfidence)
	viper.SetDefault("thresholds.similarity", DefaultThresholds.Similarity)
	viper.SetDefault("thresholds.validation_confidence", DefaultThresholds.ValidationConfidence)

	viper.SetDefault("pipeline.retry_budget", 2)
	viper.SetDefault("pipeline.request_deadline", 60*time.Second)
	viper.SetDefault("pipeline.retrieval_top_k", 5)

	viper.SetDefault("learning.trigger_every", 5)
	viper.SetDefault("learning.min_occurrences", 3)
	viper.SetDefault("learning.window", 7*24*time.Hour)
	viper.SetDefault("learning.batch_interval", 7*24*time.Hour)

	viper.SetDefault("persona.bot_name", "Lumora")
	viper.SetDefault("persona.tone", "friendly and professional")
	viper.SetDefault("persona.scope", "questions answerable from the tenant knowledge base")
	viper.SetDefault("persona.audience", "customers of the tenant")
}

// bindEnvVariables binds environment variables explicitly.
// GEMINI_API_KEY is read directly by Genkit, not via viper; Validate checks
// its presence based on the selected provider.
func bindEnvVariables() {
	// Hardcoded keys cannot fail to bind; a panic here is a bug, not a
	// runtime condition.
	mustBind := func(key, envVar string) {
		if err := viper.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("provider", "LUMORA_PROVIDER")
	mustBind("model_name", "LUMORA_MODEL_NAME")
	mustBind("postgres_host", "LUMORA_POSTGRES_HOST")
	mustBind("postgres_port", "LUMORA_POSTGRES_PORT")
	mustBind("postgres_user", "LUMORA_POSTGRES_USER")
	mustBind("postgres_password", "LUMORA_POSTGRES_PASSWORD")
	mustBind("postgres_db_name", "LUMORA_POSTGRES_DB")
	mustBind("pipeline.request_deadline", "LUMORA_REQUEST_DEADLINE")
}

// maskedValue is the placeholder for masked sensitive data. Full-width
// blocks avoid accidental substring matches against real secret content.
const maskedValue = "████████"

// maskSecret masks a secret string for safe logging. Secrets of 8 characters
// or fewer are fully masked; longer ones keep the first and last two
// characters for debug utility.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return maskedValue
	}
	return s[:2] + "<" + maskedValue + ">" + s[len(s)-2:]
}

// MarshalJSON implements json.Marshaler with sensitive field masking.
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config
	a := alias(c)
	a.PostgresPassword = maskSecret(a.PostgresPassword)
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}

// String implements Stringer to prevent accidental printing of secrets.
func (c Config) String() string {
	data, err := c.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("Config{error: %v}", err)
	}
	return string(data)
}

// DSN returns the PostgreSQL connection string.
func (c *Config) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.PostgresUser, c.PostgresPassword,
		c.PostgresHost, c.PostgresPort,
		c.PostgresDBName, c.PostgresSSLMode)
}

// FullModelName returns the provider-qualified model name for Genkit, e.g.
// "googleai/gemini-2.5-flash". Names already containing "/" pass through.
func (c *Config) FullModelName() string {
	for _, r := range c.ModelName {
		if r == '/' {
			return c.ModelName
		}
	}
	return ProviderGoogleAI + "/" + c.ModelName
}
