package config

import (
	"errors"
	"strings"
	"testing"
	"time"
)

// validConfig returns a configuration that passes Validate, for tests to
// perturb one field at a time.
func validConfig() *Config {
	return &Config{
		Provider:      ProviderGemini,
		ModelName:     "gemini-2.5-flash",
		Temperature:   0.7,
		MaxTokens:     2048,
		EmbedderModel: DefaultGeminiEmbedderModel,

		PostgresHost:    "localhost",
		PostgresPort:    5432,
		PostgresUser:    "lumora",
		PostgresDBName:  "lumora",
		PostgresSSLMode: "disable",

		Thresholds: DefaultThresholds,
		Pipeline: PipelineConfig{
			RetryBudget:     2,
			RequestDeadline: time.Minute,
			RetrievalTopK:   5,
		},
		Learning: LearningConfig{
			TriggerEvery:   5,
			MinOccurrences: 3,
			Window:         7 * 24 * time.Hour,
			BatchInterval:  7 * 24 * time.Hour,
		},
	}
}

func TestValidate(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "test-key")

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{
			name:   "valid config",
			mutate: func(*Config) {},
		},
		{
			name:    "unknown provider",
			mutate:  func(c *Config) { c.Provider = "acme" },
			wantErr: ErrInvalidModelName,
		},
		{
			name:    "empty model name",
			mutate:  func(c *Config) { c.ModelName = "  " },
			wantErr: ErrInvalidModelName,
		},
		{
			name:    "temperature too high",
			mutate:  func(c *Config) { c.Temperature = 2.5 },
			wantErr: ErrInvalidTemperature,
		},
		{
			name:    "max tokens zero",
			mutate:  func(c *Config) { c.MaxTokens = 0 },
			wantErr: ErrInvalidMaxTokens,
		},
		{
			name:    "empty embedder model",
			mutate:  func(c *Config) { c.EmbedderModel = "" },
			wantErr: ErrInvalidEmbedderModel,
		},
		{
			name:    "empty postgres host",
			mutate:  func(c *Config) { c.PostgresHost = "" },
			wantErr: ErrInvalidPostgresHost,
		},
		{
			name:    "postgres port out of range",
			mutate:  func(c *Config) { c.PostgresPort = 70000 },
			wantErr: ErrInvalidPostgresPort,
		},
		{
			name:    "empty database name",
			mutate:  func(c *Config) { c.PostgresDBName = "" },
			wantErr: ErrInvalidPostgresDBName,
		},
		{
			name:    "negative retry budget",
			mutate:  func(c *Config) { c.Pipeline.RetryBudget = -1 },
			wantErr: ErrInvalidRetryBudget,
		},
		{
			name:    "deadline too short",
			mutate:  func(c *Config) { c.Pipeline.RequestDeadline = 100 * time.Millisecond },
			wantErr: ErrInvalidDeadline,
		},
		{
			name:    "top-k zero",
			mutate:  func(c *Config) { c.Pipeline.RetrievalTopK = 0 },
			wantErr: ErrInvalidTopK,
		},
		{
			name:    "trigger cadence zero",
			mutate:  func(c *Config) { c.Learning.TriggerEvery = 0 },
			wantErr: ErrInvalidLearningTrigger,
		},
		{
			name:    "threshold out of range",
			mutate:  func(c *Config) { c.Thresholds.Similarity = 2 },
			wantErr: ErrInvalidThreshold,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("Validate() = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateNilConfig(t *testing.T) {
	t.Parallel()

	var cfg *Config
	if err := cfg.Validate(); !errors.Is(err, ErrConfigNil) {
		t.Errorf("Validate() = %v, want ErrConfigNil", err)
	}
}

func TestMaskSecret(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		secret string
		want   string
	}{
		{"empty", "", ""},
		{"short fully masked", "hunter2", maskedValue},
		{"exactly eight fully masked", "12345678", maskedValue},
		{"long keeps edges", "my_long_secret_key_123", "my<" + maskedValue + ">23"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := maskSecret(tt.secret); got != tt.want {
				t.Errorf("maskSecret(%q) = %q, want %q", tt.secret, got, tt.want)
			}
		})
	}
}

func TestMarshalJSONMasksPassword(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.PostgresPassword = "supersecretpassword"

	data, err := cfg.MarshalJSON()
	if err != nil {
		t.Fatalf("MarshalJSON: %v", err)
	}
	if strings.Contains(string(data), "supersecretpassword") {
		t.Error("password leaked in JSON output")
	}
}

func TestStringMasksPassword(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.PostgresPassword = "anothersecretvalue"

	if strings.Contains(cfg.String(), "anothersecretvalue") {
		t.Error("password leaked in String output")
	}
}

func TestFullModelName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		model string
		want  string
	}{
		{"gemini-2.5-flash", "googleai/gemini-2.5-flash"},
		{"googleai/gemini-2.5-pro", "googleai/gemini-2.5-pro"},
	}
	for _, tt := range tests {
		cfg := &Config{Provider: ProviderGemini, ModelName: tt.model}
		if got := cfg.FullModelName(); got != tt.want {
			t.Errorf("FullModelName(%q) = %q, want %q", tt.model, got, tt.want)
		}
	}
}

func TestDSN(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.PostgresPassword = "pw"
	want := "postgres://lumora:pw@localhost:5432/lumora?sslmode=disable"
	if got := cfg.DSN(); got != want {
		t.Errorf("DSN() = %q, want %q", got, want)
	}
}
