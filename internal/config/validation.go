package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Validate checks the whole configuration and fails fast with a sentinel
// error describing the first problem found.
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	if err := c.validateAI(); err != nil {
		return err
	}
	if err := c.validateStorage(); err != nil {
		return err
	}
	if err := c.validatePipeline(); err != nil {
		return err
	}
	if err := c.validateLearning(); err != nil {
		return err
	}
	return c.Thresholds.Validate()
}

func (c *Config) validateAI() error {
	switch c.Provider {
	case ProviderGemini, ProviderGoogleAI:
		if os.Getenv("GEMINI_API_KEY") == "" {
			return fmt.Errorf("%w: GEMINI_API_KEY is required for provider %q", ErrMissingAPIKey, c.Provider)
		}
	default:
		return fmt.Errorf("%w: unknown provider %q", ErrInvalidModelName, c.Provider)
	}

	if strings.TrimSpace(c.ModelName) == "" {
		return fmt.Errorf("%w: model name must not be empty", ErrInvalidModelName)
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("%w: %v not in [0,2]", ErrInvalidTemperature, c.Temperature)
	}
	if c.MaxTokens < 1 || c.MaxTokens > 65536 {
		return fmt.Errorf("%w: %d not in [1,65536]", ErrInvalidMaxTokens, c.MaxTokens)
	}
	if strings.TrimSpace(c.EmbedderModel) == "" {
		return fmt.Errorf("%w: embedder model must not be empty", ErrInvalidEmbedderModel)
	}
	return nil
}

func (c *Config) validateStorage() error {
	if strings.TrimSpace(c.PostgresHost) == "" {
		return fmt.Errorf("%w: host must not be empty", ErrInvalidPostgresHost)
	}
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: %d not in [1,65535]", ErrInvalidPostgresPort, c.PostgresPort)
	}
	if strings.TrimSpace(c.PostgresDBName) == "" {
		return fmt.Errorf("%w: database name must not be empty", ErrInvalidPostgresDBName)
	}
	return nil
}

func (c *Config) validatePipeline() error {
	if c.Pipeline.RetryBudget < 0 || c.Pipeline.RetryBudget > 10 {
		return fmt.Errorf("%w: %d not in [0,10]", ErrInvalidRetryBudget, c.Pipeline.RetryBudget)
	}
	if c.Pipeline.RequestDeadline < time.Second || c.Pipeline.RequestDeadline > 10*time.Minute {
		return fmt.Errorf("%w: %v not in [1s,10m]", ErrInvalidDeadline, c.Pipeline.RequestDeadline)
	}
	if c.Pipeline.RetrievalTopK < 1 || c.Pipeline.RetrievalTopK > 50 {
		return fmt.Errorf("%w: %d not in [1,50]", ErrInvalidTopK, c.Pipeline.RetrievalTopK)
	}
	return nil
}

func (c *Config) validateLearning() error {
	if c.Learning.TriggerEvery < 1 || c.Learning.TriggerEvery > 100 {
		return fmt.Errorf("%w: trigger_every %d not in [1,100]", ErrInvalidLearningTrigger, c.Learning.TriggerEvery)
	}
	if c.Learning.MinOccurrences < 1 {
		return fmt.Errorf("%w: min_occurrences %d must be positive", ErrInvalidLearningTrigger, c.Learning.MinOccurrences)
	}
	if c.Learning.Window < time.Hour {
		return fmt.Errorf("%w: window %v shorter than 1h", ErrInvalidLearningTrigger, c.Learning.Window)
	}
	if c.Learning.BatchInterval < time.Minute {
		return fmt.Errorf("%w: batch_interval %v shorter than 1m", ErrInvalidLearningTrigger, c.Learning.BatchInterval)
	}
	return nil
}

// Validate checks every threshold gate is within [0,1].
func (t Thresholds) Validate() error {
	checks := []struct {
		name  string
		value float64
	}{
		{"pattern_confidence", t.PatternConfidence},
		{"semantic_confidence", t.SemanticConfidence},
		{"llm_confidence", t.LLMConfidence},
		{"similarity", t.Similarity},
		{"validation_confidence", t.ValidationConfidence},
	}
	for _, c := range checks {
		if c.value < 0 || c.value > 1 {
			return fmt.Errorf("%w: %s=%v not in [0,1]", ErrInvalidThreshold, c.name, c.value)
		}
	}
	return nil
}
