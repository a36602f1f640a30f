package intent

import (
	"context"
	"fmt"

	"github.com/lumora-ai/lumora/internal/config"
	"github.com/lumora-ai/lumora/internal/genai"
	"github.com/lumora-ai/lumora/internal/log"
)

// Classifier maps raw text to an Intent using the three-tier hybrid.
//
// Classifier is safe for concurrent use; the mutable canonical-example
// index is guarded internally.
type Classifier struct {
	rules       []PatternRule
	index       *ExampleIndex
	embedder    genai.Embedder
	generator   genai.Generator
	llmFallback bool
	logger      log.Logger
}

// ClassifierConfig bundles the classifier's dependencies.
type ClassifierConfig struct {
	// Rules override DefaultPatterns when non-nil.
	Rules []PatternRule

	// Index is the canonical-example embedding index, built at startup.
	Index *ExampleIndex

	// Embedder embeds the input for the semantic tier.
	Embedder genai.Embedder

	// Generator drives the LLM fallback tier.
	Generator genai.Generator

	// LLMFallback toggles the third tier.
	LLMFallback bool

	Logger log.Logger
}

// NewClassifier creates a Classifier.
func NewClassifier(cfg ClassifierConfig) (*Classifier, error) {
	if cfg.Index == nil {
		return nil, fmt.Errorf("example index is required")
	}
	if cfg.Embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if cfg.Generator == nil {
		return nil, fmt.Errorf("generator is required")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	rules := cfg.Rules
	if rules == nil {
		rules = DefaultPatterns()
	}

	return &Classifier{
		rules:       rules,
		index:       cfg.Index,
		embedder:    cfg.Embedder,
		generator:   cfg.Generator,
		llmFallback: cfg.LLMFallback,
		logger:      cfg.Logger,
	}, nil
}

// DisablePattern turns off the pattern rule(s) for one intent type.
// Intended for startup configuration, before the classifier is shared.
func (c *Classifier) DisablePattern(t Type) {
	for i := range c.rules {
		if c.rules[i].Intent == t {
			c.rules[i].Enabled = false
		}
	}
}

// Classify maps text to an Intent. The thresholds are the caller's
// per-request snapshot.
//
// Classify never returns an error. Each tier's failure, backend failures
// included, means "inconclusive" and falls through; when every tier is
// inconclusive the result is TypeOutOfScope with confidence 0.
func (c *Classifier) Classify(ctx context.Context, text string, th config.Thresholds) Intent {
	normalized := normalize(text)
	if normalized == "" {
		return Intent{Type: TypeOutOfScope, Confidence: 0, Method: MethodPattern}
	}

	// Tier 1: pattern matching.
	if result, ok := matchPatterns(c.rules, normalized, th.PatternConfidence); ok {
		c.logger.Debug("intent classified by pattern",
			"intent", result.Type, "confidence", result.Confidence)
		return result
	}

	// Tier 2: semantic similarity against canonical examples.
	if result, ok := c.classifySemantic(ctx, normalized, th.SemanticConfidence); ok {
		c.logger.Debug("intent classified semantically",
			"intent", result.Type, "confidence", result.Confidence)
		return result
	}

	// Tier 3: LLM fallback, if enabled.
	if c.llmFallback {
		if result, ok := classifyWithLLM(ctx, c.generator, normalized); ok {
			if result.Confidence >= th.LLMConfidence {
				c.logger.Debug("intent classified by llm",
					"intent", result.Type, "confidence", result.Confidence)
				return result
			}
			c.logger.Debug("llm classification below threshold",
				"intent", result.Type,
				"confidence", result.Confidence,
				"threshold", th.LLMConfidence)
		}
	}

	return Intent{Type: TypeOutOfScope, Confidence: 0, Method: MethodLLM}
}

// classifySemantic embeds the input and scores it against the canonical
// index. Embedding failure is inconclusive, not an error.
func (c *Classifier) classifySemantic(ctx context.Context, normalized string, threshold float64) (Intent, bool) {
	vec, err := c.embedder.Embed(ctx, normalized)
	if err != nil {
		c.logger.Debug("semantic tier embedding failed (falling through)", "error", err)
		return Intent{}, false
	}

	t, sim, ok := c.index.Best(vec)
	if !ok || sim < threshold {
		return Intent{}, false
	}
	return Intent{Type: t, Confidence: sim, Method: MethodSemantic}, true
}
