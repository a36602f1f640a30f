package config

import (
	"context"
	"fmt"
	"sync"
)

// Thresholds are the tunable numeric gates governing classifier and retriever
// strictness. All values live in [0,1].
type Thresholds struct {
	// PatternConfidence gates the classifier's regex tier.
	PatternConfidence float64 `mapstructure:"pattern_confidence" json:"pattern_confidence"`

	// SemanticConfidence gates the classifier's embedding-similarity tier.
	SemanticConfidence float64 `mapstructure:"semantic_confidence" json:"semantic_confidence"`

	// LLMConfidence gates the classifier's LLM fallback tier.
	LLMConfidence float64 `mapstructure:"llm_confidence" json:"llm_confidence"`

	// Similarity is the minimum similarity for retrieved knowledge chunks.
	Similarity float64 `mapstructure:"similarity" json:"similarity"`

	// ValidationConfidence is the floor below which a generated response is
	// rejected regardless of criteria.
	ValidationConfidence float64 `mapstructure:"validation_confidence" json:"validation_confidence"`
}

// DefaultThresholds are the startup values before any learning-loop
// adjustment has been applied.
var DefaultThresholds = Thresholds{
	PatternConfidence:    0.85,
	SemanticConfidence:   0.75,
	LLMConfidence:        0.6,
	Similarity:           0.7,
	ValidationConfidence: 0.7,
}

// ThresholdPersister persists threshold values across restarts. Implemented
// by the feedback store; nil persistence keeps thresholds in-memory only.
type ThresholdPersister interface {
	LoadThresholds(ctx context.Context) (Thresholds, bool, error)
	SaveThresholds(ctx context.Context, t Thresholds) error
}

// Store is the process-wide owner of the live threshold values.
//
// Reads take a consistent Snapshot per request: components must call
// Snapshot once at the start of a turn and use only that copy, so a
// mid-request adjustment can never split a single turn across two
// configurations. Mutation happens only through Adjust, which serializes
// writers and writes through to the persister.
type Store struct {
	mu        sync.RWMutex
	current   Thresholds
	persister ThresholdPersister
}

// NewStore creates a threshold store seeded with initial values.
// persister may be nil for tests.
func NewStore(initial Thresholds, persister ThresholdPersister) *Store {
	return &Store{
		current:   initial,
		persister: persister,
	}
}

// LoadPersisted replaces the seed values with persisted ones, if any exist.
// Called once at startup before the store is shared.
func (s *Store) LoadPersisted(ctx context.Context) error {
	if s.persister == nil {
		return nil
	}
	t, ok, err := s.persister.LoadThresholds(ctx)
	if err != nil {
		return fmt.Errorf("loading persisted thresholds: %w", err)
	}
	if !ok {
		return nil
	}
	s.mu.Lock()
	s.current = t
	s.mu.Unlock()
	return nil
}

// Snapshot returns a copy of the current thresholds. The copy is stable for
// the lifetime of the request that took it.
func (s *Store) Snapshot() Thresholds {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Adjust applies fn to the current thresholds under the writer lock, clamps
// every gate to [0,1], and writes the result through to the persister.
// Only the learning loop and explicit config updates call Adjust.
func (s *Store) Adjust(ctx context.Context, fn func(Thresholds) Thresholds) (Thresholds, error) {
	s.mu.Lock()
	next := clampThresholds(fn(s.current))
	s.current = next
	s.mu.Unlock()

	if s.persister != nil {
		if err := s.persister.SaveThresholds(ctx, next); err != nil {
			return next, fmt.Errorf("persisting thresholds: %w", err)
		}
	}
	return next, nil
}

func clampThresholds(t Thresholds) Thresholds {
	t.PatternConfidence = clamp01(t.PatternConfidence)
	t.SemanticConfidence = clamp01(t.SemanticConfidence)
	t.LLMConfidence = clamp01(t.LLMConfidence)
	t.Similarity = clamp01(t.Similarity)
	t.ValidationConfidence = clamp01(t.ValidationConfidence)
	return t
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
