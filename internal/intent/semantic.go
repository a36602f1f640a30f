package intent

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/lumora-ai/lumora/internal/genai"
)

// canonicalExamples are the per-intent phrases whose embeddings anchor the
// semantic tier.
var canonicalExamples = map[Type][]string{
	TypeGreeting: {
		"hello there",
		"hi, how are you",
		"good morning",
	},
	TypeFarewell: {
		"goodbye",
		"see you later",
		"that's all, bye",
	},
	TypeGratitude: {
		"thank you so much",
		"thanks, that helped",
	},
	TypeHelp: {
		"what can you help me with",
		"i need assistance",
		"how does this work",
	},
	TypeChitChat: {
		"how's your day going",
		"tell me a joke",
		"what do you think about the weather",
	},
	TypeKnowledgeQuery: {
		"what is your refund policy",
		"how do i reset my password",
		"when will my order arrive",
		"where can i find my invoice",
	},
}

// ExampleIndex holds the canonical example embeddings. It is built once at
// process startup, shared read-mostly across requests, and recomputed only
// through an explicit Reload.
type ExampleIndex struct {
	embedder genai.Embedder

	mu      sync.RWMutex
	vectors map[Type][][]float32
	ready   bool
}

// NewExampleIndex creates an unbuilt index. Call Reload before first use;
// Best on an unbuilt index reports inconclusive.
func NewExampleIndex(embedder genai.Embedder) (*ExampleIndex, error) {
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	return &ExampleIndex{embedder: embedder}, nil
}

// Reload (re)computes every canonical embedding. On failure the previous
// index, if any, stays in place.
func (x *ExampleIndex) Reload(ctx context.Context) error {
	var (
		order []Type
		texts []string
	)
	for _, t := range KnownTypes() {
		for _, example := range canonicalExamples[t] {
			order = append(order, t)
			texts = append(texts, example)
		}
	}

	vecs, err := x.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("embedding canonical examples: %w", err)
	}

	vectors := make(map[Type][][]float32, len(canonicalExamples))
	for i, t := range order {
		vectors[t] = append(vectors[t], vecs[i])
	}

	x.mu.Lock()
	x.vectors = vectors
	x.ready = true
	x.mu.Unlock()
	return nil
}

// Ready reports whether the index has been built.
func (x *ExampleIndex) Ready() bool {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.ready
}

// Best returns the intent whose canonical examples are most similar to the
// query vector, with the winning similarity. ok is false when the index is
// not built.
func (x *ExampleIndex) Best(queryVec []float32) (Type, float64, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	if !x.ready {
		return TypeOutOfScope, 0, false
	}

	bestType := TypeOutOfScope
	bestSim := -1.0
	for _, t := range KnownTypes() {
		for _, vec := range x.vectors[t] {
			if sim := cosineSimilarity(queryVec, vec); sim > bestSim {
				bestSim = sim
				bestType = t
			}
		}
	}
	if bestSim < 0 {
		return TypeOutOfScope, 0, false
	}
	return bestType, bestSim, true
}

// cosineSimilarity computes the cosine similarity of two vectors, 0 when
// dimensions mismatch or either vector is zero.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
