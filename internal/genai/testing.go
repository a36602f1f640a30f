package genai

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"sync"
)

// FakeGenerator is a scripted Generator for tests. Each call consumes the
// next Script entry; when the script is exhausted the last entry repeats.
// Safe for concurrent use.
type FakeGenerator struct {
	mu     sync.Mutex
	script []FakeCompletion
	calls  [][]Message
}

// FakeCompletion is one scripted generator response.
type FakeCompletion struct {
	Text string
	Err  error
}

// NewFakeGenerator creates a FakeGenerator with the given script.
func NewFakeGenerator(script ...FakeCompletion) *FakeGenerator {
	return &FakeGenerator{script: script}
}

// Complete implements Generator.
func (f *FakeGenerator) Complete(_ context.Context, msgs []Message, _ Options) (string, error) {
	return f.next(msgs)
}

// Stream implements Generator, emitting the scripted text as a single chunk.
func (f *FakeGenerator) Stream(ctx context.Context, msgs []Message, _ Options, fn StreamFunc) (string, error) {
	text, err := f.next(msgs)
	if err != nil {
		return "", err
	}
	if fn != nil {
		if err := fn(ctx, text); err != nil {
			return "", err
		}
	}
	return text, nil
}

// Calls returns the message sets passed to the generator, in call order.
func (f *FakeGenerator) Calls() [][]Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]Message, len(f.calls))
	copy(out, f.calls)
	return out
}

// CallCount returns how many completions have been requested.
func (f *FakeGenerator) CallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *FakeGenerator) next(msgs []Message) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, msgs)
	if len(f.script) == 0 {
		return "", fmt.Errorf("%w: fake generator has no script", ErrUnavailable)
	}
	idx := len(f.calls) - 1
	if idx >= len(f.script) {
		idx = len(f.script) - 1
	}
	entry := f.script[idx]
	return entry.Text, entry.Err
}

// FakeEmbedder is a deterministic Embedder for tests. Texts registered via
// SetVector return that exact vector; everything else gets a unit vector
// derived from an FNV hash of the text, so identical texts always embed
// identically and distinct texts are very unlikely to collide.
type FakeEmbedder struct {
	mu     sync.Mutex
	fixed  map[string][]float32
	Err    error // When non-nil, every call fails with this error.
	Dim    int   // Vector width; defaults to 8.
	embeds int
}

// NewFakeEmbedder creates a FakeEmbedder.
func NewFakeEmbedder() *FakeEmbedder {
	return &FakeEmbedder{fixed: make(map[string][]float32), Dim: 8}
}

// SetVector registers an exact vector for a text.
func (f *FakeEmbedder) SetVector(text string, vec []float32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fixed[text] = vec
}

// EmbedCount returns how many texts have been embedded.
func (f *FakeEmbedder) EmbedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.embeds
}

// Embed implements Embedder.
func (f *FakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := f.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch implements Embedder.
func (f *FakeEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.Err != nil {
		return nil, f.Err
	}

	out := make([][]float32, len(texts))
	for i, t := range texts {
		f.embeds++
		if vec, ok := f.fixed[t]; ok {
			out[i] = vec
			continue
		}
		out[i] = hashVector(t, f.Dim)
	}
	return out, nil
}

// hashVector derives a deterministic unit vector from text.
func hashVector(text string, dim int) []float32 {
	if dim <= 0 {
		dim = 8
	}
	vec := make([]float32, dim)
	h := fnv.New64a()
	_, _ = h.Write([]byte(text))
	seed := h.Sum64()

	var norm float64
	for i := range vec {
		seed = seed*6364136223846793005 + 1442695040888963407
		v := float32(int64(seed>>32)) / float32(math.MaxInt32)
		vec[i] = v
		norm += float64(v * v)
	}
	if norm > 0 {
		scale := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= scale
		}
	}
	return vec
}
