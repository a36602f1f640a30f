// Package genai defines the interfaces Lumora uses to talk to its text
// generation and embedding backends, together with the resilience layer
// (retry with backoff, circuit breaker, proactive rate limiting) that every
// call passes through.
//
// Components depend on the Generator and Embedder interfaces declared here,
// never on a concrete SDK. The production implementation is Genkit-backed
// (client.go); tests use the fakes in testing.go.
package genai

import "context"

// Role identifies the author of a message.
type Role string

const (
	RoleSystem Role = "system"
	RoleUser   Role = "user"
	RoleModel  Role = "model"
)

// Message is one turn of a model conversation.
type Message struct {
	Role Role
	Text string
}

// Options tunes a single generation call. Zero values fall back to the
// backend's configured defaults.
type Options struct {
	Temperature float32
	MaxTokens   int
}

// StreamFunc receives ordered text fragments during streaming generation.
// Returning an error aborts the stream.
type StreamFunc func(ctx context.Context, chunk string) error

// Generator produces text completions. Implementations must return errors
// classified by this package's taxonomy (ErrRateLimited, ErrUnavailable,
// ErrMalformedOutput) so callers can pick fallback behavior.
type Generator interface {
	// Complete runs a blocking completion and returns the full text.
	Complete(ctx context.Context, msgs []Message, opts Options) (string, error)

	// Stream runs a completion, invoking fn for each fragment strictly in
	// generation order, and returns the full accumulated text.
	Stream(ctx context.Context, msgs []Message, opts Options, fn StreamFunc) (string, error)
}

// Embedder produces vector embeddings for text.
type Embedder interface {
	// Embed returns the embedding vector for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch returns one vector per input text, in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// System is a convenience constructor for a system message.
func System(text string) Message { return Message{Role: RoleSystem, Text: text} }

// User is a convenience constructor for a user message.
func User(text string) Message { return Message{Role: RoleUser, Text: text} }

// Model is a convenience constructor for a model message.
func Model(text string) Message { return Message{Role: RoleModel, Text: text} }
