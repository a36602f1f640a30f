package genai

import (
	"context"
	"fmt"
	"strings"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	googlesdk "google.golang.org/genai"
)

// EmbeddingDimension is the vector width stored in pgvector. The Gemini
// embedding models emit wider vectors natively and truncate to this via
// OutputDimensionality; the db/migrations schema must match.
const EmbeddingDimension int32 = 768

// Client is the Genkit-backed Generator implementation.
type Client struct {
	g     *genkit.Genkit
	model string // provider-qualified, e.g. "googleai/gemini-2.5-flash"
}

// NewClient creates a Generator backed by the given Genkit instance and
// provider-qualified model name.
func NewClient(g *genkit.Genkit, model string) (*Client, error) {
	if g == nil {
		return nil, fmt.Errorf("genkit instance is required")
	}
	if strings.TrimSpace(model) == "" {
		return nil, fmt.Errorf("model name is required")
	}
	return &Client{g: g, model: model}, nil
}

// Complete implements Generator.
func (c *Client) Complete(ctx context.Context, msgs []Message, opts Options) (string, error) {
	return c.generate(ctx, msgs, opts, nil)
}

// Stream implements Generator. Chunks are forwarded in the order Genkit
// delivers them, which is generation order.
func (c *Client) Stream(ctx context.Context, msgs []Message, opts Options, fn StreamFunc) (string, error) {
	return c.generate(ctx, msgs, opts, fn)
}

func (c *Client) generate(ctx context.Context, msgs []Message, opts Options, fn StreamFunc) (string, error) {
	genOpts := []ai.GenerateOption{
		ai.WithModelName(c.model),
	}

	system, rest := splitSystem(msgs)
	if system != "" {
		genOpts = append(genOpts, ai.WithSystem(system))
	}
	genOpts = append(genOpts, ai.WithMessages(toGenkitMessages(rest)...))

	if cfg := generationConfig(opts); cfg != nil {
		genOpts = append(genOpts, ai.WithConfig(cfg))
	}

	if fn != nil {
		genOpts = append(genOpts, ai.WithStreaming(func(ctx context.Context, chunk *ai.ModelResponseChunk) error {
			return fn(ctx, chunk.Text())
		}))
	}

	resp, err := genkit.Generate(ctx, c.g, genOpts...)
	if err != nil {
		return "", Classify(fmt.Errorf("generate: %w", err))
	}

	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%w: empty completion", ErrMalformedOutput)
	}
	return text, nil
}

// generationConfig maps Options onto the Google SDK generation config.
// Returns nil when every option is zero so backend defaults apply.
func generationConfig(opts Options) *googlesdk.GenerateContentConfig {
	if opts.Temperature == 0 && opts.MaxTokens == 0 {
		return nil
	}
	cfg := &googlesdk.GenerateContentConfig{}
	if opts.Temperature != 0 {
		cfg.Temperature = googlesdk.Ptr(opts.Temperature)
	}
	if opts.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(opts.MaxTokens) // #nosec G115 -- validated by config
	}
	return cfg
}

// splitSystem extracts the concatenated system text and the remaining
// conversation messages.
func splitSystem(msgs []Message) (string, []Message) {
	var system []string
	rest := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		if m.Role == RoleSystem {
			system = append(system, m.Text)
			continue
		}
		rest = append(rest, m)
	}
	return strings.Join(system, "\n\n"), rest
}

func toGenkitMessages(msgs []Message) []*ai.Message {
	out := make([]*ai.Message, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case RoleModel:
			out = append(out, ai.NewModelMessage(ai.NewTextPart(m.Text)))
		default:
			out = append(out, ai.NewUserMessage(ai.NewTextPart(m.Text)))
		}
	}
	return out
}

// GenkitEmbedder adapts a Genkit ai.Embedder to the Embedder interface,
// truncating vectors to EmbeddingDimension.
type GenkitEmbedder struct {
	embedder ai.Embedder
}

// NewGenkitEmbedder wraps a Genkit embedder.
func NewGenkitEmbedder(embedder ai.Embedder) (*GenkitEmbedder, error) {
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	return &GenkitEmbedder{embedder: embedder}, nil
}

// Embed implements Embedder.
func (e *GenkitEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch implements Embedder.
func (e *GenkitEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	docs := make([]*ai.Document, len(texts))
	for i, t := range texts {
		docs[i] = ai.DocumentFromText(t, nil)
	}

	dim := EmbeddingDimension
	resp, err := e.embedder.Embed(ctx, &ai.EmbedRequest{
		Input:   docs,
		Options: &googlesdk.EmbedContentConfig{OutputDimensionality: &dim},
	})
	if err != nil {
		return nil, Classify(fmt.Errorf("embedding batch of %d: %w", len(texts), err))
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("%w: got %d embeddings for %d inputs",
			ErrMalformedOutput, len(resp.Embeddings), len(texts))
	}

	vecs := make([][]float32, len(texts))
	for i, emb := range resp.Embeddings {
		if len(emb.Embedding) == 0 {
			return nil, fmt.Errorf("%w: empty embedding at index %d", ErrMalformedOutput, i)
		}
		vecs[i] = emb.Embedding
	}
	return vecs, nil
}
