// Package respond composes final answers from retrieved context via the
// text-generation backend.
package respond

import (
	"context"
	"fmt"
	"strings"

	"github.com/lumora-ai/lumora/internal/config"
	"github.com/lumora-ai/lumora/internal/genai"
	"github.com/lumora-ai/lumora/internal/log"
)

// Request is one generation request. Context carries retrieved knowledge or
// aggregated action results; empty context is valid input and the generated
// answer must say so rather than fabricate.
type Request struct {
	Query string
	// Context is the concatenated grounding material, empty when retrieval
	// found nothing above threshold.
	Context string
	// History is the prior conversation, oldest first.
	History []genai.Message
	// Adjustment is reviewer guidance merged into a retry attempt. Empty on
	// the first attempt.
	Adjustment string
	// Social marks greetings and other small talk answered from the persona
	// alone, with no knowledge lookup expected.
	Social bool
}

// Generator builds prompts from the persona configuration and calls the
// generation backend.
type Generator struct {
	gen     genai.Generator
	persona config.PersonaConfig
	opts    genai.Options
	logger  log.Logger
}

// New creates a Generator.
func New(gen genai.Generator, persona config.PersonaConfig, opts genai.Options, logger log.Logger) (*Generator, error) {
	if gen == nil {
		return nil, fmt.Errorf("generator backend is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return &Generator{gen: gen, persona: persona, opts: opts, logger: logger}, nil
}

// Generate returns the complete answer text.
func (g *Generator) Generate(ctx context.Context, req Request) (string, error) {
	text, err := g.gen.Complete(ctx, g.messages(req), g.opts)
	if err != nil {
		return "", fmt.Errorf("generating response: %w", err)
	}
	return text, nil
}

// GenerateStream emits the answer incrementally through fn, in generation
// order, and returns the full accumulated text.
func (g *Generator) GenerateStream(ctx context.Context, req Request, fn genai.StreamFunc) (string, error) {
	text, err := g.gen.Stream(ctx, g.messages(req), g.opts, fn)
	if err != nil {
		return "", fmt.Errorf("streaming response: %w", err)
	}
	return text, nil
}

func (g *Generator) messages(req Request) []genai.Message {
	msgs := make([]genai.Message, 0, len(req.History)+2)
	msgs = append(msgs, genai.System(g.systemPrompt()))
	msgs = append(msgs, req.History...)
	msgs = append(msgs, genai.User(g.userPrompt(req)))
	return msgs
}

func (g *Generator) systemPrompt() string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are %s, a support assistant for %s.\n", g.persona.BotName, g.persona.Audience)
	fmt.Fprintf(&b, "Tone: %s.\n", g.persona.Tone)
	fmt.Fprintf(&b, "Scope: %s.\n\n", g.persona.Scope)
	b.WriteString("Answer only from the provided context. ")
	b.WriteString("If the context does not contain the answer, say so plainly and suggest contacting support; never invent facts. ")
	b.WriteString("Keep answers concise and direct.")
	return b.String()
}

func (g *Generator) userPrompt(req Request) string {
	var b strings.Builder
	if req.Social {
		b.WriteString("This is small talk; reply in persona, briefly, without consulting any context.\n\n")
		if req.Adjustment != "" {
			fmt.Fprintf(&b, "Reviewer guidance for this attempt: %s\n\n", req.Adjustment)
		}
		fmt.Fprintf(&b, "Message: %s", req.Query)
		return b.String()
	}
	if req.Context != "" {
		b.WriteString("Context:\n")
		b.WriteString(req.Context)
		b.WriteString("\n\n")
	} else {
		b.WriteString("Context: no relevant information was found in the knowledge base. ")
		b.WriteString("Tell the user you could not find this information.\n\n")
	}
	if req.Adjustment != "" {
		fmt.Fprintf(&b, "Reviewer guidance for this attempt: %s\n\n", req.Adjustment)
	}
	fmt.Fprintf(&b, "Question: %s", req.Query)
	return b.String()
}
