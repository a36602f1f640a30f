package intent

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/lumora-ai/lumora/internal/genai"
)

// llmClassifyPrompt asks the generation backend to classify among the known
// intents. The response format matches parseLLMClassification.
const llmClassifyPrompt = `You classify a customer support message into exactly one intent.

Valid intents: %s

Respond with exactly two lines:
INTENT: <one valid intent>
CONFIDENCE: <number between 0 and 1>

Message: %s`

// classifyWithLLM runs the fallback tier. Any backend or parse failure is
// reported as not-ok, never an error: the tier is inconclusive, not broken.
func classifyWithLLM(ctx context.Context, gen genai.Generator, text string) (Intent, bool) {
	names := make([]string, 0, len(KnownTypes()))
	for _, t := range KnownTypes() {
		names = append(names, string(t))
	}

	prompt := fmt.Sprintf(llmClassifyPrompt, strings.Join(names, ", "), text)
	out, err := gen.Complete(ctx, []genai.Message{genai.User(prompt)}, genai.Options{
		Temperature: 0.1,
		MaxTokens:   64,
	})
	if err != nil {
		return Intent{}, false
	}

	t, confidence, ok := parseLLMClassification(out)
	if !ok {
		return Intent{}, false
	}
	return Intent{Type: t, Confidence: confidence, Method: MethodLLM}, true
}

// parseLLMClassification extracts INTENT and CONFIDENCE labels from model
// output. Tolerant of surrounding prose and label case; both fields are
// required for a conclusive result.
func parseLLMClassification(out string) (Type, float64, bool) {
	var (
		intentType Type
		confidence = -1.0
	)

	for _, line := range strings.Split(out, "\n") {
		label, value, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		value = strings.TrimSpace(value)
		switch strings.ToUpper(strings.TrimSpace(label)) {
		case "INTENT":
			candidate := Type(strings.ToLower(value))
			if ValidType(candidate) {
				intentType = candidate
			}
		case "CONFIDENCE":
			if v, err := strconv.ParseFloat(value, 64); err == nil && v >= 0 && v <= 1 {
				confidence = v
			}
		}
	}

	if intentType == "" || confidence < 0 {
		return TypeOutOfScope, 0, false
	}
	return intentType, confidence, true
}
