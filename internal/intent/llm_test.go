package intent

import (
	"context"
	"fmt"
	"testing"

	"github.com/lumora-ai/lumora/internal/genai"
)

func TestParseLLMClassification(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		out      string
		wantType Type
		wantConf float64
		wantOK   bool
	}{
		{
			name:     "canonical two lines",
			out:      "INTENT: knowledge_query\nCONFIDENCE: 0.82",
			wantType: TypeKnowledgeQuery,
			wantConf: 0.82,
			wantOK:   true,
		},
		{
			name:     "lowercase labels",
			out:      "intent: greeting\nconfidence: 0.9",
			wantType: TypeGreeting,
			wantConf: 0.9,
			wantOK:   true,
		},
		{
			name:     "surrounding prose",
			out:      "Here is my classification.\nINTENT: gratitude\nCONFIDENCE: 0.75\nHope that helps!",
			wantType: TypeGratitude,
			wantConf: 0.75,
			wantOK:   true,
		},
		{
			name:     "uppercase intent value",
			out:      "INTENT: Chit_Chat\nCONFIDENCE: 0.61",
			wantType: TypeChitChat,
			wantConf: 0.61,
			wantOK:   true,
		},
		{name: "unknown intent", out: "INTENT: buy_stocks\nCONFIDENCE: 0.9", wantOK: false},
		{name: "missing confidence", out: "INTENT: greeting", wantOK: false},
		{name: "missing intent", out: "CONFIDENCE: 0.9", wantOK: false},
		{name: "confidence above one", out: "INTENT: greeting\nCONFIDENCE: 1.5", wantOK: false},
		{name: "confidence not a number", out: "INTENT: greeting\nCONFIDENCE: high", wantOK: false},
		{name: "empty output", out: "", wantOK: false},
		{name: "no labels at all", out: "I think this is a greeting.", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			gotType, gotConf, ok := parseLLMClassification(tt.out)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if gotType != tt.wantType {
				t.Errorf("type = %q, want %q", gotType, tt.wantType)
			}
			if gotConf != tt.wantConf {
				t.Errorf("confidence = %v, want %v", gotConf, tt.wantConf)
			}
		})
	}
}

func TestClassifyWithLLM(t *testing.T) {
	t.Parallel()

	t.Run("valid response", func(t *testing.T) {
		t.Parallel()
		gen := genai.NewFakeGenerator(genai.FakeCompletion{Text: "INTENT: help\nCONFIDENCE: 0.7"})
		got, ok := classifyWithLLM(context.Background(), gen, "can someone walk me through this")
		if !ok {
			t.Fatal("expected a conclusive classification")
		}
		if got.Type != TypeHelp || got.Confidence != 0.7 || got.Method != MethodLLM {
			t.Errorf("got %+v", got)
		}
	})

	t.Run("backend error is inconclusive", func(t *testing.T) {
		t.Parallel()
		gen := genai.NewFakeGenerator(genai.FakeCompletion{Err: fmt.Errorf("%w: 503", genai.ErrUnavailable)})
		if _, ok := classifyWithLLM(context.Background(), gen, "anything"); ok {
			t.Error("backend error should be inconclusive, not a classification")
		}
	})

	t.Run("garbage response is inconclusive", func(t *testing.T) {
		t.Parallel()
		gen := genai.NewFakeGenerator(genai.FakeCompletion{Text: "I cannot decide."})
		if _, ok := classifyWithLLM(context.Background(), gen, "anything"); ok {
			t.Error("unparseable output should be inconclusive")
		}
	})
}
