package validate

import (
	"context"
	"slices"
	"strings"
	"testing"

	"github.com/lumora-ai/lumora/internal/genai"
	"github.com/lumora-ai/lumora/internal/log"
)

func TestParseValidationResponse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		out           string
		threshold     float64
		wantValid     bool
		wantConf      float64
		wantRetry     bool
		wantIssues    []string
		wantAdjust    string
		wantMissing   bool
		wantInconclus bool
	}{
		{
			name: "all pass",
			out: "ANSWERS_QUESTION: yes\nIS_GROUNDED: yes\nHAS_HALLUCINATION: no\n" +
				"IS_CONCISE: yes\nIS_PRECISE: yes\nCONFIDENCE: 0.95\nRETRY: no\nADJUSTMENT: None",
			threshold: 0.7,
			wantValid: true,
			wantConf:  0.95,
			wantRetry: false,
		},
		{
			name: "confidence floor overrides criteria",
			out: "ANSWERS_QUESTION: yes\nIS_GROUNDED: yes\nHAS_HALLUCINATION: no\n" +
				"IS_CONCISE: yes\nIS_PRECISE: yes\nCONFIDENCE: 0.5\nRETRY: no\nADJUSTMENT: None",
			threshold:  0.7,
			wantValid:  false,
			wantConf:   0.5,
			wantRetry:  false,
			wantIssues: []string{IssueLowConfidence},
		},
		{
			name: "grounding failure recommends retry",
			out: "ANSWERS_QUESTION: yes\nIS_GROUNDED: no\nHAS_HALLUCINATION: no\n" +
				"IS_CONCISE: yes\nIS_PRECISE: yes\nCONFIDENCE: 0.8\nADJUSTMENT: None",
			threshold:  0.7,
			wantValid:  false,
			wantConf:   0.8,
			wantRetry:  true,
			wantIssues: []string{IssueNotGrounded},
		},
		{
			name: "adjustment present recommends retry",
			out: "ANSWERS_QUESTION: no\nIS_GROUNDED: yes\nHAS_HALLUCINATION: no\n" +
				"IS_CONCISE: yes\nIS_PRECISE: yes\nCONFIDENCE: 0.9\n" +
				"ADJUSTMENT: restate the answer in terms of the refund policy",
			threshold:  0.7,
			wantValid:  false,
			wantConf:   0.9,
			wantRetry:  true,
			wantIssues: []string{IssueNotAnswered},
			wantAdjust: "restate the answer in terms of the refund policy",
		},
		{
			name: "explicit retry label is authoritative",
			out: "ANSWERS_QUESTION: yes\nIS_GROUNDED: no\nHAS_HALLUCINATION: no\n" +
				"IS_CONCISE: yes\nIS_PRECISE: yes\nCONFIDENCE: 0.8\nRETRY: no\nADJUSTMENT: None",
			threshold:  0.7,
			wantValid:  false,
			wantConf:   0.8,
			wantRetry:  false,
			wantIssues: []string{IssueNotGrounded},
		},
		{
			name: "hallucination flagged",
			out: "ANSWERS_QUESTION: yes\nIS_GROUNDED: yes\nHAS_HALLUCINATION: yes\n" +
				"IS_CONCISE: yes\nIS_PRECISE: yes\nCONFIDENCE: 0.9\nRETRY: yes\nADJUSTMENT: remove the invented dates",
			threshold:  0.7,
			wantValid:  false,
			wantConf:   0.9,
			wantRetry:  true,
			wantIssues: []string{IssueHallucination},
			wantAdjust: "remove the invented dates",
		},
		{
			name: "missing trailing fields tolerated",
			out: "ANSWERS_QUESTION: yes\nIS_GROUNDED: yes\nHAS_HALLUCINATION: no\n" +
				"IS_CONCISE: yes\nIS_PRECISE: yes\nCONFIDENCE: 0.9",
			threshold: 0.7,
			wantValid: true,
			wantConf:  0.9,
			wantRetry: false,
		},
		{
			name: "missing criterion fails conservatively",
			out: "ANSWERS_QUESTION: yes\nIS_GROUNDED: yes\nHAS_HALLUCINATION: no\n" +
				"CONFIDENCE: 0.9",
			threshold:   0.7,
			wantValid:   false,
			wantConf:    0.9,
			wantRetry:   false,
			wantMissing: true,
		},
		{
			name: "surrounding prose tolerated",
			out: "Here is my review.\nANSWERS_QUESTION: yes\nIS_GROUNDED: yes\nHAS_HALLUCINATION: no\n" +
				"IS_CONCISE: yes\nIS_PRECISE: yes\nCONFIDENCE: 0.85\nRETRY: no\nADJUSTMENT: None\nThanks!",
			threshold: 0.7,
			wantValid: true,
			wantConf:  0.85,
		},
		{
			name:          "completely unparseable is inconclusive",
			out:           "The answer looks fine to me.",
			threshold:     0.7,
			wantValid:     false,
			wantConf:      0,
			wantRetry:     false,
			wantMissing:   true,
			wantInconclus: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := ParseValidationResponse(tt.out, tt.threshold)

			if got.IsValid != tt.wantValid {
				t.Errorf("IsValid = %v, want %v", got.IsValid, tt.wantValid)
			}
			if got.Confidence != tt.wantConf {
				t.Errorf("Confidence = %v, want %v", got.Confidence, tt.wantConf)
			}
			if got.RetryRecommended != tt.wantRetry {
				t.Errorf("RetryRecommended = %v, want %v", got.RetryRecommended, tt.wantRetry)
			}
			if got.Adjustment != tt.wantAdjust {
				t.Errorf("Adjustment = %q, want %q", got.Adjustment, tt.wantAdjust)
			}
			if got.FieldsMissing != tt.wantMissing {
				t.Errorf("FieldsMissing = %v, want %v", got.FieldsMissing, tt.wantMissing)
			}
			if got.Inconclusive() != tt.wantInconclus {
				t.Errorf("Inconclusive = %v, want %v", got.Inconclusive(), tt.wantInconclus)
			}
			for _, issue := range tt.wantIssues {
				if !slices.Contains(got.Issues, issue) {
					t.Errorf("Issues = %v, missing %q", got.Issues, issue)
				}
			}
			if len(tt.wantIssues) == 0 && tt.wantValid && len(got.Issues) != 0 {
				t.Errorf("Issues = %v, want none", got.Issues)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	t.Run("passes query response and context to the critic", func(t *testing.T) {
		t.Parallel()
		backend := genai.NewFakeGenerator(genai.FakeCompletion{
			Text: "ANSWERS_QUESTION: yes\nIS_GROUNDED: yes\nHAS_HALLUCINATION: no\n" +
				"IS_CONCISE: yes\nIS_PRECISE: yes\nCONFIDENCE: 0.9\nRETRY: no\nADJUSTMENT: None",
		})
		v, err := New(backend, log.NewNop())
		if err != nil {
			t.Fatal(err)
		}

		got, err := v.Validate(context.Background(), "q", "answer", "ctx", 0.7)
		if err != nil {
			t.Fatal(err)
		}
		if !got.IsValid {
			t.Errorf("result = %+v, want valid", got)
		}

		prompt := backend.Calls()[0][0].Text
		for _, want := range []string{"q", "answer", "ctx"} {
			if !strings.Contains(prompt, want) {
				t.Errorf("critic prompt missing %q", want)
			}
		}
	})

	t.Run("backend error propagates", func(t *testing.T) {
		t.Parallel()
		v, err := New(genai.NewFakeGenerator(genai.FakeCompletion{Err: genai.ErrUnavailable}), log.NewNop())
		if err != nil {
			t.Fatal(err)
		}
		if _, err := v.Validate(context.Background(), "q", "a", "c", 0.7); err == nil {
			t.Error("expected the backend error to propagate")
		}
	})
}
