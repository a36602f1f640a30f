// Package validate scores generated responses against the originating query
// and retrieved context, driving the orchestrator's retry decision.
package validate

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/lumora-ai/lumora/internal/genai"
	"github.com/lumora-ai/lumora/internal/log"
)

// Issue tags reported in Result.Issues.
const (
	IssueNotAnswered   = "does not answer question"
	IssueNotGrounded   = "not grounded"
	IssueHallucination = "hallucination"
	IssueNotConcise    = "not concise"
	IssueNotPrecise    = "not precise"
	IssueLowConfidence = "low confidence"
)

// Result is the validation verdict for one generated response.
type Result struct {
	IsValid    bool
	Confidence float64
	Issues     []string
	// RetryRecommended signals the orchestrator to regenerate with the
	// Adjustment merged into the prompt.
	RetryRecommended bool
	// Adjustment is the critic's suggested prompt change, empty when none.
	Adjustment string
	// FieldsMissing marks a partially parseable critique. The decision rule
	// treats a missing criterion as failing.
	FieldsMissing bool
}

// Inconclusive reports whether the critique was so malformed that no
// criterion could be parsed. The orchestrator treats an inconclusive
// validation as acceptance, not as grounds for a retry.
func (r Result) Inconclusive() bool {
	return r.FieldsMissing && r.Confidence == 0 && len(r.Issues) == 0
}

const validatePrompt = `You are a strict reviewer of a support assistant's answer.

Question:
%s

Context the answer must be grounded in:
%s

Answer under review:
%s

Evaluate and respond with exactly these labeled lines:
ANSWERS_QUESTION: yes|no
IS_GROUNDED: yes|no
HAS_HALLUCINATION: yes|no
IS_CONCISE: yes|no
IS_PRECISE: yes|no
CONFIDENCE: <number between 0 and 1>
RETRY: yes|no
ADJUSTMENT: <one-line suggestion, or None>`

// Validator asks the generation backend to self-critique responses.
type Validator struct {
	gen    genai.Generator
	logger log.Logger
}

// New creates a Validator.
func New(gen genai.Generator, logger log.Logger) (*Validator, error) {
	if gen == nil {
		return nil, fmt.Errorf("generator is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return &Validator{gen: gen, logger: logger}, nil
}

// Validate scores a response. threshold is the per-request confidence floor.
// Only backend failure returns an error; malformed critique text degrades to
// a partial Result.
func (v *Validator) Validate(ctx context.Context, query, response, contextText string, threshold float64) (Result, error) {
	if contextText == "" {
		contextText = "(no context was retrieved)"
	}

	out, err := v.gen.Complete(ctx, []genai.Message{
		genai.User(fmt.Sprintf(validatePrompt, query, contextText, response)),
	}, genai.Options{Temperature: 0.1, MaxTokens: 256})
	if err != nil {
		return Result{}, fmt.Errorf("validation call: %w", err)
	}

	result := ParseValidationResponse(out, threshold)
	v.logger.Debug("response validated",
		"valid", result.IsValid,
		"confidence", result.Confidence,
		"issues", result.Issues,
		"retry", result.RetryRecommended)
	return result, nil
}

// criterion is one parsed yes/no field. nil means the label was absent.
type criterion struct {
	value *bool
	// failWhen is the parsed value that counts as a failure.
	failWhen bool
	issue    string
}

func (c criterion) failed() bool {
	// A missing criterion fails conservatively.
	return c.value == nil || *c.value == c.failWhen
}

// ParseValidationResponse extracts the fixed critique labels from model
// output and applies the decision rule. It tolerates extra prose, label
// case, and missing trailing fields; it never fails.
//
// Decision rule: is_valid requires every criterion to pass and confidence
// to reach the threshold; a confidence below threshold alone invalidates.
// An explicit RETRY label is authoritative; otherwise a retry is recommended
// for invalid results that come with an adjustment or a fixable grounding or
// precision issue.
func ParseValidationResponse(out string, threshold float64) Result {
	var (
		answers     = criterion{failWhen: false, issue: IssueNotAnswered}
		grounded    = criterion{failWhen: false, issue: IssueNotGrounded}
		hallucinate = criterion{failWhen: true, issue: IssueHallucination}
		concise     = criterion{failWhen: false, issue: IssueNotConcise}
		precise     = criterion{failWhen: false, issue: IssueNotPrecise}

		confidence *float64
		retry      *bool
		adjustment string
	)

	for _, line := range strings.Split(out, "\n") {
		label, value, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		value = strings.TrimSpace(value)

		switch strings.ToUpper(strings.TrimSpace(label)) {
		case "ANSWERS_QUESTION":
			answers.value = parseYesNo(value)
		case "IS_GROUNDED":
			grounded.value = parseYesNo(value)
		case "HAS_HALLUCINATION":
			hallucinate.value = parseYesNo(value)
		case "IS_CONCISE":
			concise.value = parseYesNo(value)
		case "IS_PRECISE":
			precise.value = parseYesNo(value)
		case "CONFIDENCE":
			if f, err := strconv.ParseFloat(value, 64); err == nil && f >= 0 && f <= 1 {
				confidence = &f
			}
		case "RETRY":
			retry = parseYesNo(value)
		case "ADJUSTMENT":
			if !strings.EqualFold(value, "none") {
				adjustment = value
			}
		}
	}

	criteria := []criterion{answers, grounded, hallucinate, concise, precise}

	result := Result{Adjustment: adjustment}
	for _, c := range criteria {
		if c.value == nil {
			result.FieldsMissing = true
		}
		if c.value != nil && c.failed() {
			result.Issues = append(result.Issues, c.issue)
		}
	}
	if confidence == nil {
		result.FieldsMissing = true
	} else {
		result.Confidence = *confidence
	}

	allPass := true
	for _, c := range criteria {
		if c.failed() {
			allPass = false
		}
	}

	result.IsValid = allPass && confidence != nil && *confidence >= threshold
	if confidence != nil && *confidence < threshold {
		result.Issues = append(result.Issues, IssueLowConfidence)
	}

	switch {
	case retry != nil:
		result.RetryRecommended = *retry
	case result.IsValid:
		result.RetryRecommended = false
	default:
		result.RetryRecommended = adjustment != "" || hasFixableIssue(result.Issues)
	}

	return result
}

// hasFixableIssue reports whether the issues include one a prompt
// perturbation can plausibly fix.
func hasFixableIssue(issues []string) bool {
	for _, issue := range issues {
		if issue == IssueNotGrounded || issue == IssueNotPrecise {
			return true
		}
	}
	return false
}

func parseYesNo(value string) *bool {
	switch strings.ToLower(value) {
	case "yes", "true":
		b := true
		return &b
	case "no", "false":
		b := false
		return &b
	default:
		return nil
	}
}
