package plan

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/lumora-ai/lumora/internal/genai"
	"github.com/lumora-ai/lumora/internal/intent"
	"github.com/lumora-ai/lumora/internal/log"
)

// NeedsPlanning decides, without external calls, whether a query warrants
// decomposition into a multi-action plan.
func NeedsPlanning(query string, it intent.Intent) bool {
	if !it.MultiStep() {
		return false
	}

	lower := strings.ToLower(query)

	// Multiple question marks usually mean enumerated sub-asks.
	if strings.Count(lower, "?") > 1 {
		return true
	}

	// Clause connectors signal compound requests.
	for _, connector := range []string{" and also ", " as well as ", "; ", " then ", " after that ", " compare "} {
		if strings.Contains(lower, connector) {
			return true
		}
	}

	// Enumerations like "1." or "2)" at word starts.
	for _, field := range strings.Fields(lower) {
		if len(field) >= 2 && field[0] >= '1' && field[0] <= '9' && (field[1] == '.' || field[1] == ')') {
			return true
		}
	}

	// Long compound questions with an explicit conjunction.
	if len(strings.Fields(lower)) > 25 && strings.Contains(lower, " and ") {
		return true
	}

	return false
}

const planPrompt = `Decompose the user query into a short action plan.

Available action types:
  search_knowledge  - search the knowledge base; params: {"query": "..."}
  lookup_document   - fetch one document by id; params: {"id": "..."}
  summarize         - condense earlier results; params: {"instruction": "..."}
  compare           - contrast two earlier results; params: {"instruction": "..."}

Respond with JSON only, no prose:
{
  "goal": "one sentence",
  "complexity": "simple|moderate|complex",
  "actions": [
    {"id": "a1", "type": "search_knowledge", "params": {"query": "..."},
     "depends_on": "", "parallel_group": "g1", "optional": false}
  ]
}

Rules: ids unique; depends_on references an earlier id or is empty; actions
sharing a parallel_group and having no dependency between them may run
concurrently; at most 5 actions.

User query: %s`

// plannedAction mirrors the JSON shape the backend is asked for.
type plannedAction struct {
	ID            string            `json:"id"`
	Type          string            `json:"type"`
	Params        map[string]string `json:"params"`
	DependsOn     string            `json:"depends_on"`
	ParallelGroup string            `json:"parallel_group"`
	Optional      bool              `json:"optional"`
}

type plannedResponse struct {
	Goal       string          `json:"goal"`
	Complexity string          `json:"complexity"`
	Actions    []plannedAction `json:"actions"`
}

// Planner builds ActionPlans via the text-generation backend.
type Planner struct {
	gen    genai.Generator
	logger log.Logger
}

// NewPlanner creates a Planner.
func NewPlanner(gen genai.Generator, logger log.Logger) (*Planner, error) {
	if gen == nil {
		return nil, fmt.Errorf("generator is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return &Planner{gen: gen, logger: logger}, nil
}

// CreatePlan asks the backend to decompose the query. Any backend or parse
// failure falls back to a single search_knowledge plan; planning never
// blocks the pipeline on malformed output.
func (p *Planner) CreatePlan(ctx context.Context, query string) *Plan {
	out, err := p.gen.Complete(ctx, []genai.Message{genai.User(fmt.Sprintf(planPrompt, query))}, genai.Options{
		Temperature: 0.2,
		MaxTokens:   1024,
	})
	if err != nil {
		p.logger.Warn("plan generation failed, using fallback plan", "error", err)
		return FallbackPlan(query)
	}

	parsed, err := parsePlanResponse(query, out)
	if err != nil {
		p.logger.Warn("plan response unparseable, using fallback plan", "error", err)
		return FallbackPlan(query)
	}
	return parsed
}

// FallbackPlan is the single-action plan used when decomposition fails.
func FallbackPlan(query string) *Plan {
	return &Plan{
		Query: query,
		Goal:  "answer from the knowledge base",
		Actions: []Action{
			{
				ID:     "search",
				Type:   ActionSearchKnowledge,
				Params: map[string]string{"query": query},
			},
		},
		EstimatedSteps: 1,
		Complexity:     ComplexitySimple,
	}
}

// parsePlanResponse validates the model's JSON into a Plan. Errors here are
// recoverable; the caller falls back.
func parsePlanResponse(query, out string) (*Plan, error) {
	var resp plannedResponse
	if err := json.Unmarshal([]byte(stripCodeFence(out)), &resp); err != nil {
		return nil, fmt.Errorf("decoding plan json: %w", err)
	}
	if len(resp.Actions) == 0 {
		return nil, fmt.Errorf("plan has no actions")
	}
	if len(resp.Actions) > 5 {
		return nil, fmt.Errorf("plan has %d actions, limit is 5", len(resp.Actions))
	}

	seen := make(map[string]bool, len(resp.Actions))
	actions := make([]Action, 0, len(resp.Actions))
	for i, pa := range resp.Actions {
		if pa.ID == "" {
			return nil, fmt.Errorf("action %d has no id", i)
		}
		if seen[pa.ID] {
			return nil, fmt.Errorf("duplicate action id %q", pa.ID)
		}
		t := ActionType(pa.Type)
		if !ValidActionType(t) {
			return nil, fmt.Errorf("action %q has unknown type %q", pa.ID, pa.Type)
		}
		if pa.DependsOn != "" && !seen[pa.DependsOn] {
			// Dependencies must reference earlier actions, which also
			// rules out cycles.
			return nil, fmt.Errorf("action %q depends on unknown or later action %q", pa.ID, pa.DependsOn)
		}
		seen[pa.ID] = true
		actions = append(actions, Action{
			ID:            pa.ID,
			Type:          t,
			Params:        pa.Params,
			DependsOn:     pa.DependsOn,
			ParallelGroup: pa.ParallelGroup,
			Optional:      pa.Optional,
		})
	}

	complexity := Complexity(resp.Complexity)
	switch complexity {
	case ComplexitySimple, ComplexityModerate, ComplexityComplex:
	default:
		complexity = ComplexityModerate
	}

	return &Plan{
		Query:          query,
		Goal:           resp.Goal,
		Actions:        actions,
		EstimatedSteps: len(actions),
		Complexity:     complexity,
	}, nil
}

// stripCodeFence removes a surrounding markdown code fence, which models
// often add despite being told not to.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
