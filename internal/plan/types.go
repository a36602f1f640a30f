// Package plan decomposes complex queries into dependency-annotated action
// plans and executes them with per-group concurrency.
package plan

import "time"

// ActionType enumerates the capabilities an action may invoke.
type ActionType string

const (
	// ActionSearchKnowledge searches the tenant knowledge base.
	ActionSearchKnowledge ActionType = "search_knowledge"
	// ActionLookupDocument fetches one knowledge document by id.
	ActionLookupDocument ActionType = "lookup_document"
	// ActionSummarize condenses prior action output via the generation backend.
	ActionSummarize ActionType = "summarize"
	// ActionCompare contrasts two prior action outputs.
	ActionCompare ActionType = "compare"
)

// KnownActionTypes lists every action type the executor can dispatch.
func KnownActionTypes() []ActionType {
	return []ActionType{ActionSearchKnowledge, ActionLookupDocument, ActionSummarize, ActionCompare}
}

// ValidActionType reports whether t is a known action type.
func ValidActionType(t ActionType) bool {
	for _, known := range KnownActionTypes() {
		if t == known {
			return true
		}
	}
	return false
}

// Complexity is the planner's estimate of how involved a plan is.
type Complexity string

const (
	ComplexitySimple   Complexity = "simple"
	ComplexityModerate Complexity = "moderate"
	ComplexityComplex  Complexity = "complex"
)

// Action is one unit of work in a plan.
type Action struct {
	// ID identifies the action within its plan. Unique per plan.
	ID string
	// Type selects the handler that executes the action.
	Type ActionType
	// Params carries handler-specific arguments, "query" at minimum for
	// search actions.
	Params map[string]string
	// DependsOn names the action this one consumes output from. Empty
	// means no dependency.
	DependsOn string
	// ParallelGroup marks actions that may run concurrently once their
	// dependencies are satisfied. Empty means the action runs alone.
	ParallelGroup string
	// Optional actions may fail without halting the plan.
	Optional bool
}

// Plan is an ordered, dependency-annotated set of actions for one query.
// Read-only during execution.
type Plan struct {
	Query          string
	Goal           string
	Actions        []Action
	EstimatedSteps int
	Complexity     Complexity
}

// Result records the outcome of one executed action.
type Result struct {
	ActionID string
	Type     ActionType
	Success  bool
	// Payload holds the handler output when Success is true.
	Payload string
	// Error holds the failure description when Success is false.
	Error string
	// FailedDependency marks an action skipped because a non-optional
	// action it depends on failed. Such actions never ran.
	FailedDependency bool
	Elapsed          time.Duration
}
