package plan

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/lumora-ai/lumora/internal/log"
)

// Handler executes one action for a tenant. input is the payload of the
// action's dependency, empty when the action has none.
type Handler func(ctx context.Context, tenantID uuid.UUID, action Action, input string) (string, error)

// Executor runs ActionPlans. Handlers are registered per action type at
// wiring time; Execute is safe for concurrent use afterwards.
type Executor struct {
	handlers map[ActionType]Handler
	logger   log.Logger
}

// NewExecutor creates an Executor with no handlers registered.
func NewExecutor(logger log.Logger) (*Executor, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return &Executor{handlers: make(map[ActionType]Handler), logger: logger}, nil
}

// Register installs the handler for an action type. Call before Execute.
func (e *Executor) Register(t ActionType, h Handler) {
	e.handlers[t] = h
}

// Execute runs the plan and returns one Result per action, in plan order.
//
// Actions in the same execution group run concurrently; groups run in
// sequence. An optional action's failure is recorded and execution
// proceeds. A non-optional failure skips the failed action's dependents,
// recorded as FailedDependency, while independent branches still run.
func (e *Executor) Execute(ctx context.Context, tenantID uuid.UUID, p *Plan) ([]Result, error) {
	groups, err := topoGroups(p)
	if err != nil {
		return nil, fmt.Errorf("malformed plan: %w", err)
	}

	index := make(map[string]int, len(p.Actions))
	for i, a := range p.Actions {
		index[a.ID] = i
	}

	results := make([]Result, len(p.Actions))
	failed := make(map[string]bool) // non-optional failures and their dependents

	for _, group := range groups {
		var g errgroup.Group
		for _, i := range group {
			action := p.Actions[i]

			if action.DependsOn != "" && failed[action.DependsOn] {
				failed[action.ID] = true
				results[i] = Result{
					ActionID:         action.ID,
					Type:             action.Type,
					Success:          false,
					Error:            fmt.Sprintf("dependency %q failed", action.DependsOn),
					FailedDependency: true,
				}
				continue
			}

			var input string
			if action.DependsOn != "" {
				input = results[index[action.DependsOn]].Payload
			}

			i := i
			g.Go(func() error {
				results[i] = e.runAction(ctx, tenantID, action, input)
				return nil
			})
		}
		// Group members never return errors through the group; Wait is
		// purely the concurrency barrier.
		_ = g.Wait()

		for _, i := range group {
			r := results[i]
			if !r.Success && !r.FailedDependency && !p.Actions[i].Optional {
				failed[r.ActionID] = true
			}
		}
	}

	return results, nil
}

func (e *Executor) runAction(ctx context.Context, tenantID uuid.UUID, action Action, input string) Result {
	start := time.Now()

	handler, ok := e.handlers[action.Type]
	if !ok {
		return Result{
			ActionID: action.ID,
			Type:     action.Type,
			Success:  false,
			Error:    fmt.Sprintf("no handler for action type %q", action.Type),
			Elapsed:  time.Since(start),
		}
	}

	payload, err := handler(ctx, tenantID, action, input)
	if err != nil {
		e.logger.Warn("action failed",
			"action", action.ID, "type", action.Type, "optional", action.Optional, "error", err)
		return Result{
			ActionID: action.ID,
			Type:     action.Type,
			Success:  false,
			Error:    err.Error(),
			Elapsed:  time.Since(start),
		}
	}

	return Result{
		ActionID: action.ID,
		Type:     action.Type,
		Success:  true,
		Payload:  payload,
		Elapsed:  time.Since(start),
	}
}

// AggregateResults concatenates successful payloads in plan-declared order,
// regardless of completion order. Failures contribute nothing.
func AggregateResults(p *Plan, results []Result) string {
	byID := make(map[string]Result, len(results))
	for _, r := range results {
		byID[r.ActionID] = r
	}

	var parts []string
	for _, a := range p.Actions {
		if r, ok := byID[a.ID]; ok && r.Success && r.Payload != "" {
			parts = append(parts, r.Payload)
		}
	}
	return strings.Join(parts, "\n\n")
}
