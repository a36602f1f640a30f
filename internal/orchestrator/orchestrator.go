// Package orchestrator runs the response pipeline state machine: classify,
// optionally plan and execute, retrieve, generate, validate, and retry
// within a bounded budget.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/lumora-ai/lumora/internal/config"
	"github.com/lumora-ai/lumora/internal/genai"
	"github.com/lumora-ai/lumora/internal/intent"
	"github.com/lumora-ai/lumora/internal/knowledge"
	"github.com/lumora-ai/lumora/internal/log"
	"github.com/lumora-ai/lumora/internal/plan"
	"github.com/lumora-ai/lumora/internal/respond"
	"github.com/lumora-ai/lumora/internal/session"
	"github.com/lumora-ai/lumora/internal/validate"
)

// State names the pipeline's phases, used in logs.
type State string

const (
	StateClassifying State = "classifying"
	StatePlanning    State = "planning"
	StateRetrieving  State = "retrieving"
	StateExecuting   State = "executing"
	StateGenerating  State = "generating"
	StateValidating  State = "validating"
	StateRetrying    State = "retrying"
	StateAccepted    State = "accepted"
	StateFailed      State = "failed"
)

// Confidence annotations on a Response.
const (
	// AnnotationValidated marks a response the validator accepted.
	AnnotationValidated = "validated"
	// AnnotationLowConfidence marks a best-effort response returned after
	// the retry budget or deadline ran out.
	AnnotationLowConfidence = "low_confidence"
	// AnnotationUnvalidated marks a response whose validation was
	// inconclusive or unavailable.
	AnnotationUnvalidated = "unvalidated"
)

// ErrBackendUnavailable is returned when the generation backend stays
// unreachable through its own retry layer. The only pipeline-fatal error.
var ErrBackendUnavailable = errors.New("generation backend unavailable")

// Request is one user turn.
type Request struct {
	TenantID  uuid.UUID
	SessionID uuid.UUID
	Text      string
}

// Source identifies a knowledge document that grounded the response.
type Source struct {
	DocumentID uuid.UUID
	Title      string
	Similarity float64
}

// Response is the pipeline's result for one turn.
type Response struct {
	Text         string
	Sources      []Source
	ContextFound bool
	// Confidence is the validator's score for the returned text, 0 when
	// validation never concluded.
	Confidence float64
	// Annotation is one of the Annotation constants.
	Annotation string
	// Issues carries the validator's issue tags for the returned attempt.
	Issues   []string
	Intent   intent.Intent
	Attempts int
	// MessageID references the stored assistant turn, for feedback.
	MessageID uuid.UUID
}

// Classifier is the intent classification dependency.
type Classifier interface {
	Classify(ctx context.Context, text string, th config.Thresholds) intent.Intent
}

// Retriever is the knowledge retrieval dependency.
type Retriever interface {
	Search(ctx context.Context, tenantID uuid.UUID, query string, opts ...knowledge.SearchOption) ([]knowledge.Result, error)
}

// Planner builds multi-step plans.
type Planner interface {
	CreatePlan(ctx context.Context, query string) *plan.Plan
}

// Executor runs plans.
type Executor interface {
	Execute(ctx context.Context, tenantID uuid.UUID, p *plan.Plan) ([]plan.Result, error)
}

// Generator produces answer text.
type Generator interface {
	Generate(ctx context.Context, req respond.Request) (string, error)
	GenerateStream(ctx context.Context, req respond.Request, fn genai.StreamFunc) (string, error)
}

// Validator critiques answers.
type Validator interface {
	Validate(ctx context.Context, query, response, contextText string, threshold float64) (validate.Result, error)
}

// Sessions persists conversation history. Optional; nil disables history.
type Sessions interface {
	Ensure(ctx context.Context, tenantID, sessionID uuid.UUID) error
	Append(ctx context.Context, sessionID uuid.UUID, role, content string) (session.Message, error)
	History(ctx context.Context, sessionID uuid.UUID, limit int) ([]session.Message, error)
}

// Config bundles the Orchestrator's dependencies.
type Config struct {
	Classifier Classifier
	Retriever  Retriever
	Planner    Planner
	Executor   Executor
	Generator  Generator
	Validator  Validator
	Sessions   Sessions // optional
	Thresholds *config.Store
	Pipeline   config.PipelineConfig
	Logger     log.Logger
}

// Orchestrator coordinates one HandleQuery call end to end. Safe for
// concurrent use.
type Orchestrator struct {
	classifier Classifier
	retriever  Retriever
	planner    Planner
	executor   Executor
	generator  Generator
	validator  Validator
	sessions   Sessions
	thresholds *config.Store
	pipeline   config.PipelineConfig
	logger     log.Logger
}

// New creates an Orchestrator.
func New(cfg Config) (*Orchestrator, error) {
	switch {
	case cfg.Classifier == nil:
		return nil, fmt.Errorf("classifier is required")
	case cfg.Retriever == nil:
		return nil, fmt.Errorf("retriever is required")
	case cfg.Planner == nil:
		return nil, fmt.Errorf("planner is required")
	case cfg.Executor == nil:
		return nil, fmt.Errorf("executor is required")
	case cfg.Generator == nil:
		return nil, fmt.Errorf("generator is required")
	case cfg.Validator == nil:
		return nil, fmt.Errorf("validator is required")
	case cfg.Thresholds == nil:
		return nil, fmt.Errorf("threshold store is required")
	case cfg.Logger == nil:
		return nil, fmt.Errorf("logger is required")
	}
	return &Orchestrator{
		classifier: cfg.Classifier,
		retriever:  cfg.Retriever,
		planner:    cfg.Planner,
		executor:   cfg.Executor,
		generator:  cfg.Generator,
		validator:  cfg.Validator,
		sessions:   cfg.Sessions,
		thresholds: cfg.Thresholds,
		pipeline:   cfg.Pipeline,
		logger:     cfg.Logger,
	}, nil
}

// HandleQuery runs the full pipeline for one turn.
//
// The request deadline bounds everything; when it expires mid-retry the
// best answer so far is returned with a low-confidence annotation. The only
// error condition is an unreachable generation backend with no prior
// attempt to fall back on.
func (o *Orchestrator) HandleQuery(ctx context.Context, req Request) (Response, error) {
	return o.handle(ctx, req, nil)
}

// HandleQueryStream is HandleQuery with the accepted answer re-emitted
// through fn. Intermediate attempts are never streamed; only the final
// accepted text reaches the caller, in order.
func (o *Orchestrator) HandleQueryStream(ctx context.Context, req Request, fn genai.StreamFunc) (Response, error) {
	return o.handle(ctx, req, fn)
}

func (o *Orchestrator) handle(ctx context.Context, req Request, stream genai.StreamFunc) (Response, error) {
	if o.pipeline.RequestDeadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.pipeline.RequestDeadline)
		defer cancel()
	}

	// One consistent threshold snapshot per request.
	th := o.thresholds.Snapshot()

	o.logState(req, StateClassifying)
	it := o.classifier.Classify(ctx, req.Text, th)

	history := o.loadHistory(ctx, req)

	contextText, sources, contextFound := o.gatherContext(ctx, req, it, th)

	resp, err := o.generateLoop(ctx, req, it, th, contextText, history)
	if err != nil {
		o.logState(req, StateFailed)
		return Response{}, err
	}
	resp.Sources = sources
	resp.ContextFound = contextFound
	resp.Intent = it

	o.storeTurn(ctx, req, &resp)

	if stream != nil {
		if err := stream(ctx, resp.Text); err != nil {
			return resp, fmt.Errorf("streaming accepted response: %w", err)
		}
	}

	o.logState(req, StateAccepted)
	return resp, nil
}

// gatherContext picks the retrieval strategy for the intent and returns the
// grounding text. Retrieval failure degrades to empty context, never fails
// the request.
func (o *Orchestrator) gatherContext(ctx context.Context, req Request, it intent.Intent, th config.Thresholds) (string, []Source, bool) {
	if !it.NeedsRetrieval() {
		return "", nil, false
	}

	if plan.NeedsPlanning(req.Text, it) {
		o.logState(req, StatePlanning)
		p := o.planner.CreatePlan(ctx, req.Text)

		o.logState(req, StateExecuting)
		results, err := o.executor.Execute(ctx, req.TenantID, p)
		if err != nil {
			o.logger.Warn("plan execution failed, degrading to direct retrieval",
				"tenant_id", req.TenantID, "error", err)
			return o.retrieve(ctx, req, th)
		}
		aggregate := plan.AggregateResults(p, results)
		if aggregate == "" {
			return "", nil, false
		}
		return aggregate, nil, true
	}

	o.logState(req, StateRetrieving)
	return o.retrieve(ctx, req, th)
}

func (o *Orchestrator) retrieve(ctx context.Context, req Request, th config.Thresholds) (string, []Source, bool) {
	results, err := o.retriever.Search(ctx, req.TenantID, req.Text,
		knowledge.WithTopK(o.pipeline.RetrievalTopK),
		knowledge.WithMinSimilarity(th.Similarity),
	)
	if err != nil {
		// Provider trouble degrades to "no context found".
		o.logger.Warn("retrieval failed, continuing with empty context",
			"tenant_id", req.TenantID, "error", err)
		return "", nil, false
	}
	if len(results) == 0 {
		return "", nil, false
	}

	var (
		parts   []string
		sources []Source
	)
	for _, r := range results {
		parts = append(parts, r.Document.Content)
		sources = append(sources, Source{
			DocumentID: r.Document.ID,
			Title:      r.Document.Title,
			Similarity: r.Similarity,
		})
	}
	return strings.Join(parts, "\n\n"), sources, true
}

// generateLoop runs generation and validation with a bounded retry budget.
func (o *Orchestrator) generateLoop(ctx context.Context, req Request, it intent.Intent, th config.Thresholds, contextText string, history []genai.Message) (Response, error) {
	maxAttempts := 1 + o.pipeline.RetryBudget
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	genReq := respond.Request{
		Query:   req.Text,
		Context: contextText,
		History: history,
		Social:  !it.NeedsRetrieval(),
	}

	var best *Response

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		o.logState(req, StateGenerating)
		text, err := o.generator.Generate(ctx, genReq)
		if err != nil {
			if best != nil {
				// Deadline or backend trouble mid-retry: return what we have.
				best.Annotation = AnnotationLowConfidence
				return *best, nil
			}
			return Response{}, fmt.Errorf("%w: %w", ErrBackendUnavailable, err)
		}

		o.logState(req, StateValidating)
		vres, verr := o.validator.Validate(ctx, req.Text, text, contextText, th.ValidationConfidence)
		if verr != nil || vres.Inconclusive() {
			if verr != nil {
				o.logger.Warn("validation unavailable, accepting response unvalidated",
					"tenant_id", req.TenantID, "error", verr)
			}
			return Response{Text: text, Annotation: AnnotationUnvalidated, Attempts: attempt}, nil
		}

		current := Response{Text: text, Confidence: vres.Confidence, Issues: vres.Issues, Attempts: attempt}
		if best == nil || current.Confidence > best.Confidence {
			best = &current
		}

		if vres.IsValid {
			current.Annotation = AnnotationValidated
			return current, nil
		}
		if !vres.RetryRecommended || attempt == maxAttempts || ctx.Err() != nil {
			break
		}

		o.logState(req, StateRetrying)
		// One-shot perturbation per retry: merge the critic's suggestion
		// into the next prompt.
		genReq.Adjustment = vres.Adjustment
		if genReq.Adjustment == "" {
			genReq.Adjustment = "answer strictly from the provided context and address the question directly"
		}
	}

	// Retries exhausted: best-effort, flagged, never a user-facing failure.
	best.Annotation = AnnotationLowConfidence
	return *best, nil
}

func (o *Orchestrator) loadHistory(ctx context.Context, req Request) []genai.Message {
	if o.sessions == nil || req.SessionID == uuid.Nil {
		return nil
	}
	if err := o.sessions.Ensure(ctx, req.TenantID, req.SessionID); err != nil {
		o.logger.Warn("session ensure failed, continuing without history", "error", err)
		return nil
	}
	msgs, err := o.sessions.History(ctx, req.SessionID, 10)
	if err != nil {
		o.logger.Warn("history load failed, continuing without history", "error", err)
		return nil
	}
	history := make([]genai.Message, 0, len(msgs))
	for _, m := range msgs {
		role := genai.RoleUser
		if m.Role == session.RoleModel {
			role = genai.RoleModel
		}
		history = append(history, genai.Message{Role: role, Text: m.Content})
	}
	return history
}

func (o *Orchestrator) storeTurn(ctx context.Context, req Request, resp *Response) {
	if o.sessions == nil || req.SessionID == uuid.Nil {
		return
	}
	if _, err := o.sessions.Append(ctx, req.SessionID, session.RoleUser, req.Text); err != nil {
		o.logger.Warn("storing user turn failed", "error", err)
	}
	m, err := o.sessions.Append(ctx, req.SessionID, session.RoleModel, resp.Text)
	if err != nil {
		o.logger.Warn("storing assistant turn failed", "error", err)
		return
	}
	resp.MessageID = m.ID
}

func (o *Orchestrator) logState(req Request, s State) {
	o.logger.Debug("pipeline state", "tenant_id", req.TenantID, "session_id", req.SessionID, "state", s)
}
