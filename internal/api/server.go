// Package api exposes the response pipeline over HTTP: a chat endpoint, a
// fire-and-forget feedback endpoint, draft review, and health probes.
package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/lumora-ai/lumora/internal/feedback"
	"github.com/lumora-ai/lumora/internal/genai"
	"github.com/lumora-ai/lumora/internal/log"
	"github.com/lumora-ai/lumora/internal/orchestrator"
)

// Pipeline is the chat entry point the server fronts.
type Pipeline interface {
	HandleQuery(ctx context.Context, req orchestrator.Request) (orchestrator.Response, error)
	HandleQueryStream(ctx context.Context, req orchestrator.Request, fn genai.StreamFunc) (orchestrator.Response, error)
}

// Feedback is the learning-loop surface the server fronts.
type Feedback interface {
	Submit(ctx context.Context, rec feedback.Record) (bool, error)
	RecordValidation(ctx context.Context, tenantID uuid.UUID, passed bool, issues []string) error
	Insights(ctx context.Context, tenantID uuid.UUID) ([]feedback.Insight, error)
	PendingDrafts(ctx context.Context, tenantID uuid.UUID) ([]feedback.Draft, error)
	ApproveDraft(ctx context.Context, draftID uuid.UUID) error
	RejectDraft(ctx context.Context, draftID uuid.UUID, note string) error
	RequestRevision(ctx context.Context, draftID uuid.UUID, note string) error
}

// Trigger schedules a named background job without blocking the caller's
// request path.
type Trigger interface {
	RunNow(ctx context.Context, name string) error
}

// LearningJobName is the job key feedback submissions trigger.
const LearningJobName = "learning.analyze"

// ServerConfig bundles the server's dependencies.
type ServerConfig struct {
	Pipeline Pipeline
	Feedback Feedback
	Trigger  Trigger // optional; nil disables real-time analysis kicks
	Pinger   Pinger  // optional; nil skips the readiness storage check
	Logger   log.Logger
	// RateBurst is the per-IP burst size. Zero means 60.
	RateBurst int
}

// Server is the JSON HTTP server.
type Server struct {
	pipeline Pipeline
	feedback Feedback
	trigger  Trigger
	pinger   Pinger
	logger   log.Logger
	handler  http.Handler
}

// NewServer creates a Server with all routes and middleware configured.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Pipeline == nil {
		return nil, fmt.Errorf("pipeline is required")
	}
	if cfg.Feedback == nil {
		return nil, fmt.Errorf("feedback service is required")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	s := &Server{
		pipeline: cfg.Pipeline,
		feedback: cfg.Feedback,
		trigger:  cfg.Trigger,
		pinger:   cfg.Pinger,
		logger:   cfg.Logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.health)
	mux.HandleFunc("GET /readyz", s.ready)

	mux.HandleFunc("POST /v1/chat", s.chat)
	mux.HandleFunc("POST /v1/chat/stream", s.chatStream)
	mux.HandleFunc("POST /v1/feedback", s.submitFeedback)

	mux.HandleFunc("GET /v1/insights", s.listInsights)
	mux.HandleFunc("GET /v1/drafts", s.listDrafts)
	mux.HandleFunc("POST /v1/drafts/{id}/approve", s.approveDraft)
	mux.HandleFunc("POST /v1/drafts/{id}/reject", s.rejectDraft)
	mux.HandleFunc("POST /v1/drafts/{id}/revise", s.reviseDraft)

	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 60
	}
	limiter := newIPLimiter(rate.Limit(1), burst)

	// Outermost first: recovery, logging, rate limit, routes.
	var handler http.Handler = mux
	handler = rateLimitMiddleware(limiter, cfg.Logger)(handler)
	handler = loggingMiddleware(cfg.Logger)(handler)
	handler = recoverMiddleware(cfg.Logger)(handler)
	s.handler = handler

	return s, nil
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}
