package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/lumora-ai/lumora/internal/orchestrator"
)

// chatRequest is the POST /v1/chat body.
type chatRequest struct {
	TenantID  string `json:"tenant_id"`
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

// chatResponse is the chat envelope.
type chatResponse struct {
	ResponseText string       `json:"response_text"`
	Sources      []sourceBody `json:"sources"`
	ContextFound bool         `json:"context_found"`
	Confidence   float64      `json:"confidence"`
	Annotation   string       `json:"confidence_annotation"`
	Intent       string       `json:"intent"`
	MessageID    string       `json:"message_id,omitempty"`
	SessionID    string       `json:"session_id"`
}

type sourceBody struct {
	DocumentID string  `json:"document_id"`
	Title      string  `json:"title"`
	Similarity float64 `json:"similarity"`
}

func (r chatRequest) parse() (orchestrator.Request, error) {
	if r.Message == "" {
		return orchestrator.Request{}, fmt.Errorf("message is required")
	}
	tenantID, err := uuid.Parse(r.TenantID)
	if err != nil {
		return orchestrator.Request{}, fmt.Errorf("invalid tenant_id")
	}

	// A missing session starts a new conversation.
	sessionID := uuid.New()
	if r.SessionID != "" {
		sessionID, err = uuid.Parse(r.SessionID)
		if err != nil {
			return orchestrator.Request{}, fmt.Errorf("invalid session_id")
		}
	}

	return orchestrator.Request{TenantID: tenantID, SessionID: sessionID, Text: r.Message}, nil
}

func toChatResponse(req orchestrator.Request, resp orchestrator.Response) chatResponse {
	out := chatResponse{
		ResponseText: resp.Text,
		Sources:      []sourceBody{},
		ContextFound: resp.ContextFound,
		Confidence:   resp.Confidence,
		Annotation:   resp.Annotation,
		Intent:       string(resp.Intent.Type),
		SessionID:    req.SessionID.String(),
	}
	if resp.MessageID != uuid.Nil {
		out.MessageID = resp.MessageID.String()
	}
	for _, src := range resp.Sources {
		out.Sources = append(out.Sources, sourceBody{
			DocumentID: src.DocumentID.String(),
			Title:      src.Title,
			Similarity: src.Similarity,
		})
	}
	return out
}

// chat handles POST /v1/chat.
func (s *Server) chat(w http.ResponseWriter, r *http.Request) {
	var body chatRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, s.logger, http.StatusBadRequest, "bad_request", "request body is not valid JSON")
		return
	}
	req, err := body.parse()
	if err != nil {
		writeError(w, s.logger, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	resp, err := s.pipeline.HandleQuery(r.Context(), req)
	if err != nil {
		s.logger.Error("chat pipeline failed",
			"tenant_id", req.TenantID, "session_id", req.SessionID, "error", err)
		writeError(w, s.logger, http.StatusServiceUnavailable, "unavailable", apology)
		return
	}

	s.recordValidationOutcome(r.Context(), req, resp)
	writeJSON(w, s.logger, http.StatusOK, toChatResponse(req, resp))
}

// SSE event names for the streaming endpoint.
const (
	eventChunk = "chunk"
	eventDone  = "done"
	eventError = "error"
)

// chatStream handles POST /v1/chat/stream with Server-Sent Events. Only the
// accepted answer is streamed; retries never leak partial attempts.
func (s *Server) chatStream(w http.ResponseWriter, r *http.Request) {
	var body chatRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, s.logger, http.StatusBadRequest, "bad_request", "request body is not valid JSON")
		return
	}
	req, err := body.parse()
	if err != nil {
		writeError(w, s.logger, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, s.logger, http.StatusInternalServerError, "internal", apology)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	resp, err := s.pipeline.HandleQueryStream(r.Context(), req, func(_ context.Context, chunk string) error {
		return writeSSE(w, flusher, eventChunk, map[string]string{"text": chunk})
	})
	if err != nil {
		s.logger.Error("chat stream failed",
			"tenant_id", req.TenantID, "session_id", req.SessionID, "error", err)
		_ = writeSSE(w, flusher, eventError, map[string]string{"message": apology})
		return
	}

	s.recordValidationOutcome(r.Context(), req, resp)
	_ = writeSSE(w, flusher, eventDone, toChatResponse(req, resp))
}

func writeSSE(w http.ResponseWriter, flusher http.Flusher, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding sse payload: %w", err)
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return fmt.Errorf("writing sse event: %w", err)
	}
	flusher.Flush()
	return nil
}

// recordValidationOutcome feeds the turn's validation verdict into the
// learning loop. Failures only log; the user already has their answer.
func (s *Server) recordValidationOutcome(ctx context.Context, req orchestrator.Request, resp orchestrator.Response) {
	if resp.Annotation == orchestrator.AnnotationUnvalidated {
		return
	}
	passed := resp.Annotation == orchestrator.AnnotationValidated
	if err := s.feedback.RecordValidation(ctx, req.TenantID, passed, resp.Issues); err != nil &&
		!errors.Is(err, context.Canceled) {
		s.logger.Warn("recording validation outcome failed", "error", err)
	}
}
