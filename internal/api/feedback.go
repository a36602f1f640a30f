package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/lumora-ai/lumora/internal/feedback"
)

// feedbackRequest is the POST /v1/feedback body.
type feedbackRequest struct {
	TenantID  string `json:"tenant_id"`
	MessageID string `json:"message_id"`
	Query     string `json:"query"`
	Rating    string `json:"rating"`
	Comment   string `json:"comment"`
}

// submitFeedback handles POST /v1/feedback. Fire-and-forget relative to the
// chat path: storage happens inline, but any triggered learning analysis is
// kicked off in the background and never blocks the 202.
func (s *Server) submitFeedback(w http.ResponseWriter, r *http.Request) {
	var body feedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, s.logger, http.StatusBadRequest, "bad_request", "request body is not valid JSON")
		return
	}

	tenantID, err := uuid.Parse(body.TenantID)
	if err != nil {
		writeError(w, s.logger, http.StatusBadRequest, "bad_request", "invalid tenant_id")
		return
	}
	messageID, err := uuid.Parse(body.MessageID)
	if err != nil {
		writeError(w, s.logger, http.StatusBadRequest, "bad_request", "invalid message_id")
		return
	}

	rec := feedback.Record{
		TenantID:  tenantID,
		MessageID: messageID,
		Query:     body.Query,
		Rating:    feedback.Rating(body.Rating),
		Comment:   body.Comment,
		ClientIP:  clientIP(r),
	}

	analysisDue, err := s.feedback.Submit(r.Context(), rec)
	if err != nil {
		writeError(w, s.logger, http.StatusBadRequest, "bad_request", "rating must be positive or negative")
		return
	}

	if analysisDue && s.trigger != nil {
		go func() {
			// Detached from the request; the single-flight runner absorbs
			// duplicate kicks.
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
			defer cancel()
			if err := s.trigger.RunNow(ctx, LearningJobName); err != nil {
				s.logger.Error("triggered learning run failed", "error", err)
			}
		}()
	}

	writeJSON(w, s.logger, http.StatusAccepted, map[string]string{"status": "accepted"})
}

// insightBody is the wire form of a feedback insight.
type insightBody struct {
	ID            string    `json:"id"`
	PatternKey    string    `json:"pattern_key"`
	Count         int       `json:"count"`
	SampleQueries []string  `json:"sample_queries"`
	Priority      string    `json:"priority"`
	Status        string    `json:"status"`
	DraftID       string    `json:"draft_id,omitempty"`
	FirstSeen     time.Time `json:"first_seen"`
	LastSeen      time.Time `json:"last_seen"`
}

// listInsights handles GET /v1/insights?tenant_id=...
func (s *Server) listInsights(w http.ResponseWriter, r *http.Request) {
	tenantID, err := uuid.Parse(r.URL.Query().Get("tenant_id"))
	if err != nil {
		writeError(w, s.logger, http.StatusBadRequest, "bad_request", "invalid tenant_id")
		return
	}

	insights, err := s.feedback.Insights(r.Context(), tenantID)
	if err != nil {
		s.logger.Error("listing insights failed", "tenant_id", tenantID, "error", err)
		writeError(w, s.logger, http.StatusInternalServerError, "internal", apology)
		return
	}

	out := make([]insightBody, 0, len(insights))
	for _, in := range insights {
		body := insightBody{
			ID:            in.ID.String(),
			PatternKey:    in.PatternKey,
			Count:         in.Count,
			SampleQueries: in.SampleQueries,
			Priority:      in.Priority,
			Status:        in.Status,
			FirstSeen:     in.FirstSeen,
			LastSeen:      in.LastSeen,
		}
		if in.DraftID != uuid.Nil {
			body.DraftID = in.DraftID.String()
		}
		out = append(out, body)
	}
	writeJSON(w, s.logger, http.StatusOK, map[string]any{"insights": out})
}

// draftBody is the wire form of a knowledge draft.
type draftBody struct {
	ID         string    `json:"id"`
	InsightID  string    `json:"insight_id"`
	Title      string    `json:"title"`
	Content    string    `json:"content"`
	Status     string    `json:"status"`
	ReviewNote string    `json:"review_note,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// listDrafts handles GET /v1/drafts?tenant_id=... and returns the drafts
// awaiting review.
func (s *Server) listDrafts(w http.ResponseWriter, r *http.Request) {
	tenantID, err := uuid.Parse(r.URL.Query().Get("tenant_id"))
	if err != nil {
		writeError(w, s.logger, http.StatusBadRequest, "bad_request", "invalid tenant_id")
		return
	}

	drafts, err := s.feedback.PendingDrafts(r.Context(), tenantID)
	if err != nil {
		s.logger.Error("listing drafts failed", "tenant_id", tenantID, "error", err)
		writeError(w, s.logger, http.StatusInternalServerError, "internal", apology)
		return
	}

	out := make([]draftBody, 0, len(drafts))
	for _, d := range drafts {
		out = append(out, draftBody{
			ID:         d.ID.String(),
			InsightID:  d.InsightID.String(),
			Title:      d.Title,
			Content:    d.Content,
			Status:     d.Status,
			ReviewNote: d.ReviewNote,
			CreatedAt:  d.CreatedAt,
			UpdatedAt:  d.UpdatedAt,
		})
	}
	writeJSON(w, s.logger, http.StatusOK, map[string]any{"drafts": out})
}

// reviewRequest is the body for draft reject/revise.
type reviewRequest struct {
	Note string `json:"note"`
}

func (s *Server) draftError(w http.ResponseWriter, op string, id uuid.UUID, err error) {
	if errors.Is(err, feedback.ErrNotFound) {
		writeError(w, s.logger, http.StatusNotFound, "not_found", "draft not found")
		return
	}
	s.logger.Error("draft "+op+" failed", "draft_id", id, "error", err)
	writeError(w, s.logger, http.StatusInternalServerError, "internal", apology)
}

func (s *Server) draftID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, s.logger, http.StatusBadRequest, "bad_request", "invalid draft id")
		return uuid.Nil, false
	}
	return id, true
}

// approveDraft handles POST /v1/drafts/{id}/approve.
func (s *Server) approveDraft(w http.ResponseWriter, r *http.Request) {
	id, ok := s.draftID(w, r)
	if !ok {
		return
	}
	if err := s.feedback.ApproveDraft(r.Context(), id); err != nil {
		s.draftError(w, "approval", id, err)
		return
	}
	writeJSON(w, s.logger, http.StatusOK, map[string]string{"status": "approved"})
}

// rejectDraft handles POST /v1/drafts/{id}/reject.
func (s *Server) rejectDraft(w http.ResponseWriter, r *http.Request) {
	id, ok := s.draftID(w, r)
	if !ok {
		return
	}
	var body reviewRequest
	_ = json.NewDecoder(r.Body).Decode(&body)

	if err := s.feedback.RejectDraft(r.Context(), id, body.Note); err != nil {
		s.draftError(w, "rejection", id, err)
		return
	}
	writeJSON(w, s.logger, http.StatusOK, map[string]string{"status": "rejected"})
}

// reviseDraft handles POST /v1/drafts/{id}/revise.
func (s *Server) reviseDraft(w http.ResponseWriter, r *http.Request) {
	id, ok := s.draftID(w, r)
	if !ok {
		return
	}
	var body reviewRequest
	_ = json.NewDecoder(r.Body).Decode(&body)

	if err := s.feedback.RequestRevision(r.Context(), id, body.Note); err != nil {
		s.draftError(w, "revision", id, err)
		return
	}
	writeJSON(w, s.logger, http.StatusOK, map[string]string{"status": "revision_requested"})
}
