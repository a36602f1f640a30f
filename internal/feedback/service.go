package feedback

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lumora-ai/lumora/internal/config"
	"github.com/lumora-ai/lumora/internal/genai"
	"github.com/lumora-ai/lumora/internal/knowledge"
	"github.com/lumora-ai/lumora/internal/log"
	"github.com/lumora-ai/lumora/internal/validate"
)

// ValidationStat is one recorded validation outcome, the raw material for
// threshold adjustment.
type ValidationStat struct {
	ID        uuid.UUID
	TenantID  uuid.UUID
	Passed    bool
	Issues    []string
	CreatedAt time.Time
}

// Querier defines the database operations the learning loop needs. The pgx
// implementation lives in postgres.go.
type Querier interface {
	// InsertFeedback appends one record. Records are never updated.
	InsertFeedback(ctx context.Context, rec Record) error

	// FeedbackByWindow returns the tenant's records with the given rating
	// created at or after since.
	FeedbackByWindow(ctx context.Context, tenantID uuid.UUID, since time.Time, rating Rating) ([]Record, error)

	// TenantsWithFeedback lists tenants having any feedback since the cutoff.
	TenantsWithFeedback(ctx context.Context, since time.Time) ([]uuid.UUID, error)

	// UpsertInsight inserts or refreshes an insight keyed by
	// (tenant_id, pattern_key), preserving status and draft link on update.
	// Returns the stored row.
	UpsertInsight(ctx context.Context, in Insight) (Insight, error)

	// InsightsByTenant lists the tenant's insights, most recent first.
	InsightsByTenant(ctx context.Context, tenantID uuid.UUID) ([]Insight, error)

	// GetInsight fetches one insight.
	GetInsight(ctx context.Context, id uuid.UUID) (Insight, error)

	// SetInsightDraft links a draft and updates the insight status.
	SetInsightDraft(ctx context.Context, insightID, draftID uuid.UUID, status string) error

	// SetInsightStatus updates only the status.
	SetInsightStatus(ctx context.Context, insightID uuid.UUID, status string) error

	// InsertDraft stores a new draft.
	InsertDraft(ctx context.Context, d Draft) error

	// GetDraft fetches one draft.
	GetDraft(ctx context.Context, id uuid.UUID) (Draft, error)

	// DraftsByStatus lists the tenant's drafts in one lifecycle state,
	// most recent first.
	DraftsByStatus(ctx context.Context, tenantID uuid.UUID, status string) ([]Draft, error)

	// UpdateDraft persists status, content and review note changes.
	UpdateDraft(ctx context.Context, d Draft) error

	// InsertValidationStat appends one validation outcome.
	InsertValidationStat(ctx context.Context, s ValidationStat) error

	// ValidationStats returns outcomes recorded at or after since.
	ValidationStats(ctx context.Context, since time.Time) ([]ValidationStat, error)
}

// Publisher publishes approved drafts into the knowledge base.
type Publisher interface {
	Add(ctx context.Context, doc knowledge.Document) error
}

// Service is the feedback aggregator and learning loop.
type Service struct {
	querier    Querier
	publisher  Publisher
	gen        genai.Generator
	thresholds *config.Store
	cfg        config.LearningConfig
	logger     log.Logger

	mu sync.Mutex
	// negatives counts negative feedback per tenant since the last
	// real-time analysis trigger.
	negatives map[uuid.UUID]int
}

// NewService creates the learning loop service.
func NewService(querier Querier, publisher Publisher, gen genai.Generator, thresholds *config.Store, cfg config.LearningConfig, logger log.Logger) (*Service, error) {
	if querier == nil {
		return nil, fmt.Errorf("querier is required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("publisher is required")
	}
	if gen == nil {
		return nil, fmt.Errorf("generator is required")
	}
	if thresholds == nil {
		return nil, fmt.Errorf("threshold store is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return &Service{
		querier:    querier,
		publisher:  publisher,
		gen:        gen,
		thresholds: thresholds,
		cfg:        cfg,
		logger:     logger,
		negatives:  make(map[uuid.UUID]int),
	}, nil
}

// Submit stores one feedback record. The returned flag reports whether the
// real-time trigger fired: every Nth negative feedback for a tenant since
// the last trigger asks the caller to schedule an analysis run.
func (s *Service) Submit(ctx context.Context, rec Record) (bool, error) {
	if !ValidRating(rec.Rating) {
		return false, fmt.Errorf("unknown rating %q", rec.Rating)
	}
	if rec.TenantID == uuid.Nil || rec.MessageID == uuid.Nil {
		return false, fmt.Errorf("tenant and message IDs are required")
	}
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	rec.ClientIP = AnonymizeIP(rec.ClientIP)

	if err := s.querier.InsertFeedback(ctx, rec); err != nil {
		return false, fmt.Errorf("storing feedback: %w", err)
	}

	if rec.Rating != RatingNegative {
		return false, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.negatives[rec.TenantID]++
	if s.cfg.TriggerEvery > 0 && s.negatives[rec.TenantID] >= s.cfg.TriggerEvery {
		s.negatives[rec.TenantID] = 0
		return true, nil
	}
	return false, nil
}

// RecordValidation stores one validation outcome for threshold tuning.
func (s *Service) RecordValidation(ctx context.Context, tenantID uuid.UUID, passed bool, issues []string) error {
	stat := ValidationStat{
		ID:        uuid.New(),
		TenantID:  tenantID,
		Passed:    passed,
		Issues:    issues,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.querier.InsertValidationStat(ctx, stat); err != nil {
		return fmt.Errorf("recording validation outcome: %w", err)
	}
	return nil
}

// AnalyzeBatch groups the tenant's negative feedback in the recency window
// by pattern key and upserts an insight for every pattern at or above the
// occurrence floor. Patterns whose insight has no draft yet get one
// generated. Re-running over an unchanged window reproduces the same keys
// and counts.
func (s *Service) AnalyzeBatch(ctx context.Context, tenantID uuid.UUID) ([]Insight, error) {
	since := time.Now().UTC().Add(-s.cfg.Window)
	records, err := s.querier.FeedbackByWindow(ctx, tenantID, since, RatingNegative)
	if err != nil {
		return nil, fmt.Errorf("loading negative feedback: %w", err)
	}

	type group struct {
		count     int
		samples   []string
		firstSeen time.Time
		lastSeen  time.Time
	}
	groups := make(map[string]*group)
	for _, rec := range records {
		key := PatternKey(rec.Query)
		if key == "" {
			continue
		}
		g, ok := groups[key]
		if !ok {
			g = &group{firstSeen: rec.CreatedAt, lastSeen: rec.CreatedAt}
			groups[key] = g
		}
		g.count++
		if len(g.samples) < 5 {
			g.samples = append(g.samples, rec.Query)
		}
		if rec.CreatedAt.Before(g.firstSeen) {
			g.firstSeen = rec.CreatedAt
		}
		if rec.CreatedAt.After(g.lastSeen) {
			g.lastSeen = rec.CreatedAt
		}
	}

	keys := make([]string, 0, len(groups))
	for key, g := range groups {
		if g.count >= s.cfg.MinOccurrences {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	var insights []Insight
	for _, key := range keys {
		g := groups[key]
		stored, err := s.querier.UpsertInsight(ctx, Insight{
			ID:            uuid.New(),
			TenantID:      tenantID,
			PatternKey:    key,
			Count:         g.count,
			SampleQueries: g.samples,
			Priority:      priorityFor(g.count),
			Status:        InsightOpen,
			FirstSeen:     g.firstSeen,
			LastSeen:      g.lastSeen,
		})
		if err != nil {
			return nil, fmt.Errorf("upserting insight %q: %w", key, err)
		}

		if stored.DraftID == uuid.Nil && stored.Status != InsightResolved {
			if err := s.generateDraft(ctx, &stored); err != nil {
				// Draft generation failure leaves the insight open for the
				// next pass.
				s.logger.Warn("draft generation failed",
					"tenant_id", tenantID, "pattern", key, "error", err)
			}
		}
		insights = append(insights, stored)
	}

	s.logger.Info("feedback batch analyzed",
		"tenant_id", tenantID,
		"records", len(records),
		"insights", len(insights))
	return insights, nil
}

// AnalyzeAll runs AnalyzeBatch for every tenant with recent feedback. The
// scheduled weekly entry point.
func (s *Service) AnalyzeAll(ctx context.Context) error {
	since := time.Now().UTC().Add(-s.cfg.Window)
	tenants, err := s.querier.TenantsWithFeedback(ctx, since)
	if err != nil {
		return fmt.Errorf("listing tenants with feedback: %w", err)
	}
	for _, tenantID := range tenants {
		if _, err := s.AnalyzeBatch(ctx, tenantID); err != nil {
			s.logger.Error("batch analysis failed", "tenant_id", tenantID, "error", err)
		}
	}
	return nil
}

const draftPrompt = `Customers repeatedly asked questions our knowledge base could not answer.

Sample questions:
%s

Write a knowledge-base article that answers them. Respond with exactly:
TITLE: <short article title>
CONTENT: <the article body, plain text>`

func (s *Service) generateDraft(ctx context.Context, in *Insight) error {
	samples := "- " + strings.Join(in.SampleQueries, "\n- ")
	out, err := s.gen.Complete(ctx, []genai.Message{genai.User(fmt.Sprintf(draftPrompt, samples))}, genai.Options{
		Temperature: 0.4,
		MaxTokens:   1024,
	})
	if err != nil {
		return fmt.Errorf("generating draft: %w", err)
	}

	title, content := parseDraftResponse(out)
	if content == "" {
		return fmt.Errorf("draft response had no content")
	}
	if title == "" {
		title = "Suggested article: " + in.PatternKey
	}

	now := time.Now().UTC()
	draft := Draft{
		ID:        uuid.New(),
		TenantID:  in.TenantID,
		InsightID: in.ID,
		Title:     title,
		Content:   content,
		Status:    DraftPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.querier.InsertDraft(ctx, draft); err != nil {
		return fmt.Errorf("storing draft: %w", err)
	}
	if err := s.querier.SetInsightDraft(ctx, in.ID, draft.ID, InsightDrafting); err != nil {
		return fmt.Errorf("linking draft: %w", err)
	}
	in.DraftID = draft.ID
	in.Status = InsightDrafting
	return nil
}

// parseDraftResponse extracts TITLE and CONTENT labels. Everything after the
// CONTENT label, including later lines, is the body.
func parseDraftResponse(out string) (title, content string) {
	lines := strings.Split(out, "\n")
	for i, line := range lines {
		label, value, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		switch strings.ToUpper(strings.TrimSpace(label)) {
		case "TITLE":
			title = strings.TrimSpace(value)
		case "CONTENT":
			rest := append([]string{strings.TrimSpace(value)}, lines[i+1:]...)
			content = strings.TrimSpace(strings.Join(rest, "\n"))
			return title, content
		}
	}
	return title, content
}

// ApproveDraft publishes the draft as a learned knowledge document and
// resolves its insight.
func (s *Service) ApproveDraft(ctx context.Context, draftID uuid.UUID) error {
	draft, err := s.querier.GetDraft(ctx, draftID)
	if err != nil {
		return fmt.Errorf("loading draft: %w", err)
	}
	if draft.Status == DraftApproved {
		return nil
	}

	err = s.publisher.Add(ctx, knowledge.Document{
		TenantID: draft.TenantID,
		Title:    draft.Title,
		Content:  draft.Content,
		Metadata: map[string]string{"source_type": knowledge.SourceTypeLearned},
	})
	if err != nil {
		return fmt.Errorf("publishing draft %q: %w", draftID, err)
	}

	draft.Status = DraftApproved
	draft.UpdatedAt = time.Now().UTC()
	if err := s.querier.UpdateDraft(ctx, draft); err != nil {
		return fmt.Errorf("updating draft: %w", err)
	}
	if err := s.querier.SetInsightStatus(ctx, draft.InsightID, InsightResolved); err != nil {
		return fmt.Errorf("resolving insight: %w", err)
	}

	s.logger.Info("draft approved and published",
		"draft_id", draftID, "tenant_id", draft.TenantID)
	return nil
}

// RejectDraft marks the draft rejected. Its insight stays open so a later
// pass can try again.
func (s *Service) RejectDraft(ctx context.Context, draftID uuid.UUID, note string) error {
	draft, err := s.querier.GetDraft(ctx, draftID)
	if err != nil {
		return fmt.Errorf("loading draft: %w", err)
	}
	draft.Status = DraftRejected
	draft.ReviewNote = note
	draft.UpdatedAt = time.Now().UTC()
	if err := s.querier.UpdateDraft(ctx, draft); err != nil {
		return fmt.Errorf("updating draft: %w", err)
	}
	if err := s.querier.SetInsightStatus(ctx, draft.InsightID, InsightOpen); err != nil {
		return fmt.Errorf("reopening insight: %w", err)
	}
	return nil
}

// RequestRevision regenerates the draft content with the reviewer's note
// folded into the prompt and returns it to the pending state.
func (s *Service) RequestRevision(ctx context.Context, draftID uuid.UUID, note string) error {
	draft, err := s.querier.GetDraft(ctx, draftID)
	if err != nil {
		return fmt.Errorf("loading draft: %w", err)
	}

	prompt := fmt.Sprintf("Revise the following knowledge-base article.\n\nReviewer note: %s\n\nTITLE: %s\nCONTENT: %s\n\nRespond with exactly:\nTITLE: <title>\nCONTENT: <body>",
		note, draft.Title, draft.Content)
	out, err := s.gen.Complete(ctx, []genai.Message{genai.User(prompt)}, genai.Options{
		Temperature: 0.4,
		MaxTokens:   1024,
	})
	if err != nil {
		// The note is preserved either way so a human can revise manually.
		draft.Status = DraftNeedsRevision
		draft.ReviewNote = note
		draft.UpdatedAt = time.Now().UTC()
		if uerr := s.querier.UpdateDraft(ctx, draft); uerr != nil {
			return fmt.Errorf("updating draft after failed revision: %w", uerr)
		}
		return fmt.Errorf("regenerating draft: %w", err)
	}

	title, content := parseDraftResponse(out)
	if title != "" {
		draft.Title = title
	}
	if content != "" {
		draft.Content = content
		draft.Status = DraftPending
	} else {
		draft.Status = DraftNeedsRevision
	}
	draft.ReviewNote = note
	draft.UpdatedAt = time.Now().UTC()
	if err := s.querier.UpdateDraft(ctx, draft); err != nil {
		return fmt.Errorf("updating revised draft: %w", err)
	}
	return nil
}

// Minimum recorded outcomes before threshold adjustment acts. Below this the
// pass-rate signal is noise.
const minStatsForAdjustment = 20

// ApplyThresholdAdjustments nudges the live thresholds from recent
// validation outcomes: when grounding failures dominate the failed
// validations, the retrieval similarity floor rises; when nearly everything
// passes, a previously raised floor relaxes back toward its default.
func (s *Service) ApplyThresholdAdjustments(ctx context.Context) error {
	since := time.Now().UTC().Add(-s.cfg.Window)
	stats, err := s.querier.ValidationStats(ctx, since)
	if err != nil {
		return fmt.Errorf("loading validation stats: %w", err)
	}
	if len(stats) < minStatsForAdjustment {
		return nil
	}

	var passed, failed, groundingFailures int
	for _, st := range stats {
		if st.Passed {
			passed++
			continue
		}
		failed++
		for _, issue := range st.Issues {
			if issue == validate.IssueNotGrounded || issue == validate.IssueHallucination {
				groundingFailures++
				break
			}
		}
	}
	passRate := float64(passed) / float64(len(stats))

	_, err = s.thresholds.Adjust(ctx, func(t config.Thresholds) config.Thresholds {
		switch {
		case failed > 0 && float64(groundingFailures)/float64(failed) > 0.5:
			t.Similarity += 0.05
		case passRate > 0.95 && t.Similarity > config.DefaultThresholds.Similarity:
			t.Similarity -= 0.02
		}
		return t
	})
	if err != nil {
		return fmt.Errorf("adjusting thresholds: %w", err)
	}

	s.logger.Info("threshold adjustment applied",
		"pass_rate", passRate,
		"grounding_failures", groundingFailures,
		"samples", len(stats))
	return nil
}

// Insights lists a tenant's insights.
func (s *Service) Insights(ctx context.Context, tenantID uuid.UUID) ([]Insight, error) {
	return s.querier.InsightsByTenant(ctx, tenantID)
}

// PendingDrafts lists the tenant's drafts awaiting review.
func (s *Service) PendingDrafts(ctx context.Context, tenantID uuid.UUID) ([]Draft, error) {
	return s.querier.DraftsByStatus(ctx, tenantID, DraftPending)
}
