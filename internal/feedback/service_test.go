package feedback

import (
	"context"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/lumora-ai/lumora/internal/config"
	"github.com/lumora-ai/lumora/internal/genai"
	"github.com/lumora-ai/lumora/internal/knowledge"
	"github.com/lumora-ai/lumora/internal/log"
	"github.com/lumora-ai/lumora/internal/validate"
)

type fakeQuerier struct {
	feedback []Record
	insights map[string]Insight // tenant/pattern key
	drafts   map[uuid.UUID]Draft
	stats    []ValidationStat
}

func newFakeQuerier() *fakeQuerier {
	return &fakeQuerier{
		insights: make(map[string]Insight),
		drafts:   make(map[uuid.UUID]Draft),
	}
}

func insightKey(tenantID uuid.UUID, pattern string) string {
	return tenantID.String() + "/" + pattern
}

func (f *fakeQuerier) InsertFeedback(_ context.Context, rec Record) error {
	f.feedback = append(f.feedback, rec)
	return nil
}

func (f *fakeQuerier) FeedbackByWindow(_ context.Context, tenantID uuid.UUID, since time.Time, rating Rating) ([]Record, error) {
	var out []Record
	for _, rec := range f.feedback {
		if rec.TenantID == tenantID && rec.Rating == rating && !rec.CreatedAt.Before(since) {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (f *fakeQuerier) TenantsWithFeedback(_ context.Context, since time.Time) ([]uuid.UUID, error) {
	seen := make(map[uuid.UUID]bool)
	var out []uuid.UUID
	for _, rec := range f.feedback {
		if !rec.CreatedAt.Before(since) && !seen[rec.TenantID] {
			seen[rec.TenantID] = true
			out = append(out, rec.TenantID)
		}
	}
	return out, nil
}

func (f *fakeQuerier) UpsertInsight(_ context.Context, in Insight) (Insight, error) {
	key := insightKey(in.TenantID, in.PatternKey)
	if existing, ok := f.insights[key]; ok {
		existing.Count = in.Count
		existing.SampleQueries = in.SampleQueries
		existing.Priority = in.Priority
		if in.FirstSeen.Before(existing.FirstSeen) {
			existing.FirstSeen = in.FirstSeen
		}
		if in.LastSeen.After(existing.LastSeen) {
			existing.LastSeen = in.LastSeen
		}
		f.insights[key] = existing
		return existing, nil
	}
	f.insights[key] = in
	return in, nil
}

func (f *fakeQuerier) InsightsByTenant(_ context.Context, tenantID uuid.UUID) ([]Insight, error) {
	var out []Insight
	for _, in := range f.insights {
		if in.TenantID == tenantID {
			out = append(out, in)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PatternKey < out[j].PatternKey })
	return out, nil
}

func (f *fakeQuerier) GetInsight(_ context.Context, id uuid.UUID) (Insight, error) {
	for _, in := range f.insights {
		if in.ID == id {
			return in, nil
		}
	}
	return Insight{}, ErrNotFound
}

func (f *fakeQuerier) SetInsightDraft(_ context.Context, insightID, draftID uuid.UUID, status string) error {
	for key, in := range f.insights {
		if in.ID == insightID {
			in.DraftID = draftID
			in.Status = status
			f.insights[key] = in
			return nil
		}
	}
	return ErrNotFound
}

func (f *fakeQuerier) SetInsightStatus(_ context.Context, insightID uuid.UUID, status string) error {
	for key, in := range f.insights {
		if in.ID == insightID {
			in.Status = status
			f.insights[key] = in
			return nil
		}
	}
	return ErrNotFound
}

func (f *fakeQuerier) InsertDraft(_ context.Context, d Draft) error {
	f.drafts[d.ID] = d
	return nil
}

func (f *fakeQuerier) GetDraft(_ context.Context, id uuid.UUID) (Draft, error) {
	d, ok := f.drafts[id]
	if !ok {
		return Draft{}, ErrNotFound
	}
	return d, nil
}

func (f *fakeQuerier) DraftsByStatus(_ context.Context, tenantID uuid.UUID, status string) ([]Draft, error) {
	var out []Draft
	for _, d := range f.drafts {
		if d.TenantID == tenantID && d.Status == status {
			out = append(out, d)
		}
	}
	return out, nil
}

func (f *fakeQuerier) UpdateDraft(_ context.Context, d Draft) error {
	if _, ok := f.drafts[d.ID]; !ok {
		return ErrNotFound
	}
	f.drafts[d.ID] = d
	return nil
}

func (f *fakeQuerier) InsertValidationStat(_ context.Context, s ValidationStat) error {
	f.stats = append(f.stats, s)
	return nil
}

func (f *fakeQuerier) ValidationStats(_ context.Context, since time.Time) ([]ValidationStat, error) {
	var out []ValidationStat
	for _, s := range f.stats {
		if !s.CreatedAt.Before(since) {
			out = append(out, s)
		}
	}
	return out, nil
}

type fakePublisher struct {
	docs []knowledge.Document
	err  error
}

func (f *fakePublisher) Add(_ context.Context, doc knowledge.Document) error {
	if f.err != nil {
		return f.err
	}
	f.docs = append(f.docs, doc)
	return nil
}

func learningConfig() config.LearningConfig {
	return config.LearningConfig{
		TriggerEvery:   5,
		MinOccurrences: 3,
		Window:         7 * 24 * time.Hour,
		BatchInterval:  7 * 24 * time.Hour,
	}
}

type serviceFixture struct {
	svc        *Service
	querier    *fakeQuerier
	publisher  *fakePublisher
	generator  *genai.FakeGenerator
	thresholds *config.Store
}

func newServiceFixture(t *testing.T, script ...genai.FakeCompletion) *serviceFixture {
	t.Helper()
	if len(script) == 0 {
		script = []genai.FakeCompletion{{Text: "TITLE: Password resets\nCONTENT: Go to settings and click reset."}}
	}
	q := newFakeQuerier()
	pub := &fakePublisher{}
	gen := genai.NewFakeGenerator(script...)
	th := config.NewStore(config.DefaultThresholds, nil)

	svc, err := NewService(q, pub, gen, th, learningConfig(), log.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	return &serviceFixture{svc: svc, querier: q, publisher: pub, generator: gen, thresholds: th}
}

func negativeRecord(tenantID uuid.UUID, query string) Record {
	return Record{
		TenantID:  tenantID,
		MessageID: uuid.New(),
		Query:     query,
		Rating:    RatingNegative,
		ClientIP:  "192.168.1.100",
	}
}

func TestSubmitTriggersEveryNth(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t)
	tenantID := uuid.New()

	var triggers int
	for i := range 12 {
		due, err := f.svc.Submit(context.Background(), negativeRecord(tenantID, fmt.Sprintf("q %d", i)))
		if err != nil {
			t.Fatal(err)
		}
		if due {
			triggers++
		}
	}
	// 12 negatives with a trigger every 5th: fires at the 5th and 10th.
	if triggers != 2 {
		t.Errorf("triggers = %d, want 2", triggers)
	}
}

func TestSubmitAnonymizesIPAndAssignsID(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t)
	if _, err := f.svc.Submit(context.Background(), negativeRecord(uuid.New(), "q")); err != nil {
		t.Fatal(err)
	}
	stored := f.querier.feedback[0]
	if stored.ClientIP != "192.168.1.0" {
		t.Errorf("stored IP = %q, want anonymized", stored.ClientIP)
	}
	if stored.ID == uuid.Nil || stored.CreatedAt.IsZero() {
		t.Error("ID or timestamp not assigned")
	}
}

func TestSubmitPositiveNeverTriggers(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t)
	tenantID := uuid.New()
	for range 10 {
		rec := negativeRecord(tenantID, "q")
		rec.Rating = RatingPositive
		due, err := f.svc.Submit(context.Background(), rec)
		if err != nil {
			t.Fatal(err)
		}
		if due {
			t.Fatal("positive feedback must not trigger analysis")
		}
	}
}

func TestSubmitRejectsInvalid(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t)
	rec := negativeRecord(uuid.New(), "q")
	rec.Rating = "meh"
	if _, err := f.svc.Submit(context.Background(), rec); err == nil {
		t.Error("expected error for unknown rating")
	}
	rec = negativeRecord(uuid.Nil, "q")
	if _, err := f.svc.Submit(context.Background(), rec); err == nil {
		t.Error("expected error for missing tenant")
	}
}

func TestAnalyzeBatchDetectsKnowledgeGap(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t)
	tenantID := uuid.New()
	ctx := context.Background()

	// Three phrasings normalizing to the same key plus one unrelated query
	// below the occurrence floor.
	for _, q := range []string{"how do I reset my password?", "reset password", "can you reset password"} {
		if _, err := f.svc.Submit(ctx, negativeRecord(tenantID, q)); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := f.svc.Submit(ctx, negativeRecord(tenantID, "where is my invoice")); err != nil {
		t.Fatal(err)
	}

	insights, err := f.svc.AnalyzeBatch(ctx, tenantID)
	if err != nil {
		t.Fatal(err)
	}
	if len(insights) != 1 {
		t.Fatalf("insights = %d, want 1 (only the recurring pattern)", len(insights))
	}
	for _, in := range insights {
		if in.Count < f.svc.cfg.MinOccurrences {
			t.Errorf("insight %q below occurrence floor: %d", in.PatternKey, in.Count)
		}
		if in.DraftID == uuid.Nil {
			t.Errorf("insight %q has no draft", in.PatternKey)
		}
		if in.Status != InsightDrafting {
			t.Errorf("insight %q status = %q", in.PatternKey, in.Status)
		}
	}

	if len(f.querier.drafts) == 0 {
		t.Fatal("no draft generated")
	}
	for _, d := range f.querier.drafts {
		if d.Status != DraftPending {
			t.Errorf("draft status = %q, want pending", d.Status)
		}
		if d.Title != "Password resets" {
			t.Errorf("draft title = %q", d.Title)
		}
	}
}

func TestAnalyzeBatchIdempotent(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t)
	tenantID := uuid.New()
	ctx := context.Background()

	for range 4 {
		if _, err := f.svc.Submit(ctx, negativeRecord(tenantID, "reset password")); err != nil {
			t.Fatal(err)
		}
	}

	first, err := f.svc.AnalyzeBatch(ctx, tenantID)
	if err != nil {
		t.Fatal(err)
	}
	second, err := f.svc.AnalyzeBatch(ctx, tenantID)
	if err != nil {
		t.Fatal(err)
	}

	if len(first) != 1 || len(second) != 1 {
		t.Fatalf("insights = %d then %d, want 1 and 1", len(first), len(second))
	}
	if first[0].PatternKey != second[0].PatternKey || first[0].Count != second[0].Count {
		t.Errorf("re-aggregation changed the insight: %+v vs %+v", first[0], second[0])
	}
	if len(f.querier.insights) != 1 {
		t.Errorf("stored insights = %d, want 1 (no duplicates)", len(f.querier.insights))
	}
	if len(f.querier.drafts) != 1 {
		t.Errorf("drafts = %d, want 1 (no regeneration while one exists)", len(f.querier.drafts))
	}
}

func TestApproveDraftPublishes(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t)
	tenantID := uuid.New()
	ctx := context.Background()

	for range 3 {
		if _, err := f.svc.Submit(ctx, negativeRecord(tenantID, "reset password")); err != nil {
			t.Fatal(err)
		}
	}
	insights, err := f.svc.AnalyzeBatch(ctx, tenantID)
	if err != nil {
		t.Fatal(err)
	}
	draftID := insights[0].DraftID

	if err := f.svc.ApproveDraft(ctx, draftID); err != nil {
		t.Fatal(err)
	}

	if len(f.publisher.docs) != 1 {
		t.Fatalf("published docs = %d, want 1", len(f.publisher.docs))
	}
	doc := f.publisher.docs[0]
	if doc.TenantID != tenantID {
		t.Error("published doc has wrong tenant")
	}
	if doc.Metadata["source_type"] != knowledge.SourceTypeLearned {
		t.Errorf("source_type = %q, want learned", doc.Metadata["source_type"])
	}

	d, err := f.querier.GetDraft(ctx, draftID)
	if err != nil {
		t.Fatal(err)
	}
	if d.Status != DraftApproved {
		t.Errorf("draft status = %q", d.Status)
	}
	in, err := f.querier.GetInsight(ctx, insights[0].ID)
	if err != nil {
		t.Fatal(err)
	}
	if in.Status != InsightResolved {
		t.Errorf("insight status = %q, want resolved", in.Status)
	}

	// Approving again is a no-op, not a double publish.
	if err := f.svc.ApproveDraft(ctx, draftID); err != nil {
		t.Fatal(err)
	}
	if len(f.publisher.docs) != 1 {
		t.Error("second approval published again")
	}
}

func TestRejectDraftReopensInsight(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t)
	tenantID := uuid.New()
	ctx := context.Background()

	for range 3 {
		if _, err := f.svc.Submit(ctx, negativeRecord(tenantID, "reset password")); err != nil {
			t.Fatal(err)
		}
	}
	insights, err := f.svc.AnalyzeBatch(ctx, tenantID)
	if err != nil {
		t.Fatal(err)
	}

	if err := f.svc.RejectDraft(ctx, insights[0].DraftID, "too vague"); err != nil {
		t.Fatal(err)
	}

	d, _ := f.querier.GetDraft(ctx, insights[0].DraftID)
	if d.Status != DraftRejected || d.ReviewNote != "too vague" {
		t.Errorf("draft = %+v", d)
	}
	in, _ := f.querier.GetInsight(ctx, insights[0].ID)
	if in.Status != InsightOpen {
		t.Errorf("insight status = %q, want open after rejection", in.Status)
	}
	if in.DraftID == uuid.Nil {
		t.Error("insight lost its draft link; the link is lookup-only")
	}
}

func TestRequestRevisionRegenerates(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t,
		genai.FakeCompletion{Text: "TITLE: Password resets\nCONTENT: Original body."},
		genai.FakeCompletion{Text: "TITLE: Resetting your password\nCONTENT: Revised body with steps."},
	)
	tenantID := uuid.New()
	ctx := context.Background()

	for range 3 {
		if _, err := f.svc.Submit(ctx, negativeRecord(tenantID, "reset password")); err != nil {
			t.Fatal(err)
		}
	}
	insights, err := f.svc.AnalyzeBatch(ctx, tenantID)
	if err != nil {
		t.Fatal(err)
	}

	if err := f.svc.RequestRevision(ctx, insights[0].DraftID, "add concrete steps"); err != nil {
		t.Fatal(err)
	}

	d, _ := f.querier.GetDraft(ctx, insights[0].DraftID)
	if d.Status != DraftPending {
		t.Errorf("draft status = %q, want pending after revision", d.Status)
	}
	if d.Content != "Revised body with steps." {
		t.Errorf("content = %q", d.Content)
	}
	if d.ReviewNote != "add concrete steps" {
		t.Errorf("review note = %q", d.ReviewNote)
	}
}

func TestApplyThresholdAdjustments(t *testing.T) {
	t.Parallel()

	t.Run("grounding failures raise similarity", func(t *testing.T) {
		t.Parallel()
		f := newServiceFixture(t)
		ctx := context.Background()
		tenantID := uuid.New()

		for range 10 {
			if err := f.svc.RecordValidation(ctx, tenantID, true, nil); err != nil {
				t.Fatal(err)
			}
		}
		for range 12 {
			if err := f.svc.RecordValidation(ctx, tenantID, false, []string{validate.IssueNotGrounded}); err != nil {
				t.Fatal(err)
			}
		}

		if err := f.svc.ApplyThresholdAdjustments(ctx); err != nil {
			t.Fatal(err)
		}
		got := f.thresholds.Snapshot().Similarity
		want := config.DefaultThresholds.Similarity + 0.05
		if got != want {
			t.Errorf("similarity = %v, want %v", got, want)
		}
	})

	t.Run("too few samples is a no-op", func(t *testing.T) {
		t.Parallel()
		f := newServiceFixture(t)
		ctx := context.Background()

		for range 5 {
			if err := f.svc.RecordValidation(ctx, uuid.New(), false, []string{validate.IssueNotGrounded}); err != nil {
				t.Fatal(err)
			}
		}
		if err := f.svc.ApplyThresholdAdjustments(ctx); err != nil {
			t.Fatal(err)
		}
		if got := f.thresholds.Snapshot(); got != config.DefaultThresholds {
			t.Errorf("thresholds changed on thin data: %+v", got)
		}
	})
}
