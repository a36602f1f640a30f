package feedback

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lumora-ai/lumora/internal/config"
)

// ErrNotFound indicates the requested row does not exist.
var ErrNotFound = errors.New("not found")

// PGQuerier is the pgx-backed Querier. It also implements
// config.ThresholdPersister against the thresholds table.
type PGQuerier struct {
	pool *pgxpool.Pool
}

// NewPGQuerier creates a PGQuerier.
func NewPGQuerier(pool *pgxpool.Pool) (*PGQuerier, error) {
	if pool == nil {
		return nil, fmt.Errorf("connection pool is required")
	}
	return &PGQuerier{pool: pool}, nil
}

// InsertFeedback implements Querier.
func (q *PGQuerier) InsertFeedback(ctx context.Context, rec Record) error {
	_, err := q.pool.Exec(ctx, `
		INSERT INTO feedback (id, tenant_id, message_id, query, rating, comment, client_ip, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		rec.ID, rec.TenantID, rec.MessageID, rec.Query, string(rec.Rating), rec.Comment, rec.ClientIP, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting feedback: %w", err)
	}
	return nil
}

// FeedbackByWindow implements Querier.
func (q *PGQuerier) FeedbackByWindow(ctx context.Context, tenantID uuid.UUID, since time.Time, rating Rating) ([]Record, error) {
	rows, err := q.pool.Query(ctx, `
		SELECT id, tenant_id, message_id, query, rating, comment, client_ip, created_at
		FROM feedback
		WHERE tenant_id = $1 AND created_at >= $2 AND rating = $3
		ORDER BY created_at ASC`,
		tenantID, since, string(rating))
	if err != nil {
		return nil, fmt.Errorf("querying feedback: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		var ratingStr string
		if err := rows.Scan(&rec.ID, &rec.TenantID, &rec.MessageID, &rec.Query,
			&ratingStr, &rec.Comment, &rec.ClientIP, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning feedback: %w", err)
		}
		rec.Rating = Rating(ratingStr)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading feedback: %w", err)
	}
	return records, nil
}

// TenantsWithFeedback implements Querier.
func (q *PGQuerier) TenantsWithFeedback(ctx context.Context, since time.Time) ([]uuid.UUID, error) {
	rows, err := q.pool.Query(ctx, `
		SELECT DISTINCT tenant_id FROM feedback WHERE created_at >= $1`, since)
	if err != nil {
		return nil, fmt.Errorf("querying tenants: %w", err)
	}
	defer rows.Close()

	var tenants []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning tenant: %w", err)
		}
		tenants = append(tenants, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading tenants: %w", err)
	}
	return tenants, nil
}

// UpsertInsight implements Querier. Conflict on (tenant_id, pattern_key)
// refreshes counts, samples, priority and seen range but keeps the existing
// id, status and draft link.
func (q *PGQuerier) UpsertInsight(ctx context.Context, in Insight) (Insight, error) {
	row := q.pool.QueryRow(ctx, `
		INSERT INTO insights (id, tenant_id, pattern_key, count, sample_queries, priority, status, draft_id, first_seen, last_seen)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULL, $8, $9)
		ON CONFLICT (tenant_id, pattern_key) DO UPDATE SET
			count = EXCLUDED.count,
			sample_queries = EXCLUDED.sample_queries,
			priority = EXCLUDED.priority,
			first_seen = LEAST(insights.first_seen, EXCLUDED.first_seen),
			last_seen = GREATEST(insights.last_seen, EXCLUDED.last_seen)
		RETURNING id, tenant_id, pattern_key, count, sample_queries, priority, status, COALESCE(draft_id, '00000000-0000-0000-0000-000000000000'::uuid), first_seen, last_seen`,
		in.ID, in.TenantID, in.PatternKey, in.Count, in.SampleQueries, in.Priority, in.Status, in.FirstSeen, in.LastSeen)

	var stored Insight
	if err := row.Scan(&stored.ID, &stored.TenantID, &stored.PatternKey, &stored.Count,
		&stored.SampleQueries, &stored.Priority, &stored.Status, &stored.DraftID,
		&stored.FirstSeen, &stored.LastSeen); err != nil {
		return Insight{}, fmt.Errorf("upserting insight: %w", err)
	}
	return stored, nil
}

// InsightsByTenant implements Querier.
func (q *PGQuerier) InsightsByTenant(ctx context.Context, tenantID uuid.UUID) ([]Insight, error) {
	rows, err := q.pool.Query(ctx, `
		SELECT id, tenant_id, pattern_key, count, sample_queries, priority, status, COALESCE(draft_id, '00000000-0000-0000-0000-000000000000'::uuid), first_seen, last_seen
		FROM insights
		WHERE tenant_id = $1
		ORDER BY last_seen DESC`,
		tenantID)
	if err != nil {
		return nil, fmt.Errorf("querying insights: %w", err)
	}
	defer rows.Close()

	var insights []Insight
	for rows.Next() {
		var in Insight
		if err := rows.Scan(&in.ID, &in.TenantID, &in.PatternKey, &in.Count,
			&in.SampleQueries, &in.Priority, &in.Status, &in.DraftID,
			&in.FirstSeen, &in.LastSeen); err != nil {
			return nil, fmt.Errorf("scanning insight: %w", err)
		}
		insights = append(insights, in)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading insights: %w", err)
	}
	return insights, nil
}

// GetInsight implements Querier.
func (q *PGQuerier) GetInsight(ctx context.Context, id uuid.UUID) (Insight, error) {
	row := q.pool.QueryRow(ctx, `
		SELECT id, tenant_id, pattern_key, count, sample_queries, priority, status, COALESCE(draft_id, '00000000-0000-0000-0000-000000000000'::uuid), first_seen, last_seen
		FROM insights WHERE id = $1`, id)

	var in Insight
	err := row.Scan(&in.ID, &in.TenantID, &in.PatternKey, &in.Count,
		&in.SampleQueries, &in.Priority, &in.Status, &in.DraftID,
		&in.FirstSeen, &in.LastSeen)
	if errors.Is(err, pgx.ErrNoRows) {
		return Insight{}, fmt.Errorf("insight %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return Insight{}, fmt.Errorf("getting insight: %w", err)
	}
	return in, nil
}

// SetInsightDraft implements Querier.
func (q *PGQuerier) SetInsightDraft(ctx context.Context, insightID, draftID uuid.UUID, status string) error {
	tag, err := q.pool.Exec(ctx, `
		UPDATE insights SET draft_id = $2, status = $3 WHERE id = $1`,
		insightID, draftID, status)
	if err != nil {
		return fmt.Errorf("linking draft: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("insight %q: %w", insightID, ErrNotFound)
	}
	return nil
}

// SetInsightStatus implements Querier.
func (q *PGQuerier) SetInsightStatus(ctx context.Context, insightID uuid.UUID, status string) error {
	tag, err := q.pool.Exec(ctx, `UPDATE insights SET status = $2 WHERE id = $1`, insightID, status)
	if err != nil {
		return fmt.Errorf("updating insight status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("insight %q: %w", insightID, ErrNotFound)
	}
	return nil
}

// InsertDraft implements Querier.
func (q *PGQuerier) InsertDraft(ctx context.Context, d Draft) error {
	_, err := q.pool.Exec(ctx, `
		INSERT INTO drafts (id, tenant_id, insight_id, title, content, status, review_note, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		d.ID, d.TenantID, d.InsightID, d.Title, d.Content, d.Status, d.ReviewNote, d.CreatedAt, d.UpdatedAt)
	if err != nil {
		return fmt.Errorf("inserting draft: %w", err)
	}
	return nil
}

// GetDraft implements Querier.
func (q *PGQuerier) GetDraft(ctx context.Context, id uuid.UUID) (Draft, error) {
	row := q.pool.QueryRow(ctx, `
		SELECT id, tenant_id, insight_id, title, content, status, review_note, created_at, updated_at
		FROM drafts WHERE id = $1`, id)

	var d Draft
	err := row.Scan(&d.ID, &d.TenantID, &d.InsightID, &d.Title, &d.Content,
		&d.Status, &d.ReviewNote, &d.CreatedAt, &d.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Draft{}, fmt.Errorf("draft %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return Draft{}, fmt.Errorf("getting draft: %w", err)
	}
	return d, nil
}

// DraftsByStatus implements Querier.
func (q *PGQuerier) DraftsByStatus(ctx context.Context, tenantID uuid.UUID, status string) ([]Draft, error) {
	rows, err := q.pool.Query(ctx, `
		SELECT id, tenant_id, insight_id, title, content, status, review_note, created_at, updated_at
		FROM drafts
		WHERE tenant_id = $1 AND status = $2
		ORDER BY updated_at DESC`, tenantID, status)
	if err != nil {
		return nil, fmt.Errorf("listing drafts: %w", err)
	}
	defer rows.Close()

	var out []Draft
	for rows.Next() {
		var d Draft
		if err := rows.Scan(&d.ID, &d.TenantID, &d.InsightID, &d.Title, &d.Content,
			&d.Status, &d.ReviewNote, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning draft: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// UpdateDraft implements Querier.
func (q *PGQuerier) UpdateDraft(ctx context.Context, d Draft) error {
	tag, err := q.pool.Exec(ctx, `
		UPDATE drafts SET title = $2, content = $3, status = $4, review_note = $5, updated_at = $6
		WHERE id = $1`,
		d.ID, d.Title, d.Content, d.Status, d.ReviewNote, d.UpdatedAt)
	if err != nil {
		return fmt.Errorf("updating draft: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("draft %q: %w", d.ID, ErrNotFound)
	}
	return nil
}

// InsertValidationStat implements Querier.
func (q *PGQuerier) InsertValidationStat(ctx context.Context, s ValidationStat) error {
	_, err := q.pool.Exec(ctx, `
		INSERT INTO validation_stats (id, tenant_id, passed, issues, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		s.ID, s.TenantID, s.Passed, s.Issues, s.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting validation stat: %w", err)
	}
	return nil
}

// ValidationStats implements Querier.
func (q *PGQuerier) ValidationStats(ctx context.Context, since time.Time) ([]ValidationStat, error) {
	rows, err := q.pool.Query(ctx, `
		SELECT id, tenant_id, passed, issues, created_at
		FROM validation_stats
		WHERE created_at >= $1`, since)
	if err != nil {
		return nil, fmt.Errorf("querying validation stats: %w", err)
	}
	defer rows.Close()

	var stats []ValidationStat
	for rows.Next() {
		var s ValidationStat
		if err := rows.Scan(&s.ID, &s.TenantID, &s.Passed, &s.Issues, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning validation stat: %w", err)
		}
		stats = append(stats, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading validation stats: %w", err)
	}
	return stats, nil
}

// LoadThresholds implements config.ThresholdPersister.
func (q *PGQuerier) LoadThresholds(ctx context.Context) (config.Thresholds, bool, error) {
	row := q.pool.QueryRow(ctx, `
		SELECT pattern_confidence, semantic_confidence, llm_confidence, similarity, validation_confidence
		FROM thresholds WHERE id = 1`)

	var t config.Thresholds
	err := row.Scan(&t.PatternConfidence, &t.SemanticConfidence, &t.LLMConfidence,
		&t.Similarity, &t.ValidationConfidence)
	if errors.Is(err, pgx.ErrNoRows) {
		return config.Thresholds{}, false, nil
	}
	if err != nil {
		return config.Thresholds{}, false, fmt.Errorf("loading thresholds: %w", err)
	}
	return t, true, nil
}

// SaveThresholds implements config.ThresholdPersister.
func (q *PGQuerier) SaveThresholds(ctx context.Context, t config.Thresholds) error {
	_, err := q.pool.Exec(ctx, `
		INSERT INTO thresholds (id, pattern_confidence, semantic_confidence, llm_confidence, similarity, validation_confidence, updated_at)
		VALUES (1, $1, $2, $3, $4, $5, now())
		ON CONFLICT (id) DO UPDATE SET
			pattern_confidence = EXCLUDED.pattern_confidence,
			semantic_confidence = EXCLUDED.semantic_confidence,
			llm_confidence = EXCLUDED.llm_confidence,
			similarity = EXCLUDED.similarity,
			validation_confidence = EXCLUDED.validation_confidence,
			updated_at = now()`,
		t.PatternConfidence, t.SemanticConfidence, t.LLMConfidence, t.Similarity, t.ValidationConfidence)
	if err != nil {
		return fmt.Errorf("saving thresholds: %w", err)
	}
	return nil
}
