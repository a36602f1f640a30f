package knowledge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// ErrNotFound indicates the requested document does not exist for the tenant.
var ErrNotFound = errors.New("document not found")

// PGQuerier implements Querier on PostgreSQL + pgvector.
//
// Embeddings are stored in a vector column and compared with the cosine
// distance operator; similarity is 1 - distance, matching the [0,1] range the
// retriever thresholds use.
type PGQuerier struct {
	pool *pgxpool.Pool
}

// NewPGQuerier creates a PGQuerier over the given pool.
func NewPGQuerier(pool *pgxpool.Pool) (*PGQuerier, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &PGQuerier{pool: pool}, nil
}

// UpsertDocument implements Querier.
func (q *PGQuerier) UpsertDocument(ctx context.Context, doc Document, embedding []float32) error {
	metadata, err := json.Marshal(doc.Metadata)
	if err != nil {
		return fmt.Errorf("marshaling metadata: %w", err)
	}

	createdAt := doc.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err = q.pool.Exec(ctx, `
		INSERT INTO documents (id, tenant_id, title, content, embedding, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			content = EXCLUDED.content,
			embedding = EXCLUDED.embedding,
			metadata = EXCLUDED.metadata`,
		doc.ID, doc.TenantID, doc.Title, doc.Content,
		pgvector.NewVector(embedding), metadata, createdAt)
	if err != nil {
		return fmt.Errorf("upsert: %w", err)
	}
	return nil
}

// SearchDocuments implements Querier.
func (q *PGQuerier) SearchDocuments(ctx context.Context, tenantID uuid.UUID, embedding []float32, sourceType string, limit int) ([]Result, error) {
	query := `
		SELECT id, tenant_id, title, content, metadata, created_at,
		       1 - (embedding <=> $2) AS similarity
		FROM documents
		WHERE tenant_id = $1`
	args := []any{tenantID, pgvector.NewVector(embedding)}

	if sourceType != "" {
		query += ` AND metadata->>'source_type' = $3`
		args = append(args, sourceType)
	}
	query += fmt.Sprintf(` ORDER BY embedding <=> $2 LIMIT %d`, limit)

	rows, err := q.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("search query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var (
			doc      Document
			rawMeta  []byte
			simScore float64
		)
		if err := rows.Scan(&doc.ID, &doc.TenantID, &doc.Title, &doc.Content,
			&rawMeta, &doc.CreatedAt, &simScore); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		if len(rawMeta) > 0 {
			if err := json.Unmarshal(rawMeta, &doc.Metadata); err != nil {
				doc.Metadata = map[string]string{}
			}
		}
		results = append(results, Result{Document: doc, Similarity: simScore})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rows: %w", err)
	}
	return results, nil
}

// GetDocument implements Querier.
func (q *PGQuerier) GetDocument(ctx context.Context, tenantID, id uuid.UUID) (Document, error) {
	var (
		doc     Document
		rawMeta []byte
	)
	err := q.pool.QueryRow(ctx, `
		SELECT id, tenant_id, title, content, metadata, created_at
		FROM documents
		WHERE tenant_id = $1 AND id = $2`,
		tenantID, id).Scan(&doc.ID, &doc.TenantID, &doc.Title, &doc.Content, &rawMeta, &doc.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Document{}, ErrNotFound
	}
	if err != nil {
		return Document{}, fmt.Errorf("get: %w", err)
	}
	if len(rawMeta) > 0 {
		if err := json.Unmarshal(rawMeta, &doc.Metadata); err != nil {
			doc.Metadata = map[string]string{}
		}
	}
	return doc, nil
}

// DeleteDocument implements Querier.
func (q *PGQuerier) DeleteDocument(ctx context.Context, tenantID, id uuid.UUID) error {
	tag, err := q.pool.Exec(ctx, `DELETE FROM documents WHERE tenant_id = $1 AND id = $2`, tenantID, id)
	if err != nil {
		return fmt.Errorf("delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// CountDocuments implements Querier.
func (q *PGQuerier) CountDocuments(ctx context.Context, tenantID uuid.UUID) (int64, error) {
	var n int64
	if err := q.pool.QueryRow(ctx, `SELECT count(*) FROM documents WHERE tenant_id = $1`, tenantID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	return n, nil
}
