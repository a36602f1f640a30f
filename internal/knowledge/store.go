// Package knowledge manages tenant knowledge documents with vector search.
//
// The Store embeds content through the configured embedding backend and
// persists vectors in PostgreSQL + pgvector. Retrieval embeds the query,
// runs nearest-neighbor search, and filters by a minimum similarity; an
// empty result set is a valid outcome the caller must handle, never an
// error.
package knowledge

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/lumora-ai/lumora/internal/genai"
	"github.com/lumora-ai/lumora/internal/log"
)

// Querier defines the database operations the Store needs. The interface is
// defined here, by the consumer, so tests can substitute a fake; the pgx
// implementation lives in postgres.go.
type Querier interface {
	// UpsertDocument inserts or updates a document with its embedding.
	UpsertDocument(ctx context.Context, doc Document, embedding []float32) error

	// SearchDocuments returns up to limit nearest neighbors for the tenant,
	// ordered by descending similarity. sourceType empty means all sources.
	SearchDocuments(ctx context.Context, tenantID uuid.UUID, embedding []float32, sourceType string, limit int) ([]Result, error)

	// GetDocument fetches a document by ID within the tenant.
	GetDocument(ctx context.Context, tenantID, id uuid.UUID) (Document, error)

	// DeleteDocument deletes a document by ID within the tenant.
	DeleteDocument(ctx context.Context, tenantID, id uuid.UUID) error

	// CountDocuments counts the tenant's documents.
	CountDocuments(ctx context.Context, tenantID uuid.UUID) (int64, error)
}

// Store manages knowledge documents with vector search.
//
// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	querier  Querier
	embedder genai.Embedder
	logger   log.Logger
}

// New creates a Store.
func New(querier Querier, embedder genai.Embedder, logger log.Logger) (*Store, error) {
	if querier == nil {
		return nil, fmt.Errorf("querier is required")
	}
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return &Store{querier: querier, embedder: embedder, logger: logger}, nil
}

// Add embeds the document's content and upserts it.
func (s *Store) Add(ctx context.Context, doc Document) error {
	if doc.ID == uuid.Nil {
		doc.ID = uuid.New()
	}
	if doc.TenantID == uuid.Nil {
		return fmt.Errorf("document %q: tenant ID is required", doc.ID)
	}

	vec, err := s.embedder.Embed(ctx, doc.Content)
	if err != nil {
		return fmt.Errorf("embedding document %q: %w", doc.ID, err)
	}

	if err := s.querier.UpsertDocument(ctx, doc, vec); err != nil {
		return fmt.Errorf("upserting document %q: %w", doc.ID, err)
	}

	s.logger.Debug("added document",
		"id", doc.ID,
		"tenant_id", doc.TenantID,
		"content_length", len(doc.Content))
	return nil
}

// Search performs semantic retrieval for the tenant.
//
// The query is embedded, nearest neighbors are fetched, and results below
// the configured minimum similarity are dropped. No hit above the threshold
// yields an empty slice and a nil error: absent context is a pipeline state,
// not a failure.
func (s *Store) Search(ctx context.Context, tenantID uuid.UUID, query string, opts ...SearchOption) ([]Result, error) {
	cfg := buildSearchConfig(opts)

	searchCtx, cancel := context.WithTimeout(ctx, cfg.timeout)
	defer cancel()

	vec, err := s.embedder.Embed(searchCtx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	rows, err := s.querier.SearchDocuments(searchCtx, tenantID, vec, cfg.sourceType, cfg.topK)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}

	results := make([]Result, 0, len(rows))
	for _, r := range rows {
		if r.Similarity < cfg.minSimilarity {
			continue
		}
		results = append(results, r)
	}

	s.logger.Debug("knowledge search",
		"tenant_id", tenantID,
		"candidates", len(rows),
		"above_threshold", len(results),
		"min_similarity", cfg.minSimilarity)
	return results, nil
}

// Get fetches one document.
func (s *Store) Get(ctx context.Context, tenantID, id uuid.UUID) (Document, error) {
	doc, err := s.querier.GetDocument(ctx, tenantID, id)
	if err != nil {
		return Document{}, fmt.Errorf("getting document %q: %w", id, err)
	}
	return doc, nil
}

// Delete removes a document.
func (s *Store) Delete(ctx context.Context, tenantID, id uuid.UUID) error {
	if err := s.querier.DeleteDocument(ctx, tenantID, id); err != nil {
		return fmt.Errorf("deleting document %q: %w", id, err)
	}
	s.logger.Debug("deleted document", "id", id, "tenant_id", tenantID)
	return nil
}

// Count returns the number of documents stored for the tenant.
func (s *Store) Count(ctx context.Context, tenantID uuid.UUID) (int64, error) {
	n, err := s.querier.CountDocuments(ctx, tenantID)
	if err != nil {
		return 0, fmt.Errorf("counting documents: %w", err)
	}
	return n, nil
}
