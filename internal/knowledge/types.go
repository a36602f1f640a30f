package knowledge

import (
	"time"

	"github.com/google/uuid"
)

// Source type constants for knowledge documents.
const (
	// SourceTypeManual represents entries authored directly by tenant staff.
	SourceTypeManual = "manual"

	// SourceTypeImport represents entries ingested from external files.
	SourceTypeImport = "import"

	// SourceTypeLearned represents entries published from approved learning
	// loop drafts.
	SourceTypeLearned = "learned"
)

// Document is a knowledge-base entry scoped to one tenant.
type Document struct {
	ID        uuid.UUID
	TenantID  uuid.UUID
	Title     string
	Content   string
	Metadata  map[string]string // source_type and free-form tags
	CreatedAt time.Time
}

// Result is a single retrieval hit with its cosine similarity in [0,1].
type Result struct {
	Document   Document
	Similarity float64
}

// SearchOption configures retrieval using the functional options pattern.
type SearchOption func(*searchConfig)

type searchConfig struct {
	topK          int
	minSimilarity float64
	sourceType    string
	timeout       time.Duration
}

// WithTopK sets the maximum number of results. Default 5.
func WithTopK(k int) SearchOption {
	return func(c *searchConfig) {
		if k > 0 {
			c.topK = k
		}
	}
}

// WithMinSimilarity drops results whose similarity falls below s.
// Default 0 (no filtering).
func WithMinSimilarity(s float64) SearchOption {
	return func(c *searchConfig) {
		c.minSimilarity = s
	}
}

// WithSourceType restricts results to one source type.
func WithSourceType(st string) SearchOption {
	return func(c *searchConfig) {
		c.sourceType = st
	}
}

// WithTimeout overrides the per-search timeout. Default 10s.
func WithTimeout(d time.Duration) SearchOption {
	return func(c *searchConfig) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func buildSearchConfig(opts []SearchOption) *searchConfig {
	cfg := &searchConfig{
		topK:    5,
		timeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}
