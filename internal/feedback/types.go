// Package feedback collects user feedback on responses and mines it for
// knowledge gaps: recurring negative-feedback query patterns that become
// draft knowledge-base entries and threshold adjustments.
package feedback

import (
	"time"

	"github.com/google/uuid"
)

// Rating is the binary feedback value.
type Rating string

const (
	RatingPositive Rating = "positive"
	RatingNegative Rating = "negative"
)

// ValidRating reports whether r is a known rating.
func ValidRating(r Rating) bool {
	return r == RatingPositive || r == RatingNegative
}

// Record is one submitted feedback entry. Append-only; never mutated.
type Record struct {
	ID       uuid.UUID
	TenantID uuid.UUID
	// MessageID references the assistant turn being rated.
	MessageID uuid.UUID
	// Query is the user question that produced the rated answer, captured at
	// submission time so aggregation does not need a join.
	Query   string
	Rating  Rating
	Comment string
	// ClientIP is stored anonymized; see AnonymizeIP.
	ClientIP  string
	CreatedAt time.Time
}

// Insight priority tiers, derived from occurrence counts.
const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
)

// Insight resolution states.
const (
	InsightOpen     = "open"
	InsightDrafting = "drafting"
	InsightResolved = "resolved"
)

// Insight is a detected knowledge gap: a recurring negative-feedback query
// pattern. Keyed by (tenant, pattern key); re-aggregating the same window
// updates the same insight rather than duplicating it.
type Insight struct {
	ID         uuid.UUID
	TenantID   uuid.UUID
	PatternKey string
	Count      int
	// SampleQueries holds up to a handful of raw queries behind the pattern.
	SampleQueries []string
	Priority      string
	Status        string
	// DraftID links the generated draft, Nil when none exists yet. The link
	// is lookup-only: the insight survives draft rejection.
	DraftID   uuid.UUID
	FirstSeen time.Time
	LastSeen  time.Time
}

// Draft review states.
const (
	DraftPending       = "pending"
	DraftApproved      = "approved"
	DraftRejected      = "rejected"
	DraftNeedsRevision = "needs_revision"
)

// Draft is a candidate knowledge-base entry generated from an insight,
// awaiting human review. Approval publishes it as a learned document.
type Draft struct {
	ID        uuid.UUID
	TenantID  uuid.UUID
	InsightID uuid.UUID
	Title     string
	Content   string
	Status    string
	// ReviewNote carries the reviewer's rejection or revision comment.
	ReviewNote string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// priorityFor maps an occurrence count to a priority tier.
func priorityFor(count int) string {
	switch {
	case count >= 10:
		return PriorityHigh
	case count >= 5:
		return PriorityMedium
	default:
		return PriorityLow
	}
}
