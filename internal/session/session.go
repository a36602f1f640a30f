// Package session stores conversation history per tenant session.
package session

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/lumora-ai/lumora/internal/log"
)

// Message roles stored in history.
const (
	RoleUser  = "user"
	RoleModel = "model"
)

// Session is one conversation thread within a tenant.
type Session struct {
	ID        uuid.UUID
	TenantID  uuid.UUID
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Message is one stored conversation turn. Its ID is the reference feedback
// records point at.
type Message struct {
	ID        uuid.UUID
	SessionID uuid.UUID
	Role      string
	Content   string
	CreatedAt time.Time
}

// Querier defines the database operations the Store needs.
type Querier interface {
	// UpsertSession creates the session or bumps its updated_at.
	UpsertSession(ctx context.Context, s Session) error

	// InsertMessage appends one message.
	InsertMessage(ctx context.Context, m Message) error

	// RecentMessages returns the session's latest messages, oldest first,
	// at most limit.
	RecentMessages(ctx context.Context, sessionID uuid.UUID, limit int) ([]Message, error)
}

// Store manages sessions and their message history.
type Store struct {
	querier Querier
	logger  log.Logger
}

// New creates a Store.
func New(querier Querier, logger log.Logger) (*Store, error) {
	if querier == nil {
		return nil, fmt.Errorf("querier is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return &Store{querier: querier, logger: logger}, nil
}

// Ensure creates the session if it does not exist and refreshes its
// updated_at if it does.
func (s *Store) Ensure(ctx context.Context, tenantID, sessionID uuid.UUID) error {
	if tenantID == uuid.Nil || sessionID == uuid.Nil {
		return fmt.Errorf("tenant and session IDs are required")
	}
	now := time.Now().UTC()
	err := s.querier.UpsertSession(ctx, Session{
		ID:        sessionID,
		TenantID:  tenantID,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return fmt.Errorf("ensuring session %q: %w", sessionID, err)
	}
	return nil
}

// Append stores one turn and returns it with its assigned ID.
func (s *Store) Append(ctx context.Context, sessionID uuid.UUID, role, content string) (Message, error) {
	if role != RoleUser && role != RoleModel {
		return Message{}, fmt.Errorf("unknown message role %q", role)
	}
	m := Message{
		ID:        uuid.New(),
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.querier.InsertMessage(ctx, m); err != nil {
		return Message{}, fmt.Errorf("appending message to session %q: %w", sessionID, err)
	}
	return m, nil
}

// History returns the most recent turns, oldest first.
func (s *Store) History(ctx context.Context, sessionID uuid.UUID, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 20
	}
	msgs, err := s.querier.RecentMessages(ctx, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("loading history for session %q: %w", sessionID, err)
	}
	return msgs, nil
}
