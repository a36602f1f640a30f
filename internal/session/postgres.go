package session

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGQuerier is the pgx-backed Querier.
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

// UpsertSession implements Querier.
func (q *PGQuerier) UpsertSession(ctx context.Context, s Session) error {
	_, err := q.pool.Exec(ctx, `
		INSERT INTO sessions (id, tenant_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET updated_at = EXCLUDED.updated_at`,
		s.ID, s.TenantID, s.CreatedAt, s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upserting session: %w", err)
	}
	return nil
}

// InsertMessage implements Querier.
func (q *PGQuerier) InsertMessage(ctx context.Context, m Message) error {
	_, err := q.pool.Exec(ctx, `
		INSERT INTO messages (id, session_id, role, content, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		m.ID, m.SessionID, m.Role, m.Content, m.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting message: %w", err)
	}
	return nil
}

// RecentMessages implements Querier. The newest limit rows are fetched and
// returned oldest first.
func (q *PGQuerier) RecentMessages(ctx context.Context, sessionID uuid.UUID, limit int) ([]Message, error) {
	rows, err := q.pool.Query(ctx, `
		SELECT id, session_id, role, content, created_at
		FROM (
			SELECT id, session_id, role, content, created_at
			FROM messages
			WHERE session_id = $1
			ORDER BY created_at DESC
			LIMIT $2
		) recent
		ORDER BY created_at ASC`,
		sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	var msgs []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading messages: %w", err)
	}
	return msgs, nil
}
