package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// pgxQuerier is the subset of *pgxpool.Pool the backend needs; pgxmock
// satisfies it in tests.
type pgxQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PostgresBackend persists sessions in the conversation_sessions table
// created by the migrations package.
type PostgresBackend struct {
	db  pgxQuerier
	now func() time.Time
}

// NewPostgresBackend builds a Postgres-backed session backend.
func NewPostgresBackend(db pgxQuerier) *PostgresBackend {
	if db == nil {
		panic("session: pgx pool cannot be nil")
	}
	return &PostgresBackend{db: db, now: func() time.Time { return time.Now().UTC() }}
}

func (b *PostgresBackend) Get(ctx context.Context, key Key) (*Session, error) {
	var data []byte
	err := b.db.QueryRow(ctx, `
		SELECT data
		FROM conversation_sessions
		WHERE tenant_id = $1 AND user_id = $2
	`, key.TenantID, key.UserID).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("session: failed to fetch session: %w", err)
	}
	return Decode(data)
}

func (b *PostgresBackend) Put(ctx context.Context, s *Session) error {
	s.UpdatedAt = b.now()
	data, err := Encode(s)
	if err != nil {
		return err
	}
	if _, err := b.db.Exec(ctx, `
		INSERT INTO conversation_sessions (tenant_id, user_id, state, data, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (tenant_id, user_id) DO UPDATE
		SET state = EXCLUDED.state,
		    data = EXCLUDED.data,
		    updated_at = EXCLUDED.updated_at
	`, s.TenantID, s.UserID, string(s.State), data, s.CreatedAt, s.UpdatedAt); err != nil {
		return fmt.Errorf("session: failed to persist session: %w", err)
	}
	return nil
}

func (b *PostgresBackend) Delete(ctx context.Context, key Key) error {
	if _, err := b.db.Exec(ctx, `
		DELETE FROM conversation_sessions
		WHERE tenant_id = $1 AND user_id = $2
	`, key.TenantID, key.UserID); err != nil {
		return fmt.Errorf("session: failed to delete session: %w", err)
	}
	return nil
}

func (b *PostgresBackend) List(ctx context.Context, tenantID string) ([]*Session, error) {
	rows, err := b.db.Query(ctx, `
		SELECT user_id, data
		FROM conversation_sessions
		WHERE tenant_id = $1
		ORDER BY user_id
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("session: failed to list sessions: %w", err)
	}
	defer rows.Close()

	var out []*Session
	for rows.Next() {
		var (
			userID string
			data   []byte
		)
		if err := rows.Scan(&userID, &data); err != nil {
			return nil, fmt.Errorf("session: failed to scan session: %w", err)
		}
		s, err := Decode(data)
		if err != nil {
			s = Unreadable(Key{TenantID: tenantID, UserID: userID})
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("session: failed to iterate sessions: %w", err)
	}
	return out, nil
}
