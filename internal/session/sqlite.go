package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
PRAGMA busy_timeout = 5000;
CREATE TABLE IF NOT EXISTS conversation_sessions (
	tenant_id TEXT NOT NULL,
	user_id TEXT NOT NULL,
	state TEXT NOT NULL,
	data TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	PRIMARY KEY (tenant_id, user_id)
);
CREATE INDEX IF NOT EXISTS idx_conversation_sessions_updated ON conversation_sessions(updated_at);
`

// SQLiteBackend persists sessions to a local SQLite file for single-host
// deployments.
type SQLiteBackend struct {
	db *sql.DB
	// writes are serialized to avoid SQLITE_BUSY under WAL
	writeMu sync.Mutex
	now     func() time.Time
}

// OpenSQLiteBackend opens (and creates) the database at path.
func OpenSQLiteBackend(path string) (*SQLiteBackend, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("session: create database directory: %w", err)
	}
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("session: open sqlite: %w", err)
	}
	db.SetMaxOpenConns(8)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("session: ping sqlite: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("session: create sqlite schema: %w", err)
	}
	return NewSQLiteBackend(db), nil
}

// NewSQLiteBackend wraps an already-open database whose schema exists.
func NewSQLiteBackend(db *sql.DB) *SQLiteBackend {
	if db == nil {
		panic("session: sqlite db cannot be nil")
	}
	return &SQLiteBackend{db: db, now: func() time.Time { return time.Now().UTC() }}
}

func (b *SQLiteBackend) Get(ctx context.Context, key Key) (*Session, error) {
	var data string
	err := b.db.QueryRowContext(ctx,
		`SELECT data FROM conversation_sessions WHERE tenant_id = ? AND user_id = ?`,
		key.TenantID, key.UserID,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("session: sqlite get: %w", err)
	}
	return Decode([]byte(data))
}

func (b *SQLiteBackend) Put(ctx context.Context, s *Session) error {
	b.writeMu.Lock()
	defer b.writeMu.Unlock()

	s.UpdatedAt = b.now()
	data, err := Encode(s)
	if err != nil {
		return err
	}
	_, err = b.db.ExecContext(ctx, `
		INSERT INTO conversation_sessions (tenant_id, user_id, state, data, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(tenant_id, user_id) DO UPDATE SET
			state = excluded.state,
			data = excluded.data,
			updated_at = excluded.updated_at`,
		s.TenantID, s.UserID, string(s.State), string(data), s.CreatedAt.Unix(), s.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("session: sqlite upsert: %w", err)
	}
	return nil
}

func (b *SQLiteBackend) Delete(ctx context.Context, key Key) error {
	b.writeMu.Lock()
	defer b.writeMu.Unlock()

	if _, err := b.db.ExecContext(ctx,
		`DELETE FROM conversation_sessions WHERE tenant_id = ? AND user_id = ?`,
		key.TenantID, key.UserID,
	); err != nil {
		return fmt.Errorf("session: sqlite delete: %w", err)
	}
	return nil
}

func (b *SQLiteBackend) List(ctx context.Context, tenantID string) ([]*Session, error) {
	rows, err := b.db.QueryContext(ctx,
		`SELECT user_id, data FROM conversation_sessions WHERE tenant_id = ? ORDER BY user_id`,
		tenantID,
	)
	if err != nil {
		return nil, fmt.Errorf("session: sqlite list: %w", err)
	}
	defer rows.Close()

	var out []*Session
	for rows.Next() {
		var userID, data string
		if err := rows.Scan(&userID, &data); err != nil {
			return nil, fmt.Errorf("session: sqlite scan: %w", err)
		}
		s, err := Decode([]byte(data))
		if err != nil {
			s = Unreadable(Key{TenantID: tenantID, UserID: userID})
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Close closes the database.
func (b *SQLiteBackend) Close() error {
	return b.db.Close()
}
