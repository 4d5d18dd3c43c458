package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStoreConfig holds tuning parameters for the SQLite store.
type SQLiteStoreConfig struct {
	BusyTimeout time.Duration // 0 = default (5s)
}

// touchInterval throttles last-seen updates on reads.
const touchInterval = time.Minute

// SQLiteStore is the durable slot store. It survives process restarts and
// holds one row per (session, key).
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteStore opens (or creates) a SQLite database at path with WAL mode enabled.
func NewSQLiteStore(path string, cfgs ...SQLiteStoreConfig) (*SQLiteStore, error) {
	busy := 5 * time.Second
	if len(cfgs) > 0 && cfgs[0].BusyTimeout > 0 {
		busy = cfgs[0].BusyTimeout
	}
	dsn := fmt.Sprintf("%s?_pragma=journal_mode(wal)&_pragma=busy_timeout(%d)&_pragma=synchronous(normal)", path, busy.Milliseconds())
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// A single connection avoids "database is locked" with the pure-Go driver.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &SQLiteStore{db: db, now: time.Now}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Ping verifies the database connection is alive.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(schema)
	return err
}

const schema = `
CREATE TABLE IF NOT EXISTS session_kv (
    session_id TEXT NOT NULL,
    key TEXT NOT NULL,
    value TEXT NOT NULL,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL,
    last_seen_at INTEGER NOT NULL,
    PRIMARY KEY (session_id, key)
);

CREATE INDEX IF NOT EXISTS idx_session_kv_last_seen ON session_kv(last_seen_at);
`

// Scope returns the KV view of one browser session.
func (s *SQLiteStore) Scope(sessionID string) KV {
	return &sqliteScope{store: s, sessionID: sessionID}
}

func (s *SQLiteStore) get(ctx context.Context, sessionID, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM session_kv WHERE session_id=? AND key=?`,
		sessionID, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get %s: %w", key, err)
	}
	if err := s.touch(ctx, sessionID); err != nil {
		return "", false, err
	}
	return value, true, nil
}

// touch marks every slot of a session as seen now. Rows seen within the
// last touchInterval are left alone.
func (s *SQLiteStore) touch(ctx context.Context, sessionID string) error {
	now := s.now()
	_, err := s.db.ExecContext(ctx,
		`UPDATE session_kv SET last_seen_at=? WHERE session_id=? AND last_seen_at < ?`,
		now.Unix(), sessionID, now.Add(-touchInterval).Unix())
	if err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	return nil
}

func (s *SQLiteStore) set(ctx context.Context, sessionID, key, value string) error {
	now := s.now().Unix()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO session_kv (session_id, key, value, created_at, updated_at, last_seen_at) VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(session_id, key) DO UPDATE SET value=excluded.value, updated_at=excluded.updated_at, last_seen_at=excluded.last_seen_at`,
		sessionID, key, value, now, now, now)
	if err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

func (s *SQLiteStore) del(ctx context.Context, sessionID, key string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM session_kv WHERE session_id=? AND key=?`,
		sessionID, key)
	if err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// DeleteSession removes every slot of a browser session.
func (s *SQLiteStore) DeleteSession(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM session_kv WHERE session_id=?`, sessionID)
	return err
}

// PurgeIdle deletes every slot neither read nor written since before.
// Returns the number of rows removed.
func (s *SQLiteStore) PurgeIdle(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM session_kv WHERE last_seen_at < ?`, before.Unix())
	if err != nil {
		return 0, fmt.Errorf("purge idle sessions: %w", err)
	}
	return res.RowsAffected()
}

// GetSession summarises a browser session. Returns nil if it has no slots.
func (s *SQLiteStore) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	var created, updated, seen sql.NullInt64
	var keys int
	err := s.db.QueryRowContext(ctx,
		`SELECT MIN(created_at), MAX(updated_at), MAX(last_seen_at), COUNT(*) FROM session_kv WHERE session_id=?`,
		sessionID).Scan(&created, &updated, &seen, &keys)
	if err != nil {
		return nil, err
	}
	if keys == 0 {
		return nil, nil
	}
	return &Session{
		ID:         sessionID,
		CreatedAt:  time.Unix(created.Int64, 0),
		UpdatedAt:  time.Unix(updated.Int64, 0),
		LastSeenAt: time.Unix(seen.Int64, 0),
		Keys:       keys,
	}, nil
}

type sqliteScope struct {
	store     *SQLiteStore
	sessionID string
}

func (k *sqliteScope) Get(ctx context.Context, key string) (string, bool, error) {
	return k.store.get(ctx, k.sessionID, key)
}

func (k *sqliteScope) Set(ctx context.Context, key, value string) error {
	return k.store.set(ctx, k.sessionID, key, value)
}

func (k *sqliteScope) Delete(ctx context.Context, key string) error {
	return k.store.del(ctx, k.sessionID, key)
}
