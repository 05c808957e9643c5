package repository

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// timeLayout is fixed-width so that stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteDB holds the change log, per-user cursors and conflicts.
//
// Transactions are opened with BEGIN IMMEDIATE, so concurrent appends for
// the same user queue on the write lock (bounded by the busy timeout)
// instead of failing with SQLITE_BUSY on upgrade. WAL mode keeps pulls from
// blocking on writers.
type SQLiteDB struct {
	conn *sql.DB
	path string
}

func OpenSQLite(path string, busyTimeout time.Duration) (*SQLiteDB, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create change log directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_txlock=immediate&_pragma=busy_timeout(%d)&_pragma=foreign_keys(1)",
		path, busyTimeout.Milliseconds())

	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open change log: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping change log: %w", err)
	}

	conn.SetMaxOpenConns(8)
	conn.SetMaxIdleConns(4)
	conn.SetConnMaxLifetime(5 * time.Minute)

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	return &SQLiteDB{conn: conn, path: path}, nil
}

func (db *SQLiteDB) Path() string {
	return db.path
}

func (db *SQLiteDB) Close() error {
	if db.conn == nil {
		return nil
	}
	if err := db.conn.Close(); err != nil {
		return fmt.Errorf("failed to close change log: %w", err)
	}
	db.conn = nil
	return nil
}

// InitSchema creates the change log tables. It is idempotent.
func (db *SQLiteDB) InitSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS sync_cursors (
		user_id TEXT PRIMARY KEY,
		last_cursor INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS sync_changes (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		device_id TEXT NOT NULL,
		item_id TEXT NOT NULL,
		change_type TEXT NOT NULL,
		cursor INTEGER NOT NULL,
		old_path TEXT,
		new_path TEXT,
		checksum TEXT,
		created_at TEXT NOT NULL,
		UNIQUE (user_id, cursor)
	);

	CREATE INDEX IF NOT EXISTS idx_changes_item ON sync_changes(user_id, item_id, cursor);
	CREATE INDEX IF NOT EXISTS idx_changes_path ON sync_changes(user_id, new_path, cursor);

	CREATE TABLE IF NOT EXISTS sync_conflicts (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		item_id TEXT NOT NULL,
		conflict_type TEXT NOT NULL,
		local_change_id TEXT NOT NULL REFERENCES sync_changes(id),
		remote_change_id TEXT NOT NULL REFERENCES sync_changes(id),
		is_pending INTEGER NOT NULL DEFAULT 1,
		resolution TEXT,
		created_at TEXT NOT NULL,
		resolved_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_conflicts_pending ON sync_conflicts(user_id, is_pending, created_at);
	CREATE INDEX IF NOT EXISTS idx_conflicts_item ON sync_conflicts(user_id, item_id);
	`

	if _, err := db.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create change log schema: %w", err)
	}
	return nil
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}
