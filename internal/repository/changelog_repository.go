package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"filesync-server/internal/domain"
)

// ChangeReader is the read window the conflict detector works against. All
// listings are newest first and never include changes from excludeDevice.
type ChangeReader interface {
	ItemChangesAfter(ctx context.Context, userID, itemID, excludeDevice string, after int64, limit int) ([]*domain.SyncChange, error)
	CreatesAtPathAfter(ctx context.Context, userID, path, excludeDevice string, after int64, limit int) ([]*domain.SyncChange, error)
	LatestDeviceCursor(ctx context.Context, userID, itemID, deviceID string) (int64, error)
}

// ChangeLogTx is a single write transaction over the change log. Everything
// done through it commits or rolls back together.
type ChangeLogTx interface {
	ChangeReader
	NextCursor(ctx context.Context, userID string) (int64, error)
	InsertChange(ctx context.Context, change *domain.SyncChange) error
	InsertConflict(ctx context.Context, conflict *domain.SyncConflict) error
	MarkResolved(ctx context.Context, conflictID string, resolution domain.Resolution, at time.Time) error
}

type ChangeLogRepository interface {
	WithTx(ctx context.Context, fn func(tx ChangeLogTx) error) error
	ListAfter(ctx context.Context, userID string, after int64, limit int) ([]*domain.SyncChange, error)
	LatestCursor(ctx context.Context, userID string) (int64, error)
}

type changeLogRepository struct {
	db *SQLiteDB
}

func NewChangeLogRepository(db *SQLiteDB) ChangeLogRepository {
	return &changeLogRepository{db: db}
}

func (r *changeLogRepository) WithTx(ctx context.Context, fn func(tx ChangeLogTx) error) error {
	tx, err := r.db.conn.BeginTx(ctx, nil)
	if err != nil {
		return domain.NewStorageError("begin change log transaction", err)
	}
	defer tx.Rollback()

	if err := fn(&changeLogTx{q: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return domain.NewStorageError("commit change log transaction", err)
	}
	return nil
}

func (r *changeLogRepository) ListAfter(ctx context.Context, userID string, after int64, limit int) ([]*domain.SyncChange, error) {
	query := `SELECT ` + changeColumns("") + ` FROM sync_changes
		WHERE user_id = ? AND cursor > ?
		ORDER BY cursor ASC
		LIMIT ?`

	changes, err := queryChanges(ctx, r.db.conn, query, userID, after, limit)
	if err != nil {
		return nil, domain.NewStorageError("list changes", err)
	}
	return changes, nil
}

func (r *changeLogRepository) LatestCursor(ctx context.Context, userID string) (int64, error) {
	var cursor int64
	err := r.db.conn.QueryRowContext(ctx,
		`SELECT last_cursor FROM sync_cursors WHERE user_id = ?`, userID).Scan(&cursor)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, domain.NewStorageError("read latest cursor", err)
	}
	return cursor, nil
}

type changeLogTx struct {
	q querier
}

// NextCursor bumps and returns the per-user counter. Cursors handed out by a
// transaction that later rolls back are reissued; committed ones never are.
func (t *changeLogTx) NextCursor(ctx context.Context, userID string) (int64, error) {
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO sync_cursors (user_id, last_cursor) VALUES (?, 1)
		ON CONFLICT(user_id) DO UPDATE SET last_cursor = last_cursor + 1`, userID)
	if err != nil {
		return 0, domain.NewStorageError("advance cursor", err)
	}

	var cursor int64
	if err := t.q.QueryRowContext(ctx,
		`SELECT last_cursor FROM sync_cursors WHERE user_id = ?`, userID).Scan(&cursor); err != nil {
		return 0, domain.NewStorageError("read cursor", err)
	}
	return cursor, nil
}

func (t *changeLogTx) InsertChange(ctx context.Context, c *domain.SyncChange) error {
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO sync_changes (id, user_id, device_id, item_id, change_type, cursor, old_path, new_path, checksum, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.UserID, c.DeviceID, c.ItemID, string(c.ChangeType), c.Cursor,
		nullString(c.OldPath), nullString(c.NewPath), nullString(c.Checksum), formatTime(c.Timestamp),
	)
	if err != nil {
		return domain.NewStorageError("insert change", err)
	}
	return nil
}

func (t *changeLogTx) InsertConflict(ctx context.Context, c *domain.SyncConflict) error {
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO sync_conflicts (id, user_id, item_id, conflict_type, local_change_id, remote_change_id, is_pending, resolution, created_at, resolved_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.UserID, c.ItemID, string(c.ConflictType), c.LocalChange.ID, c.RemoteChange.ID,
		boolToInt(c.IsPending), nullString(string(c.Resolution)), formatTime(c.CreatedAt), nullTime(c.ResolvedAt),
	)
	if err != nil {
		return domain.NewStorageError("insert conflict", err)
	}
	return nil
}

// MarkResolved moves a pending conflict to resolved. It fails with a
// validation error if the conflict was already resolved.
func (t *changeLogTx) MarkResolved(ctx context.Context, conflictID string, resolution domain.Resolution, at time.Time) error {
	res, err := t.q.ExecContext(ctx, `
		UPDATE sync_conflicts SET is_pending = 0, resolution = ?, resolved_at = ?
		WHERE id = ? AND is_pending = 1`,
		string(resolution), formatTime(at), conflictID)
	if err != nil {
		return domain.NewStorageError("mark conflict resolved", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return domain.NewStorageError("mark conflict resolved", err)
	}
	if n == 1 {
		return nil
	}

	if _, err := getConflict(ctx, t.q, conflictID); err != nil {
		return err
	}
	return domain.NewValidation("conflict", "already resolved")
}

func (t *changeLogTx) ItemChangesAfter(ctx context.Context, userID, itemID, excludeDevice string, after int64, limit int) ([]*domain.SyncChange, error) {
	query := `SELECT ` + changeColumns("") + ` FROM sync_changes
		WHERE user_id = ? AND item_id = ? AND device_id <> ? AND cursor > ?
		ORDER BY cursor DESC
		LIMIT ?`

	changes, err := queryChanges(ctx, t.q, query, userID, itemID, excludeDevice, after, limit)
	if err != nil {
		return nil, domain.NewStorageError("list item changes", err)
	}
	return changes, nil
}

func (t *changeLogTx) CreatesAtPathAfter(ctx context.Context, userID, path, excludeDevice string, after int64, limit int) ([]*domain.SyncChange, error) {
	query := `SELECT ` + changeColumns("") + ` FROM sync_changes
		WHERE user_id = ? AND new_path = ? AND change_type = ? AND device_id <> ? AND cursor > ?
		ORDER BY cursor DESC
		LIMIT ?`

	changes, err := queryChanges(ctx, t.q, query, userID, path, string(domain.ChangeCreate), excludeDevice, after, limit)
	if err != nil {
		return nil, domain.NewStorageError("list creates at path", err)
	}
	return changes, nil
}

func (t *changeLogTx) LatestDeviceCursor(ctx context.Context, userID, itemID, deviceID string) (int64, error) {
	var cursor int64
	err := t.q.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(cursor), 0) FROM sync_changes
		WHERE user_id = ? AND item_id = ? AND device_id = ?`,
		userID, itemID, deviceID).Scan(&cursor)
	if err != nil {
		return 0, domain.NewStorageError("read device cursor", err)
	}
	return cursor, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanConflict(s scanner) (*domain.SyncConflict, error) {
	var (
		c            domain.SyncConflict
		conflictType string
		pending      int
		resolution   sql.NullString
		createdAt    string
		resolvedAt   sql.NullString
		local        changeRow
		remote       changeRow
	)

	dest := []any{&c.ID, &c.UserID, &c.ItemID, &conflictType, &pending, &resolution, &createdAt, &resolvedAt}
	dest = append(dest, local.dest()...)
	dest = append(dest, remote.dest()...)
	if err := s.Scan(dest...); err != nil {
		return nil, err
	}

	c.ConflictType = domain.ConflictType(conflictType)
	c.IsPending = pending == 1
	c.Resolution = domain.Resolution(resolution.String)

	var err error
	if c.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("conflict %s: %w", c.ID, err)
	}
	if resolvedAt.Valid {
		t, err := parseTime(resolvedAt.String)
		if err != nil {
			return nil, fmt.Errorf("conflict %s: %w", c.ID, err)
		}
		c.ResolvedAt = &t
	}
	if c.LocalChange, err = local.toDomain(); err != nil {
		return nil, err
	}
	if c.RemoteChange, err = remote.toDomain(); err != nil {
		return nil, err
	}

	return &c, nil
}

func changeColumns(alias string) string {
	cols := []string{"id", "user_id", "device_id", "item_id", "change_type", "cursor", "old_path", "new_path", "checksum", "created_at"}
	if alias == "" {
		return strings.Join(cols, ", ")
	}
	for i, col := range cols {
		cols[i] = alias + "." + col
	}
	return strings.Join(cols, ", ")
}

type changeRow struct {
	change     domain.SyncChange
	changeType string
	oldPath    sql.NullString
	newPath    sql.NullString
	checksum   sql.NullString
	createdAt  string
}

func (r *changeRow) dest() []any {
	return []any{
		&r.change.ID, &r.change.UserID, &r.change.DeviceID, &r.change.ItemID, &r.changeType,
		&r.change.Cursor, &r.oldPath, &r.newPath, &r.checksum, &r.createdAt,
	}
}

func (r *changeRow) toDomain() (*domain.SyncChange, error) {
	ts, err := parseTime(r.createdAt)
	if err != nil {
		return nil, fmt.Errorf("change %s: %w", r.change.ID, err)
	}
	c := r.change
	c.ChangeType = domain.ChangeType(r.changeType)
	c.OldPath = r.oldPath.String
	c.NewPath = r.newPath.String
	c.Checksum = r.checksum.String
	c.Timestamp = ts
	return &c, nil
}

func queryChanges(ctx context.Context, q querier, query string, args ...any) ([]*domain.SyncChange, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	changes := make([]*domain.SyncChange, 0)
	for rows.Next() {
		var row changeRow
		if err := rows.Scan(row.dest()...); err != nil {
			return nil, err
		}
		c, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		changes = append(changes, c)
	}
	return changes, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
