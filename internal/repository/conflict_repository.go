package repository

import (
	"context"
	"database/sql"
	"errors"

	"filesync-server/internal/domain"
)

type ConflictRepository interface {
	Get(ctx context.Context, conflictID string) (*domain.SyncConflict, error)
	ListPending(ctx context.Context, userID string) ([]*domain.SyncConflict, error)
	ListByItem(ctx context.Context, userID, itemID string) ([]*domain.SyncConflict, error)
}

type conflictRepository struct {
	db *SQLiteDB
}

func NewConflictRepository(db *SQLiteDB) ConflictRepository {
	return &conflictRepository{db: db}
}

func (r *conflictRepository) Get(ctx context.Context, conflictID string) (*domain.SyncConflict, error) {
	return getConflict(ctx, r.db.conn, conflictID)
}

func (r *conflictRepository) ListPending(ctx context.Context, userID string) ([]*domain.SyncConflict, error) {
	query := conflictSelect + ` WHERE c.user_id = ? AND c.is_pending = 1
		ORDER BY c.created_at DESC, c.rowid DESC`

	conflicts, err := queryConflicts(ctx, r.db.conn, query, userID)
	if err != nil {
		return nil, domain.NewStorageError("list pending conflicts", err)
	}
	return conflicts, nil
}

func (r *conflictRepository) ListByItem(ctx context.Context, userID, itemID string) ([]*domain.SyncConflict, error) {
	query := conflictSelect + ` WHERE c.user_id = ? AND c.item_id = ?
		ORDER BY c.created_at DESC, c.rowid DESC`

	conflicts, err := queryConflicts(ctx, r.db.conn, query, userID, itemID)
	if err != nil {
		return nil, domain.NewStorageError("list item conflicts", err)
	}
	return conflicts, nil
}

var conflictSelect = `SELECT c.id, c.user_id, c.item_id, c.conflict_type, c.is_pending, c.resolution, c.created_at, c.resolved_at, ` +
	changeColumns("l") + `, ` + changeColumns("r") + `
	FROM sync_conflicts c
	JOIN sync_changes l ON l.id = c.local_change_id
	JOIN sync_changes r ON r.id = c.remote_change_id`

func getConflict(ctx context.Context, q querier, conflictID string) (*domain.SyncConflict, error) {
	row := q.QueryRowContext(ctx, conflictSelect+` WHERE c.id = ?`, conflictID)
	conflict, err := scanConflict(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NewNotFound("conflict", conflictID)
	}
	if err != nil {
		return nil, domain.NewStorageError("get conflict", err)
	}
	return conflict, nil
}

func queryConflicts(ctx context.Context, q querier, query string, args ...any) ([]*domain.SyncConflict, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	conflicts := make([]*domain.SyncConflict, 0)
	for rows.Next() {
		c, err := scanConflict(rows)
		if err != nil {
			return nil, err
		}
		conflicts = append(conflicts, c)
	}
	return conflicts, rows.Err()
}
