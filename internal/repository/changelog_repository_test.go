package repository

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"filesync-server/internal/domain"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDB(t *testing.T) *SQLiteDB {
	t.Helper()

	db, err := OpenSQLite(filepath.Join(t.TempDir(), "changelog.db"), 10*time.Second)
	require.NoError(t, err)
	require.NoError(t, db.InitSchema(context.Background()))
	t.Cleanup(func() { db.Close() })

	return db
}

func newChange(userID, deviceID, itemID string, changeType domain.ChangeType) *domain.SyncChange {
	return &domain.SyncChange{
		ID:         uuid.New().String(),
		UserID:     userID,
		DeviceID:   deviceID,
		ItemID:     itemID,
		ChangeType: changeType,
		Timestamp:  time.Now(),
	}
}

func appendChange(t *testing.T, repo ChangeLogRepository, c *domain.SyncChange) *domain.SyncChange {
	t.Helper()
	ctx := context.Background()

	err := repo.WithTx(ctx, func(tx ChangeLogTx) error {
		cursor, err := tx.NextCursor(ctx, c.UserID)
		if err != nil {
			return err
		}
		c.Cursor = cursor
		return tx.InsertChange(ctx, c)
	})
	require.NoError(t, err)
	return c
}

func TestInitSchemaIsIdempotent(t *testing.T) {
	db := testDB(t)
	assert.NoError(t, db.InitSchema(context.Background()))
}

func TestCursorsArePerUserAndIncreasing(t *testing.T) {
	repo := NewChangeLogRepository(testDB(t))

	a1 := appendChange(t, repo, newChange("alice", "d1", "f1", domain.ChangeCreate))
	a2 := appendChange(t, repo, newChange("alice", "d1", "f1", domain.ChangeModify))
	b1 := appendChange(t, repo, newChange("bob", "d9", "g1", domain.ChangeCreate))
	a3 := appendChange(t, repo, newChange("alice", "d2", "f2", domain.ChangeCreate))

	assert.Equal(t, []int64{1, 2, 3}, []int64{a1.Cursor, a2.Cursor, a3.Cursor})
	assert.Equal(t, int64(1), b1.Cursor)

	latest, err := repo.LatestCursor(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(3), latest)

	latest, err = repo.LatestCursor(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Zero(t, latest)
}

func TestConcurrentAppendsNeverShareCursor(t *testing.T) {
	repo := NewChangeLogRepository(testDB(t))

	const writers, perWriter = 8, 10
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		cursors = make(map[int64]bool)
		errs    []error
	)

	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			ctx := context.Background()
			for i := 0; i < perWriter; i++ {
				c := newChange("alice", uuid.New().String(), "f1", domain.ChangeModify)
				err := repo.WithTx(ctx, func(tx ChangeLogTx) error {
					cursor, err := tx.NextCursor(ctx, "alice")
					if err != nil {
						return err
					}
					c.Cursor = cursor
					return tx.InsertChange(ctx, c)
				})

				mu.Lock()
				if err != nil {
					errs = append(errs, err)
				} else {
					cursors[c.Cursor] = true
				}
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()

	require.Empty(t, errs)
	assert.Len(t, cursors, writers*perWriter)

	changes, err := repo.ListAfter(context.Background(), "alice", 0, 1000)
	require.NoError(t, err)
	require.Len(t, changes, writers*perWriter)
	for i := 1; i < len(changes); i++ {
		assert.Greater(t, changes[i].Cursor, changes[i-1].Cursor)
	}
}

func TestListAfterPagesInCursorOrder(t *testing.T) {
	repo := NewChangeLogRepository(testDB(t))
	for i := 0; i < 5; i++ {
		c := newChange("alice", "d1", "f1", domain.ChangeModify)
		c.Checksum = "sum"
		appendChange(t, repo, c)
	}

	page, err := repo.ListAfter(context.Background(), "alice", 2, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, int64(3), page[0].Cursor)
	assert.Equal(t, int64(4), page[1].Cursor)
	assert.Equal(t, "sum", page[0].Checksum)
	assert.Empty(t, page[0].OldPath)

	page, err = repo.ListAfter(context.Background(), "alice", 5, 2)
	require.NoError(t, err)
	assert.Empty(t, page)
}

func TestRolledBackTransactionLeavesNoTrace(t *testing.T) {
	repo := NewChangeLogRepository(testDB(t))
	ctx := context.Background()
	boom := errors.New("boom")

	err := repo.WithTx(ctx, func(tx ChangeLogTx) error {
		cursor, err := tx.NextCursor(ctx, "alice")
		if err != nil {
			return err
		}
		c := newChange("alice", "d1", "f1", domain.ChangeModify)
		c.Cursor = cursor
		if err := tx.InsertChange(ctx, c); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	changes, err := repo.ListAfter(ctx, "alice", 0, 10)
	require.NoError(t, err)
	assert.Empty(t, changes)

	c := appendChange(t, repo, newChange("alice", "d1", "f1", domain.ChangeModify))
	assert.Equal(t, int64(1), c.Cursor)
}

func TestDetectionWindowQueries(t *testing.T) {
	db := testDB(t)
	repo := NewChangeLogRepository(db)
	ctx := context.Background()

	appendChange(t, repo, newChange("alice", "desk", "f1", domain.ChangeModify))
	appendChange(t, repo, newChange("alice", "phone", "f1", domain.ChangeModify))
	appendChange(t, repo, newChange("alice", "phone", "f2", domain.ChangeModify))
	create := newChange("alice", "phone", "f3", domain.ChangeCreate)
	create.NewPath = "/docs/a.txt"
	appendChange(t, repo, create)
	appendChange(t, repo, newChange("alice", "desk", "f1", domain.ChangeMetadata))

	err := repo.WithTx(ctx, func(tx ChangeLogTx) error {
		others, err := tx.ItemChangesAfter(ctx, "alice", "f1", "desk", 0, 10)
		require.NoError(t, err)
		require.Len(t, others, 1)
		assert.Equal(t, "phone", others[0].DeviceID)

		all, err := tx.ItemChangesAfter(ctx, "alice", "f1", "", 1, 10)
		require.NoError(t, err)
		require.Len(t, all, 2)
		assert.Equal(t, int64(5), all[0].Cursor, "newest first")

		creates, err := tx.CreatesAtPathAfter(ctx, "alice", "/docs/a.txt", "desk", 0, 10)
		require.NoError(t, err)
		require.Len(t, creates, 1)
		assert.Equal(t, "f3", creates[0].ItemID)

		own, err := tx.LatestDeviceCursor(ctx, "alice", "f1", "desk")
		require.NoError(t, err)
		assert.Equal(t, int64(5), own)

		none, err := tx.LatestDeviceCursor(ctx, "alice", "f2", "desk")
		require.NoError(t, err)
		assert.Zero(t, none)
		return nil
	})
	require.NoError(t, err)
}

func TestConflictLifecycle(t *testing.T) {
	db := testDB(t)
	repo := NewChangeLogRepository(db)
	conflicts := NewConflictRepository(db)
	ctx := context.Background()

	remote := appendChange(t, repo, newChange("alice", "desk", "f1", domain.ChangeModify))
	local := newChange("alice", "phone", "f1", domain.ChangeModify)

	conflict := &domain.SyncConflict{
		ID:           uuid.New().String(),
		UserID:       "alice",
		ItemID:       "f1",
		ConflictType: domain.ConflictEdit,
		LocalChange:  local,
		RemoteChange: remote,
		CreatedAt:    time.Now(),
		IsPending:    true,
	}

	err := repo.WithTx(ctx, func(tx ChangeLogTx) error {
		cursor, err := tx.NextCursor(ctx, "alice")
		if err != nil {
			return err
		}
		local.Cursor = cursor
		if err := tx.InsertChange(ctx, local); err != nil {
			return err
		}
		return tx.InsertConflict(ctx, conflict)
	})
	require.NoError(t, err)

	got, err := conflicts.Get(ctx, conflict.ID)
	require.NoError(t, err)
	assert.True(t, got.IsPending)
	assert.Equal(t, domain.ConflictEdit, got.ConflictType)
	assert.Equal(t, int64(2), got.LocalChange.Cursor)
	assert.Equal(t, int64(1), got.RemoteChange.Cursor)
	assert.Nil(t, got.ResolvedAt)

	pending, err := conflicts.ListPending(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, pending, 1)

	err = repo.WithTx(ctx, func(tx ChangeLogTx) error {
		return tx.MarkResolved(ctx, conflict.ID, domain.ResolutionKeepLocal, time.Now())
	})
	require.NoError(t, err)

	err = repo.WithTx(ctx, func(tx ChangeLogTx) error {
		return tx.MarkResolved(ctx, conflict.ID, domain.ResolutionKeepRemote, time.Now())
	})
	assert.ErrorIs(t, err, domain.ErrValidation)

	err = repo.WithTx(ctx, func(tx ChangeLogTx) error {
		return tx.MarkResolved(ctx, "missing", domain.ResolutionKeepRemote, time.Now())
	})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	got, err = conflicts.Get(ctx, conflict.ID)
	require.NoError(t, err)
	assert.False(t, got.IsPending)
	assert.Equal(t, domain.ResolutionKeepLocal, got.Resolution)
	assert.NotNil(t, got.ResolvedAt)

	pending, err = conflicts.ListPending(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, pending)

	byItem, err := conflicts.ListByItem(ctx, "alice", "f1")
	require.NoError(t, err)
	assert.Len(t, byItem, 1)

	_, err = conflicts.Get(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
