package service

import (
	"context"
	"time"

	"filesync-server/internal/domain"
	"filesync-server/internal/repository"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type PageLimits struct {
	Default int
	Max     int
}

// Observation is what the recording device is known to have seen when it
// produced a change.
type Observation struct {
	Watermark int64
	ParentID  string
}

type ChangeLogService struct {
	repo     repository.ChangeLogRepository
	detector *ConflictDetector
	limits   PageLimits
	log      logrus.FieldLogger
	now      func() time.Time
}

func NewChangeLogService(repo repository.ChangeLogRepository, detector *ConflictDetector, limits PageLimits, log logrus.FieldLogger) *ChangeLogService {
	return &ChangeLogService{
		repo:     repo,
		detector: detector,
		limits:   limits,
		log:      log,
		now:      time.Now,
	}
}

// Record appends change under the next cursor of its user. The detector runs
// inside the same transaction, so a classified conflict is stored together
// with the change or not at all. Detection never rejects the change.
func (s *ChangeLogService) Record(ctx context.Context, change *domain.SyncChange, obs Observation) (*domain.SyncChange, *domain.SyncConflict, error) {
	if change.ID == "" {
		change.ID = uuid.New().String()
	}
	if change.Timestamp.IsZero() {
		change.Timestamp = s.now()
	}

	var conflict *domain.SyncConflict
	err := s.repo.WithTx(ctx, func(tx repository.ChangeLogTx) error {
		cursor, err := tx.NextCursor(ctx, change.UserID)
		if err != nil {
			return err
		}
		change.Cursor = cursor

		conflict, err = s.detector.Detect(ctx, tx, change, obs)
		if err != nil {
			return err
		}

		if err := tx.InsertChange(ctx, change); err != nil {
			return err
		}
		if conflict != nil {
			return tx.InsertConflict(ctx, conflict)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	entry := s.log.WithFields(logrus.Fields{
		"user_id":     change.UserID,
		"device_id":   change.DeviceID,
		"item_id":     change.ItemID,
		"change_type": change.ChangeType,
		"cursor":      change.Cursor,
	})
	if conflict != nil {
		entry.WithFields(logrus.Fields{
			"conflict_id":   conflict.ID,
			"conflict_type": conflict.ConflictType,
			"remote_cursor": conflict.RemoteChange.Cursor,
		}).Warn("conflict detected")
	} else {
		entry.Debug("change recorded")
	}

	return change, conflict, nil
}

// Pull returns the changes after cursor in cursor order. Filtered-out
// removals still advance NextCursor so the page can be resumed without gaps.
func (s *ChangeLogService) Pull(ctx context.Context, userID string, cursor *int64, limit int, includeDeleted bool) (*domain.PullResult, error) {
	var after int64
	if cursor != nil {
		if *cursor < 0 {
			return nil, domain.NewValidation("cursor", "must not be negative")
		}
		after = *cursor
	}

	limit = s.clampLimit(limit)

	rows, err := s.repo.ListAfter(ctx, userID, after, limit+1)
	if err != nil {
		return nil, err
	}

	hasMore := len(rows) > limit
	if hasMore {
		rows = rows[:limit]
	}

	next := after
	if len(rows) > 0 {
		next = rows[len(rows)-1].Cursor
	}

	changes := make([]*domain.SyncChange, 0, len(rows))
	for _, c := range rows {
		if !includeDeleted && c.ChangeType.IsRemoval() {
			continue
		}
		changes = append(changes, c)
	}

	return &domain.PullResult{
		Changes:    changes,
		NextCursor: next,
		HasMore:    hasMore,
	}, nil
}

// LatestCursor returns the highest cursor handed out to userID, or 0.
func (s *ChangeLogService) LatestCursor(ctx context.Context, userID string) (int64, error) {
	return s.repo.LatestCursor(ctx, userID)
}

func (s *ChangeLogService) clampLimit(limit int) int {
	if limit <= 0 {
		return s.limits.Default
	}
	if limit > s.limits.Max {
		return s.limits.Max
	}
	return limit
}

// appendChange writes change under the next cursor without running
// detection. Used for compensating changes written by conflict resolution.
func appendChange(ctx context.Context, tx repository.ChangeLogTx, change *domain.SyncChange) error {
	cursor, err := tx.NextCursor(ctx, change.UserID)
	if err != nil {
		return err
	}
	change.Cursor = cursor
	return tx.InsertChange(ctx, change)
}
