package service

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"filesync-server/internal/domain"
	"filesync-server/internal/repository"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const conflictedCopyLayout = "20060102-150405"

type ConflictService struct {
	changeLog repository.ChangeLogRepository
	conflicts repository.ConflictRepository
	items     repository.ItemRepository
	validate  *validator.Validate
	log       logrus.FieldLogger
	now       func() time.Time
}

func NewConflictService(
	changeLog repository.ChangeLogRepository,
	conflicts repository.ConflictRepository,
	items repository.ItemRepository,
	log logrus.FieldLogger,
) *ConflictService {
	return &ConflictService{
		changeLog: changeLog,
		conflicts: conflicts,
		items:     items,
		validate:  newValidator(),
		log:       log,
		now:       time.Now,
	}
}

// ListPending returns the user's unresolved conflicts, newest first.
func (s *ConflictService) ListPending(ctx context.Context, userID string) ([]*domain.SyncConflict, error) {
	return s.conflicts.ListPending(ctx, userID)
}

// History returns every conflict raised on one item, resolved or not,
// newest first.
func (s *ConflictService) History(ctx context.Context, userID, itemID string) ([]*domain.SyncConflict, error) {
	return s.conflicts.ListByItem(ctx, userID, itemID)
}

func (s *ConflictService) Get(ctx context.Context, userID, conflictID string) (*domain.SyncConflict, error) {
	conflict, err := s.conflicts.Get(ctx, conflictID)
	if err != nil {
		return nil, err
	}
	if conflict.UserID != userID {
		return nil, domain.NewNotFound("conflict", conflictID)
	}
	return conflict, nil
}

// Resolve applies resolution to a pending conflict. The compensating change
// and the state transition commit together.
func (s *ConflictService) Resolve(ctx context.Context, userID, conflictID string, req *domain.ResolveConflictRequest) (*domain.ResolveConflictResponse, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, validationError(err)
	}

	conflict, err := s.Get(ctx, userID, conflictID)
	if err != nil {
		return nil, err
	}
	if !conflict.IsPending {
		return nil, domain.NewValidation("conflict", "already resolved")
	}

	switch req.Resolution {
	case domain.ResolutionMerge:
		return nil, domain.NewNotSupported("MERGE resolution")
	case domain.ResolutionManual:
		return &domain.ResolveConflictResponse{Conflict: conflict}, nil
	}

	local, remote := conflict.LocalChange, conflict.RemoteChange
	if req.DeviceID != "" && req.DeviceID == remote.DeviceID && req.DeviceID != local.DeviceID {
		local, remote = remote, local
	}

	now := s.now()
	var change *domain.SyncChange
	switch req.Resolution {
	case domain.ResolutionKeepLocal:
		change = compensate(conflict.ConflictType, conflict.ItemID, local, remote)
	case domain.ResolutionKeepRemote:
		change = compensate(conflict.ConflictType, conflict.ItemID, remote, local)
	case domain.ResolutionKeepBoth:
		change, err = s.keepBoth(ctx, conflict, local, remote, now)
		if err != nil {
			return nil, err
		}
	}

	change.ID = uuid.New().String()
	change.UserID = userID
	change.Timestamp = now
	if req.DeviceID != "" {
		change.DeviceID = req.DeviceID
	}

	err = s.changeLog.WithTx(ctx, func(tx repository.ChangeLogTx) error {
		if err := appendChange(ctx, tx, change); err != nil {
			return err
		}
		return tx.MarkResolved(ctx, conflict.ID, req.Resolution, now)
	})
	if err != nil {
		return nil, err
	}

	conflict.IsPending = false
	conflict.Resolution = req.Resolution
	conflict.ResolvedAt = &now

	s.log.WithFields(logrus.Fields{
		"user_id":     userID,
		"conflict_id": conflict.ID,
		"resolution":  req.Resolution,
		"change_type": change.ChangeType,
		"cursor":      change.Cursor,
	}).Info("conflict resolved")

	return &domain.ResolveConflictResponse{Conflict: conflict, Change: change}, nil
}

// compensate builds the change that re-asserts chosen over other.
func compensate(conflictType domain.ConflictType, itemID string, chosen, other *domain.SyncChange) *domain.SyncChange {
	if conflictType == domain.ConflictParentDeleted {
		if chosen.ChangeType.IsRemoval() {
			// The parent removal wins, so the child goes with it.
			return &domain.SyncChange{
				DeviceID:   chosen.DeviceID,
				ItemID:     itemID,
				ChangeType: chosen.ChangeType,
				OldPath:    other.Path(),
			}
		}
		return &domain.SyncChange{
			DeviceID:   chosen.DeviceID,
			ItemID:     other.ItemID,
			ChangeType: domain.ChangeRestore,
			NewPath:    other.Path(),
		}
	}

	if !chosen.ChangeType.IsRemoval() && other.ChangeType.IsRemoval() {
		return &domain.SyncChange{
			DeviceID:   chosen.DeviceID,
			ItemID:     chosen.ItemID,
			ChangeType: domain.ChangeRestore,
			NewPath:    chosen.Path(),
			Checksum:   chosen.Checksum,
		}
	}

	return &domain.SyncChange{
		DeviceID:   chosen.DeviceID,
		ItemID:     chosen.ItemID,
		ChangeType: chosen.ChangeType,
		OldPath:    chosen.OldPath,
		NewPath:    chosen.NewPath,
		Checksum:   chosen.Checksum,
	}
}

func (s *ConflictService) keepBoth(ctx context.Context, conflict *domain.SyncConflict, local, remote *domain.SyncChange, at time.Time) (*domain.SyncChange, error) {
	if conflict.ConflictType == domain.ConflictCreateCreate {
		return &domain.SyncChange{
			DeviceID:   local.DeviceID,
			ItemID:     local.ItemID,
			ChangeType: domain.ChangeRename,
			OldPath:    local.NewPath,
			NewPath:    disambiguate(local.NewPath, local.DeviceID, at),
		}, nil
	}

	survivor := local
	if survivor.ChangeType.IsRemoval() {
		survivor = remote
	}

	p := survivor.Path()
	if p == "" {
		var err error
		if p, err = s.itemPath(ctx, conflict.ItemID); err != nil {
			return nil, err
		}
	}

	return &domain.SyncChange{
		DeviceID:   survivor.DeviceID,
		ItemID:     uuid.New().String(),
		ChangeType: domain.ChangeCreate,
		NewPath:    disambiguate(p, survivor.DeviceID, at),
		Checksum:   survivor.Checksum,
	}, nil
}

// itemPath falls back to the item id when the item is gone from storage.
func (s *ConflictService) itemPath(ctx context.Context, itemID string) (string, error) {
	item, err := s.items.FindByID(ctx, itemID)
	if domain.IsNotFound(err) {
		return itemID, nil
	}
	if err != nil {
		return "", err
	}
	if item.Path == "" {
		return itemID, nil
	}
	return item.Path, nil
}

// disambiguate turns "/docs/a.txt" into
// "/docs/a (conflicted copy phone-1 20240102-150405).txt".
func disambiguate(p, deviceID string, at time.Time) string {
	dir, base := path.Split(p)
	ext := path.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	if stem == "" {
		stem, ext = ext, ""
	}
	return fmt.Sprintf("%s%s (conflicted copy %s %s)%s", dir, stem, deviceID, at.UTC().Format(conflictedCopyLayout), ext)
}
