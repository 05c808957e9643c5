package service

import (
	"context"
	"fmt"

	"filesync-server/internal/domain"
	"filesync-server/internal/repository"

	"github.com/google/uuid"
)

// ConflictDetector classifies an incoming change against the changes its
// device has not observed yet. It only reads a bounded window of the log.
type ConflictDetector struct {
	window int
}

func NewConflictDetector(window int) *ConflictDetector {
	if window <= 0 {
		window = 50
	}
	return &ConflictDetector{window: window}
}

// Detect returns the conflict change would raise, or nil.
//
// A prior change counts as unobserved when it comes from another device and
// its cursor is above both the device watermark and the device's own latest
// change to the item. Anything older than that own change was already
// compared when that change was recorded.
func (d *ConflictDetector) Detect(ctx context.Context, r repository.ChangeReader, change *domain.SyncChange, obs Observation) (*domain.SyncConflict, error) {
	own, err := r.LatestDeviceCursor(ctx, change.UserID, change.ItemID, change.DeviceID)
	if err != nil {
		return nil, err
	}
	after := obs.Watermark
	if own > after {
		after = own
	}

	remote, conflictType, err := d.classify(ctx, r, change, after)
	if err != nil {
		return nil, err
	}

	if remote == nil && obs.ParentID != "" && !change.ChangeType.IsRemoval() {
		parent, err := r.ItemChangesAfter(ctx, change.UserID, obs.ParentID, change.DeviceID, after, 1)
		if err != nil {
			return nil, err
		}
		if len(parent) > 0 && parent[0].ChangeType.IsRemoval() {
			remote, conflictType = parent[0], domain.ConflictParentDeleted
		}
	}

	if remote == nil {
		return nil, nil
	}

	return &domain.SyncConflict{
		ID:           uuid.New().String(),
		UserID:       change.UserID,
		ItemID:       change.ItemID,
		ConflictType: conflictType,
		LocalChange:  change,
		RemoteChange: remote,
		CreatedAt:    change.Timestamp,
		IsPending:    true,
	}, nil
}

func (d *ConflictDetector) classify(ctx context.Context, r repository.ChangeReader, change *domain.SyncChange, after int64) (*domain.SyncChange, domain.ConflictType, error) {
	switch change.ChangeType {
	case domain.ChangeCreate:
		if change.NewPath == "" {
			return nil, "", nil
		}
		creates, err := r.CreatesAtPathAfter(ctx, change.UserID, change.NewPath, change.DeviceID, after, d.window)
		if err != nil {
			return nil, "", err
		}
		for _, c := range creates {
			if c.ItemID != change.ItemID {
				return c, domain.ConflictCreateCreate, nil
			}
		}
		return nil, "", nil

	case domain.ChangeModify, domain.ChangeMetadata,
		domain.ChangeDelete, domain.ChangeTrash,
		domain.ChangeMove, domain.ChangeRename:
		prior, err := r.ItemChangesAfter(ctx, change.UserID, change.ItemID, change.DeviceID, after, d.window)
		if err != nil {
			return nil, "", err
		}
		// Newest first. A CREATE or RESTORE resets the item, so nothing
		// older than it can compete.
		for _, p := range prior {
			if p.ChangeType == domain.ChangeCreate || p.ChangeType == domain.ChangeRestore {
				break
			}
			if t, ok := pairConflict(change, p); ok {
				return p, t, nil
			}
		}
		return nil, "", nil

	case domain.ChangeRestore:
		return nil, "", nil

	default:
		return nil, "", fmt.Errorf("unknown change type %q", change.ChangeType)
	}
}

// pairConflict classifies two changes to the same item.
func pairConflict(local, remote *domain.SyncChange) (domain.ConflictType, bool) {
	l, r := local.ChangeType, remote.ChangeType
	switch {
	case l.IsEdit() && r.IsEdit():
		return domain.ConflictEdit, true
	case l.IsEdit() && r.IsRemoval():
		return domain.ConflictEditDelete, true
	case l.IsRemoval() && r.IsEdit():
		return domain.ConflictDeleteEdit, true
	case l.IsRelocation() && r.IsRelocation() && local.NewPath != remote.NewPath:
		return domain.ConflictMoveMove, true
	default:
		return "", false
	}
}
