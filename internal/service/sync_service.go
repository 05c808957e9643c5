package service

import (
	"context"
	"time"

	"filesync-server/internal/domain"
	"filesync-server/internal/repository"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
)

type SyncService struct {
	devices   *DeviceService
	changeLog *ChangeLogService
	conflicts *ConflictService
	items     repository.ItemRepository
	validate  *validator.Validate
	log       logrus.FieldLogger
	now       func() time.Time
}

func NewSyncService(
	devices *DeviceService,
	changeLog *ChangeLogService,
	conflicts *ConflictService,
	items repository.ItemRepository,
	log logrus.FieldLogger,
) *SyncService {
	return &SyncService{
		devices:   devices,
		changeLog: changeLog,
		conflicts: conflicts,
		items:     items,
		validate:  newValidator(),
		log:       log,
		now:       time.Now,
	}
}

// RecordChange appends a change pushed by one of the user's devices and
// reports the conflict it raised, if any.
func (s *SyncService) RecordChange(ctx context.Context, userID string, req *domain.RecordChangeRequest) (*domain.RecordChangeResponse, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, validationError(err)
	}
	if err := validatePaths(req); err != nil {
		return nil, err
	}

	device, err := s.devices.Find(ctx, userID, req.DeviceID)
	if err != nil {
		return nil, err
	}
	if !device.IsActive {
		return nil, domain.NewValidation("device_id", "device is deactivated")
	}

	item, err := s.items.FindByID(ctx, req.ItemID)
	if err != nil {
		return nil, err
	}
	if item.UserID != userID {
		return nil, domain.NewNotFound("item", req.ItemID)
	}

	change := &domain.SyncChange{
		UserID:     userID,
		DeviceID:   req.DeviceID,
		ItemID:     req.ItemID,
		ChangeType: req.ChangeType,
		OldPath:    req.OldPath,
		NewPath:    req.NewPath,
		Checksum:   req.Checksum,
		Timestamp:  s.now(),
	}

	change, conflict, err := s.changeLog.Record(ctx, change, Observation{
		Watermark: device.Watermark,
		ParentID:  item.ParentID,
	})
	if err != nil {
		return nil, err
	}

	return &domain.RecordChangeResponse{Change: change, Conflict: conflict}, nil
}

func validatePaths(req *domain.RecordChangeRequest) error {
	switch req.ChangeType {
	case domain.ChangeCreate:
		if req.NewPath == "" {
			return domain.NewValidation("new_path", "required for CREATE")
		}
	case domain.ChangeRename, domain.ChangeMove:
		if req.OldPath == "" {
			return domain.NewValidation("old_path", "required for "+string(req.ChangeType))
		}
		if req.NewPath == "" {
			return domain.NewValidation("new_path", "required for "+string(req.ChangeType))
		}
	}
	return nil
}

// Sync returns one page of the change log with the user's pending conflicts.
// When the request names a device, its watermark advances to the returned
// cursor.
func (s *SyncService) Sync(ctx context.Context, userID string, req *domain.SyncRequest) (*domain.SyncResponse, error) {
	includeDeleted := true
	if req.IncludeDeleted != nil {
		includeDeleted = *req.IncludeDeleted
	}

	if req.DeviceID != "" {
		device, err := s.devices.Find(ctx, userID, req.DeviceID)
		if err != nil {
			return nil, err
		}
		if !device.IsActive {
			return nil, domain.NewValidation("device_id", "device is deactivated")
		}
	}

	page, err := s.changeLog.Pull(ctx, userID, req.Cursor, req.Limit, includeDeleted)
	if err != nil {
		return nil, err
	}

	conflicts, err := s.conflicts.ListPending(ctx, userID)
	if err != nil {
		return nil, err
	}

	serverTime := s.now()

	if req.DeviceID != "" {
		if err := s.advanceWatermark(ctx, userID, req.DeviceID, page.NextCursor, serverTime); err != nil {
			// The page is still valid; the device will resend its cursor.
			s.log.WithError(err).WithFields(logrus.Fields{
				"user_id":   userID,
				"device_id": req.DeviceID,
			}).Warn("failed to advance device watermark")
		}
	}

	return &domain.SyncResponse{
		Changes:    page.Changes,
		Cursor:     page.NextCursor,
		HasMore:    page.HasMore,
		Conflicts:  conflicts,
		ServerTime: serverTime,
	}, nil
}

// advanceWatermark records cursor as observed by the device. A client can
// send a cursor past the end of the log, so the value never exceeds the
// newest cursor that exists.
func (s *SyncService) advanceWatermark(ctx context.Context, userID, deviceID string, cursor int64, at time.Time) error {
	latest, err := s.changeLog.LatestCursor(ctx, userID)
	if err != nil {
		return err
	}
	_, err = s.devices.MarkSynced(ctx, userID, deviceID, min(cursor, latest), at)
	return err
}
