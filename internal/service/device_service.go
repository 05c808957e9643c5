package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"filesync-server/internal/domain"
	"filesync-server/internal/repository"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type DeviceService struct {
	repo     repository.DeviceRepository
	validate *validator.Validate
	log      logrus.FieldLogger
	now      func() time.Time
}

func NewDeviceService(repo repository.DeviceRepository, log logrus.FieldLogger) *DeviceService {
	return &DeviceService{
		repo:     repo,
		validate: newValidator(),
		log:      log,
		now:      time.Now,
	}
}

// Register upserts the device by (userID, DeviceID). Registering a known
// device updates its name and type and reactivates it under the same id.
func (s *DeviceService) Register(ctx context.Context, userID string, req *domain.RegisterDeviceRequest) (*domain.SyncDevice, error) {
	req.DeviceID = strings.TrimSpace(req.DeviceID)
	if req.DeviceID == "" {
		return nil, domain.NewValidation("device_id", "must not be blank")
	}
	if req.DeviceType == "" {
		req.DeviceType = domain.DeviceOther
	}
	if err := s.validate.Struct(req); err != nil {
		return nil, validationError(err)
	}

	device, err := s.reactivate(ctx, userID, req)
	if err == nil {
		s.log.WithFields(logrus.Fields{"user_id": userID, "device_id": req.DeviceID}).Info("device re-registered")
		return device, nil
	}
	if !domain.IsNotFound(err) {
		return nil, err
	}

	device = &domain.SyncDevice{
		ID:         uuid.New().String(),
		UserID:     userID,
		DeviceID:   req.DeviceID,
		DeviceName: req.DeviceName,
		DeviceType: req.DeviceType,
		IsActive:   true,
		CreatedAt:  s.now(),
	}

	if err := s.repo.Create(ctx, device); err != nil {
		if errors.Is(err, repository.ErrDeviceExists) {
			// Lost a race with a concurrent registration of the same device.
			return s.reactivate(ctx, userID, req)
		}
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"user_id":     userID,
		"device_id":   device.DeviceID,
		"device_type": device.DeviceType,
	}).Info("device registered")

	return device, nil
}

func (s *DeviceService) reactivate(ctx context.Context, userID string, req *domain.RegisterDeviceRequest) (*domain.SyncDevice, error) {
	return s.repo.Update(ctx, userID, req.DeviceID, func(d *domain.SyncDevice) error {
		d.DeviceName = req.DeviceName
		d.DeviceType = req.DeviceType
		d.IsActive = true
		return nil
	})
}

func (s *DeviceService) Find(ctx context.Context, userID, deviceID string) (*domain.SyncDevice, error) {
	return s.repo.Find(ctx, userID, deviceID)
}

// List returns the user's devices, newest first.
func (s *DeviceService) List(ctx context.Context, userID string, activeOnly bool) ([]*domain.SyncDevice, error) {
	devices, err := s.repo.List(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !activeOnly {
		return devices, nil
	}

	active := make([]*domain.SyncDevice, 0, len(devices))
	for _, d := range devices {
		if d.IsActive {
			active = append(active, d)
		}
	}
	return active, nil
}

func (s *DeviceService) Deactivate(ctx context.Context, userID, deviceID string) error {
	_, err := s.repo.Update(ctx, userID, deviceID, func(d *domain.SyncDevice) error {
		d.IsActive = false
		return nil
	})
	if err != nil {
		return err
	}

	s.log.WithFields(logrus.Fields{"user_id": userID, "device_id": deviceID}).Info("device deactivated")
	return nil
}

// Remove hard-deletes the device. A missing device yields a not-found
// error that callers may treat as success.
func (s *DeviceService) Remove(ctx context.Context, userID, deviceID string) error {
	if err := s.repo.Delete(ctx, userID, deviceID); err != nil {
		return err
	}

	s.log.WithFields(logrus.Fields{"user_id": userID, "device_id": deviceID}).Info("device removed")
	return nil
}

// MarkSynced records that the device has observed the log up to watermark.
// The stored watermark never moves backwards.
func (s *DeviceService) MarkSynced(ctx context.Context, userID, deviceID string, watermark int64, at time.Time) (*domain.SyncDevice, error) {
	return s.repo.Update(ctx, userID, deviceID, func(d *domain.SyncDevice) error {
		if watermark > d.Watermark {
			d.Watermark = watermark
		}
		d.LastSyncAt = &at
		return nil
	})
}
