package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"filesync-server/internal/domain"
	"filesync-server/internal/logging"
)

func TestDeviceService_Register(t *testing.T) {
	repo := newMockDeviceRepo()
	service := NewDeviceService(repo, logging.Discard())

	req := &domain.RegisterDeviceRequest{
		DeviceID:   "  desktop-1 ",
		DeviceName: "Work laptop",
		DeviceType: domain.DeviceDesktopLinux,
	}

	device, err := service.Register(context.Background(), "user1", req)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if device.ID == "" {
		t.Error("expected device ID to be generated")
	}
	if device.DeviceID != "desktop-1" {
		t.Errorf("expected trimmed device id, got %q", device.DeviceID)
	}
	if !device.IsActive {
		t.Error("expected new device to be active")
	}
	if device.Watermark != 0 {
		t.Errorf("expected zero watermark, got %d", device.Watermark)
	}
}

func TestDeviceService_RegisterDefaultsType(t *testing.T) {
	service := NewDeviceService(newMockDeviceRepo(), logging.Discard())

	device, err := service.Register(context.Background(), "user1", &domain.RegisterDeviceRequest{DeviceID: "d1"})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if device.DeviceType != domain.DeviceOther {
		t.Errorf("expected type %s, got %s", domain.DeviceOther, device.DeviceType)
	}
}

func TestDeviceService_RegisterRejectsInvalid(t *testing.T) {
	service := NewDeviceService(newMockDeviceRepo(), logging.Discard())

	tests := []struct {
		name string
		req  *domain.RegisterDeviceRequest
	}{
		{"blank id", &domain.RegisterDeviceRequest{DeviceID: "   "}},
		{"unknown type", &domain.RegisterDeviceRequest{DeviceID: "d1", DeviceType: "toaster"}},
		{"colon in id", &domain.RegisterDeviceRequest{DeviceID: "x:d1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := service.Register(context.Background(), "user1", tt.req)
			if !errors.Is(err, domain.ErrValidation) {
				t.Errorf("expected validation error, got %v", err)
			}
		})
	}
}

func TestDeviceService_ReRegisterKeepsIdentity(t *testing.T) {
	repo := newMockDeviceRepo()
	service := NewDeviceService(repo, logging.Discard())
	ctx := context.Background()

	first, err := service.Register(ctx, "user1", &domain.RegisterDeviceRequest{DeviceID: "phone-1", DeviceName: "Old"})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if err := service.Deactivate(ctx, "user1", "phone-1"); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	second, err := service.Register(ctx, "user1", &domain.RegisterDeviceRequest{
		DeviceID:   "phone-1",
		DeviceName: "New",
		DeviceType: domain.DeviceMobileAndroid,
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if second.ID != first.ID {
		t.Errorf("expected id %s to be kept, got %s", first.ID, second.ID)
	}
	if !second.IsActive {
		t.Error("expected device to be reactivated")
	}
	if second.DeviceName != "New" || second.DeviceType != domain.DeviceMobileAndroid {
		t.Errorf("expected name and type to be updated, got %q %q", second.DeviceName, second.DeviceType)
	}

	list, _ := service.List(ctx, "user1", false)
	if len(list) != 1 {
		t.Errorf("expected 1 device, got %d", len(list))
	}
}

func TestDeviceService_List(t *testing.T) {
	repo := newMockDeviceRepo()
	service := NewDeviceService(repo, logging.Discard())
	ctx := context.Background()

	base := time.Now()
	repo.Create(ctx, &domain.SyncDevice{ID: "1", UserID: "user1", DeviceID: "d1", IsActive: true, CreatedAt: base})
	repo.Create(ctx, &domain.SyncDevice{ID: "2", UserID: "user1", DeviceID: "d2", IsActive: false, CreatedAt: base.Add(time.Minute)})
	repo.Create(ctx, &domain.SyncDevice{ID: "3", UserID: "user2", DeviceID: "d3", IsActive: true, CreatedAt: base})

	all, err := service.List(ctx, "user1", false)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 devices, got %d", len(all))
	}
	if all[0].DeviceID != "d2" {
		t.Errorf("expected newest device first, got %s", all[0].DeviceID)
	}

	active, err := service.List(ctx, "user1", true)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(active) != 1 || active[0].DeviceID != "d1" {
		t.Errorf("expected only d1 to be active, got %v", active)
	}
}

func TestDeviceService_DeactivateUnknown(t *testing.T) {
	service := NewDeviceService(newMockDeviceRepo(), logging.Discard())

	err := service.Deactivate(context.Background(), "user1", "ghost")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestDeviceService_Remove(t *testing.T) {
	repo := newMockDeviceRepo()
	service := NewDeviceService(repo, logging.Discard())
	ctx := context.Background()

	repo.Create(ctx, &domain.SyncDevice{ID: "1", UserID: "user1", DeviceID: "d1", IsActive: true})

	if err := service.Remove(ctx, "user1", "d1"); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if _, err := service.Find(ctx, "user1", "d1"); !domain.IsNotFound(err) {
		t.Errorf("expected device to be gone, got %v", err)
	}
	if err := service.Remove(ctx, "user1", "d1"); !domain.IsNotFound(err) {
		t.Errorf("expected not found on second remove, got %v", err)
	}
}

func TestDeviceService_MarkSyncedNeverRegresses(t *testing.T) {
	repo := newMockDeviceRepo()
	service := NewDeviceService(repo, logging.Discard())
	ctx := context.Background()

	repo.Create(ctx, &domain.SyncDevice{ID: "1", UserID: "user1", DeviceID: "d1", IsActive: true})

	at := time.Now()
	device, err := service.MarkSynced(ctx, "user1", "d1", 7, at)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if device.Watermark != 7 {
		t.Errorf("expected watermark 7, got %d", device.Watermark)
	}

	later := at.Add(time.Minute)
	device, err = service.MarkSynced(ctx, "user1", "d1", 3, later)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if device.Watermark != 7 {
		t.Errorf("expected watermark to stay 7, got %d", device.Watermark)
	}
	if device.LastSyncAt == nil || !device.LastSyncAt.Equal(later) {
		t.Errorf("expected last sync %v, got %v", later, device.LastSyncAt)
	}
}
