package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"filesync-server/internal/domain"
	"filesync-server/internal/logging"
	"filesync-server/internal/repository"
)

type mockDeviceRepo struct {
	mu      sync.Mutex
	devices map[string]domain.SyncDevice
}

func newMockDeviceRepo() *mockDeviceRepo {
	return &mockDeviceRepo{
		devices: make(map[string]domain.SyncDevice),
	}
}

func deviceKey(userID, deviceID string) string {
	return userID + "/" + deviceID
}

func (m *mockDeviceRepo) Create(ctx context.Context, device *domain.SyncDevice) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := deviceKey(device.UserID, device.DeviceID)
	if _, exists := m.devices[key]; exists {
		return repository.ErrDeviceExists
	}
	m.devices[key] = *device
	return nil
}

func (m *mockDeviceRepo) Find(ctx context.Context, userID, deviceID string) (*domain.SyncDevice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, exists := m.devices[deviceKey(userID, deviceID)]
	if !exists {
		return nil, domain.NewNotFound("device", deviceID)
	}
	return &d, nil
}

func (m *mockDeviceRepo) List(ctx context.Context, userID string) ([]*domain.SyncDevice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var devices []*domain.SyncDevice
	for _, d := range m.devices {
		if d.UserID == userID {
			d := d
			devices = append(devices, &d)
		}
	}
	sort.Slice(devices, func(i, j int) bool {
		return devices[i].CreatedAt.After(devices[j].CreatedAt)
	})
	return devices, nil
}

func (m *mockDeviceRepo) Update(ctx context.Context, userID, deviceID string, mutate func(*domain.SyncDevice) error) (*domain.SyncDevice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := deviceKey(userID, deviceID)
	d, exists := m.devices[key]
	if !exists {
		return nil, domain.NewNotFound("device", deviceID)
	}
	if err := mutate(&d); err != nil {
		return nil, err
	}
	m.devices[key] = d
	return &d, nil
}

func (m *mockDeviceRepo) Delete(ctx context.Context, userID, deviceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := deviceKey(userID, deviceID)
	if _, exists := m.devices[key]; !exists {
		return domain.NewNotFound("device", deviceID)
	}
	delete(m.devices, key)
	return nil
}

type mockItemRepo struct {
	items map[string]*domain.StorageItem
}

func newMockItemRepo() *mockItemRepo {
	return &mockItemRepo{
		items: make(map[string]*domain.StorageItem),
	}
}

func (m *mockItemRepo) add(item *domain.StorageItem) {
	m.items[item.ID] = item
}

func (m *mockItemRepo) FindByID(ctx context.Context, itemID string) (*domain.StorageItem, error) {
	if item, exists := m.items[itemID]; exists {
		return item, nil
	}
	return nil, domain.NewNotFound("item", itemID)
}

type mockContentRepo struct {
	mu       sync.Mutex
	versions map[string][]byte
	opens    int
}

func newMockContentRepo() *mockContentRepo {
	return &mockContentRepo{
		versions: make(map[string][]byte),
	}
}

func versionKey(itemID string, version int64) string {
	return fmt.Sprintf("%s@%d", itemID, version)
}

func (m *mockContentRepo) put(itemID string, version int64, data []byte) {
	m.versions[versionKey(itemID, version)] = data
}

func (m *mockContentRepo) Open(ctx context.Context, itemID string, version int64) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, exists := m.versions[versionKey(itemID, version)]
	if !exists {
		return nil, domain.NewNotFound("version", itemID)
	}
	m.opens++
	return io.NopCloser(bytes.NewReader(data)), nil
}

// engine wires the services over a real change log in a temp dir.
type engine struct {
	devices   *DeviceService
	changeLog *ChangeLogService
	conflicts *ConflictService
	sync      *SyncService

	deviceRepo *mockDeviceRepo
	itemRepo   *mockItemRepo
	logRepo    repository.ChangeLogRepository
}

func newEngine(t *testing.T, limits PageLimits) *engine {
	t.Helper()

	db, err := repository.OpenSQLite(filepath.Join(t.TempDir(), "changelog.db"), 10*time.Second)
	if err != nil {
		t.Fatalf("failed to open change log: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.InitSchema(context.Background()); err != nil {
		t.Fatalf("failed to init schema: %v", err)
	}

	log := logging.Discard()
	e := &engine{
		deviceRepo: newMockDeviceRepo(),
		itemRepo:   newMockItemRepo(),
		logRepo:    repository.NewChangeLogRepository(db),
	}
	e.devices = NewDeviceService(e.deviceRepo, log)
	e.changeLog = NewChangeLogService(e.logRepo, NewConflictDetector(50), limits, log)
	e.conflicts = NewConflictService(e.logRepo, repository.NewConflictRepository(db), e.itemRepo, log)
	e.sync = NewSyncService(e.devices, e.changeLog, e.conflicts, e.itemRepo, log)
	return e
}

func (e *engine) register(t *testing.T, userID, deviceID string) {
	t.Helper()
	_, err := e.devices.Register(context.Background(), userID, &domain.RegisterDeviceRequest{
		DeviceID:   deviceID,
		DeviceName: deviceID,
	})
	if err != nil {
		t.Fatalf("failed to register %s: %v", deviceID, err)
	}
}

func (e *engine) push(t *testing.T, userID string, req *domain.RecordChangeRequest) *domain.RecordChangeResponse {
	t.Helper()
	resp, err := e.sync.RecordChange(context.Background(), userID, req)
	if err != nil {
		t.Fatalf("failed to record %s from %s: %v", req.ChangeType, req.DeviceID, err)
	}
	return resp
}

func (e *engine) pull(t *testing.T, userID, deviceID string, cursor int64) *domain.SyncResponse {
	t.Helper()
	resp, err := e.sync.Sync(context.Background(), userID, &domain.SyncRequest{
		DeviceID: deviceID,
		Cursor:   &cursor,
	})
	if err != nil {
		t.Fatalf("failed to sync %s: %v", deviceID, err)
	}
	return resp
}

func defaultLimits() PageLimits {
	return PageLimits{Default: 1000, Max: 5000}
}
