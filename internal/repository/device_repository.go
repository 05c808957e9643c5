package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"filesync-server/internal/domain"

	"github.com/go-kivik/kivik/v4"
)

const maxUpdateAttempts = 3

// ErrDeviceExists is returned by Create when the (user, device) pair is
// already registered.
var ErrDeviceExists = errors.New("device already exists")

type DeviceRepository interface {
	Create(ctx context.Context, device *domain.SyncDevice) error
	Find(ctx context.Context, userID, deviceID string) (*domain.SyncDevice, error)
	List(ctx context.Context, userID string) ([]*domain.SyncDevice, error)
	// Update applies mutate to the stored device and writes it back,
	// retrying on revision conflicts.
	Update(ctx context.Context, userID, deviceID string, mutate func(*domain.SyncDevice) error) (*domain.SyncDevice, error)
	Delete(ctx context.Context, userID, deviceID string) error
}

type deviceDoc struct {
	Rev     string `json:"_rev,omitempty"`
	DocType string `json:"doc_type"`
	domain.SyncDevice
}

type deviceRepository struct {
	client *kivik.Client
	dbName string
}

func NewDeviceRepository(client *kivik.Client, dbName string) DeviceRepository {
	return &deviceRepository{
		client: client,
		dbName: dbName,
	}
}

// Device documents are keyed by owner and client device id, which makes the
// pair unique without a secondary index.
func deviceDocID(userID, deviceID string) string {
	return fmt.Sprintf("device:%s:%s", userID, deviceID)
}

func (r *deviceRepository) Create(ctx context.Context, device *domain.SyncDevice) error {
	db := r.client.DB(r.dbName)

	doc := &deviceDoc{DocType: "device", SyncDevice: *device}
	if _, err := db.Put(ctx, deviceDocID(device.UserID, device.DeviceID), doc); err != nil {
		if isConflict(err) {
			return ErrDeviceExists
		}
		return domain.NewStorageError("create device", err)
	}

	return nil
}

func (r *deviceRepository) get(ctx context.Context, userID, deviceID string) (*deviceDoc, error) {
	db := r.client.DB(r.dbName)

	var doc deviceDoc
	if err := db.Get(ctx, deviceDocID(userID, deviceID)).ScanDoc(&doc); err != nil {
		return nil, couchError("find device", "device", deviceID, err)
	}
	// A colon in a user id can make two owners share a key prefix.
	if doc.UserID != userID || doc.DeviceID != deviceID {
		return nil, domain.NewNotFound("device", deviceID)
	}
	return &doc, nil
}

func (r *deviceRepository) Find(ctx context.Context, userID, deviceID string) (*domain.SyncDevice, error) {
	doc, err := r.get(ctx, userID, deviceID)
	if err != nil {
		return nil, err
	}
	return &doc.SyncDevice, nil
}

// List walks the user's key range of _all_docs, so it returns every device
// regardless of how many the user has.
func (r *deviceRepository) List(ctx context.Context, userID string) ([]*domain.SyncDevice, error) {
	db := r.client.DB(r.dbName)

	prefix := deviceDocID(userID, "")
	rows := db.AllDocs(ctx, kivik.Params(map[string]interface{}{
		"include_docs": true,
		"startkey":     prefix,
		"endkey":       prefix + "\ufff0",
	}))
	defer rows.Close()

	devices := make([]*domain.SyncDevice, 0)
	for rows.Next() {
		var doc deviceDoc
		if err := rows.ScanDoc(&doc); err != nil {
			id, _ := rows.ID()
			return nil, domain.NewStorageError("decode device "+id, err)
		}
		if doc.UserID != userID {
			continue
		}
		d := doc.SyncDevice
		devices = append(devices, &d)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.NewStorageError("list devices", err)
	}

	sort.SliceStable(devices, func(i, j int) bool {
		return devices[i].CreatedAt.After(devices[j].CreatedAt)
	})

	return devices, nil
}

func (r *deviceRepository) Update(ctx context.Context, userID, deviceID string, mutate func(*domain.SyncDevice) error) (*domain.SyncDevice, error) {
	db := r.client.DB(r.dbName)
	docID := deviceDocID(userID, deviceID)

	for attempt := 1; ; attempt++ {
		doc, err := r.get(ctx, userID, deviceID)
		if err != nil {
			return nil, err
		}

		if err := mutate(&doc.SyncDevice); err != nil {
			return nil, err
		}

		_, err = db.Put(ctx, docID, doc)
		if err == nil {
			return &doc.SyncDevice, nil
		}
		if !isConflict(err) || attempt == maxUpdateAttempts {
			return nil, domain.NewStorageError("update device", err)
		}
	}
}

func (r *deviceRepository) Delete(ctx context.Context, userID, deviceID string) error {
	doc, err := r.get(ctx, userID, deviceID)
	if err != nil {
		return err
	}

	db := r.client.DB(r.dbName)
	if _, err := db.Delete(ctx, deviceDocID(userID, deviceID), doc.Rev); err != nil {
		return couchError("delete device", "device", deviceID, err)
	}

	return nil
}
