package domain

import "time"

type ChangeType string

const (
	ChangeCreate   ChangeType = "CREATE"
	ChangeModify   ChangeType = "MODIFY"
	ChangeRename   ChangeType = "RENAME"
	ChangeMove     ChangeType = "MOVE"
	ChangeDelete   ChangeType = "DELETE"
	ChangeRestore  ChangeType = "RESTORE"
	ChangeTrash    ChangeType = "TRASH"
	ChangeMetadata ChangeType = "METADATA"
)

func (t ChangeType) Valid() bool {
	switch t {
	case ChangeCreate, ChangeModify, ChangeRename, ChangeMove,
		ChangeDelete, ChangeRestore, ChangeTrash, ChangeMetadata:
		return true
	default:
		return false
	}
}

// IsEdit reports whether the change rewrites content or metadata in place.
func (t ChangeType) IsEdit() bool {
	return t == ChangeModify || t == ChangeMetadata
}

// IsRemoval reports whether the change takes the item out of the live tree.
func (t ChangeType) IsRemoval() bool {
	return t == ChangeDelete || t == ChangeTrash
}

func (t ChangeType) IsRelocation() bool {
	return t == ChangeMove || t == ChangeRename
}

// SyncChange is one immutable entry of a user's change log. Cursor is
// assigned at append time and strictly increases per user.
type SyncChange struct {
	ID         string     `json:"id"`
	UserID     string     `json:"user_id"`
	DeviceID   string     `json:"device_id"`
	ItemID     string     `json:"item_id"`
	ChangeType ChangeType `json:"change_type"`
	Timestamp  time.Time  `json:"timestamp"`
	Cursor     int64      `json:"cursor"`
	OldPath    string     `json:"old_path,omitempty"`
	NewPath    string     `json:"new_path,omitempty"`
	Checksum   string     `json:"checksum,omitempty"`
}

// Path returns the path the change leaves the item at, falling back to the
// path it came from.
func (c *SyncChange) Path() string {
	if c.NewPath != "" {
		return c.NewPath
	}
	return c.OldPath
}

type RecordChangeRequest struct {
	DeviceID   string     `json:"device_id" validate:"required"`
	ItemID     string     `json:"item_id" validate:"required"`
	ChangeType ChangeType `json:"change_type" validate:"required,oneof=CREATE MODIFY RENAME MOVE DELETE RESTORE TRASH METADATA"`
	OldPath    string     `json:"old_path,omitempty"`
	NewPath    string     `json:"new_path,omitempty"`
	Checksum   string     `json:"checksum,omitempty"`
}

type RecordChangeResponse struct {
	Change   *SyncChange   `json:"change"`
	Conflict *SyncConflict `json:"conflict,omitempty"`
}

// PullResult is one page of the change log.
type PullResult struct {
	Changes    []*SyncChange `json:"changes"`
	NextCursor int64         `json:"next_cursor"`
	HasMore    bool          `json:"has_more"`
}
