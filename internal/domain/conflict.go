package domain

import "time"

type ConflictType string

const (
	ConflictEdit          ConflictType = "EDIT_CONFLICT"
	ConflictEditDelete    ConflictType = "EDIT_DELETE"
	ConflictDeleteEdit    ConflictType = "DELETE_EDIT"
	ConflictCreateCreate  ConflictType = "CREATE_CREATE"
	ConflictMoveMove      ConflictType = "MOVE_MOVE"
	ConflictParentDeleted ConflictType = "PARENT_DELETED"
)

func (t ConflictType) Valid() bool {
	switch t {
	case ConflictEdit, ConflictEditDelete, ConflictDeleteEdit,
		ConflictCreateCreate, ConflictMoveMove, ConflictParentDeleted:
		return true
	default:
		return false
	}
}

type Resolution string

const (
	ResolutionKeepLocal  Resolution = "KEEP_LOCAL"
	ResolutionKeepRemote Resolution = "KEEP_REMOTE"
	ResolutionKeepBoth   Resolution = "KEEP_BOTH"
	ResolutionMerge      Resolution = "MERGE"
	ResolutionManual     Resolution = "MANUAL"
)

func (r Resolution) Valid() bool {
	switch r {
	case ResolutionKeepLocal, ResolutionKeepRemote, ResolutionKeepBoth, ResolutionMerge, ResolutionManual:
		return true
	default:
		return false
	}
}

// SyncConflict links the incoming (local) change with the prior change it
// raced against (remote). It moves from pending to resolved exactly once and
// is never deleted.
type SyncConflict struct {
	ID           string       `json:"id"`
	UserID       string       `json:"user_id"`
	ItemID       string       `json:"item_id"`
	ConflictType ConflictType `json:"conflict_type"`
	LocalChange  *SyncChange  `json:"local_change"`
	RemoteChange *SyncChange  `json:"remote_change"`
	CreatedAt    time.Time    `json:"created_at"`
	IsPending    bool         `json:"is_pending"`
	Resolution   Resolution   `json:"resolution,omitempty"`
	ResolvedAt   *time.Time   `json:"resolved_at,omitempty"`
}

type ResolveConflictRequest struct {
	Resolution Resolution `json:"resolution" validate:"required,oneof=KEEP_LOCAL KEEP_REMOTE KEEP_BOTH MERGE MANUAL"`
	DeviceID   string     `json:"device_id,omitempty"`
}

type ResolveConflictResponse struct {
	Conflict *SyncConflict `json:"conflict"`
	Change   *SyncChange   `json:"change,omitempty"`
}
