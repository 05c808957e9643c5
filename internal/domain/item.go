package domain

type ItemKind string

const (
	ItemFile   ItemKind = "file"
	ItemFolder ItemKind = "folder"
)

// StorageItem is the read-only view of a stored file or folder that the sync
// engine needs to resolve identity and hierarchy.
type StorageItem struct {
	ID             string   `json:"id"`
	UserID         string   `json:"user_id"`
	ParentID       string   `json:"parent_id,omitempty"`
	Path           string   `json:"path"`
	Kind           ItemKind `json:"kind"`
	CurrentVersion int64    `json:"current_version"`
	IsDeleted      bool     `json:"is_deleted"`
}
