package domain

import "time"

type SyncRequest struct {
	DeviceID       string `json:"device_id"`
	Cursor         *int64 `json:"cursor,omitempty"`
	Limit          int    `json:"limit"`
	IncludeDeleted *bool  `json:"include_deleted,omitempty"`
}

type SyncResponse struct {
	Changes    []*SyncChange   `json:"changes"`
	Cursor     int64           `json:"cursor"`
	HasMore    bool            `json:"has_more"`
	Conflicts  []*SyncConflict `json:"conflicts"`
	ServerTime time.Time       `json:"server_time"`
}
