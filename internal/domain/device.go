package domain

import "time"

type DeviceType string

const (
	DeviceDesktopWindows DeviceType = "desktop_windows"
	DeviceDesktopMacOS   DeviceType = "desktop_macos"
	DeviceDesktopLinux   DeviceType = "desktop_linux"
	DeviceMobileIOS      DeviceType = "mobile_ios"
	DeviceMobileAndroid  DeviceType = "mobile_android"
	DeviceWeb            DeviceType = "web"
	DeviceCLI            DeviceType = "cli"
	DeviceOther          DeviceType = "other"
)

func (t DeviceType) Valid() bool {
	switch t {
	case DeviceDesktopWindows, DeviceDesktopMacOS, DeviceDesktopLinux,
		DeviceMobileIOS, DeviceMobileAndroid, DeviceWeb, DeviceCLI, DeviceOther:
		return true
	default:
		return false
	}
}

// SyncDevice is a client registered by a user. DeviceID is chosen by the
// client and is unique per user; ID is assigned by the server.
type SyncDevice struct {
	ID         string     `json:"id"`
	UserID     string     `json:"user_id"`
	DeviceID   string     `json:"device_id"`
	DeviceName string     `json:"device_name"`
	DeviceType DeviceType `json:"device_type"`
	LastSyncAt *time.Time `json:"last_sync_at,omitempty"`
	Watermark  int64      `json:"watermark"`
	IsActive   bool       `json:"is_active"`
	CreatedAt  time.Time  `json:"created_at"`
}

type RegisterDeviceRequest struct {
	DeviceID   string     `json:"device_id" validate:"required,max=128,excludes=:"`
	DeviceName string     `json:"device_name" validate:"max=200"`
	DeviceType DeviceType `json:"device_type" validate:"omitempty,oneof=desktop_windows desktop_macos desktop_linux mobile_ios mobile_android web cli other"`
}
