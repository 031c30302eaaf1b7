package models

import (
	"time"
)

// DeviceCommand records a single command attempt against a device, success or
// failure, for the per-device command history view.
type DeviceCommand struct {
	ID          string     `json:"id"`
	DeviceID    string     `json:"device_id"`
	Command     string     `json:"command"`
	Status      string     `json:"status"`
	Detail      *string    `json:"detail,omitempty"`
	RequestedAt time.Time  `json:"requested_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Command status constants.
const (
	CommandStatusOK     = "ok"
	CommandStatusFailed = "failed"
)
