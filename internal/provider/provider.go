// Package provider defines the vendor integration capability set and the
// built-in vendor implementations.
package provider

import (
	"context"
	"time"
)

// DeviceState is the authoritative state a vendor reports for a device.
// ReportedAt orders states against each other; the dispatcher discards any
// state not newer than what it has already persisted.
type DeviceState struct {
	IsLocked     bool
	Online       bool
	BatteryLevel *int
	ReportedAt   time.Time
}

// CodeSpec describes an access code to issue on a device.
type CodeSpec struct {
	Code       string
	Type       string
	ValidFrom  *time.Time
	ValidUntil *time.Time
}

// IssuedCode is the vendor's handle for a code it accepted.
type IssuedCode struct {
	ExternalCodeID string
}

// Provider is the capability set every lock vendor integration implements.
// All methods take the vendor's device identifier, not this service's ID.
type Provider interface {
	Lock(ctx context.Context, deviceID string) (DeviceState, error)
	Unlock(ctx context.Context, deviceID string) (DeviceState, error)
	IssueCode(ctx context.Context, deviceID string, spec CodeSpec) (IssuedCode, error)
	RevokeCode(ctx context.Context, deviceID, externalCodeID string) error
	FetchStatus(ctx context.Context, deviceID string) (DeviceState, error)
}

// ThermostatController is an optional capability for vendors whose devices
// include thermostats.
type ThermostatController interface {
	SetTemperature(ctx context.Context, deviceID string, celsius float64) error
}

// LightController is an optional capability for vendors whose devices
// include lights.
type LightController interface {
	SetLight(ctx context.Context, deviceID string, on bool, brightness int) error
}

// CameraStreamer is an optional capability for vendors whose devices include
// cameras. StreamURL returns a short-lived tokenized stream URL.
type CameraStreamer interface {
	StreamURL(ctx context.Context, deviceID string) (string, error)
}
