// Package models contains the domain models for the application.
package models

import (
	"time"
)

// Device represents an IoT device registered to a property. Smart locks are
// the primary kind; thermostats, lights and cameras share the same registry
// but only support their own command set.
type Device struct {
	ID               string     `json:"id"`
	PropertyID       string     `json:"property_id"`
	Vendor           string     `json:"vendor"`
	Kind             DeviceKind `json:"kind"`
	ExternalDeviceID string     `json:"external_device_id"`
	Name             string     `json:"name"`
	IsLocked         bool       `json:"is_locked"`
	Status           string     `json:"status"`
	BatteryLevel     *int       `json:"battery_level,omitempty"`
	LastSyncAt       time.Time  `json:"last_sync_at"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
	DeletedAt        *time.Time `json:"deleted_at,omitempty"`
}

// DeviceKind identifies the device category.
type DeviceKind string

const (
	KindLock       DeviceKind = "lock"
	KindThermostat DeviceKind = "thermostat"
	KindLight      DeviceKind = "light"
	KindCamera     DeviceKind = "camera"
)

// Device status constants. A device is online when its vendor last reported
// it reachable, offline otherwise.
const (
	DeviceStatusOnline  = "online"
	DeviceStatusOffline = "offline"
)

// Vendor key constants for the built-in providers.
const (
	VendorMock    = "mock"
	VendorWebhook = "webhook"
	VendorMQTT    = "mqtt"
)

// IsDeleted returns true if the device has been removed from its property.
func (d *Device) IsDeleted() bool {
	return d.DeletedAt != nil
}

// DeviceSummary is a minimal device representation for list views.
type DeviceSummary struct {
	ID       string     `json:"id"`
	Name     string     `json:"name"`
	Kind     DeviceKind `json:"kind"`
	Status   string     `json:"status"`
	IsLocked bool       `json:"is_locked"`
}
