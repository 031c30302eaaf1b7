package models

import (
	"time"
)

// DeviceActivity is an append-only audit record of a device-related action.
// Rows are created by the command dispatcher and the inbound webhook handler
// and are never mutated afterwards.
type DeviceActivity struct {
	ID          string    `json:"id"`
	DeviceID    string    `json:"device_id"`
	Action      string    `json:"action"`
	Description string    `json:"description"`
	Actor       *string   `json:"actor,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Activity action constants.
const (
	ActivityLock        = "lock"
	ActivityUnlock      = "unlock"
	ActivityCodeCreated = "code_created"
	ActivityCodeRevoked = "code_revoked"
	ActivityCodeExpired = "code_expired"
	ActivitySync        = "sync"
)

// ValidActivityAction reports whether the given action is a known kind.
func ValidActivityAction(action string) bool {
	switch action {
	case ActivityLock, ActivityUnlock, ActivityCodeCreated,
		ActivityCodeRevoked, ActivityCodeExpired, ActivitySync:
		return true
	}
	return false
}
