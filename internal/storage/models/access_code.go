package models

import (
	"time"
)

// AccessCode represents a PIN or passcode issued on a lock through its vendor.
// Codes are never physically deleted; revoked and expired codes are retained
// for the audit trail.
type AccessCode struct {
	ID             string     `json:"id"`
	DeviceID       string     `json:"device_id"`
	Code           string     `json:"code"`
	Type           string     `json:"type"`
	Status         string     `json:"status"`
	ExternalCodeID string     `json:"external_code_id,omitempty"`
	ValidFrom      *time.Time `json:"valid_from,omitempty"`
	ValidUntil     *time.Time `json:"valid_until,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// Access code type constants.
const (
	CodeTypeOneTime   = "one_time"
	CodeTypeRecurring = "recurring"
)

// Access code status constants. Status is monotonic: a code leaves active for
// expired or revoked and never transitions out of either terminal state.
const (
	CodeStatusActive  = "active"
	CodeStatusExpired = "expired"
	CodeStatusRevoked = "revoked"
)

// IsTerminal returns true if the code is in a state that permits no further
// transitions.
func (c *AccessCode) IsTerminal() bool {
	return c.Status == CodeStatusExpired || c.Status == CodeStatusRevoked
}

// WindowElapsed returns true if the code's validity window has passed.
// Codes without a valid_until never expire by time.
func (c *AccessCode) WindowElapsed(now time.Time) bool {
	return c.ValidUntil != nil && now.After(*c.ValidUntil)
}
