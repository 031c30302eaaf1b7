// Package dispatcher is the single entry point for all device commands. It
// resolves a device to its vendor provider, executes the command, persists
// the resulting state behind a staleness gate, and fans the change out to
// the audit log and the event channel.
package dispatcher

import (
	"errors"
)

// Command-level error taxonomy. Every error leaving the dispatcher wraps one
// of these sentinels; vendor-specific detail rides along in the message.
var (
	// ErrUnknownDevice means the referenced device ID does not resolve to a
	// registered device. Surfaced as a 404; never retried.
	ErrUnknownDevice = errors.New("unknown device")

	// ErrUnknownCode means the referenced access code does not exist on the
	// given device. Surfaced as a 404; never retried.
	ErrUnknownCode = errors.New("unknown access code")

	// ErrDeviceOffline means the vendor was unreachable or timed out. The
	// caller may retry with backoff; the dispatcher never retries on its own.
	ErrDeviceOffline = errors.New("device offline")

	// ErrVendorCommand means the vendor returned a command-level failure.
	// Not retried; vendor detail is included when available.
	ErrVendorCommand = errors.New("vendor command failed")

	// ErrInvalidState means an illegal access-code transition was attempted.
	ErrInvalidState = errors.New("invalid code state transition")

	// ErrValidation means the command input was malformed and was rejected
	// before any provider call.
	ErrValidation = errors.New("validation failed")

	// ErrConfiguration means a provider is missing or misconfigured for the
	// device's vendor. A startup-time condition, not a per-request one.
	ErrConfiguration = errors.New("provider configuration error")
)
