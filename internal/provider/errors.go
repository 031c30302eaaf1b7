package provider

import (
	"errors"
)

// Sentinel errors a Provider returns so the dispatcher can classify vendor
// failures without knowing vendor specifics. Implementations wrap these with
// detail via fmt.Errorf("%w: ...").
var (
	// ErrUnreachable means the vendor or the device could not be reached
	// (connection failure or timeout).
	ErrUnreachable = errors.New("device unreachable")

	// ErrCommandRejected means the vendor refused the command at the
	// application level (bad code format, unknown device, etc.).
	ErrCommandRejected = errors.New("command rejected by vendor")

	// ErrUnsupported means the vendor does not implement the requested
	// capability for this device.
	ErrUnsupported = errors.New("capability not supported")
)
