package dispatcher

import (
	"context"
	"fmt"
	"time"

	"github.com/rental-access-control/backend/internal/provider"
	"github.com/rental-access-control/backend/internal/storage/models"
)

// Inbound reconciliation: vendors push state changes and code-usage events
// through the webhook endpoint, which lands here. The same staleness gate
// that guards command results guards pushed state, so an out-of-order
// webhook can never roll back a newer observation.

// HandleVendorStatus applies a vendor-pushed device state.
func (d *Dispatcher) HandleVendorStatus(ctx context.Context, vendor, externalDeviceID string, state provider.DeviceState) (*models.Device, error) {
	device, err := d.devices.GetByVendorExternalID(ctx, vendor, externalDeviceID)
	if err != nil {
		return nil, err
	}
	if device == nil {
		return nil, fmt.Errorf("%w: vendor %s device %s", ErrUnknownDevice, vendor, externalDeviceID)
	}

	mu := d.mutex("device:" + device.ID)
	mu.Lock()
	defer mu.Unlock()

	if state.ReportedAt.IsZero() {
		state.ReportedAt = time.Now().UTC()
	}

	applied, err := d.devices.ApplyState(ctx, device.ID,
		state.IsLocked, deviceStatus(state.Online), state.BatteryLevel, state.ReportedAt)
	if err != nil {
		return nil, err
	}

	if !applied {
		d.recordActivity(ctx, device, models.ActivitySync,
			fmt.Sprintf("vendor event at %s discarded as stale", state.ReportedAt.Format(time.RFC3339)), nil)
		return d.devices.GetByID(ctx, device.ID)
	}

	updated, err := d.devices.GetByID(ctx, device.ID)
	if err != nil {
		return nil, err
	}

	d.recordActivity(ctx, updated, models.ActivitySync, "state updated from vendor event", nil)

	if d.broadcaster != nil {
		d.broadcaster.LockStatusChanged(updated)
	}

	return updated, nil
}

// HandleCodeUsed processes a vendor's code-usage callback. One-time codes
// expire on first use; recurring codes only get an audit entry.
func (d *Dispatcher) HandleCodeUsed(ctx context.Context, vendor, externalDeviceID, externalCodeID string) error {
	device, err := d.devices.GetByVendorExternalID(ctx, vendor, externalDeviceID)
	if err != nil {
		return err
	}
	if device == nil {
		return fmt.Errorf("%w: vendor %s device %s", ErrUnknownDevice, vendor, externalDeviceID)
	}

	code, err := d.codes.GetActiveByExternalID(ctx, device.ID, externalCodeID)
	if err != nil {
		return err
	}
	if code == nil {
		// Usage report for a code we no longer consider active. Audit and move on.
		d.recordActivity(ctx, device, models.ActivitySync,
			fmt.Sprintf("usage reported for unknown or inactive code %s", externalCodeID), nil)
		return nil
	}

	if code.Type == models.CodeTypeOneTime {
		_, err := d.ExpireCode(ctx, device.ID, code.ID, "one-time code used")
		return err
	}

	d.recordActivity(ctx, device, models.ActivitySync, "recurring code used", nil)
	return nil
}
