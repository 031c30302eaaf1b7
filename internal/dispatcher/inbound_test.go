package dispatcher

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rental-access-control/backend/internal/provider"
	"github.com/rental-access-control/backend/internal/storage/models"
)

func TestHandleVendorStatusAppliesNewerState(t *testing.T) {
	f := newFixture(t)
	device := f.seedLock(t)
	ctx := context.Background()

	battery := 42
	updated, err := f.disp.HandleVendorStatus(ctx, device.Vendor, device.ExternalDeviceID, provider.DeviceState{
		IsLocked:     true,
		Online:       true,
		BatteryLevel: &battery,
		ReportedAt:   time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("HandleVendorStatus: %v", err)
	}
	if !updated.IsLocked || updated.Status != models.DeviceStatusOnline {
		t.Errorf("expected locked online state, got locked=%t status=%s", updated.IsLocked, updated.Status)
	}
	if updated.BatteryLevel == nil || *updated.BatteryLevel != battery {
		t.Error("expected battery level applied")
	}
}

func TestHandleVendorStatusDiscardsStaleEvent(t *testing.T) {
	f := newFixture(t)
	device := f.seedLock(t)
	ctx := context.Background()

	// An event older than the stored state must not roll it back.
	snapshot, err := f.disp.HandleVendorStatus(ctx, device.Vendor, device.ExternalDeviceID, provider.DeviceState{
		IsLocked:   true,
		Online:     true,
		ReportedAt: device.LastSyncAt.Add(-time.Minute),
	})
	if err != nil {
		t.Fatalf("HandleVendorStatus: %v", err)
	}
	if snapshot.IsLocked {
		t.Error("stale vendor event must not be applied")
	}

	entries, err := f.activity.ListByDevice(ctx, device.ID, models.ActivitySync, 10, 0)
	if err != nil {
		t.Fatalf("listing activity: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected a stale-discard audit entry, got %d", len(entries))
	}
}

func TestHandleVendorStatusNonUTCTimestamps(t *testing.T) {
	f := newFixture(t)
	device := f.seedLock(t)
	ctx := context.Background()

	// Vendors report RFC 3339 timestamps in their local offset. A stale
	// event in UTC+5 and a fresh event in UTC-5 must be judged by the
	// instant, not the rendered string.
	east := time.FixedZone("UTC+5", 5*3600)
	snapshot, err := f.disp.HandleVendorStatus(ctx, device.Vendor, device.ExternalDeviceID, provider.DeviceState{
		IsLocked:   true,
		Online:     true,
		ReportedAt: device.LastSyncAt.Add(-time.Hour).In(east),
	})
	if err != nil {
		t.Fatalf("HandleVendorStatus: %v", err)
	}
	if snapshot.IsLocked {
		t.Error("hour-old event must be discarded regardless of its zone")
	}

	west := time.FixedZone("UTC-5", -5*3600)
	snapshot, err = f.disp.HandleVendorStatus(ctx, device.Vendor, device.ExternalDeviceID, provider.DeviceState{
		IsLocked:   true,
		Online:     true,
		ReportedAt: device.LastSyncAt.Add(time.Hour).In(west),
	})
	if err != nil {
		t.Fatalf("HandleVendorStatus: %v", err)
	}
	if !snapshot.IsLocked || snapshot.Status != models.DeviceStatusOnline {
		t.Errorf("hour-newer event must apply regardless of its zone, got locked=%t status=%s",
			snapshot.IsLocked, snapshot.Status)
	}
}

func TestHandleVendorStatusUnknownDevice(t *testing.T) {
	f := newFixture(t)

	_, err := f.disp.HandleVendorStatus(context.Background(), models.VendorMock, "ext-unknown", provider.DeviceState{
		ReportedAt: time.Now().UTC(),
	})
	if !errors.Is(err, ErrUnknownDevice) {
		t.Fatalf("expected ErrUnknownDevice, got %v", err)
	}
}

func TestHandleCodeUsedExpiresOneTimeCode(t *testing.T) {
	f := newFixture(t)
	device := f.seedLock(t)
	ctx := context.Background()

	code, err := f.disp.IssueCode(ctx, device.ID, CodeRequest{
		Code: "7029", Type: models.CodeTypeOneTime,
	}, nil)
	if err != nil {
		t.Fatalf("IssueCode: %v", err)
	}

	if err := f.disp.HandleCodeUsed(ctx, device.Vendor, device.ExternalDeviceID, code.ExternalCodeID); err != nil {
		t.Fatalf("HandleCodeUsed: %v", err)
	}

	stored, err := f.codes.GetByID(ctx, code.ID)
	if err != nil {
		t.Fatalf("loading code: %v", err)
	}
	if stored.Status != models.CodeStatusExpired {
		t.Errorf("one-time code must expire on use, got %s", stored.Status)
	}
}

func TestHandleCodeUsedRecurringStaysActive(t *testing.T) {
	f := newFixture(t)
	device := f.seedLock(t)
	ctx := context.Background()

	code, err := f.disp.IssueCode(ctx, device.ID, CodeRequest{
		Code: "8080", Type: models.CodeTypeRecurring,
	}, nil)
	if err != nil {
		t.Fatalf("IssueCode: %v", err)
	}

	if err := f.disp.HandleCodeUsed(ctx, device.Vendor, device.ExternalDeviceID, code.ExternalCodeID); err != nil {
		t.Fatalf("HandleCodeUsed: %v", err)
	}

	stored, err := f.codes.GetByID(ctx, code.ID)
	if err != nil {
		t.Fatalf("loading code: %v", err)
	}
	if stored.Status != models.CodeStatusActive {
		t.Errorf("recurring code must stay active, got %s", stored.Status)
	}
}

func TestHandleCodeUsedUnknownCode(t *testing.T) {
	f := newFixture(t)
	device := f.seedLock(t)
	ctx := context.Background()

	// Unknown codes are audited, not errors; vendors replay old events.
	if err := f.disp.HandleCodeUsed(ctx, device.Vendor, device.ExternalDeviceID, "ext-code-gone"); err != nil {
		t.Fatalf("HandleCodeUsed: %v", err)
	}

	entries, err := f.activity.ListByDevice(ctx, device.ID, models.ActivitySync, 10, 0)
	if err != nil {
		t.Fatalf("listing activity: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected an audit entry for the unknown code, got %d", len(entries))
	}
}
