package activity

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/rental-access-control/backend/internal/storage"
	"github.com/rental-access-control/backend/internal/storage/models"
)

func newRecorder(t *testing.T) (*Recorder, string) {
	t.Helper()

	db, err := storage.NewMemoryDB()
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := storage.RunMigrations(db); err != nil {
		t.Fatalf("running migrations: %v", err)
	}

	ctx := context.Background()
	property := &models.Property{OwnerUserID: "owner-1", Name: "Loft"}
	if err := storage.NewPropertyRepository(db).Create(ctx, property); err != nil {
		t.Fatalf("creating property: %v", err)
	}
	device := &models.Device{
		PropertyID:       property.ID,
		Vendor:           models.VendorMock,
		ExternalDeviceID: "ext-1",
		Name:             "Front Door",
		LastSyncAt:       time.Now().UTC(),
	}
	if err := storage.NewDeviceRepository(db).Create(ctx, device); err != nil {
		t.Fatalf("creating device: %v", err)
	}

	return NewRecorder(storage.NewActivityRepository(db)), device.ID
}

func TestRecordRejectsUnknownAction(t *testing.T) {
	r, deviceID := newRecorder(t)

	if _, err := r.Record(context.Background(), deviceID, "selfdestruct", "boom", nil); err == nil {
		t.Error("expected unknown action to be rejected")
	}
}

func TestListPaginationAndFilter(t *testing.T) {
	r, deviceID := newRecorder(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := r.Record(ctx, deviceID, models.ActivityLock, fmt.Sprintf("lock %d", i), nil); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}
	for i := 0; i < 3; i++ {
		if _, err := r.Record(ctx, deviceID, models.ActivitySync, fmt.Sprintf("sync %d", i), nil); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	page, err := r.List(ctx, deviceID, "", 4, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if page.Total != 8 {
		t.Errorf("expected total 8, got %d", page.Total)
	}
	if len(page.Entries) != 4 {
		t.Errorf("expected 4 entries, got %d", len(page.Entries))
	}

	second, err := r.List(ctx, deviceID, "", 4, 4)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(second.Entries) != 4 {
		t.Errorf("expected 4 entries on second page, got %d", len(second.Entries))
	}
	if page.Entries[0].ID == second.Entries[0].ID {
		t.Error("pages must not overlap")
	}

	filtered, err := r.List(ctx, deviceID, models.ActivitySync, 50, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if filtered.Total != 3 {
		t.Errorf("expected 3 sync entries, got %d", filtered.Total)
	}
	for _, e := range filtered.Entries {
		if e.Action != models.ActivitySync {
			t.Errorf("filter leaked action %s", e.Action)
		}
	}
}

func TestListRejectsUnknownFilter(t *testing.T) {
	r, deviceID := newRecorder(t)

	if _, err := r.List(context.Background(), deviceID, "selfdestruct", 10, 0); err == nil {
		t.Error("expected unknown filter action to be rejected")
	}
}

func TestListDefaultsLimit(t *testing.T) {
	r, deviceID := newRecorder(t)

	page, err := r.List(context.Background(), deviceID, "", 0, -5)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if page.Limit != 50 || page.Offset != 0 {
		t.Errorf("expected defaulted limit 50 offset 0, got %d/%d", page.Limit, page.Offset)
	}
	if page.Entries == nil {
		t.Error("entries must be an empty slice, not nil")
	}
}
