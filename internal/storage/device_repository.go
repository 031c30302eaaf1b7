package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rental-access-control/backend/internal/storage/models"
)

// DeviceRepository provides data access for registered IoT devices.
type DeviceRepository struct {
	BaseRepository
}

// NewDeviceRepository creates a new device repository.
func NewDeviceRepository(db *DB) *DeviceRepository {
	return &DeviceRepository{
		BaseRepository: NewBaseRepository(db),
	}
}

const deviceColumns = `id, property_id, vendor, kind, external_device_id, name,
	is_locked, status, battery_level, last_sync_at, created_at, updated_at, deleted_at`

func scanDevice(row interface{ Scan(...any) error }) (*models.Device, error) {
	d := &models.Device{}
	err := row.Scan(
		&d.ID, &d.PropertyID, &d.Vendor, &d.Kind, &d.ExternalDeviceID, &d.Name,
		&d.IsLocked, &d.Status, &d.BatteryLevel, &d.LastSyncAt,
		&d.CreatedAt, &d.UpdatedAt, &d.DeletedAt,
	)
	if err != nil {
		return nil, err
	}
	return d, nil
}

// Create inserts a new device.
func (r *DeviceRepository) Create(ctx context.Context, d *models.Device) error {
	if d.ID == "" {
		d.ID = GenerateID()
	}
	now := r.Now()
	d.CreatedAt = now
	d.UpdatedAt = now
	if d.LastSyncAt.IsZero() {
		d.LastSyncAt = now
	} else {
		d.LastSyncAt = d.LastSyncAt.UTC()
	}
	if d.Status == "" {
		d.Status = models.DeviceStatusOffline
	}
	if d.Kind == "" {
		d.Kind = models.KindLock
	}

	_, err := r.DB().ExecContext(ctx, `
		INSERT INTO devices (
			id, property_id, vendor, kind, external_device_id, name,
			is_locked, status, battery_level, last_sync_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		d.ID, d.PropertyID, d.Vendor, d.Kind, d.ExternalDeviceID, d.Name,
		d.IsLocked, d.Status, d.BatteryLevel, d.LastSyncAt, d.CreatedAt, d.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting device: %w", err)
	}

	return nil
}

// GetByID retrieves a device by its ID. Soft-deleted devices are not returned.
func (r *DeviceRepository) GetByID(ctx context.Context, id string) (*models.Device, error) {
	row := r.DB().QueryRowContext(ctx,
		`SELECT `+deviceColumns+` FROM devices WHERE id = ? AND deleted_at IS NULL`, id)

	d, err := scanDevice(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying device: %w", err)
	}

	return d, nil
}

// GetByVendorExternalID resolves a device from the vendor's identifier, as
// carried by inbound vendor webhooks.
func (r *DeviceRepository) GetByVendorExternalID(ctx context.Context, vendor, externalDeviceID string) (*models.Device, error) {
	row := r.DB().QueryRowContext(ctx,
		`SELECT `+deviceColumns+` FROM devices
		 WHERE vendor = ? AND external_device_id = ? AND deleted_at IS NULL`,
		vendor, externalDeviceID)

	d, err := scanDevice(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying device: %w", err)
	}

	return d, nil
}

// ListByProperty retrieves all devices registered to a property.
func (r *DeviceRepository) ListByProperty(ctx context.Context, propertyID string) ([]models.Device, error) {
	rows, err := r.DB().QueryContext(ctx,
		`SELECT `+deviceColumns+` FROM devices
		 WHERE property_id = ? AND deleted_at IS NULL ORDER BY name`, propertyID)
	if err != nil {
		return nil, fmt.Errorf("querying devices: %w", err)
	}
	defer rows.Close()

	var devices []models.Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning device: %w", err)
		}
		devices = append(devices, *d)
	}

	return devices, rows.Err()
}

// List retrieves all non-deleted devices across properties.
func (r *DeviceRepository) List(ctx context.Context) ([]models.Device, error) {
	rows, err := r.DB().QueryContext(ctx,
		`SELECT `+deviceColumns+` FROM devices WHERE deleted_at IS NULL ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("querying devices: %w", err)
	}
	defer rows.Close()

	var devices []models.Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning device: %w", err)
		}
		devices = append(devices, *d)
	}

	return devices, rows.Err()
}

// Update updates a device's mutable registration fields.
func (r *DeviceRepository) Update(ctx context.Context, d *models.Device) error {
	d.UpdatedAt = r.Now()

	result, err := r.DB().ExecContext(ctx, `
		UPDATE devices SET name = ?, updated_at = ?
		WHERE id = ? AND deleted_at IS NULL
	`, d.Name, d.UpdatedAt, d.ID)
	if err != nil {
		return fmt.Errorf("updating device: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return fmt.Errorf("device not found: %s", d.ID)
	}

	return nil
}

// SoftDelete marks a device as removed from its property. Activity and code
// history stay in place for audit.
func (r *DeviceRepository) SoftDelete(ctx context.Context, id string) error {
	now := r.Now()

	result, err := r.DB().ExecContext(ctx, `
		UPDATE devices SET deleted_at = ?, updated_at = ?
		WHERE id = ? AND deleted_at IS NULL
	`, now, now, id)
	if err != nil {
		return fmt.Errorf("deleting device: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return fmt.Errorf("device not found: %s", id)
	}

	return nil
}

// ApplyState persists an authoritative device state observed at syncAt.
// The write is conditional on syncAt being strictly newer than the stored
// last_sync_at, so a stale command result or webhook can never overwrite a
// newer state. Returns true if the state was applied.
func (r *DeviceRepository) ApplyState(ctx context.Context, id string, isLocked bool, status string, batteryLevel *int, syncAt time.Time) (bool, error) {
	// Timestamps are stored as strings and compared lexically, which is only
	// chronological when every value shares one UTC offset. Vendor-supplied
	// times can carry any zone, so normalize before the comparison.
	syncAt = syncAt.UTC()

	result, err := r.DB().ExecContext(ctx, `
		UPDATE devices SET
			is_locked = ?, status = ?, battery_level = ?, last_sync_at = ?, updated_at = ?
		WHERE id = ? AND deleted_at IS NULL AND last_sync_at < ?
	`, isLocked, status, batteryLevel, syncAt, r.Now(), id, syncAt)
	if err != nil {
		return false, fmt.Errorf("applying device state: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	return rowsAffected > 0, nil
}

// MarkOffline records that a device's vendor reported it unreachable at
// syncAt, keeping is_locked untouched. Subject to the same staleness gate
// as ApplyState.
func (r *DeviceRepository) MarkOffline(ctx context.Context, id string, syncAt time.Time) (bool, error) {
	syncAt = syncAt.UTC()

	result, err := r.DB().ExecContext(ctx, `
		UPDATE devices SET status = ?, last_sync_at = ?, updated_at = ?
		WHERE id = ? AND deleted_at IS NULL AND last_sync_at < ?
	`, models.DeviceStatusOffline, syncAt, r.Now(), id, syncAt)
	if err != nil {
		return false, fmt.Errorf("marking device offline: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	return rowsAffected > 0, nil
}
