package storage

import (
	"context"
	"fmt"

	"github.com/rental-access-control/backend/internal/storage/models"
)

// ActivityRepository provides append-only data access for the device audit
// log. There is no update or delete path.
type ActivityRepository struct {
	BaseRepository
}

// NewActivityRepository creates a new activity repository.
func NewActivityRepository(db *DB) *ActivityRepository {
	return &ActivityRepository{
		BaseRepository: NewBaseRepository(db),
	}
}

// Insert appends a new activity record.
func (r *ActivityRepository) Insert(ctx context.Context, a *models.DeviceActivity) error {
	if a.ID == "" {
		a.ID = GenerateID()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = r.Now()
	}

	_, err := r.DB().ExecContext(ctx, `
		INSERT INTO device_activity (id, device_id, action, description, actor, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, a.ID, a.DeviceID, a.Action, a.Description, a.Actor, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting activity: %w", err)
	}

	return nil
}

// ListByDevice retrieves activity for a device, newest first, optionally
// filtered by action kind. limit <= 0 defaults to 50.
func (r *ActivityRepository) ListByDevice(ctx context.Context, deviceID, action string, limit, offset int) ([]models.DeviceActivity, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	query := `
		SELECT id, device_id, action, description, actor, created_at
		FROM device_activity WHERE device_id = ?`
	args := []any{deviceID}

	if action != "" {
		query += ` AND action = ?`
		args = append(args, action)
	}

	query += ` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := r.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying activity: %w", err)
	}
	defer rows.Close()

	var entries []models.DeviceActivity
	for rows.Next() {
		var a models.DeviceActivity
		if err := rows.Scan(&a.ID, &a.DeviceID, &a.Action, &a.Description, &a.Actor, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning activity: %w", err)
		}
		entries = append(entries, a)
	}

	return entries, rows.Err()
}

// CountByDevice returns the total number of activity rows for a device,
// optionally filtered by action kind.
func (r *ActivityRepository) CountByDevice(ctx context.Context, deviceID, action string) (int, error) {
	query := `SELECT COUNT(*) FROM device_activity WHERE device_id = ?`
	args := []any{deviceID}

	if action != "" {
		query += ` AND action = ?`
		args = append(args, action)
	}

	var count int
	if err := r.DB().QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting activity: %w", err)
	}

	return count, nil
}
