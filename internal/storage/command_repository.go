package storage

import (
	"context"
	"fmt"

	"github.com/rental-access-control/backend/internal/storage/models"
)

// CommandRepository provides data access for the per-device command history.
type CommandRepository struct {
	BaseRepository
}

// NewCommandRepository creates a new command repository.
func NewCommandRepository(db *DB) *CommandRepository {
	return &CommandRepository{
		BaseRepository: NewBaseRepository(db),
	}
}

// Insert records a completed command attempt.
func (r *CommandRepository) Insert(ctx context.Context, c *models.DeviceCommand) error {
	if c.ID == "" {
		c.ID = GenerateID()
	}
	if c.RequestedAt.IsZero() {
		c.RequestedAt = r.Now()
	}

	_, err := r.DB().ExecContext(ctx, `
		INSERT INTO device_commands (id, device_id, command, status, detail, requested_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, c.ID, c.DeviceID, c.Command, c.Status, c.Detail, c.RequestedAt, c.CompletedAt)
	if err != nil {
		return fmt.Errorf("inserting command record: %w", err)
	}

	return nil
}

// ListByDevice retrieves command history for a device, newest first.
// limit <= 0 defaults to 50.
func (r *CommandRepository) ListByDevice(ctx context.Context, deviceID string, limit, offset int) ([]models.DeviceCommand, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := r.DB().QueryContext(ctx, `
		SELECT id, device_id, command, status, detail, requested_at, completed_at
		FROM device_commands WHERE device_id = ?
		ORDER BY requested_at DESC, id DESC LIMIT ? OFFSET ?
	`, deviceID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("querying command history: %w", err)
	}
	defer rows.Close()

	var commands []models.DeviceCommand
	for rows.Next() {
		var c models.DeviceCommand
		if err := rows.Scan(&c.ID, &c.DeviceID, &c.Command, &c.Status, &c.Detail, &c.RequestedAt, &c.CompletedAt); err != nil {
			return nil, fmt.Errorf("scanning command record: %w", err)
		}
		commands = append(commands, c)
	}

	return commands, rows.Err()
}
