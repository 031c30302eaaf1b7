package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/rental-access-control/backend/internal/storage/models"
)

// ErrDuplicateActiveCode reports an insert that collides with the unique
// index on (device_id, code) for active codes.
var ErrDuplicateActiveCode = errors.New("device already has an active code with this value")

// AccessCodeRepository provides data access for lock access codes.
type AccessCodeRepository struct {
	BaseRepository
}

// NewAccessCodeRepository creates a new access code repository.
func NewAccessCodeRepository(db *DB) *AccessCodeRepository {
	return &AccessCodeRepository{
		BaseRepository: NewBaseRepository(db),
	}
}

const codeColumns = `id, device_id, code, type, status, external_code_id,
	valid_from, valid_until, created_at, updated_at`

func scanCode(row interface{ Scan(...any) error }) (*models.AccessCode, error) {
	c := &models.AccessCode{}
	err := row.Scan(
		&c.ID, &c.DeviceID, &c.Code, &c.Type, &c.Status, &c.ExternalCodeID,
		&c.ValidFrom, &c.ValidUntil, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Create inserts a new access code in active status.
func (r *AccessCodeRepository) Create(ctx context.Context, c *models.AccessCode) error {
	if c.ID == "" {
		c.ID = GenerateID()
	}
	now := r.Now()
	c.CreatedAt = now
	c.UpdatedAt = now
	if c.Status == "" {
		c.Status = models.CodeStatusActive
	}

	_, err := r.DB().ExecContext(ctx, `
		INSERT INTO access_codes (
			id, device_id, code, type, status, external_code_id,
			valid_from, valid_until, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		c.ID, c.DeviceID, c.Code, c.Type, c.Status, c.ExternalCodeID,
		c.ValidFrom, c.ValidUntil, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return ErrDuplicateActiveCode
		}
		return fmt.Errorf("inserting access code: %w", err)
	}

	return nil
}

// GetByID retrieves an access code by its ID.
func (r *AccessCodeRepository) GetByID(ctx context.Context, id string) (*models.AccessCode, error) {
	row := r.DB().QueryRowContext(ctx,
		`SELECT `+codeColumns+` FROM access_codes WHERE id = ?`, id)

	c, err := scanCode(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying access code: %w", err)
	}

	return c, nil
}

// ListByDevice retrieves all codes for a device, newest first.
func (r *AccessCodeRepository) ListByDevice(ctx context.Context, deviceID string) ([]models.AccessCode, error) {
	rows, err := r.DB().QueryContext(ctx,
		`SELECT `+codeColumns+` FROM access_codes
		 WHERE device_id = ? ORDER BY created_at DESC`, deviceID)
	if err != nil {
		return nil, fmt.Errorf("querying access codes: %w", err)
	}
	defer rows.Close()

	var codes []models.AccessCode
	for rows.Next() {
		c, err := scanCode(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning access code: %w", err)
		}
		codes = append(codes, *c)
	}

	return codes, rows.Err()
}

// Transition moves a code from active into the given terminal status.
// The write is conditional on the code still being active, which serializes
// racing revoke/expire attempts at the row level. Returns true if the
// transition was applied, false if the code had already left active.
func (r *AccessCodeRepository) Transition(ctx context.Context, id, toStatus string) (bool, error) {
	if toStatus != models.CodeStatusExpired && toStatus != models.CodeStatusRevoked {
		return false, fmt.Errorf("invalid target status: %s", toStatus)
	}

	result, err := r.DB().ExecContext(ctx, `
		UPDATE access_codes SET status = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`, toStatus, r.Now(), id, models.CodeStatusActive)
	if err != nil {
		return false, fmt.Errorf("transitioning access code: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	return rowsAffected > 0, nil
}

// ListExpiredCandidates returns active codes whose validity window has
// elapsed as of the given time.
func (r *AccessCodeRepository) ListExpiredCandidates(ctx context.Context, now time.Time) ([]models.AccessCode, error) {
	rows, err := r.DB().QueryContext(ctx,
		`SELECT `+codeColumns+` FROM access_codes
		 WHERE status = ? AND valid_until IS NOT NULL AND valid_until < ?`,
		models.CodeStatusActive, now)
	if err != nil {
		return nil, fmt.Errorf("querying expired candidates: %w", err)
	}
	defer rows.Close()

	var codes []models.AccessCode
	for rows.Next() {
		c, err := scanCode(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning access code: %w", err)
		}
		codes = append(codes, *c)
	}

	return codes, rows.Err()
}

// GetActiveByExternalID looks up an active code on a device by the vendor's
// code identifier. Used to resolve usage callbacks from inbound webhooks.
func (r *AccessCodeRepository) GetActiveByExternalID(ctx context.Context, deviceID, externalCodeID string) (*models.AccessCode, error) {
	row := r.DB().QueryRowContext(ctx,
		`SELECT `+codeColumns+` FROM access_codes
		 WHERE device_id = ? AND external_code_id = ? AND status = ?`,
		deviceID, externalCodeID, models.CodeStatusActive)

	c, err := scanCode(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying access code: %w", err)
	}

	return c, nil
}
