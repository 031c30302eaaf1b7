package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rental-access-control/backend/internal/storage/models"
)

// PropertyRepository provides access to the minimal property slice this
// service keeps for device scoping and ownership checks.
type PropertyRepository struct {
	BaseRepository
}

// NewPropertyRepository creates a new property repository.
func NewPropertyRepository(db *DB) *PropertyRepository {
	return &PropertyRepository{
		BaseRepository: NewBaseRepository(db),
	}
}

// Create inserts a property record.
func (r *PropertyRepository) Create(ctx context.Context, p *models.Property) error {
	if p.ID == "" {
		p.ID = GenerateID()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = r.Now()
	}

	_, err := r.DB().ExecContext(ctx, `
		INSERT INTO properties (id, owner_user_id, name, created_at)
		VALUES (?, ?, ?, ?)
	`, p.ID, p.OwnerUserID, p.Name, p.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting property: %w", err)
	}

	return nil
}

// GetByID retrieves a property by its ID.
func (r *PropertyRepository) GetByID(ctx context.Context, id string) (*models.Property, error) {
	p := &models.Property{}

	err := r.DB().QueryRowContext(ctx, `
		SELECT id, owner_user_id, name, created_at FROM properties WHERE id = ?
	`, id).Scan(&p.ID, &p.OwnerUserID, &p.Name, &p.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying property: %w", err)
	}

	return p, nil
}

// IsOwner reports whether the given user owns the property.
func (r *PropertyRepository) IsOwner(ctx context.Context, propertyID, userID string) (bool, error) {
	var one int
	err := r.DB().QueryRowContext(ctx,
		`SELECT 1 FROM properties WHERE id = ? AND owner_user_id = ?`,
		propertyID, userID).Scan(&one)

	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking property ownership: %w", err)
	}

	return true, nil
}
