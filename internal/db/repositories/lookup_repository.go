// lookup_repository.go implements LookupRepository for the barangay and disability type reference tables.
package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/pwd-registry/pwd-registry/internal/db/models"
)

// LookupRepository handles barangays and disability_types
type LookupRepository struct {
	db DBTX
}

// NewLookupRepository creates a new LookupRepository
func NewLookupRepository(db *sqlx.DB) *LookupRepository {
	return &LookupRepository{db: db}
}

// WithTx returns a copy of the repository bound to tx
func (r *LookupRepository) WithTx(tx *sqlx.Tx) *LookupRepository {
	return &LookupRepository{db: tx}
}

// GetBarangay returns a barangay by ID, or nil
func (r *LookupRepository) GetBarangay(ctx context.Context, id int) (*models.Barangay, error) {
	var b models.Barangay
	err := r.db.GetContext(ctx, &b, `SELECT id, name, code FROM barangays WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get barangay: %w", err)
	}
	return &b, nil
}

// GetDisabilityType returns a disability type by ID, or nil
func (r *LookupRepository) GetDisabilityType(ctx context.Context, id int) (*models.DisabilityType, error) {
	var d models.DisabilityType
	err := r.db.GetContext(ctx, &d, `SELECT id, name, code FROM disability_types WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get disability type: %w", err)
	}
	return &d, nil
}

// ListBarangays returns every barangay ordered by name
func (r *LookupRepository) ListBarangays(ctx context.Context) ([]models.Barangay, error) {
	out := make([]models.Barangay, 0)
	if err := r.db.SelectContext(ctx, &out, `SELECT id, name, code FROM barangays ORDER BY name`); err != nil {
		return nil, fmt.Errorf("failed to list barangays: %w", err)
	}
	return out, nil
}

// ListDisabilityTypes returns every disability type ordered by name
func (r *LookupRepository) ListDisabilityTypes(ctx context.Context) ([]models.DisabilityType, error) {
	out := make([]models.DisabilityType, 0)
	if err := r.db.SelectContext(ctx, &out, `SELECT id, name, code FROM disability_types ORDER BY name`); err != nil {
		return nil, fmt.Errorf("failed to list disability types: %w", err)
	}
	return out, nil
}
