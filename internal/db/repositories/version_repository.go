// version_repository.go implements VersionRepository, the append-only store of profile snapshots.
package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pwd-registry/pwd-registry/internal/db/models"
)

// VersionRepository handles pwd_profile_versions. Rows are inserted, never updated.
type VersionRepository struct {
	db DBTX
}

// NewVersionRepository creates a new VersionRepository
func NewVersionRepository(db *sqlx.DB) *VersionRepository {
	return &VersionRepository{db: db}
}

// WithTx returns a copy of the repository bound to tx
func (r *VersionRepository) WithTx(tx *sqlx.Tx) *VersionRepository {
	return &VersionRepository{db: tx}
}

// Insert appends a snapshot
func (r *VersionRepository) Insert(ctx context.Context, v *models.VersionSnapshot) error {
	if v.ID == "" {
		v.ID = uuid.New().String()
	}
	v.CreatedAt = time.Now()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO pwd_profile_versions (id, pwd_profile_id, version_number, data, changed_by, change_summary, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		v.ID, v.ProfileID, v.VersionNumber, v.Data, v.ChangedBy, v.ChangeSummary, v.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert profile version: %w", err)
	}
	return nil
}

// List returns a profile's snapshots newest first, without the data document
func (r *VersionRepository) List(ctx context.Context, profileID string) ([]*models.VersionSnapshot, error) {
	versions := make([]*models.VersionSnapshot, 0)
	err := r.db.SelectContext(ctx, &versions, `
		SELECT v.id, v.pwd_profile_id, v.version_number, v.changed_by, v.change_summary, v.created_at,
		       NULLIF(TRIM(COALESCE(u.first_name, '') || ' ' || COALESCE(u.last_name, '')), '') AS changed_by_name
		FROM pwd_profile_versions v
		LEFT JOIN users u ON u.id = v.changed_by
		WHERE v.pwd_profile_id = $1
		ORDER BY v.version_number DESC`, profileID)
	if err != nil {
		return nil, fmt.Errorf("failed to list profile versions: %w", err)
	}
	return versions, nil
}

// Get returns one snapshot with its data document, or nil
func (r *VersionRepository) Get(ctx context.Context, profileID string, versionNumber int) (*models.VersionSnapshot, error) {
	var v models.VersionSnapshot
	err := r.db.GetContext(ctx, &v, `
		SELECT v.id, v.pwd_profile_id, v.version_number, v.data, v.changed_by, v.change_summary, v.created_at,
		       NULLIF(TRIM(COALESCE(u.first_name, '') || ' ' || COALESCE(u.last_name, '')), '') AS changed_by_name
		FROM pwd_profile_versions v
		LEFT JOIN users u ON u.id = v.changed_by
		WHERE v.pwd_profile_id = $1 AND v.version_number = $2`, profileID, versionNumber)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get profile version: %w", err)
	}
	return &v, nil
}

// Count returns how many snapshots a profile has
func (r *VersionRepository) Count(ctx context.Context, profileID string) (int, error) {
	var n int
	if err := r.db.GetContext(ctx, &n,
		`SELECT COUNT(*) FROM pwd_profile_versions WHERE pwd_profile_id = $1`, profileID); err != nil {
		return 0, fmt.Errorf("failed to count profile versions: %w", err)
	}
	return n, nil
}
