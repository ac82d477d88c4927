// backup_repository.go implements BackupRepository, the index of archive exports in storage.
package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pwd-registry/pwd-registry/internal/db/models"
)

const backupColumns = `id, archive_month, backend, storage_path, size_bytes, checksum, entry_count, created_by, created_at`

// BackupRepository handles backups
type BackupRepository struct {
	db DBTX
}

// NewBackupRepository creates a new BackupRepository
func NewBackupRepository(db *sqlx.DB) *BackupRepository {
	return &BackupRepository{db: db}
}

// Create records an export
func (r *BackupRepository) Create(ctx context.Context, b *models.Backup) error {
	if b.ID == "" {
		b.ID = uuid.New().String()
	}
	b.CreatedAt = time.Now()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO backups (`+backupColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		b.ID, b.ArchiveMonth, b.Backend, b.StoragePath, b.SizeBytes, b.Checksum, b.EntryCount, b.CreatedBy, b.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create backup: %w", err)
	}
	return nil
}

// ListBeforeMonth returns exports of archive months strictly before month (YYYY-MM)
func (r *BackupRepository) ListBeforeMonth(ctx context.Context, month string) ([]*models.Backup, error) {
	backups := make([]*models.Backup, 0)
	err := r.db.SelectContext(ctx, &backups,
		`SELECT `+backupColumns+` FROM backups WHERE archive_month < $1 ORDER BY archive_month`, month)
	if err != nil {
		return nil, fmt.Errorf("failed to list backups: %w", err)
	}
	return backups, nil
}

// ListByMonth returns exports of one archive month
func (r *BackupRepository) ListByMonth(ctx context.Context, month string) ([]*models.Backup, error) {
	backups := make([]*models.Backup, 0)
	err := r.db.SelectContext(ctx, &backups,
		`SELECT `+backupColumns+` FROM backups WHERE archive_month = $1 ORDER BY created_at DESC`, month)
	if err != nil {
		return nil, fmt.Errorf("failed to list backups: %w", err)
	}
	return backups, nil
}

// Delete removes an export record
func (r *BackupRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM backups WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete backup: %w", err)
	}
	return nil
}
