// Package models - backup.go defines Backup, an activity-log archive export written to storage.
package models

import (
	"strconv"
	"time"
)

// Backup is a row of backups
type Backup struct {
	ID           string    `db:"id" json:"id"`
	ArchiveMonth string    `db:"archive_month" json:"archive_month"`
	Backend      string    `db:"backend" json:"backend"`
	StoragePath  string    `db:"storage_path" json:"storage_path"`
	SizeBytes    int64     `db:"size_bytes" json:"size_bytes"`
	Checksum     string    `db:"checksum" json:"checksum"`
	EntryCount   int       `db:"entry_count" json:"entry_count"`
	CreatedBy    *string   `db:"created_by" json:"created_by,omitempty"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// AuditType implements audit.Auditable
func (b *Backup) AuditType() string { return "Backup" }

// AuditKey implements audit.Auditable
func (b *Backup) AuditKey() string { return b.ID }

// AuditLabel implements audit.Auditable
func (b *Backup) AuditLabel() string { return b.StoragePath }

// AuditFields implements audit.Auditable
func (b *Backup) AuditFields() map[string]any {
	return map[string]any{
		"archive_month": b.ArchiveMonth,
		"backend":       b.Backend,
		"storage_path":  b.StoragePath,
		"size_bytes":    strconv.FormatInt(b.SizeBytes, 10),
		"checksum":      b.Checksum,
		"entry_count":   b.EntryCount,
	}
}
