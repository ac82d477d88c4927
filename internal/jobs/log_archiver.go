// log_archiver.go implements LogArchiver, which keeps activity_logs small by moving
// closed months into activity_log_archives, optionally exporting each archived month
// as JSON lines to the configured storage backend, and purging archives past the
// retention period. It backs both the monthly background job and the
// `logs-archive` / `logs-purge` CLI subcommands.
package jobs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/pwd-registry/pwd-registry/internal/audit"
	"github.com/pwd-registry/pwd-registry/internal/config"
	"github.com/pwd-registry/pwd-registry/internal/db"
	"github.com/pwd-registry/pwd-registry/internal/db/models"
	"github.com/pwd-registry/pwd-registry/internal/db/repositories"
	"github.com/pwd-registry/pwd-registry/internal/storage"
	"github.com/pwd-registry/pwd-registry/internal/telemetry"
	"github.com/pwd-registry/pwd-registry/pkg/checksum"
)

const (
	monthLayout           = "2006-01"
	defaultRetentionYears = 7
)

var (
	// ErrInvalidMonth is returned for a month that is not YYYY-MM
	ErrInvalidMonth = errors.New("month must be formatted YYYY-MM")
	// ErrMonthNotClosed is returned when asked to archive the current or a future month
	ErrMonthNotClosed = errors.New("only past months can be archived")
	// ErrInvalidRetention is returned for a retention period under one year
	ErrInvalidRetention = errors.New("retention must be at least 1 year")
	// ErrExportChecksum is returned when the stored export does not match what was written
	ErrExportChecksum = errors.New("archive export checksum mismatch")
)

// ArchiveOptions selects what Archive does
type ArchiveOptions struct {
	// Month is YYYY-MM; empty means the previous month
	Month string
	// DryRun counts the entries that would move without changing anything
	DryRun bool
}

// ArchiveReport is the outcome of an archive run
type ArchiveReport struct {
	Month   string         `json:"month"`
	Entries int64          `json:"entries"`
	DryRun  bool           `json:"dry_run"`
	Backup  *models.Backup `json:"backup,omitempty"`
}

// PurgeReport is the outcome of a purge run
type PurgeReport struct {
	Cutoff         time.Time `json:"cutoff"`
	EntriesPurged  int64     `json:"entries_purged"`
	BackupsDeleted int       `json:"backups_deleted"`
}

// LogArchiver archives, exports and purges activity log entries
type LogArchiver struct {
	db       *sqlx.DB
	logs     *repositories.ActivityLogRepository
	backups  *repositories.BackupRepository
	trail    *audit.Trail
	store    storage.Storage
	backend  string
	cfg      config.AuditConfig
	interval time.Duration
	now      func() time.Time
	stopChan chan struct{}
}

// NewLogArchiver creates a LogArchiver. store may be nil, in which case
// archived months are never exported.
func NewLogArchiver(database *sqlx.DB, trail *audit.Trail, store storage.Storage, backend string, cfg *config.AuditConfig) *LogArchiver {
	hours := cfg.ArchiveCheckIntervalHours
	if hours <= 0 {
		hours = 24
	}
	return &LogArchiver{
		db:       database,
		logs:     repositories.NewActivityLogRepository(database),
		backups:  repositories.NewBackupRepository(database),
		trail:    trail,
		store:    store,
		backend:  backend,
		cfg:      *cfg,
		interval: time.Duration(hours) * time.Hour,
		now:      time.Now,
		stopChan: make(chan struct{}),
	}
}

// Start archives the previous month immediately and then on every interval.
// Re-running for an already archived month moves nothing.
func (a *LogArchiver) Start(ctx context.Context) {
	if !a.cfg.ArchiveEnabled {
		slog.Info("log archiver: disabled (audit.archive_enabled=false)")
		return
	}

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	slog.Info("log archiver started", "interval", a.interval, "export", a.exporting())

	a.runCheck(ctx)
	for {
		select {
		case <-ticker.C:
			a.runCheck(ctx)
		case <-a.stopChan:
			slog.Info("log archiver stopped")
			return
		case <-ctx.Done():
			slog.Info("log archiver context cancelled")
			return
		}
	}
}

// Stop signals the background loop to exit
func (a *LogArchiver) Stop() {
	close(a.stopChan)
}

func (a *LogArchiver) runCheck(ctx context.Context) {
	report, err := a.Archive(ctx, ArchiveOptions{})
	if err != nil {
		slog.Error("log archiver: archive failed", "error", err)
		return
	}
	if report.Entries > 0 {
		slog.Info("log archiver: month archived", "month", report.Month, "entries", report.Entries)
	}
}

func (a *LogArchiver) exporting() bool {
	return a.store != nil && a.cfg.ExportArchives
}

// monthRange parses YYYY-MM into its UTC [start, end) range.
func monthRange(month string) (time.Time, time.Time, error) {
	start, err := time.ParseInLocation(monthLayout, month, time.UTC)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: %q", ErrInvalidMonth, month)
	}
	return start, start.AddDate(0, 1, 0), nil
}

func (a *LogArchiver) currentMonth() time.Time {
	now := a.now().UTC()
	return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// Archive moves one closed month of live entries into the archive in a single
// transaction, then exports the month when exporting is configured. If the
// export fails the move stays committed and the error is returned with the
// report.
func (a *LogArchiver) Archive(ctx context.Context, opts ArchiveOptions) (*ArchiveReport, error) {
	started := a.now()
	month := opts.Month
	if month == "" {
		month = a.currentMonth().AddDate(0, -1, 0).Format(monthLayout)
	}
	from, to, err := monthRange(month)
	if err != nil {
		return nil, err
	}
	if !from.Before(a.currentMonth()) {
		return nil, fmt.Errorf("%w: %s", ErrMonthNotClosed, month)
	}

	report := &ArchiveReport{Month: month, DryRun: opts.DryRun}

	if opts.DryRun {
		n, err := a.logs.CountBetween(ctx, from, to)
		if err != nil {
			return nil, err
		}
		report.Entries = n
		return report, nil
	}

	err = db.WithTx(ctx, a.db, func(tx *sqlx.Tx) error {
		moved, err := a.logs.WithTx(tx).Archive(ctx, &from, &to)
		report.Entries = moved
		return err
	})
	if err != nil {
		return nil, err
	}
	telemetry.ActivityLogArchivedTotal.Add(float64(report.Entries))

	if report.Entries > 0 && a.exporting() {
		backup, err := a.export(ctx, month)
		if err != nil {
			return report, fmt.Errorf("archived %d entries but export failed: %w", report.Entries, err)
		}
		report.Backup = backup
	}

	telemetry.ArchiveRunDuration.Observe(a.now().Sub(started).Seconds())
	return report, nil
}

// ArchiveAll moves every live entry into the archive, each tagged with its own
// month. It is used to clear the live table.
func (a *LogArchiver) ArchiveAll(ctx context.Context) (int64, error) {
	var moved int64
	err := db.WithTx(ctx, a.db, func(tx *sqlx.Tx) error {
		n, err := a.logs.WithTx(tx).Archive(ctx, nil, nil)
		moved = n
		return err
	})
	if err != nil {
		return 0, err
	}
	telemetry.ActivityLogArchivedTotal.Add(float64(moved))
	return moved, nil
}

// exportLine is one JSON-lines record of an archive export
type exportLine struct {
	*audit.LogEntry
	OriginalID   string `json:"original_id"`
	ArchiveMonth string `json:"archive_month"`
}

// export writes every archived entry of month to storage and records the
// upload as a Backup.
func (a *LogArchiver) export(ctx context.Context, month string) (*models.Backup, error) {
	entries, err := a.logs.ArchivedForMonth(ctx, month)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, e := range entries {
		line := exportLine{
			LogEntry:     audit.NewLogEntry(&e.ActivityLog),
			OriginalID:   e.OriginalID,
			ArchiveMonth: e.ArchiveMonth,
		}
		if err := enc.Encode(line); err != nil {
			return nil, fmt.Errorf("failed to encode archive entry: %w", err)
		}
	}

	sum, err := checksum.CalculateSHA256(bytes.NewReader(buf.Bytes()))
	if err != nil {
		return nil, err
	}

	path := fmt.Sprintf("activity-logs/%s/%s-%s.jsonl", month[:4], month, a.now().UTC().Format("20060102T150405Z"))
	result, err := a.store.Upload(ctx, path, bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		return nil, err
	}
	if !checksum.Matches(sum, result.Checksum) {
		if delErr := a.store.Delete(ctx, result.Path); delErr != nil {
			slog.Warn("failed to remove corrupt archive export", "path", result.Path, "error", delErr)
		}
		return nil, fmt.Errorf("%w: %s", ErrExportChecksum, result.Path)
	}

	backup := &models.Backup{
		ArchiveMonth: month,
		Backend:      a.backend,
		StoragePath:  result.Path,
		SizeBytes:    result.Size,
		Checksum:     sum,
		EntryCount:   len(entries),
	}
	if uid := audit.ClientInfoFrom(ctx).UserID; uid != "" {
		backup.CreatedBy = &uid
	}
	if err := a.backups.Create(ctx, backup); err != nil {
		return nil, err
	}
	a.trail.RecordCreate(ctx, backup)
	return backup, nil
}

// Purge deletes archived entries older than years (0 means the configured
// retention, falling back to seven years) together with the exports of the
// purged months. The cutoff is the first day of the current month, years ago.
func (a *LogArchiver) Purge(ctx context.Context, years int) (*PurgeReport, error) {
	if years == 0 {
		years = a.cfg.RetentionYears
		if years == 0 {
			years = defaultRetentionYears
		}
	}
	if years < 1 {
		return nil, ErrInvalidRetention
	}

	cutoff := a.currentMonth().AddDate(-years, 0, 0)
	report := &PurgeReport{Cutoff: cutoff}

	n, err := a.logs.PurgeArchivedBefore(ctx, cutoff)
	if err != nil {
		return nil, err
	}
	report.EntriesPurged = n
	telemetry.ActivityLogPurgedTotal.Add(float64(n))

	backups, err := a.backups.ListBeforeMonth(ctx, cutoff.Format(monthLayout))
	if err != nil {
		return report, err
	}
	for _, b := range backups {
		if err := a.deleteExport(ctx, b); err != nil {
			slog.Warn("log archiver: keeping export record", "backup_id", b.ID, "path", b.StoragePath, "error", err)
			continue
		}
		report.BackupsDeleted++
	}
	return report, nil
}

// deleteExport removes an export object and its Backup record. Objects held by
// a backend other than the configured one are left alone.
func (a *LogArchiver) deleteExport(ctx context.Context, b *models.Backup) error {
	if a.store == nil || b.Backend != a.backend {
		return fmt.Errorf("export lives on backend %q, configured backend is %q", b.Backend, a.backend)
	}
	if err := a.store.Delete(ctx, b.StoragePath); err != nil {
		return err
	}
	if err := a.backups.Delete(ctx, b.ID); err != nil {
		return err
	}
	a.trail.RecordDelete(ctx, b, b.AuditFields(), true)
	return nil
}
