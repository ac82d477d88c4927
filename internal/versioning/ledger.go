// Package versioning maintains the append-only, gapless version history of PWD profiles.
// Every snapshot is the full profile record with all sub-records, serialised as one JSON
// document, so any version can be viewed or restored on its own.
package versioning

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/pwd-registry/pwd-registry/internal/db"
	"github.com/pwd-registry/pwd-registry/internal/db/models"
	"github.com/pwd-registry/pwd-registry/internal/db/repositories"
	"github.com/pwd-registry/pwd-registry/internal/telemetry"
)

var (
	// ErrProfileNotFound is returned when the profile does not exist or is deleted
	ErrProfileNotFound = errors.New("profile not found")
	// ErrVersionNotFound is returned when the requested version does not exist
	ErrVersionNotFound = errors.New("version not found")
	// ErrRestoreNumberTaken is returned when the restored PWD number now belongs to another profile
	ErrRestoreNumberTaken = errors.New("the PWD number in this version is now assigned to another profile")
)

// Summary texts
const (
	SummaryInitial = "Initial registration"
	summaryUpdated = "Updated: "
)

// TriggerFields are the profile columns whose change creates a snapshot, in summary order.
var TriggerFields = []string{"status", "pwd_number"}

// TriggerRelations are the sub-records whose change creates a snapshot, in summary order.
var TriggerRelations = []string{"disabilities", "address"}

// AddressDefaults fill address columns missing from an older snapshot on restore.
type AddressDefaults struct {
	City     string
	Province string
	Region   string
}

// Ledger writes and restores profile snapshots
type Ledger struct {
	db       *sqlx.DB
	profiles *repositories.ProfileRepository
	versions *repositories.VersionRepository
	defaults AddressDefaults
	locks    *keyedMutex
}

// NewLedger creates a Ledger
func NewLedger(database *sqlx.DB, defaults AddressDefaults) *Ledger {
	return &Ledger{
		db:       database,
		profiles: repositories.NewProfileRepository(database),
		versions: repositories.NewVersionRepository(database),
		defaults: defaults,
		locks:    newKeyedMutex(),
	}
}

// SnapshotInitial writes version 1 inside the transaction that created the profile.
func (l *Ledger) SnapshotInitial(ctx context.Context, tx *sqlx.Tx, profileID string, actor *string) (*models.VersionSnapshot, error) {
	rec, err := l.profiles.WithTx(tx).LoadRecord(ctx, profileID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, ErrProfileNotFound
	}

	snap, err := l.insert(ctx, tx, rec, 1, SummaryInitial, actor)
	if err != nil {
		return nil, err
	}
	telemetry.VersionSnapshotsTotal.WithLabelValues("initial").Inc()
	return snap, nil
}

// Snapshot appends the next version of profileID with a caller-supplied summary.
// With a nil tx it runs in its own transaction.
func (l *Ledger) Snapshot(ctx context.Context, tx *sqlx.Tx, profileID, summary string, actor *string) (*models.VersionSnapshot, error) {
	snap, err := l.snapshot(ctx, tx, profileID, summary, actor)
	if err == nil {
		telemetry.VersionSnapshotsTotal.WithLabelValues("manual").Inc()
	}
	return snap, err
}

// SnapshotIfTriggered appends a version when changedFields includes a trigger
// field. It returns nil, nil when nothing qualifies.
func (l *Ledger) SnapshotIfTriggered(ctx context.Context, profileID string, changedFields []string, actor *string) (*models.VersionSnapshot, error) {
	summary := TriggerSummary(changedFields, nil)
	if summary == "" {
		return nil, nil
	}
	snap, err := l.snapshot(ctx, nil, profileID, summary, actor)
	if err == nil {
		telemetry.VersionSnapshotsTotal.WithLabelValues("field").Inc()
	}
	return snap, err
}

// SnapshotForRelationChange appends a version when relation is a trigger relation.
func (l *Ledger) SnapshotForRelationChange(ctx context.Context, profileID, relation string, actor *string) (*models.VersionSnapshot, error) {
	summary := TriggerSummary(nil, []string{relation})
	if summary == "" {
		return nil, nil
	}
	snap, err := l.snapshot(ctx, nil, profileID, summary, actor)
	if err == nil {
		telemetry.VersionSnapshotsTotal.WithLabelValues("relation").Inc()
	}
	return snap, err
}

// SnapshotChanges appends one version covering every trigger field and relation
// touched by a single edit, inside tx. It returns nil, nil when nothing qualifies.
func (l *Ledger) SnapshotChanges(ctx context.Context, tx *sqlx.Tx, profileID string, changedFields, changedRelations []string, actor *string) (*models.VersionSnapshot, error) {
	summary := TriggerSummary(changedFields, changedRelations)
	if summary == "" {
		return nil, nil
	}
	snap, err := l.snapshot(ctx, tx, profileID, summary, actor)
	if err == nil {
		trigger := "field"
		if len(intersect(changedFields, TriggerFields)) == 0 {
			trigger = "relation"
		}
		telemetry.VersionSnapshotsTotal.WithLabelValues(trigger).Inc()
	}
	return snap, err
}

// TriggerSummary returns "Updated: <names>" listing the trigger fields and then
// the trigger relations present in the input, or "" when there are none.
func TriggerSummary(changedFields, changedRelations []string) string {
	names := append(intersect(changedFields, TriggerFields), intersect(changedRelations, TriggerRelations)...)
	if len(names) == 0 {
		return ""
	}
	return summaryUpdated + strings.Join(names, ", ")
}

// intersect returns the members of order present in set, in order's order.
func intersect(set, order []string) []string {
	present := make(map[string]bool, len(set))
	for _, s := range set {
		present[s] = true
	}
	out := make([]string, 0, len(order))
	for _, s := range order {
		if present[s] {
			out = append(out, s)
		}
	}
	return out
}

// snapshot appends the next version. Inside a caller's tx the profile row lock
// taken by appendNext is the only guard: that tx may already hold the row, and
// waiting on the in-process lock while holding it could deadlock against a
// Restore. A standalone snapshot takes the in-process lock before its tx opens,
// so every path acquires in-process lock, then row lock.
func (l *Ledger) snapshot(ctx context.Context, tx *sqlx.Tx, profileID, summary string, actor *string) (*models.VersionSnapshot, error) {
	if tx != nil {
		return l.appendNext(ctx, tx, profileID, summary, actor)
	}

	unlock, err := l.locks.Lock(ctx, profileID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var snap *models.VersionSnapshot
	err = db.WithTx(ctx, l.db, func(tx *sqlx.Tx) error {
		var err error
		snap, err = l.appendNext(ctx, tx, profileID, summary, actor)
		return err
	})
	return snap, err
}

// appendNext locks the profile row, serialises the record and writes the next version.
func (l *Ledger) appendNext(ctx context.Context, tx *sqlx.Tx, profileID, summary string, actor *string) (*models.VersionSnapshot, error) {
	profiles := l.profiles.WithTx(tx)

	current, err := profiles.LockVersion(ctx, profileID)
	if err == sql.ErrNoRows {
		return nil, ErrProfileNotFound
	}
	if err != nil {
		return nil, err
	}

	rec, err := profiles.LoadRecord(ctx, profileID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, ErrProfileNotFound
	}

	return l.insert(ctx, tx, rec, current+1, summary, actor)
}

func (l *Ledger) insert(ctx context.Context, tx *sqlx.Tx, rec *models.ProfileRecord, version int, summary string, actor *string) (*models.VersionSnapshot, error) {
	rec.CurrentVersion = version
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("failed to encode profile snapshot: %w", err)
	}

	snap := &models.VersionSnapshot{
		ProfileID:     rec.ID,
		VersionNumber: version,
		Data:          data,
		ChangedBy:     actor,
		ChangeSummary: summary,
	}
	if err := l.versions.WithTx(tx).Insert(ctx, snap); err != nil {
		return nil, err
	}
	if err := l.profiles.WithTx(tx).SetCurrentVersion(ctx, rec.ID, version); err != nil {
		return nil, err
	}

	slog.Debug("profile version written", "profile_id", rec.ID, "version", version, "summary", summary)
	return snap, nil
}
