package versioning

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/pwd-registry/pwd-registry/internal/db"
	"github.com/pwd-registry/pwd-registry/internal/db/models"
	"github.com/pwd-registry/pwd-registry/internal/telemetry"
)

// RestoreResult describes a completed restore
type RestoreResult struct {
	// Before is the record as it was prior to the restore
	Before *models.ProfileRecord
	// After is the record as written from the snapshot
	After *models.ProfileRecord
	// Snapshot is the forward version recording the restore
	Snapshot *models.VersionSnapshot
	// RestoredFrom is the version number that was restored
	RestoredFrom int
}

// RestoreSummary is the change summary of the forward snapshot a restore writes.
func RestoreSummary(version int) string {
	return fmt.Sprintf("Restored to version %d", version)
}

// Restore rewrites the profile and all of its sub-records from a stored version
// and appends a forward snapshot recording the restore, in one transaction.
// History is never rewound: restoring version 2 of a profile at version 5
// produces version 6.
func (l *Ledger) Restore(ctx context.Context, profileID string, versionNumber int, actor *string) (*RestoreResult, error) {
	unlock, err := l.locks.Lock(ctx, profileID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var result *RestoreResult
	err = db.WithTx(ctx, l.db, func(tx *sqlx.Tx) error {
		profiles := l.profiles.WithTx(tx)

		current, err := profiles.LockVersion(ctx, profileID)
		if err == sql.ErrNoRows {
			return ErrProfileNotFound
		}
		if err != nil {
			return err
		}

		target, err := l.versions.WithTx(tx).Get(ctx, profileID, versionNumber)
		if err != nil {
			return err
		}
		if target == nil {
			return ErrVersionNotFound
		}

		before, err := profiles.LoadRecord(ctx, profileID)
		if err != nil {
			return err
		}
		if before == nil {
			return ErrProfileNotFound
		}

		restored, err := target.Record()
		if err != nil {
			return fmt.Errorf("failed to decode version %d: %w", versionNumber, err)
		}
		after := l.applySnapshot(before, restored)

		if after.HasNumber() {
			taken, err := profiles.NumberTaken(ctx, *after.PWDNumber, profileID)
			if err != nil {
				return err
			}
			if taken {
				return ErrRestoreNumberTaken
			}
		}

		if err := profiles.Update(ctx, &after.Profile); err != nil {
			return err
		}
		if err := profiles.ReplaceSubRecords(ctx, after); err != nil {
			return err
		}

		fresh, err := profiles.LoadRecord(ctx, profileID)
		if err != nil {
			return err
		}
		snap, err := l.insert(ctx, tx, fresh, current+1, RestoreSummary(versionNumber), actor)
		if err != nil {
			return err
		}

		result = &RestoreResult{Before: before, After: fresh, Snapshot: snap, RestoredFrom: versionNumber}
		return nil
	})
	if err != nil {
		return nil, err
	}

	telemetry.VersionSnapshotsTotal.WithLabelValues("restore").Inc()
	return result, nil
}

// applySnapshot builds the record to write from a decoded snapshot. Identity and
// bookkeeping columns come from the live row; everything else comes from the
// snapshot, with missing values falling back to zero values or defaults.
func (l *Ledger) applySnapshot(live, snap *models.ProfileRecord) *models.ProfileRecord {
	out := *snap
	out.ID = live.ID
	out.CurrentVersion = live.CurrentVersion
	out.CreatedAt = live.CreatedAt
	out.DeletedAt = live.DeletedAt
	out.ExpiryReminderSentFor = live.ExpiryReminderSentFor

	if !out.Status.Valid() {
		out.Status = models.ProfileStatusActive
	}
	if out.FirstName == "" {
		out.FirstName = live.FirstName
	}
	if out.LastName == "" {
		out.LastName = live.LastName
	}
	if out.PWDNumber != nil && *out.PWDNumber == "" {
		out.PWDNumber = nil
	}

	if a := out.Address; a != nil {
		if a.City == "" {
			a.City = l.defaults.City
		}
		if a.Province == "" {
			a.Province = l.defaults.Province
		}
		if a.Region == "" {
			a.Region = l.defaults.Region
		}
	}
	return &out
}
