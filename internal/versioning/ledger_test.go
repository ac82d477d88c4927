package versioning

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pwd-registry/pwd-registry/internal/db/dbtest"
	"github.com/pwd-registry/pwd-registry/internal/db/models"
	"github.com/pwd-registry/pwd-registry/internal/db/repositories"
)

var testDefaults = AddressDefaults{City: "Pagsanjan", Province: "Laguna", Region: "Region 4A"}

func newLedger(t *testing.T) (*Ledger, sqlmock.Sqlmock) {
	t.Helper()
	database, mock := dbtest.New(t)
	return NewLedger(database, testDefaults), mock
}

func profileRec(version int) dbtest.Record {
	return dbtest.Record{
		Profile: dbtest.ProfileRow(dbtest.Profile{ID: "p-1", Number: dbtest.Str("ANI-DHH-26-0001"), CurrentVersion: version}),
	}
}

// ---------------------------------------------------------------------------
// TriggerSummary
// ---------------------------------------------------------------------------

func TestTriggerSummary(t *testing.T) {
	tests := []struct {
		name      string
		fields    []string
		relations []string
		want      string
	}{
		{"nothing", nil, nil, ""},
		{"non-trigger fields", []string{"remarks", "first_name"}, nil, ""},
		{"trigger order not input order", []string{"pwd_number", "remarks", "status"}, nil, "Updated: status, pwd_number"},
		{"relation only", nil, []string{"address"}, "Updated: address"},
		{"non-trigger relation", nil, []string{"contacts"}, ""},
		{"fields then relations", []string{"status"}, []string{"address", "disabilities"}, "Updated: status, disabilities, address"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, TriggerSummary(tt.fields, tt.relations))
		})
	}
}

// ---------------------------------------------------------------------------
// SnapshotInitial
// ---------------------------------------------------------------------------

func TestSnapshotInitial_WritesVersionOne(t *testing.T) {
	ledger, mock := newLedger(t)
	mock.ExpectBegin()
	dbtest.ExpectLoadRecord(mock, profileRec(1))
	mock.ExpectExec("INSERT INTO pwd_profile_versions").
		WithArgs(sqlmock.AnyArg(), "p-1", 1, sqlmock.AnyArg(), "admin-1", SummaryInitial, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("UPDATE pwd_profiles SET current_version").
		WithArgs("p-1", 1).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	tx, err := ledger.db.Beginx()
	require.NoError(t, err)
	snap, err := ledger.SnapshotInitial(context.Background(), tx, "p-1", dbtest.Str("admin-1"))
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	assert.Equal(t, 1, snap.VersionNumber)
	rec, err := snap.Record()
	require.NoError(t, err)
	assert.Equal(t, "Juan", rec.FirstName)
	assert.Equal(t, 1, rec.CurrentVersion)
	assert.NotNil(t, rec.Disabilities, "collections serialise as []")
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ---------------------------------------------------------------------------
// SnapshotIfTriggered / SnapshotForRelationChange
// ---------------------------------------------------------------------------

func TestSnapshotIfTriggered_NoTriggerNoWrite(t *testing.T) {
	ledger, mock := newLedger(t)

	snap, err := ledger.SnapshotIfTriggered(context.Background(), "p-1", []string{"remarks", "service_needs"}, nil)
	require.NoError(t, err)
	assert.Nil(t, snap)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSnapshotIfTriggered_WritesNextVersion(t *testing.T) {
	ledger, mock := newLedger(t)
	mock.ExpectBegin()
	dbtest.ExpectSnapshot(mock, "p-1", 3, "Updated: status, pwd_number", profileRec(3))
	mock.ExpectCommit()

	snap, err := ledger.SnapshotIfTriggered(context.Background(), "p-1", []string{"pwd_number", "remarks", "status"}, nil)
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, 4, snap.VersionNumber)
	assert.Nil(t, snap.ChangedBy)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSnapshotForRelationChange(t *testing.T) {
	ledger, mock := newLedger(t)

	snap, err := ledger.SnapshotForRelationChange(context.Background(), "p-1", "government_ids", nil)
	require.NoError(t, err)
	assert.Nil(t, snap)

	mock.ExpectBegin()
	dbtest.ExpectSnapshot(mock, "p-1", 1, "Updated: address", profileRec(1))
	mock.ExpectCommit()

	snap, err = ledger.SnapshotForRelationChange(context.Background(), "p-1", "address", dbtest.Str("staff-1"))
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, 2, snap.VersionNumber)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSnapshot_MissingProfileRollsBack(t *testing.T) {
	ledger, mock := newLedger(t)
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT current_version").
		WithArgs("gone").
		WillReturnRows(sqlmock.NewRows([]string{"current_version"}))
	mock.ExpectRollback()

	_, err := ledger.Snapshot(context.Background(), nil, "gone", "Status changed from ACTIVE to INACTIVE", nil)
	assert.ErrorIs(t, err, ErrProfileNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSnapshot_InsertFailureRollsBack(t *testing.T) {
	ledger, mock := newLedger(t)
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT current_version").
		WillReturnRows(sqlmock.NewRows([]string{"current_version"}).AddRow(2))
	dbtest.ExpectLoadRecord(mock, profileRec(2))
	mock.ExpectExec("INSERT INTO pwd_profile_versions").WillReturnError(errors.New("duplicate key"))
	mock.ExpectRollback()

	_, err := ledger.Snapshot(context.Background(), nil, "p-1", "PWD ID card marked as printed by admin", nil)
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ---------------------------------------------------------------------------
// Restore
// ---------------------------------------------------------------------------

var versionCols = []string{"id", "pwd_profile_id", "version_number", "data", "changed_by", "change_summary", "created_at", "changed_by_name"}

// An older snapshot: no region/province on the address, status INACTIVE.
const v2Data = `{
	"id": "p-1",
	"pwd_number": "ANI-DHH-26-0001",
	"first_name": "Juan",
	"last_name": "Dela Cruz",
	"status": "INACTIVE",
	"legacy_field": "ignored",
	"address": {"barangay_id": 1, "city": ""},
	"disabilities": [{"disability_type_id": 2, "is_primary": true}]
}`

func expectRestoreHead(mock sqlmock.Sqlmock, current int, versionRows *sqlmock.Rows) {
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT current_version FROM pwd_profiles WHERE id = $1 FOR UPDATE")).
		WithArgs("p-1").
		WillReturnRows(sqlmock.NewRows([]string{"current_version"}).AddRow(current))
	mock.ExpectQuery("FROM pwd_profile_versions v").
		WithArgs("p-1", 2).
		WillReturnRows(versionRows)
}

func TestRestore_WritesForwardVersion(t *testing.T) {
	ledger, mock := newLedger(t)
	expectRestoreHead(mock, 5, sqlmock.NewRows(versionCols).
		AddRow("v-2", "p-1", 2, []byte(v2Data), nil, "Updated: status", time.Now(), nil))
	dbtest.ExpectLoadRecord(mock, profileRec(5))
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("ANI-DHH-26-0001", "p-1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectExec("UPDATE pwd_profiles SET").
		WithArgs("p-1", "ANI-DHH-26-0001", "Juan", "Dela Cruz", nil, nil, nil, nil, nil, models.ProfileStatusInactive,
			nil, nil, nil, false, nil, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	for _, table := range repositories.SubRecordTables {
		mock.ExpectExec("DELETE FROM " + table).WillReturnResult(sqlmock.NewResult(0, 1))
	}
	mock.ExpectExec("INSERT INTO pwd_addresses").
		WithArgs(sqlmock.AnyArg(), "p-1", nil, 1, "Pagsanjan", "Laguna", "Region 4A").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO pwd_disabilities").
		WithArgs(sqlmock.AnyArg(), "p-1", 2, nil, nil, true).
		WillReturnResult(sqlmock.NewResult(1, 1))
	dbtest.ExpectLoadRecord(mock, dbtest.Record{
		Profile:      dbtest.ProfileRow(dbtest.Profile{ID: "p-1", Number: dbtest.Str("ANI-DHH-26-0001"), Status: "INACTIVE", CurrentVersion: 5}),
		Address:      dbtest.AddressRow("p-1", 1),
		Disabilities: dbtest.DisabilityRow("p-1", 2),
	})
	mock.ExpectExec("INSERT INTO pwd_profile_versions").
		WithArgs(sqlmock.AnyArg(), "p-1", 6, sqlmock.AnyArg(), "admin-1", "Restored to version 2", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("UPDATE pwd_profiles SET current_version").
		WithArgs("p-1", 6).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	res, err := ledger.Restore(context.Background(), "p-1", 2, dbtest.Str("admin-1"))
	require.NoError(t, err)
	assert.Equal(t, 6, res.Snapshot.VersionNumber)
	assert.Equal(t, 2, res.RestoredFrom)
	assert.Equal(t, models.ProfileStatusActive, res.Before.Status)
	assert.Equal(t, models.ProfileStatusInactive, res.After.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRestore_VersionNotFound(t *testing.T) {
	ledger, mock := newLedger(t)
	expectRestoreHead(mock, 5, sqlmock.NewRows(versionCols))
	mock.ExpectRollback()

	_, err := ledger.Restore(context.Background(), "p-1", 2, nil)
	assert.ErrorIs(t, err, ErrVersionNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRestore_NumberNowTaken(t *testing.T) {
	ledger, mock := newLedger(t)
	expectRestoreHead(mock, 5, sqlmock.NewRows(versionCols).
		AddRow("v-2", "p-1", 2, []byte(v2Data), nil, "Updated: status", time.Now(), nil))
	dbtest.ExpectLoadRecord(mock, profileRec(5))
	mock.ExpectQuery("SELECT EXISTS").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectRollback()

	_, err := ledger.Restore(context.Background(), "p-1", 2, nil)
	assert.ErrorIs(t, err, ErrRestoreNumberTaken)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplySnapshot_KeepsIdentityAndDefaults(t *testing.T) {
	ledger := &Ledger{defaults: testDefaults}
	created := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	live := &models.ProfileRecord{Profile: models.Profile{ID: "p-1", FirstName: "Juan", LastName: "Cruz", CurrentVersion: 7, CreatedAt: created}}
	snap := &models.ProfileRecord{
		Profile: models.Profile{ID: "other", PWDNumber: dbtest.Str(""), CurrentVersion: 2},
		Address: &models.Address{City: "Lumban"},
	}

	out := ledger.applySnapshot(live, snap)
	assert.Equal(t, "p-1", out.ID)
	assert.Equal(t, 7, out.CurrentVersion)
	assert.Equal(t, created, out.CreatedAt)
	assert.Equal(t, models.ProfileStatusActive, out.Status)
	assert.Equal(t, "Juan", out.FirstName)
	assert.Nil(t, out.PWDNumber)
	assert.Equal(t, "Lumban", out.Address.City)
	assert.Equal(t, "Laguna", out.Address.Province)
}

// ---------------------------------------------------------------------------
// keyedMutex
// ---------------------------------------------------------------------------

func TestKeyedMutex_SerialisesPerKey(t *testing.T) {
	km := newKeyedMutex()
	var wg sync.WaitGroup
	counter := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := km.Lock(context.Background(), "p-1")
			if err != nil {
				t.Error(err)
				return
			}
			counter++
			unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, counter)
	assert.Equal(t, 0, km.size())
}

func TestKeyedMutex_WaitEndsWithContext(t *testing.T) {
	km := newKeyedMutex()
	unlock, err := km.Lock(context.Background(), "p-1")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = km.Lock(ctx, "p-1")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	other, err := km.Lock(context.Background(), "p-2")
	require.NoError(t, err, "other keys stay free")
	other()

	unlock()
	assert.Equal(t, 0, km.size())
}

// ---------------------------------------------------------------------------
// Lock ordering
// ---------------------------------------------------------------------------

// A writer that already holds the profile row inside its own transaction must
// not wait on the in-process lock, which a Restore may hold while it waits for
// that same row.
func TestSnapshotChanges_CallerTxDoesNotWaitOnProfileLock(t *testing.T) {
	ledger, mock := newLedger(t)
	unlock, err := ledger.locks.Lock(context.Background(), "p-1")
	require.NoError(t, err)
	defer unlock()

	mock.ExpectBegin()
	dbtest.ExpectSnapshot(mock, "p-1", 2, "Updated: status", profileRec(2))
	mock.ExpectCommit()

	tx, err := ledger.db.Beginx()
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	type outcome struct {
		snap *models.VersionSnapshot
		err  error
	}
	done := make(chan outcome, 1)
	go func() {
		snap, err := ledger.SnapshotChanges(ctx, tx, "p-1", []string{"status"}, nil, dbtest.Str("staff-1"))
		done <- outcome{snap, err}
	}()

	select {
	case out := <-done:
		require.NoError(t, out.err)
		require.NotNil(t, out.snap)
		assert.Equal(t, 3, out.snap.VersionNumber)
	case <-time.After(3 * time.Second):
		t.Fatal("SnapshotChanges blocked on the in-process profile lock")
	}
	require.NoError(t, tx.Commit())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSnapshot_CallerTxDoesNotWaitOnProfileLock(t *testing.T) {
	ledger, mock := newLedger(t)
	unlock, err := ledger.locks.Lock(context.Background(), "p-1")
	require.NoError(t, err)
	defer unlock()

	mock.ExpectBegin()
	dbtest.ExpectSnapshot(mock, "p-1", 4, "Status changed to INACTIVE", profileRec(4))
	mock.ExpectCommit()

	tx, err := ledger.db.Beginx()
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := ledger.Snapshot(context.Background(), tx, "p-1", "Status changed to INACTIVE", nil)
		done <- err
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("Snapshot blocked on the in-process profile lock")
	}
	require.NoError(t, tx.Commit())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRestore_GivesUpWhenContextEnds(t *testing.T) {
	ledger, mock := newLedger(t)
	unlock, err := ledger.locks.Lock(context.Background(), "p-1")
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = ledger.Restore(ctx, "p-1", 2, nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NoError(t, mock.ExpectationsWereMet(), "no transaction opens while the lock is held elsewhere")
}

func TestSnapshotIfTriggered_GivesUpWhenContextEnds(t *testing.T) {
	ledger, mock := newLedger(t)
	unlock, err := ledger.locks.Lock(context.Background(), "p-1")
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = ledger.SnapshotIfTriggered(ctx, "p-1", []string{"status"}, nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NoError(t, mock.ExpectationsWereMet())
}
