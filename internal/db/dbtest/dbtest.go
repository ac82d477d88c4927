// Package dbtest provides go-sqlmock fixtures shared by service-level tests: a mocked
// *sqlx.DB and canned expectation sequences for loading a full profile record and
// writing a version snapshot.
package dbtest

import (
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
)

// New returns a mocked *sqlx.DB closed at the end of the test.
func New(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return sqlx.NewDb(db, "sqlmock"), mock
}

// ProfileColumns is the column set returned by ProfileRow.
var ProfileColumns = []string{
	"id", "pwd_number", "first_name", "last_name", "status", "current_version",
	"card_printed", "expiry_date", "created_at", "updated_at",
}

// Profile describes a pwd_profiles row for ProfileRow.
type Profile struct {
	ID             string
	Number         *string
	FirstName      string
	LastName       string
	Status         string
	CurrentVersion int
	CardPrinted    bool
	ExpiryDate     *time.Time
}

// ProfileRow renders p as a single-row result.
func ProfileRow(p Profile) *sqlmock.Rows {
	if p.FirstName == "" {
		p.FirstName, p.LastName = "Juan", "Dela Cruz"
	}
	if p.Status == "" {
		p.Status = "ACTIVE"
	}
	if p.CurrentVersion == 0 {
		p.CurrentVersion = 1
	}
	now := time.Now()
	var number, expiry interface{}
	if p.Number != nil {
		number = *p.Number
	}
	if p.ExpiryDate != nil {
		expiry = *p.ExpiryDate
	}
	return sqlmock.NewRows(ProfileColumns).
		AddRow(p.ID, number, p.FirstName, p.LastName, p.Status, p.CurrentVersion, p.CardPrinted, expiry, now, now)
}

// Record holds optional sub-record rows for ExpectLoadRecord. Nil fields load as empty.
type Record struct {
	Profile      *sqlmock.Rows
	Address      *sqlmock.Rows
	Disabilities *sqlmock.Rows
	Contact      *sqlmock.Rows
}

// AddressRow is a pwd_addresses row in the given barangay.
func AddressRow(profileID string, barangayID int) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "pwd_profile_id", "barangay_id", "city", "province", "region"}).
		AddRow("addr-"+profileID, profileID, barangayID, "Pagsanjan", "Laguna", "Region 4A")
}

// DisabilityRow is a single primary pwd_disabilities row.
func DisabilityRow(profileID string, typeID int) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "pwd_profile_id", "disability_type_id", "is_primary"}).
		AddRow("dis-"+profileID, profileID, typeID, true)
}

func empty() *sqlmock.Rows { return sqlmock.NewRows([]string{"id"}) }

func orEmpty(r *sqlmock.Rows) *sqlmock.Rows {
	if r == nil {
		return empty()
	}
	return r
}

// ExpectLoadRecord expects the eleven queries ProfileRepository.LoadRecord runs.
func ExpectLoadRecord(mock sqlmock.Sqlmock, r Record) {
	mock.ExpectQuery("FROM pwd_profiles WHERE id").WillReturnRows(r.Profile)
	mock.ExpectQuery("FROM pwd_personal_info").WillReturnRows(empty())
	mock.ExpectQuery("FROM pwd_addresses").WillReturnRows(orEmpty(r.Address))
	mock.ExpectQuery("FROM pwd_contacts").WillReturnRows(orEmpty(r.Contact))
	mock.ExpectQuery("FROM pwd_disabilities").WillReturnRows(orEmpty(r.Disabilities))
	mock.ExpectQuery("FROM pwd_employment").WillReturnRows(empty())
	mock.ExpectQuery("FROM pwd_education").WillReturnRows(empty())
	mock.ExpectQuery("FROM pwd_family").WillReturnRows(empty())
	mock.ExpectQuery("FROM pwd_government_ids").WillReturnRows(empty())
	mock.ExpectQuery("FROM pwd_household_info").WillReturnRows(empty())
	mock.ExpectQuery("FROM pwd_organizations").WillReturnRows(empty())
}

// ExpectSnapshot expects a ledger snapshot of profileID taken at currentVersion:
// the row lock, the record load, the insert of currentVersion+1 with summary,
// and the counter write.
func ExpectSnapshot(mock sqlmock.Sqlmock, profileID string, currentVersion int, summary string, r Record) {
	mock.ExpectQuery(regexp.QuoteMeta("SELECT current_version FROM pwd_profiles WHERE id = $1 FOR UPDATE")).
		WithArgs(profileID).
		WillReturnRows(sqlmock.NewRows([]string{"current_version"}).AddRow(currentVersion))
	ExpectLoadRecord(mock, r)
	mock.ExpectExec("INSERT INTO pwd_profile_versions").
		WithArgs(sqlmock.AnyArg(), profileID, currentVersion+1, sqlmock.AnyArg(), sqlmock.AnyArg(), summary, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("UPDATE pwd_profiles SET current_version").
		WithArgs(profileID, currentVersion+1).
		WillReturnResult(sqlmock.NewResult(0, 1))
}

// ExpectAuditWrite expects one activity_logs insert.
func ExpectAuditWrite(mock sqlmock.Sqlmock) {
	mock.ExpectExec("INSERT INTO activity_logs").WillReturnResult(sqlmock.NewResult(1, 1))
}

// ExpectNotification expects one notifications insert for userID with the given title.
func ExpectNotification(mock sqlmock.Sqlmock, userID, notifType, title string) {
	mock.ExpectExec("INSERT INTO notifications").
		WithArgs(sqlmock.AnyArg(), userID, notifType, title, sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
}

// Str returns a pointer to s.
func Str(s string) *string { return &s }
