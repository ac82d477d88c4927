package repositories

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pwd-registry/pwd-registry/internal/db/models"
)

func newCaseRepo(t *testing.T) (*CaseRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewCaseRepository(sqlx.NewDb(db, "sqlmock")), mock
}

var caseCols = []string{"id", "pwd_profile_id", "submission_type", "status", "user_id", "created_at", "updated_at"}

func sampleCaseRow(status string) *sqlmock.Rows {
	return sqlmock.NewRows(caseCols).
		AddRow("c-1", "p-1", "NEW", status, "u-7", time.Now(), time.Now())
}

// ---------------------------------------------------------------------------
// Create / GetByID
// ---------------------------------------------------------------------------

func TestCaseCreate_Defaults(t *testing.T) {
	repo, mock := newCaseRepo(t)
	mock.ExpectExec("INSERT INTO pending_registrations").
		WithArgs(sqlmock.AnyArg(), "p-1", models.SubmissionNew, models.CaseStatusPending, nil, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	c := &models.RegistrationCase{ProfileID: "p-1"}
	if err := repo.Create(context.Background(), c); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if c.ID == "" || c.Status != models.CaseStatusPending || c.SubmissionType != models.SubmissionNew {
		t.Errorf("Create() left case as %+v", c)
	}
}

func TestCaseGetByID_NotFound(t *testing.T) {
	repo, mock := newCaseRepo(t)
	mock.ExpectQuery("FROM pending_registrations WHERE id").WillReturnRows(sqlmock.NewRows(caseCols))

	c, err := repo.GetByID(context.Background(), "nope")
	if err != nil || c != nil {
		t.Errorf("GetByID() = %v, %v; want nil, nil", c, err)
	}
}

func TestCaseGetForUpdate_Locks(t *testing.T) {
	repo, mock := newCaseRepo(t)
	mock.ExpectQuery("FROM pending_registrations WHERE id = \\$1 AND deleted_at IS NULL FOR UPDATE").
		WithArgs("c-1").
		WillReturnRows(sampleCaseRow("PENDING"))

	c, err := repo.GetForUpdate(context.Background(), "c-1")
	if err != nil {
		t.Fatalf("GetForUpdate() error = %v", err)
	}
	if c == nil || c.Status != models.CaseStatusPending || c.UserID == nil || *c.UserID != "u-7" {
		t.Errorf("GetForUpdate() = %+v", c)
	}
}

// ---------------------------------------------------------------------------
// UpdateReview
// ---------------------------------------------------------------------------

func TestCaseUpdateReview(t *testing.T) {
	repo, mock := newCaseRepo(t)
	reviewer := "admin-1"
	now := time.Now()
	notes := "complete"
	mock.ExpectExec("UPDATE pending_registrations").
		WithArgs("c-1", models.CaseStatusApproved, &reviewer, &now, &notes, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	c := &models.RegistrationCase{ID: "c-1", Status: models.CaseStatusApproved, ReviewedBy: &reviewer, ReviewedAt: &now, ReviewNotes: &notes}
	if err := repo.UpdateReview(context.Background(), c); err != nil {
		t.Fatalf("UpdateReview() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

// ---------------------------------------------------------------------------
// LatestSubmitterCase
// ---------------------------------------------------------------------------

func TestLatestSubmitterCase(t *testing.T) {
	repo, mock := newCaseRepo(t)
	mock.ExpectQuery("user_id IS NOT NULL.*ORDER BY created_at DESC").
		WithArgs("p-1").
		WillReturnRows(sampleCaseRow("APPROVED"))

	c, err := repo.LatestSubmitterCase(context.Background(), "p-1")
	if err != nil {
		t.Fatalf("LatestSubmitterCase() error = %v", err)
	}
	if c == nil || *c.UserID != "u-7" {
		t.Errorf("LatestSubmitterCase() = %+v", c)
	}
}

func TestLatestSubmitterCase_None(t *testing.T) {
	repo, mock := newCaseRepo(t)
	mock.ExpectQuery("user_id IS NOT NULL").WillReturnRows(sqlmock.NewRows(caseCols))

	c, err := repo.LatestSubmitterCase(context.Background(), "p-1")
	if err != nil || c != nil {
		t.Errorf("LatestSubmitterCase() = %v, %v; want nil, nil", c, err)
	}
}

// ---------------------------------------------------------------------------
// List / Stats
// ---------------------------------------------------------------------------

func TestCaseList_StatusFilter(t *testing.T) {
	repo, mock := newCaseRepo(t)
	statuses := pq.Array([]string{"PENDING", "UNDER_REVIEW"})
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM pending_registrations c").
		WithArgs(statuses).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery("SELECT c.id, .*reviewer_name").
		WithArgs(statuses, 15, 0).
		WillReturnRows(sqlmock.NewRows(append(caseCols, "first_name", "last_name", "pwd_number", "reviewer_name")).
			AddRow("c-1", "p-1", "NEW", "PENDING", "u-7", time.Now(), time.Now(), "Juan", "Dela Cruz", nil, nil))

	items, total, err := repo.List(context.Background(), CaseFilters{
		Statuses: []models.CaseStatus{models.CaseStatusPending, models.CaseStatusUnderReview},
	}, 15, 0)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if total != 1 || len(items) != 1 || items[0].FirstName != "Juan" {
		t.Errorf("List() = %+v, total %d", items, total)
	}
}

func TestCaseStats(t *testing.T) {
	repo, mock := newCaseRepo(t)
	since := time.Date(2026, 10, 18, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery("COUNT\\(\\*\\) FILTER").
		WithArgs(since).
		WillReturnRows(sqlmock.NewRows([]string{"pending", "under_review", "approved_today", "rejected_today"}).
			AddRow(4, 2, 1, 0))

	s, err := repo.Stats(context.Background(), since)
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if s.Pending != 4 || s.UnderReview != 2 || s.ApprovedToday != 1 || s.RejectedToday != 0 {
		t.Errorf("Stats() = %+v", s)
	}
}
