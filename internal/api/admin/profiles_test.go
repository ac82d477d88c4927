package admin

import (
	"errors"
	"net/http"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pwd-registry/pwd-registry/internal/audit"
	"github.com/pwd-registry/pwd-registry/internal/db/dbtest"
	"github.com/pwd-registry/pwd-registry/internal/db/models"
	"github.com/pwd-registry/pwd-registry/internal/db/repositories"
	"github.com/pwd-registry/pwd-registry/internal/identity"
	"github.com/pwd-registry/pwd-registry/internal/notify"
	"github.com/pwd-registry/pwd-registry/internal/profiles"
	"github.com/pwd-registry/pwd-registry/internal/versioning"
)

func newProfileService(t *testing.T) (*profiles.Service, sqlmock.Sqlmock) {
	t.Helper()
	database, mock := dbtest.New(t)
	svc := profiles.NewService(database,
		versioning.NewLedger(database, versioning.AddressDefaults{}),
		audit.NewTrail(repositories.NewActivityLogRepository(database), nil),
		identity.NewResolver(database),
		notify.NewNotifier(database),
		profiles.Options{},
	)
	return svc, mock
}

func newProfileRouter(t *testing.T, u *models.User) (sqlmock.Sqlmock, *gin.Engine) {
	t.Helper()
	svc, mock := newProfileService(t)
	h := NewProfileHandlers(svc)

	r := newTestRouter(u)
	r.GET("/pwd", h.ListHandler())
	r.POST("/pwd", h.CreateHandler())
	r.GET("/pwd/:id", h.GetHandler())
	r.PUT("/pwd/:id", h.UpdateHandler())
	r.PATCH("/pwd/:id/status", h.UpdateStatusHandler())
	r.DELETE("/pwd/:id", h.DeleteHandler())
	return mock, r
}

// ---------------------------------------------------------------------------
// List / Get
// ---------------------------------------------------------------------------

func TestListProfiles_InvalidStatus(t *testing.T) {
	_, r := newProfileRouter(t, staffUser())
	w := doJSON(r, http.MethodGet, "/pwd?status=RETIRED", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListProfiles_InvalidBarangay(t *testing.T) {
	_, r := newProfileRouter(t, staffUser())
	w := doJSON(r, http.MethodGet, "/pwd?barangay_id=north", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetProfile_NotFound(t *testing.T) {
	mock, r := newProfileRouter(t, staffUser())
	mock.ExpectQuery("FROM pwd_profiles WHERE id").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(dbtest.ProfileColumns))

	w := doJSON(r, http.MethodGet, "/pwd/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Profile not found", decode(t, w)["error"])
}

func TestGetProfile_Found(t *testing.T) {
	mock, r := newProfileRouter(t, staffUser())
	dbtest.ExpectLoadRecord(mock, dbtest.Record{
		Profile:      dbtest.ProfileRow(dbtest.Profile{ID: "p-1", Number: dbtest.Str("01-02-26-0001")}),
		Disabilities: dbtest.DisabilityRow("p-1", 2),
	})

	w := doJSON(r, http.MethodGet, "/pwd/p-1", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	p := decode(t, w)["profile"].(map[string]any)
	assert.Equal(t, "01-02-26-0001", p["pwd_number"])
	assert.Len(t, p["disabilities"], 1)
}

func TestGetProfile_DBError(t *testing.T) {
	mock, r := newProfileRouter(t, staffUser())
	mock.ExpectQuery("FROM pwd_profiles WHERE id").WillReturnError(errors.New("connection reset"))

	w := doJSON(r, http.MethodGet, "/pwd/p-1", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Failed to retrieve profile", decode(t, w)["error"])
}

// ---------------------------------------------------------------------------
// Create / Update validation
// ---------------------------------------------------------------------------

func TestCreateProfile_ValidationError(t *testing.T) {
	_, r := newProfileRouter(t, staffUser())
	w := doJSON(r, http.MethodPost, "/pwd", map[string]any{"first_name": "Juan"})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decode(t, w)["error"], "first and last name are required")
}

func TestCreateProfile_InvalidSubmissionType(t *testing.T) {
	_, r := newProfileRouter(t, staffUser())
	w := doJSON(r, http.MethodPost, "/pwd", map[string]any{
		"first_name":      "Juan",
		"last_name":       "Dela Cruz",
		"submission_type": "TRANSFER",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUpdateProfile_MalformedBody(t *testing.T) {
	_, r := newProfileRouter(t, staffUser())
	w := doJSON(r, http.MethodPut, "/pwd/p-1", "not an object")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// ---------------------------------------------------------------------------
// UpdateStatus
// ---------------------------------------------------------------------------

func TestUpdateStatus_Unchanged(t *testing.T) {
	mock, r := newProfileRouter(t, staffUser())
	mock.ExpectQuery("FROM pwd_profiles WHERE id").
		WithArgs("p-1").
		WillReturnRows(dbtest.ProfileRow(dbtest.Profile{ID: "p-1", Status: "ACTIVE"}))

	w := doJSON(r, http.MethodPatch, "/pwd/p-1/status", UpdateStatusRequest{Status: models.ProfileStatusActive})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "Status is already ACTIVE", decode(t, w)["message"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateStatus_Invalid(t *testing.T) {
	_, r := newProfileRouter(t, staffUser())
	w := doJSON(r, http.MethodPatch, "/pwd/p-1/status", UpdateStatusRequest{Status: "RETIRED"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUpdateStatus_MissingStatus(t *testing.T) {
	_, r := newProfileRouter(t, staffUser())
	w := doJSON(r, http.MethodPatch, "/pwd/p-1/status", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// ---------------------------------------------------------------------------
// Delete
// ---------------------------------------------------------------------------

func TestDeleteProfile_ForceRequiresAdmin(t *testing.T) {
	mock, r := newProfileRouter(t, staffUser())
	w := doJSON(r, http.MethodDelete, "/pwd/p-1?force=true", nil)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteProfile_SoftDelete(t *testing.T) {
	mock, r := newProfileRouter(t, staffUser())
	mock.ExpectQuery("FROM pwd_profiles WHERE id").
		WithArgs("p-1").
		WillReturnRows(dbtest.ProfileRow(dbtest.Profile{ID: "p-1"}))
	// no PWD number and no submitter: nobody to notify
	mock.ExpectQuery("FROM pending_registrations").WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectExec("UPDATE pwd_profiles SET deleted_at").
		WithArgs("p-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	dbtest.ExpectAuditWrite(mock)

	w := doJSON(r, http.MethodDelete, "/pwd/p-1", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "Profile deleted", decode(t, w)["message"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteProfile_NotFound(t *testing.T) {
	mock, r := newProfileRouter(t, adminUser())
	mock.ExpectQuery("FROM pwd_profiles WHERE id").WillReturnRows(sqlmock.NewRows(dbtest.ProfileColumns))

	w := doJSON(r, http.MethodDelete, "/pwd/gone?force=true", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
