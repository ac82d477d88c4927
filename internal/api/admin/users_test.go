package admin

import (
	"errors"
	"net/http"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/pwd-registry/pwd-registry/internal/audit"
	"github.com/pwd-registry/pwd-registry/internal/config"
	"github.com/pwd-registry/pwd-registry/internal/db/dbtest"
	"github.com/pwd-registry/pwd-registry/internal/db/models"
	"github.com/pwd-registry/pwd-registry/internal/db/repositories"
)

var userRowCols = []string{"id", "id_number", "first_name", "last_name", "middle_name", "password_hash",
	"role", "unit", "status", "created_at", "updated_at", "deleted_at"}

func accountRow(id, role string, deletedAt *time.Time) *sqlmock.Rows {
	var deleted any
	if deletedAt != nil {
		deleted = *deletedAt
	}
	return sqlmock.NewRows(userRowCols).
		AddRow(id, "STAFF-001", "Ana", "Cruz", nil, "$2a$04$hash", role, nil, "ACTIVE", time.Now(), time.Now(), deleted)
}

func newUserRouter(t *testing.T, u *models.User) (sqlmock.Sqlmock, *gin.Engine) {
	t.Helper()
	database, mock := dbtest.New(t)
	cfg := &config.Config{}
	cfg.Auth.BcryptCost = bcrypt.MinCost
	h := NewUserHandlers(cfg, database, audit.NewTrail(repositories.NewActivityLogRepository(database), nil))

	r := newTestRouter(u)
	r.GET("/users", h.ListUsersHandler())
	r.POST("/users", h.CreateUserHandler())
	r.GET("/users/:id", h.GetUserHandler())
	r.PUT("/users/:id", h.UpdateUserHandler())
	r.DELETE("/users/:id", h.DeleteUserHandler())
	r.POST("/users/:id/restore", h.RestoreUserHandler())
	return mock, r
}

// expectUserAudit expects the activity_logs insert for one account change.
func expectUserAudit(mock sqlmock.Sqlmock, action models.ActivityAction, userID any) {
	mock.ExpectExec("INSERT INTO activity_logs").
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), action, "User", userID,
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
}

// ---------------------------------------------------------------------------
// List / Get
// ---------------------------------------------------------------------------

func TestListUsers_Paginated(t *testing.T) {
	mock, r := newUserRouter(t, adminUser())
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM users WHERE 1=1 AND deleted_at IS NULL AND role = \\$1").
		WithArgs("STAFF").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery("FROM users WHERE .* ORDER BY created_at DESC").
		WithArgs("STAFF", 20, 0).
		WillReturnRows(accountRow("user-2", "STAFF", nil))

	w := doJSON(r, http.MethodGet, "/users?role=STAFF", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Len(t, body["users"], 1)
	assert.EqualValues(t, 1, body["pagination"].(map[string]any)["total"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListUsers_WithTrashed(t *testing.T) {
	mock, r := newUserRouter(t, adminUser())
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM users WHERE 1=1$").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery("FROM users WHERE 1=1 ORDER BY").
		WillReturnRows(sqlmock.NewRows(userRowCols))

	w := doJSON(r, http.MethodGet, "/users?with_trashed=true", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Empty(t, decode(t, w)["users"])
}

func TestGetUser_DeletedIsReported(t *testing.T) {
	mock, r := newUserRouter(t, adminUser())
	deleted := time.Now()
	mock.ExpectQuery("FROM users WHERE id = \\$1$").
		WithArgs("user-2").
		WillReturnRows(accountRow("user-2", "STAFF", &deleted))

	w := doJSON(r, http.MethodGet, "/users/user-2", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Equal(t, true, body["deleted"])
	assert.NotContains(t, body["user"], "password_hash")
}

func TestGetUser_NotFound(t *testing.T) {
	mock, r := newUserRouter(t, adminUser())
	mock.ExpectQuery("FROM users WHERE id").WillReturnRows(sqlmock.NewRows(userRowCols))

	w := doJSON(r, http.MethodGet, "/users/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

// ---------------------------------------------------------------------------
// Create
// ---------------------------------------------------------------------------

func TestCreateUser_RecordsCreate(t *testing.T) {
	mock, r := newUserRouter(t, adminUser())
	mock.ExpectQuery("SELECT EXISTS \\(SELECT 1 FROM users WHERE id_number").
		WithArgs("ENC-007", "").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectExec("INSERT INTO users").WillReturnResult(sqlmock.NewResult(1, 1))
	expectUserAudit(mock, models.ActionCreated, sqlmock.AnyArg())

	w := doJSON(r, http.MethodPost, "/users", map[string]any{
		"id_number":  " ENC-007 ",
		"first_name": "Lito",
		"last_name":  "Santos",
		"password":   "long-enough-secret",
		"role":       "ENCODER",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	u := decode(t, w)["user"].(map[string]any)
	assert.Equal(t, "ENC-007", u["id_number"])
	assert.Equal(t, "ACTIVE", u["status"])
	assert.NotContains(t, u, "password_hash")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateUser_Validation(t *testing.T) {
	tests := []struct {
		name string
		body map[string]any
		want string
	}{
		{"missing fields", map[string]any{"first_name": "Lito"}, "Invalid request"},
		{"unknown role", map[string]any{"id_number": "X-1", "first_name": "A", "last_name": "B", "password": "long-enough-secret", "role": "ROOT"}, "Invalid role"},
		{"unknown status", map[string]any{"id_number": "X-1", "first_name": "A", "last_name": "B", "password": "long-enough-secret", "role": "STAFF", "status": "BANNED"}, "Invalid status"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, r := newUserRouter(t, adminUser())
			w := doJSON(r, http.MethodPost, "/users", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Contains(t, decode(t, w)["error"], tt.want)
		})
	}
}

func TestCreateUser_ShortPassword(t *testing.T) {
	mock, r := newUserRouter(t, adminUser())
	mock.ExpectQuery("SELECT EXISTS").WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	w := doJSON(r, http.MethodPost, "/users", map[string]any{
		"id_number": "X-1", "first_name": "A", "last_name": "B", "password": "short", "role": "STAFF",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decode(t, w)["error"], "at least")
}

func TestCreateUser_DuplicateIDNumber(t *testing.T) {
	mock, r := newUserRouter(t, adminUser())
	mock.ExpectQuery("SELECT EXISTS").WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	w := doJSON(r, http.MethodPost, "/users", map[string]any{
		"id_number": "STAFF-001", "first_name": "A", "last_name": "B", "password": "long-enough-secret", "role": "STAFF",
	})
	assert.Equal(t, http.StatusConflict, w.Code)
}

// ---------------------------------------------------------------------------
// Update
// ---------------------------------------------------------------------------

func TestUpdateUser_RecordsChangedFields(t *testing.T) {
	mock, r := newUserRouter(t, adminUser())
	mock.ExpectQuery("FROM users WHERE id = \\$1 AND deleted_at IS NULL").
		WithArgs("user-2").
		WillReturnRows(accountRow("user-2", "STAFF", nil))
	mock.ExpectExec("UPDATE users\\s+SET id_number").
		WithArgs("user-2", "STAFF-001", "Ana", "Cruz", nil, models.RoleEncoder, nil, models.UserStatusInactive, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE users SET password_hash").
		WithArgs("user-2", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	expectUserAudit(mock, models.ActionUpdated, "user-2")

	w := doJSON(r, http.MethodPut, "/users/user-2", map[string]any{
		"role":     "ENCODER",
		"status":   "INACTIVE",
		"password": "a-new-long-password",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "ENCODER", decode(t, w)["user"].(map[string]any)["role"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateUser_NoChangeWritesNoAudit(t *testing.T) {
	mock, r := newUserRouter(t, adminUser())
	mock.ExpectQuery("FROM users WHERE id").WillReturnRows(accountRow("user-2", "STAFF", nil))
	mock.ExpectExec("UPDATE users\\s+SET id_number").WillReturnResult(sqlmock.NewResult(0, 1))

	w := doJSON(r, http.MethodPut, "/users/user-2", map[string]any{"first_name": "Ana"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateUser_IDNumberTaken(t *testing.T) {
	mock, r := newUserRouter(t, adminUser())
	mock.ExpectQuery("FROM users WHERE id").WillReturnRows(accountRow("user-2", "STAFF", nil))
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("STAFF-002", "user-2").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	w := doJSON(r, http.MethodPut, "/users/user-2", map[string]any{"id_number": "STAFF-002"})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestUpdateUser_InvalidRole(t *testing.T) {
	_, r := newUserRouter(t, adminUser())
	w := doJSON(r, http.MethodPut, "/users/user-2", map[string]any{"role": "ROOT"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUpdateUser_NotFound(t *testing.T) {
	mock, r := newUserRouter(t, adminUser())
	mock.ExpectQuery("FROM users WHERE id").WillReturnRows(sqlmock.NewRows(userRowCols))

	w := doJSON(r, http.MethodPut, "/users/missing", map[string]any{"first_name": "X"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

// ---------------------------------------------------------------------------
// Delete / Restore
// ---------------------------------------------------------------------------

func TestDeleteUser_SoftDeleteRecordsDelete(t *testing.T) {
	mock, r := newUserRouter(t, adminUser())
	mock.ExpectQuery("FROM users WHERE id = \\$1 AND deleted_at IS NULL").
		WithArgs("user-2").
		WillReturnRows(accountRow("user-2", "STAFF", nil))
	mock.ExpectExec("UPDATE users SET deleted_at = NOW\\(\\)").
		WithArgs("user-2").
		WillReturnResult(sqlmock.NewResult(0, 1))
	expectUserAudit(mock, models.ActionDeleted, "user-2")

	w := doJSON(r, http.MethodDelete, "/users/user-2", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "User deleted successfully", decode(t, w)["message"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteUser_ForceRecordsPermanentDelete(t *testing.T) {
	mock, r := newUserRouter(t, adminUser())
	deleted := time.Now()
	mock.ExpectQuery("FROM users WHERE id = \\$1$").
		WithArgs("user-2").
		WillReturnRows(accountRow("user-2", "STAFF", &deleted))
	mock.ExpectExec("DELETE FROM users WHERE id = \\$1").
		WithArgs("user-2").
		WillReturnResult(sqlmock.NewResult(0, 1))
	expectUserAudit(mock, models.ActionForceDeleted, "user-2")

	w := doJSON(r, http.MethodDelete, "/users/user-2?force=true", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "User permanently deleted", decode(t, w)["message"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteUser_CannotDeleteSelf(t *testing.T) {
	mock, r := newUserRouter(t, adminUser())

	w := doJSON(r, http.MethodDelete, "/users/admin-1", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteUser_DBError(t *testing.T) {
	mock, r := newUserRouter(t, adminUser())
	mock.ExpectQuery("FROM users WHERE id").WillReturnRows(accountRow("user-2", "STAFF", nil))
	mock.ExpectExec("UPDATE users SET deleted_at").WillReturnError(errors.New("connection reset"))

	w := doJSON(r, http.MethodDelete, "/users/user-2", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestRestoreUser_RecordsRestore(t *testing.T) {
	mock, r := newUserRouter(t, adminUser())
	deleted := time.Now()
	mock.ExpectQuery("FROM users WHERE id = \\$1$").
		WithArgs("user-2").
		WillReturnRows(accountRow("user-2", "STAFF", &deleted))
	mock.ExpectExec("UPDATE users SET deleted_at = NULL").
		WithArgs("user-2").
		WillReturnResult(sqlmock.NewResult(0, 1))
	expectUserAudit(mock, models.ActionRestored, "user-2")

	w := doJSON(r, http.MethodPost, "/users/user-2/restore", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "User restored successfully", decode(t, w)["message"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRestoreUser_NotDeleted(t *testing.T) {
	mock, r := newUserRouter(t, adminUser())
	mock.ExpectQuery("FROM users WHERE id").WillReturnRows(accountRow("user-2", "STAFF", nil))

	w := doJSON(r, http.MethodPost, "/users/user-2/restore", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRestoreUser_NotFound(t *testing.T) {
	mock, r := newUserRouter(t, adminUser())
	mock.ExpectQuery("FROM users WHERE id").WillReturnRows(sqlmock.NewRows(userRowCols))

	w := doJSON(r, http.MethodPost, "/users/missing/restore", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
