package admin

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pwd-registry/pwd-registry/internal/db/dbtest"
)

var activityLogCols = []string{
	"id", "user_id", "action_type", "model_type", "model_id", "old_values", "new_values",
	"ip_address", "user_agent", "description", "created_at", "user_name",
}

type fakeClearer struct {
	n   int64
	err error
}

func (f *fakeClearer) ArchiveAll(context.Context) (int64, error) { return f.n, f.err }

func newActivityLogRouter(t *testing.T, clearer LogClearer) (sqlmock.Sqlmock, *gin.Engine) {
	t.Helper()
	database, mock := dbtest.New(t)
	h := NewActivityLogHandlers(database, clearer)

	r := newTestRouter(adminUser())
	r.GET("/activity-logs", h.ListHandler())
	r.GET("/activity-logs/archives", h.ArchiveMonthsHandler())
	r.POST("/activity-logs/clear", h.ClearHandler())
	r.GET("/activity-logs/:id", h.GetHandler())
	return mock, r
}

// ---------------------------------------------------------------------------
// ListHandler
// ---------------------------------------------------------------------------

func TestListActivityLogs_Live(t *testing.T) {
	mock, r := newActivityLogRouter(t, nil)

	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM activity_logs l").
		WithArgs("PwdProfile").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	at := time.Date(2026, 10, 17, 8, 0, 0, 0, time.UTC)
	mock.ExpectQuery("FROM activity_logs l").
		WithArgs("PwdProfile", 20, 0).
		WillReturnRows(sqlmock.NewRows(activityLogCols).
			AddRow("log-2", "staff-1", "updated", "PwdProfile", "p-1",
				[]byte(`{"status":"PENDING"}`), []byte(`{"status":"ACTIVE"}`),
				"10.0.0.4", "Mozilla/5.0", "PwdProfile updated", at, "Ana Cruz").
			AddRow("log-1", nil, "created", "PwdProfile", "p-1", nil, nil, nil, nil, "PwdProfile created", at, nil))

	w := doJSON(r, http.MethodGet, "/activity-logs?model_type=PwdProfile", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	logs := decode(t, w)["logs"].([]any)
	require.Len(t, logs, 2)
	first := logs[0].(map[string]any)
	assert.Equal(t, "Ana Cruz", first["user_name"])
	assert.Equal(t, "updated", first["action"])
	assert.Equal(t, "ACTIVE", first["new_values"].(map[string]any)["status"])
	assert.Equal(t, "System", logs[1].(map[string]any)["user_name"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListActivityLogs_EndDateCoversWholeDay(t *testing.T) {
	mock, r := newActivityLogRouter(t, nil)

	end := time.Date(2026, 10, 18, 23, 59, 59, 999999999, time.UTC)
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM activity_logs l").
		WithArgs(end).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery("FROM activity_logs l").
		WithArgs(end, 20, 0).
		WillReturnRows(sqlmock.NewRows(activityLogCols))

	w := doJSON(r, http.MethodGet, "/activity-logs?end_date=2026-10-18", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Empty(t, decode(t, w)["logs"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListActivityLogs_InvalidFilters(t *testing.T) {
	_, r := newActivityLogRouter(t, nil)

	for _, q := range []string{"month=2026-13", "month=September", "start_date=18/10/2026", "end_date=yesterday"} {
		w := doJSON(r, http.MethodGet, "/activity-logs?"+q, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code, q)
	}
}

// ---------------------------------------------------------------------------
// GetHandler / ArchiveMonthsHandler
// ---------------------------------------------------------------------------

func TestGetActivityLog_NotFound(t *testing.T) {
	mock, r := newActivityLogRouter(t, nil)
	mock.ExpectQuery("WHERE l.id = \\$1").
		WithArgs("log-404").
		WillReturnRows(sqlmock.NewRows(activityLogCols))

	w := doJSON(r, http.MethodGet, "/activity-logs/log-404", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestArchiveMonths(t *testing.T) {
	mock, r := newActivityLogRouter(t, nil)
	mock.ExpectQuery("FROM activity_log_archives").
		WillReturnRows(sqlmock.NewRows([]string{"archive_month", "entry_count"}).
			AddRow("2026-09", 812).
			AddRow("2026-08", 640))

	w := doJSON(r, http.MethodGet, "/activity-logs/archives", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	months := decode(t, w)["months"].([]any)
	require.Len(t, months, 2)
	assert.Equal(t, "2026-09", months[0].(map[string]any)["month"])
	assert.EqualValues(t, 812, months[0].(map[string]any)["count"])
}

// ---------------------------------------------------------------------------
// ClearHandler
// ---------------------------------------------------------------------------

func TestClearActivityLogs(t *testing.T) {
	_, r := newActivityLogRouter(t, &fakeClearer{n: 57})

	w := doJSON(r, http.MethodPost, "/activity-logs/clear", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 57, decode(t, w)["archived"])
}

func TestClearActivityLogs_Error(t *testing.T) {
	_, r := newActivityLogRouter(t, &fakeClearer{err: errors.New("archive table locked")})

	w := doJSON(r, http.MethodPost, "/activity-logs/clear", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
