package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/pwd-registry/pwd-registry/internal/config"
	"github.com/pwd-registry/pwd-registry/internal/db/dbtest"
	"github.com/pwd-registry/pwd-registry/internal/middleware"
	"github.com/pwd-registry/pwd-registry/internal/storage"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// ---------------------------------------------------------------------------
// minimal storage.Storage mock for readiness tests
// ---------------------------------------------------------------------------

type readinessMockStorage struct{ existsErr error }

func (m *readinessMockStorage) Upload(_ context.Context, _ string, _ io.Reader, _ int64) (*storage.UploadResult, error) {
	return nil, nil
}
func (m *readinessMockStorage) Download(_ context.Context, _ string) (io.ReadCloser, error) {
	return nil, nil
}
func (m *readinessMockStorage) Delete(_ context.Context, _ string) error { return nil }
func (m *readinessMockStorage) Exists(_ context.Context, _ string) (bool, error) {
	return m.existsErr == nil, m.existsErr
}

// ---------------------------------------------------------------------------
// healthCheckHandler
// ---------------------------------------------------------------------------

func newHealthDB(t *testing.T, pingOK bool) *sql.DB {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if pingOK {
		mock.ExpectPing()
	} else {
		mock.ExpectPing().WillReturnError(sql.ErrConnDone)
	}
	return db
}

func TestHealthCheckHandler_Healthy(t *testing.T) {
	db := newHealthDB(t, true)

	r := gin.New()
	r.GET("/health", healthCheckHandler(db))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body["status"] != "healthy" {
		t.Errorf("status = %v, want healthy", body["status"])
	}
}

func TestHealthCheckHandler_Unhealthy(t *testing.T) {
	db := newHealthDB(t, false)

	r := gin.New()
	r.GET("/health", healthCheckHandler(db))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body["status"] != "unhealthy" {
		t.Errorf("status = %v, want unhealthy", body["status"])
	}
}

// ---------------------------------------------------------------------------
// readinessHandler
// ---------------------------------------------------------------------------

func TestReadinessHandler_Ready(t *testing.T) {
	db := newHealthDB(t, true)

	r := gin.New()
	r.GET("/ready", readinessHandler(db, &readinessMockStorage{}))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body["ready"] != true {
		t.Errorf("ready = %v, want true", body["ready"])
	}
}

func TestReadinessHandler_NotReady(t *testing.T) {
	db := newHealthDB(t, false)

	r := gin.New()
	r.GET("/ready", readinessHandler(db, &readinessMockStorage{}))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body["ready"] != false {
		t.Errorf("ready = %v, want false", body["ready"])
	}
}

// ---------------------------------------------------------------------------
// versionHandler
// ---------------------------------------------------------------------------

func TestVersionHandler(t *testing.T) {
	r := gin.New()
	r.GET("/version", versionHandler())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/version", nil))

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body["version"] == nil {
		t.Error("response missing 'version'")
	}
	if body["api_version"] == nil {
		t.Error("response missing 'api_version'")
	}
}

// ---------------------------------------------------------------------------
// LoggerMiddleware
// ---------------------------------------------------------------------------

func TestLoggerMiddleware_PassesThrough(t *testing.T) {
	r := gin.New()
	r.Use(middleware.RequestIDMiddleware(), LoggerMiddleware())
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusTeapot) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	if w.Code != http.StatusTeapot {
		t.Errorf("status = %d, want 418", w.Code)
	}
}

// ---------------------------------------------------------------------------
// rate limiters
// ---------------------------------------------------------------------------

func TestNewLimiters_Disabled(t *testing.T) {
	bg := &BackgroundServices{}
	authL, generalL, err := newLimiters(&config.Config{}, bg)
	if err != nil {
		t.Fatalf("newLimiters: %v", err)
	}
	if authL != nil || generalL != nil {
		t.Errorf("limiters = %v, %v; want nil when disabled", authL, generalL)
	}

	r := gin.New()
	r.GET("/", rateLimit(nil), func(c *gin.Context) { c.Status(http.StatusOK) })
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
}

func TestNewLimiters_InProcess(t *testing.T) {
	cfg := &config.Config{}
	cfg.Security.RateLimiting.Enabled = true
	cfg.Security.RateLimiting.RequestsPerMinute = 30

	bg := &BackgroundServices{}
	_, generalL, err := newLimiters(cfg, bg)
	if err != nil {
		t.Fatalf("newLimiters: %v", err)
	}
	defer func() {
		for _, rl := range bg.rateLimiters {
			rl.Stop()
		}
	}()
	if generalL.Limit() != 30 {
		t.Errorf("general limit = %d, want 30", generalL.Limit())
	}
	if len(bg.rateLimiters) != 2 {
		t.Errorf("tracked limiters = %d, want 2", len(bg.rateLimiters))
	}
}

func TestNewLimiters_InvalidRedisURL(t *testing.T) {
	cfg := &config.Config{}
	cfg.Security.RateLimiting.Enabled = true
	cfg.Security.RateLimiting.RedisURL = "not a url"

	if _, _, err := newLimiters(cfg, &BackgroundServices{}); err == nil {
		t.Error("expected error for invalid redis url")
	}
}

// ---------------------------------------------------------------------------
// NewRouter
// ---------------------------------------------------------------------------

func newTestServer(t *testing.T) (*gin.Engine, sqlmock.Sqlmock) {
	t.Helper()
	database, mock := dbtest.New(t)
	cfg := &config.Config{}

	svc, err := NewServices(cfg, database, &readinessMockStorage{})
	if err != nil {
		t.Fatalf("NewServices: %v", err)
	}
	router, bg, err := NewRouter(cfg, svc)
	if err != nil {
		t.Fatalf("NewRouter: %v", err)
	}
	t.Cleanup(bg.Shutdown)
	return router, mock
}

func TestNewRouter_ProtectedRoutesNeedToken(t *testing.T) {
	router, mock := newTestServer(t)

	for _, path := range []string{"/api/v1/pwd", "/api/v1/approvals", "/api/v1/notifications", "/api/v1/activity-logs", "/api/v1/users", "/api/v1/auth/me"} {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		if w.Code != http.StatusUnauthorized {
			t.Errorf("GET %s status = %d, want 401", path, w.Code)
		}
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestNewRouter_VersionAndRequestID(t *testing.T) {
	router, _ := newTestServer(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/version", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if w.Header().Get(middleware.RequestIDHeader) == "" {
		t.Error("missing request id header")
	}
}
