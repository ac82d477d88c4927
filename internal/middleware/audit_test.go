package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/pwd-registry/pwd-registry/internal/audit"
	"github.com/pwd-registry/pwd-registry/internal/db/models"
)

func TestClientInfoMiddleware_ThenAuthAddsUser(t *testing.T) {
	users := &stubUsers{user: &models.User{ID: "staff-1", Role: models.RoleStaff, Status: models.UserStatusActive}}

	var got audit.ClientInfo
	r := gin.New()
	r.Use(ClientInfoMiddleware(), AuthMiddleware(users))
	r.GET("/", func(c *gin.Context) {
		got = audit.ClientInfoFrom(c.Request.Context())
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.10:4000"
	req.Header.Set("User-Agent", "masterlist-ui/2.1")
	req.Header.Set("Authorization", "Bearer "+testToken(t, "staff-1", "STAFF"))
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	want := audit.ClientInfo{UserID: "staff-1", IPAddress: "192.0.2.10", UserAgent: "masterlist-ui/2.1"}
	if got != want {
		t.Errorf("ClientInfo = %+v, want %+v", got, want)
	}
}

func TestClientInfoMiddleware_Anonymous(t *testing.T) {
	var got audit.ClientInfo
	r := gin.New()
	r.Use(ClientInfoMiddleware())
	r.GET("/", func(c *gin.Context) { got = audit.ClientInfoFrom(c.Request.Context()) })

	req, _ := http.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "198.51.100.7:80"
	r.ServeHTTP(httptest.NewRecorder(), req)

	if got.UserID != "" || got.IPAddress != "198.51.100.7" {
		t.Errorf("ClientInfo = %+v", got)
	}
}
