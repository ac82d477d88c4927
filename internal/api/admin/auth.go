// auth.go implements HTTP handlers for ID-number login and for reading the signed-in account.
package admin

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/pwd-registry/pwd-registry/internal/auth"
	"github.com/pwd-registry/pwd-registry/internal/config"
	"github.com/pwd-registry/pwd-registry/internal/db/repositories"
	"github.com/pwd-registry/pwd-registry/internal/middleware"
)

// AuthHandlers handles authentication-related endpoints
type AuthHandlers struct {
	cfg      *config.Config
	userRepo *repositories.UserRepository
}

// NewAuthHandlers creates a new AuthHandlers instance
func NewAuthHandlers(cfg *config.Config, database *sqlx.DB) *AuthHandlers {
	return &AuthHandlers{
		cfg:      cfg,
		userRepo: repositories.NewUserRepository(database),
	}
}

// LoginRequest is the body of POST /api/v1/auth/login
type LoginRequest struct {
	IDNumber string `json:"id_number" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *AuthHandlers) tokenTTL() time.Duration {
	if h.cfg != nil && h.cfg.Auth.TokenTTL > 0 {
		return h.cfg.Auth.TokenTTL
	}
	return auth.DefaultTokenTTL
}

// @Summary      Log in
// @Description  Exchange an office-issued ID number and password for a session token.
// @Tags         Authentication
// @Accept       json
// @Produce      json
// @Param        body  body  LoginRequest  true  "Credentials"
// @Success      200  {object}  map[string]interface{}  "token, expires_at, user, scopes"
// @Failure      400  {object}  map[string]interface{}  "Missing ID number or password"
// @Failure      401  {object}  map[string]interface{}  "Invalid credentials"
// @Failure      403  {object}  map[string]interface{}  "Account is not active"
// @Router       /api/v1/auth/login [post]
// LoginHandler authenticates an account and issues a JWT
// POST /api/v1/auth/login
func (h *AuthHandlers) LoginHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req LoginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "ID number and password are required"})
			return
		}

		user, err := h.userRepo.GetByIDNumber(c.Request.Context(), strings.TrimSpace(req.IDNumber))
		if err != nil {
			slog.Error("login lookup failed", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to sign in"})
			return
		}
		if user == nil || !auth.CheckPassword(user.PasswordHash, req.Password) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid ID number or password"})
			return
		}
		if !user.IsActive() {
			c.JSON(http.StatusForbidden, gin.H{"error": "Account is not active"})
			return
		}

		ttl := h.tokenTTL()
		token, err := auth.GenerateJWT(user.ID, string(user.Role), ttl)
		if err != nil {
			slog.Error("failed to issue token", "user_id", user.ID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to sign in"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"token":      token,
			"expires_at": time.Now().Add(ttl).UTC().Format(time.RFC3339),
			"user":       user,
			"scopes":     auth.ScopesForRole(user.Role),
		})
	}
}

// @Summary      Current account
// @Description  Returns the signed-in account and the scopes its role grants.
// @Tags         Authentication
// @Security     Bearer
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "user, scopes"
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Router       /api/v1/auth/me [get]
// MeHandler returns the account loaded by the auth middleware
// GET /api/v1/auth/me
func (h *AuthHandlers) MeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		user := middleware.CurrentUser(c)
		if user == nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"user":   user,
			"scopes": auth.ScopesForRole(user.Role),
		})
	}
}
