// Package middleware provides Gin HTTP middleware for authentication, authorization,
// rate limiting, security headers, request ids, metrics, and activity log context.
//
// Middleware ordering is set in internal/api/router.go:
//
//	Security → RequestID → Metrics → ClientInfo → RateLimit → Auth → RBAC → Handler
//
// Rate limiting runs before auth so brute-force login attempts are rejected
// before any database work. Auth loads the account and its role scopes; RBAC
// reads them from the gin context.
package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pwd-registry/pwd-registry/internal/audit"
	"github.com/pwd-registry/pwd-registry/internal/auth"
	"github.com/pwd-registry/pwd-registry/internal/db/models"
)

// Context keys set by AuthMiddleware
const (
	UserKey   = "user"
	UserIDKey = "user_id"
	ScopesKey = "scopes"
)

// UserLoader loads an account by id. *repositories.UserRepository satisfies it.
type UserLoader interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
}

// AuthMiddleware validates the session token and loads the account it names.
// The account's role scopes are stored for RequireScope, and its id is attached
// to the request context so activity log entries name the actor.
func AuthMiddleware(users UserLoader) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := auth.ExtractBearerToken(c.GetHeader("Authorization"))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}

		claims, err := auth.ValidateJWT(token)
		if errors.Is(err, auth.ErrTokenExpired) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Session expired"})
			return
		}
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			return
		}

		user, err := users.GetByID(c.Request.Context(), claims.UserID)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to load user"})
			return
		}
		if user == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "User not found"})
			return
		}
		if user.Status != "" && user.Status != models.UserStatusActive {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Account is not active"})
			return
		}

		setUser(c, user)
		c.Next()
	}
}

func setUser(c *gin.Context, user *models.User) {
	c.Set(UserKey, user)
	c.Set(UserIDKey, user.ID)
	c.Set(ScopesKey, auth.ScopesForRole(user.Role))
	c.Request = c.Request.WithContext(audit.WithUserID(c.Request.Context(), user.ID))
}

// CurrentUser returns the account loaded by AuthMiddleware, or nil.
func CurrentUser(c *gin.Context) *models.User {
	v, ok := c.Get(UserKey)
	if !ok {
		return nil
	}
	u, _ := v.(*models.User)
	return u
}
