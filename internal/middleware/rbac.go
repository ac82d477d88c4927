// Package middleware (rbac.go) implements scope-based authorization middleware.
//
// Scopes are derived from the account's role on every request rather than
// embedded in the token, so a role change applies on the account's next request.
package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pwd-registry/pwd-registry/internal/auth"
	"github.com/pwd-registry/pwd-registry/internal/db/models"
)

func scopesFrom(c *gin.Context) ([]string, bool) {
	v, exists := c.Get(ScopesKey)
	if !exists {
		return nil, false
	}
	scopes, ok := v.([]string)
	return scopes, ok
}

// RequireScope checks if authenticated user has the required scope
func RequireScope(scope auth.Scope) gin.HandlerFunc {
	return func(c *gin.Context) {
		userScopes, ok := scopesFrom(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Insufficient permissions"})
			return
		}
		if !auth.HasScope(userScopes, scope) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":   "Missing required scope",
				"details": "Required scope: " + string(scope),
			})
			return
		}
		c.Next()
	}
}

// RequireAnyScope checks if authenticated user has at least one of the required scopes
func RequireAnyScope(scopes ...auth.Scope) gin.HandlerFunc {
	return func(c *gin.Context) {
		userScopes, ok := scopesFrom(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Insufficient permissions"})
			return
		}
		if !auth.HasAnyScope(userScopes, scopes) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Missing required scope"})
			return
		}
		c.Next()
	}
}

// RequireRole restricts a route to accounts holding one of roles. Used where a
// permission belongs to a role rather than a scope, e.g. permanent deletion.
func RequireRole(roles ...models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := CurrentUser(c)
		if user == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
			return
		}
		for _, r := range roles {
			if user.Role == r {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Insufficient permissions"})
	}
}
