// audit.go attaches the caller's address and user agent to the request context so
// activity log entries written while serving the request record where it came from.
package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/pwd-registry/pwd-registry/internal/audit"
)

// ClientInfoMiddleware stores the client IP and user agent in the request
// context. AuthMiddleware adds the account id later in the chain.
func ClientInfoMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		info := audit.ClientInfoFrom(c.Request.Context())
		info.IPAddress = c.ClientIP()
		info.UserAgent = c.Request.UserAgent()
		c.Request = c.Request.WithContext(audit.WithClientInfo(c.Request.Context(), info))
		c.Next()
	}
}
