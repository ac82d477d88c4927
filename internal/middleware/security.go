// security.go provides the response security headers of the JSON API and the CORS
// handling for the masterlist web client.
package middleware

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/pwd-registry/pwd-registry/internal/config"
)

// SecurityHeadersConfig holds configuration for security headers
type SecurityHeadersConfig struct {
	// HSTSMaxAge is the Strict-Transport-Security max-age in seconds; 0 disables HSTS
	HSTSMaxAge            int
	HSTSIncludeSubdomains bool
	FrameOptions          string
	ContentSecurityPolicy string
	ReferrerPolicy        string
}

// APISecurityHeadersConfig returns headers suited to a JSON API. HSTS is only
// sent when the server terminates TLS itself.
func APISecurityHeadersConfig(tlsEnabled bool) SecurityHeadersConfig {
	cfg := SecurityHeadersConfig{
		FrameOptions:          "DENY",
		ContentSecurityPolicy: "default-src 'none'; frame-ancestors 'none'",
		ReferrerPolicy:        "no-referrer",
	}
	if tlsEnabled {
		cfg.HSTSMaxAge = 31536000
		cfg.HSTSIncludeSubdomains = true
	}
	return cfg
}

// SecurityHeadersMiddleware adds security headers to all responses
func SecurityHeadersMiddleware(cfg SecurityHeadersConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		if cfg.HSTSMaxAge > 0 {
			v := "max-age=" + strconv.Itoa(cfg.HSTSMaxAge)
			if cfg.HSTSIncludeSubdomains {
				v += "; includeSubDomains"
			}
			h.Set("Strict-Transport-Security", v)
		}
		if cfg.FrameOptions != "" {
			h.Set("X-Frame-Options", cfg.FrameOptions)
		}
		if cfg.ContentSecurityPolicy != "" {
			h.Set("Content-Security-Policy", cfg.ContentSecurityPolicy)
		}
		if cfg.ReferrerPolicy != "" {
			h.Set("Referrer-Policy", cfg.ReferrerPolicy)
		}
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("Cache-Control", "no-store")
		c.Next()
	}
}

// CORSMiddleware answers preflight requests and sets CORS headers for allowed
// origins. A "*" entry allows any origin. Requests from other origins get no
// CORS headers and are left to the browser to block.
func CORSMiddleware(cfg config.CORSConfig) gin.HandlerFunc {
	allowAll := false
	allowed := make(map[string]bool, len(cfg.AllowedOrigins))
	for _, o := range cfg.AllowedOrigins {
		if o == "*" {
			allowAll = true
		}
		allowed[strings.TrimRight(o, "/")] = true
	}
	methods := cfg.AllowedMethods
	if len(methods) == 0 {
		methods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	}
	allowMethods := strings.Join(methods, ", ")

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin != "" && (allowAll || allowed[origin]) {
			h := c.Writer.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Methods", allowMethods)
			h.Set("Access-Control-Allow-Headers", "Authorization, Content-Type, "+RequestIDHeader)
			h.Set("Access-Control-Expose-Headers", RequestIDHeader+", X-RateLimit-Remaining, Retry-After")
			h.Add("Vary", "Origin")
		}
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
