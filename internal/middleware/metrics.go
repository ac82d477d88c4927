package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pwd-registry/pwd-registry/internal/telemetry"
)

// noRouteLabel is the path label for requests that matched no route
const noRouteLabel = "<no-route>"

// MetricsMiddleware records http_requests_total and http_request_duration_seconds
// for every request. The path label is the matched route template (for example
// /api/v1/pwd/:id), never the raw URL, so label cardinality stays bounded.
func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = noRouteLabel
		}
		method := c.Request.Method

		telemetry.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(c.Writer.Status())).Inc()
		telemetry.HTTPRequestDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
	}
}
