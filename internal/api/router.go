// Package api wires together all HTTP routes for the PWD registry backend.
//
// Route grouping:
//   - /health, /ready and /version are unauthenticated probes.
//   - /api/v1/auth/login is public but rate limited with the stricter auth budget.
//   - Everything else under /api/v1 requires a session token and the scope the
//     route names. Permanent deletion and clearing the activity log are
//     additionally restricted to the ADMIN role.
package api

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/pwd-registry/pwd-registry/internal/api/admin"
	"github.com/pwd-registry/pwd-registry/internal/auth"
	"github.com/pwd-registry/pwd-registry/internal/config"
	"github.com/pwd-registry/pwd-registry/internal/db/models"
	"github.com/pwd-registry/pwd-registry/internal/db/repositories"
	"github.com/pwd-registry/pwd-registry/internal/middleware"
	"github.com/pwd-registry/pwd-registry/internal/safego"
	"github.com/pwd-registry/pwd-registry/internal/storage"
)

// Version is reported by /version and the version subcommand
const Version = "0.1.0"

// BackgroundServices holds references to background jobs and resources that must
// be stopped during graceful shutdown. The caller (cmd/server) is responsible for
// calling Shutdown() when the process receives a termination signal.
type BackgroundServices struct {
	services     *Services
	rateLimiters []*middleware.RateLimiter
	redisClient  *redis.Client
}

// Shutdown stops all background goroutines. It should be called after the HTTP
// server has been shut down so that in-flight requests are drained first.
func (bg *BackgroundServices) Shutdown() {
	slog.Info("stopping background services")
	bg.services.Archiver.Stop()
	bg.services.Reminder.Stop()
	for _, rl := range bg.rateLimiters {
		rl.Stop()
	}
	if bg.redisClient != nil {
		if err := bg.redisClient.Close(); err != nil {
			slog.Warn("failed to close redis client", "error", err)
		}
	}
	bg.services.Close()
	slog.Info("all background services stopped")
}

// NewRouter creates and configures the Gin router and starts the background jobs
func NewRouter(cfg *config.Config, svc *Services) (*gin.Engine, *BackgroundServices, error) {
	router := gin.New()
	bg := &BackgroundServices{services: svc}

	// Rate limiters: shared through Redis when configured, in-process otherwise
	authLimiter, generalLimiter, err := newLimiters(cfg, bg)
	if err != nil {
		return nil, nil, err
	}

	// Start background jobs
	safego.Go("activity-log-archiver", func() { svc.Archiver.Start(context.Background()) })
	safego.Go("expiry-reminder", func() { svc.Reminder.Start(context.Background()) })

	// Add middleware
	router.Use(gin.Recovery())
	router.Use(middleware.SecurityHeadersMiddleware(middleware.APISecurityHeadersConfig(cfg.Security.TLS.Enabled)))
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.MetricsMiddleware())
	router.Use(LoggerMiddleware())
	router.Use(middleware.CORSMiddleware(cfg.Security.CORS))

	// Probes
	router.GET("/health", healthCheckHandler(svc.DB.DB))
	router.GET("/ready", readinessHandler(svc.DB.DB, svc.Storage))
	router.GET("/version", versionHandler())

	// Initialize handlers
	userRepo := repositories.NewUserRepository(svc.DB)
	authHandlers := admin.NewAuthHandlers(cfg, svc.DB)
	profileHandlers := admin.NewProfileHandlers(svc.Profiles)
	versionHandlers := admin.NewVersionHandlers(svc.Profiles, svc.DB)
	approvalHandlers := admin.NewApprovalHandlers(svc.Machine, svc.DB)
	notificationHandlers := admin.NewNotificationHandlers(svc.DB)
	activityLogHandlers := admin.NewActivityLogHandlers(svc.DB, svc.Archiver)
	statsHandler := admin.NewStatsHandler(svc.DB)
	userHandlers := admin.NewUserHandlers(cfg, svc.DB, svc.Trail)

	apiV1 := router.Group("/api/v1")
	apiV1.Use(middleware.ClientInfoMiddleware())
	{
		// Public authentication endpoint (no auth required, but rate limited)
		apiV1.POST("/auth/login", rateLimit(authLimiter), authHandlers.LoginHandler())

		authenticated := apiV1.Group("")
		authenticated.Use(rateLimit(generalLimiter))
		authenticated.Use(middleware.AuthMiddleware(userRepo))
		{
			authenticated.GET("/auth/me", authHandlers.MeHandler())

			authenticated.GET("/dashboard/stats",
				middleware.RequireScope(auth.ScopeProfilesRead),
				statsHandler.GetDashboardStats)

			// Masterlist. Members submit their own registration through POST /pwd.
			authenticated.POST("/pwd",
				middleware.RequireAnyScope(auth.ScopeProfilesWrite, auth.ScopeRegistrationsSubmit),
				profileHandlers.CreateHandler())

			pwdRead := authenticated.Group("/pwd")
			pwdRead.Use(middleware.RequireScope(auth.ScopeProfilesRead))
			{
				pwdRead.GET("", profileHandlers.ListHandler())
				pwdRead.GET("/:id", profileHandlers.GetHandler())
				pwdRead.GET("/:id/versions", versionHandlers.ListHandler())
				pwdRead.GET("/:id/versions/:version", versionHandlers.GetHandler())
			}

			pwdWrite := authenticated.Group("/pwd")
			pwdWrite.Use(middleware.RequireScope(auth.ScopeProfilesWrite))
			{
				pwdWrite.PUT("/:id", profileHandlers.UpdateHandler())
				pwdWrite.PATCH("/:id/status", profileHandlers.UpdateStatusHandler())
				pwdWrite.POST("/:id/printed", profileHandlers.MarkPrintedHandler())
				pwdWrite.POST("/:id/generate-number", profileHandlers.GenerateNumberHandler())
				pwdWrite.DELETE("/:id", profileHandlers.DeleteHandler())
				pwdWrite.POST("/:id/versions/:version/restore", versionHandlers.RestoreHandler())
			}

			// Review queue
			approvals := authenticated.Group("/approvals")
			approvals.Use(middleware.RequireScope(auth.ScopeApprovalsReview))
			{
				approvals.GET("", approvalHandlers.ListHandler())
				approvals.GET("/stats", approvalHandlers.StatsHandler())
				approvals.GET("/:id", approvalHandlers.GetHandler())
				approvals.POST("/:id/approve", approvalHandlers.ApproveHandler())
				approvals.POST("/:id/reject", approvalHandlers.RejectHandler())
				approvals.POST("/:id/request-changes", approvalHandlers.RequestChangesHandler())
			}

			// Notifications are scoped to the caller; any authenticated account
			notifications := authenticated.Group("/notifications")
			{
				notifications.GET("", notificationHandlers.ListHandler())
				notifications.GET("/unread-count", notificationHandlers.UnreadCountHandler())
				notifications.POST("/read-all", notificationHandlers.MarkAllReadHandler())
				notifications.POST("/clear-read", notificationHandlers.ClearReadHandler())
				notifications.POST("/:id/read", notificationHandlers.MarkReadHandler())
				notifications.DELETE("/:id", notificationHandlers.DeleteHandler())
			}

			// Account management
			users := authenticated.Group("/users")
			users.Use(middleware.RequireScope(auth.ScopeAdmin))
			{
				users.GET("", userHandlers.ListUsersHandler())
				users.POST("", userHandlers.CreateUserHandler())
				users.GET("/:id", userHandlers.GetUserHandler())
				users.PUT("/:id", userHandlers.UpdateUserHandler())
				users.DELETE("/:id", userHandlers.DeleteUserHandler())
				users.POST("/:id/restore", userHandlers.RestoreUserHandler())
			}

			// Activity log
			logs := authenticated.Group("/activity-logs")
			logs.Use(middleware.RequireScope(auth.ScopeAuditRead))
			{
				logs.GET("", activityLogHandlers.ListHandler())
				logs.GET("/archives", activityLogHandlers.ArchiveMonthsHandler())
				logs.GET("/:id", activityLogHandlers.GetHandler())
				logs.POST("/clear",
					middleware.RequireRole(models.RoleAdmin),
					activityLogHandlers.ClearHandler())
			}
		}
	}

	return router, bg, nil
}

// newLimiters returns the auth and general limiters, or nils when rate limiting
// is disabled.
func newLimiters(cfg *config.Config, bg *BackgroundServices) (middleware.Limiter, middleware.Limiter, error) {
	rl := cfg.Security.RateLimiting
	if !rl.Enabled {
		slog.Warn("rate limiting disabled (security.rate_limiting.enabled=false)")
		return nil, nil, nil
	}

	authCfg := middleware.AuthRateLimitConfig()
	generalCfg := middleware.DefaultRateLimitConfig()
	if rl.RequestsPerMinute > 0 {
		generalCfg.RequestsPerMinute = rl.RequestsPerMinute
	}
	if rl.Burst > 0 {
		generalCfg.BurstSize = rl.Burst
	}

	if rl.RedisURL != "" {
		opts, err := redis.ParseURL(rl.RedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid security.rate_limiting.redis_url: %w", err)
		}
		bg.redisClient = redis.NewClient(opts)
		slog.Info("rate limiting shared through redis", "addr", opts.Addr)
		return middleware.NewRedisRateLimiter(bg.redisClient, authCfg),
			middleware.NewRedisRateLimiter(bg.redisClient, generalCfg), nil
	}

	authLimiter := middleware.NewRateLimiter(authCfg)
	generalLimiter := middleware.NewRateLimiter(generalCfg)
	bg.rateLimiters = append(bg.rateLimiters, authLimiter, generalLimiter)
	return authLimiter, generalLimiter, nil
}

// rateLimit applies l, passing every request through when l is nil
func rateLimit(l middleware.Limiter) gin.HandlerFunc {
	if l == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return middleware.RateLimitMiddleware(l)
}

// @Summary      Health check
// @Description  Returns the health status of the service, including database connectivity.
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "status: healthy, time: RFC3339 timestamp"
// @Failure      503  {object}  map[string]interface{}  "status: unhealthy, error: database connection failed"
// @Router       /health [get]
// healthCheckHandler returns the health status of the service
func healthCheckHandler(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Check database connection
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unhealthy",
				"error":  "database connection failed",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status": "healthy",
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// @Summary      Readiness check
// @Description  Returns whether the service is ready to accept traffic. Checks the database and the archive storage backend.
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "ready: true, time: RFC3339 timestamp"
// @Failure      503  {object}  map[string]interface{}  "ready: false, error: database not ready"
// @Router       /ready [get]
// readinessHandler returns the readiness status of the service.
// Unlike the liveness probe (/health), this also checks the storage backend so
// that a readiness gate fails when archive exports would error.
func readinessHandler(db *sql.DB, storageBackend storage.Storage) gin.HandlerFunc {
	return func(c *gin.Context) {
		checks := gin.H{}

		if err := db.PingContext(c.Request.Context()); err != nil {
			checks["database"] = "unhealthy"
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"ready":  false,
				"checks": checks,
				"error":  "database not ready",
			})
			return
		}
		checks["database"] = "healthy"

		// Exists() exercises credentials and connectivity without creating state.
		if _, err := storageBackend.Exists(c.Request.Context(), ".readiness-probe"); err != nil {
			checks["storage"] = "unhealthy"
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"ready":  false,
				"checks": checks,
				"error":  "storage backend not ready",
			})
			return
		}
		checks["storage"] = "healthy"

		c.JSON(http.StatusOK, gin.H{
			"ready":  true,
			"checks": checks,
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// @Summary      API version
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "version, api_version"
// @Router       /version [get]
// versionHandler returns the API version
func versionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"version":     Version,
			"api_version": "v1",
		})
	}
}

// LoggerMiddleware logs one structured record per request
func LoggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		level := slog.LevelInfo
		if c.Writer.Status() >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		// The text or JSON rendering is chosen by the handler telemetry.SetupLogger installed.
		slog.LogAttrs(
			c.Request.Context(),
			level,
			"http request",
			slog.String("method", c.Request.Method),
			slog.String("path", path),
			slog.String("query", query),
			slog.Int("status", c.Writer.Status()),
			slog.Int("size", c.Writer.Size()),
			slog.Duration("latency", time.Since(start)),
			slog.String("ip", c.ClientIP()),
			slog.String("request_id", middleware.RequestID(c)),
			slog.String("user_id", c.GetString(middleware.UserIDKey)),
			slog.String("user_agent", c.Request.UserAgent()),
		)
	}
}
