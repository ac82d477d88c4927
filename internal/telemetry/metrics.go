// Package telemetry provides application-level observability for the PWD registry.
//
// # Prometheus Metrics Endpoint
//
// All metrics are registered against the default Prometheus registry and are
// served by the side-channel HTTP server started by main.go:
//
//	GET http://<host>:<PWDR_TELEMETRY_METRICS_PROMETHEUS_PORT>/metrics
//
// Default port: 9090. The endpoint is not served by the Gin router.
//
// # Metric Groups
//
//   - HTTP request counters and latency histograms (labelled by route template)
//   - Activity log writes and write failures
//   - Profile version snapshots, by trigger
//   - Registration review decisions
//   - Notifications created and expiry reminders sent
//   - Activity log archive and purge runs
//   - Database connection pool gauge (polled every 30 s)
//
// # Label Cardinality
//
// HTTP metrics use c.FullPath() (for example /api/v1/profiles/:id/versions) rather
// than the raw URL so profile and case IDs never become label values.
package telemetry

import (
	"database/sql"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics, labelled by method, route template and status code.
//
// Example PromQL queries:
//   - Request rate (req/s, 5 m window):  rate(http_requests_total[5m])
//   - Error rate (%):                    sum(rate(http_requests_total{status=~"5.."}[5m])) / sum(rate(http_requests_total[5m])) * 100
//   - p99 latency per route:             histogram_quantile(0.99, sum by (path, le) (rate(http_request_duration_seconds_bucket[5m])))
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests processed, by method, route template, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, by method and route template.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "path"},
	)
)

// Activity log metrics, recorded by the audit trail.
//
// ActivityLogWritesTotal counts persisted entries by {model_type, action}.
// ActivityLogFailuresTotal counts entries that could not be persisted; the
// triggering data change still succeeds, so this counter is the only signal
// that the trail has gaps.
//
// Example PromQL queries:
//   - Writes by model:    sum by (model_type) (rate(activity_log_writes_total[1h]))
//   - Alert expression:   increase(activity_log_failures_total[15m]) > 0
var (
	ActivityLogWritesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "activity_log_writes_total",
			Help: "Total number of activity log entries written, by model type and action.",
		},
		[]string{"model_type", "action"},
	)

	ActivityLogFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "activity_log_failures_total",
			Help: "Total number of activity log entries that failed to persist, by model type.",
		},
		[]string{"model_type"},
	)
)

// VersionSnapshotsTotal counts profile version snapshots by {trigger}:
// "initial", "field", "relation", "restore" or "manual".
//
// Example PromQL queries:
//   - Snapshot rate by trigger:  sum by (trigger) (rate(profile_version_snapshots_total[1h]))
var VersionSnapshotsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "profile_version_snapshots_total",
		Help: "Total number of profile version snapshots taken, by trigger.",
	},
	[]string{"trigger"},
)

// RegistrationDecisionsTotal counts review outcomes by {decision}:
// "approved", "rejected" or "changes_requested".
//
// Example PromQL queries:
//   - Approval ratio:  sum(rate(registration_decisions_total{decision="approved"}[7d])) / sum(rate(registration_decisions_total[7d]))
var RegistrationDecisionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "registration_decisions_total",
		Help: "Total number of registration review decisions, by decision.",
	},
	[]string{"decision"},
)

// NotificationsCreatedTotal counts in-app notifications by {type}.
var NotificationsCreatedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "notifications_created_total",
		Help: "Total number of in-app notifications created, by notification type.",
	},
	[]string{"type"},
)

// ExpiryRemindersSentTotal is incremented once per profile reminded by the
// expiry reminder job. A stalled counter while IDs approach expiry points at
// a stuck job or an unresolvable account link.
var ExpiryRemindersSentTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Name: "pwd_expiry_reminders_sent_total",
		Help: "Total number of PWD ID expiry reminders sent.",
	},
)

// Archive job metrics.
//
// ActivityLogArchivedTotal counts entries moved into the archived state.
// ActivityLogPurgedTotal counts archived entries deleted by retention purges.
// ArchiveRunDuration observes one archive run including any storage export.
var (
	ActivityLogArchivedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "activity_log_archived_total",
			Help: "Total number of activity log entries archived.",
		},
	)

	ActivityLogPurgedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "activity_log_purged_total",
			Help: "Total number of archived activity log entries purged by retention.",
		},
	)

	ArchiveRunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "activity_log_archive_duration_seconds",
			Help:    "Duration of a single activity log archive run.",
			Buckets: prometheus.DefBuckets,
		},
	)
)

// DBOpenConnections tracks the number of open connections held by the sql.DB
// pool. It is sampled every 30 seconds by StartDBStatsCollector.
//
// Example PromQL queries:
//   - Pool utilisation (%): db_open_connections / <PWDR_DATABASE_MAX_CONNECTIONS> * 100
var DBOpenConnections = promauto.NewGauge(
	prometheus.GaugeOpts{
		Name: "db_open_connections",
		Help: "Current number of open database connections in the pool.",
	},
)

// StartDBStatsCollector launches a background goroutine that samples sql.DB
// pool statistics every 30 seconds. It exits once db.Ping fails, which happens
// after main closes the pool on shutdown.
func StartDBStatsCollector(db *sql.DB) {
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			if err := db.Ping(); err != nil {
				slog.Warn("db stats collector: database unreachable, stopping collector", "error", err)
				return
			}
			DBOpenConnections.Set(float64(db.Stats().OpenConnections))
		}
	}()
}
