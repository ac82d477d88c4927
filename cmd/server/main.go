// @title           PWD Registry API
// @version         0.1.0
// @description     Registration lifecycle, version history and activity log of a municipal PWD masterlist
// @basePath        /
// @schemes         http https
// @securityDefinitions.apiKey  Bearer
// @in                          header
// @name                        Authorization
// @description                 "Session token: 'Bearer {token}'"
//
// @tag.name         System
// @tag.description  Health, readiness and version endpoints.
//
// @tag.name         Observability
// @tag.description  Prometheus metrics and pprof are served on dedicated side ports (PWDR_TELEMETRY_METRICS_PROMETHEUS_PORT, PWDR_TELEMETRY_PROFILING_PORT), not through the Gin router.

// Package main is the entry point for the PWD registry server binary.
// Subcommands are dispatched with a switch on os.Args:
//
//	serve                                   run the API (default)
//	migrate <up|down>                       apply or roll back schema migrations
//	archive [--month YYYY-MM] [--dry-run]   archive one month of the activity log
//	purge [--years N]                       delete archived entries older than N years
//	create-user --id-number ... --role ...  bootstrap an account
//	version                                 print the version
//
// serve runs migrations on startup so a fresh deployment needs no separate step.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	_ "net/http/pprof" // #nosec G108 -- served only on the dedicated profiling port, never on the Gin listener.
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/pwd-registry/pwd-registry/internal/api"
	"github.com/pwd-registry/pwd-registry/internal/auth"
	"github.com/pwd-registry/pwd-registry/internal/config"
	"github.com/pwd-registry/pwd-registry/internal/db"
	"github.com/pwd-registry/pwd-registry/internal/db/models"
	"github.com/pwd-registry/pwd-registry/internal/db/repositories"
	"github.com/pwd-registry/pwd-registry/internal/jobs"
	"github.com/pwd-registry/pwd-registry/internal/storage"
	"github.com/pwd-registry/pwd-registry/internal/telemetry"

	// Import storage backends to register them
	_ "github.com/pwd-registry/pwd-registry/internal/storage/azure"
	_ "github.com/pwd-registry/pwd-registry/internal/storage/gcs"
	_ "github.com/pwd-registry/pwd-registry/internal/storage/local"
	_ "github.com/pwd-registry/pwd-registry/internal/storage/s3"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		log.Fatalf("Error: %v\n", err)
	}
}

func run(args []string) error {
	command := "serve"
	if len(args) > 0 {
		command, args = args[0], args[1:]
	}
	if command == "version" {
		fmt.Printf("PWD Registry v%s\n", api.Version)
		return nil
	}

	configPath := os.Getenv("CONFIG_PATH")
	if command == "serve" {
		// The log level follows config file edits while serving.
		cfg, err := config.LoadAndWatch(configPath, telemetry.SetLogLevel)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		return serve(cfg)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	telemetry.SetupLogger(cfg.Logging.Format, cfg.Logging.Level)

	switch command {
	case "migrate":
		if len(args) < 1 {
			return fmt.Errorf("usage: %s migrate <up|down>", os.Args[0])
		}
		return runMigrations(cfg, args[0])
	case "archive":
		return runArchive(cfg, args)
	case "purge":
		return runPurge(cfg, args)
	case "create-user":
		return runCreateUser(cfg, args)
	default:
		return fmt.Errorf("unknown command: %s\nAvailable commands: serve, migrate, archive, purge, create-user, version", command)
	}
}

func serve(cfg *config.Config) error {
	telemetry.SetupLogger(cfg.Logging.Format, cfg.Logging.Level)

	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := auth.ValidateJWTSecret(); err != nil {
		return fmt.Errorf("security configuration error: %w", err)
	}

	slog.Info("connecting to database",
		"host", cfg.Database.Host, "port", cfg.Database.Port, "user", cfg.Database.User,
		"dbname", cfg.Database.Name, "sslmode", cfg.Database.SSLMode)

	database, err := db.Connect(cfg.Database.GetDSN(), cfg.Database.MaxConnections, cfg.Database.MinIdleConnections)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	// Begin exporting DB pool statistics to Prometheus.
	telemetry.StartDBStatsCollector(database)

	slog.Info("running database migrations")
	if err := db.RunMigrations(database, "up"); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	if v, dirty, err := db.GetMigrationVersion(database); err != nil {
		slog.Warn("failed to get migration version", "error", err)
	} else {
		slog.Info("database schema ready", "version", v, "dirty", dirty)
	}

	startSidePorts(cfg)

	svc, err := newServices(cfg, db.Wrap(database))
	if err != nil {
		return err
	}

	router, bgServices, err := api.NewRouter(cfg, svc)
	if err != nil {
		svc.Close()
		return fmt.Errorf("failed to build router: %w", err)
	}

	server := &http.Server{
		Addr:         cfg.Server.GetAddress(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		slog.Info("starting server",
			"addr", cfg.Server.GetAddress(),
			"base_url", cfg.Server.BaseURL,
			"storage_backend", cfg.Storage.DefaultBackend,
			"tls", cfg.Security.TLS.Enabled)

		var err error
		if cfg.Security.TLS.Enabled {
			err = server.ListenAndServeTLS(cfg.Security.TLS.CertFile, cfg.Security.TLS.KeyFile)
		} else {
			err = server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	// Stop background jobs and rate limiter goroutines
	bgServices.Shutdown()

	slog.Info("server stopped gracefully")
	return nil
}

// startSidePorts serves Prometheus metrics and pprof on their own ports so
// neither is reachable through the public API listener.
func startSidePorts(cfg *config.Config) {
	if cfg.Telemetry.Metrics.Enabled {
		metricsAddr := fmt.Sprintf(":%d", cfg.Telemetry.Metrics.PrometheusPort)
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			slog.Info("starting Prometheus metrics server", "addr", metricsAddr)
			srv := &http.Server{
				Addr:         metricsAddr,
				Handler:      mux,
				ReadTimeout:  10 * time.Second,
				WriteTimeout: 10 * time.Second,
			}
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server error", "error", err)
			}
		}()
	}

	if cfg.Telemetry.Profiling.Enabled {
		pprofAddr := fmt.Sprintf(":%d", cfg.Telemetry.Profiling.Port)
		go func() {
			slog.Info("starting pprof server", "addr", pprofAddr)
			srv := &http.Server{ //nolint:gosec // #nosec G112 -- internal-only pprof port
				Addr:         pprofAddr,
				Handler:      http.DefaultServeMux,
				ReadTimeout:  30 * time.Second,
				WriteTimeout: 30 * time.Second,
			}
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("pprof server error", "error", err)
			}
		}()
	}
}

// newServices opens the configured storage backend and builds the domain services
func newServices(cfg *config.Config, database *sqlx.DB) (*api.Services, error) {
	store, err := storage.NewStorage(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage backend: %w", err)
	}
	slog.Info("initialized storage backend", "backend", cfg.Storage.DefaultBackend)

	svc, err := api.NewServices(cfg, database, store)
	if err != nil {
		return nil, err
	}
	return svc, nil
}

func runMigrations(cfg *config.Config, direction string) error {
	database, err := db.Connect(cfg.Database.GetDSN(), cfg.Database.MaxConnections, cfg.Database.MinIdleConnections)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	slog.Info("running migrations", "direction", direction)
	if err := db.RunMigrations(database, direction); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	version, dirty, err := db.GetMigrationVersion(database)
	if err != nil {
		return fmt.Errorf("failed to get migration version: %w", err)
	}
	slog.Info("migration completed", "version", version, "dirty", dirty)
	return nil
}

// withServices connects to the database, builds the services and runs fn
func withServices(cfg *config.Config, fn func(ctx context.Context, svc *api.Services) error) error {
	database, err := db.Connect(cfg.Database.GetDSN(), cfg.Database.MaxConnections, cfg.Database.MinIdleConnections)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	svc, err := newServices(cfg, db.Wrap(database))
	if err != nil {
		return err
	}
	defer svc.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return fn(ctx, svc)
}

func runArchive(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("archive", flag.ContinueOnError)
	month := fs.String("month", "", "month to archive as YYYY-MM (default: previous month)")
	dryRun := fs.Bool("dry-run", false, "count the entries without moving them")
	if err := fs.Parse(args); err != nil {
		return err
	}

	return withServices(cfg, func(ctx context.Context, svc *api.Services) error {
		report, err := svc.Archiver.Archive(ctx, jobs.ArchiveOptions{Month: *month, DryRun: *dryRun})
		if err != nil {
			return fmt.Errorf("archive failed: %w", err)
		}
		if report.DryRun {
			fmt.Printf("Dry run: %d activity log entries from %s would be archived\n", report.Entries, report.Month)
			return nil
		}
		fmt.Printf("Archived %d activity log entries from %s\n", report.Entries, report.Month)
		if report.Backup != nil {
			fmt.Printf("Export written to %s (sha256 %s)\n", report.Backup.StoragePath, report.Backup.Checksum)
		}
		return nil
	})
}

func runPurge(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("purge", flag.ContinueOnError)
	years := fs.Int("years", 0, "retention in years (default: audit.retention_years)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	return withServices(cfg, func(ctx context.Context, svc *api.Services) error {
		report, err := svc.Archiver.Purge(ctx, *years)
		if err != nil {
			return fmt.Errorf("purge failed: %w", err)
		}
		fmt.Printf("Purged %d archived entries created before %s; deleted %d exports\n",
			report.EntriesPurged, report.Cutoff.Format("2006-01-02"), report.BackupsDeleted)
		return nil
	})
}

func runCreateUser(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("create-user", flag.ContinueOnError)
	idNumber := fs.String("id-number", "", "office-issued ID number used to sign in")
	firstName := fs.String("first-name", "", "first name")
	lastName := fs.String("last-name", "", "last name")
	role := fs.String("role", string(models.RoleStaff), "ADMIN, STAFF, ENCODER, MAYOR, USER or \"PWD MEMBER\"")
	if err := fs.Parse(args); err != nil {
		return err
	}

	// The password is read from the environment so it never appears in shell history.
	password := os.Getenv("PWDR_NEW_USER_PASSWORD")
	u := &models.User{
		IDNumber:  strings.TrimSpace(*idNumber),
		FirstName: strings.TrimSpace(*firstName),
		LastName:  strings.TrimSpace(*lastName),
		Role:      models.Role(strings.ToUpper(strings.TrimSpace(*role))),
		Status:    models.UserStatusActive,
	}
	if u.IDNumber == "" || u.FirstName == "" || u.LastName == "" {
		return fmt.Errorf("--id-number, --first-name and --last-name are required")
	}
	if !u.Role.Valid() {
		return fmt.Errorf("invalid role %q", *role)
	}
	hash, err := auth.HashPassword(password, cfg.Auth.BcryptCost)
	if err != nil {
		return fmt.Errorf("PWDR_NEW_USER_PASSWORD: %w", err)
	}
	u.PasswordHash = hash

	return withServices(cfg, func(ctx context.Context, svc *api.Services) error {
		users := repositories.NewUserRepository(svc.DB)
		existing, err := users.GetByIDNumber(ctx, u.IDNumber)
		if err != nil {
			return err
		}
		if existing != nil {
			return fmt.Errorf("an account with ID number %s already exists", u.IDNumber)
		}
		if err := users.Create(ctx, u); err != nil {
			return err
		}
		svc.Trail.RecordCreate(ctx, u)
		fmt.Printf("Created %s account %s for %s\n", u.Role, u.IDNumber, u.FullName())
		return nil
	})
}
