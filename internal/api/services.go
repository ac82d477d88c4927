package api

import (
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
	"github.com/pwd-registry/pwd-registry/internal/audit"
	"github.com/pwd-registry/pwd-registry/internal/config"
	"github.com/pwd-registry/pwd-registry/internal/db/repositories"
	"github.com/pwd-registry/pwd-registry/internal/identity"
	"github.com/pwd-registry/pwd-registry/internal/jobs"
	"github.com/pwd-registry/pwd-registry/internal/notify"
	"github.com/pwd-registry/pwd-registry/internal/profiles"
	"github.com/pwd-registry/pwd-registry/internal/registration"
	"github.com/pwd-registry/pwd-registry/internal/storage"
	"github.com/pwd-registry/pwd-registry/internal/versioning"
)

// Services is the domain layer shared by the HTTP router and the maintenance
// subcommands of cmd/server.
type Services struct {
	DB       *sqlx.DB
	Storage  storage.Storage
	Trail    *audit.Trail
	Ledger   *versioning.Ledger
	Resolver *identity.Resolver
	Notifier *notify.Notifier
	Profiles *profiles.Service
	Machine  *registration.Machine
	Archiver *jobs.LogArchiver
	Reminder *jobs.ExpiryReminder

	shipper *audit.MultiShipper
}

// NewServices builds the domain services over database and store
func NewServices(cfg *config.Config, database *sqlx.DB, store storage.Storage) (*Services, error) {
	shipper, err := audit.NewMultiShipper(cfg.Audit.Shippers)
	if err != nil {
		return nil, fmt.Errorf("failed to configure audit shippers: %w", err)
	}

	var trail *audit.Trail
	if shipper.Len() > 0 {
		slog.Info("activity log shipping enabled", "destinations", shipper.Len())
		trail = audit.NewTrail(repositories.NewActivityLogRepository(database), shipper)
	} else {
		trail = audit.NewTrail(repositories.NewActivityLogRepository(database), nil)
	}

	defaults := versioning.AddressDefaults{
		City:     cfg.Registration.DefaultCity,
		Province: cfg.Registration.DefaultProv,
		Region:   cfg.Registration.DefaultRegion,
	}
	validity := cfg.Registration.ValidityYearsOrDefault()

	ledger := versioning.NewLedger(database, defaults)
	resolver := identity.NewResolver(database)
	notifier := notify.NewNotifier(database)

	return &Services{
		DB:       database,
		Storage:  store,
		Trail:    trail,
		Ledger:   ledger,
		Resolver: resolver,
		Notifier: notifier,
		Profiles: profiles.NewService(database, ledger, trail, resolver, notifier, profiles.Options{
			ValidityYears: validity,
			Defaults:      defaults,
		}),
		Machine:  registration.NewMachine(database, ledger, trail, resolver, notifier, validity),
		Archiver: jobs.NewLogArchiver(database, trail, store, cfg.Storage.DefaultBackend, &cfg.Audit),
		Reminder: jobs.NewExpiryReminder(database, resolver, notifier, &cfg.Notifications),
		shipper:  shipper,
	}, nil
}

// Close releases the activity log shippers
func (s *Services) Close() {
	if err := s.shipper.Close(); err != nil {
		slog.Warn("failed to close audit shippers", "error", err)
	}
}
