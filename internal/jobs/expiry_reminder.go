// expiry_reminder.go implements ExpiryReminder, the background job that warns members
// whose PWD ID is about to expire. Each expiry date is reminded once: the date a
// reminder went out for is stored on the profile (expiry_reminder_sent_for), so
// restarts do not resend and a renewal with a new expiry gets a fresh reminder.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/pwd-registry/pwd-registry/internal/config"
	"github.com/pwd-registry/pwd-registry/internal/db/models"
	"github.com/pwd-registry/pwd-registry/internal/db/repositories"
	"github.com/pwd-registry/pwd-registry/internal/identity"
	"github.com/pwd-registry/pwd-registry/internal/notify"
	"github.com/pwd-registry/pwd-registry/internal/telemetry"
)

// ExpiryReminder periodically notifies members whose ID expires soon
type ExpiryReminder struct {
	profiles    *repositories.ProfileRepository
	resolver    *identity.Resolver
	notifier    *notify.Notifier
	mailer      Mailer
	enabled     bool
	interval    time.Duration
	warningDays int
	now         func() time.Time
	stopChan    chan struct{}
}

// NewExpiryReminder creates an ExpiryReminder. Email is sent only when
// notifications.email_enabled is set and an SMTP host is configured.
func NewExpiryReminder(database *sqlx.DB, resolver *identity.Resolver, notifier *notify.Notifier, cfg *config.NotificationsConfig) *ExpiryReminder {
	hours := cfg.ExpiryCheckIntervalHours
	if hours <= 0 {
		hours = 24
	}
	days := cfg.ExpiryWarningDays
	if days <= 0 {
		days = 30
	}

	r := &ExpiryReminder{
		profiles:    repositories.NewProfileRepository(database),
		resolver:    resolver,
		notifier:    notifier,
		enabled:     cfg.ExpiryRemindersEnabled,
		interval:    time.Duration(hours) * time.Hour,
		warningDays: days,
		now:         time.Now,
		stopChan:    make(chan struct{}),
	}
	if cfg.EmailEnabled {
		if m := NewSMTPMailer(cfg.SMTP); m != nil {
			r.mailer = m
		}
	}
	return r
}

// Start runs a check immediately and then on every interval until ctx is
// cancelled or Stop is called. It returns at once when reminders are disabled.
func (r *ExpiryReminder) Start(ctx context.Context) {
	if !r.enabled {
		slog.Info("expiry reminder: disabled (notifications.expiry_reminders_enabled=false)")
		return
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	slog.Info("expiry reminder started", "interval", r.interval, "warning_days", r.warningDays, "email", r.mailer != nil)

	r.runCheck(ctx)
	for {
		select {
		case <-ticker.C:
			r.runCheck(ctx)
		case <-r.stopChan:
			slog.Info("expiry reminder stopped")
			return
		case <-ctx.Done():
			slog.Info("expiry reminder context cancelled")
			return
		}
	}
}

// Stop signals the background loop to exit
func (r *ExpiryReminder) Stop() {
	close(r.stopChan)
}

func (r *ExpiryReminder) runCheck(ctx context.Context) {
	sent, err := r.RunOnce(ctx)
	if err != nil {
		slog.Error("expiry reminder: check failed", "error", err)
		return
	}
	if sent > 0 {
		slog.Info("expiry reminder: reminders sent", "count", sent)
	}
}

// RunOnce reminds every ACTIVE profile expiring between today and today plus
// the warning window, and returns how many were reminded. A profile with no
// reachable account or email is left unmarked so it is picked up again once
// one is linked.
func (r *ExpiryReminder) RunOnce(ctx context.Context) (int, error) {
	now := r.now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	until := today.AddDate(0, 0, r.warningDays)

	profiles, err := r.profiles.ListExpiring(ctx, today, until)
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, p := range profiles {
		if p.ExpiryDate == nil {
			continue
		}
		if r.remind(ctx, p, today) {
			if err := r.profiles.MarkReminderSent(ctx, p.ID, *p.ExpiryDate); err != nil {
				slog.Warn("expiry reminder: failed to mark reminder sent", "profile_id", p.ID, "error", err)
				continue
			}
			telemetry.ExpiryRemindersSentTotal.Inc()
			sent++
		}
	}
	return sent, nil
}

// remind delivers the in-app notification and the optional email. It reports
// whether at least one channel succeeded.
func (r *ExpiryReminder) remind(ctx context.Context, p *models.Profile, today time.Time) bool {
	expiry := *p.ExpiryDate
	daysLeft := int(expiry.Sub(today).Hours() / 24)
	if daysLeft < 0 {
		daysLeft = 0
	}
	title := "PWD ID Expiring Soon"
	body := fmt.Sprintf("Your PWD ID expires on %s (%d day(s) from today). Please visit the PDAO office to renew it.",
		expiry.Format("January 2, 2006"), daysLeft)

	delivered := false

	account, err := r.resolver.ResolveAccountFor(ctx, p)
	if err != nil {
		slog.Warn("expiry reminder: account lookup failed", "profile_id", p.ID, "error", err)
	} else if account != nil {
		err := r.notifier.Notify(ctx, notify.Message{
			UserID:      account.ID,
			Type:        models.NotificationExpiryWarning,
			Title:       title,
			Body:        body,
			RelatedType: notify.RelatedProfile,
			RelatedID:   p.ID,
		})
		if err != nil {
			slog.Warn("expiry reminder: notification failed", "profile_id", p.ID, "error", err)
		} else {
			delivered = true
		}
	}

	if r.mailer != nil {
		email, err := r.profiles.ContactEmail(ctx, p.ID)
		switch {
		case err != nil:
			slog.Warn("expiry reminder: contact lookup failed", "profile_id", p.ID, "error", err)
		case email != "":
			mailBody := fmt.Sprintf("Dear %s,\n\n%s\n\nPersons with Disability Affairs Office", p.FullName(), body)
			if err := r.mailer.Send(email, "Action Required: "+title, mailBody); err != nil {
				slog.Warn("expiry reminder: email failed", "profile_id", p.ID, "error", err)
			} else {
				delivered = true
			}
		}
	}

	return delivered
}
