// Package registration drives a registration case from submission to approval or
// rejection. Every action runs in three steps: the case, profile and version
// snapshot are written in one transaction; the activity log entries are recorded;
// the applicant is notified. Steps two and three are best-effort.
package registration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/pwd-registry/pwd-registry/internal/audit"
	"github.com/pwd-registry/pwd-registry/internal/db"
	"github.com/pwd-registry/pwd-registry/internal/db/models"
	"github.com/pwd-registry/pwd-registry/internal/db/repositories"
	"github.com/pwd-registry/pwd-registry/internal/identity"
	"github.com/pwd-registry/pwd-registry/internal/notify"
	"github.com/pwd-registry/pwd-registry/internal/telemetry"
	"github.com/pwd-registry/pwd-registry/internal/versioning"
)

var (
	// ErrCaseNotFound is returned when the case does not exist or was withdrawn
	ErrCaseNotFound = errors.New("registration not found")
	// ErrCaseFinalized is returned for any action on an APPROVED or REJECTED case
	ErrCaseFinalized = errors.New("this registration has already been processed")
	// ErrNumberTaken is returned when the number to assign belongs to another profile
	ErrNumberTaken = errors.New("this PWD number is already assigned to another profile")
	// ErrNotesRequired is returned when a rejection carries no reason
	ErrNotesRequired = errors.New("a reason is required to decline a registration")
	// ErrProfileNotFound is returned when the case's profile no longer exists
	ErrProfileNotFound = errors.New("profile not found")
)

// Notification texts
const (
	titleApproved = "Registration Approved"
	titleDeclined = "Registration Declined"
	titleChanges  = "Changes Required"

	bodyApproved = "Your PWD registration has been approved and you are now officially registered in the masterlist."
	bodyDeclined = "Your PWD registration has been declined."
	bodyChanges  = "The administrator has requested changes for your PWD registration application."
)

// DefaultValidityYears is the lifetime of an approved PWD ID when none is configured.
const DefaultValidityYears = 5

// ApproveInput holds the optional parameters of an approval
type ApproveInput struct {
	Notes          string
	AssignedNumber string
}

// Result is the outcome of a review action
type Result struct {
	Case     *models.RegistrationCase `json:"registration"`
	Profile  *models.Profile          `json:"profile"`
	Snapshot *models.VersionSnapshot  `json:"version,omitempty"`
	// Warnings lists best-effort steps that failed, such as notification delivery
	Warnings []string `json:"warnings,omitempty"`
}

// Machine applies review actions to registration cases
type Machine struct {
	db            *sqlx.DB
	cases         *repositories.CaseRepository
	profiles      *repositories.ProfileRepository
	ledger        *versioning.Ledger
	trail         *audit.Trail
	resolver      *identity.Resolver
	notifier      *notify.Notifier
	validityYears int
	now           func() time.Time
}

// NewMachine creates a Machine. validityYears below 1 falls back to DefaultValidityYears.
func NewMachine(database *sqlx.DB, ledger *versioning.Ledger, trail *audit.Trail, resolver *identity.Resolver, notifier *notify.Notifier, validityYears int) *Machine {
	if validityYears < 1 {
		validityYears = DefaultValidityYears
	}
	return &Machine{
		db:            database,
		cases:         repositories.NewCaseRepository(database),
		profiles:      repositories.NewProfileRepository(database),
		ledger:        ledger,
		trail:         trail,
		resolver:      resolver,
		notifier:      notifier,
		validityYears: validityYears,
		now:           time.Now,
	}
}

// change captures one entity before and after a transaction
type change struct {
	entity audit.Auditable
	prior  map[string]any
}

// Approve moves a case to APPROVED and activates its profile: status ACTIVE,
// approval date today, expiry after the validity period, and the assigned PWD
// number when one is supplied.
func (m *Machine) Approve(ctx context.Context, caseID string, reviewer *models.User, in ApproveInput) (*Result, error) {
	number := strings.TrimSpace(in.AssignedNumber)
	res := &Result{}
	var changes []change

	err := db.WithTx(ctx, m.db, func(tx *sqlx.Tx) error {
		c, p, err := m.load(ctx, tx, caseID)
		if err != nil {
			return err
		}

		if number != "" {
			taken, err := m.profiles.WithTx(tx).NumberTaken(ctx, number, p.ID)
			if err != nil {
				return err
			}
			if taken {
				return ErrNumberTaken
			}
		}

		now := m.now()
		today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
		expiry := today.AddDate(m.validityYears, 0, 0)

		priorProfile := p.AuditFields()
		p.Status = models.ProfileStatusActive
		p.DateApproved = &today
		p.ExpiryDate = &expiry
		if number != "" {
			p.PWDNumber = &number
		}
		if err := m.profiles.WithTx(tx).Update(ctx, p); err != nil {
			return err
		}

		priorCase := c.AuditFields()
		m.review(c, models.CaseStatusApproved, reviewer, in.Notes, now)
		if err := m.cases.WithTx(tx).UpdateReview(ctx, c); err != nil {
			return err
		}

		changed := audit.ChangedFields(priorProfile, p.AuditFields())
		snap, err := m.ledger.SnapshotChanges(ctx, tx, p.ID, changed, nil, actorID(reviewer))
		if err != nil {
			return err
		}

		res.Case, res.Profile, res.Snapshot = c, p, snap
		changes = []change{{c, priorCase}, {p, priorProfile}}
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.recordChanges(ctx, changes)
	telemetry.RegistrationDecisionsTotal.WithLabelValues("approved").Inc()
	m.notify(ctx, res, reviewer, models.NotificationApproval, titleApproved, bodyApproved)
	return res, nil
}

// Reject moves a case to REJECTED. notes is the reason shown to the applicant
// and must not be empty. The profile is left as it is.
func (m *Machine) Reject(ctx context.Context, caseID string, reviewer *models.User, notes string) (*Result, error) {
	notes = strings.TrimSpace(notes)
	if notes == "" {
		return nil, ErrNotesRequired
	}

	res, err := m.decide(ctx, caseID, reviewer, models.CaseStatusRejected, notes)
	if err != nil {
		return nil, err
	}
	telemetry.RegistrationDecisionsTotal.WithLabelValues("rejected").Inc()
	m.notify(ctx, res, reviewer, models.NotificationRejection, titleDeclined, withSuffix(bodyDeclined, " Reason: ", notes))
	return res, nil
}

// RequestChanges moves a case to UNDER_REVIEW and asks the applicant to revise it.
func (m *Machine) RequestChanges(ctx context.Context, caseID string, reviewer *models.User, notes string) (*Result, error) {
	notes = strings.TrimSpace(notes)

	res, err := m.decide(ctx, caseID, reviewer, models.CaseStatusUnderReview, notes)
	if err != nil {
		return nil, err
	}
	telemetry.RegistrationDecisionsTotal.WithLabelValues("changes_requested").Inc()
	m.notify(ctx, res, reviewer, models.NotificationCorrectionRequest, titleChanges, withSuffix(bodyChanges, " Remarks: ", notes))
	return res, nil
}

// decide writes a review outcome that touches only the case.
func (m *Machine) decide(ctx context.Context, caseID string, reviewer *models.User, status models.CaseStatus, notes string) (*Result, error) {
	res := &Result{}
	var changes []change

	err := db.WithTx(ctx, m.db, func(tx *sqlx.Tx) error {
		c, p, err := m.load(ctx, tx, caseID)
		if err != nil {
			return err
		}

		prior := c.AuditFields()
		m.review(c, status, reviewer, notes, m.now())
		if err := m.cases.WithTx(tx).UpdateReview(ctx, c); err != nil {
			return err
		}

		res.Case, res.Profile = c, p
		changes = []change{{c, prior}}
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.recordChanges(ctx, changes)
	return res, nil
}

// load locks the case and fetches its profile, rejecting finalized cases.
func (m *Machine) load(ctx context.Context, tx *sqlx.Tx, caseID string) (*models.RegistrationCase, *models.Profile, error) {
	c, err := m.cases.WithTx(tx).GetForUpdate(ctx, caseID)
	if err != nil {
		return nil, nil, err
	}
	if c == nil {
		return nil, nil, ErrCaseNotFound
	}
	if c.Status.IsTerminal() {
		return nil, nil, ErrCaseFinalized
	}

	p, err := m.profiles.WithTx(tx).GetByIDForUpdate(ctx, c.ProfileID)
	if err != nil {
		return nil, nil, err
	}
	if p == nil {
		return nil, nil, ErrProfileNotFound
	}
	return c, p, nil
}

func (m *Machine) review(c *models.RegistrationCase, status models.CaseStatus, reviewer *models.User, notes string, at time.Time) {
	c.Status = status
	c.ReviewedBy = actorID(reviewer)
	c.ReviewedAt = &at
	if notes != "" {
		c.ReviewNotes = &notes
	} else {
		c.ReviewNotes = nil
	}
}

func (m *Machine) recordChanges(ctx context.Context, changes []change) {
	for _, ch := range changes {
		m.trail.RecordUpdate(ctx, ch.entity, ch.prior, ch.entity.AuditFields())
	}
}

// notify resolves the applicant's account and sends one notification. Failures
// are appended to res.Warnings; a profile with no linked account is skipped.
func (m *Machine) notify(ctx context.Context, res *Result, reviewer *models.User, notifType, title, body string) {
	account, err := m.resolver.ResolveAccountFor(ctx, res.Profile)
	if err != nil {
		slog.Error("failed to resolve applicant account", "profile_id", res.Profile.ID, "error", err)
		res.Warnings = append(res.Warnings, fmt.Sprintf("notification not sent: %v", err))
		return
	}
	if account == nil {
		slog.Debug("no account linked to profile; skipping notification", "profile_id", res.Profile.ID)
		return
	}

	msg := notify.Message{
		UserID:      account.ID,
		Type:        notifType,
		Title:       title,
		Body:        body,
		RelatedType: notify.RelatedPendingRegistration,
		RelatedID:   res.Case.ID,
	}
	if reviewer != nil {
		msg.ActionBy = reviewer.FullName()
	}
	if err := m.notifier.Notify(ctx, msg); err != nil {
		slog.Error("failed to send notification", "case_id", res.Case.ID, "user_id", account.ID, "error", err)
		res.Warnings = append(res.Warnings, fmt.Sprintf("notification not sent: %v", err))
	}
}

func actorID(u *models.User) *string {
	if u == nil {
		return nil
	}
	id := u.ID
	return &id
}

func withSuffix(body, label, notes string) string {
	if notes == "" {
		return body
	}
	return body + label + notes
}
