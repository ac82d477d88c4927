// Package profiles implements masterlist editing: creating and updating PWD profiles,
// status changes, card printing, PWD number generation, deletion and version restore.
// Each operation persists its change, records version history and the activity log,
// then notifies the member's account.
package profiles

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
	"github.com/pwd-registry/pwd-registry/internal/versioning"
)

var (
	// ErrNotFound is returned when the profile does not exist or is deleted
	ErrNotFound = errors.New("profile not found")
	// ErrInvalidInput wraps field validation failures
	ErrInvalidInput = errors.New("invalid profile")
	// ErrInvalidStatus is returned for an unknown profile status
	ErrInvalidStatus = errors.New("invalid status")
	// ErrNumberTaken is returned when a PWD number belongs to another profile
	ErrNumberTaken = errors.New("this PWD number is already assigned to another profile")
	// ErrNumberAlreadyAssigned is returned when generating a number for a profile that has one
	ErrNumberAlreadyAssigned = errors.New("this profile already has a PWD number")
)

// Options configures a Service
type Options struct {
	ValidityYears int
	Defaults      versioning.AddressDefaults
}

// Service edits PWD profiles
type Service struct {
	db       *sqlx.DB
	profiles *repositories.ProfileRepository
	cases    *repositories.CaseRepository
	lookups  *repositories.LookupRepository
	ledger   *versioning.Ledger
	trail    *audit.Trail
	resolver *identity.Resolver
	notifier *notify.Notifier
	opts     Options
	now      func() time.Time
}

// NewService creates a Service
func NewService(database *sqlx.DB, ledger *versioning.Ledger, trail *audit.Trail, resolver *identity.Resolver, notifier *notify.Notifier, opts Options) *Service {
	if opts.ValidityYears < 1 {
		opts.ValidityYears = 5
	}
	return &Service{
		db:       database,
		profiles: repositories.NewProfileRepository(database),
		cases:    repositories.NewCaseRepository(database),
		lookups:  repositories.NewLookupRepository(database),
		ledger:   ledger,
		trail:    trail,
		resolver: resolver,
		notifier: notifier,
		opts:     opts,
		now:      time.Now,
	}
}

// Result is the outcome of a profile operation
type Result struct {
	Record   *models.ProfileRecord    `json:"profile"`
	Case     *models.RegistrationCase `json:"registration,omitempty"`
	Snapshot *models.VersionSnapshot  `json:"version,omitempty"`
	Message  string                   `json:"message,omitempty"`
	Warnings []string                 `json:"warnings,omitempty"`
}

// Get returns the full record of a profile
func (s *Service) Get(ctx context.Context, id string) (*models.ProfileRecord, error) {
	rec, err := s.profiles.LoadRecord(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, ErrNotFound
	}
	return rec, nil
}

// List returns profiles matching filters
func (s *Service) List(ctx context.Context, filters repositories.ProfileFilters, limit, offset int) ([]*models.Profile, int, error) {
	return s.profiles.List(ctx, filters, limit, offset)
}

// CreateInput is a new profile submission
type CreateInput struct {
	Record         models.ProfileRecord
	RequiresReview bool
	SubmissionType models.SubmissionType
}

// Create registers a new profile. Office staff create ACTIVE profiles unless
// RequiresReview is set; any other account submits a PENDING profile with a
// registration case linked to it. Version 1 is written with the profile.
func (s *Service) Create(ctx context.Context, actor *models.User, in CreateInput) (*Result, error) {
	rec := in.Record
	if err := s.validate(&rec); err != nil {
		return nil, err
	}

	staff := actor != nil && actor.Role.IsStaff()
	review := !staff || in.RequiresReview
	now := s.now()
	today := dateOf(now)

	rec.ID = ""
	rec.PWDNumber = blankToNil(rec.PWDNumber)
	rec.CardPrinted, rec.CardPrintedAt = false, nil
	rec.CurrentVersion = 0
	if rec.DateApplied == nil {
		rec.DateApplied = &today
	}
	if review {
		rec.Status = models.ProfileStatusPending
	} else {
		rec.Status = models.ProfileStatusActive
		if rec.DateApproved == nil {
			rec.DateApproved = &today
		}
		if rec.ExpiryDate == nil {
			expiry := rec.DateApproved.AddDate(s.opts.ValidityYears, 0, 0)
			rec.ExpiryDate = &expiry
		}
	}

	res := &Result{}
	err := db.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		profiles := s.profiles.WithTx(tx)

		if rec.HasNumber() {
			taken, err := profiles.NumberTaken(ctx, *rec.PWDNumber, "")
			if err != nil {
				return err
			}
			if taken {
				return ErrNumberTaken
			}
		}

		if err := profiles.Create(ctx, &rec.Profile); err != nil {
			return err
		}
		if err := profiles.ReplaceSubRecords(ctx, &rec); err != nil {
			return err
		}

		if review {
			c := &models.RegistrationCase{ProfileID: rec.ID, SubmissionType: in.SubmissionType}
			if !c.SubmissionType.Valid() {
				c.SubmissionType = models.SubmissionNew
			}
			if !staff && actor != nil {
				c.UserID = &actor.ID
			}
			if err := s.cases.WithTx(tx).Create(ctx, c); err != nil {
				return err
			}
			res.Case = c
		}

		snap, err := s.ledger.SnapshotInitial(ctx, tx, rec.ID, actorID(actor))
		if err != nil {
			return err
		}
		res.Snapshot = snap
		return nil
	})
	if err != nil {
		return nil, err
	}

	rec.CurrentVersion = 1
	res.Record = &rec
	s.trail.RecordCreate(ctx, &rec.Profile)
	if res.Case != nil {
		s.trail.RecordCreate(ctx, res.Case)
	}
	return res, nil
}

// Update replaces the editable columns and every sub-record of a profile. One
// version is written when a trigger field or trigger relation changed, and the
// activity log records the column diff.
func (s *Service) Update(ctx context.Context, actor *models.User, id string, in models.ProfileRecord) (*Result, error) {
	if err := s.validate(&in); err != nil {
		return nil, err
	}
	if in.Status != "" && !in.Status.Valid() {
		return nil, ErrInvalidStatus
	}

	res := &Result{}
	var prior map[string]any
	var profile *models.Profile

	err := db.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		profiles := s.profiles.WithTx(tx)

		before, err := profiles.LoadRecordForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if before == nil {
			return ErrNotFound
		}
		prior = before.AuditFields()

		after := in
		after.Profile = before.Profile
		applyEditable(&after.Profile, &in.Profile)

		if after.HasNumber() && !sameNumber(before.PWDNumber, after.PWDNumber) {
			taken, err := profiles.NumberTaken(ctx, *after.PWDNumber, id)
			if err != nil {
				return err
			}
			if taken {
				return ErrNumberTaken
			}
		}

		if err := profiles.Update(ctx, &after.Profile); err != nil {
			return err
		}
		if err := profiles.ReplaceSubRecords(ctx, &after); err != nil {
			return err
		}

		fields := audit.ChangedFields(prior, after.AuditFields())
		relations := ChangedRelations(before, &after)
		snap, err := s.ledger.SnapshotChanges(ctx, tx, id, fields, relations, actorID(actor))
		if err != nil {
			return err
		}
		if snap != nil {
			after.CurrentVersion = snap.VersionNumber
		}

		res.Record, res.Snapshot = &after, snap
		profile = &after.Profile
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.trail.RecordUpdate(ctx, profile, prior, profile.AuditFields())
	return res, nil
}

// UpdateStatus changes a profile's status and notifies the member. Setting the
// current status again writes nothing and returns a message.
func (s *Service) UpdateStatus(ctx context.Context, actor *models.User, id string, status models.ProfileStatus) (*Result, error) {
	if !status.Valid() {
		return nil, ErrInvalidStatus
	}

	current, err := s.profiles.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, ErrNotFound
	}
	if current.Status == status {
		return &Result{
			Record:  &models.ProfileRecord{Profile: *current},
			Message: fmt.Sprintf("Status is already %s", status),
		}, nil
	}

	from := current.Status
	res, err := s.mutate(ctx, actor, id, func(p *models.Profile) (string, error) {
		p.Status = status
		return fmt.Sprintf("Status changed from %s to %s", from, status), nil
	})
	if err != nil {
		return nil, err
	}

	msg := notify.Message{RelatedType: notify.RelatedProfile, RelatedID: id}
	switch status {
	case models.ProfileStatusActive:
		msg.Type, msg.Title = models.NotificationApproval, "Account Activated"
		msg.Body = "Your PWD account has been activated. You may now use your PWD ID and avail of its benefits."
	case models.ProfileStatusInactive:
		msg.Type, msg.Title = models.NotificationWarning, "Account Deactivated"
		msg.Body = "Your PWD account has been deactivated. Please visit the PDAO office for assistance."
	default:
		msg.Type, msg.Title = models.NotificationUpdate, "Profile Status Updated"
		msg.Body = fmt.Sprintf("Your PWD profile status has been updated to %s.", status)
	}
	s.notify(ctx, res, actor, msg)
	return res, nil
}

// MarkPrinted flags the profile's ID card as printed and tells the member it is ready.
func (s *Service) MarkPrinted(ctx context.Context, actor *models.User, id string) (*Result, error) {
	res, err := s.mutate(ctx, actor, id, func(p *models.Profile) (string, error) {
		now := s.now()
		p.CardPrinted = true
		p.CardPrintedAt = &now
		return "PWD ID card marked as printed by admin", nil
	})
	if err != nil {
		return nil, err
	}

	s.notify(ctx, res, actor, notify.Message{
		Type:        models.NotificationCardReady,
		Title:       "Your PWD ID Card is Ready!",
		Body:        "Your PWD ID card has been printed and is ready for claiming at the PDAO office.",
		RelatedType: notify.RelatedProfile,
		RelatedID:   id,
	})
	return res, nil
}

// GenerateNumber assigns the next PWD number of the current year. Generation is
// serialised per year by a transaction-scoped advisory lock.
func (s *Service) GenerateNumber(ctx context.Context, actor *models.User, id string) (*Result, error) {
	year := s.now().Year()
	return s.mutate(ctx, actor, id, func(p *models.Profile) (string, error) {
		if p.HasNumber() {
			return "", ErrNumberAlreadyAssigned
		}
		return "", nil
	}, withTxStep(func(ctx context.Context, tx *sqlx.Tx, rec *models.ProfileRecord) (string, error) {
		profiles := s.profiles.WithTx(tx)
		if err := profiles.LockNumberSequence(ctx, year); err != nil {
			return "", err
		}

		bb, dd, err := s.codesFor(ctx, tx, rec)
		if err != nil {
			return "", err
		}
		yy := fmt.Sprintf("%02d", year%100)
		seq, err := profiles.MaxSequenceForYear(ctx, yy)
		if err != nil {
			return "", err
		}

		number := FormatNumber(bb, dd, year, seq+1)
		rec.PWDNumber = &number
		return "PWD Number assigned: " + number, nil
	}))
}

func (s *Service) codesFor(ctx context.Context, tx *sqlx.Tx, rec *models.ProfileRecord) (string, string, error) {
	lookups := s.lookups.WithTx(tx)
	var bb, dd string
	if rec.Address != nil && rec.Address.BarangayID != nil {
		b, err := lookups.GetBarangay(ctx, *rec.Address.BarangayID)
		if err != nil {
			return "", "", err
		}
		if b != nil {
			bb = b.Code
		}
	}
	if d := rec.PrimaryDisability(); d != nil {
		t, err := lookups.GetDisabilityType(ctx, d.DisabilityTypeID)
		if err != nil {
			return "", "", err
		}
		if t != nil {
			dd = t.Code
		}
	}
	return bb, dd, nil
}

// Delete removes a profile. The member is told before the record goes. A
// permanent delete also removes every sub-record and registration case.
func (s *Service) Delete(ctx context.Context, actor *models.User, id string, permanent bool) (*Result, error) {
	p, err := s.profiles.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, ErrNotFound
	}

	res := &Result{Record: &models.ProfileRecord{Profile: *p}}
	s.notify(ctx, res, actor, notify.Message{
		Type:        models.NotificationRejection,
		Title:       "Account Record Deleted",
		Body:        "Your PWD record has been removed from the masterlist. Please visit the PDAO office if you believe this is a mistake.",
		RelatedType: notify.RelatedProfile,
		RelatedID:   id,
	})

	if permanent {
		err = s.profiles.ForceDelete(ctx, id)
	} else {
		err = s.profiles.SoftDelete(ctx, id)
	}
	if err != nil {
		return nil, err
	}

	s.trail.RecordDelete(ctx, p, p.AuditFields(), permanent)
	return res, nil
}

// RestoreVersion rewrites a profile from one of its versions and notifies the member.
func (s *Service) RestoreVersion(ctx context.Context, actor *models.User, id string, version int) (*Result, error) {
	out, err := s.ledger.Restore(ctx, id, version, actorID(actor))
	if errors.Is(err, versioning.ErrProfileNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	s.trail.RecordUpdate(ctx, &out.After.Profile, out.Before.AuditFields(), out.After.AuditFields())

	res := &Result{Record: out.After, Snapshot: out.Snapshot}
	s.notify(ctx, res, actor, notify.Message{
		Type:        models.NotificationUpdate,
		Title:       "Profile Restored",
		Body:        fmt.Sprintf("Your PWD profile has been restored to an earlier version (Version %d) by the administrator.", version),
		RelatedType: notify.RelatedProfile,
		RelatedID:   id,
	})
	return res, nil
}

// txStep runs extra work inside a mutate transaction and may return a summary.
type txStep func(ctx context.Context, tx *sqlx.Tx, rec *models.ProfileRecord) (string, error)

type mutateOption func(*[]txStep)

func withTxStep(step txStep) mutateOption {
	return func(steps *[]txStep) { *steps = append(*steps, step) }
}

// mutate applies fn to a profile's columns inside a transaction, writes it, and
// appends a snapshot whose summary is the last non-empty one returned.
func (s *Service) mutate(ctx context.Context, actor *models.User, id string, fn func(*models.Profile) (string, error), opts ...mutateOption) (*Result, error) {
	var steps []txStep
	for _, o := range opts {
		o(&steps)
	}

	res := &Result{}
	var prior map[string]any

	err := db.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		profiles := s.profiles.WithTx(tx)

		rec, err := profiles.LoadRecordForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if rec == nil {
			return ErrNotFound
		}
		prior = rec.AuditFields()

		summary, err := fn(&rec.Profile)
		if err != nil {
			return err
		}
		for _, step := range steps {
			sum, err := step(ctx, tx, rec)
			if err != nil {
				return err
			}
			if sum != "" {
				summary = sum
			}
		}

		if err := profiles.Update(ctx, &rec.Profile); err != nil {
			return err
		}
		snap, err := s.ledger.Snapshot(ctx, tx, id, summary, actorID(actor))
		if err != nil {
			return err
		}
		rec.CurrentVersion = snap.VersionNumber

		res.Record, res.Snapshot = rec, snap
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.trail.RecordUpdate(ctx, &res.Record.Profile, prior, res.Record.AuditFields())
	return res, nil
}

// notify sends msg to the profile's linked account; failures become warnings.
func (s *Service) notify(ctx context.Context, res *Result, actor *models.User, msg notify.Message) {
	account, err := s.resolver.ResolveAccountFor(ctx, &res.Record.Profile)
	if err != nil {
		slog.Error("failed to resolve member account", "profile_id", res.Record.ID, "error", err)
		res.Warnings = append(res.Warnings, fmt.Sprintf("notification not sent: %v", err))
		return
	}
	if account == nil {
		return
	}

	msg.UserID = account.ID
	if actor != nil {
		msg.ActionBy = actor.FullName()
	}
	if err := s.notifier.Notify(ctx, msg); err != nil {
		slog.Error("failed to send notification", "profile_id", res.Record.ID, "user_id", account.ID, "error", err)
		res.Warnings = append(res.Warnings, fmt.Sprintf("notification not sent: %v", err))
	}
}

// validate checks required fields and fills address defaults.
func (s *Service) validate(rec *models.ProfileRecord) error {
	rec.FirstName = strings.TrimSpace(rec.FirstName)
	rec.LastName = strings.TrimSpace(rec.LastName)
	if rec.FirstName == "" || rec.LastName == "" {
		return fmt.Errorf("%w: first and last name are required", ErrInvalidInput)
	}
	if len(rec.Disabilities) == 0 {
		return fmt.Errorf("%w: at least one disability is required", ErrInvalidInput)
	}

	primary := 0
	for _, d := range rec.Disabilities {
		if d.DisabilityTypeID <= 0 {
			return fmt.Errorf("%w: disability type is required", ErrInvalidInput)
		}
		if d.IsPrimary {
			primary++
		}
	}
	if primary > 1 {
		return fmt.Errorf("%w: only one disability can be primary", ErrInvalidInput)
	}
	if primary == 0 {
		rec.Disabilities[0].IsPrimary = true
	}

	if a := rec.Address; a != nil {
		if a.City == "" {
			a.City = s.opts.Defaults.City
		}
		if a.Province == "" {
			a.Province = s.opts.Defaults.Province
		}
		if a.Region == "" {
			a.Region = s.opts.Defaults.Region
		}
	}
	return nil
}

// applyEditable copies user-editable columns from src onto dst.
func applyEditable(dst, src *models.Profile) {
	dst.FirstName = src.FirstName
	dst.LastName = src.LastName
	dst.MiddleName = src.MiddleName
	dst.Suffix = src.Suffix
	dst.DateApplied = src.DateApplied
	dst.DateApproved = src.DateApproved
	dst.ExpiryDate = src.ExpiryDate
	dst.Remarks = src.Remarks
	dst.AccessibilityNeeds = src.AccessibilityNeeds
	dst.ServiceNeeds = src.ServiceNeeds
	if src.Status != "" {
		dst.Status = src.Status
	}
	if n := blankToNil(src.PWDNumber); n != nil {
		dst.PWDNumber = n
	}
}

func sameNumber(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func blankToNil(s *string) *string {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil
	}
	v := strings.TrimSpace(*s)
	return &v
}

func dateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func actorID(u *models.User) *string {
	if u == nil {
		return nil
	}
	id := u.ID
	return &id
}
