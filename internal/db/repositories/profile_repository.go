// profile_repository.go implements ProfileRepository: the masterlist profile row, its owned
// sub-records, the version counter column, and PWD number sequencing.
package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pwd-registry/pwd-registry/internal/db/models"
)

const profileColumns = `id, pwd_number, first_name, last_name, middle_name, suffix,
	date_applied, date_approved, expiry_date, status, current_version,
	remarks, accessibility_needs, service_needs, card_printed, card_printed_at,
	expiry_reminder_sent_for, created_at, updated_at, deleted_at`

// ProfileRepository handles pwd_profiles and its sub-record tables
type ProfileRepository struct {
	db DBTX
}

// NewProfileRepository creates a new ProfileRepository
func NewProfileRepository(db *sqlx.DB) *ProfileRepository {
	return &ProfileRepository{db: db}
}

// WithTx returns a copy of the repository bound to tx
func (r *ProfileRepository) WithTx(tx *sqlx.Tx) *ProfileRepository {
	return &ProfileRepository{db: tx}
}

// ProfileFilters contains filters for listing profiles
type ProfileFilters struct {
	Status     *models.ProfileStatus
	BarangayID *int
	Search     string // matches name or pwd_number
}

// Create inserts a new profile row. The ID and timestamps are filled in when empty.
func (r *ProfileRepository) Create(ctx context.Context, p *models.Profile) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	now := time.Now()
	p.CreatedAt = now
	p.UpdatedAt = now
	if p.CurrentVersion < 1 {
		p.CurrentVersion = 1
	}

	query := `
		INSERT INTO pwd_profiles (
			id, pwd_number, first_name, last_name, middle_name, suffix,
			date_applied, date_approved, expiry_date, status, current_version,
			remarks, accessibility_needs, service_needs, card_printed, card_printed_at,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`
	_, err := r.db.ExecContext(ctx, query,
		p.ID, p.PWDNumber, p.FirstName, p.LastName, p.MiddleName, p.Suffix,
		p.DateApplied, p.DateApproved, p.ExpiryDate, p.Status, p.CurrentVersion,
		p.Remarks, p.AccessibilityNeeds, p.ServiceNeeds, p.CardPrinted, p.CardPrintedAt,
		p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create profile: %w", err)
	}
	return nil
}

// GetByID retrieves a non-deleted profile by ID
func (r *ProfileRepository) GetByID(ctx context.Context, id string) (*models.Profile, error) {
	return r.getByID(ctx, id, "")
}

// GetByIDForUpdate is GetByID that also locks the profile row until the
// transaction ends. Writers read through it so their prior values and the
// version counter cannot change underneath them.
func (r *ProfileRepository) GetByIDForUpdate(ctx context.Context, id string) (*models.Profile, error) {
	return r.getByID(ctx, id, " FOR UPDATE")
}

func (r *ProfileRepository) getByID(ctx context.Context, id, lock string) (*models.Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM pwd_profiles WHERE id = $1 AND deleted_at IS NULL` + lock

	var p models.Profile
	err := r.db.GetContext(ctx, &p, query, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	return &p, nil
}

// GetByNumber retrieves a non-deleted profile by its PWD number
func (r *ProfileRepository) GetByNumber(ctx context.Context, number string) (*models.Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM pwd_profiles WHERE pwd_number = $1 AND deleted_at IS NULL`

	var p models.Profile
	err := r.db.GetContext(ctx, &p, query, number)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get profile by number: %w", err)
	}
	return &p, nil
}

// NumberTaken reports whether any profile other than excludeID holds number.
// Soft-deleted profiles still hold their number because the column is UNIQUE.
func (r *ProfileRepository) NumberTaken(ctx context.Context, number, excludeID string) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists,
		`SELECT EXISTS(SELECT 1 FROM pwd_profiles WHERE pwd_number = $1 AND id <> $2)`,
		number, excludeID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to check pwd number: %w", err)
	}
	return exists, nil
}

// Update writes every editable profile column. current_version is not touched.
func (r *ProfileRepository) Update(ctx context.Context, p *models.Profile) error {
	p.UpdatedAt = time.Now()

	query := `
		UPDATE pwd_profiles SET
			pwd_number = $2, first_name = $3, last_name = $4, middle_name = $5, suffix = $6,
			date_applied = $7, date_approved = $8, expiry_date = $9, status = $10,
			remarks = $11, accessibility_needs = $12, service_needs = $13,
			card_printed = $14, card_printed_at = $15, updated_at = $16
		WHERE id = $1
	`
	_, err := r.db.ExecContext(ctx, query,
		p.ID, p.PWDNumber, p.FirstName, p.LastName, p.MiddleName, p.Suffix,
		p.DateApplied, p.DateApproved, p.ExpiryDate, p.Status,
		p.Remarks, p.AccessibilityNeeds, p.ServiceNeeds,
		p.CardPrinted, p.CardPrintedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update profile: %w", err)
	}
	return nil
}

// LockVersion locks the profile row for the rest of the transaction and returns
// its current version. Returns sql.ErrNoRows when the profile does not exist.
func (r *ProfileRepository) LockVersion(ctx context.Context, id string) (int, error) {
	var version int
	err := r.db.GetContext(ctx, &version,
		`SELECT current_version FROM pwd_profiles WHERE id = $1 FOR UPDATE`, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return 0, err
		}
		return 0, fmt.Errorf("failed to lock profile version: %w", err)
	}
	return version, nil
}

// SetCurrentVersion writes the version counter column directly
func (r *ProfileRepository) SetCurrentVersion(ctx context.Context, id string, version int) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE pwd_profiles SET current_version = $2 WHERE id = $1`, id, version)
	if err != nil {
		return fmt.Errorf("failed to set current version: %w", err)
	}
	return nil
}

// SoftDelete marks a profile deleted
func (r *ProfileRepository) SoftDelete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE pwd_profiles SET deleted_at = NOW(), updated_at = NOW() WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return fmt.Errorf("failed to delete profile: %w", err)
	}
	return nil
}

// ForceDelete removes the profile row; sub-records and cases cascade
func (r *ProfileRepository) ForceDelete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM pwd_profiles WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to force delete profile: %w", err)
	}
	return nil
}

// List retrieves profiles with optional filters and pagination
func (r *ProfileRepository) List(ctx context.Context, filters ProfileFilters, limit, offset int) ([]*models.Profile, int, error) {
	where := ` WHERE p.deleted_at IS NULL`
	args := make([]interface{}, 0)
	paramIndex := 1

	if filters.Status != nil {
		where += fmt.Sprintf(` AND p.status = $%d`, paramIndex)
		args = append(args, *filters.Status)
		paramIndex++
	}
	if filters.BarangayID != nil {
		where += fmt.Sprintf(` AND EXISTS (SELECT 1 FROM pwd_addresses a WHERE a.pwd_profile_id = p.id AND a.barangay_id = $%d)`, paramIndex)
		args = append(args, *filters.BarangayID)
		paramIndex++
	}
	if s := strings.TrimSpace(filters.Search); s != "" {
		where += fmt.Sprintf(` AND (p.first_name ILIKE $%d OR p.last_name ILIKE $%d OR p.pwd_number ILIKE $%d)`,
			paramIndex, paramIndex, paramIndex)
		args = append(args, "%"+s+"%")
		paramIndex++
	}

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM pwd_profiles p`+where, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count profiles: %w", err)
	}

	query := `SELECT ` + prefixColumns("p", profileColumns) + ` FROM pwd_profiles p` + where +
		fmt.Sprintf(` ORDER BY p.last_name, p.first_name LIMIT $%d OFFSET $%d`, paramIndex, paramIndex+1)
	args = append(args, limit, offset)

	profiles := make([]*models.Profile, 0)
	if err := r.db.SelectContext(ctx, &profiles, query, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to list profiles: %w", err)
	}
	return profiles, total, nil
}

// ListExpiring returns ACTIVE profiles whose ID expires within [from, to] and
// that have not yet been reminded for that expiry date.
func (r *ProfileRepository) ListExpiring(ctx context.Context, from, to time.Time) ([]*models.Profile, error) {
	query := `SELECT ` + profileColumns + `
		FROM pwd_profiles
		WHERE deleted_at IS NULL
		  AND status = 'ACTIVE'
		  AND expiry_date BETWEEN $1 AND $2
		  AND (expiry_reminder_sent_for IS NULL OR expiry_reminder_sent_for <> expiry_date)
		ORDER BY expiry_date`

	profiles := make([]*models.Profile, 0)
	if err := r.db.SelectContext(ctx, &profiles, query, from, to); err != nil {
		return nil, fmt.Errorf("failed to list expiring profiles: %w", err)
	}
	return profiles, nil
}

// MarkReminderSent records that the reminder for the given expiry date went out
func (r *ProfileRepository) MarkReminderSent(ctx context.Context, id string, expiry time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE pwd_profiles SET expiry_reminder_sent_for = $2 WHERE id = $1`, id, expiry)
	if err != nil {
		return fmt.Errorf("failed to mark expiry reminder: %w", err)
	}
	return nil
}

// ContactEmail returns the profile's contact email, or "" when none is on file
func (r *ProfileRepository) ContactEmail(ctx context.Context, id string) (string, error) {
	var email sql.NullString
	err := r.db.GetContext(ctx, &email,
		`SELECT email FROM pwd_contacts WHERE pwd_profile_id = $1 LIMIT 1`, id)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get contact email: %w", err)
	}
	return strings.TrimSpace(email.String), nil
}

// LockNumberSequence takes a transaction-scoped advisory lock serialising PWD
// number generation for a year.
func (r *ProfileRepository) LockNumberSequence(ctx context.Context, year int) error {
	if _, err := r.db.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, numberLockKey+int64(year)); err != nil {
		return fmt.Errorf("failed to lock number sequence: %w", err)
	}
	return nil
}

// numberLockKey namespaces the advisory lock ids used for number sequencing.
const numberLockKey int64 = 0x5057_4400_0000

// MaxSequenceForYear returns the highest 4-digit sequence among numbers of the
// form XX-XX-YY-SSSS for the given 2-digit year, or 0 when none exist.
func (r *ProfileRepository) MaxSequenceForYear(ctx context.Context, yy string) (int, error) {
	var maxSeq int
	err := r.db.GetContext(ctx, &maxSeq, `
		SELECT COALESCE(MAX(CAST(RIGHT(pwd_number, 4) AS INTEGER)), 0)
		FROM pwd_profiles
		WHERE pwd_number ~ ('^[^-]+-[^-]+-' || $1 || '-[0-9]{4}$')`, yy)
	if err != nil {
		return 0, fmt.Errorf("failed to read number sequence: %w", err)
	}
	return maxSeq, nil
}

// LoadRecord loads a non-deleted profile and every sub-record it owns.
// Returns nil, nil when the profile does not exist.
func (r *ProfileRepository) LoadRecord(ctx context.Context, id string) (*models.ProfileRecord, error) {
	p, err := r.GetByID(ctx, id)
	if err != nil || p == nil {
		return nil, err
	}
	return r.loadSubRecords(ctx, p)
}

// LoadRecordForUpdate is LoadRecord with the profile row locked for the rest of
// the transaction.
func (r *ProfileRepository) LoadRecordForUpdate(ctx context.Context, id string) (*models.ProfileRecord, error) {
	p, err := r.GetByIDForUpdate(ctx, id)
	if err != nil || p == nil {
		return nil, err
	}
	return r.loadSubRecords(ctx, p)
}

func (r *ProfileRepository) loadSubRecords(ctx context.Context, p *models.Profile) (*models.ProfileRecord, error) {
	id := p.ID
	var err error
	rec := &models.ProfileRecord{Profile: *p}

	if rec.PersonalInfo, err = getOne[models.PersonalInfo](ctx, r.db,
		`SELECT id, pwd_profile_id, birth_date, birth_place, sex, religion, ethnic_group, civil_status, blood_type
		 FROM pwd_personal_info WHERE pwd_profile_id = $1`, id); err != nil {
		return nil, fmt.Errorf("failed to load personal info: %w", err)
	}
	if rec.Address, err = getOne[models.Address](ctx, r.db,
		`SELECT id, pwd_profile_id, house_street, barangay_id, city, province, region
		 FROM pwd_addresses WHERE pwd_profile_id = $1`, id); err != nil {
		return nil, fmt.Errorf("failed to load address: %w", err)
	}
	if rec.Contact, err = getOne[models.Contact](ctx, r.db,
		`SELECT id, pwd_profile_id, mobile, landline, email, guardian_contact
		 FROM pwd_contacts WHERE pwd_profile_id = $1`, id); err != nil {
		return nil, fmt.Errorf("failed to load contact: %w", err)
	}
	if err = r.db.SelectContext(ctx, &rec.Disabilities,
		`SELECT id, pwd_profile_id, disability_type_id, cause, cause_details, is_primary
		 FROM pwd_disabilities WHERE pwd_profile_id = $1 ORDER BY is_primary DESC, id`, id); err != nil {
		return nil, fmt.Errorf("failed to load disabilities: %w", err)
	}
	if rec.Employment, err = getOne[models.Employment](ctx, r.db,
		`SELECT id, pwd_profile_id, status, category, type, occupation
		 FROM pwd_employment WHERE pwd_profile_id = $1`, id); err != nil {
		return nil, fmt.Errorf("failed to load employment: %w", err)
	}
	if rec.Education, err = getOne[models.Education](ctx, r.db,
		`SELECT id, pwd_profile_id, attainment FROM pwd_education WHERE pwd_profile_id = $1`, id); err != nil {
		return nil, fmt.Errorf("failed to load education: %w", err)
	}
	if err = r.db.SelectContext(ctx, &rec.FamilyMembers,
		`SELECT id, pwd_profile_id, relation_type, first_name, last_name, middle_name, age
		 FROM pwd_family WHERE pwd_profile_id = $1 ORDER BY relation_type, id`, id); err != nil {
		return nil, fmt.Errorf("failed to load family members: %w", err)
	}
	if err = r.db.SelectContext(ctx, &rec.GovernmentIDs,
		`SELECT id, pwd_profile_id, id_type, id_number
		 FROM pwd_government_ids WHERE pwd_profile_id = $1 ORDER BY id_type, id`, id); err != nil {
		return nil, fmt.Errorf("failed to load government ids: %w", err)
	}
	if rec.HouseholdInfo, err = getOne[models.HouseholdInfo](ctx, r.db,
		`SELECT id, pwd_profile_id, living_arrangement, receiving_support, is_pensioner, pension_type,
		        monthly_pension, income_source, monthly_income
		 FROM pwd_household_info WHERE pwd_profile_id = $1`, id); err != nil {
		return nil, fmt.Errorf("failed to load household info: %w", err)
	}
	if rec.Organization, err = getOne[models.OrganizationAffiliation](ctx, r.db,
		`SELECT id, pwd_profile_id, organization_name, contact_person, address, telephone
		 FROM pwd_organizations WHERE pwd_profile_id = $1`, id); err != nil {
		return nil, fmt.Errorf("failed to load organization: %w", err)
	}

	// Empty collections serialise as [] rather than null in snapshots
	if rec.Disabilities == nil {
		rec.Disabilities = []models.Disability{}
	}
	if rec.FamilyMembers == nil {
		rec.FamilyMembers = []models.FamilyMember{}
	}
	if rec.GovernmentIDs == nil {
		rec.GovernmentIDs = []models.GovernmentID{}
	}

	return rec, nil
}

// SubRecordTables lists every table owned by a profile, in delete order.
var SubRecordTables = []string{
	"pwd_personal_info",
	"pwd_addresses",
	"pwd_contacts",
	"pwd_disabilities",
	"pwd_employment",
	"pwd_education",
	"pwd_family",
	"pwd_government_ids",
	"pwd_household_info",
	"pwd_organizations",
}

// ReplaceSubRecords deletes every sub-record of rec.ID and inserts the ones in
// rec with fresh IDs. Intended to run inside a transaction.
func (r *ProfileRepository) ReplaceSubRecords(ctx context.Context, rec *models.ProfileRecord) error {
	id := rec.ID
	for _, table := range SubRecordTables {
		if _, err := r.db.ExecContext(ctx, `DELETE FROM `+table+` WHERE pwd_profile_id = $1`, id); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	if pi := rec.PersonalInfo; pi != nil {
		pi.ID, pi.ProfileID = uuid.New().String(), id
		if _, err := r.db.ExecContext(ctx, `
			INSERT INTO pwd_personal_info (id, pwd_profile_id, birth_date, birth_place, sex, religion, ethnic_group, civil_status, blood_type)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			pi.ID, id, pi.BirthDate, pi.BirthPlace, pi.Sex, pi.Religion, pi.EthnicGroup, pi.CivilStatus, pi.BloodType); err != nil {
			return fmt.Errorf("failed to insert personal info: %w", err)
		}
	}
	if a := rec.Address; a != nil {
		a.ID, a.ProfileID = uuid.New().String(), id
		if _, err := r.db.ExecContext(ctx, `
			INSERT INTO pwd_addresses (id, pwd_profile_id, house_street, barangay_id, city, province, region)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			a.ID, id, a.HouseStreet, a.BarangayID, a.City, a.Province, a.Region); err != nil {
			return fmt.Errorf("failed to insert address: %w", err)
		}
	}
	if c := rec.Contact; c != nil {
		c.ID, c.ProfileID = uuid.New().String(), id
		if _, err := r.db.ExecContext(ctx, `
			INSERT INTO pwd_contacts (id, pwd_profile_id, mobile, landline, email, guardian_contact)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			c.ID, id, c.Mobile, c.Landline, c.Email, c.GuardianContact); err != nil {
			return fmt.Errorf("failed to insert contact: %w", err)
		}
	}
	for i := range rec.Disabilities {
		d := &rec.Disabilities[i]
		d.ID, d.ProfileID = uuid.New().String(), id
		if _, err := r.db.ExecContext(ctx, `
			INSERT INTO pwd_disabilities (id, pwd_profile_id, disability_type_id, cause, cause_details, is_primary)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			d.ID, id, d.DisabilityTypeID, d.Cause, d.CauseDetails, d.IsPrimary); err != nil {
			return fmt.Errorf("failed to insert disability: %w", err)
		}
	}
	if e := rec.Employment; e != nil {
		e.ID, e.ProfileID = uuid.New().String(), id
		if _, err := r.db.ExecContext(ctx, `
			INSERT INTO pwd_employment (id, pwd_profile_id, status, category, type, occupation)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			e.ID, id, e.Status, e.Category, e.Type, e.Occupation); err != nil {
			return fmt.Errorf("failed to insert employment: %w", err)
		}
	}
	if e := rec.Education; e != nil {
		e.ID, e.ProfileID = uuid.New().String(), id
		if _, err := r.db.ExecContext(ctx, `
			INSERT INTO pwd_education (id, pwd_profile_id, attainment) VALUES ($1, $2, $3)`,
			e.ID, id, e.Attainment); err != nil {
			return fmt.Errorf("failed to insert education: %w", err)
		}
	}
	for i := range rec.FamilyMembers {
		f := &rec.FamilyMembers[i]
		f.ID, f.ProfileID = uuid.New().String(), id
		if _, err := r.db.ExecContext(ctx, `
			INSERT INTO pwd_family (id, pwd_profile_id, relation_type, first_name, last_name, middle_name, age)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			f.ID, id, f.RelationType, f.FirstName, f.LastName, f.MiddleName, f.Age); err != nil {
			return fmt.Errorf("failed to insert family member: %w", err)
		}
	}
	for i := range rec.GovernmentIDs {
		g := &rec.GovernmentIDs[i]
		g.ID, g.ProfileID = uuid.New().String(), id
		if _, err := r.db.ExecContext(ctx, `
			INSERT INTO pwd_government_ids (id, pwd_profile_id, id_type, id_number) VALUES ($1, $2, $3, $4)`,
			g.ID, id, g.IDType, g.IDNumber); err != nil {
			return fmt.Errorf("failed to insert government id: %w", err)
		}
	}
	if h := rec.HouseholdInfo; h != nil {
		h.ID, h.ProfileID = uuid.New().String(), id
		if _, err := r.db.ExecContext(ctx, `
			INSERT INTO pwd_household_info (id, pwd_profile_id, living_arrangement, receiving_support, is_pensioner,
				pension_type, monthly_pension, income_source, monthly_income)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			h.ID, id, h.LivingArrangement, h.ReceivingSupport, h.IsPensioner,
			h.PensionType, h.MonthlyPension, h.IncomeSource, h.MonthlyIncome); err != nil {
			return fmt.Errorf("failed to insert household info: %w", err)
		}
	}
	if o := rec.Organization; o != nil {
		o.ID, o.ProfileID = uuid.New().String(), id
		if _, err := r.db.ExecContext(ctx, `
			INSERT INTO pwd_organizations (id, pwd_profile_id, organization_name, contact_person, address, telephone)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			o.ID, id, o.OrganizationName, o.ContactPerson, o.Address, o.Telephone); err != nil {
			return fmt.Errorf("failed to insert organization: %w", err)
		}
	}
	return nil
}

// getOne runs a single-row query, mapping sql.ErrNoRows to nil.
func getOne[T any](ctx context.Context, q DBTX, query string, args ...interface{}) (*T, error) {
	var v T
	err := q.GetContext(ctx, &v, query, args...)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// prefixColumns qualifies a comma-separated column list with a table alias.
func prefixColumns(alias, cols string) string {
	parts := strings.Split(cols, ",")
	for i, c := range parts {
		parts[i] = alias + "." + strings.TrimSpace(c)
	}
	return strings.Join(parts, ", ")
}
