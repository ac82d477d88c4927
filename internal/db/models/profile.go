// Package models - profile.go defines the PWD profile (the masterlist record) and its
// owned sub-records, plus the ProfileRecord aggregate that version snapshots serialise.
package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ProfileStatus is the lifecycle status of a masterlist record
type ProfileStatus string

const (
	ProfileStatusActive      ProfileStatus = "ACTIVE"
	ProfileStatusInactive    ProfileStatus = "INACTIVE"
	ProfileStatusDeceased    ProfileStatus = "DECEASED"
	ProfileStatusPending     ProfileStatus = "PENDING"
	ProfileStatusUnderReview ProfileStatus = "UNDER_REVIEW"
)

// Valid reports whether s is one of the known profile statuses.
func (s ProfileStatus) Valid() bool {
	switch s {
	case ProfileStatusActive, ProfileStatusInactive, ProfileStatusDeceased,
		ProfileStatusPending, ProfileStatusUnderReview:
		return true
	}
	return false
}

// Profile is a row of pwd_profiles
type Profile struct {
	ID                 string        `db:"id" json:"id"`
	PWDNumber          *string       `db:"pwd_number" json:"pwd_number"`
	FirstName          string        `db:"first_name" json:"first_name"`
	LastName           string        `db:"last_name" json:"last_name"`
	MiddleName         *string       `db:"middle_name" json:"middle_name"`
	Suffix             *string       `db:"suffix" json:"suffix"`
	DateApplied        *time.Time    `db:"date_applied" json:"date_applied"`
	DateApproved       *time.Time    `db:"date_approved" json:"date_approved"`
	ExpiryDate         *time.Time    `db:"expiry_date" json:"expiry_date"`
	Status             ProfileStatus `db:"status" json:"status"`
	CurrentVersion     int           `db:"current_version" json:"current_version"`
	Remarks            *string       `db:"remarks" json:"remarks"`
	AccessibilityNeeds *string       `db:"accessibility_needs" json:"accessibility_needs"`
	ServiceNeeds       *string       `db:"service_needs" json:"service_needs"`
	CardPrinted        bool          `db:"card_printed" json:"card_printed"`
	CardPrintedAt      *time.Time    `db:"card_printed_at" json:"card_printed_at"`

	// ExpiryReminderSentFor holds the expiry date a reminder was last sent for
	ExpiryReminderSentFor *time.Time `db:"expiry_reminder_sent_for" json:"-"`

	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt time.Time  `db:"updated_at" json:"updated_at"`
	DeletedAt *time.Time `db:"deleted_at" json:"deleted_at,omitempty"`
}

// FullName returns "First Middle Last Suffix" with empty parts skipped.
func (p *Profile) FullName() string {
	parts := []string{p.FirstName, deref(p.MiddleName), p.LastName, deref(p.Suffix)}
	out := parts[:0]
	for _, s := range parts {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return strings.Join(out, " ")
}

// HasNumber reports whether a PWD number has been assigned.
func (p *Profile) HasNumber() bool {
	return p.PWDNumber != nil && *p.PWDNumber != ""
}

// AuditType implements audit.Auditable
func (p *Profile) AuditType() string { return "PwdProfile" }

// AuditKey implements audit.Auditable
func (p *Profile) AuditKey() string { return p.ID }

// AuditLabel implements audit.Auditable
func (p *Profile) AuditLabel() string { return p.FullName() }

// AuditFields implements audit.Auditable. current_version is excluded: it is
// owned by the version ledger and never part of a user edit.
func (p *Profile) AuditFields() map[string]any {
	return map[string]any{
		"pwd_number":          strPtr(p.PWDNumber),
		"first_name":          p.FirstName,
		"last_name":           p.LastName,
		"middle_name":         strPtr(p.MiddleName),
		"suffix":              strPtr(p.Suffix),
		"date_applied":        datePtr(p.DateApplied),
		"date_approved":       datePtr(p.DateApproved),
		"expiry_date":         datePtr(p.ExpiryDate),
		"status":              string(p.Status),
		"remarks":             strPtr(p.Remarks),
		"accessibility_needs": strPtr(p.AccessibilityNeeds),
		"service_needs":       strPtr(p.ServiceNeeds),
		"card_printed":        p.CardPrinted,
		"card_printed_at":     timePtr(p.CardPrintedAt),
		"updated_at":          p.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

// PersonalInfo is a row of pwd_personal_info
type PersonalInfo struct {
	ID          string     `db:"id" json:"id,omitempty"`
	ProfileID   string     `db:"pwd_profile_id" json:"-"`
	BirthDate   *time.Time `db:"birth_date" json:"birth_date"`
	BirthPlace  *string    `db:"birth_place" json:"birth_place"`
	Sex         *string    `db:"sex" json:"sex"`
	Religion    *string    `db:"religion" json:"religion"`
	EthnicGroup *string    `db:"ethnic_group" json:"ethnic_group"`
	CivilStatus *string    `db:"civil_status" json:"civil_status"`
	BloodType   *string    `db:"blood_type" json:"blood_type"`
}

// Address is a row of pwd_addresses
type Address struct {
	ID          string  `db:"id" json:"id,omitempty"`
	ProfileID   string  `db:"pwd_profile_id" json:"-"`
	HouseStreet *string `db:"house_street" json:"house_street"`
	BarangayID  *int    `db:"barangay_id" json:"barangay_id"`
	City        string  `db:"city" json:"city"`
	Province    string  `db:"province" json:"province"`
	Region      string  `db:"region" json:"region"`
}

// Contact is a row of pwd_contacts
type Contact struct {
	ID              string  `db:"id" json:"id,omitempty"`
	ProfileID       string  `db:"pwd_profile_id" json:"-"`
	Mobile          *string `db:"mobile" json:"mobile"`
	Landline        *string `db:"landline" json:"landline"`
	Email           *string `db:"email" json:"email"`
	GuardianContact *string `db:"guardian_contact" json:"guardian_contact"`
}

// Disability is a row of pwd_disabilities
type Disability struct {
	ID               string  `db:"id" json:"id,omitempty"`
	ProfileID        string  `db:"pwd_profile_id" json:"-"`
	DisabilityTypeID int     `db:"disability_type_id" json:"disability_type_id"`
	Cause            *string `db:"cause" json:"cause"`
	CauseDetails     *string `db:"cause_details" json:"cause_details"`
	IsPrimary        bool    `db:"is_primary" json:"is_primary"`
}

// Employment is a row of pwd_employment
type Employment struct {
	ID         string  `db:"id" json:"id,omitempty"`
	ProfileID  string  `db:"pwd_profile_id" json:"-"`
	Status     *string `db:"status" json:"status"`
	Category   *string `db:"category" json:"category"`
	Type       *string `db:"type" json:"type"`
	Occupation *string `db:"occupation" json:"occupation"`
}

// Education is a row of pwd_education
type Education struct {
	ID         string  `db:"id" json:"id,omitempty"`
	ProfileID  string  `db:"pwd_profile_id" json:"-"`
	Attainment *string `db:"attainment" json:"attainment"`
}

// FamilyMember is a row of pwd_family
type FamilyMember struct {
	ID           string  `db:"id" json:"id,omitempty"`
	ProfileID    string  `db:"pwd_profile_id" json:"-"`
	RelationType string  `db:"relation_type" json:"relation_type"` // father, mother, guardian, spouse
	FirstName    *string `db:"first_name" json:"first_name"`
	LastName     *string `db:"last_name" json:"last_name"`
	MiddleName   *string `db:"middle_name" json:"middle_name"`
	Age          *int    `db:"age" json:"age"`
}

// GovernmentID is a row of pwd_government_ids
type GovernmentID struct {
	ID        string `db:"id" json:"id,omitempty"`
	ProfileID string `db:"pwd_profile_id" json:"-"`
	IDType    string `db:"id_type" json:"id_type"` // SSS, GSIS, PhilHealth, Pag-IBIG
	IDNumber  string `db:"id_number" json:"id_number"`
}

// HouseholdInfo is a row of pwd_household_info
type HouseholdInfo struct {
	ID                string              `db:"id" json:"id,omitempty"`
	ProfileID         string              `db:"pwd_profile_id" json:"-"`
	LivingArrangement *string             `db:"living_arrangement" json:"living_arrangement"`
	ReceivingSupport  bool                `db:"receiving_support" json:"receiving_support"`
	IsPensioner       bool                `db:"is_pensioner" json:"is_pensioner"`
	PensionType       *string             `db:"pension_type" json:"pension_type"`
	MonthlyPension    decimal.NullDecimal `db:"monthly_pension" json:"monthly_pension"`
	IncomeSource      *string             `db:"income_source" json:"income_source"`
	MonthlyIncome     decimal.NullDecimal `db:"monthly_income" json:"monthly_income"`
}

// OrganizationAffiliation is a row of pwd_organizations
type OrganizationAffiliation struct {
	ID               string  `db:"id" json:"id,omitempty"`
	ProfileID        string  `db:"pwd_profile_id" json:"-"`
	OrganizationName *string `db:"organization_name" json:"organization_name"`
	ContactPerson    *string `db:"contact_person" json:"contact_person"`
	Address          *string `db:"address" json:"address"`
	Telephone        *string `db:"telephone" json:"telephone"`
}

// ProfileRecord is a profile together with every sub-record it owns. Its JSON
// encoding is the version snapshot document: profile columns at the top level,
// sub-records nested. Decoding ignores unknown keys and leaves missing ones at
// their zero value, so snapshots written by older releases still restore.
type ProfileRecord struct {
	Profile
	PersonalInfo  *PersonalInfo            `json:"personal_info"`
	Address       *Address                 `json:"address"`
	Contact       *Contact                 `json:"contact"`
	Disabilities  []Disability             `json:"disabilities"`
	Employment    *Employment              `json:"employment"`
	Education     *Education               `json:"education"`
	FamilyMembers []FamilyMember           `json:"family_members"`
	GovernmentIDs []GovernmentID           `json:"government_ids"`
	HouseholdInfo *HouseholdInfo           `json:"household_info"`
	Organization  *OrganizationAffiliation `json:"organization"`
}

// PrimaryDisability returns the disability flagged primary, or the first one.
func (r *ProfileRecord) PrimaryDisability() *Disability {
	for i := range r.Disabilities {
		if r.Disabilities[i].IsPrimary {
			return &r.Disabilities[i]
		}
	}
	if len(r.Disabilities) > 0 {
		return &r.Disabilities[0]
	}
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func strPtr(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func datePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format("2006-01-02")
}

func timePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}
