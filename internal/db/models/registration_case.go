// Package models - registration_case.go defines the RegistrationCase, the review record that
// drives a profile from submission to approval or rejection.
package models

import "time"

// CaseStatus is the review status of a RegistrationCase
type CaseStatus string

const (
	CaseStatusPending     CaseStatus = "PENDING"
	CaseStatusUnderReview CaseStatus = "UNDER_REVIEW"
	CaseStatusApproved    CaseStatus = "APPROVED"
	CaseStatusRejected    CaseStatus = "REJECTED"
)

// IsTerminal reports whether no further review action is allowed.
func (s CaseStatus) IsTerminal() bool {
	return s == CaseStatusApproved || s == CaseStatusRejected
}

// SubmissionType describes why the case was opened
type SubmissionType string

const (
	SubmissionNew      SubmissionType = "NEW"
	SubmissionExisting SubmissionType = "EXISTING"
	SubmissionRenewal  SubmissionType = "RENEWAL"
)

// Valid reports whether t is a known submission type.
func (t SubmissionType) Valid() bool {
	return t == SubmissionNew || t == SubmissionExisting || t == SubmissionRenewal
}

// RegistrationCase is a row of pending_registrations
type RegistrationCase struct {
	ID             string         `db:"id" json:"id"`
	ProfileID      string         `db:"pwd_profile_id" json:"pwd_profile_id"`
	SubmissionType SubmissionType `db:"submission_type" json:"submission_type"`
	Status         CaseStatus     `db:"status" json:"status"`
	ReviewedBy     *string        `db:"reviewed_by" json:"reviewed_by,omitempty"`
	ReviewedAt     *time.Time     `db:"reviewed_at" json:"reviewed_at,omitempty"`
	ReviewNotes    *string        `db:"review_notes" json:"review_notes,omitempty"`
	UserID         *string        `db:"user_id" json:"user_id,omitempty"` // submitting account
	CreatedAt      time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at" json:"updated_at"`
	DeletedAt      *time.Time     `db:"deleted_at" json:"-"`
}

// AuditType implements audit.Auditable
func (c *RegistrationCase) AuditType() string { return "PendingRegistration" }

// AuditKey implements audit.Auditable
func (c *RegistrationCase) AuditKey() string { return c.ID }

// AuditLabel implements audit.Auditable. Cases carry no name of their own.
func (c *RegistrationCase) AuditLabel() string { return "" }

// AuditFields implements audit.Auditable
func (c *RegistrationCase) AuditFields() map[string]any {
	return map[string]any{
		"pwd_profile_id":  c.ProfileID,
		"submission_type": string(c.SubmissionType),
		"status":          string(c.Status),
		"reviewed_by":     strPtr(c.ReviewedBy),
		"reviewed_at":     timePtr(c.ReviewedAt),
		"review_notes":    strPtr(c.ReviewNotes),
		"user_id":         strPtr(c.UserID),
		"updated_at":      c.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

// CaseListItem is a RegistrationCase joined with its profile and reviewer for queue listings
type CaseListItem struct {
	RegistrationCase
	FirstName    string  `db:"first_name" json:"first_name"`
	LastName     string  `db:"last_name" json:"last_name"`
	PWDNumber    *string `db:"pwd_number" json:"pwd_number,omitempty"`
	ReviewerName *string `db:"reviewer_name" json:"reviewer_name,omitempty"`
}

// CaseStats summarises the review queue
type CaseStats struct {
	Pending       int `db:"pending" json:"pending"`
	UnderReview   int `db:"under_review" json:"under_review"`
	ApprovedToday int `db:"approved_today" json:"approved_today"`
	RejectedToday int `db:"rejected_today" json:"rejected_today"`
}
