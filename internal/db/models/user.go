// Package models - user.go defines the User account. Staff and PWD members alike sign in with
// an office-issued ID number; a member's ID number equals their PWD number once assigned.
package models

import (
	"strings"
	"time"
)

// Role is an account's role
type Role string

const (
	RoleAdmin     Role = "ADMIN"
	RoleStaff     Role = "STAFF"
	RoleEncoder   Role = "ENCODER"
	RoleMayor     Role = "MAYOR"
	RoleUser      Role = "USER"
	RolePWDMember Role = "PWD MEMBER"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleStaff, RoleEncoder, RoleMayor, RoleUser, RolePWDMember:
		return true
	}
	return false
}

// IsStaff reports whether the role belongs to office personnel who may edit the masterlist.
func (r Role) IsStaff() bool {
	return r == RoleAdmin || r == RoleStaff || r == RoleEncoder
}

// User account statuses
const (
	UserStatusActive   = "ACTIVE"
	UserStatusInactive = "INACTIVE"
)

// User is a row of users
type User struct {
	ID           string     `db:"id" json:"id"`
	IDNumber     string     `db:"id_number" json:"id_number"`
	FirstName    string     `db:"first_name" json:"first_name"`
	LastName     string     `db:"last_name" json:"last_name"`
	MiddleName   *string    `db:"middle_name" json:"middle_name,omitempty"`
	PasswordHash string     `db:"password_hash" json:"-"`
	Role         Role       `db:"role" json:"role"`
	Unit         *string    `db:"unit" json:"unit,omitempty"`
	Status       string     `db:"status" json:"status"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
	DeletedAt    *time.Time `db:"deleted_at" json:"-"`
}

// FullName returns "First Last".
func (u *User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// IsActive reports whether the account may sign in.
func (u *User) IsActive() bool {
	return u.Status == UserStatusActive && u.DeletedAt == nil
}

// AuditType implements audit.Auditable
func (u *User) AuditType() string { return "User" }

// AuditKey implements audit.Auditable
func (u *User) AuditKey() string { return u.ID }

// AuditLabel implements audit.Auditable
func (u *User) AuditLabel() string { return u.FullName() }

// AuditFields implements audit.Auditable. The password hash is never recorded.
func (u *User) AuditFields() map[string]any {
	return map[string]any{
		"id_number":   u.IDNumber,
		"first_name":  u.FirstName,
		"last_name":   u.LastName,
		"middle_name": strPtr(u.MiddleName),
		"role":        string(u.Role),
		"unit":        strPtr(u.Unit),
		"status":      u.Status,
		"updated_at":  u.UpdatedAt.UTC().Format(time.RFC3339),
	}
}
