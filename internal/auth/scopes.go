// Package auth - scopes.go defines the permission scopes of the registry API, the
// scopes each account role is granted, and HasScope helpers for checking them.
package auth

import (
	"fmt"

	"github.com/pwd-registry/pwd-registry/internal/db/models"
)

// Scope represents a permission
type Scope string

const (
	// Profile scopes
	ScopeProfilesRead  Scope = "profiles:read"  // View masterlist records and their versions
	ScopeProfilesWrite Scope = "profiles:write" // Create, edit, print, number and restore records

	// ScopeRegistrationsSubmit lets a member submit their own registration
	ScopeRegistrationsSubmit Scope = "registrations:submit"

	// ScopeApprovalsReview allows approving, rejecting and returning registrations
	ScopeApprovalsReview Scope = "approvals:review"

	// Audit log scopes
	ScopeAuditRead Scope = "audit:read"

	// Admin scope (wildcard - all permissions)
	ScopeAdmin Scope = "admin"
)

// AllScopes returns all valid scopes
func AllScopes() []Scope {
	return []Scope{
		ScopeProfilesRead,
		ScopeProfilesWrite,
		ScopeRegistrationsSubmit,
		ScopeApprovalsReview,
		ScopeAuditRead,
		ScopeAdmin,
	}
}

// ValidateScopes checks if all provided scopes are valid
func ValidateScopes(scopes []string) error {
	valid := make(map[string]bool)
	for _, s := range AllScopes() {
		valid[string(s)] = true
	}
	for _, scope := range scopes {
		if !valid[scope] {
			return fmt.Errorf("invalid scope: %s", scope)
		}
	}
	return nil
}

var roleScopes = map[models.Role][]Scope{
	models.RoleAdmin:     {ScopeAdmin},
	models.RoleStaff:     {ScopeProfilesWrite, ScopeApprovalsReview, ScopeAuditRead},
	models.RoleEncoder:   {ScopeProfilesWrite},
	models.RoleMayor:     {ScopeProfilesRead, ScopeAuditRead},
	models.RoleUser:      {ScopeRegistrationsSubmit},
	models.RolePWDMember: {ScopeRegistrationsSubmit},
}

// ScopesForRole returns the scopes granted to an account role. Unknown roles get none.
func ScopesForRole(role models.Role) []string {
	granted := roleScopes[role]
	out := make([]string, 0, len(granted))
	for _, s := range granted {
		out = append(out, string(s))
	}
	return out
}

// HasScope checks if a user has a required scope.
// The admin scope grants everything and write grants read.
func HasScope(userScopes []string, required Scope) bool {
	for _, scope := range userScopes {
		if scope == string(required) || scope == string(ScopeAdmin) {
			return true
		}
		if required == ScopeProfilesRead && scope == string(ScopeProfilesWrite) {
			return true
		}
	}
	return false
}

// HasAnyScope checks if a user has at least one of the required scopes
func HasAnyScope(userScopes []string, requiredScopes []Scope) bool {
	for _, required := range requiredScopes {
		if HasScope(userScopes, required) {
			return true
		}
	}
	return false
}
