// Package models - version_snapshot.go defines a single immutable entry of a profile's version history.
package models

import (
	"time"

	"github.com/jmoiron/sqlx/types"
)

// VersionSnapshot is a row of pwd_profile_versions
type VersionSnapshot struct {
	ID            string         `db:"id" json:"id"`
	ProfileID     string         `db:"pwd_profile_id" json:"pwd_profile_id"`
	VersionNumber int            `db:"version_number" json:"version_number"`
	Data          types.JSONText `db:"data" json:"data"` // serialised ProfileRecord
	ChangedBy     *string        `db:"changed_by" json:"changed_by,omitempty"`
	ChangeSummary string         `db:"change_summary" json:"change_summary"`
	CreatedAt     time.Time      `db:"created_at" json:"changed_at"`

	// Joined from users; nil for system changes
	ChangedByName *string `db:"changed_by_name" json:"changed_by_name,omitempty"`
}

// ChangedByDisplay returns the acting account's name, or "System".
func (v *VersionSnapshot) ChangedByDisplay() string {
	if v.ChangedByName == nil || *v.ChangedByName == "" {
		return "System"
	}
	return *v.ChangedByName
}

// Record decodes the snapshot document.
func (v *VersionSnapshot) Record() (*ProfileRecord, error) {
	var rec ProfileRecord
	if err := v.Data.Unmarshal(&rec); err != nil {
		return nil, err
	}
	return &rec, nil
}
