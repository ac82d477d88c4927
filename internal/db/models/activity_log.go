// Package models - activity_log.go defines the ActivityLog model: one before/after record of a
// create, update, delete or restore of a tracked entity, and its archived counterpart.
package models

import "time"

// ActivityAction is the kind of change an ActivityLog entry describes
type ActivityAction string

const (
	ActionCreated      ActivityAction = "created"
	ActionUpdated      ActivityAction = "updated"
	ActionDeleted      ActivityAction = "deleted"
	ActionRestored     ActivityAction = "restored"
	ActionForceDeleted ActivityAction = "forceDeleted"
)

// ActivityLogModelType is the model type of activity log rows. Entries about
// the log itself are never written.
const ActivityLogModelType = "ActivityLog"

// ActivityLog represents a row of activity_logs
type ActivityLog struct {
	ID          string
	UserID      *string // Nullable for system actions
	ActionType  ActivityAction
	ModelType   string         // "PwdProfile", "PendingRegistration", "User", "Backup"
	ModelID     string         // primary key of the changed entity
	OldValues   map[string]any // JSONB: prior values of the changed keys
	NewValues   map[string]any // JSONB: new values of the same keys
	IPAddress   *string
	UserAgent   *string
	Description string
	CreatedAt   time.Time

	// Joined (not in table)
	UserName *string
}

// ArchivedActivityLog represents a row of activity_log_archives
type ArchivedActivityLog struct {
	ActivityLog
	OriginalID        string
	OriginalCreatedAt time.Time
	ArchiveMonth      string // YYYY-MM
	ArchivedAt        time.Time
}

// ArchiveMonthSummary is one archived month and how many entries it holds
type ArchiveMonthSummary struct {
	Month string `db:"archive_month" json:"month"`
	Count int    `db:"entry_count" json:"count"`
}
