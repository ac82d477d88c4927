// Package models - notification.go defines the in-app Notification delivered to an account.
package models

import "time"

// Notification types
const (
	NotificationApproval          = "approval"
	NotificationRejection         = "rejection"
	NotificationCorrectionRequest = "correction_request"
	NotificationUpdate            = "update"
	NotificationWarning           = "warning"
	NotificationCardReady         = "card_ready"
	NotificationExpiryWarning     = "expiry_warning"
)

// Notification is a row of notifications
type Notification struct {
	ID          string     `db:"id" json:"id"`
	UserID      string     `db:"user_id" json:"user_id"`
	Type        string     `db:"type" json:"type"`
	Title       string     `db:"title" json:"title"`
	Message     string     `db:"message" json:"message"`
	RelatedType *string    `db:"related_type" json:"related_type,omitempty"`
	RelatedID   *string    `db:"related_id" json:"related_id,omitempty"`
	ActionBy    *string    `db:"action_by" json:"action_by,omitempty"`
	IsRead      bool       `db:"is_read" json:"is_read"`
	ReadAt      *time.Time `db:"read_at" json:"read_at,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
}
