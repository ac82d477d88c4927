// Package notify delivers in-app notifications. Each call persists exactly one row;
// there is no deduplication, so callers invoke it once per logical event.
package notify

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/pwd-registry/pwd-registry/internal/db/models"
	"github.com/pwd-registry/pwd-registry/internal/db/repositories"
	"github.com/pwd-registry/pwd-registry/internal/telemetry"
)

// Related types stored on notifications
const (
	RelatedPendingRegistration = "pending_registration"
	RelatedProfile             = "pwd_profile"
)

// Message is a notification to deliver
type Message struct {
	UserID      string
	Type        string
	Title       string
	Body        string
	ActionBy    string
	RelatedType string
	RelatedID   string
}

// Notifier persists notifications
type Notifier struct {
	repo *repositories.NotificationRepository
}

// NewNotifier creates a Notifier
func NewNotifier(db *sqlx.DB) *Notifier {
	return &Notifier{repo: repositories.NewNotificationRepository(db)}
}

// Notify inserts one notification for msg.UserID.
func (n *Notifier) Notify(ctx context.Context, msg Message) error {
	row := &models.Notification{
		UserID:      msg.UserID,
		Type:        msg.Type,
		Title:       msg.Title,
		Message:     msg.Body,
		RelatedType: optional(msg.RelatedType),
		RelatedID:   optional(msg.RelatedID),
		ActionBy:    optional(msg.ActionBy),
	}
	if err := n.repo.Create(ctx, row); err != nil {
		return err
	}
	telemetry.NotificationsCreatedTotal.WithLabelValues(msg.Type).Inc()
	return nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
