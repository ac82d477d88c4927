// notification_repository.go implements NotificationRepository for per-account in-app notifications.
package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pwd-registry/pwd-registry/internal/db/models"
)

const notificationColumns = `id, user_id, type, title, message, related_type, related_id, action_by, is_read, read_at, created_at`

// NotificationRepository handles notifications
type NotificationRepository struct {
	db DBTX
}

// NewNotificationRepository creates a new NotificationRepository
func NewNotificationRepository(db *sqlx.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// NotificationFilters contains filters for listing an account's notifications
type NotificationFilters struct {
	UnreadOnly bool
	Type       *string
}

// Create inserts a notification
func (r *NotificationRepository) Create(ctx context.Context, n *models.Notification) error {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	n.CreatedAt = time.Now()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO notifications (id, user_id, type, title, message, related_type, related_id, action_by, is_read, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, FALSE, $9)`,
		n.ID, n.UserID, n.Type, n.Title, n.Message, n.RelatedType, n.RelatedID, n.ActionBy, n.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}
	return nil
}

// List returns an account's notifications newest first
func (r *NotificationRepository) List(ctx context.Context, userID string, filters NotificationFilters, limit, offset int) ([]*models.Notification, int, error) {
	where := ` WHERE user_id = $1`
	args := []interface{}{userID}
	paramIndex := 2

	if filters.UnreadOnly {
		where += ` AND is_read = FALSE`
	}
	if filters.Type != nil {
		where += fmt.Sprintf(` AND type = $%d`, paramIndex)
		args = append(args, *filters.Type)
		paramIndex++
	}

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM notifications`+where, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count notifications: %w", err)
	}

	query := `SELECT ` + notificationColumns + ` FROM notifications` + where +
		fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, paramIndex, paramIndex+1)
	args = append(args, limit, offset)

	items := make([]*models.Notification, 0)
	if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to list notifications: %w", err)
	}
	return items, total, nil
}

// UnreadCount returns how many unread notifications an account has
func (r *NotificationRepository) UnreadCount(ctx context.Context, userID string) (int, error) {
	var n int
	if err := r.db.GetContext(ctx, &n,
		`SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND is_read = FALSE`, userID); err != nil {
		return 0, fmt.Errorf("failed to count unread notifications: %w", err)
	}
	return n, nil
}

// MarkRead marks one notification read. It reports false when the notification
// does not exist or belongs to another account.
func (r *NotificationRepository) MarkRead(ctx context.Context, id, userID string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE notifications SET is_read = TRUE, read_at = COALESCE(read_at, NOW())
		WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return false, fmt.Errorf("failed to mark notification read: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to mark notification read: %w", err)
	}
	return n > 0, nil
}

// MarkAllRead marks every unread notification of an account read
func (r *NotificationRepository) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE notifications SET is_read = TRUE, read_at = NOW()
		WHERE user_id = $1 AND is_read = FALSE`, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to mark notifications read: %w", err)
	}
	return res.RowsAffected()
}

// Delete removes one notification owned by userID, reporting whether it existed
func (r *NotificationRepository) Delete(ctx context.Context, id, userID string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM notifications WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return false, fmt.Errorf("failed to delete notification: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to delete notification: %w", err)
	}
	return n > 0, nil
}

// ClearRead deletes every read notification of an account
func (r *NotificationRepository) ClearRead(ctx context.Context, userID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM notifications WHERE user_id = $1 AND is_read = TRUE`, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to clear read notifications: %w", err)
	}
	return res.RowsAffected()
}
