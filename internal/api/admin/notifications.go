// notifications.go implements handlers for the signed-in account's in-app notifications.
package admin

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/pwd-registry/pwd-registry/internal/db/repositories"
	"github.com/pwd-registry/pwd-registry/internal/middleware"
)

// NotificationHandlers handles notification endpoints. Every query is scoped
// to the signed-in account, so another account's notification reads as missing.
type NotificationHandlers struct {
	notificationRepo *repositories.NotificationRepository
}

// NewNotificationHandlers creates a new NotificationHandlers instance
func NewNotificationHandlers(database *sqlx.DB) *NotificationHandlers {
	return &NotificationHandlers{
		notificationRepo: repositories.NewNotificationRepository(database),
	}
}

// @Summary      List notifications
// @Tags         Notifications
// @Security     Bearer
// @Produce      json
// @Param        unread_only  query  bool    false  "Only unread notifications"
// @Param        type         query  string  false  "Notification type"
// @Param        page         query  int     false  "Page number (default 1)"
// @Param        per_page     query  int     false  "Items per page, max 100 (default 20)"
// @Success      200  {object}  map[string]interface{}  "notifications, unread_count, pagination"
// @Router       /api/v1/notifications [get]
// ListHandler lists the account's notifications newest first
// GET /api/v1/notifications?unread_only=true
func (h *NotificationHandlers) ListHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		userID := c.GetString(middleware.UserIDKey)
		page, perPage, offset := parsePagination(c)

		unreadOnly, _ := strconv.ParseBool(c.DefaultQuery("unread_only", "false"))
		filters := repositories.NotificationFilters{
			UnreadOnly: unreadOnly,
			Type:       optionalQuery(c, "type"),
		}

		items, total, err := h.notificationRepo.List(ctx, userID, filters, perPage, offset)
		if err != nil {
			slog.Error("failed to list notifications", "user_id", userID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list notifications"})
			return
		}
		unread, err := h.notificationRepo.UnreadCount(ctx, userID)
		if err != nil {
			slog.Error("failed to count unread notifications", "user_id", userID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list notifications"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"notifications": items,
			"unread_count":  unread,
			"pagination":    paginationBody(page, perPage, total),
		})
	}
}

// @Summary      Unread notification count
// @Tags         Notifications
// @Security     Bearer
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "unread_count"
// @Router       /api/v1/notifications/unread-count [get]
// UnreadCountHandler returns how many notifications are unread
// GET /api/v1/notifications/unread-count
func (h *NotificationHandlers) UnreadCountHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetString(middleware.UserIDKey)
		n, err := h.notificationRepo.UnreadCount(c.Request.Context(), userID)
		if err != nil {
			slog.Error("failed to count unread notifications", "user_id", userID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to count notifications"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"unread_count": n})
	}
}

// @Summary      Mark notification as read
// @Tags         Notifications
// @Security     Bearer
// @Produce      json
// @Param        id  path  string  true  "Notification ID"
// @Success      200  {object}  map[string]interface{}  "message"
// @Failure      404  {object}  map[string]interface{}  "Notification not found"
// @Router       /api/v1/notifications/{id}/read [post]
// MarkReadHandler marks one notification read
// POST /api/v1/notifications/:id/read
func (h *NotificationHandlers) MarkReadHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetString(middleware.UserIDKey)
		found, err := h.notificationRepo.MarkRead(c.Request.Context(), c.Param("id"), userID)
		if err != nil {
			slog.Error("failed to mark notification read", "user_id", userID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update notification"})
			return
		}
		if !found {
			c.JSON(http.StatusNotFound, gin.H{"error": "Notification not found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Notification marked as read"})
	}
}

// @Summary      Mark all notifications as read
// @Tags         Notifications
// @Security     Bearer
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "message, updated"
// @Router       /api/v1/notifications/read-all [post]
// MarkAllReadHandler marks every unread notification read
// POST /api/v1/notifications/read-all
func (h *NotificationHandlers) MarkAllReadHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetString(middleware.UserIDKey)
		n, err := h.notificationRepo.MarkAllRead(c.Request.Context(), userID)
		if err != nil {
			slog.Error("failed to mark notifications read", "user_id", userID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update notifications"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"message": "All notifications marked as read",
			"updated": n,
		})
	}
}

// @Summary      Delete notification
// @Tags         Notifications
// @Security     Bearer
// @Produce      json
// @Param        id  path  string  true  "Notification ID"
// @Success      200  {object}  map[string]interface{}  "message"
// @Failure      404  {object}  map[string]interface{}  "Notification not found"
// @Router       /api/v1/notifications/{id} [delete]
// DeleteHandler deletes one notification
// DELETE /api/v1/notifications/:id
func (h *NotificationHandlers) DeleteHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetString(middleware.UserIDKey)
		found, err := h.notificationRepo.Delete(c.Request.Context(), c.Param("id"), userID)
		if err != nil {
			slog.Error("failed to delete notification", "user_id", userID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete notification"})
			return
		}
		if !found {
			c.JSON(http.StatusNotFound, gin.H{"error": "Notification not found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Notification deleted"})
	}
}

// @Summary      Clear read notifications
// @Tags         Notifications
// @Security     Bearer
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "message, deleted"
// @Router       /api/v1/notifications/clear-read [post]
// ClearReadHandler deletes every read notification
// POST /api/v1/notifications/clear-read
func (h *NotificationHandlers) ClearReadHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetString(middleware.UserIDKey)
		n, err := h.notificationRepo.ClearRead(c.Request.Context(), userID)
		if err != nil {
			slog.Error("failed to clear read notifications", "user_id", userID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to clear notifications"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"message": "Read notifications cleared",
			"deleted": n,
		})
	}
}
