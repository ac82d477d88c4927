// activity_logs.go implements handlers for browsing the activity log, its monthly
// archive, and clearing the live table.
package admin

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/pwd-registry/pwd-registry/internal/audit"
	"github.com/pwd-registry/pwd-registry/internal/db/models"
	"github.com/pwd-registry/pwd-registry/internal/db/repositories"
)

// LogClearer moves every live activity log entry into the archive.
// *jobs.LogArchiver satisfies it.
type LogClearer interface {
	ArchiveAll(ctx context.Context) (int64, error)
}

// ActivityLogHandlers handles activity log endpoints
type ActivityLogHandlers struct {
	logRepo *repositories.ActivityLogRepository
	clearer LogClearer
}

// NewActivityLogHandlers creates a new ActivityLogHandlers instance
func NewActivityLogHandlers(database *sqlx.DB, clearer LogClearer) *ActivityLogHandlers {
	return &ActivityLogHandlers{
		logRepo: repositories.NewActivityLogRepository(database),
		clearer: clearer,
	}
}

// ActivityLogView is the API form of a live or archived entry
type ActivityLogView struct {
	*audit.LogEntry
	UserName     string     `json:"user_name"`
	OriginalID   string     `json:"original_id,omitempty"`
	ArchiveMonth string     `json:"archive_month,omitempty"`
	ArchivedAt   *time.Time `json:"archived_at,omitempty"`
}

func newActivityLogView(l *models.ActivityLog) ActivityLogView {
	v := ActivityLogView{LogEntry: audit.NewLogEntry(l), UserName: "System"}
	if l.UserName != nil && *l.UserName != "" {
		v.UserName = *l.UserName
	}
	return v
}

func newArchivedView(l *models.ArchivedActivityLog) ActivityLogView {
	v := newActivityLogView(&l.ActivityLog)
	v.ID = l.OriginalID
	v.Timestamp = l.OriginalCreatedAt.UTC()
	v.OriginalID = l.OriginalID
	v.ArchiveMonth = l.ArchiveMonth
	archivedAt := l.ArchivedAt
	v.ArchivedAt = &archivedAt
	return v
}

// parseLogFilters reads the list filters. start_date and end_date are
// YYYY-MM-DD; end_date covers the whole day.
func parseLogFilters(c *gin.Context) (repositories.ActivityLogFilters, bool) {
	f := repositories.ActivityLogFilters{
		ActionType: optionalQuery(c, "action_type"),
		ModelType:  optionalQuery(c, "model_type"),
		UserID:     optionalQuery(c, "user_id"),
		Search:     c.Query("search"),
	}
	if s := optionalQuery(c, "start_date"); s != nil {
		t, err := time.Parse("2006-01-02", *s)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid start_date, expected YYYY-MM-DD"})
			return f, false
		}
		f.StartDate = &t
	}
	if s := optionalQuery(c, "end_date"); s != nil {
		t, err := time.Parse("2006-01-02", *s)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid end_date, expected YYYY-MM-DD"})
			return f, false
		}
		end := t.Add(24*time.Hour - time.Nanosecond)
		f.EndDate = &end
	}
	return f, true
}

// @Summary      List activity logs
// @Description  Live entries newest first. month=YYYY-MM reads that month from the archive instead.
// @Tags         Activity Logs
// @Security     Bearer
// @Produce      json
// @Param        action_type  query  string  false  "created, updated, deleted, restored or forceDeleted"
// @Param        model_type   query  string  false  "PwdProfile, PendingRegistration, User or Backup"
// @Param        user_id      query  string  false  "Acting account"
// @Param        start_date   query  string  false  "YYYY-MM-DD"
// @Param        end_date     query  string  false  "YYYY-MM-DD"
// @Param        search       query  string  false  "Description text"
// @Param        month        query  string  false  "Archived month, YYYY-MM"
// @Param        page         query  int     false  "Page number (default 1)"
// @Param        per_page     query  int     false  "Items per page, max 100 (default 20)"
// @Success      200  {object}  map[string]interface{}  "logs: []ActivityLogView, pagination: map"
// @Failure      400  {object}  map[string]interface{}  "Invalid filter"
// @Router       /api/v1/activity-logs [get]
// ListHandler lists activity log entries
// GET /api/v1/activity-logs?model_type=PwdProfile&month=2026-09
func (h *ActivityLogHandlers) ListHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		page, perPage, offset := parsePagination(c)

		filters, ok := parseLogFilters(c)
		if !ok {
			return
		}

		views := make([]ActivityLogView, 0)
		var total int

		if month := optionalQuery(c, "month"); month != nil {
			if _, err := time.Parse("2006-01", *month); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid month, expected YYYY-MM"})
				return
			}
			entries, n, err := h.logRepo.ListArchived(ctx, *month, filters, perPage, offset)
			if err != nil {
				slog.Error("failed to list archived activity logs", "month", *month, "error", err)
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list activity logs"})
				return
			}
			for _, e := range entries {
				views = append(views, newArchivedView(e))
			}
			total = n
		} else {
			entries, n, err := h.logRepo.List(ctx, filters, perPage, offset)
			if err != nil {
				slog.Error("failed to list activity logs", "error", err)
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list activity logs"})
				return
			}
			for _, e := range entries {
				views = append(views, newActivityLogView(e))
			}
			total = n
		}

		c.JSON(http.StatusOK, gin.H{
			"logs":       views,
			"pagination": paginationBody(page, perPage, total),
		})
	}
}

// @Summary      Get activity log entry
// @Tags         Activity Logs
// @Security     Bearer
// @Produce      json
// @Param        id  path  string  true  "Entry ID"
// @Success      200  {object}  ActivityLogView
// @Failure      404  {object}  map[string]interface{}  "Entry not found"
// @Router       /api/v1/activity-logs/{id} [get]
// GetHandler returns one live entry
// GET /api/v1/activity-logs/:id
func (h *ActivityLogHandlers) GetHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		entry, err := h.logRepo.Get(c.Request.Context(), c.Param("id"))
		if err != nil {
			slog.Error("failed to get activity log", "id", c.Param("id"), "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve activity log"})
			return
		}
		if entry == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Activity log not found"})
			return
		}
		c.JSON(http.StatusOK, newActivityLogView(entry))
	}
}

// @Summary      List archived months
// @Tags         Activity Logs
// @Security     Bearer
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "months: []models.ArchiveMonthSummary"
// @Router       /api/v1/activity-logs/archives [get]
// ArchiveMonthsHandler lists archived months with their entry counts
// GET /api/v1/activity-logs/archives
func (h *ActivityLogHandlers) ArchiveMonthsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		months, err := h.logRepo.ArchiveMonths(c.Request.Context())
		if err != nil {
			slog.Error("failed to list archive months", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list archive months"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"months": months})
	}
}

// @Summary      Clear activity logs
// @Description  Moves every live entry into the monthly archive, leaving the live table empty. Requires ADMIN.
// @Tags         Activity Logs
// @Security     Bearer
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "message, archived"
// @Router       /api/v1/activity-logs/clear [post]
// ClearHandler archives and empties the live table
// POST /api/v1/activity-logs/clear
func (h *ActivityLogHandlers) ClearHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		n, err := h.clearer.ArchiveAll(c.Request.Context())
		if err != nil {
			slog.Error("failed to clear activity logs", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to clear activity logs"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"message":  "Activity logs archived and cleared",
			"archived": n,
		})
	}
}
