// approvals.go implements handlers for the registration review queue: listing and
// counting cases, and approving, declining or returning them to the applicant.
package admin

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/pwd-registry/pwd-registry/internal/db/models"
	"github.com/pwd-registry/pwd-registry/internal/db/repositories"
	"github.com/pwd-registry/pwd-registry/internal/middleware"
	"github.com/pwd-registry/pwd-registry/internal/registration"
)

// ApprovalHandlers handles review queue endpoints
type ApprovalHandlers struct {
	machine     *registration.Machine
	caseRepo    *repositories.CaseRepository
	profileRepo *repositories.ProfileRepository
	now         func() time.Time
}

// NewApprovalHandlers creates a new ApprovalHandlers instance
func NewApprovalHandlers(machine *registration.Machine, database *sqlx.DB) *ApprovalHandlers {
	return &ApprovalHandlers{
		machine:     machine,
		caseRepo:    repositories.NewCaseRepository(database),
		profileRepo: repositories.NewProfileRepository(database),
		now:         time.Now,
	}
}

// ApproveRequest is the optional body of POST /api/v1/approvals/:id/approve
type ApproveRequest struct {
	Notes             string `json:"notes"`
	AssignedPWDNumber string `json:"assigned_pwd_number"`
}

// ReviewNotesRequest is the body of the reject and request-changes endpoints
type ReviewNotesRequest struct {
	Notes string `json:"notes"`
}

// bindOptional binds a JSON body when one is present. An empty body is not an error.
func bindOptional(c *gin.Context, v any) bool {
	if err := c.ShouldBindJSON(v); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return false
	}
	return true
}

func writeReviewError(c *gin.Context, err error, action string) {
	switch {
	case errors.Is(err, registration.ErrCaseNotFound), errors.Is(err, registration.ErrProfileNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, registration.ErrCaseFinalized),
		errors.Is(err, registration.ErrNumberTaken),
		errors.Is(err, registration.ErrNotesRequired):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		slog.Error("review action failed", "action", action, "case_id", c.Param("id"), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to " + action})
	}
}

// parseStatuses turns ?status= into a filter. Empty means PENDING, "all" means
// no filter, and a comma-separated list selects several statuses.
func parseStatuses(raw string) ([]models.CaseStatus, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return []models.CaseStatus{models.CaseStatusPending}, true
	}
	if strings.EqualFold(raw, "all") {
		return nil, true
	}
	var out []models.CaseStatus
	for _, part := range strings.Split(raw, ",") {
		s := models.CaseStatus(strings.ToUpper(strings.TrimSpace(part)))
		switch s {
		case models.CaseStatusPending, models.CaseStatusUnderReview, models.CaseStatusApproved, models.CaseStatusRejected:
			out = append(out, s)
		default:
			return nil, false
		}
	}
	return out, true
}

// @Summary      List registrations
// @Description  Review queue filtered by status (default PENDING, "all" for every status), submission type and applicant name or PWD number.
// @Tags         Approvals
// @Security     Bearer
// @Produce      json
// @Param        status           query  string  false  "PENDING, UNDER_REVIEW, APPROVED, REJECTED, a comma-separated list, or all"
// @Param        submission_type  query  string  false  "NEW, EXISTING or RENEWAL"
// @Param        search           query  string  false  "Applicant name or PWD number"
// @Param        page             query  int     false  "Page number (default 1)"
// @Param        per_page         query  int     false  "Items per page, max 100 (default 20)"
// @Success      200  {object}  map[string]interface{}  "registrations: []models.CaseListItem, pagination: map"
// @Failure      400  {object}  map[string]interface{}  "Invalid filter"
// @Router       /api/v1/approvals [get]
// ListHandler lists registration cases
// GET /api/v1/approvals?status=PENDING&page=1
func (h *ApprovalHandlers) ListHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		page, perPage, offset := parsePagination(c)

		statuses, ok := parseStatuses(c.Query("status"))
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid status filter"})
			return
		}
		filters := repositories.CaseFilters{Statuses: statuses, Search: c.Query("search")}
		if t := optionalQuery(c, "submission_type"); t != nil {
			st := models.SubmissionType(strings.ToUpper(*t))
			if !st.Valid() {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid submission_type filter"})
				return
			}
			filters.SubmissionType = &st
		}

		items, total, err := h.caseRepo.List(c.Request.Context(), filters, perPage, offset)
		if err != nil {
			slog.Error("failed to list registrations", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list registrations"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"registrations": items,
			"pagination":    paginationBody(page, perPage, total),
		})
	}
}

// @Summary      Review queue statistics
// @Tags         Approvals
// @Security     Bearer
// @Produce      json
// @Success      200  {object}  models.CaseStats
// @Router       /api/v1/approvals/stats [get]
// StatsHandler counts open cases and today's decisions
// GET /api/v1/approvals/stats
func (h *ApprovalHandlers) StatsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		now := h.now()
		startOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

		stats, err := h.caseRepo.Stats(c.Request.Context(), startOfDay)
		if err != nil {
			slog.Error("failed to get registration stats", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get statistics"})
			return
		}
		c.JSON(http.StatusOK, stats)
	}
}

// @Summary      Get registration
// @Tags         Approvals
// @Security     Bearer
// @Produce      json
// @Param        id  path  string  true  "Registration ID"
// @Success      200  {object}  map[string]interface{}  "registration: models.RegistrationCase, profile: models.ProfileRecord"
// @Failure      404  {object}  map[string]interface{}  "Registration not found"
// @Router       /api/v1/approvals/{id} [get]
// GetHandler returns a case with its applicant's full profile
// GET /api/v1/approvals/:id
func (h *ApprovalHandlers) GetHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		rc, err := h.caseRepo.GetByID(ctx, c.Param("id"))
		if err != nil {
			writeReviewError(c, err, "retrieve registration")
			return
		}
		if rc == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": registration.ErrCaseNotFound.Error()})
			return
		}

		rec, err := h.profileRepo.LoadRecord(ctx, rc.ProfileID)
		if err != nil {
			writeReviewError(c, err, "retrieve registration")
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"registration": rc,
			"profile":      rec,
		})
	}
}

// @Summary      Approve registration
// @Description  Activates the applicant's profile, sets its approval and expiry dates and optionally assigns a PWD number.
// @Tags         Approvals
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        id    path  string          true   "Registration ID"
// @Param        body  body  ApproveRequest  false  "Notes and PWD number"
// @Success      200  {object}  registration.Result
// @Failure      400  {object}  map[string]interface{}  "Already processed or number taken"
// @Failure      404  {object}  map[string]interface{}  "Registration not found"
// @Router       /api/v1/approvals/{id}/approve [post]
// ApproveHandler approves a case
// POST /api/v1/approvals/:id/approve
func (h *ApprovalHandlers) ApproveHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ApproveRequest
		if !bindOptional(c, &req) {
			return
		}

		res, err := h.machine.Approve(c.Request.Context(), c.Param("id"), middleware.CurrentUser(c), registration.ApproveInput{
			Notes:          req.Notes,
			AssignedNumber: req.AssignedPWDNumber,
		})
		if err != nil {
			writeReviewError(c, err, "approve registration")
			return
		}
		c.JSON(http.StatusOK, res)
	}
}

// @Summary      Decline registration
// @Tags         Approvals
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        id    path  string              true  "Registration ID"
// @Param        body  body  ReviewNotesRequest  true  "Reason"
// @Success      200  {object}  registration.Result
// @Failure      400  {object}  map[string]interface{}  "Reason missing or already processed"
// @Failure      404  {object}  map[string]interface{}  "Registration not found"
// @Router       /api/v1/approvals/{id}/reject [post]
// RejectHandler declines a case
// POST /api/v1/approvals/:id/reject
func (h *ApprovalHandlers) RejectHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ReviewNotesRequest
		if !bindOptional(c, &req) {
			return
		}

		res, err := h.machine.Reject(c.Request.Context(), c.Param("id"), middleware.CurrentUser(c), req.Notes)
		if err != nil {
			writeReviewError(c, err, "decline registration")
			return
		}
		c.JSON(http.StatusOK, res)
	}
}

// @Summary      Request changes
// @Description  Returns a case to the applicant as UNDER_REVIEW with optional remarks.
// @Tags         Approvals
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        id    path  string              true   "Registration ID"
// @Param        body  body  ReviewNotesRequest  false  "Remarks"
// @Success      200  {object}  registration.Result
// @Failure      400  {object}  map[string]interface{}  "Already processed"
// @Failure      404  {object}  map[string]interface{}  "Registration not found"
// @Router       /api/v1/approvals/{id}/request-changes [post]
// RequestChangesHandler returns a case to the applicant
// POST /api/v1/approvals/:id/request-changes
func (h *ApprovalHandlers) RequestChangesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ReviewNotesRequest
		if !bindOptional(c, &req) {
			return
		}

		res, err := h.machine.RequestChanges(c.Request.Context(), c.Param("id"), middleware.CurrentUser(c), req.Notes)
		if err != nil {
			writeReviewError(c, err, "request changes")
			return
		}
		c.JSON(http.StatusOK, res)
	}
}
