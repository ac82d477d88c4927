// profiles.go implements handlers for the PWD masterlist: listing, viewing, creating and
// editing profiles, status changes, card printing, PWD number generation and deletion.
package admin

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/pwd-registry/pwd-registry/internal/db/models"
	"github.com/pwd-registry/pwd-registry/internal/db/repositories"
	"github.com/pwd-registry/pwd-registry/internal/middleware"
	"github.com/pwd-registry/pwd-registry/internal/profiles"
	"github.com/pwd-registry/pwd-registry/internal/versioning"
)

// ProfileHandlers handles masterlist endpoints
type ProfileHandlers struct {
	service *profiles.Service
}

// NewProfileHandlers creates a new ProfileHandlers instance
func NewProfileHandlers(service *profiles.Service) *ProfileHandlers {
	return &ProfileHandlers{service: service}
}

// CreateProfileRequest is a new profile with its sub-records. Staff may set
// requires_review to route their own entry through the approval queue.
type CreateProfileRequest struct {
	models.ProfileRecord
	RequiresReview bool                  `json:"requires_review"`
	SubmissionType models.SubmissionType `json:"submission_type"`
}

// UpdateStatusRequest is the body of PATCH /api/v1/pwd/:id/status
type UpdateStatusRequest struct {
	Status models.ProfileStatus `json:"status" binding:"required"`
}

// writeProfileError maps profile, versioning and persistence errors to a response.
func writeProfileError(c *gin.Context, err error, action string) {
	switch {
	case errors.Is(err, profiles.ErrNotFound), errors.Is(err, versioning.ErrProfileNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Profile not found"})
	case errors.Is(err, versioning.ErrVersionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Version not found"})
	case errors.Is(err, profiles.ErrInvalidInput),
		errors.Is(err, profiles.ErrInvalidStatus),
		errors.Is(err, profiles.ErrNumberTaken),
		errors.Is(err, profiles.ErrNumberAlreadyAssigned),
		errors.Is(err, versioning.ErrRestoreNumberTaken):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		slog.Error("profile operation failed", "action", action, "profile_id", c.Param("id"), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to " + action})
	}
}

// @Summary      List profiles
// @Description  Paginated masterlist with optional status, barangay and name/number search filters.
// @Tags         Profiles
// @Security     Bearer
// @Produce      json
// @Param        status       query  string  false  "ACTIVE, INACTIVE, DECEASED, PENDING or UNDER_REVIEW"
// @Param        barangay_id  query  int     false  "Barangay ID"
// @Param        search       query  string  false  "Name or PWD number"
// @Param        page         query  int     false  "Page number (default 1)"
// @Param        per_page     query  int     false  "Items per page, max 100 (default 20)"
// @Success      200  {object}  map[string]interface{}  "profiles: []models.Profile, pagination: map"
// @Failure      400  {object}  map[string]interface{}  "Invalid filter"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/v1/pwd [get]
// ListHandler lists profiles
// GET /api/v1/pwd?status=ACTIVE&search=cruz&page=1
func (h *ProfileHandlers) ListHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		page, perPage, offset := parsePagination(c)

		filters := repositories.ProfileFilters{Search: c.Query("search")}
		if s := optionalQuery(c, "status"); s != nil {
			status := models.ProfileStatus(*s)
			if !status.Valid() {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid status filter"})
				return
			}
			filters.Status = &status
		}
		if b := optionalQuery(c, "barangay_id"); b != nil {
			id, err := strconv.Atoi(*b)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid barangay_id"})
				return
			}
			filters.BarangayID = &id
		}

		items, total, err := h.service.List(c.Request.Context(), filters, perPage, offset)
		if err != nil {
			writeProfileError(c, err, "list profiles")
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"profiles":   items,
			"pagination": paginationBody(page, perPage, total),
		})
	}
}

// @Summary      Get profile
// @Description  Returns a profile with every sub-record.
// @Tags         Profiles
// @Security     Bearer
// @Produce      json
// @Param        id  path  string  true  "Profile ID"
// @Success      200  {object}  map[string]interface{}  "profile: models.ProfileRecord"
// @Failure      404  {object}  map[string]interface{}  "Profile not found"
// @Router       /api/v1/pwd/{id} [get]
// GetHandler returns one profile
// GET /api/v1/pwd/:id
func (h *ProfileHandlers) GetHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		rec, err := h.service.Get(c.Request.Context(), c.Param("id"))
		if err != nil {
			writeProfileError(c, err, "retrieve profile")
			return
		}
		c.JSON(http.StatusOK, gin.H{"profile": rec})
	}
}

// @Summary      Create profile
// @Description  Staff create ACTIVE profiles unless requires_review is set. Members submit a PENDING profile for review.
// @Tags         Profiles
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  CreateProfileRequest  true  "Profile and sub-records"
// @Success      201  {object}  profiles.Result
// @Failure      400  {object}  map[string]interface{}  "Validation error"
// @Router       /api/v1/pwd [post]
// CreateHandler registers a new profile
// POST /api/v1/pwd
func (h *ProfileHandlers) CreateHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateProfileRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
			return
		}
		if req.SubmissionType != "" && !req.SubmissionType.Valid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid submission_type"})
			return
		}

		res, err := h.service.Create(c.Request.Context(), middleware.CurrentUser(c), profiles.CreateInput{
			Record:         req.ProfileRecord,
			RequiresReview: req.RequiresReview,
			SubmissionType: req.SubmissionType,
		})
		if err != nil {
			writeProfileError(c, err, "create profile")
			return
		}
		c.JSON(http.StatusCreated, res)
	}
}

// @Summary      Update profile
// @Description  Replaces the profile columns and sub-records. A version is written when the status, PWD number, address or disabilities change.
// @Tags         Profiles
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        id    path  string                true  "Profile ID"
// @Param        body  body  models.ProfileRecord  true  "Profile and sub-records"
// @Success      200  {object}  profiles.Result
// @Failure      400  {object}  map[string]interface{}  "Validation error"
// @Failure      404  {object}  map[string]interface{}  "Profile not found"
// @Router       /api/v1/pwd/{id} [put]
// UpdateHandler edits a profile
// PUT /api/v1/pwd/:id
func (h *ProfileHandlers) UpdateHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var rec models.ProfileRecord
		if err := c.ShouldBindJSON(&rec); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
			return
		}

		res, err := h.service.Update(c.Request.Context(), middleware.CurrentUser(c), c.Param("id"), rec)
		if err != nil {
			writeProfileError(c, err, "update profile")
			return
		}
		c.JSON(http.StatusOK, res)
	}
}

// @Summary      Update profile status
// @Tags         Profiles
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        id    path  string               true  "Profile ID"
// @Param        body  body  UpdateStatusRequest  true  "New status"
// @Success      200  {object}  profiles.Result
// @Failure      400  {object}  map[string]interface{}  "Invalid status"
// @Failure      404  {object}  map[string]interface{}  "Profile not found"
// @Router       /api/v1/pwd/{id}/status [patch]
// UpdateStatusHandler changes a profile's status
// PATCH /api/v1/pwd/:id/status
func (h *ProfileHandlers) UpdateStatusHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req UpdateStatusRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Status is required"})
			return
		}

		res, err := h.service.UpdateStatus(c.Request.Context(), middleware.CurrentUser(c), c.Param("id"), req.Status)
		if err != nil {
			writeProfileError(c, err, "update status")
			return
		}
		c.JSON(http.StatusOK, res)
	}
}

// @Summary      Mark ID card printed
// @Tags         Profiles
// @Security     Bearer
// @Produce      json
// @Param        id  path  string  true  "Profile ID"
// @Success      200  {object}  profiles.Result
// @Failure      404  {object}  map[string]interface{}  "Profile not found"
// @Router       /api/v1/pwd/{id}/printed [post]
// MarkPrintedHandler flags the profile's card as printed
// POST /api/v1/pwd/:id/printed
func (h *ProfileHandlers) MarkPrintedHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		res, err := h.service.MarkPrinted(c.Request.Context(), middleware.CurrentUser(c), c.Param("id"))
		if err != nil {
			writeProfileError(c, err, "mark card printed")
			return
		}
		c.JSON(http.StatusOK, res)
	}
}

// @Summary      Generate PWD number
// @Description  Assigns the next BB-DD-YY-SSSS number of the current year.
// @Tags         Profiles
// @Security     Bearer
// @Produce      json
// @Param        id  path  string  true  "Profile ID"
// @Success      200  {object}  profiles.Result
// @Failure      400  {object}  map[string]interface{}  "Profile already has a number"
// @Failure      404  {object}  map[string]interface{}  "Profile not found"
// @Router       /api/v1/pwd/{id}/generate-number [post]
// GenerateNumberHandler assigns a PWD number
// POST /api/v1/pwd/:id/generate-number
func (h *ProfileHandlers) GenerateNumberHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		res, err := h.service.GenerateNumber(c.Request.Context(), middleware.CurrentUser(c), c.Param("id"))
		if err != nil {
			writeProfileError(c, err, "generate PWD number")
			return
		}
		c.JSON(http.StatusOK, res)
	}
}

// @Summary      Delete profile
// @Description  Soft deletes a profile. force=true removes it with every sub-record and is limited to ADMIN.
// @Tags         Profiles
// @Security     Bearer
// @Produce      json
// @Param        id     path   string  true   "Profile ID"
// @Param        force  query  bool    false  "Permanently delete"
// @Success      200  {object}  map[string]interface{}  "message, warnings"
// @Failure      403  {object}  map[string]interface{}  "Force delete requires ADMIN"
// @Failure      404  {object}  map[string]interface{}  "Profile not found"
// @Router       /api/v1/pwd/{id} [delete]
// DeleteHandler removes a profile
// DELETE /api/v1/pwd/:id?force=true
func (h *ProfileHandlers) DeleteHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		force, _ := strconv.ParseBool(c.DefaultQuery("force", "false"))
		actor := middleware.CurrentUser(c)
		if force && (actor == nil || actor.Role != models.RoleAdmin) {
			c.JSON(http.StatusForbidden, gin.H{"error": "Only administrators can permanently delete profiles"})
			return
		}

		res, err := h.service.Delete(c.Request.Context(), actor, c.Param("id"), force)
		if err != nil {
			writeProfileError(c, err, "delete profile")
			return
		}

		msg := "Profile deleted"
		if force {
			msg = "Profile permanently deleted"
		}
		c.JSON(http.StatusOK, gin.H{
			"message":  msg,
			"warnings": res.Warnings,
		})
	}
}
