// versions.go implements handlers for a profile's version history and restores.
package admin

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/pwd-registry/pwd-registry/internal/db/repositories"
	"github.com/pwd-registry/pwd-registry/internal/middleware"
	"github.com/pwd-registry/pwd-registry/internal/profiles"
	"github.com/pwd-registry/pwd-registry/internal/versioning"
)

// VersionHandlers handles version history endpoints
type VersionHandlers struct {
	service     *profiles.Service
	profileRepo *repositories.ProfileRepository
	versionRepo *repositories.VersionRepository
}

// NewVersionHandlers creates a new VersionHandlers instance
func NewVersionHandlers(service *profiles.Service, database *sqlx.DB) *VersionHandlers {
	return &VersionHandlers{
		service:     service,
		profileRepo: repositories.NewProfileRepository(database),
		versionRepo: repositories.NewVersionRepository(database),
	}
}

// VersionSummary is one row of a profile's history
type VersionSummary struct {
	VersionNumber int       `json:"version_number"`
	ChangeSummary string    `json:"change_summary"`
	ChangedBy     string    `json:"changed_by"`
	ChangedAt     time.Time `json:"changed_at"`
}

// versionParam parses the :version path segment; it writes a 400 and returns false when invalid.
func versionParam(c *gin.Context) (int, bool) {
	n, err := strconv.Atoi(c.Param("version"))
	if err != nil || n < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid version number"})
		return 0, false
	}
	return n, true
}

// @Summary      List profile versions
// @Tags         Versions
// @Security     Bearer
// @Produce      json
// @Param        id  path  string  true  "Profile ID"
// @Success      200  {object}  map[string]interface{}  "current_version, versions: []VersionSummary"
// @Failure      404  {object}  map[string]interface{}  "Profile not found"
// @Router       /api/v1/pwd/{id}/versions [get]
// ListHandler returns a profile's history newest first
// GET /api/v1/pwd/:id/versions
func (h *VersionHandlers) ListHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		profileID := c.Param("id")

		p, err := h.profileRepo.GetByID(ctx, profileID)
		if err != nil {
			slog.Error("failed to load profile", "profile_id", profileID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list versions"})
			return
		}
		if p == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Profile not found"})
			return
		}

		versions, err := h.versionRepo.List(ctx, profileID)
		if err != nil {
			slog.Error("failed to list versions", "profile_id", profileID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list versions"})
			return
		}

		out := make([]VersionSummary, 0, len(versions))
		for _, v := range versions {
			out = append(out, VersionSummary{
				VersionNumber: v.VersionNumber,
				ChangeSummary: v.ChangeSummary,
				ChangedBy:     v.ChangedByDisplay(),
				ChangedAt:     v.CreatedAt,
			})
		}
		c.JSON(http.StatusOK, gin.H{
			"current_version": p.CurrentVersion,
			"versions":        out,
		})
	}
}

// @Summary      Get profile version
// @Description  Returns one stored snapshot with its full data document.
// @Tags         Versions
// @Security     Bearer
// @Produce      json
// @Param        id       path  string  true  "Profile ID"
// @Param        version  path  int     true  "Version number"
// @Success      200  {object}  map[string]interface{}  "version: models.VersionSnapshot"
// @Failure      404  {object}  map[string]interface{}  "Version not found"
// @Router       /api/v1/pwd/{id}/versions/{version} [get]
// GetHandler returns one snapshot
// GET /api/v1/pwd/:id/versions/:version
func (h *VersionHandlers) GetHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		n, ok := versionParam(c)
		if !ok {
			return
		}

		v, err := h.versionRepo.Get(c.Request.Context(), c.Param("id"), n)
		if err != nil {
			slog.Error("failed to get version", "profile_id", c.Param("id"), "version", n, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve version"})
			return
		}
		if v == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Version not found"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"version":    v,
			"changed_by": v.ChangedByDisplay(),
		})
	}
}

// @Summary      Restore profile version
// @Description  Rewrites the profile from a stored version and records the restore as a new version.
// @Tags         Versions
// @Security     Bearer
// @Produce      json
// @Param        id       path  string  true  "Profile ID"
// @Param        version  path  int     true  "Version number"
// @Success      200  {object}  profiles.Result
// @Failure      400  {object}  map[string]interface{}  "PWD number now belongs to another profile"
// @Failure      404  {object}  map[string]interface{}  "Profile or version not found"
// @Router       /api/v1/pwd/{id}/versions/{version}/restore [post]
// RestoreHandler restores a version
// POST /api/v1/pwd/:id/versions/:version/restore
func (h *VersionHandlers) RestoreHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		n, ok := versionParam(c)
		if !ok {
			return
		}

		res, err := h.service.RestoreVersion(c.Request.Context(), middleware.CurrentUser(c), c.Param("id"), n)
		if err != nil {
			writeProfileError(c, err, "restore version")
			return
		}
		res.Message = versioning.RestoreSummary(n)
		c.JSON(http.StatusOK, res)
	}
}
