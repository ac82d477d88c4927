// stats.go implements the masterlist dashboard: headline counts and the breakdown of
// registered PWDs by barangay and disability type.
package admin

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
)

// StatsHandler handles stats-related API requests
type StatsHandler struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewStatsHandler creates a new stats handler
func NewStatsHandler(database *sqlx.DB) *StatsHandler {
	return &StatsHandler{
		db:  database,
		now: time.Now,
	}
}

// DashboardStats represents the response for dashboard statistics
type DashboardStats struct {
	TotalPWD         int64        `json:"total_pwd"` // active + deceased
	ActiveCount      int64        `json:"active_count"`
	DeceasedCount    int64        `json:"deceased_count"`
	EmployedCount    int64        `json:"employed_count"`
	NewThisMonth     int64        `json:"new_this_month"`
	PendingApprovals int64        `json:"pending_approvals"`
	CardsToPrint     int64        `json:"cards_to_print"`
	ByBarangay       []NamedCount `json:"by_barangay"`
	ByDisabilityType []NamedCount `json:"by_disability_type"`
}

// NamedCount is a count of registered PWDs for one barangay or disability type.
type NamedCount struct {
	Name  string `json:"name" db:"name"`
	Count int64  `json:"count" db:"count"`
}

// @Summary      Get dashboard statistics
// @Description  Returns headline masterlist counts and registered PWDs by barangay and by disability type. year filters on date applied.
// @Tags         Stats
// @Security     Bearer
// @Produce      json
// @Param        year  query  int  false  "Year applied"
// @Success      200  {object}  DashboardStats
// @Failure      400  {object}  map[string]interface{}  "Invalid year"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/v1/dashboard/stats [get]
// GetDashboardStats returns dashboard statistics; the headline counts take a single round-trip.
func (h *StatsHandler) GetDashboardStats(c *gin.Context) {
	ctx := c.Request.Context()

	var year *int
	if y := c.Query("year"); y != "" {
		n, err := strconv.Atoi(y)
		if err != nil || n < 1900 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid year"})
			return
		}
		year = &n
	}

	now := h.now()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())

	// $1 is the optional year filter; NULL disables it.
	query := `
		SELECT
			COUNT(*) FILTER (WHERE status = 'ACTIVE') AS active_count,
			COUNT(*) FILTER (WHERE status = 'DECEASED') AS deceased_count,
			COUNT(*) FILTER (WHERE status = 'ACTIVE' AND EXISTS (
				SELECT 1 FROM pwd_employment e WHERE e.pwd_profile_id = p.id AND e.status = 'Employed'
			)) AS employed_count,
			COUNT(*) FILTER (WHERE status = 'ACTIVE' AND created_at >= $2) AS new_this_month,
			COUNT(*) FILTER (WHERE status = 'ACTIVE' AND card_printed = FALSE) AS cards_to_print,
			(SELECT COUNT(*) FROM pending_registrations WHERE status = 'PENDING' AND deleted_at IS NULL) AS pending_approvals
		FROM pwd_profiles p
		WHERE deleted_at IS NULL
		  AND ($1::int IS NULL OR EXTRACT(YEAR FROM date_applied) = $1)
	`

	var stats DashboardStats
	err := h.db.QueryRowContext(ctx, query, year, monthStart).Scan(
		&stats.ActiveCount,
		&stats.DeceasedCount,
		&stats.EmployedCount,
		&stats.NewThisMonth,
		&stats.CardsToPrint,
		&stats.PendingApprovals,
	)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load dashboard statistics"})
		return
	}
	stats.TotalPWD = stats.ActiveCount + stats.DeceasedCount

	// Breakdowns are best-effort; an empty list is returned on error.
	stats.ByBarangay = []NamedCount{}
	_ = h.db.SelectContext(ctx, &stats.ByBarangay, `
		SELECT b.name, COUNT(p.id) AS count
		FROM barangays b
		LEFT JOIN pwd_addresses a ON a.barangay_id = b.id
		LEFT JOIN pwd_profiles p ON p.id = a.pwd_profile_id
			AND p.status IN ('ACTIVE', 'DECEASED') AND p.deleted_at IS NULL
			AND ($1::int IS NULL OR EXTRACT(YEAR FROM p.date_applied) = $1)
		GROUP BY b.id, b.name
		ORDER BY count DESC, b.name
	`, year)

	stats.ByDisabilityType = []NamedCount{}
	_ = h.db.SelectContext(ctx, &stats.ByDisabilityType, `
		SELECT t.name, COUNT(p.id) AS count
		FROM disability_types t
		LEFT JOIN pwd_disabilities d ON d.disability_type_id = t.id
		LEFT JOIN pwd_profiles p ON p.id = d.pwd_profile_id
			AND p.status IN ('ACTIVE', 'DECEASED') AND p.deleted_at IS NULL
			AND ($1::int IS NULL OR EXTRACT(YEAR FROM p.date_applied) = $1)
		GROUP BY t.id, t.name
		ORDER BY count DESC, t.name
	`, year)

	c.JSON(http.StatusOK, stats)
}
