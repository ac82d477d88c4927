// case_repository.go implements CaseRepository, the review queue of pending registrations.
package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pwd-registry/pwd-registry/internal/db/models"
)

const caseColumns = `id, pwd_profile_id, submission_type, status, reviewed_by, reviewed_at,
	review_notes, user_id, created_at, updated_at, deleted_at`

// CaseRepository handles pending_registrations
type CaseRepository struct {
	db DBTX
}

// NewCaseRepository creates a new CaseRepository
func NewCaseRepository(db *sqlx.DB) *CaseRepository {
	return &CaseRepository{db: db}
}

// WithTx returns a copy of the repository bound to tx
func (r *CaseRepository) WithTx(tx *sqlx.Tx) *CaseRepository {
	return &CaseRepository{db: tx}
}

// CaseFilters contains filters for the review queue
type CaseFilters struct {
	Statuses       []models.CaseStatus
	SubmissionType *models.SubmissionType
	Search         string // profile name or pwd_number
}

// Create inserts a new case
func (r *CaseRepository) Create(ctx context.Context, c *models.RegistrationCase) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	now := time.Now()
	c.CreatedAt = now
	c.UpdatedAt = now
	if c.Status == "" {
		c.Status = models.CaseStatusPending
	}
	if c.SubmissionType == "" {
		c.SubmissionType = models.SubmissionNew
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO pending_registrations (id, pwd_profile_id, submission_type, status, user_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		c.ID, c.ProfileID, c.SubmissionType, c.Status, c.UserID, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create registration case: %w", err)
	}
	return nil
}

// GetByID retrieves a non-deleted case by ID
func (r *CaseRepository) GetByID(ctx context.Context, id string) (*models.RegistrationCase, error) {
	var c models.RegistrationCase
	err := r.db.GetContext(ctx, &c,
		`SELECT `+caseColumns+` FROM pending_registrations WHERE id = $1 AND deleted_at IS NULL`, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get registration case: %w", err)
	}
	return &c, nil
}

// GetForUpdate retrieves a case and locks its row for the rest of the transaction
func (r *CaseRepository) GetForUpdate(ctx context.Context, id string) (*models.RegistrationCase, error) {
	var c models.RegistrationCase
	err := r.db.GetContext(ctx, &c,
		`SELECT `+caseColumns+` FROM pending_registrations WHERE id = $1 AND deleted_at IS NULL FOR UPDATE`, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock registration case: %w", err)
	}
	return &c, nil
}

// UpdateReview writes the review outcome of a case
func (r *CaseRepository) UpdateReview(ctx context.Context, c *models.RegistrationCase) error {
	c.UpdatedAt = time.Now()
	_, err := r.db.ExecContext(ctx, `
		UPDATE pending_registrations
		SET status = $2, reviewed_by = $3, reviewed_at = $4, review_notes = $5, updated_at = $6
		WHERE id = $1`,
		c.ID, c.Status, c.ReviewedBy, c.ReviewedAt, c.ReviewNotes, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update registration case: %w", err)
	}
	return nil
}

// LatestSubmitterCase returns the most recent non-deleted case for the profile
// that carries a submitting account, or nil.
func (r *CaseRepository) LatestSubmitterCase(ctx context.Context, profileID string) (*models.RegistrationCase, error) {
	var c models.RegistrationCase
	err := r.db.GetContext(ctx, &c, `
		SELECT `+caseColumns+`
		FROM pending_registrations
		WHERE pwd_profile_id = $1 AND user_id IS NOT NULL AND deleted_at IS NULL
		ORDER BY created_at DESC
		LIMIT 1`, profileID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest registration case: %w", err)
	}
	return &c, nil
}

// List retrieves the review queue with optional filters and pagination
func (r *CaseRepository) List(ctx context.Context, filters CaseFilters, limit, offset int) ([]*models.CaseListItem, int, error) {
	where := ` WHERE c.deleted_at IS NULL`
	args := make([]interface{}, 0)
	paramIndex := 1

	if len(filters.Statuses) > 0 {
		statuses := make([]string, len(filters.Statuses))
		for i, s := range filters.Statuses {
			statuses[i] = string(s)
		}
		where += fmt.Sprintf(` AND c.status = ANY($%d)`, paramIndex)
		args = append(args, pq.Array(statuses))
		paramIndex++
	}
	if filters.SubmissionType != nil {
		where += fmt.Sprintf(` AND c.submission_type = $%d`, paramIndex)
		args = append(args, *filters.SubmissionType)
		paramIndex++
	}
	if s := strings.TrimSpace(filters.Search); s != "" {
		where += fmt.Sprintf(` AND (p.first_name ILIKE $%d OR p.last_name ILIKE $%d OR p.pwd_number ILIKE $%d)`,
			paramIndex, paramIndex, paramIndex)
		args = append(args, "%"+s+"%")
		paramIndex++
	}

	from := ` FROM pending_registrations c
		JOIN pwd_profiles p ON p.id = c.pwd_profile_id
		LEFT JOIN users u ON u.id = c.reviewed_by`

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*)`+from+where, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count registration cases: %w", err)
	}

	query := `SELECT ` + prefixColumns("c", caseColumns) + `,
			p.first_name, p.last_name, p.pwd_number,
			NULLIF(TRIM(COALESCE(u.first_name, '') || ' ' || COALESCE(u.last_name, '')), '') AS reviewer_name` +
		from + where +
		fmt.Sprintf(` ORDER BY c.created_at DESC LIMIT $%d OFFSET $%d`, paramIndex, paramIndex+1)
	args = append(args, limit, offset)

	items := make([]*models.CaseListItem, 0)
	if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to list registration cases: %w", err)
	}
	return items, total, nil
}

// Stats summarises the queue. since is the start of "today" in the office's time zone.
func (r *CaseRepository) Stats(ctx context.Context, since time.Time) (*models.CaseStats, error) {
	var s models.CaseStats
	err := r.db.GetContext(ctx, &s, `
		SELECT
			COUNT(*) FILTER (WHERE status = 'PENDING') AS pending,
			COUNT(*) FILTER (WHERE status = 'UNDER_REVIEW') AS under_review,
			COUNT(*) FILTER (WHERE status = 'APPROVED' AND reviewed_at >= $1) AS approved_today,
			COUNT(*) FILTER (WHERE status = 'REJECTED' AND reviewed_at >= $1) AS rejected_today
		FROM pending_registrations
		WHERE deleted_at IS NULL`, since)
	if err != nil {
		return nil, fmt.Errorf("failed to get registration stats: %w", err)
	}
	return &s, nil
}
