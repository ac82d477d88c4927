// activity_log_repository.go implements ActivityLogRepository, providing writes and filtered
// reads of activity log entries plus the monthly archive and retention queries.
package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pwd-registry/pwd-registry/internal/db/models"
)

// ActivityLogRepository handles activity_logs and activity_log_archives
type ActivityLogRepository struct {
	db DBTX
}

// NewActivityLogRepository creates a new ActivityLogRepository
func NewActivityLogRepository(db *sqlx.DB) *ActivityLogRepository {
	return &ActivityLogRepository{db: db}
}

// WithTx returns a copy of the repository bound to tx
func (r *ActivityLogRepository) WithTx(tx *sqlx.Tx) *ActivityLogRepository {
	return &ActivityLogRepository{db: tx}
}

// ActivityLogFilters contains filters for querying activity logs
type ActivityLogFilters struct {
	ActionType *string
	ModelType  *string
	UserID     *string
	StartDate  *time.Time
	EndDate    *time.Time
	Search     string // matches description
}

// Create writes a new activity log entry
func (r *ActivityLogRepository) Create(ctx context.Context, log *models.ActivityLog) error {
	if log.ID == "" {
		log.ID = uuid.New().String()
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now()
	}

	oldJSON, err := marshalValues(log.OldValues)
	if err != nil {
		return fmt.Errorf("failed to encode old values: %w", err)
	}
	newJSON, err := marshalValues(log.NewValues)
	if err != nil {
		return fmt.Errorf("failed to encode new values: %w", err)
	}

	query := `
		INSERT INTO activity_logs (id, user_id, action_type, model_type, model_id, old_values, new_values,
			ip_address, user_agent, description, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err = r.db.ExecContext(ctx, query,
		log.ID,
		log.UserID,
		log.ActionType,
		log.ModelType,
		log.ModelID,
		oldJSON,
		newJSON,
		log.IPAddress,
		log.UserAgent,
		log.Description,
		log.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create activity log: %w", err)
	}
	return nil
}

// applyFilters appends the filter predicates to where, returning the new
// clause, args and next parameter index. col qualifies the timestamp column.
func applyFilters(where string, args []interface{}, paramIndex int, f ActivityLogFilters, createdCol string) (string, []interface{}, int) {
	if f.ActionType != nil {
		where += fmt.Sprintf(` AND l.action_type = $%d`, paramIndex)
		args = append(args, *f.ActionType)
		paramIndex++
	}
	if f.ModelType != nil {
		where += fmt.Sprintf(` AND l.model_type = $%d`, paramIndex)
		args = append(args, *f.ModelType)
		paramIndex++
	}
	if f.UserID != nil {
		where += fmt.Sprintf(` AND l.user_id = $%d`, paramIndex)
		args = append(args, *f.UserID)
		paramIndex++
	}
	if f.StartDate != nil {
		where += fmt.Sprintf(` AND l.%s >= $%d`, createdCol, paramIndex)
		args = append(args, *f.StartDate)
		paramIndex++
	}
	if f.EndDate != nil {
		where += fmt.Sprintf(` AND l.%s <= $%d`, createdCol, paramIndex)
		args = append(args, *f.EndDate)
		paramIndex++
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		where += fmt.Sprintf(` AND l.description ILIKE $%d`, paramIndex)
		args = append(args, "%"+s+"%")
		paramIndex++
	}
	return where, args, paramIndex
}

const activityLogSelect = `
	SELECT l.id, l.user_id, l.action_type, l.model_type, l.model_id, l.old_values, l.new_values,
	       l.ip_address, l.user_agent, l.description, l.created_at,
	       NULLIF(TRIM(COALESCE(u.first_name, '') || ' ' || COALESCE(u.last_name, '')), '') AS user_name
	FROM activity_logs l
	LEFT JOIN users u ON u.id = l.user_id`

// List retrieves activity logs with optional filters and pagination
func (r *ActivityLogRepository) List(ctx context.Context, filters ActivityLogFilters, limit, offset int) ([]*models.ActivityLog, int, error) {
	where, args, paramIndex := applyFilters(` WHERE 1=1`, make([]interface{}, 0), 1, filters, "created_at")

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM activity_logs l`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count activity logs: %w", err)
	}

	query := activityLogSelect + where +
		fmt.Sprintf(` ORDER BY l.created_at DESC LIMIT $%d OFFSET $%d`, paramIndex, paramIndex+1)
	args = append(args, limit, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list activity logs: %w", err)
	}
	defer rows.Close()

	logs := make([]*models.ActivityLog, 0)
	for rows.Next() {
		log, err := scanActivityLog(rows)
		if err != nil {
			return nil, 0, err
		}
		logs = append(logs, log)
	}
	return logs, total, rows.Err()
}

// Get retrieves a single activity log entry by ID
func (r *ActivityLogRepository) Get(ctx context.Context, id string) (*models.ActivityLog, error) {
	row := r.db.QueryRowContext(ctx, activityLogSelect+` WHERE l.id = $1`, id)
	log, err := scanActivityLog(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return log, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanActivityLog(s rowScanner) (*models.ActivityLog, error) {
	log := &models.ActivityLog{}
	var oldJSON, newJSON []byte

	err := s.Scan(
		&log.ID,
		&log.UserID,
		&log.ActionType,
		&log.ModelType,
		&log.ModelID,
		&oldJSON,
		&newJSON,
		&log.IPAddress,
		&log.UserAgent,
		&log.Description,
		&log.CreatedAt,
		&log.UserName,
	)
	if err != nil {
		return nil, err
	}
	if log.OldValues, err = unmarshalValues(oldJSON); err != nil {
		return nil, fmt.Errorf("failed to decode old values: %w", err)
	}
	if log.NewValues, err = unmarshalValues(newJSON); err != nil {
		return nil, fmt.Errorf("failed to decode new values: %w", err)
	}
	return log, nil
}

// ---------------------------------------------------------------------------
// Archive
// ---------------------------------------------------------------------------

// CountBetween counts live entries created in [from, to)
func (r *ActivityLogRepository) CountBetween(ctx context.Context, from, to time.Time) (int64, error) {
	var n int64
	if err := r.db.GetContext(ctx, &n,
		`SELECT COUNT(*) FROM activity_logs WHERE created_at >= $1 AND created_at < $2`, from, to); err != nil {
		return 0, fmt.Errorf("failed to count activity logs: %w", err)
	}
	return n, nil
}

// Archive copies live entries created in [from, to) into activity_log_archives,
// tagged with their UTC month, and deletes them from activity_logs. A nil range
// archives every live entry. Both statements must run in one transaction.
func (r *ActivityLogRepository) Archive(ctx context.Context, from, to *time.Time) (int64, error) {
	where := ``
	args := make([]interface{}, 0, 2)
	if from != nil && to != nil {
		where = ` WHERE created_at >= $1 AND created_at < $2`
		args = append(args, *from, *to)
	}

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO activity_log_archives (id, original_id, user_id, action_type, model_type, model_id,
			old_values, new_values, ip_address, user_agent, description, original_created_at, archive_month, archived_at)
		SELECT gen_random_uuid(), id, user_id, action_type, model_type, model_id,
			old_values, new_values, ip_address, user_agent, description, created_at,
			to_char(created_at AT TIME ZONE 'UTC', 'YYYY-MM'), NOW()
		FROM activity_logs`+where, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to archive activity logs: %w", err)
	}
	moved, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to archive activity logs: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, `DELETE FROM activity_logs`+where, args...); err != nil {
		return 0, fmt.Errorf("failed to delete archived activity logs: %w", err)
	}
	return moved, nil
}

// ArchiveMonths lists archived months with their entry counts, newest first
func (r *ActivityLogRepository) ArchiveMonths(ctx context.Context) ([]models.ArchiveMonthSummary, error) {
	months := make([]models.ArchiveMonthSummary, 0)
	err := r.db.SelectContext(ctx, &months, `
		SELECT archive_month, COUNT(*) AS entry_count
		FROM activity_log_archives
		GROUP BY archive_month
		ORDER BY archive_month DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list archive months: %w", err)
	}
	return months, nil
}

const archivedSelect = `
	SELECT l.id, l.user_id, l.action_type, l.model_type, l.model_id, l.old_values, l.new_values,
	       l.ip_address, l.user_agent, l.description, l.original_created_at,
	       NULLIF(TRIM(COALESCE(u.first_name, '') || ' ' || COALESCE(u.last_name, '')), '') AS user_name,
	       l.original_id, l.archive_month, l.archived_at
	FROM activity_log_archives l
	LEFT JOIN users u ON u.id = l.user_id`

// ListArchived retrieves archived entries of one month with optional filters and pagination
func (r *ActivityLogRepository) ListArchived(ctx context.Context, month string, filters ActivityLogFilters, limit, offset int) ([]*models.ArchivedActivityLog, int, error) {
	where, args, paramIndex := applyFilters(` WHERE l.archive_month = $1`, []interface{}{month}, 2, filters, "original_created_at")

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM activity_log_archives l`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count archived activity logs: %w", err)
	}

	query := archivedSelect + where +
		fmt.Sprintf(` ORDER BY l.original_created_at DESC LIMIT $%d OFFSET $%d`, paramIndex, paramIndex+1)
	args = append(args, limit, offset)

	entries, err := r.queryArchived(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}

// ArchivedForMonth returns every archived entry of a month, oldest first
func (r *ActivityLogRepository) ArchivedForMonth(ctx context.Context, month string) ([]*models.ArchivedActivityLog, error) {
	return r.queryArchived(ctx, archivedSelect+` WHERE l.archive_month = $1 ORDER BY l.original_created_at`, month)
}

func (r *ActivityLogRepository) queryArchived(ctx context.Context, query string, args ...interface{}) ([]*models.ArchivedActivityLog, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list archived activity logs: %w", err)
	}
	defer rows.Close()

	entries := make([]*models.ArchivedActivityLog, 0)
	for rows.Next() {
		e := &models.ArchivedActivityLog{}
		var oldJSON, newJSON []byte
		err := rows.Scan(
			&e.ID,
			&e.UserID,
			&e.ActionType,
			&e.ModelType,
			&e.ModelID,
			&oldJSON,
			&newJSON,
			&e.IPAddress,
			&e.UserAgent,
			&e.Description,
			&e.OriginalCreatedAt,
			&e.UserName,
			&e.OriginalID,
			&e.ArchiveMonth,
			&e.ArchivedAt,
		)
		if err != nil {
			return nil, err
		}
		e.CreatedAt = e.OriginalCreatedAt
		if e.OldValues, err = unmarshalValues(oldJSON); err != nil {
			return nil, fmt.Errorf("failed to decode old values: %w", err)
		}
		if e.NewValues, err = unmarshalValues(newJSON); err != nil {
			return nil, fmt.Errorf("failed to decode new values: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// PurgeArchivedBefore deletes archived entries originally created before cutoff
func (r *ActivityLogRepository) PurgeArchivedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM activity_log_archives WHERE original_created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge archived activity logs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to purge archived activity logs: %w", err)
	}
	return n, nil
}

// marshalValues encodes a value map for a JSONB column; a nil map becomes SQL NULL.
func marshalValues(v map[string]any) (interface{}, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return b, nil
}

func unmarshalValues(b []byte) (map[string]any, error) {
	if b == nil {
		return nil, nil
	}
	var v map[string]any
	if err := json.Unmarshal(b, &v); err != nil {
		return nil, err
	}
	return v, nil
}
