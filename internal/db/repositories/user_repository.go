// user_repository.go implements UserRepository for office staff and PWD member accounts.
package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pwd-registry/pwd-registry/internal/db/models"
)

const userColumns = `id, id_number, first_name, last_name, middle_name, password_hash, role, unit, status,
	created_at, updated_at, deleted_at`

// UserRepository handles users
type UserRepository struct {
	db DBTX
}

// NewUserRepository creates a new UserRepository
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create inserts a new account
func (r *UserRepository) Create(ctx context.Context, u *models.User) error {
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	now := time.Now()
	u.CreatedAt = now
	u.UpdatedAt = now
	if u.Status == "" {
		u.Status = models.UserStatusActive
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (id, id_number, first_name, last_name, middle_name, password_hash, role, unit, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		u.ID, u.IDNumber, u.FirstName, u.LastName, u.MiddleName, u.PasswordHash, u.Role, u.Unit, u.Status,
		u.CreatedAt, u.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// GetByID retrieves a non-deleted account by ID
func (r *UserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1 AND deleted_at IS NULL`, id)
}

// GetByIDNumber retrieves a non-deleted account by its office-issued ID number
func (r *UserRepository) GetByIDNumber(ctx context.Context, idNumber string) (*models.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE id_number = $1 AND deleted_at IS NULL`, idNumber)
}

func (r *UserRepository) getOne(ctx context.Context, query string, arg string) (*models.User, error) {
	var u models.User
	err := r.db.GetContext(ctx, &u, query, arg)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &u, nil
}

// UpdatePassword replaces an account's password hash
func (r *UserRepository) UpdatePassword(ctx context.Context, id, hash string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET password_hash = $2, updated_at = NOW() WHERE id = $1`, id, hash)
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	return nil
}

// UserFilters narrows List. WithTrashed includes soft-deleted accounts.
type UserFilters struct {
	Role        *string
	Status      *string
	Search      string
	WithTrashed bool
}

// List returns a page of accounts, newest first, and the total matching count
func (r *UserRepository) List(ctx context.Context, filters UserFilters, limit, offset int) ([]*models.User, int, error) {
	where := ` WHERE 1=1`
	args := make([]interface{}, 0)
	paramIndex := 1

	if !filters.WithTrashed {
		where += ` AND deleted_at IS NULL`
	}
	if filters.Role != nil {
		where += fmt.Sprintf(` AND role = $%d`, paramIndex)
		args = append(args, *filters.Role)
		paramIndex++
	}
	if filters.Status != nil {
		where += fmt.Sprintf(` AND status = $%d`, paramIndex)
		args = append(args, *filters.Status)
		paramIndex++
	}
	if s := strings.TrimSpace(filters.Search); s != "" {
		where += fmt.Sprintf(` AND (first_name ILIKE $%d OR last_name ILIKE $%d OR id_number ILIKE $%d)`,
			paramIndex, paramIndex, paramIndex)
		args = append(args, "%"+s+"%")
		paramIndex++
	}

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM users`+where, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count users: %w", err)
	}

	query := `SELECT ` + userColumns + ` FROM users` + where +
		fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, paramIndex, paramIndex+1)
	args = append(args, limit, offset)

	users := make([]*models.User, 0)
	if err := r.db.SelectContext(ctx, &users, query, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to list users: %w", err)
	}
	return users, total, nil
}

// GetByIDWithTrashed retrieves an account by ID whether or not it is soft-deleted
func (r *UserRepository) GetByIDWithTrashed(ctx context.Context, id string) (*models.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

// IDNumberTaken reports whether any account other than excludeID, deleted or
// not, already holds idNumber.
func (r *UserRepository) IDNumberTaken(ctx context.Context, idNumber, excludeID string) (bool, error) {
	var taken bool
	err := r.db.GetContext(ctx, &taken,
		`SELECT EXISTS (SELECT 1 FROM users WHERE id_number = $1 AND id <> $2)`, idNumber, excludeID)
	if err != nil {
		return false, fmt.Errorf("failed to check id number: %w", err)
	}
	return taken, nil
}

// Update writes an account's profile fields, role and status. The password
// hash is changed only through UpdatePassword.
func (r *UserRepository) Update(ctx context.Context, u *models.User) error {
	u.UpdatedAt = time.Now()
	_, err := r.db.ExecContext(ctx, `
		UPDATE users
		SET id_number = $2, first_name = $3, last_name = $4, middle_name = $5,
		    role = $6, unit = $7, status = $8, updated_at = $9
		WHERE id = $1`,
		u.ID, u.IDNumber, u.FirstName, u.LastName, u.MiddleName, u.Role, u.Unit, u.Status, u.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	return nil
}

// SoftDelete marks an account deleted; it can no longer sign in
func (r *UserRepository) SoftDelete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET deleted_at = NOW() WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	return nil
}

// Delete removes an account row permanently
func (r *UserRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	return nil
}

// Restore clears a soft delete
func (r *UserRepository) Restore(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET deleted_at = NULL, updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to restore user: %w", err)
	}
	return nil
}
