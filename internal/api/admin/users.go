// users.go implements handlers for account management: listing, viewing, creating,
// updating, deleting and restoring office staff and member accounts.
package admin

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/pwd-registry/pwd-registry/internal/audit"
	"github.com/pwd-registry/pwd-registry/internal/auth"
	"github.com/pwd-registry/pwd-registry/internal/config"
	"github.com/pwd-registry/pwd-registry/internal/db/models"
	"github.com/pwd-registry/pwd-registry/internal/db/repositories"
	"github.com/pwd-registry/pwd-registry/internal/middleware"
)

// UserHandlers handles user management endpoints
type UserHandlers struct {
	cfg      *config.Config
	userRepo *repositories.UserRepository
	trail    *audit.Trail
}

// NewUserHandlers creates a new UserHandlers instance
func NewUserHandlers(cfg *config.Config, database *sqlx.DB, trail *audit.Trail) *UserHandlers {
	return &UserHandlers{
		cfg:      cfg,
		userRepo: repositories.NewUserRepository(database),
		trail:    trail,
	}
}

// CreateUserRequest represents the request to create a new account
type CreateUserRequest struct {
	IDNumber   string      `json:"id_number" binding:"required"`
	FirstName  string      `json:"first_name" binding:"required,max=255"`
	LastName   string      `json:"last_name" binding:"required,max=255"`
	MiddleName *string     `json:"middle_name" binding:"omitempty,max=255"`
	Password   string      `json:"password" binding:"required"`
	Role       models.Role `json:"role" binding:"required"`
	Unit       *string     `json:"unit" binding:"omitempty,max=255"`
	Status     string      `json:"status"`
}

// UpdateUserRequest represents the request to update an account. Absent fields
// are left unchanged; a non-empty password replaces the current one.
type UpdateUserRequest struct {
	IDNumber   *string      `json:"id_number"`
	FirstName  *string      `json:"first_name" binding:"omitempty,min=1,max=255"`
	LastName   *string      `json:"last_name" binding:"omitempty,min=1,max=255"`
	MiddleName *string      `json:"middle_name" binding:"omitempty,max=255"`
	Password   *string      `json:"password"`
	Role       *models.Role `json:"role"`
	Unit       *string      `json:"unit" binding:"omitempty,max=255"`
	Status     *string      `json:"status"`
}

func validUserStatus(s string) bool {
	return s == models.UserStatusActive || s == models.UserStatusInactive
}

func (h *UserHandlers) bcryptCost() int {
	if h.cfg != nil {
		return h.cfg.Auth.BcryptCost
	}
	return auth.DefaultBcryptCost
}

// @Summary      List users
// @Description  Get a paginated list of accounts, newest first. Requires the ADMIN role.
// @Tags         Users
// @Security     Bearer
// @Produce      json
// @Param        role          query  string  false  "Filter by role"
// @Param        status        query  string  false  "Filter by status (ACTIVE, INACTIVE)"
// @Param        search        query  string  false  "Match first name, last name or ID number"
// @Param        with_trashed  query  bool    false  "Include deleted accounts"
// @Param        page          query  int     false  "Page number (default 1)"
// @Param        per_page      query  int     false  "Items per page, max 100 (default 20)"
// @Success      200  {object}  map[string]interface{}  "users: []models.User, pagination: map"
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Failure      403  {object}  map[string]interface{}  "Forbidden"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/v1/users [get]
// ListUsersHandler lists accounts with pagination
// GET /api/v1/users?page=1&per_page=20
func (h *UserHandlers) ListUsersHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		page, perPage, offset := parsePagination(c)

		filters := repositories.UserFilters{
			Role:        optionalQuery(c, "role"),
			Status:      optionalQuery(c, "status"),
			Search:      c.Query("search"),
			WithTrashed: c.Query("with_trashed") == "true" || c.Query("with_trashed") == "1",
		}

		users, total, err := h.userRepo.List(c.Request.Context(), filters, perPage, offset)
		if err != nil {
			slog.Error("failed to list users", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list users"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"users":      users,
			"pagination": paginationBody(page, perPage, total),
		})
	}
}

// @Summary      Get user
// @Description  Get an account by ID. Deleted accounts are returned with deleted=true so they can be restored. Requires the ADMIN role.
// @Tags         Users
// @Security     Bearer
// @Produce      json
// @Param        id  path  string  true  "User ID"
// @Success      200  {object}  map[string]interface{}  "user: models.User, deleted: bool"
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Failure      404  {object}  map[string]interface{}  "User not found"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/v1/users/{id} [get]
// GetUserHandler retrieves a specific account by ID
// GET /api/v1/users/:id
func (h *UserHandlers) GetUserHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := h.userRepo.GetByIDWithTrashed(c.Request.Context(), c.Param("id"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve user"})
			return
		}
		if user == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"user":    user,
			"deleted": user.DeletedAt != nil,
		})
	}
}

// @Summary      Create user
// @Description  Create an account. Requires the ADMIN role.
// @Tags         Users
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  CreateUserRequest  true  "User creation request"
// @Success      201  {object}  map[string]interface{}  "user: models.User"
// @Failure      400  {object}  map[string]interface{}  "Invalid request"
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Failure      409  {object}  map[string]interface{}  "ID number already in use"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/v1/users [post]
// CreateUserHandler creates a new account
// POST /api/v1/users
func (h *UserHandlers) CreateUserHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateUserRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
			return
		}
		req.IDNumber = strings.TrimSpace(req.IDNumber)
		if req.IDNumber == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "ID number is required"})
			return
		}
		if !req.Role.Valid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid role: " + string(req.Role)})
			return
		}
		if req.Status == "" {
			req.Status = models.UserStatusActive
		}
		if !validUserStatus(req.Status) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid status: " + req.Status})
			return
		}

		ctx := c.Request.Context()
		taken, err := h.userRepo.IDNumberTaken(ctx, req.IDNumber, "")
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to check existing user"})
			return
		}
		if taken {
			c.JSON(http.StatusConflict, gin.H{"error": "ID number already in use"})
			return
		}

		hash, err := auth.HashPassword(req.Password, h.bcryptCost())
		if errors.Is(err, auth.ErrPasswordTooShort) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create user"})
			return
		}

		user := &models.User{
			IDNumber:     req.IDNumber,
			FirstName:    req.FirstName,
			LastName:     req.LastName,
			MiddleName:   req.MiddleName,
			PasswordHash: hash,
			Role:         req.Role,
			Unit:         req.Unit,
			Status:       req.Status,
		}
		if err := h.userRepo.Create(ctx, user); err != nil {
			slog.Error("failed to create user", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create user"})
			return
		}
		h.trail.RecordCreate(ctx, user)

		c.JSON(http.StatusCreated, gin.H{"user": user})
	}
}

// @Summary      Update user
// @Description  Update an account's details, role, status or password. Requires the ADMIN role.
// @Tags         Users
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        id    path  string             true  "User ID"
// @Param        body  body  UpdateUserRequest  true  "User update request"
// @Success      200  {object}  map[string]interface{}  "user: models.User"
// @Failure      400  {object}  map[string]interface{}  "Invalid request"
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Failure      404  {object}  map[string]interface{}  "User not found"
// @Failure      409  {object}  map[string]interface{}  "ID number already in use by another account"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/v1/users/{id} [put]
// UpdateUserHandler updates an account
// PUT /api/v1/users/:id
func (h *UserHandlers) UpdateUserHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.Param("id")

		var req UpdateUserRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
			return
		}
		if req.Role != nil && !req.Role.Valid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid role: " + string(*req.Role)})
			return
		}
		if req.Status != nil && !validUserStatus(*req.Status) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid status: " + *req.Status})
			return
		}

		ctx := c.Request.Context()
		user, err := h.userRepo.GetByID(ctx, userID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve user"})
			return
		}
		if user == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
			return
		}
		prior := user.AuditFields()

		if req.IDNumber != nil {
			idNumber := strings.TrimSpace(*req.IDNumber)
			if idNumber == "" {
				c.JSON(http.StatusBadRequest, gin.H{"error": "ID number cannot be empty"})
				return
			}
			if idNumber != user.IDNumber {
				taken, err := h.userRepo.IDNumberTaken(ctx, idNumber, userID)
				if err != nil {
					c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to check ID number availability"})
					return
				}
				if taken {
					c.JSON(http.StatusConflict, gin.H{"error": "ID number already in use by another account"})
					return
				}
			}
			user.IDNumber = idNumber
		}
		if req.FirstName != nil {
			user.FirstName = *req.FirstName
		}
		if req.LastName != nil {
			user.LastName = *req.LastName
		}
		if req.MiddleName != nil {
			user.MiddleName = req.MiddleName
		}
		if req.Unit != nil {
			user.Unit = req.Unit
		}
		if req.Role != nil {
			user.Role = *req.Role
		}
		if req.Status != nil {
			user.Status = *req.Status
		}

		var hash string
		if req.Password != nil && *req.Password != "" {
			hash, err = auth.HashPassword(*req.Password, h.bcryptCost())
			if errors.Is(err, auth.ErrPasswordTooShort) {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update user"})
				return
			}
		}

		if err := h.userRepo.Update(ctx, user); err != nil {
			slog.Error("failed to update user", "user_id", userID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update user"})
			return
		}
		if hash != "" {
			if err := h.userRepo.UpdatePassword(ctx, userID, hash); err != nil {
				slog.Error("failed to update password", "user_id", userID, "error", err)
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update password"})
				return
			}
		}
		h.trail.RecordUpdate(ctx, user, prior, user.AuditFields())

		c.JSON(http.StatusOK, gin.H{"user": user})
	}
}

// @Summary      Delete user
// @Description  Soft-delete an account, or remove it permanently with force=true. Accounts cannot delete themselves. Requires the ADMIN role.
// @Tags         Users
// @Security     Bearer
// @Produce      json
// @Param        id     path   string  true   "User ID"
// @Param        force  query  bool    false  "Delete permanently"
// @Success      200  {object}  map[string]interface{}  "message"
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Failure      403  {object}  map[string]interface{}  "You cannot delete your own account"
// @Failure      404  {object}  map[string]interface{}  "User not found"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/v1/users/{id} [delete]
// DeleteUserHandler deletes an account
// DELETE /api/v1/users/:id
func (h *UserHandlers) DeleteUserHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.Param("id")
		if current := middleware.CurrentUser(c); current != nil && current.ID == userID {
			c.JSON(http.StatusForbidden, gin.H{"error": "You cannot delete your own account"})
			return
		}
		force := c.Query("force") == "true" || c.Query("force") == "1"

		ctx := c.Request.Context()
		lookup := h.userRepo.GetByID
		if force {
			lookup = h.userRepo.GetByIDWithTrashed
		}
		user, err := lookup(ctx, userID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve user"})
			return
		}
		if user == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
			return
		}
		finalState := user.AuditFields()

		if force {
			if err := h.userRepo.Delete(ctx, userID); err != nil {
				slog.Error("failed to delete user", "user_id", userID, "error", err)
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete user"})
				return
			}
			h.trail.RecordDelete(ctx, user, finalState, true)
			c.JSON(http.StatusOK, gin.H{"message": "User permanently deleted"})
			return
		}

		if err := h.userRepo.SoftDelete(ctx, userID); err != nil {
			slog.Error("failed to delete user", "user_id", userID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete user"})
			return
		}
		h.trail.RecordDelete(ctx, user, finalState, false)

		c.JSON(http.StatusOK, gin.H{"message": "User deleted successfully"})
	}
}

// @Summary      Restore user
// @Description  Bring back a soft-deleted account. Requires the ADMIN role.
// @Tags         Users
// @Security     Bearer
// @Produce      json
// @Param        id  path  string  true  "User ID"
// @Success      200  {object}  map[string]interface{}  "message, user: models.User"
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Failure      404  {object}  map[string]interface{}  "User not found"
// @Failure      409  {object}  map[string]interface{}  "User is not deleted"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/v1/users/{id}/restore [post]
// RestoreUserHandler restores a soft-deleted account
// POST /api/v1/users/:id/restore
func (h *UserHandlers) RestoreUserHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.Param("id")
		ctx := c.Request.Context()

		user, err := h.userRepo.GetByIDWithTrashed(ctx, userID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve user"})
			return
		}
		if user == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
			return
		}
		if user.DeletedAt == nil {
			c.JSON(http.StatusConflict, gin.H{"error": "User is not deleted"})
			return
		}

		if err := h.userRepo.Restore(ctx, userID); err != nil {
			slog.Error("failed to restore user", "user_id", userID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to restore user"})
			return
		}
		user.DeletedAt = nil
		h.trail.RecordRestore(ctx, user)

		c.JSON(http.StatusOK, gin.H{
			"message": "User restored successfully",
			"user":    user,
		})
	}
}
