package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/taskhub-dev/taskhub/internal/audit"
	"github.com/taskhub-dev/taskhub/internal/models"
	"github.com/taskhub-dev/taskhub/internal/service"
	"gorm.io/gorm"
)

// CreateUserRequest is the body of an admin user creation.
type CreateUserRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
	Role     string `json:"role" binding:"required,oneof=employer employee"`
}

// AdminUser exposes account flags hidden from regular user responses.
type AdminUser struct {
	*models.User
	IsActive    bool `json:"is_active"`
	IsStaff     bool `json:"is_staff"`
	IsSuperuser bool `json:"is_superuser"`
}

func adminUser(u *models.User) AdminUser {
	return AdminUser{User: u, IsActive: u.IsActive, IsStaff: u.IsStaff, IsSuperuser: u.IsSuperuser}
}

type AdminHandler struct {
	db    *gorm.DB
	users *service.UserService
}

func NewAdminHandler(db *gorm.DB, users *service.UserService) *AdminHandler {
	return &AdminHandler{db: db, users: users}
}

// ListUsers godoc
// @Summary List all users (admin only)
// @Tags admin
// @Security BearerAuth
// @Produce json
// @Param page query int false "Page number"
// @Success 200 {object} Response
// @Failure 403 {object} Response
// @Router /admin/users/ [get]
func (h *AdminHandler) ListUsers(c *gin.Context) {
	page := 1
	if raw := c.Query("page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			failure(c, http.StatusBadRequest, "Failed to retrieve users.", map[string][]string{"page": {"A valid integer is required."}})
			return
		}
		page = n
	}

	result, err := h.users.List(c.Request.Context(), page)
	if err != nil {
		handleServiceError(c, err, "Failed to retrieve users.", "Invalid page.")
		return
	}

	out := service.Page[AdminUser]{
		Count:    result.Count,
		Next:     result.Next,
		Previous: result.Previous,
		Results:  make([]AdminUser, 0, len(result.Results)),
	}
	for i := range result.Results {
		out.Results = append(out.Results, adminUser(&result.Results[i]))
	}
	success(c, "Users retrieved successfully.", out)
}

// CreateUser godoc
// @Summary Create an employer or employee (admin only)
// @Description Creates the account and provisions its permission group
// @Tags admin
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param user body CreateUserRequest true "User"
// @Success 200 {object} Response
// @Failure 400 {object} Response
// @Failure 409 {object} Response
// @Router /admin/users/ [post]
func (h *AdminHandler) CreateUser(c *gin.Context) {
	actor, ok := getUser(c)
	if !ok {
		return
	}

	var req CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handleBindError(c, err, "Failed to create user.")
		return
	}

	role, _ := models.ParseRole(req.Role)
	user, err := h.users.CreateForRole(c.Request.Context(), role, service.CreateUserInput{
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		handleServiceError(c, err, "Failed to create user.", "")
		return
	}

	audit.Record(h.db, actor.ID, audit.ActionCreateUser, audit.Resource("user", user.ID), map[string]interface{}{
		"email": user.Email,
		"role":  user.Role,
	})
	success(c, "User created successfully.", adminUser(user))
}
