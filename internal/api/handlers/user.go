package handlers

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/taskhub-dev/taskhub/internal/models"
	"github.com/taskhub-dev/taskhub/internal/rbac"
)

// CurrentUser is the caller's account together with its permission groups.
type CurrentUser struct {
	*models.User
	IsSuperuser bool     `json:"is_superuser"`
	Groups      []string `json:"groups"`
}

// GetCurrentUser godoc
// @Summary Get current user
// @Description Get the currently authenticated user's information
// @Tags users
// @Produce json
// @Security BearerAuth
// @Success 200 {object} Response
// @Failure 401 {object} Response
// @Router /users/me/ [get]
func GetCurrentUser(c *gin.Context) {
	user, ok := getUser(c)
	if !ok {
		return
	}

	groups, err := rbac.GroupsForUser(user.ID)
	if err != nil {
		slog.Warn("Failed to load groups", "user_id", user.ID, "error", err)
	}
	if groups == nil {
		groups = []string{}
	}

	success(c, "User retrieved successfully.", CurrentUser{User: user, IsSuperuser: user.IsSuperuser, Groups: groups})
}
