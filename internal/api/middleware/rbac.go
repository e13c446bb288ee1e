package middleware

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/taskhub-dev/taskhub/internal/auth"
	"github.com/taskhub-dev/taskhub/internal/models"
	"github.com/taskhub-dev/taskhub/internal/rbac"
)

const permissionDenied = "You do not have permission to perform this action."

// ActionForMethod maps an HTTP method to the model action it requires.
func ActionForMethod(method string) string {
	switch method {
	case http.MethodPost:
		return models.ActionAdd
	case http.MethodPut, http.MethodPatch:
		return models.ActionChange
	case http.MethodDelete:
		return models.ActionDelete
	default:
		return models.ActionView
	}
}

// RequireModelPermission ensures the user holds the permission for resource
// that matches the request method. Superusers always pass; inactive users never do.
func RequireModelPermission(resource string) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := auth.UserFromContext(c)
		if err != nil {
			abort(c, http.StatusUnauthorized, "Unauthorized")
			return
		}

		action := ActionForMethod(c.Request.Method)
		allowed, err := rbac.Can(user, resource, action)
		if err != nil {
			slog.Error("Permission check failed", "user_id", user.ID, "resource", resource, "action", action, "error", err)
		}
		if err != nil || !allowed {
			abort(c, http.StatusForbidden, permissionDenied)
			return
		}

		c.Next()
	}
}

// RequireAdmin ensures the user is an active superuser.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := auth.UserFromContext(c)
		if err != nil {
			abort(c, http.StatusUnauthorized, "Unauthorized")
			return
		}

		if !user.IsActive || !user.IsSuperuser {
			abort(c, http.StatusForbidden, "Admin access required")
			return
		}

		c.Next()
	}
}

// RequireActive rejects requests from deactivated accounts.
func RequireActive() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := auth.UserFromContext(c)
		if err != nil {
			abort(c, http.StatusUnauthorized, "Unauthorized")
			return
		}
		if !user.IsActive {
			abort(c, http.StatusForbidden, permissionDenied)
			return
		}
		c.Next()
	}
}

func abort(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, gin.H{"success": false, "message": message})
}
