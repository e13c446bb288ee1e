package audit

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/taskhub-dev/taskhub/internal/models"
	"gorm.io/gorm"
)

// LogAction records an audit log entry
func LogAction(db *gorm.DB, userID uuid.UUID, action, resource string, details interface{}) error {
	detailsJSON, err := json.Marshal(details)
	if err != nil {
		detailsJSON = []byte("{}")
	}

	log := models.AuditLog{
		UserID:      userID,
		Action:      action,
		Resource:    resource,
		DetailsJSON: string(detailsJSON),
		Timestamp:   time.Now().UTC(),
	}

	return db.Create(&log).Error
}

// Record writes an entry and logs instead of failing when the write does not succeed.
func Record(db *gorm.DB, userID uuid.UUID, action, resource string, details interface{}) {
	if err := LogAction(db, userID, action, resource, details); err != nil {
		slog.Warn("Failed to write audit log", "action", action, "resource", resource, "error", err)
	}
}

// Resource formats an audit resource reference such as "task:12".
func Resource(kind string, id any) string {
	return fmt.Sprintf("%s:%v", kind, id)
}

// Audit actions constants
const (
	ActionCreateUser     = "create_user"
	ActionDeleteUser     = "delete_user"
	ActionProvisionUser  = "provision_user"
	ActionCreateCategory = "create_category"
	ActionUpdateCategory = "update_category"
	ActionDeleteCategory = "delete_category"
	ActionCreateTask     = "create_task"
	ActionUpdateTask     = "update_task"
	ActionDeleteTask     = "delete_task"
	ActionLogin          = "login"
	ActionLoginFailed    = "login_failed"
)
