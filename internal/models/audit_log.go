package models

import (
	"time"

	"github.com/google/uuid"
)

// AuditLog represents a record of user actions
type AuditLog struct {
	ID          uint      `gorm:"primarykey" json:"id"`
	UserID      uuid.UUID `gorm:"type:text;index" json:"user_id"`
	Action      string    `gorm:"not null" json:"action"`        // e.g., "create_task", "delete_category"
	Resource    string    `gorm:"not null" json:"resource"`      // e.g., "task:12", "user:<uuid>"
	DetailsJSON string    `gorm:"type:text" json:"details_json"` // Additional context in JSON
	Timestamp   time.Time `gorm:"not null;index" json:"timestamp"`
}
