package models

import (
	"time"

	"github.com/google/uuid"
)

// Priority of a task
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Valid reports whether p is one of the fixed priorities.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// Task is owned by the user who created it and filed under a category.
type Task struct {
	ID          uint       `gorm:"primarykey" json:"id"`
	Title       string     `gorm:"size:255;not null" json:"title"`
	Description string     `gorm:"type:text" json:"description"`
	DueDate     *time.Time `gorm:"index" json:"due_date"`
	IsCompleted bool       `gorm:"not null" json:"is_completed"`
	Priority    Priority   `gorm:"type:varchar(10);not null" json:"priority"`
	CategoryID  uint       `gorm:"not null;index" json:"-"`
	Category    Category   `gorm:"foreignKey:CategoryID;constraint:OnDelete:RESTRICT" json:"category"`
	UserID      uuid.UUID  `gorm:"type:text;not null;index" json:"user_id"`
	User        User       `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}
