package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Role is fixed when a user is created and decides the user's permission group.
type Role string

const (
	RoleAdmin    Role = "ADMIN"
	RoleEmployer Role = "EMPLOYER"
	RoleEmployee Role = "EMPLOYEE"
)

// ParseRole accepts a role name in any case.
func ParseRole(s string) (Role, bool) {
	switch Role(strings.ToUpper(strings.TrimSpace(s))) {
	case RoleAdmin:
		return RoleAdmin, true
	case RoleEmployer:
		return RoleEmployer, true
	case RoleEmployee:
		return RoleEmployee, true
	}
	return "", false
}

// Authentication providers
const (
	AuthProviderEmail  = "email"
	AuthProviderGoogle = "google"
)

// User represents a system user
type User struct {
	ID           uuid.UUID `gorm:"type:text;primary_key" json:"id"`
	Email        string    `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash string    `gorm:"not null" json:"-"`
	Role         Role      `gorm:"type:varchar(20);not null;index" json:"role"`
	AuthProvider string    `gorm:"type:varchar(20);not null" json:"auth_provider"`
	IsActive     bool      `gorm:"not null" json:"-"`
	IsStaff      bool      `gorm:"not null" json:"-"`
	IsSuperuser  bool      `gorm:"not null" json:"-"`
	DateJoined   time.Time `gorm:"not null" json:"date_joined"`
	UpdatedAt    time.Time `json:"-"`
}

// BeforeCreate hook to generate UUID
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	if u.DateJoined.IsZero() {
		u.DateJoined = time.Now().UTC()
	}
	return nil
}
