package models

import (
	"fmt"
	"time"
)

// Names of the groups provisioned for role-tagged users.
const (
	GroupEmployers = "Employers"
	GroupEmployees = "Employees"
)

// Resources guarded by model permissions.
const (
	ResourceTask     = "task"
	ResourceCategory = "category"
)

// Model permission actions.
const (
	ActionAdd    = "add"
	ActionChange = "change"
	ActionDelete = "delete"
	ActionView   = "view"
)

// Group is a named bundle of permissions. Its permissions and members live in the
// casbin policy table; this row only guarantees the name is created once.
type Group struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	Name      string    `gorm:"uniqueIndex;not null" json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Permission is an entry in the fixed catalog of (resource, action) pairs.
type Permission struct {
	ID       uint   `gorm:"primarykey" json:"id"`
	Codename string `gorm:"uniqueIndex;not null" json:"codename"` // e.g. "add_task"
	Resource string `gorm:"not null;index" json:"resource"`
	Action   string `gorm:"not null" json:"action"`
	Name     string `gorm:"not null" json:"name"` // e.g. "Can add task"
}

// Codename builds the catalog code for an action on a resource.
func Codename(action, resource string) string {
	return fmt.Sprintf("%s_%s", action, resource)
}

// PermissionCatalog returns the full permission catalog seeded at migration time.
func PermissionCatalog() []Permission {
	var perms []Permission
	for _, resource := range []string{ResourceTask, ResourceCategory} {
		for _, action := range []string{ActionAdd, ActionChange, ActionDelete, ActionView} {
			perms = append(perms, Permission{
				Codename: Codename(action, resource),
				Resource: resource,
				Action:   action,
				Name:     fmt.Sprintf("Can %s %s", action, resource),
			})
		}
	}
	return perms
}
