package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	gormadapter "github.com/casbin/gorm-adapter/v3"
	"github.com/taskhub-dev/taskhub/internal/audit"
	"github.com/taskhub-dev/taskhub/internal/models"
	"github.com/taskhub-dev/taskhub/internal/rbac"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ProvisionState is a step of group provisioning.
type ProvisionState string

const (
	StateNoGroup             ProvisionState = "NoGroup"
	StateGroupCreated        ProvisionState = "GroupCreated"
	StatePermissionsAttached ProvisionState = "PermissionsAttached"
	StateUserLinked          ProvisionState = "UserLinked"
	StateFailed              ProvisionState = "Failed"
)

// ProvisionResult describes what provisioning did for one user.
type ProvisionResult struct {
	Group        string
	GroupCreated bool
	Attached     []string // codenames attached on group creation
	State        ProvisionState
}

// groupPermissions is the fixed permission set attached when a group is first created.
var groupPermissions = map[string][]string{
	models.GroupEmployers: {
		"add_task", "change_task", "delete_task", "view_task",
		"add_category", "change_category", "delete_category", "view_category",
	},
	models.GroupEmployees: {
		"view_category", "view_task", "change_task",
	},
}

// RoleGroup returns the group name for role. Admins have no group.
func RoleGroup(role models.Role) (string, bool) {
	switch role {
	case models.RoleEmployer:
		return models.GroupEmployers, true
	case models.RoleEmployee:
		return models.GroupEmployees, true
	}
	return "", false
}

// GroupPermissionSet returns the codenames granted to a newly created group.
func GroupPermissionSet(group string) []string {
	return append([]string(nil), groupPermissions[group]...)
}

// Provisioner places role-tagged users into their role's permission group.
type Provisioner struct {
	db     *gorm.DB
	logger *slog.Logger
	sets   map[string][]string
}

// NewProvisioner creates a provisioner using the fixed role permission sets.
func NewProvisioner(db *gorm.DB, logger *slog.Logger) *Provisioner {
	return &Provisioner{db: db, logger: logger, sets: groupPermissions}
}

// Provision ensures the user's role group exists and links the user to it.
// Group lookup/creation, permission attachment and the membership link run in
// one transaction. On failure the transaction rolls back and the user row is
// deleted, so no account exists without its role's permissions.
func (p *Provisioner) Provision(ctx context.Context, user *models.User) (*ProvisionResult, error) {
	name, ok := RoleGroup(user.Role)
	if !ok {
		return &ProvisionResult{State: StateNoGroup}, nil
	}

	result := &ProvisionResult{Group: name, State: StateNoGroup}
	err := p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		created, err := p.ensureGroup(tx, name)
		if err != nil {
			return err
		}

		if created {
			result.GroupCreated = true
			result.State = StateGroupCreated
			p.logger.Debug("Provisioning state", "user_id", user.ID, "group", name, "state", result.State)

			attached, err := p.attachPermissions(tx, name, p.sets[name])
			if err != nil {
				return err
			}
			result.Attached = attached
			result.State = StatePermissionsAttached
			p.logger.Debug("Provisioning state", "user_id", user.ID, "group", name, "state", result.State, "permissions", attached)
		}

		link := rbac.MembershipRule(user.ID, name)
		if err := tx.Table(rbac.RuleTable).Create(&link).Error; err != nil {
			return fmt.Errorf("failed to link user to group: %w", err)
		}
		result.State = StateUserLinked
		return nil
	})

	if err != nil {
		result.State = StateFailed
		p.logger.Error("Error adding user to group", "user_id", user.ID, "email", user.Email, "group", name, "error", err)
		p.compensate(ctx, user)
		return result, fmt.Errorf("failed to provision user: %w", err)
	}

	p.logger.Debug("Provisioning state", "user_id", user.ID, "group", name, "state", result.State)
	if err := rbac.Reload(); err != nil {
		p.logger.Error("Failed to reload permission policies", "error", err)
	}

	audit.Record(p.db.WithContext(ctx), user.ID, audit.ActionProvisionUser, audit.Resource("user", user.ID), map[string]interface{}{
		"group":         name,
		"group_created": result.GroupCreated,
		"permissions":   result.Attached,
	})
	p.logger.Info("User created", "email", user.Email, "role", user.Role, "group", name)
	return result, nil
}

// ensureGroup returns whether this call created the group. When a concurrent
// creator wins the insert the existing row is used as-is.
func (p *Provisioner) ensureGroup(tx *gorm.DB, name string) (bool, error) {
	var group models.Group
	err := tx.Where("name = ?", name).First(&group).Error
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return false, fmt.Errorf("failed to look up group: %w", err)
	}

	group = models.Group{Name: name}
	res := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoNothing: true,
	}).Create(&group)
	if res.Error != nil {
		return false, fmt.Errorf("failed to create group: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		if err := tx.Where("name = ?", name).First(&group).Error; err != nil {
			return false, fmt.Errorf("failed to re-read group: %w", err)
		}
		return false, nil
	}
	return true, nil
}

// attachPermissions grants the catalog permissions named by codenames to group.
// Codenames missing from the catalog are skipped.
func (p *Provisioner) attachPermissions(tx *gorm.DB, group string, codenames []string) ([]string, error) {
	if len(codenames) == 0 {
		return nil, nil
	}

	var perms []models.Permission
	if err := tx.Where("codename IN ?", codenames).Find(&perms).Error; err != nil {
		return nil, fmt.Errorf("failed to load permissions: %w", err)
	}
	byCode := make(map[string]models.Permission, len(perms))
	for _, perm := range perms {
		byCode[perm.Codename] = perm
	}

	rules := make([]gormadapter.CasbinRule, 0, len(codenames))
	attached := make([]string, 0, len(codenames))
	for _, code := range codenames {
		perm, ok := byCode[code]
		if !ok {
			p.logger.Warn("Permission does not exist", "codename", code, "group", group)
			continue
		}
		rules = append(rules, rbac.PermissionRule(group, perm.Resource, perm.Action))
		attached = append(attached, code)
	}
	if len(rules) == 0 {
		return attached, nil
	}

	if err := tx.Table(rbac.RuleTable).Create(&rules).Error; err != nil {
		return nil, fmt.Errorf("failed to attach permissions: %w", err)
	}
	return attached, nil
}

func (p *Provisioner) compensate(ctx context.Context, user *models.User) {
	tx := p.db.WithContext(context.WithoutCancel(ctx))
	if err := tx.Delete(&models.User{}, "id = ?", user.ID).Error; err != nil {
		p.logger.Error("Failed to delete user after provisioning failure", "user_id", user.ID, "error", err)
		return
	}
	audit.Record(tx, user.ID, audit.ActionDeleteUser, audit.Resource("user", user.ID), map[string]interface{}{
		"email":  user.Email,
		"reason": "provisioning failed",
	})
	p.logger.Info("Deleted user after provisioning failure", "user_id", user.ID)
}
