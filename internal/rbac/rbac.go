package rbac

import (
	_ "embed"
	"errors"
	"fmt"
	"log/slog"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	"github.com/google/uuid"
	"github.com/taskhub-dev/taskhub/internal/models"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelConf string

// RuleTable is the table the gorm adapter stores policies in.
const RuleTable = "casbin_rule"

var enforcer *casbin.SyncedEnforcer

var reloads singleflight.Group

var errNotInitialized = errors.New("rbac enforcer not initialized")

// InitEnforcer initializes the Casbin enforcer
func InitEnforcer(db *gorm.DB, logger *slog.Logger) error {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return fmt.Errorf("failed to create casbin adapter: %w", err)
	}

	m, err := model.NewModelFromString(modelConf)
	if err != nil {
		return fmt.Errorf("failed to parse casbin model: %w", err)
	}

	e, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return fmt.Errorf("failed to create casbin enforcer: %w", err)
	}

	if err := e.LoadPolicy(); err != nil {
		return fmt.Errorf("failed to load policies: %w", err)
	}

	enforcer = e
	logger.Info("RBAC enforcer initialized")
	return nil
}

// GetEnforcer returns the global enforcer instance
func GetEnforcer() *casbin.SyncedEnforcer {
	return enforcer
}

// Reload re-reads all policies from the database. Rules written directly to
// RuleTable inside a transaction become visible after this call.
func Reload() error {
	if enforcer == nil {
		return errNotInitialized
	}
	_, err, _ := reloads.Do("policy", func() (interface{}, error) {
		return nil, enforcer.LoadPolicy()
	})
	return err
}

// Can reports whether user may perform action on resource. Active superusers
// pass every check; inactive users pass none. A denial reloads the policy once,
// so rules written by another process (the CLI, a second server) take effect.
func Can(user *models.User, resource, action string) (bool, error) {
	if user == nil || !user.IsActive {
		return false, nil
	}
	if user.IsSuperuser {
		return true, nil
	}
	if enforcer == nil {
		return false, errNotInitialized
	}
	ok, err := enforcer.Enforce(user.ID.String(), resource, action)
	if err != nil || ok {
		return ok, err
	}
	if err := Reload(); err != nil {
		return false, fmt.Errorf("failed to reload policies: %w", err)
	}
	return enforcer.Enforce(user.ID.String(), resource, action)
}

// PermissionRule builds the policy row granting group an action on resource.
func PermissionRule(group, resource, action string) gormadapter.CasbinRule {
	return gormadapter.CasbinRule{Ptype: "p", V0: group, V1: resource, V2: action}
}

// MembershipRule builds the grouping row placing user in group.
func MembershipRule(userID uuid.UUID, group string) gormadapter.CasbinRule {
	return gormadapter.CasbinRule{Ptype: "g", V0: userID.String(), V1: group}
}

// GroupPermissions returns the (resource, action) pairs granted to group.
func GroupPermissions(group string) ([][2]string, error) {
	if enforcer == nil {
		return nil, errNotInitialized
	}
	policies, err := enforcer.GetFilteredPolicy(0, group)
	if err != nil {
		return nil, err
	}
	perms := make([][2]string, 0, len(policies))
	for _, p := range policies {
		if len(p) >= 3 {
			perms = append(perms, [2]string{p[1], p[2]})
		}
	}
	return perms, nil
}

// GroupsForUser returns the groups user belongs to.
func GroupsForUser(userID uuid.UUID) ([]string, error) {
	if enforcer == nil {
		return nil, errNotInitialized
	}
	groups, err := enforcer.GetRolesForUser(userID.String())
	if err != nil || len(groups) > 0 {
		return groups, err
	}
	if err := Reload(); err != nil {
		return nil, fmt.Errorf("failed to reload policies: %w", err)
	}
	return enforcer.GetRolesForUser(userID.String())
}
