package service

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/taskhub-dev/taskhub/internal/cache"
	"github.com/taskhub-dev/taskhub/internal/config"
	"github.com/taskhub-dev/taskhub/internal/db"
	"github.com/taskhub-dev/taskhub/internal/models"
	"github.com/taskhub-dev/taskhub/internal/rbac"
	"gorm.io/gorm"
)

// testSetup creates a temp-dir SQLite DB, migrates models and initializes RBAC.
func testSetup(t *testing.T) *gorm.DB {
	t.Helper()

	database, err := db.New(config.DatabaseConfig{
		Driver:   "sqlite",
		DSN:      filepath.Join(t.TempDir(), "test.db"),
		LogLevel: "silent",
	})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.Migrate(database); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	// RBAC enforcer is global, initialize per test
	if err := rbac.InitEnforcer(database, slog.Default()); err != nil {
		t.Fatalf("init rbac: %v", err)
	}
	return database
}

func newUserService(database *gorm.DB) *UserService {
	return NewUserService(database, NewProvisioner(database, slog.Default()), "social-pass")
}

func newCategoryService(database *gorm.DB) (*CategoryService, *cache.MemoryCache) {
	c := cache.NewMemoryCache()
	return NewCategoryService(database, c, DefaultCacheTTL), c
}

// createEmployer creates a provisioned employer.
func createEmployer(t *testing.T, database *gorm.DB, email string) *models.User {
	t.Helper()
	user, err := newUserService(database).CreateEmployer(context.Background(), CreateUserInput{Email: email, Password: "pass-word"})
	if err != nil {
		t.Fatalf("create employer: %v", err)
	}
	return user
}

func createCategory(t *testing.T, database *gorm.DB, name string) *models.Category {
	t.Helper()
	cat := &models.Category{Name: name}
	if err := database.Create(cat).Error; err != nil {
		t.Fatalf("create category: %v", err)
	}
	return cat
}

func ptr[T any](v T) *T { return &v }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
