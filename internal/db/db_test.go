package db

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/taskhub-dev/taskhub/internal/config"
	"github.com/taskhub-dev/taskhub/internal/models"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := New(config.DatabaseConfig{
		Driver:   "sqlite",
		DSN:      filepath.Join(t.TempDir(), "test.db"),
		LogLevel: "silent",
	})
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	if err := Migrate(db); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return db
}

func TestNew_UnsupportedDriver(t *testing.T) {
	if _, err := New(config.DatabaseConfig{Driver: "oracle"}); err == nil {
		t.Fatal("expected error for unsupported driver")
	}
}

func TestSqliteDSN(t *testing.T) {
	if got := sqliteDSN("a.db"); got != "a.db?"+sqlitePragmas {
		t.Errorf("sqliteDSN(a.db) = %q", got)
	}
	if got := sqliteDSN("file:a.db?cache=shared"); got != "file:a.db?cache=shared&"+sqlitePragmas {
		t.Errorf("sqliteDSN with query = %q", got)
	}
}

func TestMigrate_SeedsPermissionCatalog(t *testing.T) {
	db := setupTestDB(t)

	// A second run must not duplicate the catalog
	if err := Migrate(db); err != nil {
		t.Fatalf("second migrate: %v", err)
	}

	var count int64
	db.Model(&models.Permission{}).Count(&count)
	if want := int64(len(models.PermissionCatalog())); count != want {
		t.Fatalf("expected %d permissions, got %d", want, count)
	}

	var perm models.Permission
	if err := db.Where("codename = ?", "change_task").First(&perm).Error; err != nil {
		t.Fatalf("change_task missing: %v", err)
	}
	if perm.Resource != models.ResourceTask || perm.Action != models.ActionChange {
		t.Errorf("unexpected permission row: %+v", perm)
	}
	if perm.Name != "Can change task" {
		t.Errorf("Name = %q", perm.Name)
	}
}

func TestForeignKeys_RestrictCategoryDelete(t *testing.T) {
	db := setupTestDB(t)

	user := models.User{Email: "owner@example.com", PasswordHash: "!", Role: models.RoleEmployer, AuthProvider: models.AuthProviderEmail, IsActive: true}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	cat := models.Category{Name: "Work"}
	if err := db.Create(&cat).Error; err != nil {
		t.Fatalf("create category: %v", err)
	}
	task := models.Task{Title: "Write report", Priority: models.PriorityMedium, CategoryID: cat.ID, UserID: user.ID}
	if err := db.Create(&task).Error; err != nil {
		t.Fatalf("create task: %v", err)
	}

	if err := db.Delete(&models.Category{}, cat.ID).Error; err == nil {
		t.Fatal("expected foreign key violation deleting a referenced category")
	}

	// Deleting the owner cascades to their tasks
	if err := db.Delete(&models.User{}, "id = ?", user.ID).Error; err != nil {
		t.Fatalf("delete user: %v", err)
	}
	var remaining int64
	db.Model(&models.Task{}).Count(&remaining)
	if remaining != 0 {
		t.Errorf("expected tasks to cascade, %d remain", remaining)
	}
}

func TestQueryCounter(t *testing.T) {
	db := setupTestDB(t)

	ctx, counter := WithQueryCounter(context.Background())
	var cats []models.Category
	if err := db.WithContext(ctx).Find(&cats).Error; err != nil {
		t.Fatalf("find: %v", err)
	}
	if err := db.WithContext(ctx).Create(&models.Category{Name: "Home"}).Error; err != nil {
		t.Fatalf("create: %v", err)
	}
	if got := counter.Count(); got != 2 {
		t.Errorf("expected 2 statements, got %d", got)
	}

	// Statements without the counter in context are not counted
	db.Find(&cats)
	if got := counter.Count(); got != 2 {
		t.Errorf("uncounted statement changed count to %d", got)
	}
}

func TestCreateDefaultAdmin(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	called := 0
	create := func(ctx context.Context, email, password string) error {
		called++
		return db.WithContext(ctx).Create(&models.User{
			Email:        email,
			PasswordHash: "hash",
			Role:         models.RoleAdmin,
			AuthProvider: models.AuthProviderEmail,
			IsActive:     true,
			IsStaff:      true,
			IsSuperuser:  true,
		}).Error
	}

	t.Setenv("ADMIN_EMAIL", "")
	t.Setenv("ADMIN_PASSWORD", "")
	if err := CreateDefaultAdmin(ctx, db, create); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if called != 0 {
		t.Fatal("creator called without credentials")
	}

	t.Setenv("ADMIN_EMAIL", "root@example.com")
	t.Setenv("ADMIN_PASSWORD", "secret-pass")
	if err := CreateDefaultAdmin(ctx, db, create); err != nil {
		t.Fatalf("CreateDefaultAdmin: %v", err)
	}
	if called != 1 {
		t.Fatalf("expected one creation, got %d", called)
	}

	// Users now exist, so a second run is a no-op
	if err := CreateDefaultAdmin(ctx, db, create); err != nil {
		t.Fatalf("second run: %v", err)
	}
	if called != 1 {
		t.Errorf("expected creator to be skipped, called %d times", called)
	}
}

func TestCreateDefaultAdmin_PropagatesError(t *testing.T) {
	db := setupTestDB(t)
	t.Setenv("ADMIN_EMAIL", "root@example.com")
	t.Setenv("ADMIN_PASSWORD", "secret-pass")

	boom := errors.New("boom")
	err := CreateDefaultAdmin(context.Background(), db, func(context.Context, string, string) error { return boom })
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped boom, got %v", err)
	}
}

func TestUserBeforeCreate(t *testing.T) {
	db := setupTestDB(t)
	user := models.User{Email: "a@example.com", PasswordHash: "!", Role: models.RoleEmployee, AuthProvider: models.AuthProviderEmail}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("create: %v", err)
	}
	if user.ID == uuid.Nil {
		t.Error("expected generated id")
	}
	if user.DateJoined.IsZero() {
		t.Error("expected DateJoined to be set")
	}
}
