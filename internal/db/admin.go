package db

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/taskhub-dev/taskhub/internal/models"
	"gorm.io/gorm"
)

// SuperuserCreator creates a superuser account.
type SuperuserCreator func(ctx context.Context, email, password string) error

// CreateDefaultAdmin creates a default admin user if ADMIN_EMAIL and ADMIN_PASSWORD are set
// and no users exist in the database
func CreateDefaultAdmin(ctx context.Context, db *gorm.DB, create SuperuserCreator) error {
	email := os.Getenv("ADMIN_EMAIL")
	password := os.Getenv("ADMIN_PASSWORD")

	if email == "" || password == "" {
		slog.Info("No ADMIN_EMAIL or ADMIN_PASSWORD set, skipping default admin creation")
		return nil
	}

	var count int64
	if err := db.WithContext(ctx).Model(&models.User{}).Count(&count).Error; err != nil {
		return fmt.Errorf("failed to count users: %w", err)
	}
	if count > 0 {
		slog.Info("Users already exist, skipping default admin creation")
		return nil
	}

	if err := create(ctx, email, password); err != nil {
		return fmt.Errorf("failed to create admin user: %w", err)
	}

	slog.Info("Default admin user created", "email", email)
	return nil
}
