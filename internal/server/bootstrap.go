package server

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"github.com/taskhub-dev/taskhub/internal/api/middleware"
	"github.com/taskhub-dev/taskhub/internal/auth"
	"github.com/taskhub-dev/taskhub/internal/cache"
	"github.com/taskhub-dev/taskhub/internal/config"
	"github.com/taskhub-dev/taskhub/internal/db"
	"github.com/taskhub-dev/taskhub/internal/queue"
	"github.com/taskhub-dev/taskhub/internal/rbac"
	"github.com/taskhub-dev/taskhub/internal/service"
	"gorm.io/gorm"
)

// OpenDatabase connects, migrates and loads the permission enforcer.
func OpenDatabase(cfg *config.Config) (*gorm.DB, error) {
	database, err := db.New(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	slog.Info("Database initialized", "driver", cfg.Database.Driver)

	if err := db.Migrate(database); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Info("Database migrations completed")

	if err := rbac.InitEnforcer(database, slog.Default()); err != nil {
		return nil, fmt.Errorf("failed to initialize RBAC: %w", err)
	}
	return database, nil
}

// NewUserService builds the user service with provisioning enabled.
func NewUserService(cfg *config.Config, database *gorm.DB) *service.UserService {
	return service.NewUserService(database, service.NewProvisioner(database, slog.Default()), cfg.Auth.SocialPassword)
}

// createDefaultAdmin bootstraps a superuser from ADMIN_EMAIL / ADMIN_PASSWORD.
func createDefaultAdmin(ctx context.Context, database *gorm.DB, users *service.UserService) error {
	return db.CreateDefaultAdmin(ctx, database, func(ctx context.Context, email, password string) error {
		_, err := users.CreateSuperuser(ctx, service.CreateUserInput{Email: email, Password: password})
		return err
	})
}

// createCache creates the category list cache based on configuration.
func createCache(cfg *config.Config) (cache.Cache, error) {
	switch cfg.Cache.Type {
	case "", "memory":
		return cache.NewMemoryCache(), nil
	case "valkey":
		if cfg.Cache.ValkeyAddr == "" {
			return nil, fmt.Errorf("valkey address is required when cache type is valkey")
		}
		return cache.NewValkeyCache(cfg.Cache.ValkeyAddr)
	default:
		return nil, fmt.Errorf("unsupported cache type: %s (supported: memory, valkey)", cfg.Cache.Type)
	}
}

// createQueue creates the event queue based on configuration.
func createQueue(cfg *config.Config) (queue.Queue, error) {
	switch cfg.Queue.Type {
	case "", "memory":
		return queue.NewMemoryQueue(100), nil
	case "valkey":
		if cfg.Queue.ValkeyAddr == "" {
			return nil, fmt.Errorf("valkey address is required when queue type is valkey")
		}
		return queue.NewValkeyQueue(cfg.Queue.ValkeyAddr)
	default:
		return nil, fmt.Errorf("unsupported queue type: %s (supported: memory, valkey)", cfg.Queue.Type)
	}
}

// createLimiter creates the token endpoint limiter. The returned close
// function releases the backend connection.
func createLimiter(ctx context.Context, cfg *config.Config) (middleware.Limiter, func() error, error) {
	noop := func() error { return nil }
	if cfg.RateLimit.RPS <= 0 {
		return nil, noop, nil
	}

	switch cfg.RateLimit.Backend {
	case "", "memory":
		return middleware.NewMemoryLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst), noop, nil
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: cfg.RateLimit.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, noop, fmt.Errorf("failed to connect to redis at %s: %w", cfg.RateLimit.RedisAddr, err)
		}
		limiter := middleware.NewRedisLimiterFromRate(client, "token", cfg.RateLimit.RPS, cfg.RateLimit.Burst)
		return limiter, client.Close, nil
	default:
		return nil, noop, fmt.Errorf("unsupported rate limit backend: %s (supported: memory, redis)", cfg.RateLimit.Backend)
	}
}

// createGoogle enables Google sign-in when a client ID is configured.
// Discovery failures disable the feature instead of aborting startup.
func createGoogle(ctx context.Context, cfg *config.Config, users *service.UserService, tokens *auth.BasicAuthenticator) *auth.GoogleAuthenticator {
	if cfg.Auth.Google.ClientID == "" {
		slog.Info("Google sign-in disabled")
		return nil
	}
	google, err := auth.NewGoogleAuthenticator(ctx, cfg.Auth.Google, users, tokens)
	if err != nil {
		slog.Error("Google sign-in unavailable", "error", err)
		return nil
	}
	slog.Info("Google sign-in enabled")
	return google
}
