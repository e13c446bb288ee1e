// Package server provides the main server initialization and run logic.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/taskhub-dev/taskhub/internal/api"
	"github.com/taskhub-dev/taskhub/internal/api/handlers"
	"github.com/taskhub-dev/taskhub/internal/auth"
	"github.com/taskhub-dev/taskhub/internal/config"
	"github.com/taskhub-dev/taskhub/internal/events"
	"github.com/taskhub-dev/taskhub/internal/logger"
	"github.com/taskhub-dev/taskhub/internal/service"
)

// Config holds the server configuration options.
type Config struct {
	Port    int    // Port to run the server on (0 = use config default)
	Mode    string // Run mode: server, worker, or both
	Version string // Version string to report
}

// LoadConfig loads application configuration and initializes logging.
func LoadConfig() (*config.Config, error) {
	appCfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	logger.Init(appCfg.Log.Format, appCfg.Log.Level)
	return appCfg, nil
}

// Run starts the server with the given configuration and blocks until the context is canceled.
func Run(ctx context.Context, cfg Config) error {
	if cfg.Version != "" {
		handlers.Version = cfg.Version
	}

	appCfg, err := LoadConfig()
	if err != nil {
		return err
	}

	// Override port from CLI flag if provided
	if cfg.Port != 0 {
		appCfg.Server.Port = cfg.Port
	}

	mode := cfg.Mode
	if mode == "" {
		mode = "both"
	}
	runServer := mode == "server" || mode == "both"
	runWorker := mode == "worker" || mode == "both"
	if !runServer && !runWorker {
		return fmt.Errorf("invalid mode %q: valid modes are server, worker, both", mode)
	}
	handlers.Mode = mode

	slog.Info("Starting TaskHub", "version", cfg.Version, "mode", mode, "environment", appCfg.Server.Mode)

	database, err := OpenDatabase(appCfg)
	if err != nil {
		return err
	}
	if sqlDB, err := database.DB(); err == nil {
		defer sqlDB.Close()
	}

	users := NewUserService(appCfg, database)
	if err := createDefaultAdmin(ctx, database, users); err != nil {
		return fmt.Errorf("failed to create default admin user: %w", err)
	}

	eventQueue, err := createQueue(appCfg)
	if err != nil {
		return fmt.Errorf("failed to initialize event queue: %w", err)
	}
	defer eventQueue.Close()
	slog.Info("Event queue initialized", "type", appCfg.Queue.Type, "topic", appCfg.Queue.Topic)

	// Start consumer if needed
	var consumerWG sync.WaitGroup
	consumerCtx, stopConsumer := context.WithCancel(ctx)
	defer stopConsumer()
	if runWorker {
		if appCfg.Queue.Type != "valkey" && !runServer {
			slog.Warn("Worker mode with an in-memory queue only sees events from this process")
		}
		consumer := events.NewConsumer(eventQueue, appCfg.Queue.Topic, slog.Default())
		consumerWG.Add(1)
		go func() {
			defer consumerWG.Done()
			if err := consumer.Start(consumerCtx); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("Consumer failed", "error", err)
			}
		}()
	}

	var (
		srv     *http.Server
		emitter *events.Emitter
	)
	if runServer {
		listCache, err := createCache(appCfg)
		if err != nil {
			return fmt.Errorf("failed to initialize cache: %w", err)
		}
		defer listCache.Close()
		slog.Info("Cache initialized", "type", appCfg.Cache.Type)

		limiter, closeLimiter, err := createLimiter(ctx, appCfg)
		if err != nil {
			return fmt.Errorf("failed to initialize rate limiter: %w", err)
		}
		defer closeLimiter()

		emitter = events.NewEmitter(eventQueue, appCfg.Queue.Topic, appCfg.Events.MaxInFlight, appCfg.Events.PublishTimeout, slog.Default())

		authenticator := auth.NewBasicAuthenticator(database, appCfg.Auth)
		router := api.NewRouter(appCfg, api.Deps{
			DB:            database,
			Authenticator: authenticator,
			Users:         users,
			Categories:    service.NewCategoryService(database, listCache, appCfg.Cache.TTL),
			Tasks:         service.NewTaskService(database, emitter),
			Google:        createGoogle(ctx, appCfg, users, authenticator),
			Limiter:       limiter,
		})

		addr := fmt.Sprintf(":%d", appCfg.Server.Port)
		srv = &http.Server{
			Addr:              addr,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		}

		go func() {
			slog.Info("Server listening", "address", addr)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				slog.Error("Server failed", "error", err)
			}
		}()
	}

	// Wait for context cancellation
	<-ctx.Done()
	slog.Info("Shutting down...")

	var shutdownErr error
	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			shutdownErr = fmt.Errorf("server forced to shutdown: %w", err)
		}
		slog.Info("Server stopped")
	}

	stopConsumer()
	consumerWG.Wait()
	if runWorker {
		slog.Info("Consumer stopped")
	}

	if emitter != nil {
		emitter.Close()
		slog.Info("Pending events flushed")
	}

	slog.Info("TaskHub exited")
	return shutdownErr
}

// RunWithSignalHandling starts the server and handles OS signals for graceful shutdown.
func RunWithSignalHandling(cfg Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return Run(ctx, cfg)
}

// RunConsumer consumes topic until ctx is canceled. An empty topic uses the configured one.
func RunConsumer(ctx context.Context, topic string) error {
	appCfg, err := LoadConfig()
	if err != nil {
		return err
	}
	if topic == "" {
		topic = appCfg.Queue.Topic
	}

	eventQueue, err := createQueue(appCfg)
	if err != nil {
		return fmt.Errorf("failed to initialize event queue: %w", err)
	}
	defer eventQueue.Close()

	consumer := events.NewConsumer(eventQueue, topic, slog.Default())
	if err := consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
