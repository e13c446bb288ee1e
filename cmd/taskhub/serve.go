package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/taskhub-dev/taskhub/internal/server"
)

var (
	servePort int
	serveMode string
)

// @title TaskHub API
// @version 1.0
// @description Task and category management with role-based permissions
// @host localhost:8000
// @BasePath /api/v1
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the TaskHub server",
	Long: `Start the TaskHub HTTP API and/or the task event consumer.

Examples:
  taskhub serve                    # Run both API server and consumer
  taskhub serve --mode server      # Run API server only
  taskhub serve --mode worker      # Run consumer only
  taskhub serve --port 8080        # Override port

Environment variables:
  TASKHUB_SERVER_PORT          Server port (default: 8000)
  TASKHUB_DATABASE_DRIVER      Database driver: sqlite, postgres
  TASKHUB_DATABASE_DSN         Database connection string
  TASKHUB_CACHE_TYPE           Category cache: memory, valkey
  TASKHUB_QUEUE_TYPE           Event queue: memory, valkey
  TASKHUB_RATELIMIT_BACKEND    Token rate limiter: memory, redis
  TASKHUB_AUTH_JWT_SECRET      JWT signing secret
  ADMIN_EMAIL                  Bootstrap admin email
  ADMIN_PASSWORD               Bootstrap admin password`,
	Args: cobra.NoArgs,
	Run:  runServe,
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Port to run server on (overrides config)")
	serveCmd.Flags().StringVarP(&serveMode, "mode", "m", "both", "Run mode: server, worker, or both")
}

func runServe(cmd *cobra.Command, args []string) {
	cfg := server.Config{
		Port:    servePort,
		Mode:    serveMode,
		Version: Version,
	}

	if err := server.RunWithSignalHandling(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
