package main

import (
	"os"

	"github.com/spf13/cobra"

	_ "github.com/taskhub-dev/taskhub/docs" // Load swagger docs
)

// Version is set via ldflags at build time
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:   "taskhub",
	Short: "TaskHub - task management API with role-based permissions",
	Long:  `TaskHub serves a JSON API for categories and tasks, gated by employer and employee permission groups.`,
	Example: `  # Run the API server and the event consumer
  taskhub serve

  # Create the first superuser
  taskhub create-admin --email admin@example.com

  # Create a provisioned employee
  taskhub create-user --email jane@example.com --role employee`,
	SilenceUsage: true,
}

func init() {
	rootCmd.AddGroup(
		&cobra.Group{ID: "server", Title: "Server Commands:"},
		&cobra.Group{ID: "admin", Title: "Admin Commands:"},
	)

	serveCmd.GroupID = "server"
	consumeCmd.GroupID = "server"
	createAdminCmd.GroupID = "admin"
	createUserCmd.GroupID = "admin"

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(consumeCmd)
	rootCmd.AddCommand(createAdminCmd)
	rootCmd.AddCommand(createUserCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
