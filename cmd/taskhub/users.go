package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/taskhub-dev/taskhub/internal/models"
	"github.com/taskhub-dev/taskhub/internal/server"
	"github.com/taskhub-dev/taskhub/internal/service"
	"golang.org/x/term"
)

var (
	userEmail    string
	userPassword string
	userRole     string
)

var createAdminCmd = &cobra.Command{
	Use:   "create-admin",
	Short: "Create a superuser",
	Long: `Create an ADMIN account with staff and superuser rights.
The password is prompted for when --password is omitted.`,
	Example: `  taskhub create-admin --email admin@example.com`,
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return createUser(cmd.Context(), models.RoleAdmin)
	},
}

var createUserCmd = &cobra.Command{
	Use:   "create-user",
	Short: "Create an employer or employee",
	Long: `Create an account and provision the permission group for its role.
The password is prompted for when --password is omitted.`,
	Example: `  taskhub create-user --email jane@example.com --role employee`,
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		role, ok := models.ParseRole(userRole)
		if !ok || role == models.RoleAdmin {
			return fmt.Errorf("invalid role %q: valid roles are employer, employee", userRole)
		}
		return createUser(cmd.Context(), role)
	},
}

func init() {
	for _, cmd := range []*cobra.Command{createAdminCmd, createUserCmd} {
		cmd.Flags().StringVar(&userEmail, "email", "", "Email address (required)")
		cmd.Flags().StringVar(&userPassword, "password", "", "Password (prompted when omitted)")
		cmd.MarkFlagRequired("email")
	}
	createUserCmd.Flags().StringVar(&userRole, "role", "employee", "Role: employer or employee")
}

func createUser(ctx context.Context, role models.Role) error {
	if ctx == nil {
		ctx = context.Background()
	}

	password := userPassword
	if password == "" {
		var err error
		password, err = promptPassword()
		if err != nil {
			return err
		}
	}

	cfg, err := server.LoadConfig()
	if err != nil {
		return err
	}
	database, err := server.OpenDatabase(cfg)
	if err != nil {
		return err
	}
	if sqlDB, err := database.DB(); err == nil {
		defer sqlDB.Close()
	}

	users := server.NewUserService(cfg, database)
	user, err := users.CreateForRole(ctx, role, service.CreateUserInput{Email: userEmail, Password: password})
	if err != nil {
		var verr *service.ValidationError
		var conflict *service.ConflictError
		switch {
		case errors.As(err, &verr):
			return fmt.Errorf("invalid input: %s", verr.Error())
		case errors.As(err, &conflict):
			return errors.New(conflict.Message)
		}
		return fmt.Errorf("creating user: %w", err)
	}

	fmt.Printf("User created successfully\n")
	fmt.Printf("ID: %s\n", user.ID)
	fmt.Printf("Email: %s\n", user.Email)
	fmt.Printf("Role: %s\n", user.Role)
	return nil
}

func promptPassword() (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.New("--password is required when stdin is not a terminal")
	}

	fmt.Print("Password: ")
	first, err := term.ReadPassword(fd)
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}
	fmt.Print("Password (again): ")
	second, err := term.ReadPassword(fd)
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}

	if string(first) != string(second) {
		return "", errors.New("passwords do not match")
	}
	if strings.TrimSpace(string(first)) == "" {
		return "", errors.New("password cannot be blank")
	}
	return string(first), nil
}
