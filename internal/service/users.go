package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/taskhub-dev/taskhub/internal/auth"
	"github.com/taskhub-dev/taskhub/internal/models"
	"gorm.io/gorm"
)

// CreateUserInput holds parameters for creating a user. Nil flags take their defaults.
type CreateUserInput struct {
	Email        string
	Password     string
	Role         models.Role
	AuthProvider string
	IsActive     *bool
	IsStaff      *bool
	IsSuperuser  *bool
}

// UserService creates and looks up users.
type UserService struct {
	db             *gorm.DB
	provisioner    *Provisioner
	socialPassword string
}

// NewUserService creates a UserService. socialPassword is set on accounts
// created by social sign-in.
func NewUserService(db *gorm.DB, provisioner *Provisioner, socialPassword string) *UserService {
	return &UserService{db: db, provisioner: provisioner, socialPassword: socialPassword}
}

// CreateUser validates, normalizes and stores a user without provisioning.
func (s *UserService) CreateUser(ctx context.Context, in CreateUserInput) (*models.User, error) {
	email := auth.NormalizeEmail(in.Email)
	if email == "" {
		return nil, &ValidationError{
			Message: "The email must be set",
			Fields:  map[string][]string{"email": {"The email must be set"}},
		}
	}

	switch in.Role {
	case models.RoleAdmin, models.RoleEmployer, models.RoleEmployee:
	default:
		return nil, fieldError("role", fmt.Sprintf("%q is not a valid choice.", in.Role))
	}

	provider := in.AuthProvider
	if provider == "" {
		provider = models.AuthProviderEmail
	}

	var count int64
	if err := s.db.WithContext(ctx).Model(&models.User{}).Where("LOWER(email) = LOWER(?)", email).Count(&count).Error; err != nil {
		return nil, fmt.Errorf("failed to check email: %w", err)
	}
	if count > 0 {
		return nil, &ConflictError{Message: "A user with that email already exists."}
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	user := &models.User{
		Email:        email,
		PasswordHash: hash,
		Role:         in.Role,
		AuthProvider: provider,
		IsActive:     boolOr(in.IsActive, true),
		IsStaff:      boolOr(in.IsStaff, false),
		IsSuperuser:  boolOr(in.IsSuperuser, false),
	}
	if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, &ConflictError{Message: "A user with that email already exists."}
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return user, nil
}

// CreateEmployer creates an EMPLOYER regardless of in.Role and provisions its group.
func (s *UserService) CreateEmployer(ctx context.Context, in CreateUserInput) (*models.User, error) {
	in.Role = models.RoleEmployer
	return s.createProvisioned(ctx, in)
}

// CreateEmployee creates an EMPLOYEE regardless of in.Role and provisions its group.
func (s *UserService) CreateEmployee(ctx context.Context, in CreateUserInput) (*models.User, error) {
	in.Role = models.RoleEmployee
	return s.createProvisioned(ctx, in)
}

func (s *UserService) createProvisioned(ctx context.Context, in CreateUserInput) (*models.User, error) {
	user, err := s.CreateUser(ctx, in)
	if err != nil {
		return nil, err
	}
	if _, err := s.provisioner.Provision(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// CreateSuperuser creates an ADMIN with staff, superuser and active set.
// Explicitly passing false for any of them is rejected.
func (s *UserService) CreateSuperuser(ctx context.Context, in CreateUserInput) (*models.User, error) {
	if in.IsStaff != nil && !*in.IsStaff {
		return nil, fieldError("is_staff", "Superuser must have is_staff=True.")
	}
	if in.IsSuperuser != nil && !*in.IsSuperuser {
		return nil, fieldError("is_superuser", "Superuser must have is_superuser=True.")
	}
	if in.IsActive != nil && !*in.IsActive {
		return nil, fieldError("is_active", "Superuser must have is_active=True.")
	}

	yes := true
	in.Role = models.RoleAdmin
	in.IsStaff, in.IsSuperuser, in.IsActive = &yes, &yes, &yes
	return s.CreateUser(ctx, in)
}

// CreateForRole dispatches to the factory for role.
func (s *UserService) CreateForRole(ctx context.Context, role models.Role, in CreateUserInput) (*models.User, error) {
	switch role {
	case models.RoleAdmin:
		return s.CreateSuperuser(ctx, in)
	case models.RoleEmployer:
		return s.CreateEmployer(ctx, in)
	case models.RoleEmployee:
		return s.CreateEmployee(ctx, in)
	}
	return nil, fieldError("role", fmt.Sprintf("%q is not a valid choice.", role))
}

// GetOrCreateSocialUser returns the account for email, creating an employer
// for first-time social sign-ins.
func (s *UserService) GetOrCreateSocialUser(ctx context.Context, provider, email string) (*models.User, error) {
	user, err := s.GetByEmail(ctx, email)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	user, err = s.CreateEmployer(ctx, CreateUserInput{
		Email:        email,
		Password:     s.socialPassword,
		AuthProvider: provider,
	})
	var conflict *ConflictError
	if errors.As(err, &conflict) {
		// Another sign-in for the same email won the race
		return s.GetByEmail(ctx, email)
	}
	return user, err
}

// GetByEmail looks a user up by normalized email.
func (s *UserService) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).Where("LOWER(email) = LOWER(?)", auth.NormalizeEmail(email)).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}

// Get returns a user by ID.
func (s *UserService) Get(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}

// List returns one page of users ordered by join date.
func (s *UserService) List(ctx context.Context, page int) (*Page[models.User], error) {
	query := s.db.WithContext(ctx).Model(&models.User{}).Order("date_joined ASC, email ASC")
	p, err := paginate[models.User](query, page)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return p, err
}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}
