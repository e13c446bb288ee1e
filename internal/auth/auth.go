package auth

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/taskhub-dev/taskhub/internal/models"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrInvalidToken       = errors.New("token is either invalid or has expired")
)

// LoginRequest represents a login request
type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// RefreshRequest exchanges a refresh token for a new access token
type RefreshRequest struct {
	Refresh string `json:"refresh" binding:"required"`
}

// TokenPair is returned by a successful login
type TokenPair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// AccessToken is returned by a successful refresh
type AccessToken struct {
	Access string `json:"access"`
}

// Authenticator is an interface for authentication providers
type Authenticator interface {
	// Login checks credentials and issues an access/refresh pair
	Login(ctx context.Context, email, password string) (*TokenPair, error)

	// Refresh issues a new access token from a refresh token
	Refresh(ctx context.Context, refreshToken string) (*AccessToken, error)

	// Middleware returns a Gin middleware for authentication
	Middleware() gin.HandlerFunc

	// GetUserFromContext extracts the authenticated user from the Gin context
	GetUserFromContext(c *gin.Context) (*models.User, error)
}
