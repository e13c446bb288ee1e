package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/taskhub-dev/taskhub/internal/config"
	"github.com/taskhub-dev/taskhub/internal/models"
	"golang.org/x/oauth2"
)

// GoogleClaims are the ID token claims used for sign-in
type GoogleClaims struct {
	Subject       string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
}

// IDTokenVerifier checks a raw ID token and returns its claims
type IDTokenVerifier interface {
	Verify(ctx context.Context, rawIDToken string) (*GoogleClaims, error)
}

// SocialUserStore finds or creates the account behind a verified social identity
type SocialUserStore interface {
	GetOrCreateSocialUser(ctx context.Context, provider, email string) (*models.User, error)
}

// SocialLoginResponse is returned by a successful Google sign-in
type SocialLoginResponse struct {
	User   *models.User `json:"user"`
	Tokens *TokenPair   `json:"tokens"`
}

type oidcVerifier struct {
	verifier *oidc.IDTokenVerifier
}

func (v *oidcVerifier) Verify(ctx context.Context, rawIDToken string) (*GoogleClaims, error) {
	idToken, err := v.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, err
	}
	var claims GoogleClaims
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("failed to parse claims: %w", err)
	}
	return &claims, nil
}

// GoogleAuthenticator signs users in with Google ID tokens
type GoogleAuthenticator struct {
	verifier IDTokenVerifier
	config   *oauth2.Config
	users    SocialUserStore
	tokens   *BasicAuthenticator
}

// NewGoogleAuthenticator discovers the Google provider and builds a verifier bound to the client ID.
func NewGoogleAuthenticator(ctx context.Context, cfg config.GoogleConfig, users SocialUserStore, tokens *BasicAuthenticator) (*GoogleAuthenticator, error) {
	provider, err := oidc.NewProvider(ctx, cfg.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("failed to discover OIDC provider: %w", err)
	}

	oauth2Config := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURL,
		Endpoint:     provider.Endpoint(),
		Scopes:       []string{oidc.ScopeOpenID, "profile", "email"},
	}

	verifier := &oidcVerifier{verifier: provider.Verifier(&oidc.Config{ClientID: cfg.ClientID})}
	return NewGoogleAuthenticatorWithVerifier(verifier, oauth2Config, users, tokens), nil
}

// NewGoogleAuthenticatorWithVerifier wires an authenticator around an existing verifier.
func NewGoogleAuthenticatorWithVerifier(verifier IDTokenVerifier, oauth2Config *oauth2.Config, users SocialUserStore, tokens *BasicAuthenticator) *GoogleAuthenticator {
	return &GoogleAuthenticator{
		verifier: verifier,
		config:   oauth2Config,
		users:    users,
		tokens:   tokens,
	}
}

// SignIn verifies an ID token, finds or creates the user and issues tokens
func (a *GoogleAuthenticator) SignIn(ctx context.Context, rawIDToken string) (*SocialLoginResponse, error) {
	claims, err := a.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		slog.Warn("Google ID token rejected", "error", err)
		return nil, ErrInvalidToken
	}
	if claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	email := strings.TrimSpace(claims.Email)
	if email == "" {
		return nil, fmt.Errorf("%w: email not found in token", ErrInvalidToken)
	}
	if !claims.EmailVerified {
		slog.Warn("Google sign-in with unverified email", "email", email)
		return nil, fmt.Errorf("%w: email not verified", ErrInvalidToken)
	}

	user, err := a.users.GetOrCreateSocialUser(ctx, models.AuthProviderGoogle, email)
	if err != nil {
		return nil, fmt.Errorf("failed to find or create user: %w", err)
	}
	if !user.IsActive {
		return nil, ErrInvalidCredentials
	}

	tokens, err := a.tokens.IssueTokens(user)
	if err != nil {
		return nil, err
	}

	slog.Info("User logged in via Google", "user_id", user.ID, "email", user.Email)
	return &SocialLoginResponse{User: user, Tokens: tokens}, nil
}

// AuthCodeURL returns the consent URL for the given state
func (a *GoogleAuthenticator) AuthCodeURL(state string) string {
	return a.config.AuthCodeURL(state)
}

// HandleCallback exchanges an authorization code and signs the user in with the returned ID token
func (a *GoogleAuthenticator) HandleCallback(ctx context.Context, code string) (*SocialLoginResponse, error) {
	oauth2Token, err := a.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange code: %w", err)
	}

	rawIDToken, ok := oauth2Token.Extra("id_token").(string)
	if !ok {
		return nil, errors.New("no id_token in token response")
	}

	return a.SignIn(ctx, rawIDToken)
}
