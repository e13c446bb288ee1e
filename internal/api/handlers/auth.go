package handlers

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/taskhub-dev/taskhub/internal/audit"
	"github.com/taskhub-dev/taskhub/internal/auth"
	"github.com/taskhub-dev/taskhub/internal/service"
	"gorm.io/gorm"
)

const oauthStateKey = "oauth_state"

// GoogleSignInRequest carries a Google ID token obtained by the client.
type GoogleSignInRequest struct {
	IDToken string `json:"id_token" binding:"required,min=6"`
}

// AuthHandler serves token issuance and Google sign-in.
type AuthHandler struct {
	db            *gorm.DB
	authenticator auth.Authenticator
	users         *service.UserService
	google        *auth.GoogleAuthenticator
}

// NewAuthHandler creates an AuthHandler. google may be nil when Google sign-in is not configured.
func NewAuthHandler(db *gorm.DB, authenticator auth.Authenticator, users *service.UserService, google *auth.GoogleAuthenticator) *AuthHandler {
	return &AuthHandler{db: db, authenticator: authenticator, users: users, google: google}
}

// ObtainToken godoc
// @Summary Obtain a token pair
// @Description Exchange email and password for an access and a refresh token
// @Tags auth
// @Accept json
// @Produce json
// @Param credentials body auth.LoginRequest true "Login credentials"
// @Success 200 {object} auth.TokenPair
// @Failure 400 {object} Response
// @Failure 401 {object} Response
// @Failure 429 {object} Response
// @Router /token/ [post]
func (h *AuthHandler) ObtainToken(c *gin.Context) {
	var req auth.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handleBindError(c, err, "Invalid request body.")
		return
	}

	tokens, err := h.authenticator.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			audit.Record(h.db, uuid.Nil, audit.ActionLoginFailed, audit.Resource("user", auth.NormalizeEmail(req.Email)), nil)
			failure(c, http.StatusUnauthorized, "No active account found with the given credentials", nil)
			return
		}
		handleServiceError(c, err, "Login failed.", "")
		return
	}

	if user, err := h.users.GetByEmail(c.Request.Context(), req.Email); err == nil {
		audit.Record(h.db, user.ID, audit.ActionLogin, audit.Resource("user", user.ID), map[string]interface{}{
			"provider": user.AuthProvider,
		})
	}
	c.JSON(http.StatusOK, tokens)
}

// RefreshToken godoc
// @Summary Refresh an access token
// @Tags auth
// @Accept json
// @Produce json
// @Param refresh body auth.RefreshRequest true "Refresh token"
// @Success 200 {object} auth.AccessToken
// @Failure 400 {object} Response
// @Failure 401 {object} Response
// @Router /token/refresh/ [post]
func (h *AuthHandler) RefreshToken(c *gin.Context) {
	var req auth.RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handleBindError(c, err, "Invalid request body.")
		return
	}

	token, err := h.authenticator.Refresh(c.Request.Context(), req.Refresh)
	if err != nil {
		handleServiceError(c, err, "Token is invalid or expired", "")
		return
	}
	c.JSON(http.StatusOK, token)
}

// GoogleSignIn godoc
// @Summary Sign in with a Google ID token
// @Description Verifies the ID token, creates an employer account on first sign-in and returns tokens
// @Tags auth
// @Accept json
// @Produce json
// @Param body body GoogleSignInRequest true "Google ID token"
// @Success 200 {object} Response
// @Failure 400 {object} Response
// @Failure 401 {object} Response
// @Router /google/ [post]
func (h *AuthHandler) GoogleSignIn(c *gin.Context) {
	if !h.googleEnabled(c) {
		return
	}

	var req GoogleSignInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handleBindError(c, err, "Google authentication failed.")
		return
	}

	resp, err := h.google.SignIn(c.Request.Context(), req.IDToken)
	h.respondSocial(c, resp, err)
}

// GoogleLogin godoc
// @Summary Start the Google sign-in redirect flow
// @Tags auth
// @Success 302
// @Router /google/login [get]
func (h *AuthHandler) GoogleLogin(c *gin.Context) {
	if !h.googleEnabled(c) {
		return
	}

	state, err := generateRandomState()
	if err != nil {
		slog.Error("Failed to generate state", "error", err)
		failure(c, http.StatusInternalServerError, "Failed to start Google sign-in.", nil)
		return
	}

	session := sessions.Default(c)
	session.Set(oauthStateKey, state)
	if err := session.Save(); err != nil {
		slog.Error("Failed to save session", "error", err)
		failure(c, http.StatusInternalServerError, "Failed to start Google sign-in.", nil)
		return
	}

	c.Redirect(http.StatusFound, h.google.AuthCodeURL(state))
}

// GoogleCallback godoc
// @Summary Complete the Google sign-in redirect flow
// @Tags auth
// @Produce json
// @Param code query string true "Authorization code"
// @Param state query string true "State parameter"
// @Success 200 {object} Response
// @Failure 400 {object} Response
// @Failure 401 {object} Response
// @Router /google/callback [get]
func (h *AuthHandler) GoogleCallback(c *gin.Context) {
	if !h.googleEnabled(c) {
		return
	}

	session := sessions.Default(c)
	stored, _ := session.Get(oauthStateKey).(string)
	state := c.Query("state")
	if stored == "" || state == "" || state != stored {
		slog.Warn("Invalid OAuth state", "state", state)
		failure(c, http.StatusBadRequest, "Google authentication failed.", "Invalid state parameter.")
		return
	}
	session.Delete(oauthStateKey)
	if err := session.Save(); err != nil {
		slog.Warn("Failed to clear OAuth state", "error", err)
	}

	code := c.Query("code")
	if code == "" {
		failure(c, http.StatusBadRequest, "Google authentication failed.", "Missing authorization code.")
		return
	}

	resp, err := h.google.HandleCallback(c.Request.Context(), code)
	h.respondSocial(c, resp, err)
}

func (h *AuthHandler) respondSocial(c *gin.Context, resp *auth.SocialLoginResponse, err error) {
	if err != nil {
		handleServiceError(c, err, "Google authentication failed.", "")
		return
	}

	audit.Record(h.db, resp.User.ID, audit.ActionLogin, audit.Resource("user", resp.User.ID), map[string]interface{}{
		"provider": resp.User.AuthProvider,
	})
	success(c, "User successfully logged in using Google", resp)
}

func (h *AuthHandler) googleEnabled(c *gin.Context) bool {
	if h.google == nil {
		failure(c, http.StatusNotFound, "Google sign-in is not configured.", nil)
		return false
	}
	return true
}

// generateRandomState generates a random state string for CSRF protection
func generateRandomState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}
