package handler

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/reviewpilot/reviewpilot/internal/config"
	"github.com/reviewpilot/reviewpilot/pkg/errors"
	"github.com/reviewpilot/reviewpilot/pkg/logger"
)

// tokenIssuer is the iss claim stamped into every session token
const tokenIssuer = "reviewpilot"

// RememberMeExpirationHours is the token lifetime when "remember me" is
// requested at login (7 days)
const RememberMeExpirationHours = 168

// defaultTokenHours applies when no token expiration is configured
const defaultTokenHours = 24

// AuthHandler implements login, session introspection and first-run
// password setup. Token validation is exported separately so the auth
// middleware can share it.
type AuthHandler struct {
	config     *config.Config
	configPath string
}

// NewAuthHandler creates an auth handler bound to the default config path
func NewAuthHandler(cfg *config.Config) *AuthHandler {
	return NewAuthHandlerWithConfigPath(cfg, config.ConfigPath)
}

// NewAuthHandlerWithConfigPath creates an auth handler that persists
// password changes to the given config file
func NewAuthHandlerWithConfigPath(cfg *config.Config, configPath string) *AuthHandler {
	return &AuthHandler{
		config:     cfg,
		configPath: configPath,
	}
}

// LoginRequest is the POST /auth/login body
type LoginRequest struct {
	Username   string `json:"username" binding:"required"`
	Password   string `json:"password" binding:"required"`
	RememberMe bool   `json:"remember_me"` // extends the token lifetime to 7 days
}

// LoginResponse carries the issued token and its expiry
type LoginResponse struct {
	Token     string `json:"token"`
	ExpiresAt string `json:"expires_at"`
}

// Claims is the JWT payload for admin sessions
type Claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// respondError writes the error body shape shared by the auth endpoints
func respondError(c *gin.Context, status int, code errors.ErrorCode, message string) {
	c.JSON(status, gin.H{
		"code":    code,
		"message": message,
	})
}

// Login handles POST /api/v1/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, errors.ErrCodeValidation, "Invalid request body")
		return
	}

	admin := h.config.Admin
	if admin == nil || !admin.Enabled {
		logger.Error("Authenticated API access is not enabled")
		respondError(c, http.StatusUnauthorized, errors.ErrCodeUnauthorized, "Authenticated API access is not enabled")
		return
	}

	// Wrong username and wrong password are indistinguishable to the caller
	if req.Username != admin.Username ||
		bcrypt.CompareHashAndPassword([]byte(admin.PasswordHash), []byte(req.Password)) != nil {
		logger.Warn("Invalid login attempt", zap.String("username", req.Username))
		respondError(c, http.StatusUnauthorized, errors.ErrCodeUnauthorized, "Invalid username or password")
		return
	}

	tokenString, expiresAt, err := h.issueToken(req.Username, req.RememberMe)
	if err != nil {
		logger.Error("Failed to generate JWT token", zap.Error(err))
		respondError(c, http.StatusInternalServerError, errors.ErrCodeInternal, "Failed to generate token")
		return
	}

	logger.Info("User logged in", zap.String("username", req.Username))

	c.JSON(http.StatusOK, LoginResponse{
		Token:     tokenString,
		ExpiresAt: expiresAt.Format(time.RFC3339),
	})
}

// tokenTTL returns the session lifetime for a login
func (h *AuthHandler) tokenTTL(rememberMe bool) time.Duration {
	hours := h.config.Admin.TokenExpiration
	if rememberMe {
		hours = RememberMeExpirationHours
	} else if hours <= 0 {
		hours = defaultTokenHours
	}
	return time.Duration(hours) * time.Hour
}

// issueToken mints a signed HS256 session token for username.
// The JWT secret is validated at startup.
func (h *AuthHandler) issueToken(username string, rememberMe bool) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(h.tokenTTL(rememberMe))

	claims := &Claims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    tokenIssuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(h.config.Admin.JWTSecret))
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// Me handles GET /api/v1/auth/me
func (h *AuthHandler) Me(c *gin.Context) {
	username, ok := c.Get("username")
	if !ok {
		respondError(c, http.StatusUnauthorized, errors.ErrCodeUnauthorized, "Not authenticated")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"username": username,
	})
}

// ValidateToken parses and verifies a session token, returning the
// username it was issued to. Implements middleware.TokenValidator.
func (h *AuthHandler) ValidateToken(tokenString string) (string, error) {
	admin := h.config.Admin
	switch {
	case admin == nil:
		return "", fmt.Errorf("admin configuration not available")
	case admin.JWTSecret == "":
		return "", fmt.Errorf("JWT secret not configured")
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(*jwt.Token) (any, error) {
		return []byte(admin.JWTSecret), nil
	})
	if err != nil {
		return "", err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return "", jwt.ErrSignatureInvalid
	}
	return claims.Username, nil
}

// SetupStatusResponse tells the UI whether first-run setup is pending
type SetupStatusResponse struct {
	NeedsSetup bool `json:"needs_setup"`
}

// SetupPasswordRequest is the POST /auth/setup body
type SetupPasswordRequest struct {
	Password        string `json:"password" binding:"required"`
	ConfirmPassword string `json:"confirm_password" binding:"required"`
}

// setupLocked reports whether first-run setup has already happened
func (h *AuthHandler) setupLocked() bool {
	return h.config.Admin != nil && h.config.Admin.PasswordHash != ""
}

// GetSetupStatus handles GET /api/v1/auth/setup/status.
// Once a password exists the endpoint answers 404 so it is
// indistinguishable from a route that does not exist.
func (h *AuthHandler) GetSetupStatus(c *gin.Context) {
	if h.setupLocked() {
		respondError(c, http.StatusNotFound, errors.ErrCodeNotFound, "Not found")
		return
	}

	c.JSON(http.StatusOK, SetupStatusResponse{
		NeedsSetup: true,
	})
}

// SetupPassword handles POST /api/v1/auth/setup. It works exactly once:
// the initial admin password is set without authentication, and the
// endpoint turns into a 404 afterwards.
func (h *AuthHandler) SetupPassword(c *gin.Context) {
	if h.setupLocked() {
		logger.Warn("Attempt to access setup API when password already set",
			zap.String("client_ip", c.ClientIP()))
		respondError(c, http.StatusNotFound, errors.ErrCodeNotFound, "Not found")
		return
	}

	var req SetupPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, errors.ErrCodeValidation, "Invalid request body")
		return
	}

	if req.Password != req.ConfirmPassword {
		respondError(c, http.StatusBadRequest, errors.ErrCodeValidation, "Passwords do not match")
		return
	}

	if err := config.ValidatePassword(req.Password, config.DefaultPasswordRequirements()); err != nil {
		respondError(c, http.StatusBadRequest, errors.ErrCodeValidation,
			fmt.Sprintf("Password validation failed: %v", err))
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		logger.Error("Failed to generate password hash", zap.Error(err))
		respondError(c, http.StatusInternalServerError, errors.ErrCodeInternal, "Failed to generate password hash")
		return
	}

	if err := config.UpdatePasswordHashInConfig(h.configPath, string(hash)); err != nil {
		logger.Error("Failed to update config file", zap.Error(err))
		respondError(c, http.StatusInternalServerError, errors.ErrCodeInternal, "Failed to save password")
		return
	}

	// Reload so the running process picks up the new hash
	newCfg, err := config.Load(h.configPath)
	if err != nil {
		logger.Error("Failed to reload config after password setup", zap.Error(err))
		respondError(c, http.StatusInternalServerError, errors.ErrCodeInternal, "Failed to reload configuration")
		return
	}
	h.config.Admin = newCfg.Admin

	logger.Info("Admin password set successfully")

	c.JSON(http.StatusOK, gin.H{
		"message": "Password set successfully",
	})
}
