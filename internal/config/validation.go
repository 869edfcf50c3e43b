// Package config provides configuration management for the application.
// This file contains validation functions for configuration values.
package config

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/robfig/cron/v3"

	"github.com/reviewpilot/reviewpilot/pkg/errors"
)

// MinJWTSecretLength is the minimum required length for JWT secret (256 bits for HS256)
const MinJWTSecretLength = 32

// knownProviderTypes are the provider values accepted in git.providers
// and reconcile.repositories.
var knownProviderTypes = map[string]bool{
	"github":  true,
	"gitlab":  true,
	"gitea":   true,
	"backlog": true,
}

// PasswordRequirements defines the password complexity requirements
type PasswordRequirements struct {
	MinLength        int    // Minimum password length
	RequireUppercase bool   // Require at least one uppercase letter
	RequireLowercase bool   // Require at least one lowercase letter
	RequireDigit     bool   // Require at least one digit
	RequireSpecial   bool   // Require at least one special character
	SpecialChars     string // Allowed special characters
}

// DefaultPasswordRequirements returns the default password complexity requirements
func DefaultPasswordRequirements() PasswordRequirements {
	return PasswordRequirements{
		MinLength:        8,
		RequireUppercase: true,
		RequireLowercase: true,
		RequireDigit:     true,
		RequireSpecial:   true,
		SpecialChars:     "!@#$%^&*()_+-=[]{}|;:,.<>?",
	}
}

// ValidatePassword validates a password against the complexity requirements.
// Returns nil if the password is valid, otherwise an error listing every
// unmet requirement.
func ValidatePassword(password string, req PasswordRequirements) error {
	var hasUpper, hasLower, hasDigit, hasSpecial bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		case strings.ContainsRune(req.SpecialChars, r):
			hasSpecial = true
		}
	}

	var failures []string
	if len(password) < req.MinLength {
		failures = append(failures, fmt.Sprintf("at least %d characters", req.MinLength))
	}
	if req.RequireUppercase && !hasUpper {
		failures = append(failures, "at least one uppercase letter (A-Z)")
	}
	if req.RequireLowercase && !hasLower {
		failures = append(failures, "at least one lowercase letter (a-z)")
	}
	if req.RequireDigit && !hasDigit {
		failures = append(failures, "at least one digit (0-9)")
	}
	if req.RequireSpecial && !hasSpecial {
		failures = append(failures, fmt.Sprintf("at least one special character (%s)", req.SpecialChars))
	}

	if len(failures) > 0 {
		return fmt.Errorf("password must contain: %s", strings.Join(failures, ", "))
	}
	return nil
}

// ValidateAdminConfig validates the admin configuration.
// An empty password_hash is allowed, the server generates one on first
// start. A non-empty value that is not a bcrypt hash would make login
// permanently impossible, so it is rejected here.
func ValidateAdminConfig(cfg *AdminConfig) *errors.AppError {
	if cfg == nil || !cfg.Enabled {
		return nil
	}

	if strings.TrimSpace(cfg.Username) == "" {
		return errors.New(errors.ErrCodeAdminCredentialsEmpty,
			"admin username cannot be empty when authentication is enabled")
	}

	if hash := strings.TrimSpace(cfg.PasswordHash); hash != "" && !IsValidBcryptHash(hash) {
		return errors.New(errors.ErrCodeConfigInvalid,
			"admin.password_hash is not a bcrypt hash; leave it empty to generate one on first start")
	}

	// JWT secret is required for secure token signing
	if strings.TrimSpace(cfg.JWTSecret) == "" {
		return errors.New(errors.ErrCodeJWTSecretInvalid,
			"jwt_secret cannot be empty when authentication is enabled")
	}
	if len(cfg.JWTSecret) < MinJWTSecretLength {
		return errors.New(errors.ErrCodeJWTSecretInvalid,
			fmt.Sprintf("jwt_secret must be at least %d characters long for security (HS256 requires 256 bits)", MinJWTSecretLength))
	}

	return nil
}

// ValidateReviewConfig validates the review pipeline settings. Zero values
// are allowed everywhere since defaults fill them in; only actively harmful
// values are rejected.
func ValidateReviewConfig(cfg *ReviewConfig) *errors.AppError {
	if m := cfg.TriggerMention; m != "" {
		if !strings.HasPrefix(m, "@") || len(m) == 1 {
			return errors.New(errors.ErrCodeConfigInvalid,
				fmt.Sprintf("review.trigger_mention %q must be a mention like %q", m, defaultTriggerMention))
		}
		if strings.ContainsAny(m, " \t\r\n") {
			return errors.New(errors.ErrCodeConfigInvalid,
				fmt.Sprintf("review.trigger_mention %q must not contain whitespace", m))
		}
	}

	if cfg.MaxRetries < 0 {
		return errors.New(errors.ErrCodeConfigInvalid, "review.max_retries must not be negative")
	}
	if cfg.RetryDelay < 0 {
		return errors.New(errors.ErrCodeConfigInvalid, "review.retry_delay must not be negative")
	}
	if cfg.LoopDelay < 0 {
		return errors.New(errors.ErrCodeConfigInvalid, "review.loop_delay must not be negative")
	}

	return nil
}

// ValidateReconcileConfig validates the reconciliation settings. A disabled
// section is never validated so a half-filled one does not block startup.
// The schedule is parsed with the same cron grammar the scheduler uses.
func ValidateReconcileConfig(cfg *ReconcileConfig) *errors.AppError {
	if cfg == nil || !cfg.Enabled {
		return nil
	}

	if cfg.Schedule != "" {
		if _, err := cron.ParseStandard(cfg.Schedule); err != nil {
			return errors.New(errors.ErrCodeConfigInvalid,
				fmt.Sprintf("reconcile.schedule %q is not a valid cron expression: %v", cfg.Schedule, err))
		}
	}

	for i, repo := range cfg.Repositories {
		if repo.Provider == "" || repo.Project == "" || repo.Repo == "" {
			return errors.New(errors.ErrCodeConfigInvalid,
				fmt.Sprintf("reconcile.repositories[%d] must set provider, project and repo", i))
		}
		if !knownProviderTypes[repo.Provider] {
			return errors.New(errors.ErrCodeConfigInvalid,
				fmt.Sprintf("reconcile.repositories[%d] has unknown provider %q", i, repo.Provider))
		}
	}

	return nil
}

// IsValidBcryptHash checks if a string is a valid bcrypt hash.
// Bcrypt hashes are at least 60 bytes and start with $2a$, $2b$ or $2y$
// followed by the cost factor.
func IsValidBcryptHash(hash string) bool {
	if len(hash) < 60 {
		return false
	}
	return strings.HasPrefix(hash, "$2a$") || strings.HasPrefix(hash, "$2b$") || strings.HasPrefix(hash, "$2y$")
}

// FormatPasswordRequirements returns a human-readable description of password requirements
func FormatPasswordRequirements() string {
	req := DefaultPasswordRequirements()
	var requirements []string

	requirements = append(requirements, fmt.Sprintf("- At least %d characters long", req.MinLength))

	if req.RequireUppercase {
		requirements = append(requirements, "- Contains at least one uppercase letter (A-Z)")
	}
	if req.RequireLowercase {
		requirements = append(requirements, "- Contains at least one lowercase letter (a-z)")
	}
	if req.RequireDigit {
		requirements = append(requirements, "- Contains at least one digit (0-9)")
	}
	if req.RequireSpecial {
		requirements = append(requirements, fmt.Sprintf("- Contains at least one special character (%s)", req.SpecialChars))
	}

	return strings.Join(requirements, "\n")
}
