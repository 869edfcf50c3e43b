package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Exists checks if a configuration file exists at the given path
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// CreateDefault creates a default configuration file at the given path
func CreateDefault(path string) error {
	return Write(path, Default())
}

// Write writes configuration to file
func Write(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// Add header comment
	content := configHeader + string(data)

	// Write file with proper permissions
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// configHeader is the comment header for config.yaml
const configHeader = `# ReviewPilot Configuration
#
# Environment Variable Support:
#   - Use ${VAR_NAME} syntax in values to reference environment variables
#   - Or use RP_* prefix environment variables to override:
#     RP_SERVER_HOST, RP_SERVER_PORT, RP_SERVER_DEBUG
#     RP_DATABASE_PATH
#     RP_ADMIN_USERNAME, RP_ADMIN_PASSWORD_HASH, RP_ADMIN_JWT_SECRET
#     RP_REVIEW_AGENT, RP_TRIGGER_MENTION
#     RP_LOG_LEVEL, RP_LOG_FORMAT
#

`

// applyEnvOverrides applies environment variable overrides to the configuration
func applyEnvOverrides(cfg *Config) {
	// Server overrides
	if v := os.Getenv("RP_SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("RP_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("RP_SERVER_DEBUG"); v != "" {
		cfg.Server.Debug = parseBool(v)
	}

	// Database overrides
	if v := os.Getenv("RP_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// Admin overrides
	if cfg.Admin != nil {
		if v := os.Getenv("RP_ADMIN_USERNAME"); v != "" {
			cfg.Admin.Username = v
		}
		if v := os.Getenv("RP_ADMIN_PASSWORD_HASH"); v != "" {
			cfg.Admin.PasswordHash = v
		}
		if v := os.Getenv("RP_ADMIN_JWT_SECRET"); v != "" {
			cfg.Admin.JWTSecret = v
		}
	}

	// Review overrides
	if v := os.Getenv("RP_REVIEW_AGENT"); v != "" {
		cfg.Review.Agent = v
	}
	if v := os.Getenv("RP_TRIGGER_MENTION"); v != "" {
		cfg.Review.TriggerMention = v
	}

	// Logging overrides
	if v := os.Getenv("RP_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("RP_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("RP_LOG_FILE"); v != "" {
		cfg.Logging.File = v
	}

	// Telemetry overrides
	if v := os.Getenv("RP_TELEMETRY_ENABLED"); v != "" {
		cfg.Telemetry.Enabled = parseBool(v)
	}
	if v := os.Getenv("RP_OTLP_ENABLED"); v != "" {
		cfg.Telemetry.OTLP.Enabled = parseBool(v)
	}
	if v := os.Getenv("RP_OTLP_ENDPOINT"); v != "" {
		cfg.Telemetry.OTLP.Endpoint = v
	}
	if v := os.Getenv("RP_PROMETHEUS_ENABLED"); v != "" {
		cfg.Telemetry.Prometheus.Enabled = parseBool(v)
	}
	if v := os.Getenv("RP_PROMETHEUS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Telemetry.Prometheus.Port = port
		}
	}
}

// parseBool parses a boolean string value
func parseBool(v string) bool {
	v = strings.ToLower(strings.TrimSpace(v))
	return v == "true" || v == "1" || v == "yes" || v == "on"
}

// GetDatabasePath returns the database path from the config file or default
func GetDatabasePath(configPath string) string {
	if Exists(configPath) {
		cfg, err := Load(configPath)
		if err == nil && cfg.Database.Path != "" {
			return cfg.Database.Path
		}
	}
	return defaultDatabasePath
}

// UpdateJWTSecretInConfig updates the jwt_secret field in the config file.
// It uses YAML parsing to safely update only the jwt_secret field while preserving all other fields.
func UpdateJWTSecretInConfig(configPath, jwtSecret string) error {
	return updateAdminField(configPath, "jwt_secret", jwtSecret)
}

// UpdatePasswordHashInConfig updates the password_hash field in the
// config file, preserving all other fields.
func UpdatePasswordHashInConfig(configPath, passwordHash string) error {
	return updateAdminField(configPath, "password_hash", passwordHash)
}

// updateAdminField rewrites one field of the admin section in place.
// The file is parsed into a generic map so fields this build does not
// know about survive the rewrite.
func updateAdminField(configPath, field, value string) error {
	content, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	// Backup current config before making changes
	backupPath := configPath + ".backup"
	if err := os.WriteFile(backupPath, content, 0644); err != nil {
		// Continue anyway, backup is optional
		fmt.Fprintf(os.Stderr, "[WARNING] Failed to create backup: %v\n", err)
	}

	var cfg map[string]any
	if err := yaml.Unmarshal(content, &cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	adminSection, ok := cfg["admin"].(map[string]any)
	if !ok {
		adminSection = make(map[string]any)
		cfg["admin"] = adminSection
	}

	adminSection[field] = value

	newContent, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	finalContent := configHeader + string(newContent)

	if err := os.WriteFile(configPath, []byte(finalContent), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
