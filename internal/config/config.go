// Package config loads the YAML configuration file, layers it over the
// built-in defaults and applies environment variable overrides.
package config

import (
	"net"
	"os"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/reviewpilot/reviewpilot/consts"
	"github.com/reviewpilot/reviewpilot/pkg/logger"
	"github.com/reviewpilot/reviewpilot/pkg/telemetry"
)

const (
	defaultDatabasePath   = "./data/reviewpilot.db"
	defaultCLIPath        = "/usr/local/bin/cursor"
	defaultAgentTimeout   = 600
	defaultTriggerMention = "@reviewpilot"
	defaultMaxRetries     = 3
	defaultRetryDelay     = 5
	defaultLoopDelay      = 1
	defaultOTLPEndpoint   = "localhost:4317"
	defaultPrometheusPort = 9090
)

// ConfigPath is where the server looks for its configuration by default.
const ConfigPath = "config/config.yaml"

// Config is the complete application configuration.
type Config struct {
	Server    ServerConfig           `yaml:"server"`
	Database  DatabaseConfig         `yaml:"database"`
	Admin     *AdminConfig           `yaml:"admin"`
	Git       GitConfig              `yaml:"git"`
	Agents    map[string]AgentDetail `yaml:"agents"`
	Review    ReviewConfig           `yaml:"review"`
	Reconcile ReconcileConfig        `yaml:"reconcile"`
	Logging   logger.Config          `yaml:"logging"`
	Telemetry telemetry.Config       `yaml:"telemetry"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Host  string `yaml:"host"`
	Port  int    `yaml:"port"`
	Debug bool   `yaml:"debug"`
	// CORSOrigins lists the origins allowed to call the API from a
	// browser. Anything else is rejected on preflight.
	CORSOrigins []string `yaml:"cors_origins"`
}

// DatabaseConfig holds the SQLite file location.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// AdminConfig controls authenticated API access.
type AdminConfig struct {
	Enabled         bool   `yaml:"enabled"`
	Username        string `yaml:"username"`
	PasswordHash    string `yaml:"password_hash"` // bcrypt
	JWTSecret       string `yaml:"jwt_secret"`
	TokenExpiration int    `yaml:"expiry_hours"`
}

// GitConfig holds the configured Git hosting providers.
type GitConfig struct {
	Providers []ProviderConfig `yaml:"providers"`
}

// ProviderConfig is one Git hosting backend entry.
type ProviderConfig struct {
	Type string `yaml:"type"` // github, gitlab, gitea, backlog
	// URL is only needed for self-hosted instances; cloud endpoints are
	// implied by the type.
	URL      string `yaml:"url"`
	Token    string `yaml:"token"`
	Username string `yaml:"username"` // backlog needs it to fetch diffs over git
	// WebhookSecret authenticates incoming webhook deliveries.
	WebhookSecret string `yaml:"webhook_secret"`
	// InsecureSkipVerify accepts self-signed TLS certificates.
	InsecureSkipVerify bool `yaml:"insecure_skip_verify"`
}

// AgentDetail configures one AI CLI agent.
type AgentDetail struct {
	CLIPath        string   `yaml:"cli_path" json:"cli_path"`
	APIKey         string   `yaml:"api_key" json:"api_key"`
	Timeout        int      `yaml:"timeout" json:"timeout"` // seconds per review
	DefaultModel   string   `yaml:"default_model" json:"default_model"`
	FallbackModels []string `yaml:"fallback_models" json:"fallback_models"` // tried in order on model errors
}

// ReviewConfig tunes the review pipeline.
type ReviewConfig struct {
	// Agent names the configured agent used for reviews; empty falls
	// back to the only configured agent.
	Agent string `yaml:"agent"`
	// TriggerMention is the comment mention that requests a review.
	TriggerMention string `yaml:"trigger_mention"`
	MaxRetries     int    `yaml:"max_retries"` // attempts per queued submission
	RetryDelay     int    `yaml:"retry_delay"` // seconds after a failed attempt
	LoopDelay      int    `yaml:"loop_delay"`  // seconds between queue iterations
	// OutputLanguage is an ISO 639-1 code (en, zh-cn, ...); empty means
	// English.
	OutputLanguage string `yaml:"output_language"`
	// GuidelinesFile points at an optional markdown file inlined into
	// every review prompt.
	GuidelinesFile string `yaml:"guidelines_file"`
}

// ReconcileConfig controls the periodic open-PR reconciliation scans.
type ReconcileConfig struct {
	Enabled      bool            `yaml:"enabled"`
	OnStartup    bool            `yaml:"on_startup"`
	Schedule     string          `yaml:"schedule"` // cron expression
	Repositories []ReconcileRepo `yaml:"repositories"`
}

// ReconcileRepo identifies one repository to scan for open pull requests.
type ReconcileRepo struct {
	Provider string `yaml:"provider"`
	Project  string `yaml:"project"` // project key or owner
	Repo     string `yaml:"repo"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:        "0.0.0.0",
			Port:        8080,
			CORSOrigins: []string{"http://localhost:8080"},
		},
		Database: DatabaseConfig{Path: defaultDatabasePath},
		Admin: &AdminConfig{
			Enabled:         true,
			Username:        "admin",
			TokenExpiration: 24,
		},
		Agents: map[string]AgentDetail{
			"cursor": {CLIPath: defaultCLIPath, Timeout: defaultAgentTimeout},
		},
		Review: ReviewConfig{
			TriggerMention: defaultTriggerMention,
			MaxRetries:     defaultMaxRetries,
			RetryDelay:     defaultRetryDelay,
			LoopDelay:      defaultLoopDelay,
		},
		Reconcile: ReconcileConfig{
			OnStartup: true,
			Schedule:  "0 */6 * * *",
		},
		Logging: logger.Config{
			Level:      "info",
			Format:     "text", // set to json for log shippers
			MaxSize:    100,    // MB before rotation
			MaxAge:     7,      // days
			MaxBackups: 5,
		},
		Telemetry: telemetry.Config{
			ServiceName: consts.ServiceName,
			OTLP: telemetry.OTLPConfig{
				Endpoint: defaultOTLPEndpoint,
				Insecure: true,
			},
			Prometheus: telemetry.PrometheusConfig{Port: defaultPrometheusPort},
		},
	}
}

// Load reads a YAML configuration file on top of the defaults. ${VAR}
// references in the file are expanded first, then RP_-prefixed
// environment variables override individual keys (see applyEnvOverrides).
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expandEnvVars(string(data))), cfg); err != nil {
		return nil, err
	}
	applyEnvOverrides(cfg)
	return cfg, nil
}

// envVarPattern matches ${VAR} and ${VAR:-default}. Bare $VAR is left
// alone so values like bcrypt hashes survive expansion.
var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars substitutes environment variables referenced in the
// configuration text. Unset variables expand to their :-default, or "".
func expandEnvVars(content string) string {
	return envVarPattern.ReplaceAllStringFunc(content, func(match string) string {
		name, fallback, hasFallback := strings.Cut(match[2:len(match)-1], ":-")

		if value := os.Getenv(name); value != "" {
			return value
		}
		if hasFallback {
			return fallback
		}
		return ""
	})
}

// Address returns the host:port the HTTP server binds to.
func (c *ServerConfig) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// GetProvider returns the configuration for a provider type, or nil when
// none is configured.
func (c *GitConfig) GetProvider(providerType string) *ProviderConfig {
	for i := range c.Providers {
		if c.Providers[i].Type == providerType {
			return &c.Providers[i]
		}
	}
	return nil
}

// GetAgent returns the configuration for a named agent, or nil.
func (c *Config) GetAgent(name string) *AgentDetail {
	detail, ok := c.Agents[name]
	if !ok {
		return nil
	}
	return &detail
}

// ReviewAgent returns the name of the agent used for reviews.
// Falls back to the only configured agent when review.agent is unset.
func (c *Config) ReviewAgent() string {
	if c.Review.Agent != "" {
		return c.Review.Agent
	}
	if len(c.Agents) == 1 {
		for name := range c.Agents {
			return name
		}
	}
	return "cursor"
}

// GetTriggerMention returns the configured trigger mention, defaulted.
func (c *ReviewConfig) GetTriggerMention() string {
	if c.TriggerMention == "" {
		return defaultTriggerMention
	}
	return c.TriggerMention
}
