package check

import (
	"fmt"
	"sort"
	"strings"

	"github.com/reviewpilot/reviewpilot/internal/agent/base"
	"github.com/reviewpilot/reviewpilot/internal/config"
	"github.com/reviewpilot/reviewpilot/internal/git/provider"

	// Register agent and provider implementations in their registries
	_ "github.com/reviewpilot/reviewpilot/internal/agent/agents"
	_ "github.com/reviewpilot/reviewpilot/internal/git/providers"
)

// ValidationResult represents the result of a config validation
type ValidationResult struct {
	Path     string
	Valid    bool
	Detail   string // short summary, e.g. "2 provider(s)"
	Error    error
	Warnings []string
}

// AgentValidationResult represents the result of an agent availability check
type AgentValidationResult struct {
	AgentName    string
	CLIAvailable bool
	APIKeySet    bool
	CLIPath      string
	Error        error
}

// validateConfigs validates the configuration file, the configured Git
// providers and the configured agents. It returns an error on problems the
// server would refuse to start with.
func (c *Checker) validateConfigs() error {
	// Validate config.yaml
	configResult, cfg := c.validateConfigYaml()
	c.report.AddValidationResult(configResult)
	printValidationResult(configResult)

	if !configResult.Valid {
		return fmt.Errorf("config.yaml validation failed: %w", configResult.Error)
	}

	// Validate Git providers
	providerResult := c.validateProviders(cfg)
	c.report.AddValidationResult(providerResult)
	printValidationResult(providerResult)

	if !providerResult.Valid {
		return fmt.Errorf("provider validation failed: %w", providerResult.Error)
	}

	// Validate agents
	agentResults := c.validateAgents(cfg)
	if len(agentResults) > 0 {
		c.printAgentValidationResults(agentResults)
		for _, ar := range agentResults {
			c.report.AddAgentResult(ar)
		}
		for _, ar := range agentResults {
			if ar.Error != nil {
				return fmt.Errorf("agent %q validation failed: %w", ar.AgentName, ar.Error)
			}
		}
	}

	return nil
}

// validateConfigYaml validates the main configuration file and returns the
// loaded config on success for the follow-up checks.
func (c *Checker) validateConfigYaml() (ValidationResult, *config.Config) {
	path := c.ConfigPath()
	result := ValidationResult{Path: path}

	// Check if file exists
	if !fileExists(path) {
		result.Error = fmt.Errorf("file does not exist")
		return result, nil
	}

	// Try to load the config
	cfg, err := config.Load(path)
	if err != nil {
		result.Error = fmt.Errorf("format error: %v", err)
		return result, nil
	}

	result.Valid = true

	if lang := cfg.Review.OutputLanguage; lang != "" && !isKnownLanguageCode(lang) {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("review.output_language %q is not a common language code", lang))
	}
	if gf := cfg.Review.GuidelinesFile; gf != "" && !fileExists(gf) {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("review.guidelines_file %q does not exist", gf))
	}

	return result, cfg
}

// isKnownLanguageCode reports whether code is in the list of common codes
func isKnownLanguageCode(code string) bool {
	for _, known := range config.ValidLanguageCodes() {
		if strings.EqualFold(code, known) {
			return true
		}
	}
	return false
}

// validateProviders validates Git provider entries against the provider
// registry. Missing tokens and webhook secrets are warnings: the server runs
// without them, it just cannot call the provider or verify signatures.
func (c *Checker) validateProviders(cfg *config.Config) ValidationResult {
	result := ValidationResult{Path: "git.providers", Valid: true}

	if len(cfg.Git.Providers) == 0 {
		result.Warnings = append(result.Warnings,
			"No providers configured, incoming webhooks will be rejected")
		return result
	}

	result.Detail = fmt.Sprintf("%d provider(s)", len(cfg.Git.Providers))

	for _, p := range cfg.Git.Providers {
		if _, ok := provider.Registry[p.Type]; !ok {
			result.Valid = false
			result.Error = fmt.Errorf("unknown provider type %q (known: %s)",
				p.Type, strings.Join(registeredProviderTypes(), ", "))
			return result
		}
		if p.Token == "" {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("Provider %q has no token", p.Type))
		}
		if p.WebhookSecret == "" {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("Provider %q has no webhook secret", p.Type))
		}
	}

	return result
}

// registeredProviderTypes returns the registered provider type names sorted
func registeredProviderTypes() []string {
	names := make([]string, 0, len(provider.Registry))
	for name := range provider.Registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// validateAgents validates all configured agents plus the review agent.
// The review agent is included even when it has no agents entry, because
// ReviewAgent() may fall back to a default that was never configured.
func (c *Checker) validateAgents(cfg *config.Config) []AgentValidationResult {
	names := make([]string, 0, len(cfg.Agents)+1)
	for name := range cfg.Agents {
		names = append(names, name)
	}
	if review := cfg.ReviewAgent(); cfg.GetAgent(review) == nil {
		names = append(names, review)
	}
	sort.Strings(names)

	results := make([]AgentValidationResult, 0, len(names))
	for _, name := range names {
		results = append(results, c.validateAgent(cfg, name))
	}
	return results
}

// validateAgent checks a single agent: registered, CLI reachable, key set
func (c *Checker) validateAgent(cfg *config.Config, name string) AgentValidationResult {
	result := AgentValidationResult{AgentName: name}

	var detail config.AgentDetail
	if d := cfg.GetAgent(name); d != nil {
		detail = *d
	}
	result.CLIPath = detail.CLIPath
	result.APIKeySet = detail.APIKey != ""

	ag, err := base.Create(name, detail)
	if err != nil {
		result.Error = err
		return result
	}
	result.CLIAvailable = ag.Available()

	return result
}

// validateReviewAgent validates only the agent reviews are dispatched to
func (c *Checker) validateReviewAgent(cfg *config.Config) AgentValidationResult {
	return c.validateAgent(cfg, cfg.ReviewAgent())
}

// printAgentValidationResults prints agent validation results
func (c *Checker) printAgentValidationResults(results []AgentValidationResult) {
	fmt.Println()
	fmt.Println("Agent Availability:")

	for _, r := range results {
		printAgentResult(r)
	}
}

// printValidationResult prints the validation result
func printValidationResult(result ValidationResult) {
	if result.Valid {
		if result.Detail != "" {
			green.Printf("  ✓ %s (%s)\n", result.Path, result.Detail)
		} else {
			green.Printf("  ✓ %s\n", result.Path)
		}
	} else if result.Error != nil {
		red.Printf("  ✗ %s: %v\n", result.Path, result.Error)
	} else {
		yellow.Printf("  ⚠ %s\n", result.Path)
	}

	// Print warnings if any
	for _, warning := range result.Warnings {
		yellow.Printf("    └─ %s\n", warning)
	}
}
