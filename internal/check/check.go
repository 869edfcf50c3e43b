// Package check validates the local environment before the server
// starts: required config files, review guidelines, provider and agent
// credentials. It runs either as an interactive wizard or as a silent
// preflight that reports problems without prompting.
package check

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/fatih/color"

	"github.com/reviewpilot/reviewpilot/internal/config"
)

// Shared palette for wizard and report output. Every print helper in the
// package draws from here so status lines look the same everywhere.
var (
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed)
	cyan   = color.New(color.FgCyan)

	boldGreen  = color.New(color.FgGreen, color.Bold)
	boldYellow = color.New(color.FgYellow, color.Bold)
	boldRed    = color.New(color.FgRed, color.Bold)
)

var (
	titleStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")).MarginBottom(1)
	headingStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15"))
	sectionStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("14"))
	separatorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

// CheckResult is what the silent preflight hands back. Errors block
// startup; warnings and suggestions are informational.
type CheckResult struct {
	Success     bool
	Errors      []string
	Warnings    []string
	Suggestions []string
}

// Checker walks the environment checks against one config directory.
type Checker struct {
	configDir string
	report    *Report
	// theme for the interactive prompts
	theme *huh.Theme
}

// NewChecker creates a checker rooted at the default config directory.
func NewChecker() *Checker {
	return &Checker{
		configDir: "config",
		report:    NewReport(),
		theme:     huh.ThemeCharm(),
	}
}

// Run executes the full interactive environment check: configuration
// files, optional guidelines, then validation of providers and agents.
func (c *Checker) Run() error {
	fmt.Println(titleStyle.Render("🔍 ReviewPilot Environment Check"))

	steps := []struct {
		title string
		label string
		run   func() error
	}{
		{"Checking configuration files", "file check", c.checkFiles},
		{"Checking review guidelines", "guidelines check", c.checkGuidelines},
		{"Validating configuration", "config validation", c.validateConfigs},
	}
	for _, step := range steps {
		fmt.Println()
		printSection(step.title)
		if err := step.run(); err != nil {
			return fmt.Errorf("%s failed: %w", step.label, err)
		}
	}

	fmt.Println()
	c.report.Print()
	return nil
}

func printSection(title string) {
	fmt.Println(headingStyle.Render(title + "..."))
}

// RequiredFiles returns the list of required configuration files
func (c *Checker) RequiredFiles() []FileConfig {
	return []FileConfig{
		{
			Path:        filepath.Join(c.configDir, "config.yaml"),
			Description: "Main configuration file (server, providers, agents)",
			Template:    TemplateConfig,
		},
	}
}

// ConfigPath returns the path to the config file
func (c *Checker) ConfigPath() string {
	return filepath.Join(c.configDir, "config.yaml")
}

// GuidelinesPath returns the path to the optional review guidelines file
func (c *Checker) GuidelinesPath() string {
	return filepath.Join(c.configDir, "guidelines.md")
}

// confirmCreate asks the user to confirm file creation
func (c *Checker) confirmCreate(path string) (bool, error) {
	confirm := false
	form := huh.NewForm(huh.NewGroup(
		huh.NewConfirm().
			Title(fmt.Sprintf("Create %s from template?", path)).
			Affirmative("Yes").
			Negative("No").
			Value(&confirm),
	)).WithTheme(c.theme)

	err := form.Run()
	return confirm && err == nil, err
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// ensureDir creates the parent directory of path when missing
func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	return nil
}

// RunNonInteractive performs a non-interactive environment check. Unlike
// Run(), it never prompts and never creates files; problems come back in
// a CheckResult as errors, warnings and suggestions.
func (c *Checker) RunNonInteractive() *CheckResult {
	result := &CheckResult{Success: true}

	for _, file := range c.RequiredFiles() {
		if !fileExists(file.Path) {
			result.Success = false
			result.Errors = append(result.Errors,
				fmt.Sprintf("Configuration file not found: %s", file.Path))
		}
	}
	if !result.Success {
		result.Suggestions = append(result.Suggestions,
			"Run 'reviewpilot serve --check' to interactively create configuration files",
		)
		return result
	}

	cfg, err := config.Load(c.ConfigPath())
	if err != nil {
		result.Success = false
		result.Errors = append(result.Errors,
			fmt.Sprintf("Invalid config.yaml: %v", err))
		return result
	}

	c.checkReviewAgentNonInteractive(cfg, result)
	c.checkCredentialsNonInteractive(cfg, result)

	return result
}

// checkReviewAgentNonInteractive verifies the review agent resolves and
// its CLI is reachable. An unknown agent is a config typo, not an
// environment problem: refuse to start on it.
func (c *Checker) checkReviewAgentNonInteractive(cfg *config.Config, result *CheckResult) {
	agent := c.validateReviewAgent(cfg)
	if agent.Error != nil {
		result.Success = false
		result.Errors = append(result.Errors,
			fmt.Sprintf("Review agent %q: %v", agent.AgentName, agent.Error))
		return
	}
	if !agent.CLIAvailable {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("CLI for review agent %q not found in PATH; reviews will fail until it is installed",
				agent.AgentName))
	}
}

// checkCredentialsNonInteractive reports credential gaps as warnings.
// The server starts without them, the matching features just fail. The
// admin password and JWT secret are generated during startup when empty,
// so only the username is checked.
func (c *Checker) checkCredentialsNonInteractive(cfg *config.Config, result *CheckResult) {
	if cfg.Admin != nil && cfg.Admin.Enabled && cfg.Admin.Username == "" {
		result.Warnings = append(result.Warnings, "Admin username not set")
	}

	if len(cfg.Git.Providers) == 0 {
		result.Warnings = append(result.Warnings,
			"No Git providers configured; incoming webhooks will be rejected")
		return
	}

	for _, p := range cfg.Git.Providers {
		if p.Token == "" {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("Provider %q has no token; API calls will fail", p.Type))
		}
		if p.WebhookSecret == "" {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("Provider %q has no webhook secret; webhook signatures will not be verified", p.Type))
		}
	}
}

// PrintCheckResult renders a CheckResult to the terminal, one block per
// severity.
func PrintCheckResult(result *CheckResult) {
	if len(result.Errors) > 0 {
		fmt.Println()
		red.Println("[ERROR] Environment check failed")
		fmt.Println()
		for _, e := range result.Errors {
			red.Printf("  ✗ %s\n", e)
		}
	}

	if len(result.Warnings) > 0 {
		fmt.Println()
		yellow.Println("[WARNING] Configuration warnings:")
		fmt.Println()
		for _, w := range result.Warnings {
			yellow.Printf("  ⚠ %s\n", w)
		}
	}

	if len(result.Suggestions) > 0 {
		cyan.Println("\nTo fix these issues:")
		for _, s := range result.Suggestions {
			fmt.Printf("  → %s\n", s)
		}
	}

	fmt.Println()
}
