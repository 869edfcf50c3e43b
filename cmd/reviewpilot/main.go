// Package main is the entry point for the ReviewPilot application.
// ReviewPilot is an AI-powered code review webhook service.
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/reviewpilot/reviewpilot/consts"
	"github.com/reviewpilot/reviewpilot/internal/check"
	"github.com/reviewpilot/reviewpilot/internal/config"
	"github.com/reviewpilot/reviewpilot/internal/database"
	"github.com/reviewpilot/reviewpilot/internal/engine"
	"github.com/reviewpilot/reviewpilot/internal/git/provider"
	"github.com/reviewpilot/reviewpilot/internal/git/prurl"
	"github.com/reviewpilot/reviewpilot/internal/orchestrator"
	"github.com/reviewpilot/reviewpilot/internal/reconcile"
	"github.com/reviewpilot/reviewpilot/internal/server"
	"github.com/reviewpilot/reviewpilot/internal/store"
	"github.com/reviewpilot/reviewpilot/internal/tracker"
	"github.com/reviewpilot/reviewpilot/pkg/errors"
	"github.com/reviewpilot/reviewpilot/pkg/idgen"
	"github.com/reviewpilot/reviewpilot/pkg/logger"
	"github.com/reviewpilot/reviewpilot/pkg/telemetry"

	// Import agent implementations to register them
	// All agents are registered through the agents package
	_ "github.com/reviewpilot/reviewpilot/internal/agent/agents"

	// Import git provider implementations to register them
	// All providers are registered through the providers package
	_ "github.com/reviewpilot/reviewpilot/internal/git/providers"
)

// configPath holds the path to the configuration file
var configPath string

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "reviewpilot",
	Short: "ReviewPilot - AI-Powered Code Review Webhook Service",
	Long: `ReviewPilot is a code review webhook service that uses pluggable
AI CLI backends to review pull requests on mention or on demand.`,
}

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the ReviewPilot server",
	Long: `Start the HTTP server to handle API requests and webhook triggers.

On first run, use --check flag to interactively set up your environment:
  reviewpilot serve --check

This will guide you through:
  - Creating the configuration file from a template
  - Validating configuration, providers and agents

After initial setup, simply run:
  reviewpilot serve`,
	Run: runServe,
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(consts.VersionString())
		fmt.Println(consts.ProjectURL)
	},
}

func init() {
	// Disable auto-generated completion command
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	// Global flags
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path (default: config/config.yaml)")

	// Add commands
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)

	// Serve command flags
	serveCmd.Flags().String("host", "", "server host (overrides config)")
	serveCmd.Flags().Int("port", 0, "server port (overrides config)")
	serveCmd.Flags().Bool("debug", false, "enable debug mode")
	serveCmd.Flags().Bool("check", false, "run interactive environment check before starting server")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// runServe starts the ReviewPilot server
func runServe(cmd *cobra.Command, args []string) {
	// Check if interactive check is enabled via --check flag
	interactiveCheck, _ := cmd.Flags().GetBool("check")

	if interactiveCheck {
		// Run full interactive environment check
		checker := check.NewChecker()
		if err := checker.Run(); err != nil {
			fmt.Fprintf(os.Stderr, "Environment check failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("\n✓ Environment check completed successfully")
	} else if configPath == "" {
		// Run non-interactive basic check. It covers the default layout
		// only; a custom --config path is validated by loadConfig below.
		checker := check.NewChecker()
		result := checker.RunNonInteractive()

		if !result.Success {
			// Print errors and exit
			check.PrintCheckResult(result)
			os.Exit(1)
		}

		// Print warnings if any (but don't block startup)
		if len(result.Warnings) > 0 {
			for _, warn := range result.Warnings {
				fmt.Fprintf(os.Stderr, "[WARNING] %s\n", warn)
			}
			fmt.Fprintln(os.Stderr)
		}
	}

	// Record server start time
	consts.SetStartedAt(time.Now())

	// Load configuration
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Override config with command line flags
	if host, _ := cmd.Flags().GetString("host"); host != "" {
		cfg.Server.Host = host
	}
	if port, _ := cmd.Flags().GetInt("port"); port != 0 {
		cfg.Server.Port = port
	}
	if debug, _ := cmd.Flags().GetBool("debug"); debug {
		cfg.Server.Debug = true
		cfg.Logging.Level = "debug"
		cfg.Logging.Format = "text"
	}

	// Auto-generate JWT secret if empty and save to config file
	if cfg.Admin != nil && cfg.Admin.Enabled && strings.TrimSpace(cfg.Admin.JWTSecret) == "" {
		newSecret := idgen.NewSecureSecret(32)
		cfg.Admin.JWTSecret = newSecret

		// Save to config file
		if err := config.UpdateJWTSecretInConfig(configPath, newSecret); err != nil {
			fmt.Fprintf(os.Stderr, "[WARNING] Failed to save JWT secret to config file: %v\n", err)
			fmt.Fprintf(os.Stderr, "Using auto-generated JWT secret for this session only.\n")
			fmt.Fprintf(os.Stderr, "Please manually add jwt_secret to your config file to persist across restarts.\n\n")
		} else {
			fmt.Fprintf(os.Stderr, "[INFO] JWT secret was empty, auto-generated and saved to config file.\n\n")
		}
	}

	// Validate admin configuration
	if validationErr := config.ValidateAdminConfig(cfg.Admin); validationErr != nil {
		fmt.Fprintf(os.Stderr, "\n[ERROR] Admin configuration validation failed\n")
		fmt.Fprintf(os.Stderr, "Error Code: %s\n", validationErr.Code)
		fmt.Fprintf(os.Stderr, "Error: %v\n\n", validationErr)

		// Print context-specific configuration hints based on error type
		switch validationErr.Code {
		case errors.ErrCodeJWTSecretInvalid:
			fmt.Fprintf(os.Stderr, "JWT secret is invalid or too short.\n")
			fmt.Fprintf(os.Stderr, "Please configure JWT secret in your config file:\n")
			fmt.Fprintf(os.Stderr, "  admin:\n")
			fmt.Fprintf(os.Stderr, "    jwt_secret: \"%s\"\n\n", idgen.NewSecureSecret(32))
		case errors.ErrCodeAdminCredentialsEmpty:
			fmt.Fprintf(os.Stderr, "Please configure admin username in your config file:\n")
			fmt.Fprintf(os.Stderr, "  admin:\n")
			fmt.Fprintf(os.Stderr, "    username: \"admin\"\n\n")
		default:
			fmt.Fprintf(os.Stderr, "Please check admin configuration in your config file.\n\n")
		}

		os.Exit(errors.ExitCodeConfigValidation)
	}

	// Validate review and reconciliation settings
	if validationErr := config.ValidateReviewConfig(&cfg.Review); validationErr != nil {
		fmt.Fprintf(os.Stderr, "\n[ERROR] Review configuration validation failed\n")
		fmt.Fprintf(os.Stderr, "Error Code: %s\n", validationErr.Code)
		fmt.Fprintf(os.Stderr, "Error: %v\n\n", validationErr)
		os.Exit(errors.ExitCodeConfigValidation)
	}
	if validationErr := config.ValidateReconcileConfig(&cfg.Reconcile); validationErr != nil {
		fmt.Fprintf(os.Stderr, "\n[ERROR] Reconcile configuration validation failed\n")
		fmt.Fprintf(os.Stderr, "Error Code: %s\n", validationErr.Code)
		fmt.Fprintf(os.Stderr, "Error: %v\n\n", validationErr)
		os.Exit(errors.ExitCodeConfigValidation)
	}

	// Generate an admin password on first start and print it exactly once.
	// Only the bcrypt hash is persisted.
	if cfg.Admin != nil && cfg.Admin.Enabled && strings.TrimSpace(cfg.Admin.PasswordHash) == "" {
		password := idgen.NewSecurePassword()
		hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to generate admin password: %v\n", err)
			os.Exit(1)
		}
		cfg.Admin.PasswordHash = string(hash)

		if err := config.UpdatePasswordHashInConfig(configPath, string(hash)); err != nil {
			fmt.Fprintf(os.Stderr, "[WARNING] Failed to save admin password to config file: %v\n", err)
			fmt.Fprintf(os.Stderr, "Using the generated password for this session only.\n\n")
		}

		fmt.Fprintf(os.Stderr, "[INFO] Admin password was empty, generated new credentials:\n")
		fmt.Fprintf(os.Stderr, "  username: %s\n", cfg.Admin.Username)
		fmt.Fprintf(os.Stderr, "  password: %s\n", password)
		fmt.Fprintf(os.Stderr, "This password is shown only once. Store it now.\n\n")
	}

	// Initialize logger
	if err := logger.Init(cfg.Logging); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting ReviewPilot",
		zap.String("version", consts.Version),
		zap.String("commit", consts.GitCommit),
	)

	// Initialize telemetry (OpenTelemetry traces and metrics)
	tel, err := telemetry.New(cfg.Telemetry)
	if err != nil {
		logger.Fatal("Failed to initialize telemetry", zap.Error(err))
	}
	defer func() {
		// Graceful shutdown with timeout
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := tel.Shutdown(ctx); err != nil {
			logger.Error("Failed to shutdown telemetry", zap.Error(err))
		}
	}()

	// Database is already initialized in loadConfig
	// Just ensure cleanup on exit
	defer database.Close()

	// Create store instance for dependency injection
	dataStore := store.NewStore(database.Get())

	// Create the Git provider manager and register self-hosted URLs so
	// pasted PR links resolve to the right provider
	providerManager := provider.NewManager(cfg.Git.Providers)
	prurl.DefaultParser.RegisterHostsFromConfig(providerHosts(cfg.Git.Providers))

	// Context shared by the engine and the reconciler; cancelled on return
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Create review engine
	reviewEngine, err := engine.NewEngine(ctx, cfg, dataStore, providerManager)
	if err != nil {
		logger.Fatal("Failed to create review engine", zap.Error(err))
	}

	// Start review engine
	reviewEngine.Start()
	defer reviewEngine.Stop()

	// Create PR tracker and orchestrator wiring webhooks to the engine
	prTracker := tracker.New(dataStore)
	orch := orchestrator.New(dataStore, providerManager, prTracker, reviewEngine, cfg.Review.GetTriggerMention())

	// Start the open PR reconciler (no-op unless enabled in config)
	reconciler := reconcile.New(cfg.Reconcile, providerManager, orch)
	if err := reconciler.Start(ctx); err != nil {
		logger.Fatal("Failed to start reconciler", zap.Error(err))
	}
	defer reconciler.Stop()

	// Create and configure server
	srv := server.NewWithConfigPath(cfg, reviewEngine, orch, providerManager, prTracker, configPath, dataStore)
	srv.SetupRoutes()

	// Start server
	if err := srv.Start(); err != nil {
		logger.Fatal("Failed to start server", zap.Error(err))
	}

	logger.Info("ReviewPilot server is running",
		zap.String("address", cfg.Server.Address()),
	)

	// Log access URLs for user convenience
	port := cfg.Server.Port
	logger.Info(fmt.Sprintf("  Local:   http://localhost:%d/health", port))
	if lanIP := getLocalIP(); lanIP != "" {
		logger.Info(fmt.Sprintf("  Network: http://%s:%d/health", lanIP, port))
	}

	// Wait for shutdown
	srv.WaitForShutdown()

	logger.Info("ReviewPilot stopped")
}

// loadConfig loads the configuration file and initializes the database
func loadConfig() (*config.Config, error) {
	// Use default config path if not specified
	if configPath == "" {
		configPath = config.ConfigPath
	}

	// Check if config.yaml exists
	if !config.Exists(configPath) {
		return nil, fmt.Errorf("configuration not found: %s\nRun 'reviewpilot serve --check' to create it", configPath)
	}

	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// Initialize database with the configured path
	dbPath := cfg.Database.Path
	if dbPath == "" {
		dbPath = database.DefaultDBPath
	}
	if err := database.InitWithPath(dbPath); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	return cfg, nil
}

// providerHosts converts provider configs to the host registration form
func providerHosts(providers []config.ProviderConfig) []struct {
	Type string
	URL  string
} {
	hosts := make([]struct {
		Type string
		URL  string
	}, 0, len(providers))
	for _, p := range providers {
		hosts = append(hosts, struct {
			Type string
			URL  string
		}{Type: p.Type, URL: p.URL})
	}
	return hosts
}

// getLocalIP returns the first non-loopback IPv4 address
func getLocalIP() string {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return ""
	}
	for _, addr := range addrs {
		if ipnet, ok := addr.(*net.IPNet); ok && !ipnet.IP.IsLoopback() {
			if ipnet.IP.To4() != nil {
				return ipnet.IP.String()
			}
		}
	}
	return ""
}
