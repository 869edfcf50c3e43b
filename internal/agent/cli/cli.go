// Package cli runs agent CLI tools as subprocesses. It holds the exec
// mechanics shared by all CLI-backed agents: stdin prompt delivery,
// timeout enforcement, output capture and model fallback.
package cli

import (
	"context"
	"os"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/reviewpilot/reviewpilot/internal/agent/base"
	"github.com/reviewpilot/reviewpilot/internal/config"
	"github.com/reviewpilot/reviewpilot/pkg/logger"
)

// DefaultTimeout is the execution timeout used when none is configured
const DefaultTimeout = 10 * time.Minute

// Runner executes one agent CLI tool
type Runner struct {
	name           string
	cliPath        string
	defaultCLIName string
	timeout        time.Duration
	logger         *zap.Logger
}

// NewRunner creates a Runner for the named agent.
// The CLI path comes from configuration, falling back to a PATH lookup
// of the tool's default command name.
func NewRunner(agentName, defaultCLIName string, cfg config.AgentDetail) *Runner {
	cliPath := cfg.CLIPath
	if cliPath == "" {
		path, err := exec.LookPath(defaultCLIName)
		if err != nil {
			cliPath = defaultCLIName // Will fail later if not found
		} else {
			cliPath = path
		}
	}

	timeout := DefaultTimeout
	if cfg.Timeout > 0 {
		timeout = time.Duration(cfg.Timeout) * time.Second
	}

	return &Runner{
		name:           agentName,
		cliPath:        cliPath,
		defaultCLIName: defaultCLIName,
		timeout:        timeout,
		logger:         logger.Named("agent." + agentName),
	}
}

// Available checks if the CLI tool can be found
func (r *Runner) Available() bool {
	_, err := exec.LookPath(r.cliPath)
	if err != nil {
		// Try default name
		_, err = exec.LookPath(r.defaultCLIName)
		return err == nil
	}
	return true
}

// Run executes the CLI with the given arguments, writing the prompt to
// stdin, and returns the captured stdout
func (r *Runner) Run(ctx context.Context, args []string, prompt string) (string, error) {
	execCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	cmd := exec.CommandContext(execCtx, r.cliPath, args...)
	r.setupCommandEnv(cmd)

	maskedArgs := maskSensitiveArgs(args)
	r.logger.Info("Executing agent CLI",
		zap.String("cli_path", r.cliPath),
		zap.Strings("args", maskedArgs),
		zap.Int("prompt_length", len(prompt)),
	)

	// Create stdin pipe for prompt input
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return "", base.NewAgentError(r.name, "failed to create stdin pipe", err)
	}

	// Capture output
	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	// Start command
	if err := cmd.Start(); err != nil {
		return "", base.NewAgentError(r.name, "failed to start "+r.cliPath, err)
	}

	// Write prompt to stdin in a goroutine to avoid blocking
	go func() {
		defer stdin.Close()
		if _, writeErr := stdin.Write([]byte(prompt)); writeErr != nil {
			r.logger.Error("Failed to write prompt to stdin", zap.Error(writeErr))
		}
	}()

	// Wait for command to finish
	if err := cmd.Wait(); err != nil {
		// Check for timeout
		if execCtx.Err() == context.DeadlineExceeded {
			return "", base.NewAgentError(r.name, "execution timeout", base.ErrTimeout)
		}

		stderrStr := stderr.String()
		r.logger.Error("Agent CLI execution failed",
			zap.Error(err),
			zap.Int("stdout_len", stdout.Len()),
			zap.String("stderr", truncate(stderrStr, 2048)),
		)

		// Authentication errors are not worth retrying
		if strings.Contains(stderrStr, "Authentication required") {
			return "", base.NewAgentError(r.name, "authentication failed: "+stderrStr, err)
		}

		return stdout.String() + stderrStr,
			base.NewRetryableError(r.name, "CLI execution failed: "+truncate(stderrStr, 512), err)
	}

	r.logger.Debug("Agent CLI completed",
		zap.Int("stdout_len", stdout.Len()),
		zap.Int("stderr_len", stderr.Len()),
	)

	return stdout.String(), nil
}

// ExecFn runs one attempt with a specific model
type ExecFn func(ctx context.Context, model string) (string, error)

// RunWithFallback executes fn with the primary model, trying each fallback
// model in order when the failure looks model-related.
// Returns the output, the model that produced it, and the last error.
func (r *Runner) RunWithFallback(ctx context.Context, primaryModel string, fallbackModels []string, fn ExecFn) (string, string, error) {
	// No model means the tool does not take one; execute once
	if primaryModel == "" {
		output, err := fn(ctx, "")
		return output, "", err
	}

	output, err := fn(ctx, primaryModel)
	if err == nil {
		return output, primaryModel, nil
	}

	if !base.IsModelError(err, output) || len(fallbackModels) == 0 {
		return output, primaryModel, err
	}

	lastErr := err
	for _, fallbackModel := range fallbackModels {
		if fallbackModel == primaryModel {
			continue
		}

		r.logger.Info("Trying fallback model",
			zap.String("primary_model", primaryModel),
			zap.String("fallback_model", fallbackModel),
		)

		output, err = fn(ctx, fallbackModel)
		if err == nil {
			return output, fallbackModel, nil
		}

		lastErr = err
		r.logger.Warn("Fallback model failed",
			zap.String("model", fallbackModel),
			zap.Error(err),
		)
	}

	return output, primaryModel,
		base.NewAgentError(r.name, "all models failed (primary and fallback)", lastErr)
}

// setupCommandEnv sets up the command environment
func (r *Runner) setupCommandEnv(cmd *exec.Cmd) {
	cmd.Env = os.Environ()

	// Set locale
	cmd.Env = append(cmd.Env, "LANG=en_US.UTF-8")
	cmd.Env = append(cmd.Env, "LC_ALL=en_US.UTF-8")
}

// truncate limits s to max bytes for log output
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

// MaskAPIKey masks an API key for logging
func MaskAPIKey(key string) string {
	if key == "" {
		return ""
	}
	if len(key) > 8 {
		return key[:4] + "..." + key[len(key)-4:]
	}
	return "***"
}

// isSensitiveFlag checks if the given flag is a sensitive parameter flag
func isSensitiveFlag(flag string) bool {
	sensitiveFlags := []string{"--api-key", "--token", "--secret", "--password"}
	for _, sf := range sensitiveFlags {
		if flag == sf {
			return true
		}
	}
	return false
}

// maskSensitiveArgs masks the values following sensitive flags like
// --api-key or --token in command line arguments
func maskSensitiveArgs(args []string) []string {
	masked := make([]string, len(args))
	copy(masked, args)

	for i := 0; i < len(masked)-1; i++ {
		if isSensitiveFlag(masked[i]) {
			masked[i+1] = MaskAPIKey(masked[i+1])
		}
	}
	return masked
}
