// Package consts holds service-wide identity and build metadata.
package consts

import (
	"fmt"
	"sync"
	"time"
)

// Service identity.
const (
	// ServiceName identifies the service in logs, traces, and metrics.
	ServiceName = "reviewpilot"

	// ProjectName is the human-facing name used in CLI output.
	ProjectName = "ReviewPilot"

	// ProjectURL points at the project repository.
	ProjectURL = "https://github.com/reviewpilot/reviewpilot"
)

// Build metadata, overridden at release time via
// -ldflags "-X github.com/reviewpilot/reviewpilot/consts.Version=...".
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// VersionString returns the one-line version banner for CLI output.
func VersionString() string {
	return fmt.Sprintf("%s %s (commit %s, built %s)", ProjectName, Version, GitCommit, BuildTime)
}

var (
	startedAt   time.Time
	startedOnce sync.Once
)

// SetStartedAt records the process start time. Later calls are ignored so
// the health endpoint reports uptime from the first start.
func SetStartedAt(t time.Time) {
	startedOnce.Do(func() { startedAt = t })
}

// StartedAt returns the recorded process start time, zero if never set.
func StartedAt() time.Time {
	return startedAt
}

// Uptime returns the time elapsed since the process started.
func Uptime() time.Duration {
	if startedAt.IsZero() {
		return 0
	}
	return time.Since(startedAt)
}
