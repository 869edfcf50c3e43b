// Package agents links every review agent implementation into the
// binary. Each blank import runs the agent package's init(), which
// adds a factory to base.Registry; main pulls in this one package and
// picks up new agents without further wiring.
package agents

import (
	_ "github.com/reviewpilot/reviewpilot/internal/agent/cursor"
	_ "github.com/reviewpilot/reviewpilot/internal/agent/gemini"
	_ "github.com/reviewpilot/reviewpilot/internal/agent/mock"
	_ "github.com/reviewpilot/reviewpilot/internal/agent/qoder"
)
