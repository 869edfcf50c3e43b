// Package providers links every Git provider implementation into the
// binary. Each blank import runs the provider package's init(), which
// adds a factory to provider.Registry; main pulls in this one package
// and picks up new providers without further wiring.
package providers

import (
	_ "github.com/reviewpilot/reviewpilot/internal/git/backlog"
	_ "github.com/reviewpilot/reviewpilot/internal/git/gitea"
	_ "github.com/reviewpilot/reviewpilot/internal/git/github"
	_ "github.com/reviewpilot/reviewpilot/internal/git/gitlab"
)
