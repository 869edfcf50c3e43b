package provider

import (
	"sync"

	"go.uber.org/zap"

	"github.com/reviewpilot/reviewpilot/internal/config"
	"github.com/reviewpilot/reviewpilot/pkg/logger"
)

// Manager holds the providers instantiated from configuration and hands
// them out by name. It is safe for concurrent use.
type Manager struct {
	mu        sync.RWMutex
	providers map[string]Provider
	configs   map[string]config.ProviderConfig
}

// NewManager creates a manager from the configured provider list.
// Providers that fail to initialize are skipped with a warning so one
// bad entry does not keep the whole service down.
func NewManager(configs []config.ProviderConfig) *Manager {
	m := &Manager{
		providers: make(map[string]Provider),
		configs:   make(map[string]config.ProviderConfig),
	}

	for _, pc := range configs {
		p, err := Create(pc.Type, &ProviderOptions{
			Token:              pc.Token,
			BaseURL:            pc.URL,
			Username:           pc.Username,
			InsecureSkipVerify: pc.InsecureSkipVerify,
		})
		if err != nil {
			logger.Warn("Failed to create Git provider",
				zap.String("type", pc.Type),
				zap.Error(err),
			)
			continue
		}

		m.providers[pc.Type] = p
		m.configs[pc.Type] = pc
		logger.Info("Initialized Git provider",
			zap.String("type", pc.Type),
			zap.String("url", pc.URL),
		)
	}

	if len(m.providers) == 0 {
		logger.Warn("No Git providers configured")
	}

	return m
}

// Get returns a provider by name, or nil if it is not configured.
func (m *Manager) Get(name string) Provider {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.providers[name]
}

// GetWithOK returns a provider by name with an existence flag.
func (m *Manager) GetWithOK(name string) (Provider, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.providers[name]
	return p, ok
}

// Config returns the stored configuration of a provider. The webhook
// handler uses it to look up the shared secret for signature checks.
func (m *Manager) Config(name string) (config.ProviderConfig, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	pc, ok := m.configs[name]
	return pc, ok
}

// List returns the names of all configured providers.
func (m *Manager) List() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.providers))
	for name := range m.providers {
		names = append(names, name)
	}
	return names
}

// Count returns the number of configured providers.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.providers)
}

// MatchURL returns the provider whose domain matches the given
// repository or pull request URL, or nil when none matches. Manually
// submitted PR URLs are routed through this.
func (m *Manager) MatchURL(repoURL string) Provider {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.providers {
		if p.MatchesURL(repoURL) {
			return p
		}
	}
	return nil
}
