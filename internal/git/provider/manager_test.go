package provider

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/reviewpilot/reviewpilot/internal/config"
)

// routedProvider matches URLs by prefix, for MatchURL routing tests.
type routedProvider struct {
	mockProvider
	prefix string
}

func (p *routedProvider) MatchesURL(repoURL string) bool {
	return strings.HasPrefix(repoURL, p.prefix)
}

// withTestRegistry swaps in a clean registry for the duration of a test.
func withTestRegistry(t *testing.T) {
	t.Helper()
	original := Registry
	Registry = make(map[string]ProviderFactory)
	t.Cleanup(func() {
		Registry = original
	})
}

func TestNewManager(t *testing.T) {
	withTestRegistry(t)

	Register("ghx", func(opts *ProviderOptions) (Provider, error) {
		return &routedProvider{mockProvider: mockProvider{name: "ghx"}, prefix: "https://ghx.example.com"}, nil
	})
	Register("glx", func(opts *ProviderOptions) (Provider, error) {
		return &routedProvider{mockProvider: mockProvider{name: "glx"}, prefix: "https://glx.example.com"}, nil
	})

	m := NewManager([]config.ProviderConfig{
		{Type: "ghx", URL: "https://ghx.example.com", Token: "t1", WebhookSecret: "s1"},
		{Type: "glx", URL: "https://glx.example.com", Token: "t2"},
		{Type: "unregistered", Token: "t3"},
	})

	assert.Equal(t, 2, m.Count())
	assert.NotNil(t, m.Get("ghx"))
	assert.Nil(t, m.Get("unregistered"))

	p, ok := m.GetWithOK("glx")
	assert.True(t, ok)
	assert.Equal(t, "glx", p.Name())

	_, ok = m.GetWithOK("unregistered")
	assert.False(t, ok)

	pc, ok := m.Config("ghx")
	assert.True(t, ok)
	assert.Equal(t, "s1", pc.WebhookSecret)

	assert.ElementsMatch(t, []string{"ghx", "glx"}, m.List())
}

func TestNewManager_FactoryError(t *testing.T) {
	withTestRegistry(t)

	Register("broken", func(opts *ProviderOptions) (Provider, error) {
		return nil, errors.New("bad token")
	})

	m := NewManager([]config.ProviderConfig{{Type: "broken"}})

	assert.Equal(t, 0, m.Count())
	assert.Nil(t, m.Get("broken"))
}

func TestManager_MatchURL(t *testing.T) {
	withTestRegistry(t)

	Register("ghx", func(opts *ProviderOptions) (Provider, error) {
		return &routedProvider{mockProvider: mockProvider{name: "ghx"}, prefix: "https://ghx.example.com"}, nil
	})
	Register("glx", func(opts *ProviderOptions) (Provider, error) {
		return &routedProvider{mockProvider: mockProvider{name: "glx"}, prefix: "https://glx.example.com"}, nil
	})

	m := NewManager([]config.ProviderConfig{
		{Type: "ghx"},
		{Type: "glx"},
	})

	p := m.MatchURL("https://glx.example.com/team/widget/pull/7")
	if assert.NotNil(t, p) {
		assert.Equal(t, "glx", p.Name())
	}

	assert.Nil(t, m.MatchURL("https://unknown.example.com/x/y"))
}
