package server

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "github.com/reviewpilot/reviewpilot/internal/agent/agents"
	"github.com/reviewpilot/reviewpilot/internal/config"
	"github.com/reviewpilot/reviewpilot/internal/engine"
	"github.com/reviewpilot/reviewpilot/internal/git/provider"
	"github.com/reviewpilot/reviewpilot/internal/orchestrator"
	"github.com/reviewpilot/reviewpilot/internal/store"
	"github.com/reviewpilot/reviewpilot/internal/tracker"
	"github.com/reviewpilot/reviewpilot/pkg/logger"
)

func init() {
	logger.Init(logger.Config{Level: "error", Format: "text"})
}

// testComponents builds the full component set the server wires together,
// using the mock agent and an in-memory store.
type testComponents struct {
	store     store.Store
	engine    *engine.Engine
	orch      *orchestrator.Orchestrator
	providers *provider.Manager
	tracker   *tracker.Tracker
}

func newTestComponents(t *testing.T, cfg *config.Config) *testComponents {
	t.Helper()

	testStore, cleanup := store.SetupTestDB(t)
	t.Cleanup(cleanup)

	providers := provider.NewManager(nil)
	trk := tracker.New(testStore)

	testEngine, err := engine.NewEngine(context.Background(), cfg, testStore, providers)
	require.NoError(t, err)
	t.Cleanup(testEngine.Stop)

	orch := orchestrator.New(testStore, providers, trk, testEngine, "@reviewpilot")

	return &testComponents{
		store:     testStore,
		engine:    testEngine,
		orch:      orch,
		providers: providers,
		tracker:   trk,
	}
}

func testServerConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{Host: "localhost", Port: 8080},
		Review: config.ReviewConfig{
			Agent:      "mock",
			MaxRetries: 3,
			RetryDelay: 1,
			LoopDelay:  1,
		},
		Agents: map[string]config.AgentDetail{"mock": {}},
	}
}

// newTestServer is the shorthand for tests that only need the server,
// not its individual components.
func newTestServer(t *testing.T, cfg *config.Config) *Server {
	t.Helper()
	c := newTestComponents(t, cfg)
	return New(cfg, c.engine, c.orch, c.providers, c.tracker, c.store)
}

func TestServer_New(t *testing.T) {
	cfg := testServerConfig()
	c := newTestComponents(t, cfg)

	srv := New(cfg, c.engine, c.orch, c.providers, c.tracker, c.store)
	require.NotNil(t, srv)
	assert.Equal(t, cfg, srv.cfg)
	assert.Equal(t, c.engine, srv.engine)
	assert.Equal(t, c.store, srv.store)
	assert.NotNil(t, srv.router)
}

func TestServer_NewWithConfigPath(t *testing.T) {
	cfg := testServerConfig()
	cfg.Server.Debug = true
	c := newTestComponents(t, cfg)

	srv := NewWithConfigPath(cfg, c.engine, c.orch, c.providers, c.tracker, "/custom/path/config.yaml", c.store)
	require.NotNil(t, srv)
	assert.Equal(t, "/custom/path/config.yaml", srv.configPath)
	assert.Equal(t, gin.DebugMode, gin.Mode())
}

func TestServer_SetupRoutes(t *testing.T) {
	cfg := testServerConfig()
	cfg.Admin = &config.AdminConfig{Enabled: false}

	srv := newTestServer(t, cfg)
	srv.SetupRoutes()

	// The health route is public and must be reachable through the router
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, httptest.NewRequest("GET", "/health", nil))
	assert.NotEqual(t, 404, w.Code)
}

func TestServer_StartStop(t *testing.T) {
	cfg := testServerConfig()
	cfg.Server.Port = 0 // pick a free port

	srv := newTestServer(t, cfg)
	srv.SetupRoutes()

	require.NoError(t, srv.Start())
	assert.NotNil(t, srv.httpServer)
	require.NoError(t, srv.Stop())
}

func TestServer_StopBeforeStart(t *testing.T) {
	cfg := testServerConfig()
	cfg.Server.Port = 0

	srv := newTestServer(t, cfg)
	srv.SetupRoutes()

	// Stop on a never-started server is a no-op, not an error
	require.NoError(t, srv.Stop())

	require.NoError(t, srv.Start())
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, srv.Stop())
}

func TestServer_StopReturnsPromptly(t *testing.T) {
	cfg := testServerConfig()
	cfg.Server.Port = 0

	srv := newTestServer(t, cfg)
	srv.SetupRoutes()
	require.NoError(t, srv.Start())

	done := make(chan error, 1)
	go func() { done <- srv.Stop() }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Stop() did not return within 2s")
	}
}

func TestServer_Router(t *testing.T) {
	srv := newTestServer(t, testServerConfig())

	router := srv.Router()
	assert.NotNil(t, router)
	assert.Equal(t, srv.router, router)
}

func TestServer_Address(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.ServerConfig
		want string
	}{
		{"default port", config.ServerConfig{Host: "localhost", Port: 8080}, "localhost:8080"},
		{"custom host and port", config.ServerConfig{Host: "0.0.0.0", Port: 3000}, "0.0.0.0:3000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.cfg.Address())
		})
	}
}

func TestServer_DebugMode(t *testing.T) {
	tests := []struct {
		name  string
		debug bool
		want  string
	}{
		{"debug mode enabled", true, gin.DebugMode},
		{"debug mode disabled", false, gin.ReleaseMode},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testServerConfig()
			cfg.Server.Debug = tt.debug

			_ = newTestServer(t, cfg)
			assert.Equal(t, tt.want, gin.Mode())
		})
	}
}

func TestServer_HTTPTimeouts(t *testing.T) {
	cfg := testServerConfig()
	cfg.Server.Port = 0

	srv := newTestServer(t, cfg)
	srv.SetupRoutes()

	require.NoError(t, srv.Start())
	defer srv.Stop()

	assert.Equal(t, defaultReadTimeout, srv.httpServer.ReadTimeout)
	assert.Equal(t, defaultWriteTimeout, srv.httpServer.WriteTimeout)
	assert.Equal(t, defaultIdleTimeout, srv.httpServer.IdleTimeout)
}

func TestServer_RouterConfiguration(t *testing.T) {
	srv := newTestServer(t, testServerConfig())

	// A 301 on a trailing slash would swallow POST bodies, so both
	// redirect knobs stay off
	assert.False(t, srv.router.RedirectTrailingSlash)
	assert.False(t, srv.router.RedirectFixedPath)
}
