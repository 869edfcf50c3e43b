// Package router wires the HTTP surface: global middleware, the public
// health and webhook endpoints, and the JWT-protected review API.
package router

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/reviewpilot/reviewpilot/consts"
	"github.com/reviewpilot/reviewpilot/internal/api/handler"
	"github.com/reviewpilot/reviewpilot/internal/api/middleware"
	"github.com/reviewpilot/reviewpilot/internal/config"
	"github.com/reviewpilot/reviewpilot/internal/database"
	"github.com/reviewpilot/reviewpilot/internal/engine"
	"github.com/reviewpilot/reviewpilot/internal/git/provider"
	"github.com/reviewpilot/reviewpilot/internal/orchestrator"
	"github.com/reviewpilot/reviewpilot/internal/store"
	"github.com/reviewpilot/reviewpilot/internal/tracker"
)

// Setup configures all API routes
func Setup(r *gin.Engine, e *engine.Engine, orch *orchestrator.Orchestrator, providers *provider.Manager, trk *tracker.Tracker, cfg *config.Config, s store.Store) {
	SetupWithConfigPath(r, e, orch, providers, trk, cfg, config.ConfigPath, s)
}

// SetupWithConfigPath configures all API routes with a custom config path
func SetupWithConfigPath(r *gin.Engine, e *engine.Engine, orch *orchestrator.Orchestrator, providers *provider.Manager, trk *tracker.Tracker, cfg *config.Config, configPath string, s store.Store) {
	useGlobalMiddleware(r, cfg)

	r.GET("/health", healthCheck)

	v1 := r.Group("/api/v1")

	// Webhooks stay public; the handler validates the provider's webhook
	// secret instead of a JWT
	webhookHandler := handler.NewWebhookHandler(providers, orch)
	v1.POST("/webhooks/:provider", webhookHandler.HandleWebhook)

	// Login and first-run password setup are public by necessity
	authHandler := handler.NewAuthHandlerWithConfigPath(cfg, configPath)
	auth := v1.Group("/auth")
	{
		auth.POST("/login", authHandler.Login)
		auth.GET("/setup/status", authHandler.GetSetupStatus)
		auth.POST("/setup", authHandler.SetupPassword)
	}

	// Everything below requires a valid JWT
	authed := middleware.JWTAuth(authHandler)

	v1.GET("/auth/me", authed, authHandler.Me)

	v1.GET("/queue/status", authed, func(c *gin.Context) {
		c.JSON(200, e.QueueStatus())
	})

	reviewHandler := handler.NewReviewHandler(s, orch)
	reviews := v1.Group("/reviews", authed)
	{
		reviews.POST("", reviewHandler.CreateReview)
		reviews.GET("", reviewHandler.ListReviews)
		reviews.GET("/:id", reviewHandler.GetReview)
		reviews.GET("/:id/findings", reviewHandler.GetReviewFindings)
	}

	tracksHandler := handler.NewTracksHandler(s, trk)
	tracks := v1.Group("/tracks", authed)
	{
		tracks.GET("", tracksHandler.ListTracks)
		tracks.GET("/history", tracksHandler.GetTrackHistory)
	}

	statsHandler := handler.NewStatsHandler(s, e)
	v1.GET("/stats", authed, statsHandler.GetStats)
}

// useGlobalMiddleware installs the middleware chain shared by every
// route. Recovery must stay outermost so panics in later middleware
// are still caught.
func useGlobalMiddleware(r *gin.Engine, cfg *config.Config) {
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger(&middleware.LoggerConfig{
		AccessLog: cfg.Logging.AccessLog,
	}))
	r.Use(middleware.CORS(cfg.Server.CORSOrigins))
	r.Use(middleware.RequestID())
	r.Use(middleware.ErrorHandler(cfg.Server.Debug))
	r.Use(otelgin.Middleware(consts.ServiceName))
}

// healthCheck reports service liveness plus database reachability. A
// degraded database turns the response into a 503 so load balancers
// stop routing here.
func healthCheck(c *gin.Context) {
	status, dbStatus, code := "ok", "ok", 200
	if err := database.HealthCheck(); err != nil {
		status, dbStatus, code = "degraded", "unreachable", 503
	}
	c.JSON(code, gin.H{
		"status":   status,
		"version":  consts.Version,
		"uptime":   consts.Uptime().String(),
		"database": dbStatus,
	})
}
