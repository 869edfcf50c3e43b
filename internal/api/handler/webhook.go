// Package handler implements the HTTP endpoints under /api/v1.
package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/reviewpilot/reviewpilot/internal/git/provider"
	"github.com/reviewpilot/reviewpilot/internal/model"
	pkgerrors "github.com/reviewpilot/reviewpilot/pkg/errors"
	"github.com/reviewpilot/reviewpilot/pkg/logger"
	"github.com/reviewpilot/reviewpilot/pkg/telemetry"
)

// ReviewTrigger starts reviews from parsed webhook events or manual
// requests. Implemented by the orchestrator.
type ReviewTrigger interface {
	HandleWebhookEvent(ctx context.Context, event *provider.WebhookEvent) (*model.Review, error)
	ReviewFromURL(ctx context.Context, prURL, triggeredBy string) (*model.Review, error)
}

// WebhookHandler handles webhook-related HTTP requests
type WebhookHandler struct {
	providers *provider.Manager
	trigger   ReviewTrigger
}

// NewWebhookHandler creates a new webhook handler
func NewWebhookHandler(providers *provider.Manager, trigger ReviewTrigger) *WebhookHandler {
	return &WebhookHandler{providers: providers, trigger: trigger}
}

// HandleWebhook handles POST /api/v1/webhooks/:provider
func (h *WebhookHandler) HandleWebhook(c *gin.Context) {
	providerName := c.Param("provider")

	prov, ok := h.providers.GetWithOK(providerName)
	if !ok {
		logger.Warn("Unknown webhook provider", zap.String("provider", providerName))
		respondError(c, http.StatusNotFound, pkgerrors.ErrCodeProviderNotFound, "Unknown provider: "+providerName)
		return
	}

	event, err := prov.ParseWebhook(c.Request, h.webhookSecret(providerName))
	if err != nil {
		// Providers deliver many event types the pipeline never acts
		// on; acknowledge them so the hook is not marked failing.
		if errors.Is(err, provider.ErrUnsupportedEvent) {
			c.JSON(http.StatusOK, gin.H{"message": "Event received but not processed"})
			return
		}
		logger.Warn("Failed to parse webhook",
			zap.String("provider", providerName),
			zap.Error(err),
		)
		respondError(c, http.StatusBadRequest, pkgerrors.ErrCodeWebhookInvalid, "Failed to parse webhook: "+err.Error())
		return
	}

	telemetry.GetMetrics().RecordWebhookEvent(c.Request.Context(), providerName, string(event.Type))

	repo := event.ProjectKey + "/" + event.RepoName
	logger.Info("Webhook received",
		zap.String("provider", providerName),
		zap.String("type", string(event.Type)),
		zap.String("repo", repo),
		zap.String("action", event.Action),
		zap.String("sender", event.Sender),
		zap.Int("pr_number", event.PRNumber),
	)

	review, err := h.trigger.HandleWebhookEvent(c.Request.Context(), event)
	if err != nil {
		logger.Error("Failed to process webhook event",
			zap.String("provider", providerName),
			zap.String("repo", repo),
			zap.Int("pr_number", event.PRNumber),
			zap.Error(err),
		)
		respondError(c, http.StatusInternalServerError, pkgerrors.ErrCodeReviewFailed, "Failed to process event")
		return
	}

	if review == nil {
		c.JSON(http.StatusOK, gin.H{"message": "Event received, no review triggered"})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"message":   "Review triggered",
		"review_id": review.ID,
		"pr_number": review.PRNumber,
		"kind":      review.Kind,
	})
}

// webhookSecret returns the configured secret for a provider, or "" when
// none is set. The secret comes from provider configuration only; a
// query parameter would leak secrets into access logs.
func (h *WebhookHandler) webhookSecret(providerName string) string {
	if cfg, ok := h.providers.Config(providerName); ok && cfg.WebhookSecret != "" {
		return cfg.WebhookSecret
	}
	logger.Warn("Webhook secret not configured, signature validation skipped",
		zap.String("provider", providerName),
	)
	return ""
}
