package handler

import (
	"math"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/reviewpilot/reviewpilot/internal/engine"
	"github.com/reviewpilot/reviewpilot/internal/model"
	"github.com/reviewpilot/reviewpilot/internal/store"
	"github.com/reviewpilot/reviewpilot/pkg/errors"
	"github.com/reviewpilot/reviewpilot/pkg/logger"
)

// QueueReporter exposes the review queue snapshot. Implemented by the
// engine.
type QueueReporter interface {
	QueueStatus() engine.QueueStatus
}

// StatsHandler handles statistics-related HTTP requests
type StatsHandler struct {
	store store.Store
	queue QueueReporter
}

// NewStatsHandler creates a new stats handler
func NewStatsHandler(s store.Store, queue QueueReporter) *StatsHandler {
	return &StatsHandler{store: s, queue: queue}
}

// GetStats handles GET /api/v1/stats
//
// Returns a dashboard summary: review counts by status, recent review
// activity, finding counts by severity, tracked PR count and the
// current queue depth. Severity and duration figures cover the last
// 30 days.
func (h *StatsHandler) GetStats(c *gin.Context) {
	now := time.Now()
	dayAgo := now.Add(-24 * time.Hour)
	monthAgo := now.AddDate(0, -1, 0)

	totalReviews, err := h.store.Review().CountAll()
	if err != nil {
		h.dbError(c, err)
		return
	}

	statuses := []model.ReviewStatus{
		model.ReviewStatusPending,
		model.ReviewStatusInProgress,
		model.ReviewStatusReviewed,
		model.ReviewStatusFailed,
	}
	statusCounts := make(map[string]int64, len(statuses))
	for _, status := range statuses {
		count, err := h.store.Review().CountByStatus(status)
		if err != nil {
			h.dbError(c, err)
			return
		}
		statusCounts[string(status)] = count
	}

	recentReviews, err := h.store.Review().CountCreatedAfter(dayAgo)
	if err != nil {
		h.dbError(c, err)
		return
	}

	avgDuration, err := h.store.Review().GetAverageDurationAfter(monthAgo)
	if err != nil {
		h.dbError(c, err)
		return
	}

	totalFindings, err := h.store.Finding().CountAll()
	if err != nil {
		h.dbError(c, err)
		return
	}

	severityCounts, err := h.store.Finding().CountBySeverityAfter(monthAgo)
	if err != nil {
		h.dbError(c, err)
		return
	}

	trackedPRs, err := h.store.Track().CountAll()
	if err != nil {
		h.dbError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"reviews": gin.H{
			"total":           totalReviews,
			"by_status":       statusCounts,
			"last_24h":        recentReviews,
			"avg_duration_ms": math.Round(avgDuration*100) / 100,
		},
		"findings": gin.H{
			"total":       totalFindings,
			"by_severity": severityCounts,
		},
		"tracked_prs":  trackedPRs,
		"queue_length": h.queue.QueueStatus().QueueLength,
	})
}

func (h *StatsHandler) dbError(c *gin.Context, err error) {
	logger.Error("Failed to compute statistics", zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{
		"code":    errors.ErrCodeDBQuery,
		"message": "Failed to fetch statistics data",
	})
}
