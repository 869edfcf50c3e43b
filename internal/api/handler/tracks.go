package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/reviewpilot/reviewpilot/internal/store"
	"github.com/reviewpilot/reviewpilot/internal/tracker"
	"github.com/reviewpilot/reviewpilot/pkg/errors"
	"github.com/reviewpilot/reviewpilot/pkg/logger"
)

// TracksHandler handles processed-PR ledger HTTP requests
type TracksHandler struct {
	store   store.Store
	tracker *tracker.Tracker
}

// NewTracksHandler creates a new tracks handler
func NewTracksHandler(s store.Store, trk *tracker.Tracker) *TracksHandler {
	return &TracksHandler{store: s, tracker: trk}
}

// ListTracks handles GET /api/v1/tracks
func (h *TracksHandler) ListTracks(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", strconv.Itoa(defaultPage)))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", strconv.Itoa(defaultPageSize)))

	if page < 1 {
		page = defaultPage
	}
	if pageSize < minPageSize || pageSize > maxPageSize {
		pageSize = defaultPageSize
	}

	offset := (page - 1) * pageSize
	tracks, total, err := h.store.Track().List(pageSize, offset)
	if err != nil {
		logger.Error("Database error", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    errors.ErrCodeDBQuery,
			"message": "Database error",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":      tracks,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// GetTrackHistory handles GET /api/v1/tracks/history
//
// Query parameters identify the pull request: project, repo and pr.
// Responds 404 when the PR has never been processed.
func (h *TracksHandler) GetTrackHistory(c *gin.Context) {
	project := c.Query("project")
	repo := c.Query("repo")
	prNumber, err := strconv.Atoi(c.Query("pr"))

	if project == "" || repo == "" || err != nil || prNumber <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    errors.ErrCodeValidation,
			"message": "Query parameters project, repo and pr are required",
		})
		return
	}

	history, err := h.tracker.GetHistory(c.Request.Context(), project, repo, prNumber)
	if err != nil {
		logger.Error("Failed to read track history",
			zap.String("project", project),
			zap.String("repo", repo),
			zap.Int("pr_number", prNumber),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    errors.ErrCodeDBQuery,
			"message": "Database error",
		})
		return
	}

	if history == nil {
		c.JSON(http.StatusNotFound, gin.H{
			"code":    errors.ErrCodeNotFound,
			"message": "Pull request has not been processed",
		})
		return
	}

	c.JSON(http.StatusOK, history)
}
