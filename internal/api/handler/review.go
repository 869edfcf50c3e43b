package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/reviewpilot/reviewpilot/internal/store"
	"github.com/reviewpilot/reviewpilot/pkg/errors"
	"github.com/reviewpilot/reviewpilot/pkg/logger"
)

// Pagination configuration
const (
	defaultPage     = 1
	defaultPageSize = 20
	minPageSize     = 1 // Allow small page sizes for dashboard widgets
	maxPageSize     = 100
)

// ReviewHandler handles review-related HTTP requests
type ReviewHandler struct {
	store   store.Store
	trigger ReviewTrigger
}

// NewReviewHandler creates a new review handler
func NewReviewHandler(s store.Store, trigger ReviewTrigger) *ReviewHandler {
	return &ReviewHandler{store: s, trigger: trigger}
}

// dbFailure logs a storage error and answers 500 without leaking the
// underlying error to the client
func dbFailure(c *gin.Context, err error) {
	logger.Error("Database error", zap.Error(err))
	respondError(c, http.StatusInternalServerError, errors.ErrCodeDBQuery, "Database error")
}

// CreateReviewRequest represents the request body for manually triggering a review
type CreateReviewRequest struct {
	PRURL string `json:"pr_url" binding:"required"` // full pull request URL
}

// CreateReview handles POST /api/v1/reviews
//
// Manual triggers skip the mention gate but still go through the same
// record creation and queueing path as webhook triggers.
func (h *ReviewHandler) CreateReview(c *gin.Context) {
	var req CreateReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, errors.ErrCodeValidation, "Invalid request body: "+err.Error())
		return
	}

	triggeredBy := "api"
	if username, ok := c.Get("username"); ok {
		if name, ok := username.(string); ok && name != "" {
			triggeredBy = name
		}
	}

	review, err := h.trigger.ReviewFromURL(c.Request.Context(), req.PRURL, triggeredBy)
	if err != nil {
		logger.Warn("Manual review trigger failed",
			zap.String("pr_url", req.PRURL),
			zap.String("triggered_by", triggeredBy),
			zap.Error(err),
		)

		if appErr, ok := errors.AsAppError(err); ok {
			body := gin.H{"code": appErr.Code, "message": appErr.Message}
			if appErr.Details != nil {
				body["details"] = appErr.Details
			}
			c.JSON(appErr.HTTPStatus(), body)
			return
		}
		respondError(c, http.StatusInternalServerError, errors.ErrCodeReviewFailed, "Failed to start review")
		return
	}

	// A nil review with a nil error means the PR had nothing to review.
	if review == nil {
		c.JSON(http.StatusOK, gin.H{
			"message": "Pull request has an empty diff, nothing to review",
		})
		return
	}

	logger.Info("Review created via API",
		zap.String("review_id", review.ID),
		zap.String("pr_url", req.PRURL),
		zap.String("triggered_by", triggeredBy),
	)

	c.JSON(http.StatusAccepted, gin.H{
		"id":         review.ID,
		"status":     review.Status,
		"kind":       review.Kind,
		"pr_number":  review.PRNumber,
		"pr_url":     review.PRURL,
		"created_at": review.CreatedAt,
	})
}

// GetReview handles GET /api/v1/reviews/:id
func (h *ReviewHandler) GetReview(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		respondError(c, http.StatusBadRequest, errors.ErrCodeValidation, "Invalid review ID")
		return
	}

	review, err := h.store.Review().GetByIDWithFindings(id)
	switch {
	case err == gorm.ErrRecordNotFound:
		respondError(c, http.StatusNotFound, errors.ErrCodeReviewNotFound, "Review not found")
		return
	case err != nil:
		dbFailure(c, err)
		return
	}

	resp := gin.H{"review": review}
	if review.SubmissionID != "" {
		submission, err := h.store.Submission().GetByID(review.SubmissionID)
		if err != nil && err != gorm.ErrRecordNotFound {
			logger.Warn("Failed to load submission for review",
				zap.String("review_id", id),
				zap.String("submission_id", review.SubmissionID),
				zap.Error(err),
			)
		}
		if submission != nil {
			resp["submission"] = submission
		}
	}

	c.JSON(http.StatusOK, resp)
}

// GetReviewFindings handles GET /api/v1/reviews/:id/findings
func (h *ReviewHandler) GetReviewFindings(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		respondError(c, http.StatusBadRequest, errors.ErrCodeValidation, "Invalid review ID")
		return
	}

	// The review must exist so a wrong id is distinguishable from a
	// review with zero findings
	_, err := h.store.Review().GetByID(id)
	switch {
	case err == gorm.ErrRecordNotFound:
		respondError(c, http.StatusNotFound, errors.ErrCodeReviewNotFound, "Review not found")
		return
	case err != nil:
		dbFailure(c, err)
		return
	}

	findings, err := h.store.Finding().ListByReviewID(id)
	if err != nil {
		dbFailure(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":  findings,
		"total": len(findings),
	})
}

// ListReviews handles GET /api/v1/reviews
func (h *ReviewHandler) ListReviews(c *gin.Context) {
	page, pageSize := listParams(c)
	status := c.Query("status")

	offset := (page - 1) * pageSize
	reviews, total, err := h.store.Review().List(status, pageSize, offset)
	if err != nil {
		dbFailure(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":      reviews,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// listParams reads page/page_size query parameters, clamping anything
// out of range back to the defaults
func listParams(c *gin.Context) (page, pageSize int) {
	page, _ = strconv.Atoi(c.DefaultQuery("page", strconv.Itoa(defaultPage)))
	pageSize, _ = strconv.Atoi(c.DefaultQuery("page_size", strconv.Itoa(defaultPageSize)))

	if page < 1 {
		page = defaultPage
	}
	if pageSize < minPageSize || pageSize > maxPageSize {
		pageSize = defaultPageSize
	}
	return page, pageSize
}
