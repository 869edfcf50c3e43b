package output

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/reviewpilot/reviewpilot/internal/agent/base"
	"github.com/reviewpilot/reviewpilot/internal/git/provider"
	"github.com/reviewpilot/reviewpilot/pkg/logger"
)

// CommentPublisher posts review results as comments on git platforms
type CommentPublisher struct {
	opts *MarkdownOptions
}

// NewCommentPublisher creates a CommentPublisher with comment defaults
func NewCommentPublisher() *CommentPublisher {
	return &CommentPublisher{
		opts: CommentMarkdownOptions(),
	}
}

// NewCommentPublisherWithOptions creates a CommentPublisher with custom
// markdown options
func NewCommentPublisherWithOptions(opts *MarkdownOptions) *CommentPublisher {
	if opts == nil {
		opts = CommentMarkdownOptions()
	}
	return &CommentPublisher{opts: opts}
}

// Publish posts the review result as a comment on the PR/MR and returns
// the provider-assigned comment id. A zero PR number skips posting.
func (p *CommentPublisher) Publish(ctx context.Context, prov provider.Provider, projectKey, repoName string, prNumber int, result *base.ReviewResult) (int64, error) {
	if prNumber == 0 {
		logger.Warn("Comment publisher: no PR number provided, skipping comment")
		return 0, nil
	}

	if prov == nil {
		return 0, fmt.Errorf("comment publisher: provider not configured")
	}

	body := ConvertToMarkdown(result, p.opts)

	commentID, err := prov.PostComment(ctx, projectKey, repoName, prNumber, body)
	if err != nil {
		return 0, fmt.Errorf("failed to post review comment: %w", err)
	}

	logger.Info("Posted review comment",
		zap.String("provider", prov.Name()),
		zap.String("repo", fmt.Sprintf("%s/%s", projectKey, repoName)),
		zap.Int("pr", prNumber),
		zap.Int64("comment_id", commentID),
		zap.Int("findings", len(result.Findings)),
	)

	return commentID, nil
}
