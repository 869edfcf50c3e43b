// Package engine provides the asynchronous review pipeline for ReviewPilot.
// This file defines the interfaces used for dependency injection between engine components.
package engine

import (
	"context"

	"github.com/reviewpilot/reviewpilot/internal/git/provider"
	"github.com/reviewpilot/reviewpilot/internal/model"
)

// SubmissionLoader provides read access to stored submissions.
// Satisfied by store.SubmissionStore.
type SubmissionLoader interface {
	// GetByID loads a submission. Missing rows are reported with
	// gorm.ErrRecordNotFound.
	GetByID(id string) (*model.Submission, error)

	// Exists reports whether a submission row exists for the given id.
	Exists(id string) (bool, error)
}

// Reviewer runs the review for a single submission. The queue invokes it
// once per processing attempt; a returned error makes the attempt eligible
// for retry.
type Reviewer interface {
	Review(ctx context.Context, submission *model.Submission) error
}

// SubmissionEnqueuer queues submissions for asynchronous review.
// Implemented by the Engine and used by the webhook and API layers.
type SubmissionEnqueuer interface {
	Enqueue(submissionID string) error
}

// ProviderResolver provides access to configured git providers.
// Used by components that need to interact with git hosting services.
type ProviderResolver interface {
	// Get returns a provider by name.
	// Returns nil if the provider is not configured.
	Get(name string) provider.Provider
}
