// Package reconcile scans configured repositories for open pull
// requests that were never reviewed and feeds them through the normal
// review path. It covers PRs opened while the server was down or whose
// webhook delivery was lost.
package reconcile

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/reviewpilot/reviewpilot/internal/config"
	"github.com/reviewpilot/reviewpilot/internal/git/provider"
	"github.com/reviewpilot/reviewpilot/internal/model"
	"github.com/reviewpilot/reviewpilot/pkg/logger"
)

// Reviewer starts a review for one open pull request. A nil review
// with a nil error means the PR was already tracked and skipped.
type Reviewer interface {
	ReviewOpenPR(ctx context.Context, providerName, projectKey, repoName string, prNumber int) (*model.Review, error)
}

// ProviderResolver resolves a configured Git provider by name.
type ProviderResolver interface {
	Get(name string) provider.Provider
}

// Service runs reconciliation scans on startup and on a cron schedule.
type Service struct {
	cfg       config.ReconcileConfig
	providers ProviderResolver
	reviewer  Reviewer

	cron    *cron.Cron
	entryID cron.EntryID
	cancel  context.CancelFunc
	mu      sync.Mutex // one scan at a time
}

// New creates a reconciliation service.
func New(cfg config.ReconcileConfig, providers ProviderResolver, reviewer Reviewer) *Service {
	return &Service{
		cfg:       cfg,
		providers: providers,
		reviewer:  reviewer,
		cron:      cron.New(),
	}
}

// Start schedules periodic scans and, when configured, kicks off the
// startup scan in the background. It is a no-op when reconciliation is
// disabled or no repositories are configured.
func (s *Service) Start(ctx context.Context) error {
	if !s.cfg.Enabled {
		logger.Info("Reconciliation disabled")
		return nil
	}
	if len(s.cfg.Repositories) == 0 {
		logger.Warn("Reconciliation enabled but no repositories configured")
		return nil
	}

	scanCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	if s.cfg.Schedule != "" {
		entryID, err := s.cron.AddFunc(s.cfg.Schedule, func() { s.Scan(scanCtx) })
		if err != nil {
			logger.Error("Failed to schedule reconciliation",
				zap.String("schedule", s.cfg.Schedule),
				zap.Error(err),
			)
			return err
		}
		s.entryID = entryID
		s.cron.Start()

		logger.Info("Reconciliation scheduled",
			zap.String("schedule", s.cfg.Schedule),
			zap.Int("repositories", len(s.cfg.Repositories)),
		)
	}

	if s.cfg.OnStartup {
		go s.Scan(scanCtx)
	}

	return nil
}

// Stop cancels in-flight scans, stops the scheduler and waits for a
// running scan to finish.
func (s *Service) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	ctx := s.cron.Stop()
	<-ctx.Done()

	s.mu.Lock()
	defer s.mu.Unlock()
	logger.Info("Reconciliation service stopped")
}

// Scan walks the configured repositories once. Repositories are
// isolated from each other: a provider failure on one is logged and
// the scan moves on to the next.
func (s *Service) Scan(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	var scanned, started, skipped, failures int

	for _, repo := range s.cfg.Repositories {
		select {
		case <-ctx.Done():
			logger.Info("Reconciliation scan aborted",
				zap.Int("reviews_started", started),
			)
			return
		default:
		}

		prov := s.providers.Get(repo.Provider)
		if prov == nil {
			logger.Warn("Skipping repository with unconfigured provider",
				zap.String("provider", repo.Provider),
				zap.String("repo", repo.Project+"/"+repo.Repo),
			)
			failures++
			continue
		}

		prs, err := prov.ListOpenPullRequests(ctx, repo.Project, repo.Repo)
		if err != nil {
			logger.Error("Failed to list open pull requests",
				zap.String("provider", repo.Provider),
				zap.String("repo", repo.Project+"/"+repo.Repo),
				zap.Error(err),
			)
			failures++
			continue
		}

		for _, pr := range prs {
			scanned++
			review, err := s.reviewer.ReviewOpenPR(ctx, repo.Provider, repo.Project, repo.Repo, pr.Number)
			if err != nil {
				logger.Error("Reconciliation review failed",
					zap.String("repo", repo.Project+"/"+repo.Repo),
					zap.Int("pr_number", pr.Number),
					zap.Error(err),
				)
				failures++
				continue
			}
			if review == nil {
				skipped++
				continue
			}
			started++
		}
	}

	logger.Info("Reconciliation scan completed",
		zap.Int("open_prs", scanned),
		zap.Int("reviews_started", started),
		zap.Int("skipped", skipped),
		zap.Int("failures", failures),
		zap.Duration("duration", time.Since(start)),
	)
}
