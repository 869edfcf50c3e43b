// Package engine provides the asynchronous review pipeline for ReviewPilot.
// This file implements the FIFO review queue with retry handling.
package engine

import (
	"container/list"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/reviewpilot/reviewpilot/internal/model"
	"github.com/reviewpilot/reviewpilot/pkg/logger"
	"github.com/reviewpilot/reviewpilot/pkg/telemetry"
)

const (
	// defaultMaxRetries is the number of requeue attempts before a
	// submission is abandoned, so a submission is tried at most
	// defaultMaxRetries+1 times.
	defaultMaxRetries = 3

	// defaultRetryDelay is the pause after a failed attempt.
	defaultRetryDelay = 5 * time.Second

	// defaultLoopDelay is the pause between successful iterations.
	defaultLoopDelay = 1 * time.Second

	// readySignalBuffer is the capacity of the wake-up channel. The
	// buffer absorbs enqueue bursts; a full buffer means a wake-up is
	// already pending for the processing loop.
	readySignalBuffer = 100
)

// QueueItem is one queued review request.
type QueueItem struct {
	SubmissionID string
	RetryCount   int
	AddedAt      time.Time
}

// QueueOptions configures the review queue. Zero values fall back to the
// defaults (3 retries, 5s retry delay, 1s loop delay).
type QueueOptions struct {
	MaxRetries int
	RetryDelay time.Duration
	LoopDelay  time.Duration
}

// QueueItemStatus describes one queued submission in a status snapshot.
type QueueItemStatus struct {
	ID      string `json:"id"`
	Retries int    `json:"retries"`
}

// QueueStatus is a point-in-time snapshot of the queue state.
type QueueStatus struct {
	QueueLength     int               `json:"queueLength"`
	IsProcessing    bool              `json:"isProcessing"`
	ProcessingItems []string          `json:"processingItems"`
	QueueItems      []QueueItemStatus `json:"queueItems"`
}

// ReviewQueue processes review submissions strictly one at a time, in
// FIFO order. The processing loop halts when the queue drains and is
// woken by the next enqueue signal. A failed attempt moves the item to
// the tail with an incremented retry count until the retry limit is
// exhausted, so a stuck submission cannot starve the rest of the queue.
//
// The queue is in-memory only. Work lost on restart is recovered by the
// reconciliation scan, which re-discovers unreviewed open pull requests.
type ReviewQueue struct {
	mu         sync.RWMutex
	items      *list.List // *QueueItem in FIFO order
	itemsByID  map[string]*list.Element
	processing map[string]struct{}
	started    bool

	submissions SubmissionLoader
	reviewer    Reviewer

	maxRetries int
	retryDelay time.Duration
	loopDelay  time.Duration

	taskReady chan struct{}
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// NewReviewQueue creates a review queue. The queue does not process
// anything until Start is called.
func NewReviewQueue(ctx context.Context, submissions SubmissionLoader, reviewer Reviewer, opts QueueOptions) *ReviewQueue {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = defaultMaxRetries
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = defaultRetryDelay
	}
	if opts.LoopDelay <= 0 {
		opts.LoopDelay = defaultLoopDelay
	}

	queueCtx, cancel := context.WithCancel(ctx)

	return &ReviewQueue{
		items:       list.New(),
		itemsByID:   make(map[string]*list.Element),
		processing:  make(map[string]struct{}),
		submissions: submissions,
		reviewer:    reviewer,
		maxRetries:  opts.MaxRetries,
		retryDelay:  opts.RetryDelay,
		loopDelay:   opts.LoopDelay,
		taskReady:   make(chan struct{}, readySignalBuffer),
		ctx:         queueCtx,
		cancel:      cancel,
	}
}

// Enqueue appends a submission to the tail of the queue and wakes the
// processing loop. Submissions that are already queued or currently being
// processed are skipped, as are submission ids with no backing row.
// Only a failing existence lookup is reported to the caller.
func (q *ReviewQueue) Enqueue(submissionID string) error {
	if submissionID == "" {
		return fmt.Errorf("review queue: empty submission id")
	}

	q.mu.RLock()
	_, queued := q.itemsByID[submissionID]
	_, busy := q.processing[submissionID]
	q.mu.RUnlock()

	if busy {
		logger.Debug("Submission is currently being processed, skipping enqueue",
			zap.String("submission_id", submissionID))
		return nil
	}
	if queued {
		logger.Debug("Submission is already queued, skipping enqueue",
			zap.String("submission_id", submissionID))
		return nil
	}

	// The existence lookup runs outside the queue lock. The re-check
	// below guards the window where a concurrent enqueue for the same
	// submission lands first.
	exists, err := q.submissions.Exists(submissionID)
	if err != nil {
		return fmt.Errorf("failed to verify submission %s: %w", submissionID, err)
	}
	if !exists {
		logger.Warn("Submission does not exist, skipping enqueue",
			zap.String("submission_id", submissionID))
		return nil
	}

	q.mu.Lock()
	if _, dup := q.itemsByID[submissionID]; dup {
		q.mu.Unlock()
		return nil
	}
	if _, dup := q.processing[submissionID]; dup {
		q.mu.Unlock()
		return nil
	}
	item := &QueueItem{
		SubmissionID: submissionID,
		AddedAt:      time.Now(),
	}
	q.itemsByID[submissionID] = q.items.PushBack(item)
	length := q.items.Len()
	q.mu.Unlock()

	logger.Info("Submission enqueued for review",
		zap.String("submission_id", submissionID),
		zap.Int("queue_length", length),
	)
	telemetry.GetMetrics().RecordEnqueue(q.ctx)

	q.signalReady()
	return nil
}

// Start launches the processing loop. Subsequent calls are no-ops.
func (q *ReviewQueue) Start() {
	q.mu.Lock()
	if q.started {
		q.mu.Unlock()
		return
	}
	q.started = true
	q.mu.Unlock()

	q.wg.Add(1)
	go q.run()

	logger.Info("Review queue started",
		zap.Int("max_retries", q.maxRetries),
		zap.Duration("retry_delay", q.retryDelay),
		zap.Duration("loop_delay", q.loopDelay),
	)
}

// Stop terminates the processing loop and waits for an in-flight review
// attempt to return.
func (q *ReviewQueue) Stop() {
	q.cancel()
	q.wg.Wait()
	logger.Info("Review queue stopped")
}

// Len returns the number of queued items.
func (q *ReviewQueue) Len() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.items.Len()
}

// Status returns a snapshot of queue contents and in-flight work. The
// head item stays queued while its review runs, so it appears in both
// lists until the attempt completes.
func (q *ReviewQueue) Status() QueueStatus {
	q.mu.RLock()
	defer q.mu.RUnlock()

	status := QueueStatus{
		QueueLength:     q.items.Len(),
		IsProcessing:    len(q.processing) > 0,
		ProcessingItems: make([]string, 0, len(q.processing)),
		QueueItems:      make([]QueueItemStatus, 0, q.items.Len()),
	}
	for id := range q.processing {
		status.ProcessingItems = append(status.ProcessingItems, id)
	}
	for elem := q.items.Front(); elem != nil; elem = elem.Next() {
		item := elem.Value.(*QueueItem)
		status.QueueItems = append(status.QueueItems, QueueItemStatus{
			ID:      item.SubmissionID,
			Retries: item.RetryCount,
		})
	}
	return status
}

// run is the queue processing loop. It blocks on the ready signal while
// the queue is empty and processes one item per iteration otherwise.
// Every iteration ends with a delay, retryDelay after a failed attempt
// and loopDelay otherwise, so a flapping submission cannot hammer the
// agent or the provider API.
func (q *ReviewQueue) run() {
	defer q.wg.Done()

	for {
		if q.Len() == 0 {
			select {
			case <-q.ctx.Done():
				return
			case <-q.taskReady:
			}
			// The signal may be stale, re-check before processing.
			continue
		}

		failed := q.processNext()

		delay := q.loopDelay
		if failed {
			delay = q.retryDelay
		}
		select {
		case <-q.ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}

// processNext handles the head item. The item keeps its queue position
// while the review runs; success removes it, failure moves it to the
// tail or abandons it once the retry limit is reached. Returns true when
// the attempt failed so the loop applies the retry delay.
func (q *ReviewQueue) processNext() bool {
	q.mu.Lock()
	elem := q.items.Front()
	if elem == nil {
		q.mu.Unlock()
		return false
	}
	item := elem.Value.(*QueueItem)
	q.processing[item.SubmissionID] = struct{}{}
	queueLen := q.items.Len()
	q.mu.Unlock()

	defer func() {
		q.mu.Lock()
		delete(q.processing, item.SubmissionID)
		q.mu.Unlock()
	}()

	ctx, span := telemetry.StartSpan(q.ctx, "queue.process",
		telemetry.WithSubmissionAttributes(item.SubmissionID, item.RetryCount))
	defer span.End()
	telemetry.SetSpanAttributes(span, telemetry.AttrQueueLength.Int(queueLen))

	submission, err := q.submissions.GetByID(item.SubmissionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			logger.Warn("Queued submission no longer exists",
				zap.String("submission_id", item.SubmissionID),
				zap.Int("retry_count", item.RetryCount),
			)
		} else {
			logger.Error("Failed to load queued submission",
				zap.String("submission_id", item.SubmissionID),
				zap.Error(err),
			)
		}
		telemetry.SetSpanError(span, err)
		return q.requeueOrAbandon(ctx, elem, item, err, "load_failed")
	}

	if submission.Status == model.SubmissionStatusReviewed {
		logger.Info("Submission already reviewed, dropping from queue",
			zap.String("submission_id", item.SubmissionID))
		q.remove(elem, item)
		telemetry.GetMetrics().RecordDrop(ctx, "already_reviewed")
		telemetry.SetSpanOK(span)
		return false
	}

	if err := q.reviewer.Review(ctx, submission); err != nil {
		logger.Error("Review attempt failed",
			zap.String("submission_id", item.SubmissionID),
			zap.Int("retry_count", item.RetryCount),
			zap.Error(err),
		)
		telemetry.SetSpanError(span, err)
		return q.requeueOrAbandon(ctx, elem, item, err, "review_failed")
	}

	q.remove(elem, item)
	logger.Info("Submission review completed",
		zap.String("submission_id", item.SubmissionID))
	telemetry.GetMetrics().RecordDrop(ctx, "completed")
	telemetry.SetSpanOK(span)
	return false
}

// requeueOrAbandon moves a failed item to the tail for another attempt,
// or drops it once the retry limit is exhausted. Later arrivals run
// before the retry, which keeps one broken submission from blocking the
// queue. Always reports a failed iteration.
func (q *ReviewQueue) requeueOrAbandon(ctx context.Context, elem *list.Element, item *QueueItem, cause error, reason string) bool {
	q.mu.Lock()

	if item.RetryCount >= q.maxRetries {
		q.items.Remove(elem)
		delete(q.itemsByID, item.SubmissionID)
		q.mu.Unlock()

		logger.Error("Submission abandoned after exhausting retries",
			zap.String("submission_id", item.SubmissionID),
			zap.Int("attempts", item.RetryCount+1),
			zap.Error(cause),
		)
		telemetry.GetMetrics().RecordDrop(ctx, "abandoned")
		return true
	}

	item.RetryCount++
	q.items.MoveToBack(elem)
	retryCount := item.RetryCount
	q.mu.Unlock()

	logger.Info("Submission requeued for retry",
		zap.String("submission_id", item.SubmissionID),
		zap.Int("retry_count", retryCount),
		zap.Int("max_retries", q.maxRetries),
	)
	telemetry.AddSpanEvent(telemetry.SpanFromContext(ctx), "queue.retry_scheduled",
		telemetry.AttrRetryCount.Int(retryCount))
	telemetry.GetMetrics().RecordRetry(ctx, reason)
	return true
}

// remove drops an item from the queue.
func (q *ReviewQueue) remove(elem *list.Element, item *QueueItem) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items.Remove(elem)
	delete(q.itemsByID, item.SubmissionID)
}

// signalReady wakes the processing loop without blocking.
func (q *ReviewQueue) signalReady() {
	select {
	case q.taskReady <- struct{}{}:
	default:
	}
}
