package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/reviewpilot/reviewpilot/internal/model"
)

// fastOptions keeps the loop delays short so tests run quickly.
func fastOptions() QueueOptions {
	return QueueOptions{
		MaxRetries: 3,
		RetryDelay: 5 * time.Millisecond,
		LoopDelay:  time.Millisecond,
	}
}

// waitFor polls cond until it returns true or the timeout elapses.
func waitFor(t *testing.T, timeout time.Duration, msg string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", msg)
}

// fakeSubmissions is an in-memory SubmissionLoader.
type fakeSubmissions struct {
	mu   sync.Mutex
	subs map[string]*model.Submission
	err  error // forced store error when set
}

func newFakeSubmissions(ids ...string) *fakeSubmissions {
	f := &fakeSubmissions{subs: make(map[string]*model.Submission)}
	for _, id := range ids {
		f.subs[id] = &model.Submission{ID: id, Status: model.SubmissionStatusSubmitted}
	}
	return f
}

func (f *fakeSubmissions) GetByID(id string) (*model.Submission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	sub, ok := f.subs[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *sub
	return &copied, nil
}

func (f *fakeSubmissions) Exists(id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return false, f.err
	}
	_, ok := f.subs[id]
	return ok, nil
}

func (f *fakeSubmissions) setStatus(id string, status model.SubmissionStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if sub, ok := f.subs[id]; ok {
		sub.Status = status
	}
}

func (f *fakeSubmissions) delete(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.subs, id)
}

// scriptedReviewer records review attempts in order and returns scripted
// outcomes per submission. Attempts beyond the scripted list succeed.
type scriptedReviewer struct {
	mu       sync.Mutex
	attempts []string
	outcomes map[string][]error
	inFlight int
	maxSeen  int
	block    chan struct{} // when set, Review waits on it
}

func newScriptedReviewer() *scriptedReviewer {
	return &scriptedReviewer{outcomes: make(map[string][]error)}
}

func (r *scriptedReviewer) script(id string, outcomes ...error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes[id] = append(r.outcomes[id], outcomes...)
}

func (r *scriptedReviewer) Review(ctx context.Context, submission *model.Submission) error {
	r.mu.Lock()
	r.attempts = append(r.attempts, submission.ID)
	r.inFlight++
	if r.inFlight > r.maxSeen {
		r.maxSeen = r.inFlight
	}
	var err error
	if queue := r.outcomes[submission.ID]; len(queue) > 0 {
		err = queue[0]
		r.outcomes[submission.ID] = queue[1:]
	}
	block := r.block
	r.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
		}
	}

	r.mu.Lock()
	r.inFlight--
	r.mu.Unlock()
	return err
}

func (r *scriptedReviewer) attemptLog() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.attempts...)
}

func (r *scriptedReviewer) attemptCount() int {
	return len(r.attemptLog())
}

func (r *scriptedReviewer) maxInFlight() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.maxSeen
}

// TestNewReviewQueue tests queue construction and option defaults
func TestNewReviewQueue(t *testing.T) {
	q := NewReviewQueue(context.Background(), newFakeSubmissions(), newScriptedReviewer(), QueueOptions{})
	defer q.Stop()

	if q.items == nil {
		t.Error("items list is nil")
	}
	if q.itemsByID == nil {
		t.Error("itemsByID map is nil")
	}
	if q.processing == nil {
		t.Error("processing set is nil")
	}
	if q.taskReady == nil {
		t.Error("taskReady channel is nil")
	}

	if q.maxRetries != 3 {
		t.Errorf("maxRetries = %d, want 3", q.maxRetries)
	}
	if q.retryDelay != 5*time.Second {
		t.Errorf("retryDelay = %v, want 5s", q.retryDelay)
	}
	if q.loopDelay != time.Second {
		t.Errorf("loopDelay = %v, want 1s", q.loopDelay)
	}
}

// TestReviewQueue_Enqueue tests enqueue acceptance and no-op cases
func TestReviewQueue_Enqueue(t *testing.T) {
	subs := newFakeSubmissions("sub-1", "sub-2")
	q := NewReviewQueue(context.Background(), subs, newScriptedReviewer(), fastOptions())
	defer q.Stop()

	t.Run("enqueue single submission", func(t *testing.T) {
		if err := q.Enqueue("sub-1"); err != nil {
			t.Fatalf("Enqueue() failed: %v", err)
		}
		if q.Len() != 1 {
			t.Errorf("Len() = %d, want 1", q.Len())
		}
	})

	t.Run("enqueue duplicate is a no-op", func(t *testing.T) {
		if err := q.Enqueue("sub-1"); err != nil {
			t.Fatalf("Enqueue() failed: %v", err)
		}
		if q.Len() != 1 {
			t.Errorf("Len() = %d after duplicate enqueue, want 1", q.Len())
		}
	})

	t.Run("empty submission id", func(t *testing.T) {
		if err := q.Enqueue(""); err == nil {
			t.Error("Enqueue(\"\") should return an error")
		}
	})

	t.Run("unknown submission is skipped", func(t *testing.T) {
		if err := q.Enqueue("no-such-submission"); err != nil {
			t.Fatalf("Enqueue() failed: %v", err)
		}
		if q.Len() != 1 {
			t.Errorf("Len() = %d, want 1 (unknown id must not be queued)", q.Len())
		}
	})

	t.Run("store error is reported", func(t *testing.T) {
		subs.err = errors.New("database is closed")
		defer func() { subs.err = nil }()

		if err := q.Enqueue("sub-2"); err == nil {
			t.Error("Enqueue() should surface the existence check error")
		}
		if q.Len() != 1 {
			t.Errorf("Len() = %d, want 1", q.Len())
		}
	})
}

// TestReviewQueue_ProcessSuccess tests the plain success path: one
// submission in, one review out, queue drained
func TestReviewQueue_ProcessSuccess(t *testing.T) {
	subs := newFakeSubmissions("sub-1")
	reviewer := newScriptedReviewer()
	q := NewReviewQueue(context.Background(), subs, reviewer, fastOptions())
	defer q.Stop()

	q.Start()
	if err := q.Enqueue("sub-1"); err != nil {
		t.Fatalf("Enqueue() failed: %v", err)
	}

	waitFor(t, 2*time.Second, "queue to drain", func() bool {
		return q.Len() == 0 && !q.Status().IsProcessing
	})

	if got := reviewer.attemptLog(); len(got) != 1 || got[0] != "sub-1" {
		t.Errorf("attempts = %v, want [sub-1]", got)
	}

	status := q.Status()
	if status.QueueLength != 0 {
		t.Errorf("QueueLength = %d, want 0", status.QueueLength)
	}
	if len(status.ProcessingItems) != 0 {
		t.Errorf("ProcessingItems = %v, want empty", status.ProcessingItems)
	}
}

// TestReviewQueue_SingleFlight tests that only one submission is ever
// processed at a time and the head keeps its queue position meanwhile
func TestReviewQueue_SingleFlight(t *testing.T) {
	subs := newFakeSubmissions("sub-a", "sub-b")
	reviewer := newScriptedReviewer()
	reviewer.block = make(chan struct{})

	q := NewReviewQueue(context.Background(), subs, reviewer, fastOptions())
	defer q.Stop()

	if err := q.Enqueue("sub-a"); err != nil {
		t.Fatalf("Enqueue(sub-a) failed: %v", err)
	}
	if err := q.Enqueue("sub-b"); err != nil {
		t.Fatalf("Enqueue(sub-b) failed: %v", err)
	}
	q.Start()

	waitFor(t, 2*time.Second, "first review to start", func() bool {
		return reviewer.attemptCount() == 1
	})

	status := q.Status()
	if !status.IsProcessing {
		t.Error("IsProcessing = false while a review is running")
	}
	if len(status.ProcessingItems) != 1 || status.ProcessingItems[0] != "sub-a" {
		t.Errorf("ProcessingItems = %v, want [sub-a]", status.ProcessingItems)
	}
	// The head item is not removed until its attempt completes.
	if status.QueueLength != 2 {
		t.Errorf("QueueLength = %d while head is processing, want 2", status.QueueLength)
	}
	if reviewer.attemptCount() != 1 {
		t.Errorf("attempts = %d while first review is blocked, want 1", reviewer.attemptCount())
	}

	close(reviewer.block)

	waitFor(t, 2*time.Second, "both reviews to finish", func() bool {
		return q.Len() == 0
	})

	if got := reviewer.attemptLog(); len(got) != 2 || got[0] != "sub-a" || got[1] != "sub-b" {
		t.Errorf("attempts = %v, want [sub-a sub-b]", got)
	}
	if reviewer.maxInFlight() != 1 {
		t.Errorf("maxInFlight = %d, want 1", reviewer.maxInFlight())
	}
}

// TestReviewQueue_RetryThenSuccess tests that transient failures are
// retried and the retry count is carried across attempts
func TestReviewQueue_RetryThenSuccess(t *testing.T) {
	subs := newFakeSubmissions("sub-1")
	reviewer := newScriptedReviewer()
	reviewer.script("sub-1", errors.New("agent timeout"), errors.New("agent timeout"))

	q := NewReviewQueue(context.Background(), subs, reviewer, fastOptions())
	defer q.Stop()

	q.Start()
	if err := q.Enqueue("sub-1"); err != nil {
		t.Fatalf("Enqueue() failed: %v", err)
	}

	waitFor(t, 2*time.Second, "queue to drain", func() bool {
		return q.Len() == 0
	})

	if got := reviewer.attemptCount(); got != 3 {
		t.Errorf("attempts = %d, want 3 (two failures then success)", got)
	}
}

// TestReviewQueue_RetryExhaustion tests that a submission is abandoned
// after the retry limit: one initial attempt plus three retries
func TestReviewQueue_RetryExhaustion(t *testing.T) {
	subs := newFakeSubmissions("sub-1")
	reviewer := newScriptedReviewer()
	reviewer.script("sub-1",
		errors.New("boom"), errors.New("boom"), errors.New("boom"),
		errors.New("boom"), errors.New("boom"), errors.New("boom"))

	q := NewReviewQueue(context.Background(), subs, reviewer, fastOptions())
	defer q.Stop()

	q.Start()
	if err := q.Enqueue("sub-1"); err != nil {
		t.Fatalf("Enqueue() failed: %v", err)
	}

	waitFor(t, 2*time.Second, "submission to be abandoned", func() bool {
		return q.Len() == 0
	})

	if got := reviewer.attemptCount(); got != 4 {
		t.Errorf("attempts = %d, want 4 (initial attempt + 3 retries)", got)
	}

	// Give the loop a moment; no further attempts may happen.
	time.Sleep(20 * time.Millisecond)
	if got := reviewer.attemptCount(); got != 4 {
		t.Errorf("attempts = %d after abandonment, want 4", got)
	}
}

// TestReviewQueue_FIFOFairnessUnderRetry tests that a failed submission
// is requeued at the tail, letting later arrivals run before its retry
func TestReviewQueue_FIFOFairnessUnderRetry(t *testing.T) {
	subs := newFakeSubmissions("sub-a", "sub-b")
	reviewer := newScriptedReviewer()
	reviewer.script("sub-a", errors.New("transient"))

	q := NewReviewQueue(context.Background(), subs, reviewer, fastOptions())
	defer q.Stop()

	if err := q.Enqueue("sub-a"); err != nil {
		t.Fatalf("Enqueue(sub-a) failed: %v", err)
	}
	if err := q.Enqueue("sub-b"); err != nil {
		t.Fatalf("Enqueue(sub-b) failed: %v", err)
	}
	q.Start()

	waitFor(t, 2*time.Second, "queue to drain", func() bool {
		return q.Len() == 0
	})

	want := []string{"sub-a", "sub-b", "sub-a"}
	got := reviewer.attemptLog()
	if len(got) != len(want) {
		t.Fatalf("attempts = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("attempts = %v, want %v (retry must run after later arrivals)", got, want)
		}
	}
}

// TestReviewQueue_AlreadyReviewedDropped tests that a submission whose
// review finished elsewhere is dropped without invoking the reviewer
func TestReviewQueue_AlreadyReviewedDropped(t *testing.T) {
	subs := newFakeSubmissions("sub-1")
	reviewer := newScriptedReviewer()

	q := NewReviewQueue(context.Background(), subs, reviewer, fastOptions())
	defer q.Stop()

	if err := q.Enqueue("sub-1"); err != nil {
		t.Fatalf("Enqueue() failed: %v", err)
	}
	subs.setStatus("sub-1", model.SubmissionStatusReviewed)
	q.Start()

	waitFor(t, 2*time.Second, "queue to drain", func() bool {
		return q.Len() == 0
	})

	if got := reviewer.attemptCount(); got != 0 {
		t.Errorf("attempts = %d for an already reviewed submission, want 0", got)
	}
}

// TestReviewQueue_MissingSubmissionRetries tests that a submission row
// deleted after enqueue is retried and eventually abandoned
func TestReviewQueue_MissingSubmissionRetries(t *testing.T) {
	subs := newFakeSubmissions("sub-1")
	reviewer := newScriptedReviewer()

	q := NewReviewQueue(context.Background(), subs, reviewer, fastOptions())
	defer q.Stop()

	if err := q.Enqueue("sub-1"); err != nil {
		t.Fatalf("Enqueue() failed: %v", err)
	}
	subs.delete("sub-1")
	q.Start()

	waitFor(t, 2*time.Second, "submission to be abandoned", func() bool {
		return q.Len() == 0
	})

	if got := reviewer.attemptCount(); got != 0 {
		t.Errorf("attempts = %d for a missing submission, want 0", got)
	}
}

// TestReviewQueue_HaltsWhenEmptyAndResumesOnEnqueue tests that the loop
// halts after draining and the next enqueue wakes it again
func TestReviewQueue_HaltsWhenEmptyAndResumesOnEnqueue(t *testing.T) {
	subs := newFakeSubmissions("sub-1", "sub-2")
	reviewer := newScriptedReviewer()

	q := NewReviewQueue(context.Background(), subs, reviewer, fastOptions())
	defer q.Stop()

	q.Start()
	if err := q.Enqueue("sub-1"); err != nil {
		t.Fatalf("Enqueue(sub-1) failed: %v", err)
	}
	waitFor(t, 2*time.Second, "first submission to drain", func() bool {
		return q.Len() == 0
	})

	// The loop is now parked on the ready signal.
	time.Sleep(20 * time.Millisecond)

	if err := q.Enqueue("sub-2"); err != nil {
		t.Fatalf("Enqueue(sub-2) failed: %v", err)
	}
	waitFor(t, 2*time.Second, "second submission to drain", func() bool {
		return q.Len() == 0
	})

	if got := reviewer.attemptCount(); got != 2 {
		t.Errorf("attempts = %d, want 2", got)
	}
}

// TestReviewQueue_Status tests the status snapshot shape, including the
// JSON field names served by the queue status endpoint
func TestReviewQueue_Status(t *testing.T) {
	subs := newFakeSubmissions("sub-1", "sub-2")
	q := NewReviewQueue(context.Background(), subs, newScriptedReviewer(), fastOptions())
	defer q.Stop()

	t.Run("empty queue", func(t *testing.T) {
		status := q.Status()
		if status.QueueLength != 0 {
			t.Errorf("QueueLength = %d, want 0", status.QueueLength)
		}
		if status.IsProcessing {
			t.Error("IsProcessing = true for an idle queue")
		}
		if status.ProcessingItems == nil || status.QueueItems == nil {
			t.Error("status slices must be non-nil so they serialize as []")
		}
	})

	t.Run("queued items in order", func(t *testing.T) {
		if err := q.Enqueue("sub-1"); err != nil {
			t.Fatalf("Enqueue(sub-1) failed: %v", err)
		}
		if err := q.Enqueue("sub-2"); err != nil {
			t.Fatalf("Enqueue(sub-2) failed: %v", err)
		}

		status := q.Status()
		if status.QueueLength != 2 {
			t.Errorf("QueueLength = %d, want 2", status.QueueLength)
		}
		if len(status.QueueItems) != 2 {
			t.Fatalf("QueueItems = %v, want 2 entries", status.QueueItems)
		}
		if status.QueueItems[0].ID != "sub-1" || status.QueueItems[1].ID != "sub-2" {
			t.Errorf("QueueItems order = %v, want [sub-1 sub-2]", status.QueueItems)
		}
		if status.QueueItems[0].Retries != 0 {
			t.Errorf("Retries = %d for a fresh item, want 0", status.QueueItems[0].Retries)
		}
	})

	t.Run("json field names", func(t *testing.T) {
		data, err := json.Marshal(q.Status())
		if err != nil {
			t.Fatalf("Marshal() failed: %v", err)
		}
		for _, key := range []string{`"queueLength"`, `"isProcessing"`, `"processingItems"`, `"queueItems"`, `"id"`, `"retries"`} {
			if !strings.Contains(string(data), key) {
				t.Errorf("status JSON missing %s: %s", key, data)
			}
		}
	})
}

// TestReviewQueue_ConcurrentEnqueue tests concurrent enqueue operations
func TestReviewQueue_ConcurrentEnqueue(t *testing.T) {
	ids := make([]string, 0, 100)
	for i := 0; i < 100; i++ {
		ids = append(ids, fmt.Sprintf("sub-%03d", i))
	}
	subs := newFakeSubmissions(ids...)
	q := NewReviewQueue(context.Background(), subs, newScriptedReviewer(), fastOptions())
	defer q.Stop()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(base int) {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				id := fmt.Sprintf("sub-%03d", base*10+j)
				if err := q.Enqueue(id); err != nil {
					t.Errorf("Enqueue(%s) failed: %v", id, err)
				}
			}
		}(i)
	}
	wg.Wait()

	if q.Len() != 100 {
		t.Errorf("Len() = %d, want 100", q.Len())
	}
}

// TestReviewQueue_Stop tests that Stop halts processing
func TestReviewQueue_Stop(t *testing.T) {
	subs := newFakeSubmissions("sub-1", "sub-2")
	reviewer := newScriptedReviewer()

	q := NewReviewQueue(context.Background(), subs, reviewer, fastOptions())
	q.Start()

	if err := q.Enqueue("sub-1"); err != nil {
		t.Fatalf("Enqueue() failed: %v", err)
	}
	waitFor(t, 2*time.Second, "first submission to drain", func() bool {
		return q.Len() == 0
	})

	q.Stop()

	// Enqueue still records the item but nothing processes it.
	if err := q.Enqueue("sub-2"); err != nil {
		t.Fatalf("Enqueue() after Stop failed: %v", err)
	}
	time.Sleep(20 * time.Millisecond)

	if got := reviewer.attemptCount(); got != 1 {
		t.Errorf("attempts = %d after Stop, want 1", got)
	}
	if q.Len() != 1 {
		t.Errorf("Len() = %d, want 1", q.Len())
	}
}
