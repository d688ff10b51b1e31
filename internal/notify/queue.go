package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
)

// ErrQueueStopped is returned by Enqueue after Stop.
var ErrQueueStopped = errors.New("queue stopped")

const laneBuffer = 100

// Queue runs notifications on per-topic FIFO lanes (see Run.Lane). A global semaphore
// limits how many runs execute at once across all lanes.
type Queue struct {
	lanes     map[string]chan *Run
	semaphore *semaphore.Weighted
	processor func(context.Context, *Run) error
	// pending counts runs enqueued but not yet finished.
	pending atomic.Int64

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	stopped bool
}

// NewQueue creates a Queue that allows up to maxConcurrent runs at a time.
func NewQueue(maxConcurrent int64) *Queue {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &Queue{
		lanes:     make(map[string]chan *Run),
		semaphore: semaphore.NewWeighted(maxConcurrent),
	}
}

// Start initialises the queue's context. Must be called before Enqueue.
func (q *Queue) Start(ctx context.Context) {
	q.ctx, q.cancel = context.WithCancel(ctx)
}

// Stop cancels in-flight runs, closes all lanes and waits for the lane
// goroutines to exit. Runs still buffered are discarded.
func (q *Queue) Stop() {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return
	}
	q.stopped = true
	if q.cancel != nil {
		q.cancel()
	}
	for _, lane := range q.lanes {
		close(lane)
	}
	q.mu.Unlock()
	q.wg.Wait()
}

// Enqueue adds run to its lane, starting the lane goroutine on first use.
func (q *Queue) Enqueue(run *Run) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.stopped || q.ctx == nil {
		return ErrQueueStopped
	}

	name := run.Lane()
	lane, exists := q.lanes[name]
	if !exists {
		lane = make(chan *Run, laneBuffer)
		q.lanes[name] = lane
		q.wg.Add(1)
		go q.processLane(name, lane)
	}

	select {
	case lane <- run:
		q.pending.Add(1)
		return nil
	default:
		return fmt.Errorf("queue full for lane %s", name)
	}
}

func (q *Queue) processLane(name string, lane chan *Run) {
	defer q.wg.Done()
	for {
		select {
		case run, ok := <-lane:
			if !ok {
				return
			}
			q.execute(name, run)
		case <-q.ctx.Done():
			return
		}
	}
}

func (q *Queue) execute(name string, run *Run) {
	defer q.pending.Add(-1)

	if err := q.semaphore.Acquire(q.ctx, 1); err != nil {
		return
	}
	defer q.semaphore.Release(1)

	if q.processor == nil {
		return
	}
	if err := q.processor(q.ctx, run); err != nil {
		slog.Error("notification run failed", "run_id", run.ID, "lane", name, "error", err)
	}
}

// Lanes returns the number of lanes started so far.
func (q *Queue) Lanes() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.lanes)
}

// Pending returns the number of runs enqueued but not yet finished.
func (q *Queue) Pending() int64 {
	return q.pending.Load()
}

// WaitIdle blocks until no runs are pending, or the timeout expires.
// Returns true if idle, false if timed out.
func (q *Queue) WaitIdle(timeout time.Duration) bool {
	deadline := time.After(timeout)
	for {
		if q.pending.Load() == 0 {
			return true
		}
		select {
		case <-deadline:
			return false
		case <-time.After(10 * time.Millisecond):
		}
	}
}

// SetProcessor sets the function invoked for each dequeued Run.
func (q *Queue) SetProcessor(fn func(context.Context, *Run) error) {
	q.processor = fn
}
