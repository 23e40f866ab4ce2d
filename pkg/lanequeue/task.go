package lanequeue

import (
	"context"
	"sync"
	"time"
)

// Work is an asynchronous operation scheduled through the queue
type Work func(ctx context.Context) (interface{}, error)

// TaskStatus tracks a task through its lifecycle
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
	TaskCancelled TaskStatus = "cancelled"
)

// terminal reports whether a status admits no further transition
func (s TaskStatus) terminal() bool {
	return s == TaskCompleted || s == TaskFailed || s == TaskCancelled
}

// task tracks a scheduled unit of work. The queue owns every task record;
// callers only ever hold the Handle.
type task struct {
	id   string
	lane string
	work Work
	ctx  context.Context
	opts TaskOptions

	mu          sync.Mutex
	status      TaskStatus
	enqueuedAt  time.Time
	startedAt   time.Time
	completedAt time.Time

	handle *Handle
}

// setStatus advances the task status. Transitions are monotonic: once a
// terminal status is set, later transitions are rejected.
func (t *task) setStatus(status TaskStatus) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.status.terminal() {
		return false
	}
	t.status = status
	now := time.Now()
	switch status {
	case TaskRunning:
		t.startedAt = now
	case TaskCompleted, TaskFailed, TaskCancelled:
		t.completedAt = now
	}
	return true
}

func (t *task) currentStatus() TaskStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

type taskResult struct {
	value interface{}
	err   error
}

// Handle is the outcome of an enqueued task. It settles exactly once, with
// either the work's result, the final error after retries are exhausted, a
// timeout, or a cancellation.
type Handle struct {
	taskID string
	lane   string

	once  sync.Once
	done  chan struct{}
	value interface{}
	err   error
}

func newHandle(taskID, lane string) *Handle {
	return &Handle{
		taskID: taskID,
		lane:   lane,
		done:   make(chan struct{}),
	}
}

// TaskID returns the scheduler-assigned task identifier
func (h *Handle) TaskID() string { return h.taskID }

// Lane returns the lane the task was enqueued into
func (h *Handle) Lane() string { return h.lane }

// Done returns a channel closed when the task reaches a terminal state
func (h *Handle) Done() <-chan struct{} { return h.done }

// Wait blocks until the task settles or ctx is done. Abandoning the wait does
// not affect the task itself.
func (h *Handle) Wait(ctx context.Context) (interface{}, error) {
	select {
	case <-h.done:
		return h.value, h.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// settle records the outcome; only the first call wins
func (h *Handle) settle(value interface{}, err error) {
	h.once.Do(func() {
		h.value = value
		h.err = err
		close(h.done)
	})
}
