package lanequeue

import (
	"errors"
	"fmt"
	"time"
)

// ErrCancelled settles the handle of a pending task that was cancelled
// before it started.
var ErrCancelled = errors.New("task cancelled before start")

// ErrClosed is returned by Enqueue after the queue has been closed.
var ErrClosed = errors.New("lane queue is closed")

// CapacityError rejects an enqueue because the lane's pending queue is full.
// No task is created; the caller must back off or drop the request.
type CapacityError struct {
	Lane  string
	Limit int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("lane %q pending queue is full (max %d)", e.Lane, e.Limit)
}

// TimeoutError marks an execution attempt whose wait was abandoned after the
// configured duration. The underlying work is not forcibly stopped; work
// functions must honor their context or stay short-lived.
type TimeoutError struct {
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("task timed out after %dms", e.Timeout.Milliseconds())
}
