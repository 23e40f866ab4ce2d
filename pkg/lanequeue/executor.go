package lanequeue

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/rizaldy/kanal/internal/observability"
	"github.com/rizaldy/kanal/internal/tracing"
)

// execute runs one task to its terminal state: timeout-bounded attempts,
// retry-with-backoff for idempotent work, stats and event updates, handle
// settlement. Retries re-invoke the work from scratch; the task record is
// never re-enqueued.
func (q *Queue) execute(ln *lane, t *task) {
	ctx := t.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, span := tracing.StartSpan(
		ctx,
		tracerName,
		"lanequeue.execute",
		attribute.String("lane", t.lane),
		attribute.String("task_id", t.id),
	)
	defer span.End()

	ctx = tracing.WithTaskID(ctx, t.id)
	logger := tracing.LoggerFromContext(ctx, log.Logger).With().
		Str("session_key", t.lane).
		Str("task_id", t.id).
		Logger()

	t.setStatus(TaskRunning)
	started := time.Now()

	logger.Debug().Str("category", t.opts.Category).Msg("Task started")
	q.emit(Event{Type: EventTaskStarted, Lane: t.lane, TaskID: t.id})

	maxAttempts := t.opts.Retries + 1
	var value interface{}
	var err error

attempts:
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		value, err = q.runAttempt(ctx, t)
		if err == nil {
			break
		}
		// Non-idempotent work never retries; Retries only bounds the count
		// once idempotency gates it open.
		if attempt >= maxAttempts || !t.opts.Idempotent {
			break
		}

		logger.Warn().
			Err(err).
			Int("attempt", attempt).
			Int("max_attempts", maxAttempts).
			Dur("retry_delay", t.opts.RetryDelay).
			Msg("Attempt failed, retrying")
		if q.cfg.MetricsEnabled {
			observability.RecordTaskRetry(t.lane)
		}

		select {
		case <-time.After(t.opts.RetryDelay):
		case <-q.ctx.Done():
			break attempts
		}
	}

	duration := time.Since(started)

	ln.mu.Lock()
	delete(ln.running, t.id)
	if err == nil {
		ln.recordCompletion(duration)
	} else {
		ln.stats.FailedTasks++
	}
	queueSize := len(ln.pending)
	ln.mu.Unlock()

	if err != nil {
		value = nil
		t.setStatus(TaskFailed)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Error().Err(err).Dur("duration", duration).Msg("Task failed")
	} else {
		t.setStatus(TaskCompleted)
		logger.Debug().Dur("duration", duration).Msg("Task completed")
	}

	if q.cfg.MetricsEnabled {
		observability.RecordQueueCompletion(t.lane, duration, err == nil, queueSize)
	}

	if err != nil {
		q.emit(Event{
			Type:   EventTaskFailed,
			Lane:   t.lane,
			TaskID: t.id,
			Err:    err,
			Data:   map[string]interface{}{"duration": duration.Milliseconds()},
		})
	} else {
		q.emit(Event{
			Type:   EventTaskCompleted,
			Lane:   t.lane,
			TaskID: t.id,
			Data:   map[string]interface{}{"duration": duration.Milliseconds()},
		})
	}

	t.handle.settle(value, err)
}

// runAttempt races one invocation of the work function against the task's
// timeout. On timeout only the wait is abandoned; the work goroutine keeps
// running and its eventual result is dropped into a buffered channel.
func (q *Queue) runAttempt(ctx context.Context, t *task) (interface{}, error) {
	resCh := make(chan taskResult, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				resCh <- taskResult{err: fmt.Errorf("task panic: %v", r)}
			}
		}()
		value, err := t.work(ctx)
		resCh <- taskResult{value: value, err: err}
	}()

	timer := time.NewTimer(t.opts.Timeout)
	defer timer.Stop()

	select {
	case res := <-resCh:
		return res.value, res.err
	case <-timer.C:
		return nil, &TimeoutError{Timeout: t.opts.Timeout}
	}
}
