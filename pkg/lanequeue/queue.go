package lanequeue

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/rizaldy/kanal/internal/observability"
	"github.com/rizaldy/kanal/internal/tracing"
)

const tracerName = "kanal.lanequeue"

// Queue schedules tasks into independent lanes with default-serial,
// explicit-parallel semantics. The zero value is not usable; construct with
// New.
type Queue struct {
	cfg Config

	mu     sync.RWMutex
	lanes  map[string]*lane
	closed bool

	taskSeq atomic.Uint64
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc

	subMu           sync.RWMutex
	subscribers     map[string][]subscriber
	subscriberTypes map[string]string
}

// New creates a queue with the given configuration; zero-valued limits fall
// back to DefaultConfig.
func New(cfg Config) *Queue {
	cfg = cfg.withDefaults()
	if cfg.MetricsEnabled {
		observability.EnsureRegistered()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Queue{
		cfg:             cfg,
		lanes:           make(map[string]*lane),
		ctx:             ctx,
		cancel:          cancel,
		subscribers:     make(map[string][]subscriber),
		subscriberTypes: make(map[string]string),
	}
}

// Config returns the resolved queue configuration
func (q *Queue) Config() Config {
	return q.cfg
}

// Enqueue adds a task to the given lane and returns its outcome handle. It
// fails fast with a CapacityError, before any task is created, if the lane's
// pending queue is full.
func (q *Queue) Enqueue(laneID string, work Work, options *TaskOptions) (*Handle, error) {
	return q.EnqueueWithContext(context.Background(), laneID, work, options)
}

// EnqueueWithContext enqueues a task and propagates the caller's context into
// the work function. The lane id doubles as session key for log correlation.
func (q *Queue) EnqueueWithContext(ctx context.Context, laneID string, work Work, options *TaskOptions) (*Handle, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	ctx, span := tracing.StartSpan(
		ctx,
		tracerName,
		"lanequeue.enqueue",
		attribute.String("lane", laneID),
	)
	defer span.End()

	if tracing.GetSessionKey(ctx) == "" {
		ctx = tracing.WithSessionKey(ctx, laneID)
	}

	ln, err := q.ensureLane(laneID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	ln.mu.Lock()
	if len(ln.pending) >= q.cfg.MaxPending {
		ln.mu.Unlock()
		capErr := &CapacityError{Lane: laneID, Limit: q.cfg.MaxPending}
		span.RecordError(capErr)
		span.SetStatus(codes.Error, capErr.Error())
		return nil, capErr
	}

	seq := q.taskSeq.Add(1)
	t := &task{
		id:         fmt.Sprintf("%s-%d", laneID, seq),
		lane:       laneID,
		work:       work,
		ctx:        ctx,
		opts:       q.cfg.resolveOptions(options),
		status:     TaskPending,
		enqueuedAt: time.Now(),
	}
	t.handle = newHandle(t.id, laneID)

	ln.insertByPriority(t)
	ln.stats.TotalTasks++
	pendingLen := len(ln.pending)
	ln.mu.Unlock()

	logger := tracing.LoggerFromContext(ctx, log.Logger).With().Str("session_key", laneID).Logger()
	logger.Debug().
		Str("lane", laneID).
		Str("task_id", t.id).
		Int("priority", t.opts.Priority).
		Bool("parallel", t.opts.Parallel).
		Str("category", t.opts.Category).
		Int("queue_size", pendingLen).
		Msg("Task enqueued")

	if q.cfg.MetricsEnabled {
		observability.RecordQueueEnqueue(laneID, pendingLen)
	}

	q.emit(Event{
		Type:   EventTaskEnqueued,
		Lane:   laneID,
		TaskID: t.id,
		Data: map[string]interface{}{
			"queueSize": pendingLen,
			"priority":  t.opts.Priority,
			"parallel":  t.opts.Parallel,
		},
	})

	q.signalLane(ln)

	return t.handle, nil
}

// ensureLane returns the lane, creating it lazily on first enqueue
func (q *Queue) ensureLane(laneID string) (*lane, error) {
	q.mu.RLock()
	ln, exists := q.lanes[laneID]
	closed := q.closed
	q.mu.RUnlock()
	if closed {
		return nil, ErrClosed
	}
	if exists {
		return ln, nil
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil, ErrClosed
	}
	ln, exists = q.lanes[laneID]
	if !exists {
		ln = newLane(laneID)
		q.lanes[laneID] = ln
	}
	laneCount := len(q.lanes)
	q.mu.Unlock()

	if !exists {
		log.Debug().Str("lane", laneID).Msg("Lane created")
		if q.cfg.MetricsEnabled {
			observability.SetLanesActive(laneCount)
		}
		q.emit(Event{Type: EventLaneCreated, Lane: laneID})
	}
	return ln, nil
}

// Pause prevents new scheduling rounds for a lane. Already-running tasks are
// unaffected. Returns false if the lane does not exist.
func (q *Queue) Pause(laneID string) bool {
	ln := q.getLane(laneID)
	if ln == nil {
		return false
	}

	ln.mu.Lock()
	already := ln.paused
	ln.paused = true
	ln.mu.Unlock()

	if !already {
		log.Debug().Str("lane", laneID).Msg("Lane paused")
		q.emit(Event{Type: EventLanePaused, Lane: laneID})
	}
	return true
}

// Resume clears the paused flag and immediately attempts a new round
func (q *Queue) Resume(laneID string) bool {
	ln := q.getLane(laneID)
	if ln == nil {
		return false
	}

	ln.mu.Lock()
	wasPaused := ln.paused
	ln.paused = false
	ln.mu.Unlock()

	if wasPaused {
		log.Debug().Str("lane", laneID).Msg("Lane resumed")
		q.emit(Event{Type: EventLaneResumed, Lane: laneID})
	}
	q.signalLane(ln)
	return true
}

// CancelPending settles every not-yet-started task in the lane with
// ErrCancelled, clears the pending queue, and returns the count cancelled.
// Running tasks are untouched.
func (q *Queue) CancelPending(laneID string) int {
	ln := q.getLane(laneID)
	if ln == nil {
		return 0
	}

	ln.mu.Lock()
	cancelled := ln.pending
	ln.pending = nil
	ln.mu.Unlock()

	for _, t := range cancelled {
		t.setStatus(TaskCancelled)
		t.handle.settle(nil, ErrCancelled)
		q.emit(Event{Type: EventTaskCancelled, Lane: laneID, TaskID: t.id, Err: ErrCancelled})
	}

	if len(cancelled) > 0 {
		log.Info().Str("lane", laneID).Int("cancelled", len(cancelled)).Msg("Pending tasks cancelled")
		if q.cfg.MetricsEnabled {
			observability.SetQueueSize(laneID, 0)
		}
	}
	return len(cancelled)
}

// RemoveLane cancels the lane's pending tasks and deletes the lane record,
// discarding its statistics. Returns false if the lane does not exist.
func (q *Queue) RemoveLane(laneID string) bool {
	q.mu.RLock()
	_, exists := q.lanes[laneID]
	q.mu.RUnlock()
	if !exists {
		return false
	}

	q.CancelPending(laneID)

	q.mu.Lock()
	delete(q.lanes, laneID)
	laneCount := len(q.lanes)
	q.mu.Unlock()

	log.Info().Str("lane", laneID).Msg("Lane removed")
	if q.cfg.MetricsEnabled {
		observability.SetLanesActive(laneCount)
	}
	return true
}

// Clear removes every lane, cancelling all pending tasks
func (q *Queue) Clear() {
	for _, laneID := range q.ListLanes() {
		q.RemoveLane(laneID)
	}
}

// getLane fetches an existing lane without creating one
func (q *Queue) getLane(laneID string) *lane {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.lanes[laneID]
}

// GetLane returns a snapshot of the lane state
func (q *Queue) GetLane(laneID string) (LaneInfo, bool) {
	ln := q.getLane(laneID)
	if ln == nil {
		return LaneInfo{}, false
	}
	return ln.snapshot(), true
}

// ListLanes returns all lane ids, sorted
func (q *Queue) ListLanes() []string {
	q.mu.RLock()
	ids := make([]string, 0, len(q.lanes))
	for id := range q.lanes {
		ids = append(ids, id)
	}
	q.mu.RUnlock()

	sort.Strings(ids)
	return ids
}

// GetStats returns the lane's statistics
func (q *Queue) GetStats(laneID string) (LaneStats, bool) {
	ln := q.getLane(laneID)
	if ln == nil {
		return LaneStats{}, false
	}
	ln.mu.Lock()
	defer ln.mu.Unlock()
	return ln.stats, true
}

// GetGlobalStats aggregates statistics across all lanes
func (q *Queue) GetGlobalStats() GlobalStats {
	q.mu.RLock()
	lanes := make([]*lane, 0, len(q.lanes))
	for _, ln := range q.lanes {
		lanes = append(lanes, ln)
	}
	q.mu.RUnlock()

	global := GlobalStats{Lanes: len(lanes)}
	for _, ln := range lanes {
		ln.mu.Lock()
		global.PendingTasks += len(ln.pending)
		global.RunningTasks += len(ln.running)
		global.TotalTasks += ln.stats.TotalTasks
		global.CompletedTasks += ln.stats.CompletedTasks
		global.FailedTasks += ln.stats.FailedTasks
		global.TotalDuration += ln.stats.TotalDuration
		ln.mu.Unlock()
	}
	if global.CompletedTasks > 0 {
		global.AverageDuration = global.TotalDuration / time.Duration(global.CompletedTasks)
	}
	return global
}

// FormatStatus renders a human-readable summary of every lane
func (q *Queue) FormatStatus() string {
	global := q.GetGlobalStats()

	var b strings.Builder
	fmt.Fprintf(&b, "lane queue: %d lanes, %d pending, %d running\n",
		global.Lanes, global.PendingTasks, global.RunningTasks)

	for _, laneID := range q.ListLanes() {
		info, ok := q.GetLane(laneID)
		if !ok {
			continue
		}
		state := "active"
		if info.Paused {
			state = "paused"
		}
		fmt.Fprintf(&b, "  %-24s %-6s pending=%d running=%d completed=%d failed=%d avg=%s\n",
			info.ID, state, info.Pending, info.Running,
			info.Stats.CompletedTasks, info.Stats.FailedTasks,
			info.Stats.AverageDuration.Round(time.Millisecond))
	}
	return b.String()
}

// WaitIdle polls until every lane has drained or the timeout elapses
func (q *Queue) WaitIdle(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		global := q.GetGlobalStats()
		if global.PendingTasks == 0 && global.RunningTasks == 0 {
			return true
		}
		if time.Now().After(deadline) {
			log.Warn().Dur("timeout", timeout).Msg("Timeout waiting for lanes to drain")
			return false
		}
		<-ticker.C
	}
}

// Close cancels the queue context, rejects further enqueues, and waits for
// in-flight rounds to finish. Work abandoned by timeout is not waited on.
func (q *Queue) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	q.mu.Unlock()

	q.cancel()
	q.wg.Wait()
	return nil
}

// Process-wide default instance.
var (
	defaultMu    sync.Mutex
	defaultQueue *Queue
)

// Default returns the process-wide queue, constructing it lazily. A config
// override is honored only on the first call.
func Default(cfg ...Config) *Queue {
	defaultMu.Lock()
	defer defaultMu.Unlock()

	if defaultQueue == nil {
		c := DefaultConfig()
		if len(cfg) > 0 {
			c = cfg[0]
		}
		defaultQueue = New(c)
	}
	return defaultQueue
}

// ResetDefault tears down the process-wide queue: pending tasks are
// cancelled, lanes are dropped, and the next Default call builds a fresh
// instance. Intended for test isolation.
func ResetDefault() {
	defaultMu.Lock()
	q := defaultQueue
	defaultQueue = nil
	defaultMu.Unlock()

	if q != nil {
		q.Clear()
		_ = q.Close()
	}
}
