package lanequeue

import (
	"sync"
	"time"
)

// LaneStats accumulates per-lane execution counters
type LaneStats struct {
	TotalTasks      int           `json:"totalTasks"`
	CompletedTasks  int           `json:"completedTasks"`
	FailedTasks     int           `json:"failedTasks"`
	TotalDuration   time.Duration `json:"totalDuration"`
	AverageDuration time.Duration `json:"averageDuration"`
}

// lane manages scheduling state for a single lane. The mutex guards every
// field; the processing flag is the mutual exclusion preventing two rounds
// from running concurrently for the same lane.
type lane struct {
	id string

	mu         sync.Mutex
	pending    []*task
	running    map[string]*task
	paused     bool
	processing bool
	stats      LaneStats
}

func newLane(id string) *lane {
	return &lane{
		id:      id,
		running: make(map[string]*task),
	}
}

// insertByPriority places t before the first pending task with strictly lower
// priority, so the queue stays in descending-priority order with FIFO
// tie-break among equal priorities. Caller holds l.mu.
func (l *lane) insertByPriority(t *task) {
	pos := len(l.pending)
	for i, existing := range l.pending {
		if existing.opts.Priority < t.opts.Priority {
			pos = i
			break
		}
	}
	l.pending = append(l.pending, nil)
	copy(l.pending[pos+1:], l.pending[pos:])
	l.pending[pos] = t
}

// recordCompletion folds a successful run into the stats. Failed tasks do not
// contribute duration. Caller holds l.mu.
func (l *lane) recordCompletion(duration time.Duration) {
	l.stats.CompletedTasks++
	l.stats.TotalDuration += duration
	l.stats.AverageDuration = l.stats.TotalDuration / time.Duration(l.stats.CompletedTasks)
}

// LaneInfo is a point-in-time snapshot of a lane; no queue internals escape
// through it.
type LaneInfo struct {
	ID      string    `json:"id"`
	Paused  bool      `json:"paused"`
	Pending int       `json:"pending"`
	Running int       `json:"running"`
	Stats   LaneStats `json:"stats"`
}

// GlobalStats aggregates counters across all lanes
type GlobalStats struct {
	Lanes           int           `json:"lanes"`
	PendingTasks    int           `json:"pendingTasks"`
	RunningTasks    int           `json:"runningTasks"`
	TotalTasks      int           `json:"totalTasks"`
	CompletedTasks  int           `json:"completedTasks"`
	FailedTasks     int           `json:"failedTasks"`
	TotalDuration   time.Duration `json:"totalDuration"`
	AverageDuration time.Duration `json:"averageDuration"`
}

// snapshot captures the lane state under its own lock
func (l *lane) snapshot() LaneInfo {
	l.mu.Lock()
	defer l.mu.Unlock()
	return LaneInfo{
		ID:      l.id,
		Paused:  l.paused,
		Pending: len(l.pending),
		Running: len(l.running),
		Stats:   l.stats,
	}
}
