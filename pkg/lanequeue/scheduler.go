package lanequeue

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// signalLane starts a round loop for the lane unless one is already active,
// the lane is paused, or there is nothing to schedule. Safe to call from any
// goroutine; redundant signals are no-ops.
func (q *Queue) signalLane(ln *lane) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return
	}

	ln.mu.Lock()
	if ln.processing || ln.paused || len(ln.pending) == 0 {
		ln.mu.Unlock()
		return
	}
	ln.processing = true
	ln.mu.Unlock()

	q.wg.Add(1)
	go q.runRounds(ln)
}

// runRounds is the per-lane scheduling loop. Each iteration selects one batch
// and waits for every member to finish before selecting again; freed parallel
// slots are not backfilled mid-batch. At most one instance runs per lane,
// guarded by the processing flag.
func (q *Queue) runRounds(ln *lane) {
	defer q.wg.Done()

	for {
		batch, drained := q.selectBatch(ln)
		if len(batch) == 0 {
			if drained {
				log.Debug().Str("lane", ln.id).Msg("Lane drained")
				q.emit(Event{Type: EventLaneDrained, Lane: ln.id})
			}
			return
		}

		var wg sync.WaitGroup
		for _, t := range batch {
			wg.Add(1)
			go func(t *task) {
				defer wg.Done()
				q.execute(ln, t)
			}(t)
		}
		wg.Wait()
	}
}

// selectBatch picks the next eligible batch from the head of the pending
// queue and moves it into the running set. Selection rules, applied once per
// round:
//   - a parallel task joins while running plus already-selected parallel
//     tasks stay under MaxParallel;
//   - a serial task joins only into an otherwise empty batch with nothing
//     running, and always ends the selection;
//   - the first ineligible task stops the walk, preserving order.
//
// An empty batch releases the processing flag; the second return value
// reports whether the lane drained (pending and running both empty).
func (q *Queue) selectBatch(ln *lane) ([]*task, bool) {
	ln.mu.Lock()
	defer ln.mu.Unlock()

	if ln.paused || q.ctx.Err() != nil {
		ln.processing = false
		return nil, false
	}

	runningParallel := 0
	for _, t := range ln.running {
		if t.opts.Parallel {
			runningParallel++
		}
	}

	var batch []*task
	batchParallel := 0
	for len(ln.pending) > 0 {
		head := ln.pending[0]
		if head.opts.Parallel {
			if runningParallel+batchParallel >= q.cfg.MaxParallel {
				break
			}
			batch = append(batch, head)
			batchParallel++
			ln.pending = ln.pending[1:]
			continue
		}
		// Serial task: runs alone in its lane.
		if len(ln.running) == 0 && len(batch) == 0 {
			batch = append(batch, head)
			ln.pending = ln.pending[1:]
		}
		break
	}

	if len(batch) == 0 {
		ln.processing = false
		drained := len(ln.pending) == 0 && len(ln.running) == 0
		return nil, drained
	}

	for _, t := range batch {
		ln.running[t.id] = t
	}
	return batch, false
}
