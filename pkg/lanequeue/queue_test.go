package lanequeue

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestQueue(cfg Config) *Queue {
	cfg.MetricsEnabled = false
	return New(cfg)
}

func TestQueue_BasicEnqueue(t *testing.T) {
	q := newTestQueue(DefaultConfig())
	defer q.Close()

	executed := false
	handle, err := q.Enqueue("test", func(ctx context.Context) (interface{}, error) {
		executed = true
		return "result", nil
	}, nil)
	require.NoError(t, err)

	result, err := handle.Wait(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, "result", result)
	assert.True(t, executed)
}

func TestQueue_WorkError(t *testing.T) {
	q := newTestQueue(DefaultConfig())
	defer q.Close()

	expectedErr := errors.New("task failed")
	handle, err := q.Enqueue("test", func(ctx context.Context) (interface{}, error) {
		return nil, expectedErr
	}, nil)
	require.NoError(t, err)

	result, err := handle.Wait(context.Background())
	assert.Equal(t, expectedErr, err)
	assert.Nil(t, result)
}

func TestQueue_TaskIDsAreCounterDerived(t *testing.T) {
	q := newTestQueue(DefaultConfig())
	defer q.Close()

	h1, err := q.Enqueue("a", func(ctx context.Context) (interface{}, error) { return nil, nil }, nil)
	require.NoError(t, err)
	h2, err := q.Enqueue("a", func(ctx context.Context) (interface{}, error) { return nil, nil }, nil)
	require.NoError(t, err)

	assert.Equal(t, "a-1", h1.TaskID())
	assert.Equal(t, "a-2", h2.TaskID())
	assert.Equal(t, "a", h1.Lane())
}

func TestQueue_Backpressure(t *testing.T) {
	q := newTestQueue(Config{MaxPending: 2})
	defer q.Close()

	blockerDone := make(chan struct{})
	blocker, err := q.Enqueue("full", func(ctx context.Context) (interface{}, error) {
		<-blockerDone
		return nil, nil
	}, nil)
	require.NoError(t, err)

	// Let the blocker move from pending to running.
	time.Sleep(50 * time.Millisecond)

	sleeper := func(ctx context.Context) (interface{}, error) { return nil, nil }
	_, err = q.Enqueue("full", sleeper, nil)
	require.NoError(t, err)
	_, err = q.Enqueue("full", sleeper, nil)
	require.NoError(t, err)

	_, err = q.Enqueue("full", sleeper, nil)
	var capErr *CapacityError
	require.ErrorAs(t, err, &capErr)
	assert.Equal(t, "full", capErr.Lane)
	assert.Equal(t, 2, capErr.Limit)
	assert.Contains(t, err.Error(), "pending queue is full")

	// Other lanes are unaffected.
	handle, err := q.Enqueue("other", sleeper, nil)
	require.NoError(t, err)
	_, err = handle.Wait(context.Background())
	assert.NoError(t, err)

	close(blockerDone)
	_, err = blocker.Wait(context.Background())
	assert.NoError(t, err)
}

func TestQueue_LaneIsolation(t *testing.T) {
	q := newTestQueue(DefaultConfig())
	defer q.Close()

	sleep100 := func(ctx context.Context) (interface{}, error) {
		time.Sleep(100 * time.Millisecond)
		return nil, nil
	}

	start := time.Now()
	h1, err := q.Enqueue("session:one", sleep100, nil)
	require.NoError(t, err)
	h2, err := q.Enqueue("session:two", sleep100, nil)
	require.NoError(t, err)

	_, err = h1.Wait(context.Background())
	require.NoError(t, err)
	_, err = h2.Wait(context.Background())
	require.NoError(t, err)

	elapsed := time.Since(start)
	assert.Less(t, elapsed, 180*time.Millisecond, "lanes must not serialize against each other")
}

func TestQueue_StatsConsistency(t *testing.T) {
	q := newTestQueue(DefaultConfig())
	defer q.Close()

	var handles []*Handle
	for i := 0; i < 3; i++ {
		h, err := q.Enqueue("stats", func(ctx context.Context) (interface{}, error) {
			time.Sleep(10 * time.Millisecond)
			return nil, nil
		}, nil)
		require.NoError(t, err)
		handles = append(handles, h)
	}
	for i := 0; i < 2; i++ {
		h, err := q.Enqueue("stats", func(ctx context.Context) (interface{}, error) {
			return nil, errors.New("boom")
		}, nil)
		require.NoError(t, err)
		handles = append(handles, h)
	}

	for _, h := range handles {
		_, _ = h.Wait(context.Background())
	}
	require.True(t, q.WaitIdle(time.Second))

	stats, ok := q.GetStats("stats")
	require.True(t, ok)
	assert.Equal(t, 5, stats.TotalTasks)
	assert.Equal(t, 3, stats.CompletedTasks)
	assert.Equal(t, 2, stats.FailedTasks)
	assert.Equal(t, stats.TotalDuration/3, stats.AverageDuration)
	assert.Greater(t, stats.AverageDuration, time.Duration(0))
}

func TestQueue_GlobalStats(t *testing.T) {
	q := newTestQueue(DefaultConfig())
	defer q.Close()

	for _, lane := range []string{"a", "b"} {
		h, err := q.Enqueue(lane, func(ctx context.Context) (interface{}, error) { return nil, nil }, nil)
		require.NoError(t, err)
		_, err = h.Wait(context.Background())
		require.NoError(t, err)
	}
	require.True(t, q.WaitIdle(time.Second))

	global := q.GetGlobalStats()
	assert.Equal(t, 2, global.Lanes)
	assert.Equal(t, 2, global.TotalTasks)
	assert.Equal(t, 2, global.CompletedTasks)
	assert.Equal(t, 0, global.FailedTasks)
	assert.Equal(t, 0, global.PendingTasks)
	assert.Equal(t, 0, global.RunningTasks)
}

func TestQueue_Introspection(t *testing.T) {
	q := newTestQueue(DefaultConfig())
	defer q.Close()

	h, err := q.Enqueue("session:abc", func(ctx context.Context) (interface{}, error) { return nil, nil }, nil)
	require.NoError(t, err)
	_, err = h.Wait(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"session:abc"}, q.ListLanes())

	info, ok := q.GetLane("session:abc")
	require.True(t, ok)
	assert.Equal(t, "session:abc", info.ID)
	assert.False(t, info.Paused)

	_, ok = q.GetLane("missing")
	assert.False(t, ok)

	status := q.FormatStatus()
	assert.True(t, strings.HasPrefix(status, "lane queue: 1 lanes"))
	assert.Contains(t, status, "session:abc")
	assert.Contains(t, status, "active")
}

func TestQueue_RemoveLane(t *testing.T) {
	q := newTestQueue(DefaultConfig())
	defer q.Close()

	h, err := q.Enqueue("gone", func(ctx context.Context) (interface{}, error) { return nil, nil }, nil)
	require.NoError(t, err)
	_, err = h.Wait(context.Background())
	require.NoError(t, err)

	assert.True(t, q.RemoveLane("gone"))
	assert.False(t, q.RemoveLane("gone"))
	_, ok := q.GetStats("gone")
	assert.False(t, ok)
}

func TestQueue_Clear(t *testing.T) {
	q := newTestQueue(DefaultConfig())
	defer q.Close()

	for _, lane := range []string{"a", "b", "c"} {
		h, err := q.Enqueue(lane, func(ctx context.Context) (interface{}, error) { return nil, nil }, nil)
		require.NoError(t, err)
		_, _ = h.Wait(context.Background())
	}

	q.Clear()
	assert.Empty(t, q.ListLanes())
	assert.Equal(t, 0, q.GetGlobalStats().Lanes)
}

func TestQueue_EnqueueAfterClose(t *testing.T) {
	q := newTestQueue(DefaultConfig())
	require.NoError(t, q.Close())

	_, err := q.Enqueue("test", func(ctx context.Context) (interface{}, error) { return nil, nil }, nil)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestQueue_HandleWaitRespectsContext(t *testing.T) {
	q := newTestQueue(DefaultConfig())
	defer q.Close()

	release := make(chan struct{})
	handle, err := q.Enqueue("slow", func(ctx context.Context) (interface{}, error) {
		<-release
		return nil, nil
	}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = handle.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// Abandoning the wait does not affect the task.
	close(release)
	_, err = handle.Wait(context.Background())
	assert.NoError(t, err)
}

func TestQueue_ConcurrentEnqueue(t *testing.T) {
	q := newTestQueue(DefaultConfig())
	defer q.Close()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h, err := q.Enqueue("shared", func(ctx context.Context) (interface{}, error) {
				return nil, nil
			}, nil)
			if assert.NoError(t, err) {
				_, _ = h.Wait(context.Background())
			}
		}()
	}
	wg.Wait()

	require.True(t, q.WaitIdle(time.Second))
	stats, ok := q.GetStats("shared")
	require.True(t, ok)
	assert.Equal(t, 20, stats.CompletedTasks)
}

func TestDefault_SingletonLifecycle(t *testing.T) {
	t.Cleanup(ResetDefault)
	ResetDefault()

	q1 := Default(Config{MaxPending: 7, MetricsEnabled: false})
	q2 := Default()
	assert.Same(t, q1, q2)
	assert.Equal(t, 7, q1.Config().MaxPending)

	ResetDefault()
	q3 := Default(Config{MetricsEnabled: false})
	assert.NotSame(t, q1, q3)
	assert.Equal(t, DefaultConfig().MaxPending, q3.Config().MaxPending)
}
