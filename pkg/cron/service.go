package cron

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/rizaldy/kanal/internal/observability"
	"github.com/rizaldy/kanal/pkg/lanequeue"
)

// JobRunner executes a job's work when it fires. It runs inside the lane
// queue, so it inherits the target lane's ordering guarantees.
type JobRunner func(ctx context.Context, job Job) (interface{}, error)

// ServiceOptions configures the cron service
type ServiceOptions struct {
	StorePath string
	Queue     *lanequeue.Queue
	Runner    JobRunner
}

// Service manages job scheduling: one timer per enabled job, firing into the
// lane queue and rescheduling after the run settles.
type Service struct {
	jobs    map[string]*Job
	timers  map[string]*time.Timer
	options ServiceOptions
	mu      sync.RWMutex
	stopped bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewService creates a new cron service and schedules persisted jobs
func NewService(opts ServiceOptions) (*Service, error) {
	if opts.StorePath == "" {
		return nil, fmt.Errorf("store path is required")
	}
	if opts.Queue == nil {
		return nil, fmt.Errorf("lane queue is required")
	}
	if opts.Runner == nil {
		return nil, fmt.Errorf("job runner is required")
	}

	ctx, cancel := context.WithCancel(context.Background())

	s := &Service{
		jobs:    make(map[string]*Job),
		timers:  make(map[string]*time.Timer),
		options: opts,
		ctx:     ctx,
		cancel:  cancel,
	}

	if err := s.loadJobs(); err != nil {
		log.Warn().Err(err).Msg("Failed to load jobs, starting with empty registry")
	}

	s.mu.Lock()
	for _, job := range s.jobs {
		if job.Enabled {
			s.scheduleJobLocked(job)
		}
	}
	jobCount := len(s.jobs)
	s.mu.Unlock()

	log.Info().Int("job_count", jobCount).Msg("Cron service initialized")
	return s, nil
}

// AddJob creates a new job and schedules it if enabled
func (s *Service) AddJob(params AddParams) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return nil, fmt.Errorf("service is stopped")
	}
	if params.Name == "" {
		return nil, fmt.Errorf("job name is required")
	}
	if params.Lane == "" {
		return nil, fmt.Errorf("job lane is required")
	}

	nextRunAtMs, err := CalculateNextRun(params.Schedule)
	if err != nil {
		return nil, fmt.Errorf("invalid schedule: %w", err)
	}

	now := Now()
	job := &Job{
		ID:             uuid.New().String(),
		Name:           params.Name,
		Lane:           params.Lane,
		Enabled:        params.Enabled,
		DeleteAfterRun: params.DeleteAfterRun,
		CreatedAtMs:    now,
		UpdatedAtMs:    now,
		Schedule:       params.Schedule,
		Options:        params.Options,
		State: JobState{
			NextRunAtMs: Int64Ptr(nextRunAtMs),
		},
	}

	s.jobs[job.ID] = job

	if err := s.persistLocked(); err != nil {
		delete(s.jobs, job.ID)
		return nil, fmt.Errorf("failed to persist job: %w", err)
	}

	if job.Enabled {
		s.scheduleJobLocked(job)
	}

	log.Info().
		Str("job_id", job.ID).
		Str("name", job.Name).
		Str("lane", job.Lane).
		Bool("enabled", job.Enabled).
		Msg("Job created")

	copied := *job
	return &copied, nil
}

// RemoveJob deletes a job and cancels its timer
func (s *Service) RemoveJob(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return fmt.Errorf("service is stopped")
	}
	if _, exists := s.jobs[id]; !exists {
		return fmt.Errorf("job not found: %s", id)
	}

	s.cancelJobLocked(id)
	delete(s.jobs, id)

	if err := s.persistLocked(); err != nil {
		return fmt.Errorf("failed to persist job removal: %w", err)
	}

	log.Info().Str("job_id", id).Msg("Job removed")
	return nil
}

// SetEnabled toggles a job; disabling cancels its timer, enabling
// recalculates the next run and schedules it.
func (s *Service) SetEnabled(id string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return fmt.Errorf("service is stopped")
	}
	job, exists := s.jobs[id]
	if !exists {
		return fmt.Errorf("job not found: %s", id)
	}
	if job.Enabled == enabled {
		return nil
	}

	job.Enabled = enabled
	job.UpdatedAtMs = Now()

	s.cancelJobLocked(id)
	if enabled {
		nextRunAtMs, err := CalculateNextRun(job.Schedule)
		if err != nil {
			return fmt.Errorf("invalid schedule: %w", err)
		}
		job.State.NextRunAtMs = Int64Ptr(nextRunAtMs)
		s.scheduleJobLocked(job)
	} else {
		job.State.NextRunAtMs = nil
	}

	if err := s.persistLocked(); err != nil {
		return fmt.Errorf("failed to persist job: %w", err)
	}

	log.Info().Str("job_id", id).Bool("enabled", enabled).Msg("Job toggled")
	return nil
}

// GetJob returns a copy of the job
func (s *Service) GetJob(id string) (*Job, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, exists := s.jobs[id]
	if !exists {
		return nil, false
	}
	copied := *job
	return &copied, true
}

// ListJobs returns copies of all jobs
func (s *Service) ListJobs() []Job {
	s.mu.RLock()
	defer s.mu.RUnlock()

	jobs := make([]Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		jobs = append(jobs, *job)
	}
	return jobs
}

// Stop cancels all timers and prevents further mutation
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}
	s.stopped = true
	s.cancel()

	for id, timer := range s.timers {
		timer.Stop()
		delete(s.timers, id)
	}

	log.Info().Msg("Cron service stopped")
}

// scheduleJobLocked arms the timer for a job's next run. Caller holds s.mu.
func (s *Service) scheduleJobLocked(job *Job) {
	if job.State.NextRunAtMs == nil {
		return
	}

	delay := time.Duration(*job.State.NextRunAtMs-Now()) * time.Millisecond
	if delay < 0 {
		delay = 0
	}

	jobID := job.ID
	s.timers[jobID] = time.AfterFunc(delay, func() {
		s.fire(jobID)
	})

	log.Debug().
		Str("job_id", jobID).
		Dur("delay", delay).
		Msg("Job scheduled")
}

// cancelJobLocked stops and forgets the job's timer. Caller holds s.mu.
func (s *Service) cancelJobLocked(id string) {
	if timer, exists := s.timers[id]; exists {
		timer.Stop()
		delete(s.timers, id)
	}
}

// fire enqueues one run of the job into its lane and reschedules afterwards
func (s *Service) fire(jobID string) {
	s.mu.RLock()
	job, exists := s.jobs[jobID]
	if !exists || s.stopped || !job.Enabled {
		s.mu.RUnlock()
		return
	}
	snapshot := *job
	s.mu.RUnlock()

	opts := &lanequeue.TaskOptions{
		Parallel:   snapshot.Options.Parallel,
		Priority:   snapshot.Options.Priority,
		Timeout:    time.Duration(snapshot.Options.TimeoutMs) * time.Millisecond,
		Category:   "cron:" + snapshot.Name,
		Idempotent: snapshot.Options.Idempotent,
		Retries:    snapshot.Options.Retries,
	}

	startedAt := Now()
	handle, err := s.options.Queue.EnqueueWithContext(s.ctx, snapshot.Lane, func(ctx context.Context) (interface{}, error) {
		return s.options.Runner(ctx, snapshot)
	}, opts)
	if err != nil {
		// Lane is saturated or the queue is closed; count it as a failed run
		// and let the next scheduled fire try again.
		log.Warn().Err(err).Str("job_id", jobID).Str("lane", snapshot.Lane).Msg("Job enqueue rejected")
		s.recordRun(jobID, startedAt, 0, err)
		s.reschedule(jobID)
		return
	}

	go func() {
		_, runErr := handle.Wait(s.ctx)
		durationMs := Now() - startedAt
		s.recordRun(jobID, startedAt, durationMs, runErr)
		s.reschedule(jobID)
	}()
}

// recordRun folds a run outcome into the job state
func (s *Service) recordRun(jobID string, startedAt, durationMs int64, runErr error) {
	observability.RecordCronRun(jobID, runErr == nil)

	s.mu.Lock()
	defer s.mu.Unlock()

	job, exists := s.jobs[jobID]
	if !exists {
		return
	}

	job.State.LastRunAtMs = Int64Ptr(startedAt)
	job.State.LastDurationMs = Int64Ptr(durationMs)
	if runErr != nil {
		job.State.LastStatus = "error"
		job.State.LastError = runErr.Error()
		job.State.ConsecutiveErrors++
		log.Warn().Err(runErr).Str("job_id", jobID).Msg("Job run failed")
	} else {
		job.State.LastStatus = "ok"
		job.State.LastError = ""
		job.State.ConsecutiveErrors = 0
	}

	if err := s.persistLocked(); err != nil {
		log.Warn().Err(err).Str("job_id", jobID).Msg("Failed to persist job state")
	}
}

// reschedule computes the next run and re-arms or retires the job
func (s *Service) reschedule(jobID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}
	job, exists := s.jobs[jobID]
	if !exists || !job.Enabled {
		return
	}

	if job.DeleteAfterRun || job.Schedule.Kind == ScheduleKindAt {
		s.cancelJobLocked(jobID)
		delete(s.jobs, jobID)
		if err := s.persistLocked(); err != nil {
			log.Warn().Err(err).Str("job_id", jobID).Msg("Failed to persist job retirement")
		}
		log.Debug().Str("job_id", jobID).Msg("One-shot job retired")
		return
	}

	nextRunAtMs, err := CalculateNextRun(job.Schedule)
	if err != nil {
		log.Warn().Err(err).Str("job_id", jobID).Msg("Failed to compute next run, disabling job")
		job.Enabled = false
		job.State.NextRunAtMs = nil
		return
	}

	job.State.NextRunAtMs = Int64Ptr(nextRunAtMs)
	s.scheduleJobLocked(job)
}

// loadJobs reads the persisted job registry
func (s *Service) loadJobs() error {
	data, err := os.ReadFile(s.options.StorePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read job store: %w", err)
	}

	var jobs []*Job
	if err := json.Unmarshal(data, &jobs); err != nil {
		return fmt.Errorf("failed to parse job store: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, job := range jobs {
		// Stale next-run timestamps are recomputed so a long-stopped daemon
		// does not fire a burst of catch-up runs.
		if job.Enabled {
			if next, err := CalculateNextRun(job.Schedule); err == nil {
				job.State.NextRunAtMs = Int64Ptr(next)
			}
		}
		s.jobs[job.ID] = job
	}
	return nil
}

// persistLocked writes the job registry to disk. Caller holds s.mu.
func (s *Service) persistLocked() error {
	jobs := make([]*Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		jobs = append(jobs, job)
	}

	data, err := json.MarshalIndent(jobs, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal jobs: %w", err)
	}

	dir := filepath.Dir(s.options.StorePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create store directory: %w", err)
	}

	tmp := s.options.StorePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write job store: %w", err)
	}
	return os.Rename(tmp, s.options.StorePath)
}
