// Package cron schedules recurring jobs and feeds them into the lane queue.
// Each job targets a lane; the queue's ordering rules apply to cron work the
// same way they apply to interactive session work.
package cron

import "time"

// ScheduleKind represents the type of schedule
type ScheduleKind string

const (
	ScheduleKindAt    ScheduleKind = "at"
	ScheduleKindEvery ScheduleKind = "every"
	ScheduleKindCron  ScheduleKind = "cron"
)

// Schedule represents a time specification for job execution
type Schedule struct {
	Kind ScheduleKind `json:"kind"`

	// For "at" schedule
	At string `json:"at,omitempty"` // RFC3339 timestamp

	// For "every" schedule
	EveryMs  int64  `json:"everyMs,omitempty"`  // Interval in milliseconds
	AnchorMs *int64 `json:"anchorMs,omitempty"` // Optional anchor point

	// For "cron" schedule
	Expr string `json:"expr,omitempty"` // Cron expression (5-field format)
	TZ   string `json:"tz,omitempty"`   // Optional timezone
}

// RunOptions maps onto the lane queue's task options for a fired job
type RunOptions struct {
	Parallel   bool  `json:"parallel,omitempty"`
	Priority   int   `json:"priority,omitempty"`
	TimeoutMs  int64 `json:"timeoutMs,omitempty"`
	Idempotent bool  `json:"idempotent,omitempty"`
	Retries    int   `json:"retries,omitempty"`
}

// JobState tracks runtime state of a job
type JobState struct {
	NextRunAtMs       *int64 `json:"nextRunAtMs,omitempty"`
	LastRunAtMs       *int64 `json:"lastRunAtMs,omitempty"`
	LastStatus        string `json:"lastStatus,omitempty"` // "ok" or "error"
	LastError         string `json:"lastError,omitempty"`
	LastDurationMs    *int64 `json:"lastDurationMs,omitempty"`
	ConsecutiveErrors int    `json:"consecutiveErrors,omitempty"`
}

// Job is a persisted recurring unit of work targeting one lane
type Job struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	Lane           string     `json:"lane"`
	Enabled        bool       `json:"enabled"`
	DeleteAfterRun bool       `json:"deleteAfterRun,omitempty"`
	CreatedAtMs    int64      `json:"createdAtMs"`
	UpdatedAtMs    int64      `json:"updatedAtMs"`
	Schedule       Schedule   `json:"schedule"`
	Options        RunOptions `json:"options"`
	State          JobState   `json:"state"`
}

// AddParams describes a new job
type AddParams struct {
	Name           string
	Lane           string
	Enabled        bool
	DeleteAfterRun bool
	Schedule       Schedule
	Options        RunOptions
}

// Now returns the current time in unix milliseconds
func Now() int64 {
	return time.Now().UnixMilli()
}

// Int64Ptr returns a pointer to the given value
func Int64Ptr(v int64) *int64 {
	return &v
}
