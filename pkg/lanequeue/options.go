package lanequeue

import "time"

// Config holds queue-level defaults and limits
type Config struct {
	// MaxParallel caps concurrently running parallel tasks per lane.
	MaxParallel int
	// DefaultTimeout bounds a single execution attempt.
	DefaultTimeout time.Duration
	// MaxPending caps a lane's pending queue; enqueue fails synchronously above it.
	MaxPending int
	// DefaultRetries is the retry count applied when TaskOptions leaves it zero.
	DefaultRetries int
	// DefaultRetryDelay is the wait between attempts for idempotent tasks.
	DefaultRetryDelay time.Duration
	// MetricsEnabled gates Prometheus recording.
	MetricsEnabled bool
}

// DefaultConfig returns the standard queue configuration
func DefaultConfig() Config {
	return Config{
		MaxParallel:       3,
		DefaultTimeout:    60 * time.Second,
		MaxPending:        100,
		DefaultRetries:    0,
		DefaultRetryDelay: 1 * time.Second,
		MetricsEnabled:    true,
	}
}

// withDefaults fills zero-valued limits so a partially specified Config is usable
func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.MaxParallel <= 0 {
		c.MaxParallel = def.MaxParallel
	}
	if c.DefaultTimeout <= 0 {
		c.DefaultTimeout = def.DefaultTimeout
	}
	if c.MaxPending <= 0 {
		c.MaxPending = def.MaxPending
	}
	if c.DefaultRetries < 0 {
		c.DefaultRetries = 0
	}
	if c.DefaultRetryDelay <= 0 {
		c.DefaultRetryDelay = def.DefaultRetryDelay
	}
	return c
}

// TaskOptions provides per-task configuration, resolved against Config at enqueue time
type TaskOptions struct {
	// Parallel marks the task safe to run alongside other parallel tasks in
	// its lane. Default false: the task runs alone in the lane.
	Parallel bool
	// Priority orders pending tasks; higher runs first, FIFO among equals.
	Priority int
	// Timeout bounds one execution attempt; zero means Config.DefaultTimeout.
	Timeout time.Duration
	// Category is a free-form tag carried for logging and introspection.
	Category string
	// Idempotent marks the work safe to re-invoke from scratch. Retries are
	// attempted only when this is set, regardless of Retries.
	Idempotent bool
	// Retries bounds re-invocations after the first attempt; zero means
	// Config.DefaultRetries.
	Retries int
	// RetryDelay is the wait before a retry; zero means Config.DefaultRetryDelay.
	RetryDelay time.Duration
}

// resolveOptions merges caller options with queue defaults
func (c Config) resolveOptions(opts *TaskOptions) TaskOptions {
	resolved := TaskOptions{}
	if opts != nil {
		resolved = *opts
	}
	if resolved.Timeout <= 0 {
		resolved.Timeout = c.DefaultTimeout
	}
	if resolved.Retries <= 0 {
		resolved.Retries = c.DefaultRetries
	}
	if resolved.RetryDelay <= 0 {
		resolved.RetryDelay = c.DefaultRetryDelay
	}
	return resolved
}
