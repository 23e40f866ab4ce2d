package config

import (
	"fmt"
	"time"

	"github.com/rizaldy/kanal/pkg/lanequeue"
)

// Config represents the main kanal configuration
type Config struct {
	// Queue holds lane queue defaults and limits
	Queue QueueConfig `json:"queue" mapstructure:"queue"`

	// Cron configures the recurring job service
	Cron CronConfig `json:"cron" mapstructure:"cron"`

	// Logging configuration
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`

	// Metrics endpoint configuration
	Metrics MetricsConfig `json:"metrics" mapstructure:"metrics"`

	// Data directory
	DataDir string `json:"data_dir" mapstructure:"data_dir"`
}

// QueueConfig holds lane queue settings
type QueueConfig struct {
	MaxParallel         int   `json:"max_parallel" mapstructure:"max_parallel"`
	DefaultTimeoutMs    int64 `json:"default_timeout_ms" mapstructure:"default_timeout_ms"`
	MaxPending          int   `json:"max_pending" mapstructure:"max_pending"`
	DefaultRetries      int   `json:"default_retries" mapstructure:"default_retries"`
	DefaultRetryDelayMs int64 `json:"default_retry_delay_ms" mapstructure:"default_retry_delay_ms"`
	MetricsEnabled      bool  `json:"metrics_enabled" mapstructure:"metrics_enabled"`
}

// CronConfig holds recurring job service settings
type CronConfig struct {
	Enabled   bool   `json:"enabled" mapstructure:"enabled"`
	StorePath string `json:"store_path" mapstructure:"store_path"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level   string `json:"level" mapstructure:"level"`
	File    string `json:"file" mapstructure:"file"`
	Console bool   `json:"console" mapstructure:"console"`
	Pretty  bool   `json:"pretty" mapstructure:"pretty"`
}

// MetricsConfig holds the Prometheus endpoint settings
type MetricsConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Listen  string `json:"listen" mapstructure:"listen"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Queue: QueueConfig{
			MaxParallel:         3,
			DefaultTimeoutMs:    60000,
			MaxPending:          100,
			DefaultRetries:      0,
			DefaultRetryDelayMs: 1000,
			MetricsEnabled:      true,
		},
		Cron: CronConfig{
			Enabled: false,
		},
		Logging: LoggingConfig{
			Level:   "info",
			Console: true,
			Pretty:  false,
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Listen:  "127.0.0.1:9091",
		},
	}
}

// Validate checks the configuration for inconsistent values
func (c *Config) Validate() error {
	if c.Queue.MaxParallel < 1 {
		return fmt.Errorf("queue.max_parallel must be at least 1, got %d", c.Queue.MaxParallel)
	}
	if c.Queue.MaxPending < 1 {
		return fmt.Errorf("queue.max_pending must be at least 1, got %d", c.Queue.MaxPending)
	}
	if c.Queue.DefaultTimeoutMs <= 0 {
		return fmt.Errorf("queue.default_timeout_ms must be positive, got %d", c.Queue.DefaultTimeoutMs)
	}
	if c.Queue.DefaultRetries < 0 {
		return fmt.Errorf("queue.default_retries cannot be negative, got %d", c.Queue.DefaultRetries)
	}
	if c.Queue.DefaultRetryDelayMs < 0 {
		return fmt.Errorf("queue.default_retry_delay_ms cannot be negative, got %d", c.Queue.DefaultRetryDelayMs)
	}
	if c.Metrics.Enabled && c.Metrics.Listen == "" {
		return fmt.Errorf("metrics.listen is required when metrics are enabled")
	}
	if c.Cron.Enabled && c.Cron.StorePath == "" {
		return fmt.Errorf("cron.store_path is required when cron is enabled")
	}
	switch c.Logging.Level {
	case "", "trace", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown logging level %q", c.Logging.Level)
	}
	return nil
}

// LaneQueue converts the queue section into a lanequeue.Config
func (c *QueueConfig) LaneQueue() lanequeue.Config {
	return lanequeue.Config{
		MaxParallel:       c.MaxParallel,
		DefaultTimeout:    time.Duration(c.DefaultTimeoutMs) * time.Millisecond,
		MaxPending:        c.MaxPending,
		DefaultRetries:    c.DefaultRetries,
		DefaultRetryDelay: time.Duration(c.DefaultRetryDelayMs) * time.Millisecond,
		MetricsEnabled:    c.MetricsEnabled,
	}
}
