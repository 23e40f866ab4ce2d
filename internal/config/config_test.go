package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	assert.NoError(t, cfg.Validate())
	assert.Equal(t, 3, cfg.Queue.MaxParallel)
	assert.Equal(t, int64(60000), cfg.Queue.DefaultTimeoutMs)
	assert.Equal(t, 100, cfg.Queue.MaxPending)
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"zero max parallel", func(c *Config) { c.Queue.MaxParallel = 0 }},
		{"zero max pending", func(c *Config) { c.Queue.MaxPending = 0 }},
		{"zero timeout", func(c *Config) { c.Queue.DefaultTimeoutMs = 0 }},
		{"negative retries", func(c *Config) { c.Queue.DefaultRetries = -1 }},
		{"negative retry delay", func(c *Config) { c.Queue.DefaultRetryDelayMs = -1 }},
		{"metrics without listen", func(c *Config) { c.Metrics.Enabled = true; c.Metrics.Listen = "" }},
		{"cron without store", func(c *Config) { c.Cron.Enabled = true; c.Cron.StorePath = "" }},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestQueueConfig_LaneQueue(t *testing.T) {
	qc := QueueConfig{
		MaxParallel:         5,
		DefaultTimeoutMs:    1500,
		MaxPending:          10,
		DefaultRetries:      2,
		DefaultRetryDelayMs: 250,
		MetricsEnabled:      true,
	}

	lq := qc.LaneQueue()
	require.Equal(t, 5, lq.MaxParallel)
	assert.Equal(t, 1500*time.Millisecond, lq.DefaultTimeout)
	assert.Equal(t, 10, lq.MaxPending)
	assert.Equal(t, 2, lq.DefaultRetries)
	assert.Equal(t, 250*time.Millisecond, lq.DefaultRetryDelay)
	assert.True(t, lq.MetricsEnabled)
}
