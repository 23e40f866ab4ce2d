package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWatcher_RequiresArguments(t *testing.T) {
	_, err := NewWatcher("", 0, func(cfg *Config) {})
	assert.Error(t, err)

	_, err = NewWatcher("/tmp/kanal.json", 0, nil)
	assert.Error(t, err)
}

func TestWatcher_ReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "kanal.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"queue": {"max_parallel": 3}}`), 0644))

	reloaded := make(chan *Config, 4)
	w, err := NewWatcher(path, 50*time.Millisecond, func(cfg *Config) {
		reloaded <- cfg
	})
	require.NoError(t, err)
	require.NoError(t, w.Start())
	defer w.Stop()

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte(`{"queue": {"max_parallel": 9}}`), 0644))

	select {
	case cfg := <-reloaded:
		assert.Equal(t, 9, cfg.Queue.MaxParallel)
	case <-time.After(3 * time.Second):
		t.Fatal("expected a reload after the config file changed")
	}
}

func TestWatcher_IgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "kanal.json")
	require.NoError(t, os.WriteFile(path, []byte(`{}`), 0644))

	reloaded := make(chan *Config, 1)
	w, err := NewWatcher(path, 20*time.Millisecond, func(cfg *Config) {
		reloaded <- cfg
	})
	require.NoError(t, err)
	require.NoError(t, w.Start())
	defer w.Stop()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "unrelated.txt"), []byte("x"), 0644))

	select {
	case <-reloaded:
		t.Fatal("unrelated file must not trigger a reload")
	case <-time.After(300 * time.Millisecond):
	}
}

func TestWatcher_KeepsRunningOnInvalidReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "kanal.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"queue": {"max_parallel": 3}}`), 0644))

	reloaded := make(chan *Config, 4)
	w, err := NewWatcher(path, 20*time.Millisecond, func(cfg *Config) {
		reloaded <- cfg
	})
	require.NoError(t, err)
	require.NoError(t, w.Start())
	defer w.Stop()

	time.Sleep(50 * time.Millisecond)

	// A broken write is ignored; the next good write still reloads.
	require.NoError(t, os.WriteFile(path, []byte(`{broken`), 0644))
	time.Sleep(150 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte(`{"queue": {"max_parallel": 4}}`), 0644))

	deadline := time.After(3 * time.Second)
	for {
		select {
		case cfg := <-reloaded:
			if cfg.Queue.MaxParallel == 4 {
				return
			}
		case <-deadline:
			t.Fatal("expected a reload after the config file was fixed")
		}
	}
}
