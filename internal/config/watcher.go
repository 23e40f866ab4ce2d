package config

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// ReloadCallback is called with the freshly loaded config after the file
// changes and settles.
type ReloadCallback func(cfg *Config)

// Watcher monitors the config file and reloads it on change. Reloads are
// debounced so editors that write in multiple steps trigger a single reload.
type Watcher struct {
	watcher    *fsnotify.Watcher
	configPath string
	debounce   time.Duration
	onReload   ReloadCallback
	done       chan struct{}
	timer      *time.Timer
	timerMu    sync.Mutex
	stopOnce   sync.Once
}

// NewWatcher creates a config file watcher
func NewWatcher(configPath string, debounce time.Duration, onReload ReloadCallback) (*Watcher, error) {
	if configPath == "" {
		return nil, fmt.Errorf("config path is required")
	}
	if onReload == nil {
		return nil, fmt.Errorf("reload callback is required")
	}
	if debounce <= 0 {
		debounce = 250 * time.Millisecond
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	return &Watcher{
		watcher:    fw,
		configPath: configPath,
		debounce:   debounce,
		onReload:   onReload,
		done:       make(chan struct{}),
	}, nil
}

// Start begins watching the config file's directory. Watching the directory
// instead of the file survives rename-then-replace writes.
func (w *Watcher) Start() error {
	dir := filepath.Dir(w.configPath)
	if err := w.watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch config directory: %w", err)
	}

	go w.loop()

	log.Debug().Str("path", w.configPath).Msg("Config watcher started")
	return nil
}

// Stop stops the watcher
func (w *Watcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.done)
		err = w.watcher.Close()
	})
	return err
}

func (w *Watcher) loop() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.configPath) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.scheduleReload()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Warn().Err(err).Msg("Config watcher error")

		case <-w.done:
			return
		}
	}
}

// scheduleReload resets the debounce timer
func (w *Watcher) scheduleReload() {
	w.timerMu.Lock()
	defer w.timerMu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.reload)
}

func (w *Watcher) reload() {
	select {
	case <-w.done:
		return
	default:
	}

	cfg, err := NewLoader(w.configPath).Load()
	if err != nil {
		log.Warn().Err(err).Str("path", w.configPath).Msg("Config reload failed, keeping previous config")
		return
	}

	log.Info().Str("path", w.configPath).Msg("Config reloaded")
	w.onReload(cfg)
}
