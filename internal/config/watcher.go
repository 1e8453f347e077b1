package config

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/anstrom/scanvault/internal/logging"
)

// DefaultReloadDelay is how long the watcher waits for writes to settle.
const DefaultReloadDelay = 500 * time.Millisecond

// LoadFunc loads and validates the configuration at path.
type LoadFunc func(path string) (*Config, error)

// ChangeCallback is called with the previous and the reloaded configuration.
type ChangeCallback func(oldConfig, newConfig *Config) error

// Watcher reloads the configuration file when it changes.
type Watcher struct {
	path        string
	watcher     *fsnotify.Watcher
	reloadDelay time.Duration
	load        LoadFunc

	mu        sync.RWMutex
	config    *Config
	callbacks []ChangeCallback
	timer     *time.Timer

	done chan struct{}
	wg   sync.WaitGroup
}

// NewWatcher watches path, starting from the already loaded current.
// The parent directory is watched so editors that replace the file by
// renaming a temporary one are noticed.
func NewWatcher(path string, current *Config) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		_ = fw.Close()
		return nil, fmt.Errorf("failed to resolve config path: %w", err)
	}
	if err := fw.Add(filepath.Dir(abs)); err != nil {
		_ = fw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", filepath.Dir(abs), err)
	}

	return &Watcher{
		path:        abs,
		watcher:     fw,
		reloadDelay: DefaultReloadDelay,
		load:        Load,
		config:      current,
		done:        make(chan struct{}),
	}, nil
}

// SetLoader replaces Load as the reload function. Callers that layer
// environment or flag overrides over the file pass their own loader so a
// reload sees the same configuration as startup. Call before Start.
func (w *Watcher) SetLoader(load LoadFunc) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.load = load
}

// OnChange registers a callback.
func (w *Watcher) OnChange(callback ChangeCallback) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks = append(w.callbacks, callback)
}

// Config returns the current configuration.
func (w *Watcher) Config() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.config
}

// Start begins watching in the background.
func (w *Watcher) Start() {
	w.wg.Add(1)
	go w.loop()
}

// Stop ends watching and waits for the loop to exit.
func (w *Watcher) Stop() error {
	close(w.done)
	err := w.watcher.Close()
	w.wg.Wait()

	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()
	return err
}

func (w *Watcher) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				w.schedule()
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logging.Warn("Config watcher error", "error", err)
		}
	}
}

// schedule debounces bursts of events into a single reload.
func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.reloadDelay, func() {
		if err := w.reload(); err != nil {
			logging.Error("Failed to reload config", "path", w.path, "error", err)
		}
	})
}

// reload loads the file and hands it to the callbacks. An invalid file
// keeps the previous configuration.
func (w *Watcher) reload() error {
	w.mu.RLock()
	load := w.load
	w.mu.RUnlock()

	newConfig, err := load(w.path)
	if err != nil {
		return err
	}

	w.mu.RLock()
	oldConfig := w.config
	callbacks := append([]ChangeCallback(nil), w.callbacks...)
	w.mu.RUnlock()

	for _, callback := range callbacks {
		if err := callback(oldConfig, newConfig); err != nil {
			return fmt.Errorf("config change callback failed: %w", err)
		}
	}

	w.mu.Lock()
	w.config = newConfig
	w.mu.Unlock()

	logging.Info("Config reloaded", "path", w.path)
	return nil
}

// LogLevelCallback applies a changed logging level to logger.
func LogLevelCallback(logger *logging.Logger) ChangeCallback {
	return func(oldConfig, newConfig *Config) error {
		if oldConfig != nil && oldConfig.Logging.Level == newConfig.Logging.Level {
			return nil
		}
		logger.SetLevel(newConfig.Logging.Level)
		logging.Info("Log level changed", "level", newConfig.Logging.Level)
		return nil
	}
}
