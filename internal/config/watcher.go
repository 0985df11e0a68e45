package config

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/ollamatray-io/ollamatray/internal/models"
)

// debounceDelay coalesces editor write bursts into a single reload.
const debounceDelay = 100 * time.Millisecond

// Watcher watches the settings file and emits reloaded settings.
type Watcher struct {
	fsWatcher  *fsnotify.Watcher
	path       string
	eventsChan chan *models.Settings
	done       chan struct{}
	log        *zap.Logger

	debounce   map[string]*time.Timer
	debounceMu sync.Mutex
}

// NewWatcher creates a settings file watcher.
func NewWatcher(log *zap.Logger) (*Watcher, error) {
	path, err := SettingsFile()
	if err != nil {
		return nil, err
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &Watcher{
		fsWatcher:  fsWatcher,
		path:       path,
		eventsChan: make(chan *models.Settings, 4),
		done:       make(chan struct{}),
		log:        log,
		debounce:   make(map[string]*time.Timer),
	}, nil
}

// Events returns the channel for receiving reloaded settings.
func (w *Watcher) Events() <-chan *models.Settings {
	return w.eventsChan
}

// Start watches the settings file's directory. The directory is watched
// rather than the file itself so atomic replaces (write tmp, rename over
// target) keep being observed.
func (w *Watcher) Start() error {
	dir := filepath.Dir(w.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	if err := w.fsWatcher.Add(dir); err != nil {
		return err
	}

	go w.processEvents()

	return nil
}

// Stop stops the watcher.
func (w *Watcher) Stop() {
	close(w.done)
	_ = w.fsWatcher.Close()
}

// processEvents processes file system events.
func (w *Watcher) processEvents() {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.log.Warn("settings watcher error", zap.Error(err))
		}
	}
}

// handleEvent processes a single file system event.
func (w *Watcher) handleEvent(event fsnotify.Event) {
	if filepath.Base(event.Name) != filepath.Base(w.path) {
		return
	}

	// Accept write, create, and rename events. Rename matters: atomic
	// writes (write tmp, rename to target) produce Rename on the target.
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
		return
	}

	w.debounceEvent(event.Name, w.reload)
}

// debounceEvent debounces events for the same path.
func (w *Watcher) debounceEvent(path string, fn func()) {
	w.debounceMu.Lock()
	defer w.debounceMu.Unlock()

	if timer, ok := w.debounce[path]; ok {
		timer.Stop()
	}

	w.debounce[path] = time.AfterFunc(debounceDelay, func() {
		w.debounceMu.Lock()
		delete(w.debounce, path)
		w.debounceMu.Unlock()
		fn()
	})
}

// reload loads the settings file and emits the result.
func (w *Watcher) reload() {
	settings, err := LoadSettings()
	if err != nil {
		w.log.Warn("failed to reload settings, keeping previous", zap.Error(err))
		return
	}

	w.log.Info("settings reloaded",
		zap.Int("interval_ms", settings.Poll.IntervalMS),
		zap.String("unit", settings.Service.Unit))

	select {
	case w.eventsChan <- settings:
	case <-w.done:
	default:
		w.log.Debug("settings event dropped, consumer not draining")
	}
}
