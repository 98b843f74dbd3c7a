package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/cjeanneret/SurveyCam/internal/debug"
)

// Watcher reloads a configuration file when it changes on disk and hands
// the fresh Config to registered handlers. The parent directory is watched
// so editors that replace the file by rename are followed too.
type Watcher struct {
	path     string
	debounce time.Duration
	onError  func(error)

	mu       sync.RWMutex
	handlers []func(*Config)

	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewWatcher creates a watcher for path. A debounce <= 0 uses 500ms.
func NewWatcher(path string, debounce time.Duration) *Watcher {
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}
	return &Watcher{path: filepath.Clean(path), debounce: debounce, done: make(chan struct{})}
}

// OnReload registers a handler called with every successfully loaded config.
func (w *Watcher) OnReload(handler func(*Config)) {
	w.mu.Lock()
	w.handlers = append(w.handlers, handler)
	w.mu.Unlock()
}

// OnError registers a callback for reload failures (invalid file, etc.).
func (w *Watcher) OnError(handler func(error)) {
	w.mu.Lock()
	w.onError = handler
	w.mu.Unlock()
}

// Start begins watching until ctx is done or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config watcher: %w", err)
	}
	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		fw.Close()
		return fmt.Errorf("config watcher: %w", err)
	}
	w.watcher = fw

	debug.Verbose("Config watcher started on %s (debounce %v)", w.path, w.debounce)
	go w.watch(ctx)
	return nil
}

// Stop stops watching and waits for the watch loop to exit.
func (w *Watcher) Stop() error {
	if w.watcher == nil {
		return nil
	}
	err := w.watcher.Close()
	<-w.done
	return err
}

func (w *Watcher) watch(ctx context.Context) {
	defer close(w.done)

	var timer *time.Timer
	var timerC <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			debug.Trace("Config change detected: %s", event.Op)
			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(w.debounce)
			timerC = timer.C

		case <-timerC:
			timerC = nil
			w.reload()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			debug.Warn("Config watcher error: %v", err)
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)

	w.mu.RLock()
	handlers := append([]func(*Config){}, w.handlers...)
	onError := w.onError
	w.mu.RUnlock()

	if err != nil {
		debug.Warn("Config reload failed: %v", err)
		if onError != nil {
			onError(err)
		}
		return
	}
	debug.Info("Config reloaded from %s", w.path)
	for _, h := range handlers {
		h(cfg)
	}
}
