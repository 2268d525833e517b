// Package observer watches the agent configuration file and triggers a
// directory reload when it changes.
package observer

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ReloadCallback is called after the watched config file changed and the
// debounce window elapsed
type ReloadCallback func(path string)

// ConfigWatcher monitors the agents config file for edits. Watching the
// parent directory instead of the file itself survives editors that save
// by rename-and-replace.
type ConfigWatcher struct {
	watcher  *fsnotify.Watcher
	path     string
	callback ReloadCallback
	debounce time.Duration

	mu     sync.Mutex
	timer  *time.Timer
	cancel context.CancelFunc
}

// NewConfigWatcher creates a watcher for the given config file path
func NewConfigWatcher(path string, callback ReloadCallback) (*ConfigWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return nil, err
	}

	return &ConfigWatcher{
		watcher:  watcher,
		path:     path,
		callback: callback,
		debounce: 500 * time.Millisecond, // Debounce rapid successive saves
	}, nil
}

// Start begins watching for file changes
func (w *ConfigWatcher) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-w.watcher.Events:
				if !ok {
					return
				}
				w.handleEvent(event)
			case _, ok := <-w.watcher.Errors:
				if !ok {
					return
				}
				// Keep watching after transient errors
			}
		}
	}()
}

// Stop stops watching for file changes
func (w *ConfigWatcher) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.watcher.Close()
}

func (w *ConfigWatcher) handleEvent(event fsnotify.Event) {
	if filepath.Clean(event.Name) != filepath.Clean(w.path) {
		return
	}
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		w.callback(w.path)
	})
}
