package perception

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"shadebot/internal/logging"
)

// DefinitionsWatcher reloads a definitions file when it changes on disk.
// Editors often replace files by rename, so the parent directory is watched
// and events are filtered by file name.
type DefinitionsWatcher struct {
	mu          sync.Mutex
	watcher     *fsnotify.Watcher
	defs        *Definitions
	path        string
	debounceDur time.Duration
	pending     time.Time
	stopCh      chan struct{}
	doneCh      chan struct{}
	running     bool
	reloads     int
	// onReload is called after every reload attempt; nil in production.
	onReload func(error)
}

// NewDefinitionsWatcher creates a watcher for path feeding defs.
func NewDefinitionsWatcher(path string, defs *Definitions) (*DefinitionsWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	return &DefinitionsWatcher{
		watcher:     w,
		defs:        defs,
		path:        abs,
		debounceDur: 300 * time.Millisecond,
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}, nil
}

// Start begins watching. It is non-blocking.
func (dw *DefinitionsWatcher) Start(ctx context.Context) error {
	dw.mu.Lock()
	if dw.running {
		dw.mu.Unlock()
		return nil
	}
	dw.running = true
	dw.mu.Unlock()

	if err := dw.watcher.Add(filepath.Dir(dw.path)); err != nil {
		dw.mu.Lock()
		dw.running = false
		dw.mu.Unlock()
		return err
	}
	logging.Perception("DefinitionsWatcher: watching %s", dw.path)

	go dw.run(ctx)
	return nil
}

// Stop stops the watcher and waits for the loop to exit.
func (dw *DefinitionsWatcher) Stop() {
	dw.mu.Lock()
	if !dw.running {
		dw.mu.Unlock()
		_ = dw.watcher.Close()
		return
	}
	dw.running = false
	dw.mu.Unlock()

	close(dw.stopCh)
	<-dw.doneCh

	if err := dw.watcher.Close(); err != nil {
		logging.Get(logging.CategoryPerception).Error("DefinitionsWatcher: error closing watcher: %v", err)
	}
	logging.Perception("DefinitionsWatcher: stopped")
}

// Reloads returns how many reloads succeeded.
func (dw *DefinitionsWatcher) Reloads() int {
	dw.mu.Lock()
	defer dw.mu.Unlock()
	return dw.reloads
}

func (dw *DefinitionsWatcher) run(ctx context.Context) {
	defer close(dw.doneCh)

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-dw.stopCh:
			return

		case event, ok := <-dw.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != dw.path {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			logging.PerceptionDebug("DefinitionsWatcher: %s on %s", event.Op, event.Name)
			dw.mu.Lock()
			dw.pending = time.Now()
			dw.mu.Unlock()

		case err, ok := <-dw.watcher.Errors:
			if !ok {
				return
			}
			logging.Get(logging.CategoryPerception).Error("DefinitionsWatcher error: %v", err)

		case <-ticker.C:
			dw.flush()
		}
	}
}

// flush reloads once the last event is older than the debounce window.
func (dw *DefinitionsWatcher) flush() {
	dw.mu.Lock()
	if dw.pending.IsZero() || time.Since(dw.pending) < dw.debounceDur {
		dw.mu.Unlock()
		return
	}
	dw.pending = time.Time{}
	dw.mu.Unlock()

	err := dw.defs.Reload(dw.path)
	if err != nil {
		logging.PerceptionWarn("DefinitionsWatcher: reload failed, keeping previous set: %v", err)
	}

	dw.mu.Lock()
	if err == nil {
		dw.reloads++
	}
	cb := dw.onReload
	dw.mu.Unlock()
	if cb != nil {
		cb(err)
	}
}
