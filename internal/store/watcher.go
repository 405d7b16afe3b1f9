package store

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long the watcher waits after the last file event
// before re-reading the store.
const DefaultDebounce = 100 * time.Millisecond

// dirWatcher watches a directory for writes made by other processes and
// calls refresh once events have settled for the debounce interval.
type dirWatcher struct {
	watcher  *fsnotify.Watcher
	dir      string
	match    func(name string) bool
	debounce time.Duration
	refresh  func()
	logger   *log.Logger

	pendingMu sync.Mutex
	pending   time.Time // zero when nothing is queued

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// startDirWatcher begins watching dir. match filters base file names.
func startDirWatcher(dir string, match func(string) bool, debounce time.Duration, refresh func(), logger *log.Logger) (*dirWatcher, error) {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("failed to watch directory %s: %w", dir, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	w := &dirWatcher{
		watcher:  watcher,
		dir:      dir,
		match:    match,
		debounce: debounce,
		refresh:  refresh,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
	}

	w.wg.Add(2)
	go w.watchEvents()
	go w.processQueue()

	return w, nil
}

// stop shuts the watcher down and waits for its goroutines.
func (w *dirWatcher) stop() error {
	w.cancel()
	err := w.watcher.Close()
	w.wg.Wait()
	if err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}
	return nil
}

func (w *dirWatcher) watchEvents() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}

			// Chmod carries no content change
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if !w.match(filepath.Base(event.Name)) {
				continue
			}

			w.pendingMu.Lock()
			w.pending = time.Now()
			w.pendingMu.Unlock()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Printf("Watcher error: %v", err)
		}
	}
}

func (w *dirWatcher) processQueue() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.debounce)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return

		case <-ticker.C:
			w.pendingMu.Lock()
			ready := !w.pending.IsZero() && time.Since(w.pending) >= w.debounce
			if ready {
				w.pending = time.Time{}
			}
			w.pendingMu.Unlock()

			if ready {
				w.refresh()
			}
		}
	}
}
