package jet

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/Robertstar2000/TallmanDashboard-sub007/pkg/catalog"
	"github.com/Robertstar2000/TallmanDashboard-sub007/pkg/log"
)

// Watcher invalidates a catalog's row cache when the database file changes
// on disk.
type Watcher struct {
	mu sync.Mutex

	path    string
	catalog *catalog.Catalog
	logger  *log.Logger

	fsWatcher *fsnotify.Watcher

	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}

	// Access writes the file in bursts; changes are batched.
	debounceDelay time.Duration
	pending       bool
	eventTimer    *time.Timer

	onInvalidate func()
}

// WatcherOption configures the watcher.
type WatcherOption func(*Watcher)

// WithDebounceDelay sets how long the file must be quiet before the cache
// is dropped. Default is 500ms.
func WithDebounceDelay(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		w.debounceDelay = d
	}
}

// WithOnInvalidate sets a callback run after each invalidation.
func WithOnInvalidate(fn func()) WatcherOption {
	return func(w *Watcher) {
		w.onInvalidate = fn
	}
}

// NewWatcher creates a watcher for the database file at path.
func NewWatcher(path string, cat *catalog.Catalog, logger *log.Logger, opts ...WatcherOption) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.Discard()
	}

	w := &Watcher{
		path:          filepath.Clean(path),
		catalog:       cat,
		logger:        logger,
		fsWatcher:     fsw,
		stopCh:        make(chan struct{}),
		doneCh:        make(chan struct{}),
		debounceDelay: 500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Start begins watching. The containing directory is watched so that
// replace-by-rename saves are seen.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return nil
	}

	if err := w.fsWatcher.Add(filepath.Dir(w.path)); err != nil {
		return err
	}

	go w.processEvents()
	w.running = true

	w.logger.Catalog().Info("database file watcher started", "path", w.path)
	return nil
}

// Stop stops the watcher and releases it. It is safe to call after a
// failed Start.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return w.fsWatcher.Close()
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh

	w.logger.Catalog().Info("database file watcher stopped", "path", w.path)
	return w.fsWatcher.Close()
}

func (w *Watcher) processEvents() {
	defer close(w.doneCh)

	for {
		select {
		case <-w.stopCh:
			w.mu.Lock()
			if w.eventTimer != nil {
				w.eventTimer.Stop()
			}
			w.mu.Unlock()
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
			w.logger.Catalog().Error("database file watcher error", err, "path", w.path)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if filepath.Clean(event.Name) != w.path {
		return
	}
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
		!event.Has(fsnotify.Rename) && !event.Has(fsnotify.Remove) {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	w.pending = true
	if w.eventTimer != nil {
		w.eventTimer.Stop()
	}
	w.eventTimer = time.AfterFunc(w.debounceDelay, w.flush)
}

func (w *Watcher) flush() {
	w.mu.Lock()
	pending := w.pending
	w.pending = false
	w.mu.Unlock()

	if !pending {
		return
	}

	w.catalog.Invalidate()
	w.logger.Catalog().Info("database file changed, row cache dropped", "path", w.path)

	if w.onInvalidate != nil {
		w.onInvalidate()
	}
}

// IsRunning reports whether the watcher is running.
func (w *Watcher) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}
