// Package watch observes a tasks file for changes and emits debounced
// change notifications, driving watch-mode reruns.
package watch

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is the default quiet period for coalescing rapid writes
const DefaultDebounce = 500 * time.Millisecond

// Watcher watches a single tasks file. The parent directory is watched
// rather than the file itself because editors typically replace files by
// renaming a temp file over them, which would drop a direct watch.
type Watcher struct {
	watcher *fsnotify.Watcher
	changes chan time.Time
	errors  chan error
	done    chan struct{}
	path    string // absolute path of the watched file

	mu       sync.Mutex
	debounce time.Duration
	timer    *time.Timer
	closed   bool
}

// NewWatcher creates a watcher for the given file. Changes are coalesced
// over the debounce period; zero selects DefaultDebounce.
func NewWatcher(path string, debounce time.Duration) (*Watcher, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve path %s: %w", path, err)
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := fsw.Add(filepath.Dir(absPath)); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(absPath), err)
	}

	w := &Watcher{
		watcher:  fsw,
		changes:  make(chan time.Time, 1),
		errors:   make(chan error, 10),
		done:     make(chan struct{}),
		path:     absPath,
		debounce: debounce,
	}

	go w.processEvents()
	return w, nil
}

// Changes delivers a timestamp after each debounced batch of file changes.
func (w *Watcher) Changes() <-chan time.Time {
	return w.changes
}

// Errors delivers watcher errors. The channel is buffered; overflow is
// dropped.
func (w *Watcher) Errors() <-chan error {
	return w.errors
}

func (w *Watcher) processEvents() {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			select {
			case w.errors <- err:
			default:
			}
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if filepath.Clean(event.Name) != w.path {
		return
	}
	// Create covers editors that write a temp file and rename it over the
	// target. Chmod-only events are noise.
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		closed := w.closed
		w.timer = nil
		w.mu.Unlock()
		if closed {
			return
		}
		select {
		case w.changes <- time.Now():
		default:
			// A pending notification already covers this change.
		}
	})
}

// Close stops the watcher and releases its resources. Safe to call more
// than once.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	w.mu.Unlock()

	close(w.done)
	return w.watcher.Close()
}
