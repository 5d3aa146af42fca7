// Package watch reports changes to a single file, typically the daemon's
// config file.
//
// The watcher observes the file's parent directory rather than the file
// itself so that editors and [atomicfile.Write], which replace the file by
// renaming a temporary into place, keep producing events. When fsnotify is
// unavailable or fails the watcher falls back to stat polling.
package watch

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultPollInterval is used when New is given a non-positive interval.
const DefaultPollInterval = 2 * time.Second

// ///////////////////////////////////////////////
// Watcher
// ///////////////////////////////////////////////

// Watcher monitors one file for changes using fsnotify with a polling fallback.
type Watcher struct {
	// path is the file being monitored.
	path string
	// dir and base split path; fsnotify events are filtered on base.
	dir, base string
	// events delivers a value each time the file changes.
	// The channel is buffered to 1 so back-to-back writes coalesce.
	events chan struct{}
	// done is closed by [Watcher.Close] to signal goroutines to exit.
	done chan struct{}
	// mu guards fsw, which the watch goroutine drops when it falls back.
	mu  sync.Mutex
	fsw *fsnotify.Watcher
	// once ensures [Watcher.Close] is idempotent.
	once sync.Once
	// polling is true when the watcher has fallen back to stat-based polling.
	polling atomic.Bool
	// pollInterval is the duration between stat calls in polling mode.
	pollInterval time.Duration
}

// New creates a Watcher for the file at path. The file need not exist yet;
// its creation is reported as a change. The parent directory must exist for
// fsnotify to be used.
func New(path string, pollInterval time.Duration) (*Watcher, error) {
	w, err := newWatcher(path, pollInterval)
	if err != nil {
		return nil, err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		slog.Info("fsnotify unavailable, falling back to polling", "error", err)
		w.startPolling()
		return w, nil
	}
	if err := fsw.Add(w.dir); err != nil {
		slog.Info("cannot watch directory, falling back to polling", "path", w.dir, "error", err)
		fsw.Close()
		w.startPolling()
		return w, nil
	}

	w.fsw = fsw
	go w.watch(fsw)
	return w, nil
}

// NewPolling creates a Watcher that only uses stat polling.
func NewPolling(path string, pollInterval time.Duration) (*Watcher, error) {
	w, err := newWatcher(path, pollInterval)
	if err != nil {
		return nil, err
	}
	w.startPolling()
	return w, nil
}

func newWatcher(path string, pollInterval time.Duration) (*Watcher, error) {
	if path == "" {
		return nil, fmt.Errorf("watch: empty path")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving watch path: %w", err)
	}
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	return &Watcher{
		path:         abs,
		dir:          filepath.Dir(abs),
		base:         filepath.Base(abs),
		events:       make(chan struct{}, 1),
		done:         make(chan struct{}),
		pollInterval: pollInterval,
	}, nil
}

// Path returns the absolute path of the watched file.
func (w *Watcher) Path() string {
	return w.path
}

// Polling reports whether the watcher is using polling instead of fsnotify.
func (w *Watcher) Polling() bool {
	return w.polling.Load()
}

// Events returns a channel that receives a value when the file changes.
func (w *Watcher) Events() <-chan struct{} {
	return w.events
}

// Close stops the watcher and releases resources.
func (w *Watcher) Close() error {
	var err error
	w.once.Do(func() {
		close(w.done)
		w.mu.Lock()
		fsw := w.fsw
		w.fsw = nil
		w.mu.Unlock()
		if fsw != nil {
			if closeErr := fsw.Close(); closeErr != nil {
				err = fmt.Errorf("closing fsnotify watcher: %w", closeErr)
			}
		}
	})
	return err
}

// watch forwards write and create events for the watched file. On an
// fsnotify error it closes the native watcher and switches to polling.
func (w *Watcher) watch(fsw *fsnotify.Watcher) {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-fsw.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != w.base {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				w.notify()
			}
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			slog.Info("fsnotify error, switching to polling", "error", err)
			w.mu.Lock()
			if w.fsw == fsw {
				w.fsw = nil
			}
			w.mu.Unlock()
			fsw.Close()
			w.startPolling()
			return
		}
	}
}

func (w *Watcher) startPolling() {
	w.polling.Store(true)
	go w.poll()
}

// fileStamp is what polling compares between ticks. Size is included
// because two writes within the filesystem's mtime resolution share a
// modification time.
type fileStamp struct {
	exists  bool
	modTime time.Time
	size    int64
}

func (w *Watcher) stamp() fileStamp {
	info, err := os.Stat(w.path)
	if err != nil {
		return fileStamp{}
	}
	return fileStamp{exists: true, modTime: info.ModTime(), size: info.Size()}
}

// poll periodically stats the file and sends a notification when it
// appears, or its modification time or size changes.
func (w *Watcher) poll() {
	last := w.stamp()

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			cur := w.stamp()
			if !cur.exists {
				last = cur
				continue
			}
			if cur != last {
				last = cur
				w.notify()
			}
		}
	}
}

// notify sends a single value to the events channel. If one is already
// pending the call is a no-op, coalescing rapid successive changes.
func (w *Watcher) notify() {
	select {
	case <-w.done:
		return
	default:
	}
	select {
	case w.events <- struct{}{}:
	default:
	}
}
