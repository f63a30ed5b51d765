// Package livewatch implements the optional resident mode (C12): an
// fsnotify watcher is attached to every directory added to it (AddTreeRoot
// adds a whole tree), and write/create events are coalesced per path and
// re-injected into the path channel given to New, bypassing the
// PriorHashMap gate since the whole point is to re-hash a file known to have
// just changed. cmd/discdiff starts it alongside the initial scan and feeds
// that channel to a dedicated HashPool.
package livewatch

import (
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"discdiff/internal/termbus"
)

// defaultDebounce matches the 300ms default called out for --watch mode.
const defaultDebounce = 300 * time.Millisecond

// Watcher coalesces fsnotify bursts per path and re-feeds stable paths into
// out.
type Watcher struct {
	fsw      *fsnotify.Watcher
	out      chan<- string
	log      *slog.Logger
	debounce time.Duration

	mu      sync.Mutex
	pending map[string]*time.Timer
}

// New creates a Watcher that feeds rehashed paths into out. A zero debounce
// uses the 300ms default.
func New(out chan<- string, log *slog.Logger, debounce time.Duration) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	return &Watcher{
		fsw:      fsw,
		out:      out,
		log:      log,
		debounce: debounce,
		pending:  make(map[string]*time.Timer),
	}, nil
}

// AddDir registers dir for watching. fsnotify does not recurse, so every
// directory to be watched must be added on its own; AddTreeRoot does this
// for a whole tree.
func (w *Watcher) AddDir(dir string) error {
	return w.fsw.Add(dir)
}

// Run drains fsnotify events until stop is closed or TERMINATE is set. It
// is meant to run in its own goroutine.
func (w *Watcher) Run(stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			w.cancelPending()
			return

		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.Warn("livewatch: watcher error", "error", err)
		}

		if termbus.IsSet() {
			w.cancelPending()
			return
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	switch {
	case event.Op&(fsnotify.Write|fsnotify.Create) != 0:
		w.debounceEmit(event.Name)
	case event.Op&(fsnotify.Rename|fsnotify.Remove) != 0:
		w.log.Info("livewatch: path removed or renamed", "path", event.Name)
	}
}

// debounceEmit resets path's debounce timer; only the last event within
// the debounce window actually re-injects the path.
func (w *Watcher) debounceEmit(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if t, ok := w.pending[path]; ok {
		t.Stop()
	}
	w.pending[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.pending, path)
		w.mu.Unlock()
		w.emit(path)
	})
}

func (w *Watcher) emit(path string) {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return
	}
	select {
	case w.out <- path:
	case <-time.After(w.debounce):
		w.log.Warn("livewatch: dropped rehash, downstream blocked", "path", path)
	}
}

func (w *Watcher) cancelPending() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for path, t := range w.pending {
		t.Stop()
		delete(w.pending, path)
	}
}

// Close releases the underlying fsnotify watcher.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}

// AddTreeRoot walks root and registers every directory beneath it,
// including root itself. It is a convenience for callers that did not
// retain the directory list from the initial Walker pass.
func AddTreeRoot(w *Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			return w.AddDir(path)
		}
		return nil
	})
}
