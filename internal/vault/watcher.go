package vault

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/convault/convault/internal/logging"
	"github.com/convault/convault/internal/platform"
)

const (
	// indexWatchDebounce coalesces the burst of filesystem events a single
	// rewrite produces into one reload.
	indexWatchDebounce = 250 * time.Millisecond

	// selfWriteWindow is how long after our own index write incoming events
	// are treated as echoes of that write.
	selfWriteWindow = 500 * time.Millisecond
)

// indexWatcher reloads the in-memory index when another process rewrites the
// index file. The store marks its own writes so they do not bounce back as
// reloads.
type indexWatcher struct {
	store *Store
	fw    *fsnotify.Watcher
	log   *slog.Logger
	done  chan struct{}

	mu        sync.Mutex
	timer     *time.Timer
	selfWrite time.Time
	stopped   bool
}

func newIndexWatcher(s *Store) (*indexWatcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	// Watch the directory, not the file: atomic rename replaces the inode,
	// which silently kills a file-level watch.
	if err := fw.Add(s.root); err != nil {
		fw.Close()
		return nil, err
	}

	w := &indexWatcher{
		store: s,
		fw:    fw,
		log:   logging.ForComponent(logging.CompWatch),
		done:  make(chan struct{}),
	}
	if warn := platform.CheckFsnotifySupport(s.root); warn != "" {
		w.log.Warn("index_watch_degraded", slog.String("reason", warn))
	}
	go w.loop()
	return w, nil
}

func (w *indexWatcher) loop() {
	for {
		select {
		case ev, ok := <-w.fw.Events:
			if !ok {
				return
			}
			if filepath.Base(ev.Name) != indexFileName {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.bump()
		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			w.log.Warn("index_watch_error", slog.String("error", err.Error()))
		case <-w.done:
			return
		}
	}
}

func (w *indexWatcher) bump() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}
	if time.Since(w.selfWrite) < selfWriteWindow {
		return
	}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(indexWatchDebounce, w.reload)
}

func (w *indexWatcher) reload() {
	w.mu.Lock()
	stopped := w.stopped
	w.mu.Unlock()
	if stopped {
		return
	}

	w.log.Debug("index_changed_on_disk")
	if err := w.store.LoadIndex(context.Background()); err != nil {
		w.log.Warn("index_reload_failed", slog.String("error", err.Error()))
	}
}

// markSelfWrite records that the store itself is about to rewrite the index.
func (w *indexWatcher) markSelfWrite() {
	w.mu.Lock()
	w.selfWrite = time.Now()
	w.mu.Unlock()
}

func (w *indexWatcher) stop() {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	w.stopped = true
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	w.mu.Unlock()

	close(w.done)
	w.fw.Close()
}
