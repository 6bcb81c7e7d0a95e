// Package watcher reloads options files when they change on disk.
package watcher

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/chemistrywow31/claudecode"
)

const debounceInterval = 500 * time.Millisecond

// ReloadCallback receives the options loaded from path, or the error that
// kept them from loading.
type ReloadCallback func(path string, opts claudecode.Options, err error)

// Watcher monitors options files for changes.
type Watcher struct {
	mu       sync.Mutex
	watchers map[string]*fileWatcher // absolute path → watcher
	debounce time.Duration
	callback ReloadCallback
	logger   *slog.Logger
}

type fileWatcher struct {
	path      string // as passed to Watch
	abs       string
	fsWatcher *fsnotify.Watcher
	cancel    chan struct{}

	mu      sync.Mutex // serializes reloads
	seen    bool
	lastKey string
}

// New creates a watcher that reports every load through callback.
func New(callback ReloadCallback, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Watcher{
		watchers: make(map[string]*fileWatcher),
		debounce: debounceInterval,
		callback: callback,
		logger:   logger,
	}
}

// Watch loads path, reports the result, and reloads it after every burst
// of changes. The file may be missing; its directory must exist. Watching
// a path twice does nothing.
func (w *Watcher) Watch(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", path, err)
	}

	w.mu.Lock()
	if _, ok := w.watchers[abs]; ok {
		w.mu.Unlock()
		return nil
	}
	w.mu.Unlock()

	fsW, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	// Editors often replace the file rather than write it, so the
	// directory is watched and events are filtered by name.
	if err := fsW.Add(filepath.Dir(abs)); err != nil {
		fsW.Close()
		return fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}

	fw := &fileWatcher{
		path:      path,
		abs:       abs,
		fsWatcher: fsW,
		cancel:    make(chan struct{}),
	}

	w.mu.Lock()
	if _, ok := w.watchers[abs]; ok {
		w.mu.Unlock()
		fsW.Close()
		return nil
	}
	w.watchers[abs] = fw
	w.mu.Unlock()

	w.reload(fw)
	go w.watchLoop(fw)

	w.logger.Debug("watching options file", "path", abs)
	return nil
}

// Unwatch stops watching path.
func (w *Watcher) Unwatch(path string) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return
	}

	w.mu.Lock()
	fw, ok := w.watchers[abs]
	if ok {
		delete(w.watchers, abs)
	}
	w.mu.Unlock()

	if ok {
		close(fw.cancel)
		fw.fsWatcher.Close()
	}
}

// watchLoop processes fsnotify events with debouncing.
func (w *Watcher) watchLoop(fw *fileWatcher) {
	var timer *time.Timer

	for {
		select {
		case <-fw.cancel:
			if timer != nil {
				timer.Stop()
			}
			return

		case event, ok := <-fw.fsWatcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != fw.abs || event.Op == fsnotify.Chmod {
				continue
			}

			// Debounce: reset timer on each event.
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.debounce, func() {
				w.reload(fw)
			})

		case err, ok := <-fw.fsWatcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("options watcher error", "path", fw.abs, "error", err)
		}
	}
}

// reload reads the file and notifies the callback unless the outcome is
// the same as last time.
func (w *Watcher) reload(fw *fileWatcher) {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	select {
	case <-fw.cancel:
		return
	default:
	}

	var (
		opts claudecode.Options
		key  string
	)
	data, err := os.ReadFile(fw.abs)
	if err != nil {
		err = fmt.Errorf("reading %s: %w", fw.path, err)
		key = "error:" + err.Error()
	} else {
		key = "data:" + string(data)
		opts, err = claudecode.ParseOptions(data, claudecode.FormatForPath(fw.abs))
		if err != nil {
			err = fmt.Errorf("%s: %w", fw.path, err)
		}
	}

	if fw.seen && key == fw.lastKey {
		return
	}
	fw.seen = true
	fw.lastKey = key

	w.logger.Debug("options file loaded", "path", fw.abs, "error", err)
	if w.callback != nil {
		w.callback(fw.path, opts, err)
	}
}

// Shutdown stops all watchers.
func (w *Watcher) Shutdown() {
	w.mu.Lock()
	paths := make([]string, 0, len(w.watchers))
	for _, fw := range w.watchers {
		paths = append(paths, fw.abs)
	}
	w.mu.Unlock()

	for _, path := range paths {
		w.Unwatch(path)
	}
}
