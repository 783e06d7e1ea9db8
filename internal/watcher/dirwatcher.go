package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DirWatcher watches a directory tree and emits debounced batches of file
// events. It uses fsnotify when available and polling otherwise.
type DirWatcher struct {
	opts        Options
	fsWatcher   *fsnotify.Watcher
	pollWatcher *PollingWatcher
	debouncer   *Debouncer
	events      chan []FileEvent
	errors      chan error
	stopCh      chan struct{}

	mu       sync.RWMutex
	rootPath string
	stopped  bool

	droppedBatches atomic.Uint64
}

// NewDirWatcher creates a watcher. fsnotify setup failures select polling.
func NewDirWatcher(opts Options) *DirWatcher {
	opts = opts.WithDefaults()
	w := &DirWatcher{
		opts:      opts,
		debouncer: NewDebouncer(opts.DebounceWindow),
		events:    make(chan []FileEvent, opts.EventBufferSize),
		errors:    make(chan error, 10),
		stopCh:    make(chan struct{}),
	}

	if !opts.ForcePolling {
		fsw, err := fsnotify.NewWatcher()
		if err == nil {
			w.fsWatcher = fsw
			return w
		}
		slog.Warn("fsnotify_unavailable", slog.String("error", err.Error()))
	}
	w.pollWatcher = NewPollingWatcher(opts.PollInterval)
	return w
}

// Start watches path until ctx is cancelled or Stop is called.
func (w *DirWatcher) Start(ctx context.Context, path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve absolute path: %w", err)
	}
	w.mu.Lock()
	w.rootPath = absPath
	w.mu.Unlock()

	go w.forwardDebounced(ctx)

	slog.Info("watcher_started", slog.String("root", absPath), slog.String("mode", w.Mode()))
	if w.fsWatcher != nil {
		return w.runFsnotify(ctx)
	}
	return w.runPolling(ctx)
}

func (w *DirWatcher) runFsnotify(ctx context.Context) error {
	if err := w.addRecursive(w.rootPath); err != nil {
		return fmt.Errorf("add directories to watcher: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			_ = w.Stop()
			return ctx.Err()
		case <-w.stopCh:
			return nil
		case ev, ok := <-w.fsWatcher.Events:
			if !ok {
				return nil
			}
			w.handleFsnotify(ev)
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return nil
			}
			w.emitError(err)
		}
	}
}

func (w *DirWatcher) runPolling(ctx context.Context) error {
	go func() {
		events, errs := w.pollWatcher.Events(), w.pollWatcher.Errors()
		for {
			select {
			case <-ctx.Done():
				return
			case <-w.stopCh:
				return
			case ev, ok := <-events:
				if !ok {
					return
				}
				if !ignored(ev.Path) {
					w.debouncer.Add(ev)
				}
			case err, ok := <-errs:
				if !ok {
					return
				}
				w.emitError(err)
			}
		}
	}()
	err := w.pollWatcher.Start(ctx, w.rootPath)
	_ = w.Stop()
	return err
}

func (w *DirWatcher) handleFsnotify(ev fsnotify.Event) {
	rel, err := filepath.Rel(w.rootPath, ev.Name)
	if err != nil || ignored(rel) {
		return
	}

	isDir := false
	if info, err := os.Stat(ev.Name); err == nil {
		isDir = info.IsDir()
	}

	var op Operation
	switch {
	case ev.Has(fsnotify.Create):
		op = OpCreate
		if isDir {
			// Files written before the watch lands are picked up by the walk.
			_ = w.addRecursive(ev.Name)
			w.announceExisting(ev.Name)
			return
		}
	case ev.Has(fsnotify.Write):
		op = OpModify
	case ev.Has(fsnotify.Remove):
		op = OpDelete
	case ev.Has(fsnotify.Rename):
		op = OpRename
	default:
		return
	}
	if isDir {
		return
	}

	w.debouncer.Add(FileEvent{
		Path:      filepath.ToSlash(rel),
		Operation: op,
		Timestamp: time.Now(),
	})
}

// announceExisting reports files already present in a newly created folder.
func (w *DirWatcher) announceExisting(dir string) {
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(w.rootPath, path)
		if err != nil || ignored(rel) {
			return nil
		}
		w.debouncer.Add(FileEvent{Path: filepath.ToSlash(rel), Operation: OpCreate, Timestamp: time.Now()})
		return nil
	})
}

func (w *DirWatcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		if rel, _ := filepath.Rel(w.rootPath, path); rel != "." && ignored(rel) {
			return filepath.SkipDir
		}
		return w.fsWatcher.Add(path)
	})
}

func (w *DirWatcher) forwardDebounced(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case batch, ok := <-w.debouncer.Output():
			if !ok {
				return
			}
			if len(batch) > 0 {
				w.emitEvents(batch)
			}
		}
	}
}

func (w *DirWatcher) emitEvents(batch []FileEvent) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.stopped {
		return
	}

	select {
	case w.events <- batch:
	default:
		n := w.droppedBatches.Add(1)
		slog.Warn("event_buffer_full",
			slog.Int("batch_size", len(batch)),
			slog.Uint64("total_dropped_batches", n))
	}
}

func (w *DirWatcher) emitError(err error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.stopped {
		return
	}
	select {
	case w.errors <- err:
	default:
	}
}

// Stop stops watching and closes both channels. Safe to call multiple times.
func (w *DirWatcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return nil
	}
	w.stopped = true
	close(w.stopCh)
	w.debouncer.Stop()

	if w.fsWatcher != nil {
		_ = w.fsWatcher.Close()
	}
	if w.pollWatcher != nil {
		_ = w.pollWatcher.Stop()
	}

	close(w.events)
	close(w.errors)
	return nil
}

// Events returns the channel of debounced batches.
func (w *DirWatcher) Events() <-chan []FileEvent {
	return w.events
}

// Errors returns the channel of non-fatal watch errors.
func (w *DirWatcher) Errors() <-chan error {
	return w.errors
}

// Mode returns "fsnotify" or "polling".
func (w *DirWatcher) Mode() string {
	if w.fsWatcher != nil {
		return "fsnotify"
	}
	return "polling"
}

// DroppedBatches returns how many batches were lost to a full buffer.
func (w *DirWatcher) DroppedBatches() uint64 {
	return w.droppedBatches.Load()
}
