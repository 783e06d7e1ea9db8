package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// PollingWatcher detects changes by rescanning the root every interval.
// It only reports regular files.
type PollingWatcher struct {
	interval time.Duration
	events   chan FileEvent
	errors   chan error
	stopCh   chan struct{}

	mu       sync.Mutex
	state    map[string]fileSnapshot
	stopped  bool
	rootPath string
}

type fileSnapshot struct {
	modTime time.Time
	size    int64
}

// NewPollingWatcher creates a polling watcher with the given interval.
func NewPollingWatcher(interval time.Duration) *PollingWatcher {
	return &PollingWatcher{
		interval: interval,
		state:    make(map[string]fileSnapshot),
		events:   make(chan FileEvent, 100),
		errors:   make(chan error, 10),
		stopCh:   make(chan struct{}),
	}
}

// Start records a baseline of path and then reports differences until ctx is
// cancelled or Stop is called.
func (p *PollingWatcher) Start(ctx context.Context, path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve absolute path: %w", err)
	}

	baseline, err := snapshot(absPath)
	if err != nil {
		return fmt.Errorf("perform initial scan: %w", err)
	}
	p.mu.Lock()
	p.rootPath = absPath
	p.state = baseline
	p.mu.Unlock()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = p.Stop()
			return ctx.Err()
		case <-p.stopCh:
			return nil
		case <-ticker.C:
			if err := p.detectChanges(); err != nil {
				select {
				case p.errors <- err:
				default:
				}
			}
		}
	}
}

// Stop stops the polling watcher. Safe to call multiple times.
func (p *PollingWatcher) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped {
		return nil
	}
	p.stopped = true
	close(p.stopCh)
	close(p.events)
	close(p.errors)
	return nil
}

// Events returns the channel of file events.
func (p *PollingWatcher) Events() <-chan FileEvent {
	return p.events
}

// Errors returns the channel of scan errors.
func (p *PollingWatcher) Errors() <-chan error {
	return p.errors
}

// snapshot walks root and records every regular file by relative path.
// Unreadable entries are skipped.
func snapshot(root string) (map[string]fileSnapshot, error) {
	files := make(map[string]fileSnapshot)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		files[filepath.ToSlash(rel)] = fileSnapshot{modTime: info.ModTime(), size: info.Size()}
		return nil
	})
	return files, err
}

func (p *PollingWatcher) detectChanges() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped {
		return nil
	}

	current, err := snapshot(p.rootPath)
	if err != nil {
		return fmt.Errorf("walk directory for changes: %w", err)
	}

	var changes []FileEvent
	now := time.Now()
	for rel, snap := range current {
		prev, seen := p.state[rel]
		switch {
		case !seen:
			changes = append(changes, FileEvent{Path: rel, Operation: OpCreate, Timestamp: now})
		case prev != snap:
			changes = append(changes, FileEvent{Path: rel, Operation: OpModify, Timestamp: now})
		}
	}
	for rel := range p.state {
		if _, ok := current[rel]; !ok {
			changes = append(changes, FileEvent{Path: rel, Operation: OpDelete, Timestamp: now})
		}
	}
	sort.Slice(changes, func(i, j int) bool { return changes[i].Path < changes[j].Path })

	for _, ev := range changes {
		select {
		case p.events <- ev:
		default:
			slog.Warn("polling_buffer_full",
				slog.String("path", ev.Path),
				slog.String("op", ev.Operation.String()))
		}
	}
	p.state = current
	return nil
}
