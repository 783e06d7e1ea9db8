package watcher

import (
	"path/filepath"
	"strings"
	"time"
)

// Operation represents a file system operation type.
type Operation int

const (
	// OpCreate indicates a new file was created.
	OpCreate Operation = iota
	// OpModify indicates an existing file was rewritten.
	OpModify
	// OpDelete indicates a file was deleted.
	OpDelete
	// OpRename indicates a file was moved away from Path.
	OpRename
)

// String returns a human-readable representation of the operation.
func (op Operation) String() string {
	switch op {
	case OpCreate:
		return "CREATE"
	case OpModify:
		return "MODIFY"
	case OpDelete:
		return "DELETE"
	case OpRename:
		return "RENAME"
	default:
		return "UNKNOWN"
	}
}

// Removes reports whether the object at the event path is gone afterwards.
func (op Operation) Removes() bool {
	return op == OpDelete || op == OpRename
}

// FileEvent is one change under the watched root.
type FileEvent struct {
	// Path is relative to the watched root, slash-separated.
	Path      string
	Operation Operation
	IsDir     bool
	Timestamp time.Time
}

// Options configures the watcher behavior.
type Options struct {
	// DebounceWindow is the quiet period before a change is emitted.
	// Default: 200ms
	DebounceWindow time.Duration

	// PollInterval is the scan interval in polling mode.
	// Default: 5s
	PollInterval time.Duration

	// EventBufferSize is the number of debounced batches buffered.
	// Default: 100
	EventBufferSize int

	// ForcePolling skips fsnotify.
	ForcePolling bool
}

// DefaultOptions returns the default watcher options.
func DefaultOptions() Options {
	return Options{
		DebounceWindow:  200 * time.Millisecond,
		PollInterval:    5 * time.Second,
		EventBufferSize: 100,
	}
}

// WithDefaults returns options with defaults applied for zero values.
func (o Options) WithDefaults() Options {
	defaults := DefaultOptions()
	if o.DebounceWindow <= 0 {
		o.DebounceWindow = defaults.DebounceWindow
	}
	if o.PollInterval <= 0 {
		o.PollInterval = defaults.PollInterval
	}
	if o.EventBufferSize <= 0 {
		o.EventBufferSize = defaults.EventBufferSize
	}
	return o
}

// ignored reports whether a relative path is scratch output rather than an
// object: dotfiles, editor backups and partial downloads.
func ignored(rel string) bool {
	if rel == "" || rel == "." {
		return true
	}
	for _, seg := range strings.Split(filepath.ToSlash(rel), "/") {
		if strings.HasPrefix(seg, ".") {
			return true
		}
	}
	base := filepath.Base(rel)
	return strings.HasSuffix(base, "~") ||
		strings.HasSuffix(base, ".swp") ||
		strings.HasSuffix(base, ".part")
}
