package watcher

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/ragingest/internal/event"
	"github.com/Aman-CERP/ragingest/internal/storagepath"
)

// Locator maps a file path under the store root to its bucket and key.
type Locator interface {
	Locate(path string) (bucket, key string, ok bool)
}

// Publisher enqueues a notification body.
type Publisher interface {
	Send(ctx context.Context, body []byte) (string, error)
}

// BucketWatcher publishes one notification message per settled change to an
// object under the store root.
type BucketWatcher struct {
	locator Locator
	queue   Publisher
	opts    Options
}

// NewBucketWatcher creates a BucketWatcher.
func NewBucketWatcher(locator Locator, queue Publisher, opts Options) *BucketWatcher {
	return &BucketWatcher{locator: locator, queue: queue, opts: opts.WithDefaults()}
}

// Run watches root until ctx is cancelled.
func (b *BucketWatcher) Run(ctx context.Context, root string) error {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return err
	}

	dir := NewDirWatcher(b.opts)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := dir.Start(gctx, absRoot)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		events, errs := dir.Events(), dir.Errors()
		for {
			select {
			case <-gctx.Done():
				return dir.Stop()
			case batch, ok := <-events:
				if !ok {
					return nil
				}
				b.Publish(gctx, absRoot, batch)
			case err, ok := <-errs:
				if !ok {
					errs = nil
					continue
				}
				slog.Warn("watcher_error", slog.String("error", err.Error()))
			}
		}
	})

	return g.Wait()
}

// Publish sends a notification for each event that names an object and
// returns how many were sent. Send failures are logged and skipped; the
// object can be re-announced with the enqueue command.
func (b *BucketWatcher) Publish(ctx context.Context, root string, batch []FileEvent) int {
	sent := 0
	for _, fe := range batch {
		ev, ok := b.toEvent(root, fe)
		if !ok {
			continue
		}
		body, err := event.Encode(ev)
		if err != nil {
			slog.Warn("notification_encode_failed", slog.String("key", ev.ObjectKey), slog.String("error", err.Error()))
			continue
		}
		id, err := b.queue.Send(ctx, body)
		if err != nil {
			slog.Warn("notification_publish_failed",
				slog.String("bucket", ev.Bucket),
				slog.String("key", ev.ObjectKey),
				slog.String("error", err.Error()))
			continue
		}
		slog.Debug("notification_published",
			slog.String("message_id", id),
			slog.String("event", ev.EventName),
			slog.String("bucket", ev.Bucket),
			slog.String("key", ev.ObjectKey))
		sent++
	}
	return sent
}

func (b *BucketWatcher) toEvent(root string, fe FileEvent) (event.Event, bool) {
	if fe.IsDir {
		return event.Event{}, false
	}
	bucket, key, ok := b.locator.Locate(filepath.Join(root, filepath.FromSlash(fe.Path)))
	if !ok {
		return event.Event{}, false
	}
	key = storagepath.EncodeKey(key)
	if fe.Operation.Removes() {
		return event.Removed(bucket, key), true
	}
	return event.Created(bucket, key), true
}
