package ingest

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"

	"github.com/Aman-CERP/ragingest/internal/errors"
	"github.com/Aman-CERP/ragingest/internal/event"
	"github.com/Aman-CERP/ragingest/internal/notify"
	"github.com/Aman-CERP/ragingest/internal/registry"
	"github.com/Aman-CERP/ragingest/internal/storagepath"
)

// Deleter applies Removed events.
//
// Index rows go first, then the registry entry. A crash in between leaves an
// entry without rows until the unacknowledged message is redelivered.
type Deleter struct {
	cfg Config
}

// NewDeleter creates a Deleter.
func NewDeleter(cfg Config) *Deleter {
	return &Deleter{cfg: cfg.withDefaults()}
}

// Delete removes the object named by ev from its owner's index.
func (w *Deleter) Delete(ctx context.Context, ev event.Event) Outcome {
	out := Outcome{Kind: event.KindRemoved, Event: ev, Document: ev.ObjectKey}

	p, err := storagepath.Parse(ev.Bucket, ev.ObjectKey)
	if err != nil {
		slog.Warn("delete_rejected", append(errors.LogAttrs(err), slog.String("key", ev.ObjectKey))...)
		return out.fail(err)
	}
	out.Document = p.Key
	uri := p.URI()
	filename := p.Filename()

	target := resolveTarget(ctx, w.cfg.Resolver, p.Owner)

	fp, found, err := w.cfg.Registry.LookupFingerprintByPath(ctx, uri)
	if err != nil {
		slog.Error("delete_lookup_failed", append(errors.LogAttrs(err), slog.String("path", uri))...)
		w.notify(ctx, target, fmt.Sprintf("Failed to delete %s", filename), notify.LevelError)
		return out.fail(err)
	}
	if !found {
		slog.Info("delete_not_registered", slog.String("path", uri))
		w.notify(ctx, target, fmt.Sprintf("File %s successfully deleted from vector db", filename), notify.LevelInfo)
		return out.succeed(DetailNotRegistered)
	}
	out.Fingerprint = fp

	n, err := w.cfg.Indexer.DeleteSource(ctx, p.Owner, uri)
	if err != nil {
		if errors.GetCode(err) == "" {
			err = errors.IndexError("failed to delete index rows", err)
		}
		slog.Error("delete_rows_failed", append(errors.LogAttrs(err), slog.String("path", uri))...)
		w.notify(ctx, target, fmt.Sprintf("Failed to delete %s", filename), notify.LevelError)
		return out.fail(err)
	}
	out.Chunks = n

	entries, err := w.cfg.Registry.ListByPath(ctx, uri)
	if err != nil {
		slog.Error("delete_lookup_failed", append(errors.LogAttrs(err), slog.String("path", uri))...)
		w.notify(ctx, target, fmt.Sprintf("Failed to delete %s", filename), notify.LevelError)
		return out.fail(err)
	}
	for _, e := range entries {
		if err := w.cfg.Registry.Delete(ctx, e.Fingerprint, uri); err != nil && !stderrors.Is(err, registry.ErrEntryNotFound) {
			slog.Error("delete_deregister_failed", append(errors.LogAttrs(err), slog.String("fingerprint", e.Fingerprint))...)
			w.notify(ctx, target, fmt.Sprintf("Failed to delete %s", filename), notify.LevelError)
			return out.fail(err)
		}
	}

	slog.Info("delete_complete",
		slog.String("path", uri),
		slog.String("owner", p.Owner),
		slog.String("fingerprint", fp),
		slog.Int("rows", n))
	w.notify(ctx, target, fmt.Sprintf("Finished deleting %s", filename), notify.LevelSuccess)
	return out.succeed(DetailDeleted)
}

func (w *Deleter) notify(ctx context.Context, target, text string, level notify.Level) {
	w.cfg.Notifier.Notify(ctx, target, notify.TypeMessage, text, level)
}
