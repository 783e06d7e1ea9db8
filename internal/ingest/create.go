package ingest

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/Aman-CERP/ragingest/internal/errors"
	"github.com/Aman-CERP/ragingest/internal/event"
	"github.com/Aman-CERP/ragingest/internal/notify"
	"github.com/Aman-CERP/ragingest/internal/objectstore"
	"github.com/Aman-CERP/ragingest/internal/registry"
	"github.com/Aman-CERP/ragingest/internal/storagepath"
)

// DefaultMaxObjectBytes caps how much of an object is read into memory.
const DefaultMaxObjectBytes int64 = 64 << 20

// Config wires the collaborators shared by Ingester and Deleter.
type Config struct {
	Objects  objectstore.Store
	Registry registry.Registry
	Indexer  Indexer
	Notifier notify.Notifier
	Resolver notify.Resolver

	// MaxObjectBytes rejects larger objects with ERR_204_OBJECT_TOO_LARGE.
	MaxObjectBytes int64

	// Alert receives InconsistentStateError. Defaults to LogAlert.
	Alert AlertFunc
}

func (c Config) withDefaults() Config {
	if c.Notifier == nil {
		c.Notifier = notify.Discard{}
	}
	if c.MaxObjectBytes <= 0 {
		c.MaxObjectBytes = DefaultMaxObjectBytes
	}
	if c.Alert == nil {
		c.Alert = LogAlert
	}
	return c
}

// Ingester applies Added events.
//
// States: Start, ConnectionResolved, Fetched, Hashed, DuplicateCheck, then
// AlreadyIndexed, or Registered followed by Indexed or RollbackOnFailure.
// The registry entry is claimed before indexing and deleted again if
// indexing fails.
type Ingester struct {
	cfg Config
}

// NewIngester creates an Ingester.
func NewIngester(cfg Config) *Ingester {
	return &Ingester{cfg: cfg.withDefaults()}
}

// Create ingests the object named by ev.
func (w *Ingester) Create(ctx context.Context, ev event.Event) Outcome {
	out := Outcome{Kind: event.KindAdded, Event: ev, Document: ev.ObjectKey}

	p, err := storagepath.Parse(ev.Bucket, ev.ObjectKey)
	if err != nil {
		slog.Warn("ingest_rejected", append(errors.LogAttrs(err), slog.String("key", ev.ObjectKey))...)
		return out.fail(err)
	}
	out.Document = p.Key
	uri := p.URI()
	name := p.DisplayName()

	target := resolveTarget(ctx, w.cfg.Resolver, p.Owner)

	content, err := w.fetch(ctx, p)
	if err != nil {
		slog.Error("ingest_fetch_failed", append(errors.LogAttrs(err), slog.String("path", uri))...)
		w.notify(ctx, target, fmt.Sprintf("Error ingesting object: %s", p.Key), notify.LevelError)
		return out.fail(err)
	}

	fp, err := registry.Fingerprint(p.Owner, bytes.NewReader(content))
	if err != nil {
		return out.fail(errors.InternalError("failed to fingerprint object", err))
	}
	out.Fingerprint = fp

	exists, err := w.cfg.Registry.Exists(ctx, fp)
	if err != nil {
		slog.Error("ingest_dedup_check_failed", append(errors.LogAttrs(err), slog.String("fingerprint", fp))...)
		w.notify(ctx, target, fmt.Sprintf("Error checking if file %s has been processed", p.Key), notify.LevelError)
		return out.fail(err)
	}
	if exists {
		slog.Info("ingest_duplicate", slog.String("path", uri), slog.String("fingerprint", fp))
		w.notify(ctx, target, fmt.Sprintf("%s has already been processed", p.Key), notify.LevelInfo)
		return out.succeed(DetailAlreadyIndexed)
	}

	// Started comes after the duplicate check so a re-upload only hears that
	// it was already processed.
	w.notify(ctx, target, fmt.Sprintf("Started ingesting %s", name), notify.LevelInfo)

	claimed, err := w.cfg.Registry.Claim(ctx, registry.Entry{Fingerprint: fp, Owner: p.Owner, StoragePath: uri})
	if err != nil {
		slog.Error("ingest_register_failed", append(errors.LogAttrs(err), slog.String("fingerprint", fp))...)
		w.notify(ctx, target, fmt.Sprintf("Failed to ingest %s", name), notify.LevelError)
		return out.fail(err)
	}
	if !claimed {
		// Another worker registered this content between the check and the
		// claim. Its outcome is unknown yet, so retry later.
		err := errors.ClaimContendedError(fp)
		slog.Info("ingest_claim_contended", slog.String("path", uri), slog.String("fingerprint", fp))
		return out.fail(err)
	}

	n, err := w.cfg.Indexer.IndexDocument(ctx, p.Owner, Document{Source: uri, Name: p.Filename(), Content: content})
	if err != nil {
		return w.rollback(ctx, out, target, name, uri, err)
	}
	out.Chunks = n

	w.pruneStale(ctx, fp, uri)

	slog.Info("ingest_complete",
		slog.String("path", uri),
		slog.String("owner", p.Owner),
		slog.String("fingerprint", fp),
		slog.Int("chunks", n))
	w.notify(ctx, target, fmt.Sprintf("Finished ingesting %s", name), notify.LevelSuccess)
	return out.succeed(DetailIndexed)
}

// fetch reads the object into memory, bounded by MaxObjectBytes.
func (w *Ingester) fetch(ctx context.Context, p storagepath.Path) ([]byte, error) {
	rc, err := w.cfg.Objects.Open(ctx, p.Bucket, p.Key)
	if err != nil {
		return nil, errors.FetchError(p.Key, err)
	}
	defer func() { _ = rc.Close() }()

	content, err := io.ReadAll(io.LimitReader(rc, w.cfg.MaxObjectBytes+1))
	if err != nil {
		return nil, errors.FetchError(p.Key, err)
	}
	if int64(len(content)) > w.cfg.MaxObjectBytes {
		return nil, errors.New(errors.ErrCodeObjectTooLarge,
			fmt.Sprintf("object %s exceeds %d bytes", p.Key, w.cfg.MaxObjectBytes), nil)
	}
	return content, nil
}

// rollback deletes the entry claimed for a failed index. If the entry
// cannot be removed the registry no longer matches the index, which is
// escalated as InconsistentStateError.
func (w *Ingester) rollback(ctx context.Context, out Outcome, target, name, uri string, indexErr error) Outcome {
	if errors.GetCode(indexErr) == "" {
		indexErr = errors.IndexError("indexing failed", indexErr)
	}
	slog.Error("ingest_index_failed", append(errors.LogAttrs(indexErr), slog.String("path", uri))...)

	rbErr := w.cfg.Registry.Delete(ctx, out.Fingerprint, uri)
	if rbErr != nil && !stderrors.Is(rbErr, registry.ErrEntryNotFound) {
		fatal := errors.InconsistentStateError(out.Fingerprint, uri, indexErr, rbErr)
		w.cfg.Alert(ctx, fatal)
		w.notify(ctx, target, fmt.Sprintf("Failed to ingest %s", name), notify.LevelError)
		return out.fail(fatal)
	}

	w.notify(ctx, target, fmt.Sprintf("Failed to ingest %s", name), notify.LevelError)
	return out.fail(indexErr)
}

// pruneStale drops entries left at uri by earlier content. The index rows
// they described were replaced by this ingestion.
func (w *Ingester) pruneStale(ctx context.Context, fp, uri string) {
	entries, err := w.cfg.Registry.ListByPath(ctx, uri)
	if err != nil {
		slog.Warn("stale_entry_scan_failed", append(errors.LogAttrs(err), slog.String("path", uri))...)
		return
	}
	for _, e := range entries {
		if e.Fingerprint == fp {
			continue
		}
		if err := w.cfg.Registry.Delete(ctx, e.Fingerprint, uri); err != nil && !stderrors.Is(err, registry.ErrEntryNotFound) {
			slog.Warn("stale_entry_delete_failed", append(errors.LogAttrs(err), slog.String("fingerprint", e.Fingerprint))...)
			continue
		}
		slog.Info("stale_entry_pruned", slog.String("path", uri), slog.String("fingerprint", e.Fingerprint))
	}
}

func (w *Ingester) notify(ctx context.Context, target, text string, level notify.Level) {
	w.cfg.Notifier.Notify(ctx, target, notify.TypeMessage, text, level)
}
