// Package ingest holds the two workers that apply a single bucket event:
// Ingester indexes created objects and Deleter removes deleted ones.
//
// Each call runs to exactly one terminal Outcome. Workers never touch the
// queue; the batch processor decides acknowledgement from the outcomes.
package ingest

import (
	"context"
	"log/slog"

	"github.com/Aman-CERP/ragingest/internal/errors"
	"github.com/Aman-CERP/ragingest/internal/event"
	"github.com/Aman-CERP/ragingest/internal/notify"
)

// HTTP-like status codes carried by outcomes.
const (
	StatusSuccess = 200
	StatusFailure = 500
)

// Detail values describe how an outcome was reached.
const (
	DetailIndexed        = "indexed"
	DetailAlreadyIndexed = "already_indexed"
	DetailDeleted        = "deleted"
	DetailNotRegistered  = "not_registered"
	DetailFailed         = "failed"
	DetailUnhandled      = "unhandled"
)

// Document is a fetched object ready for indexing.
type Document struct {
	// Source is the storage URI, recorded as the source of every index row.
	Source string
	// Name is the object's file name, used to pick an extractor.
	Name    string
	Content []byte
}

// Indexer is the extract, split, embed and store collaborator.
type Indexer interface {
	// IndexDocument replaces the owner's rows for doc.Source with rows built
	// from doc.Content and returns how many were written.
	IndexDocument(ctx context.Context, owner string, doc Document) (int, error)

	// DeleteSource removes the owner's rows for source and returns how many went.
	DeleteSource(ctx context.Context, owner, source string) (int, error)
}

// AlertFunc receives fatal errors an operator must act on.
type AlertFunc func(ctx context.Context, err error)

// LogAlert is the default AlertFunc. It logs at error level.
func LogAlert(_ context.Context, err error) {
	slog.Error("operator_alert", errors.LogAttrs(err)...)
}

// Outcome is the terminal result of one event.
type Outcome struct {
	Status      int         `json:"statusCode"`
	Kind        event.Kind  `json:"kind"`
	Event       event.Event `json:"-"`
	Document    string      `json:"document"`
	Fingerprint string      `json:"fingerprint,omitempty"`
	Detail      string      `json:"detail"`
	Chunks      int         `json:"chunks,omitempty"`
	Err         error       `json:"-"`
	Error       string      `json:"error,omitempty"`
}

// OK reports whether the outcome is a success.
func (o Outcome) OK() bool {
	return o.Status == StatusSuccess
}

func (o Outcome) succeed(detail string) Outcome {
	o.Status = StatusSuccess
	o.Detail = detail
	return o
}

func (o Outcome) fail(err error) Outcome {
	o.Status = StatusFailure
	o.Detail = DetailFailed
	o.Err = err
	if err != nil {
		o.Error = err.Error()
	}
	return o
}

// resolveTarget finds the owner's live connection. Failures degrade to no
// target, so the worker proceeds without notifications.
func resolveTarget(ctx context.Context, r notify.Resolver, owner string) string {
	if r == nil {
		return ""
	}
	id, err := r.ConnectionID(ctx, owner)
	if err != nil {
		slog.Warn("connection_lookup_failed",
			slog.String("owner", owner),
			slog.String("error", err.Error()),
			slog.String("mode", "flying_blind"))
		return ""
	}
	if id == "" {
		slog.Debug("no_live_connection", slog.String("owner", owner))
	}
	return id
}
