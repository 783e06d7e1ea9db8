// Package batch applies queue deliveries to the ingestion workers and
// decides which messages to acknowledge.
//
// A message is acknowledged only if none of its events failed. Everything
// else is left on the queue, whose redelivery and dead-letter policy then
// governs retry. This package is the only caller of Acknowledger.Delete.
package batch

import (
	"context"
	"log/slog"
	"time"

	"github.com/Aman-CERP/ragingest/internal/errors"
	"github.com/Aman-CERP/ragingest/internal/event"
	"github.com/Aman-CERP/ragingest/internal/ingest"
	"github.com/Aman-CERP/ragingest/internal/queue"
)

// Acknowledger releases a delivered message.
type Acknowledger interface {
	Delete(ctx context.Context, receiptHandle string) error
}

// Creator handles Added events.
type Creator interface {
	Create(ctx context.Context, ev event.Event) ingest.Outcome
}

// Remover handles Removed events.
type Remover interface {
	Delete(ctx context.Context, ev event.Event) ingest.Outcome
}

// Config wires a Processor.
type Config struct {
	Creator Creator
	Remover Remover
	Acker   Acknowledger

	// AckRetry governs retries of acknowledgement. Acknowledging twice is
	// harmless, so retrying it is safe.
	AckRetry errors.RetryConfig
}

// Processor processes batches sequentially: messages in order, events in
// order within a message.
type Processor struct {
	creator  Creator
	remover  Remover
	acker    Acknowledger
	ackRetry errors.RetryConfig
}

// NewProcessor creates a Processor.
func NewProcessor(cfg Config) *Processor {
	if cfg.AckRetry.MaxRetries == 0 && cfg.AckRetry.InitialDelay == 0 {
		cfg.AckRetry = errors.DefaultRetryConfig()
	}
	return &Processor{
		creator:  cfg.Creator,
		remover:  cfg.Remover,
		acker:    cfg.Acker,
		ackRetry: cfg.AckRetry,
	}
}

// MessageResult is the per-message record of a batch.
type MessageResult struct {
	MessageID     string           `json:"message_id"`
	ReceiptHandle string           `json:"receipt_handle"`
	Acknowledged  bool             `json:"acknowledged"`
	Outcomes      []ingest.Outcome `json:"outcomes"`
	Failures      int              `json:"failures"`
	Error         string           `json:"error,omitempty"`
}

// Result is the observable outcome of one batch. Acknowledged and Retained
// partition the message IDs.
type Result struct {
	Acknowledged []string         `json:"acknowledged"`
	Retained     []string         `json:"retained"`
	Success      []ingest.Outcome `json:"success"`
	Failures     []ingest.Outcome `json:"failures"`
	Unhandled    []ingest.Outcome `json:"unhandled"`
	Messages     []MessageResult  `json:"messages"`
	Duration     time.Duration    `json:"duration"`
}

// Process applies every event of every message and acknowledges the
// messages with no failed event.
//
// Processing is detached from ctx cancellation: once a batch starts, every
// event runs to a terminal outcome.
func (p *Processor) Process(ctx context.Context, msgs []queue.Message) Result {
	ctx = context.WithoutCancel(ctx)
	start := time.Now()

	res := Result{
		Acknowledged: []string{},
		Retained:     []string{},
		Success:      []ingest.Outcome{},
		Failures:     []ingest.Outcome{},
		Unhandled:    []ingest.Outcome{},
	}

	for _, msg := range msgs {
		mr := p.processMessage(ctx, msg)

		for _, o := range mr.Outcomes {
			switch o.Status {
			case ingest.StatusSuccess:
				res.Success = append(res.Success, o)
			case ingest.StatusFailure:
				res.Failures = append(res.Failures, o)
			default:
				res.Unhandled = append(res.Unhandled, o)
			}
		}

		if mr.Failures == 0 {
			if err := p.ack(ctx, msg); err != nil {
				mr.Error = err.Error()
			} else {
				mr.Acknowledged = true
			}
		}

		if mr.Acknowledged {
			res.Acknowledged = append(res.Acknowledged, msg.ID)
		} else {
			res.Retained = append(res.Retained, msg.ID)
		}
		res.Messages = append(res.Messages, mr)
	}

	res.Duration = time.Since(start)
	slog.Info("batch_processed",
		slog.Int("messages", len(msgs)),
		slog.Int("acknowledged", len(res.Acknowledged)),
		slog.Int("retained", len(res.Retained)),
		slog.Int("success", len(res.Success)),
		slog.Int("failures", len(res.Failures)),
		slog.Int("unhandled", len(res.Unhandled)),
		slog.Duration("duration", res.Duration))
	return res
}

func (p *Processor) processMessage(ctx context.Context, msg queue.Message) MessageResult {
	mr := MessageResult{MessageID: msg.ID, ReceiptHandle: msg.ReceiptHandle}

	events, err := event.Parse(msg.ID, msg.Body)
	if err != nil {
		slog.Error("message_rejected",
			append(errors.LogAttrs(err),
				slog.String("message_id", msg.ID),
				slog.Int("receive_count", msg.ReceiveCount))...)
		mr.Outcomes = append(mr.Outcomes, ingest.Outcome{
			Status:   ingest.StatusFailure,
			Document: msg.ID,
			Detail:   ingest.DetailFailed,
			Err:      err,
			Error:    err.Error(),
		})
		mr.Failures++
		mr.Error = err.Error()
		return mr
	}

	for _, ev := range events {
		o := p.route(ctx, ev)
		if o.Status == ingest.StatusFailure {
			mr.Failures++
			slog.Warn("event_failed",
				append(errors.LogAttrs(o.Err),
					slog.String("message_id", msg.ID),
					slog.String("event", ev.EventName),
					slog.String("key", ev.ObjectKey))...)
		}
		mr.Outcomes = append(mr.Outcomes, o)
	}
	return mr
}

func (p *Processor) route(ctx context.Context, ev event.Event) ingest.Outcome {
	switch ev.Kind {
	case event.KindAdded:
		slog.Debug("object_created", slog.String("bucket", ev.Bucket), slog.String("key", ev.ObjectKey))
		return p.creator.Create(ctx, ev)
	case event.KindRemoved:
		slog.Debug("object_removed", slog.String("bucket", ev.Bucket), slog.String("key", ev.ObjectKey))
		return p.remover.Delete(ctx, ev)
	default:
		slog.Warn("event_unhandled", slog.String("event", ev.EventName), slog.String("key", ev.ObjectKey))
		return ingest.Outcome{Kind: ev.Kind, Event: ev, Document: ev.ObjectKey, Detail: ingest.DetailUnhandled}
	}
}

func (p *Processor) ack(ctx context.Context, msg queue.Message) error {
	err := errors.Retry(ctx, p.ackRetry, func() error {
		return p.acker.Delete(ctx, msg.ReceiptHandle)
	})
	if err != nil {
		slog.Warn("ack_failed",
			slog.String("message_id", msg.ID),
			slog.String("error", err.Error()))
	}
	return err
}
