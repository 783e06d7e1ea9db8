// Package queue is an at-least-once message queue with visibility timeouts
// and a dead-letter table, modelled on hosted queues that deliver change
// notifications in batches.
//
// A received message stays invisible for the visibility timeout. If it is
// not deleted by then, it is delivered again with a fresh receipt handle.
// A message received more than MaxReceives times moves to the dead letters.
package queue

import (
	"context"
	"errors"
	"time"
)

// ErrClosed is returned by operations on a closed queue.
var ErrClosed = errors.New("queue closed")

// Message is one delivery.
type Message struct {
	ID string `json:"id"`
	// ReceiptHandle identifies this delivery. It changes on every receive
	// and is the only way to delete the message.
	ReceiptHandle string    `json:"receipt_handle"`
	Body          []byte    `json:"-"`
	ReceiveCount  int       `json:"receive_count"`
	SentAt        time.Time `json:"sent_at"`
}

// Queue is the consumer and producer view of a queue.
type Queue interface {
	// Send enqueues body and returns the message ID.
	Send(ctx context.Context, body []byte) (string, error)

	// Receive returns up to max visible messages and hides them for the
	// visibility timeout. It returns an empty slice when nothing is visible.
	Receive(ctx context.Context, max int) ([]Message, error)

	// Delete acknowledges a delivery. Deleting with a stale or unknown
	// handle is a no-op.
	Delete(ctx context.Context, receiptHandle string) error

	// DeadLetters lists messages that exceeded MaxReceives.
	DeadLetters(ctx context.Context) ([]Message, error)

	// Close releases resources.
	Close() error
}

// Options tune redelivery.
type Options struct {
	// VisibilityTimeout is how long a received message stays hidden.
	VisibilityTimeout time.Duration

	// MaxReceives is the number of deliveries before a message is
	// dead-lettered. Zero disables dead-lettering.
	MaxReceives int
}

// DefaultOptions returns 30s visibility and 5 receives.
func DefaultOptions() Options {
	return Options{
		VisibilityTimeout: 30 * time.Second,
		MaxReceives:       5,
	}
}

// WithDefaults fills zero values from DefaultOptions.
func (o Options) WithDefaults() Options {
	d := DefaultOptions()
	if o.VisibilityTimeout <= 0 {
		o.VisibilityTimeout = d.VisibilityTimeout
	}
	if o.MaxReceives < 0 {
		o.MaxReceives = 0
	}
	return o
}

// exceeded reports whether a message about to be delivered for the
// receiveCount-th time must be dead-lettered instead.
func (o Options) exceeded(receiveCount int) bool {
	return o.MaxReceives > 0 && receiveCount > o.MaxReceives
}
