package queue

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryQueue is an in-process Queue.
type MemoryQueue struct {
	opts Options
	now  func() time.Time

	mu      sync.Mutex
	closed  bool
	pending []*memoryItem
	dead    []Message
}

type memoryItem struct {
	msg       Message
	visibleAt time.Time
}

var _ Queue = (*MemoryQueue)(nil)

// NewMemoryQueue creates an empty in-memory queue.
func NewMemoryQueue(opts Options) *MemoryQueue {
	return &MemoryQueue{opts: opts.WithDefaults(), now: time.Now}
}

func (q *MemoryQueue) Send(_ context.Context, body []byte) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return "", ErrClosed
	}
	id := uuid.NewString()
	q.pending = append(q.pending, &memoryItem{
		msg: Message{ID: id, Body: append([]byte(nil), body...), SentAt: q.now()},
	})
	return id, nil
}

func (q *MemoryQueue) Receive(_ context.Context, max int) ([]Message, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil, ErrClosed
	}
	if max <= 0 {
		return nil, nil
	}

	now := q.now()
	out := make([]Message, 0, max)
	kept := q.pending[:0]
	for _, it := range q.pending {
		if len(out) >= max || it.visibleAt.After(now) {
			kept = append(kept, it)
			continue
		}
		if q.opts.exceeded(it.msg.ReceiveCount + 1) {
			it.msg.ReceiptHandle = ""
			q.dead = append(q.dead, it.msg)
			continue
		}
		it.msg.ReceiveCount++
		it.msg.ReceiptHandle = uuid.NewString()
		it.visibleAt = now.Add(q.opts.VisibilityTimeout)
		out = append(out, it.msg)
		kept = append(kept, it)
	}
	q.pending = kept
	return out, nil
}

func (q *MemoryQueue) Delete(_ context.Context, receiptHandle string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrClosed
	}
	for i, it := range q.pending {
		if receiptHandle != "" && it.msg.ReceiptHandle == receiptHandle {
			q.pending = append(q.pending[:i], q.pending[i+1:]...)
			return nil
		}
	}
	return nil
}

func (q *MemoryQueue) DeadLetters(_ context.Context) ([]Message, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]Message(nil), q.dead...), nil
}

// Len returns the number of messages not yet deleted or dead-lettered.
func (q *MemoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	return nil
}
