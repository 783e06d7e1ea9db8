package queue

import (
	"context"
	"fmt"
	"strings"

	"github.com/Aman-CERP/ragingest/internal/sqldb"
)

// Open builds a Queue from a DSN.
//
//	memory://                         in-process
//	sqlite:///var/lib/ragingest/q.db  embedded
//	postgres://...                    shared between processes
//	sqs://... redis://... kafka://... ErrNotImplemented
func Open(ctx context.Context, dsn string, opts Options) (Queue, error) {
	dsn = strings.TrimSpace(dsn)
	lower := strings.ToLower(dsn)
	switch {
	case lower == "" || lower == "memory://" || lower == "mem://" || lower == "inmem://":
		return NewMemoryQueue(opts), nil
	case strings.HasPrefix(lower, "sqs:"), strings.HasPrefix(lower, "https://sqs."),
		strings.HasPrefix(lower, "redis:"), strings.HasPrefix(lower, "nats:"), strings.HasPrefix(lower, "kafka:"):
		return nil, fmt.Errorf("%w: queue backend %s", sqldb.ErrNotImplemented, dsn)
	}

	db, err := sqldb.Open(dsn)
	if err != nil {
		return nil, err
	}
	q, err := NewSQLQueue(ctx, db, defaultQueueName, opts)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return q, nil
}
