package queue

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Aman-CERP/ragingest/internal/sqldb"
)

const (
	defaultQueueName = "ingest"
	messagesTable    = "queue_messages"
	deadLetterTable  = "queue_dead_letters"
)

// SQLQueue is a Queue stored in SQLite or Postgres. Several consumers may
// share one Postgres database; rows are locked with FOR UPDATE SKIP LOCKED
// while being handed out.
type SQLQueue struct {
	db   *sqldb.DB
	name string
	opts Options
	now  func() time.Time
}

var _ Queue = (*SQLQueue)(nil)

// NewSQLQueue creates the queue schema in db if missing. name partitions
// several logical queues inside one table.
func NewSQLQueue(ctx context.Context, db *sqldb.DB, name string, opts Options) (*SQLQueue, error) {
	if name == "" {
		name = defaultQueueName
	}
	q := &SQLQueue{db: db, name: name, opts: opts.WithDefaults(), now: time.Now}

	messages := sqldb.QuoteIdentifier(messagesTable)
	dead := sqldb.QuoteIdentifier(deadLetterTable)
	err := db.Migrate(ctx,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			queue_name TEXT NOT NULL,
			body TEXT NOT NULL,
			receipt_handle TEXT NOT NULL DEFAULT '',
			receive_count INTEGER NOT NULL DEFAULT 0,
			visible_at BIGINT NOT NULL,
			sent_at BIGINT NOT NULL
		)`, messages),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (queue_name, visible_at, sent_at)",
			sqldb.QuoteIdentifier(messagesTable+"_visible_idx"), messages),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (receipt_handle)",
			sqldb.QuoteIdentifier(messagesTable+"_receipt_idx"), messages),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			queue_name TEXT NOT NULL,
			body TEXT NOT NULL,
			receive_count INTEGER NOT NULL,
			sent_at BIGINT NOT NULL,
			dead_at BIGINT NOT NULL
		)`, dead),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create queue schema: %w", err)
	}
	return q, nil
}

func (q *SQLQueue) Send(ctx context.Context, body []byte) (string, error) {
	id := uuid.NewString()
	now := q.now().UnixNano()
	query := fmt.Sprintf(
		"INSERT INTO %s (id, queue_name, body, visible_at, sent_at) VALUES (?, ?, ?, ?, ?)",
		sqldb.QuoteIdentifier(messagesTable))
	if _, err := q.db.Exec(ctx, query, id, q.name, string(body), now, now); err != nil {
		return "", fmt.Errorf("failed to send message: %w", err)
	}
	return id, nil
}

func (q *SQLQueue) Receive(ctx context.Context, max int) ([]Message, error) {
	if max <= 0 {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(ctx, sqldb.OperationTimeout)
	defer cancel()

	now := q.now()
	var out []Message
	err := q.db.InTx(ctx, func(tx *sql.Tx) error {
		out = out[:0]
		candidates, err := q.selectVisible(ctx, tx, now, max)
		if err != nil {
			return err
		}
		for _, m := range candidates {
			if q.opts.exceeded(m.ReceiveCount + 1) {
				if err := q.deadLetter(ctx, tx, m, now); err != nil {
					return err
				}
				continue
			}
			m.ReceiveCount++
			m.ReceiptHandle = uuid.NewString()
			update := fmt.Sprintf(
				"UPDATE %s SET receipt_handle = ?, receive_count = ?, visible_at = ? WHERE id = ?",
				sqldb.QuoteIdentifier(messagesTable))
			if _, err := tx.ExecContext(ctx, q.db.Rebind(update),
				m.ReceiptHandle, m.ReceiveCount, now.Add(q.opts.VisibilityTimeout).UnixNano(), m.ID); err != nil {
				return fmt.Errorf("failed to hide message: %w", err)
			}
			out = append(out, m)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to receive messages: %w", err)
	}
	return out, nil
}

func (q *SQLQueue) selectVisible(ctx context.Context, tx *sql.Tx, now time.Time, max int) ([]Message, error) {
	query := fmt.Sprintf(`
		SELECT id, body, receive_count, sent_at
		FROM %s
		WHERE queue_name = ? AND visible_at <= ?
		ORDER BY sent_at ASC, id ASC
		LIMIT ?`, sqldb.QuoteIdentifier(messagesTable))
	if q.db.Dialect == sqldb.Postgres {
		query += " FOR UPDATE SKIP LOCKED"
	}
	rows, err := tx.QueryContext(ctx, q.db.Rebind(query), q.name, now.UnixNano(), max)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []Message
	for rows.Next() {
		var (
			m      Message
			body   string
			sentAt int64
		)
		if err := rows.Scan(&m.ID, &body, &m.ReceiveCount, &sentAt); err != nil {
			return nil, err
		}
		m.Body = []byte(body)
		m.SentAt = time.Unix(0, sentAt)
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

func (q *SQLQueue) deadLetter(ctx context.Context, tx *sql.Tx, m Message, now time.Time) error {
	insert := fmt.Sprintf(
		"INSERT INTO %s (id, queue_name, body, receive_count, sent_at, dead_at) VALUES (?, ?, ?, ?, ?, ?)",
		sqldb.QuoteIdentifier(deadLetterTable))
	if _, err := tx.ExecContext(ctx, q.db.Rebind(insert),
		m.ID, q.name, string(m.Body), m.ReceiveCount, m.SentAt.UnixNano(), now.UnixNano()); err != nil {
		return fmt.Errorf("failed to dead-letter message %s: %w", m.ID, err)
	}
	del := fmt.Sprintf("DELETE FROM %s WHERE id = ?", sqldb.QuoteIdentifier(messagesTable))
	if _, err := tx.ExecContext(ctx, q.db.Rebind(del), m.ID); err != nil {
		return fmt.Errorf("failed to dead-letter message %s: %w", m.ID, err)
	}
	return nil
}

func (q *SQLQueue) Delete(ctx context.Context, receiptHandle string) error {
	if receiptHandle == "" {
		return nil
	}
	query := fmt.Sprintf("DELETE FROM %s WHERE queue_name = ? AND receipt_handle = ?", sqldb.QuoteIdentifier(messagesTable))
	if _, err := q.db.Exec(ctx, query, q.name, receiptHandle); err != nil {
		return fmt.Errorf("failed to delete message: %w", err)
	}
	return nil
}

func (q *SQLQueue) DeadLetters(ctx context.Context) ([]Message, error) {
	ctx, cancel := context.WithTimeout(ctx, sqldb.OperationTimeout)
	defer cancel()

	query := fmt.Sprintf(
		"SELECT id, body, receive_count, sent_at FROM %s WHERE queue_name = ? ORDER BY dead_at ASC, id ASC",
		sqldb.QuoteIdentifier(deadLetterTable))
	rows, err := q.db.QueryContext(ctx, q.db.Rebind(query), q.name)
	if err != nil {
		return nil, fmt.Errorf("failed to list dead letters: %w", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var (
			m      Message
			body   string
			sentAt int64
		)
		if err := rows.Scan(&m.ID, &body, &m.ReceiveCount, &sentAt); err != nil {
			return nil, fmt.Errorf("failed to scan dead letter: %w", err)
		}
		m.Body = []byte(body)
		m.SentAt = time.Unix(0, sentAt)
		out = append(out, m)
	}
	return out, rows.Err()
}

func (q *SQLQueue) Close() error {
	return q.db.Close()
}
