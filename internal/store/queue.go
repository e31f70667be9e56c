package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/fintrackapp/fintrack/internal/model"
)

// RetryCeiling is the number of push attempts before a queue item is dropped
// and surfaced as a permanent failure.
const RetryCeiling = 3

// ErrRetriesExhausted is returned by RequeueWithBackoff when an item has
// exceeded the retry ceiling and has been dropped from the queue.
var ErrRetriesExhausted = errors.New("retries exhausted")

// QueueItem is one durable, not-yet-acknowledged local mutation.
type QueueItem struct {
	// Seq is the monotonic enqueue sequence; drain order.
	Seq int64

	// ID identifies the item for Remove.
	ID string

	Table      model.Table
	Op         model.Op
	RecordID   string
	Payload    json.RawMessage
	EnqueuedAt time.Time
	Retries    int
}

// Queue is the durable FIFO log of pending local mutations. It shares the
// store's database so a crash mid-sync never loses an operation.
type Queue struct {
	s *Store
}

// Queue returns the store's sync queue.
func (s *Store) Queue() *Queue {
	return &Queue{s: s}
}

// Enqueue appends a mutation with retries = 0 and returns the stored item.
func (q *Queue) Enqueue(ctx context.Context, table model.Table, op model.Op, recordID string, payload json.RawMessage) (*QueueItem, error) {
	if recordID == "" {
		return nil, fmt.Errorf("record ID cannot be empty")
	}
	if payload == nil {
		payload = json.RawMessage("{}")
	}
	if !json.Valid(payload) {
		return nil, fmt.Errorf("payload is not valid JSON")
	}

	item := &QueueItem{
		ID:         uuid.NewString(),
		Table:      table,
		Op:         op,
		RecordID:   recordID,
		Payload:    payload,
		EnqueuedAt: time.Now().UTC(),
	}

	res, err := q.s.conn.ExecContext(ctx, `
		INSERT INTO sync_queue (id, tbl, op, record_id, payload, enqueued_at, retries)
		VALUES (?, ?, ?, ?, ?, ?, 0)`,
		item.ID, string(table), string(op), recordID,
		string(payload), item.EnqueuedAt.Format(timeLayout))
	if err != nil {
		return nil, fmt.Errorf("failed to enqueue %s %s: %w", op, recordID, err)
	}

	item.Seq, err = res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read enqueue sequence: %w", err)
	}

	return item, nil
}

// Drain returns all pending items oldest-first. Ordering across tables is
// incidental; ordering among operations on the same record is guaranteed by
// the sequence column, so an update is never applied before its create.
func (q *Queue) Drain(ctx context.Context) ([]*QueueItem, error) {
	rows, err := q.s.conn.QueryContext(ctx, `
		SELECT seq, id, tbl, op, record_id, payload, enqueued_at, retries
		FROM sync_queue ORDER BY seq ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to drain queue: %w", err)
	}
	defer rows.Close()

	var items []*QueueItem
	for rows.Next() {
		var (
			item       QueueItem
			tbl        string
			op         string
			payload    string
			enqueuedAt string
		)
		if err := rows.Scan(&item.Seq, &item.ID, &tbl, &op, &item.RecordID,
			&payload, &enqueuedAt, &item.Retries); err != nil {
			return nil, fmt.Errorf("failed to scan queue item: %w", err)
		}

		if item.Table, err = model.ParseTable(tbl); err != nil {
			return nil, fmt.Errorf("queue item %s: %w", item.ID, err)
		}
		if item.Op, err = model.ParseOp(op); err != nil {
			return nil, fmt.Errorf("queue item %s: %w", item.ID, err)
		}
		item.Payload = json.RawMessage(payload)
		if item.EnqueuedAt, err = time.Parse(timeLayout, enqueuedAt); err != nil {
			return nil, fmt.Errorf("queue item %s: bad enqueued_at: %w", item.ID, err)
		}

		items = append(items, &item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan queue: %w", err)
	}
	return items, nil
}

// Remove deletes an item after the remote confirms persistence. Removing a
// missing item is not an error (idempotent).
func (q *Queue) Remove(ctx context.Context, id string) error {
	_, err := q.s.conn.ExecContext(ctx, "DELETE FROM sync_queue WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to remove queue item %s: %w", id, err)
	}
	return nil
}

// RequeueWithBackoff increments the item's retry count after a failed push.
// Past the retry ceiling the item is dropped and ErrRetriesExhausted is
// returned so the failure is reported, not silently discarded.
func (q *Queue) RequeueWithBackoff(ctx context.Context, item *QueueItem) error {
	item.Retries++

	if item.Retries > RetryCeiling {
		if err := q.Remove(ctx, item.ID); err != nil {
			return err
		}
		return ErrRetriesExhausted
	}

	_, err := q.s.conn.ExecContext(ctx,
		"UPDATE sync_queue SET retries = ? WHERE id = ?", item.Retries, item.ID)
	if err != nil {
		return fmt.Errorf("failed to requeue item %s: %w", item.ID, err)
	}
	return nil
}

// Len returns the number of pending items.
func (q *Queue) Len(ctx context.Context) (int, error) {
	var n int
	if err := q.s.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM sync_queue").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count queue: %w", err)
	}
	return n, nil
}

// Clear discards every pending item (logout path).
func (q *Queue) Clear(ctx context.Context) error {
	if _, err := q.s.conn.ExecContext(ctx, "DELETE FROM sync_queue"); err != nil {
		return fmt.Errorf("failed to clear queue: %w", err)
	}
	return nil
}
