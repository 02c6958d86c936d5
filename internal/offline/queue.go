// Package offline keeps a client working while the authoritative store is
// unreachable: operations are applied locally, recorded in a durable queue,
// and replayed in order once the store answers again.
package offline

import (
	"context"
	"fmt"
	"time"

	"github.com/TWRT/task-tracker/internal/models"
	"github.com/google/uuid"
)

// Log is the durable, append-only surface the queue is built on. Entries are
// returned in append order and addressed by id.
type Log interface {
	Append(ctx context.Context, m *models.PendingMutation) error
	List(ctx context.Context) ([]models.PendingMutation, error)
	Delete(ctx context.Context, id string) error
	Count(ctx context.Context) (int, error)
	RecordFailure(ctx context.Context, id string, reason string) error
}

// Queue is a FIFO of operations waiting to reach the remote store. It does
// no deduplication: every entry is replayed exactly as captured.
type Queue struct {
	log Log
	now func() time.Time
}

func NewQueue(log Log) *Queue {
	return &Queue{log: log, now: time.Now}
}

// Enqueue persists op at the back of the queue. The returned error means the
// operation was not recorded and must be reported to the caller.
func (q *Queue) Enqueue(ctx context.Context, op models.Operation) (*models.PendingMutation, error) {
	m := &models.PendingMutation{
		Id:         uuid.NewString(),
		Method:     op.Method(),
		Path:       op.Path(),
		Operation:  op,
		EnqueuedAt: q.now(),
	}
	if err := q.log.Append(ctx, m); err != nil {
		return nil, fmt.Errorf("enqueue %s %s: %w", m.Method, m.Path, err)
	}
	return m, nil
}

// Drain returns a snapshot of the queue in FIFO order. Nothing is removed.
func (q *Queue) Drain(ctx context.Context) ([]models.PendingMutation, error) {
	mutations, err := q.log.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("drain queue: %w", err)
	}
	return mutations, nil
}

// Remove deletes the entry with the given id.
func (q *Queue) Remove(ctx context.Context, id string) error {
	if err := q.log.Delete(ctx, id); err != nil {
		return fmt.Errorf("remove mutation: %w", err)
	}
	return nil
}

// MarkFailed records a failed replay without moving the entry.
func (q *Queue) MarkFailed(ctx context.Context, id string, cause error) error {
	if err := q.log.RecordFailure(ctx, id, cause.Error()); err != nil {
		return fmt.Errorf("mark mutation failed: %w", err)
	}
	return nil
}

func (q *Queue) Size(ctx context.Context) (int, error) {
	n, err := q.log.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("queue size: %w", err)
	}
	return n, nil
}
