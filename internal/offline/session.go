package offline

import (
	"context"
	"fmt"
	"log"

	"github.com/TWRT/task-tracker/internal/client"
	"github.com/TWRT/task-tracker/internal/models"
	"github.com/TWRT/task-tracker/internal/service"
)

// Session is the client entry point. Operations are applied to the local
// replica first and then either sent to the remote or queued; callers get
// the optimistic local result either way.
type Session struct {
	local       *service.TaskService
	queue       *Queue
	coordinator *Coordinator
	remote      client.TaskRemote
}

func NewSession(local *service.TaskService, queue *Queue, coordinator *Coordinator, remote client.TaskRemote) *Session {
	return &Session{
		local:       local,
		queue:       queue,
		coordinator: coordinator,
		remote:      remote,
	}
}

// Apply runs op against the local replica and forwards it to the remote.
// Validation and not-found errors come back before anything is queued. A
// queueing failure is returned as an error even though the local write
// succeeded, since the mutation would otherwise be lost.
func (s *Session) Apply(ctx context.Context, op models.Operation) (*models.Task, error) {
	task, err := s.local.Apply(ctx, op)
	if err != nil {
		return nil, err
	}

	if _, err := s.EnqueueIfOffline(ctx, capture(op, task)); err != nil {
		return nil, fmt.Errorf("%s %s: %w", op.Kind, task.Id, err)
	}
	return task, nil
}

// EnqueueIfOffline sends op to the remote when nothing is waiting ahead of
// it, and queues it otherwise or when the remote cannot be reached. A
// rejection from the remote is returned and nothing is queued. It reports
// whether op was queued.
func (s *Session) EnqueueIfOffline(ctx context.Context, op models.Operation) (bool, error) {
	pending, err := s.queue.Size(ctx)
	if err != nil {
		return false, err
	}

	if pending == 0 {
		sendCtx, cancel := context.WithTimeout(ctx, s.coordinator.replayTimeout)
		_, err := s.remote.Apply(sendCtx, op)
		cancel()
		if err == nil {
			return false, nil
		}
		if !retryable(err) {
			return false, fmt.Errorf("remote rejected %s %s: %w", op.Method(), op.Path(), err)
		}
		log.Printf("remote unavailable for %s %s, queueing: %v", op.Method(), op.Path(), err)
	}

	if _, err := s.queue.Enqueue(ctx, op); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Session) Flush(ctx context.Context) (FlushResult, error) {
	return s.coordinator.Flush(ctx)
}

func (s *Session) Pending(ctx context.Context) (int, error) {
	return s.queue.Size(ctx)
}

func (s *Session) Queue() *Queue {
	return s.queue
}

func (s *Session) Local() *service.TaskService {
	return s.local
}

// capture fills op with the absolute values the local apply produced, so a
// later replay needs no state from the time it was recorded.
func capture(op models.Operation, task *models.Task) models.Operation {
	op.TaskId = task.Id

	switch op.Kind {
	case models.OpCreate:
		in := *op.Create
		in.Id = task.Id
		startAt := task.StartAt
		in.StartAt = &startAt
		op.Create = &in
	case models.OpComplete:
		if task.CompletedAt != nil {
			completedAt := *task.CompletedAt
			op.CompletedAt = &completedAt
		}
	case models.OpExtend:
		dueAt := task.DueAt
		op.DueAt = &dueAt
	}

	return op
}
