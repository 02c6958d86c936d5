package service

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/TWRT/task-tracker/internal/models"
	"github.com/TWRT/task-tracker/internal/status"
)

// TaskStore is the persistence surface the lifecycle runs against. The
// server backs it with its authoritative database; the offline client backs
// it with a local replica.
type TaskStore interface {
	CreateTask(ctx context.Context, task *models.Task) (*models.Task, error)
	GetTask(ctx context.Context, id string) (*models.Task, error)
	ListTasks(ctx context.Context, filter models.TaskFilter) ([]models.Task, error)
	UpdateTask(ctx context.Context, id string, upd models.TaskUpdate) (*models.Task, error)
	AppendAuditEntry(ctx context.Context, taskID string, action models.AuditAction, meta map[string]any) error
	ListAuditEntries(ctx context.Context, taskID string) ([]models.AuditEntry, error)
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// TaskService applies domain operations to tasks. Every write that touches
// dueAt or completedAt persists the re-derived status in the same update, and
// every read corrects a stale cached status before returning.
type TaskService struct {
	store TaskStore
	now   func() time.Time
}

func NewTaskService(store TaskStore) *TaskService {
	return &TaskService{
		store: store,
		now:   time.Now,
	}
}

// WithClock replaces the service clock.
func (s *TaskService) WithClock(now func() time.Time) *TaskService {
	s.now = now
	return s
}

func (s *TaskService) Create(ctx context.Context, in models.CreateInput) (*models.Task, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, invalid("title", "must not be empty")
	}
	if in.EstimatedDays < 0 {
		return nil, invalid("estimatedDays", "must be non-negative, got %d", in.EstimatedDays)
	}

	priority := in.Priority
	if priority == "" {
		priority = models.DefaultPriority
	}
	if !models.ValidPriority(priority) {
		return nil, invalid("priority", "must be one of Low, Medium, High, got %q", priority)
	}
	category := in.Category
	if category == "" {
		category = models.DefaultCategory
	}

	now := s.now()
	startAt := now
	if in.StartAt != nil {
		startAt = *in.StartAt
	}
	dueAt := models.DueFrom(startAt, in.EstimatedDays)

	var task *models.Task
	err := s.store.RunInTx(ctx, func(ctx context.Context) error {
		created, err := s.store.CreateTask(ctx, &models.Task{
			Id:            in.Id,
			Title:         title,
			Notes:         in.Notes,
			Category:      category,
			Priority:      priority,
			StartAt:       startAt,
			EstimatedDays: in.EstimatedDays,
			DueAt:         dueAt,
			Status:        status.Derive(dueAt, nil, now),
		})
		if err != nil {
			return fmt.Errorf("create task: %w", err)
		}
		if err := s.store.AppendAuditEntry(ctx, created.Id, models.AuditCreated, nil); err != nil {
			return fmt.Errorf("audit create: %w", err)
		}
		task = created
		return nil
	})
	if err != nil {
		return nil, err
	}
	return task, nil
}

func (s *TaskService) Edit(ctx context.Context, id string, in models.EditInput) (*models.Task, error) {
	if in.Title != nil && strings.TrimSpace(*in.Title) == "" {
		return nil, invalid("title", "must not be empty")
	}
	if in.EstimatedDays != nil && *in.EstimatedDays < 0 {
		return nil, invalid("estimatedDays", "must be non-negative, got %d", *in.EstimatedDays)
	}
	if in.Priority != nil && !models.ValidPriority(*in.Priority) {
		return nil, invalid("priority", "must be one of Low, Medium, High, got %q", *in.Priority)
	}

	var task *models.Task
	err := s.store.RunInTx(ctx, func(ctx context.Context) error {
		existing, err := s.store.GetTask(ctx, id)
		if err != nil {
			return notFound(id, "get task", err)
		}

		upd := models.TaskUpdate{
			Notes:         in.Notes,
			Category:      in.Category,
			Priority:      in.Priority,
			Archived:      in.Archived,
			AssigneeId:    in.AssigneeId,
			EstimatedDays: in.EstimatedDays,
		}
		if in.Title != nil {
			title := strings.TrimSpace(*in.Title)
			upd.Title = &title
		}

		dueAt := existing.DueAt
		if in.EstimatedDays != nil {
			dueAt = models.DueFrom(existing.StartAt, *in.EstimatedDays)
			upd.DueAt = &dueAt
		}
		derived := status.Derive(dueAt, existing.CompletedAt, s.now())
		upd.Status = &derived

		updated, err := s.store.UpdateTask(ctx, id, upd)
		if err != nil {
			return notFound(id, "update task", err)
		}

		if in.EstimatedDays != nil {
			meta := map[string]any{"estimatedDays": *in.EstimatedDays}
			if err := s.store.AppendAuditEntry(ctx, id, models.AuditEdited, meta); err != nil {
				return fmt.Errorf("audit edit: %w", err)
			}
		}
		task = updated
		return nil
	})
	if err != nil {
		return nil, err
	}
	return task, nil
}

// Complete stamps completedAt with at, or the current time when at is nil.
// Completing an already completed task stamps it again.
func (s *TaskService) Complete(ctx context.Context, id string, at *time.Time) (*models.Task, error) {
	return s.transition(ctx, id, models.AuditCompleted, nil, func(existing *models.Task, now time.Time) models.TaskUpdate {
		completedAt := now
		if at != nil {
			completedAt = *at
		}
		derived := status.Derive(existing.DueAt, &completedAt, now)
		return models.TaskUpdate{CompletedAt: &completedAt, Status: &derived}
	})
}

func (s *TaskService) Reopen(ctx context.Context, id string) (*models.Task, error) {
	return s.transition(ctx, id, models.AuditReopened, nil, func(existing *models.Task, now time.Time) models.TaskUpdate {
		derived := status.Derive(existing.DueAt, nil, now)
		return models.TaskUpdate{ClearCompleted: true, Status: &derived}
	})
}

// Extend shifts the current due date by addDays. A non-nil dueAt is the
// already computed target, used when an extension recorded offline is
// replayed.
func (s *TaskService) Extend(ctx context.Context, id string, addDays int, dueAt *time.Time) (*models.Task, error) {
	if addDays < 1 {
		return nil, invalid("addDays", "must be at least 1, got %d", addDays)
	}

	meta := map[string]any{"addDays": addDays}
	return s.transition(ctx, id, models.AuditExtendedDeadline, meta, func(existing *models.Task, now time.Time) models.TaskUpdate {
		newDue := existing.DueAt.AddDate(0, 0, addDays)
		if dueAt != nil {
			newDue = *dueAt
		}
		derived := status.Derive(newDue, existing.CompletedAt, now)
		return models.TaskUpdate{DueAt: &newDue, Status: &derived}
	})
}

// transition loads the task, applies the update built by change and appends
// the audit entry, all in one transaction.
func (s *TaskService) transition(ctx context.Context, id string, action models.AuditAction, meta map[string]any,
	change func(existing *models.Task, now time.Time) models.TaskUpdate) (*models.Task, error) {
	var task *models.Task
	err := s.store.RunInTx(ctx, func(ctx context.Context) error {
		existing, err := s.store.GetTask(ctx, id)
		if err != nil {
			return notFound(id, "get task", err)
		}

		updated, err := s.store.UpdateTask(ctx, id, change(existing, s.now()))
		if err != nil {
			return notFound(id, "update task", err)
		}

		if err := s.store.AppendAuditEntry(ctx, id, action, meta); err != nil {
			return fmt.Errorf("audit %s: %w", action, err)
		}
		task = updated
		return nil
	})
	if err != nil {
		return nil, err
	}
	return task, nil
}

// Apply dispatches op to the matching lifecycle operation.
func (s *TaskService) Apply(ctx context.Context, op models.Operation) (*models.Task, error) {
	switch op.Kind {
	case models.OpCreate:
		if op.Create == nil {
			return nil, invalid("create", "payload is required")
		}
		return s.Create(ctx, *op.Create)
	case models.OpEdit:
		if op.Edit == nil {
			return nil, invalid("edit", "payload is required")
		}
		return s.Edit(ctx, op.TaskId, *op.Edit)
	case models.OpComplete:
		return s.Complete(ctx, op.TaskId, op.CompletedAt)
	case models.OpReopen:
		return s.Reopen(ctx, op.TaskId)
	case models.OpExtend:
		return s.Extend(ctx, op.TaskId, op.AddDays, op.DueAt)
	default:
		return nil, invalid("kind", "unknown operation %q", op.Kind)
	}
}

// Get returns the task with its audit trail and a freshly derived status.
func (s *TaskService) Get(ctx context.Context, id string) (*models.Task, error) {
	task, err := s.store.GetTask(ctx, id)
	if err != nil {
		return nil, notFound(id, "get task", err)
	}

	if _, err := s.heal(ctx, task, s.now()); err != nil {
		return nil, err
	}

	entries, err := s.store.ListAuditEntries(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	task.AuditLog = entries

	return task, nil
}

// List returns the tasks matching filter. Statuses are recomputed against
// the current time before the status filter is applied.
func (s *TaskService) List(ctx context.Context, filter models.TaskFilter) ([]models.Task, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, invalid("status", "unknown status %q", filter.Status)
	}

	tasks, err := s.store.ListTasks(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}

	now := s.now()
	result := make([]models.Task, 0, len(tasks))
	for i := range tasks {
		if _, err := s.heal(ctx, &tasks[i], now); err != nil {
			return nil, err
		}
		if filter.Status != "" && tasks[i].Status != filter.Status {
			continue
		}
		result = append(result, tasks[i])
	}

	return result, nil
}

// RefreshStatuses recomputes every task, archived ones included, and returns
// how many cached statuses were corrected.
func (s *TaskService) RefreshStatuses(ctx context.Context) (int, error) {
	tasks, err := s.store.ListTasks(ctx, models.TaskFilter{IncludeArchived: true})
	if err != nil {
		return 0, fmt.Errorf("list tasks: %w", err)
	}

	now := s.now()
	corrected := 0
	for i := range tasks {
		changed, err := s.heal(ctx, &tasks[i], now)
		if err != nil {
			return corrected, err
		}
		if changed {
			corrected++
		}
	}
	return corrected, nil
}

func (s *TaskService) heal(ctx context.Context, task *models.Task, now time.Time) (bool, error) {
	computed := status.Of(*task, now)
	if computed == task.Status {
		return false, nil
	}

	log.Printf("task %s: status %q -> %q", task.Id, task.Status, computed)
	updated, err := s.store.UpdateTask(ctx, task.Id, models.TaskUpdate{Status: &computed})
	if err != nil {
		return false, notFound(task.Id, "correct status", err)
	}
	task.Status = updated.Status
	task.UpdatedAt = updated.UpdatedAt
	return true, nil
}
