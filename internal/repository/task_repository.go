package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/TWRT/task-tracker/internal/models"
	"github.com/google/uuid"
)

const taskColumns = `id, title, notes, category, priority, assignee_id, start_at, estimated_days,
	due_at, completed_at, status, archived, created_at, updated_at`

type TaskRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewTaskRepository(db *sql.DB) *TaskRepository {
	return &TaskRepository{db: db, now: time.Now}
}

// CreateTask inserts task, assigning an id when the caller left it empty.
func (r *TaskRepository) CreateTask(ctx context.Context, task *models.Task) (*models.Task, error) {
	created := *task
	if created.Id == "" {
		created.Id = uuid.NewString()
	}
	now := r.now()
	created.CreatedAt = now
	created.UpdatedAt = now

	query := `
	INSERT INTO tasks (` + taskColumns + `)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := conn(ctx, r.db).ExecContext(ctx, query,
		created.Id,
		created.Title,
		created.Notes,
		created.Category,
		created.Priority,
		created.AssigneeId,
		formatTime(created.StartAt),
		created.EstimatedDays,
		formatTime(created.DueAt),
		formatNullTime(created.CompletedAt),
		string(created.Status),
		created.Archived,
		formatTime(created.CreatedAt),
		formatTime(created.UpdatedAt),
	)
	if err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}

	return &created, nil
}

func (r *TaskRepository) GetTask(ctx context.Context, id string) (*models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = ?`

	task, err := scanTask(conn(ctx, r.db).QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return task, nil
}

// ListTasks applies every filter except Status, which depends on the clock
// and is evaluated by the caller after recomputation.
func (r *TaskRepository) ListTasks(ctx context.Context, filter models.TaskFilter) ([]models.Task, error) {
	var (
		where []string
		args  []any
	)

	if !filter.IncludeArchived {
		where = append(where, "archived = 0")
	}
	if s := strings.TrimSpace(filter.Search); s != "" {
		like := "%" + strings.ToLower(s) + "%"
		where = append(where, "(LOWER(title) LIKE ? OR LOWER(notes) LIKE ?)")
		args = append(args, like, like)
	}
	if filter.Category != "" {
		where = append(where, "category = ?")
		args = append(args, filter.Category)
	}
	if filter.Priority != "" {
		where = append(where, "priority = ?")
		args = append(args, filter.Priority)
	}
	if filter.From != nil {
		where = append(where, "start_at >= ?")
		args = append(args, formatTime(*filter.From))
	}
	if filter.To != nil {
		where = append(where, "start_at <= ?")
		args = append(args, formatTime(*filter.To))
	}

	query := `SELECT ` + taskColumns + ` FROM tasks`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id"

	rows, err := conn(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []models.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, *task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}

	return tasks, nil
}

// UpdateTask writes every non-nil field of upd in a single statement and
// returns the stored row.
func (r *TaskRepository) UpdateTask(ctx context.Context, id string, upd models.TaskUpdate) (*models.Task, error) {
	var (
		sets []string
		args []any
	)
	set := func(column string, value any) {
		sets = append(sets, column+" = ?")
		args = append(args, value)
	}

	if upd.Title != nil {
		set("title", *upd.Title)
	}
	if upd.Notes != nil {
		set("notes", *upd.Notes)
	}
	if upd.Category != nil {
		set("category", *upd.Category)
	}
	if upd.Priority != nil {
		set("priority", *upd.Priority)
	}
	if upd.AssigneeId != nil {
		set("assignee_id", *upd.AssigneeId)
	}
	if upd.Archived != nil {
		set("archived", *upd.Archived)
	}
	if upd.EstimatedDays != nil {
		set("estimated_days", *upd.EstimatedDays)
	}
	if upd.DueAt != nil {
		set("due_at", formatTime(*upd.DueAt))
	}
	if upd.ClearCompleted {
		set("completed_at", sql.NullString{})
	} else if upd.CompletedAt != nil {
		set("completed_at", formatNullTime(upd.CompletedAt))
	}
	if upd.Status != nil {
		set("status", string(*upd.Status))
	}
	set("updated_at", formatTime(r.now()))

	query := `UPDATE tasks SET ` + strings.Join(sets, ", ") + ` WHERE id = ?`
	args = append(args, id)

	result, err := conn(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("update task: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("update task: %w", err)
	}
	if affected == 0 {
		return nil, fmt.Errorf("task %s: %w", id, ErrNotFound)
	}

	return r.GetTask(ctx, id)
}

func scanTask(row scanner) (*models.Task, error) {
	var (
		t                                          models.Task
		startAt, dueAt, createdAt, updatedAt, stat string
		completedAt                                sql.NullString
	)

	err := row.Scan(
		&t.Id,
		&t.Title,
		&t.Notes,
		&t.Category,
		&t.Priority,
		&t.AssigneeId,
		&startAt,
		&t.EstimatedDays,
		&dueAt,
		&completedAt,
		&stat,
		&t.Archived,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}
	t.Status = models.Status(stat)

	if t.StartAt, err = parseTime(startAt); err != nil {
		return nil, err
	}
	if t.DueAt, err = parseTime(dueAt); err != nil {
		return nil, err
	}
	if t.CompletedAt, err = parseNullTime(completedAt); err != nil {
		return nil, err
	}
	if t.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if t.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}

	return &t, nil
}
