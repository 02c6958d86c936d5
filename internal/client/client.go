package client

import (
	"context"

	"github.com/TWRT/task-tracker/internal/models"
)

// TaskRemote is the authoritative store as seen from an offline client.
type TaskRemote interface {
	Apply(ctx context.Context, op models.Operation) (*models.Task, error)
	Ping(ctx context.Context) error
}

// TaskReader exposes the remote read paths.
type TaskReader interface {
	GetTask(ctx context.Context, id string) (*models.Task, error)
	ListTasks(ctx context.Context, filter models.TaskFilter) ([]models.Task, error)
}
