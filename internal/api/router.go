package api

import (
	"database/sql"
	"net/http"

	"github.com/TWRT/task-tracker/internal/api/handlers"
	"github.com/TWRT/task-tracker/internal/repository"
	"github.com/TWRT/task-tracker/internal/service"
)

func SetupRouter(db *sql.DB) *http.ServeMux {
	taskService := service.NewTaskService(repository.NewStore(db))
	return NewRouter(taskService)
}

func NewRouter(taskService *service.TaskService) *http.ServeMux {
	mux := http.NewServeMux()

	taskHandler := handlers.NewTaskHandler(taskService)

	mux.HandleFunc("POST /tasks", taskHandler.CreateTask)
	mux.HandleFunc("GET /tasks", taskHandler.ListTasks)
	mux.HandleFunc("GET /tasks/{id}", taskHandler.GetTask)
	mux.HandleFunc("PATCH /tasks/{id}", taskHandler.EditTask)
	mux.HandleFunc("POST /tasks/{id}/complete", taskHandler.CompleteTask)
	mux.HandleFunc("POST /tasks/{id}/reopen", taskHandler.ReopenTask)
	mux.HandleFunc("POST /tasks/{id}/extend", taskHandler.ExtendTask)

	mux.HandleFunc("GET /health", handlers.Health)

	return mux
}
