package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/TWRT/task-tracker/internal/models"
	"github.com/TWRT/task-tracker/internal/service"
)

type TaskHandler struct {
	taskService *service.TaskService
}

func NewTaskHandler(taskService *service.TaskService) *TaskHandler {
	return &TaskHandler{
		taskService: taskService,
	}
}

func Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *TaskHandler) CreateTask(w http.ResponseWriter, r *http.Request) {
	var reqBody models.CreateInput
	if !decodeBody(w, r, &reqBody) {
		return
	}

	task, err := h.taskService.Create(r.Context(), reqBody)
	if err != nil {
		writeServiceError(w, "Error trying to create task", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"task": task})
}

func (h *TaskHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid query: "+err.Error())
		return
	}

	tasks, err := h.taskService.List(r.Context(), filter)
	if err != nil {
		writeServiceError(w, "Error trying to list tasks", err)
		return
	}
	if tasks == nil {
		tasks = []models.Task{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"tasks": tasks})
}

func (h *TaskHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	task, err := h.taskService.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, "Error trying to get task", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"task": task})
}

func (h *TaskHandler) EditTask(w http.ResponseWriter, r *http.Request) {
	var reqBody models.EditInput
	if !decodeBody(w, r, &reqBody) {
		return
	}

	task, err := h.taskService.Edit(r.Context(), r.PathValue("id"), reqBody)
	if err != nil {
		writeServiceError(w, "Error trying to edit task", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"task": task})
}

func (h *TaskHandler) CompleteTask(w http.ResponseWriter, r *http.Request) {
	var reqBody models.CompleteRequest
	if !decodeBody(w, r, &reqBody) {
		return
	}

	task, err := h.taskService.Complete(r.Context(), r.PathValue("id"), reqBody.CompletedAt)
	if err != nil {
		writeServiceError(w, "Error trying to complete task", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"task": task})
}

func (h *TaskHandler) ReopenTask(w http.ResponseWriter, r *http.Request) {
	task, err := h.taskService.Reopen(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, "Error trying to reopen task", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"task": task})
}

func (h *TaskHandler) ExtendTask(w http.ResponseWriter, r *http.Request) {
	var reqBody models.ExtendRequest
	if !decodeBody(w, r, &reqBody) {
		return
	}

	task, err := h.taskService.Extend(r.Context(), r.PathValue("id"), reqBody.AddDays, reqBody.DueAt)
	if err != nil {
		writeServiceError(w, "Error trying to extend task", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"task": task})
}

// decodeBody reads an optional JSON body into dst. An empty body leaves dst
// untouched.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Error trying to read the body: "+err.Error())
		return false
	}
	if len(body) == 0 {
		return true
	}
	if err := json.Unmarshal(body, dst); err != nil {
		writeError(w, http.StatusBadRequest, "JSON error: "+err.Error())
		return false
	}
	return true
}

func parseFilter(r *http.Request) (models.TaskFilter, error) {
	q := r.URL.Query()
	filter := models.TaskFilter{
		Search:          q.Get("search"),
		Status:          models.Status(q.Get("status")),
		Category:        q.Get("category"),
		Priority:        q.Get("priority"),
		IncludeArchived: q.Get("includeArchived") == "true",
	}

	if v := q.Get("dateFrom"); v != "" {
		t, err := parseDate(v)
		if err != nil {
			return filter, fmt.Errorf("dateFrom: %w", err)
		}
		filter.From = &t
	}
	if v := q.Get("dateTo"); v != "" {
		t, err := parseDate(v)
		if err != nil {
			return filter, fmt.Errorf("dateTo: %w", err)
		}
		filter.To = &t
	}

	return filter, nil
}

func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}

func writeServiceError(w http.ResponseWriter, prefix string, err error) {
	switch {
	case service.IsValidation(err):
		writeError(w, http.StatusBadRequest, err.Error())
	case service.IsNotFound(err):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		log.Printf("%s: %v", prefix, err)
		writeError(w, http.StatusInternalServerError, prefix+": "+err.Error())
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
