package tracker

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/TWRT/task-tracker/internal/api"
	"github.com/TWRT/task-tracker/internal/models"
	"github.com/TWRT/task-tracker/internal/repository"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	db, err := repository.InitDB(filepath.Join(t.TempDir(), "server.db"))
	if err != nil {
		t.Fatalf("InitDB failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	srv := httptest.NewServer(api.SetupRouter(db))
	t.Cleanup(srv.Close)
	return srv
}

func TestTrackerClientRoundTrip(t *testing.T) {
	ctx := context.Background()
	srv := newTestServer(t)
	c := NewTrackerClient(srv.URL+"/", time.Second)

	if err := c.Ping(ctx); err != nil {
		t.Fatalf("Ping failed: %v", err)
	}

	start := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	task, err := c.CreateTask(ctx, models.CreateInput{Id: "fixed-id", Title: "Remote", EstimatedDays: 2, StartAt: &start})
	if err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}
	if task.Id != "fixed-id" || !task.DueAt.Equal(start.AddDate(0, 0, 2)) {
		t.Errorf("unexpected task %+v", task)
	}

	completedAt := start.AddDate(0, 0, 5)
	task, err = c.CompleteTask(ctx, task.Id, &completedAt)
	if err != nil {
		t.Fatalf("CompleteTask failed: %v", err)
	}
	if task.Status != models.StatusCompletedLate || !task.CompletedAt.Equal(completedAt) {
		t.Errorf("complete returned %+v", task)
	}

	if _, err := c.ReopenTask(ctx, task.Id); err != nil {
		t.Fatalf("ReopenTask failed: %v", err)
	}
	task, err = c.ExtendTask(ctx, task.Id, 3)
	if err != nil {
		t.Fatalf("ExtendTask failed: %v", err)
	}
	if !task.DueAt.Equal(start.AddDate(0, 0, 5)) {
		t.Errorf("DueAt = %v", task.DueAt)
	}

	archived := true
	if _, err := c.EditTask(ctx, task.Id, models.EditInput{Archived: &archived}); err != nil {
		t.Fatalf("EditTask failed: %v", err)
	}

	visible, err := c.ListTasks(ctx, models.TaskFilter{})
	if err != nil {
		t.Fatalf("ListTasks failed: %v", err)
	}
	if len(visible) != 0 {
		t.Errorf("archived task listed by default: %+v", visible)
	}
	all, err := c.ListTasks(ctx, models.TaskFilter{IncludeArchived: true, From: &start})
	if err != nil {
		t.Fatalf("ListTasks failed: %v", err)
	}
	if len(all) != 1 {
		t.Errorf("got %d tasks, want 1", len(all))
	}

	got, err := c.GetTask(ctx, task.Id)
	if err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}
	if len(got.AuditLog) != 4 {
		t.Errorf("audit entries = %d, want 4", len(got.AuditLog))
	}
}

func TestTrackerClientErrors(t *testing.T) {
	ctx := context.Background()
	srv := newTestServer(t)
	c := NewTrackerClient(srv.URL, time.Second)

	_, err := c.GetTask(ctx, "missing")
	if !IsNotFound(err) {
		t.Errorf("err = %v, want 404 APIError", err)
	}
	if IsTransient(err) {
		t.Error("404 must not be transient")
	}

	_, err = c.CreateTask(ctx, models.CreateInput{Title: ""})
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusBadRequest || apiErr.Message == "" {
		t.Errorf("err = %v, want 400 APIError with message", err)
	}
}

func TestTrackerClientTransient(t *testing.T) {
	ctx := context.Background()

	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"error":"maintenance"}`))
	}))
	defer failing.Close()

	c := NewTrackerClient(failing.URL, time.Second)
	if _, err := c.ReopenTask(ctx, "x"); !IsTransient(err) {
		t.Errorf("503: err = %v, want transient", err)
	}

	closed := httptest.NewServer(http.NotFoundHandler())
	url := closed.URL
	closed.Close()

	c = NewTrackerClient(url, time.Second)
	if err := c.Ping(ctx); !IsTransient(err) {
		t.Errorf("closed server: err = %v, want transient", err)
	}
}
