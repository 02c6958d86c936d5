package tracker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/TWRT/task-tracker/internal/client"
	"github.com/TWRT/task-tracker/internal/models"
)

const dateLayout = time.RFC3339

var (
	_ client.TaskRemote = (*TrackerClient)(nil)
	_ client.TaskReader = (*TrackerClient)(nil)
)

type TrackerClient struct {
	baseUrl    string
	httpClient *http.Client
}

func NewTrackerClient(baseUrl string, timeout time.Duration) *TrackerClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &TrackerClient{
		baseUrl:    strings.TrimRight(baseUrl, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Apply replays op against the route it encodes.
func (c *TrackerClient) Apply(ctx context.Context, op models.Operation) (*models.Task, error) {
	var resp TaskResponse
	if err := c.do(ctx, op.Method(), op.Path(), op.Body(), &resp); err != nil {
		return nil, fmt.Errorf("%s %s (tracker): %w", op.Method(), op.Path(), err)
	}
	return &resp.Task, nil
}

func (c *TrackerClient) Ping(ctx context.Context) error {
	if err := c.do(ctx, http.MethodGet, "/health", nil, nil); err != nil {
		return fmt.Errorf("ping (tracker): %w", err)
	}
	return nil
}

func (c *TrackerClient) CreateTask(ctx context.Context, in models.CreateInput) (*models.Task, error) {
	return c.Apply(ctx, models.Operation{Kind: models.OpCreate, Create: &in})
}

func (c *TrackerClient) EditTask(ctx context.Context, id string, in models.EditInput) (*models.Task, error) {
	return c.Apply(ctx, models.Operation{Kind: models.OpEdit, TaskId: id, Edit: &in})
}

func (c *TrackerClient) CompleteTask(ctx context.Context, id string, at *time.Time) (*models.Task, error) {
	return c.Apply(ctx, models.Operation{Kind: models.OpComplete, TaskId: id, CompletedAt: at})
}

func (c *TrackerClient) ReopenTask(ctx context.Context, id string) (*models.Task, error) {
	return c.Apply(ctx, models.Operation{Kind: models.OpReopen, TaskId: id})
}

func (c *TrackerClient) ExtendTask(ctx context.Context, id string, addDays int) (*models.Task, error) {
	return c.Apply(ctx, models.Operation{Kind: models.OpExtend, TaskId: id, AddDays: addDays})
}

func (c *TrackerClient) GetTask(ctx context.Context, id string) (*models.Task, error) {
	var resp TaskResponse
	if err := c.do(ctx, http.MethodGet, "/tasks/"+url.PathEscape(id), nil, &resp); err != nil {
		return nil, fmt.Errorf("get task (tracker): %w", err)
	}
	return &resp.Task, nil
}

func (c *TrackerClient) ListTasks(ctx context.Context, filter models.TaskFilter) ([]models.Task, error) {
	query := url.Values{}
	if filter.Search != "" {
		query.Set("search", filter.Search)
	}
	if filter.Status != "" {
		query.Set("status", string(filter.Status))
	}
	if filter.Category != "" {
		query.Set("category", filter.Category)
	}
	if filter.Priority != "" {
		query.Set("priority", filter.Priority)
	}
	if filter.From != nil {
		query.Set("dateFrom", filter.From.Format(dateLayout))
	}
	if filter.To != nil {
		query.Set("dateTo", filter.To.Format(dateLayout))
	}
	if filter.IncludeArchived {
		query.Set("includeArchived", "true")
	}

	path := "/tasks"
	if len(query) > 0 {
		path += "?" + query.Encode()
	}

	var resp TasksResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, fmt.Errorf("list tasks (tracker): %w", err)
	}
	return resp.Tasks, nil
}

func (c *TrackerClient) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseUrl+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &TransientError{Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &TransientError{Err: fmt.Errorf("read response body: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var errResp ErrorResponse
		if err := json.Unmarshal(respBody, &errResp); err == nil {
			apiErr.Message = errResp.Err
		}
		if resp.StatusCode >= 500 {
			return &TransientError{Err: apiErr}
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	return nil
}
