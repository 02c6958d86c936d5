package tracker

import (
	"errors"
	"fmt"

	"github.com/TWRT/task-tracker/internal/models"
)

type ErrorResponse struct {
	Err string `json:"error"`
}

type TaskResponse struct {
	Task models.Task `json:"task"`
}

type TasksResponse struct {
	Tasks []models.Task `json:"tasks"`
}

// APIError is a non-2xx answer from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("API error status %d", e.StatusCode)
	}
	return fmt.Sprintf("API error status %d: %s", e.StatusCode, e.Message)
}

// TransientError marks a failure worth retrying later: the server could not
// be reached, timed out, or answered with a 5xx.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return "transient: " + e.Err.Error()
}

func (e *TransientError) Unwrap() error { return e.Err }

func IsTransient(err error) bool {
	var t *TransientError
	return errors.As(err, &t)
}

func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == 404
}
