package models

import (
	"fmt"
	"net/http"
	"time"
)

type OperationKind string

const (
	OpCreate   OperationKind = "create"
	OpEdit     OperationKind = "edit"
	OpComplete OperationKind = "complete"
	OpReopen   OperationKind = "reopen"
	OpExtend   OperationKind = "extend"
)

type CreateInput struct {
	Id            string     `json:"id,omitempty" yaml:"id,omitempty"`
	Title         string     `json:"title" yaml:"title"`
	Notes         string     `json:"notes,omitempty" yaml:"notes,omitempty"`
	Category      string     `json:"category,omitempty" yaml:"category,omitempty"`
	Priority      string     `json:"priority,omitempty" yaml:"priority,omitempty"`
	EstimatedDays int        `json:"estimatedDays" yaml:"estimatedDays"`
	StartAt       *time.Time `json:"startAt,omitempty" yaml:"startAt,omitempty"`
}

type EditInput struct {
	Title         *string `json:"title,omitempty" yaml:"title,omitempty"`
	Notes         *string `json:"notes,omitempty" yaml:"notes,omitempty"`
	Category      *string `json:"category,omitempty" yaml:"category,omitempty"`
	Priority      *string `json:"priority,omitempty" yaml:"priority,omitempty"`
	Archived      *bool   `json:"archived,omitempty" yaml:"archived,omitempty"`
	AssigneeId    *string `json:"assigneeId,omitempty" yaml:"assigneeId,omitempty"`
	EstimatedDays *int    `json:"estimatedDays,omitempty" yaml:"estimatedDays,omitempty"`
}

type CompleteRequest struct {
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

type ExtendRequest struct {
	AddDays int        `json:"addDays"`
	DueAt   *time.Time `json:"dueAt,omitempty"`
}

// Operation is a self-contained domain operation. Once applied locally it
// carries absolute values (client id, completion stamp, resulting due date)
// so replaying it later needs no prior state.
type Operation struct {
	Kind        OperationKind `json:"kind" yaml:"kind"`
	TaskId      string        `json:"taskId,omitempty" yaml:"taskId,omitempty"`
	Create      *CreateInput  `json:"create,omitempty" yaml:"create,omitempty"`
	Edit        *EditInput    `json:"edit,omitempty" yaml:"edit,omitempty"`
	AddDays     int           `json:"addDays,omitempty" yaml:"addDays,omitempty"`
	CompletedAt *time.Time    `json:"completedAt,omitempty" yaml:"completedAt,omitempty"`
	DueAt       *time.Time    `json:"dueAt,omitempty" yaml:"dueAt,omitempty"`
}

func (o Operation) Method() string {
	switch o.Kind {
	case OpEdit:
		return http.MethodPatch
	default:
		return http.MethodPost
	}
}

func (o Operation) Path() string {
	switch o.Kind {
	case OpCreate:
		return "/tasks"
	case OpEdit:
		return "/tasks/" + o.TaskId
	default:
		return fmt.Sprintf("/tasks/%s/%s", o.TaskId, o.Kind)
	}
}

// Body returns the request payload the operation replays with.
func (o Operation) Body() any {
	switch o.Kind {
	case OpCreate:
		return o.Create
	case OpEdit:
		return o.Edit
	case OpComplete:
		return CompleteRequest{CompletedAt: o.CompletedAt}
	case OpExtend:
		return ExtendRequest{AddDays: o.AddDays, DueAt: o.DueAt}
	default:
		return struct{}{}
	}
}

type PendingMutation struct {
	Id         string    `json:"id" yaml:"id"`
	Seq        int64     `json:"seq" yaml:"seq"`
	Method     string    `json:"method" yaml:"method"`
	Path       string    `json:"path" yaml:"path"`
	Operation  Operation `json:"operation" yaml:"operation"`
	EnqueuedAt time.Time `json:"enqueuedAt" yaml:"enqueuedAt"`
	Attempts   int       `json:"attempts" yaml:"attempts"`
	LastError  string    `json:"lastError,omitempty" yaml:"lastError,omitempty"`
}
