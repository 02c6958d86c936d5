package models

import "time"

type Status string

const (
	StatusOnTrack         Status = "On Track"
	StatusDelayed         Status = "Delayed"
	StatusCompletedOnTime Status = "Completed On Time"
	StatusCompletedLate   Status = "Completed Late"
)

func (s Status) Valid() bool {
	switch s {
	case StatusOnTrack, StatusDelayed, StatusCompletedOnTime, StatusCompletedLate:
		return true
	}
	return false
}

const (
	PriorityLow    = "Low"
	PriorityMedium = "Medium"
	PriorityHigh   = "High"

	DefaultCategory = "General"
	DefaultPriority = PriorityMedium
)

func ValidPriority(p string) bool {
	return p == PriorityLow || p == PriorityMedium || p == PriorityHigh
}

type Task struct {
	Id            string       `json:"id" yaml:"id"`
	Title         string       `json:"title" yaml:"title"`
	Notes         string       `json:"notes,omitempty" yaml:"notes,omitempty"`
	Category      string       `json:"category" yaml:"category"`
	Priority      string       `json:"priority" yaml:"priority"`
	AssigneeId    string       `json:"assigneeId,omitempty" yaml:"assigneeId,omitempty"`
	StartAt       time.Time    `json:"startAt" yaml:"startAt"`
	EstimatedDays int          `json:"estimatedDays" yaml:"estimatedDays"`
	DueAt         time.Time    `json:"dueAt" yaml:"dueAt"`
	CompletedAt   *time.Time   `json:"completedAt" yaml:"completedAt"`
	Status        Status       `json:"status" yaml:"status"`
	Archived      bool         `json:"archived" yaml:"archived"`
	CreatedAt     time.Time    `json:"createdAt" yaml:"createdAt"`
	UpdatedAt     time.Time    `json:"updatedAt" yaml:"updatedAt"`
	AuditLog      []AuditEntry `json:"auditLogs,omitempty" yaml:"auditLogs,omitempty"`
}

// DueFrom returns startAt shifted by estimatedDays days. Days are counted in
// UTC so the result does not depend on the zone startAt carries.
func DueFrom(startAt time.Time, estimatedDays int) time.Time {
	return startAt.UTC().AddDate(0, 0, estimatedDays)
}

type TaskUpdate struct {
	Title         *string
	Notes         *string
	Category      *string
	Priority      *string
	AssigneeId    *string
	Archived      *bool
	EstimatedDays *int
	DueAt         *time.Time
	CompletedAt   *time.Time
	// ClearCompleted sets completed_at to NULL; it wins over CompletedAt.
	ClearCompleted bool
	Status         *Status
}

func (u TaskUpdate) Empty() bool {
	return u.Title == nil && u.Notes == nil && u.Category == nil && u.Priority == nil &&
		u.AssigneeId == nil && u.Archived == nil && u.EstimatedDays == nil && u.DueAt == nil &&
		u.CompletedAt == nil && !u.ClearCompleted && u.Status == nil
}

type TaskFilter struct {
	Search          string
	Status          Status
	Category        string
	Priority        string
	From            *time.Time
	To              *time.Time
	IncludeArchived bool
}
