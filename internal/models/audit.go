package models

import "time"

type AuditAction string

const (
	AuditCreated          AuditAction = "created"
	AuditEdited           AuditAction = "edited"
	AuditCompleted        AuditAction = "completed"
	AuditReopened         AuditAction = "reopened"
	AuditExtendedDeadline AuditAction = "extended_deadline"
)

type AuditEntry struct {
	Id        string         `json:"id" yaml:"id"`
	TaskId    string         `json:"taskId" yaml:"taskId"`
	Action    AuditAction    `json:"action" yaml:"action"`
	Meta      map[string]any `json:"meta,omitempty" yaml:"meta,omitempty"`
	CreatedAt time.Time      `json:"createdAt" yaml:"createdAt"`
}
