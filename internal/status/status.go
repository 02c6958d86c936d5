// Package status derives a task's status from its timestamps.
//
// Status is never trusted as stored truth: callers evaluate it on every read
// and treat any persisted value as a cache.
package status

import (
	"time"

	"github.com/TWRT/task-tracker/internal/models"
)

// Derive evaluates, in order: completed no later than dueAt, completed after
// dueAt, past due, on track. now is ignored once completedAt is set.
func Derive(dueAt time.Time, completedAt *time.Time, now time.Time) models.Status {
	if completedAt != nil {
		if !completedAt.After(dueAt) {
			return models.StatusCompletedOnTime
		}
		return models.StatusCompletedLate
	}

	if now.After(dueAt) {
		return models.StatusDelayed
	}

	return models.StatusOnTrack
}

// Now is Derive against the wall clock.
func Now(dueAt time.Time, completedAt *time.Time) models.Status {
	return Derive(dueAt, completedAt, time.Now())
}

// Of derives the status of t at now.
func Of(t models.Task, now time.Time) models.Status {
	return Derive(t.DueAt, t.CompletedAt, now)
}
