package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/TWRT/task-tracker/internal/models"
	"github.com/google/uuid"
)

// AuditRepository is append-only: entries are never updated or deleted.
type AuditRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewAuditRepository(db *sql.DB) *AuditRepository {
	return &AuditRepository{db: db, now: time.Now}
}

func (r *AuditRepository) AppendAuditEntry(ctx context.Context, taskID string, action models.AuditAction, meta map[string]any) error {
	var metaJSON sql.NullString
	if meta != nil {
		b, err := json.Marshal(meta)
		if err != nil {
			return fmt.Errorf("marshal audit meta: %w", err)
		}
		metaJSON = sql.NullString{String: string(b), Valid: true}
	}

	query := `
		INSERT INTO audit_entries (id, task_id, action, meta, created_at)
        VALUES (?, ?, ?, ?, ?)
	`

	_, err := conn(ctx, r.db).ExecContext(ctx, query,
		uuid.NewString(),
		taskID,
		string(action),
		metaJSON,
		formatTime(r.now()),
	)
	if err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}

	return nil
}

// ListAuditEntries returns the trail of taskID, newest first.
func (r *AuditRepository) ListAuditEntries(ctx context.Context, taskID string) ([]models.AuditEntry, error) {
	query := `SELECT id, task_id, action, meta, created_at
		FROM audit_entries WHERE task_id = ? ORDER BY created_at DESC, rowid DESC`

	rows, err := conn(ctx, r.db).QueryContext(ctx, query, taskID)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	defer rows.Close()

	var entries []models.AuditEntry
	for rows.Next() {
		var (
			e         models.AuditEntry
			action    string
			meta      sql.NullString
			createdAt string
		)
		if err := rows.Scan(&e.Id, &e.TaskId, &action, &meta, &createdAt); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		e.Action = models.AuditAction(action)
		if meta.Valid && meta.String != "" {
			if err := json.Unmarshal([]byte(meta.String), &e.Meta); err != nil {
				return nil, fmt.Errorf("unmarshal audit meta: %w", err)
			}
		}
		created, err := parseTime(createdAt)
		if err != nil {
			return nil, err
		}
		e.CreatedAt = created
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}

	return entries, nil
}
