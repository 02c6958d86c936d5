package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/TWRT/task-tracker/internal/models"
)

// MutationRepository is the durable log behind the offline queue. Rows are
// ordered by seq and addressed by id, so deleting one entry never shifts the
// identity of another.
type MutationRepository struct {
	db *sql.DB
}

func NewMutationRepository(db *sql.DB) *MutationRepository {
	return &MutationRepository{db: db}
}

// Append persists m and sets its Seq. It returns only after the insert has
// been committed.
func (r *MutationRepository) Append(ctx context.Context, m *models.PendingMutation) error {
	payload, err := json.Marshal(m.Operation)
	if err != nil {
		return fmt.Errorf("marshal mutation payload: %w", err)
	}

	query := `
	INSERT INTO pending_mutations (id, method, path, payload, enqueued_at)
        VALUES (?, ?, ?, ?, ?)
	`

	result, err := conn(ctx, r.db).ExecContext(ctx, query,
		m.Id,
		m.Method,
		m.Path,
		string(payload),
		formatTime(m.EnqueuedAt),
	)
	if err != nil {
		return fmt.Errorf("append mutation: %w", err)
	}

	seq, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("append mutation: %w", err)
	}
	m.Seq = seq

	return nil
}

func (r *MutationRepository) List(ctx context.Context) ([]models.PendingMutation, error) {
	query := `SELECT seq, id, method, path, payload, attempts, last_error, enqueued_at
		FROM pending_mutations ORDER BY seq`

	rows, err := conn(ctx, r.db).QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list mutations: %w", err)
	}
	defer rows.Close()

	var mutations []models.PendingMutation
	for rows.Next() {
		var (
			m          models.PendingMutation
			payload    string
			enqueuedAt string
		)
		err := rows.Scan(&m.Seq, &m.Id, &m.Method, &m.Path, &payload, &m.Attempts, &m.LastError, &enqueuedAt)
		if err != nil {
			return nil, fmt.Errorf("scan mutation: %w", err)
		}
		if err := json.Unmarshal([]byte(payload), &m.Operation); err != nil {
			return nil, fmt.Errorf("unmarshal mutation %s: %w", m.Id, err)
		}
		if m.EnqueuedAt, err = parseTime(enqueuedAt); err != nil {
			return nil, err
		}
		mutations = append(mutations, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list mutations: %w", err)
	}

	return mutations, nil
}

func (r *MutationRepository) Delete(ctx context.Context, id string) error {
	result, err := conn(ctx, r.db).ExecContext(ctx, `DELETE FROM pending_mutations WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete mutation: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete mutation: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("mutation %s: %w", id, ErrNotFound)
	}
	return nil
}

func (r *MutationRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := conn(ctx, r.db).QueryRowContext(ctx, `SELECT COUNT(*) FROM pending_mutations`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count mutations: %w", err)
	}
	return n, nil
}

// RecordFailure bumps the attempt counter of id in place.
func (r *MutationRepository) RecordFailure(ctx context.Context, id string, reason string) error {
	query := `UPDATE pending_mutations SET attempts = attempts + 1, last_error = ? WHERE id = ?`
	if _, err := conn(ctx, r.db).ExecContext(ctx, query, reason, id); err != nil {
		return fmt.Errorf("record mutation failure: %w", err)
	}
	return nil
}
