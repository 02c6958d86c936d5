package repository

import (
	"context"
	"database/sql"
)

// Store bundles the task and audit repositories behind one value, which is
// the shape the task service consumes.
type Store struct {
	*TaskRepository
	*AuditRepository
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{
		TaskRepository:  NewTaskRepository(db),
		AuditRepository: NewAuditRepository(db),
		db:              db,
	}
}

// RunInTx makes the task and audit writes done by fn atomic.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return RunInTx(ctx, s.db, fn)
}
