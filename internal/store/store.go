// Package store persists last-known task state so a restarted daemon can
// report what it was supervising. Writes are best-effort from the registry's
// point of view; the interfaces here return errors for the callers that care.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Record is the persisted view of one task. Name is unique per registry.
type Record struct {
	Name      string
	PID       int
	Status    string
	Running   bool
	StartedAt time.Time
	StoppedAt sql.NullTime
	ExitErr   sql.NullString
	UpdatedAt time.Time
}

// UniqueKey identifies one run of a task for history correlation.
func UniqueKey(pid int, startedAt time.Time) string {
	return fmt.Sprintf("%d-%d", pid, startedAt.UnixNano())
}

// Store keeps the last known state per task name.
type Store interface {
	EnsureSchema(ctx context.Context) error
	UpsertStatus(ctx context.Context, rec Record) error
	GetByName(ctx context.Context, name string) (Record, error)
	List(ctx context.Context) ([]Record, error)
	Delete(ctx context.Context, name string) error
	Close() error
}
