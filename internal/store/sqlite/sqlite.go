package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/loykin/supervisr/internal/store"
)

// DB implements store.Store on SQLite (modernc.org/sqlite, CGO-free).
// Path is a filesystem location; ":memory:" works for tests.
type DB struct {
	db *sql.DB
}

// New opens a SQLite database at path.
func New(path string) (*DB, error) {
	p := strings.TrimSpace(path)
	if p == "" {
		return nil, errors.New("empty sqlite path")
	}
	d, err := sql.Open("sqlite", p)
	if err != nil {
		return nil, err
	}
	// busy timeout helps with short concurrent locks
	_, _ = d.Exec("PRAGMA busy_timeout=3000;")
	return &DB{db: d}, nil
}

func (s *DB) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS task_state(
			name TEXT PRIMARY KEY,
			pid INTEGER NOT NULL,
			status TEXT NOT NULL,
			running BOOLEAN NOT NULL,
			started_at TIMESTAMP NULL,
			stopped_at TIMESTAMP NULL,
			exit_err TEXT NULL,
			updated_at TIMESTAMP NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_task_state_running ON task_state(running);`,
	}
	for _, q := range stmts {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

func (s *DB) UpsertStatus(ctx context.Context, rec store.Record) error {
	rec.UpdatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO task_state(name, pid, status, running, started_at, stopped_at, exit_err, updated_at)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			pid=excluded.pid,
			status=excluded.status,
			running=excluded.running,
			started_at=excluded.started_at,
			stopped_at=excluded.stopped_at,
			exit_err=excluded.exit_err,
			updated_at=excluded.updated_at;`,
		rec.Name, rec.PID, rec.Status, rec.Running,
		nullableTime(rec.StartedAt), rec.StoppedAt, rec.ExitErr, rec.UpdatedAt)
	return err
}

func (s *DB) GetByName(ctx context.Context, name string) (store.Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT name, pid, status, running, started_at, stopped_at, exit_err, updated_at
		FROM task_state WHERE name = ?;`, name)
	return scanRecord(row)
}

func (s *DB) List(ctx context.Context) ([]store.Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, pid, status, running, started_at, stopped_at, exit_err, updated_at
		FROM task_state ORDER BY name;`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var recs []store.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

func (s *DB) Delete(ctx context.Context, name string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM task_state WHERE name = ?;`, name)
	return err
}

func (s *DB) Close() error { return s.db.Close() }

type scannable interface {
	Scan(dest ...any) error
}

func scanRecord(row scannable) (store.Record, error) {
	var rec store.Record
	var started sql.NullTime
	err := row.Scan(&rec.Name, &rec.PID, &rec.Status, &rec.Running,
		&started, &rec.StoppedAt, &rec.ExitErr, &rec.UpdatedAt)
	if err != nil {
		return store.Record{}, err
	}
	if started.Valid {
		rec.StartedAt = started.Time
	}
	return rec, nil
}

func nullableTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}
