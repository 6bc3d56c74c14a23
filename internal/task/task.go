// Package task is the calendar's view of the external task store: lookup
// by id, a window query for the merged day view, and the single Toggle
// write dispatched from checkbox interaction. Events hold task ids only
// (weak references); nothing here touches the event collection.
package task

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"gridcal/internal/model"
)

var ErrNotFound = errors.New("task: not found")

// migrations are applied in order; PRAGMA user_version records how many have
// run so old databases upgrade in place.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS tasks (
	task_id TEXT PRIMARY KEY,
	content TEXT NOT NULL,
	priority INTEGER NOT NULL DEFAULT 0,
	estimated_minutes INTEGER NOT NULL DEFAULT 0,
	completed INTEGER NOT NULL DEFAULT 0,
	scheduled_at TEXT
);
CREATE INDEX IF NOT EXISTS idx_tasks_scheduled_at ON tasks(scheduled_at);`,
}

// Store wraps the sqlite task database.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the task database at path.
func Open(ctx context.Context, path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("task: create db dir: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("task: open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("task: ping sqlite: %w", err)
	}
	if err := migrate(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func migrate(ctx context.Context, db *sql.DB) error {
	var version int
	if err := db.QueryRowContext(ctx, `PRAGMA user_version`).Scan(&version); err != nil {
		return fmt.Errorf("task: read schema version: %w", err)
	}
	for i := version; i < len(migrations); i++ {
		if _, err := db.ExecContext(ctx, migrations[i]); err != nil {
			return fmt.Errorf("task: migration %d: %w", i+1, err)
		}
		if _, err := db.ExecContext(ctx, fmt.Sprintf(`PRAGMA user_version = %d`, i+1)); err != nil {
			return fmt.Errorf("task: bump schema version: %w", err)
		}
	}
	return nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Lookup returns one task by id.
func (s *Store) Lookup(ctx context.Context, id string) (model.Task, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT task_id, content, priority, estimated_minutes, completed, scheduled_at
FROM tasks WHERE task_id = ?`, id)
	return scanTask(row)
}

// ScheduledBetween returns the tasks scheduled in [from, to), ordered by
// scheduled time then id.
func (s *Store) ScheduledBetween(ctx context.Context, from, to time.Time) ([]model.Task, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT task_id, content, priority, estimated_minutes, completed, scheduled_at
FROM tasks
WHERE scheduled_at IS NOT NULL AND scheduled_at >= ? AND scheduled_at < ?
ORDER BY scheduled_at, task_id`, ts(from), ts(to))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Task
	for rows.Next() {
		t, serr := scanTask(rows)
		if serr != nil {
			return nil, serr
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// Toggle flips a task's completed flag.
func (s *Store) Toggle(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET completed = 1 - completed WHERE task_id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Put inserts or replaces a task. The calendar itself only reads and
// toggles; Put exists for the host application's task CRUD and for tests.
func (s *Store) Put(ctx context.Context, t model.Task) error {
	var scheduled any
	if t.ScheduledTime != nil {
		scheduled = ts(*t.ScheduledTime)
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO tasks(task_id, content, priority, estimated_minutes, completed, scheduled_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(task_id) DO UPDATE SET
	content=excluded.content,
	priority=excluded.priority,
	estimated_minutes=excluded.estimated_minutes,
	completed=excluded.completed,
	scheduled_at=excluded.scheduled_at`,
		t.ID, t.Content, t.Priority, t.EstimatedMinutes, boolInt(t.Completed), scheduled)
	return err
}

// Delete removes a task. Events holding this id keep their weak
// reference; lookups simply start returning ErrNotFound.
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE task_id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (model.Task, error) {
	var (
		t         model.Task
		completed int
		scheduled sql.NullString
	)
	err := row.Scan(&t.ID, &t.Content, &t.Priority, &t.EstimatedMinutes, &completed, &scheduled)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Task{}, ErrNotFound
	}
	if err != nil {
		return model.Task{}, err
	}
	t.Completed = completed != 0
	if scheduled.Valid && scheduled.String != "" {
		at, perr := time.Parse(time.RFC3339, scheduled.String)
		if perr != nil {
			return model.Task{}, fmt.Errorf("task: bad scheduled_at for %s: %w", t.ID, perr)
		}
		t.ScheduledTime = &at
	}
	return t, nil
}

func ts(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
