// Package sqlite is the default durable task log: a single SQLite file with
// full synchronous commits, so an enqueue survives power loss once it returns.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/vietddude/snapcook/internal/core/domain"
	"github.com/vietddude/snapcook/internal/infra/storage"
)

//go:embed schema.sql
var schemaSQL string

// TaskLog implements storage.TaskLog and storage.DrainLeaser on SQLite.
type TaskLog struct {
	db  *sql.DB
	now func() time.Time
}

// Open creates or opens the task log at path and applies the schema.
// It is safe to call on an existing file.
func Open(path string) (*TaskLog, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open task log: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to task log: %w", err)
	}

	// SQLite allows one writer; the queue has one drain actor anyway
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return &TaskLog{db: db, now: time.Now}, nil
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = FULL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

// Close closes the database.
func (l *TaskLog) Close() error {
	if l.db == nil {
		return nil
	}
	return l.db.Close()
}

// Append inserts a task at the tail of the log.
func (l *TaskLog) Append(ctx context.Context, t *domain.SyncTask) error {
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO sync_tasks (id, kind, entity_type, entity_id, payload, enqueued_at,
			retry_count, status, next_attempt_at, last_error, dead_lettered_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, string(t.Kind), string(t.EntityType), t.EntityID, []byte(t.Payload),
		toUnix(t.EnqueuedAt), t.RetryCount, string(t.Status), toUnix(t.NextAttemptAt),
		t.LastError, toUnix(t.DeadLetteredAt),
	)
	if err != nil {
		var se sqlite3.Error
		if errors.As(err, &se) && se.ExtendedCode == sqlite3.ErrConstraintUnique {
			return fmt.Errorf("%w: %s", storage.ErrDuplicateTask, t.ID)
		}
		return fmt.Errorf("failed to append task: %w", err)
	}
	return nil
}

// Pending returns pending and in-flight tasks in enqueue order.
func (l *TaskLog) Pending(ctx context.Context) ([]*domain.SyncTask, error) {
	return l.query(ctx, `status <> ?`, string(domain.TaskStatusDeadLetter))
}

// DeadLetters returns dead-lettered tasks in enqueue order.
func (l *TaskLog) DeadLetters(ctx context.Context) ([]*domain.SyncTask, error) {
	return l.query(ctx, `status = ?`, string(domain.TaskStatusDeadLetter))
}

func (l *TaskLog) query(ctx context.Context, where string, args ...any) ([]*domain.SyncTask, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT id, kind, entity_type, entity_id, payload, enqueued_at, retry_count,
			status, next_attempt_at, last_error, dead_lettered_at
		FROM sync_tasks WHERE `+where+` ORDER BY seq`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*domain.SyncTask
	for rows.Next() {
		var (
			t                          domain.SyncTask
			kind, entityType, status   string
			payload                    []byte
			enqueued, next, deadLetter int64
		)
		if err := rows.Scan(&t.ID, &kind, &entityType, &t.EntityID, &payload, &enqueued,
			&t.RetryCount, &status, &next, &t.LastError, &deadLetter); err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		t.Kind = domain.TaskKind(kind)
		t.EntityType = domain.EntityType(entityType)
		t.Status = domain.TaskStatus(status)
		t.Payload = payload
		t.EnqueuedAt = fromUnix(enqueued)
		t.NextAttemptAt = fromUnix(next)
		t.DeadLetteredAt = fromUnix(deadLetter)
		tasks = append(tasks, &t)
	}
	return tasks, rows.Err()
}

// Update persists retry bookkeeping and status in place.
func (l *TaskLog) Update(ctx context.Context, t *domain.SyncTask) error {
	res, err := l.db.ExecContext(ctx, `
		UPDATE sync_tasks
		SET retry_count = ?, status = ?, next_attempt_at = ?, last_error = ?, dead_lettered_at = ?
		WHERE id = ?`,
		t.RetryCount, string(t.Status), toUnix(t.NextAttemptAt), t.LastError,
		toUnix(t.DeadLetteredAt), t.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update task: %w", err)
	}
	return expectOne(res, t.ID)
}

// Remove deletes a task.
func (l *TaskLog) Remove(ctx context.Context, id string) error {
	res, err := l.db.ExecContext(ctx, `DELETE FROM sync_tasks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to remove task: %w", err)
	}
	return expectOne(res, id)
}

const drainLease = "drain"

// AcquireDrainLease claims the lease row when it is free, expired or already
// owned by owner. The upsert is a single write statement, so SQLite's file
// lock serializes it against every other process using the same file.
func (l *TaskLog) AcquireDrainLease(ctx context.Context, owner string, ttl time.Duration) (bool, error) {
	now := l.now()
	res, err := l.db.ExecContext(ctx, `
		INSERT INTO drain_lock (name, owner, expires_at) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE
		SET owner = excluded.owner, expires_at = excluded.expires_at
		WHERE drain_lock.owner = excluded.owner OR drain_lock.expires_at <= ?`,
		drainLease, owner, now.Add(ttl).UnixNano(), now.UnixNano(),
	)
	if err != nil {
		return false, fmt.Errorf("failed to acquire drain lease: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return n == 1, nil
}

// ReleaseDrainLease deletes the lease row if owner holds it.
func (l *TaskLog) ReleaseDrainLease(ctx context.Context, owner string) error {
	_, err := l.db.ExecContext(ctx, `DELETE FROM drain_lock WHERE name = ? AND owner = ?`, drainLease, owner)
	if err != nil {
		return fmt.Errorf("failed to release drain lease: %w", err)
	}
	return nil
}

func expectOne(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", storage.ErrTaskNotFound, id)
	}
	return nil
}

// Timestamps are stored as unix nanoseconds; zero means unset.
func toUnix(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromUnix(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}
