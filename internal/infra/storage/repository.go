package storage

import (
	"context"
	"errors"
	"time"

	"github.com/vietddude/snapcook/internal/core/domain"
)

var (
	// ErrTaskNotFound is returned when a task doesn't exist in the log
	ErrTaskNotFound = errors.New("task not found")

	// ErrDuplicateTask is returned when appending a task ID that already exists
	ErrDuplicateTask = errors.New("task already exists")
)

// TaskLog is the durable, append-only log behind the sync queue.
// Implementations must have persisted a change before returning.
type TaskLog interface {
	// Append adds a task at the tail of the log
	Append(ctx context.Context, task *domain.SyncTask) error

	// Pending returns pending and in-flight tasks in enqueue order
	Pending(ctx context.Context) ([]*domain.SyncTask, error)

	// Update persists a task's mutable fields without changing its position
	Update(ctx context.Context, task *domain.SyncTask) error

	// Remove deletes a task (confirmed remote success)
	Remove(ctx context.Context, id string) error

	// DeadLetters returns dead-lettered tasks in enqueue order
	DeadLetters(ctx context.Context) ([]*domain.SyncTask, error)

	// Close releases the underlying storage
	Close() error
}

// DrainLeaser is implemented by task logs that several processes may open
// at once. At most one owner holds the drain lease until it expires or is
// released.
type DrainLeaser interface {
	// AcquireDrainLease claims or renews the lease for owner. It reports
	// false when a different owner holds an unexpired lease.
	AcquireDrainLease(ctx context.Context, owner string, ttl time.Duration) (bool, error)

	// ReleaseDrainLease drops the lease if owner still holds it
	ReleaseDrainLease(ctx context.Context, owner string) error
}

// RemoteStore applies a task against the remote system of record.
// Apply must be idempotent per task ID: repeating a task that already
// succeeded is a no-op.
type RemoteStore interface {
	Apply(ctx context.Context, task *domain.SyncTask) error
}
