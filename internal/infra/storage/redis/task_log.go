package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vietddude/snapcook/internal/core/domain"
	"github.com/vietddude/snapcook/internal/infra/storage"
)

// TaskLog implements storage.TaskLog and storage.DrainLeaser using Redis. Task bodies are JSON
// strings; order lives in two sorted sets scored by an enqueue sequence.
// Durability follows the server's persistence settings (use appendfsync
// always for the same guarantee as the SQLite log).
type TaskLog struct {
	client *Client
	rdb    *redis.Client
}

// NewTaskLog creates a Redis-backed task log.
func NewTaskLog(client *Client) *TaskLog {
	return &TaskLog{client: client, rdb: client.rdb}
}

// Key helpers
func (l *TaskLog) pendingKey() string { return l.client.key("sync_tasks", "pending") }

func (l *TaskLog) deadKey() string { return l.client.key("sync_tasks", "dead") }

func (l *TaskLog) seqKey() string { return l.client.key("sync_tasks", "seq") }

func (l *TaskLog) taskKey(id string) string { return l.client.key("sync_task", id) }

func (l *TaskLog) leaseKey() string { return l.client.key("sync_tasks", "drain_lock") }

// Append stores the task and adds it at the tail of the pending set.
func (l *TaskLog) Append(ctx context.Context, t *domain.SyncTask) error {
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}

	n, err := l.rdb.Exists(ctx, l.taskKey(t.ID)).Result()
	if err != nil {
		return fmt.Errorf("exists failed: %w", err)
	}
	if n > 0 {
		return fmt.Errorf("%w: %s", storage.ErrDuplicateTask, t.ID)
	}

	seq, err := l.rdb.Incr(ctx, l.seqKey()).Result()
	if err != nil {
		return fmt.Errorf("incr failed: %w", err)
	}

	_, err = l.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, l.taskKey(t.ID), data, 0)
		pipe.ZAdd(ctx, l.pendingKey(), redis.Z{Score: float64(seq), Member: t.ID})
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to append task: %w", err)
	}
	return nil
}

// Pending returns pending and in-flight tasks in enqueue order.
func (l *TaskLog) Pending(ctx context.Context) ([]*domain.SyncTask, error) {
	return l.list(ctx, l.pendingKey())
}

// DeadLetters returns dead-lettered tasks in enqueue order.
func (l *TaskLog) DeadLetters(ctx context.Context) ([]*domain.SyncTask, error) {
	return l.list(ctx, l.deadKey())
}

func (l *TaskLog) list(ctx context.Context, setKey string) ([]*domain.SyncTask, error) {
	ids, err := l.rdb.ZRange(ctx, setKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("zrange failed: %w", err)
	}

	tasks := make([]*domain.SyncTask, 0, len(ids))
	for _, id := range ids {
		t, err := l.get(ctx, id)
		if errors.Is(err, storage.ErrTaskNotFound) {
			// Body missing but ID still in the set, drop it
			l.rdb.ZRem(ctx, setKey, id)
			continue
		}
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, nil
}

func (l *TaskLog) get(ctx context.Context, id string) (*domain.SyncTask, error) {
	data, err := l.rdb.Get(ctx, l.taskKey(id)).Bytes()
	if err == redis.Nil {
		return nil, fmt.Errorf("%w: %s", storage.ErrTaskNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}

	var t domain.SyncTask
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("failed to unmarshal task %s: %w", id, err)
	}
	return &t, nil
}

// Update rewrites the task body. A dead-lettered task moves from the
// pending set to the dead set with its original score.
func (l *TaskLog) Update(ctx context.Context, t *domain.SyncTask) error {
	if _, err := l.get(ctx, t.ID); err != nil {
		return err
	}
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}

	if t.Status != domain.TaskStatusDeadLetter {
		if err := l.rdb.Set(ctx, l.taskKey(t.ID), data, 0).Err(); err != nil {
			return fmt.Errorf("failed to set task: %w", err)
		}
		return nil
	}

	score, err := l.rdb.ZScore(ctx, l.pendingKey(), t.ID).Result()
	if err == redis.Nil {
		// Already in the dead set
		return l.rdb.Set(ctx, l.taskKey(t.ID), data, 0).Err()
	}
	if err != nil {
		return fmt.Errorf("zscore failed: %w", err)
	}

	_, err = l.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, l.taskKey(t.ID), data, 0)
		pipe.ZRem(ctx, l.pendingKey(), t.ID)
		pipe.ZAdd(ctx, l.deadKey(), redis.Z{Score: score, Member: t.ID})
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to dead-letter task: %w", err)
	}
	return nil
}

// Remove deletes a task body and its set membership.
func (l *TaskLog) Remove(ctx context.Context, id string) error {
	n, err := l.rdb.Del(ctx, l.taskKey(id)).Result()
	if err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}
	if err := l.rdb.ZRem(ctx, l.pendingKey(), id).Err(); err != nil {
		return fmt.Errorf("failed to remove from queue: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", storage.ErrTaskNotFound, id)
	}
	return nil
}

// renewLease extends the lease only while the caller still owns it.
var renewLease = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

var releaseLease = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// AcquireDrainLease claims the lease with SET NX PX, or renews it when owner
// already holds it.
func (l *TaskLog) AcquireDrainLease(ctx context.Context, owner string, ttl time.Duration) (bool, error) {
	ok, err := l.rdb.SetNX(ctx, l.leaseKey(), owner, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire drain lease: %w", err)
	}
	if ok {
		return true, nil
	}

	n, err := renewLease.Run(ctx, l.rdb, []string{l.leaseKey()}, owner, ttl.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("failed to renew drain lease: %w", err)
	}
	return n == 1, nil
}

// ReleaseDrainLease deletes the lease if owner still holds it.
func (l *TaskLog) ReleaseDrainLease(ctx context.Context, owner string) error {
	if err := releaseLease.Run(ctx, l.rdb, []string{l.leaseKey()}, owner).Err(); err != nil {
		return fmt.Errorf("failed to release drain lease: %w", err)
	}
	return nil
}

// Close closes the underlying client.
func (l *TaskLog) Close() error {
	return l.client.Close()
}
