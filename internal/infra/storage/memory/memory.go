package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/vietddude/snapcook/internal/core/domain"
	"github.com/vietddude/snapcook/internal/infra/storage"
)

// TaskLog is an in-memory storage.TaskLog. It is durable only for the life
// of the process and is meant for tests and offline dry runs.
type TaskLog struct {
	mu    sync.RWMutex
	order []string
	tasks map[string]*domain.SyncTask
}

// NewTaskLog creates an empty in-memory task log.
func NewTaskLog() *TaskLog {
	return &TaskLog{tasks: make(map[string]*domain.SyncTask)}
}

// Append adds a task at the tail.
func (l *TaskLog) Append(ctx context.Context, task *domain.SyncTask) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.tasks[task.ID]; ok {
		return fmt.Errorf("%w: %s", storage.ErrDuplicateTask, task.ID)
	}
	l.tasks[task.ID] = task.Clone()
	l.order = append(l.order, task.ID)
	return nil
}

// Pending returns pending and in-flight tasks in enqueue order.
func (l *TaskLog) Pending(ctx context.Context) ([]*domain.SyncTask, error) {
	return l.filter(func(t *domain.SyncTask) bool {
		return t.Status != domain.TaskStatusDeadLetter
	}), nil
}

// DeadLetters returns dead-lettered tasks in enqueue order.
func (l *TaskLog) DeadLetters(ctx context.Context) ([]*domain.SyncTask, error) {
	return l.filter(func(t *domain.SyncTask) bool {
		return t.Status == domain.TaskStatusDeadLetter
	}), nil
}

func (l *TaskLog) filter(keep func(*domain.SyncTask) bool) []*domain.SyncTask {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]*domain.SyncTask, 0, len(l.order))
	for _, id := range l.order {
		if t := l.tasks[id]; keep(t) {
			out = append(out, t.Clone())
		}
	}
	return out
}

// Update replaces the stored copy of the task, keeping its position.
func (l *TaskLog) Update(ctx context.Context, task *domain.SyncTask) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.tasks[task.ID]; !ok {
		return fmt.Errorf("%w: %s", storage.ErrTaskNotFound, task.ID)
	}
	l.tasks[task.ID] = task.Clone()
	return nil
}

// Remove deletes a task.
func (l *TaskLog) Remove(ctx context.Context, id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.tasks[id]; !ok {
		return fmt.Errorf("%w: %s", storage.ErrTaskNotFound, id)
	}
	delete(l.tasks, id)
	for i, oid := range l.order {
		if oid == id {
			l.order = append(l.order[:i], l.order[i+1:]...)
			break
		}
	}
	return nil
}

// Close is a no-op.
func (l *TaskLog) Close() error { return nil }

type entityKey struct {
	entityType domain.EntityType
	entityID   string
}

// RemoteStore is an in-memory storage.RemoteStore that records applied task
// IDs so repeated applies are no-ops.
type RemoteStore struct {
	mu       sync.RWMutex
	applied  map[string]bool
	entities map[entityKey]json.RawMessage
}

// NewRemoteStore creates an empty in-memory remote store.
func NewRemoteStore() *RemoteStore {
	return &RemoteStore{
		applied:  make(map[string]bool),
		entities: make(map[entityKey]json.RawMessage),
	}
}

// Apply upserts or deletes the task's entity once per task ID.
func (s *RemoteStore) Apply(ctx context.Context, task *domain.SyncTask) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.applied[task.ID] {
		return nil
	}

	key := entityKey{task.EntityType, task.EntityID}
	switch task.Kind {
	case domain.TaskCreate, domain.TaskUpdate:
		s.entities[key] = append(json.RawMessage(nil), task.Payload...)
	case domain.TaskDelete:
		delete(s.entities, key)
	default:
		return fmt.Errorf("unknown task kind %q", task.Kind)
	}
	s.applied[task.ID] = true
	return nil
}

// Get returns the stored payload for an entity.
func (s *RemoteStore) Get(entityType domain.EntityType, entityID string) (json.RawMessage, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.entities[entityKey{entityType, entityID}]
	return p, ok
}

// Applied reports whether a task ID has been applied.
func (s *RemoteStore) Applied(taskID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.applied[taskID]
}

// Count returns the number of stored entities.
func (s *RemoteStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entities)
}
