package domain

import (
	"encoding/json"
	"time"
)

// SyncTask is a durable unit of remote work.
type SyncTask struct {
	ID             string          `json:"id"`
	Kind           TaskKind        `json:"kind"`
	EntityType     EntityType      `json:"entity_type"`
	EntityID       string          `json:"entity_id"`
	Payload        json.RawMessage `json:"payload,omitempty"`
	EnqueuedAt     time.Time       `json:"enqueued_at"`
	RetryCount     int             `json:"retry_count"`
	Status         TaskStatus      `json:"status"`
	NextAttemptAt  time.Time       `json:"next_attempt_at,omitempty"`
	LastError      string          `json:"last_error,omitempty"`
	DeadLetteredAt time.Time       `json:"dead_lettered_at,omitempty"`
}

// TaskKind is the remote operation a task performs.
type TaskKind string

const (
	TaskCreate TaskKind = "create"
	TaskUpdate TaskKind = "update"
	TaskDelete TaskKind = "delete"
)

// Valid reports whether k is a known task kind.
func (k TaskKind) Valid() bool {
	return k == TaskCreate || k == TaskUpdate || k == TaskDelete
}

// EntityType names the remote entity a task targets.
type EntityType string

const (
	EntityRecipe  EntityType = "recipe"
	EntityProfile EntityType = "profile"
)

// TaskStatus tracks a task through the drain loop.
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusInFlight   TaskStatus = "in_flight"
	TaskStatusDeadLetter TaskStatus = "dead_letter"
)

// Clone returns a deep copy of the task.
func (t *SyncTask) Clone() *SyncTask {
	if t == nil {
		return nil
	}
	c := *t
	c.Payload = append(json.RawMessage(nil), t.Payload...)
	return &c
}
