package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/vietddude/snapcook/internal/core/domain"
)

// RemoteStore implements storage.RemoteStore on the remote database.
type RemoteStore struct {
	db *DB
}

// NewRemoteStore creates a remote store over db. Call db.Migrate first.
func NewRemoteStore(db *DB) *RemoteStore {
	return &RemoteStore{db: db}
}

// Apply performs the task's entity write exactly once per task ID.
func (s *RemoteStore) Apply(ctx context.Context, t *domain.SyncTask) error {
	uow, err := s.db.NewUnitOfWork(ctx)
	if err != nil {
		return err
	}
	defer uow.Rollback()

	applied, err := uow.IsApplied(ctx, t.ID)
	if err != nil {
		return err
	}
	if applied {
		return nil
	}

	switch t.Kind {
	case domain.TaskCreate, domain.TaskUpdate:
		err = uow.UpsertEntity(ctx, t.EntityType, t.EntityID, t.Payload)
	case domain.TaskDelete:
		err = uow.DeleteEntity(ctx, t.EntityType, t.EntityID)
	default:
		err = fmt.Errorf("unknown task kind %q", t.Kind)
	}
	if err != nil {
		return err
	}

	if err := uow.MarkApplied(ctx, t); err != nil {
		return err
	}
	if err := uow.Commit(); err != nil {
		return fmt.Errorf("failed to commit task %s: %w", t.ID, err)
	}
	return nil
}

// Get returns the stored payload of an entity, or nil when absent.
func (s *RemoteStore) Get(ctx context.Context, entityType domain.EntityType, entityID string) (json.RawMessage, error) {
	var payload []byte
	q := s.db.Rebind(`SELECT payload FROM entities WHERE entity_type = ? AND entity_id = ?`)
	err := s.db.GetContext(ctx, &payload, q, string(entityType), entityID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get entity: %w", err)
	}
	return payload, nil
}

// DeleteAppliedBefore drops applied-task markers recorded before the cutoff.
func (s *RemoteStore) DeleteAppliedBefore(ctx context.Context, before time.Time) (int64, error) {
	q := s.db.Rebind(`DELETE FROM applied_tasks WHERE applied_at < ?`)
	res, err := s.db.ExecContext(ctx, q, before.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to prune applied tasks: %w", err)
	}
	return res.RowsAffected()
}
