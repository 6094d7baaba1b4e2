package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/vietddude/snapcook/internal/core/domain"
)

// UnitOfWork bundles the writes of one task into a single transaction, so
// the entity change and its applied marker succeed or fail together.
type UnitOfWork struct {
	db *DB
	tx *sqlx.Tx
}

// NewUnitOfWork creates a new unit of work with an active transaction.
func (db *DB) NewUnitOfWork(ctx context.Context) (*UnitOfWork, error) {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return &UnitOfWork{db: db, tx: tx}, nil
}

// Commit commits the transaction.
func (u *UnitOfWork) Commit() error {
	if u.tx == nil {
		return fmt.Errorf("transaction already completed")
	}
	err := u.tx.Commit()
	u.tx = nil
	return err
}

// Rollback rolls back the transaction. Safe to call multiple times.
func (u *UnitOfWork) Rollback() error {
	if u.tx == nil {
		return nil // Already committed or rolled back
	}
	err := u.tx.Rollback()
	u.tx = nil
	return err
}

// IsApplied reports whether a task ID was already applied.
func (u *UnitOfWork) IsApplied(ctx context.Context, taskID string) (bool, error) {
	var n int
	q := u.tx.Rebind(`SELECT COUNT(*) FROM applied_tasks WHERE task_id = ?`)
	if err := u.tx.GetContext(ctx, &n, q, taskID); err != nil {
		return false, fmt.Errorf("failed to check applied task: %w", err)
	}
	return n > 0, nil
}

// UpsertEntity writes the entity payload, replacing any previous version.
func (u *UnitOfWork) UpsertEntity(ctx context.Context, entityType domain.EntityType, entityID string, payload json.RawMessage) error {
	var q string
	switch u.db.dialect {
	case "mysql":
		q = `INSERT INTO entities (entity_type, entity_id, payload, updated_at)
			VALUES (?, ?, ?, ?)
			ON DUPLICATE KEY UPDATE payload = VALUES(payload), updated_at = VALUES(updated_at)`
	default:
		q = `INSERT INTO entities (entity_type, entity_id, payload, updated_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT (entity_type, entity_id)
			DO UPDATE SET payload = EXCLUDED.payload, updated_at = EXCLUDED.updated_at`
	}

	_, err := u.tx.ExecContext(ctx, u.tx.Rebind(q),
		string(entityType), entityID, nullableJSON(payload), time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to upsert entity: %w", err)
	}
	return nil
}

// DeleteEntity removes the entity. Deleting a missing entity is not an error.
func (u *UnitOfWork) DeleteEntity(ctx context.Context, entityType domain.EntityType, entityID string) error {
	q := u.tx.Rebind(`DELETE FROM entities WHERE entity_type = ? AND entity_id = ?`)
	if _, err := u.tx.ExecContext(ctx, q, string(entityType), entityID); err != nil {
		return fmt.Errorf("failed to delete entity: %w", err)
	}
	return nil
}

// MarkApplied records the task ID so repeats become no-ops.
func (u *UnitOfWork) MarkApplied(ctx context.Context, t *domain.SyncTask) error {
	q := u.tx.Rebind(`INSERT INTO applied_tasks (task_id, kind, entity_type, entity_id, applied_at)
		VALUES (?, ?, ?, ?, ?)`)
	_, err := u.tx.ExecContext(ctx, q,
		t.ID, string(t.Kind), string(t.EntityType), t.EntityID, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to mark task applied: %w", err)
	}
	return nil
}

func nullableJSON(p json.RawMessage) any {
	if len(p) == 0 {
		return nil
	}
	return string(p)
}
