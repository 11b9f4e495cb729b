package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/shaiso/flowstate/internal/domain"
	"github.com/shaiso/flowstate/internal/store"
)

var _ store.Store = (*RecordRepo)(nil)

// RecordRepo — записи экземпляров в workflow_records.
type RecordRepo struct {
	db DB
}

// NewRecordRepo создаёт новый RecordRepo.
func NewRecordRepo(db DB) *RecordRepo {
	return &RecordRepo{db: db}
}

// Find возвращает идентификаторы workflow сущности.
func (r *RecordRepo) Find(ctx context.Context, entityID string) ([]string, error) {
	query := `
		SELECT workflow_id
		FROM workflow_records
		WHERE entity_id = $1
		ORDER BY workflow_id
	`
	rows, err := r.db.Query(ctx, query, entityID)
	if err != nil {
		return nil, fmt.Errorf("find records: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan workflow id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Get возвращает запись или store.ErrNotFound.
func (r *RecordRepo) Get(ctx context.Context, workflowID, entityID string) (*domain.PersistenceRecord, error) {
	query := `
		SELECT workflow_id, entity_id, state, context, updated_at
		FROM workflow_records
		WHERE entity_id = $1 AND workflow_id = $2
	`
	var rec domain.PersistenceRecord
	var contextJSON []byte
	err := r.db.QueryRow(ctx, query, entityID, workflowID).Scan(
		&rec.WorkflowID,
		&rec.EntityID,
		&rec.State,
		&contextJSON,
		&rec.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get record: %w", err)
	}

	if err := json.Unmarshal(contextJSON, &rec.Context); err != nil {
		return nil, fmt.Errorf("unmarshal context: %w", err)
	}
	return &rec, nil
}

// Put вставляет или перезаписывает запись (last-write-wins).
func (r *RecordRepo) Put(ctx context.Context, workflowID, entityID string, record *domain.PersistenceRecord) error {
	if err := store.ValidateKey(workflowID, entityID); err != nil {
		return err
	}

	contextJSON, err := marshalContext(record.Context)
	if err != nil {
		return err
	}

	updatedAt := record.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO workflow_records (workflow_id, entity_id, state, context, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (entity_id, workflow_id) DO UPDATE
		SET state = EXCLUDED.state,
		    context = EXCLUDED.context,
		    updated_at = EXCLUDED.updated_at
	`
	_, err = r.db.Exec(ctx, query, workflowID, entityID, record.State, contextJSON, updatedAt)
	if err != nil {
		return fmt.Errorf("upsert record: %w", err)
	}
	return nil
}

// marshalContext сериализует контекст; nil — пустой объект.
func marshalContext(machineContext map[string]any) ([]byte, error) {
	if machineContext == nil {
		return []byte("{}"), nil
	}
	data, err := json.Marshal(machineContext)
	if err != nil {
		return nil, fmt.Errorf("marshal context: %w", err)
	}
	return data, nil
}
