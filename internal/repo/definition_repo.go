package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/shaiso/flowstate/internal/domain"
	"github.com/shaiso/flowstate/internal/engine"
)

var _ engine.Source = (*DefinitionRepo)(nil)

// DefinitionRepo — описания workflow в workflow_definitions.
type DefinitionRepo struct {
	db DB
}

// NewDefinitionRepo создаёт новый DefinitionRepo.
func NewDefinitionRepo(db DB) *DefinitionRepo {
	return &DefinitionRepo{db: db}
}

// Save валидирует и сохраняет описание. Версии неизменяемы:
// повторное сохранение той же версии — ErrAlreadyExists.
func (r *DefinitionRepo) Save(ctx context.Context, spec *domain.StatechartDefinition) error {
	if err := engine.Validate(spec); err != nil {
		return err
	}

	body, err := json.Marshal(spec)
	if err != nil {
		return fmt.Errorf("marshal definition: %w", err)
	}

	query := `
		INSERT INTO workflow_definitions (definition_id, version, body, created_at)
		VALUES ($1, $2, $3, NOW())
	`
	_, err = r.db.Exec(ctx, query, spec.ID, spec.EffectiveVersion(), body)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %s v%d", ErrAlreadyExists, spec.ID, spec.EffectiveVersion())
	}
	if err != nil {
		return fmt.Errorf("insert definition: %w", err)
	}
	return nil
}

// GetDefinition загружает и компилирует описание.
// Версия <= 0 — последняя сохранённая.
func (r *DefinitionRepo) GetDefinition(ctx context.Context, id string, version int) (*engine.Definition, error) {
	var (
		body []byte
		err  error
	)

	if version > 0 {
		err = r.db.QueryRow(ctx, `
			SELECT body
			FROM workflow_definitions
			WHERE definition_id = $1 AND version = $2
		`, id, version).Scan(&body)
	} else {
		err = r.db.QueryRow(ctx, `
			SELECT body
			FROM workflow_definitions
			WHERE definition_id = $1
			ORDER BY version DESC
			LIMIT 1
		`, id).Scan(&body)
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s v%d", engine.ErrDefinitionNotFound, id, version)
	}
	if err != nil {
		return nil, fmt.Errorf("get definition: %w", err)
	}

	return engine.Load(domain.DefinitionTypeStatechartJSON, body)
}

// ListVersions возвращает сохранённые версии описания по возрастанию.
func (r *DefinitionRepo) ListVersions(ctx context.Context, id string) ([]int, error) {
	rows, err := r.db.Query(ctx, `
		SELECT version
		FROM workflow_definitions
		WHERE definition_id = $1
		ORDER BY version
	`, id)
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	defer rows.Close()

	var versions []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan version: %w", err)
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}
