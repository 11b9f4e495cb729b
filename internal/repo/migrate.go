package repo

import (
	"context"
	"fmt"
)

// schema — DDL таблиц. Все операторы идемпотентны.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS workflow_records (
		workflow_id TEXT        NOT NULL,
		entity_id   TEXT        NOT NULL,
		state       TEXT        NOT NULL,
		context     JSONB       NOT NULL DEFAULT '{}',
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (entity_id, workflow_id)
	)`,
	`CREATE TABLE IF NOT EXISTS workflow_definitions (
		definition_id TEXT        NOT NULL,
		version       INT         NOT NULL,
		body          JSONB       NOT NULL,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (definition_id, version)
	)`,
}

// Migrate создаёт таблицы, если их нет.
func Migrate(ctx context.Context, db DB) error {
	for i, stmt := range schema {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate step %d: %w", i+1, err)
		}
	}
	return nil
}
