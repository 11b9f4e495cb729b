// Package store описывает контракт хранилища состояний экземпляров.
//
// Движок не реализует хранилище сам: его предоставляет вызывающий код.
// Реализации:
//   - store/memory — в памяти (тесты, CLI)
//   - store/redis  — Redis
//   - repo         — PostgreSQL (repo.RecordRepo)
//
// Семантика Put — last-write-wins: запись перезаписывается без версий
// и без оптимистичных блокировок. Несколько процессов, пишущих в одно
// хранилище, должны координироваться снаружи.
package store

import (
	"context"
	"errors"

	"github.com/shaiso/flowstate/internal/domain"
)

// ErrNotFound — записи для (workflowID, entityID) нет.
var ErrNotFound = errors.New("record not found")

// ErrEmptyKey — пустой workflowID или entityID.
var ErrEmptyKey = errors.New("workflow id and entity id are required")

// Store — хранилище пар {state, context}.
type Store interface {
	// Find возвращает идентификаторы workflow, связанных с сущностью.
	Find(ctx context.Context, entityID string) ([]string, error)

	// Get возвращает запись или ErrNotFound.
	Get(ctx context.Context, workflowID, entityID string) (*domain.PersistenceRecord, error)

	// Put перезаписывает запись.
	Put(ctx context.Context, workflowID, entityID string, record *domain.PersistenceRecord) error
}

// ValidateKey проверяет ключ записи.
func ValidateKey(workflowID, entityID string) error {
	if workflowID == "" || entityID == "" {
		return ErrEmptyKey
	}
	return nil
}
