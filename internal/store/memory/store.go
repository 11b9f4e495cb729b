// Package memory — хранилище состояний в памяти процесса.
//
// Потокобезопасно. Записи копируются при Put и Get, поэтому
// изменения контекста снаружи не попадают в хранилище.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shaiso/flowstate/internal/domain"
	"github.com/shaiso/flowstate/internal/store"
)

var _ store.Store = (*Store)(nil)

// Store — реализация store.Store в памяти.
type Store struct {
	mu sync.RWMutex

	// records — entityID → workflowID → запись.
	records map[string]map[string]*domain.PersistenceRecord
}

// New создаёт пустое хранилище.
func New() *Store {
	return &Store{
		records: make(map[string]map[string]*domain.PersistenceRecord),
	}
}

// Find возвращает идентификаторы workflow сущности (отсортированы).
func (s *Store) Find(_ context.Context, entityID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byWorkflow := s.records[entityID]
	ids := make([]string, 0, len(byWorkflow))
	for id := range byWorkflow {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// Get возвращает копию записи.
func (s *Store) Get(_ context.Context, workflowID, entityID string) (*domain.PersistenceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[entityID][workflowID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return copyRecord(rec), nil
}

// Put сохраняет копию записи, перезаписывая предыдущую.
func (s *Store) Put(_ context.Context, workflowID, entityID string, record *domain.PersistenceRecord) error {
	if err := store.ValidateKey(workflowID, entityID); err != nil {
		return err
	}

	rec := copyRecord(record)
	rec.WorkflowID = workflowID
	rec.EntityID = entityID
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	byWorkflow, ok := s.records[entityID]
	if !ok {
		byWorkflow = make(map[string]*domain.PersistenceRecord)
		s.records[entityID] = byWorkflow
	}
	byWorkflow[workflowID] = rec

	return nil
}

// Len возвращает общее количество записей.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, byWorkflow := range s.records {
		n += len(byWorkflow)
	}
	return n
}

func copyRecord(r *domain.PersistenceRecord) *domain.PersistenceRecord {
	if r == nil {
		return &domain.PersistenceRecord{}
	}
	cp := *r
	cp.Context = domain.CloneContext(r.Context)
	return &cp
}
