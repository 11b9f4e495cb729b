// Package redis реализует store.Store поверх Redis.
//
// Записи сущности хранятся в одном Hash по ключу flowstate:entity:{entity}:
// поле — workflowId, значение — запись в JSON. Ключ содержит только entityId,
// поэтому разные пары (workflowId, entityId) не пересекаются при любых
// символах в идентификаторах.
//
// Использование:
//
//	client := goredis.NewClient(&goredis.Options{Addr: "localhost:6379"})
//	s := redis.New(client)
//	if err := s.Ping(ctx); err != nil { ... }
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/shaiso/flowstate/internal/domain"
	"github.com/shaiso/flowstate/internal/store"
)

var _ store.Store = (*Store)(nil)

const keyPrefix = "flowstate:"

// entityKey возвращает ключ индекса сущности: flowstate:entity:{entity}
func entityKey(entityID string) string {
	return keyPrefix + "entity:" + entityID
}

// Option настраивает Store.
type Option func(*Store)

// WithLogger задаёт логгер.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithTTL задаёт время жизни записей сущности, отсчитываемое от последнего
// Put любой из них. 0 — без ограничения.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) { s.ttl = ttl }
}

// Store — хранилище состояний в Redis.
type Store struct {
	client goredis.Cmdable
	logger *slog.Logger
	ttl    time.Duration
}

// New создаёт Store. Жизненным циклом клиента управляет вызывающий код.
func New(client goredis.Cmdable, opts ...Option) *Store {
	s := &Store{client: client, logger: slog.Default()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Ping проверяет соединение с Redis.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Find возвращает идентификаторы workflow сущности (отсортированы).
func (s *Store) Find(ctx context.Context, entityID string) ([]string, error) {
	ids, err := s.client.HKeys(ctx, entityKey(entityID)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis find: %w", err)
	}
	sort.Strings(ids)
	return ids, nil
}

// Get возвращает запись или store.ErrNotFound.
func (s *Store) Get(ctx context.Context, workflowID, entityID string) (*domain.PersistenceRecord, error) {
	data, err := s.client.HGet(ctx, entityKey(entityID), workflowID).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var rec domain.PersistenceRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal record: %w", err)
	}
	return &rec, nil
}

// Put перезаписывает запись (last-write-wins) и продлевает TTL сущности
// в одной транзакции.
func (s *Store) Put(ctx context.Context, workflowID, entityID string, record *domain.PersistenceRecord) error {
	if err := store.ValidateKey(workflowID, entityID); err != nil {
		return err
	}

	rec := *record
	rec.WorkflowID = workflowID
	rec.EntityID = entityID
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = time.Now().UTC()
	}

	data, err := json.Marshal(&rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	key := entityKey(entityID)
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, workflowID, data)
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis put: %w", err)
	}

	s.logger.Debug("record saved",
		"workflow_id", workflowID,
		"entity_id", entityID,
		"state", rec.State,
	)
	return nil
}
