package plugin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"time"

	"github.com/shaiso/flowstate/internal/domain"
	"github.com/shaiso/flowstate/internal/store"
)

// DefaultEntityKey — ключ контекста с идентификатором сущности.
const DefaultEntityKey = "entityId"

// DefaultPersistenceName — имя плагина сохранения по умолчанию.
const DefaultPersistenceName = "persistence"

// ErrMissingEntityID — в контексте нет идентификатора сущности.
var ErrMissingEntityID = errors.New("entity id not found in context")

// PersistenceConfig — параметры плагина сохранения.
type PersistenceConfig struct {
	// Store — хранилище (обязательно).
	Store store.Store

	// Name — имя плагина. По умолчанию "persistence".
	Name string

	// EntityKey — ключ контекста с entityId. По умолчанию "entityId".
	EntityKey string

	// StateNames — фильтр состояний. Пусто — все.
	StateNames []string

	Logger *slog.Logger
}

// PersistencePlugin сохраняет {state, context} после каждого перехода.
//
// Ключ записи: workflowId = runtime id экземпляра, entityId = значение
// EntityKey из нового контекста.
type PersistencePlugin struct {
	store     store.Store
	name      string
	entityKey string
	states    []string
	logger    *slog.Logger
}

var _ Plugin = (*PersistencePlugin)(nil)

// NewPersistence создаёт плагин сохранения.
func NewPersistence(cfg PersistenceConfig) *PersistencePlugin {
	if cfg.Name == "" {
		cfg.Name = DefaultPersistenceName
	}
	if cfg.EntityKey == "" {
		cfg.EntityKey = DefaultEntityKey
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &PersistencePlugin{
		store:     cfg.Store,
		name:      cfg.Name,
		entityKey: cfg.EntityKey,
		states:    cfg.StateNames,
		logger:    cfg.Logger,
	}
}

// Name возвращает имя плагина.
func (p *PersistencePlugin) Name() string { return p.name }

// StateNames возвращает фильтр состояний.
func (p *PersistencePlugin) StateNames() []string { return p.states }

// Phase всегда PhasePost.
func (p *PersistencePlugin) Phase() Phase { return PhasePost }

// Invoke записывает зафиксированное состояние в хранилище.
func (p *PersistencePlugin) Invoke(ctx context.Context, machineContext map[string]any, info domain.EventInfo) error {
	entityID, err := EntityID(machineContext, p.entityKey)
	if err != nil {
		return err
	}

	record := &domain.PersistenceRecord{
		State:     info.To,
		Context:   machineContext,
		UpdatedAt: time.Now().UTC(),
	}

	if err := p.store.Put(ctx, info.RuntimeID, entityID, record); err != nil {
		return fmt.Errorf("put record: %w", err)
	}

	p.logger.Debug("workflow state persisted",
		"runtime_id", info.RuntimeID,
		"entity_id", entityID,
		"state", info.To,
	)
	return nil
}

// EntityID извлекает идентификатор сущности из контекста.
// Строки возвращаются как есть, целые числа — в десятичной записи.
// Дробное число не является идентификатором.
func EntityID(machineContext map[string]any, key string) (string, error) {
	v, ok := machineContext[key]
	if !ok || v == nil {
		return "", fmt.Errorf("%w: key %q", ErrMissingEntityID, key)
	}

	switch id := v.(type) {
	case string:
		if id == "" {
			return "", fmt.Errorf("%w: key %q is empty", ErrMissingEntityID, key)
		}
		return id, nil
	case float64:
		if math.IsInf(id, 0) || id != math.Trunc(id) {
			return "", fmt.Errorf("%w: key %q holds non-integral number %v", ErrMissingEntityID, key, id)
		}
		return strconv.FormatFloat(id, 'f', -1, 64), nil
	case int:
		return fmt.Sprintf("%d", id), nil
	case int64:
		return fmt.Sprintf("%d", id), nil
	default:
		return "", fmt.Errorf("%w: key %q has type %T", ErrMissingEntityID, key, v)
	}
}
