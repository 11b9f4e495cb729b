// Package child запускает дочерние workflow при переходах родителя.
//
// Coordinator вызывается один раз на каждый зафиксированный переход.
// Для каждой настройки, в StateNames которой входит новое состояние,
// строится ChildWorkflowMetadata и передаётся Invoker. Вызов синхронный:
// Evaluate возвращается только после того, как Invoker завершился.
//
// Ошибка запуска не откатывает переход родителя.
package child

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/shaiso/flowstate/internal/domain"
	"github.com/shaiso/flowstate/internal/engine"
	"github.com/shaiso/flowstate/internal/telemetry"
)

var (
	// ErrInvocationFailed — Invoker вернул ошибку.
	ErrInvocationFailed = errors.New("child workflow invocation failed")

	// ErrInvalidConfig — некорректная настройка дочернего workflow.
	ErrInvalidConfig = errors.New("invalid child workflow config")
)

// Invoker запускает дочерний workflow.
type Invoker interface {
	InvokeChildWorkflow(ctx context.Context, metadata domain.ChildWorkflowMetadata) error
}

// InvokerFunc — адаптер функции к Invoker.
type InvokerFunc func(ctx context.Context, metadata domain.ChildWorkflowMetadata) error

// InvokeChildWorkflow вызывает f.
func (f InvokerFunc) InvokeChildWorkflow(ctx context.Context, metadata domain.ChildWorkflowMetadata) error {
	return f(ctx, metadata)
}

// InvocationError — ошибка запуска дочернего workflow.
type InvocationError struct {
	// Name — имя дочернего workflow.
	Name string

	// State — состояние родителя, вызвавшее запуск.
	State string

	Err error
}

// Error реализует интерфейс error.
func (e *InvocationError) Error() string {
	return fmt.Sprintf("%s: %s on state %s: %v", ErrInvocationFailed, e.Name, e.State, e.Err)
}

// Unwrap возвращает ErrInvocationFailed и исходную ошибку.
func (e *InvocationError) Unwrap() []error {
	return []error{ErrInvocationFailed, e.Err}
}

// Parent — идентификаторы родительского экземпляра.
type Parent struct {
	DefinitionID string
	RuntimeID    string
}

// Config — параметры Coordinator.
type Config struct {
	Configs []domain.ChildWorkflowConfig
	Invoker Invoker
	Logger  *slog.Logger
	Metrics *telemetry.Metrics
}

// Coordinator запускает дочерние workflow.
type Coordinator struct {
	configs []domain.ChildWorkflowConfig
	invoker Invoker
	logger  *slog.Logger
	metrics *telemetry.Metrics
}

// New создаёт Coordinator. Настройки копируются.
func New(cfg Config) *Coordinator {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Coordinator{
		configs: slices.Clone(cfg.Configs),
		invoker: cfg.Invoker,
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
	}
}

// Len возвращает количество настроек.
func (c *Coordinator) Len() int {
	if c == nil {
		return 0
	}
	return len(c.configs)
}

// Evaluate запускает дочерние workflow, для которых state — триггер.
//
// Настройки обрабатываются в объявленном порядке; первая ошибка
// прекращает обработку и возвращается как *InvocationError.
// Возвращает количество успешных запусков.
func (c *Coordinator) Evaluate(ctx context.Context, parent Parent, state string, machineContext map[string]any) (int, error) {
	if c == nil || c.invoker == nil {
		return 0, nil
	}

	invoked := 0
	for i := range c.configs {
		cfg := &c.configs[i]
		if !slices.Contains(cfg.StateNames, state) {
			continue
		}

		metadata := BuildMetadata(cfg, parent, machineContext)

		c.logger.Debug("invoking child workflow",
			"child", cfg.Name,
			"child_definition_id", cfg.DefinitionID,
			"state", state,
		)

		err := c.invoker.InvokeChildWorkflow(ctx, metadata)
		c.metrics.ChildInvocation(cfg.Name, err)
		if err != nil {
			c.logger.Error("child workflow invocation failed",
				"child", cfg.Name,
				"state", state,
				"error", err,
			)
			return invoked, &InvocationError{Name: cfg.Name, State: state, Err: err}
		}
		invoked++
	}

	return invoked, nil
}

// BuildMetadata строит данные запуска из настройки и контекста родителя.
//
// initOptions.context — копия статического контекста, дополненная значением
// по пути ContextToCopy:
//   - map сливается по ключам (скопированные ключи важнее)
//   - иное значение кладётся под последним сегментом пути
//   - отсутствующий путь ничего не добавляет
func BuildMetadata(cfg *domain.ChildWorkflowConfig, parent Parent, machineContext map[string]any) domain.ChildWorkflowMetadata {
	init := domain.InitOptions{
		Event:   cfg.InitOptions.Event,
		State:   cfg.InitOptions.State,
		Context: domain.CloneContext(cfg.InitOptions.Context),
	}

	if cfg.ContextToCopy != "" {
		if value, ok := engine.ResolvePath(machineContext, cfg.ContextToCopy); ok {
			init.Context = mergeCopied(init.Context, cfg.ContextToCopy, value)
		}
	}

	version := cfg.DefinitionVersion
	if version <= 0 {
		version = 1
	}

	metadata := domain.ChildWorkflowMetadata{
		Name:               cfg.Name,
		DefinitionID:       cfg.DefinitionID,
		RuntimeID:          cfg.RuntimeID,
		Version:            version,
		InitOptions:        init,
		ParentDefinitionID: parent.DefinitionID,
		ParentRuntimeID:    parent.RuntimeID,
	}
	if cfg.CallbackInfo != nil {
		cb := *cfg.CallbackInfo
		metadata.CallbackInfo = &cb
	}
	return metadata
}

// mergeCopied добавляет скопированное значение в контекст.
func mergeCopied(base map[string]any, path string, value any) map[string]any {
	if m, ok := value.(map[string]any); ok {
		return domain.MergeContext(base, m)
	}
	return domain.MergeContext(base, map[string]any{engine.LastSegment(path): value})
}

// ValidateConfigs проверяет настройки дочерних workflow относительно
// описания родителя.
func ValidateConfigs(configs []domain.ChildWorkflowConfig, parent *engine.Definition) error {
	names := make(map[string]bool, len(configs))

	for i, cfg := range configs {
		if cfg.Name == "" {
			return fmt.Errorf("%w: config #%d has empty name", ErrInvalidConfig, i)
		}
		if names[cfg.Name] {
			return fmt.Errorf("%w: duplicate name %s", ErrInvalidConfig, cfg.Name)
		}
		names[cfg.Name] = true

		if cfg.DefinitionID == "" {
			return fmt.Errorf("%w: %s has empty definitionId", ErrInvalidConfig, cfg.Name)
		}
		if len(cfg.StateNames) == 0 {
			return fmt.Errorf("%w: %s has no stateNames", ErrInvalidConfig, cfg.Name)
		}
		if parent != nil {
			for _, s := range cfg.StateNames {
				if !parent.HasState(s) {
					return fmt.Errorf("%w: %s references unknown state %s", ErrInvalidConfig, cfg.Name, s)
				}
			}
		}
		if cfg.CallbackInfo != nil && cfg.CallbackInfo.Event == "" {
			return fmt.Errorf("%w: %s has callbackInfo without event", ErrInvalidConfig, cfg.Name)
		}
	}

	return nil
}
