package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/shaiso/flowstate/internal/domain"
	"github.com/shaiso/flowstate/internal/telemetry"
)

// entry — плагин с фильтром, разобранным при регистрации.
type entry struct {
	name   string
	states map[string]bool
	plugin Plugin
}

// matches проверяет фильтр состояний. Пустой фильтр — все состояния.
func (e entry) matches(state string) bool {
	return len(e.states) == 0 || e.states[state]
}

// Pipeline — упорядоченный набор плагинов, разбитый по фазам.
//
// Неизменяем после создания, поэтому безопасен для использования
// несколькими экземплярами одновременно.
type Pipeline struct {
	pre     []entry
	post    []entry
	logger  *slog.Logger
	metrics *telemetry.Metrics
}

// Option настраивает Pipeline.
type Option func(*Pipeline)

// WithLogger задаёт логгер.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// WithMetrics задаёт метрики ошибок плагинов.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// NewPipeline создаёт конвейер из плагинов в порядке регистрации.
func NewPipeline(plugins []Plugin, opts ...Option) (*Pipeline, error) {
	p := &Pipeline{logger: slog.Default()}
	for _, o := range opts {
		o(p)
	}

	seen := make(map[string]bool, len(plugins))
	for i, pl := range plugins {
		if pl == nil {
			return nil, fmt.Errorf("%w: plugin #%d is nil", ErrInvalidPlugin, i)
		}

		name := pl.Name()
		if name == "" {
			return nil, fmt.Errorf("%w: plugin #%d has empty name", ErrInvalidPlugin, i)
		}
		if seen[name] {
			return nil, fmt.Errorf("%w: %s", ErrDuplicatePlugin, name)
		}
		seen[name] = true

		e := entry{name: name, plugin: pl}
		if states := pl.StateNames(); len(states) > 0 {
			e.states = make(map[string]bool, len(states))
			for _, s := range states {
				e.states[s] = true
			}
		}

		switch pl.Phase() {
		case PhasePre:
			p.pre = append(p.pre, e)
		case PhasePost:
			p.post = append(p.post, e)
		default:
			return nil, fmt.Errorf("%w: %s has unknown phase %q", ErrInvalidPlugin, name, pl.Phase())
		}
	}

	return p, nil
}

// Run выполняет плагины фазы, фильтр которых пуст или содержит state.
// Возвращает *PluginError первого упавшего плагина.
func (p *Pipeline) Run(ctx context.Context, phase Phase, state string, machineContext map[string]any, info domain.EventInfo) error {
	if p == nil {
		return nil
	}

	entries := p.pre
	if phase == PhasePost {
		entries = p.post
	}

	for _, e := range entries {
		if !e.matches(state) {
			continue
		}

		if err := e.plugin.Invoke(ctx, machineContext, info); err != nil {
			p.logger.Error("state plugin failed",
				"plugin", e.name,
				"phase", phase,
				"state", state,
				"error", err,
			)
			p.metrics.PluginFailure(e.name, string(phase))
			return &PluginError{Plugin: e.name, Phase: phase, Err: err}
		}
	}

	return nil
}

// Names возвращает имена плагинов фазы в порядке выполнения.
func (p *Pipeline) Names(phase Phase) []string {
	if p == nil {
		return nil
	}
	entries := p.pre
	if phase == PhasePost {
		entries = p.post
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.name)
	}
	return names
}

// Len возвращает общее количество плагинов.
func (p *Pipeline) Len() int {
	if p == nil {
		return 0
	}
	return len(p.pre) + len(p.post)
}

// Has проверяет, зарегистрирован ли плагин с именем name.
func (p *Pipeline) Has(name string) bool {
	return slices.Contains(p.Names(PhasePre), name) || slices.Contains(p.Names(PhasePost), name)
}
