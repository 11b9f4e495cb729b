package engine

import (
	"fmt"
	"sort"

	"github.com/shaiso/flowstate/internal/domain"
)

// Definition — скомпилированное неизменяемое описание workflow.
//
// Таблица переходов строится один раз в Compile; все обращения —
// прямой lookup по map, без вычисления выражений.
type Definition struct {
	id             string
	version        int
	initial        string
	defaultContext map[string]any

	// transitions — состояние → (событие → следующее состояние).
	transitions map[string]map[string]string

	// final — терминальные состояния.
	final map[string]bool
}

// Compile валидирует описание и строит таблицу переходов.
func Compile(spec *domain.StatechartDefinition) (*Definition, error) {
	if err := Validate(spec); err != nil {
		return nil, err
	}

	def := &Definition{
		id:             spec.ID,
		version:        spec.EffectiveVersion(),
		initial:        spec.Initial,
		defaultContext: domain.CloneContext(spec.Context),
		transitions:    make(map[string]map[string]string, len(spec.States)),
		final:          make(map[string]bool),
	}

	for name, state := range spec.States {
		table := make(map[string]string, len(state.On))
		for event, target := range state.On {
			table[event] = target
		}
		def.transitions[name] = table

		if state.IsFinal() {
			def.final[name] = true
		}
	}

	return def, nil
}

// MustCompile — как Compile, но паникует при ошибке. Для тестов и статических описаний.
func MustCompile(spec *domain.StatechartDefinition) *Definition {
	def, err := Compile(spec)
	if err != nil {
		panic(fmt.Sprintf("compile definition: %v", err))
	}
	return def
}

// ID возвращает идентификатор описания.
func (d *Definition) ID() string {
	return d.id
}

// Version возвращает версию описания.
func (d *Definition) Version() int {
	return d.version
}

// Initial возвращает начальное состояние.
func (d *Definition) Initial() string {
	return d.initial
}

// DefaultContext возвращает копию контекста по умолчанию.
func (d *Definition) DefaultContext() map[string]any {
	return domain.CloneContext(d.defaultContext)
}

// HasState проверяет, объявлено ли состояние.
func (d *Definition) HasState(state string) bool {
	_, ok := d.transitions[state]
	return ok
}

// IsFinal проверяет, является ли состояние терминальным.
func (d *Definition) IsFinal(state string) bool {
	return d.final[state]
}

// Lookup возвращает состояние, в которое ведёт событие из state.
func (d *Definition) Lookup(state, event string) (string, bool) {
	target, ok := d.transitions[state][event]
	return target, ok
}

// Events возвращает события, допустимые в состоянии (отсортированы).
func (d *Definition) Events(state string) []string {
	table := d.transitions[state]
	events := make([]string, 0, len(table))
	for event := range table {
		events = append(events, event)
	}
	sort.Strings(events)
	return events
}

// States возвращает все состояния (отсортированы).
func (d *Definition) States() []string {
	states := make([]string, 0, len(d.transitions))
	for name := range d.transitions {
		states = append(states, name)
	}
	sort.Strings(states)
	return states
}

// FinalStates возвращает терминальные состояния (отсортированы).
func (d *Definition) FinalStates() []string {
	states := make([]string, 0, len(d.final))
	for name := range d.final {
		states = append(states, name)
	}
	sort.Strings(states)
	return states
}
