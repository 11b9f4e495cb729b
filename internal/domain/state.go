package domain

import "time"

// Snapshot — наблюдаемое извне состояние экземпляра workflow.
//
// Context — значение последнего зафиксированного перехода. Каждый переход
// с обновлением контекста создаёт новую map, поэтому вызывающий код
// не должен изменять полученную map.
type Snapshot struct {
	// Value — имя текущего состояния.
	Value string `json:"value"`

	// Context — текущий контекст.
	Context map[string]any `json:"context"`
}

// WorkflowContext — сохранённая пара {state, context} для восстановления экземпляра.
type WorkflowContext struct {
	// MachineContext — контекст. Nil — контекст по умолчанию из описания.
	MachineContext map[string]any `json:"machineContext,omitempty"`

	// State — состояние. Пусто — начальное состояние из описания.
	State string `json:"state,omitempty"`
}

// Event — событие, отправляемое экземпляру.
type Event struct {
	// Type — имя события (ключ в таблице переходов).
	Type string `json:"type"`

	// Payload — необязательное обновление контекста.
	// Поля payload накладываются на копию текущего контекста.
	Payload map[string]any `json:"payload,omitempty"`
}

// EventInfo — информация о переходе, передаваемая плагинам.
type EventInfo struct {
	// Event — событие, вызвавшее переход.
	Event Event

	// From — состояние до перехода.
	From string

	// To — состояние после перехода.
	To string

	// DefinitionID — идентификатор описания workflow.
	DefinitionID string

	// RuntimeID — идентификатор экземпляра.
	RuntimeID string
}

// PersistenceRecord — запись о состоянии экземпляра во внешнем хранилище.
//
// Соответствует экземпляру на момент последнего успешного post-transition сохранения.
type PersistenceRecord struct {
	WorkflowID string         `json:"workflow_id"`
	EntityID   string         `json:"entity_id"`
	State      string         `json:"state"`
	Context    map[string]any `json:"context"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// WorkflowContext возвращает запись в виде входа для восстановления.
func (r *PersistenceRecord) WorkflowContext() *WorkflowContext {
	return &WorkflowContext{
		MachineContext: r.Context,
		State:          r.State,
	}
}

// CloneContext возвращает глубокую копию контекста.
// Вложенные map[string]any и []any копируются, остальные значения — как есть.
func CloneContext(ctx map[string]any) map[string]any {
	if ctx == nil {
		return nil
	}
	out := make(map[string]any, len(ctx))
	for k, v := range ctx {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return CloneContext(val)
	case []any:
		out := make([]any, len(val))
		for i := range val {
			out[i] = cloneValue(val[i])
		}
		return out
	default:
		return v
	}
}

// MergeContext возвращает новый контекст: копия base с наложенными полями patch.
// base не изменяется.
func MergeContext(base, patch map[string]any) map[string]any {
	out := CloneContext(base)
	if out == nil {
		out = make(map[string]any, len(patch))
	}
	for k, v := range patch {
		out[k] = cloneValue(v)
	}
	return out
}
