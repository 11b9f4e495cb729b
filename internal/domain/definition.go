package domain

// DefinitionTypeStatechartJSON — единственный поддерживаемый формат описания workflow.
const DefinitionTypeStatechartJSON = "statechart-json"

// StateTypeFinal — маркер терминального состояния в описании.
const StateTypeFinal = "final"

// StatechartDefinition — описание workflow в формате statechart-json.
//
// Пример:
//
//	{
//	  "id": "toggle",
//	  "initial": "inactive",
//	  "context": {},
//	  "states": {
//	    "inactive": {"on": {"TOGGLE": "active"}},
//	    "active":   {"on": {"TOGGLE": "inactive"}}
//	  }
//	}
//
// После загрузки описание компилируется в неизменяемую таблицу переходов
// (см. engine.Compile) и больше не меняется.
type StatechartDefinition struct {
	// ID — идентификатор описания (definitionId).
	ID string `json:"id"`

	// Version — версия описания. 0 трактуется как 1.
	Version int `json:"version,omitempty"`

	// Initial — имя начального состояния.
	Initial string `json:"initial"`

	// Context — контекст по умолчанию для новых экземпляров.
	Context map[string]any `json:"context,omitempty"`

	// States — состояния (имя → определение).
	States map[string]StateDef `json:"states"`
}

// StateDef — определение одного состояния.
type StateDef struct {
	// On — таблица переходов: событие → следующее состояние.
	On map[string]string `json:"on,omitempty"`

	// Type — "final" для терминального состояния, иначе пусто.
	Type string `json:"type,omitempty"`
}

// IsFinal возвращает true, если состояние терминальное.
func (s StateDef) IsFinal() bool {
	return s.Type == StateTypeFinal
}

// EffectiveVersion возвращает версию описания (минимум 1).
func (d *StatechartDefinition) EffectiveVersion() int {
	if d.Version <= 0 {
		return 1
	}
	return d.Version
}
