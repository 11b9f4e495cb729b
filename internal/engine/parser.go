package engine

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/shaiso/flowstate/internal/domain"
)

// ParseJSON разбирает тело описания в формате statechart-json.
// Неизвестные поля считаются ошибкой.
func ParseJSON(data []byte) (*domain.StatechartDefinition, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var spec domain.StatechartDefinition
	if err := dec.Decode(&spec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	return &spec, nil
}

// Load разбирает, валидирует и компилирует описание указанного типа.
func Load(definitionType string, body []byte) (*Definition, error) {
	if definitionType != domain.DefinitionTypeStatechartJSON {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDefinitionType, definitionType)
	}

	spec, err := ParseJSON(body)
	if err != nil {
		return nil, err
	}
	return Compile(spec)
}

// Validate выполняет полную валидацию описания.
//
// Проверяет:
// - Наличие id и состояний
// - Что initial объявлен
// - Что все цели переходов объявлены
// - Корректность type и отсутствие переходов у final состояний
func Validate(spec *domain.StatechartDefinition) error {
	if spec == nil || len(spec.States) == 0 {
		return ErrNoStates
	}

	if spec.ID == "" {
		return NewValidationError("", "id", "definition has empty id", ErrEmptyID)
	}

	if _, ok := spec.States[spec.Initial]; !ok || spec.Initial == "" {
		return NewValidationError("", "initial",
			fmt.Sprintf("initial state %q is not declared", spec.Initial), ErrMissingInitial)
	}

	// Детерминированный порядок, чтобы ошибка была одной и той же от запуска к запуску
	names := make([]string, 0, len(spec.States))
	for name := range spec.States {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if err := ValidateState(name, spec.States[name], spec.States); err != nil {
			return err
		}
	}

	return nil
}

// ValidateState валидирует одно состояние.
// states — все объявленные состояния (для проверки целей переходов).
func ValidateState(name string, state domain.StateDef, states map[string]domain.StateDef) error {
	if name == "" {
		return NewValidationError("", "states", "state has empty name", ErrEmptyStateName)
	}

	switch state.Type {
	case "", domain.StateTypeFinal:
	default:
		return NewValidationError(name, "type",
			fmt.Sprintf("unknown state type: %s", state.Type), ErrUnknownStateType)
	}

	if state.IsFinal() && len(state.On) > 0 {
		return NewValidationError(name, "on",
			"final state must not declare transitions", ErrFinalWithTransitions)
	}

	for event, target := range state.On {
		if event == "" {
			return NewValidationError(name, "on",
				"transition has empty event name", ErrEmptyEventName)
		}
		if _, ok := states[target]; !ok {
			return NewValidationError(name, "on",
				fmt.Sprintf("event %s targets unknown state: %s", event, target), ErrUnknownTarget)
		}
	}

	return nil
}
