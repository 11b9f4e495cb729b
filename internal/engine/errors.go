package engine

import "errors"

// Ошибки валидации описания statechart.
var (
	// ErrEmptyID — описание не имеет id.
	ErrEmptyID = errors.New("definition has empty id")

	// ErrNoStates — описание не содержит состояний.
	ErrNoStates = errors.New("definition has no states")

	// ErrMissingInitial — начальное состояние не задано или не объявлено.
	ErrMissingInitial = errors.New("initial state is not declared")

	// ErrEmptyStateName — состояние с пустым именем.
	ErrEmptyStateName = errors.New("state has empty name")

	// ErrEmptyEventName — переход с пустым именем события.
	ErrEmptyEventName = errors.New("transition has empty event name")

	// ErrUnknownTarget — переход ведёт в необъявленное состояние.
	ErrUnknownTarget = errors.New("transition target is not declared")

	// ErrUnknownStateType — неизвестный type состояния.
	ErrUnknownStateType = errors.New("unknown state type")

	// ErrFinalWithTransitions — у терминального состояния есть переходы.
	ErrFinalWithTransitions = errors.New("final state has transitions")
)

// Ошибки загрузки.
var (
	// ErrUnsupportedDefinitionType — формат описания не поддерживается.
	ErrUnsupportedDefinitionType = errors.New("unsupported definition type")

	// ErrInvalidJSON — тело описания не является корректным JSON.
	ErrInvalidJSON = errors.New("invalid definition json")

	// ErrDefinitionNotFound — описание не найдено в реестре.
	ErrDefinitionNotFound = errors.New("definition not found")
)

// ValidationError — ошибка валидации с контекстом.
type ValidationError struct {
	State   string // состояние, где произошла ошибка
	Field   string // поле, вызвавшее ошибку
	Message string // описание ошибки
	Err     error  // базовая ошибка
}

// Error реализует интерфейс error.
func (e *ValidationError) Error() string {
	if e.State != "" {
		return "state " + e.State + ": " + e.Message
	}
	return e.Message
}

// Unwrap возвращает базовую ошибку.
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewValidationError создаёт новую ошибку валидации.
func NewValidationError(state, field, message string, err error) *ValidationError {
	return &ValidationError{
		State:   state,
		Field:   field,
		Message: message,
		Err:     err,
	}
}
