package workflow

import "errors"

var (
	// ErrUnknownTransitionEvent — в текущем состоянии нет перехода по событию.
	// Не фатальна: возвращается в Outcome.Ignored, состояние не меняется.
	ErrUnknownTransitionEvent = errors.New("no transition for event in current state")

	// ErrInvalidState — экземпляр в терминальном состоянии и не принимает событий.
	ErrInvalidState = errors.New("workflow is in a final state")

	// ErrUnknownState — состояние для восстановления не объявлено в описании.
	ErrUnknownState = errors.New("unknown workflow state")

	// ErrMissingChildInvoker — заданы дочерние workflow, но нет Invoker.
	ErrMissingChildInvoker = errors.New("child workflows configured without invoker")

	// ErrMissingDefinition — не передано описание workflow.
	ErrMissingDefinition = errors.New("workflow definition is required")
)
