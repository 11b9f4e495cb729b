package orchestrator

import "errors"

// Ошибки оркестратора.
var (
	// ErrParentNotActive — родитель не зарегистрирован в этом процессе.
	ErrParentNotActive = errors.New("parent workflow not active")

	// ErrParentMismatch — parentDefinitionId не совпадает с описанием родителя.
	ErrParentMismatch = errors.New("parent definition mismatch")

	// ErrAlreadyTracked — экземпляр с таким runtimeId уже зарегистрирован.
	ErrAlreadyTracked = errors.New("workflow already tracked")

	// ErrOrchestratorStopped — оркестратор остановлен.
	ErrOrchestratorStopped = errors.New("orchestrator stopped")
)
