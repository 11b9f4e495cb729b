package worker

import "errors"

// Ошибки воркера.
var (
	// ErrInvalidMetadata — в сообщении child.invoke нет обязательных полей.
	ErrInvalidMetadata = errors.New("invalid child metadata")

	// ErrMissingSource — не задан источник описаний.
	ErrMissingSource = errors.New("definition source is required")

	// ErrWorkerStopped — воркер остановлен.
	ErrWorkerStopped = errors.New("worker stopped")
)
