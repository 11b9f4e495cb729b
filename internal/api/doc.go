// Package api содержит HTTP API flowstate-worker.
//
// Структура:
//   - handler.go            — Handler с зависимостями (описания, хранилище, транспорт)
//   - routes.go             — регистрация маршрутов
//   - middleware.go         — middleware (request id, logging, recovery)
//   - response.go           — унифицированные JSON-ответы и обработка ошибок
//   - dto.go                — request/response
//   - definition_handler.go — /definitions
//   - record_handler.go     — /records
//   - child_handler.go      — /children
//
// Экземпляры workflow живут в процессе вызывающего кода; API даёт доступ
// к описаниям, сохранённым записям и запуску дочерних workflow.
package api
