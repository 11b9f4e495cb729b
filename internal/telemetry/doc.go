// Package telemetry — логи и метрики flowstate.
//
//   - logging.go — slog-логгер (json или text), логгер в context.Context,
//     поля definition_id, runtime_id, entity_id
//   - metrics.go — счётчики переходов, проигнорированных событий, ошибок
//     плагинов, вызовов дочерних workflow и входов в состояния
//
// Метрики регистрируются в переданном prometheus.Registerer; nil —
// глобальный реестр, который flowstate-worker отдаёт на /metrics.
package telemetry
