// Package cli реализует команды flowstate.
//
// # Команды
//
//   - validate FILE — проверка описания: состояния, финальные состояния,
//     недостижимые состояния и тупики
//   - run FILE --event E ... — локальный прогон: снимок после каждого события
//   - definition push|versions — описания в PostgreSQL
//   - record list|get — записи в хранилище состояний
//   - child invoke FILE — публикация запуска дочернего workflow
//
// # Output
//
// Форматирование вывода. Поддерживает два режима:
//   - Таблицы (text/tabwriter) — по умолчанию
//   - JSON — с флагом --json
//
// Данные выводятся в stdout, сообщения (Success/Warn/Error) — в stderr.
// Это позволяет использовать pipe: flowstate run order.json --event SUBMIT --json | jq .
//
// Команды не открывают соединений сами: хранилище, репозиторий описаний и
// транспорт передаются фабриками (StoreFn, DefinitionsFn, SenderFn).
package cli
