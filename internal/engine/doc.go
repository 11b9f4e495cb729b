// Package engine загружает описания workflow.
//
// Включает:
//   - parser.go     — разбор statechart-json и валидация
//   - definition.go — компиляция в неизменяемую таблицу переходов
//   - graph.go      — граф переходов (достижимость, тупики)
//   - path.go       — разрешение путей в контексте ("endUser.id")
//   - registry.go   — реестр описаний и кэш поверх внешнего источника
//
// Engine ничего не знает об экземплярах: он только отвечает на вопрос
// "куда ведёт событие E из состояния S".
package engine
