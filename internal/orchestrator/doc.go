// Package orchestrator доставляет события дочерних workflow родителям.
//
// Orchestrator работает в процессе, где живут родительские экземпляры:
//   - Track регистрирует экземпляр по runtimeId
//   - consumer очереди child.callback находит родителя по parentRuntimeId
//     и отправляет ему событие из callbackInfo
//   - родитель, дошедший до финального состояния, снимается с учёта
//
// Связка с flowstate-worker:
//
//	parent --child.invoke--> flowstate-worker --child.callback--> Orchestrator --SendEvent--> parent
package orchestrator
