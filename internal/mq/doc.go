// Package mq предоставляет транспорт RabbitMQ для запуска дочерних workflow
// вне процесса родителя.
//
// Структура:
//   - connection.go — соединение с RabbitMQ (reconnect, graceful shutdown)
//   - topology.go   — объявление exchanges, queues, bindings
//   - publisher.go  — публикация сообщений
//   - consumer.go   — потребление сообщений
//
// Типы сообщений:
//   - child.invoke   — запустить дочерний workflow (payload: ChildWorkflowMetadata)
//   - child.callback — дочерний workflow завершился, событие для родителя
//
// Exchanges:
//   - flowstate.children — запуск и завершение дочерних workflow
//   - flowstate.dlq      — dead letter queue
package mq
