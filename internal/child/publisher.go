package child

import (
	"context"

	"github.com/shaiso/flowstate/internal/domain"
	"github.com/shaiso/flowstate/internal/engine"
)

// Sender отправляет запрос на запуск дочернего workflow в транспорт.
// Реализуется mq.Publisher.
type Sender interface {
	PublishChildInvoke(ctx context.Context, metadata domain.ChildWorkflowMetadata) error
}

// Publisher — Invoker, передающий запуск во внешний процесс через очередь.
//
// Вызов завершается после подтверждения публикации; выполнение дочернего
// workflow происходит асинхронно в flowstate-worker.
type Publisher struct {
	sender Sender
}

var _ Invoker = (*Publisher)(nil)

// NewPublisher создаёт Publisher.
func NewPublisher(sender Sender) *Publisher {
	return &Publisher{sender: sender}
}

// InvokeChildWorkflow публикует metadata.
func (p *Publisher) InvokeChildWorkflow(ctx context.Context, metadata domain.ChildWorkflowMetadata) error {
	return p.sender.PublishChildInvoke(ctx, metadata)
}

// CallbackEvent строит событие для родителя из callbackInfo.
//
// Тип события — callbackInfo.event; payload — значение по пути
// callbackInfo.contextToCopy в контексте дочернего workflow. Значение
// map передаётся как есть, остальные кладутся под последним сегментом пути.
// Возвращает false, если callbackInfo не задан.
func CallbackEvent(metadata domain.ChildWorkflowMetadata, childSnapshot domain.Snapshot) (domain.Event, bool) {
	cb := metadata.CallbackInfo
	if cb == nil || cb.Event == "" {
		return domain.Event{}, false
	}

	event := domain.Event{Type: cb.Event}
	if cb.ContextToCopy == "" {
		return event, true
	}

	value, ok := engine.ResolvePath(childSnapshot.Context, cb.ContextToCopy)
	if !ok {
		return event, true
	}

	if m, isMap := value.(map[string]any); isMap {
		event.Payload = domain.CloneContext(m)
	} else {
		event.Payload = map[string]any{engine.LastSegment(cb.ContextToCopy): value}
	}
	return event, true
}
