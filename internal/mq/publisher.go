package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/flowstate/internal/domain"
)

// MessageType — тип сообщения в очереди.
type MessageType string

// Типы сообщений.
const (
	MessageTypeChildInvoke   MessageType = "child.invoke"
	MessageTypeChildCallback MessageType = "child.callback"
)

// Message — сообщение для публикации.
type Message struct {
	// ID — уникальный идентификатор сообщения.
	ID string `json:"id"`

	// Type — тип сообщения.
	Type MessageType `json:"type"`

	// Payload — полезная нагрузка.
	Payload any `json:"payload"`

	// Timestamp — время создания.
	Timestamp time.Time `json:"timestamp"`
}

// NewMessage создаёт сообщение с новым ID.
func NewMessage(msgType MessageType, payload any) *Message {
	return &Message{
		ID:        uuid.New().String(),
		Type:      msgType,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}
}

// CallbackPayload — событие для родителя от завершившегося дочернего workflow.
type CallbackPayload struct {
	ParentDefinitionID string       `json:"parentDefinitionId"`
	ParentRuntimeID    string       `json:"parentRuntimeId"`
	ChildName          string       `json:"childName"`
	ChildRuntimeID     string       `json:"childRuntimeId"`
	Event              domain.Event `json:"event"`
}

// Publisher публикует сообщения в RabbitMQ.
type Publisher struct {
	conn   *Connection
	logger *slog.Logger
}

// NewPublisher создаёт новый Publisher.
func NewPublisher(conn *Connection, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		conn:   conn,
		logger: logger,
	}
}

// Publish публикует сообщение в указанный exchange с routing key.
func (p *Publisher) Publish(ctx context.Context, exchange Exchange, routingKey RoutingKey, msg *Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	return p.conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		err := ch.PublishWithContext(
			ctx,
			string(exchange),   // exchange
			string(routingKey), // routing key
			false,
			false,
			amqp.Publishing{
				ContentType:  "application/json",
				DeliveryMode: amqp.Persistent,
				MessageId:    msg.ID,
				Type:         string(msg.Type),
				Timestamp:    msg.Timestamp,
				Body:         body,
			},
		)
		if err != nil {
			return fmt.Errorf("publish to %s/%s: %w", exchange, routingKey, err)
		}

		p.logger.Debug("published message",
			"exchange", exchange,
			"routing_key", routingKey,
			"message_id", msg.ID,
			"type", msg.Type,
		)

		return nil
	})
}

// PublishChildInvoke публикует запрос на запуск дочернего workflow.
// Потребитель: flowstate-worker.
func (p *Publisher) PublishChildInvoke(ctx context.Context, metadata domain.ChildWorkflowMetadata) error {
	return p.Publish(ctx, ExchangeChildren, RoutingKeyInvoke, NewMessage(MessageTypeChildInvoke, metadata))
}

// PublishChildCallback публикует событие для родителя.
// Потребитель: среда исполнения родителя.
func (p *Publisher) PublishChildCallback(ctx context.Context, payload CallbackPayload) error {
	return p.Publish(ctx, ExchangeChildren, RoutingKeyCallback, NewMessage(MessageTypeChildCallback, payload))
}
