package mq

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Exchange — тип для имени обменника.
type Exchange string

// Queue — тип для имени очереди.
type Queue string

// RoutingKey — тип для ключа маршрутизации.
type RoutingKey string

// Exchanges — имена обменников.
const (
	ExchangeChildren Exchange = "flowstate.children"
	ExchangeDLQ      Exchange = "flowstate.dlq"
)

// Queues — имена очередей.
const (
	QueueChildInvoke   Queue = "child.invoke"
	QueueChildCallback Queue = "child.callback"
	QueueDLQChildren   Queue = "dlq.children"
)

// Routing keys.
const (
	RoutingKeyInvoke      RoutingKey = "invoke"
	RoutingKeyCallback    RoutingKey = "callback"
	RoutingKeyDLQChildren RoutingKey = "children"
)

type exchangeDecl struct {
	name Exchange
	kind string
}

type queueDecl struct {
	name Queue
	args amqp.Table
}

type bindingDecl struct {
	queue      Queue
	routingKey RoutingKey
	exchange   Exchange
}

// topology — полный список объявлений.
func topology() ([]exchangeDecl, []queueDecl, []bindingDecl) {
	exchanges := []exchangeDecl{
		{ExchangeChildren, "direct"},
		{ExchangeDLQ, "direct"},
	}

	// Сообщения child.invoke не повторяются: ошибка запуска уходит в DLQ
	dlqArgs := amqp.Table{
		"x-dead-letter-exchange":    string(ExchangeDLQ),
		"x-dead-letter-routing-key": string(RoutingKeyDLQChildren),
	}

	queues := []queueDecl{
		{QueueChildInvoke, dlqArgs},
		{QueueChildCallback, nil},
		{QueueDLQChildren, nil},
	}

	bindings := []bindingDecl{
		{QueueChildInvoke, RoutingKeyInvoke, ExchangeChildren},
		{QueueChildCallback, RoutingKeyCallback, ExchangeChildren},
		{QueueDLQChildren, RoutingKeyDLQChildren, ExchangeDLQ},
	}

	return exchanges, queues, bindings
}

// SetupTopology объявляет exchanges, queues и bindings. Идемпотентна.
func SetupTopology(ctx context.Context, conn *Connection) error {
	exchanges, queues, bindings := topology()

	return conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		for _, ex := range exchanges {
			err := ch.ExchangeDeclare(
				string(ex.name), // name
				ex.kind,         // type
				true,            // durable
				false,           // auto-deleted
				false,           // internal
				false,           // no-wait
				nil,             // arguments
			)
			if err != nil {
				return fmt.Errorf("declare exchange %s: %w", ex.name, err)
			}
		}

		for _, q := range queues {
			_, err := ch.QueueDeclare(
				string(q.name), // name
				true,           // durable
				false,          // delete when unused
				false,          // exclusive
				false,          // no-wait
				q.args,         // arguments
			)
			if err != nil {
				return fmt.Errorf("declare queue %s: %w", q.name, err)
			}
		}

		for _, b := range bindings {
			err := ch.QueueBind(
				string(b.queue),      // queue name
				string(b.routingKey), // routing key
				string(b.exchange),   // exchange
				false,                // no-wait
				nil,                  // arguments
			)
			if err != nil {
				return fmt.Errorf("bind queue %s to %s: %w", b.queue, b.exchange, err)
			}
		}

		return nil
	})
}

// TopologyInfo возвращает описание топологии для логирования.
func TopologyInfo() string {
	return `
  flowstate RabbitMQ topology:

    flowstate.children (direct)
    ├── child.invoke [routing: invoke]
    │       Consumer: flowstate-worker
    │       DLQ: dlq.children
    └── child.callback [routing: callback]
            Consumer: parent runtime

    flowstate.dlq (direct)
    └── dlq.children [routing: children]
            Manual processing
  `
}
