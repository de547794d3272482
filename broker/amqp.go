package broker

import (
	"context"
	"encoding/json"

	"github.com/resumly/billing/event"

	extErrors "github.com/pkg/errors"
	"github.com/streadway/amqp"
)

var _ event.Producer = &AMQPBroker{}
var _ event.Consumer = &AMQPBroker{}

const (
	lifecycleExchange   string = "billing_lifecycle"
	lifecycleRoutingKey        = "lifecycle"
	lifecycleQueue             = "billing_lifecycle_task"
)

// AMQPBroker describes a message broker via RabbitMQ
type AMQPBroker struct {
	connection *amqp.Connection
	channel    *amqp.Channel
}

// NewAMQPBroker returns a Message Broker over RabbitMQ
func NewAMQPBroker(amqpURI string) (*AMQPBroker, error) {
	amqpConn, err := amqp.Dial(amqpURI)
	if err != nil {
		return nil, extErrors.Wrap(err, "Cannot connect to Message Broker")
	}
	amqpChan, err := amqpConn.Channel()
	if err != nil {
		return nil, extErrors.Wrap(err, "Cannot create broker channel")
	}
	broker := &AMQPBroker{
		connection: amqpConn,
		channel:    amqpChan,
	}
	if err := broker.setupLifecycleExchange(); err != nil {
		return nil, extErrors.Wrap(err, "Cannot declare exchange for lifecycle events")
	}

	return broker, nil
}

func (a *AMQPBroker) setupLifecycleExchange() error {
	return a.channel.ExchangeDeclare(
		lifecycleExchange, // name
		"direct",          // type
		true,              // durable
		false,             // auto-deleted
		false,             // internal
		false,             // no-wait
		nil,               // arguments
	)
}

// Close will close the channel and connection to release resources
func (a *AMQPBroker) Close() {
	a.channel.Close()
	a.connection.Close()
}

// PublishLifecycle will publish a subscription lifecycle event for downstream consumers
func (a *AMQPBroker) PublishLifecycle(e *event.Lifecycle) error {
	body, err := json.Marshal(e)
	if err != nil {
		return extErrors.Wrap(err, "Cannot encode message into bytes")
	}
	if err := a.channel.Publish(
		lifecycleExchange,
		lifecycleRoutingKey,
		false,
		false,
		amqp.Publishing{
			ContentType: "application/json",
			Body:        body,
		},
	); err != nil {
		return extErrors.Wrap(err, "Cannot publish lifecycle event")
	}
	return nil
}

func (a *AMQPBroker) setupQueue(qName string) error {
	_, err := a.channel.QueueDeclare(
		qName,
		true,
		false,
		false,
		false,
		nil,
	)
	return err
}

// ReceiveLifecycle will bind the task queue and return a channel of decoded lifecycle events
func (a *AMQPBroker) ReceiveLifecycle(ctx context.Context) (<-chan *event.Lifecycle, error) {
	if err := a.setupQueue(lifecycleQueue); err != nil {
		return nil, extErrors.Wrap(err, "Cannot setup queue")
	}
	if err := a.channel.QueueBind(
		lifecycleQueue,
		lifecycleRoutingKey,
		lifecycleExchange,
		false,
		nil,
	); err != nil {
		return nil, extErrors.Wrap(err, "Cannot bind queue to exchange")
	}
	msgChan, err := a.channel.Consume(
		lifecycleQueue,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return nil, extErrors.Wrap(err, "Cannot setup consumer")
	}
	rChan := make(chan *event.Lifecycle)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case d := <-msgChan:
				var e event.Lifecycle
				if err := json.Unmarshal(d.Body, &e); err != nil {
					d.Nack(false, false)
					continue
				}
				rChan <- &e
				d.Ack(false)
			}
		}
	}()
	return rChan, nil
}
