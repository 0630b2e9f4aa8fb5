package notification

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Publisher is the subset of *amqp.Channel used to publish events.
type Publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// AMQPNotifier publishes notifications as persistent JSON messages routed by kind.
type AMQPNotifier struct {
	channel  Publisher
	exchange string
}

// NewAMQPNotifier builds a notifier publishing to exchange.
func NewAMQPNotifier(channel Publisher, exchange string) *AMQPNotifier {
	return &AMQPNotifier{channel: channel, exchange: exchange}
}

// Send publishes message with its kind as routing key.
func (n *AMQPNotifier) Send(ctx context.Context, message Message) error {
	body, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	err = n.channel.PublishWithContext(ctx, n.exchange, message.Kind, false, false, amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp.Persistent,
	})
	if err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	return nil
}

// Multi fans a message out to several notifiers and returns the first error.
type Multi []Notifier

// Send delivers message to every notifier.
func (m Multi) Send(ctx context.Context, message Message) error {
	var first error
	for _, n := range m {
		if err := n.Send(ctx, message); err != nil && first == nil {
			first = err
		}
	}
	return first
}
