package publish

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// AMQPChannel is the narrow slice of *amqp.Channel this package needs.
type AMQPChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// RabbitBus implements AMQPBus over an already-open AMQP channel.
type RabbitBus struct {
	ch       AMQPChannel
	exchange string
}

// NewRabbitBus builds a RabbitBus targeting exchange.
func NewRabbitBus(ch AMQPChannel, exchange string) *RabbitBus {
	return &RabbitBus{ch: ch, exchange: exchange}
}

// Publish sends one message to the exchange under routingKey. Neither
// mandatory nor immediate is set.
func (b *RabbitBus) Publish(ctx context.Context, routingKey string, body []byte) error {
	err := b.ch.PublishWithContext(ctx, b.exchange, routingKey, false, false, amqp.Publishing{
		ContentType: "application/octet-stream",
		Body:        body,
	})
	if err != nil {
		return fmt.Errorf("amqpbus: publish to %s/%s: %w", b.exchange, routingKey, err)
	}
	return nil
}
