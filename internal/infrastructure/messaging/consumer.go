package messaging

import (
	"context"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Consumer holds the connection behind a delivery stream.
type Consumer struct {
	conn *amqp.Connection
	ch   *amqp.Channel
}

// Consume connects with backoff, declares queue and starts a manual-ack
// consumer. prefetch caps unacknowledged deliveries per worker.
func Consume(ctx context.Context, url, queue string, prefetch int) (*Consumer, <-chan amqp.Delivery, error) {
	conn, err := dialWithRetry(ctx, url)
	if err != nil {
		return nil, nil, err
	}
	c := &Consumer{conn: conn}
	if c.ch, err = conn.Channel(); err != nil {
		c.Close()
		return nil, nil, err
	}
	if err := c.ch.Qos(prefetch, 0, false); err != nil {
		c.Close()
		return nil, nil, err
	}
	if err := DeclareQueue(c.ch, queue); err != nil {
		c.Close()
		return nil, nil, err
	}
	msgs, err := c.ch.Consume(
		queue,
		"",    // consumer tag
		false, // autoAck
		false, // exclusive
		false, // noLocal
		false, // noWait
		nil,
	)
	if err != nil {
		c.Close()
		return nil, nil, err
	}
	return c, msgs, nil
}

// Close stops the delivery stream.
func (c *Consumer) Close() {
	if c == nil {
		return
	}
	if c.ch != nil {
		_ = c.ch.Close()
	}
	if c.conn != nil {
		_ = c.conn.Close()
	}
}
