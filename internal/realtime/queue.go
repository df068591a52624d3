package realtime

import (
	"fmt"

	"github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"
)

// Queue publishes events to RabbitMQ. A zero-value Queue (nil receiver) is
// disabled and publishes are no-ops.
type Queue struct {
	conn    *amqp091.Connection
	channel *amqp091.Channel
	name    string
}

// NewQueue connects to RabbitMQ. An empty URL disables the queue and
// returns nil without error.
func NewQueue(url, name string) (*Queue, error) {
	if url == "" {
		log.Info().Msg("RABBITMQ_URL is not set. Queue publishing disabled.")
		return nil, nil
	}
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect to RabbitMQ: %w", err)
	}
	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open RabbitMQ channel: %w", err)
	}
	log.Info().Str("queue", name).Msg("RabbitMQ connection established")
	return &Queue{conn: conn, channel: channel, name: name}, nil
}

// Publish sends one JSON payload to the queue.
func (q *Queue) Publish(data []byte) error {
	if q == nil {
		return nil
	}
	// Declare is idempotent; it keeps the queue durable across restarts.
	if _, err := q.channel.QueueDeclare(q.name, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue %s: %w", q.name, err)
	}
	err := q.channel.Publish("", q.name, false, false, amqp091.Publishing{
		ContentType: "application/json",
		Body:        data,
	})
	if err != nil {
		return fmt.Errorf("publish to %s: %w", q.name, err)
	}
	log.Debug().Str("queue", q.name).Msg("Published message to RabbitMQ")
	return nil
}

// Close tears down the channel and connection.
func (q *Queue) Close() {
	if q == nil {
		return
	}
	q.channel.Close()
	q.conn.Close()
}
