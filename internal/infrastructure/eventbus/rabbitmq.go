// Package eventbus publishes job-lifecycle events to RabbitMQ.
package eventbus

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/vidsum-dev/vidsum/internal/jobqueue"
)

// ClientConfig holds configuration for the RabbitMQ publisher.
type ClientConfig struct {
	URL        string // AMQP connection URL
	Exchange   string // Exchange name (empty = default exchange)
	RoutingKey string // Routing key for job events
}

// DefaultClientConfig returns a ClientConfig with sensible defaults.
func DefaultClientConfig(url string) ClientConfig {
	return ClientConfig{
		URL:        url,
		Exchange:   "",
		RoutingKey: "job_events",
	}
}

// amqpConnection abstracts amqp.Connection for testability.
type amqpConnection interface {
	Channel() (*amqp.Channel, error)
	Close() error
}

// amqpChannel abstracts amqp.Channel for testability.
type amqpChannel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Client publishes jobqueue.JobEvent values to RabbitMQ. It implements
// jobqueue.EventPublisher but is write-only: unlike the teacher's
// queue.Client, there is no Consume side here, since the worker pool that
// processes jobs is always in-process (internal/jobqueue.Queue), never
// broker-backed.
type Client struct {
	conn    amqpConnection
	channel amqpChannel
	config  ClientConfig
}

var _ jobqueue.EventPublisher = (*Client)(nil)

// NewClient dials RabbitMQ and declares the event queue, failing fast if
// either step doesn't succeed.
func NewClient(ctx context.Context, cfg ClientConfig) (*Client, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	return newClientWithConnection(conn, cfg)
}

func newClientWithConnection(conn amqpConnection, cfg ClientConfig) (*Client, error) {
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if cfg.Exchange == "" {
		if _, err := ch.QueueDeclare(cfg.RoutingKey, true, false, false, false, nil); err != nil {
			_ = ch.Close()
			_ = conn.Close()
			return nil, fmt.Errorf("failed to declare queue: %w", err)
		}
	}

	return &Client{conn: conn, channel: ch, config: cfg}, nil
}

// Publish marshals and sends a job event. Delivery is persistent so events
// survive a broker restart, matching the teacher's PublishTranscodeTask.
func (c *Client) Publish(ctx context.Context, event jobqueue.JobEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal job event: %w", err)
	}

	err = c.channel.PublishWithContext(
		ctx,
		c.config.Exchange,
		c.config.RoutingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			DeliveryMode: amqp.Persistent,
			ContentType:  "application/json",
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish job event: %w", err)
	}
	return nil
}

// Close releases the channel and connection.
func (c *Client) Close() error {
	if err := c.channel.Close(); err != nil {
		_ = c.conn.Close()
		return fmt.Errorf("failed to close channel: %w", err)
	}
	if err := c.conn.Close(); err != nil {
		return fmt.Errorf("failed to close connection: %w", err)
	}
	return nil
}
