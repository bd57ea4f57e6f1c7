package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	AnalyticsQueue  = "analytics_queue"
	RetryDelay      = 5 * time.Second
	MaxConnectRetry = 5
)

func connectToRabbitMQ(url string) (*amqp.Connection, error) {
	var conn *amqp.Connection
	var err error
	for i := 0; i < MaxConnectRetry; i++ {
		conn, err = amqp.Dial(url)
		if err == nil {
			slog.Info("connected to rabbitmq")
			return conn, nil
		}
		slog.Warn("failed to connect to rabbitmq", "attempt", i+1, "max_attempts", MaxConnectRetry, "error", err)
		time.Sleep(RetryDelay)
	}
	return nil, fmt.Errorf("failed to connect to rabbitmq after %d attempts: %w", MaxConnectRetry, err)
}

// RabbitMQCollector publishes interaction records to a durable queue so a
// downstream pipeline can consume them instead of tailing analytics.json.
type RabbitMQCollector struct {
	connLock   sync.RWMutex
	conn       *amqp.Connection
	channel    *amqp.Channel
	url        string
	destructor sync.Once
}

var _ Collector = (*RabbitMQCollector)(nil)

func NewRabbitMQCollector(rabbitMQURL string) (*RabbitMQCollector, error) {
	c := &RabbitMQCollector{url: rabbitMQURL}
	if err := c.connect(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *RabbitMQCollector) connect() error {
	conn, err := connectToRabbitMQ(c.url)
	if err != nil {
		return err
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		slog.Error("failed to open rabbitmq channel", "error", err)
		return fmt.Errorf("failed to open rabbitmq channel: %w", err)
	}

	if _, err := channel.QueueDeclare(AnalyticsQueue, true, false, false, false, nil); err != nil {
		conn.Close()
		return fmt.Errorf("failed to declare rabbitmq queue %s: %w", AnalyticsQueue, err)
	}

	c.connLock.Lock()
	c.conn = conn
	c.channel = channel
	c.connLock.Unlock()

	slog.Info("rabbitmq channel opened and analytics queue declared")

	go c.handleReconnect()

	return nil
}

func (c *RabbitMQCollector) handleReconnect() {
	notifyClose := make(chan *amqp.Error)
	c.channel.NotifyClose(notifyClose)

	err, ok := <-notifyClose
	if !ok {
		return // closed deliberately
	}
	slog.Warn("rabbitmq connection closed, attempting to reconnect", "error", err)

	for {
		if c.connect() == nil {
			slog.Info("successfully reconnected to rabbitmq")
			return
		}
		time.Sleep(RetryDelay * 2)
	}
}

func (c *RabbitMQCollector) LogInteraction(ctx context.Context, rec Interaction) error {
	c.connLock.RLock()
	channel := c.channel
	c.connLock.RUnlock()

	if channel == nil {
		return fmt.Errorf("rabbitmq channel is not available")
	}

	body, err := json.Marshal(finalize(rec))
	if err != nil {
		return fmt.Errorf("failed to marshal interaction record: %w", err)
	}

	err = channel.PublishWithContext(ctx,
		"",             // exchange (default)
		AnalyticsQueue, // routing key
		false,          // mandatory
		false,          // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
		})
	if err != nil {
		return fmt.Errorf("failed to publish interaction record: %w", err)
	}
	return nil
}

func (c *RabbitMQCollector) Close() {
	c.destructor.Do(func() {
		c.connLock.Lock()
		defer c.connLock.Unlock()
		if c.channel != nil {
			c.channel.Close()
		}
		if c.conn != nil {
			c.conn.Close()
		}
		slog.Info("rabbitmq analytics collector closed")
	})
}
