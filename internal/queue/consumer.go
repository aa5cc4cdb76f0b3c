package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/felixgeelhaar/pacer/internal/domain"
	"github.com/felixgeelhaar/pacer/internal/metrics"
)

// AttemptHandler applies an attempt event to the ledger
type AttemptHandler func(ctx context.Context, event *domain.AttemptRecordedEvent) error

// Consumer consumes attempt events from the queue
type Consumer struct {
	conn       *Connection
	handler    AttemptHandler
	metrics    *metrics.Metrics
	logger     *slog.Logger
	workers    int
	prefetch   int
	timeout    time.Duration
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
}

// ConsumerConfig holds consumer configuration
type ConsumerConfig struct {
	Workers  int           `yaml:"workers"`  // Number of concurrent workers
	Prefetch int           `yaml:"prefetch"` // Prefetch count per worker
	Timeout  time.Duration `yaml:"timeout"`  // Per-message handler timeout
}

// DefaultConsumerConfig returns sensible defaults
func DefaultConsumerConfig() ConsumerConfig {
	return ConsumerConfig{
		Workers:  3,
		Prefetch: 1,
		Timeout:  10 * time.Second,
	}
}

// withDefaults fills zero values from DefaultConsumerConfig
func (cfg ConsumerConfig) withDefaults() ConsumerConfig {
	def := DefaultConsumerConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.Prefetch <= 0 {
		cfg.Prefetch = def.Prefetch
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	return cfg
}

// NewConsumer creates a new queue consumer
func NewConsumer(conn *Connection, handler AttemptHandler, cfg ConsumerConfig, m *metrics.Metrics, logger *slog.Logger) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()

	return &Consumer{
		conn:     conn,
		handler:  handler,
		metrics:  m,
		logger:   logger,
		workers:  cfg.Workers,
		prefetch: cfg.Prefetch,
		timeout:  cfg.Timeout,
	}
}

// Start begins consuming messages
func (c *Consumer) Start(ctx context.Context) error {
	ctx, c.cancelFunc = context.WithCancel(ctx)

	ch := c.conn.Channel()

	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		return fmt.Errorf("failed to set QoS: %w", err)
	}

	msgs, err := ch.Consume(
		AttemptQueueName,
		"",    // consumer tag (auto-generated)
		false, // auto-ack (manual ack for reliability)
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,   // args
	)
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	c.logger.Info("starting attempt queue consumer", "workers", c.workers, "prefetch", c.prefetch)

	for i := 0; i < c.workers; i++ {
		c.wg.Add(1)
		go c.worker(ctx, i, msgs)
	}

	return nil
}

// worker processes messages from the queue
func (c *Consumer) worker(ctx context.Context, id int, msgs <-chan amqp.Delivery) {
	defer c.wg.Done()

	for {
		select {
		case <-ctx.Done():
			c.logger.Debug("worker stopping", "worker_id", id)
			return

		case msg, ok := <-msgs:
			if !ok {
				c.logger.Info("message channel closed", "worker_id", id)
				return
			}

			c.processMessage(ctx, id, msg)
		}
	}
}

// processMessage handles a single delivery. Malformed and invalid attempts
// are dropped; other failures are requeued once.
func (c *Consumer) processMessage(ctx context.Context, workerID int, msg amqp.Delivery) {
	var event domain.AttemptRecordedEvent
	if err := json.Unmarshal(msg.Body, &event); err != nil || strings.TrimSpace(event.TopicID) == "" {
		if err == nil {
			err = fmt.Errorf("%w: event has no topic", domain.ErrInvalidInput)
		}
		c.logger.Error("failed to decode attempt event",
			"worker_id", workerID,
			"error", err,
		)
		c.metrics.RecordConsume(domain.EventAttemptRecorded, err)
		_ = msg.Reject(false)
		return
	}

	msgCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	err := c.handler(msgCtx, &event)
	c.metrics.RecordConsume(domain.EventAttemptRecorded, err)

	switch {
	case err == nil:
		if err := msg.Ack(false); err != nil {
			c.logger.Error("failed to ack message", "worker_id", workerID, "error", err)
		}
	case errors.Is(err, domain.ErrInvalidInput):
		c.logger.Warn("dropping invalid attempt",
			"worker_id", workerID,
			"topic", event.TopicID,
			"error", err,
		)
		_ = msg.Reject(false)
	default:
		requeue := !msg.Redelivered
		c.logger.Error("attempt processing failed",
			"worker_id", workerID,
			"topic", event.TopicID,
			"requeue", requeue,
			"error", err,
		)
		_ = msg.Nack(false, requeue)
	}
}

// Stop gracefully stops the consumer
func (c *Consumer) Stop() {
	if c.cancelFunc != nil {
		c.cancelFunc()
	}
	c.wg.Wait()
	c.logger.Info("consumer stopped")
}
