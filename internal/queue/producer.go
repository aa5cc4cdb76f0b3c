package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/felixgeelhaar/fortify/circuitbreaker"
	"github.com/felixgeelhaar/fortify/retry"

	"github.com/felixgeelhaar/pacer/internal/domain"
	"github.com/felixgeelhaar/pacer/internal/metrics"
)

var (
	errEncode = errors.New("encode message")

	// ErrUnroutable is returned for events no queue is declared for
	ErrUnroutable = errors.New("no queue for event type")
)

// jsonPublisher is the part of Connection the producer needs
type jsonPublisher interface {
	PublishJSON(ctx context.Context, queue, msgType, msgID string, data any) error
}

// ProducerConfig controls publish retries and the broker circuit breaker
type ProducerConfig struct {
	MaxAttempts      int           `yaml:"max_attempts"`
	InitialDelay     time.Duration `yaml:"initial_delay"`
	MaxDelay         time.Duration `yaml:"max_delay"`
	FailureThreshold int           `yaml:"failure_threshold"`
	OpenTimeout      time.Duration `yaml:"open_timeout"`
}

// DefaultProducerConfig returns sensible defaults
func DefaultProducerConfig() ProducerConfig {
	return ProducerConfig{
		MaxAttempts:      3,
		InitialDelay:     200 * time.Millisecond,
		MaxDelay:         2 * time.Second,
		FailureThreshold: 5,
		OpenTimeout:      30 * time.Second,
	}
}

// Producer publishes domain events to their queues
type Producer struct {
	conn    jsonPublisher
	retrier retry.Retry[struct{}]
	breaker circuitbreaker.CircuitBreaker[struct{}]
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewProducer creates a new queue producer
func NewProducer(conn *Connection, cfg ProducerConfig, m *metrics.Metrics, logger *slog.Logger) *Producer {
	return newProducer(conn, cfg, m, logger)
}

func newProducer(conn jsonPublisher, cfg ProducerConfig, m *metrics.Metrics, logger *slog.Logger) *Producer {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultProducerConfig()
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = def.InitialDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = def.MaxDelay
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = def.OpenTimeout
	}

	p := &Producer{
		conn:    conn,
		metrics: m,
		logger:  logger,
	}

	p.retrier = retry.New[struct{}](retry.Config{
		MaxAttempts:   cfg.MaxAttempts,
		InitialDelay:  cfg.InitialDelay,
		MaxDelay:      cfg.MaxDelay,
		Multiplier:    2.0,
		BackoffPolicy: retry.BackoffExponential,
		Jitter:        true,
		IsRetryable: func(err error) bool {
			return !errors.Is(err, errEncode) &&
				!errors.Is(err, context.Canceled) &&
				!errors.Is(err, context.DeadlineExceeded)
		},
	})

	threshold := cfg.FailureThreshold
	p.breaker = circuitbreaker.New[struct{}](circuitbreaker.Config{
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts circuitbreaker.Counts) bool {
			return int(counts.ConsecutiveFailures) >= threshold
		},
		OnStateChange: func(from, to circuitbreaker.State) {
			logger.Warn("queue circuit breaker state change",
				"from", from.String(),
				"to", to.String())
		},
	})

	return p
}

// Publish routes an event to its queue
func (p *Producer) Publish(ctx context.Context, event domain.Event) error {
	queue, ok := QueueForEvent(event.EventType())
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnroutable, event.EventType())
	}

	publish := func(ctx context.Context) (struct{}, error) {
		return struct{}{}, p.conn.PublishJSON(ctx, queue, event.EventType(), event.EventID().String(), event)
	}

	_, err := p.breaker.Execute(ctx, func(ctx context.Context) (struct{}, error) {
		return p.retrier.Do(ctx, publish)
	})
	p.metrics.RecordPublish(event.EventType(), err)
	if err != nil {
		return fmt.Errorf("failed to publish %s: %w", event.EventType(), err)
	}

	p.logger.Debug("published event",
		"event_id", event.EventID(),
		"type", event.EventType(),
		"queue", queue,
	)
	return nil
}
