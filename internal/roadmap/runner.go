package roadmap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/felixgeelhaar/fortify/bulkhead"

	"github.com/felixgeelhaar/pacer/internal/domain"
	"github.com/felixgeelhaar/pacer/internal/metrics"
)

// RunnerConfig bounds sequencing work
type RunnerConfig struct {
	// MaxConcurrent is the number of runs allowed at once (default: 4)
	MaxConcurrent int
	// MaxQueue is the number of runs allowed to wait (default: 2x MaxConcurrent)
	MaxQueue int
	// QueueTimeout is how long a run may wait for a slot (default: 10s)
	QueueTimeout time.Duration
	// Timeout caps a single run; zero disables it
	Timeout time.Duration
}

// DefaultRunnerConfig returns sensible defaults
func DefaultRunnerConfig() RunnerConfig {
	return RunnerConfig{
		MaxConcurrent: 4,
		MaxQueue:      8,
		QueueTimeout:  10 * time.Second,
		Timeout:       30 * time.Second,
	}
}

// Runner executes sequencing runs behind a bulkhead so a burst of requests
// cannot starve the process of CPU.
type Runner struct {
	sequencer *Sequencer
	bulkhead  bulkhead.Bulkhead[*Result]
	timeout   time.Duration
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// NewRunner wraps a sequencer
func NewRunner(seq *Sequencer, cfg RunnerConfig, m *metrics.Metrics, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}
	maxQueue := cfg.MaxQueue
	if maxQueue <= 0 {
		maxQueue = maxConcurrent * 2
	}
	queueTimeout := cfg.QueueTimeout
	if queueTimeout <= 0 {
		queueTimeout = 10 * time.Second
	}

	return &Runner{
		sequencer: seq,
		bulkhead: bulkhead.New[*Result](bulkhead.Config{
			MaxConcurrent: maxConcurrent,
			MaxQueue:      maxQueue,
			QueueTimeout:  queueTimeout,
		}),
		timeout: cfg.Timeout,
		metrics: m,
		logger:  logger,
	}
}

// Sequencer returns the wrapped sequencer
func (r *Runner) Sequencer() *Sequencer {
	return r.sequencer
}

// Run sequences topics within the runner's concurrency and time limits.
// Input errors are returned before a slot is taken.
func (r *Runner) Run(ctx context.Context, topics []domain.RoadmapTopic, performances map[string]domain.TopicPerformance) (*Result, error) {
	topics, err := domain.NormalizeTopics(topics)
	if err != nil {
		r.metrics.RecordSequencing("rejected", 0, 0)
		return nil, err
	}

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	start := time.Now()
	var (
		mu      sync.Mutex
		partial *Result
	)
	result, err := r.bulkhead.Execute(ctx, func(ctx context.Context) (*Result, error) {
		res, err := r.sequencer.Sequence(ctx, topics, performances)
		mu.Lock()
		partial = res
		mu.Unlock()
		return res, err
	})
	elapsed := time.Since(start)

	if result == nil {
		mu.Lock()
		result = partial
		mu.Unlock()
	}

	switch {
	case err == nil:
		r.metrics.RecordSequencing("ok", elapsed, result.Generations)
		return result, nil
	case errors.Is(err, context.DeadlineExceeded) && result != nil:
		// Out of time: the best ordering found so far is still a valid answer.
		r.logger.Warn("sequencing timed out, returning best so far",
			"topics", len(topics),
			"generations", result.Generations,
			"elapsed", elapsed)
		r.metrics.RecordSequencing("timeout", elapsed, result.Generations)
		return result, nil
	case errors.Is(err, context.Canceled):
		r.metrics.RecordSequencing("canceled", elapsed, 0)
		return result, err
	default:
		r.metrics.RecordSequencing("error", elapsed, 0)
		return nil, fmt.Errorf("sequencing: %w", err)
	}
}
