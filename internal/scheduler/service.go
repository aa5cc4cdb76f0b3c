// Package scheduler wires the performance ledger to the strategy engine:
// recording an attempt updates the topic's metrics and then recomputes its
// strategy before returning.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/felixgeelhaar/pacer/internal/domain"
	"github.com/felixgeelhaar/pacer/internal/ledger"
	"github.com/felixgeelhaar/pacer/internal/metrics"
	"github.com/felixgeelhaar/pacer/internal/strategy"
	"github.com/felixgeelhaar/pacer/internal/topiclock"
)

// Store persists patterns and strategies across restarts
type Store interface {
	SavePattern(ctx context.Context, p *domain.LearningPattern) error
	SaveStrategy(ctx context.Context, s *domain.AdaptiveStrategy) error
	LoadPatterns(ctx context.Context) ([]*domain.LearningPattern, error)
	LoadStrategies(ctx context.Context) ([]*domain.AdaptiveStrategy, error)
}

// Publisher delivers domain events to other processes
type Publisher interface {
	Publish(ctx context.Context, event domain.Event) error
}

// Evolver derives strategies and insights from a pattern
type Evolver interface {
	Evolve(p *domain.LearningPattern, lookup strategy.PatternLookup) (*domain.AdaptiveStrategy, error)
	Insights(p *domain.LearningPattern, s *domain.AdaptiveStrategy) []domain.LearningInsight
}

// Recommendations is a topic's current strategy and the insights derived
// from it. Strategy is nil until the topic has enough history.
type Recommendations struct {
	Strategy *domain.AdaptiveStrategy `json:"strategy"`
	Insights []domain.LearningInsight `json:"insights"`
}

// Service is the scheduler façade
type Service struct {
	ledger    *ledger.Ledger
	engine    Evolver
	locker    topiclock.Locker
	store     Store
	publisher Publisher
	metrics   *metrics.Metrics
	logger    *slog.Logger

	mu         sync.RWMutex
	strategies map[string]*domain.AdaptiveStrategy
}

// Option configures a Service
type Option func(*Service)

// WithStore enables persistence
func WithStore(store Store) Option {
	return func(s *Service) { s.store = store }
}

// WithPublisher enables event publishing
func WithPublisher(p Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

// WithLocker replaces the in-process topic lock
func WithLocker(l topiclock.Locker) Option {
	return func(s *Service) {
		if l != nil {
			s.locker = l
		}
	}
}

// WithMetrics enables Prometheus instrumentation
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewService creates a scheduler service
func NewService(l *ledger.Ledger, e Evolver, opts ...Option) *Service {
	s := &Service{
		ledger:     l,
		engine:     e,
		locker:     topiclock.NewKeyedMutex(),
		logger:     slog.Default(),
		strategies: make(map[string]*domain.AdaptiveStrategy),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RecordAttempt records a practice attempt and recomputes the topic's
// strategy. Invalid input and persistence failures are returned; strategy
// failures are logged and the previous strategy is kept.
func (s *Service) RecordAttempt(ctx context.Context, a ledger.Attempt) (*Recommendations, error) {
	if err := a.Validate(); err != nil {
		s.metrics.RecordRejectedAttempt()
		return nil, err
	}

	topic := strings.TrimSpace(a.TopicID)
	unlock, err := s.locker.Lock(ctx, topic)
	if err != nil {
		return nil, fmt.Errorf("lock topic %s: %w", topic, err)
	}
	defer unlock()

	pattern, err := s.ledger.RecordAttempt(ctx, a)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidInput) {
			s.metrics.RecordRejectedAttempt()
		}
		return nil, err
	}
	s.metrics.RecordAttempt(a.Success)
	s.metrics.SetTopicsTracked(s.ledger.Len())

	current, updated := s.evolve(pattern)

	if s.store != nil {
		if err := s.store.SavePattern(ctx, pattern); err != nil {
			return nil, fmt.Errorf("save pattern: %w", err)
		}
		if updated {
			if err := s.store.SaveStrategy(ctx, current); err != nil {
				return nil, fmt.Errorf("save strategy: %w", err)
			}
		}
	}

	if updated && s.publisher != nil {
		event := domain.NewStrategyUpdatedEvent(*current, pattern.Metrics)
		if err := s.publisher.Publish(ctx, event); err != nil {
			s.logger.Warn("failed to publish strategy update",
				"topic", pattern.TopicID,
				"error", err)
		}
	}

	return &Recommendations{
		Strategy: current,
		Insights: s.engine.Insights(pattern, current),
	}, nil
}

// evolve recomputes the topic's strategy. It returns the strategy now in
// effect and whether it changed.
func (s *Service) evolve(pattern *domain.LearningPattern) (*domain.AdaptiveStrategy, bool) {
	next, err := s.engine.Evolve(pattern, s.ledger.Pattern)

	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case err == nil:
		s.strategies[pattern.TopicID] = next
		s.metrics.RecordEvolution("updated")
		return cloneStrategy(next), true
	case errors.Is(err, domain.ErrInsufficientData):
		s.metrics.RecordEvolution("insufficient_data")
	default:
		s.metrics.RecordEvolution("failed")
		s.logger.Error("strategy evolution failed, keeping previous strategy",
			"topic", pattern.TopicID,
			"attempts", len(pattern.History),
			"error", err)
	}
	return cloneStrategy(s.strategies[pattern.TopicID]), false
}

func cloneStrategy(st *domain.AdaptiveStrategy) *domain.AdaptiveStrategy {
	if st == nil {
		return nil
	}
	c := *st
	return &c
}

// GetRecommendations returns the topic's strategy and insights, or an empty
// result if the topic has no strategy yet
func (s *Service) GetRecommendations(ctx context.Context, topicID string) Recommendations {
	empty := Recommendations{Insights: []domain.LearningInsight{}}

	pattern, ok := s.ledger.Pattern(topicID)
	if !ok {
		return empty
	}
	current := s.Strategy(topicID)
	if current == nil {
		return empty
	}
	return Recommendations{
		Strategy: current,
		Insights: s.engine.Insights(pattern, current),
	}
}

// Strategy returns a copy of the topic's current strategy, or nil
func (s *Service) Strategy(topicID string) *domain.AdaptiveStrategy {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return cloneStrategy(s.strategies[topicID])
}

// Pattern returns a copy of the topic's learning pattern
func (s *Service) Pattern(ctx context.Context, topicID string) (*domain.LearningPattern, error) {
	p, ok := s.ledger.Pattern(topicID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrTopicNotFound, topicID)
	}
	return p, nil
}

// Topics lists tracked topics
func (s *Service) Topics(ctx context.Context) []string {
	return s.ledger.Topics()
}

// MissingPrerequisites lists the prerequisites the topic still lacks
func (s *Service) MissingPrerequisites(ctx context.Context, topicID string) ([]string, error) {
	p, ok := s.ledger.Pattern(topicID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrTopicNotFound, topicID)
	}
	return strategy.MissingPrerequisites(p, s.ledger.Pattern), nil
}

// Performances builds sequencer inputs for the given topics. Topics that
// have never been practised are left out.
func (s *Service) Performances(ctx context.Context, topicIDs []string) map[string]domain.TopicPerformance {
	out := make(map[string]domain.TopicPerformance, len(topicIDs))
	for _, id := range topicIDs {
		m, ok := s.ledger.Metrics(id)
		if !ok {
			continue
		}
		out[id] = domain.TopicPerformance{
			TopicID:        id,
			SuccessRate:    m.SuccessRate,
			CompletionTime: time.Duration(m.TimeSpent * float64(time.Second)),
			Attempts:       m.Attempts,
		}
	}
	return out
}

// Load restores patterns and strategies from the store
func (s *Service) Load(ctx context.Context) error {
	if s.store == nil {
		return nil
	}

	patterns, err := s.store.LoadPatterns(ctx)
	if err != nil {
		return fmt.Errorf("load patterns: %w", err)
	}
	if err := s.ledger.Restore(patterns); err != nil {
		return fmt.Errorf("restore ledger: %w", err)
	}

	strategies, err := s.store.LoadStrategies(ctx)
	if err != nil {
		return fmt.Errorf("load strategies: %w", err)
	}

	s.mu.Lock()
	s.strategies = make(map[string]*domain.AdaptiveStrategy, len(strategies))
	for _, st := range strategies {
		if _, ok := s.ledger.Metrics(st.TopicID); ok {
			s.strategies[st.TopicID] = st
		}
	}
	restored := len(s.strategies)
	s.mu.Unlock()

	s.metrics.SetTopicsTracked(s.ledger.Len())
	s.logger.Info("scheduler state restored",
		"topics", s.ledger.Len(),
		"strategies", restored)
	return nil
}
