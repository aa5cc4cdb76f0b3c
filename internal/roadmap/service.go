package roadmap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/pacer/internal/domain"
)

// PerformanceSource supplies the sequencer's fitness inputs
type PerformanceSource interface {
	Performances(ctx context.Context, topicIDs []string) map[string]domain.TopicPerformance
}

// Publisher delivers roadmap events to other processes
type Publisher interface {
	Publish(ctx context.Context, event domain.Event) error
}

// Service sequences roadmaps against live performance data and keeps the
// last recommended order.
type Service struct {
	runner    *Runner
	repo      Repository
	perf      PerformanceSource
	publisher Publisher
	logger    *slog.Logger
	now       func() time.Time
}

// ServiceOption configures a Service
type ServiceOption func(*Service)

// WithPublisher announces every stored ordering
func WithPublisher(p Publisher) ServiceOption {
	return func(s *Service) { s.publisher = p }
}

// WithServiceLogger sets the logger
func WithServiceLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewService creates a roadmap service. repo may be nil when roadmaps are
// only sequenced ad hoc.
func NewService(runner *Runner, repo Repository, perf PerformanceSource, opts ...ServiceOption) *Service {
	s := &Service{runner: runner, repo: repo, perf: perf, logger: slog.Default(), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sequence orders topics without persisting anything
func (s *Service) Sequence(ctx context.Context, topics []domain.RoadmapTopic) (*Result, error) {
	topics, err := domain.NormalizeTopics(topics)
	if err != nil {
		return nil, err
	}
	return s.runner.Run(ctx, topics, s.performances(ctx, topics))
}

// Create sequences a new roadmap and stores it
func (s *Service) Create(ctx context.Context, title string, topics []domain.RoadmapTopic) (*domain.Roadmap, *Result, error) {
	if s.repo == nil {
		return nil, nil, fmt.Errorf("roadmap storage is not configured")
	}
	result, err := s.Sequence(ctx, topics)
	if err != nil {
		return nil, nil, err
	}

	now := s.now()
	rm := &domain.Roadmap{
		ID:          uuid.New(),
		Title:       title,
		Topics:      result.Topics,
		Fitness:     result.Fitness,
		Generations: result.Generations,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.Save(ctx, rm); err != nil {
		return nil, nil, fmt.Errorf("save roadmap: %w", err)
	}
	s.announce(ctx, rm)
	return rm, result, nil
}

// Get returns a stored roadmap
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*domain.Roadmap, error) {
	if s.repo == nil {
		return nil, domain.ErrRoadmapNotFound
	}
	return s.repo.Get(ctx, id)
}

// List returns stored roadmaps
func (s *Service) List(ctx context.Context) ([]*domain.Roadmap, error) {
	if s.repo == nil {
		return []*domain.Roadmap{}, nil
	}
	return s.repo.List(ctx)
}

// Resequence reorders a stored roadmap against current performance data,
// for when the ledger has moved since it was last sequenced.
func (s *Service) Resequence(ctx context.Context, id uuid.UUID) (*domain.Roadmap, *Result, error) {
	rm, err := s.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	result, err := s.Sequence(ctx, rm.Topics)
	if err != nil {
		return nil, nil, err
	}

	rm.Topics = result.Topics
	rm.Fitness = result.Fitness
	rm.Generations = result.Generations
	rm.UpdatedAt = s.now()
	if err := s.repo.Save(ctx, rm); err != nil {
		return nil, nil, fmt.Errorf("save roadmap: %w", err)
	}
	s.announce(ctx, rm)
	return rm, result, nil
}

func (s *Service) announce(ctx context.Context, rm *domain.Roadmap) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, domain.NewRoadmapSequencedEvent(rm)); err != nil {
		s.logger.Warn("failed to publish roadmap order",
			"roadmap_id", rm.ID,
			"error", err)
	}
}

func (s *Service) performances(ctx context.Context, topics []domain.RoadmapTopic) map[string]domain.TopicPerformance {
	if s.perf == nil {
		return map[string]domain.TopicPerformance{}
	}
	ids := make([]string, len(topics))
	for i, t := range topics {
		ids[i] = t.ID
	}
	return s.perf.Performances(ctx, ids)
}
