package local

import (
	"context"
	"fmt"

	"github.com/felixgeelhaar/pacer/internal/domain"
)

const (
	patternCollection  = "patterns"
	strategyCollection = "strategies"
)

// PatternStore persists learning patterns and strategies as JSON files
type PatternStore struct {
	store *Store
}

// NewPatternStore creates a file-backed pattern store
func NewPatternStore(store *Store) *PatternStore {
	return &PatternStore{store: store}
}

// SavePattern writes a topic's pattern
func (s *PatternStore) SavePattern(ctx context.Context, p *domain.LearningPattern) error {
	return s.store.Save(patternCollection, p.TopicID, p)
}

// SaveStrategy writes a topic's strategy
func (s *PatternStore) SaveStrategy(ctx context.Context, st *domain.AdaptiveStrategy) error {
	return s.store.Save(strategyCollection, st.TopicID, st)
}

// LoadPatterns reads every stored pattern
func (s *PatternStore) LoadPatterns(ctx context.Context) ([]*domain.LearningPattern, error) {
	ids, err := s.store.List(patternCollection)
	if err != nil {
		return nil, err
	}
	patterns := make([]*domain.LearningPattern, 0, len(ids))
	for _, id := range ids {
		var p domain.LearningPattern
		if err := s.store.Load(patternCollection, id, &p); err != nil {
			return nil, fmt.Errorf("load pattern %s: %w", id, err)
		}
		patterns = append(patterns, &p)
	}
	return patterns, nil
}

// LoadStrategies reads every stored strategy
func (s *PatternStore) LoadStrategies(ctx context.Context) ([]*domain.AdaptiveStrategy, error) {
	ids, err := s.store.List(strategyCollection)
	if err != nil {
		return nil, err
	}
	strategies := make([]*domain.AdaptiveStrategy, 0, len(ids))
	for _, id := range ids {
		var st domain.AdaptiveStrategy
		if err := s.store.Load(strategyCollection, id, &st); err != nil {
			return nil, fmt.Errorf("load strategy %s: %w", id, err)
		}
		strategies = append(strategies, &st)
	}
	return strategies, nil
}
