package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/felixgeelhaar/pacer/internal/domain"
)

// PatternStore persists learning patterns and strategies in SQLite.
type PatternStore struct {
	db *DB
}

// NewPatternStore creates a new SQLite-backed pattern store.
func NewPatternStore(db *DB) *PatternStore {
	return &PatternStore{db: db}
}

// SavePattern replaces a topic's pattern and its retained history.
func (s *PatternStore) SavePattern(ctx context.Context, p *domain.LearningPattern) error {
	metrics, err := json.Marshal(p.Metrics)
	if err != nil {
		return fmt.Errorf("marshal metrics: %w", err)
	}
	related, err := json.Marshal(nonNil(p.RelatedTopics))
	if err != nil {
		return fmt.Errorf("marshal related_topics: %w", err)
	}
	prereqs, err := json.Marshal(nonNil(p.Prerequisites))
	if err != nil {
		return fmt.Errorf("marshal prerequisites: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO patterns (topic_id, metrics, related_topics, prerequisites, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(topic_id) DO UPDATE SET
			metrics=excluded.metrics,
			related_topics=excluded.related_topics,
			prerequisites=excluded.prerequisites,
			updated_at=excluded.updated_at`,
		p.TopicID, string(metrics), string(related), string(prereqs), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("upsert pattern: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM attempts WHERE topic_id = ?`, p.TopicID); err != nil {
		return fmt.Errorf("clear attempts: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO attempts (topic_id, position, attempted_at, time_spent, success, difficulty)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare attempt insert: %w", err)
	}
	defer stmt.Close()

	for i, a := range p.History {
		if _, err := stmt.ExecContext(ctx, p.TopicID, i, a.Timestamp.UTC(), a.TimeSpent, a.Success, a.Difficulty); err != nil {
			return fmt.Errorf("insert attempt %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit pattern: %w", err)
	}
	return nil
}

// SaveStrategy upserts a topic's strategy.
func (s *PatternStore) SaveStrategy(ctx context.Context, st *domain.AdaptiveStrategy) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshal strategy: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO strategies (topic_id, strategy, next_review, computed_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(topic_id) DO UPDATE SET
			strategy=excluded.strategy,
			next_review=excluded.next_review,
			computed_at=excluded.computed_at`,
		st.TopicID, string(data), st.NextReviewDate.UTC(), st.ComputedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("upsert strategy: %w", err)
	}
	return nil
}

// LoadPatterns reads every pattern with its history, newest attempt first.
func (s *PatternStore) LoadPatterns(ctx context.Context) ([]*domain.LearningPattern, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT topic_id, metrics, related_topics, prerequisites
		FROM patterns ORDER BY topic_id`)
	if err != nil {
		return nil, fmt.Errorf("query patterns: %w", err)
	}
	defer rows.Close()

	var patterns []*domain.LearningPattern
	byTopic := make(map[string]*domain.LearningPattern)
	for rows.Next() {
		var topic, metrics, related, prereqs string
		if err := rows.Scan(&topic, &metrics, &related, &prereqs); err != nil {
			return nil, fmt.Errorf("scan pattern: %w", err)
		}
		p := domain.NewLearningPattern(topic)
		if err := json.Unmarshal([]byte(metrics), &p.Metrics); err != nil {
			return nil, fmt.Errorf("unmarshal metrics for %s: %w", topic, err)
		}
		if err := json.Unmarshal([]byte(related), &p.RelatedTopics); err != nil {
			return nil, fmt.Errorf("unmarshal related_topics for %s: %w", topic, err)
		}
		if err := json.Unmarshal([]byte(prereqs), &p.Prerequisites); err != nil {
			return nil, fmt.Errorf("unmarshal prerequisites for %s: %w", topic, err)
		}
		patterns = append(patterns, p)
		byTopic[topic] = p
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	attempts, err := s.db.QueryContext(ctx, `
		SELECT topic_id, attempted_at, time_spent, success, difficulty
		FROM attempts ORDER BY topic_id, position`)
	if err != nil {
		return nil, fmt.Errorf("query attempts: %w", err)
	}
	defer attempts.Close()

	for attempts.Next() {
		var topic string
		var a domain.AttemptRecord
		if err := attempts.Scan(&topic, &a.Timestamp, &a.TimeSpent, &a.Success, &a.Difficulty); err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		if p, ok := byTopic[topic]; ok {
			p.History = append(p.History, a)
		}
	}
	return patterns, attempts.Err()
}

// LoadStrategies reads every stored strategy.
func (s *PatternStore) LoadStrategies(ctx context.Context) ([]*domain.AdaptiveStrategy, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT strategy FROM strategies ORDER BY topic_id`)
	if err != nil {
		return nil, fmt.Errorf("query strategies: %w", err)
	}
	defer rows.Close()

	var strategies []*domain.AdaptiveStrategy
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan strategy: %w", err)
		}
		var st domain.AdaptiveStrategy
		if err := json.Unmarshal([]byte(data), &st); err != nil {
			return nil, fmt.Errorf("unmarshal strategy: %w", err)
		}
		strategies = append(strategies, &st)
	}
	return strategies, rows.Err()
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
