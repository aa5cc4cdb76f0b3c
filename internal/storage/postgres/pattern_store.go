// Package postgres stores learning patterns and strategies in PostgreSQL
// through database/sql and lib/pq.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/sqlc-dev/pqtype"

	"github.com/felixgeelhaar/pacer/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS learning_patterns (
	topic_id       TEXT PRIMARY KEY,
	metrics        JSONB NOT NULL,
	history        JSONB,
	related_topics TEXT[] NOT NULL DEFAULT '{}',
	prerequisites  TEXT[] NOT NULL DEFAULT '{}',
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS adaptive_strategies (
	topic_id    TEXT PRIMARY KEY,
	strategy    JSONB NOT NULL,
	next_review TIMESTAMPTZ NOT NULL,
	computed_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_adaptive_strategies_next_review ON adaptive_strategies (next_review);
`

// PatternStore implements pattern persistence backed by PostgreSQL
type PatternStore struct {
	db *sql.DB
}

// Open connects to PostgreSQL and ensures the schema exists
func Open(ctx context.Context, dsn string) (*PatternStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	s := NewPatternStore(db)
	if err := s.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

// NewPatternStore wraps an existing connection
func NewPatternStore(db *sql.DB) *PatternStore {
	return &PatternStore{db: db}
}

// EnsureSchema creates the pattern tables if needed
func (s *PatternStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Close closes the underlying connection
func (s *PatternStore) Close() error {
	return s.db.Close()
}

// SavePattern upserts a topic's pattern
func (s *PatternStore) SavePattern(ctx context.Context, p *domain.LearningPattern) error {
	metrics, err := json.Marshal(p.Metrics)
	if err != nil {
		return fmt.Errorf("marshal metrics: %w", err)
	}

	var history pqtype.NullRawMessage
	if len(p.History) > 0 {
		data, err := json.Marshal(p.History)
		if err != nil {
			return fmt.Errorf("marshal history: %w", err)
		}
		history = pqtype.NullRawMessage{RawMessage: data, Valid: true}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO learning_patterns (topic_id, metrics, history, related_topics, prerequisites, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (topic_id) DO UPDATE SET
			metrics = EXCLUDED.metrics,
			history = EXCLUDED.history,
			related_topics = EXCLUDED.related_topics,
			prerequisites = EXCLUDED.prerequisites,
			updated_at = EXCLUDED.updated_at`,
		p.TopicID, metrics, history,
		pq.Array(nonNil(p.RelatedTopics)), pq.Array(nonNil(p.Prerequisites)),
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("upsert pattern: %w", err)
	}
	return nil
}

// SaveStrategy upserts a topic's strategy
func (s *PatternStore) SaveStrategy(ctx context.Context, st *domain.AdaptiveStrategy) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshal strategy: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO adaptive_strategies (topic_id, strategy, next_review, computed_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (topic_id) DO UPDATE SET
			strategy = EXCLUDED.strategy,
			next_review = EXCLUDED.next_review,
			computed_at = EXCLUDED.computed_at`,
		st.TopicID, data, st.NextReviewDate, st.ComputedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert strategy: %w", err)
	}
	return nil
}

// LoadPatterns reads every stored pattern
func (s *PatternStore) LoadPatterns(ctx context.Context) ([]*domain.LearningPattern, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT topic_id, metrics, history, related_topics, prerequisites
		FROM learning_patterns ORDER BY topic_id`)
	if err != nil {
		return nil, fmt.Errorf("query patterns: %w", err)
	}
	defer rows.Close()

	var patterns []*domain.LearningPattern
	for rows.Next() {
		var (
			topic   string
			metrics []byte
			history pqtype.NullRawMessage
			related []string
			prereqs []string
		)
		if err := rows.Scan(&topic, &metrics, &history, pq.Array(&related), pq.Array(&prereqs)); err != nil {
			return nil, fmt.Errorf("scan pattern: %w", err)
		}

		p := domain.NewLearningPattern(topic)
		if err := json.Unmarshal(metrics, &p.Metrics); err != nil {
			return nil, fmt.Errorf("unmarshal metrics for %s: %w", topic, err)
		}
		if history.Valid {
			if err := json.Unmarshal(history.RawMessage, &p.History); err != nil {
				return nil, fmt.Errorf("unmarshal history for %s: %w", topic, err)
			}
		}
		p.RelatedTopics = nonNil(related)
		p.Prerequisites = nonNil(prereqs)
		patterns = append(patterns, p)
	}
	return patterns, rows.Err()
}

// LoadStrategies reads every stored strategy
func (s *PatternStore) LoadStrategies(ctx context.Context) ([]*domain.AdaptiveStrategy, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT strategy FROM adaptive_strategies ORDER BY topic_id`)
	if err != nil {
		return nil, fmt.Errorf("query strategies: %w", err)
	}
	defer rows.Close()

	var strategies []*domain.AdaptiveStrategy
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan strategy: %w", err)
		}
		var st domain.AdaptiveStrategy
		if err := json.Unmarshal(data, &st); err != nil {
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
