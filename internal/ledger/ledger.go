// Package ledger keeps the append-only, per-topic history of practice
// attempts and derives point-in-time learning metrics from it.
package ledger

import (
	"context"
	"fmt"
	"math"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/felixgeelhaar/pacer/internal/domain"
)

// DefaultHistoryCap bounds the number of attempts kept per topic
const DefaultHistoryCap = 100

// Attempt is an incoming practice event
type Attempt struct {
	TopicID       string   `json:"topic_id"`
	TimeSpent     float64  `json:"time_spent"` // seconds
	Success       bool     `json:"success"`
	RelatedTopics []string `json:"related_topics,omitempty"`
	Prerequisites []string `json:"prerequisites,omitempty"`
}

// Validate rejects attempts the ledger must never accept
func (a Attempt) Validate() error {
	if strings.TrimSpace(a.TopicID) == "" {
		return fmt.Errorf("%w: topic id is required", domain.ErrInvalidInput)
	}
	if math.IsNaN(a.TimeSpent) || math.IsInf(a.TimeSpent, 0) {
		return fmt.Errorf("%w: time spent must be a finite number", domain.ErrInvalidInput)
	}
	if a.TimeSpent < 0 {
		return fmt.Errorf("%w: time spent must not be negative (got %v)", domain.ErrInvalidInput, a.TimeSpent)
	}
	return nil
}

// Ledger holds one learning pattern per topic. Stored patterns are never
// mutated: updates build a new pattern and swap it in, so readers always
// observe either the pre- or the post-update state.
type Ledger struct {
	mu         sync.RWMutex
	patterns   map[string]*domain.LearningPattern
	historyCap int
	now        func() time.Time
}

// Option configures a Ledger
type Option func(*Ledger)

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		if now != nil {
			l.now = now
		}
	}
}

// WithHistoryCap overrides the per-topic history bound
func WithHistoryCap(n int) Option {
	return func(l *Ledger) {
		if n > 0 {
			l.historyCap = n
		}
	}
}

// New creates an empty ledger
func New(opts ...Option) *Ledger {
	l := &Ledger{
		patterns:   make(map[string]*domain.LearningPattern),
		historyCap: DefaultHistoryCap,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Now returns the ledger's current time
func (l *Ledger) Now() time.Time {
	return l.now()
}

// RecordAttempt appends an attempt to the topic's history, creating the
// pattern on first use, and returns a copy of the updated pattern.
func (l *Ledger) RecordAttempt(ctx context.Context, a Attempt) (*domain.LearningPattern, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	topicID := strings.TrimSpace(a.TopicID)
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	current, ok := l.patterns[topicID]
	if !ok {
		current = domain.NewLearningPattern(topicID)
	}

	record := domain.AttemptRecord{
		Timestamp:  now,
		TimeSpent:  a.TimeSpent,
		Success:    a.Success,
		Difficulty: current.Metrics.Difficulty,
	}

	history := make([]domain.AttemptRecord, 0, min(len(current.History)+1, l.historyCap))
	history = append(history, record)
	history = append(history, current.History...)
	if len(history) > l.historyCap {
		history = history[:l.historyCap]
	}

	next := &domain.LearningPattern{
		TopicID:       topicID,
		History:       history,
		RelatedTopics: domain.MergeTopicSet(topicID, current.RelatedTopics, a.RelatedTopics),
		Prerequisites: domain.MergeTopicSet(topicID, current.Prerequisites, a.Prerequisites),
	}
	next.Metrics = DeriveMetrics(next.History, now)
	// Cumulative, including attempts that fell off the capped history
	next.Metrics.TimeSpent = current.Metrics.TimeSpent + a.TimeSpent

	l.patterns[topicID] = next
	return next.Clone(), nil
}

// Pattern returns a copy of the topic's pattern
func (l *Ledger) Pattern(topicID string) (*domain.LearningPattern, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	p, ok := l.patterns[topicID]
	if !ok {
		return nil, false
	}
	return p.Clone(), true
}

// Metrics returns the topic's metrics as of its last update
func (l *Ledger) Metrics(topicID string) (domain.LearningMetrics, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	p, ok := l.patterns[topicID]
	if !ok {
		return domain.LearningMetrics{}, false
	}
	return p.Metrics, true
}

// Topics returns the tracked topic IDs in sorted order
func (l *Ledger) Topics() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	ids := make([]string, 0, len(l.patterns))
	for id := range l.patterns {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Snapshot returns copies of every pattern, sorted by topic
func (l *Ledger) Snapshot() []*domain.LearningPattern {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]*domain.LearningPattern, 0, len(l.patterns))
	for _, p := range l.patterns {
		out = append(out, p.Clone())
	}
	slices.SortFunc(out, func(a, b *domain.LearningPattern) int {
		return strings.Compare(a.TopicID, b.TopicID)
	})
	return out
}

// Restore replaces the ledger contents with previously persisted patterns.
// Histories are trimmed to the cap and metrics are rederived whenever the
// stored attempt count disagrees with the history. The stored cumulative
// time is kept unless the history alone adds up to more.
func (l *Ledger) Restore(patterns []*domain.LearningPattern) error {
	restored := make(map[string]*domain.LearningPattern, len(patterns))
	for _, p := range patterns {
		if p == nil {
			continue
		}
		id := strings.TrimSpace(p.TopicID)
		if id == "" {
			return fmt.Errorf("%w: persisted pattern has no topic id", domain.ErrInvalidInput)
		}
		c := p.Clone()
		c.TopicID = id
		if len(c.History) > l.historyCap {
			c.History = c.History[:l.historyCap]
		}
		c.RelatedTopics = domain.MergeTopicSet(id, c.RelatedTopics, nil)
		c.Prerequisites = domain.MergeTopicSet(id, c.Prerequisites, nil)
		if c.Metrics.Attempts != len(c.History) {
			total := c.Metrics.TimeSpent
			c.Metrics = DeriveMetrics(c.History, l.now())
			c.Metrics.TimeSpent = math.Max(total, c.Metrics.TimeSpent)
		}
		restored[id] = c
	}

	l.mu.Lock()
	l.patterns = restored
	l.mu.Unlock()
	return nil
}

// Len returns the number of tracked topics
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.patterns)
}
