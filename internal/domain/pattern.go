package domain

import (
	"math"
	"slices"
	"strings"
	"time"
)

// Difficulty bounds shared by the ledger and the strategy engine
const (
	MinDifficulty     = 1.0
	MaxDifficulty     = 5.0
	DefaultDifficulty = 3.0
)

// AttemptRecord is a single practice event. Records are immutable once
// appended to a pattern's history.
type AttemptRecord struct {
	Timestamp  time.Time `json:"timestamp"`
	TimeSpent  float64   `json:"time_spent"` // seconds
	Success    bool      `json:"success"`
	Difficulty float64   `json:"difficulty"` // difficulty in effect when the attempt happened
}

// LearningMetrics is derived from a pattern's history and recomputed on
// every update. It is never mutated in place.
type LearningMetrics struct {
	TimeSpent          float64   `json:"time_spent"` // cumulative seconds
	Attempts           int       `json:"attempts"`
	SuccessRate        float64   `json:"success_rate"`
	Difficulty         float64   `json:"difficulty"`
	ConsistencyScore   float64   `json:"consistency_score"`
	RetentionScore     float64   `json:"retention_score"`
	LastAttempt        time.Time `json:"last_attempt"`
	StreakDays         int       `json:"streak_days"`
	AverageSessionTime float64   `json:"average_session_time"`
}

// DefaultMetrics returns the metrics of a topic with no history
func DefaultMetrics() LearningMetrics {
	return LearningMetrics{Difficulty: DefaultDifficulty}
}

// DisplayDifficulty returns the difficulty rounded to a whole level
func (m LearningMetrics) DisplayDifficulty() int {
	return int(math.Round(ClampDifficulty(m.Difficulty)))
}

// LearningPattern is the per-topic ledger: bounded newest-first history,
// derived metrics and the topic's relationships.
type LearningPattern struct {
	TopicID       string          `json:"topic_id"`
	Metrics       LearningMetrics `json:"metrics"`
	History       []AttemptRecord `json:"history"`
	RelatedTopics []string        `json:"related_topics"`
	Prerequisites []string        `json:"prerequisites"`
}

// NewLearningPattern creates an empty pattern with default metrics
func NewLearningPattern(topicID string) *LearningPattern {
	return &LearningPattern{
		TopicID:       topicID,
		Metrics:       DefaultMetrics(),
		History:       []AttemptRecord{},
		RelatedTopics: []string{},
		Prerequisites: []string{},
	}
}

// Clone returns a deep copy safe to hand to readers
func (p *LearningPattern) Clone() *LearningPattern {
	if p == nil {
		return nil
	}
	c := *p
	c.History = slices.Clone(p.History)
	c.RelatedTopics = slices.Clone(p.RelatedTopics)
	c.Prerequisites = slices.Clone(p.Prerequisites)
	if c.History == nil {
		c.History = []AttemptRecord{}
	}
	if c.RelatedTopics == nil {
		c.RelatedTopics = []string{}
	}
	if c.Prerequisites == nil {
		c.Prerequisites = []string{}
	}
	return &c
}

// MergeTopicSet returns the sorted union of existing and additions, skipping
// blanks and the owning topic itself.
func MergeTopicSet(owner string, existing, additions []string) []string {
	seen := make(map[string]bool, len(existing)+len(additions))
	merged := make([]string, 0, len(existing)+len(additions))
	for _, set := range [][]string{existing, additions} {
		for _, id := range set {
			id = strings.TrimSpace(id)
			if id == "" || id == owner || seen[id] {
				continue
			}
			seen[id] = true
			merged = append(merged, id)
		}
	}
	slices.Sort(merged)
	return merged
}

// ClampDifficulty bounds a difficulty to [MinDifficulty, MaxDifficulty]
func ClampDifficulty(d float64) float64 {
	return Clamp(d, MinDifficulty, MaxDifficulty)
}

// Clamp bounds v to [lo, hi]
func Clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
