package domain

import "time"

// AdaptiveStrategy holds the recommended practice parameters for a topic.
// It is derived from the topic's pattern and replaced wholesale on each
// successful evolution.
type AdaptiveStrategy struct {
	TopicID                   string                `json:"topic_id"`
	RecommendedTimePerSession float64               `json:"recommended_time_per_session"` // seconds
	RecommendedAttempts       int                   `json:"recommended_attempts"`
	SuggestedDifficulty       int                   `json:"suggested_difficulty"`
	NextReviewDate            time.Time             `json:"next_review_date"`
	ConfidenceScore           float64               `json:"confidence_score"`
	AlternativeStrategies     AlternativeStrategies `json:"alternative_strategies"`
	PrerequisitesCompleted    bool                  `json:"prerequisites_completed"`
	ComputedAt                time.Time             `json:"computed_at"`
}

// AlternativeStrategies brackets the primary recommendation: index 0 is the
// lower value and index 1 the higher one.
type AlternativeStrategies struct {
	TimePerSession [2]float64 `json:"time_per_session"`
	Difficulty     [2]int     `json:"difficulty"`
}

// InsightType classifies a learning insight
type InsightType string

const (
	InsightSuccess InsightType = "success"
	InsightWarning InsightType = "warning"
	InsightInfo    InsightType = "info"
)

// LearningInsight is a transient, human-readable observation about a topic
type LearningInsight struct {
	Type           InsightType `json:"type"`
	Message        string      `json:"message"`
	Confidence     float64     `json:"confidence"`
	Recommendation string      `json:"recommendation,omitempty"`
}
