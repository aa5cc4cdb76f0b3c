package domain

import (
	"time"

	"github.com/google/uuid"
)

// Event types
const (
	EventAttemptRecorded  = "attempt.recorded"
	EventStrategyUpdated  = "strategy.updated"
	EventRoadmapSequenced = "roadmap.sequenced"
)

// -----------------------------------------------------------------------------
// Event Interface and Base Event
// -----------------------------------------------------------------------------

// Event represents a domain event
type Event interface {
	// EventID returns the unique identifier for this event
	EventID() uuid.UUID
	// EventType returns the type name of this event
	EventType() string
	// OccurredAt returns when this event occurred
	OccurredAt() time.Time
}

// BaseEvent provides common event fields
type BaseEvent struct {
	ID        uuid.UUID `json:"id"`
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
}

// NewBaseEvent creates a new BaseEvent
func NewBaseEvent(eventType string, at time.Time) BaseEvent {
	return BaseEvent{
		ID:        uuid.New(),
		Type:      eventType,
		Timestamp: at,
	}
}

func (e BaseEvent) EventID() uuid.UUID    { return e.ID }
func (e BaseEvent) EventType() string     { return e.Type }
func (e BaseEvent) OccurredAt() time.Time { return e.Timestamp }

// -----------------------------------------------------------------------------
// Scheduler Events
// -----------------------------------------------------------------------------

// AttemptRecordedEvent carries a practice attempt from an external producer
// into the ledger
type AttemptRecordedEvent struct {
	BaseEvent
	TopicID       string   `json:"topic_id"`
	TimeSpent     float64  `json:"time_spent"`
	Success       bool     `json:"success"`
	RelatedTopics []string `json:"related_topics,omitempty"`
	Prerequisites []string `json:"prerequisites,omitempty"`
}

// NewAttemptRecordedEvent creates a new attempt recorded event
func NewAttemptRecordedEvent(topicID string, timeSpent float64, success bool, at time.Time) AttemptRecordedEvent {
	return AttemptRecordedEvent{
		BaseEvent: NewBaseEvent(EventAttemptRecorded, at),
		TopicID:   topicID,
		TimeSpent: timeSpent,
		Success:   success,
	}
}

// StrategyUpdatedEvent is published after a topic's strategy is recomputed
type StrategyUpdatedEvent struct {
	BaseEvent
	Strategy AdaptiveStrategy `json:"strategy"`
	Metrics  LearningMetrics  `json:"metrics"`
}

// NewStrategyUpdatedEvent creates a new strategy updated event
func NewStrategyUpdatedEvent(s AdaptiveStrategy, m LearningMetrics) StrategyUpdatedEvent {
	return StrategyUpdatedEvent{
		BaseEvent: NewBaseEvent(EventStrategyUpdated, s.ComputedAt),
		Strategy:  s,
		Metrics:   m,
	}
}

// RoadmapSequencedEvent is published when a stored roadmap gets a new order
type RoadmapSequencedEvent struct {
	BaseEvent
	RoadmapID   uuid.UUID `json:"roadmap_id"`
	TopicOrder  []string  `json:"topic_order"`
	Fitness     float64   `json:"fitness"`
	Generations int       `json:"generations"`
}

// NewRoadmapSequencedEvent creates a new roadmap sequenced event
func NewRoadmapSequencedEvent(r *Roadmap) RoadmapSequencedEvent {
	order := make([]string, len(r.Topics))
	for i, t := range r.Topics {
		order[i] = t.ID
	}
	return RoadmapSequencedEvent{
		BaseEvent:   NewBaseEvent(EventRoadmapSequenced, r.UpdatedAt),
		RoadmapID:   r.ID,
		TopicOrder:  order,
		Fitness:     r.Fitness,
		Generations: r.Generations,
	}
}
