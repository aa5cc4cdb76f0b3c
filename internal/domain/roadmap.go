package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Subtopic is an ordered step within a roadmap topic
type Subtopic struct {
	Title     string `json:"title"`
	Completed bool   `json:"completed"`
}

// RoadmapTopic is a unit of an ordered curriculum
type RoadmapTopic struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Subtopics []Subtopic `json:"subtopics"`
}

// Completed reports whether every subtopic is done. A topic without
// subtopics has nothing to complete and is reported as not completed.
func (t RoadmapTopic) Completed() bool {
	if len(t.Subtopics) == 0 {
		return false
	}
	for _, s := range t.Subtopics {
		if !s.Completed {
			return false
		}
	}
	return true
}

// Progress returns the completed fraction of subtopics (0-1)
func (t RoadmapTopic) Progress() float64 {
	if len(t.Subtopics) == 0 {
		return 0
	}
	done := 0
	for _, s := range t.Subtopics {
		if s.Completed {
			done++
		}
	}
	return float64(done) / float64(len(t.Subtopics))
}

// TopicPerformance is the sequencer's view of a topic's ledger
type TopicPerformance struct {
	TopicID        string        `json:"topic_id"`
	SuccessRate    float64       `json:"success_rate"`
	CompletionTime time.Duration `json:"completion_time"`
	Attempts       int           `json:"attempts"`
}

// Roadmap is a persisted topic set together with its last recommended order
type Roadmap struct {
	ID          uuid.UUID      `json:"id"`
	Title       string         `json:"title"`
	Topics      []RoadmapTopic `json:"topics"`
	Fitness     float64        `json:"fitness"`
	Generations int            `json:"generations"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// ValidateTopics checks a topic set before sequencing: it must be non-empty
// with unique, non-blank identifiers.
func ValidateTopics(topics []RoadmapTopic) error {
	_, err := NormalizeTopics(topics)
	return err
}

// NormalizeTopics validates topics and returns a copy whose identifiers are
// trimmed the same way the ledger trims attempt topic ids.
func NormalizeTopics(topics []RoadmapTopic) ([]RoadmapTopic, error) {
	if len(topics) == 0 {
		return nil, fmt.Errorf("%w: roadmap has no topics", ErrInvalidInput)
	}
	out := make([]RoadmapTopic, len(topics))
	seen := make(map[string]bool, len(topics))
	for i, t := range topics {
		id := strings.TrimSpace(t.ID)
		if id == "" {
			return nil, fmt.Errorf("%w: topic %d has no id", ErrInvalidInput, i)
		}
		if seen[id] {
			return nil, fmt.Errorf("%w: duplicate topic id %q", ErrInvalidInput, id)
		}
		seen[id] = true
		t.ID = id
		out[i] = t
	}
	return out, nil
}
