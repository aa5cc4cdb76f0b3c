package scheduler

import (
	"context"
	"sort"
	"time"

	"github.com/felixgeelhaar/pacer/internal/domain"
	"github.com/felixgeelhaar/pacer/internal/ledger"
)

// Overview provides aggregate statistics across topics
type Overview struct {
	TopicsTracked       int         `json:"topics_tracked"`
	TotalAttempts       int         `json:"total_attempts"`
	TotalTimeSpent      string      `json:"total_time_spent"`
	AverageSuccessRate  float64     `json:"average_success_rate"`
	StrategiesReady     int         `json:"strategies_ready"`
	DueForReview        []string    `json:"due_for_review"`
	MostPracticedTopics []TopicStat `json:"most_practiced_topics"`
}

// TopicStat represents statistics for a single topic
type TopicStat struct {
	Topic       string  `json:"topic"`
	Attempts    int     `json:"attempts"`
	SuccessRate float64 `json:"success_rate"`
	Difficulty  int     `json:"difficulty"`
	StreakDays  int     `json:"streak_days"`
	Trend       string  `json:"trend"` // "new", "inactive", "improving", "stable", "struggling", "learning"
}

// Overview returns aggregate analytics over every tracked topic
func (s *Service) Overview(ctx context.Context) *Overview {
	now := s.ledger.Now()
	patterns := s.ledger.Snapshot()

	overview := &Overview{
		TopicsTracked:       len(patterns),
		DueForReview:        []string{},
		MostPracticedTopics: []TopicStat{},
	}

	var totalSeconds, successSum float64
	for _, p := range patterns {
		m := p.Metrics
		overview.TotalAttempts += m.Attempts
		totalSeconds += m.TimeSpent
		successSum += m.SuccessRate

		overview.MostPracticedTopics = append(overview.MostPracticedTopics, TopicStat{
			Topic:       p.TopicID,
			Attempts:    m.Attempts,
			SuccessRate: m.SuccessRate,
			Difficulty:  m.DisplayDifficulty(),
			StreakDays:  m.StreakDays,
			Trend:       determineTrend(p, now),
		})

		if st := s.Strategy(p.TopicID); st != nil {
			overview.StrategiesReady++
			if !st.NextReviewDate.After(now) {
				overview.DueForReview = append(overview.DueForReview, p.TopicID)
			}
		}
	}

	if len(patterns) > 0 {
		overview.AverageSuccessRate = successSum / float64(len(patterns))
	}
	if totalSeconds > 0 {
		overview.TotalTimeSpent = formatDuration(time.Duration(totalSeconds * float64(time.Second)))
	} else {
		overview.TotalTimeSpent = "N/A"
	}

	// Sort by attempts descending
	sort.SliceStable(overview.MostPracticedTopics, func(i, j int) bool {
		return overview.MostPracticedTopics[i].Attempts > overview.MostPracticedTopics[j].Attempts
	})
	if len(overview.MostPracticedTopics) > 5 {
		overview.MostPracticedTopics = overview.MostPracticedTopics[:5]
	}

	return overview
}

// determineTrend compares short-term success against the weighted rate
func determineTrend(p *domain.LearningPattern, now time.Time) string {
	m := p.Metrics
	if m.Attempts <= 2 {
		return "new"
	}

	if ledger.DaysSince(m.LastAttempt, now) > 14 {
		return "inactive"
	}

	recent := ledger.RecentSuccessRate(p.History)
	switch {
	case recent > m.SuccessRate+0.1 || m.SuccessRate > 0.7:
		return "improving"
	case m.SuccessRate > 0.3:
		return "stable"
	case m.Attempts > 5:
		return "struggling"
	}
	return "learning"
}

// formatDuration formats a duration in a human-readable way
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return d.Round(time.Second).String()
	}
	if d < time.Hour {
		m := int(d.Minutes())
		s := int(d.Seconds()) % 60
		if s > 0 {
			return (time.Duration(m)*time.Minute + time.Duration(s)*time.Second).String()
		}
		return (time.Duration(m) * time.Minute).String()
	}
	return d.Round(time.Minute).String()
}
