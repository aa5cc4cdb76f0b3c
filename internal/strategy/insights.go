package strategy

import (
	"fmt"

	"github.com/felixgeelhaar/pacer/internal/domain"
)

// Insight thresholds
const (
	excellentSuccessRate  = 0.8
	excellentConsistency  = 0.7
	longSessionFactor     = 1.5
	lowConsistency        = 0.3
	excellentConfidence   = 0.9
	longSessionConfidence = 0.8
	regularityConfidence  = 0.85
)

// Insights evaluates every insight rule independently against the pattern
// and its current strategy. Without a strategy there is nothing to explain.
func (e *Engine) Insights(p *domain.LearningPattern, s *domain.AdaptiveStrategy) []domain.LearningInsight {
	insights := []domain.LearningInsight{}
	if p == nil || s == nil {
		return insights
	}
	m := p.Metrics

	if m.SuccessRate > excellentSuccessRate && m.ConsistencyScore > excellentConsistency {
		insights = append(insights, domain.LearningInsight{
			Type:           domain.InsightSuccess,
			Message:        fmt.Sprintf("Excellent progress on %s: %.0f%% success with steady practice", p.TopicID, m.SuccessRate*100),
			Confidence:     excellentConfidence,
			Recommendation: fmt.Sprintf("Try difficulty %d to keep the challenge up", min(s.SuggestedDifficulty+1, int(domain.MaxDifficulty))),
		})
	}

	if s.RecommendedTimePerSession > 0 && m.AverageSessionTime > longSessionFactor*s.RecommendedTimePerSession {
		insights = append(insights, domain.LearningInsight{
			Type:           domain.InsightWarning,
			Message:        fmt.Sprintf("Sessions average %s, well above the recommended %s", formatSeconds(m.AverageSessionTime), formatSeconds(s.RecommendedTimePerSession)),
			Confidence:     longSessionConfidence,
			Recommendation: "Split practice into shorter, focused sessions",
		})
	}

	if m.ConsistencyScore < lowConsistency {
		insights = append(insights, domain.LearningInsight{
			Type:           domain.InsightInfo,
			Message:        "Practice has been irregular",
			Confidence:     regularityConfidence,
			Recommendation: "Practice at least every other day to build a streak",
		})
	}

	return insights
}

func formatSeconds(s float64) string {
	if s < 60 {
		return fmt.Sprintf("%.0fs", s)
	}
	return fmt.Sprintf("%.0fm", s/60)
}
