package ledger

import (
	"math"
	"time"

	"github.com/felixgeelhaar/pacer/internal/domain"
)

const (
	// recencyDecay is the per-position decay applied to history weights
	recencyDecay = 0.1
	// retentionDecay is the per-day forgetting rate used for retention
	retentionDecay = 0.1
	// streakGapDays is the largest gap between attempts that keeps a streak alive
	streakGapDays = 2.0
	// streakTarget is the streak length that yields full consistency
	streakTarget = 7.0
	// recentWindow is the number of newest attempts used for short-term success
	recentWindow = 5
	// difficultyDamping is the share of the previous difficulty kept on update
	difficultyDamping = 0.7
)

// DeriveMetrics computes a topic's metrics from its newest-first history.
// It is a pure function of history and now. TimeSpent covers the given
// history only; the ledger carries the cumulative total past the cap.
func DeriveMetrics(history []domain.AttemptRecord, now time.Time) domain.LearningMetrics {
	if len(history) == 0 {
		return domain.DefaultMetrics()
	}

	m := domain.LearningMetrics{
		Attempts:    len(history),
		LastAttempt: history[0].Timestamp,
	}
	for _, rec := range history {
		m.TimeSpent += rec.TimeSpent
	}
	m.AverageSessionTime = m.TimeSpent / float64(m.Attempts)

	m.SuccessRate = WeightedSuccessRate(history)
	m.StreakDays = StreakDays(history, now)
	m.ConsistencyScore = math.Min(float64(m.StreakDays)/streakTarget, 1)
	m.RetentionScore = RetentionScore(history, now)
	m.Difficulty = AdjustDifficulty(history, m.SuccessRate)

	return m
}

// recencyWeight is the weight of the history entry at position i (0 = newest)
func recencyWeight(i int) float64 {
	return math.Exp(-recencyDecay * float64(i))
}

// WeightedSuccessRate returns the recency-weighted success fraction
func WeightedSuccessRate(history []domain.AttemptRecord) float64 {
	if len(history) == 0 {
		return 0
	}
	var weighted, total float64
	for i, rec := range history {
		w := recencyWeight(i)
		if rec.Success {
			weighted += w
		}
		total += w
	}
	return domain.Clamp(weighted/total, 0, 1)
}

// StreakDays counts the chain of attempts, newest first, whose gaps stay
// within two days. The streak is broken when the newest attempt itself is
// more than two days old.
func StreakDays(history []domain.AttemptRecord, now time.Time) int {
	if len(history) == 0 {
		return 0
	}
	if daysBetween(history[0].Timestamp, now) > streakGapDays {
		return 0
	}
	streak := 1
	for i := 1; i < len(history); i++ {
		if daysBetween(history[i].Timestamp, history[i-1].Timestamp) > streakGapDays {
			break
		}
		streak++
	}
	return streak
}

// RetentionScore averages the decayed, recency-weighted value of each
// successful attempt over the whole history
func RetentionScore(history []domain.AttemptRecord, now time.Time) float64 {
	if len(history) == 0 {
		return 0
	}
	var sum float64
	for i, rec := range history {
		if !rec.Success {
			continue
		}
		daysSince := math.Max(0, daysBetween(rec.Timestamp, now))
		sum += math.Exp(-daysSince*retentionDecay) * recencyWeight(i)
	}
	return domain.Clamp(sum/float64(len(history)), 0, 1)
}

// Volatility is the fraction of adjacent history pairs whose outcome differs
func Volatility(history []domain.AttemptRecord) float64 {
	if len(history) < 2 {
		return 0
	}
	changes := 0
	for i := 1; i < len(history); i++ {
		if history[i].Success != history[i-1].Success {
			changes++
		}
	}
	return float64(changes) / float64(len(history)-1)
}

// RecentSuccessRate is the plain success fraction of the newest attempts
func RecentSuccessRate(history []domain.AttemptRecord) float64 {
	n := min(len(history), recentWindow)
	if n == 0 {
		return 0
	}
	successes := 0
	for _, rec := range history[:n] {
		if rec.Success {
			successes++
		}
	}
	return float64(successes) / float64(n)
}

// AdjustDifficulty picks a target level from performance and damps the move
// toward it by the difficulty recorded on the newest attempt.
func AdjustDifficulty(history []domain.AttemptRecord, successRate float64) float64 {
	if len(history) == 0 {
		return domain.DefaultDifficulty
	}

	recent := RecentSuccessRate(history)
	volatility := Volatility(history)

	target := domain.DefaultDifficulty
	switch {
	case successRate > 0.8 && recent > 0.8 && volatility < 0.3:
		target = 4
	case successRate < 0.4 || (recent < 0.3 && volatility < 0.3):
		target = 2
	}
	target = domain.ClampDifficulty(target)

	previous := history[0].Difficulty
	if previous == 0 {
		previous = domain.DefaultDifficulty
	}
	previous = domain.ClampDifficulty(previous)

	return domain.ClampDifficulty(target + (previous-target)*difficultyDamping)
}

// daysBetween returns the fractional number of days from a to b
func daysBetween(a, b time.Time) float64 {
	return b.Sub(a).Hours() / 24
}

// DaysSince returns the fractional number of days from t to now, never negative
func DaysSince(t, now time.Time) float64 {
	return math.Max(0, daysBetween(t, now))
}
