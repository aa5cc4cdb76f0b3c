// Package strategy turns a topic's learning pattern into an adaptive
// practice strategy and a set of human-readable insights.
package strategy

import (
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/felixgeelhaar/pacer/internal/domain"
	"github.com/felixgeelhaar/pacer/internal/ledger"
)

// DefaultMinDataPoints is the smallest history a strategy is derived from
const DefaultMinDataPoints = 3

const (
	defaultSessionTime   = 600.0 // seconds
	sessionTimeSpread    = 0.25
	prerequisiteMastery  = 0.7
	maxRecommendAttempts = 5
	minReviewDays        = 1.0
	maxReviewDays        = 30.0
	reviewJitter         = 0.1
	recencyDecay         = 0.1
)

// PatternLookup resolves another topic's pattern, used for prerequisite checks
type PatternLookup func(topicID string) (*domain.LearningPattern, bool)

// Engine computes adaptive strategies. It is safe for concurrent use.
type Engine struct {
	minDataPoints int
	now           func() time.Time
	logger        *slog.Logger

	mu  sync.Mutex // guards rng
	rng *rand.Rand
}

// Option configures an Engine
type Option func(*Engine)

// WithMinDataPoints overrides the minimum history length
func WithMinDataPoints(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.minDataPoints = n
		}
	}
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithRand sets the random source used for review jitter
func WithRand(rng *rand.Rand) Option {
	return func(e *Engine) {
		if rng != nil {
			e.rng = rng
		}
	}
}

// WithSeed seeds the review jitter source
func WithSeed(seed int64) Option {
	return WithRand(rand.New(rand.NewSource(seed)))
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewEngine creates a strategy engine
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		minDataPoints: DefaultMinDataPoints,
		now:           time.Now,
		logger:        slog.Default(),
		rng:           rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// MinDataPoints returns the configured minimum history length
func (e *Engine) MinDataPoints() int {
	return e.minDataPoints
}

// Evolve derives a fresh strategy from the pattern. It returns
// ErrInsufficientData when the history is too short, and
// ErrComputationFailure when the math produces an unusable result; in both
// cases callers keep whatever strategy they already had.
func (e *Engine) Evolve(pattern *domain.LearningPattern, lookup PatternLookup) (s *domain.AdaptiveStrategy, err error) {
	if pattern == nil {
		return nil, fmt.Errorf("%w: no pattern", domain.ErrInsufficientData)
	}
	if n := len(pattern.History); n < e.minDataPoints {
		return nil, fmt.Errorf("%w: %d of %d attempts", domain.ErrInsufficientData, n, e.minDataPoints)
	}

	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("strategy evolution panicked", "topic", pattern.TopicID, "panic", r)
			s, err = nil, fmt.Errorf("%w: %v", domain.ErrComputationFailure, r)
		}
	}()

	now := e.now()
	m := pattern.Metrics

	timePerSession, timeAlts := OptimalTime(pattern.History)
	difficulty, difficultyAlts := OptimalDifficulty(m)

	s = &domain.AdaptiveStrategy{
		TopicID:                   pattern.TopicID,
		RecommendedTimePerSession: timePerSession,
		RecommendedAttempts:       OptimalAttempts(m.SuccessRate),
		SuggestedDifficulty:       difficulty,
		NextReviewDate:            e.nextReview(len(pattern.History), m, now),
		ConfidenceScore:           Confidence(pattern, e.minDataPoints, now),
		AlternativeStrategies: domain.AlternativeStrategies{
			TimePerSession: timeAlts,
			Difficulty:     difficultyAlts,
		},
		PrerequisitesCompleted: len(MissingPrerequisites(pattern, lookup)) == 0,
		ComputedAt:             now,
	}

	if err := checkFinite(s); err != nil {
		return nil, err
	}
	return s, nil
}

// OptimalTime returns the mean time of successful attempts together with a
// lower and upper alternative.
func OptimalTime(history []domain.AttemptRecord) (float64, [2]float64) {
	var total float64
	var successes int
	for _, rec := range history {
		if rec.Success {
			total += rec.TimeSpent
			successes++
		}
	}
	if successes == 0 {
		return defaultSessionTime, [2]float64{defaultSessionTime * 0.5, defaultSessionTime * 1.5}
	}
	mean := total / float64(successes)
	return mean, [2]float64{mean * (1 - sessionTimeSpread), mean * (1 + sessionTimeSpread)}
}

// OptimalDifficulty nudges the current difficulty by retention and
// consistency, returning the rounded level and its neighbours.
func OptimalDifficulty(m domain.LearningMetrics) (int, [2]int) {
	d := m.Difficulty
	if d == 0 {
		d = domain.DefaultDifficulty
	}
	if m.RetentionScore > 0.8 && m.ConsistencyScore > 0.7 {
		d += 0.5
	}
	if m.RetentionScore < 0.4 || m.ConsistencyScore < 0.3 {
		d -= 0.5
	}
	level := math.Round(domain.ClampDifficulty(d))
	return int(level), [2]int{
		int(domain.ClampDifficulty(level - 1)),
		int(domain.ClampDifficulty(level + 1)),
	}
}

// OptimalAttempts recommends fewer attempts as success improves
func OptimalAttempts(successRate float64) int {
	n := int(math.Ceil(5 - successRate*3))
	return max(1, min(n, maxRecommendAttempts))
}

// ReviewInterval returns the spaced-repetition interval in days before
// jitter and clamping.
func ReviewInterval(repetitions int, m domain.LearningMetrics) float64 {
	base := math.Pow(2, float64(repetitions-1))
	performance := (m.SuccessRate + m.RetentionScore) / 2
	return base * performance * (1 + m.ConsistencyScore*0.5)
}

func (e *Engine) nextReview(repetitions int, m domain.LearningMetrics, now time.Time) time.Time {
	jitter := 1 + (e.float64()*2-1)*reviewJitter
	days := domain.Clamp(ReviewInterval(repetitions, m)*jitter, minReviewDays, maxReviewDays)
	return now.AddDate(0, 0, int(math.Round(days)))
}

// Confidence averages data sufficiency, consistency, stability and recency
func Confidence(p *domain.LearningPattern, minDataPoints int, now time.Time) float64 {
	m := p.Metrics
	sufficiency := math.Min(float64(len(p.History))/float64(max(minDataPoints, 1)), 1)
	stability := 1 - ledger.Volatility(p.History)

	recency := 0.0
	if len(p.History) > 0 {
		recency = math.Exp(-recencyDecay * ledger.DaysSince(p.History[0].Timestamp, now))
	}

	return domain.Clamp((sufficiency+m.ConsistencyScore+stability+recency)/4, 0, 1)
}

// MissingPrerequisites lists the prerequisites that have no pattern or whose
// success rate is below the mastery threshold.
func MissingPrerequisites(p *domain.LearningPattern, lookup PatternLookup) []string {
	missing := []string{}
	if p == nil {
		return missing
	}
	for _, id := range p.Prerequisites {
		if lookup == nil {
			missing = append(missing, id)
			continue
		}
		prereq, ok := lookup(id)
		if !ok || prereq.Metrics.SuccessRate < prerequisiteMastery {
			missing = append(missing, id)
		}
	}
	return missing
}

func (e *Engine) float64() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rng.Float64()
}

func checkFinite(s *domain.AdaptiveStrategy) error {
	values := map[string]float64{
		"time per session": s.RecommendedTimePerSession,
		"confidence":       s.ConfidenceScore,
		"time lower":       s.AlternativeStrategies.TimePerSession[0],
		"time upper":       s.AlternativeStrategies.TimePerSession[1],
	}
	for name, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %s is not finite", domain.ErrComputationFailure, name)
		}
	}
	return nil
}
