package strategy

import (
	"context"
	"errors"
	"math"
	"slices"
	"testing"
	"time"

	"github.com/felixgeelhaar/pacer/internal/domain"
	"github.com/felixgeelhaar/pacer/internal/ledger"
)

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestEngine(opts ...Option) *Engine {
	return NewEngine(append([]Option{
		WithClock(func() time.Time { return baseTime }),
		WithSeed(42),
	}, opts...)...)
}

// patternWith builds a pattern whose history entries all happened at
// baseTime with the given outcomes.
func patternWith(topic string, outcomes ...bool) *domain.LearningPattern {
	p := domain.NewLearningPattern(topic)
	for _, ok := range outcomes {
		p.History = append(p.History, domain.AttemptRecord{
			Timestamp:  baseTime,
			TimeSpent:  600,
			Success:    ok,
			Difficulty: domain.DefaultDifficulty,
		})
	}
	p.Metrics = ledger.DeriveMetrics(p.History, baseTime)
	return p
}

func TestEvolve_InsufficientData(t *testing.T) {
	e := newTestEngine()

	tests := []struct {
		name    string
		pattern *domain.LearningPattern
	}{
		{"nil pattern", nil},
		{"empty history", patternWith("algebra")},
		{"two attempts", patternWith("algebra", true, true)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := e.Evolve(tt.pattern, nil)
			if !errors.Is(err, domain.ErrInsufficientData) {
				t.Fatalf("Evolve() error = %v; want ErrInsufficientData", err)
			}
			if s != nil {
				t.Errorf("Evolve() strategy = %+v; want nil", s)
			}
		})
	}
}

func TestEvolve_CustomMinDataPoints(t *testing.T) {
	e := newTestEngine(WithMinDataPoints(1))

	if _, err := e.Evolve(patternWith("algebra", true), nil); err != nil {
		t.Errorf("Evolve() error = %v", err)
	}
}

func TestEvolve_AlgebraScenario(t *testing.T) {
	now := baseTime
	l := ledger.New(ledger.WithClock(func() time.Time { return now }))
	ctx := context.Background()

	for i, ok := range []bool{true, true, false, true, true} {
		if i > 0 {
			now = now.Add(12 * time.Hour)
		}
		if _, err := l.RecordAttempt(ctx, ledger.Attempt{TopicID: "algebra", TimeSpent: 600, Success: ok}); err != nil {
			t.Fatalf("RecordAttempt() error = %v", err)
		}
	}
	p, _ := l.Pattern("algebra")

	e := NewEngine(WithClock(func() time.Time { return now }), WithSeed(1))
	s, err := e.Evolve(p, l.Pattern)
	if err != nil {
		t.Fatalf("Evolve() error = %v", err)
	}

	if s.RecommendedAttempts < 1 || s.RecommendedAttempts > 3 {
		t.Errorf("RecommendedAttempts = %d; want between 1 and 3", s.RecommendedAttempts)
	}
	days := s.NextReviewDate.Sub(now).Hours() / 24
	if days < 1 || days > 30 {
		t.Errorf("next review in %.1f days; want between 1 and 30", days)
	}
	if s.RecommendedTimePerSession != 600 {
		t.Errorf("RecommendedTimePerSession = %f; want 600", s.RecommendedTimePerSession)
	}
	if s.ConfidenceScore < 0 || s.ConfidenceScore > 1 {
		t.Errorf("ConfidenceScore = %f; want within [0,1]", s.ConfidenceScore)
	}
	if !s.PrerequisitesCompleted {
		t.Error("PrerequisitesCompleted = false; want true without prerequisites")
	}
	if !s.ComputedAt.Equal(now) {
		t.Errorf("ComputedAt = %v; want %v", s.ComputedAt, now)
	}
}

func TestEvolve_NonFiniteResultIsComputationFailure(t *testing.T) {
	e := newTestEngine()
	p := patternWith("algebra", true, true, true)
	p.History[1].TimeSpent = math.NaN()

	s, err := e.Evolve(p, nil)
	if !errors.Is(err, domain.ErrComputationFailure) {
		t.Fatalf("Evolve() error = %v; want ErrComputationFailure", err)
	}
	if s != nil {
		t.Error("Evolve() should not return a strategy on failure")
	}
}

func TestEvolve_PanicIsComputationFailure(t *testing.T) {
	e := newTestEngine()
	p := patternWith("calculus", true, true, true)
	p.Prerequisites = []string{"algebra"}

	lookup := func(string) (*domain.LearningPattern, bool) {
		panic("lookup exploded")
	}

	_, err := e.Evolve(p, lookup)
	if !errors.Is(err, domain.ErrComputationFailure) {
		t.Fatalf("Evolve() error = %v; want ErrComputationFailure", err)
	}
}

func TestEvolve_Prerequisites(t *testing.T) {
	e := newTestEngine()
	p := patternWith("calculus", true, true, true)
	p.Prerequisites = []string{"algebra", "functions", "trigonometry"}

	known := map[string]*domain.LearningPattern{
		"algebra":   patternWith("algebra", true, true, true),
		"functions": patternWith("functions", false, false, true),
	}
	lookup := func(id string) (*domain.LearningPattern, bool) {
		p, ok := known[id]
		return p, ok
	}

	s, err := e.Evolve(p, lookup)
	if err != nil {
		t.Fatalf("Evolve() error = %v", err)
	}
	if s.PrerequisitesCompleted {
		t.Error("PrerequisitesCompleted = true; want false")
	}

	missing := MissingPrerequisites(p, lookup)
	if want := []string{"functions", "trigonometry"}; !slices.Equal(missing, want) {
		t.Errorf("MissingPrerequisites() = %v; want %v", missing, want)
	}
}

func TestMissingPrerequisites_NilLookup(t *testing.T) {
	p := patternWith("calculus")
	p.Prerequisites = []string{"algebra"}

	if got := MissingPrerequisites(p, nil); !slices.Equal(got, []string{"algebra"}) {
		t.Errorf("MissingPrerequisites() = %v; want [algebra]", got)
	}
	if got := MissingPrerequisites(nil, nil); len(got) != 0 {
		t.Errorf("MissingPrerequisites(nil) = %v; want empty", got)
	}
}

func TestOptimalTime(t *testing.T) {
	tests := []struct {
		name     string
		history  []domain.AttemptRecord
		want     float64
		wantAlts [2]float64
	}{
		{
			name:     "no successes uses default",
			history:  []domain.AttemptRecord{{TimeSpent: 100}, {TimeSpent: 200}},
			want:     600,
			wantAlts: [2]float64{300, 900},
		},
		{
			name: "mean of successes only",
			history: []domain.AttemptRecord{
				{TimeSpent: 400, Success: true},
				{TimeSpent: 5000},
				{TimeSpent: 800, Success: true},
			},
			want:     600,
			wantAlts: [2]float64{450, 750},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, alts := OptimalTime(tt.history)
			if got != tt.want {
				t.Errorf("OptimalTime() = %f; want %f", got, tt.want)
			}
			if alts != tt.wantAlts {
				t.Errorf("OptimalTime() alternatives = %v; want %v", alts, tt.wantAlts)
			}
		})
	}
}

func TestOptimalDifficulty(t *testing.T) {
	tests := []struct {
		name     string
		metrics  domain.LearningMetrics
		want     int
		wantAlts [2]int
	}{
		{"strong retention nudges up", domain.LearningMetrics{Difficulty: 3, RetentionScore: 0.9, ConsistencyScore: 0.8}, 4, [2]int{3, 5}},
		{"neutral", domain.LearningMetrics{Difficulty: 3, RetentionScore: 0.5, ConsistencyScore: 0.5}, 3, [2]int{2, 4}},
		{"weak retention nudges down", domain.LearningMetrics{Difficulty: 2.2, RetentionScore: 0.3, ConsistencyScore: 0.5}, 2, [2]int{1, 3}},
		{"clamped at floor", domain.LearningMetrics{Difficulty: 1, RetentionScore: 0.1, ConsistencyScore: 0.1}, 1, [2]int{1, 2}},
		{"clamped at ceiling", domain.LearningMetrics{Difficulty: 5, RetentionScore: 0.9, ConsistencyScore: 0.9}, 5, [2]int{4, 5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, alts := OptimalDifficulty(tt.metrics)
			if got != tt.want {
				t.Errorf("OptimalDifficulty() = %d; want %d", got, tt.want)
			}
			if alts != tt.wantAlts {
				t.Errorf("OptimalDifficulty() alternatives = %v; want %v", alts, tt.wantAlts)
			}
		})
	}
}

func TestOptimalAttempts(t *testing.T) {
	tests := []struct {
		successRate float64
		want        int
	}{
		{0, 5},
		{0.5, 4},
		{0.8, 3},
		{1, 2},
	}

	for _, tt := range tests {
		if got := OptimalAttempts(tt.successRate); got != tt.want {
			t.Errorf("OptimalAttempts(%v) = %d; want %d", tt.successRate, got, tt.want)
		}
	}
}

func TestReviewInterval(t *testing.T) {
	m := domain.LearningMetrics{SuccessRate: 1, RetentionScore: 1, ConsistencyScore: 1}

	if got := ReviewInterval(3, m); got != 6 {
		t.Errorf("ReviewInterval() = %f; want 6", got)
	}
}

func TestNextReview_Clamped(t *testing.T) {
	e := newTestEngine()

	tests := []struct {
		name        string
		repetitions int
		metrics     domain.LearningMetrics
		wantDays    int
	}{
		{"long history caps at thirty days", 100, domain.LearningMetrics{SuccessRate: 1, RetentionScore: 1}, 30},
		{"no performance floors at one day", 5, domain.LearningMetrics{}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for i := 0; i < 20; i++ {
				got := e.nextReview(tt.repetitions, tt.metrics, baseTime)
				if want := baseTime.AddDate(0, 0, tt.wantDays); !got.Equal(want) {
					t.Fatalf("nextReview() = %v; want %v", got, want)
				}
			}
		})
	}
}

func TestNextReview_JitterBounded(t *testing.T) {
	e := newTestEngine()
	m := domain.LearningMetrics{SuccessRate: 1, RetentionScore: 1}

	// base 2^3 = 8 days, jitter keeps it within [7.2, 8.8]
	for i := 0; i < 100; i++ {
		days := e.nextReview(4, m, baseTime).Sub(baseTime).Hours() / 24
		if days < 7 || days > 9 {
			t.Fatalf("review in %.0f days; want 7 to 9", days)
		}
	}
}

func TestConfidence(t *testing.T) {
	p := patternWith("algebra", true, true, true)
	p.Metrics.ConsistencyScore = 0.5

	got := Confidence(p, DefaultMinDataPoints, baseTime)
	if math.Abs(got-0.875) > 1e-9 {
		t.Errorf("Confidence() = %f; want 0.875", got)
	}

	later := Confidence(p, DefaultMinDataPoints, baseTime.AddDate(0, 0, 10))
	if later >= got {
		t.Errorf("Confidence() after ten days = %f; want below %f", later, got)
	}
}
