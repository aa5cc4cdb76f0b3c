// Package roadmap orders a roadmap's topics with a genetic algorithm whose
// fitness rewards strong, cheap topics and penalises placing a topic right
// after a weak one.
package roadmap

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"slices"
	"sync"
	"time"

	"github.com/felixgeelhaar/pacer/internal/domain"
)

// Fitness weights
const (
	successWeight       = 0.4
	timeWeight          = 0.2
	attemptsWeight      = 0.2
	attemptsScale       = 10.0
	weakPredecessorCost = 0.3
	masteryThreshold    = 0.7
)

// Config holds the genetic algorithm parameters
type Config struct {
	PopulationSize   int     `yaml:"population_size" json:"population_size"`
	MutationRate     float64 `yaml:"mutation_rate" json:"mutation_rate"`
	CrossoverRate    float64 `yaml:"crossover_rate" json:"crossover_rate"`
	ElitismCount     int     `yaml:"elitism_count" json:"elitism_count"`
	MaxGenerations   int     `yaml:"max_generations" json:"max_generations"`
	TournamentSize   int     `yaml:"tournament_size" json:"tournament_size"`
	PlateauThreshold float64 `yaml:"plateau_threshold" json:"plateau_threshold"`
	PlateauAfter     int     `yaml:"plateau_after" json:"plateau_after"`
}

// DefaultConfig returns the default GA parameters
func DefaultConfig() Config {
	return Config{
		PopulationSize:   50,
		MutationRate:     0.1,
		CrossoverRate:    0.8,
		ElitismCount:     2,
		MaxGenerations:   100,
		TournamentSize:   5,
		PlateauThreshold: 0.01,
		PlateauAfter:     10,
	}
}

// Validate checks the parameters
func (c Config) Validate() error {
	if c.PopulationSize < 1 {
		return fmt.Errorf("%w: population size must be positive", domain.ErrInvalidInput)
	}
	if c.MutationRate < 0 || c.MutationRate > 1 {
		return fmt.Errorf("%w: mutation rate must be within [0,1]", domain.ErrInvalidInput)
	}
	if c.CrossoverRate < 0 || c.CrossoverRate > 1 {
		return fmt.Errorf("%w: crossover rate must be within [0,1]", domain.ErrInvalidInput)
	}
	if c.ElitismCount < 0 || c.ElitismCount >= c.PopulationSize {
		return fmt.Errorf("%w: elitism count must be within [0, population size)", domain.ErrInvalidInput)
	}
	if c.MaxGenerations < 1 {
		return fmt.Errorf("%w: max generations must be positive", domain.ErrInvalidInput)
	}
	if c.TournamentSize < 1 {
		return fmt.Errorf("%w: tournament size must be positive", domain.ErrInvalidInput)
	}
	if c.PlateauThreshold < 0 || c.PlateauAfter < 0 {
		return fmt.Errorf("%w: plateau settings must not be negative", domain.ErrInvalidInput)
	}
	return nil
}

// Result is the outcome of a sequencing run
type Result struct {
	Topics            []domain.RoadmapTopic `json:"topics"`
	Fitness           float64               `json:"fitness"`
	Generations       int                   `json:"generations"`
	BestPerGeneration []float64             `json:"best_per_generation"`
	StoppedEarly      bool                  `json:"stopped_early"`
}

// chromosome is a candidate ordering: a permutation of topic indices
type chromosome struct {
	genes   []int
	fitness float64
}

// Sequencer runs the genetic algorithm. Each run draws its own random
// source, so a Sequencer is safe for concurrent use.
type Sequencer struct {
	cfg    Config
	logger *slog.Logger

	mu   sync.Mutex // guards seed
	seed *rand.Rand
}

// Option configures a Sequencer
type Option func(*Sequencer)

// WithRand sets the source that seeds each run
func WithRand(rng *rand.Rand) Option {
	return func(s *Sequencer) {
		if rng != nil {
			s.seed = rng
		}
	}
}

// WithSeed makes runs reproducible
func WithSeed(seed int64) Option {
	return WithRand(rand.New(rand.NewSource(seed)))
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Sequencer) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewSequencer creates a sequencer with a validated config
func NewSequencer(cfg Config, opts ...Option) (*Sequencer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Sequencer{
		cfg:    cfg,
		logger: slog.Default(),
		seed:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Config returns the sequencer's parameters
func (s *Sequencer) Config() Config {
	return s.cfg
}

func (s *Sequencer) newRunRand() *rand.Rand {
	s.mu.Lock()
	defer s.mu.Unlock()
	return rand.New(rand.NewSource(s.seed.Int63()))
}

// Sequence searches for a high-fitness ordering of topics. Topics without a
// performance entry contribute nothing to fitness. Cancellation is checked
// between generations; on cancellation the best ordering found so far is
// returned together with the context error.
func (s *Sequencer) Sequence(ctx context.Context, topics []domain.RoadmapTopic, performances map[string]domain.TopicPerformance) (*Result, error) {
	topics, err := domain.NormalizeTopics(topics)
	if err != nil {
		return nil, err
	}

	run := &run{
		cfg:    s.cfg,
		rng:    s.newRunRand(),
		topics: topics,
		perf:   performances,
	}
	result, err := run.evolve(ctx)
	if err != nil {
		s.logger.Warn("sequencing interrupted",
			"topics", len(topics),
			"generations", result.Generations,
			"error", err)
		return result, err
	}

	s.logger.Debug("sequencing complete",
		"topics", len(topics),
		"generations", result.Generations,
		"fitness", result.Fitness,
		"stopped_early", result.StoppedEarly)
	return result, nil
}

// run holds the state of one GA execution
type run struct {
	cfg    Config
	rng    *rand.Rand
	topics []domain.RoadmapTopic
	perf   map[string]domain.TopicPerformance
}

func (r *run) evolve(ctx context.Context) (*Result, error) {
	population := r.initialPopulation()
	result := &Result{BestPerGeneration: make([]float64, 0, r.cfg.MaxGenerations)}

	for gen := 0; gen < r.cfg.MaxGenerations; gen++ {
		if err := ctx.Err(); err != nil {
			r.sortByFitness(population)
			r.fill(result, population[0])
			return result, err
		}

		r.sortByFitness(population)
		result.BestPerGeneration = append(result.BestPerGeneration, population[0].fitness)
		result.Generations = gen + 1

		if gen > r.cfg.PlateauAfter && r.plateaued(population) {
			result.StoppedEarly = true
			break
		}

		next := make([]chromosome, 0, r.cfg.PopulationSize)
		for i := 0; i < r.cfg.ElitismCount; i++ {
			next = append(next, chromosome{genes: slices.Clone(population[i].genes), fitness: population[i].fitness})
		}
		for len(next) < r.cfg.PopulationSize {
			p1 := r.tournament(population)
			p2 := r.tournament(population)

			var genes []int
			if r.rng.Float64() < r.cfg.CrossoverRate {
				genes = crossover(p1.genes, p2.genes, r.rng.Intn(len(p1.genes)))
			} else {
				genes = slices.Clone(p1.genes)
			}
			if r.rng.Float64() < r.cfg.MutationRate {
				r.mutate(genes)
			}
			next = append(next, chromosome{genes: genes, fitness: r.fitness(genes)})
		}
		population = next
	}

	r.sortByFitness(population)
	r.fill(result, population[0])
	return result, nil
}

func (r *run) initialPopulation() []chromosome {
	population := make([]chromosome, r.cfg.PopulationSize)
	for i := range population {
		genes := r.rng.Perm(len(r.topics))
		population[i] = chromosome{genes: genes, fitness: r.fitness(genes)}
	}
	return population
}

// plateaued reports whether the best and the weakest elite are within the
// threshold of each other. Population must be sorted. Fewer than two elites
// give nothing to compare, so such runs never plateau.
func (r *run) plateaued(population []chromosome) bool {
	if r.cfg.ElitismCount < 2 {
		return false
	}
	weakest := r.cfg.ElitismCount - 1
	return population[0].fitness-population[weakest].fitness < r.cfg.PlateauThreshold
}

// tournament picks the fittest of TournamentSize draws with replacement
func (r *run) tournament(population []chromosome) chromosome {
	best := population[r.rng.Intn(len(population))]
	for i := 1; i < r.cfg.TournamentSize; i++ {
		c := population[r.rng.Intn(len(population))]
		if c.fitness > best.fitness {
			best = c
		}
	}
	return best
}

// crossover keeps parent1's genes before point and appends parent2's genes
// in order, skipping any already taken.
func crossover(parent1, parent2 []int, point int) []int {
	child := make([]int, 0, len(parent1))
	taken := make(map[int]bool, len(parent1))
	for _, g := range parent1[:point] {
		child = append(child, g)
		taken[g] = true
	}
	for _, g := range parent2 {
		if !taken[g] {
			child = append(child, g)
			taken[g] = true
		}
	}
	return child
}

// mutate swaps two random positions
func (r *run) mutate(genes []int) {
	i := r.rng.Intn(len(genes))
	j := r.rng.Intn(len(genes))
	genes[i], genes[j] = genes[j], genes[i]
}

func (r *run) sortByFitness(population []chromosome) {
	slices.SortStableFunc(population, func(a, b chromosome) int {
		switch {
		case a.fitness > b.fitness:
			return -1
		case a.fitness < b.fitness:
			return 1
		}
		return 0
	})
}

func (r *run) fitness(genes []int) float64 {
	return Fitness(r.order(genes), r.perf)
}

func (r *run) order(genes []int) []domain.RoadmapTopic {
	out := make([]domain.RoadmapTopic, len(genes))
	for i, g := range genes {
		out[i] = r.topics[g]
	}
	return out
}

func (r *run) fill(result *Result, best chromosome) {
	result.Topics = r.order(best.genes)
	result.Fitness = best.fitness
}

// Fitness scores an ordering. Each topic with a performance entry adds
// 0.4*successRate - 0.2*hours - 0.2*attempts/10, and costs 0.3 more when
// the topic right before it has an entry with success below 0.7.
func Fitness(order []domain.RoadmapTopic, performances map[string]domain.TopicPerformance) float64 {
	var total float64
	for i, t := range order {
		p, ok := performances[t.ID]
		if !ok {
			continue
		}
		total += successWeight*p.SuccessRate -
			timeWeight*p.CompletionTime.Hours() -
			attemptsWeight*float64(p.Attempts)/attemptsScale

		if i > 0 {
			if prev, ok := performances[order[i-1].ID]; ok && prev.SuccessRate < masteryThreshold {
				total -= weakPredecessorCost
			}
		}
	}
	return total
}
