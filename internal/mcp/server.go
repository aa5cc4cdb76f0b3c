package mcp

import (
	"context"
	"fmt"
	"strings"

	mcp "github.com/felixgeelhaar/mcp-go"
	"github.com/felixgeelhaar/mcp-go/server"

	"github.com/felixgeelhaar/pacer/internal/client"
	"github.com/felixgeelhaar/pacer/internal/domain"
	"github.com/felixgeelhaar/pacer/internal/roadmap"
	"github.com/felixgeelhaar/pacer/internal/scheduler"
)

// Backend is the subset of the daemon API the tools need. *client.Client
// satisfies it.
type Backend interface {
	RecordAttempt(ctx context.Context, topic string, a client.Attempt) (*client.AttemptResult, error)
	Recommendations(ctx context.Context, topic string) (*scheduler.Recommendations, error)
	Sequence(ctx context.Context, topics []domain.RoadmapTopic) (*roadmap.Result, error)
	Overview(ctx context.Context) (*scheduler.Overview, error)
}

// Server wraps the MCP server with pacer tools
type Server struct {
	mcpServer *server.Server
	backend   Backend
}

// Config contains configuration for the MCP server
type Config struct {
	Backend Backend
	Version string
}

// NewServer creates a new MCP server for pacer
func NewServer(cfg Config) *Server {
	s := &Server{backend: cfg.Backend}

	version := cfg.Version
	if version == "" {
		version = "0.1.0"
	}

	s.mcpServer = server.New(server.Info{
		Name:    "pacer",
		Version: version,
	}, server.WithInstructions(`
Pacer schedules practice. It tracks attempts per topic, derives an adaptive
study strategy once a topic has enough history, and orders roadmaps so that
weak topics do not block the ones after them.

Available tools:
- pacer_record_attempt: Record a practice attempt and get the updated strategy
- pacer_recommendations: Get the current strategy and insights for a topic
- pacer_sequence_roadmap: Order a set of topics into a study sequence
- pacer_overview: Get statistics across all tracked topics
`))

	s.registerTools()

	return s
}

// registerTools registers all pacer MCP tools
func (s *Server) registerTools() {
	s.mcpServer.Tool("pacer_record_attempt").
		Description("Record a practice attempt for a topic. Returns the topic's updated strategy once enough attempts exist.").
		Handler(s.handleRecordAttempt)

	s.mcpServer.Tool("pacer_recommendations").
		Description("Get the recommended session length, attempt count, difficulty and next review date for a topic.").
		Handler(s.handleRecommendations)

	s.mcpServer.Tool("pacer_sequence_roadmap").
		Description("Order topics into a study sequence using recorded performance.").
		Handler(s.handleSequence)

	s.mcpServer.Tool("pacer_overview").
		Description("Get practice statistics across all tracked topics.").
		Handler(s.handleOverview)
}

// Input/Output types for tools

type RecordAttemptInput struct {
	Topic         string   `json:"topic" jsonschema:"description=Topic identifier"`
	Minutes       float64  `json:"minutes" jsonschema:"description=Time spent on the attempt in minutes"`
	Success       bool     `json:"success" jsonschema:"description=Whether the attempt succeeded"`
	RelatedTopics []string `json:"related_topics,omitempty" jsonschema:"description=Topics related to this one"`
	Prerequisites []string `json:"prerequisites,omitempty" jsonschema:"description=Topics that should be learned first"`
}

type StrategyOutput struct {
	Topic               string   `json:"topic"`
	Ready               bool     `json:"ready"`
	SessionMinutes      float64  `json:"session_minutes,omitempty"`
	RecommendedAttempts int      `json:"recommended_attempts,omitempty"`
	SuggestedDifficulty int      `json:"suggested_difficulty,omitempty"`
	NextReview          string   `json:"next_review,omitempty"`
	Confidence          float64  `json:"confidence,omitempty"`
	Insights            []string `json:"insights"`
	Message             string   `json:"message"`
}

type TopicInput struct {
	Topic string `json:"topic" jsonschema:"description=Topic identifier"`
}

type SequenceInput struct {
	Topics []string `json:"topics" jsonschema:"description=Topic identifiers to order"`
}

type SequenceOutput struct {
	Order        []string `json:"order"`
	Fitness      float64  `json:"fitness"`
	Generations  int      `json:"generations"`
	StoppedEarly bool     `json:"stopped_early"`
}

type OverviewInput struct{}

type OverviewOutput struct {
	TopicsTracked      int      `json:"topics_tracked"`
	TotalAttempts      int      `json:"total_attempts"`
	TotalTimeSpent     string   `json:"total_time_spent"`
	AverageSuccessRate float64  `json:"average_success_rate"`
	DueForReview       []string `json:"due_for_review"`
	Summary            string   `json:"summary"`
}

// Tool handlers

func (s *Server) handleRecordAttempt(ctx context.Context, input RecordAttemptInput) (StrategyOutput, error) {
	if s.backend == nil {
		return StrategyOutput{}, fmt.Errorf("pacer daemon is not configured")
	}
	if strings.TrimSpace(input.Topic) == "" {
		return StrategyOutput{}, fmt.Errorf("topic is required")
	}

	res, err := s.backend.RecordAttempt(ctx, input.Topic, client.Attempt{
		TimeSpent:     input.Minutes * 60,
		Success:       input.Success,
		RelatedTopics: input.RelatedTopics,
		Prerequisites: input.Prerequisites,
	})
	if err != nil {
		return StrategyOutput{}, fmt.Errorf("failed to record attempt: %w", err)
	}

	out := strategyOutput(res.Topic, res.Strategy, res.Insights)
	if !out.Ready {
		out.Message = fmt.Sprintf("Recorded attempt %d for %s. More attempts are needed before a strategy is available.",
			res.Metrics.Attempts, res.Topic)
	}
	return out, nil
}

func (s *Server) handleRecommendations(ctx context.Context, input TopicInput) (StrategyOutput, error) {
	if s.backend == nil {
		return StrategyOutput{}, fmt.Errorf("pacer daemon is not configured")
	}
	if strings.TrimSpace(input.Topic) == "" {
		return StrategyOutput{}, fmt.Errorf("topic is required")
	}

	recs, err := s.backend.Recommendations(ctx, input.Topic)
	if err != nil {
		return StrategyOutput{}, fmt.Errorf("failed to get recommendations: %w", err)
	}

	out := strategyOutput(input.Topic, recs.Strategy, recs.Insights)
	if !out.Ready {
		out.Message = fmt.Sprintf("No strategy for %s yet. Record more attempts first.", input.Topic)
	}
	return out, nil
}

func (s *Server) handleSequence(ctx context.Context, input SequenceInput) (SequenceOutput, error) {
	if s.backend == nil {
		return SequenceOutput{}, fmt.Errorf("pacer daemon is not configured")
	}

	topics := make([]domain.RoadmapTopic, len(input.Topics))
	for i, id := range input.Topics {
		topics[i] = domain.RoadmapTopic{ID: id, Title: id}
	}

	result, err := s.backend.Sequence(ctx, topics)
	if err != nil {
		return SequenceOutput{}, fmt.Errorf("failed to sequence roadmap: %w", err)
	}

	order := make([]string, len(result.Topics))
	for i, t := range result.Topics {
		order[i] = t.ID
	}
	return SequenceOutput{
		Order:        order,
		Fitness:      result.Fitness,
		Generations:  result.Generations,
		StoppedEarly: result.StoppedEarly,
	}, nil
}

func (s *Server) handleOverview(ctx context.Context, input OverviewInput) (OverviewOutput, error) {
	if s.backend == nil {
		return OverviewOutput{}, fmt.Errorf("pacer daemon is not configured")
	}

	overview, err := s.backend.Overview(ctx)
	if err != nil {
		return OverviewOutput{}, fmt.Errorf("failed to get overview: %w", err)
	}

	return OverviewOutput{
		TopicsTracked:      overview.TopicsTracked,
		TotalAttempts:      overview.TotalAttempts,
		TotalTimeSpent:     overview.TotalTimeSpent,
		AverageSuccessRate: overview.AverageSuccessRate,
		DueForReview:       overview.DueForReview,
		Summary: fmt.Sprintf("%d topics, %d attempts, %.0f%% average success, %d due for review",
			overview.TopicsTracked, overview.TotalAttempts, overview.AverageSuccessRate*100, len(overview.DueForReview)),
	}, nil
}

func strategyOutput(topic string, st *domain.AdaptiveStrategy, insights []domain.LearningInsight) StrategyOutput {
	out := StrategyOutput{Topic: topic, Insights: make([]string, 0, len(insights))}
	for _, in := range insights {
		out.Insights = append(out.Insights, in.Message)
	}
	if st == nil {
		return out
	}

	out.Ready = true
	out.SessionMinutes = st.RecommendedTimePerSession / 60
	out.RecommendedAttempts = st.RecommendedAttempts
	out.SuggestedDifficulty = st.SuggestedDifficulty
	out.NextReview = st.NextReviewDate.Format("2006-01-02")
	out.Confidence = st.ConfidenceScore
	out.Message = fmt.Sprintf("Practise %s for about %.0f minutes, %d attempts at difficulty %d. Next review %s.",
		topic, out.SessionMinutes, out.RecommendedAttempts, out.SuggestedDifficulty, out.NextReview)
	return out
}

// ServeStdio starts the MCP server on stdio
func (s *Server) ServeStdio(ctx context.Context) error {
	return mcp.ServeStdio(ctx, s.mcpServer)
}

// ServeHTTP starts the MCP server on HTTP (alternative transport)
func (s *Server) ServeHTTP(ctx context.Context, addr string) error {
	return mcp.ServeHTTP(ctx, s.mcpServer, addr)
}

// GetMCPServer returns the underlying MCP server (for testing)
func (s *Server) GetMCPServer() *server.Server {
	return s.mcpServer
}
