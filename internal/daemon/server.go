package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/felixgeelhaar/fortify/ratelimit"
	"github.com/google/uuid"

	"github.com/felixgeelhaar/pacer/internal/config"
	"github.com/felixgeelhaar/pacer/internal/domain"
	"github.com/felixgeelhaar/pacer/internal/ledger"
	"github.com/felixgeelhaar/pacer/internal/metrics"
	"github.com/felixgeelhaar/pacer/internal/roadmap"
	"github.com/felixgeelhaar/pacer/internal/scheduler"
)

// Version is reported by /v1/status
const Version = "0.1.0"

const maxBodyBytes = 1 << 20

// Server represents the pacer daemon HTTP server
type Server struct {
	cfg     *config.LocalConfig
	server  *http.Server
	router  *http.ServeMux
	handler http.Handler

	scheduler *scheduler.Service
	roadmaps  *roadmap.Service
	metrics   *metrics.Metrics
	limiter   ratelimit.RateLimiter

	startedAt     time.Time
	schemaVersion int
}

// ServerConfig holds configuration for creating a new server
type ServerConfig struct {
	Config    *config.LocalConfig
	Scheduler *scheduler.Service
	Roadmaps  *roadmap.Service
	Metrics   *metrics.Metrics // nil disables request metrics

	// SchemaVersion is reported on /v1/status when the store is migrated
	SchemaVersion int
}

// NewServer creates a new daemon server
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Config == nil {
		return nil, errors.New("server config is required")
	}
	if cfg.Scheduler == nil || cfg.Roadmaps == nil {
		return nil, errors.New("scheduler and roadmap services are required")
	}

	s := &Server{
		cfg:       cfg.Config,
		router:    http.NewServeMux(),
		scheduler: cfg.Scheduler,
		roadmaps:  cfg.Roadmaps,
		metrics:   cfg.Metrics,
		startedAt: time.Now(),

		schemaVersion: cfg.SchemaVersion,
	}

	// Sequencing is CPU bound, so it gets a per-client budget
	if rpm := cfg.Config.Sequencer.RateLimitPerMinute; rpm > 0 {
		s.limiter = ratelimit.New(&ratelimit.Config{
			Rate:     rpm,
			Burst:    rpm,
			Interval: time.Minute,
		})
	}

	s.setupRoutes()

	s.handler = correlationIDMiddleware(recoveryMiddleware(loggingMiddleware(metricsMiddleware(s.metrics, s.router))))

	addr := net.JoinHostPort(cfg.Config.Daemon.Bind, fmt.Sprint(cfg.Config.Daemon.Port))
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s, nil
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	// Health & status
	s.router.HandleFunc("GET /v1/health", s.handleHealth)
	s.router.HandleFunc("GET /v1/status", s.handleStatus)
	s.router.HandleFunc("GET /v1/config", s.handleGetConfig)

	// Topics
	s.router.HandleFunc("GET /v1/topics", s.handleListTopics)
	s.router.HandleFunc("GET /v1/topics/{topic}", s.handleGetTopic)
	s.router.HandleFunc("POST /v1/topics/{topic}/attempts", s.handleRecordAttempt)
	s.router.HandleFunc("GET /v1/topics/{topic}/recommendations", s.handleRecommendations)
	s.router.HandleFunc("GET /v1/topics/{topic}/prerequisites/missing", s.handleMissingPrerequisites)

	// Analytics
	s.router.HandleFunc("GET /v1/analytics/overview", s.handleAnalyticsOverview)

	// Roadmaps
	s.router.HandleFunc("POST /v1/roadmaps/sequence", s.handleSequence)
	s.router.HandleFunc("POST /v1/roadmaps", s.handleCreateRoadmap)
	s.router.HandleFunc("GET /v1/roadmaps", s.handleListRoadmaps)
	s.router.HandleFunc("GET /v1/roadmaps/{id}", s.handleGetRoadmap)
	s.router.HandleFunc("POST /v1/roadmaps/{id}/resequence", s.handleResequence)

	if s.cfg.Metrics.Enabled {
		path := s.cfg.Metrics.Path
		if path == "" {
			path = "/metrics"
		}
		s.router.Handle("GET "+path, metrics.Handler())
	}
}

// Handler returns the server's full middleware chain
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start starts the HTTP server
func (s *Server) Start() error {
	slog.Info("starting pacer daemon",
		"addr", s.server.Addr,
		"storage", s.cfg.Storage.Driver,
		"lock", s.cfg.Lock.Driver,
		"queue", s.cfg.Queue.Enabled,
	)
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("shutting down daemon...")

	if s.limiter != nil {
		if err := s.limiter.Close(); err != nil {
			slog.Warn("failed to close rate limiter", "error", err)
		}
	}

	return s.server.Shutdown(ctx)
}

// Handler implementations

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"status":         "running",
		"version":        Version,
		"uptime":         time.Since(s.startedAt).Round(time.Second).String(),
		"topics_tracked": len(s.scheduler.Topics(r.Context())),
		"storage":        s.cfg.Storage.Driver,
		"lock":           s.cfg.Lock.Driver,
		"queue":          s.cfg.Queue.Enabled,
	}
	if s.schemaVersion > 0 {
		resp["schema_version"] = s.schemaVersion
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	// Connection strings and passwords stay out of the response
	writeJSON(w, http.StatusOK, map[string]any{
		"daemon":    s.cfg.Daemon,
		"scheduler": s.cfg.Scheduler,
		"sequencer": s.cfg.Sequencer,
		"storage":   map[string]any{"driver": s.cfg.Storage.Driver},
		"queue": map[string]any{
			"enabled": s.cfg.Queue.Enabled,
			"consume": s.cfg.Queue.Consume,
			"workers": s.cfg.Queue.Workers,
		},
		"lock": map[string]any{
			"driver":     s.cfg.Lock.Driver,
			"key_prefix": s.cfg.Lock.KeyPrefix,
		},
		"metrics": s.cfg.Metrics,
	})
}

func (s *Server) handleListTopics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"topics": s.scheduler.Topics(r.Context()),
	})
}

func (s *Server) handleGetTopic(w http.ResponseWriter, r *http.Request) {
	topic := r.PathValue("topic")

	pattern, err := s.scheduler.Pattern(r.Context(), topic)
	if err != nil {
		writeError(w, "failed to get topic", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"pattern":  pattern,
		"strategy": s.scheduler.Strategy(topic),
	})
}

// attemptRequest is the body of POST /v1/topics/{topic}/attempts
type attemptRequest struct {
	TimeSpent     *float64 `json:"time_spent"` // seconds
	Success       bool     `json:"success"`
	RelatedTopics []string `json:"related_topics"`
	Prerequisites []string `json:"prerequisites"`
}

func (s *Server) handleRecordAttempt(w http.ResponseWriter, r *http.Request) {
	var req attemptRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, "invalid request body", err)
		return
	}
	if req.TimeSpent == nil {
		writeError(w, "invalid request body", fmt.Errorf("%w: time_spent is required", domain.ErrInvalidInput))
		return
	}

	topic := r.PathValue("topic")
	recs, err := s.scheduler.RecordAttempt(r.Context(), ledger.Attempt{
		TopicID:       topic,
		TimeSpent:     *req.TimeSpent,
		Success:       req.Success,
		RelatedTopics: req.RelatedTopics,
		Prerequisites: req.Prerequisites,
	})
	if err != nil {
		writeError(w, "failed to record attempt", err)
		return
	}

	response := map[string]any{
		"topic":    strings.TrimSpace(topic),
		"strategy": recs.Strategy,
		"insights": recs.Insights,
	}
	if pattern, err := s.scheduler.Pattern(r.Context(), strings.TrimSpace(topic)); err == nil {
		response["metrics"] = pattern.Metrics
	}
	writeJSON(w, http.StatusCreated, response)
}

func (s *Server) handleRecommendations(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.scheduler.GetRecommendations(r.Context(), r.PathValue("topic")))
}

func (s *Server) handleMissingPrerequisites(w http.ResponseWriter, r *http.Request) {
	topic := r.PathValue("topic")

	missing, err := s.scheduler.MissingPrerequisites(r.Context(), topic)
	if err != nil {
		writeError(w, "failed to check prerequisites", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"topic":   topic,
		"missing": missing,
	})
}

func (s *Server) handleAnalyticsOverview(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.scheduler.Overview(r.Context()))
}

// roadmapRequest is the body of the roadmap endpoints
type roadmapRequest struct {
	Title  string                `json:"title"`
	Topics []domain.RoadmapTopic `json:"topics"`
}

func (s *Server) handleSequence(w http.ResponseWriter, r *http.Request) {
	if s.limiter != nil && !s.limiter.Allow(r.Context(), clientKey(r)) {
		writeJSON(w, http.StatusTooManyRequests, errorBody{
			Error:  "sequencing rate limit exceeded",
			Status: http.StatusTooManyRequests,
		})
		return
	}

	var req roadmapRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, "invalid request body", err)
		return
	}

	result, err := s.roadmaps.Sequence(r.Context(), req.Topics)
	if err != nil {
		writeError(w, "failed to sequence roadmap", err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleCreateRoadmap(w http.ResponseWriter, r *http.Request) {
	var req roadmapRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, "invalid request body", err)
		return
	}

	rm, result, err := s.roadmaps.Create(r.Context(), req.Title, req.Topics)
	if err != nil {
		writeError(w, "failed to create roadmap", err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"roadmap":       rm,
		"stopped_early": result.StoppedEarly,
	})
}

func (s *Server) handleListRoadmaps(w http.ResponseWriter, r *http.Request) {
	roadmaps, err := s.roadmaps.List(r.Context())
	if err != nil {
		writeError(w, "failed to list roadmaps", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"roadmaps": roadmaps,
	})
}

func (s *Server) handleGetRoadmap(w http.ResponseWriter, r *http.Request) {
	id, err := roadmapID(r)
	if err != nil {
		writeError(w, "invalid roadmap id", err)
		return
	}

	rm, err := s.roadmaps.Get(r.Context(), id)
	if err != nil {
		writeError(w, "failed to get roadmap", err)
		return
	}

	writeJSON(w, http.StatusOK, rm)
}

func (s *Server) handleResequence(w http.ResponseWriter, r *http.Request) {
	if s.limiter != nil && !s.limiter.Allow(r.Context(), clientKey(r)) {
		writeJSON(w, http.StatusTooManyRequests, errorBody{
			Error:  "sequencing rate limit exceeded",
			Status: http.StatusTooManyRequests,
		})
		return
	}

	id, err := roadmapID(r)
	if err != nil {
		writeError(w, "invalid roadmap id", err)
		return
	}

	rm, result, err := s.roadmaps.Resequence(r.Context(), id)
	if err != nil {
		writeError(w, "failed to resequence roadmap", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"roadmap":       rm,
		"stopped_early": result.StoppedEarly,
	})
}

// Helper methods

func roadmapID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	return id, nil
}

// decodeBody decodes a bounded JSON request body. Decode failures are
// reported as invalid input.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	return nil
}

type errorBody struct {
	Error   string `json:"error"`
	Status  int    `json:"status"`
	Details string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

// writeError maps domain errors onto HTTP status codes
func writeError(w http.ResponseWriter, message string, err error) {
	status := statusFor(err)
	body := errorBody{Error: message, Status: status}
	if err != nil {
		body.Details = err.Error()
	}
	if status >= 500 {
		slog.Error(message, "error", err)
	}
	writeJSON(w, status, body)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrTopicLocked):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
