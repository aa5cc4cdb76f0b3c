// Package client talks to a running pacer daemon over its HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/felixgeelhaar/fortify/retry"
	"github.com/google/uuid"

	"github.com/felixgeelhaar/pacer/internal/domain"
	"github.com/felixgeelhaar/pacer/internal/roadmap"
	"github.com/felixgeelhaar/pacer/internal/scheduler"
)

// DefaultBaseURL is the daemon's default listen address
const DefaultBaseURL = "http://127.0.0.1:7433"

// APIError is a non-2xx response from the daemon
type APIError struct {
	StatusCode int    `json:"status"`
	Message    string `json:"error"`
	Details    string `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s (%d): %s", e.Message, e.StatusCode, e.Details)
	}
	return fmt.Sprintf("%s (%d)", e.Message, e.StatusCode)
}

// Unwrap maps the status code back onto the domain error it came from
func (e *APIError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusBadRequest:
		return domain.ErrInvalidInput
	case http.StatusNotFound:
		return domain.ErrNotFound
	case http.StatusConflict:
		return domain.ErrTopicLocked
	default:
		return nil
	}
}

// Client is a pacer daemon client
type Client struct {
	baseURL string
	http    *http.Client
	retrier retry.Retry[[]byte]
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// New creates a client for the daemon at baseURL
func New(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 60 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}

	// Reads are idempotent and retried while the daemon restarts
	c.retrier = retry.New[[]byte](retry.Config{
		MaxAttempts:   3,
		InitialDelay:  100 * time.Millisecond,
		MaxDelay:      time.Second,
		Multiplier:    2.0,
		BackoffPolicy: retry.BackoffExponential,
		Jitter:        true,
		IsRetryable: func(err error) bool {
			var apiErr *APIError
			if errors.As(err, &apiErr) {
				return apiErr.StatusCode >= 500
			}
			return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
		},
	})
	return c
}

// BaseURL returns the daemon address
func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) do(ctx context.Context, method, path string, data any) ([]byte, error) {
	var body io.Reader
	if data != nil {
		jsonData, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal data: %w", err)
		}
		body = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if data != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if json.Unmarshal(respBody, apiErr) != nil || apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(string(respBody))
		}
		apiErr.StatusCode = resp.StatusCode
		return nil, apiErr
	}

	return respBody, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	data, err := c.retrier.Do(ctx, func(ctx context.Context) ([]byte, error) {
		return c.do(ctx, http.MethodGet, path, nil)
	})
	if err != nil {
		return err
	}
	return decode(data, out)
}

func (c *Client) post(ctx context.Context, path string, in, out any) error {
	data, err := c.do(ctx, http.MethodPost, path, in)
	if err != nil {
		return err
	}
	return decode(data, out)
}

func decode(data []byte, out any) error {
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	return nil
}

func topicPath(topic string, suffix string) string {
	return "/v1/topics/" + url.PathEscape(topic) + suffix
}

// Status is the daemon's /v1/status payload
type Status struct {
	Status        string `json:"status"`
	Version       string `json:"version"`
	Uptime        string `json:"uptime"`
	TopicsTracked int    `json:"topics_tracked"`
	Storage       string `json:"storage"`
	Lock          string `json:"lock"`
	Queue         bool   `json:"queue"`
	SchemaVersion int    `json:"schema_version,omitempty"`
}

// Attempt is a practice attempt for a known topic
type Attempt struct {
	TimeSpent     float64  `json:"time_spent"` // seconds
	Success       bool     `json:"success"`
	RelatedTopics []string `json:"related_topics,omitempty"`
	Prerequisites []string `json:"prerequisites,omitempty"`
}

// AttemptResult is the daemon's answer to a recorded attempt
type AttemptResult struct {
	Topic    string                   `json:"topic"`
	Strategy *domain.AdaptiveStrategy `json:"strategy"`
	Insights []domain.LearningInsight `json:"insights"`
	Metrics  domain.LearningMetrics   `json:"metrics"`
}

// Healthy reports whether the daemon answers its health check
func (c *Client) Healthy(ctx context.Context) bool {
	_, err := c.do(ctx, http.MethodGet, "/v1/health", nil)
	return err == nil
}

// Status returns daemon status
func (c *Client) Status(ctx context.Context) (*Status, error) {
	var out Status
	if err := c.get(ctx, "/v1/status", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Config returns the daemon's effective configuration
func (c *Client) Config(ctx context.Context) (map[string]any, error) {
	var out map[string]any
	if err := c.get(ctx, "/v1/config", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// RecordAttempt records an attempt and returns the topic's new strategy
func (c *Client) RecordAttempt(ctx context.Context, topic string, a Attempt) (*AttemptResult, error) {
	var out AttemptResult
	if err := c.post(ctx, topicPath(topic, "/attempts"), a, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// TopicDetail is a topic's learning pattern and current strategy
type TopicDetail struct {
	Pattern  *domain.LearningPattern  `json:"pattern"`
	Strategy *domain.AdaptiveStrategy `json:"strategy"`
}

// Topic returns a tracked topic's pattern
func (c *Client) Topic(ctx context.Context, topic string) (*TopicDetail, error) {
	var out TopicDetail
	if err := c.get(ctx, topicPath(topic, ""), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Recommendations returns the topic's strategy and insights
func (c *Client) Recommendations(ctx context.Context, topic string) (*scheduler.Recommendations, error) {
	var out scheduler.Recommendations
	if err := c.get(ctx, topicPath(topic, "/recommendations"), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// MissingPrerequisites lists prerequisites the topic still lacks
func (c *Client) MissingPrerequisites(ctx context.Context, topic string) ([]string, error) {
	var out struct {
		Missing []string `json:"missing"`
	}
	if err := c.get(ctx, topicPath(topic, "/prerequisites/missing"), &out); err != nil {
		return nil, err
	}
	return out.Missing, nil
}

// Topics lists tracked topics
func (c *Client) Topics(ctx context.Context) ([]string, error) {
	var out struct {
		Topics []string `json:"topics"`
	}
	if err := c.get(ctx, "/v1/topics", &out); err != nil {
		return nil, err
	}
	return out.Topics, nil
}

// Overview returns aggregate analytics
func (c *Client) Overview(ctx context.Context) (*scheduler.Overview, error) {
	var out scheduler.Overview
	if err := c.get(ctx, "/v1/analytics/overview", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Sequence orders topics without storing a roadmap
func (c *Client) Sequence(ctx context.Context, topics []domain.RoadmapTopic) (*roadmap.Result, error) {
	var out roadmap.Result
	in := map[string]any{"topics": topics}
	if err := c.post(ctx, "/v1/roadmaps/sequence", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateRoadmap sequences and stores a roadmap
func (c *Client) CreateRoadmap(ctx context.Context, title string, topics []domain.RoadmapTopic) (*domain.Roadmap, error) {
	var out struct {
		Roadmap *domain.Roadmap `json:"roadmap"`
	}
	in := map[string]any{"title": title, "topics": topics}
	if err := c.post(ctx, "/v1/roadmaps", in, &out); err != nil {
		return nil, err
	}
	return out.Roadmap, nil
}

// Roadmap returns a stored roadmap
func (c *Client) Roadmap(ctx context.Context, id uuid.UUID) (*domain.Roadmap, error) {
	var out domain.Roadmap
	if err := c.get(ctx, "/v1/roadmaps/"+id.String(), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Roadmaps lists stored roadmaps, newest first
func (c *Client) Roadmaps(ctx context.Context) ([]*domain.Roadmap, error) {
	var out struct {
		Roadmaps []*domain.Roadmap `json:"roadmaps"`
	}
	if err := c.get(ctx, "/v1/roadmaps", &out); err != nil {
		return nil, err
	}
	return out.Roadmaps, nil
}

// Resequence reorders a stored roadmap against current performance
func (c *Client) Resequence(ctx context.Context, id uuid.UUID) (*domain.Roadmap, error) {
	var out struct {
		Roadmap *domain.Roadmap `json:"roadmap"`
	}
	if err := c.post(ctx, "/v1/roadmaps/"+id.String()+"/resequence", nil, &out); err != nil {
		return nil, err
	}
	return out.Roadmap, nil
}
