// Package workflow talks to the external workflow engine that schedules
// subscription renewal reminders.
package workflow

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"
)

var (
	// ErrTriggerFailed is returned when the engine rejects or fails a trigger.
	ErrTriggerFailed = errors.New("workflow trigger failed")
	// ErrCircuitOpen is returned while the breaker is refusing calls.
	ErrCircuitOpen = errors.New("workflow circuit breaker is open")
	// ErrTriggerDisabled is returned when no trigger endpoint is configured.
	ErrTriggerDisabled = errors.New("workflow trigger is not configured")
)

// TriggerRequest asks the engine to start a workflow that calls URL back
// with Body.
type TriggerRequest struct {
	URL     string            `json:"url"`
	Body    any               `json:"body"`
	Headers map[string]string `json:"headers"`
	Retries int               `json:"retries"`
}

// Client starts workflow runs.
type Client interface {
	Trigger(ctx context.Context, req TriggerRequest) (string, error)
}

// ClientConfig configures HTTPClient.
type ClientConfig struct {
	TriggerURL      string
	Token           string
	Timeout         time.Duration
	BreakerFailures uint32
	BreakerTimeout  time.Duration
	BreakerHalfOpen uint32
	BreakerInterval time.Duration
}

// HTTPClient posts trigger requests to the engine's HTTP endpoint through a
// circuit breaker.
type HTTPClient struct {
	config  ClientConfig
	http    *http.Client
	breaker *gobreaker.CircuitBreaker[string]
	logger  *slog.Logger
}

// NewHTTPClient creates a trigger client. A nil httpClient gets one with
// config.Timeout.
func NewHTTPClient(config ClientConfig, httpClient *http.Client, logger *slog.Logger) *HTTPClient {
	if logger == nil {
		logger = slog.Default()
	}
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}
	if config.BreakerFailures == 0 {
		config.BreakerFailures = 5
	}
	if config.BreakerTimeout <= 0 {
		config.BreakerTimeout = 30 * time.Second
	}
	if config.BreakerHalfOpen == 0 {
		config.BreakerHalfOpen = 1
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: config.Timeout}
	}

	logger = logger.With("component", "workflow_client")
	settings := gobreaker.Settings{
		Name:        "workflow-trigger",
		MaxRequests: config.BreakerHalfOpen,
		Interval:    config.BreakerInterval,
		Timeout:     config.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= config.BreakerFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	}

	return &HTTPClient{
		config:  config,
		http:    httpClient,
		breaker: gobreaker.NewCircuitBreaker[string](settings),
		logger:  logger,
	}
}

// Trigger starts a workflow run and returns its id.
func (c *HTTPClient) Trigger(ctx context.Context, req TriggerRequest) (string, error) {
	if c.config.TriggerURL == "" {
		return "", ErrTriggerDisabled
	}

	runID, err := c.breaker.Execute(func() (string, error) {
		return c.post(ctx, req)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return "", ErrCircuitOpen
	}
	return runID, err
}

// State reports the breaker state.
func (c *HTTPClient) State() gobreaker.State {
	return c.breaker.State()
}

type triggerResponse struct {
	WorkflowRunID string `json:"workflowRunId"`
}

func (c *HTTPClient) post(ctx context.Context, req TriggerRequest) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("encode trigger request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.TriggerURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build trigger request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.config.Token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.config.Token)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTriggerFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("%w: status %d: %s", ErrTriggerFailed, resp.StatusCode, bytes.TrimSpace(snippet))
	}

	var out triggerResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("%w: decode response: %v", ErrTriggerFailed, err)
	}
	if out.WorkflowRunID == "" {
		return "", fmt.Errorf("%w: response has no workflowRunId", ErrTriggerFailed)
	}

	c.logger.DebugContext(ctx, "workflow triggered",
		"workflow_run_id", out.WorkflowRunID,
		"callback_url", req.URL,
	)
	return out.WorkflowRunID, nil
}
