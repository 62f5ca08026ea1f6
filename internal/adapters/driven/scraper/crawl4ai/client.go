// Package crawl4ai provides a scrape job client for a Crawl4AI-style
// crawling backend: POST /crawl submits a job, GET /task/{id} reports
// status and result, GET /health reports capacity.
package crawl4ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/custodia-labs/docvector/internal/core/domain"
	"github.com/custodia-labs/docvector/internal/core/ports/driven"
	"github.com/custodia-labs/docvector/internal/logger"
)

// Ensure Client implements the interface.
var _ driven.ScrapeClient = (*Client)(nil)

// Default configuration values.
const (
	DefaultBaseURL        = "http://localhost:11235"
	DefaultPollInterval   = 2 * time.Second
	DefaultRequestTimeout = 60 * time.Second
	DefaultJobTimeout     = 5 * time.Minute

	// DefaultPollRate caps status requests per second across all
	// in-flight jobs.
	DefaultPollRate = rate.Limit(10)

	// defaultPriority is applied when the options payload carries none.
	defaultPriority = 5
)

// Backend job status strings.
const (
	statusPending    = "pending"
	statusProcessing = "processing"
	statusCompleted  = "completed"
	statusFailed     = "failed"
)

// Config holds configuration for the Crawl4AI client.
type Config struct {
	// BaseURL is the backend base URL (default: http://localhost:11235).
	BaseURL string

	// APIToken is an optional bearer token.
	APIToken string

	// PollInterval is the default delay between status polls.
	PollInterval time.Duration

	// RequestTimeout is the per-request HTTP timeout.
	RequestTimeout time.Duration

	// JobTimeout is the default overall wait for job completion.
	JobTimeout time.Duration

	// MaxConcurrentJobs overrides the permit count. When zero the
	// count is fetched from the backend health probe, defaulting to 1
	// if the probe fails.
	MaxConcurrentJobs int

	// HTTPClient overrides the HTTP client. Useful for testing.
	HTTPClient *http.Client
}

// Client manages submission, polling, and completion of scrape jobs.
//
// A bounded permit set gates Submit; the permit for a job is released
// only when AwaitResult observes a terminal state, so the backend never
// sees more in-flight jobs than its advertised capacity.
type Client struct {
	baseURL      string
	apiToken     string
	http         *http.Client
	pollInterval time.Duration
	jobTimeout   time.Duration
	limiter      *rate.Limiter
	override     int

	mu      sync.Mutex
	permits chan struct{}
	held    map[string]struct{}
}

// New creates a new Crawl4AI client. The permit set is sized lazily on
// first submission, from the health probe or the configured override.
func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = DefaultJobTimeout
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.RequestTimeout}
	}

	return &Client{
		baseURL:      cfg.BaseURL,
		apiToken:     cfg.APIToken,
		http:         httpClient,
		pollInterval: cfg.PollInterval,
		jobTimeout:   cfg.JobTimeout,
		limiter:      rate.NewLimiter(DefaultPollRate, 1),
		override:     cfg.MaxConcurrentJobs,
		held:         make(map[string]struct{}),
	}
}

// healthResponse is the backend health probe format.
type healthResponse struct {
	Status             string `json:"status"`
	MaxConcurrentTasks int    `json:"max_concurrent_tasks"`
}

// submitResponse is the job submission response format.
type submitResponse struct {
	TaskID string `json:"task_id"`
}

// statusResponse is the job status/result format.
type statusResponse struct {
	Status string         `json:"status"`
	Result *resultPayload `json:"result"`
	Error  string         `json:"error"`
}

// resultPayload is the completed job result format.
type resultPayload struct {
	URL          string         `json:"url"`
	Title        string         `json:"title"`
	Markdown     string         `json:"markdown"`
	HTML         string         `json:"html"`
	LastModified string         `json:"last_modified"`
	Metadata     map[string]any `json:"metadata"`
}

// errorResponse is the backend error body format.
type errorResponse struct {
	Detail string `json:"detail"`
}

// CheckHealth probes the backend's health/capacity endpoint.
func (c *Client) CheckHealth(ctx context.Context) (*domain.BackendHealth, error) {
	var resp healthResponse
	if err := c.doJSON(ctx, http.MethodGet, "/health", nil, &resp); err != nil {
		return nil, fmt.Errorf("health check: %w", err)
	}
	return &domain.BackendHealth{
		Status:            resp.Status,
		MaxConcurrentJobs: resp.MaxConcurrentTasks,
	}, nil
}

// Submit submits a scrape job and returns the backend job id. It
// blocks until a concurrency permit is available; the permit is held
// until AwaitResult reaches a terminal state for the returned id.
func (c *Client) Submit(ctx context.Context, urls []string, options map[string]any) (string, error) {
	if len(urls) == 0 {
		return "", fmt.Errorf("%w: no urls to submit", domain.ErrInvalidInput)
	}
	if err := c.ensurePermits(ctx); err != nil {
		return "", err
	}

	select {
	case c.permits <- struct{}{}:
	case <-ctx.Done():
		return "", ctx.Err()
	}

	payload := map[string]any{"urls": urls}
	for k, v := range options {
		payload[k] = v
	}
	if _, ok := payload["priority"]; !ok {
		payload["priority"] = defaultPriority
	}

	var resp submitResponse
	if err := c.doJSON(ctx, http.MethodPost, "/crawl", payload, &resp); err != nil {
		// Submission never started a job; release the permit here.
		<-c.permits
		return "", fmt.Errorf("submit job: %w", err)
	}
	if resp.TaskID == "" {
		<-c.permits
		return "", fmt.Errorf("submit job: backend returned no task id")
	}

	c.mu.Lock()
	c.held[resp.TaskID] = struct{}{}
	c.mu.Unlock()

	logger.Debug("Submitted scrape job %s for %v", resp.TaskID, urls)
	return resp.TaskID, nil
}

// AwaitResult polls the job until it reaches a terminal state and
// returns the result payload. The job's permit is released on return
// regardless of outcome.
func (c *Client) AwaitResult(ctx context.Context, jobID string, timeout, pollInterval time.Duration) (*domain.ScrapeResult, error) {
	if timeout <= 0 {
		timeout = c.jobTimeout
	}
	if pollInterval <= 0 {
		pollInterval = c.pollInterval
	}
	defer c.releasePermit(jobID)

	deadline := time.Now().Add(timeout)

	for {
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("job %s did not complete within %s: %w",
				jobID, timeout, domain.ErrJobTimeout)
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		var status statusResponse
		if err := c.doJSON(ctx, http.MethodGet, "/task/"+jobID, nil, &status); err != nil {
			return nil, fmt.Errorf("poll job %s: %w", jobID, err)
		}

		state, err := stateFromStatus(status.Status)
		if err != nil {
			return nil, fmt.Errorf("job %s: %w", jobID, err)
		}
		logger.Debug("Job %s state: %s", jobID, state)

		switch state {
		case domain.JobSucceeded:
			if status.Result == nil {
				return nil, fmt.Errorf("job %s completed without a result payload", jobID)
			}
			return status.Result.toDomain(), nil

		case domain.JobFailed:
			return nil, &JobError{JobID: jobID, Detail: status.Error}
		}

		// Scheduled delay before the next poll tick.
		timer := time.NewTimer(pollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

// SubmitAndAwait composes Submit and AwaitResult.
func (c *Client) SubmitAndAwait(ctx context.Context, urls []string, options map[string]any, timeout time.Duration) (*domain.ScrapeResult, error) {
	jobID, err := c.Submit(ctx, urls, options)
	if err != nil {
		return nil, err
	}
	return c.AwaitResult(ctx, jobID, timeout, 0)
}

// Close releases resources.
func (c *Client) Close() error {
	return nil
}

// ensurePermits sizes the permit set on first use, from the override
// or the backend capacity probe. A failed probe defaults to 1.
func (c *Client) ensurePermits(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.permits != nil {
		return nil
	}

	limit := c.override
	if limit <= 0 {
		health, err := c.CheckHealth(ctx)
		switch {
		case err != nil:
			logger.Warn("Capacity probe failed, limiting to 1 concurrent job: %v", err)
			limit = 1
		case health.MaxConcurrentJobs <= 0:
			logger.Warn("Backend reported no capacity, limiting to 1 concurrent job")
			limit = 1
		default:
			limit = health.MaxConcurrentJobs
		}
	}

	c.permits = make(chan struct{}, limit)
	logger.Info("Scrape job concurrency limit: %d", limit)
	return nil
}

// releasePermit frees the permit held for a job, at most once.
func (c *Client) releasePermit(jobID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.held[jobID]; ok {
		delete(c.held, jobID)
		<-c.permits
	}
}

// doJSON performs one backend request. Connection failures map to
// ErrBackendUnreachable; non-2xx responses map to APIError.
func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiToken)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrBackendUnreachable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var apiErr errorResponse
		if err := json.Unmarshal(data, &apiErr); err != nil || apiErr.Detail == "" {
			apiErr.Detail = string(data)
		}
		return &APIError{StatusCode: resp.StatusCode, Message: apiErr.Detail}
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// stateFromStatus maps a backend status string to a client-side state.
func stateFromStatus(status string) (domain.JobState, error) {
	switch status {
	case statusPending:
		return domain.JobSubmitted, nil
	case statusProcessing:
		return domain.JobRunning, nil
	case statusCompleted:
		return domain.JobSucceeded, nil
	case statusFailed:
		return domain.JobFailed, nil
	default:
		return "", fmt.Errorf("unexpected job status %q", status)
	}
}

// toDomain converts the wire payload to the domain result. Markdown is
// preferred over raw HTML when both are present.
func (p *resultPayload) toDomain() *domain.ScrapeResult {
	content := p.Markdown
	if content == "" {
		content = p.HTML
	}

	result := &domain.ScrapeResult{
		URL:      p.URL,
		Title:    p.Title,
		Content:  content,
		Metadata: p.Metadata,
	}

	if p.LastModified != "" {
		for _, layout := range []string{time.RFC3339, http.TimeFormat} {
			if t, err := time.Parse(layout, p.LastModified); err == nil {
				result.LastModified = &t
				break
			}
		}
	}

	return result
}
