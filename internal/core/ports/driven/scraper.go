package driven

import (
	"context"
	"time"

	"github.com/custodia-labs/docvector/internal/core/domain"
)

// ScrapeClient manages the lifecycle of remote scrape jobs against a
// crawling backend: submission, polling, and completion.
//
// The client owns a bounded permit set sized from the backend's
// health/capacity probe (or an explicit override). Submit acquires a
// permit; the permit is held until AwaitResult observes a terminal
// state, so a new job is admitted only after an in-flight one
// materially completes.
//
// None of the errors raised here are retried by the client itself;
// retry policy belongs to the ingestion coordinator.
type ScrapeClient interface {
	// CheckHealth probes the backend's health/capacity endpoint.
	CheckHealth(ctx context.Context) (*domain.BackendHealth, error)

	// Submit submits a scrape job for the given URLs with a free-form
	// options payload and returns the backend job id. It blocks until a
	// concurrency permit is available.
	Submit(ctx context.Context, urls []string, options map[string]any) (string, error)

	// AwaitResult polls the job until it reaches a terminal state and
	// returns the result payload. Zero timeout or pollInterval use the
	// client defaults. The job's permit is released on return.
	AwaitResult(ctx context.Context, jobID string, timeout, pollInterval time.Duration) (*domain.ScrapeResult, error)

	// SubmitAndAwait composes Submit and AwaitResult.
	SubmitAndAwait(ctx context.Context, urls []string, options map[string]any, timeout time.Duration) (*domain.ScrapeResult, error)

	// Close releases resources.
	Close() error
}
