package crawl4ai

import (
	"fmt"

	"github.com/custodia-labs/docvector/internal/core/domain"
)

// APIError is a non-2xx response from the scrape backend.
type APIError struct {
	// StatusCode is the HTTP status returned by the backend.
	StatusCode int

	// Message is the backend-reported error detail.
	Message string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("backend API error %d: %s", e.StatusCode, e.Message)
}

// JobError is a scrape job observed in a failed terminal state.
type JobError struct {
	// JobID is the backend job id.
	JobID string

	// Detail is the backend-reported failure detail.
	Detail string
}

// Error implements the error interface.
func (e *JobError) Error() string {
	return fmt.Sprintf("job %s failed: %s", e.JobID, e.Detail)
}

// Unwrap ties JobError into the domain error taxonomy.
func (e *JobError) Unwrap() error {
	return domain.ErrJobFailed
}
