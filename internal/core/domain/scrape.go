package domain

import "time"

// JobState is the client-side state of a remote scrape job.
type JobState string

const (
	// JobSubmitted means the job has been accepted by the backend.
	JobSubmitted JobState = "submitted"

	// JobRunning means the backend is actively crawling.
	JobRunning JobState = "running"

	// JobSucceeded means the job completed and a result is available.
	JobSucceeded JobState = "succeeded"

	// JobFailed means the job reached a failed terminal state on the backend.
	JobFailed JobState = "failed"

	// JobTimedOut means polling exceeded the caller's timeout without
	// observing a terminal backend state. This state exists only on the
	// client side.
	JobTimedOut JobState = "timed_out"
)

// Terminal reports whether the state ends the job lifecycle.
func (s JobState) Terminal() bool {
	switch s {
	case JobSucceeded, JobFailed, JobTimedOut:
		return true
	default:
		return false
	}
}

// BackendHealth is the scrape backend's health/capacity probe response.
type BackendHealth struct {
	// Status is the backend-reported status string.
	Status string

	// MaxConcurrentJobs is the backend's advertised job capacity.
	// Zero means the backend did not report a capacity.
	MaxConcurrentJobs int
}

// ScrapeResult is the payload of a succeeded scrape job for one URL.
// It is passed through to the chunker without further interpretation.
type ScrapeResult struct {
	// URL is the scraped location.
	URL string

	// Title is the page title reported by the backend, if any.
	Title string

	// Content is the normalised markdown text.
	Content string

	// LastModified is the origin-reported modification time, if any.
	LastModified *time.Time

	// Metadata contains backend-specific key-value pairs.
	Metadata map[string]any
}
