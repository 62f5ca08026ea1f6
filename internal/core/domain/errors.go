package domain

import "errors"

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrBackendUnreachable indicates the scrape backend could not be
	// reached. Transient; the coordinator may retry with backoff, but a
	// submission-level occurrence aborts the remaining source run.
	ErrBackendUnreachable = errors.New("scrape backend unreachable")

	// ErrJobFailed indicates a scrape job reached a failed terminal
	// state on the backend.
	ErrJobFailed = errors.New("scrape job failed")

	// ErrJobTimeout indicates polling exceeded the caller's timeout
	// without the job reaching a terminal backend state.
	ErrJobTimeout = errors.New("scrape job timed out")

	// ErrProviderExhausted indicates every configured embedding provider
	// failed for a batch. Fatal for the document's current run.
	ErrProviderExhausted = errors.New("all embedding providers exhausted")

	// ErrStoreConflict indicates an atomic chunk replacement could not
	// commit. The transaction is rolled back; no partial write is visible.
	ErrStoreConflict = errors.New("store replace conflict")

	// ErrConfiguration indicates a caller or configuration defect
	// (dimensionality mismatch, unknown provider or metric). Never retried.
	ErrConfiguration = errors.New("configuration error")

	// ErrIngestInProgress indicates an ingestion run is already active
	// for the source.
	ErrIngestInProgress = errors.New("ingestion already in progress")
)
