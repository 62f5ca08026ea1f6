package driving

import (
	"context"

	"github.com/custodia-labs/docvector/internal/core/domain"
)

// IngestRequest describes one ingestion run for a source.
type IngestRequest struct {
	// SourceName is the unique source name. Required.
	SourceName string

	// BaseURL is the optional base locator stored on the source.
	BaseURL string

	// Identifier is an optional version tag stored on the source.
	Identifier string

	// URLs are the document locators to scrape and ingest.
	URLs []string

	// ScrapeOptions is the free-form options payload passed to the
	// scrape backend on job submission.
	ScrapeOptions map[string]any

	// Metadata is stored on the source record.
	Metadata map[string]any
}

// IngestStatus reports progress of an active ingestion run.
type IngestStatus struct {
	// SourceName is the source being ingested.
	SourceName string

	// Running is true while the run is active.
	Running bool

	// DocumentsProcessed counts documents that finished any outcome.
	DocumentsProcessed int

	// ErrorCount counts per-document failures so far.
	ErrorCount int
}

// Ingestor coordinates the ingestion pipeline for a source:
// scrape → change detection → chunking → embedding → storage.
type Ingestor interface {
	// IngestSource runs the pipeline for every URL in the request and
	// returns a report. Per-document failures are recorded in the
	// report; an error is returned only for run-fatal conditions
	// (backend unreachable at submission level), together with the
	// partial report.
	IngestSource(ctx context.Context, req IngestRequest) (*domain.IngestReport, error)

	// Status returns the progress of an active run for the source, or
	// an idle status when none is running.
	Status(sourceName string) *IngestStatus
}
