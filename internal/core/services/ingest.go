package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/docvector/internal/core/domain"
	"github.com/custodia-labs/docvector/internal/core/ports/driven"
	"github.com/custodia-labs/docvector/internal/core/ports/driving"
	"github.com/custodia-labs/docvector/internal/logger"
)

// Ensure IngestOrchestrator implements the interface.
var _ driving.Ingestor = (*IngestOrchestrator)(nil)

// DefaultDocumentConcurrency bounds how many document pipelines run at
// once. The scrape job client additionally enforces its own in-flight
// ceiling via permits.
const DefaultDocumentConcurrency = 4

// DefaultScrapeAttempts is the per-document attempt count for
// transient scrape failures.
const DefaultScrapeAttempts = 3

// DefaultScrapeBackoff is the base delay between scrape retries.
const DefaultScrapeBackoff = 2 * time.Second

// IngestOrchestrator drives the ingestion pipeline for a source, one
// document at a time: scrape → change detection → chunking → embedding
// → atomic chunk replacement.
//
// Failures are isolated per document: a failed document is recorded in
// the run report and siblings continue. Only a submission-level backend
// failure (backend unreachable) aborts the remaining run.
type IngestOrchestrator struct {
	scraper  driven.ScrapeClient
	store    driven.VectorStore
	pipeline driven.PostProcessorPipeline
	embedder *EmbeddingOrchestrator
	detector *ChangeDetector

	concurrency    int
	scrapeAttempts int
	scrapeBackoff  time.Duration
	sleep          func(ctx context.Context, d time.Duration) error
	now            func() time.Time

	// Status tracking
	mu         sync.RWMutex
	activeRuns map[string]*driving.IngestStatus
}

// IngestOption configures the ingest orchestrator.
type IngestOption func(*IngestOrchestrator)

// WithDocumentConcurrency sets how many document pipelines may run
// concurrently within one source run.
func WithDocumentConcurrency(n int) IngestOption {
	return func(o *IngestOrchestrator) {
		if n > 0 {
			o.concurrency = n
		}
	}
}

// WithScrapeAttempts sets the per-document attempt count for transient
// scrape failures.
func WithScrapeAttempts(n int) IngestOption {
	return func(o *IngestOrchestrator) {
		if n > 0 {
			o.scrapeAttempts = n
		}
	}
}

// WithScrapeBackoff sets the base delay between scrape retries.
func WithScrapeBackoff(d time.Duration) IngestOption {
	return func(o *IngestOrchestrator) {
		if d >= 0 {
			o.scrapeBackoff = d
		}
	}
}

// WithRetrySleep replaces the retry delay function. Useful for testing.
func WithRetrySleep(fn func(ctx context.Context, d time.Duration) error) IngestOption {
	return func(o *IngestOrchestrator) {
		if fn != nil {
			o.sleep = fn
		}
	}
}

// WithClock replaces the time source. Useful for testing.
func WithClock(now func() time.Time) IngestOption {
	return func(o *IngestOrchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// NewIngestOrchestrator creates a new ingest orchestrator.
func NewIngestOrchestrator(
	scraper driven.ScrapeClient,
	store driven.VectorStore,
	pipeline driven.PostProcessorPipeline,
	embedder *EmbeddingOrchestrator,
	opts ...IngestOption,
) *IngestOrchestrator {
	o := &IngestOrchestrator{
		scraper:     scraper,
		store:       store,
		pipeline:    pipeline,
		embedder:    embedder,
		detector:       NewChangeDetector(),
		concurrency:    DefaultDocumentConcurrency,
		scrapeAttempts: DefaultScrapeAttempts,
		scrapeBackoff:  DefaultScrapeBackoff,
		sleep:          sleepContext,
		now:            time.Now,
		activeRuns:     make(map[string]*driving.IngestStatus),
	}

	for _, opt := range opts {
		opt(o)
	}

	return o
}

// IngestSource runs the pipeline for every URL in the request.
func (o *IngestOrchestrator) IngestSource(ctx context.Context, req driving.IngestRequest) (*domain.IngestReport, error) {
	if req.SourceName == "" {
		return nil, fmt.Errorf("%w: source name is required", domain.ErrInvalidInput)
	}

	o.mu.Lock()
	if st, ok := o.activeRuns[req.SourceName]; ok && st.Running {
		o.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", domain.ErrIngestInProgress, req.SourceName)
	}
	status := &driving.IngestStatus{SourceName: req.SourceName, Running: true}
	o.activeRuns[req.SourceName] = status
	o.mu.Unlock()
	defer o.clearStatus(req.SourceName)

	source, err := o.store.UpsertSource(ctx, domain.Source{
		Name:       req.SourceName,
		BaseURL:    req.BaseURL,
		Identifier: req.Identifier,
		Metadata:   req.Metadata,
	})
	if err != nil {
		return nil, fmt.Errorf("upsert source: %w", err)
	}

	logger.Info("Starting ingestion for source %s (%d documents)", req.SourceName, len(req.URLs))

	report := &domain.IngestReport{
		SourceName: req.SourceName,
		StartedAt:  o.now(),
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg       sync.WaitGroup
		reportMu sync.Mutex
		aborted  bool
	)
	sem := make(chan struct{}, o.concurrency)

	for _, uri := range req.URLs {
		if runCtx.Err() != nil {
			break
		}

		select {
		case sem <- struct{}{}:
		case <-runCtx.Done():
		}
		if runCtx.Err() != nil {
			break
		}

		wg.Add(1)
		go func(uri string) {
			defer wg.Done()
			defer func() { <-sem }()

			logger.Debug("Processing: %s", uri)
			skipped, err := o.processDocument(runCtx, source, uri, req.ScrapeOptions)

			reportMu.Lock()
			defer reportMu.Unlock()

			switch {
			case err == nil && skipped:
				report.RecordSkip()
				status.DocumentsProcessed++

			case err == nil:
				report.Record(uri, nil)
				status.DocumentsProcessed++

			case errors.Is(err, domain.ErrBackendUnreachable):
				// Fatal for the source run: stop admitting documents.
				report.Aborted = true
				report.Record(uri, err)
				status.ErrorCount++
				aborted = true
				cancel()

			case errors.Is(err, context.Canceled) && aborted:
				// Sibling cancelled by the abort; not a document failure.

			default:
				report.Record(uri, err)
				status.ErrorCount++
				logger.Debug("Failed to process %s: %v", uri, err)
			}
		}(uri)
	}

	wg.Wait()
	report.FinishedAt = o.now()
	status.Running = false

	if report.Aborted {
		completed := report.Processed + report.Skipped
		return report, fmt.Errorf("source run aborted after %d completed documents: %w",
			completed, domain.ErrBackendUnreachable)
	}

	if err := o.store.TouchSource(ctx, source.ID, o.now()); err != nil {
		return report, fmt.Errorf("update source timestamp: %w", err)
	}

	logger.Info("Ingestion complete for %s: %d processed, %d skipped, %d failed",
		req.SourceName, report.Processed, report.Skipped, report.Failed)
	return report, nil
}

// Status returns the progress of an active run for the source.
func (o *IngestOrchestrator) Status(sourceName string) *driving.IngestStatus {
	o.mu.RLock()
	defer o.mu.RUnlock()

	if st, ok := o.activeRuns[sourceName]; ok {
		// Return a copy to avoid race conditions
		return &driving.IngestStatus{
			SourceName:         st.SourceName,
			Running:            st.Running,
			DocumentsProcessed: st.DocumentsProcessed,
			ErrorCount:         st.ErrorCount,
		}
	}

	return &driving.IngestStatus{SourceName: sourceName}
}

// processDocument runs one document through the pipeline. It returns
// skipped=true when change detection found the content unchanged and
// only the processed timestamp was refreshed.
func (o *IngestOrchestrator) processDocument(
	ctx context.Context,
	source *domain.Source,
	uri string,
	scrapeOptions map[string]any,
) (skipped bool, err error) {
	// 1. SCRAPE
	result, err := o.scrapeWithRetry(ctx, uri, scrapeOptions)
	if err != nil {
		return false, fmt.Errorf("scrape: %w", err)
	}

	// 2. CHANGE DETECTION
	existing, err := o.store.GetDocument(ctx, source.ID, uri)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return false, fmt.Errorf("get document: %w", err)
	}

	if !o.detector.NeedsProcessing(existing, result.Content, result.LastModified) {
		logger.Debug("Unchanged: %s", uri)
		if err := o.store.TouchDocument(ctx, existing.ID, o.now()); err != nil {
			return false, fmt.Errorf("touch document: %w", err)
		}
		return true, nil
	}

	now := o.now()
	doc := domain.Document{
		ID:           uuid.New().String(),
		SourceID:     source.ID,
		URI:          uri,
		Title:        result.Title,
		Content:      result.Content,
		ContentHash:  ContentHash(result.Content),
		LastModified: result.LastModified,
		ProcessedAt:  now,
		Metadata:     result.Metadata,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if existing != nil {
		doc.ID = existing.ID
		doc.CreatedAt = existing.CreatedAt
	}

	// 3. CHUNK
	chunks, err := o.pipeline.Process(ctx, &doc)
	if err != nil {
		return false, fmt.Errorf("chunk: %w", err)
	}

	// 4. EMBED
	if len(chunks) > 0 {
		texts := make([]string, len(chunks))
		for i := range chunks {
			texts[i] = chunks[i].Content
		}

		vectors, model, err := o.embedder.EmbedTexts(ctx, texts)
		if err != nil {
			return false, fmt.Errorf("embed: %w", err)
		}

		for i := range chunks {
			chunks[i].Embedding = vectors[i]
			chunks[i].EmbeddingModel = model
			chunks[i].CreatedAt = now
		}
	}

	// 5. REPLACE CHUNK SET ATOMICALLY
	if err := o.store.ReplaceDocumentChunks(ctx, doc, chunks); err != nil {
		return false, fmt.Errorf("replace chunks: %w", err)
	}

	return false, nil
}

// scrapeWithRetry runs the document's scrape job, retrying transient
// failures (backend unreachable, failed jobs) with linear backoff.
// Unreachability that survives every attempt is returned unwrapped so
// the run-level abort still triggers; job failures stay per-document.
func (o *IngestOrchestrator) scrapeWithRetry(
	ctx context.Context,
	uri string,
	scrapeOptions map[string]any,
) (*domain.ScrapeResult, error) {
	var lastErr error

	for attempt := 1; attempt <= o.scrapeAttempts; attempt++ {
		result, err := o.scraper.SubmitAndAwait(ctx, []string{uri}, scrapeOptions, 0)
		if err == nil {
			return result, nil
		}
		lastErr = err

		retriable := errors.Is(err, domain.ErrBackendUnreachable) ||
			errors.Is(err, domain.ErrJobFailed)
		if !retriable || attempt == o.scrapeAttempts {
			break
		}

		logger.Debug("Scrape attempt %d/%d for %s failed: %v",
			attempt, o.scrapeAttempts, uri, err)
		if serr := o.sleep(ctx, time.Duration(attempt)*o.scrapeBackoff); serr != nil {
			return nil, serr
		}
	}

	return nil, lastErr
}

// clearStatus removes the run status for a source.
func (o *IngestOrchestrator) clearStatus(sourceName string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.activeRuns, sourceName)
}
