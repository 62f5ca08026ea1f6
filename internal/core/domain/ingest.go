package domain

import "time"

// IngestReport summarises one ingestion run for a source.
// Per-document failures are recorded here and never abort sibling
// documents; only a submission-level backend failure aborts the run.
type IngestReport struct {
	// SourceName is the source the run was executed for.
	SourceName string

	// Total is the number of documents attempted.
	Total int

	// Processed is the number of documents chunked, embedded and stored.
	Processed int

	// Skipped is the number of documents whose content was unchanged.
	Skipped int

	// Failed is the number of documents that errored.
	Failed int

	// Errors maps document URIs to their failure messages.
	Errors map[string]string

	// Aborted is true when the backend became unreachable mid-run and
	// the remaining documents were not attempted.
	Aborted bool

	// StartedAt and FinishedAt bound the run.
	StartedAt  time.Time
	FinishedAt time.Time
}

// Record notes the outcome for one document URI.
func (r *IngestReport) Record(uri string, err error) {
	r.Total++
	if err != nil {
		r.Failed++
		if r.Errors == nil {
			r.Errors = make(map[string]string)
		}
		r.Errors[uri] = err.Error()
		return
	}
	r.Processed++
}

// RecordSkip notes a document whose content digest was unchanged.
func (r *IngestReport) RecordSkip() {
	r.Total++
	r.Skipped++
}
