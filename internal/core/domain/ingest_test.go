package domain

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIngestReport_Record(t *testing.T) {
	var report IngestReport

	report.Record("https://docs.example.com/a", nil)
	report.Record("https://docs.example.com/b", fmt.Errorf("scrape failed"))
	report.RecordSkip()

	assert.Equal(t, 3, report.Total)
	assert.Equal(t, 1, report.Processed)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, "scrape failed", report.Errors["https://docs.example.com/b"])
	assert.NotContains(t, report.Errors, "https://docs.example.com/a")
}
