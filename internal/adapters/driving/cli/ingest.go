package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/docvector/internal/core/domain"
	"github.com/custodia-labs/docvector/internal/core/ports/driving"
)

var (
	ingestSourceName string
	ingestBaseURL    string
	ingestIdentifier string
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [urls...]",
	Short: "Scrape and index documentation pages",
	Long: `Scrapes the given URLs, detects changed documents, chunks them,
generates embeddings and stores the result in the vector store.
Unchanged documents are skipped.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().StringVarP(&ingestSourceName, "source", "s", "", "source name (required)")
	ingestCmd.Flags().StringVar(&ingestBaseURL, "base-url", "", "base URL stored on the source")
	ingestCmd.Flags().StringVar(&ingestIdentifier, "identifier", "", "version tag stored on the source")
	_ = ingestCmd.MarkFlagRequired("source")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	if ingestor == nil {
		return errors.New("ingest service not configured")
	}

	ctx := context.Background()
	req := driving.IngestRequest{
		SourceName: ingestSourceName,
		BaseURL:    ingestBaseURL,
		Identifier: ingestIdentifier,
		URLs:       args,
	}

	cmd.Printf("Ingesting %d documents into source %q...\n", len(args), req.SourceName)

	report, err := ingestWithProgress(ctx, cmd, req)
	if report != nil {
		printReport(cmd, report)
	}
	if err != nil {
		return fmt.Errorf("ingest failed: %w", err)
	}
	return nil
}

// ingestWithProgress runs ingestion while displaying progress updates.
func ingestWithProgress(
	ctx context.Context,
	cmd *cobra.Command,
	req driving.IngestRequest,
) (*domain.IngestReport, error) {
	type outcome struct {
		report *domain.IngestReport
		err    error
	}

	resCh := make(chan outcome, 1)
	go func() {
		report, err := ingestor.IngestSource(ctx, req)
		resCh <- outcome{report: report, err: err}
	}()

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	lastCount := 0
	for {
		select {
		case res := <-resCh:
			return res.report, res.err
		case <-ticker.C:
			status := ingestor.Status(req.SourceName)
			if status != nil && status.DocumentsProcessed > lastCount {
				cmd.Printf("\rProcessing... %d documents", status.DocumentsProcessed)
				lastCount = status.DocumentsProcessed
			}
		}
	}
}

// printReport renders the run summary.
func printReport(cmd *cobra.Command, report *domain.IngestReport) {
	cmd.Println()
	cmd.Printf("Source:    %s\n", report.SourceName)
	cmd.Printf("Total:     %d\n", report.Total)
	cmd.Printf("Processed: %d\n", report.Processed)
	cmd.Printf("Skipped:   %d\n", report.Skipped)
	cmd.Printf("Failed:    %d\n", report.Failed)
	cmd.Printf("Duration:  %s\n", report.FinishedAt.Sub(report.StartedAt).Round(time.Millisecond))
	if report.Aborted {
		cmd.Println("Run aborted: scrape backend became unreachable.")
	}
	for uri, msg := range report.Errors {
		cmd.Printf("  error: %s: %s\n", uri, msg)
	}
}
