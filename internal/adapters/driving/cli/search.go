package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/docvector/internal/core/domain"
)

var (
	searchLimit  int
	searchOffset int
	searchSource string
	searchMetric string
	searchJSON   bool
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search indexed documentation",
	Long: `Embeds the query text and returns the most similar chunks from
the vector store, ordered by ascending distance.`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 10, "maximum number of results")
	searchCmd.Flags().IntVar(&searchOffset, "offset", 0, "number of results to skip")
	searchCmd.Flags().StringVarP(&searchSource, "source", "s", "", "restrict results to one source")
	searchCmd.Flags().StringVar(&searchMetric, "metric", "", "distance metric (cosine, euclidean, inner_product)")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "output results as JSON")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	query := args[0]

	if searchService == nil {
		return errors.New("search service not configured")
	}

	metric, err := domain.ParseDistanceMetric(searchMetric)
	if err != nil {
		return err
	}

	ctx := context.Background()
	opts := domain.SearchOptions{
		K:      searchLimit,
		Offset: searchOffset,
		Metric: metric,
		Filters: domain.SearchFilters{
			SourceName: searchSource,
		},
	}

	results, err := searchService.SearchText(ctx, query, opts)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if searchJSON {
		return outputSearchJSON(cmd, results)
	}
	return outputSearchTable(cmd, results)
}

func outputSearchJSON(cmd *cobra.Command, results []domain.SearchResult) error {
	data, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal results: %w", err)
	}
	cmd.Println(string(data))
	return nil
}

func outputSearchTable(cmd *cobra.Command, results []domain.SearchResult) error {
	if len(results) == 0 {
		cmd.Println("No results found.")
		return nil
	}

	cmd.Println("Results:")
	cmd.Println()
	for i := range results {
		title := results[i].DocumentTitle
		if title == "" {
			title = results[i].DocumentURI
		}

		cmd.Printf("  [%d] %s (%.4f)\n", i+1, title, results[i].Distance)
		cmd.Printf("      Source: %s\n", results[i].SourceName)
		cmd.Printf("      URI: %s\n", results[i].DocumentURI)

		snippet := results[i].Chunk.Content
		if len(snippet) > 160 {
			snippet = snippet[:160] + "..."
		}
		cmd.Printf("      %s\n", snippet)
		cmd.Println()
	}
	return nil
}
