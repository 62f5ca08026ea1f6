package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "Manage registered documentation sources",
}

var sourcesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered sources",
	RunE:  runSourcesList,
}

var sourcesDeleteCmd = &cobra.Command{
	Use:   "delete [name]",
	Short: "Delete a source and all of its documents",
	Args:  cobra.ExactArgs(1),
	RunE:  runSourcesDelete,
}

func init() {
	sourcesCmd.AddCommand(sourcesListCmd)
	sourcesCmd.AddCommand(sourcesDeleteCmd)
	rootCmd.AddCommand(sourcesCmd)
}

func runSourcesList(cmd *cobra.Command, _ []string) error {
	if vectorStore == nil {
		return errors.New("store not configured")
	}

	sources, err := vectorStore.ListSources(context.Background())
	if err != nil {
		return fmt.Errorf("listing sources: %w", err)
	}

	if len(sources) == 0 {
		cmd.Println("No sources registered.")
		return nil
	}

	for _, source := range sources {
		cmd.Printf("  %s", source.Name)
		if source.Identifier != "" {
			cmd.Printf(" (%s)", source.Identifier)
		}
		if source.LastProcessedAt != nil {
			cmd.Printf("  last processed %s", source.LastProcessedAt.Format("2006-01-02 15:04:05"))
		}
		cmd.Println()
	}
	return nil
}

func runSourcesDelete(cmd *cobra.Command, args []string) error {
	if vectorStore == nil {
		return errors.New("store not configured")
	}

	ctx := context.Background()
	name := args[0]

	source, err := vectorStore.GetSource(ctx, name)
	if err != nil {
		return fmt.Errorf("looking up source: %w", err)
	}
	if err := vectorStore.DeleteSource(ctx, source.ID); err != nil {
		return fmt.Errorf("deleting source: %w", err)
	}

	cmd.Printf("Source %q deleted.\n", name)
	return nil
}
