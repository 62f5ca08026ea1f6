// Package cli implements the docvector command-line interface.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/custodia-labs/docvector/internal/logger"
)

// version is set at build time via -ldflags.
var version = "dev"

var (
	verbose    bool
	configPath string
)

var rootCmd = &cobra.Command{
	Use:   "docvector",
	Short: "Documentation ingestion and semantic search pipeline",
	Long: `docvector scrapes documentation, chunks it, generates embeddings
and stores them in a vector store for semantic search.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		logger.SetVerbose(verbose)
		if cmd.Name() == "version" || cmd.Name() == "help" {
			return nil
		}
		return initApp()
	},
	PersistentPostRunE: func(_ *cobra.Command, _ []string) error {
		return closeApp()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
