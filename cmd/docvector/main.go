package main

import (
	"os"

	"github.com/joho/godotenv"

	"github.com/custodia-labs/docvector/internal/adapters/driving/cli"
	"github.com/custodia-labs/docvector/internal/logger"
)

func main() {
	// Best effort; a missing .env file is fine.
	_ = godotenv.Load()

	if err := cli.Execute(); err != nil {
		logger.Error("%v", err)
		os.Exit(1)
	}
}
