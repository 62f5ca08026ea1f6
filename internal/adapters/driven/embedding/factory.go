// Package embedding creates embedding providers from configuration.
package embedding

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/custodia-labs/docvector/internal/adapters/driven/embedding/ollama"
	"github.com/custodia-labs/docvector/internal/adapters/driven/embedding/openai"
	"github.com/custodia-labs/docvector/internal/core/domain"
	"github.com/custodia-labs/docvector/internal/core/ports/driven"
)

// ProviderConfig describes one embedding provider in priority order.
type ProviderConfig struct {
	// Name selects the provider ("openai" or "ollama").
	Name string

	// Model is the embedding model identifier.
	Model string

	// BaseURL overrides the provider endpoint.
	BaseURL string

	// APIKey authenticates the provider. Falls back to the
	// OPENAI_API_KEY environment variable for OpenAI.
	APIKey string

	// Dimensions overrides the model's vector size.
	Dimensions int

	// Timeout is the per-request timeout.
	Timeout time.Duration
}

// NewProvider creates the embedding provider named in the config.
// An unknown provider name is a configuration error.
func NewProvider(cfg ProviderConfig) (driven.EmbeddingService, error) {
	switch strings.ToLower(cfg.Name) {
	case openai.ProviderName:
		apiKey := cfg.APIKey
		if apiKey == "" {
			apiKey = os.Getenv("OPENAI_API_KEY")
		}
		return openai.NewEmbeddingService(openai.Config{
			APIKey:     apiKey,
			BaseURL:    cfg.BaseURL,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
		})

	case ollama.ProviderName:
		return ollama.NewEmbeddingService(ollama.Config{
			BaseURL:    cfg.BaseURL,
			Model:      cfg.Model,
			Timeout:    cfg.Timeout,
			Dimensions: cfg.Dimensions,
		}), nil

	default:
		return nil, fmt.Errorf("%w: unsupported embedding provider %q", domain.ErrConfiguration, cfg.Name)
	}
}
