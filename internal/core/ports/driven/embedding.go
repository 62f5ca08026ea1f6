package driven

import "context"

// EmbeddingService generates vector embeddings from text.
// Each provider (OpenAI, Ollama, ...) implements this interface; the
// embedding orchestrator iterates an ordered list of providers rather
// than branching on provider identity.
type EmbeddingService interface {
	// EmbedBatch generates embeddings for multiple texts. The returned
	// slice is aligned positionally with the input.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding vector size (e.g. 768, 1536).
	Dimensions() int

	// ModelName returns the identifier of the embedding model.
	ModelName() string

	// ProviderName returns the provider identifier (e.g. "openai").
	ProviderName() string

	// Close releases resources.
	Close() error
}

// EmbeddingCache short-circuits recomputation of embeddings for
// previously seen identical text. Keys incorporate the provider, model
// and text content digest, so a rename or reorder of chunks that
// preserves text content hits the cache.
type EmbeddingCache interface {
	// Get returns the cached vector for the key, if present.
	Get(key string) ([]float32, bool)

	// Add stores a vector under the key.
	Add(key string, embedding []float32)
}
