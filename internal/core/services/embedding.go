package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/custodia-labs/docvector/internal/core/domain"
	"github.com/custodia-labs/docvector/internal/core/ports/driven"
	"github.com/custodia-labs/docvector/internal/logger"
)

// Default orchestrator settings.
const (
	DefaultMaxAttempts = 3
	DefaultBackoff     = 500 * time.Millisecond
	DefaultBatchSize   = 64
)

// EmbeddingOrchestrator converts texts to vectors through an ordered
// chain of providers.
//
// Texts are grouped into provider-appropriate batches, and a cache
// keyed by (provider, model, text digest) short-circuits recomputation
// for previously seen identical text. Provider failures are retried
// with bounded backoff; when retries are exhausted the orchestrator
// falls back to the next provider and re-embeds the whole input with
// it, so the embedding model is uniform across one document version.
// When every provider fails, ErrProviderExhausted is returned.
type EmbeddingOrchestrator struct {
	providers   []driven.EmbeddingService
	cache       driven.EmbeddingCache
	maxAttempts int
	backoff     time.Duration
	batchSize   int
	sleep       func(ctx context.Context, d time.Duration) error
}

// OrchestratorOption configures the embedding orchestrator.
type OrchestratorOption func(*EmbeddingOrchestrator)

// WithMaxAttempts sets the per-provider attempt count per batch.
func WithMaxAttempts(n int) OrchestratorOption {
	return func(o *EmbeddingOrchestrator) {
		if n > 0 {
			o.maxAttempts = n
		}
	}
}

// WithBackoff sets the base delay between retry attempts.
func WithBackoff(d time.Duration) OrchestratorOption {
	return func(o *EmbeddingOrchestrator) {
		if d >= 0 {
			o.backoff = d
		}
	}
}

// WithBatchSize sets the maximum number of texts per provider call.
func WithBatchSize(n int) OrchestratorOption {
	return func(o *EmbeddingOrchestrator) {
		if n > 0 {
			o.batchSize = n
		}
	}
}

// WithSleep replaces the retry delay function. Useful for testing.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) OrchestratorOption {
	return func(o *EmbeddingOrchestrator) {
		if fn != nil {
			o.sleep = fn
		}
	}
}

// NewEmbeddingOrchestrator creates an orchestrator over the given
// providers in priority order. At least one provider is required.
func NewEmbeddingOrchestrator(
	providers []driven.EmbeddingService,
	cache driven.EmbeddingCache,
	opts ...OrchestratorOption,
) (*EmbeddingOrchestrator, error) {
	if len(providers) == 0 {
		return nil, fmt.Errorf("%w: no embedding providers configured", domain.ErrConfiguration)
	}

	o := &EmbeddingOrchestrator{
		providers:   providers,
		cache:       cache,
		maxAttempts: DefaultMaxAttempts,
		backoff:     DefaultBackoff,
		batchSize:   DefaultBatchSize,
		sleep:       sleepContext,
	}

	for _, opt := range opts {
		opt(o)
	}

	return o, nil
}

// Dimensions returns the vector size of the primary provider.
func (o *EmbeddingOrchestrator) Dimensions() int {
	return o.providers[0].Dimensions()
}

// EmbedTexts embeds all texts with the first provider that succeeds,
// returning vectors aligned positionally with the input and the model
// identifier that produced them.
func (o *EmbeddingOrchestrator) EmbedTexts(ctx context.Context, texts []string) ([][]float32, string, error) {
	if len(texts) == 0 {
		return nil, "", nil
	}

	var errs []error
	for _, provider := range o.providers {
		vectors, err := o.embedWithProvider(ctx, provider, texts)
		if err == nil {
			return vectors, provider.ModelName(), nil
		}

		errs = append(errs, fmt.Errorf("%s: %w", provider.ProviderName(), err))
		if ctx.Err() != nil {
			return nil, "", ctx.Err()
		}
		logger.Warn("Embedding provider %s failed, falling back: %v", provider.ProviderName(), err)
	}

	return nil, "", fmt.Errorf("%w: %v", domain.ErrProviderExhausted, errors.Join(errs...))
}

// embedWithProvider embeds the full text set with one provider,
// consulting the cache first and batching the misses.
func (o *EmbeddingOrchestrator) embedWithProvider(
	ctx context.Context,
	provider driven.EmbeddingService,
	texts []string,
) ([][]float32, error) {
	out := make([][]float32, len(texts))

	var missing []int
	for i, text := range texts {
		if o.cache != nil {
			if vec, ok := o.cache.Get(o.cacheKey(provider, text)); ok {
				out[i] = vec
				continue
			}
		}
		missing = append(missing, i)
	}
	if len(missing) > 0 {
		logger.Debug("Embedding %d/%d texts via %s (%d cached)",
			len(missing), len(texts), provider.ProviderName(), len(texts)-len(missing))
	}

	for start := 0; start < len(missing); start += o.batchSize {
		end := start + o.batchSize
		if end > len(missing) {
			end = len(missing)
		}
		indices := missing[start:end]

		batch := make([]string, len(indices))
		for j, idx := range indices {
			batch[j] = texts[idx]
		}

		vectors, err := o.embedBatchWithRetry(ctx, provider, batch)
		if err != nil {
			return nil, err
		}
		if len(vectors) != len(batch) {
			return nil, fmt.Errorf("provider returned %d vectors for %d texts", len(vectors), len(batch))
		}

		for j, idx := range indices {
			if len(vectors[j]) != provider.Dimensions() {
				return nil, fmt.Errorf("provider returned %d-dimensional vector, want %d",
					len(vectors[j]), provider.Dimensions())
			}
			out[idx] = vectors[j]
			if o.cache != nil {
				o.cache.Add(o.cacheKey(provider, texts[idx]), vectors[j])
			}
		}
	}

	return out, nil
}

// embedBatchWithRetry calls the provider with bounded backoff.
func (o *EmbeddingOrchestrator) embedBatchWithRetry(
	ctx context.Context,
	provider driven.EmbeddingService,
	batch []string,
) ([][]float32, error) {
	var lastErr error
	for attempt := 1; attempt <= o.maxAttempts; attempt++ {
		vectors, err := provider.EmbedBatch(ctx, batch)
		if err == nil {
			return vectors, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if attempt < o.maxAttempts {
			delay := o.backoff * time.Duration(attempt)
			logger.Debug("Embedding attempt %d/%d failed, retrying in %s: %v",
				attempt, o.maxAttempts, delay, err)
			if err := o.sleep(ctx, delay); err != nil {
				return nil, err
			}
		}
	}
	return nil, fmt.Errorf("after %d attempts: %w", o.maxAttempts, lastErr)
}

// cacheKey identifies an embedding by provider, model, and text digest.
func (o *EmbeddingOrchestrator) cacheKey(provider driven.EmbeddingService, text string) string {
	return provider.ProviderName() + "/" + provider.ModelName() + "/" + ContentHash(text)
}

// sleepContext waits for d or until the context is cancelled.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
