package driven

import (
	"context"
)

// EmbeddingService turns text into fixed-width vectors.
// Embed never fails: a nil vector means "no vector available" and callers
// store the chunk without one.
type EmbeddingService interface {
	// Embed returns a vector for text, or nil when none could be produced
	Embed(ctx context.Context, text string) []float32

	// Dimensions returns the embedding dimension size
	Dimensions() int

	// Model returns the model name being used
	Model() string
}

// ProviderClient calls a remote model API with one specific API key.
// Rate-limit and resource-exhausted responses must wrap domain.ErrQuotaExhausted
// so the caller can rotate to the next key.
type ProviderClient interface {
	// Name identifies the provider (gemini, openai)
	Name() string

	// EmbeddingModel returns the embedding model name
	EmbeddingModel() string

	// EmbedWithKey embeds text using key
	EmbedWithKey(ctx context.Context, key, text string) ([]float32, error)

	// GenerateWithKey runs a text generation prompt using key
	GenerateWithKey(ctx context.Context, key, prompt string) (string, error)
}
