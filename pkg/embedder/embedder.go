// Package embedder turns text into fixed-dimension normalized vectors.
//
// The engine only depends on the Client interface, so any provider can be
// substituted without touching callers. Two implementations ship here:
//
//   - HashClient: a deterministic feature-hash fallback. It is explicitly a
//     low-fidelity stand-in for a learned embedding model, kept because its
//     determinism and dimension stability make the engine testable and usable
//     offline. Production deployments should configure a real provider.
//   - OpenAIClient: a thin wrapper over the OpenAI embeddings API.
//
// A CachingClient decorator adds a TTL-bounded text-keyed cache in front of
// any provider.
package embedder

import "context"

// Client generates embeddings for text.
//
// Contract: Embed is deterministic for a given input; empty text maps to the
// zero vector; non-empty text maps to an L2-normalized vector of exactly
// Dimensions() components.
type Client interface {
	// Embed generates embeddings for the given texts, one vector per input.
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedSingle generates an embedding for a single text.
	EmbedSingle(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns the number of dimensions in the embeddings.
	Dimensions() int

	// Close cleans up any resources.
	Close() error
}

// Config holds common provider settings.
type Config struct {
	Provider   string
	Model      string
	APIKey     string
	BaseURL    string
	Dimensions int
}
