package embedder

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/regulens/vectorkb/pkg/types"
	"github.com/regulens/vectorkb/pkg/vectormath"
)

// OpenAIClient implements Client against the OpenAI embeddings API (or any
// compatible endpoint via BaseURL).
type OpenAIClient struct {
	client *openai.Client
	config *Config
}

// NewOpenAIClient creates an OpenAI-backed embedder.
func NewOpenAIClient(config *Config) (*OpenAIClient, error) {
	if config == nil || config.APIKey == "" {
		return nil, fmt.Errorf("openai embedder requires an API key")
	}
	if config.Model == "" {
		config.Model = string(openai.SmallEmbedding3)
	}
	if config.Dimensions <= 0 {
		config.Dimensions = types.DefaultEmbeddingDimensions
	}

	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}

	return &OpenAIClient{
		client: openai.NewClientWithConfig(clientConfig),
		config: config,
	}, nil
}

// Embed generates embeddings for the given texts. Empty inputs short-circuit
// to the zero vector to honor the Client contract without an API round trip.
func (o *OpenAIClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var pending []string
	var pendingIdx []int
	for i, text := range texts {
		if text == "" {
			out[i] = make([]float32, o.config.Dimensions)
			continue
		}
		pending = append(pending, text)
		pendingIdx = append(pendingIdx, i)
	}
	if len(pending) == 0 {
		return out, nil
	}

	resp, err := o.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input:      pending,
		Model:      openai.EmbeddingModel(o.config.Model),
		Dimensions: o.config.Dimensions,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate embeddings: %w", err)
	}
	if len(resp.Data) != len(pending) {
		return nil, fmt.Errorf("embedding response has %d vectors, want %d", len(resp.Data), len(pending))
	}

	for i, datum := range resp.Data {
		vec := make([]float32, len(datum.Embedding))
		copy(vec, datum.Embedding)
		vectormath.NormalizeInPlace(vec)
		out[pendingIdx[i]] = vec
	}
	return out, nil
}

// EmbedSingle generates an embedding for a single text.
func (o *OpenAIClient) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := o.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(embeddings) == 0 {
		return nil, fmt.Errorf("no embeddings returned")
	}
	return embeddings[0], nil
}

// Dimensions returns the number of dimensions in the embeddings.
func (o *OpenAIClient) Dimensions() int { return o.config.Dimensions }

// Close cleans up any resources.
func (o *OpenAIClient) Close() error { return nil }
