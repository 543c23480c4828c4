package embedder

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"

	"github.com/regulens/vectorkb/pkg/types"
	"github.com/regulens/vectorkb/pkg/vectormath"
)

// Feature weights for the hash embedding. Unigrams carry the most signal,
// bigrams capture local word order, character trigrams capture sub-word
// structure, and a coarse document-length bucket separates short rules from
// long narratives.
const (
	unigramWeight      = 1.0
	bigramWeight       = 0.75
	trigramWeight      = 0.5
	lengthBucketWeight = 0.5
	lengthBucketSize   = 8
)

// HashClient is the deterministic feature-hash fallback embedder. Identical
// text always yields a bit-identical vector; non-empty text yields an
// L2-normalized vector and empty text yields the zero vector.
type HashClient struct {
	dimensions int
}

// NewHashClient creates a fallback embedder with the given vector width.
// Non-positive widths fall back to the platform default.
func NewHashClient(dimensions int) *HashClient {
	if dimensions <= 0 {
		dimensions = types.DefaultEmbeddingDimensions
	}
	return &HashClient{dimensions: dimensions}
}

// Embed generates embeddings for the given texts.
func (h *HashClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = h.embed(text)
	}
	return out, nil
}

// EmbedSingle generates an embedding for a single text.
func (h *HashClient) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return h.embed(text), nil
}

// Dimensions returns the number of dimensions in the embeddings.
func (h *HashClient) Dimensions() int { return h.dimensions }

// Close is a no-op for the hash embedder.
func (h *HashClient) Close() error { return nil }

func (h *HashClient) embed(text string) []float32 {
	vec := make([]float32, h.dimensions)
	normalized := strings.ToLower(text)
	tokens := strings.Fields(normalized)
	if len(tokens) == 0 {
		return vec
	}

	features := make(map[string]float64, len(normalized))
	for _, term := range tokens {
		features["uni:"+term] += unigramWeight
	}
	for i := 0; i+1 < len(tokens); i++ {
		features["bi:"+tokens[i]+"_"+tokens[i+1]] += bigramWeight
	}
	features[fmt.Sprintf("doc:length_bucket:%d", len(tokens)/lengthBucketSize)] += lengthBucketWeight
	if len(normalized) >= 3 {
		for i := 0; i+3 <= len(normalized); i++ {
			features["tri:"+normalized[i:i+3]] += trigramWeight
		}
	}

	for feature, weight := range features {
		scaled := 1.0 + math.Log(1.0+weight)
		vec[h.bucket(feature)] += float32(scaled)
	}

	vectormath.NormalizeInPlace(vec)
	return vec
}

func (h *HashClient) bucket(feature string) int {
	hasher := fnv.New64a()
	hasher.Write([]byte(feature))
	return int(hasher.Sum64() % uint64(h.dimensions))
}
