package embedder

import (
	"context"
	"sync"
	"time"
)

// CachingClient wraps a Client with a TTL-bounded, size-capped cache keyed by
// input text. Query embedding is on every search path, so repeated queries
// should not pay the provider round trip twice.
type CachingClient struct {
	inner   Client
	ttl     time.Duration
	maxSize int

	mu      sync.Mutex
	entries map[string]cacheEntry

	now func() time.Time // test hook
}

type cacheEntry struct {
	vector   []float32
	storedAt time.Time
}

// NewCachingClient decorates inner with a cache. A non-positive ttl disables
// expiry; a non-positive maxSize defaults to 10000 entries.
func NewCachingClient(inner Client, ttl time.Duration, maxSize int) *CachingClient {
	if maxSize <= 0 {
		maxSize = 10000
	}
	return &CachingClient{
		inner:   inner,
		ttl:     ttl,
		maxSize: maxSize,
		entries: make(map[string]cacheEntry),
		now:     time.Now,
	}
}

// Embed generates embeddings for the given texts, serving cached vectors
// where possible and delegating the rest in a single provider call.
func (c *CachingClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var missing []string
	var missingIdx []int

	c.mu.Lock()
	for i, text := range texts {
		if vec, ok := c.lookupLocked(text); ok {
			out[i] = vec
			continue
		}
		missing = append(missing, text)
		missingIdx = append(missingIdx, i)
	}
	c.mu.Unlock()

	if len(missing) == 0 {
		return out, nil
	}

	computed, err := c.inner.Embed(ctx, missing)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	for i, vec := range computed {
		out[missingIdx[i]] = vec
		c.storeLocked(missing[i], vec)
	}
	c.mu.Unlock()
	return out, nil
}

// EmbedSingle generates an embedding for a single text.
func (c *CachingClient) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// Dimensions returns the number of dimensions in the embeddings.
func (c *CachingClient) Dimensions() int { return c.inner.Dimensions() }

// Close cleans up the wrapped client.
func (c *CachingClient) Close() error { return c.inner.Close() }

// Len reports the current number of cached vectors.
func (c *CachingClient) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *CachingClient) lookupLocked(text string) ([]float32, bool) {
	entry, ok := c.entries[text]
	if !ok {
		return nil, false
	}
	if c.ttl > 0 && c.now().Sub(entry.storedAt) > c.ttl {
		delete(c.entries, text)
		return nil, false
	}
	return entry.vector, true
}

func (c *CachingClient) storeLocked(text string, vec []float32) {
	if len(c.entries) >= c.maxSize {
		// Full reset beats tracking LRU order for a cache this cheap to refill.
		c.entries = make(map[string]cacheEntry, c.maxSize)
	}
	c.entries[text] = cacheEntry{vector: vec, storedAt: c.now()}
}
