package vectorkb

import (
	"context"
	"fmt"
	"sort"

	"github.com/regulens/vectorkb/pkg/store"
	"github.com/regulens/vectorkb/pkg/types"
)

// MemoryStatistics summarizes the knowledge base for operators: backend row
// counts, per-tier retention state, cache effectiveness, and query volume.
type MemoryStatistics struct {
	TotalEntities int64                                       `json:"total_entities"`
	Relationships int64                                       `json:"total_relationships"`
	Interactions  int64                                       `json:"total_interactions"`
	ByPolicy      map[types.RetentionPolicy]store.PolicyStats `json:"by_policy"`
	Cache         store.CacheStats                            `json:"cache"`
	Searches      int64                                       `json:"searches"`
}

// DomainStats summarizes one business domain.
type DomainStats struct {
	Domain            types.Domain                  `json:"domain"`
	EntityCount       int                           `json:"entity_count"`
	ByType            map[types.KnowledgeType]int   `json:"by_type"`
	AverageConfidence float64                       `json:"average_confidence"`
	TotalAccesses     int64                         `json:"total_accesses"`
}

// GetMemoryStatistics reports backend counts plus engine-side counters.
func (e *Engine) GetMemoryStatistics(ctx context.Context) (*MemoryStatistics, error) {
	driverStats, err := e.store.Driver().Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("memory statistics: %w", err)
	}
	return &MemoryStatistics{
		TotalEntities: driverStats.Entities,
		Relationships: driverStats.Relationships,
		Interactions:  driverStats.Interactions,
		ByPolicy:      driverStats.ByPolicy,
		Cache:         e.store.CacheStats(),
		Searches:      e.search.Searches(),
	}, nil
}

// GetDomainStatistics summarizes one domain from the in-memory mirror.
func (e *Engine) GetDomainStatistics(domain types.Domain) *DomainStats {
	stats := &DomainStats{
		Domain: domain,
		ByType: make(map[types.KnowledgeType]int),
	}
	var confidenceSum float64
	for _, entity := range e.store.Candidates(store.CandidateFilter{Domain: domain}) {
		stats.EntityCount++
		stats.ByType[entity.KnowledgeType]++
		stats.TotalAccesses += entity.AccessCount
		confidenceSum += entity.ConfidenceScore
	}
	if stats.EntityCount > 0 {
		stats.AverageConfidence = confidenceSum / float64(stats.EntityCount)
	}
	return stats
}

// GetPopularEntities ranks entities by access count weighted by confidence,
// so a heavily used but distrusted entity does not outrank a trusted one.
// Empty domain means all domains. Ordering is deterministic: weighted score
// descending, entity id ascending.
func (e *Engine) GetPopularEntities(domain types.Domain, limit int) []*types.KnowledgeEntity {
	if limit <= 0 {
		limit = 10
	}
	entities := e.store.Candidates(store.CandidateFilter{Domain: domain})
	weight := func(entity *types.KnowledgeEntity) float64 {
		return float64(entity.AccessCount) * entity.ConfidenceScore
	}
	sort.Slice(entities, func(i, j int) bool {
		wi, wj := weight(entities[i]), weight(entities[j])
		if wi != wj {
			return wi > wj
		}
		return entities[i].EntityID < entities[j].EntityID
	})
	if len(entities) > limit {
		entities = entities[:limit]
	}
	return entities
}

// GetConfidenceDistribution buckets entity confidence into ten equal bands.
// Bucket i holds scores in [i/10, (i+1)/10), with 1.0 landing in the last.
func (e *Engine) GetConfidenceDistribution(domain types.Domain) [10]int {
	var buckets [10]int
	for _, entity := range e.store.Candidates(store.CandidateFilter{Domain: domain}) {
		idx := int(entity.ConfidenceScore * 10)
		if idx > 9 {
			idx = 9
		}
		if idx < 0 {
			idx = 0
		}
		buckets[idx]++
	}
	return buckets
}
