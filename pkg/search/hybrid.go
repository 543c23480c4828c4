package search

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/regulens/vectorkb/pkg/store"
	"github.com/regulens/vectorkb/pkg/types"
)

// Default hybrid weights. Vector similarity dominates; keyword matching
// breaks semantic near-ties toward literal relevance.
const (
	DefaultVectorWeight  = 0.65
	DefaultKeywordWeight = 0.35
)

// HybridConfig tunes the weighted merge of vector and keyword rankings.
type HybridConfig struct {
	VectorWeight  float64 `json:"vector_weight"`
	KeywordWeight float64 `json:"keyword_weight"`
}

// DefaultHybridConfig returns the standard 0.65/0.35 split.
func DefaultHybridConfig() HybridConfig {
	return HybridConfig{VectorWeight: DefaultVectorWeight, KeywordWeight: DefaultKeywordWeight}
}

// Hybrid coordinates vector and keyword search into one weighted ranking.
type Hybrid struct {
	engine *Engine
	store  *store.Store
	cfg    HybridConfig
	logger *slog.Logger
}

// NewHybrid wires the coordinator over an existing Engine.
func NewHybrid(engine *Engine, st *store.Store, cfg HybridConfig, logger *slog.Logger) *Hybrid {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.VectorWeight <= 0 && cfg.KeywordWeight <= 0 {
		cfg = DefaultHybridConfig()
	}
	return &Hybrid{engine: engine, store: st, cfg: cfg, logger: logger}
}

// Search runs vector and keyword rankings and merges them by entity id:
// combined = vector_weight*vector + keyword_weight*keyword, capped at 1.0.
// An entity found by only one ranking contributes zero for the other. The
// merged list is ordered score descending, entity id ascending. Like the
// vector path it never returns an error.
func (h *Hybrid) Search(ctx context.Context, query types.SemanticQuery) []types.QueryResult {
	started := time.Now()
	h.engine.searches.Add(1)

	q := query.Normalize()
	embedding, ok := h.engine.queryEmbedding(ctx, q)
	if !ok {
		return nil
	}
	terms := queryTerms(q.Text)

	// Rank wide on both sides so the merge sees every plausible entity, then
	// truncate once after combining.
	wide := q
	wide.MaxResults = q.MaxResults * 3

	vector := h.engine.rank(ctx, wide, embedding, started)
	keyword := h.keywordRank(q, terms)

	type merged struct {
		entity   *types.KnowledgeEntity
		vector   float64
		keyword  float64
		terms    map[string]struct{}
	}
	byID := make(map[string]*merged, len(vector)+len(keyword))

	for _, r := range vector {
		m := &merged{entity: r.Entity, vector: r.SimilarityScore, terms: make(map[string]struct{})}
		for _, t := range r.MatchedTerms {
			m.terms[t] = struct{}{}
		}
		byID[r.Entity.EntityID] = m
	}
	for _, r := range keyword {
		m, ok := byID[r.Entity.EntityID]
		if !ok {
			m = &merged{entity: r.Entity, terms: make(map[string]struct{})}
			byID[r.Entity.EntityID] = m
		}
		m.keyword = r.SimilarityScore
		for _, t := range r.MatchedTerms {
			m.terms[t] = struct{}{}
		}
	}

	elapsed := time.Since(started)
	results := make([]types.QueryResult, 0, len(byID))
	for _, m := range byID {
		score := h.cfg.VectorWeight*m.vector + h.cfg.KeywordWeight*m.keyword
		if score > 1.0 {
			score = 1.0
		}
		if score < q.SimilarityThreshold {
			continue
		}
		matched := make([]string, 0, len(m.terms))
		for t := range m.terms {
			matched = append(matched, t)
		}
		sort.Strings(matched)
		results = append(results, types.QueryResult{
			Entity:          m.entity,
			SimilarityScore: score,
			MatchedTerms:    matched,
			Explanation: types.Explanation{
				Similarity:   m.vector,
				MatchedTerms: matched,
				Confidence:   m.entity.ConfidenceScore,
				Metric:       q.Metric,
				Domain:       m.entity.Domain,
				Type:         m.entity.KnowledgeType,
			},
			QueryTime: elapsed,
		})
	}

	sortResults(results)
	if len(results) > q.MaxResults {
		results = results[:q.MaxResults]
	}
	h.engine.touch(ctx, results)
	return results
}

// keywordRank matches query terms against title, content, and tags, ranks
// matches by confidence (the store's standing relevance signal) with entity
// id as the tie-break, and assigns each a rank-decayed pseudo-score:
// min(1.0, 0.5 + 0.5*(1 - rank/n)). The top match scores 1.0 and the tail
// approaches 0.5, keeping keyword evidence bounded next to real similarity.
func (h *Hybrid) keywordRank(q types.SemanticQuery, terms []string) []types.QueryResult {
	if len(terms) == 0 {
		return nil
	}
	now := time.Now()
	filter := store.CandidateFilter{
		Domain: q.Domain,
		Types:  q.KnowledgeTypes,
		Tags:   q.Tags,
		Now:    now,
	}
	if q.MaxAge > 0 {
		filter.CreatedAfter = now.Add(-q.MaxAge)
	}

	var matches []*types.KnowledgeEntity
	matchedByID := make(map[string][]string)
	for _, entity := range h.store.Candidates(filter) {
		matched := matchedTerms(entity, terms)
		if len(matched) == 0 {
			continue
		}
		matches = append(matches, entity)
		matchedByID[entity.EntityID] = matched
	}
	if len(matches) == 0 {
		return nil
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].ConfidenceScore != matches[j].ConfidenceScore {
			return matches[i].ConfidenceScore > matches[j].ConfidenceScore
		}
		return matches[i].EntityID < matches[j].EntityID
	})

	n := float64(len(matches))
	results := make([]types.QueryResult, len(matches))
	for i, entity := range matches {
		score := 0.5 + 0.5*(1.0-float64(i)/n)
		if score > 1.0 {
			score = 1.0
		}
		results[i] = types.QueryResult{
			Entity:          entity,
			SimilarityScore: score,
			MatchedTerms:    matchedByID[entity.EntityID],
		}
	}
	return results
}

// ContainsAllTerms reports whether every query term appears in the entity's
// searchable text. Used by callers that need strict keyword filtering on top
// of the ranked search.
func ContainsAllTerms(entity *types.KnowledgeEntity, text string) bool {
	terms := queryTerms(text)
	if len(terms) == 0 {
		return true
	}
	haystack := strings.ToLower(entity.Title + " " + entity.Content + " " + strings.Join(entity.Tags, " "))
	for _, term := range terms {
		if !strings.Contains(haystack, term) {
			return false
		}
	}
	return true
}
