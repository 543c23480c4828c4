package search

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/regulens/vectorkb/pkg/embedder"
	"github.com/regulens/vectorkb/pkg/store"
	"github.com/regulens/vectorkb/pkg/types"
	"github.com/regulens/vectorkb/pkg/vectormath"
)

// nativeOverfetch is how many extra candidates the native path requests so
// threshold filtering still fills the result list.
const nativeOverfetch = 2

// Engine is the similarity search engine over a Store and an embedding client.
type Engine struct {
	store    *store.Store
	embedder embedder.Client
	logger   *slog.Logger

	searches atomic.Int64
}

// NewEngine wires the search engine. All dependencies are injected.
func NewEngine(st *store.Store, emb embedder.Client, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{store: st, embedder: emb, logger: logger}
}

// Searches reports how many queries this engine has served.
func (e *Engine) Searches() int64 { return e.searches.Load() }

// Search runs a semantic similarity query. It never returns an error: embed
// or backend failures are logged and produce an empty result list. Results
// are ordered by score descending with entity id as the tie-break, so equal
// inputs always produce identical output.
func (e *Engine) Search(ctx context.Context, query types.SemanticQuery) []types.QueryResult {
	started := time.Now()
	e.searches.Add(1)

	q := query.Normalize()
	embedding, ok := e.queryEmbedding(ctx, q)
	if !ok {
		return nil
	}

	results := e.rank(ctx, q, embedding, started)
	e.touch(ctx, results)
	return results
}

// rank produces the ordered, truncated result list without side effects on
// access counters. The hybrid coordinator reuses it.
func (e *Engine) rank(ctx context.Context, q types.SemanticQuery, embedding []float32, started time.Time) []types.QueryResult {
	terms := queryTerms(q.Text)

	results := e.rankNative(ctx, q, embedding, terms)
	if results == nil {
		results = e.rankInProcess(q, embedding, terms)
	}

	sortResults(results)
	if len(results) > q.MaxResults {
		results = results[:q.MaxResults]
	}

	elapsed := time.Since(started)
	for i := range results {
		results[i].QueryTime = elapsed
	}
	return results
}

// rankNative delegates ordering to the driver's vector index. Returns nil
// when the capability is absent, filters rule it out, or the backend fails,
// which sends the caller down the in-process path.
func (e *Engine) rankNative(ctx context.Context, q types.SemanticQuery, embedding []float32, terms []string) []types.QueryResult {
	vs, ok := e.store.Driver().(store.VectorSearcher)
	if !ok {
		return nil
	}
	// The native index only narrows by domain; other filters need the
	// in-process candidate walk.
	if len(q.KnowledgeTypes) > 0 || len(q.Tags) > 0 || q.MaxAge > 0 {
		return nil
	}

	scored, err := vs.SearchByEmbedding(ctx, embedding, q.Metric, q.Domain, q.MaxResults*nativeOverfetch)
	if err != nil {
		if err != store.ErrNativeSearchUnavailable {
			e.logger.Warn("native vector search failed, falling back to in-process scoring", "error", err)
		}
		return nil
	}

	ids := make([]string, len(scored))
	scoreByID := make(map[string]float64, len(scored))
	for i, s := range scored {
		ids[i] = s.EntityID
		scoreByID[s.EntityID] = s.Score
	}
	entities, err := e.store.GetBatch(ctx, ids)
	if err != nil {
		e.logger.Warn("hydrating native search results failed, falling back to in-process scoring", "error", err)
		return nil
	}

	now := time.Now()
	results := make([]types.QueryResult, 0, len(entities))
	for _, entity := range entities {
		if entity.Expired(now) {
			continue
		}
		score := scoreByID[entity.EntityID]
		if score < q.SimilarityThreshold {
			continue
		}
		results = append(results, e.result(entity, score, q, terms))
	}
	return results
}

// rankInProcess scores the store's candidate set with the package vectormath.
func (e *Engine) rankInProcess(q types.SemanticQuery, embedding []float32, terms []string) []types.QueryResult {
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

	candidates := e.store.Candidates(filter)
	results := make([]types.QueryResult, 0, len(candidates))
	for _, entity := range candidates {
		if len(entity.Embedding) != len(embedding) {
			continue
		}
		score := vectormath.Similarity(embedding, entity.Embedding, q.Metric)
		if score < q.SimilarityThreshold {
			continue
		}
		results = append(results, e.result(entity, score, q, terms))
	}
	return results
}

func (e *Engine) result(entity *types.KnowledgeEntity, score float64, q types.SemanticQuery, terms []string) types.QueryResult {
	matched := matchedTerms(entity, terms)
	return types.QueryResult{
		Entity:          entity,
		SimilarityScore: score,
		MatchedTerms:    matched,
		Explanation: types.Explanation{
			Similarity:   score,
			MatchedTerms: matched,
			Confidence:   entity.ConfidenceScore,
			Metric:       q.Metric,
			Domain:       entity.Domain,
			Type:         entity.KnowledgeType,
		},
	}
}

// queryEmbedding resolves the query vector: precomputed wins, otherwise the
// text is embedded. A wrong-width vector or an embed failure ends the search.
func (e *Engine) queryEmbedding(ctx context.Context, q types.SemanticQuery) ([]float32, bool) {
	if len(q.Embedding) > 0 {
		if len(q.Embedding) != e.store.Dimensions() {
			e.logger.Warn("rejecting query embedding with wrong width",
				"got", len(q.Embedding), "want", e.store.Dimensions())
			return nil, false
		}
		return q.Embedding, true
	}
	if q.Text == "" {
		e.logger.Warn("query has neither text nor embedding")
		return nil, false
	}
	embedding, err := e.embedder.EmbedSingle(ctx, q.Text)
	if err != nil {
		e.logger.Error("embedding query text failed", "error", err)
		return nil, false
	}
	return embedding, true
}

// touch bumps access counters for returned entities. Failures only log; a
// missed counter update must not fail the query.
func (e *Engine) touch(ctx context.Context, results []types.QueryResult) {
	if len(results) == 0 {
		return
	}
	ids := make([]string, len(results))
	for i, r := range results {
		ids[i] = r.Entity.EntityID
	}
	if err := e.store.TouchAccessed(ctx, ids, time.Now()); err != nil {
		e.logger.Warn("updating access counters failed", "error", err)
	}
}

// sortResults orders by score descending, entity id ascending.
func sortResults(results []types.QueryResult) {
	sort.Slice(results, func(i, j int) bool {
		if results[i].SimilarityScore != results[j].SimilarityScore {
			return results[i].SimilarityScore > results[j].SimilarityScore
		}
		return results[i].Entity.EntityID < results[j].Entity.EntityID
	})
}

// queryTerms lowercases and splits the query text.
func queryTerms(text string) []string {
	return strings.Fields(strings.ToLower(text))
}

// matchedTerms reports which query terms appear in the entity's title,
// content, or tags.
func matchedTerms(entity *types.KnowledgeEntity, terms []string) []string {
	if len(terms) == 0 {
		return nil
	}
	title := strings.ToLower(entity.Title)
	content := strings.ToLower(entity.Content)

	var matched []string
	for _, term := range terms {
		if strings.Contains(title, term) || strings.Contains(content, term) {
			matched = append(matched, term)
			continue
		}
		for _, tag := range entity.Tags {
			if strings.EqualFold(tag, term) {
				matched = append(matched, term)
				break
			}
		}
	}
	return matched
}
