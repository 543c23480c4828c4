package types

import "time"

// SimilarityMetric selects the vector distance used for ranking.
type SimilarityMetric string

const (
	MetricCosine     SimilarityMetric = "cosine"
	MetricEuclidean  SimilarityMetric = "euclidean"
	MetricDotProduct SimilarityMetric = "dot"
	MetricManhattan  SimilarityMetric = "manhattan"
)

// Valid reports whether m is one of the supported metrics.
func (m SimilarityMetric) Valid() bool {
	switch m {
	case MetricCosine, MetricEuclidean, MetricDotProduct, MetricManhattan:
		return true
	}
	return false
}

// ParseSimilarityMetric maps a wire string to a metric, defaulting to cosine.
func ParseSimilarityMetric(s string) SimilarityMetric {
	m := SimilarityMetric(s)
	if m.Valid() {
		return m
	}
	return MetricCosine
}

// SemanticQuery describes a similarity search. Either Text or Embedding must
// be set; when both are present the precomputed embedding wins and Text is
// still used for keyword-term matching.
type SemanticQuery struct {
	Text      string    `json:"text,omitempty"`
	Embedding []float32 `json:"embedding,omitempty"`

	// Domain narrows results to one business area. Empty means all domains.
	Domain Domain `json:"domain,omitempty"`
	// KnowledgeTypes narrows results to a set of types. Empty means all.
	KnowledgeTypes []KnowledgeType `json:"knowledge_types,omitempty"`
	// Tags keeps only entities sharing at least one tag. Empty means all.
	Tags []string `json:"tags,omitempty"`
	// MaxAge drops entities created before now-MaxAge. Zero means no cutoff.
	MaxAge time.Duration `json:"max_age,omitempty"`

	Metric              SimilarityMetric `json:"metric,omitempty"`
	SimilarityThreshold float64          `json:"similarity_threshold"`
	MaxResults          int              `json:"max_results"`
}

// Normalize fills in the defaults a caller may omit.
func (q SemanticQuery) Normalize() SemanticQuery {
	if q.Metric == "" {
		q.Metric = MetricCosine
	}
	if q.MaxResults <= 0 {
		q.MaxResults = 10
	}
	return q
}

// Explanation records why a result was returned, for downstream audit trails.
type Explanation struct {
	Similarity   float64          `json:"similarity"`
	MatchedTerms []string         `json:"matched_terms"`
	Confidence   float64          `json:"confidence"`
	Metric       SimilarityMetric `json:"metric"`
	Domain       Domain           `json:"domain"`
	Type         KnowledgeType    `json:"type"`
}

// QueryResult is one ranked hit from semantic or hybrid search.
type QueryResult struct {
	Entity          *KnowledgeEntity `json:"entity"`
	SimilarityScore float64          `json:"similarity_score"`
	MatchedTerms    []string         `json:"matched_terms,omitempty"`
	Explanation     Explanation      `json:"explanation"`
	QueryTime       time.Duration    `json:"query_time"`
}
