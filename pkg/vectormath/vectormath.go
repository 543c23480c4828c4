// Package vectormath provides the similarity metrics and vector helpers the
// search engine scores with. Distance-based metrics are mapped into a
// similarity in (0, 1] via 1/(1+d) so every metric ranks descending.
package vectormath

import (
	"math"

	"github.com/regulens/vectorkb/pkg/types"
)

// CosineSimilarity calculates the cosine similarity between two float32
// vectors. Returns 0 if the vectors differ in length, are empty, or either
// has zero magnitude. The result is in [-1, 1].
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// DotProduct calculates the dot product of two float32 vectors.
// Returns 0 if the vectors differ in length.
func DotProduct(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var result float64
	for i := range a {
		result += float64(a[i]) * float64(b[i])
	}
	return result
}

// EuclideanDistance calculates the L2 distance between two float32 vectors.
func EuclideanDistance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return math.Inf(1)
	}
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

// ManhattanDistance calculates the L1 distance between two float32 vectors.
func ManhattanDistance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return math.Inf(1)
	}
	var sum float64
	for i := range a {
		sum += math.Abs(float64(a[i]) - float64(b[i]))
	}
	return sum
}

// Similarity scores two vectors under the requested metric. All metrics
// return higher-is-closer; distances are inverted via 1/(1+d) and the raw
// dot product is clamped to [0, 1] so thresholds compose across metrics.
func Similarity(a, b []float32, metric types.SimilarityMetric) float64 {
	switch metric {
	case types.MetricEuclidean:
		d := EuclideanDistance(a, b)
		if math.IsInf(d, 1) {
			return 0
		}
		return 1.0 / (1.0 + d)
	case types.MetricDotProduct:
		dot := DotProduct(a, b)
		if dot < 0 {
			return 0
		}
		if dot > 1 {
			return 1
		}
		return dot
	case types.MetricManhattan:
		d := ManhattanDistance(a, b)
		if math.IsInf(d, 1) {
			return 0
		}
		return 1.0 / (1.0 + d)
	default:
		return CosineSimilarity(a, b)
	}
}

// Magnitude calculates the Euclidean magnitude (L2 norm) of a float32 vector.
func Magnitude(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

// NormalizeInPlace scales v to unit length. A zero or empty vector is left
// unchanged.
func NormalizeInPlace(v []float32) {
	mag := Magnitude(v)
	if mag == 0 {
		return
	}
	inv := 1.0 / mag
	for i := range v {
		v[i] = float32(float64(v[i]) * inv)
	}
}

// IsZero reports whether every component of v is exactly zero.
func IsZero(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}
