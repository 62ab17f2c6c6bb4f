// Package similarity holds the brute-force scoring shared by the in-process
// index backends.
package similarity

import (
	"math"
	"sort"

	"pdfrag/internal/domain"
)

// Score returns a relevance score for b against query a. Higher is better for
// every metric; euclidean distances are negated.
func Score(metric domain.Metric, a, b []float32) float64 {
	switch metric {
	case domain.MetricEuclidean:
		return -Euclidean(a, b)
	case domain.MetricDotProduct:
		return Dot(a, b)
	default:
		return Cosine(a, b)
	}
}

// Cosine calculates the cosine similarity between two vectors.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}

func Dot(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

func Euclidean(a, b []float32) float64 {
	if len(a) != len(b) {
		return math.Inf(1)
	}
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

// Rank sorts matches by descending score and keeps the first topK. Ties are
// broken by id so results are stable across runs.
func Rank(matches []domain.Match, topK int) []domain.Match {
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].ID < matches[j].ID
	})
	if topK < len(matches) {
		matches = matches[:topK]
	}
	return matches
}
