package services

import (
	"sort"

	"github.com/custodia-labs/milo/internal/core/domain"
	"github.com/custodia-labs/milo/internal/core/ports/driven"
)

// DistanceToSimilarity converts a cosine distance to a 0-100 score.
func DistanceToSimilarity(distance float64) float64 {
	s := (1 - distance) * 100
	switch {
	case s < 0:
		return 0
	case s > 100:
		return 100
	default:
		return s
	}
}

// ToResults converts store hits to retrieval results.
func ToResults(hits []driven.VectorHit) []domain.RetrievalResult {
	out := make([]domain.RetrievalResult, len(hits))
	for i, h := range hits {
		out[i] = domain.RetrievalResult{
			ChunkID:    h.ID,
			Content:    h.Content,
			Metadata:   h.Metadata,
			Similarity: DistanceToSimilarity(h.Distance),
		}
	}
	return out
}

// Rank sorts results by similarity (highest first) and keeps those at or
// above threshold. When none qualify, the full sorted set is returned and
// fellBack is true. Ties keep their original relative order.
func Rank(results []domain.RetrievalResult, threshold float64) (ranked []domain.RetrievalResult, fellBack bool) {
	sorted := make([]domain.RetrievalResult, len(results))
	copy(sorted, results)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Similarity > sorted[j].Similarity
	})

	filtered := make([]domain.RetrievalResult, 0, len(sorted))
	for _, r := range sorted {
		if r.Similarity >= threshold {
			filtered = append(filtered, r)
		}
	}
	if len(filtered) == 0 && len(sorted) > 0 {
		return sorted, true
	}
	return filtered, false
}
