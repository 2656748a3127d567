package motion

import (
	"math"

	"github.com/mirrorwell/exhibit/backend/internal/model/motion"
)

// CosineSimilarity computes (a·b)/(|a||b|). Mismatched lengths and
// zero-magnitude vectors score -1, a guaranteed losing score so degenerate
// vectors are never selected over a real candidate.
func CosineSimilarity(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return -1
	}

	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return -1
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// Closest returns the entry with the highest cosine similarity to the query
// among entries holding a valid vector. ok is false when no entry qualifies.
func Closest(query []float64, entries []motion.Entry) (best motion.Entry, score float64, ok bool) {
	score = math.Inf(-1)
	for _, entry := range entries {
		if !entry.EmbeddingValid() {
			continue
		}
		if sim := CosineSimilarity(query, entry.Embedding); sim > score {
			best = entry
			score = sim
			ok = true
		}
	}
	if !ok {
		return motion.Entry{}, 0, false
	}
	return best, score, true
}
