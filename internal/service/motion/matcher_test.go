package motion

import (
	"math"
	"testing"

	"github.com/mirrorwell/exhibit/backend/internal/model/motion"
)

func TestCosineSimilaritySymmetric(t *testing.T) {
	a := []float64{0.3, -0.7, 0.2}
	b := []float64{0.9, 0.1, -0.4}

	if CosineSimilarity(a, b) != CosineSimilarity(b, a) {
		t.Fatal("cosine similarity must be symmetric")
	}
}

func TestCosineSimilarityIdentity(t *testing.T) {
	a := []float64{0.5, 0.5, 0.1}
	if sim := CosineSimilarity(a, a); math.Abs(sim-1.0) > 1e-9 {
		t.Fatalf("expected 1.0 for identical vectors, got %f", sim)
	}
}

func TestCosineSimilarityDegenerateVectors(t *testing.T) {
	if sim := CosineSimilarity([]float64{0, 0}, []float64{1, 0}); sim != -1 {
		t.Fatalf("zero-magnitude vector must score -1, got %f", sim)
	}
	if sim := CosineSimilarity([]float64{1, 0}, []float64{1, 0, 0}); sim != -1 {
		t.Fatalf("length mismatch must score -1, got %f", sim)
	}
	if sim := CosineSimilarity(nil, nil); sim != -1 {
		t.Fatalf("empty vectors must score -1, got %f", sim)
	}
}

func TestClosestPicksHighestSimilarity(t *testing.T) {
	entries := []motion.Entry{
		{Index: 1, Description: "걷기", Embedding: []float64{1, 0}, EmbeddingSource: motion.SourceDescription},
		{Index: 2, Description: "앉기", Embedding: []float64{0, 1}, EmbeddingSource: motion.SourceDescription},
	}

	best, score, ok := Closest([]float64{0.9, 0.1}, entries)
	if !ok {
		t.Fatal("expected a match")
	}
	if best.Index != 1 {
		t.Fatalf("expected index 1, got %d", best.Index)
	}
	if score <= 0 {
		t.Fatalf("unexpected score %f", score)
	}
}

func TestClosestSingleEntryCorpus(t *testing.T) {
	entries := []motion.Entry{
		{Index: 7, Description: "점프", Embedding: []float64{0.2, 0.8}, EmbeddingSource: motion.SourceDescription},
	}

	best, _, ok := Closest([]float64{-1, -1}, entries)
	if !ok || best.Index != 7 {
		t.Fatal("single vectored entry must always be returned")
	}
}

func TestClosestSkipsInvalidVectors(t *testing.T) {
	entries := []motion.Entry{
		// Stale: vector cached from description but prompt is now preferred.
		{Index: 1, Description: "걷기", Prompt: "walk forward", Embedding: []float64{1, 0}, EmbeddingSource: motion.SourceDescription},
		{Index: 2, Description: "앉기"},
	}

	if _, _, ok := Closest([]float64{1, 0}, entries); ok {
		t.Fatal("stale and missing vectors must never match")
	}
}
