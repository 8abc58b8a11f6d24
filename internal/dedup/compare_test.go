package dedup

import (
	"math"
	"testing"
	"time"
)

func TestCosineSimilarity(t *testing.T) {
	t.Parallel()

	if got := CosineSimilarity([]float64{1, 0}, []float64{1, 0}); math.Abs(got-1) > 1e-12 {
		t.Fatalf("identical vectors: got %v, want 1", got)
	}
	if got := CosineSimilarity([]float64{1, 0}, []float64{0, 1}); math.Abs(got) > 1e-12 {
		t.Fatalf("orthogonal vectors: got %v, want 0", got)
	}
	if got := CosineSimilarity([]float64{1, 0}, []float64{-1, 0}); math.Abs(got+1) > 1e-12 {
		t.Fatalf("opposite vectors: got %v, want -1", got)
	}
}

func TestCosineSimilarityDegenerateInputs(t *testing.T) {
	t.Parallel()

	if got := CosineSimilarity(nil, nil); got != 0 {
		t.Fatalf("empty vectors: got %v, want 0", got)
	}
	if got := CosineSimilarity([]float64{1, 2}, []float64{1, 2, 3}); got != 0 {
		t.Fatalf("mismatched lengths: got %v, want 0", got)
	}
	if got := CosineSimilarity([]float64{0, 0}, []float64{1, 2}); got != 0 {
		t.Fatalf("zero magnitude: got %v, want 0", got)
	}
}

func TestBestMatchEmptyPool(t *testing.T) {
	t.Parallel()

	if match := BestMatch([]float64{1, 0}, nil); match != nil {
		t.Fatalf("expected nil match for empty pool, got %+v", match)
	}
}

func TestBestMatchPicksHighestScore(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 8, 26, 10, 0, 0, 0, time.UTC)
	pool := []Candidate{
		{ArticleID: 1, URL: "https://a.example/1", Embedding: []float64{0, 1}, CreatedAt: base},
		{ArticleID: 2, URL: "https://a.example/2", Embedding: []float64{1, 0.1}, CreatedAt: base.Add(time.Hour)},
		{ArticleID: 3, URL: "https://a.example/3", Embedding: []float64{1, 1}, CreatedAt: base.Add(2 * time.Hour)},
	}

	match := BestMatch([]float64{1, 0}, pool)
	if match == nil {
		t.Fatal("expected a match")
	}
	if match.Candidate.ArticleID != 2 {
		t.Fatalf("expected candidate 2, got %d", match.Candidate.ArticleID)
	}
}

func TestBestMatchTieBreaksToEarliestCandidate(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 8, 26, 10, 0, 0, 0, time.UTC)
	// Identical embeddings, pool ordered by created_at ascending.
	pool := []Candidate{
		{ArticleID: 10, URL: "https://a.example/old", Embedding: []float64{1, 0}, CreatedAt: base},
		{ArticleID: 11, URL: "https://a.example/new", Embedding: []float64{1, 0}, CreatedAt: base.Add(time.Hour)},
	}

	match := BestMatch([]float64{1, 0}, pool)
	if match == nil {
		t.Fatal("expected a match")
	}
	if match.Candidate.ArticleID != 10 {
		t.Fatalf("tie should break to the earliest candidate, got %d", match.Candidate.ArticleID)
	}
	if math.Abs(match.Score-1) > 1e-12 {
		t.Fatalf("unexpected score %v", match.Score)
	}
}
