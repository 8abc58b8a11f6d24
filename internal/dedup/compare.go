package dedup

import (
	"math"
	"time"
)

// Candidate is one member of the similarity candidate pool: either a
// historical record loaded from the store or an article accepted earlier in
// the same run.
type Candidate struct {
	ArticleID  int64
	URL        string
	Title      string
	Summary    string
	SourceName string
	SourceType string
	Embedding  []float64
	PublishedAt *time.Time
	CreatedAt  time.Time
}

// Match is the best-scoring candidate for one new article.
type Match struct {
	Candidate Candidate
	Score     float64
}

// BestMatch returns the highest-scoring candidate for the embedding, or nil
// when the pool is empty. Candidates must be ordered by (created_at, id)
// ascending; a candidate replaces the current best only on a strictly
// greater score, so equal scores break to the earliest candidate.
func BestMatch(embedding []float64, pool []Candidate) *Match {
	if len(pool) == 0 {
		return nil
	}

	best := -1
	bestScore := math.Inf(-1)
	for i := range pool {
		score := CosineSimilarity(embedding, pool[i].Embedding)
		if score > bestScore {
			best = i
			bestScore = score
		}
	}
	if best < 0 {
		return nil
	}

	return &Match{Candidate: pool[best], Score: bestScore}
}

// CosineSimilarity computes the cosine of the angle between two vectors.
// Mismatched lengths and zero-magnitude vectors score 0.
func CosineSimilarity(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
