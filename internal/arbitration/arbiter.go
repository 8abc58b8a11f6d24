package arbitration

import "context"

// PairArticle is the context handed to the arbiter for one side of a pair.
type PairArticle struct {
	URL     string `json:"url"`
	Title   string `json:"title"`
	Summary string `json:"summary"`
	Source  string `json:"source"`
	Date    string `json:"date"`
}

// Pair is one ambiguous match submitted for arbitration. PairIndex is the
// correlation id: verdicts refer back to it explicitly, never by position.
type Pair struct {
	PairIndex       int         `json:"pair_index"`
	NewArticle      PairArticle `json:"new_article"`
	ExistingArticle PairArticle `json:"existing_article"`
	SimilarityScore float64     `json:"similarity_score"`
}

// Verdict is the arbiter's answer for one pair.
type Verdict struct {
	PairIndex   int    `json:"pair_index"`
	IsDuplicate bool   `json:"is_duplicate"`
	Reason      string `json:"reason"`
}

// Arbiter decides whether ambiguous article pairs report the same event.
// A returned slice may omit pairs; the caller resolves missing pairs with
// its fail-open policy.
type Arbiter interface {
	ConfirmPairs(ctx context.Context, pairs []Pair) ([]Verdict, error)
}
