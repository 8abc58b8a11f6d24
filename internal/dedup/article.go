package dedup

import "time"

// Article is one news item flowing through a dedup run. URL is canonical
// once the merge stage has processed it; Embedding is populated by the
// embed stage.
type Article struct {
	URL         string
	Title       string
	Summary     string
	SourceName  string
	SourceType  string
	Language    string
	Region      *string
	Category    *string
	Layer       *string
	PublishedAt *time.Time
	Embedding   []float64
}

// ChannelBatch groups the articles collected from one ingestion channel.
type ChannelBatch struct {
	Channel  string
	Articles []Article
}

// MalformedArticle records an input article excluded before embedding.
type MalformedArticle struct {
	Article Article
	Reason  string
}

// Outcome is the final audited result for one post-merge article.
type Outcome string

const (
	OutcomeKeptUnique                   Outcome = "kept_unique"
	OutcomeKeptDuplicateConfirmedUnique Outcome = "kept_duplicate_confirmed_unique"
	OutcomeDiscardedDuplicate           Outcome = "discarded_duplicate"
	OutcomeDiscardedDuplicateConfirmed  Outcome = "discarded_duplicate_confirmed"
)

// Kept reports whether the outcome keeps the article.
func (o Outcome) Kept() bool {
	return o == OutcomeKeptUnique || o == OutcomeKeptDuplicateConfirmedUnique
}

// MatchType names how a duplicate match was established.
type MatchType string

const (
	MatchURLExact     MatchType = "url_exact"
	MatchSemanticAuto MatchType = "semantic_auto"
	MatchSemanticLLM  MatchType = "semantic_llm"
)

// Decision is the in-memory audit record for one article in one run.
type Decision struct {
	Article          Article
	Outcome          Outcome
	MatchType        MatchType
	MatchedURL       string
	MatchedArticleID int64
	Score            *float64
	Reason           string
	Arbitrated       bool
}
