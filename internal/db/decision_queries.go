package db

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// InsertDedupDecisionInput describes one audit log entry.
type InsertDedupDecisionInput struct {
	RunID            int64
	URL              string
	Title            string
	SourceName       string
	SourceType       string
	Outcome          string
	MatchType        *string
	MatchedURL       *string
	MatchedArticleID *int64
	Score            *float64
	Reason           *string
	Arbitrated       bool
	CreatedAt        time.Time
}

// DedupDecisionRecord is the audit view of one decision row.
type DedupDecisionRecord struct {
	DecisionID       int64     `json:"decision_id"`
	DecisionUUID     string    `json:"decision_uuid"`
	RunID            int64     `json:"run_id"`
	URL              string    `json:"url"`
	Title            string    `json:"title"`
	SourceName       string    `json:"source_name"`
	SourceType       string    `json:"source_type"`
	Outcome          string    `json:"outcome"`
	MatchType        *string   `json:"match_type,omitempty"`
	MatchedURL       *string   `json:"matched_url,omitempty"`
	MatchedArticleID *int64    `json:"matched_article_id,omitempty"`
	Score            *float64  `json:"score,omitempty"`
	Reason           *string   `json:"reason,omitempty"`
	Arbitrated       bool      `json:"arbitrated"`
	CreatedAt        time.Time `json:"created_at"`
}

// KeptArticleRow is one committed article of a run, shaped for CSV export.
type KeptArticleRow struct {
	URL         string
	Title       string
	Summary     string
	SourceName  string
	SourceType  string
	Region      *string
	Category    *string
	Layer       *string
	PublishedAt *time.Time
	CreatedAt   time.Time
}

// InsertDedupDecision appends one decision to the audit log. The log is
// append-only; a repeated (run_id, url) pair is a caller bug and surfaces
// as a constraint error.
func (p *Pool) InsertDedupDecision(ctx context.Context, input InsertDedupDecisionInput) error {
	url := strings.TrimSpace(input.URL)
	if url == "" {
		return fmt.Errorf("decision url is required")
	}
	outcome := strings.TrimSpace(input.Outcome)
	if outcome == "" {
		return fmt.Errorf("decision outcome is required")
	}
	if strings.HasPrefix(outcome, "discarded") && (input.Reason == nil || strings.TrimSpace(*input.Reason) == "") {
		return fmt.Errorf("discard decision for %s requires a reason", url)
	}

	createdAt := input.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	const q = `
INSERT INTO news.dedup_decisions (
	run_id,
	url,
	title,
	source_name,
	source_type,
	outcome,
	match_type,
	matched_url,
	matched_article_id,
	score,
	reason,
	arbitrated,
	created_at
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
`

	if _, err := p.Exec(
		ctx,
		q,
		input.RunID,
		url,
		strings.TrimSpace(input.Title),
		strings.TrimSpace(input.SourceName),
		strings.ToLower(strings.TrimSpace(input.SourceType)),
		outcome,
		input.MatchType,
		input.MatchedURL,
		input.MatchedArticleID,
		input.Score,
		input.Reason,
		input.Arbitrated,
		createdAt.UTC(),
	); err != nil {
		return fmt.Errorf("insert dedup decision: %w", err)
	}
	return nil
}

// QueryDedupDecisions lists the decision log for one run in insertion order.
func (p *Pool) QueryDedupDecisions(ctx context.Context, runID int64, limit int) ([]DedupDecisionRecord, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be > 0")
	}

	const q = `
SELECT
	d.decision_id,
	d.decision_uuid::text,
	d.run_id,
	d.url,
	d.title,
	d.source_name,
	d.source_type,
	d.outcome::text,
	d.match_type::text,
	d.matched_url,
	d.matched_article_id,
	d.score,
	d.reason,
	d.arbitrated,
	d.created_at
FROM news.dedup_decisions d
WHERE d.run_id = $1
ORDER BY d.decision_id ASC
LIMIT $2
`

	rows, err := p.Query(ctx, q, runID, limit)
	if err != nil {
		return nil, fmt.Errorf("query dedup decisions: %w", err)
	}
	defer rows.Close()

	items := make([]DedupDecisionRecord, 0, limit)
	for rows.Next() {
		var row DedupDecisionRecord
		if err := rows.Scan(
			&row.DecisionID,
			&row.DecisionUUID,
			&row.RunID,
			&row.URL,
			&row.Title,
			&row.SourceName,
			&row.SourceType,
			&row.Outcome,
			&row.MatchType,
			&row.MatchedURL,
			&row.MatchedArticleID,
			&row.Score,
			&row.Reason,
			&row.Arbitrated,
			&row.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan dedup decision row: %w", err)
		}
		items = append(items, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate dedup decisions: %w", err)
	}

	return items, nil
}

// QueryKeptArticlesForRun loads the stored articles whose decisions in the
// given run kept them, joined by url, in decision order.
func (p *Pool) QueryKeptArticlesForRun(ctx context.Context, runID int64) ([]KeptArticleRow, error) {
	const q = `
SELECT
	a.url,
	a.title,
	a.summary,
	a.source_name,
	a.source_type,
	a.region,
	a.category,
	a.layer,
	a.published_at,
	a.created_at
FROM news.dedup_decisions d
JOIN news.articles a
	ON a.url = d.url
WHERE d.run_id = $1
  AND d.outcome IN ('kept_unique', 'kept_duplicate_confirmed_unique')
  AND a.deleted_at IS NULL
ORDER BY d.decision_id ASC
`

	rows, err := p.Query(ctx, q, runID)
	if err != nil {
		return nil, fmt.Errorf("query kept articles: %w", err)
	}
	defer rows.Close()

	items := make([]KeptArticleRow, 0, 64)
	for rows.Next() {
		var row KeptArticleRow
		if err := rows.Scan(
			&row.URL,
			&row.Title,
			&row.Summary,
			&row.SourceName,
			&row.SourceType,
			&row.Region,
			&row.Category,
			&row.Layer,
			&row.PublishedAt,
			&row.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan kept article row: %w", err)
		}
		items = append(items, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate kept articles: %w", err)
	}

	return items, nil
}
