package db

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"strings"
	"time"
)

// HistoricalArticle is a stored article loaded as a similarity candidate.
type HistoricalArticle struct {
	ArticleID   int64
	URL         string
	Title       string
	Summary     string
	SourceName  string
	SourceType  string
	PublishedAt *time.Time
	Embedding   []float64
	CreatedAt   time.Time
}

// InsertArticleInput describes one article commit into the historical store.
type InsertArticleInput struct {
	URL            string
	Title          string
	Summary        string
	SourceName     string
	SourceType     string
	Language       string
	Region         *string
	Category       *string
	Layer          *string
	PublishedAt    *time.Time
	Embedding      []float64
	EmbeddingModel string
	CreatedAt      time.Time
}

// ArticleListOptions controls article listing queries.
type ArticleListOptions struct {
	Search string
	From   time.Time
	To     time.Time
	Limit  int
}

// ArticleListItem is used by the articles CLI command and the audit API.
type ArticleListItem struct {
	ArticleID   int64      `json:"article_id"`
	ArticleUUID string     `json:"article_uuid"`
	URL         string     `json:"url"`
	Title       string     `json:"title"`
	SourceName  string     `json:"source_name"`
	SourceType  string     `json:"source_type"`
	Language    string     `json:"language"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// ArticleDetail is the full audit view of one stored article.
type ArticleDetail struct {
	ArticleID      int64      `json:"article_id"`
	ArticleUUID    string     `json:"article_uuid"`
	URL            string     `json:"url"`
	Title          string     `json:"title"`
	Summary        string     `json:"summary"`
	SourceName     string     `json:"source_name"`
	SourceType     string     `json:"source_type"`
	Language       string     `json:"language"`
	Region         *string    `json:"region,omitempty"`
	Category       *string    `json:"category,omitempty"`
	Layer          *string    `json:"layer,omitempty"`
	PublishedAt    *time.Time `json:"published_at,omitempty"`
	EmbeddingModel string     `json:"embedding_model"`
	CreatedAt      time.Time  `json:"created_at"`
}

// CountActiveArticles reports how many non-deleted articles the store holds.
// A zero count is the bootstrap condition for a dedup run.
func (p *Pool) CountActiveArticles(ctx context.Context) (int64, error) {
	const q = `
SELECT COUNT(*)::BIGINT
FROM news.articles a
WHERE a.deleted_at IS NULL
`

	var count int64
	if err := p.QueryRow(ctx, q).Scan(&count); err != nil {
		return 0, fmt.Errorf("count articles: %w", err)
	}
	return count, nil
}

// QueryRecentArticles loads all non-deleted articles created at or after
// since, with parsed embeddings, ordered oldest first for stable tie-breaks.
func (p *Pool) QueryRecentArticles(ctx context.Context, since time.Time) ([]HistoricalArticle, error) {
	const q = `
SELECT
	a.article_id,
	a.url,
	a.title,
	a.summary,
	a.source_name,
	a.source_type,
	a.published_at,
	a.embedding::text,
	a.created_at
FROM news.articles a
WHERE a.deleted_at IS NULL
  AND a.created_at >= $1
ORDER BY a.created_at ASC, a.article_id ASC
`

	rows, err := p.Query(ctx, q, since.UTC())
	if err != nil {
		return nil, fmt.Errorf("query recent articles: %w", err)
	}
	defer rows.Close()

	items := make([]HistoricalArticle, 0, 128)
	for rows.Next() {
		var row HistoricalArticle
		var embedding string
		if err := rows.Scan(
			&row.ArticleID,
			&row.URL,
			&row.Title,
			&row.Summary,
			&row.SourceName,
			&row.SourceType,
			&row.PublishedAt,
			&embedding,
			&row.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan recent article row: %w", err)
		}
		vec, err := parseVectorLiteral(embedding)
		if err != nil {
			return nil, fmt.Errorf("parse embedding for article %d: %w", row.ArticleID, err)
		}
		row.Embedding = vec
		items = append(items, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate recent articles: %w", err)
	}

	return items, nil
}

// QueryExistingURLs reports which of the given URLs already exist in the
// store, mapping each hit to its article id.
func (p *Pool) QueryExistingURLs(ctx context.Context, urls []string) (map[string]int64, error) {
	existing := make(map[string]int64, len(urls))
	if len(urls) == 0 {
		return existing, nil
	}

	placeholders := make([]string, 0, len(urls))
	args := make([]any, 0, len(urls))
	for i, u := range urls {
		placeholders = append(placeholders, fmt.Sprintf("$%d", i+1))
		args = append(args, u)
	}

	q := fmt.Sprintf(`
SELECT a.url, a.article_id
FROM news.articles a
WHERE a.deleted_at IS NULL
  AND a.url IN (%s)
`, strings.Join(placeholders, ", "))

	rows, err := p.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query existing urls: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var url string
		var articleID int64
		if err := rows.Scan(&url, &articleID); err != nil {
			return nil, fmt.Errorf("scan existing url row: %w", err)
		}
		existing[url] = articleID
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate existing urls: %w", err)
	}

	return existing, nil
}

// InsertArticle commits one article. The insert is idempotent on url: an
// already-present URL leaves the stored row untouched and reports
// inserted=false with the existing article id.
func (p *Pool) InsertArticle(ctx context.Context, input InsertArticleInput) (int64, bool, error) {
	url := strings.TrimSpace(input.URL)
	if url == "" {
		return 0, false, fmt.Errorf("article url is required")
	}
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return 0, false, fmt.Errorf("article title is required")
	}
	sourceName := strings.TrimSpace(input.SourceName)
	if sourceName == "" {
		return 0, false, fmt.Errorf("article source name is required")
	}
	sourceType := strings.ToLower(strings.TrimSpace(input.SourceType))
	if sourceType == "" {
		return 0, false, fmt.Errorf("article source type is required")
	}
	model := strings.TrimSpace(input.EmbeddingModel)
	if model == "" {
		return 0, false, fmt.Errorf("embedding model is required")
	}

	embedding, err := vectorLiteral(input.Embedding)
	if err != nil {
		return 0, false, fmt.Errorf("encode embedding: %w", err)
	}

	language := strings.TrimSpace(input.Language)
	if language == "" {
		language = "und"
	}

	createdAt := input.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	hash := sha256.Sum256([]byte(url))
	urlHash := append([]byte(nil), hash[:]...)

	const q = `
INSERT INTO news.articles (
	url,
	url_hash,
	title,
	summary,
	source_name,
	source_type,
	language,
	region,
	category,
	layer,
	published_at,
	embedding,
	embedding_model,
	created_at
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12::vector, $13, $14)
ON CONFLICT (url) DO NOTHING
RETURNING article_id
`

	var articleID int64
	err = p.QueryRow(
		ctx,
		q,
		url,
		urlHash,
		title,
		strings.TrimSpace(input.Summary),
		sourceName,
		sourceType,
		language,
		input.Region,
		input.Category,
		input.Layer,
		input.PublishedAt,
		embedding,
		model,
		createdAt.UTC(),
	).Scan(&articleID)
	if err == nil {
		return articleID, true, nil
	}
	if !errors.Is(err, ErrNoRows) {
		return 0, false, fmt.Errorf("insert article: %w", err)
	}

	const existingQuery = `
SELECT a.article_id
FROM news.articles a
WHERE a.url = $1
LIMIT 1
`

	if err := p.QueryRow(ctx, existingQuery, url).Scan(&articleID); err != nil {
		return 0, false, fmt.Errorf("query conflicting article: %w", err)
	}
	return articleID, false, nil
}

// ListArticles lists stored articles in a UTC created_at window, optionally
// filtered by a case-insensitive title/url substring.
func (p *Pool) ListArticles(ctx context.Context, opts ArticleListOptions) ([]ArticleListItem, error) {
	if opts.Limit <= 0 {
		return nil, fmt.Errorf("limit must be > 0")
	}

	from := opts.From.UTC()
	to := opts.To.UTC()
	if !from.Before(to) {
		return nil, fmt.Errorf("from must be before to")
	}

	const q = `
SELECT
	a.article_id,
	a.article_uuid::text,
	a.url,
	a.title,
	a.source_name,
	a.source_type,
	a.language,
	a.published_at,
	a.created_at
FROM news.articles a
WHERE a.deleted_at IS NULL
  AND a.created_at >= $1
  AND a.created_at < $2
  AND ($3 = '' OR a.title ILIKE '%' || $3 || '%' OR a.url ILIKE '%' || $3 || '%')
ORDER BY a.created_at DESC, a.article_id DESC
LIMIT $4
`

	rows, err := p.Query(ctx, q, from, to, strings.TrimSpace(opts.Search), opts.Limit)
	if err != nil {
		return nil, fmt.Errorf("query articles: %w", err)
	}
	defer rows.Close()

	items := make([]ArticleListItem, 0, opts.Limit)
	for rows.Next() {
		var row ArticleListItem
		if err := rows.Scan(
			&row.ArticleID,
			&row.ArticleUUID,
			&row.URL,
			&row.Title,
			&row.SourceName,
			&row.SourceType,
			&row.Language,
			&row.PublishedAt,
			&row.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan article row: %w", err)
		}
		items = append(items, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate article rows: %w", err)
	}

	return items, nil
}

// GetArticleByUUID loads one stored article for the audit API.
func (p *Pool) GetArticleByUUID(ctx context.Context, articleUUID string) (*ArticleDetail, error) {
	trimmed := strings.TrimSpace(articleUUID)
	if trimmed == "" {
		return nil, fmt.Errorf("article UUID is required")
	}

	const q = `
SELECT
	a.article_id,
	a.article_uuid::text,
	a.url,
	a.title,
	a.summary,
	a.source_name,
	a.source_type,
	a.language,
	a.region,
	a.category,
	a.layer,
	a.published_at,
	a.embedding_model,
	a.created_at
FROM news.articles a
WHERE a.article_uuid = $1::uuid
  AND a.deleted_at IS NULL
LIMIT 1
`

	var row ArticleDetail
	err := p.QueryRow(ctx, q, trimmed).Scan(
		&row.ArticleID,
		&row.ArticleUUID,
		&row.URL,
		&row.Title,
		&row.Summary,
		&row.SourceName,
		&row.SourceType,
		&row.Language,
		&row.Region,
		&row.Category,
		&row.Layer,
		&row.PublishedAt,
		&row.EmbeddingModel,
		&row.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, ErrNoRows) {
			return nil, ErrNoRows
		}
		return nil, fmt.Errorf("query article: %w", err)
	}
	return &row, nil
}
