package httpapi

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/labstack/echo/v4"

	"horse.fit/winnow/internal/db"
	"horse.fit/winnow/internal/reader"
)

const (
	defaultArticlePreviewMaxChars = 1000
	minArticlePreviewMaxChars     = 200
	maxArticlePreviewMaxChars     = 4000
)

type articlePreview struct {
	ArticleUUID  string  `json:"article_uuid"`
	PreviewText  string  `json:"preview_text"`
	Source       string  `json:"source"`
	CharCount    int     `json:"char_count"`
	Truncated    bool    `json:"truncated"`
	PreviewError *string `json:"preview_error,omitempty"`
}

func (s *Server) handleArticlePreview(c echo.Context) error {
	articleUUID := strings.TrimSpace(c.Param("article_uuid"))
	if articleUUID == "" {
		return failValidation(c, map[string]string{"article_uuid": "is required"})
	}

	maxChars, err := parsePositiveInt(
		c.QueryParam("max_chars"),
		defaultArticlePreviewMaxChars,
		minArticlePreviewMaxChars,
		maxArticlePreviewMaxChars,
	)
	if err != nil {
		return failValidation(c, map[string]string{"max_chars": err.Error()})
	}

	article, err := s.pool.GetArticleByUUID(c.Request().Context(), articleUUID)
	if err != nil {
		if errors.Is(err, db.ErrNoRows) {
			return failNotFound(c, "Article not found")
		}
		s.logger.Error().Err(err).Str("article_uuid", articleUUID).Msg("query article for preview failed")
		return internalError(c, "Failed to load article preview")
	}

	previewRaw, source, previewErr := buildArticlePreviewText(c.Request().Context(), article.URL, article.Title, article.Summary)
	previewText, truncated := reader.TruncateText(previewRaw, maxChars)

	resp := &articlePreview{
		ArticleUUID: article.ArticleUUID,
		PreviewText: previewText,
		Source:      source,
		CharCount:   utf8.RuneCountInString(previewText),
		Truncated:   truncated,
	}
	if previewErr != nil {
		msg := previewErr.Error()
		resp.PreviewError = &msg
		s.logger.Warn().
			Err(previewErr).
			Str("article_uuid", articleUUID).
			Str("source", source).
			Msg("reader preview fallback used")
	}

	return success(c, resp)
}

// buildArticlePreviewText prefers the live reader extraction and falls back
// to the stored summary when the fetch fails or yields nothing.
func buildArticlePreviewText(ctx context.Context, articleURL, title, summary string) (string, string, error) {
	url := strings.TrimSpace(articleURL)
	cleanSummary := reader.CleanText(summary)

	if url != "" {
		text, err := reader.FetchText(ctx, url, title)
		if err == nil && strings.TrimSpace(text) != "" {
			return text, "reader", nil
		}
		if cleanSummary != "" {
			return cleanSummary, "summary", err
		}
		return "", "none", err
	}

	if cleanSummary != "" {
		return cleanSummary, "summary", nil
	}
	return "", "none", nil
}
