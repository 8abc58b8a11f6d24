package app

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"horse.fit/winnow/internal/dedup"
	"horse.fit/winnow/internal/payload"
)

// batchFilePattern matches the channel batch files a collection run drops
// into the input directory, e.g. rss_articles.json.
const batchFilePattern = "*_articles.json"

// collectBatchFiles resolves the input file list: explicit positional paths
// win, otherwise the input directory is globbed for channel batch files.
func collectBatchFiles(inputDir string, positional []string) ([]string, error) {
	if len(positional) > 0 {
		return positional, nil
	}

	dir := strings.TrimSpace(inputDir)
	if dir == "" {
		return nil, fmt.Errorf("either --input or explicit batch files are required")
	}

	matches, err := filepath.Glob(filepath.Join(dir, batchFilePattern))
	if err != nil {
		return nil, fmt.Errorf("glob %s in %s: %w", batchFilePattern, dir, err)
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("no %s files found in %s", batchFilePattern, dir)
	}

	sort.Strings(matches)
	return matches, nil
}

// loadChannelBatches reads and validates every batch file. Any invalid file
// aborts the load: a partial run would silently drop a whole channel.
func loadChannelBatches(paths []string) ([]dedup.ChannelBatch, error) {
	batches := make([]dedup.ChannelBatch, 0, len(paths))
	for _, path := range paths {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}

		parsed, err := payload.ValidateChannelBatch(raw)
		if err != nil {
			return nil, fmt.Errorf("validate %s: %w", path, err)
		}

		batch, err := convertChannelBatch(parsed)
		if err != nil {
			return nil, fmt.Errorf("convert %s: %w", path, err)
		}
		batches = append(batches, batch)
	}
	return batches, nil
}

func convertChannelBatch(parsed *payload.ChannelBatch) (dedup.ChannelBatch, error) {
	batch := dedup.ChannelBatch{
		Channel:  strings.ToLower(strings.TrimSpace(parsed.Channel)),
		Articles: make([]dedup.Article, 0, len(parsed.Articles)),
	}

	for i, article := range parsed.Articles {
		converted := dedup.Article{
			URL:        strings.TrimSpace(article.URL),
			Title:      strings.TrimSpace(article.Title),
			Summary:    strings.TrimSpace(article.Summary),
			SourceName: strings.TrimSpace(article.SourceName),
			SourceType: batch.Channel,
			Region:     article.Region,
			Category:   article.Category,
			Layer:      article.Layer,
		}
		if article.Language != nil {
			converted.Language = strings.TrimSpace(*article.Language)
		}
		if article.PublishedAt != nil {
			publishedAt, err := time.Parse(time.RFC3339, strings.TrimSpace(*article.PublishedAt))
			if err != nil {
				return dedup.ChannelBatch{}, fmt.Errorf("articles[%d]: parse published_at: %w", i, err)
			}
			utc := publishedAt.UTC()
			converted.PublishedAt = &utc
		}
		batch.Articles = append(batch.Articles, converted)
	}

	return batch, nil
}
