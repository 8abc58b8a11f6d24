package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestCollectBatchFilesGlobsInputDir(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	for _, name := range []string{"rss_articles.json", "html_articles.json", "notes.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("{}"), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}

	files, err := collectBatchFiles(dir, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("got %d files, want 2: %v", len(files), files)
	}
	if filepath.Base(files[0]) != "html_articles.json" || filepath.Base(files[1]) != "rss_articles.json" {
		t.Fatalf("unexpected file order: %v", files)
	}
}

func TestCollectBatchFilesPrefersPositional(t *testing.T) {
	t.Parallel()

	files, err := collectBatchFiles("", []string{"a.json", "b.json"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(files) != 2 || files[0] != "a.json" {
		t.Fatalf("unexpected files: %v", files)
	}
}

func TestCollectBatchFilesEmptyDirFails(t *testing.T) {
	t.Parallel()

	if _, err := collectBatchFiles(t.TempDir(), nil); err == nil {
		t.Fatal("expected error for directory without batch files")
	}
	if _, err := collectBatchFiles("", nil); err == nil {
		t.Fatal("expected error when neither input dir nor files are given")
	}
}

func TestLoadChannelBatchesConvertsArticles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "rss_articles.json")
	content := `{
  "channel": "RSS",
  "articles": [
    {
      "url": " https://example.com/story ",
      "title": " Coastal flooding update ",
      "summary": "Waters rising along the coast.",
      "source_name": "Example Wire",
      "published_at": "2026-08-27T06:30:00+02:00",
      "language": "en",
      "region": "EU"
    }
  ]
}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write batch: %v", err)
	}

	batches, err := loadChannelBatches([]string{path})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(batches) != 1 {
		t.Fatalf("got %d batches, want 1", len(batches))
	}

	batch := batches[0]
	if batch.Channel != "rss" {
		t.Fatalf("channel not lowercased: %q", batch.Channel)
	}
	if len(batch.Articles) != 1 {
		t.Fatalf("got %d articles, want 1", len(batch.Articles))
	}

	article := batch.Articles[0]
	if article.URL != "https://example.com/story" {
		t.Fatalf("url not trimmed: %q", article.URL)
	}
	if article.Title != "Coastal flooding update" {
		t.Fatalf("title not trimmed: %q", article.Title)
	}
	if article.SourceType != "rss" {
		t.Fatalf("source type should follow the channel: %q", article.SourceType)
	}
	if article.Language != "en" {
		t.Fatalf("unexpected language: %q", article.Language)
	}
	if article.Region == nil || *article.Region != "EU" {
		t.Fatalf("region not carried over: %v", article.Region)
	}
	if article.PublishedAt == nil {
		t.Fatal("published_at missing")
	}
	want := time.Date(2026, 8, 27, 4, 30, 0, 0, time.UTC)
	if !article.PublishedAt.Equal(want) {
		t.Fatalf("published_at = %v, want %v", article.PublishedAt, want)
	}
	if article.PublishedAt.Location() != time.UTC {
		t.Fatalf("published_at not normalized to UTC: %v", article.PublishedAt.Location())
	}
}

func TestLoadChannelBatchesRejectsInvalidFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "rss_articles.json")
	if err := os.WriteFile(path, []byte(`{"articles": []}`), 0o644); err != nil {
		t.Fatalf("write batch: %v", err)
	}

	if _, err := loadChannelBatches([]string{path}); err == nil {
		t.Fatal("expected validation error for batch without channel")
	}
}
