package payload

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestValidateChannelBatch_Valid(t *testing.T) {
	raw := json.RawMessage(`{
		"channel":"rss",
		"articles":[
			{
				"url":"https://example.com/story/1",
				"title":"Acme raises $10M",
				"summary":"Acme closed a Series A round.",
				"source_name":"example-feed",
				"published_at":"2026-08-26T09:00:00Z",
				"language":"en",
				"region":"us",
				"category":"funding",
				"layer":"startup"
			},
			{
				"url":"https://example.com/story/2",
				"title":"Beta ships v2",
				"source_name":"example-feed"
			}
		]
	}`)

	batch, err := ValidateChannelBatch(raw)
	if err != nil {
		t.Fatalf("expected batch to be valid, got error: %v", err)
	}

	if batch.Channel != "rss" {
		t.Fatalf("expected channel=rss, got %q", batch.Channel)
	}
	if len(batch.Articles) != 2 {
		t.Fatalf("expected 2 articles, got %d", len(batch.Articles))
	}
	if batch.Articles[0].Region == nil || *batch.Articles[0].Region != "us" {
		t.Fatalf("expected region=us, got %+v", batch.Articles[0].Region)
	}
}

func TestValidateChannelBatch_EmptyArticles(t *testing.T) {
	raw := json.RawMessage(`{"channel":"twitter","articles":[]}`)

	batch, err := ValidateChannelBatch(raw)
	if err != nil {
		t.Fatalf("expected empty batch to be valid, got error: %v", err)
	}
	if len(batch.Articles) != 0 {
		t.Fatalf("expected 0 articles, got %d", len(batch.Articles))
	}
}

func TestValidateChannelBatch_MissingChannel(t *testing.T) {
	raw := json.RawMessage(`{"articles":[]}`)

	_, err := ValidateChannelBatch(raw)
	if err == nil {
		t.Fatalf("expected validation to fail for missing channel")
	}
}

func TestValidateChannelBatch_MissingURL(t *testing.T) {
	raw := json.RawMessage(`{
		"channel":"rss",
		"articles":[{"title":"No url","source_name":"feed"}]
	}`)

	_, err := ValidateChannelBatch(raw)
	if err == nil {
		t.Fatalf("expected validation to fail for missing url")
	}
}

func TestValidateChannelBatch_WhitespaceTitle(t *testing.T) {
	raw := json.RawMessage(`{
		"channel":"rss",
		"articles":[{"url":"https://example.com/a","title":"   ","source_name":"feed"}]
	}`)

	_, err := ValidateChannelBatch(raw)
	if err == nil {
		t.Fatalf("expected validation to fail for whitespace-only title")
	}
	if !strings.Contains(err.Error(), "title must not be empty") {
		t.Fatalf("expected title semantic error, got: %v", err)
	}
}

func TestValidateChannelBatch_InvalidPublishedAt(t *testing.T) {
	raw := json.RawMessage(`{
		"channel":"rss",
		"articles":[{
			"url":"https://example.com/a",
			"title":"Bad date",
			"source_name":"feed",
			"published_at":"yesterday"
		}]
	}`)

	_, err := ValidateChannelBatch(raw)
	if err == nil {
		t.Fatalf("expected validation to fail for invalid published_at")
	}
}

func TestValidateChannelBatch_UnknownField(t *testing.T) {
	raw := json.RawMessage(`{
		"channel":"rss",
		"articles":[],
		"extra":"nope"
	}`)

	_, err := ValidateChannelBatch(raw)
	if err == nil {
		t.Fatalf("expected validation to fail for unknown top-level field")
	}
}

func TestValidateChannelBatch_TrailingContent(t *testing.T) {
	raw := json.RawMessage(`{"channel":"rss","articles":[]}{"channel":"html"}`)

	_, err := ValidateChannelBatch(raw)
	if err == nil {
		t.Fatalf("expected validation to fail for trailing content")
	}
	if !strings.Contains(err.Error(), "trailing content") {
		t.Fatalf("expected trailing content error, got: %v", err)
	}
}
