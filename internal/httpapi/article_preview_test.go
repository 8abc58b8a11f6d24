package httpapi

import (
	"context"
	"testing"
)

func TestBuildArticlePreviewTextFallsBackToSummaryWhenNoURL(t *testing.T) {
	t.Parallel()

	text, source, err := buildArticlePreviewText(context.Background(), "", "title", "stored summary")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if source != "summary" {
		t.Fatalf("unexpected source: %q", source)
	}
	if text != "stored summary" {
		t.Fatalf("unexpected text: %q", text)
	}
}

func TestBuildArticlePreviewTextEmptyInputs(t *testing.T) {
	t.Parallel()

	text, source, err := buildArticlePreviewText(context.Background(), "", "title", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if source != "none" || text != "" {
		t.Fatalf("unexpected preview: text=%q source=%q", text, source)
	}
}
