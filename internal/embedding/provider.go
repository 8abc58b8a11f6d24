package embedding

import (
	"context"
	"fmt"
	"strings"
)

// Item is one embedding request entry. ID is the caller's correlation key.
type Item struct {
	ID   string
	Text string
}

// Result carries the vector computed for one Item.
type Result struct {
	ID     string
	Vector []float64
}

// Provider converts article text into fixed-width dense vectors. Output
// order matches input order; every input item gets exactly one result.
type Provider interface {
	EmbedBatch(ctx context.Context, items []Item) ([]Result, error)
	ModelName() string
	Dimensions() int
}

// BuildText assembles the embedding input for one article. Matches the
// stored-history format so new and historical vectors stay comparable.
func BuildText(title, summary string) string {
	trimmedTitle := strings.TrimSpace(title)
	trimmedSummary := strings.TrimSpace(summary)
	if trimmedSummary == "" {
		return fmt.Sprintf("TITLE: %s", trimmedTitle)
	}
	return fmt.Sprintf("TITLE: %s SUMMARY: %s", trimmedTitle, trimmedSummary)
}
