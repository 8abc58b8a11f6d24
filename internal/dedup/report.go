package dedup

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"horse.fit/winnow/internal/db"
)

// DuplicateEntry is one discarded article in the run report.
type DuplicateEntry struct {
	URL        string   `json:"url"`
	MatchedURL string   `json:"matched_url,omitempty"`
	MatchType  string   `json:"match_type"`
	Score      *float64 `json:"score,omitempty"`
	Reason     string   `json:"reason"`
}

// Report is the run summary handed to downstream export.
type Report struct {
	RunUUID      string           `json:"run_uuid"`
	Timestamp    time.Time        `json:"timestamp"`
	Bootstrap    bool             `json:"bootstrap"`
	Summary      db.RunCounters   `json:"summary"`
	BySourceType map[string]int   `json:"by_source_type"`
	Merge        map[string]int   `json:"merge_collisions_by_channel"`
	Duplicates   []DuplicateEntry `json:"duplicates"`

	// Kept carries the committed articles for CSV export; the JSON report
	// only summarizes them.
	Kept []Article `json:"-"`
}

func buildReport(runUUID string, finishedAt time.Time, bootstrap bool, counters db.RunCounters, merged MergeResult, decisions []Decision, kept []Article) *Report {
	report := &Report{
		RunUUID:      runUUID,
		Timestamp:    finishedAt,
		Bootstrap:    bootstrap,
		Summary:      counters,
		BySourceType: make(map[string]int),
		Merge:        merged.CollisionsByChannel,
		Duplicates:   make([]DuplicateEntry, 0, counters.URLDuplicates+counters.AutoDiscarded+counters.ConfirmedDuplicate),
		Kept:         kept,
	}

	for _, article := range kept {
		report.BySourceType[article.SourceType]++
	}
	for _, decision := range decisions {
		if decision.Outcome.Kept() {
			continue
		}
		report.Duplicates = append(report.Duplicates, DuplicateEntry{
			URL:        decision.Article.URL,
			MatchedURL: decision.MatchedURL,
			MatchType:  string(decision.MatchType),
			Score:      decision.Score,
			Reason:     decision.Reason,
		})
	}

	return report
}

// WriteJSON writes the report as indented JSON.
func (r *Report) WriteJSON(path string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create report file: %w", err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(r); err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	return nil
}

// CSVHeader is the kept-articles export column order.
var CSVHeader = []string{"date", "source", "source_type", "region", "category", "layer", "title", "summary", "url"}

// WriteCSV writes the kept articles of the run as CSV.
func (r *Report) WriteCSV(path string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create csv file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write(CSVHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, article := range r.Kept {
		if err := writer.Write(csvRow(article)); err != nil {
			return fmt.Errorf("write csv row for %s: %w", article.URL, err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

func csvRow(article Article) []string {
	date := ""
	if article.PublishedAt != nil {
		date = article.PublishedAt.UTC().Format("2006-01-02")
	}
	return []string{
		date,
		article.SourceName,
		article.SourceType,
		derefOrEmpty(article.Region),
		derefOrEmpty(article.Category),
		derefOrEmpty(article.Layer),
		article.Title,
		article.Summary,
		article.URL,
	}
}

func derefOrEmpty(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}

// FormatScore renders a similarity score for table output.
func FormatScore(score *float64) string {
	if score == nil {
		return ""
	}
	return strconv.FormatFloat(*score, 'f', 4, 64)
}
