package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"horse.fit/winnow/internal/cli"
	"horse.fit/winnow/internal/db"
	"horse.fit/winnow/internal/dedup"
)

// reportDecisionLimit bounds how many decisions a rebuilt report loads. Runs
// are bounded by the daily collection volume, which sits far below this.
const reportDecisionLimit = 100000

func runReport(args []string) int {
	fs := flag.NewFlagSet("report", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	runUUID := fs.String("run", "", "Run UUID (defaults to the latest completed run)")
	reportPath := fs.String("report", "", "Write the run report JSON to this path")
	csvPath := fs.String("csv", "", "Write the kept articles CSV to this path")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	ctx, cancel, pool, err := connectReadPool(60*time.Second, envLoader)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer cancel()
	defer pool.Close()

	run, err := resolveRun(ctx, pool, strings.TrimSpace(*runUUID), true)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	report, err := rebuildReport(ctx, pool, run)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	if *reportPath != "" {
		if err := report.WriteJSON(*reportPath); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		fmt.Printf("Report written to %s\n", *reportPath)
	}
	if *csvPath != "" {
		if err := report.WriteCSV(*csvPath); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		fmt.Printf("Kept articles CSV written to %s\n", *csvPath)
	}

	if *reportPath == "" && *csvPath == "" {
		if err := printJSON(report); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
	}
	return 0
}

// rebuildReport reconstructs the run report from the ledger, decision log
// and stored articles. Per-channel merge collision counts are not persisted,
// so a rebuilt report carries only the aggregate collision counter.
func rebuildReport(ctx context.Context, pool *db.Pool, run *db.DedupRunSummary) (*dedup.Report, error) {
	decisions, err := pool.QueryDedupDecisions(ctx, run.RunID, reportDecisionLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to query decisions: %w", err)
	}

	keptRows, err := pool.QueryKeptArticlesForRun(ctx, run.RunID)
	if err != nil {
		return nil, fmt.Errorf("failed to query kept articles: %w", err)
	}

	timestamp := run.StartedAt
	if run.FinishedAt != nil {
		timestamp = *run.FinishedAt
	}

	report := &dedup.Report{
		RunUUID:      run.RunUUID,
		Timestamp:    timestamp,
		Bootstrap:    run.Bootstrap,
		Summary:      run.Counters,
		BySourceType: make(map[string]int),
		Merge:        map[string]int{},
		Duplicates:   make([]dedup.DuplicateEntry, 0, len(decisions)),
		Kept:         make([]dedup.Article, 0, len(keptRows)),
	}

	for _, row := range keptRows {
		report.BySourceType[row.SourceType]++
		report.Kept = append(report.Kept, dedup.Article{
			URL:         row.URL,
			Title:       row.Title,
			Summary:     row.Summary,
			SourceName:  row.SourceName,
			SourceType:  row.SourceType,
			Region:      row.Region,
			Category:    row.Category,
			Layer:       row.Layer,
			PublishedAt: row.PublishedAt,
		})
	}

	for _, decision := range decisions {
		if decision.Outcome != string(dedup.OutcomeDiscardedDuplicate) &&
			decision.Outcome != string(dedup.OutcomeDiscardedDuplicateConfirmed) {
			continue
		}
		report.Duplicates = append(report.Duplicates, dedup.DuplicateEntry{
			URL:        decision.URL,
			MatchedURL: pointerStringOrEmpty(decision.MatchedURL),
			MatchType:  pointerStringOrEmpty(decision.MatchType),
			Score:      decision.Score,
			Reason:     pointerStringOrEmpty(decision.Reason),
		})
	}

	return report, nil
}
