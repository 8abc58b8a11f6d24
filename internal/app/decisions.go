package app

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"horse.fit/winnow/internal/cli"
	"horse.fit/winnow/internal/dedup"
)

func runDecisions(args []string) int {
	fs := flag.NewFlagSet("decisions", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	runUUID := fs.String("run", "", "Run UUID (defaults to the latest run)")
	limit := fs.Int("limit", 1000, "Maximum number of decisions to list")
	format := fs.String("format", outputFormatTable, "Output format: table or json")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	outputFormat, err := parseOutputFormat(*format, outputFormatTable)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 2
	}
	if *limit < 1 {
		fmt.Fprintln(os.Stderr, "Error: --limit must be >= 1")
		return 2
	}

	ctx, cancel, pool, err := connectReadPool(30*time.Second, envLoader)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer cancel()
	defer pool.Close()

	run, err := resolveRun(ctx, pool, strings.TrimSpace(*runUUID), false)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	decisions, err := pool.QueryDedupDecisions(ctx, run.RunID, *limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to query decisions: %v\n", err)
		return 1
	}

	if outputFormat == outputFormatJSON {
		if err := printJSON(decisions); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		return 0
	}

	fmt.Printf("Run %s (%s, stage %s)\n\n", run.RunUUID, run.Status, run.Stage)

	headers := []string{"OUTCOME", "MATCH", "SCORE", "SOURCE", "TITLE", "URL"}
	rows := make([][]string, 0, len(decisions))
	for _, decision := range decisions {
		rows = append(rows, []string{
			decision.Outcome,
			pointerStringOrEmpty(decision.MatchType),
			dedup.FormatScore(decision.Score),
			decision.SourceName,
			truncateForTable(decision.Title, 48),
			truncateForTable(decision.URL, 64),
		})
	}
	if err := writeTable(headers, rows); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}
