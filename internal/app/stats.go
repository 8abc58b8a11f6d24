package app

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"horse.fit/winnow/internal/cli"
)

func runStats(args []string) int {
	fs := flag.NewFlagSet("stats", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	dateRaw := fs.String("date", "", "Day to report on (YYYY-MM-DD, UTC, defaults to today)")
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

	day := defaultUTCDay()
	if *dateRaw != "" {
		day, err = parseUTCDate(*dateRaw)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: invalid date: %v\n", err)
			return 2
		}
	}
	dayStart, dayEnd := utcDayBounds(day)

	ctx, cancel, pool, err := connectReadPool(30*time.Second, envLoader)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer cancel()
	defer pool.Close()

	stats, err := pool.QueryStoreStats(ctx, dayStart, dayEnd)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to query stats: %v\n", err)
		return 1
	}

	if outputFormat == outputFormatJSON {
		if err := printJSON(stats); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		return 0
	}

	fmt.Printf("Store stats for %s (UTC)\n\n", stats.Day)

	rows := make([][]string, 0, len(stats.SourceTypes)+1)
	for _, entry := range stats.SourceTypes {
		rows = append(rows, []string{entry.SourceType, strconv.FormatInt(entry.Articles, 10)})
	}
	rows = append(rows, []string{"TOTAL", strconv.FormatInt(stats.Totals.Articles, 10)})
	if err := writeTable([]string{"SOURCE_TYPE", "ARTICLES"}, rows); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	fmt.Println()
	todayRows := [][]string{
		{"articles_stored", strconv.FormatInt(stats.Today.ArticlesStored, 10)},
		{"runs_completed", strconv.FormatInt(stats.Today.RunsCompleted, 10)},
		{"runs_failed", strconv.FormatInt(stats.Today.RunsFailed, 10)},
		{"unique_kept", strconv.FormatInt(stats.Today.UniqueKept, 10)},
		{"url_duplicates", strconv.FormatInt(stats.Today.URLDuplicates, 10)},
		{"auto_discarded", strconv.FormatInt(stats.Today.AutoDiscarded, 10)},
		{"confirmed_duplicate", strconv.FormatInt(stats.Today.ConfirmedDuplicate, 10)},
		{"confirmed_unique", strconv.FormatInt(stats.Today.ConfirmedUnique, 10)},
	}
	if err := writeTable([]string{"METRIC", "VALUE"}, todayRows); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	fmt.Println()
	totalRows := [][]string{
		{"runs", strconv.FormatInt(stats.Totals.Runs, 10)},
		{"decisions", strconv.FormatInt(stats.Totals.Decisions, 10)},
	}
	if err := writeTable([]string{"TOTAL", "VALUE"}, totalRows); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}
