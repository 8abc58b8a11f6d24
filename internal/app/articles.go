package app

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"horse.fit/winnow/internal/cli"
	"horse.fit/winnow/internal/db"
	"horse.fit/winnow/internal/globaltime"
)

func runArticles(args []string) int {
	fs := flag.NewFlagSet("articles", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	search := fs.String("search", "", "Filter by title or source substring")
	fromRaw := fs.String("from", "", "Start date (YYYY-MM-DD, UTC)")
	toRaw := fs.String("to", "", "End date (YYYY-MM-DD, UTC, inclusive)")
	limit := fs.Int("limit", 100, "Maximum number of articles to list")
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

	var from, to time.Time
	switch {
	case strings.TrimSpace(*fromRaw) == "" && strings.TrimSpace(*toRaw) == "":
		// Default window: the last 7 days.
		to = globaltime.UTC().Add(time.Minute)
		from = to.Add(-7 * 24 * time.Hour)
	case strings.TrimSpace(*fromRaw) != "" && strings.TrimSpace(*toRaw) != "":
		from, to, err = parseUTCDateRange(*fromRaw, *toRaw)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 2
		}
	default:
		fmt.Fprintln(os.Stderr, "Error: --from and --to must be given together")
		return 2
	}

	ctx, cancel, pool, err := connectReadPool(30*time.Second, envLoader)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer cancel()
	defer pool.Close()

	articles, err := pool.ListArticles(ctx, db.ArticleListOptions{
		Search: strings.TrimSpace(*search),
		From:   from,
		To:     to,
		Limit:  *limit,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to query articles: %v\n", err)
		return 1
	}

	if outputFormat == outputFormatJSON {
		if err := printJSON(articles); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		return 0
	}

	headers := []string{"CREATED", "PUBLISHED", "SOURCE", "TYPE", "LANG", "TITLE", "URL"}
	rows := make([][]string, 0, len(articles))
	for _, article := range articles {
		rows = append(rows, []string{
			formatUTCTimestamp(article.CreatedAt),
			formatUTCTimestampPtr(article.PublishedAt),
			article.SourceName,
			article.SourceType,
			article.Language,
			truncateForTable(article.Title, 48),
			truncateForTable(article.URL, 64),
		})
	}
	if err := writeTable(headers, rows); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}
