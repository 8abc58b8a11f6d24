package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"horse.fit/winnow/internal/cli"
	"horse.fit/winnow/internal/db"
)

func runRuns(args []string) int {
	fs := flag.NewFlagSet("runs", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	limit := fs.Int("limit", 25, "Maximum number of runs to list")
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

	runs, err := pool.QueryDedupRuns(ctx, *limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to query runs: %v\n", err)
		return 1
	}

	if outputFormat == outputFormatJSON {
		if err := printJSON(runs); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		return 0
	}

	headers := []string{"RUN_UUID", "STARTED", "STATUS", "STAGE", "BOOTSTRAP", "INPUT", "KEPT", "DISCARDED", "STORED"}
	rows := make([][]string, 0, len(runs))
	for _, run := range runs {
		discarded := run.Counters.URLDuplicates + run.Counters.AutoDiscarded + run.Counters.ConfirmedDuplicate
		kept := run.Counters.UniqueKept + run.Counters.ConfirmedUnique
		rows = append(rows, []string{
			run.RunUUID,
			formatUTCTimestamp(run.StartedAt),
			run.Status,
			run.Stage,
			strconv.FormatBool(run.Bootstrap),
			strconv.Itoa(run.Counters.TotalInput),
			strconv.Itoa(kept),
			strconv.Itoa(discarded),
			strconv.Itoa(run.Counters.Stored),
		})
	}
	if err := writeTable(headers, rows); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// resolveRun loads a run by UUID, or the latest run when uuid is empty.
func resolveRun(ctx context.Context, pool *db.Pool, uuid string, completedOnly bool) (*db.DedupRunSummary, error) {
	if uuid != "" {
		run, err := pool.GetDedupRunByUUID(ctx, uuid)
		if err != nil {
			if db.IsRunNotFound(err) {
				return nil, fmt.Errorf("run %s not found", uuid)
			}
			return nil, fmt.Errorf("failed to query run: %w", err)
		}
		return run, nil
	}

	run, err := pool.GetLatestDedupRun(ctx, completedOnly)
	if err != nil {
		if db.IsRunNotFound(err) {
			return nil, fmt.Errorf("no runs recorded yet")
		}
		return nil, fmt.Errorf("failed to query latest run: %w", err)
	}
	return run, nil
}
