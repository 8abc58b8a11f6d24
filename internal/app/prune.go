package app

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"horse.fit/winnow/internal/cli"
	"horse.fit/winnow/internal/globaltime"
)

func runPrune(args []string) int {
	fs := flag.NewFlagSet("prune", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	olderThanDays := fs.Int("older-than", 90, "Soft-delete articles created more than this many days ago")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	if *olderThanDays < 1 {
		fmt.Fprintln(os.Stderr, "Error: --older-than must be >= 1")
		return 2
	}

	ctx, cancel, pool, err := connectReadPool(60*time.Second, envLoader)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer cancel()
	defer pool.Close()

	now := globaltime.UTC()
	cutoff := now.Add(-time.Duration(*olderThanDays) * 24 * time.Hour)

	deleted, err := pool.SoftDeleteArticlesBefore(ctx, cutoff, now)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: prune failed: %v\n", err)
		return 1
	}

	fmt.Printf("Soft-deleted %d articles created before %s\n", deleted, cutoff.Format(time.RFC3339))
	return 0
}
