package app

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"horse.fit/winnow/internal/payload"
)

func runValidate(args []string) int {
	fs := flag.NewFlagSet("validate", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	inputDir := fs.String("input", "", "Directory containing *_articles.json batch files")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	files, err := collectBatchFiles(*inputDir, fs.Args())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 2
	}

	failures := 0
	for _, path := range files {
		raw, err := os.ReadFile(path)
		if err != nil {
			failures++
			fmt.Fprintf(os.Stderr, "FAIL  %s: %v\n", path, err)
			continue
		}

		batch, err := payload.ValidateChannelBatch(raw)
		if err != nil {
			failures++
			fmt.Fprintf(os.Stderr, "FAIL  %s: %v\n", path, err)
			continue
		}

		fmt.Printf("OK    %s: channel=%s articles=%d\n", path, batch.Channel, len(batch.Articles))
	}

	if failures > 0 {
		fmt.Fprintf(os.Stderr, "\n%d of %d files failed validation\n", failures, len(files))
		return 1
	}

	fmt.Printf("\nAll %d files valid\n", len(files))
	return 0
}
