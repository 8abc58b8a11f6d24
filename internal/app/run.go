package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"horse.fit/winnow/internal/arbitration"
	"horse.fit/winnow/internal/cli"
	"horse.fit/winnow/internal/config"
	"horse.fit/winnow/internal/db"
	"horse.fit/winnow/internal/dedup"
	"horse.fit/winnow/internal/embedding"
	"horse.fit/winnow/internal/logging"
)

func runProcess(args []string) int {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	inputDir := fs.String("input", "", "Directory containing *_articles.json batch files")
	lookback := fs.Int("lookback", 0, "Override the similarity lookback window in hours")
	reportPath := fs.String("report", "", "Write the run report JSON to this path")
	csvPath := fs.String("csv", "", "Write the kept articles CSV to this path")
	timeout := fs.Duration("timeout", 30*time.Minute, "Overall run timeout")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	if _, err := envLoader.Load(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to load config: %v\n", err)
		return 1
	}

	logger, err := logging.New(cfg.Environment, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	files, err := collectBatchFiles(*inputDir, fs.Args())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 2
	}

	batches, err := loadChannelBatches(files)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to connect to database: %v\n", err)
		return 1
	}
	defer pool.Close()

	embedder := embedding.NewClient(embedding.Options{
		Endpoint:    cfg.EmbeddingEndpoint,
		Model:       cfg.EmbeddingModel,
		APIKey:      cfg.EmbeddingAPIKey,
		Dimensions:  cfg.EmbeddingDimensions,
		BatchSize:   cfg.EmbeddingBatchSize,
		MaxAttempts: cfg.RetryMaxAttempts,
	})
	arbiter := arbitration.NewClient(arbitration.Options{
		Endpoint:    cfg.ArbitrationEndpoint,
		Model:       cfg.ArbitrationModel,
		APIKey:      cfg.ArbitrationAPIKey,
		BatchSize:   cfg.ArbitrationBatchSize,
		MaxAttempts: cfg.RetryMaxAttempts,
	})
	resolver := dedup.NewResolver(cfg.SourcePriorityList(), cfg.TrackingParamsList(), logger)

	lookbackHours := cfg.LookbackHours
	if *lookback > 0 {
		lookbackHours = *lookback
	}

	service := dedup.NewService(pool, embedder, arbiter, resolver, dedup.Config{
		LookbackHours:      lookbackHours,
		AmbiguousThreshold: cfg.AmbiguousThreshold,
		DuplicateThreshold: cfg.DuplicateThreshold,
	}, logger)

	report, err := service.Run(ctx, batches)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	if *reportPath != "" {
		if err := report.WriteJSON(*reportPath); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		logger.Info().Str("path", *reportPath).Msg("report written")
	}
	if *csvPath != "" {
		if err := report.WriteCSV(*csvPath); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		logger.Info().Str("path", *csvPath).Msg("kept articles CSV written")
	}

	if err := printJSON(report); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}
