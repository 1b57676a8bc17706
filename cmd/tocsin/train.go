//nolint:wrapcheck
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"time"

	"github.com/farcloser/primordium/format"
	"github.com/urfave/cli/v3"

	"github.com/farcloser/tocsin/internal/cache"
	"github.com/farcloser/tocsin/internal/config"
	"github.com/farcloser/tocsin/internal/dataset"
	"github.com/farcloser/tocsin/internal/output"
)

var errNoSamples = errors.New("no usable recordings")

func trainCommand() *cli.Command {
	return &cli.Command{
		Name:      "train",
		Usage:     "Train a classifier from a folder with emergency/ and normal/ recordings",
		ArgsUsage: "<folder>",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "workers",
				Aliases: []string{"j"},
				Usage:   "Number of concurrent extraction workers",
				Value:   runtime.NumCPU(),
			},
			&cli.IntFlag{
				Name:  "epochs",
				Usage: "Maximum training epochs (default: 100)",
			},
			&cli.IntFlag{
				Name:  "batch-size",
				Usage: "Mini-batch size (default: 32)",
			},
			&cli.IntFlag{
				Name:  "patience",
				Usage: "Epochs without validation improvement before stopping (default: 15)",
			},
			&cli.Float64Flag{
				Name:  "learning-rate",
				Usage: "Initial Adam learning rate (default: 0.001)",
			},
			&cli.Float64Flag{
				Name:  "validation-split",
				Usage: "Fraction of each class held out for validation (default: 0.2)",
			},
			&cli.Uint64Flag{
				Name:  "seed",
				Usage: "Seed for the split, initialization and shuffling (default: 42)",
			},
			&cli.StringFlag{
				Name:    "cache-dir",
				Usage:   "Feature cache directory; unset disables the cache",
				Sources: cli.EnvVars("TOCSIN_CACHE_DIR"),
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.NArg() != 1 {
				return fmt.Errorf("%w: expected exactly one folder, got %d", errArgCount, cmd.NArg())
			}

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			applyTrainFlags(cmd, cfg)

			return runTrain(ctx, cmd, cfg, cmd.Args().First())
		},
	}
}

func applyTrainFlags(cmd *cli.Command, cfg *config.Config) {
	if cmd.IsSet("workers") || cfg.Train.Workers <= 0 {
		cfg.Train.Workers = max(cmd.Int("workers"), 1)
	}

	if cmd.IsSet("epochs") {
		cfg.Train.Epochs = cmd.Int("epochs")
	}

	if cmd.IsSet("batch-size") {
		cfg.Train.BatchSize = cmd.Int("batch-size")
	}

	if cmd.IsSet("patience") {
		cfg.Train.Patience = cmd.Int("patience")
	}

	if cmd.IsSet("learning-rate") {
		cfg.Train.LearningRate = cmd.Float64("learning-rate")
	}

	if cmd.IsSet("validation-split") {
		cfg.Train.ValidationSplit = cmd.Float64("validation-split")
	}

	if cmd.IsSet("seed") {
		cfg.Train.Seed = cmd.Uint64("seed")
	}

	if cmd.IsSet("cache-dir") {
		cfg.Cache.Dir = cmd.String("cache-dir")
	}
}

func runTrain(ctx context.Context, cmd *cli.Command, cfg *config.Config, folder string) error {
	pipeline, err := openPipeline(ctx, cfg)
	if err != nil {
		return err
	}

	opts := pipeline.DatasetOptions()
	opts.Workers = cfg.Train.Workers
	opts.Progress = func(done, total int, record *dataset.Record) {
		status := record.Backend
		switch {
		case record.Error != "":
			status = "failed: " + record.Error
		case record.Cached:
			status = "cached"
		}

		fmt.Fprintf(os.Stderr, "[%d/%d] %s (%s)\n", done, total, record.Path, status)
	}

	if cfg.Cache.Dir != "" {
		featureCache, cacheErr := cache.Open(cache.Options{Dir: cfg.Cache.Dir}, pipeline.Layout())
		if cacheErr != nil {
			return cacheErr
		}

		defer func() {
			if closeErr := featureCache.Close(); closeErr != nil {
				slog.Warn("train: closing feature cache", "error", closeErr)
			}
		}()

		opts.Cache = featureCache
	}

	startTime := time.Now()

	set, err := dataset.Load(ctx, folder, opts)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "Extracted %d samples in %s (%d failed)\n",
		len(set.Samples), time.Since(startTime).Round(time.Millisecond), set.Failed())

	if len(set.Samples) == 0 {
		return fmt.Errorf("%q: %w", folder, errNoSamples)
	}

	startTime = time.Now()

	history, err := pipeline.Train(ctx, set, cfg.TrainOptions())
	if err != nil {
		return fmt.Errorf("training: %w", err)
	}

	fmt.Fprintf(os.Stderr, "Trained %d epochs in %s\n", len(history.Epochs), time.Since(startTime).Round(time.Millisecond))

	meta := output.HistoryToMap(history)
	meta["model_version"] = modelVersion(pipeline)
	meta["failed_files"] = set.Failed()

	return printAll(cmd.String("format"), []*format.Data{{
		Object: pipeline.Handle().Store().String(),
		Meta:   meta,
	}})
}
