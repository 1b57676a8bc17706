//nolint:wrapcheck
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/farcloser/primordium/format"
	"github.com/urfave/cli/v3"

	"github.com/farcloser/tocsin"
	"github.com/farcloser/tocsin/internal/config"
	"github.com/farcloser/tocsin/internal/storage"
)

var errArgCount = errors.New("wrong number of arguments")

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "Log level: debug, info, warn, error",
			Value:   "warn",
			Sources: cli.EnvVars("TOCSIN_LOG_LEVEL"),
		},
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "YAML configuration file",
			Sources: cli.EnvVars("TOCSIN_CONFIG"),
		},
		&cli.StringFlag{
			Name:    "model-store",
			Aliases: []string{"m"},
			Usage:   "Model artifact location: a directory or s3://bucket/prefix (default: models)",
			Sources: cli.EnvVars("TOCSIN_MODEL_STORE"),
		},
		&cli.StringFlag{
			Name:    "s3-endpoint",
			Usage:   "S3 endpoint override, for MinIO and other compatible stores",
			Sources: cli.EnvVars("TOCSIN_S3_ENDPOINT"),
		},
		&cli.StringFlag{
			Name:    "s3-region",
			Usage:   "S3 region override",
			Sources: cli.EnvVars("TOCSIN_S3_REGION"),
		},
		&cli.BoolFlag{
			Name:    "s3-path-style",
			Usage:   "Use path style S3 addressing",
			Sources: cli.EnvVars("TOCSIN_S3_PATH_STYLE"),
		},
		&cli.IntFlag{
			Name:    "n-mfcc",
			Usage:   "Number of MFCC coefficients; changes the feature layout (default: 13)",
			Sources: cli.EnvVars("TOCSIN_N_MFCC"),
		},
		&cli.StringFlag{
			Name:    "format",
			Aliases: []string{"f"},
			Usage:   "Output format: console, json, markdown",
			Value:   "console",
		},
	}
}

func setupLogging(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	return ctx, installLogger(cmd.String("log-level"))
}

func installLogger(name string) error {
	var level slog.Level
	if err := level.UnmarshalText([]byte(name)); err != nil {
		return fmt.Errorf("log level: %w", err)
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	return nil
}

// loadConfig reads the config file, then applies explicitly set flags and environment variables over it.
func loadConfig(cmd *cli.Command) (*config.Config, error) {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return nil, err
	}

	if !cmd.IsSet("log-level") && cfg.LogLevel != "" {
		if err = installLogger(cfg.LogLevel); err != nil {
			return nil, err
		}
	}

	if cmd.IsSet("model-store") {
		cfg.Model.Store = cmd.String("model-store")
	}

	if cmd.IsSet("s3-endpoint") {
		cfg.Model.Endpoint = cmd.String("s3-endpoint")
	}

	if cmd.IsSet("s3-region") {
		cfg.Model.Region = cmd.String("s3-region")
	}

	if cmd.IsSet("s3-path-style") {
		cfg.Model.PathStyle = cmd.Bool("s3-path-style")
	}

	if cmd.IsSet("n-mfcc") {
		cfg.Audio.NMFCC = cmd.Int("n-mfcc")
	}

	if err = cfg.Validate(); err != nil {
		return nil, err
	}

	slog.Debug("config", "store", cfg.Model.Store, "layout", cfg.Options().Layout())

	return cfg, nil
}

// openPipeline builds the pipeline on the configured store. The model is not loaded.
func openPipeline(ctx context.Context, cfg *config.Config) (*tocsin.Pipeline, error) {
	store, err := storage.Open(ctx, cfg.Model.Store, cfg.S3Options())
	if err != nil {
		return nil, fmt.Errorf("opening model store: %w", err)
	}

	return tocsin.New(store, cfg.Options()), nil
}

func printAll(formatName string, data []*format.Data) error {
	formatter, err := format.GetFormatter(formatName)
	if err != nil {
		return err
	}

	return formatter.PrintAll(data, os.Stdout)
}
