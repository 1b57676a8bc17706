//nolint:wrapcheck
package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/farcloser/primordium/format"
	"github.com/urfave/cli/v3"

	"github.com/farcloser/tocsin/internal/classifier"
	"github.com/farcloser/tocsin/internal/inference"
	"github.com/farcloser/tocsin/internal/output"
)

var errPredictFailed = errors.New("some files could not be classified")

func predictCommand() *cli.Command {
	return &cli.Command{
		Name:      "predict",
		Usage:     "Classify audio files as emergency or normal speech",
		ArgsUsage: "<file> [file...]",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "diagnostics",
				Aliases: []string{"d"},
				Usage:   "Include input diagnostics (clipping, DC offset, silence)",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.NArg() == 0 {
				return fmt.Errorf("%w: expected at least one file", errArgCount)
			}

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			if cmd.IsSet("diagnostics") {
				cfg.Audio.Diagnostics = cmd.Bool("diagnostics")
			}

			pipeline, err := openPipeline(ctx, cfg)
			if err != nil {
				return err
			}

			if err = pipeline.Load(ctx); err != nil {
				return fmt.Errorf("loading model from %s: %w", pipeline.Handle().Store(), err)
			}

			data := make([]*format.Data, 0, cmd.NArg())
			failed := 0

			for _, path := range cmd.Args().Slice() {
				result, err := pipeline.Predict(ctx, inference.PathInput{Path: path})
				if errors.Is(err, classifier.ErrModelNotLoaded) {
					return err
				}

				if err != nil {
					failed++
				}

				data = append(data, &format.Data{Object: path, Meta: output.PredictionToMap(result)})
			}

			if err = printAll(cmd.String("format"), data); err != nil {
				return err
			}

			if failed > 0 {
				return fmt.Errorf("%w: %d of %d", errPredictFailed, failed, len(data))
			}

			return nil
		},
	}
}
