//nolint:wrapcheck
package main

import (
	"context"
	"fmt"

	"github.com/farcloser/primordium/format"
	"github.com/urfave/cli/v3"

	"github.com/farcloser/tocsin/internal/output"
)

func infoCommand() *cli.Command {
	return &cli.Command{
		Name:  "info",
		Usage: "Describe the model artifact set in the store",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			pipeline, err := openPipeline(ctx, cfg)
			if err != nil {
				return err
			}

			store := pipeline.Handle().Store()
			if err = pipeline.Load(ctx); err != nil {
				return fmt.Errorf("loading model from %s: %w", store, err)
			}

			model, err := pipeline.Handle().Get()
			if err != nil {
				return err
			}

			return printAll(cmd.String("format"), []*format.Data{{
				Object: store.String(),
				Meta:   output.ModelToMap(model, store.String()),
			}})
		},
	}
}
