//nolint:wrapcheck
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/farcloser/primordium/format"
	"github.com/urfave/cli/v3"

	"github.com/farcloser/tocsin"
	"github.com/farcloser/tocsin/internal/inference"
	"github.com/farcloser/tocsin/internal/output"
)

func extractCommand() *cli.Command {
	return &cli.Command{
		Name:      "extract",
		Usage:     "Decode, normalize and extract features from an audio file (no model needed)",
		ArgsUsage: "<file>",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "features",
				Usage: "Include the named feature vector",
			},
			&cli.StringFlag{
				Name:  "mime-type",
				Usage: "Declared MIME type, overriding the file extension",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.NArg() != 1 {
				return fmt.Errorf("%w: expected exactly one file, got %d", errArgCount, cmd.NArg())
			}

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			opts := cfg.Options()
			opts.Diagnostics = true

			pipeline := tocsin.New(nil, opts)
			path := cmd.Args().First()

			input, err := fileInput(path, cmd.String("mime-type"))
			if err != nil {
				return err
			}

			analysis, err := pipeline.Analyze(ctx, input)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}

			return printAll(cmd.String("format"), []*format.Data{{
				Object: path,
				Meta:   output.AnalysisToMap(analysis, pipeline.Layout(), cmd.Bool("features")),
			}})
		},
	}
}

// fileInput reads path by extension, or as a blob with an explicit MIME type.
func fileInput(path, mimeType string) (inference.Input, error) {
	if mimeType == "" {
		return inference.PathInput{Path: path}, nil
	}

	data, err := os.ReadFile(path) //nolint:gosec // CLI tool opens user-specified audio files
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	return inference.BlobInput{Data: data, MIMEType: mimeType}, nil
}
