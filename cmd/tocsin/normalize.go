//nolint:wrapcheck
package main

import (
	"context"
	"fmt"

	"github.com/farcloser/primordium/format"
	"github.com/urfave/cli/v3"

	"github.com/farcloser/tocsin"
	"github.com/farcloser/tocsin/internal/wavfile"
)

func normalizeCommand() *cli.Command {
	return &cli.Command{
		Name:      "normalize",
		Usage:     "Write the canonical mono clip the classifier sees as a WAV file",
		ArgsUsage: "<input> <output.wav>",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "bit-depth",
				Aliases: []string{"b"},
				Usage:   "Output bit depth (16, 24, or 32)",
				Value:   16,
			},
			&cli.StringFlag{
				Name:  "mime-type",
				Usage: "Declared MIME type, overriding the file extension",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.NArg() != 2 {
				return fmt.Errorf("%w: expected <input> <output.wav>, got %d arguments", errArgCount, cmd.NArg())
			}

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			pipeline := tocsin.New(nil, cfg.Options())
			source, target := cmd.Args().Get(0), cmd.Args().Get(1)

			input, err := fileInput(source, cmd.String("mime-type"))
			if err != nil {
				return err
			}

			analysis, err := pipeline.Analyze(ctx, input)
			if err != nil {
				return fmt.Errorf("%s: %w", source, err)
			}

			canonical := analysis.Canonical
			if err = wavfile.WriteFile(target, [][]float64{canonical.Samples}, canonical.SampleRate,
				cmd.Int("bit-depth")); err != nil {
				return fmt.Errorf("writing %s: %w", target, err)
			}

			return printAll(cmd.String("format"), []*format.Data{{
				Object: target,
				Meta: map[string]any{
					"source":          source,
					"backend":         analysis.Waveform.Backend,
					"source_duration": canonical.SourceDuration,
					"short_clip":      canonical.Short,
					"sample_rate":     canonical.SampleRate,
					"samples":         len(canonical.Samples),
				},
			}})
		},
	}
}
