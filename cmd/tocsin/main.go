package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/farcloser/tocsin/version"
)

func main() {
	ctx := context.Background()

	appl := &cli.Command{
		Name:    version.Name(),
		Usage:   "Emergency speech detection",
		Version: version.Version() + " " + version.Commit(),
		Flags:   globalFlags(),
		Before:  setupLogging,
		Commands: []*cli.Command{
			serveCommand(),
			predictCommand(),
			extractCommand(),
			normalizeCommand(),
			trainCommand(),
			infoCommand(),
		},
	}

	if err := appl.Run(ctx, os.Args); err != nil {
		slog.Error("failed to run", "error", err)
		os.Exit(1)
	}
}
