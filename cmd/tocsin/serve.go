//nolint:wrapcheck
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/farcloser/tocsin"
	"github.com/farcloser/tocsin/internal/config"
	"github.com/farcloser/tocsin/internal/discovery"
	"github.com/farcloser/tocsin/internal/server"
	"github.com/farcloser/tocsin/version"
)

const shutdownTimeout = 10 * time.Second

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the prediction API over HTTP and WebSocket",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "addr",
				Aliases: []string{"a"},
				Usage:   "Listen address (default: :5000)",
				Sources: cli.EnvVars("TOCSIN_ADDR"),
			},
			&cli.Int64Flag{
				Name:    "max-body-size",
				Usage:   "Maximum request body and WebSocket message size in bytes (default: 10 MiB)",
				Sources: cli.EnvVars("TOCSIN_MAX_BODY_SIZE"),
			},
			&cli.StringSliceFlag{
				Name:    "allowed-origin",
				Usage:   "Allowed CORS and WebSocket origin, repeatable (default: any)",
				Sources: cli.EnvVars("TOCSIN_ALLOWED_ORIGINS"),
			},
			&cli.BoolFlag{
				Name:    "diagnostics",
				Usage:   "Attach input diagnostics (clipping, DC offset, silence) to predictions",
				Sources: cli.EnvVars("TOCSIN_DIAGNOSTICS"),
			},
			&cli.BoolFlag{
				Name:    "mdns",
				Usage:   "Advertise the API on the local network",
				Sources: cli.EnvVars("TOCSIN_MDNS"),
			},
			&cli.StringFlag{
				Name:    "instance",
				Usage:   "mDNS instance name (default: tocsin)",
				Sources: cli.EnvVars("TOCSIN_INSTANCE"),
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.NArg() != 0 {
				return fmt.Errorf("%w: serve takes no arguments, got %d", errArgCount, cmd.NArg())
			}

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			applyServeFlags(cmd, cfg)

			return runServe(ctx, cfg)
		},
	}
}

func applyServeFlags(cmd *cli.Command, cfg *config.Config) {
	if cmd.IsSet("addr") {
		cfg.Server.Addr = cmd.String("addr")
	}

	if cmd.IsSet("max-body-size") && cmd.Int64("max-body-size") > 0 {
		cfg.Server.MaxBodySize = cmd.Int64("max-body-size")
	}

	if cmd.IsSet("allowed-origin") {
		cfg.Server.AllowedOrigins = cmd.StringSlice("allowed-origin")
	}

	if cmd.IsSet("diagnostics") {
		cfg.Audio.Diagnostics = cmd.Bool("diagnostics")
	}

	if cmd.IsSet("mdns") {
		cfg.Server.MDNS = cmd.Bool("mdns")
	}

	if cmd.IsSet("instance") {
		cfg.Server.Instance = cmd.String("instance")
	}
}

func runServe(ctx context.Context, cfg *config.Config) error {
	pipeline, err := openPipeline(ctx, cfg)
	if err != nil {
		return err
	}

	// The API starts without a model and reports itself unhealthy until a reload succeeds.
	if err = pipeline.Load(ctx); err != nil {
		slog.Warn("serve: no model loaded", "store", pipeline.Handle().Store(), "error", err)
	} else {
		slog.Info("serve: model loaded", "store", pipeline.Handle().Store())
	}

	srv := server.New(pipeline.Service(),
		server.WithAddr(cfg.Server.Addr),
		server.WithMaxBodySize(cfg.Server.MaxBodySize),
		server.WithAllowedOrigins(cfg.Server.AllowedOrigins...),
		server.WithReadTimeout(cfg.Server.ReadTimeout),
		server.WithWriteTimeout(cfg.Server.WriteTimeout),
	)

	listener, err := net.Listen("tcp", srv.Addr())
	if err != nil {
		return fmt.Errorf("listening on %s: %w", srv.Addr(), err)
	}

	fmt.Fprintf(os.Stderr, "Listening on %s (%d features per clip)\n", listener.Addr(),
		pipeline.Service().FeatureCount())

	if cfg.Server.MDNS {
		advertisement, advErr := discovery.Advertise(discovery.Config{
			Instance: cfg.Server.Instance,
			Port:     discovery.Port(listener.Addr()),
			Info: []string{
				"path=/predict",
				"api_version=" + server.APIVersion,
				"version=" + version.Version(),
			},
		})
		if advErr != nil {
			slog.Warn("serve: mdns disabled", "error", advErr)
		} else {
			defer func() { _ = advertisement.Shutdown() }()
		}
	}

	errs := make(chan error, 1)

	go func() {
		errs <- srv.Serve(listener)
	}()

	return waitForSignals(ctx, pipeline, srv, errs)
}

// waitForSignals reloads the model on SIGHUP and drains the server on SIGINT or SIGTERM.
func waitForSignals(ctx context.Context, pipeline *tocsin.Pipeline, srv *server.Server, errs <-chan error) error {
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM)

	defer signal.Stop(signals)

	for {
		select {
		case err := <-errs:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}

			return err
		case sig := <-signals:
			if sig == syscall.SIGHUP {
				if err := pipeline.Load(ctx); err != nil {
					slog.Error("serve: reload failed, keeping current model", "error", err)
				} else {
					slog.Info("serve: model reloaded", "version", modelVersion(pipeline))
				}

				continue
			}

			slog.Info("serve: shutting down", "signal", sig)

			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
			err := srv.Shutdown(shutdownCtx)

			cancel()

			return err
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
			defer cancel()

			return srv.Shutdown(shutdownCtx)
		}
	}
}

func modelVersion(pipeline *tocsin.Pipeline) string {
	model, err := pipeline.Handle().Get()
	if err != nil {
		return ""
	}

	return model.Stamp().SetID
}
