package ffmpeg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"time"

	"github.com/farcloser/primordium/fault"

	"github.com/farcloser/tocsin/internal/integration/binary"
	"github.com/farcloser/tocsin/internal/types"
)

// Options controls a transcode run.
type Options struct {
	// InputFormat is passed to ffmpeg as -f when not empty or "wav". Empty lets ffmpeg detect the format.
	InputFormat string
	// BitDepth of the produced WAV (16, 24 or 32). Defaults to 16.
	BitDepth types.BitDepth
	// Timeout bounds the ffmpeg process. Defaults to DefaultTimeout.
	Timeout time.Duration
}

// Transcode converts the media file at inputPath into a PCM WAV file at outputPath.
func Transcode(ctx context.Context, inputPath, outputPath string, opts Options) error {
	slog.Debug("ffmpeg.Transcode", "input", inputPath, "format", opts.InputFormat, "stage", "start")

	ffmpegPath, err := binary.Require(name)
	if err != nil {
		return err
	}

	if opts.BitDepth == 0 {
		opts.BitDepth = types.Depth16
	}

	if opts.Timeout == 0 {
		opts.Timeout = DefaultTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	args := []string{"-nostdin", "-v", "error", "-y"}
	// A "wav" hint is the fallback for unknown types: let ffmpeg detect the format instead of forcing a demuxer.
	if opts.InputFormat != "" && opts.InputFormat != "wav" {
		args = append(args, "-f", opts.InputFormat)
	}

	args = append(args,
		"-i", inputPath,
		"-vn",
		"-acodec", bitDepthToCodec(opts.BitDepth),
		"-f", "wav",
		outputPath,
	)

	//nolint:gosec // paths are created by the caller in a private temp directory
	cmd := exec.CommandContext(ctx, ffmpegPath, args...)

	var stderr bytes.Buffer

	cmd.Stderr = &stderr

	if err = cmd.Run(); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			slog.Debug("ffmpeg.Transcode", "input", inputPath, "stage", "timeout")

			return fmt.Errorf("%w: after %v", fault.ErrTimeout, opts.Timeout)
		}

		slog.Debug("ffmpeg.Transcode", "input", inputPath, "stage", "error")

		return fmt.Errorf("%w: %s: %w", fault.ErrCommandFailure, stderr.String(), err)
	}

	slog.Debug("ffmpeg.Transcode", "input", inputPath, "stage", "done")

	return nil
}
