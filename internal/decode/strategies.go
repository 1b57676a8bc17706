package decode

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/farcloser/tocsin/internal/integration/ffmpeg"
	"github.com/farcloser/tocsin/internal/integration/ffprobe"
	"github.com/farcloser/tocsin/internal/resample"
	"github.com/farcloser/tocsin/internal/types"
)

// wavStrategy decodes payloads declared as WAV with the primary backend.
type wavStrategy struct{}

func (*wavStrategy) Name() string { return types.BackendWAV }

func (*wavStrategy) Applies(format Format) bool { return format.IsWAV() }

func (*wavStrategy) Decode(_ context.Context, blob *types.Blob, _ Format) (*types.Waveform, error) {
	return decodeWAV(blob.Data)
}

// transcodeStrategy runs compressed, container or undeclared payloads through ffmpeg into WAV.
type transcodeStrategy struct {
	tempDir     string
	timeout     time.Duration
	sourceDepth bool
}

func (*transcodeStrategy) Name() string { return types.BackendTranscode }

func (*transcodeStrategy) Applies(format Format) bool {
	return !format.IsWAV() && format.Container != containerPCM
}

func (s *transcodeStrategy) Decode(ctx context.Context, blob *types.Blob, format Format) (*types.Waveform, error) {
	dir, err := os.MkdirTemp(s.tempDir, "tocsin-")
	if err != nil {
		return nil, fmt.Errorf("creating scratch directory: %w", err)
	}

	defer func() {
		if rmErr := os.RemoveAll(dir); rmErr != nil {
			slog.Debug("decode.transcode: cleanup failed", "dir", dir, "error", rmErr)
		}
	}()

	input := filepath.Join(dir, "input"+format.Extension)
	if err = os.WriteFile(input, blob.Data, 0o600); err != nil {
		return nil, fmt.Errorf("writing scratch input: %w", err)
	}

	output := filepath.Join(dir, "output.wav")
	if err = ffmpeg.Transcode(ctx, input, output, ffmpeg.Options{
		InputFormat: format.Container,
		Timeout:     s.timeout,
	}); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(output) //nolint:gosec // path built above
	if err != nil {
		return nil, fmt.Errorf("reading transcoded output: %w", err)
	}

	wave, err := decodeWAV(data)
	if err != nil {
		if wave, err = readLenient(data, false, 0); err != nil {
			return nil, err
		}
	}

	// The transcoded depth says nothing about the source. Only ffprobe can tell, and its failure is not fatal.
	wave.BitDepth = 0

	if s.sourceDepth {
		if result, inspectErr := ffprobe.Inspect(ctx, input); inspectErr != nil {
			slog.Debug("decode.transcode: ffprobe failed", "error", inspectErr)
		} else if stream := result.FirstAudio(); stream != nil {
			wave.BitDepth = stream.BitDepth()
		}
	}

	return wave, nil
}

// nativeStrategy sniffs the payload and decodes WAV, FLAC or MP3 in process.
type nativeStrategy struct{}

func (*nativeStrategy) Name() string { return types.BackendNative }

func (*nativeStrategy) Applies(Format) bool { return true }

func (*nativeStrategy) Decode(_ context.Context, blob *types.Blob, _ Format) (*types.Waveform, error) {
	return decodeNative(blob.Data)
}

// pcmStrategy is the lenient last resort reader.
type pcmStrategy struct {
	targetRate  int
	maxDuration float64
}

func (*pcmStrategy) Name() string { return types.BackendPCM }

func (*pcmStrategy) Applies(Format) bool { return true }

func (s *pcmStrategy) Decode(_ context.Context, blob *types.Blob, format Format) (*types.Waveform, error) {
	wave, err := readLenient(blob.Data, format.Container == containerPCM, blob.SampleRate)
	if err != nil {
		return nil, err
	}

	if s.targetRate > 0 && wave.SampleRate != s.targetRate {
		if err = resample.CheckRate(wave.SampleRate); err != nil {
			return nil, err
		}

		if s.maxDuration > 0 {
			keep := resample.InputLength(int(math.Ceil(s.maxDuration*float64(s.targetRate))), wave.SampleRate, s.targetRate)
			for i, ch := range wave.Channels {
				wave.Channels[i] = ch[:min(len(ch), keep)]
			}
		}

		channels, err := resample.Planar(wave.Channels, wave.SampleRate, s.targetRate)
		if err != nil {
			return nil, err
		}

		wave.Channels = channels
		wave.SampleRate = s.targetRate
	}

	return wave, nil
}
