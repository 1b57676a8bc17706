// Package decode turns encoded audio payloads into planar float PCM.
//
// Decoding is an ordered list of strategies tried in sequence. Each strategy either does not apply to the
// payload, fails, or produces a waveform; the first success wins. When every applicable strategy failed the
// chain returns a *Failure listing each attempt.
package decode

import (
	"context"
	"log/slog"
	"time"

	"github.com/farcloser/tocsin/internal/types"
)

// Strategy is one way of decoding a payload.
type Strategy interface {
	Name() string
	Applies(format Format) bool
	Decode(ctx context.Context, blob *types.Blob, format Format) (*types.Waveform, error)
}

// Attempt is the outcome of one strategy: exactly one of Waveform, Err, or Skipped is set.
type Attempt struct {
	Strategy string
	Waveform *types.Waveform
	Err      error
	Skipped  bool
}

// Options configures the default chain.
type Options struct {
	// TargetRate is the rate the PCM fallback resamples to when its source rate differs.
	TargetRate int
	// MaxDuration, in seconds, caps what the PCM fallback resamples. Zero resamples everything.
	MaxDuration float64
	// TempDir hosts per call scratch directories. Empty means os.TempDir().
	TempDir string
	// TranscodeTimeout bounds each ffmpeg run. Zero uses the ffmpeg default.
	TranscodeTimeout time.Duration
	// SourceDepth enables best effort ffprobe of transcoded sources to record their bit depth.
	SourceDepth bool
}

// Chain decodes payloads by trying its strategies in order.
type Chain struct {
	strategies []Strategy
}

// New returns the default chain: declared WAV, transcode, native sniffing, lenient PCM.
func New(opts Options) *Chain {
	return NewWithStrategies(
		&wavStrategy{},
		&transcodeStrategy{tempDir: opts.TempDir, timeout: opts.TranscodeTimeout, sourceDepth: opts.SourceDepth},
		&nativeStrategy{},
		&pcmStrategy{targetRate: opts.TargetRate, maxDuration: opts.MaxDuration},
	)
}

// NewWithStrategies returns a chain over an explicit strategy list.
func NewWithStrategies(strategies ...Strategy) *Chain {
	return &Chain{strategies: strategies}
}

// Strategies returns the strategy names in order.
func (c *Chain) Strategies() []string {
	names := make([]string, len(c.strategies))
	for i, s := range c.strategies {
		names[i] = s.Name()
	}

	return names
}

// Decode runs the chain and returns the first successful waveform.
func (c *Chain) Decode(ctx context.Context, blob *types.Blob) (*types.Waveform, error) {
	wave, attempts := c.Attempts(ctx, blob)
	if wave != nil {
		return wave, nil
	}

	return nil, &Failure{MIMEType: blob.MIMEType, Attempts: attempts}
}

// Attempts runs the chain and returns the winning waveform, if any, along with every attempt made.
func (c *Chain) Attempts(ctx context.Context, blob *types.Blob) (*types.Waveform, []Attempt) {
	format := LookupFormat(blob.MIMEType)
	attempts := make([]Attempt, 0, len(c.strategies))

	for _, strategy := range c.strategies {
		if !strategy.Applies(format) {
			attempts = append(attempts, Attempt{Strategy: strategy.Name(), Skipped: true, Err: errNotApplicable})

			continue
		}

		if err := ctx.Err(); err != nil {
			attempts = append(attempts, Attempt{Strategy: strategy.Name(), Err: err})

			return nil, attempts
		}

		wave, err := strategy.Decode(ctx, blob, format)
		if err == nil && wave.Frames() == 0 {
			err = errNoFrames
		}

		if err != nil {
			slog.Debug("decode.Chain", "strategy", strategy.Name(), "mime", blob.MIMEType, "error", err)
			attempts = append(attempts, Attempt{Strategy: strategy.Name(), Err: err})

			continue
		}

		wave.Backend = strategy.Name()

		slog.Debug("decode.Chain", "strategy", strategy.Name(), "mime", blob.MIMEType,
			"rate", wave.SampleRate, "channels", len(wave.Channels), "frames", wave.Frames())

		attempts = append(attempts, Attempt{Strategy: strategy.Name(), Waveform: wave})

		return wave, attempts
	}

	slog.Warn("decode.Chain: all strategies failed", "mime", blob.MIMEType, "bytes", len(blob.Data))

	return nil, attempts
}
