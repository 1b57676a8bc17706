// Package normalize turns any decoded waveform into the canonical mono, fixed rate, fixed length form.
package normalize

import (
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/farcloser/tocsin/internal/resample"
	"github.com/farcloser/tocsin/internal/types"
)

var (
	// ErrEmptyAudio is returned for waveforms without samples.
	ErrEmptyAudio = errors.New("empty audio")
	// ErrInvalidRate is returned for source rates the resampler cannot take.
	ErrInvalidRate = errors.New("invalid sample rate")
)

// Options controls the canonical form.
type Options struct {
	SampleRate    int     // canonical rate, default 22050
	Duration      float64 // canonical duration in seconds, default 3.0
	FadeDuration  float64 // edge fade in seconds, default 0.01
	ShortDuration float64 // sources below this are flagged short, default 0.5
}

// DefaultOptions returns the canonical form used for training and serving.
func DefaultOptions() Options {
	return Options{
		SampleRate:    22050,
		Duration:      3.0,
		FadeDuration:  0.01,
		ShortDuration: 0.5,
	}
}

// Normalizer is stateless and safe for concurrent use.
type Normalizer struct {
	opts   Options
	length int
	fade   int
}

// New returns a Normalizer. Zero fields fall back to DefaultOptions.
func New(opts Options) *Normalizer {
	defaults := DefaultOptions()

	if opts.SampleRate == 0 {
		opts.SampleRate = defaults.SampleRate
	}

	if opts.Duration == 0 {
		opts.Duration = defaults.Duration
	}

	if opts.FadeDuration == 0 {
		opts.FadeDuration = defaults.FadeDuration
	}

	if opts.ShortDuration == 0 {
		opts.ShortDuration = defaults.ShortDuration
	}

	return &Normalizer{
		opts:   opts,
		length: int(float64(opts.SampleRate) * opts.Duration),
		fade:   int(opts.FadeDuration * float64(opts.SampleRate)),
	}
}

// Length is the canonical sample count.
func (n *Normalizer) Length() int {
	return n.length
}

// SampleRate is the canonical rate.
func (n *Normalizer) SampleRate() int {
	return n.opts.SampleRate
}

// Normalize runs, in order: sanitize, clamp, mix down, resample, length policy, edge fade.
// The input is never modified.
func (n *Normalizer) Normalize(wave *types.Waveform) (*types.Canonical, error) {
	if wave == nil || wave.Frames() == 0 {
		return nil, ErrEmptyAudio
	}

	if canonical, ok := n.alreadyCanonical(wave); ok {
		return canonical, nil
	}

	if wave.SampleRate != n.opts.SampleRate {
		if err := resample.CheckRate(wave.SampleRate); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidRate, err)
		}
	}

	sourceDuration := float64(wave.Frames()) / float64(wave.SampleRate)

	// Only the head of the source can reach the canonical window, but the peak is taken over all of it.
	peak := peakOf(wave.Channels)
	channels := copyChannels(wave.Channels, resample.InputLength(n.length, wave.SampleRate, n.opts.SampleRate))

	if replaced := sanitize(channels); replaced > 0 {
		slog.Warn("normalize: non-finite samples replaced with zeros", "count", replaced)
	}

	if peak > 1 {
		scale(channels, peak)
		slog.Debug("normalize: peak normalized", "peak", peak)
	}

	mono := mixDown(channels)

	if wave.SampleRate != n.opts.SampleRate {
		slog.Debug("normalize: resampling", "from", wave.SampleRate, "to", n.opts.SampleRate)

		resampled, err := resample.Mono(mono, wave.SampleRate, n.opts.SampleRate)
		if err != nil {
			return nil, err
		}

		mono = resampled

		// Band limited interpolation rings around full scale transients.
		clampPeak([][]float64{mono})
	}

	if len(mono) == 0 {
		return nil, ErrEmptyAudio
	}

	short := sourceDuration < n.opts.ShortDuration
	if short {
		slog.Warn("normalize: audio too short, may not contain speech", "duration", sourceDuration)
	}

	samples := n.fitLength(mono)
	applyFade(samples, n.fade)

	return &types.Canonical{
		Samples:        samples,
		SampleRate:     n.opts.SampleRate,
		Short:          short,
		SourceDuration: sourceDuration,
	}, nil
}

// alreadyCanonical recognizes a canonical waveform handed back in, and returns it unchanged.
func (n *Normalizer) alreadyCanonical(wave *types.Waveform) (*types.Canonical, bool) {
	if wave.Backend != types.BackendCanonical || len(wave.Channels) != 1 ||
		wave.SampleRate != n.opts.SampleRate || len(wave.Channels[0]) != n.length {
		return nil, false
	}

	for _, v := range wave.Channels[0] {
		if math.IsNaN(v) || math.Abs(v) > 1 {
			return nil, false
		}
	}

	samples := make([]float64, n.length)
	copy(samples, wave.Channels[0])

	return &types.Canonical{
		Samples:        samples,
		SampleRate:     n.opts.SampleRate,
		SourceDuration: n.opts.Duration,
	}, true
}

// copyChannels copies at most limit frames, trimming every channel to the shortest.
func copyChannels(channels [][]float64, limit int) [][]float64 {
	frames := min(len(channels[0]), limit)
	for _, ch := range channels[1:] {
		frames = min(frames, len(ch))
	}

	out := make([][]float64, len(channels))
	for i, ch := range channels {
		out[i] = make([]float64, frames)
		copy(out[i], ch)
	}

	return out
}

func sanitize(channels [][]float64) int {
	var replaced int

	for _, ch := range channels {
		for i, v := range ch {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				ch[i] = 0
				replaced++
			}
		}
	}

	return replaced
}

// peakOf is the largest finite sample magnitude.
func peakOf(channels [][]float64) float64 {
	var peak float64

	for _, ch := range channels {
		for _, v := range ch {
			if a := math.Abs(v); a > peak && !math.IsInf(a, 0) {
				peak = a
			}
		}
	}

	return peak
}

// clampPeak divides every sample by the peak magnitude when it exceeds full scale.
func clampPeak(channels [][]float64) {
	if peak := peakOf(channels); peak > 1 {
		scale(channels, peak)
	}
}

func scale(channels [][]float64, peak float64) {
	for _, ch := range channels {
		for i := range ch {
			ch[i] /= peak
		}
	}
}

func mixDown(channels [][]float64) []float64 {
	if len(channels) == 1 {
		return channels[0]
	}

	mono := make([]float64, len(channels[0]))
	count := float64(len(channels))

	for i := range mono {
		var sum float64
		for _, ch := range channels {
			sum += ch[i]
		}

		mono[i] = sum / count
	}

	return mono
}

// fitLength truncates to the canonical length, or pads the end: mirror padding without repeating the edge sample
// when there is more signal than padding, zeros otherwise.
func (n *Normalizer) fitLength(mono []float64) []float64 {
	size := len(mono)

	if size >= n.length {
		out := make([]float64, n.length)
		copy(out, mono)

		return out
	}

	out := make([]float64, n.length)
	copy(out, mono)

	pad := n.length - size
	if size > pad {
		for k := range pad {
			out[size+k] = mono[size-2-k]
		}
	}

	return out
}

func applyFade(samples []float64, fade int) {
	if fade <= 0 || len(samples) <= 2*fade {
		return
	}

	last := len(samples) - fade

	for i := range fade {
		gain := 1.0
		if fade > 1 {
			gain = float64(i) / float64(fade-1)
		}

		samples[i] *= gain
		samples[last+i] *= 1 - gain
	}
}
