//nolint:staticcheck // too dumb
package audit

import (
	"math"

	"github.com/farcloser/tocsin/internal/types"
)

// SilenceOptions tunes silence detection.
type SilenceOptions struct {
	ThresholdDb   float64 // below this = silence (default -60)
	MinDurationMs int     // minimum silence to report (default 200)
	WindowMs      int     // RMS window size (default 20)
}

// DefaultSilenceOptions returns thresholds suited to short speech clips.
func DefaultSilenceOptions() SilenceOptions {
	return SilenceOptions{
		ThresholdDb:   -60.0,
		MinDurationMs: 200,
		WindowMs:      20,
	}
}

// Silence finds windows whose channel averaged RMS stays under the threshold.
func Silence(wave *types.Waveform, opts SilenceOptions) *types.SilenceResult {
	defaults := DefaultSilenceOptions()

	if opts.ThresholdDb == 0 {
		opts.ThresholdDb = defaults.ThresholdDb
	}

	if opts.MinDurationMs == 0 {
		opts.MinDurationMs = defaults.MinDurationMs
	}

	if opts.WindowMs == 0 {
		opts.WindowMs = defaults.WindowMs
	}

	frames := wave.Frames()
	result := &types.SilenceResult{Segments: []types.SilenceSegment{}}

	if frames == 0 || wave.SampleRate <= 0 {
		return result
	}

	rate := float64(wave.SampleRate)
	windowFrames := max(wave.SampleRate*opts.WindowMs/1000, 1)
	minFrames := wave.SampleRate * opts.MinDurationMs / 1000
	threshold := math.Pow(10, opts.ThresholdDb/20)
	numChannels := float64(len(wave.Channels))

	var (
		inSilence    bool
		silenceStart int
		silenceSumSq float64
		silenceCount int
	)

	closeSegment := func(end int) {
		if end-silenceStart >= minFrames {
			result.Segments = append(result.Segments, types.SilenceSegment{
				StartSec:    float64(silenceStart) / rate,
				EndSec:      float64(end) / rate,
				DurationSec: float64(end-silenceStart) / rate,
				RmsDb:       toDb(math.Sqrt(silenceSumSq / float64(silenceCount))),
			})
		}

		inSilence = false
	}

	for start := 0; start < frames; start += windowFrames {
		end := min(start+windowFrames, frames)

		var sumSq float64

		for _, samples := range wave.Channels {
			for _, v := range samples[start:end] {
				sumSq += v * v
			}
		}

		sumSq /= numChannels
		count := end - start
		silent := math.Sqrt(sumSq/float64(count)) < threshold

		switch {
		case silent && !inSilence:
			inSilence = true
			silenceStart = start
			silenceSumSq = sumSq
			silenceCount = count
		case silent && inSilence:
			silenceSumSq += sumSq
			silenceCount += count
		case !silent && inSilence:
			closeSegment(start)
		default:
		}
	}

	if inSilence {
		closeSegment(frames)
	}

	result.TotalDuration = float64(frames) / rate

	for _, segment := range result.Segments {
		result.TotalSilence += segment.DurationSec
	}

	if len(result.Segments) > 0 {
		if first := result.Segments[0]; first.StartSec == 0 {
			result.LeadingSec = first.DurationSec
		}

		if last := result.Segments[len(result.Segments)-1]; last.EndSec == result.TotalDuration {
			result.TrailingSec = last.DurationSec
		}
	}

	return result
}
