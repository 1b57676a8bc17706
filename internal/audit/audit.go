// Package audit computes diagnostics of a decoded input: clipping, DC offset and silence. The report is
// informational; nothing in the inference path depends on it.
package audit

import (
	"math"

	"github.com/farcloser/tocsin/internal/types"
)

// Inspect builds the input report for a decoded waveform.
func Inspect(wave *types.Waveform) *types.InputReport {
	var peak float64

	for _, samples := range wave.Channels {
		for _, v := range samples {
			if a := math.Abs(v); a > peak && !math.IsInf(a, 0) {
				peak = a
			}
		}
	}

	return &types.InputReport{
		Backend:     wave.Backend,
		SampleRate:  wave.SampleRate,
		Channels:    len(wave.Channels),
		BitDepth:    wave.BitDepth,
		DurationSec: wave.Duration(),
		PeakDb:      toDb(peak),
		Clipping:    Clipping(wave),
		DCOffset:    DCOffset(wave),
		Silence:     Silence(wave, DefaultSilenceOptions()),
	}
}
