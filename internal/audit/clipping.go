package audit

import (
	"github.com/farcloser/tocsin/internal/types"
)

// clipLevel is the largest positive 16-bit sample after float conversion. Anything at or beyond it is full scale
// for every integer depth the decoders produce.
const clipLevel = 32767.0 / 32768.0

// Clipping counts runs of two or more consecutive full scale samples per channel.
func Clipping(wave *types.Waveform) *types.ClippingDetection {
	result := &types.ClippingDetection{
		Channels: make([]types.ChannelClipping, len(wave.Channels)),
	}

	for ch, samples := range wave.Channels {
		var consecutive uint64

		flush := func() {
			if consecutive >= 2 {
				stats := &result.Channels[ch]
				stats.Events++
				stats.ClippedSamples += consecutive
				stats.LongestRun = max(stats.LongestRun, consecutive)

				result.Events++
				result.ClippedSamples += consecutive
				result.LongestRun = max(result.LongestRun, consecutive)
			}

			consecutive = 0
		}

		for _, v := range samples {
			if v >= clipLevel || v <= -1 {
				consecutive++

				continue
			}

			flush()
		}

		flush()

		result.Samples += uint64(len(samples))
	}

	return result
}
