package audit

import (
	"math"

	"github.com/farcloser/tocsin/internal/types"
)

const floorDb = -120.0

// DCOffset returns the mean of each channel and their average magnitude.
func DCOffset(wave *types.Waveform) *types.DCOffsetResult {
	result := &types.DCOffsetResult{
		OffsetDb: floorDb,
		Channels: make([]float64, len(wave.Channels)),
	}

	if wave.Frames() == 0 {
		return result
	}

	for ch, samples := range wave.Channels {
		var sum float64
		for _, v := range samples {
			sum += v
		}

		result.Channels[ch] = sum / float64(len(samples))
		result.Offset += math.Abs(result.Channels[ch])
	}

	result.Offset /= float64(len(wave.Channels))
	result.OffsetDb = toDb(result.Offset)

	return result
}

func toDb(amplitude float64) float64 {
	db := 20 * math.Log10(amplitude)
	if math.IsInf(db, -1) || math.IsNaN(db) {
		return floorDb
	}

	return db
}
