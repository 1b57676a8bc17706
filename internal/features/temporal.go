package features

import (
	"math"
)

// zeroCrossingThreshold treats tiny magnitudes as zero so numerical noise around silence does not count.
const zeroCrossingThreshold = 1e-10

// zeroCrossingRate returns the fraction of sign changes per centered frame. Frames are edge padded.
func zeroCrossingRate(samples []float64, frame, hop int) []float64 {
	half := frame / 2
	padded := make([]float64, len(samples)+2*half)
	copy(padded[half:], samples)

	for i := range half {
		padded[i] = samples[0]
		padded[len(padded)-1-i] = samples[len(samples)-1]
	}

	for i, v := range padded {
		if math.Abs(v) <= zeroCrossingThreshold {
			padded[i] = 0
		}
	}

	frames := frameCount(len(samples), hop)
	rates := make([]float64, frames)

	for t := range frames {
		start := t * hop

		var crossings int
		for i := start + 1; i < start+frame; i++ {
			if math.Signbit(padded[i]) != math.Signbit(padded[i-1]) {
				crossings++
			}
		}

		rates[t] = float64(crossings) / float64(frame)
	}

	return rates
}

// rmsEnergy returns the root mean square of each zero padded centered frame.
func rmsEnergy(samples []float64, frame, hop int) []float64 {
	padded := centerPad(samples, frame)
	frames := frameCount(len(samples), hop)
	energy := make([]float64, frames)

	for t := range frames {
		start := t * hop

		var sum float64
		for _, v := range padded[start : start+frame] {
			sum += v * v
		}

		energy[t] = math.Sqrt(sum / float64(frame))
	}

	return energy
}
