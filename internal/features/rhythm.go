package features

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/mat"
)

var errFlatOnset = errors.New("flat onset envelope, no tempo")

const (
	tempoStartBPM = 120.0
	tempoStdBPM   = 1.0 // octaves
	tempoMaxBPM   = 320.0
)

// onsetStrength is the mean positive first difference of a decibel mel spectrogram, delayed so that each value
// lines up with the center of its frame.
func onsetStrength(logMel *mat.Dense, fftSize, hop int) []float64 {
	bands, frames := logMel.Dims()
	envelope := make([]float64, frames)
	delay := 1 + fftSize/(2*hop)

	for t := 1; t < frames; t++ {
		var sum float64

		for m := range bands {
			sum += math.Max(0, logMel.At(m, t)-logMel.At(m, t-1))
		}

		if t-1+delay < frames {
			envelope[t-1+delay] = sum / float64(bands)
		}
	}

	return envelope
}

// estimateTempo picks the autocorrelation lag of the onset envelope that best matches a periodic pulse, weighted
// by a log-normal prior around tempoStartBPM. A flat envelope has no pulse to estimate.
func estimateTempo(envelope []float64, sampleRate, hop int) (float64, error) {
	n := len(envelope)

	mean, _ := meanStd(envelope)

	centered := make([]float64, n)

	var energy float64
	for i, v := range envelope {
		centered[i] = v - mean
		energy += centered[i] * centered[i]
	}

	if energy <= 0 {
		return 0, errFlatOnset
	}

	framesPerMinute := 60 * float64(sampleRate) / float64(hop)
	bestScore := math.Inf(-1)
	bestBPM := 0.0

	for lag := 1; lag < n; lag++ {
		bpm := framesPerMinute / float64(lag)
		if bpm > tempoMaxBPM {
			continue
		}

		var ac float64
		for i := lag; i < n; i++ {
			ac += centered[i] * centered[i-lag]
		}

		ac = math.Max(0, ac/energy)
		prior := -0.5 * math.Pow((math.Log2(bpm)-math.Log2(tempoStartBPM))/tempoStdBPM, 2)

		if score := math.Log1p(1e6*ac) + prior; score > bestScore {
			bestScore = score
			bestBPM = bpm
		}
	}

	return bestBPM, nil
}
