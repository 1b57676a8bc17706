package features

import (
	"gonum.org/v1/gonum/mat"
)

const (
	pitchFMin      = 150.0
	pitchFMax      = 4000.0
	pitchThreshold = 0.1
)

// meanPitch tracks parabolic interpolated spectral peaks between pitchFMin and pitchFMax that exceed
// pitchThreshold of their frame maximum, and returns the mean of every detected pitch, or 0.
func meanPitch(spec *mat.Dense, sampleRate, fftSize int) float64 {
	bins, frames := spec.Dims()
	freqs := fftFrequencies(sampleRate, fftSize)

	var (
		sum   float64
		count int
	)

	column := make([]float64, bins)

	for t := range frames {
		mat.Col(column, t, spec)

		var peak float64
		for _, v := range column {
			peak = max(peak, v)
		}

		threshold := pitchThreshold * peak

		for k := 1; k < bins-1; k++ {
			if freqs[k] < pitchFMin || freqs[k] >= pitchFMax {
				continue
			}

			v := column[k]
			if v <= threshold || v <= column[k-1] || v < column[k+1] {
				continue
			}

			curvature := 2*v - column[k-1] - column[k+1]
			shift := 0.0

			if curvature != 0 {
				shift = 0.5 * (column[k+1] - column[k-1]) / curvature
			}

			if pitch := (float64(k) + shift) * float64(sampleRate) / float64(fftSize); pitch > 0 {
				sum += pitch
				count++
			}
		}
	}

	if count == 0 {
		return 0
	}

	return sum / float64(count)
}
