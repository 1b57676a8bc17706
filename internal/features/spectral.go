package features

import (
	"math"
	"slices"

	"gonum.org/v1/gonum/mat"
)

const (
	rolloffPercent   = 0.85
	contrastBands    = 6
	contrastFMin     = 200.0
	contrastQuantile = 0.02
)

// spectralShape returns per frame centroid, rolloff and bandwidth of a magnitude spectrogram.
func spectralShape(spec *mat.Dense, freqs []float64) ([]float64, []float64, []float64) {
	bins, frames := spec.Dims()
	centroid := make([]float64, frames)
	rolloff := make([]float64, frames)
	bandwidth := make([]float64, frames)
	column := make([]float64, bins)

	for t := range frames {
		mat.Col(column, t, spec)

		var total float64
		for _, v := range column {
			total += v
		}

		if total <= 0 {
			continue
		}

		var weighted float64
		for k, v := range column {
			weighted += freqs[k] * v
		}

		centroid[t] = weighted / total

		var spread float64
		for k, v := range column {
			d := freqs[k] - centroid[t]
			spread += v / total * d * d
		}

		bandwidth[t] = math.Sqrt(spread)

		threshold := rolloffPercent * total

		var cumulative float64
		for k, v := range column {
			cumulative += v
			if cumulative >= threshold {
				rolloff[t] = freqs[k]

				break
			}
		}
	}

	return centroid, rolloff, bandwidth
}

// spectralContrast returns the peak to valley difference in dB for contrastBands octave bands above contrastFMin
// plus the band below it, shape (contrastBands+1) x frames.
func spectralContrast(spec *mat.Dense, freqs []float64) *mat.Dense {
	bins, frames := spec.Dims()
	nyquistBand := contrastBands

	edges := make([]float64, contrastBands+2)
	for k := 1; k < len(edges); k++ {
		edges[k] = contrastFMin * math.Pow(2, float64(k-1))
	}

	peaks := mat.NewDense(contrastBands+1, frames, nil)
	valleys := mat.NewDense(contrastBands+1, frames, nil)
	band := make([]float64, 0, bins)

	for k := range contrastBands + 1 {
		lo, hi := -1, -1

		for i, f := range freqs {
			if f >= edges[k] && f <= edges[k+1] {
				if lo < 0 {
					lo = i
				}

				hi = i
			}
		}

		if lo < 0 {
			continue
		}

		if k > 0 && lo > 0 {
			lo--
		}

		if k == nyquistBand {
			hi = bins - 1
		} else if hi > lo {
			hi--
		}

		for t := range frames {
			band = band[:0]
			for i := lo; i <= hi; i++ {
				band = append(band, spec.At(i, t))
			}

			slices.Sort(band)

			quantile := max(1, int(math.Round(contrastQuantile*float64(len(band)))))

			var valley, peak float64
			for i := range quantile {
				valley += band[i]
				peak += band[len(band)-1-i]
			}

			valleys.Set(k, t, valley/float64(quantile))
			peaks.Set(k, t, peak/float64(quantile))
		}
	}

	peakDB := toDB(peaks)
	valleyDB := toDB(valleys)

	var contrast mat.Dense

	contrast.Sub(peakDB, valleyDB)

	return &contrast
}

func toDB(m *mat.Dense) *mat.Dense {
	rows, cols := m.Dims()
	values := make([]float64, 0, rows*cols)

	for i := range rows {
		values = append(values, m.RawRowView(i)...)
	}

	powerToDB(values, topDB)

	return mat.NewDense(rows, cols, values)
}
