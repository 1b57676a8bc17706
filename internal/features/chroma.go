package features

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

const (
	chromaBins   = 12
	chromaCenter = 5.0 // octave weighting center, around 523 Hz
	chromaWidth  = 2.0 // octave weighting spread
	tonnetzDims  = 6
)

// hzToOctaves maps a frequency to fractional octaves above A0 / 2 (A440 / 16).
func hzToOctaves(hz float64) float64 {
	return math.Log2(hz / (440.0 / 16))
}

// chromaFilterBank maps (n_fft/2+1) power bins onto 12 pitch classes starting at C, with gaussian bumps per bin,
// unit L2 columns and a gaussian octave weighting.
func chromaFilterBank(sampleRate, fftSize int) *mat.Dense {
	// Bin positions in chroma units over the full (two sided) spectrum, bin 0 placed 1.5 octaves below bin 1.
	bins := make([]float64, fftSize)
	for i := 1; i < fftSize; i++ {
		bins[i] = chromaBins * hzToOctaves(float64(i)*float64(sampleRate)/float64(fftSize))
	}

	bins[0] = bins[1] - 1.5*chromaBins

	widths := make([]float64, fftSize)
	for i := range fftSize - 1 {
		widths[i] = math.Max(bins[i+1]-bins[i], 1)
	}

	widths[fftSize-1] = 1

	half := math.Round(chromaBins / 2.0)
	columns := fftSize/2 + 1
	weights := mat.NewDense(chromaBins, fftSize, nil)

	for i := range fftSize {
		var norm float64

		for c := range chromaBins {
			d := math.Mod(bins[i]-float64(c)+half+10*chromaBins, chromaBins) - half
			w := math.Exp(-0.5 * math.Pow(2*d/widths[i], 2))
			weights.Set(c, i, w)
			norm += w * w
		}

		norm = math.Sqrt(norm)
		octave := math.Exp(-0.5 * math.Pow((bins[i]/chromaBins-chromaCenter)/chromaWidth, 2))

		for c := range chromaBins {
			weights.Set(c, i, weights.At(c, i)/norm*octave)
		}
	}

	// Roll so the first row is C rather than A, and keep the one sided bins.
	bank := mat.NewDense(chromaBins, columns, nil)
	for c := range chromaBins {
		src := (c + 3) % chromaBins
		for i := range columns {
			bank.Set(c, i, weights.At(src, i))
		}
	}

	return bank
}

// chroma projects a power spectrogram onto pitch classes and scales each frame to a unit maximum.
func (e *Extractor) chroma(powerSpec *mat.Dense) *mat.Dense {
	var out mat.Dense

	out.Mul(e.chromaBank, powerSpec)

	_, frames := out.Dims()
	column := make([]float64, chromaBins)

	for t := range frames {
		mat.Col(column, t, &out)

		var peak float64
		for _, v := range column {
			peak = math.Max(peak, math.Abs(v))
		}

		if peak <= math.SmallestNonzeroFloat64 {
			continue
		}

		for c, v := range column {
			out.Set(c, t, v/peak)
		}
	}

	return &out
}

// tonnetzBasis projects pitch classes onto fifths, minor thirds and major thirds circles, shape 6 x 12.
func tonnetzBasis() *mat.Dense {
	scale := [tonnetzDims]float64{7.0 / 6, 7.0 / 6, 3.0 / 2, 3.0 / 2, 2.0 / 3, 2.0 / 3}
	radius := [tonnetzDims]float64{1, 1, 1, 1, 0.5, 0.5}
	basis := mat.NewDense(tonnetzDims, chromaBins, nil)

	for d := range tonnetzDims {
		for c := range chromaBins {
			angle := scale[d] * float64(c)
			if d%2 == 0 {
				angle -= 0.5
			}

			basis.Set(d, c, radius[d]*math.Cos(math.Pi*angle))
		}
	}

	return basis
}

// tonnetz returns the tonal centroid of L1 normalized chroma frames.
func (e *Extractor) tonnetz(chroma *mat.Dense) *mat.Dense {
	_, frames := chroma.Dims()
	normalized := mat.NewDense(chromaBins, frames, nil)
	column := make([]float64, chromaBins)

	for t := range frames {
		mat.Col(column, t, chroma)

		var sum float64
		for _, v := range column {
			sum += math.Abs(v)
		}

		if sum <= math.SmallestNonzeroFloat64 {
			continue
		}

		for c, v := range column {
			normalized.Set(c, t, v/sum)
		}
	}

	var out mat.Dense

	out.Mul(e.tonnetzBank, normalized)

	return &out
}
