package features

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Slaney mel scale: linear below 1 kHz, logarithmic above.
const (
	melFSP        = 200.0 / 3
	melMinLogHz   = 1000.0
	melMinLogMel  = melMinLogHz / melFSP
	melLogStepDiv = 27.0
)

//nolint:gochecknoglobals // derived constant
var melLogStep = math.Log(6.4) / melLogStepDiv

func hzToMel(hz float64) float64 {
	if hz < melMinLogHz {
		return hz / melFSP
	}

	return melMinLogMel + math.Log(hz/melMinLogHz)/melLogStep
}

func melToHz(mel float64) float64 {
	if mel < melMinLogMel {
		return mel * melFSP
	}

	return melMinLogHz * math.Exp(melLogStep*(mel-melMinLogMel))
}

// melFrequencies returns n frequencies evenly spaced on the mel scale between fmin and fmax.
func melFrequencies(n int, fmin, fmax float64) []float64 {
	lo, hi := hzToMel(fmin), hzToMel(fmax)
	out := make([]float64, n)

	for i := range out {
		out[i] = melToHz(lo + (hi-lo)*float64(i)/float64(n-1))
	}

	return out
}

// melFilterBank builds area normalized triangular filters with shape nMels x (n_fft/2+1).
func melFilterBank(sampleRate, fftSize, nMels int) *mat.Dense {
	fftFreqs := fftFrequencies(sampleRate, fftSize)
	melF := melFrequencies(nMels+2, 0, float64(sampleRate)/2)
	bank := mat.NewDense(nMels, len(fftFreqs), nil)

	for m := range nMels {
		lowerWidth := melF[m+1] - melF[m]
		upperWidth := melF[m+2] - melF[m+1]
		enorm := 2.0 / (melF[m+2] - melF[m])

		for k, f := range fftFreqs {
			lower := (f - melF[m]) / lowerWidth
			upper := (melF[m+2] - f) / upperWidth

			if w := math.Max(0, math.Min(lower, upper)); w > 0 {
				bank.Set(m, k, w*enorm)
			}
		}
	}

	return bank
}

// dctBasis returns the first n rows of the orthonormal DCT-II matrix of size size.
func dctBasis(n, size int) *mat.Dense {
	basis := mat.NewDense(n, size, nil)

	for k := range n {
		scale := math.Sqrt(2 / float64(size))
		if k == 0 {
			scale = math.Sqrt(1 / float64(size))
		}

		for i := range size {
			basis.Set(k, i, scale*math.Cos(math.Pi*float64(k)*(2*float64(i)+1)/(2*float64(size))))
		}
	}

	return basis
}

// logMel projects a power spectrogram onto the mel filter bank and converts it to decibels.
func (e *Extractor) logMel(powerSpec *mat.Dense) *mat.Dense {
	var melSpec mat.Dense

	melSpec.Mul(e.melBank, powerSpec)

	return toDB(&melSpec)
}

// mfcc computes cepstral coefficients from a decibel mel spectrogram.
func (e *Extractor) mfcc(logMel *mat.Dense) *mat.Dense {
	var coeffs mat.Dense

	coeffs.Mul(e.dct, logMel)

	return &coeffs
}
