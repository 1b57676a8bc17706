package features

import (
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/mat"
)

// makeHannWindow returns a periodic Hann window, the DFT-even variant used for spectral analysis.
func makeHannWindow(size int) []float64 {
	window := make([]float64, size)
	for i := range window {
		window[i] = 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(size)))
	}

	return window
}

// frameCount is the number of centered frames over n samples.
func frameCount(n, hop int) int {
	return 1 + n/hop
}

// centerPad zero pads half a frame on both ends so frame t is centered on sample t*hop.
func centerPad(samples []float64, frame int) []float64 {
	half := frame / 2
	padded := make([]float64, len(samples)+2*half)
	copy(padded[half:], samples)

	return padded
}

// magnitudeSpectrogram returns |STFT| with shape (n_fft/2+1) x frames.
func magnitudeSpectrogram(samples []float64, fftSize, hop int, window []float64) *mat.Dense {
	padded := centerPad(samples, fftSize)
	frames := frameCount(len(samples), hop)
	bins := fftSize/2 + 1

	spec := mat.NewDense(bins, frames, nil)
	fft := fourier.NewFFT(fftSize)
	fftIn := make([]float64, fftSize)
	coeffs := make([]complex128, bins)

	for t := range frames {
		start := t * hop
		for i := range fftSize {
			fftIn[i] = padded[start+i] * window[i]
		}

		coeffs = fft.Coefficients(coeffs, fftIn)

		for k, c := range coeffs {
			spec.Set(k, t, cmplx.Abs(c))
		}
	}

	return spec
}

// power squares every element.
func power(m *mat.Dense) *mat.Dense {
	var out mat.Dense

	out.MulElem(m, m)

	return &out
}

// fftFrequencies returns the center frequency of each rfft bin.
func fftFrequencies(sampleRate, fftSize int) []float64 {
	freqs := make([]float64, fftSize/2+1)
	for i := range freqs {
		freqs[i] = float64(i) * float64(sampleRate) / float64(fftSize)
	}

	return freqs
}

// powerToDB converts power to decibels against a unit reference, flooring at amin and clipping to topDB below the
// maximum.
func powerToDB(values []float64, topDB float64) {
	const amin = 1e-10

	peak := math.Inf(-1)

	for i, v := range values {
		values[i] = 10 * math.Log10(math.Max(amin, v))
		peak = math.Max(peak, values[i])
	}

	if topDB <= 0 {
		return
	}

	for i, v := range values {
		values[i] = math.Max(v, peak-topDB)
	}
}
