// Package features computes the fixed length acoustic descriptor of a canonical waveform.
//
// The vector is, in order: MFCC means and standard deviations, spectral centroid, rolloff and bandwidth (mean,
// std each), zero crossing rate, chroma, tempo, RMS energy, mean pitch, spectral contrast and tonnetz.
package features

import (
	"errors"
	"fmt"
	"log/slog"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/farcloser/tocsin/internal/types"
)

const topDB = 80.0

var (
	errLength    = errors.New("waveform length does not match the layout")
	errNonFinite = errors.New("non-finite feature value")
)

// Option configures an Extractor.
type Option func(*Extractor)

// WithDegradedHook registers a function called whenever extraction falls back to the zero vector.
func WithDegradedHook(hook func(error)) Option {
	return func(e *Extractor) {
		e.onDegraded = hook
	}
}

// Extractor holds the precomputed analysis bases for one layout. It is safe for concurrent use.
type Extractor struct {
	layout      Layout
	window      []float64
	freqs       []float64
	melBank     *mat.Dense
	dct         *mat.Dense
	chromaBank  *mat.Dense
	tonnetzBank *mat.Dense
	onDegraded  func(error)
}

// New returns an Extractor for the given layout.
func New(layout Layout, opts ...Option) *Extractor {
	if layout.Features == 0 {
		layout.Features = Count(layout.NMFCC)
	}

	e := &Extractor{
		layout:      layout,
		window:      makeHannWindow(layout.FFTSize),
		freqs:       fftFrequencies(layout.SampleRate, layout.FFTSize),
		melBank:     melFilterBank(layout.SampleRate, layout.FFTSize, layout.NMels),
		dct:         dctBasis(layout.NMFCC, layout.NMels),
		chromaBank:  chromaFilterBank(layout.SampleRate, layout.FFTSize),
		tonnetzBank: tonnetzBasis(),
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Layout returns the layout the extractor computes.
func (e *Extractor) Layout() Layout {
	return e.layout
}

// Count returns the feature vector length.
func (e *Extractor) Count() int {
	return e.layout.Features
}

// Extract always returns a vector of Count() values. Any internal failure yields the zero vector and a warning.
func (e *Extractor) Extract(canonical *types.Canonical) types.FeatureVector {
	vector, err := e.Compute(canonical)
	if err != nil {
		slog.Warn("features: extraction degraded to zero vector", "error", err)

		if e.onDegraded != nil {
			e.onDegraded(err)
		}

		return make(types.FeatureVector, e.layout.Features)
	}

	return vector
}

// Compute returns the feature vector or the reason it could not be computed.
func (e *Extractor) Compute(canonical *types.Canonical) (vector types.FeatureVector, err error) {
	defer func() {
		if r := recover(); r != nil {
			vector, err = nil, fmt.Errorf("feature extraction panic: %v", r)
		}
	}()

	if canonical == nil || len(canonical.Samples) != e.layout.Samples() {
		return nil, errLength
	}

	samples := canonical.Samples
	rate := e.layout.SampleRate
	fftSize := e.layout.FFTSize
	hop := e.layout.HopSize

	magnitude := magnitudeSpectrogram(samples, fftSize, hop, e.window)
	powerSpec := power(magnitude)
	logMel := e.logMel(powerSpec)

	vector = make(types.FeatureVector, 0, e.layout.Features)

	// 1. MFCC
	means, stds := rowStats(e.mfcc(logMel))
	vector = append(vector, means...)
	vector = append(vector, stds...)

	// 2. Spectral shape
	centroid, rolloff, bandwidth := spectralShape(magnitude, e.freqs)
	vector = appendMeanStd(vector, centroid)
	vector = appendMeanStd(vector, rolloff)
	vector = appendMeanStd(vector, bandwidth)

	// 3. Zero crossing rate
	vector = appendMeanStd(vector, zeroCrossingRate(samples, fftSize, hop))

	// 4. Chroma
	chroma := e.chroma(powerSpec)
	vector = appendPooled(vector, chroma)

	// 5. Tempo
	tempo, err := estimateTempo(onsetStrength(logMel, fftSize, hop), rate, hop)
	if err != nil {
		return nil, err
	}

	vector = append(vector, tempo)

	// 6. RMS energy
	vector = appendMeanStd(vector, rmsEnergy(samples, fftSize, hop))

	// 7. Pitch
	vector = append(vector, meanPitch(magnitude, rate, fftSize))

	// 8. Spectral contrast
	vector = appendPooled(vector, spectralContrast(magnitude, e.freqs))

	// 9. Tonnetz
	vector = appendPooled(vector, e.tonnetz(chroma))

	if len(vector) != e.layout.Features {
		return nil, fmt.Errorf("feature count %d, expected %d", len(vector), e.layout.Features)
	}

	for i, v := range vector {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%w at index %d", errNonFinite, i)
		}
	}

	return vector, nil
}

func appendMeanStd(vector []float64, values []float64) []float64 {
	mean, std := meanStd(values)

	return append(vector, mean, std)
}

func appendPooled(vector []float64, m *mat.Dense) []float64 {
	mean, std := pooled(m)

	return append(vector, mean, std)
}
