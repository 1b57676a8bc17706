package features

import "fmt"

// Group sizes, in vector order after the 2*n_mfcc MFCC statistics.
const (
	spectralValues = 6 // centroid, rolloff, bandwidth: mean and std each
	zcrValues      = 2
	chromaValues   = 2
	tempoValues    = 1
	rmsValues      = 2
	pitchValues    = 1
	contrastValues = 2
	tonnetzValues  = 2
)

// Count returns the feature vector length for the given number of MFCC coefficients.
func Count(nMFCC int) int {
	return 2*nMFCC + spectralValues + zcrValues + chromaValues + tempoValues +
		rmsValues + pitchValues + contrastValues + tonnetzValues
}

// Layout pins every parameter that shapes a feature vector. Vectors computed under different layouts are not
// comparable, so the layout is stamped into persisted model artifacts.
type Layout struct {
	SampleRate int     `json:"sample_rate"    msgpack:"sample_rate"`
	Duration   float64 `json:"duration"       msgpack:"duration"`
	NMFCC      int     `json:"n_mfcc"         msgpack:"n_mfcc"`
	FFTSize    int     `json:"n_fft"          msgpack:"n_fft"`
	HopSize    int     `json:"hop_length"     msgpack:"hop_length"`
	NMels      int     `json:"n_mels"         msgpack:"n_mels"`
	Features   int     `json:"feature_count"  msgpack:"feature_count"`
}

// DefaultLayout returns the layout used for training and serving.
func DefaultLayout() Layout {
	return NewLayout(22050, 3.0, 13)
}

// NewLayout returns a layout with the fixed analysis parameters and the derived feature count.
func NewLayout(sampleRate int, duration float64, nMFCC int) Layout {
	return Layout{
		SampleRate: sampleRate,
		Duration:   duration,
		NMFCC:      nMFCC,
		FFTSize:    2048,
		HopSize:    512,
		NMels:      128,
		Features:   Count(nMFCC),
	}
}

// Samples is the canonical waveform length for this layout.
func (l Layout) Samples() int {
	return int(float64(l.SampleRate) * l.Duration)
}

// Names labels each position of a feature vector for this layout.
func (l Layout) Names() []string {
	names := make([]string, 0, Count(l.NMFCC))

	for _, stat := range []string{"mean", "std"} {
		for i := range l.NMFCC {
			names = append(names, fmt.Sprintf("mfcc_%d_%s", i, stat))
		}
	}

	for _, name := range []string{"spectral_centroid", "spectral_rolloff", "spectral_bandwidth", "zcr", "chroma"} {
		names = append(names, name+"_mean", name+"_std")
	}

	names = append(names, "tempo", "rms_mean", "rms_std", "pitch_mean")
	names = append(names, "spectral_contrast_mean", "spectral_contrast_std", "tonnetz_mean", "tonnetz_std")

	return names
}
