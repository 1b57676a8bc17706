package types

// BitDepth of the source PCM, before any decoding to float.
type BitDepth uint

const (
	Depth8  BitDepth = 8
	Depth16 BitDepth = 16
	Depth24 BitDepth = 24
	Depth32 BitDepth = 32
	Depth64 BitDepth = 64
)

// Backend names identify which decoder strategy produced a waveform.
const (
	BackendWAV       = "wav-direct"
	BackendTranscode = "transcode"
	BackendNative    = "native-direct"
	BackendPCM       = "pcm-fallback"
	BackendArray     = "array"
	BackendCanonical = "canonical"
)

// PCMFormat describes interleaved integer or float PCM bytes.
type PCMFormat struct {
	SampleRate int
	BitDepth   BitDepth
	Channels   uint
	Float      bool
}

// Blob is an encoded audio payload as received from a caller.
// MIMEType may be empty or wrong. SampleRate is only meaningful for headerless PCM.
type Blob struct {
	Data       []byte
	MIMEType   string
	SampleRate int
}

// Waveform is decoded PCM in planar layout, one slice per channel, all channels the same length.
type Waveform struct {
	Channels   [][]float64
	SampleRate int
	BitDepth   BitDepth // provenance only
	Backend    string
}

// Frames returns the number of samples per channel.
func (w *Waveform) Frames() int {
	if w == nil || len(w.Channels) == 0 {
		return 0
	}

	return len(w.Channels[0])
}

// Duration returns the length in seconds.
func (w *Waveform) Duration() float64 {
	if w == nil || w.SampleRate <= 0 {
		return 0
	}

	return float64(w.Frames()) / float64(w.SampleRate)
}

// Canonical is a mono, fixed-rate, fixed-length waveform bounded to [-1, 1].
// It is only produced by the normalizer.
type Canonical struct {
	Samples    []float64
	SampleRate int
	// Short is set when the source was shorter than the short-clip threshold.
	Short bool
	// SourceDuration is the duration in seconds of the waveform before length policy.
	SourceDuration float64
}

// Waveform wraps the canonical samples back into a Waveform tagged as canonical.
// The normalizer returns such a waveform unchanged.
func (c *Canonical) Waveform() *Waveform {
	return &Waveform{
		Channels:   [][]float64{c.Samples},
		SampleRate: c.SampleRate,
		Backend:    BackendCanonical,
	}
}

// FeatureVector is the fixed-length descriptor fed to the classifier.
type FeatureVector []float64

// Prediction is the classifier verdict for one clip.
type Prediction struct {
	IsEmergency       bool    `json:"is_emergency"`
	Confidence        float64 `json:"confidence"`
	ClassLabel        string  `json:"class_label"`
	FeaturesExtracted int     `json:"features_extracted"`
}
