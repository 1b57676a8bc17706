package normalize_test

import (
	"math"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/farcloser/tocsin/internal/normalize"
	"github.com/farcloser/tocsin/internal/resample"
	"github.com/farcloser/tocsin/internal/types"
)

const (
	rate   = 22050
	length = 66150
	fade   = 220
)

func tone(freq float64, sampleRate int, seconds, amplitude float64) []float64 {
	out := make([]float64, int(float64(sampleRate)*seconds))
	for i := range out {
		out[i] = amplitude * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate))
	}

	return out
}

func mono(samples []float64, sampleRate int) *types.Waveform {
	return &types.Waveform{Channels: [][]float64{samples}, SampleRate: sampleRate}
}

func assertCanonical(t *testing.T, canonical *types.Canonical) {
	t.Helper()

	require.Len(t, canonical.Samples, length)
	assert.Equal(t, rate, canonical.SampleRate)

	for i, v := range canonical.Samples {
		if math.IsNaN(v) || math.IsInf(v, 0) || math.Abs(v) > 1 {
			t.Fatalf("sample %d out of range: %v", i, v)
		}
	}
}

func TestLength(t *testing.T) {
	t.Parallel()

	n := normalize.New(normalize.DefaultOptions())
	assert.Equal(t, length, n.Length())
	assert.Equal(t, rate, n.SampleRate())
}

func TestEmpty(t *testing.T) {
	t.Parallel()

	n := normalize.New(normalize.Options{})

	for _, wave := range []*types.Waveform{
		nil,
		{SampleRate: rate},
		{Channels: [][]float64{{}}, SampleRate: rate},
	} {
		_, err := n.Normalize(wave)
		require.ErrorIs(t, err, normalize.ErrEmptyAudio)
	}
}

func TestPostconditions(t *testing.T) {
	t.Parallel()

	n := normalize.New(normalize.DefaultOptions())

	loud := tone(300, 16000, 2, 4)
	nan := tone(300, rate, 1, 0.5)
	nan[10], nan[20], nan[30] = math.NaN(), math.Inf(1), math.Inf(-1)

	for name, wave := range map[string]*types.Waveform{
		"stereo 44.1k":  {Channels: [][]float64{tone(440, 44100, 1, 0.9), tone(660, 44100, 1, 0.9)}, SampleRate: 44100},
		"long 48k":      mono(tone(440, 48000, 7, 1), 48000),
		"loud 16k":      mono(loud, 16000),
		"non finite":    mono(nan, rate),
		"single sample": mono([]float64{0.5}, rate),
		"full scale 8k": mono(tone(3900, 8000, 0.2, 1), 8000),
	} {
		canonical, err := n.Normalize(wave)
		require.NoError(t, err, name)
		assertCanonical(t, canonical)
	}
}

func TestDoesNotModifyInput(t *testing.T) {
	t.Parallel()

	samples := []float64{2, math.NaN(), -4}
	_, err := normalize.New(normalize.Options{}).Normalize(mono(samples, rate))
	require.NoError(t, err)

	assert.InDelta(t, 2.0, samples[0], 0)
	assert.True(t, math.IsNaN(samples[1]))
}

func TestSineRoundTrip(t *testing.T) {
	t.Parallel()

	source := tone(440, rate, 3, 0.5)

	canonical, err := normalize.New(normalize.DefaultOptions()).Normalize(mono(source, rate))
	require.NoError(t, err)
	assertCanonical(t, canonical)
	assert.False(t, canonical.Short)

	for i := fade; i < length-fade; i++ {
		if canonical.Samples[i] != source[i] {
			t.Fatalf("interior sample %d changed: %v != %v", i, canonical.Samples[i], source[i])
		}
	}

	assert.InDelta(t, 0.0, canonical.Samples[0], 0)
	assert.InDelta(t, 0.0, canonical.Samples[length-1], 0)
	assert.InDelta(t, source[fade-1], canonical.Samples[fade-1], 0)
	assert.InDelta(t, source[fade/2]*float64(fade/2)/float64(fade-1), canonical.Samples[fade/2], 1e-12)
}

func TestIdempotent(t *testing.T) {
	t.Parallel()

	n := normalize.New(normalize.DefaultOptions())

	first, err := n.Normalize(&types.Waveform{
		Channels:   [][]float64{tone(440, 44100, 2.2, 0.8), tone(220, 44100, 2.2, 0.8)},
		SampleRate: 44100,
	})
	require.NoError(t, err)

	second, err := n.Normalize(first.Waveform())
	require.NoError(t, err)
	assert.Equal(t, first.Samples, second.Samples)
}

func TestSilencePadsWithZeros(t *testing.T) {
	t.Parallel()

	canonical, err := normalize.New(normalize.DefaultOptions()).Normalize(mono(make([]float64, rate), rate))
	require.NoError(t, err)

	for _, v := range canonical.Samples {
		require.InDelta(t, 0.0, v, 0)
	}
}

func TestShortSourceZeroPads(t *testing.T) {
	t.Parallel()

	// One second cannot mirror two seconds of padding.
	source := tone(440, rate, 1, 0.5)

	canonical, err := normalize.New(normalize.DefaultOptions()).Normalize(mono(source, rate))
	require.NoError(t, err)
	assert.False(t, canonical.Short)
	assert.InDelta(t, 1.0, canonical.SourceDuration, 1e-9)

	for i := fade; i < rate; i++ {
		require.InDelta(t, source[i], canonical.Samples[i], 0)
	}

	for i := rate; i < length; i++ {
		require.InDelta(t, 0.0, canonical.Samples[i], 0)
	}
}

func TestReflectPadding(t *testing.T) {
	t.Parallel()

	source := tone(440, rate, 2, 0.5)
	size := len(source)

	canonical, err := normalize.New(normalize.DefaultOptions()).Normalize(mono(source, rate))
	require.NoError(t, err)

	for k := range length - size - fade {
		require.InDelta(t, source[size-2-k], canonical.Samples[size+k], 0, "padding sample %d", k)
	}
}

func TestTruncatesToPrefix(t *testing.T) {
	t.Parallel()

	source := tone(440, rate, 5, 0.5)

	canonical, err := normalize.New(normalize.DefaultOptions()).Normalize(mono(source, rate))
	require.NoError(t, err)
	assertCanonical(t, canonical)

	for i := fade; i < length-fade; i++ {
		require.InDelta(t, source[i], canonical.Samples[i], 0)
	}
}

func TestShortFlag(t *testing.T) {
	t.Parallel()

	canonical, err := normalize.New(normalize.DefaultOptions()).Normalize(mono(tone(440, rate, 0.3, 0.5), rate))
	require.NoError(t, err)
	assert.True(t, canonical.Short)
	assertCanonical(t, canonical)
}

func TestClampAndMixDown(t *testing.T) {
	t.Parallel()

	left := make([]float64, length)
	right := make([]float64, length)

	for i := range left {
		left[i] = 2
		right[i] = -1
	}

	canonical, err := normalize.New(normalize.DefaultOptions()).Normalize(&types.Waveform{
		Channels:   [][]float64{left, right},
		SampleRate: rate,
	})
	require.NoError(t, err)

	// Peak 2 scales to 1 and -0.5, averaged to 0.25.
	assert.InDelta(t, 0.25, canonical.Samples[length/2], 1e-12)
}

func TestSanitize(t *testing.T) {
	t.Parallel()

	source := make([]float64, length)
	for i := range source {
		source[i] = math.NaN()
	}

	canonical, err := normalize.New(normalize.DefaultOptions()).Normalize(mono(source, rate))
	require.NoError(t, err)

	for _, v := range canonical.Samples {
		require.InDelta(t, 0.0, v, 0)
	}
}

func TestRejectsUnusableRates(t *testing.T) {
	t.Parallel()

	n := normalize.New(normalize.DefaultOptions())

	for _, sampleRate := range []int{0, -1, 100, 3999, 400000} {
		_, err := n.Normalize(mono(tone(10, 1000, 1, 0.5), sampleRate))
		require.ErrorIs(t, err, normalize.ErrInvalidRate, "rate %d", sampleRate)
		require.ErrorIs(t, err, resample.ErrRateOutOfRange, "rate %d", sampleRate)
	}
}

// Not parallel: it measures allocations.
func TestLongLowRateSourceIsCutBeforeResampling(t *testing.T) {
	n := normalize.New(normalize.DefaultOptions())
	wave := mono(tone(300, 4000, 20*60, 0.5), 4000)

	var before, after runtime.MemStats

	runtime.GC()
	runtime.ReadMemStats(&before)

	canonical, err := n.Normalize(wave)

	runtime.ReadMemStats(&after)

	require.NoError(t, err)
	assertCanonical(t, canonical)
	assert.InDelta(t, 20*60, canonical.SourceDuration, 1e-9)
	assert.Less(t, after.TotalAlloc-before.TotalAlloc, uint64(32<<20))
}

func TestPeakSpansWholeSource(t *testing.T) {
	t.Parallel()

	samples := tone(440, rate, 5, 0.5)
	samples[4*rate] = 2

	canonical, err := normalize.New(normalize.DefaultOptions()).Normalize(mono(samples, rate))
	require.NoError(t, err)

	var peak float64
	for _, v := range canonical.Samples {
		peak = math.Max(peak, math.Abs(v))
	}

	assert.InDelta(t, 0.25, peak, 1e-3)
}

func TestResampledSourceReflectsRealSignal(t *testing.T) {
	t.Parallel()

	src := make([]float64, 2*16000)
	for i := range src {
		src[i] = 0.5 * math.Cos(2*math.Pi*100*float64(i)/16000)
	}

	canonical, err := normalize.New(normalize.DefaultOptions()).Normalize(mono(src, 16000))
	require.NoError(t, err)
	assertCanonical(t, canonical)

	end := 2 * rate
	for i := end - 50; i < end+50; i++ {
		assert.Greater(t, math.Abs(canonical.Samples[i]), 0.1, "sample %d", i)
	}
}
