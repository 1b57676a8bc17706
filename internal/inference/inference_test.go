package inference_test

import (
	"context"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/farcloser/tocsin/internal/classifier"
	"github.com/farcloser/tocsin/internal/decode"
	"github.com/farcloser/tocsin/internal/features"
	"github.com/farcloser/tocsin/internal/inference"
	"github.com/farcloser/tocsin/internal/normalize"
	"github.com/farcloser/tocsin/internal/wavfile"
)

func sine(freq float64, rate int, seconds float64) []float64 {
	out := make([]float64, int(float64(rate)*seconds))
	for i := range out {
		out[i] = 0.5 * math.Sin(2*math.Pi*freq*float64(i)/float64(rate))
	}

	return out
}

// quickModel trains a throwaway classifier on random vectors of the default width.
func quickModel(t *testing.T) *classifier.Classifier {
	t.Helper()

	layout := features.DefaultLayout()
	rng := rand.New(rand.NewPCG(1, 2))

	var (
		samples [][]float64
		classes []string
	)

	for i := range 20 {
		sample := make([]float64, layout.Features)
		for j := range sample {
			sample[j] = rng.NormFloat64()
		}

		samples = append(samples, sample)
		classes = append(classes, []string{classifier.LabelNormal, classifier.LabelEmergency}[i%2])
	}

	model, _, err := classifier.Train(context.Background(), samples, classes, classifier.TrainOptions{
		Layout: layout,
		Hidden: []int{8},
		Epochs: 2,
	})
	require.NoError(t, err)

	return model
}

func newService(t *testing.T, loaded bool, opts inference.Options) *inference.Service {
	t.Helper()

	handle := classifier.NewHandle(nil, features.DefaultLayout())
	if loaded {
		require.NoError(t, handle.Set(quickModel(t)))
	}

	return inference.New(handle, opts)
}

func wavBytes(t *testing.T, channels ...[]float64) []byte {
	t.Helper()

	data, err := wavfile.Bytes(channels, 16000, 16)
	require.NoError(t, err)

	return data
}

func TestModelNotLoaded(t *testing.T) {
	t.Parallel()

	service := newService(t, false, inference.Options{})

	result, err := service.Infer(context.Background(), inference.BlobInput{
		Data:     wavBytes(t, sine(440, 16000, 1)),
		MIMEType: "audio/wav",
	})
	require.ErrorIs(t, err, classifier.ErrModelNotLoaded)
	assert.False(t, result.ProcessingSuccessful)
	assert.False(t, result.IsEmergency)
	assert.Zero(t, result.Confidence)
	assert.NotEmpty(t, result.Error)
}

func TestInferWAVBlob(t *testing.T) {
	t.Parallel()

	service := newService(t, true, inference.Options{Diagnostics: true})

	result, err := service.Infer(context.Background(), inference.BlobInput{
		Data:     wavBytes(t, sine(440, 16000, 2)),
		MIMEType: "audio/wav",
	})
	require.NoError(t, err)

	assert.True(t, result.ProcessingSuccessful)
	assert.Empty(t, result.Error)
	assert.Equal(t, features.Count(13), result.FeaturesExtracted)
	assert.Equal(t, service.FeatureCount(), result.FeaturesExtracted)
	assert.Equal(t, "wav-direct", result.Backend)
	assert.GreaterOrEqual(t, result.Confidence, 0.0)
	assert.LessOrEqual(t, result.Confidence, 1.0)
	assert.Equal(t, result.Confidence > classifier.Threshold, result.IsEmergency)
	assert.Contains(t, []string{classifier.LabelNormal, classifier.LabelEmergency}, result.ClassLabel)
	require.NotNil(t, result.Input)
	assert.Equal(t, 16000, result.Input.SampleRate)
}

func TestInferTruncatedBlob(t *testing.T) {
	t.Parallel()

	service := newService(t, true, inference.Options{})
	data := wavBytes(t, sine(440, 16000, 1))

	result, err := service.Infer(context.Background(), inference.BlobInput{Data: data[:20], MIMEType: "audio/wav"})
	require.ErrorIs(t, err, inference.ErrBadInput)
	require.ErrorIs(t, err, decode.ErrDecodeFailure)

	var failure *decode.Failure
	require.ErrorAs(t, err, &failure)
	assert.NotEmpty(t, failure.Attempts)

	assert.False(t, result.ProcessingSuccessful)
	assert.False(t, result.IsEmergency)
	assert.Zero(t, result.Confidence)
	assert.NotEmpty(t, result.Error)
}

func TestInferEmptyBlob(t *testing.T) {
	t.Parallel()

	service := newService(t, true, inference.Options{})

	_, err := service.Infer(context.Background(), inference.BlobInput{MIMEType: "audio/wav"})
	require.ErrorIs(t, err, inference.ErrBadInput)
	require.ErrorIs(t, err, normalize.ErrEmptyAudio)
}

func TestInferArray(t *testing.T) {
	t.Parallel()

	service := newService(t, true, inference.Options{})
	left := sine(300, 16000, 1)
	right := sine(600, 16000, 1)

	result, err := service.Infer(context.Background(), inference.ArrayInput{
		Channels:   [][]float64{left, right},
		SampleRate: 16000,
	})
	require.NoError(t, err)
	assert.True(t, result.ProcessingSuccessful)
	assert.Equal(t, "array", result.Backend)
	assert.InDelta(t, 0.5*math.Sin(2*math.Pi*300*5/16000), left[5], 0, "input untouched")

	_, err = service.Infer(context.Background(), inference.ArrayInput{
		Channels:   [][]float64{left, right[:10]},
		SampleRate: 16000,
	})
	require.ErrorIs(t, err, inference.ErrBadInput)

	_, err = service.Infer(context.Background(), inference.ArrayInput{Channels: [][]float64{left}})
	require.ErrorIs(t, err, inference.ErrBadInput)

	_, err = service.Infer(context.Background(), &inference.ArrayInput{SampleRate: 16000})
	require.ErrorIs(t, err, inference.ErrBadInput)
}

func TestInferPath(t *testing.T) {
	t.Parallel()

	service := newService(t, true, inference.Options{})
	path := filepath.Join(t.TempDir(), "clip.wav")
	require.NoError(t, os.WriteFile(path, wavBytes(t, sine(500, 16000, 4)), 0o600))

	result, err := service.Infer(context.Background(), inference.PathInput{Path: path})
	require.NoError(t, err)
	assert.True(t, result.ProcessingSuccessful)

	_, err = service.Infer(context.Background(), inference.PathInput{Path: path + ".missing"})
	require.ErrorIs(t, err, inference.ErrBadInput)
}

func TestAnalyzeWithoutModel(t *testing.T) {
	t.Parallel()

	service := newService(t, false, inference.Options{})

	analysis, err := service.Analyze(context.Background(), inference.BlobInput{
		Data:     wavBytes(t, sine(440, 16000, 0.3)),
		MIMEType: "audio/wav",
	})
	require.NoError(t, err)
	assert.Len(t, analysis.Features, features.Count(13))
	assert.True(t, analysis.Canonical.Short)
	assert.Len(t, analysis.Canonical.Samples, 66150)
	assert.Nil(t, analysis.Report)
}
