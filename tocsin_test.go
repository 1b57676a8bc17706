package tocsin_test

import (
	"context"
	"math"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/farcloser/tocsin"
	"github.com/farcloser/tocsin/internal/classifier"
	"github.com/farcloser/tocsin/internal/dataset"
	"github.com/farcloser/tocsin/internal/inference"
	"github.com/farcloser/tocsin/internal/storage"
	"github.com/farcloser/tocsin/internal/wavfile"
)

func TestDefaultOptions(t *testing.T) {
	t.Parallel()

	opts := tocsin.DefaultOptions()
	assert.Equal(t, 22050, opts.SampleRate)
	assert.InDelta(t, 3.0, opts.Duration, 0)
	assert.Equal(t, 13, opts.NMFCC)
	assert.Equal(t, 30*time.Second, opts.TranscodeTimeout)

	assert.Equal(t, 44, tocsin.FeatureCount(13))
	assert.Equal(t, 2*40+18, tocsin.FeatureCount(40))

	layout := tocsin.Options{}.Layout()
	assert.Equal(t, opts.Layout(), layout)
	assert.Equal(t, 66150, layout.Samples())

	layout = tocsin.Options{SampleRate: 16000, Duration: 2, NMFCC: 20}.Layout()
	assert.Equal(t, 32000, layout.Samples())
	assert.Equal(t, tocsin.FeatureCount(20), layout.Features)
}

func TestPipelineWithoutModel(t *testing.T) {
	t.Parallel()

	pipeline := tocsin.New(nil, tocsin.Options{Diagnostics: true})

	result, err := pipeline.Predict(context.Background(), inference.ArrayInput{
		Channels:   [][]float64{make([]float64, 100)},
		SampleRate: 8000,
	})
	require.ErrorIs(t, err, classifier.ErrModelNotLoaded)
	assert.False(t, result.ProcessingSuccessful)

	require.Error(t, pipeline.Load(context.Background()))

	samples := make([]float64, 16000)
	for i := range samples {
		samples[i] = 0.5 * math.Sin(2*math.Pi*300*float64(i)/16000)
	}

	data, err := wavfile.Bytes([][]float64{samples}, 16000, 16)
	require.NoError(t, err)

	analysis, err := pipeline.Analyze(context.Background(), inference.BlobInput{Data: data, MIMEType: "audio/wav"})
	require.NoError(t, err)
	assert.Len(t, analysis.Features, tocsin.FeatureCount(13))
	assert.Len(t, analysis.Canonical.Samples, pipeline.Layout().Samples())
	require.NotNil(t, analysis.Report)
	assert.Equal(t, 16000, analysis.Report.SampleRate)

	_, err = pipeline.Train(context.Background(), &dataset.Set{}, classifier.TrainOptions{})
	require.Error(t, err)
}

func TestPipelineTrainAndReload(t *testing.T) {
	t.Parallel()

	store, err := storage.NewLocal(t.TempDir())
	require.NoError(t, err)

	pipeline := tocsin.New(store, tocsin.DefaultOptions())
	width := pipeline.Layout().Features
	rng := rand.New(rand.NewPCG(7, 8))

	set := &dataset.Set{}

	for i := range 40 {
		class := []string{classifier.LabelNormal, classifier.LabelEmergency}[i%2]
		offset := -2.0
		if class == classifier.LabelEmergency {
			offset = 2.0
		}

		sample := make([]float64, width)
		for j := range sample {
			sample[j] = offset + rng.NormFloat64()
		}

		set.Samples = append(set.Samples, sample)
		set.Classes = append(set.Classes, class)
	}

	history, err := pipeline.Train(context.Background(), set, classifier.TrainOptions{Hidden: []int{8}, Epochs: 20})
	require.NoError(t, err)
	assert.NotEmpty(t, history.Epochs)
	assert.True(t, pipeline.Handle().Loaded())

	reloaded := tocsin.New(store, tocsin.DefaultOptions())
	require.NoError(t, reloaded.Load(context.Background()))

	input := make([]float64, width)
	for j := range input {
		input[j] = 2
	}

	first, err := pipeline.Handle().Get()
	require.NoError(t, err)

	second, err := reloaded.Handle().Get()
	require.NoError(t, err)

	want, err := first.Predict(input)
	require.NoError(t, err)

	got, err := second.Predict(input)
	require.NoError(t, err)
	assert.InDelta(t, want.Confidence, got.Confidence, 1e-9)
	assert.Equal(t, first.Stamp(), second.Stamp())
}
