package dataset_test

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/farcloser/tocsin/internal/cache"
	"github.com/farcloser/tocsin/internal/dataset"
	"github.com/farcloser/tocsin/internal/features"
	"github.com/farcloser/tocsin/internal/wavfile"
)

func writeTone(t *testing.T, path string, freq, amplitude float64) {
	t.Helper()

	const rate = 16000

	samples := make([]float64, rate)
	for i := range samples {
		samples[i] = amplitude * math.Sin(2*math.Pi*freq*float64(i)/rate)
	}

	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, wavfile.WriteFile(path, [][]float64{samples}, rate, 16))
}

func fixture(t *testing.T) string {
	t.Helper()

	root := t.TempDir()

	writeTone(t, filepath.Join(root, "emergency", "scream-1.wav"), 1200, 0.9)
	writeTone(t, filepath.Join(root, "emergency", "nested", "scream-2.wav"), 1500, 0.8)
	writeTone(t, filepath.Join(root, "normal", "talk-1.wav"), 220, 0.2)
	require.NoError(t, os.WriteFile(filepath.Join(root, "normal", "broken.wav"), []byte("definitely not audio"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(root, "normal", "notes.txt"), []byte("ignored"), 0o600))

	return root
}

func TestCollect(t *testing.T) {
	t.Parallel()

	root := fixture(t)

	files, err := dataset.Collect(root)
	require.NoError(t, err)
	require.Len(t, files, 4)

	assert.Equal(t, "emergency", files[0].Class)
	assert.Equal(t, filepath.Join(root, "emergency", "nested", "scream-2.wav"), files[0].Path)
	assert.Equal(t, "normal", files[3].Class)

	_, err = dataset.Collect(filepath.Join(root, "missing"))
	require.ErrorIs(t, err, dataset.ErrNotDirectory)

	_, err = dataset.Collect(t.TempDir())
	require.ErrorIs(t, err, dataset.ErrNoAudioFiles)
}

func TestLoad(t *testing.T) {
	t.Parallel()

	root := fixture(t)
	layout := features.DefaultLayout()

	store, err := cache.Open(cache.Options{InMemory: true}, layout)
	require.NoError(t, err)

	defer store.Close()

	var calls atomic.Int64

	opts := dataset.Options{
		Workers: 2,
		Cache:   store,
		Progress: func(_, total int, _ *dataset.Record) {
			calls.Add(1)
			assert.Equal(t, 4, total)
		},
	}

	set, err := dataset.Load(context.Background(), root, opts)
	require.NoError(t, err)

	assert.Equal(t, int64(4), calls.Load())
	require.Len(t, set.Records, 4)
	assert.Equal(t, 1, set.Failed())
	require.Len(t, set.Samples, 3)
	assert.Equal(t, []string{"emergency", "emergency", "normal"}, set.Classes)

	for _, sample := range set.Samples {
		assert.Len(t, sample, layout.Features)
	}

	for _, record := range set.Records {
		if filepath.Base(record.Path) == "broken.wav" {
			assert.Contains(t, record.Error, "decode failed")

			continue
		}

		assert.Empty(t, record.Error)
		assert.Equal(t, "wav-direct", record.Backend)
		assert.False(t, record.Cached)
	}

	again, err := dataset.Load(context.Background(), root, opts)
	require.NoError(t, err)

	for i, record := range again.Records {
		if record.Error == "" {
			assert.True(t, record.Cached, record.Path)
		}

		if i < len(again.Samples) {
			assert.Equal(t, set.Samples[i], again.Samples[i])
		}
	}
}

func TestLoadCancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := dataset.Load(ctx, fixture(t), dataset.Options{Workers: 1})
	require.ErrorIs(t, err, context.Canceled)
}
