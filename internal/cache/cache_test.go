package cache_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/farcloser/tocsin/internal/cache"
	"github.com/farcloser/tocsin/internal/features"
)

func TestRoundTrip(t *testing.T) {
	t.Parallel()

	layout := features.DefaultLayout()

	store, err := cache.Open(cache.Options{InMemory: true}, layout)
	require.NoError(t, err)

	defer store.Close()

	vector := make([]float64, layout.Features)
	for i := range vector {
		vector[i] = float64(i) / 3
	}

	_, ok, err := store.Get([]byte("clip"))
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Put([]byte("clip"), vector))

	got, ok, err := store.Get([]byte("clip"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []float64(vector), []float64(got))

	_, ok, err = store.Get([]byte("other clip"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLayoutIsolation(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	content := []byte("same audio")

	first, err := cache.Open(cache.Options{Dir: dir}, features.DefaultLayout())
	require.NoError(t, err)
	require.NoError(t, first.Put(content, make([]float64, features.DefaultLayout().Features)))
	require.NoError(t, first.Close())

	other := features.NewLayout(22050, 3.0, 20)

	second, err := cache.Open(cache.Options{Dir: dir}, other)
	require.NoError(t, err)

	defer second.Close()

	_, ok, err := second.Get(content)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRequiresDir(t *testing.T) {
	t.Parallel()

	_, err := cache.Open(cache.Options{}, features.DefaultLayout())
	require.Error(t, err)
}
