package decode

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/farcloser/tocsin/internal/types"
)

func TestDecodeInterleaved24(t *testing.T) {
	t.Parallel()

	// -1 full scale, then +0.5, stereo: one frame.
	data := []byte{0x00, 0x00, 0x80, 0x00, 0x00, 0x40}

	planar, err := decodeInterleaved(data, types.PCMFormat{BitDepth: types.Depth24, Channels: 2})
	require.NoError(t, err)
	require.Len(t, planar, 2)
	assert.InDelta(t, -1.0, planar[0][0], 1e-12)
	assert.InDelta(t, 0.5, planar[1][0], 1e-12)
}

func TestDecodeInterleavedFloat(t *testing.T) {
	t.Parallel()

	data := make([]byte, 8)
	binary.LittleEndian.PutUint32(data, math.Float32bits(0.25))
	binary.LittleEndian.PutUint32(data[4:], math.Float32bits(-2))

	planar, err := decodeInterleaved(data, types.PCMFormat{BitDepth: types.Depth32, Channels: 1, Float: true})
	require.NoError(t, err)
	assert.Equal(t, []float64{0.25, -2}, planar[0], "float samples are passed through unclamped")
}

func TestDecodeInterleavedDropsPartialFrame(t *testing.T) {
	t.Parallel()

	planar, err := decodeInterleaved([]byte{0, 0, 0, 0, 1}, types.PCMFormat{BitDepth: types.Depth16, Channels: 2})
	require.NoError(t, err)
	assert.Len(t, planar[0], 1)

	_, err = decodeInterleaved([]byte{0}, types.PCMFormat{BitDepth: types.Depth16, Channels: 1})
	require.ErrorIs(t, err, errNoFrames)
}

func TestDecodeInterleaved8BitUnsigned(t *testing.T) {
	t.Parallel()

	planar, err := decodeInterleaved([]byte{0, 128, 255}, types.PCMFormat{BitDepth: types.Depth8, Channels: 1})
	require.NoError(t, err)
	assert.InDelta(t, -1.0, planar[0][0], 1e-12)
	assert.InDelta(t, 0.0, planar[0][1], 1e-12)
	assert.InDelta(t, 127.0/128.0, planar[0][2], 1e-12)
}

func TestReadLenientSkipsUnknownChunks(t *testing.T) {
	t.Parallel()

	wav := makeWAV([][]float64{tone(440, 8000, 100, 0.5)}, wavSpec{rate: 8000, bits: 16})

	// Insert an odd sized LIST chunk between fmt and data.
	list := []byte{'L', 'I', 'S', 'T', 3, 0, 0, 0, 'a', 'b', 'c', 0}
	patched := append(append(append([]byte{}, wav[:36]...), list...), wav[36:]...)

	wave, err := readLenient(patched, false, 0)
	require.NoError(t, err)
	assert.Equal(t, 8000, wave.SampleRate)
	assert.Len(t, wave.Channels[0], 100)
}

func TestReadLenientTruncatedData(t *testing.T) {
	t.Parallel()

	wav := makeWAV([][]float64{tone(440, 8000, 100, 0.5)}, wavSpec{rate: 8000, bits: 16})

	wave, err := readLenient(wav[:44+101], false, 0)
	require.NoError(t, err)
	assert.Len(t, wave.Channels[0], 50)
}

func TestReadLenientRejects(t *testing.T) {
	t.Parallel()

	_, err := readLenient([]byte("RIFF\x00\x00\x00\x00WAVEdata\x04\x00\x00\x00\x00\x00\x00\x00"), false, 0)
	require.ErrorIs(t, err, errMissingFormat)

	_, err = readLenient([]byte("hello world"), false, 16000)
	require.ErrorIs(t, err, errInvalidHeader)
}
