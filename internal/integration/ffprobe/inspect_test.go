package ffprobe

import (
	"testing"

	"github.com/farcloser/primordium/fault"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/farcloser/tocsin/internal/types"
)

func TestParse(t *testing.T) {
	t.Parallel()

	out := []byte(`{
		"streams": [
			{"index": 0, "codec_name": "vp8", "codec_type": "video"},
			{"index": 1, "codec_name": "flac", "codec_type": "audio", "sample_rate": "44100",
			 "channels": 2, "bits_per_raw_sample": "24", "bits_per_sample": 0}
		],
		"format": {"format_name": "matroska,webm", "duration": "2.981000"}
	}`)

	result, err := parse(out)
	require.NoError(t, err)

	stream := result.FirstAudio()
	require.NotNil(t, stream)
	assert.Equal(t, 1, stream.Index)
	assert.Equal(t, types.Depth24, stream.BitDepth())
	assert.Equal(t, "matroska,webm", result.Format.FormatName)
}

func TestParseInvalid(t *testing.T) {
	t.Parallel()

	_, err := parse([]byte("not json"))
	require.ErrorIs(t, err, fault.ErrInvalidJSON)
}

func TestStreamBitDepth(t *testing.T) {
	t.Parallel()

	assert.Equal(t, types.Depth16, (&Stream{BitsPerSample: 16}).BitDepth())
	assert.Equal(t, types.BitDepth(0), (&Stream{CodecName: "opus"}).BitDepth())
	assert.Equal(t, types.Depth16, (&Stream{BitsPerRawSample: "bogus", BitsPerSample: 16}).BitDepth())
}

func TestFirstAudioNone(t *testing.T) {
	t.Parallel()

	assert.Nil(t, (&Result{}).FirstAudio())
}
