package ffmpeg

import (
	"strconv"
	"time"

	"github.com/farcloser/tocsin/internal/types"
)

const (
	name = "ffmpeg"
	// DefaultTimeout bounds a single transcode. Uploaded clips are short.
	DefaultTimeout = 30 * time.Second
)

func bitDepthToCodec(bitDepth types.BitDepth) string {
	// 16 = pcm_s16le, 24 = pcm_s24le, 32 = pcm_s32le
	//nolint:gosec // we fine, gosec
	return "pcm_s" + strconv.Itoa(int(bitDepth)) + "le"
}
