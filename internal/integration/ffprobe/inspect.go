//nolint:tagliatelle
package ffprobe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"time"

	"github.com/farcloser/primordium/fault"

	"github.com/farcloser/tocsin/internal/integration/binary"
	"github.com/farcloser/tocsin/internal/types"
)

const (
	name = "ffprobe"
	// Temp files on a loaded host can be slow to open. Keep it generous but below the transcode budget.
	timeout = 20 * time.Second
)

// Result contains the subset of ffprobe output used to describe an uploaded clip.
type Result struct {
	Streams []Stream `json:"streams"`
	Format  Format   `json:"format"`
}

/*
Bit depth reporting varies per codec:

  FLAC          bits_per_raw_sample  (bits_per_sample often 0)
  WAV/PCM/AIFF  bits_per_sample
  MP3/AAC/Opus  neither, lossy codecs have no bit depth
*/

// Stream describes one stream of the inspected container.
type Stream struct {
	Index            int    `json:"index"`
	CodecName        string `json:"codec_name"`                    // opus
	CodecType        string `json:"codec_type"`                    // audio
	SampleRate       string `json:"sample_rate,omitempty"`         // 48000
	Channels         int    `json:"channels,omitempty"`            // 1
	Duration         string `json:"duration,omitempty"`            // 2.981000
	BitsPerRawSample string `json:"bits_per_raw_sample,omitempty"` // see above
	BitsPerSample    int    `json:"bits_per_sample,omitempty"`     // see above
	SampleFmt        string `json:"sample_fmt,omitempty"`          // fltp
}

// Format represents container level information.
type Format struct {
	FormatName string `json:"format_name"`        // "matroska,webm"
	Duration   string `json:"duration,omitempty"` // "2.981000"
}

// Inspect runs ffprobe on the given file path and returns parsed metadata.
// It requires ffprobe to be available in the system PATH.
func Inspect(ctx context.Context, filePath string) (*Result, error) {
	slog.Debug("ffprobe.Inspect", "file path", filePath)

	ffprobePath, err := binary.Require(name)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	//nolint:gosec // filePath is a temp file created by the decoder
	cmd := exec.CommandContext(ctx, ffprobePath,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		filePath,
	)

	var stderr bytes.Buffer

	cmd.Stderr = &stderr

	output, err := cmd.Output()
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: after %v", fault.ErrTimeout, timeout)
		}

		return nil, fmt.Errorf("%w: %s: %w", fault.ErrCommandFailure, stderr.String(), err)
	}

	return parse(output)
}

func parse(output []byte) (*Result, error) {
	var result Result
	if err := json.Unmarshal(output, &result); err != nil {
		return nil, fmt.Errorf("%w: %w", fault.ErrInvalidJSON, err)
	}

	return &result, nil
}

// FirstAudio returns the first audio stream, or nil.
func (r *Result) FirstAudio() *Stream {
	for i := range r.Streams {
		if r.Streams[i].CodecType == "audio" {
			return &r.Streams[i]
		}
	}

	return nil
}

// BitDepth determines the source bit depth of the stream.
// For lossless codecs bits_per_raw_sample is the most reliable, PCM containers report bits_per_sample,
// lossy codecs report neither and yield 0.
func (s *Stream) BitDepth() types.BitDepth {
	if s.BitsPerRawSample != "" {
		if bits, err := strconv.Atoi(s.BitsPerRawSample); err == nil && bits > 0 {
			return types.BitDepth(bits) //nolint:gosec // small positive value
		}
	}

	if s.BitsPerSample > 0 {
		return types.BitDepth(s.BitsPerSample) //nolint:gosec // small positive value
	}

	return 0
}
