package decode

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"
	"github.com/mewkiz/flac"

	"github.com/farcloser/tocsin/internal/types"
)

const (
	wavFormatPCM        = 1
	wavFormatExtensible = 0xFFFE
)

// decodeNative sniffs the container from its magic bytes.
func decodeNative(data []byte) (*types.Waveform, error) {
	switch {
	case isRIFFWave(data):
		return decodeWAV(data)
	case bytes.HasPrefix(data, []byte("fLaC")):
		return decodeFLAC(data)
	case isMPEGAudio(data):
		return decodeMP3(data)
	default:
		return nil, errUnknownEncoding
	}
}

func isRIFFWave(data []byte) bool {
	return len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WAVE"
}

func isMPEGAudio(data []byte) bool {
	if bytes.HasPrefix(data, []byte("ID3")) {
		return true
	}

	// Frame sync: 11 set bits, layer bits not reserved.
	return len(data) >= 2 && data[0] == 0xFF && data[1]&0xE0 == 0xE0 && data[1]&0x06 != 0
}

func decodeWAV(data []byte) (*types.Waveform, error) {
	dec := wav.NewDecoder(bytes.NewReader(data))
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("%w: not a valid WAV file", errInvalidHeader)
	}

	// go-audio reads every sample as an integer. Float and compressed WAV, including extensible headers
	// carrying a float sub format, are left to the lenient reader.
	format, err := wavFormat(data)
	if err != nil {
		return nil, err
	}

	if format.Float {
		return nil, fmt.Errorf("%w: %d bit float", errUnsupported, format.BitDepth)
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("reading PCM data: %w", err)
	}

	channels := int(dec.NumChans)
	if channels == 0 || len(buf.Data) < channels {
		return nil, errNoFrames
	}

	scale := fullScale(types.BitDepth(dec.BitDepth))
	if scale == 0 {
		return nil, fmt.Errorf("%w: %d bit", errUnsupported, dec.BitDepth)
	}

	interleaved := make([]float64, len(buf.Data)-len(buf.Data)%channels)
	for i := range interleaved {
		sample := float64(buf.Data[i])
		// go-audio reports 8-bit WAV as unsigned.
		if dec.BitDepth == 8 {
			sample -= 128
		}

		interleaved[i] = sample / scale
	}

	return &types.Waveform{
		Channels:   deinterleave(interleaved, channels),
		SampleRate: int(dec.SampleRate),
		BitDepth:   types.BitDepth(dec.BitDepth),
	}, nil
}

func decodeFLAC(data []byte) (*types.Waveform, error) {
	stream, err := flac.New(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errInvalidHeader, err)
	}
	defer stream.Close()

	channels := int(stream.Info.NChannels)
	scale := fullScale(types.BitDepth(stream.Info.BitsPerSample))

	if channels == 0 || scale == 0 {
		return nil, fmt.Errorf("%w: %d channels, %d bit", errUnsupported, channels, stream.Info.BitsPerSample)
	}

	planar := make([][]float64, channels)

	for {
		frame, err := stream.ParseNext()
		if errors.Is(err, io.EOF) {
			break
		}

		if err != nil {
			// Keep what decoded cleanly, a cut upload still carries usable audio.
			if len(planar[0]) > 0 {
				break
			}

			return nil, fmt.Errorf("parsing FLAC frame: %w", err)
		}

		for ch := range channels {
			for _, sample := range frame.Subframes[ch].Samples {
				planar[ch] = append(planar[ch], float64(sample)/scale)
			}
		}
	}

	return &types.Waveform{
		Channels:   planar,
		SampleRate: int(stream.Info.SampleRate),
		BitDepth:   types.BitDepth(stream.Info.BitsPerSample),
	}, nil
}

func decodeMP3(data []byte) (*types.Waveform, error) {
	dec, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errInvalidHeader, err)
	}

	// go-mp3 always yields 16-bit little endian stereo.
	raw, err := io.ReadAll(dec)
	if err != nil && len(raw) == 0 {
		return nil, fmt.Errorf("reading MP3 frames: %w", err)
	}

	planar, err := decodeInterleaved(raw, types.PCMFormat{BitDepth: types.Depth16, Channels: 2})
	if err != nil {
		return nil, err
	}

	return &types.Waveform{
		Channels:   planar,
		SampleRate: dec.SampleRate(),
	}, nil
}
